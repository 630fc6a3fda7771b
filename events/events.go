// Package events fans workflow progress out to external subscribers.
// Delivery is best effort: a sink failure is logged and never reaches the run.
package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"blogauto/workflow"
)

const emitTimeout = 3 * time.Second

// Event is one workflow state change of one session.
type Event struct {
	Session string          `json:"session"`
	RunID   string          `json:"run_id"`
	State   workflow.State  `json:"state"`
	Status  workflow.Status `json:"status"`
	Error   string          `json:"error,omitempty"`
	PostID  string          `json:"post_id,omitempty"`
	At      time.Time       `json:"at"`
}

// FromSnapshot 把快照转换为事件。
func FromSnapshot(session string, snap workflow.Snapshot, at time.Time) Event {
	ev := Event{
		Session: session,
		RunID:   snap.RunID,
		State:   snap.State,
		Status:  snap.Status,
		Error:   snap.Error,
		At:      at.UTC(),
	}
	if snap.Result != nil {
		ev.PostID = snap.Result.PostID
	}
	return ev
}

// Sink delivers events somewhere.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
	Close() error
}

type multi []Sink

// Multi returns a sink that emits to every non-nil sink. Nil when none remain.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	if len(m) == 0 {
		return nil
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}

func (m multi) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Observer adapts a sink to workflow.Observer for one session.
func Observer(sink Sink, session string, log logrus.FieldLogger) workflow.Observer {
	return workflow.ObserverFunc(func(snap workflow.Snapshot) {
		if sink == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := sink.Emit(ctx, FromSnapshot(session, snap, time.Now())); err != nil && log != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"session": session,
				"state":   snap.State,
			}).Warn("emit workflow event failed")
		}
	})
}

// token makes s safe as one NATS subject token or Redis key segment.
func token(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "anonymous"
	}
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_", ":", "_").Replace(s)
}
