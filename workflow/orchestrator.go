// Package workflow sequences analyze → synthesize → publish for one user
// session and keeps the progress record the UI renders.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"blogauto/apperr"
	"blogauto/generator"
	"blogauto/publisher"
	"blogauto/speech"
)

// ErrRunInProgress is returned by Run while another run is active.
var ErrRunInProgress = apperr.New(apperr.KindConflict, apperr.MsgRunInProgress, nil)

// Orchestrator owns the state of at most one run at a time. Run is the only
// mutator; everything else reads a copy.
type Orchestrator struct {
	analyzer  Analyzer
	synth     Synthesizer
	publisher Publisher
	observers []Observer
	log       logrus.FieldLogger
	now       func() time.Time
	newID     func() string

	mu   sync.Mutex
	snap Snapshot
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// New wires the three collaborators.
func New(a Analyzer, s Synthesizer, p Publisher, opts ...Option) (*Orchestrator, error) {
	if a == nil || s == nil || p == nil {
		return nil, errors.New("analyzer, synthesizer and publisher are required")
	}
	o := &Orchestrator{
		analyzer:  a,
		synth:     s,
		publisher: p,
		log:       logrus.StandardLogger(),
		now:       time.Now,
		newID:     uuid.NewString,
		snap:      Snapshot{State: StateIdle},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run executes one workflow for text and blocks until it reaches done or
// failed. It returns ErrRunInProgress if a run is already active, and an
// apperr.KindInput error without starting when text is blank.
func (o *Orchestrator) Run(ctx context.Context, text string) (res Result, err error) {
	runID, err := o.begin(text)
	if err != nil {
		return Result{}, err
	}
	log := o.log.WithField("run_id", runID)
	// 协作方 panic 时把本次运行标记为失败，否则会话会一直停在进行中
	defer func() {
		if r := recover(); r != nil {
			res, err = Result{}, o.abort(log, r)
		}
	}()
	log.WithField("input_len", len([]rune(text))).Info("workflow started")

	analysis, err := o.analyzer.Analyze(ctx, text)
	if err != nil {
		return Result{}, o.fail(log, StateAnalyzing, err)
	}
	res = resultFromAnalysis(analysis, text)
	if err := o.advance(log, StateAnalyzing, StateSynthesizing); err != nil {
		return Result{}, err
	}

	if ref, ok := o.saveAudio(ctx, log, res.PolishedContent); ok {
		res.AudioFilename = ref.Filename
		res.AudioURL = ref.URL
	} else {
		log.Info("continuing without audio")
	}
	if err := o.advance(log, StateSynthesizing, StatePublishing); err != nil {
		return Result{}, err
	}

	post, err := o.publisher.Publish(ctx, publisher.Article{
		Title:         res.Title,
		Content:       res.PolishedContent,
		Summary:       res.Summary,
		Tags:          res.Tags,
		AudioFilename: res.AudioFilename,
	})
	if err != nil {
		return Result{}, o.fail(log, StatePublishing, err)
	}
	res.PostID = post.ID

	if err := o.finish(log, res); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (o *Orchestrator) begin(text string) (string, error) {
	o.mu.Lock()
	if o.snap.State.IsActive() {
		o.mu.Unlock()
		return "", ErrRunInProgress
	}
	if strings.TrimSpace(text) == "" {
		o.snap.Error = apperr.MsgEmptyInput
		snap := o.copyLocked()
		o.mu.Unlock()
		o.notify(snap)
		return "", apperr.Input(apperr.MsgEmptyInput)
	}
	if !isAllowedTransition(o.snap.State, StateAnalyzing) {
		err := &transitionError{from: o.snap.State, to: StateAnalyzing}
		o.mu.Unlock()
		return "", err
	}
	started := o.now()
	o.snap = Snapshot{
		RunID:     o.newID(),
		State:     StateAnalyzing,
		Status:    statusFor(StateAnalyzing),
		StartedAt: &started,
	}
	snap := o.copyLocked()
	o.mu.Unlock()

	o.notify(snap)
	return snap.RunID, nil
}

func (o *Orchestrator) advance(log logrus.FieldLogger, from, to State) error {
	o.mu.Lock()
	if o.snap.State != from || !isAllowedTransition(from, to) {
		err := &transitionError{from: o.snap.State, to: to}
		o.mu.Unlock()
		log.WithError(err).Error("workflow state corrupted")
		return err
	}
	o.snap.State = to
	o.snap.Status = statusFor(to)
	snap := o.copyLocked()
	o.mu.Unlock()

	log.WithField("state", to).Debug("workflow advanced")
	o.notify(snap)
	return nil
}

// fail resets every step flag and records the user-facing message of cause.
func (o *Orchestrator) fail(log logrus.FieldLogger, from State, cause error) error {
	msg := apperr.UserMessage(cause)
	o.mu.Lock()
	if o.snap.State != from || !isAllowedTransition(from, StateFailed) {
		err := &transitionError{from: o.snap.State, to: StateFailed}
		o.mu.Unlock()
		return errors.Join(cause, err)
	}
	finished := o.now()
	o.snap.State = StateFailed
	o.snap.Status = statusFor(StateFailed)
	o.snap.Result = nil
	o.snap.Error = msg
	o.snap.FinishedAt = &finished
	snap := o.copyLocked()
	o.mu.Unlock()

	log.WithError(cause).WithField("step", from).Error("workflow failed")
	o.notify(snap)
	return cause
}

// saveAudio treats a panicking synthesizer like any other synthesis failure.
func (o *Orchestrator) saveAudio(ctx context.Context, log logrus.FieldLogger, text string) (ref speech.Reference, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).Error("speech synthesis panicked")
			ref, ok = speech.Reference{}, false
		}
	}()
	return o.synth.Save(ctx, text)
}

// abort fails whatever step is active after a panic.
func (o *Orchestrator) abort(log logrus.FieldLogger, recovered any) error {
	cause := apperr.New(apperr.KindInternal, apperr.MsgProcessingFailed, fmt.Errorf("panic: %v", recovered))
	o.mu.Lock()
	from := o.snap.State
	if !from.IsActive() {
		o.mu.Unlock()
		return cause
	}
	o.mu.Unlock()
	return o.fail(log.WithField("panic", fmt.Sprint(recovered)), from, cause)
}

func (o *Orchestrator) finish(log logrus.FieldLogger, res Result) error {
	o.mu.Lock()
	if o.snap.State != StatePublishing {
		err := &transitionError{from: o.snap.State, to: StateDone}
		o.mu.Unlock()
		return err
	}
	finished := o.now()
	o.snap.State = StateDone
	o.snap.Status = statusFor(StateDone)
	o.snap.Result = res.clone()
	o.snap.Error = ""
	o.snap.FinishedAt = &finished
	snap := o.copyLocked()
	o.mu.Unlock()

	log.WithFields(logrus.Fields{"post_id": res.PostID, "has_audio": res.AudioFilename != ""}).Info("workflow done")
	o.notify(snap)
	return nil
}

func (o *Orchestrator) notify(snap Snapshot) {
	for _, obs := range o.observers {
		obs.Observe(snap)
	}
}

func (o *Orchestrator) copyLocked() Snapshot {
	c := o.snap
	c.Result = o.snap.Result.clone()
	if o.snap.StartedAt != nil {
		t := *o.snap.StartedAt
		c.StartedAt = &t
	}
	if o.snap.FinishedAt != nil {
		t := *o.snap.FinishedAt
		c.FinishedAt = &t
	}
	return c
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.copyLocked()
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap.State
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap.Status
}

// Result returns the last successful result, if the orchestrator is done.
func (o *Orchestrator) Result() (Result, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.snap.Result == nil {
		return Result{}, false
	}
	return *o.snap.Result.clone(), true
}

// Err returns the recorded error message, empty when none.
func (o *Orchestrator) Err() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap.Error
}

// resultFromAnalysis applies the display defaults. A raw analysis keeps the
// original input as the article body.
func resultFromAnalysis(a generator.Analysis, input string) Result {
	res := Result{
		Title:           generator.DefaultTitle,
		Intent:          generator.DefaultIntent,
		Tags:            []string{},
		PolishedContent: input,
		OriginalText:    input,
	}
	r, ok := a.Report()
	if !ok {
		res.RawAnalysis = true
		return res
	}
	res.Title = orDefault(r.TitleSuggestion, res.Title)
	res.Intent = orDefault(r.Intent, res.Intent)
	res.PolishedContent = orDefault(r.PolishedContent, input)
	res.Summary = r.Summary
	res.Tone = r.Tone
	res.ChangesMade = r.ChangesMade
	if len(r.Tags) > 0 {
		res.Tags = r.Tags
	}
	return res
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
