package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes JSON events on <prefix>.workflow.<session>.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
	owned  bool
}

// NewNATSSink dials url and owns the connection.
func NewNATSSink(url, prefix string) (*NATSSink, error) {
	nc, err := nats.Connect(url, nats.Name("blogauto"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	sink := NewNATSSinkConn(nc, prefix)
	sink.owned = true
	return sink, nil
}

// NewNATSSinkConn reuses an existing connection, which Close leaves open.
func NewNATSSinkConn(nc *nats.Conn, prefix string) *NATSSink {
	return &NATSSink{conn: nc, prefix: prefix}
}

func (n *NATSSink) Subject(session string) string {
	return fmt.Sprintf("%s.workflow.%s", n.prefix, token(session))
}

func (n *NATSSink) Emit(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.conn.Publish(n.Subject(ev.Session), data); err != nil {
		return fmt.Errorf("publish %s: %w", n.Subject(ev.Session), err)
	}
	return nil
}

func (n *NATSSink) Close() error {
	if !n.owned {
		return nil
	}
	return n.conn.Drain()
}
