package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const streamMaxLen = 1024

// RedisSink appends events to the stream <prefix>:workflow:<session>.
type RedisSink struct {
	client *redis.Client
	prefix string
	log    logrus.FieldLogger
}

func NewRedisSink(rawURL, prefix string, log logrus.FieldLogger) (*RedisSink, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DialTimeout = 3 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if log != nil {
		log.WithField("addr", opt.Addr).Info("redis event sink ready")
	}
	return &RedisSink{client: client, prefix: prefix, log: log}, nil
}

func (r *RedisSink) Stream(session string) string {
	return streamName(r.prefix, session)
}

func (r *RedisSink) Emit(ctx context.Context, ev Event) error {
	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.Stream(ev.Session),
		Values: streamValues(ev),
		MaxLen: streamMaxLen,
		Approx: true,
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", r.Stream(ev.Session), err)
	}
	return nil
}

func (r *RedisSink) Close() error {
	return r.client.Close()
}

func streamName(prefix, session string) string {
	return fmt.Sprintf("%s:workflow:%s", prefix, token(session))
}

func streamValues(ev Event) map[string]interface{} {
	v := map[string]interface{}{
		"type":            "workflow_update",
		"session":         ev.Session,
		"run_id":          ev.RunID,
		"state":           string(ev.State),
		"analyzing":       strconv.FormatBool(ev.Status.Analyzing),
		"analyze_done":    strconv.FormatBool(ev.Status.AnalyzeDone),
		"synthesizing":    strconv.FormatBool(ev.Status.Synthesizing),
		"synthesize_done": strconv.FormatBool(ev.Status.SynthesizeDone),
		"publishing":      strconv.FormatBool(ev.Status.Publishing),
		"publish_done":    strconv.FormatBool(ev.Status.PublishDone),
		"timestamp":       ev.At.Format(time.RFC3339),
	}
	if ev.Error != "" {
		v["error"] = ev.Error
	}
	if ev.PostID != "" {
		v["post_id"] = ev.PostID
	}
	return v
}
