package workflow

import (
	"context"
	"time"

	"blogauto/generator"
	"blogauto/publisher"
	"blogauto/speech"
)

// Analyzer turns raw text into an analysis. Errors are fatal to the run.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (generator.Analysis, error)
}

// Synthesizer produces an optional audio reference. It never fails the run.
type Synthesizer interface {
	Save(ctx context.Context, text string) (speech.Reference, bool)
}

// Publisher stores the final article. Errors are fatal to the run.
type Publisher interface {
	Publish(ctx context.Context, art publisher.Article) (publisher.Post, error)
}

// Observer is told about every state change, in order, on the running goroutine.
type Observer interface {
	Observe(Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

func (f ObserverFunc) Observe(s Snapshot) { f(s) }

// Result aggregates a successful run.
type Result struct {
	Title           string   `json:"title"`
	Intent          string   `json:"intent"`
	Summary         string   `json:"summary"`
	Tags            []string `json:"tags"`
	Tone            string   `json:"tone"`
	PostID          string   `json:"post_id"`
	AudioURL        string   `json:"audio_url"`
	AudioFilename   string   `json:"audio_filename"`
	PolishedContent string   `json:"polished_content"`
	ChangesMade     string   `json:"changes_made"`
	OriginalText    string   `json:"original_text"`
	// RawAnalysis is true when the model reply could not be parsed.
	RawAnalysis bool `json:"raw_analysis"`
}

// Snapshot is a copy of the orchestrator's state.
type Snapshot struct {
	RunID      string     `json:"run_id,omitempty"`
	State      State      `json:"state"`
	Status     Status     `json:"status"`
	Result     *Result    `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (r *Result) clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	c.Tags = append([]string{}, r.Tags...)
	return &c
}
