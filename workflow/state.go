package workflow

import "fmt"

// State of one orchestrator.
type State string

const (
	StateIdle         State = "idle"
	StateAnalyzing    State = "analyzing"
	StateSynthesizing State = "synthesizing"
	StatePublishing   State = "publishing"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// IsActive reports whether a run is in flight.
func (s State) IsActive() bool {
	switch s {
	case StateAnalyzing, StateSynthesizing, StatePublishing:
		return true
	default:
		return false
	}
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateIdle, StateDone, StateFailed:
		return to == StateAnalyzing
	case StateAnalyzing:
		return to == StateSynthesizing || to == StateFailed
	case StateSynthesizing:
		// 语音合成失败不致命，总是进入发布
		return to == StatePublishing
	case StatePublishing:
		return to == StateDone || to == StateFailed
	default:
		return false
	}
}

// Status is the six-flag progress record shown next to each step.
type Status struct {
	Analyzing      bool `json:"analyzing"`
	AnalyzeDone    bool `json:"analyze_done"`
	Synthesizing   bool `json:"synthesizing"`
	SynthesizeDone bool `json:"synthesize_done"`
	Publishing     bool `json:"publishing"`
	PublishDone    bool `json:"publish_done"`
}

// statusFor derives the flags for entering state to. Failed and idle clear everything.
func statusFor(to State) Status {
	switch to {
	case StateAnalyzing:
		return Status{Analyzing: true}
	case StateSynthesizing:
		return Status{AnalyzeDone: true, Synthesizing: true}
	case StatePublishing:
		return Status{AnalyzeDone: true, SynthesizeDone: true, Publishing: true}
	case StateDone:
		return Status{AnalyzeDone: true, SynthesizeDone: true, PublishDone: true}
	default:
		return Status{}
	}
}

type transitionError struct {
	from, to State
}

func (e *transitionError) Error() string {
	return fmt.Sprintf("disallowed workflow transition: %s -> %s", e.from, e.to)
}
