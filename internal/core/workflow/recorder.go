package workflow

import (
	"sync"

	"github.com/halcyonlabs/consilium/internal/core/model"
)

// Step captures one step transition of a run: what it produced (as a state
// delta), how long it took, and what it cost.
type Step struct {
	StepID           string                 `json:"step_id"`
	StepName         string                 `json:"step_name"`
	DurationMs       float64                `json:"duration_ms"`
	OutputStateDelta map[string]interface{} `json:"output_state_delta"`
	TokenUsage       model.TokenUsage       `json:"token_usage"`
	Errors           []string               `json:"errors,omitempty"`
}

// Recording is the immutable trace of one run. Replay folds the step deltas
// over Input in order to reconstruct the final state.
type Recording struct {
	Input           map[string]interface{} `json:"input"`
	Steps           []Step                 `json:"steps"`
	TotalDurationMs float64                `json:"total_duration_ms"`
	TotalTokens     model.TokenUsage       `json:"total_tokens"`
}

// Recorder accumulates steps append-only while a run executes.
type Recorder struct {
	mu    sync.Mutex
	input map[string]interface{}
	steps []Step
}

func NewRecorder(input map[string]interface{}) *Recorder {
	return &Recorder{input: copyState(input)}
}

func (r *Recorder) Record(step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
}

// Snapshot freezes the recording taken so far.
func (r *Recorder) Snapshot() Recording {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := Recording{
		Input: copyState(r.input),
		Steps: make([]Step, len(r.steps)),
	}
	copy(rec.Steps, r.steps)
	for _, s := range r.steps {
		rec.TotalDurationMs += s.DurationMs
		rec.TotalTokens.Add(s.TokenUsage)
	}
	return rec
}

func (r *Recorder) StepCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.steps)
}

func copyState(state map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}
