package workflow

import (
	"context"
	"time"
)

// ReplayOptions tune a replay for debugging. With an empty skip set and no
// stop point, none of them change the reconstructed final state.
type ReplayOptions struct {
	// StopAt halts the replay after the named step has been applied.
	StopAt string
	// Skip names steps whose deltas are not applied.
	Skip map[string]bool
	// StepDelay inserts an artificial pause between steps, for manual
	// observation. Zero replays at full speed.
	StepDelay time.Duration
}

// Replayer reconstructs a recording's state by folding each step's delta over
// the initial input, exactly as the live run accumulated it.
type Replayer struct {
	rec   Recording
	opts  ReplayOptions
	pos   int
	state map[string]interface{}
}

func NewReplayer(rec Recording, opts ReplayOptions) *Replayer {
	return &Replayer{
		rec:   rec,
		opts:  opts,
		state: copyState(rec.Input),
	}
}

// State returns the reconstructed state so far.
func (r *Replayer) State() map[string]interface{} {
	return copyState(r.state)
}

// StepOnce applies the next step and reports whether the replay can continue.
// Skipped steps still advance the cursor.
func (r *Replayer) StepOnce() (Step, bool) {
	if r.pos >= len(r.rec.Steps) {
		return Step{}, false
	}
	step := r.rec.Steps[r.pos]
	r.pos++

	if !r.opts.Skip[step.StepName] {
		// Shallow merge: later keys win, matching live accumulation.
		for k, v := range step.OutputStateDelta {
			r.state[k] = v
		}
	}

	if r.opts.StopAt != "" && step.StepName == r.opts.StopAt {
		r.pos = len(r.rec.Steps)
	}
	return step, true
}

// Run replays every remaining step and returns the reconstructed final state.
func (r *Replayer) Run(ctx context.Context) (map[string]interface{}, error) {
	first := true
	for {
		if !first && r.opts.StepDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.opts.StepDelay):
			}
		}
		first = false

		if _, ok := r.StepOnce(); !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return r.State(), nil
}

// Replay is the one-shot form: fold the whole recording, no options.
func Replay(ctx context.Context, rec Recording) (map[string]interface{}, error) {
	return NewReplayer(rec, ReplayOptions{}).Run(ctx)
}
