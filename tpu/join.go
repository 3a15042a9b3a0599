package tpu

import (
	"errors"

	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/libs/service"
	"github.com/tendermint/tpu/types"
)

// Result is the outcome of joining one stage.
type Result struct {
	Stage string
	Err   error
}

// joinAll waits for every routine, in order, and records each outcome. It
// never stops early.
func joinAll(logger log.Logger, routines []*service.Routine) []Result {
	results := make([]Result, 0, len(routines))
	for _, r := range routines {
		err := r.Join()
		if err != nil {
			logger.Error("stage failed", "stage", r.Name(), "err", err)
		}
		results = append(results, Result{Stage: r.Name(), Err: err})
	}
	return results
}

// JoinResults waits for every stage and returns all outcomes: the pipeline
// stages, then the entry notifier, broadcast and the tracer. An error the
// tracer reports about its own work is logged and not included as a
// failure; a tracer that could not be joined is.
func (t *TPU) JoinResults() []Result {
	results := joinAll(t.logger, t.stages)
	if t.notifier != nil {
		results = append(results, joinAll(t.logger, []*service.Routine{t.notifier})...)
	}
	results = append(results, joinAll(t.logger, []*service.Routine{t.broadcast})...)
	if t.tracer != nil {
		out := t.tracer.Join()
		if out.Reported != nil {
			t.logger.Error("banking tracer reported an error", "err", out.Reported)
		}
		results = append(results, Result{Stage: "banking_tracer", Err: out.JoinErr})
	}
	return results
}

// Join waits for every stage and returns the first failure, if any, as a
// StageFailure.
func (t *TPU) Join() error {
	return firstFailure(t.JoinResults())
}

func firstFailure(results []Result) error {
	for _, r := range results {
		if r.Err != nil {
			return types.StageFailure{Stage: r.Stage, Err: r.Err}
		}
	}
	return nil
}

// IsStageFailure reports whether err is a failed stage, and which.
func IsStageFailure(err error) (string, bool) {
	var sf types.StageFailure
	if errors.As(err, &sf) {
		return sf.Stage, true
	}
	return "", false
}
