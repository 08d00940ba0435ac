package harness

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/entitysync/internal/catalog"
	"github.com/roach88/entitysync/internal/entities"
	"github.com/roach88/entitysync/internal/keygen"
	"github.com/roach88/entitysync/internal/logging"
	"github.com/roach88/entitysync/internal/orphans"
	"github.com/roach88/entitysync/internal/testutil"
)

// Deterministic key material used by every scenario. Keys created in a
// scenario look like key.scenario.r0000001.
const (
	ProjectID   = "scenario"
	KeyPrefix   = "r"
	TokenLength = 8
)

// Harness executes one scenario against fresh in-memory remotes.
type Harness struct {
	remotes  *testutil.Remotes
	registry *entities.Registry
	logger   *slog.Logger
}

// Run executes a scenario with logging discarded.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario, nil)
}

// RunContext executes a scenario and returns its result. The error is
// non-nil only when the scenario could not be executed at all: bad seed
// data, a failing initial pull, or a failing setup step. Flow and
// assertion failures are reported in the Result.
func RunContext(ctx context.Context, scenario *Scenario, logger *slog.Logger) (*Result, error) {
	logger = logging.Default(logger).With("scenario", scenario.Name)

	keys, sinks, sources, err := decodeSeed(scenario.Seed)
	if err != nil {
		return nil, err
	}
	remotes := testutil.NewRemotes()
	if err := remotes.Seed(keys, sinks, sources); err != nil {
		return nil, err
	}

	h := &Harness{
		remotes: remotes,
		registry: entities.NewRegistry(entities.Options{
			Keys:        remotes.Keys,
			Sinks:       remotes.Sinks,
			Sources:     remotes.Sources,
			Catalog:     catalog.FromHidden(scenario.Catalog),
			ProjectID:   ProjectID,
			KeyGen:      keygen.NewSequence(KeyPrefix),
			TokenLength: TokenLength,
			MaxParallel: 1,
			Logger:      logger,
		}),
		logger: logger,
	}

	h.registry.PullAll(ctx, true)
	if err := h.registry.Err(); err != nil {
		return nil, fmt.Errorf("initial pull: %w", err)
	}

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	remotes.Recorder.Reset()

	result := NewResult()
	h.executeFlow(ctx, scenario.Flow, result)

	result.Warnings = orphans.Detect(h.registry.Snapshot())
	for _, msg := range h.evaluate(scenario.Assertions, result) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeSetup(ctx context.Context, setup []Step) error {
	for i, step := range setup {
		if err := h.apply(ctx, step); err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Op, err)
		}
		h.logger.Debug("setup step completed", "step", i, "op", step.Op)
	}
	return nil
}

// executeFlow runs every step, even after a failure, so later steps can
// observe recovery behaviour.
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) {
	for i, step := range flow {
		before := len(h.remotes.Recorder.Calls())
		err := h.apply(ctx, step)
		calls := h.remotes.Recorder.Calls()[before:]

		trace := StepTrace{Op: step.Op, Calls: calls}
		switch {
		case err == nil && step.ExpectError == "":
		case err == nil:
			result.AddError(fmt.Sprintf("flow step %d (%s): expected %s error, got success", i, step.Op, step.ExpectError))
		case step.ExpectError == "":
			trace.Error = err.Error()
			result.AddError(fmt.Sprintf("flow step %d (%s): unexpected error: %v", i, step.Op, err))
		case !matchesKind(err, step.ExpectError):
			trace.Error = err.Error()
			result.AddError(fmt.Sprintf("flow step %d (%s): expected %s error, got: %v", i, step.Op, step.ExpectError, err))
		default:
			trace.Error = step.ExpectError
		}
		result.Steps = append(result.Steps, trace)

		h.logger.Debug("flow step completed", "step", i, "op", step.Op, "calls", len(calls), "error", err)
	}
}

func (h *Harness) apply(ctx context.Context, step Step) error {
	op, ok := operations[step.Op]
	if !ok {
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return op(ctx, h, step.Args)
}
