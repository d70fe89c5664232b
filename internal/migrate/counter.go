package migrate

import (
	"context"
	"fmt"
)

// CounterCfg configures the one-shot counter worker.
type CounterCfg struct {
	DB    SourceDB
	State *SharedState
}

// SpawnCounterStage issues a single query for (remaining, total) row counts
// and publishes them into State, then returns. It runs independently of the
// pipeline proper; its result is advisory (used only for the monitor's ETA),
// so the engine does not block pipeline startup on it.
func SpawnCounterStage(ctx context.Context, cfg CounterCfg) error {
	remaining, total, err := cfg.DB.CountRemainingAndTotal(ctx)
	if err != nil {
		return fmt.Errorf("counter: %w", err)
	}
	cfg.State.SetRemainingCount(remaining)
	cfg.State.SetTotalCount(total)
	return nil
}
