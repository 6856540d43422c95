/*

This file contains the control loop. The agent wires the observer, the policy
engine and the execution engine into scheduled cycles: observe, decide, gate,
execute, report. A cycle failure is logged and absorbed; the next tick starts
from a fresh observation.

*/

package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/neurallock/nla/internal/chain"
	"github.com/neurallock/nla/internal/logger"
	"github.com/neurallock/nla/internal/observer"
	"github.com/neurallock/nla/internal/state"
	"github.com/neurallock/nla/internal/types"
)

// MinExecutionConfidence is the floor below which decisions are observed but
// never executed.
const MinExecutionConfidence = 0.6

// Decider produces one clamped decision per cycle.
type Decider interface {
	Decide(ctx context.Context, state types.FusedState, activeLocks []types.LockRecord) types.Decision
}

// ActionExecutor submits decisions and state updates on-chain.
type ActionExecutor interface {
	Execute(ctx context.Context, decision types.Decision, state types.FusedState) types.ExecutionResult
	PublishState(ctx context.Context, state types.FusedState) error
}

// Config holds the dependencies for creating a new Agent instance.
type Config struct {
	Observer *observer.Observer
	Policy   Decider
	Executor ActionExecutor
	Reader   chain.Reader

	CycleCron     string // schedule for decision cycles
	StateSyncCron string // schedule for on-chain state publication

	PersistReports bool // requires an initialized state database
}

// Agent is the autonomous control loop with all its dependencies.
type Agent struct {
	observer *observer.Observer
	policy   Decider
	executor ActionExecutor
	reader   chain.Reader

	cycleCron      string
	stateSyncCron  string
	persistReports bool

	scheduler *cron.Cron

	mu               sync.Mutex
	cycleCount       int
	actionsExecuted  int
	actionsSucceeded int
	lastState        types.FusedState
	hasState         bool

	logger zerolog.Logger
}

// New creates an Agent instance with dependency injection.
func New(cfg Config) (*Agent, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("agent configuration validation failed: %w", err)
	}

	agent := &Agent{
		observer:       cfg.Observer,
		policy:         cfg.Policy,
		executor:       cfg.Executor,
		reader:         cfg.Reader,
		cycleCron:      cfg.CycleCron,
		stateSyncCron:  cfg.StateSyncCron,
		persistReports: cfg.PersistReports,
		logger:         logger.GetForComponent("agent_core"),
	}

	agent.logger.Info().
		Str("cycle_cron", agent.cycleCron).
		Str("state_sync_cron", agent.stateSyncCron).
		Bool("persist_reports", agent.persistReports).
		Msg("Agent instance created successfully with dependency injection")

	return agent, nil
}

func validateConfig(cfg Config) error {
	if cfg.Observer == nil {
		return fmt.Errorf("observer cannot be nil")
	}
	if cfg.Policy == nil {
		return fmt.Errorf("policy engine cannot be nil")
	}
	if cfg.Executor == nil {
		return fmt.Errorf("executor cannot be nil")
	}
	if cfg.Reader == nil {
		return fmt.Errorf("chain reader cannot be nil")
	}
	if cfg.CycleCron == "" {
		return fmt.Errorf("cycle cron schedule cannot be empty")
	}
	if cfg.StateSyncCron == "" {
		return fmt.Errorf("state sync cron schedule cannot be empty")
	}
	return nil
}

// Run starts the scheduled loop and blocks until the context is cancelled.
// The first cycle runs immediately; subsequent cycles follow the schedule.
func (a *Agent) Run(ctx context.Context) error {
	a.scheduler = cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))

	if _, err := a.scheduler.AddFunc(a.cycleCron, func() { a.RunCycle(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule decision cycle: %w", err)
	}
	if _, err := a.scheduler.AddFunc(a.stateSyncCron, func() { a.syncState(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule state sync: %w", err)
	}

	a.logger.Info().Msg("Starting agent main loop")
	a.RunCycle(ctx)

	a.scheduler.Start()
	<-ctx.Done()
	a.Stop()
	return ctx.Err()
}

// Stop halts the scheduler and logs the lifetime counters.
func (a *Agent) Stop() {
	if a.scheduler != nil {
		stopCtx := a.scheduler.Stop()
		<-stopCtx.Done()
	}

	a.mu.Lock()
	cycles, executed, succeeded := a.cycleCount, a.actionsExecuted, a.actionsSucceeded
	a.mu.Unlock()

	a.logger.Info().
		Int("cycles", cycles).
		Int("actions_executed", executed).
		Int("actions_succeeded", succeeded).
		Msg("Agent stopped")
}

// RunCycle executes one complete observe-decide-execute cycle.
func (a *Agent) RunCycle(ctx context.Context) types.CycleReport {
	cycleStartTime := time.Now()

	a.mu.Lock()
	a.cycleCount++
	localCycle := a.cycleCount
	a.mu.Unlock()

	cycleNumber := a.nextCycleNumber(localCycle)

	// Cycle id for tracing logs across the entire cycle.
	cycleID := uuid.New().String()
	cycleLogger := a.logger.With().Str("cycle_id", cycleID).Int("cycle", cycleNumber).Logger()

	cycleLogger.Info().Msg("--- Starting agent cycle ---")

	// Step 1: observe.
	fusedState := a.observer.Fuse(ctx)
	a.mu.Lock()
	a.lastState = fusedState
	a.hasState = true
	a.mu.Unlock()
	cycleLogger.Info().
		Str("state_hash", fusedState.StateHash.Hex()).
		Str("health_status", fusedState.HealthStatus.String()).
		Float64("price", fusedState.Market.Price).
		Msg("Step 1: State fused")

	activeLocks, err := observer.ActiveLocks(ctx, a.reader)
	if err != nil {
		cycleLogger.Warn().Err(err).Msg("Failed to enumerate active locks, deciding without them")
		activeLocks = nil
	}

	// Step 2: decide.
	decision := a.policy.Decide(ctx, fusedState, activeLocks)
	cycleLogger.Info().
		Str("action", decision.Action.String()).
		Float64("confidence", decision.Confidence).
		Str("reasoning", decision.Reasoning).
		Msg("Step 2: Decision made")

	report := types.CycleReport{
		CycleNumber:  cycleNumber,
		Timestamp:    cycleStartTime,
		StateHash:    fusedState.StateHash.Hex(),
		HealthStatus: fusedState.HealthStatus,
		Action:       decision.Action,
		Confidence:   decision.Confidence,
		Reasoning:    decision.Reasoning,
	}

	// Step 3: gate and execute.
	if a.shouldExecute(decision, fusedState) {
		result := a.executor.Execute(ctx, decision, fusedState)
		report.Executed = true
		report.Result = result

		a.mu.Lock()
		a.actionsExecuted++
		if result.Success {
			a.actionsSucceeded++
		}
		a.mu.Unlock()
	} else if !decision.IsHold() {
		cycleLogger.Info().
			Float64("confidence", decision.Confidence).
			Msg("Step 3: Decision below execution gate, not executing")
	}

	report.Duration = time.Since(cycleStartTime)
	a.saveReport(report, cycleLogger)

	cycleLogger.Info().
		Dur("duration", report.Duration).
		Bool("executed", report.Executed).
		Msg("--- Agent cycle completed ---")

	return report
}

// shouldExecute applies the orchestrator gate on top of the policy clamp:
// holds never execute, low confidence never executes, and an emergency state
// admits emergency unlocks only.
func (a *Agent) shouldExecute(decision types.Decision, fusedState types.FusedState) bool {
	if decision.IsHold() {
		return false
	}
	if decision.Confidence < MinExecutionConfidence {
		return false
	}
	if fusedState.HealthStatus == types.StatusEmergency && decision.Action != types.ActionEmergencyUnlock {
		return false
	}
	return true
}

// syncState republishes the last fused state to the contract. It never
// observes on its own: observation belongs to the decision cycle, and the
// rolling price history must not receive off-cycle samples.
func (a *Agent) syncState(ctx context.Context) {
	a.mu.Lock()
	fusedState := a.lastState
	hasState := a.hasState
	a.mu.Unlock()

	if !hasState {
		a.logger.Debug().Msg("No fused state yet, skipping state sync")
		return
	}

	if err := a.executor.PublishState(ctx, fusedState); err != nil {
		a.logger.Error().Err(err).Msg("State sync failed")
		return
	}
	a.logger.Info().Str("state_hash", fusedState.StateHash.Hex()).Msg("State synced on-chain")
}

// nextCycleNumber prefers the persistent counter so cycle numbers survive
// restarts; without a database the in-process counter is used.
func (a *Agent) nextCycleNumber(localCycle int) int {
	if !a.persistReports {
		return localCycle
	}
	cycleNumber, err := state.IncrementCycleNumber()
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to increment persistent cycle counter, using local count")
		return localCycle
	}
	return cycleNumber
}

func (a *Agent) saveReport(report types.CycleReport, cycleLogger zerolog.Logger) {
	if !a.persistReports {
		return
	}
	if _, err := state.SaveCycleReport(report); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to persist cycle report")
	}
}
