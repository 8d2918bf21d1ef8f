package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"linkmind/internal/adapter"
	"linkmind/internal/audit"
	"linkmind/internal/codec"
	"linkmind/internal/config"
	"linkmind/internal/domain"
	"linkmind/internal/metrics"
	"linkmind/internal/probation"
	"linkmind/internal/report"
	"linkmind/internal/repository"
	"linkmind/internal/rules"
)

// Error kinds reported to metrics
const (
	errKindInvalid = "invalid_snapshot"
	errKindStore   = "store"
	errKindScript  = "script"
	errKindAudit   = "audit"
)

// Outcome is the result of judging one snapshot
type Outcome struct {
	RunID    string              `json:"run_id,omitempty"`
	LinkID   string              `json:"link_id"`
	Mode     config.Mode         `json:"mode"`
	Verdict  domain.Verdict      `json:"verdict"`
	Decision probation.Decision  `json:"decision"`
	Script   string              `json:"script,omitempty"`
	Ledger   *domain.LedgerEntry `json:"ledger,omitempty"`
	Message  string              `json:"message"`
	Warning  string              `json:"warning,omitempty"`
	Error    string              `json:"error,omitempty"`

	// Err is the failure that stopped processing, if any
	Err error `json:"-"`
}

// Failed reports whether processing stopped on an error
func (o *Outcome) Failed() bool {
	return o.Err != nil
}

func (o *Outcome) fail(err error) {
	o.Err = err
	o.Error = err.Error()
	o.Message = fmt.Sprintf("error: %v", err)
}

// BatchSummary counts outcomes of one ProcessBatch call
type BatchSummary struct {
	RunID     string                   `json:"run_id"`
	Mode      config.Mode              `json:"mode"`
	Processed int                      `json:"processed"`
	Failed    int                      `json:"failed"`
	Actions   map[probation.Action]int `json:"actions"`
}

// WatchEntry is a probation record with its derived clocks
type WatchEntry struct {
	domain.ProbationRecord
	DaysInJail    int `json:"days_in_jail"`
	DaysRemaining int `json:"days_remaining"`
}

// Option configures a JudgmentService
type Option func(*JudgmentService)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *JudgmentService) {
		s.logger = logger
	}
}

// WithMode binds the service to live or simulation mode
func WithMode(mode config.Mode) Option {
	return func(s *JudgmentService) {
		s.mode = mode
	}
}

// WithClock overrides time.Now, used to pin "today"
func WithClock(now func() time.Time) Option {
	return func(s *JudgmentService) {
		s.now = now
	}
}

// WithMetrics sets the Prometheus instrumentation
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *JudgmentService) {
		s.metrics = m
	}
}

// WithEvents publishes transitions on bus
func WithEvents(bus *EventBus) Option {
	return func(s *JudgmentService) {
		s.events = bus
	}
}

// WithAuditLog sets the simulation audit trail
func WithAuditLog(log *audit.Log) Option {
	return func(s *JudgmentService) {
		s.audit = log
	}
}

// WithGenerators replaces the built-in vendor registry
func WithGenerators(r *adapter.Registry) Option {
	return func(s *JudgmentService) {
		s.generators = r
	}
}

// JudgmentService runs snapshots through rules, probation and the store
type JudgmentService struct {
	store      repository.RecordStore
	engine     *rules.Engine
	machine    *probation.Machine
	generators *adapter.Registry
	audit      *audit.Log
	events     *EventBus
	metrics    *metrics.Metrics
	logger     *slog.Logger
	mode       config.Mode
	now        func() time.Time
	locks      *keyedMutex
}

// NewJudgmentService creates a judgment service. Defaults: live mode,
// built-in vendors, slog.Default, no metrics, no events.
func NewJudgmentService(store repository.RecordStore, engine *rules.Engine, machine *probation.Machine, opts ...Option) *JudgmentService {
	s := &JudgmentService{
		store:   store,
		engine:  engine,
		machine: machine,
		mode:    config.ModeLive,
		now:     time.Now,
		locks:   newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.generators == nil {
		s.generators = adapter.DefaultRegistry(s.logger)
	}
	return s
}

// Mode returns the mode the service was built with
func (s *JudgmentService) Mode() config.Mode {
	return s.mode
}

// Process judges one snapshot. Failures are reported in the Outcome.
func (s *JudgmentService) Process(ctx context.Context, snap domain.NodeSnapshot) Outcome {
	return s.process(ctx, uuid.NewString(), snap)
}

// ProcessBatch judges snapshots in order under one run ID. A failing
// snapshot never prevents the rest from being judged; once ctx is
// cancelled the remaining snapshots are reported as failed.
func (s *JudgmentService) ProcessBatch(ctx context.Context, snaps []domain.NodeSnapshot) []Outcome {
	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID, "mode", s.mode)
	logger.Info("judgment run started", "snapshots", len(snaps))

	summary := BatchSummary{
		RunID:   runID,
		Mode:    s.mode,
		Actions: make(map[probation.Action]int),
	}

	outcomes := make([]Outcome, 0, len(snaps))
	for _, snap := range snaps {
		var out Outcome
		if err := ctx.Err(); err != nil {
			out = Outcome{RunID: runID, LinkID: snap.ID, Mode: s.mode}
			out.fail(err)
		} else {
			out = s.process(ctx, runID, snap)
		}

		summary.Processed++
		if out.Failed() {
			summary.Failed++
		} else {
			summary.Actions[out.Decision.Action]++
		}
		outcomes = append(outcomes, out)
	}

	logger.Info("judgment run finished", "processed", summary.Processed, "failed", summary.Failed)
	s.events.Publish(Event{Type: EventBatchCompleted, RunID: runID, Payload: summary})

	return outcomes
}

func (s *JudgmentService) process(ctx context.Context, runID string, snap domain.NodeSnapshot) Outcome {
	started := time.Now()
	defer func() { s.metrics.ObserveProcessLatency(time.Since(started)) }()

	out := Outcome{RunID: runID, LinkID: snap.ID, Mode: s.mode}
	logger := s.logger.With("run_id", runID, "link_id", snap.ID)

	if err := snap.Validate(); err != nil {
		s.metrics.IncrementError(errKindInvalid)
		logger.Warn("rejected snapshot", "error", err)
		out.fail(err)
		return out
	}

	unlock := s.locks.Lock(snap.ID)
	defer unlock()

	out.Verdict = s.engine.Evaluate(snap)
	s.metrics.IncrementVerdict(string(out.Verdict.Status), string(out.Verdict.Offense))

	today := domain.Day(s.now())

	// Simulation decides against the stored record too, so the projection
	// matches what a live run on the same day would do.
	rec, err := s.store.GetProbation(ctx, snap.ID)
	if err != nil {
		s.metrics.IncrementError(errKindStore)
		logger.Error("read probation record", "error", err)
		out.fail(err)
		return out
	}

	out.Decision = s.machine.Decide(snap.ID, out.Verdict, rec, today)

	if s.mode.IsSimulation() {
		s.simulate(logger, snap, &out)
	} else {
		s.execute(ctx, logger, snap, today, &out)
	}

	if !out.Failed() {
		s.metrics.IncrementTransition(string(out.Decision.Action), string(s.mode))
		if !s.mode.IsSimulation() && out.Decision.Action != probation.ActionCleanUntracked {
			s.events.Publish(Event{Type: EventTransition, RunID: runID, Payload: out.Decision})
		}
	}

	return out
}

// simulate drafts the script and appends an audit row. No store writes.
func (s *JudgmentService) simulate(logger *slog.Logger, snap domain.NodeSnapshot, out *Outcome) {
	draft := "N/A"
	if out.Verdict.IsOffending() {
		script, err := s.script(snap, out.Verdict.Offense)
		if err != nil {
			draft = fmt.Sprintf("error generating script: %v", err)
			logger.Warn("draft script failed", "vendor", snap.Vendor, "error", err)
		} else {
			draft = script
		}
	}
	out.Script = draft

	if s.audit != nil {
		row := codec.AuditRow{
			Timestamp:       s.now(),
			LinkID:          snap.ID,
			Verdict:         out.Verdict.Status,
			PotentialSaving: out.Verdict.SavingValue,
			ScriptDraft:     draft,
		}
		if err := s.audit.Append(row); err != nil {
			s.metrics.IncrementError(errKindAudit)
			logger.Error("append audit row", "error", err)
			out.fail(err)
			return
		}
	}

	out.Message = fmt.Sprintf("dry-run logged for %s: %s (would be %s)",
		snap.ID, out.Verdict.Status, out.Decision.Action)
}

// execute applies the decision and drafts the corrective script on liquidation
func (s *JudgmentService) execute(ctx context.Context, logger *slog.Logger, snap domain.NodeSnapshot, today time.Time, out *Outcome) {
	entry, err := probation.Apply(ctx, s.store, out.Decision, today)
	out.Ledger = entry
	if err != nil {
		s.metrics.IncrementError(errKindStore)
		logger.Error("apply decision", "action", out.Decision.Action, "error", err)
		out.fail(err)
		return
	}
	out.Message = out.Decision.Message

	if out.Decision.Action.Terminal() {
		logger.Info("case closed",
			"action", out.Decision.Action,
			"offense", out.Decision.Offense,
			"clean_streak", out.Decision.CleanStreak,
			"days_in_jail", out.Decision.DaysInJail)
	}

	switch out.Decision.Action {
	case probation.ActionLiquidated:
		s.metrics.AddRecovered(entry.RecoveredValue)
		logger.Warn("liquidated",
			"offense", out.Decision.Offense,
			"saved", entry.RecoveredValue,
			"days_in_jail", out.Decision.DaysInJail,
			"ledger_id", entry.ID)
		s.events.Publish(Event{Type: EventLiquidation, RunID: out.RunID, Payload: entry})

		// The ledger is already written; a script failure is advisory only
		script, err := s.script(snap, out.Decision.Offense)
		if err != nil {
			s.metrics.IncrementError(errKindScript)
			out.Warning = fmt.Sprintf("script generation failed: %v", err)
			logger.Warn("corrective script failed", "vendor", snap.Vendor, "error", err)
			return
		}
		out.Script = script
	}
}

func (s *JudgmentService) script(snap domain.NodeSnapshot, offense domain.OffenseKind) (string, error) {
	op, params, err := adapter.PlanFor(offense, snap, rules.RecoverableSpectrumMHz)
	if err != nil {
		return "", err
	}
	return s.generators.Generate(snap.Vendor, op, params)
}

// Report exports the ledger as CSV to w and returns the summary.
// Only available in live mode.
func (s *JudgmentService) Report(ctx context.Context, w io.Writer) (*report.Summary, error) {
	if s.mode.IsSimulation() {
		return nil, domain.ErrSimulationMode
	}
	return report.Generate(ctx, s.store, w, s.engine.Rates(), s.now())
}

// Watchlist returns every active probation record with its clocks
func (s *JudgmentService) Watchlist(ctx context.Context) ([]WatchEntry, error) {
	records, err := s.store.ListProbation(ctx)
	if err != nil {
		return nil, err
	}

	today := domain.Day(s.now())
	entries := make([]WatchEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, s.watchEntry(rec, today))
	}
	return entries, nil
}

// Probation returns one link's watch entry, or domain.ErrRecordNotFound
func (s *JudgmentService) Probation(ctx context.Context, linkID string) (*WatchEntry, error) {
	rec, err := s.store.GetProbation(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, linkID)
	}

	entry := s.watchEntry(*rec, domain.Day(s.now()))
	return &entry, nil
}

func (s *JudgmentService) watchEntry(rec domain.ProbationRecord, today time.Time) WatchEntry {
	days := rec.DaysInJail(today)
	remaining := s.machine.ProbationDays() - days
	if remaining < 0 {
		remaining = 0
	}
	return WatchEntry{ProbationRecord: rec, DaysInJail: days, DaysRemaining: remaining}
}

// Ledger returns all ledger entries
func (s *JudgmentService) Ledger(ctx context.Context) ([]domain.LedgerEntry, error) {
	return s.store.ListLedger(ctx)
}

// ExportLedger writes the ledger CSV to w without building a report
func (s *JudgmentService) ExportLedger(ctx context.Context, w io.Writer) error {
	return s.store.ExportLedger(ctx, w)
}

// TotalSavings returns the running total of recovered value
func (s *JudgmentService) TotalSavings(ctx context.Context) (float64, error) {
	return s.store.TotalSavings(ctx)
}

// Vendors lists the vendors corrective scripts can be drafted for
func (s *JudgmentService) Vendors() []string {
	return s.generators.Vendors()
}

// VerifyLedger checks the ledger hash chain
func (s *JudgmentService) VerifyLedger(ctx context.Context) error {
	err := s.store.VerifyLedger(ctx)
	if errors.Is(err, domain.ErrLedgerTampered) {
		s.logger.Error("ledger verification failed", "error", err)
	}
	return err
}
