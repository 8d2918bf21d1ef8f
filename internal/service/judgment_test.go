package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"linkmind/internal/adapter"
	"linkmind/internal/audit"
	"linkmind/internal/config"
	"linkmind/internal/domain"
	"linkmind/internal/metrics"
	"linkmind/internal/probation"
	"linkmind/internal/repository/sqlite"
	"linkmind/internal/rules"
)

var (
	badNode  = domain.NodeSnapshot{ID: "17659-HW", Vendor: "Huawei", BandwidthMHz: 56, ThroughputMbps: 10, LicenseReserved: 400, LicenseActual: 50, AdminStatus: "UP"}
	goodNode = domain.NodeSnapshot{ID: "17659-HW", Vendor: "Huawei", BandwidthMHz: 56, ThroughputMbps: 400, LicenseReserved: 400, LicenseActual: 390, AdminStatus: "UP"}
	wasteful = domain.NodeSnapshot{ID: "SPEC-1", Vendor: "huawei", BandwidthMHz: 56, ThroughputMbps: 40, LicenseReserved: 100, LicenseActual: 90}
)

type JudgmentSuite struct {
	suite.Suite

	ctx     context.Context
	store   *sqlite.Repository
	engine  *rules.Engine
	machine *probation.Machine
	metrics *metrics.Metrics
	bus     *EventBus
	events  chan Event
	today   time.Time
}

func TestJudgmentSuite(t *testing.T) {
	suite.Run(t, new(JudgmentSuite))
}

func (s *JudgmentSuite) SetupTest() {
	store, err := sqlite.New(":memory:")
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.store = store
	s.engine = rules.NewEngine(rules.Rates{LicensePerUnit: 10, BandwidthPerMHz: 20})
	s.machine = probation.NewMachine(15, 3)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.bus = NewEventBus()
	s.events = make(chan Event, 64)
	s.bus.Subscribe(s.events)
	s.today = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
}

func (s *JudgmentSuite) TearDownTest() {
	s.store.Close()
}

func (s *JudgmentSuite) newService(opts ...Option) *JudgmentService {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return s.today }),
		WithMetrics(s.metrics),
		WithEvents(s.bus),
	}
	return NewJudgmentService(s.store, s.engine, s.machine, append(base, opts...)...)
}

func (s *JudgmentSuite) advance(days int) {
	s.today = s.today.AddDate(0, 0, days)
}

func (s *JudgmentSuite) drain() []Event {
	var out []Event
	for {
		select {
		case e := <-s.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

// ============================================================================
// Live mode
// ============================================================================

func (s *JudgmentSuite) TestLive_ScenarioHoardingVerdict() {
	svc := s.newService()

	out := svc.Process(s.ctx, badNode)

	s.Require().False(out.Failed(), out.Error)
	s.Equal(domain.VerdictOffending, out.Verdict.Status)
	s.Equal(domain.OffenseLicenseHoarding, out.Verdict.Offense)
	s.Equal(350.0, out.Verdict.WastedQty)
	s.Equal(3500.0, out.Verdict.SavingValue)
	s.Equal(probation.ActionProbationStarted, out.Decision.Action)
	s.NotEmpty(out.RunID)
}

func (s *JudgmentSuite) TestLive_UntrackedCompliantTouchesNothing() {
	svc := s.newService()

	out := svc.Process(s.ctx, goodNode)

	s.Require().False(out.Failed())
	s.Equal(probation.ActionCleanUntracked, out.Decision.Action)
	s.Equal("clean, not tracked", out.Message)

	records, err := s.store.ListProbation(s.ctx)
	s.Require().NoError(err)
	s.Empty(records)

	ledger, err := s.store.ListLedger(s.ctx)
	s.Require().NoError(err)
	s.Empty(ledger)

	s.Empty(s.drain(), "untracked links publish nothing")
}

func (s *JudgmentSuite) TestLive_Redemption() {
	svc := s.newService()

	s.Equal(probation.ActionProbationStarted, svc.Process(s.ctx, badNode).Decision.Action)

	s.advance(1)
	out := svc.Process(s.ctx, goodNode)
	s.Equal("improving: clean streak 1/3", out.Message)

	s.advance(1)
	out = svc.Process(s.ctx, goodNode)
	s.Equal("improving: clean streak 2/3", out.Message)

	s.advance(1)
	out = svc.Process(s.ctx, goodNode)
	s.Equal(probation.ActionPardoned, out.Decision.Action)

	rec, err := s.store.GetProbation(s.ctx, badNode.ID)
	s.Require().NoError(err)
	s.Nil(rec)

	events := s.drain()
	s.Len(events, 4)
	for _, e := range events {
		s.Equal(EventTransition, e.Type)
	}

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Transitions.WithLabelValues("pardoned", "live")))
}

func (s *JudgmentSuite) TestLive_LiquidationWritesLedgerThenScript() {
	svc := s.newService()

	svc.Process(s.ctx, badNode)
	for i := 1; i < 15; i++ {
		s.advance(1)
		out := svc.Process(s.ctx, badNode)
		s.Require().Equal(probation.ActionSurveillance, out.Decision.Action, "day %d", i)
	}

	s.advance(1)
	out := svc.Process(s.ctx, badNode)

	s.Require().False(out.Failed(), out.Error)
	s.Equal(probation.ActionLiquidated, out.Decision.Action)
	s.Equal(15, out.Decision.DaysInJail)
	s.Require().NotNil(out.Ledger)
	s.Equal(3500.0, out.Ledger.RecoveredValue)
	s.Equal("// HUAWEI: license-group modify capacity 50", out.Script)
	s.Empty(out.Warning)

	total, err := svc.TotalSavings(s.ctx)
	s.Require().NoError(err)
	s.Equal(3500.0, total)

	rec, err := s.store.GetProbation(s.ctx, badNode.ID)
	s.Require().NoError(err)
	s.Nil(rec)

	s.Equal(3500.0, testutil.ToFloat64(s.metrics.RecoveredValue))

	var sawLiquidation bool
	for _, e := range s.drain() {
		if e.Type == EventLiquidation {
			sawLiquidation = true
		}
	}
	s.True(sawLiquidation)
}

func (s *JudgmentSuite) TestLive_SpectrumWasteScript() {
	svc := s.newService()

	svc.Process(s.ctx, wasteful)
	s.advance(20)
	out := svc.Process(s.ctx, wasteful)

	s.Require().Equal(probation.ActionLiquidated, out.Decision.Action)
	s.Equal(domain.OffenseSpectrumWaste, out.Ledger.Action)
	s.Equal(560.0, out.Ledger.RecoveredValue)
	s.Equal("// HUAWEI: interface microwave-link -> channel-bandwidth 28mhz", out.Script)
}

func (s *JudgmentSuite) TestLive_UnsupportedVendorKeepsAccounting() {
	svc := s.newService()
	node := badNode
	node.Vendor = "Nokia"

	svc.Process(s.ctx, node)
	s.advance(15)
	out := svc.Process(s.ctx, node)

	s.False(out.Failed())
	s.Equal(probation.ActionLiquidated, out.Decision.Action)
	s.Contains(out.Warning, "unsupported vendor")
	s.Empty(out.Script)

	ledger, err := s.store.ListLedger(s.ctx)
	s.Require().NoError(err)
	s.Len(ledger, 1)

	rec, err := s.store.GetProbation(s.ctx, node.ID)
	s.Require().NoError(err)
	s.Nil(rec)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.ProcessErrors.WithLabelValues("script")))
}

// brokenGenerator serves a vendor but fails every render
type brokenGenerator struct{ err error }

func (brokenGenerator) Vendor() string { return "Huawei" }

func (g brokenGenerator) Generate(adapter.Operation, adapter.Params) (string, error) {
	return "", g.err
}

func (s *JudgmentSuite) TestLive_GeneratorErrorKeepsAccounting() {
	generators := adapter.NewRegistry(nil)
	s.Require().NoError(generators.Register(brokenGenerator{err: errors.New("template missing")}))
	svc := s.newService(WithGenerators(generators))
	s.Equal([]string{"Huawei"}, svc.Vendors())

	svc.Process(s.ctx, badNode)
	s.advance(15)
	out := svc.Process(s.ctx, badNode)

	s.False(out.Failed())
	s.Equal(probation.ActionLiquidated, out.Decision.Action)
	s.Equal("script generation failed: template missing", out.Warning)
	s.Empty(out.Script)
	s.Require().NotNil(out.Ledger)
	s.Equal(3500.0, out.Ledger.RecoveredValue)

	total, err := s.store.TotalSavings(s.ctx)
	s.Require().NoError(err)
	s.Equal(3500.0, total)

	rec, err := s.store.GetProbation(s.ctx, badNode.ID)
	s.Require().NoError(err)
	s.Nil(rec)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.ProcessErrors.WithLabelValues("script")))
}

func (s *JudgmentSuite) TestSimulation_GeneratorErrorBecomesDraft() {
	generators := adapter.NewRegistry(nil)
	s.Require().NoError(generators.Register(brokenGenerator{err: errors.New("template missing")}))
	svc := s.newService(WithMode(config.ModeSimulation), WithGenerators(generators))

	out := svc.Process(s.ctx, badNode)

	s.False(out.Failed())
	s.Equal("error generating script: template missing", out.Script)
}

func (s *JudgmentSuite) TestLive_InvalidSnapshotIsReported() {
	svc := s.newService()

	out := svc.Process(s.ctx, domain.NodeSnapshot{ID: "BAD", LicenseActual: -1})

	s.True(out.Failed())
	s.ErrorIs(out.Err, domain.ErrInvalidSnapshot)
	s.True(strings.HasPrefix(out.Message, "error: "))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ProcessErrors.WithLabelValues("invalid_snapshot")))
}

func (s *JudgmentSuite) TestLive_StoreFailureIsReported() {
	svc := s.newService()
	s.Require().NoError(s.store.Close())

	out := svc.Process(s.ctx, badNode)

	s.True(out.Failed())
	s.ErrorIs(out.Err, domain.ErrStoreUnavailable)
}

func (s *JudgmentSuite) TestBatch_OneFailureDoesNotBlockOthers() {
	svc := s.newService()

	outcomes := svc.ProcessBatch(s.ctx, []domain.NodeSnapshot{
		badNode,
		{ID: ""},
		wasteful,
	})

	s.Require().Len(outcomes, 3)
	s.False(outcomes[0].Failed())
	s.True(outcomes[1].Failed())
	s.False(outcomes[2].Failed())
	s.Equal(outcomes[0].RunID, outcomes[2].RunID)

	records, err := s.store.ListProbation(s.ctx)
	s.Require().NoError(err)
	s.Len(records, 2)

	var summary *BatchSummary
	for _, e := range s.drain() {
		if e.Type == EventBatchCompleted {
			bs := e.Payload.(BatchSummary)
			summary = &bs
		}
	}
	s.Require().NotNil(summary)
	s.Equal(3, summary.Processed)
	s.Equal(1, summary.Failed)
	s.Equal(2, summary.Actions[probation.ActionProbationStarted])
}

func (s *JudgmentSuite) TestBatch_CancelledContext() {
	svc := s.newService()
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	outcomes := svc.ProcessBatch(ctx, []domain.NodeSnapshot{badNode})

	s.Require().Len(outcomes, 1)
	s.ErrorIs(outcomes[0].Err, context.Canceled)
}

func (s *JudgmentSuite) TestLive_ConcurrentSameLinkSerialised() {
	svc := s.newService()
	svc.Process(s.ctx, badNode)
	s.advance(1)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Process(s.ctx, goodNode)
		}()
	}
	wg.Wait()

	rec, err := s.store.GetProbation(s.ctx, badNode.ID)
	s.Require().NoError(err)
	s.Require().NotNil(rec)
	s.Equal(2, rec.CleanStreak)
	s.Equal(0, svc.locks.size())
}

// ============================================================================
// Simulation mode
// ============================================================================

func (s *JudgmentSuite) TestSimulation_WritesAuditOnly() {
	path := filepath.Join(s.T().TempDir(), "audit.csv")
	log := audit.NewLog(path)
	s.Require().NoError(log.Truncate())

	svc := s.newService(WithMode(config.ModeSimulation), WithAuditLog(log))

	node := badNode
	node.Vendor = "Nokia"
	outs := svc.ProcessBatch(s.ctx, []domain.NodeSnapshot{badNode, goodNode, node})
	for _, o := range outs {
		s.False(o.Failed(), o.Error)
	}

	s.Equal(probation.ActionProbationStarted, outs[0].Decision.Action)
	s.Contains(outs[0].Message, "dry-run logged for 17659-HW: Offending")

	records, err := s.store.ListProbation(s.ctx)
	s.Require().NoError(err)
	s.Empty(records, "simulation must not write probation records")

	f, err := os.Open(path)
	s.Require().NoError(err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	s.Require().NoError(err)

	s.Require().Len(rows, 4)
	s.Equal([]string{"Timestamp", "Link ID", "Verdict", "Potential Saving", "Script Draft"}, rows[0])
	s.Equal("Offending", rows[1][2])
	s.Equal("3500.00", rows[1][3])
	s.Equal("// HUAWEI: license-group modify capacity 50", rows[1][4])
	s.Equal("Compliant", rows[2][2])
	s.Equal("N/A", rows[2][4])
	s.True(strings.HasPrefix(rows[3][4], "error generating script: "), rows[3][4])

	s.Equal(2.0, testutil.ToFloat64(s.metrics.Transitions.WithLabelValues("probation_started", "simulation")))
}

func (s *JudgmentSuite) TestSimulation_ProjectsFromStoredRecord() {
	live := s.newService()
	live.Process(s.ctx, badNode)

	sim := s.newService(WithMode(config.ModeSimulation))
	s.advance(15)
	out := sim.Process(s.ctx, badNode)

	s.Equal(probation.ActionLiquidated, out.Decision.Action)
	s.Nil(out.Ledger)

	ledger, err := s.store.ListLedger(s.ctx)
	s.Require().NoError(err)
	s.Empty(ledger)

	rec, err := s.store.GetProbation(s.ctx, badNode.ID)
	s.Require().NoError(err)
	s.NotNil(rec, "record must survive a simulated liquidation")
}

// ============================================================================
// Reporting
// ============================================================================

func (s *JudgmentSuite) TestReport_RefusedInSimulation() {
	svc := s.newService(WithMode(config.ModeSimulation))

	_, err := svc.Report(s.ctx, io.Discard)
	s.ErrorIs(err, domain.ErrSimulationMode)
}

func (s *JudgmentSuite) TestReport_IsIdempotent() {
	svc := s.newService()
	svc.Process(s.ctx, badNode)
	s.advance(15)
	svc.Process(s.ctx, badNode)

	var first, second bytes.Buffer
	sum1, err := svc.Report(s.ctx, &first)
	s.Require().NoError(err)
	sum2, err := svc.Report(s.ctx, &second)
	s.Require().NoError(err)

	s.Equal(first.String(), second.String())
	s.True(sum1.Total.Equal(sum2.Total))
	s.Equal("3500", sum1.Total.String())
	s.NoError(svc.VerifyLedger(s.ctx))
}

func (s *JudgmentSuite) TestWatchlist() {
	svc := s.newService()
	svc.Process(s.ctx, badNode)
	s.advance(4)

	list, err := svc.Watchlist(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(4, list[0].DaysInJail)
	s.Equal(11, list[0].DaysRemaining)

	entry, err := svc.Probation(s.ctx, badNode.ID)
	s.Require().NoError(err)
	s.Equal(badNode.ID, entry.LinkID)

	_, err = svc.Probation(s.ctx, "GHOST")
	s.ErrorIs(err, domain.ErrRecordNotFound)
}

// ============================================================================
// Plain tests
// ============================================================================

func TestKeyedMutex_ReleasesKeys(t *testing.T) {
	k := newKeyedMutex()

	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.size())

	unlockA()
	unlockB()
	assert.Equal(t, 0, k.size())
}

func TestEventBus_PublishAndUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	ch := make(chan Event, 1)
	bus.Subscribe(ch)

	bus.Publish(Event{Type: EventTransition})
	require.Len(t, ch, 1)
	<-ch

	bus.Unsubscribe(ch)
	bus.Publish(Event{Type: EventTransition})
	assert.Len(t, ch, 0)

	var nilBus *EventBus
	assert.NotPanics(t, func() { nilBus.Publish(Event{}) })
}
