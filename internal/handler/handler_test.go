package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkmind/internal/audit"
	"linkmind/internal/config"
	"linkmind/internal/metrics"
	"linkmind/internal/probation"
	"linkmind/internal/repository/sqlite"
	"linkmind/internal/rules"
	"linkmind/internal/service"
)

type testEnv struct {
	router http.Handler
	today  *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	today := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return today }

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	engine := rules.NewEngine(rules.Rates{LicensePerUnit: 10, BandwidthPerMHz: 20})
	machine := probation.NewMachine(15, 3)

	live := service.NewJudgmentService(store, engine, machine,
		service.WithLogger(logger), service.WithClock(clock), service.WithMetrics(m))
	sim := service.NewJudgmentService(store, engine, machine,
		service.WithLogger(logger), service.WithClock(clock), service.WithMetrics(m),
		service.WithMode(config.ModeSimulation),
		service.WithAuditLog(audit.NewLog(t.TempDir()+"/audit.csv")))

	h := NewJudgmentHandler(live, sim, logger)
	router := NewRouter(h, nil, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logger)

	return &testEnv{router: router, today: &today}
}

func (e *testEnv) do(t *testing.T, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

const hoardingBatch = `{"snapshots":[{"id":"17659-HW","vendor":"Huawei","bandwidth_mhz":56,"throughput_mbps":10,"license_reserved":400,"license_actual":50,"admin_status":"UP"}]}`

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "verified", body.Ledger)
	assert.Equal(t, []string{"Huawei"}, body.Vendors)
}

func TestJudge_LiveCreatesProbation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/judgments", "application/json", hoardingBatch)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp JudgmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "live", resp.Mode)
	require.Len(t, resp.Outcomes, 1)
	assert.Equal(t, probation.ActionProbationStarted, resp.Outcomes[0].Decision.Action)
	assert.Equal(t, 3500.0, resp.Outcomes[0].Verdict.SavingValue)
	assert.Equal(t, 0, resp.Failed)

	rec = env.do(t, http.MethodGet, "/api/probation/17659-HW", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entry service.WatchEntry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entry))
	assert.Equal(t, "17659-HW", entry.LinkID)
	assert.Equal(t, 15, entry.DaysRemaining)

	rec = env.do(t, http.MethodGet, "/api/probation", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []service.WatchEntry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list, 1)
}

func TestJudge_SimulateLeavesStoreUntouched(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/judgments?simulate=true", "application/json", hoardingBatch)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp JudgmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "simulation", resp.Mode)
	assert.Equal(t, "// HUAWEI: license-group modify capacity 50", resp.Outcomes[0].Script)

	rec = env.do(t, http.MethodGet, "/api/probation/17659-HW", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJudge_YAMLBody(t *testing.T) {
	env := newTestEnv(t)

	body := "snapshots:\n  - id: Y-1\n    vendor: Huawei\n    bandwidth_mhz: 56\n    throughput_mbps: 20\n    license_reserved: 10\n    license_actual: 10\n"
	rec := env.do(t, http.MethodPost, "/api/judgments", "application/yaml", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp JudgmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Outcomes, 1)
	assert.Equal(t, "SPECTRUM_WASTE", string(resp.Outcomes[0].Verdict.Offense))
}

func TestJudge_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"malformed json", "/api/judgments", `{"snapshots":`},
		{"unknown field", "/api/judgments", `{"snapshots":[],"extra":1}`},
		{"empty batch", "/api/judgments", `{"snapshots":[]}`},
		{"bad simulate flag", "/api/judgments?simulate=maybe", hoardingBatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, "application/json", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var errResp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
			assert.NotEmpty(t, errResp.Error)
		})
	}
}

func TestJudge_InvalidSnapshotReportedPerLink(t *testing.T) {
	env := newTestEnv(t)

	body := `{"snapshots":[{"id":"","vendor":"Huawei"},{"id":"OK-1","vendor":"Huawei","bandwidth_mhz":28,"throughput_mbps":50,"license_reserved":10,"license_actual":10}]}`
	rec := env.do(t, http.MethodPost, "/api/judgments", "application/json", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp JudgmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Failed)
	assert.Contains(t, resp.Outcomes[0].Error, "invalid snapshot")
	assert.Equal(t, probation.ActionCleanUntracked, resp.Outcomes[1].Decision.Action)
}

func TestLedgerAndSavings_Empty(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/ledger", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/ledger.csv", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ID,Date,Link ID,Action,Value($)\n", rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/savings", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var savings SavingsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&savings))
	assert.Equal(t, "0.00", savings.Total)
	assert.Equal(t, "$0.00", savings.Formatted)
	assert.Equal(t, 0, savings.Entries)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/judgments", "application/json", hoardingBatch)

	rec := env.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `linkmind_verdicts_total{offense="LICENSE_HOARDING",status="Offending"} 1`)
}
