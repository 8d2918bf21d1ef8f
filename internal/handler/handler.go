package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"linkmind/internal/codec"
	"linkmind/internal/domain"
	"linkmind/internal/report"
	"linkmind/internal/service"
)

// maxBatchBytes caps the size of a judgment request body
const maxBatchBytes = 8 << 20

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SavingsResponse reports the running total
type SavingsResponse struct {
	Total     string             `json:"total"`
	Formatted string             `json:"formatted"`
	Entries   int                `json:"entries"`
	ByOffense []report.Breakdown `json:"by_offense"`
}

// HealthResponse reports liveness, ledger integrity and the vendors
// corrective scripts can be drafted for
type HealthResponse struct {
	Status  string   `json:"status"`
	Ledger  string   `json:"ledger"`
	Vendors []string `json:"vendors"`
}

// JudgmentResponse wraps the outcomes of one batch
type JudgmentResponse struct {
	Mode     string            `json:"mode"`
	Outcomes []service.Outcome `json:"outcomes"`
	Failed   int               `json:"failed"`
}

// JudgmentHandler serves the probation and ledger API
type JudgmentHandler struct {
	live   *service.JudgmentService
	sim    *service.JudgmentService
	logger *slog.Logger
}

// NewJudgmentHandler creates a handler. sim may be nil, in which case
// simulate requests are rejected.
func NewJudgmentHandler(live, sim *service.JudgmentService, logger *slog.Logger) *JudgmentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JudgmentHandler{live: live, sim: sim, logger: logger}
}

// Register mounts the API routes on r
func (h *JudgmentHandler) Register(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/probation", h.ListProbation)
		r.Get("/probation/{linkID}", h.GetProbation)
		r.Get("/ledger", h.ListLedger)
		r.Get("/ledger.csv", h.ExportLedger)
		r.Get("/savings", h.Savings)
		r.Post("/judgments", h.Judge)
	})
}

// Health reports liveness and ledger integrity
func (h *JudgmentHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := HealthResponse{Status: "ok", Ledger: "verified", Vendors: h.live.Vendors()}
	code := http.StatusOK

	if err := h.live.VerifyLedger(r.Context()); err != nil {
		status.Status = "degraded"
		status.Ledger = err.Error()
		code = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, code)
}

// ListProbation returns the watchlist
func (h *JudgmentHandler) ListProbation(w http.ResponseWriter, r *http.Request) {
	list, err := h.live.Watchlist(r.Context())
	if err != nil {
		h.logger.Error("list probation", "error", err)
		h.writeError(w, "Failed to list probation", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, list, http.StatusOK)
}

// GetProbation returns one link's record
func (h *JudgmentHandler) GetProbation(w http.ResponseWriter, r *http.Request) {
	linkID := chi.URLParam(r, "linkID")
	if linkID == "" {
		h.writeError(w, "Invalid link ID", "Link ID is required", http.StatusBadRequest)
		return
	}

	entry, err := h.live.Probation(r.Context(), linkID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("get probation", "link_id", linkID, "error", err)
		h.writeError(w, "Failed to get probation record", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, entry, http.StatusOK)
}

// ListLedger returns all ledger entries
func (h *JudgmentHandler) ListLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.live.Ledger(r.Context())
	if err != nil {
		h.logger.Error("list ledger", "error", err)
		h.writeError(w, "Failed to list ledger", err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}

	h.writeJSON(w, entries, http.StatusOK)
}

// ExportLedger streams the ledger CSV after verifying the hash chain
func (h *JudgmentHandler) ExportLedger(w http.ResponseWriter, r *http.Request) {
	var buf strings.Builder
	if _, err := h.live.Report(r.Context(), &buf); err != nil {
		if errors.Is(err, domain.ErrLedgerTampered) {
			h.writeError(w, "Ledger integrity check failed", err.Error(), http.StatusConflict)
			return
		}
		h.logger.Error("export ledger", "error", err)
		h.writeError(w, "Failed to export ledger", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="financial_report.csv"`)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, buf.String())
}

// Savings returns the running total with a per-offense breakdown
func (h *JudgmentHandler) Savings(w http.ResponseWriter, r *http.Request) {
	summary, err := h.live.Report(r.Context(), io.Discard)
	if err != nil {
		if errors.Is(err, domain.ErrLedgerTampered) {
			h.writeError(w, "Ledger integrity check failed", err.Error(), http.StatusConflict)
			return
		}
		h.logger.Error("savings", "error", err)
		h.writeError(w, "Failed to compute savings", err.Error(), http.StatusInternalServerError)
		return
	}

	byOffense := summary.ByOffense
	if byOffense == nil {
		byOffense = []report.Breakdown{}
	}

	h.writeJSON(w, SavingsResponse{
		Total:     summary.Total.StringFixed(2),
		Formatted: report.FormatUSD(summary.Total),
		Entries:   summary.Entries,
		ByOffense: byOffense,
	}, http.StatusOK)
}

// Judge runs a snapshot batch through the pipeline
func (h *JudgmentHandler) Judge(w http.ResponseWriter, r *http.Request) {
	svc := h.live
	if raw := r.URL.Query().Get("simulate"); raw != "" {
		simulate, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, "Invalid simulate flag", err.Error(), http.StatusBadRequest)
			return
		}
		if simulate {
			if h.sim == nil {
				h.writeError(w, "Simulation unavailable", "server was started without a simulation pipeline", http.StatusBadRequest)
				return
			}
			svc = h.sim
		}
	}

	format := "json"
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		format = "yaml"
	}
	c, err := codec.ForFormat(format)
	if err != nil {
		h.writeError(w, "Unsupported content type", err.Error(), http.StatusUnsupportedMediaType)
		return
	}

	snaps, err := c.Parse(http.MaxBytesReader(w, r.Body, maxBatchBytes))
	if err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if len(snaps) == 0 {
		h.writeError(w, "Invalid request body", "batch contains no snapshots", http.StatusBadRequest)
		return
	}

	outcomes := svc.ProcessBatch(r.Context(), snaps)

	resp := JudgmentResponse{Mode: string(svc.Mode()), Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Failed() {
			resp.Failed++
		}
	}

	h.writeJSON(w, resp, http.StatusOK)
}

func (h *JudgmentHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("encode JSON", "error", err)
	}
}

func (h *JudgmentHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		h.logger.Error("encode error response", "error", err)
	}
}
