// Package api serves the check endpoint and the fraud admin surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/stats"
)

// Checker scores a payment.
type Checker interface {
	CheckTransaction(ctx context.Context, tc domain.TransactionContext) (*domain.CheckResult, error)
	RulesCount() int
}

// AlertService reviews and lists fraud alerts.
type AlertService interface {
	GetAlert(ctx context.Context, alertID string) (*domain.FraudAlert, error)
	ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]*domain.FraudAlert, error)
	ReviewAlert(ctx context.Context, alertID string, status string, notes *string, reviewer *string) (*domain.FraudAlert, error)
}

// ConfigService reads and patches merchant risk configs.
type ConfigService interface {
	GetConfig(ctx context.Context, merchantID string) (*domain.MerchantRiskConfig, error)
	UpdateConfig(ctx context.Context, merchantID string, patch *domain.MerchantRiskConfigPatch) (*domain.MerchantRiskConfig, error)
}

// StatsService reports alert statistics.
type StatsService interface {
	GetStats(ctx context.Context, merchantID string, windowDays int) (*stats.Report, error)
}

// Pinger is a dependency with a health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers call. Cache and Metrics may be nil.
type Deps struct {
	Engine       Checker
	Transactions domain.TransactionStore
	Alerts       AlertService
	Configs      ConfigService
	Stats        StatsService
	Repo         Pinger
	Cache        domain.Cache
	Metrics      MetricsSink
}

// Handler holds dependencies for API handlers.
type Handler struct {
	deps    Deps
	version string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, version string) *Handler {
	return &Handler{deps: deps, version: version}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.deps.Repo != nil {
		if err := h.deps.Repo.Ping(r.Context()); err != nil {
			slog.Warn("repository health check failed", "error", err)
			status = "degraded"
		}
	}

	if h.deps.Cache != nil {
		if err := h.deps.Cache.Ping(r.Context()); err != nil {
			slog.Warn("cache health check failed", "error", err)
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"rules":   h.deps.Engine.RulesCount(),
	})
}

// Ready reports 503 until the repository answers.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.deps.Repo != nil {
		if err := h.deps.Repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
				"error": "repository unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps domain errors onto status codes. Dependency and
// unexpected failures are logged and never echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, domain.ErrDependency):
		slog.Error("dependency failure",
			"path", r.URL.Path,
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "service temporarily unavailable"})
	default:
		slog.Error("request failed",
			"path", r.URL.Path,
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errInvalidBody
	}
	return nil
}
