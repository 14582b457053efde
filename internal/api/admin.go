package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// ReviewerHeader identifies the analyst reviewing an alert.
const ReviewerHeader = "X-Reviewer-ID"

const defaultReviewer = "system"

// ListAlerts handles GET /alerts?merchantId=&status=&limit=.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.AlertFilter{MerchantID: q.Get("merchantId")}

	if s := q.Get("status"); s != "" {
		status, err := domain.ParseAlertStatus(s)
		if err != nil {
			writeError(w, r, err)
			return
		}
		filter.Status = status
	}

	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			writeError(w, r, fmt.Errorf("%w: limit must be a non-negative integer", domain.ErrValidation))
			return
		}
		filter.Limit = limit
	}

	alerts, err := h.deps.Alerts.ListAlerts(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetAlert handles GET /alerts/{id}.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.deps.Alerts.GetAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// ReviewRequest is the body of PATCH /alerts/{id}/review.
type ReviewRequest struct {
	Status      string  `json:"status"`
	ReviewNotes *string `json:"reviewNotes,omitempty"`
}

// ReviewAlert handles PATCH /alerts/{id}/review.
func (h *Handler) ReviewAlert(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	reviewer := r.Header.Get(ReviewerHeader)
	if reviewer == "" {
		reviewer = defaultReviewer
	}

	alert, err := h.deps.Alerts.ReviewAlert(r.Context(), chi.URLParam(r, "id"), req.Status, req.ReviewNotes, &reviewer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// GetConfig handles GET /config/{merchantId}.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.deps.Configs.GetConfig(r.Context(), chi.URLParam(r, "merchantId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateConfig handles PUT /config/{merchantId}.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch domain.MerchantRiskConfigPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}

	cfg, err := h.deps.Configs.UpdateConfig(r.Context(), chi.URLParam(r, "merchantId"), &patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// GetStats handles GET /stats?merchantId=&days=.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	days := 0
	if s := q.Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, r, fmt.Errorf("%w: days must be a non-negative integer", domain.ErrValidation))
			return
		}
		days = n
	}

	report, err := h.deps.Stats.GetStats(r.Context(), q.Get("merchantId"), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
