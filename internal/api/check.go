package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// DeviceFingerprintHeader carries the client device fingerprint on /check.
const DeviceFingerprintHeader = "X-Device-Fingerprint"

var errInvalidBody = fmt.Errorf("%w: invalid JSON request body", domain.ErrValidation)

// TransactionRequest is the body of POST /check and POST /transactions.
type TransactionRequest struct {
	ID            string                   `json:"id,omitempty"`
	MerchantID    string                   `json:"merchantId"`
	PayerID       string                   `json:"payerId"`
	Amount        decimal.Decimal          `json:"amount"`
	Status        domain.TransactionStatus `json:"status,omitempty"`
	PaymentMethod string                   `json:"paymentMethod,omitempty"`
	Metadata      domain.Metadata          `json:"metadata,omitempty"`
}

func (req *TransactionRequest) transaction() *domain.Transaction {
	status := req.Status
	if status == "" {
		status = domain.TransactionPending
	}
	return &domain.Transaction{
		ID:            req.ID,
		MerchantID:    req.MerchantID,
		PayerID:       req.PayerID,
		Amount:        req.Amount,
		Status:        status,
		PaymentMethod: req.PaymentMethod,
		Metadata:      req.Metadata,
	}
}

// BlockedResponse is returned with 403 when a payment is blocked.
type BlockedResponse struct {
	Error          string           `json:"error"`
	RiskScore      int              `json:"riskScore"`
	RiskLevel      domain.RiskLevel `json:"riskLevel"`
	RulesTriggered []string         `json:"rulesTriggered"`
	AlertID        string           `json:"alertId,omitempty"`
}

// Check handles POST /check. A blocked payment answers 403.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	tc := domain.TransactionContext{
		Transaction:       req.transaction(),
		UserAgent:         r.UserAgent(),
		IPAddress:         clientIP(r),
		DeviceFingerprint: r.Header.Get(DeviceFingerprintHeader),
	}

	result, err := h.deps.Engine.CheckTransaction(r.Context(), tc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if result.ShouldBlock {
		resp := BlockedResponse{
			Error:          "transaction blocked due to fraud risk",
			RiskScore:      result.RiskScore,
			RiskLevel:      result.RiskLevel,
			RulesTriggered: result.RulesTriggered,
		}
		if result.Alert != nil {
			resp.AlertID = result.Alert.ID
		}
		writeJSON(w, http.StatusForbidden, resp)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// CreateTransaction handles POST /transactions.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	tx := req.transaction()
	if err := tx.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if tx.ID == "" {
		tx.ID = newID()
	}

	if err := h.deps.Transactions.SaveTransaction(r.Context(), tx); err != nil {
		if !isClientError(err) {
			err = domain.NewDependencyError("save transaction", err)
		}
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

// GetTransaction handles GET /transactions/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.deps.Transactions.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if !isClientError(err) {
			err = domain.NewDependencyError("get transaction", err)
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// StatusRequest is the body of PATCH /transactions/{id}/status.
type StatusRequest struct {
	Status domain.TransactionStatus `json:"status"`
}

// UpdateTransactionStatus handles PATCH /transactions/{id}/status.
func (h *Handler) UpdateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.deps.Transactions.UpdateTransactionStatus(r.Context(), id, req.Status); err != nil {
		if !isClientError(err) {
			err = domain.NewDependencyError("update transaction status", err)
		}
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":     id,
		"status": string(req.Status),
	})
}
