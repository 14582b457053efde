package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the settlement state recorded by the payment pipeline.
type TransactionStatus string

const (
	TransactionPending TransactionStatus = "pending"
	TransactionSuccess TransactionStatus = "success"
	TransactionFailed  TransactionStatus = "failed"
)

// Valid reports whether s is a known status.
func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionPending, TransactionSuccess, TransactionFailed:
		return true
	}
	return false
}

// Payment methods accepted by the gateway. Other values are stored as-is.
const (
	PaymentMethodCard         = "card"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodWallet       = "wallet"
)

// Transaction is a payment attempt as recorded by the payment pipeline.
// The scoring engine only reads it.
type Transaction struct {
	ID            string            `json:"id"`
	MerchantID    string            `json:"merchantId"`
	PayerID       string            `json:"payerId"`
	Amount        decimal.Decimal   `json:"amount"`
	Status        TransactionStatus `json:"status"`
	PaymentMethod string            `json:"paymentMethod"`
	Metadata      Metadata          `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// Validate rejects transactions that cannot be scored.
func (t *Transaction) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: transaction is required", ErrValidation)
	}
	if t.MerchantID == "" {
		return fmt.Errorf("%w: merchantId is required", ErrValidation)
	}
	if t.PayerID == "" {
		return fmt.Errorf("%w: payerId is required", ErrValidation)
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	if t.Status != "" && !t.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, t.Status)
	}
	return nil
}

// TransactionContext bundles a transaction with request attributes captured
// at the edge. UserAgent, IPAddress and DeviceFingerprint are accepted but
// no rule reads them yet.
type TransactionContext struct {
	Transaction       *Transaction `json:"transaction"`
	UserAgent         string       `json:"userAgent,omitempty"`
	IPAddress         string       `json:"ipAddress,omitempty"`
	DeviceFingerprint string       `json:"deviceFingerprint,omitempty"`
}
