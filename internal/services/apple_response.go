package services

import (
	"fmt"
	"strconv"
	"time"

	"receipt-api/internal/models"
)

// Apple verifyReceipt status codes the validator reacts to.
const (
	AppleStatusOK                   = 0
	AppleStatusSharedSecretMismatch = 21004
	AppleStatusServerUnavailable    = 21005
	AppleStatusSandboxReceipt       = 21007
	AppleStatusProductionReceipt    = 21008
)

// StatusFamily groups Apple status codes by how the validator must react.
type StatusFamily int

const (
	// StatusSuccess is status 0.
	StatusSuccess StatusFamily = iota
	// StatusSandboxOnly is 21007: the receipt belongs to the Sandbox environment.
	StatusSandboxOnly
	// StatusProductionOnly is 21008: the receipt belongs to the Production environment.
	StatusProductionOnly
	// StatusTransient is 21005: Apple's receipt server is momentarily unavailable.
	StatusTransient
	// StatusTerminal is every other non-zero status.
	StatusTerminal
)

func (f StatusFamily) String() string {
	switch f {
	case StatusSuccess:
		return "success"
	case StatusSandboxOnly:
		return "sandbox_only"
	case StatusProductionOnly:
		return "production_only"
	case StatusTransient:
		return "transient"
	default:
		return "terminal"
	}
}

// ClassifyStatus maps an Apple status code onto its family.
func ClassifyStatus(status int) StatusFamily {
	switch status {
	case AppleStatusOK:
		return StatusSuccess
	case AppleStatusSandboxReceipt:
		return StatusSandboxOnly
	case AppleStatusProductionReceipt:
		return StatusProductionOnly
	case AppleStatusServerUnavailable:
		return StatusTransient
	default:
		return StatusTerminal
	}
}

// AppleResponse is the subset of the verifyReceipt response this service consumes.
type AppleResponse struct {
	Status int `json:"status"`
	// Environment is overwritten with the environment that was actually called.
	Environment        models.Environment   `json:"environment"`
	LatestReceiptInfo  []LatestReceiptInfo  `json:"latest_receipt_info,omitempty"`
	PendingRenewalInfo []PendingRenewalInfo `json:"pending_renewal_info,omitempty"`
}

// Family returns the status family of the response.
func (r *AppleResponse) Family() StatusFamily {
	return ClassifyStatus(r.Status)
}

// LatestReceiptInfo is one transaction of the receipt's transaction list.
// Apple encodes millisecond timestamps as decimal strings.
type LatestReceiptInfo struct {
	ProductID              string    `json:"product_id"`
	TransactionID          string    `json:"transaction_id"`
	OriginalTransactionID  string    `json:"original_transaction_id"`
	ExpiresDateMS          Timestamp `json:"expires_date_ms,omitempty"`
	PurchaseDateMS         Timestamp `json:"purchase_date_ms,omitempty"`
	OriginalPurchaseDateMS Timestamp `json:"original_purchase_date_ms,omitempty"`
	CancellationDateMS     Timestamp `json:"cancellation_date_ms,omitempty"`
	IsTrialPeriod          string    `json:"is_trial_period,omitempty"`
	IsInIntroOfferPeriod   string    `json:"is_in_intro_offer_period,omitempty"`
}

// PendingRenewalInfo carries auto-renew state. ParseSubscriptionInfo logs it.
type PendingRenewalInfo struct {
	AutoRenewProductID    string `json:"auto_renew_product_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	AutoRenewStatus       string `json:"auto_renew_status"`
}

// Timestamp is an Apple millisecond epoch timestamp encoded as a string.
type Timestamp string

// IsZero reports whether the timestamp is absent.
func (ts Timestamp) IsZero() bool {
	return ts == ""
}

// Time parses the timestamp into a UTC time.
func (ts Timestamp) Time() (time.Time, error) {
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	ms, err := strconv.ParseInt(string(ts), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", string(ts), err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// TimestampFromTime formats t the way Apple does.
func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp(strconv.FormatInt(t.UnixMilli(), 10))
}
