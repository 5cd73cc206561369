package services

import (
	"fmt"
	"time"

	"receipt-api/internal/apperrors"
	"receipt-api/internal/models"
)

var appleStatusMessages = map[int]string{
	21000: "the receipt data is invalid",
	21002: "the receipt data is malformed",
	21003: "the receipt could not be authenticated",
	21004: "the shared secret does not match",
	21005: "the receipt server is temporarily unavailable",
	21006: "the receipt is valid but the subscription has expired",
	21007: "this receipt is from the Sandbox environment",
	21008: "this receipt is from the Production environment",
	21009: "internal data access error",
	21010: "the user account cannot be found",
}

// AppleStatusMessage returns the human-readable message for an Apple status code.
func AppleStatusMessage(status int) string {
	if msg, ok := appleStatusMessages[status]; ok {
		return msg
	}
	return fmt.Sprintf("unknown Apple status: %d", status)
}

// ParsedSubscriptionInfo is the normalized subscription state derived from a
// successful Apple response.
type ParsedSubscriptionInfo struct {
	IsValid               bool
	IsActive              bool
	ExpiryDate            time.Time
	PurchaseDate          time.Time
	ProductID             string
	TransactionID         string
	OriginalTransactionID string
	Environment           models.Environment
	CancellationDate      *time.Time
}

// ParseSubscriptionInfo extracts subscription state from the first
// latest_receipt_info entry, which Apple returns as the most recent one.
func (v *Validator) ParseSubscriptionInfo(resp *AppleResponse) (*ParsedSubscriptionInfo, error) {
	if resp.Status != AppleStatusOK {
		return nil, &apperrors.AppleAPIError{
			Message:     AppleStatusMessage(resp.Status),
			AppleStatus: resp.Status,
		}
	}

	if len(resp.LatestReceiptInfo) == 0 {
		return nil, apperrors.NewValidationError(apperrors.CodeNoSubscriptionInfo, "no subscription info found in receipt")
	}
	latest := resp.LatestReceiptInfo[0]
	if latest.OriginalTransactionID == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeMalformedReceiptInfo, "receipt has no original transaction id")
	}

	expiry, err := latest.ExpiresDateMS.Time()
	if err != nil {
		return nil, apperrors.NewValidationError(apperrors.CodeMalformedReceiptInfo, "receipt has no valid expiry date")
	}

	purchaseTS := latest.OriginalPurchaseDateMS
	if purchaseTS.IsZero() {
		purchaseTS = latest.PurchaseDateMS
	}
	purchase, err := purchaseTS.Time()
	if err != nil {
		return nil, apperrors.NewValidationError(apperrors.CodeMalformedReceiptInfo, "receipt has no valid purchase date")
	}

	if !expiry.After(purchase) {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidSubscriptionDate, "expiry date is not after purchase date")
	}

	info := &ParsedSubscriptionInfo{
		IsValid:               true,
		ExpiryDate:            expiry,
		PurchaseDate:          purchase,
		ProductID:             latest.ProductID,
		TransactionID:         latest.TransactionID,
		OriginalTransactionID: latest.OriginalTransactionID,
		Environment:           resp.Environment,
	}

	if !latest.CancellationDateMS.IsZero() {
		// A cancellation marker always revokes access, even if its value cannot be parsed.
		if cancelled, err := latest.CancellationDateMS.Time(); err == nil {
			info.CancellationDate = &cancelled
		}
	}

	info.IsActive = expiry.After(v.now().UTC()) && latest.CancellationDateMS.IsZero()

	if info.CancellationDate != nil {
		v.logger.Info().Str("original_transaction_id", info.OriginalTransactionID).
			Time("cancellation_date", *info.CancellationDate).Msg("cancelled subscription detected")
	}
	v.logger.Debug().Bool("is_active", info.IsActive).Time("expiry_date", info.ExpiryDate).
		Str("product_id", info.ProductID).Str("environment", string(info.Environment)).
		Str("auto_renew_status", autoRenewStatus(resp, info.OriginalTransactionID)).Msg("parsed subscription info")

	return info, nil
}

// autoRenewStatus returns the pending renewal flag ("1" or "0") for the lineage,
// or "unknown" when Apple sent none.
func autoRenewStatus(resp *AppleResponse, originalTransactionID string) string {
	for _, pending := range resp.PendingRenewalInfo {
		if pending.OriginalTransactionID == originalTransactionID && pending.AutoRenewStatus != "" {
			return pending.AutoRenewStatus
		}
	}
	return "unknown"
}
