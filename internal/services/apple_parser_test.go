package services

import (
	"errors"
	"testing"
	"time"

	"receipt-api/internal/apperrors"
	"receipt-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var parserNow = time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC)

func newParserValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(ValidatorConfig{
		SharedSecret:  "test-secret",
		SandboxURL:    "http://sandbox.invalid",
		ProductionURL: "http://production.invalid",
	}, WithClock(func() time.Time { return parserNow }))
	require.NoError(t, err)
	return v
}

func receiptResponse(info LatestReceiptInfo) *AppleResponse {
	if info.OriginalTransactionID == "" {
		info.OriginalTransactionID = "1000000000000001"
	}
	return &AppleResponse{
		Status:            AppleStatusOK,
		Environment:       models.EnvironmentProduction,
		LatestReceiptInfo: []LatestReceiptInfo{info},
	}
}

func TestParseSubscriptionInfo_MonthlyPremium(t *testing.T) {
	v := newParserValidator(t)
	purchase := parserNow.Add(-10 * 24 * time.Hour)
	expiry := parserNow.Add(20 * 24 * time.Hour)

	info, err := v.ParseSubscriptionInfo(receiptResponse(LatestReceiptInfo{
		ProductID:              "premium.monthly",
		TransactionID:          "2000000000000002",
		OriginalTransactionID:  "2000000000000001",
		ExpiresDateMS:          TimestampFromTime(expiry),
		PurchaseDateMS:         TimestampFromTime(purchase.Add(24 * time.Hour)),
		OriginalPurchaseDateMS: TimestampFromTime(purchase),
	}))
	require.NoError(t, err)

	assert.True(t, info.IsValid)
	assert.True(t, info.IsActive)
	assert.Equal(t, "premium.monthly", info.ProductID)
	assert.Equal(t, "2000000000000002", info.TransactionID)
	assert.Equal(t, "2000000000000001", info.OriginalTransactionID)
	assert.Equal(t, models.EnvironmentProduction, info.Environment)
	assert.True(t, info.ExpiryDate.Equal(expiry))
	assert.True(t, info.PurchaseDate.Equal(purchase))
	assert.Equal(t, time.UTC, info.ExpiryDate.Location())
	assert.Nil(t, info.CancellationDate)
}

func TestParseSubscriptionInfo_PurchaseDateFallback(t *testing.T) {
	v := newParserValidator(t)
	purchase := parserNow.Add(-time.Hour)

	info, err := v.ParseSubscriptionInfo(receiptResponse(LatestReceiptInfo{
		ProductID:      "premium.monthly",
		ExpiresDateMS:  TimestampFromTime(parserNow.Add(time.Hour)),
		PurchaseDateMS: TimestampFromTime(purchase),
	}))
	require.NoError(t, err)
	assert.True(t, info.PurchaseDate.Equal(purchase))
}

func TestParseSubscriptionInfo_IsActive(t *testing.T) {
	v := newParserValidator(t)
	purchase := TimestampFromTime(parserNow.Add(-30 * 24 * time.Hour))

	tests := []struct {
		name         string
		expiry       time.Time
		cancellation Timestamp
		want         bool
	}{
		{"future expiry", parserNow.Add(time.Minute), "", true},
		{"past expiry", parserNow.Add(-time.Minute), "", false},
		{"expiry equal to now", parserNow, "", false},
		{"cancelled with future expiry", parserNow.Add(time.Hour), TimestampFromTime(parserNow.Add(-time.Hour)), false},
		{"unparseable cancellation", parserNow.Add(time.Hour), "garbage", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := v.ParseSubscriptionInfo(receiptResponse(LatestReceiptInfo{
				ProductID:              "premium.monthly",
				ExpiresDateMS:          TimestampFromTime(tt.expiry),
				OriginalPurchaseDateMS: purchase,
				CancellationDateMS:     tt.cancellation,
			}))
			require.NoError(t, err)
			assert.Equal(t, tt.want, info.IsActive)
		})
	}
}

func TestParseSubscriptionInfo_CancellationDate(t *testing.T) {
	v := newParserValidator(t)
	cancelled := parserNow.Add(-time.Hour)

	info, err := v.ParseSubscriptionInfo(receiptResponse(LatestReceiptInfo{
		ExpiresDateMS:          TimestampFromTime(parserNow.Add(time.Hour)),
		OriginalPurchaseDateMS: TimestampFromTime(parserNow.Add(-48 * time.Hour)),
		CancellationDateMS:     TimestampFromTime(cancelled),
	}))
	require.NoError(t, err)
	require.NotNil(t, info.CancellationDate)
	assert.True(t, info.CancellationDate.Equal(cancelled))
	assert.False(t, info.IsActive)
}

func TestParseSubscriptionInfo_UsesFirstEntry(t *testing.T) {
	v := newParserValidator(t)
	resp := &AppleResponse{
		Status: AppleStatusOK,
		LatestReceiptInfo: []LatestReceiptInfo{
			{
				ProductID:              "premium.yearly",
				OriginalTransactionID:  "1000000000000001",
				ExpiresDateMS:          TimestampFromTime(parserNow.Add(time.Hour)),
				OriginalPurchaseDateMS: TimestampFromTime(parserNow.Add(-time.Hour)),
			},
			{
				ProductID:              "premium.monthly",
				OriginalTransactionID:  "1000000000000001",
				ExpiresDateMS:          TimestampFromTime(parserNow.Add(-time.Hour)),
				OriginalPurchaseDateMS: TimestampFromTime(parserNow.Add(-48 * time.Hour)),
			},
		},
	}

	info, err := v.ParseSubscriptionInfo(resp)
	require.NoError(t, err)
	assert.Equal(t, "premium.yearly", info.ProductID)
}

func TestParseSubscriptionInfo_Errors(t *testing.T) {
	v := newParserValidator(t)
	purchase := TimestampFromTime(parserNow.Add(-time.Hour))

	tests := []struct {
		name string
		resp *AppleResponse
		code string
	}{
		{
			name: "no receipt info",
			resp: &AppleResponse{Status: AppleStatusOK},
			code: apperrors.CodeNoSubscriptionInfo,
		},
		{
			name: "missing original transaction id",
			resp: &AppleResponse{
				Status: AppleStatusOK,
				LatestReceiptInfo: []LatestReceiptInfo{{
					ProductID:              "premium.monthly",
					ExpiresDateMS:          TimestampFromTime(parserNow.Add(time.Hour)),
					OriginalPurchaseDateMS: purchase,
				}},
			},
			code: apperrors.CodeMalformedReceiptInfo,
		},
		{
			name: "missing expiry",
			resp: receiptResponse(LatestReceiptInfo{OriginalPurchaseDateMS: purchase}),
			code: apperrors.CodeMalformedReceiptInfo,
		},
		{
			name: "unparseable expiry",
			resp: receiptResponse(LatestReceiptInfo{ExpiresDateMS: "soon", OriginalPurchaseDateMS: purchase}),
			code: apperrors.CodeMalformedReceiptInfo,
		},
		{
			name: "expiry before purchase",
			resp: receiptResponse(LatestReceiptInfo{
				ExpiresDateMS:          TimestampFromTime(parserNow.Add(-2 * time.Hour)),
				OriginalPurchaseDateMS: purchase,
			}),
			code: apperrors.CodeInvalidSubscriptionDate,
		},
		{
			name: "expiry equal to purchase",
			resp: receiptResponse(LatestReceiptInfo{
				ExpiresDateMS:          purchase,
				OriginalPurchaseDateMS: purchase,
			}),
			code: apperrors.CodeInvalidSubscriptionDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ParseSubscriptionInfo(tt.resp)
			var verr *apperrors.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.code, verr.Code)
		})
	}
}

func TestAutoRenewStatus(t *testing.T) {
	resp := &AppleResponse{
		PendingRenewalInfo: []PendingRenewalInfo{
			{OriginalTransactionID: "other", AutoRenewStatus: "1"},
			{OriginalTransactionID: "1000000000000001", AutoRenewStatus: "0"},
		},
	}

	assert.Equal(t, "0", autoRenewStatus(resp, "1000000000000001"))
	assert.Equal(t, "unknown", autoRenewStatus(resp, "missing"))
	assert.Equal(t, "unknown", autoRenewStatus(&AppleResponse{}, "1000000000000001"))
}

func TestParseSubscriptionInfo_AppleStatus(t *testing.T) {
	v := newParserValidator(t)

	tests := []struct {
		status  int
		message string
	}{
		{21003, "the receipt could not be authenticated"},
		{21010, "the user account cannot be found"},
		{21099, "unknown Apple status: 21099"},
	}

	for _, tt := range tests {
		_, err := v.ParseSubscriptionInfo(&AppleResponse{Status: tt.status})
		var aerr *apperrors.AppleAPIError
		require.True(t, errors.As(err, &aerr))
		assert.Equal(t, tt.status, aerr.AppleStatus)
		assert.Equal(t, tt.message, aerr.Message)

		classified := apperrors.Classify(err)
		assert.Equal(t, 502, classified.Status)
		assert.Equal(t, tt.status, classified.AppleStatus)
	}
}

func TestTimestamp(t *testing.T) {
	ts := TimestampFromTime(parserNow)
	got, err := ts.Time()
	require.NoError(t, err)
	assert.True(t, got.Equal(parserNow))

	_, err = Timestamp("").Time()
	assert.Error(t, err)
	assert.True(t, Timestamp("").IsZero())
}
