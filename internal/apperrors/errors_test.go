package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		appleStatus int
	}{
		{
			name:       "validation",
			err:        NewValidationError(CodeEmptyReceipt, "receipt data is empty"),
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeEmptyReceipt,
		},
		{
			name:       "wrapped validation",
			err:        fmt.Errorf("verify: %w", NewValidationError(CodeNoSubscriptionInfo, "none")),
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeNoSubscriptionInfo,
		},
		{
			name:       "apple timeout",
			err:        &AppleAPIError{Message: "timed out", HTTPStatus: http.StatusRequestTimeout, Timeout: true},
			wantStatus: http.StatusRequestTimeout,
			wantCode:   CodeAppleTimeout,
		},
		{
			name:        "apple status",
			err:         &AppleAPIError{Message: "shared secret mismatch", AppleStatus: 21004},
			wantStatus:  http.StatusBadGateway,
			wantCode:    CodeAppleAPIError,
			appleStatus: 21004,
		},
		{
			name:       "apple http",
			err:        &AppleAPIError{Message: "bad gateway", HTTPStatus: http.StatusServiceUnavailable},
			wantStatus: http.StatusBadGateway,
			wantCode:   CodeAppleAPIError,
		},
		{
			name:       "database",
			err:        NewDatabaseError("insert subscription", errors.New("duplicate key")),
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeDatabaseError,
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.appleStatus, got.AppleStatus)
		})
	}
}

func TestNewDatabaseError_Nil(t *testing.T) {
	assert.NoError(t, NewDatabaseError("noop", nil))
}

func TestAppleAPIError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &AppleAPIError{Message: "call failed", Err: cause}
	assert.ErrorIs(t, err, cause)
}
