package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"receipt-api/internal/apperrors"
	"receipt-api/internal/metrics"
	"receipt-api/internal/models"
	"receipt-api/pkg/logging"

	"github.com/rs/zerolog"
)

// maxAppleAttempts bounds the number of verifyReceipt calls for one receipt:
// the initial call, at most one environment fallback and at most one 21005 retry.
const maxAppleAttempts = 3

const maxAppleResponseBytes = 8 << 20

// ValidatorConfig configures the Apple verifyReceipt client.
type ValidatorConfig struct {
	SharedSecret  string
	SandboxURL    string
	ProductionURL string
	// Timeout is the hard per-call timeout (default 30s).
	Timeout time.Duration
	// RetryDelay is the fixed wait before retrying a 21005 (default 3s).
	RetryDelay time.Duration
}

// SecretMismatchAlerter is notified when Apple rejects the shared secret (21004).
type SecretMismatchAlerter interface {
	SharedSecretRejected(environment models.Environment)
}

// Validator calls Apple's verifyReceipt endpoints with environment fallback
// and a single bounded retry.
type Validator struct {
	cfg        ValidatorConfig
	httpClient *http.Client
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	metrics    *metrics.Metrics
	alerter    SecretMismatchAlerter
	logger     zerolog.Logger
}

// ValidatorOption customizes a Validator.
type ValidatorOption func(*Validator)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ValidatorOption {
	return func(v *Validator) { v.httpClient = c }
}

// WithClock replaces time.Now, used when computing isActive.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

// WithSleeper replaces the retry wait.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) ValidatorOption {
	return func(v *Validator) { v.sleep = sleep }
}

// WithValidatorMetrics records Apple call metrics.
func WithValidatorMetrics(m *metrics.Metrics) ValidatorOption {
	return func(v *Validator) { v.metrics = m }
}

// WithSecretMismatchAlerter registers an alerter for 21004 responses.
func WithSecretMismatchAlerter(a SecretMismatchAlerter) ValidatorOption {
	return func(v *Validator) { v.alerter = a }
}

// NewValidator creates a new Validator. The shared secret is mandatory.
func NewValidator(cfg ValidatorConfig, opts ...ValidatorOption) (*Validator, error) {
	if cfg.SharedSecret == "" {
		return nil, errors.New("apple shared secret is required")
	}
	if cfg.SandboxURL == "" || cfg.ProductionURL == "" {
		return nil, errors.New("apple sandbox and production URLs are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}

	v := &Validator{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		now:    time.Now,
		sleep:  sleepContext,
		logger: logging.Component("apple_validator"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate sends the receipt to Apple, starting with the Sandbox endpoint.
//
//   - 21007: final, environment Sandbox.
//   - 21008: one call against Production; no further environment switch.
//   - 21005: wait RetryDelay and call the same environment once more; that result is final.
//
// The returned response may still carry a non-zero status; ParseSubscriptionInfo
// turns that into an AppleAPIError.
func (v *Validator) Validate(ctx context.Context, receiptData string) (*AppleResponse, error) {
	if receiptData == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeEmptyReceipt, "receipt data is empty")
	}

	env := models.EnvironmentSandbox
	var resp *AppleResponse
	var retried bool

	for attempt := 1; attempt <= maxAppleAttempts; attempt++ {
		var err error
		resp, err = v.call(ctx, receiptData, env)
		if err != nil {
			return nil, err
		}

		step := v.nextStep(resp, attempt == 1, retried)
		if step == stepDone {
			break
		}
		if step == stepRetry {
			retried = true
			v.logger.Warn().Str("environment", string(env)).Dur("delay", v.cfg.RetryDelay).
				Msg("apple receipt server unavailable, retrying")
			if err := v.sleep(ctx, v.cfg.RetryDelay); err != nil {
				return nil, &apperrors.AppleAPIError{Message: "apple retry wait canceled", HTTPStatus: http.StatusBadGateway, Err: err}
			}
			continue
		}
		env = models.EnvironmentProduction
	}

	if resp.Status == AppleStatusSharedSecretMismatch && v.alerter != nil {
		v.alerter.SharedSecretRejected(resp.Environment)
	}

	return resp, nil
}

type validateStep int

const (
	stepDone validateStep = iota
	stepRetry
	stepProduction
)

// nextStep decides whether another call is needed. Only the initial response may
// switch environment; a 21005 is retried once, whichever call produced it.
func (v *Validator) nextStep(resp *AppleResponse, initial, retried bool) validateStep {
	switch resp.Family() {
	case StatusSandboxOnly:
		if !initial {
			return stepDone
		}
		v.logger.Info().Msg("sandbox receipt detected")
		resp.Environment = models.EnvironmentSandbox
		return stepDone
	case StatusProductionOnly:
		if !initial {
			return stepDone
		}
		v.logger.Info().Msg("production receipt detected, retrying against production")
		return stepProduction
	case StatusTransient:
		if retried {
			return stepDone
		}
		return stepRetry
	default:
		return stepDone
	}
}

func (v *Validator) endpoint(env models.Environment) string {
	if env == models.EnvironmentProduction {
		return v.cfg.ProductionURL
	}
	return v.cfg.SandboxURL
}

type verifyReceiptRequest struct {
	ReceiptData            string `json:"receipt-data"`
	Password               string `json:"password"`
	ExcludeOldTransactions bool   `json:"exclude-old-transactions"`
}

// call performs one verifyReceipt request.
func (v *Validator) call(ctx context.Context, receiptData string, env models.Environment) (*AppleResponse, error) {
	start := time.Now()
	outcome := "transport_error"
	defer func() {
		v.metrics.ObserveAppleRequest(string(env), outcome, time.Since(start))
	}()

	body, err := json.Marshal(verifyReceiptRequest{
		ReceiptData:            receiptData,
		Password:               v.cfg.SharedSecret,
		ExcludeOldTransactions: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, v.endpoint(env), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "receipt-api/1.0")

	v.logger.Debug().Str("environment", string(env)).Msg("calling verifyReceipt")

	httpResp, err := v.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			outcome = "timeout"
			return nil, &apperrors.AppleAPIError{
				Message:    "apple verifyReceipt request timed out",
				HTTPStatus: http.StatusRequestTimeout,
				Timeout:    true,
				Err:        err,
			}
		}
		return nil, &apperrors.AppleAPIError{
			Message:    "apple verifyReceipt request failed",
			HTTPStatus: http.StatusBadGateway,
			Err:        err,
		}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		outcome = "http_error"
		return nil, &apperrors.AppleAPIError{
			Message:    fmt.Sprintf("apple verifyReceipt returned HTTP %d", httpResp.StatusCode),
			HTTPStatus: httpResp.StatusCode,
		}
	}

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxAppleResponseBytes))
	if err != nil {
		if isTimeout(err) {
			outcome = "timeout"
			return nil, &apperrors.AppleAPIError{
				Message:    "apple verifyReceipt request timed out",
				HTTPStatus: http.StatusRequestTimeout,
				Timeout:    true,
				Err:        err,
			}
		}
		return nil, &apperrors.AppleAPIError{Message: "failed to read apple response", HTTPStatus: http.StatusBadGateway, Err: err}
	}

	var resp AppleResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		outcome = "invalid_body"
		return nil, &apperrors.AppleAPIError{Message: "failed to parse apple response", HTTPStatus: http.StatusBadGateway, Err: err}
	}
	resp.Environment = env
	outcome = resp.Family().String()

	v.logger.Info().Str("environment", string(env)).Int("status", resp.Status).Msg("verifyReceipt responded")
	return &resp, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
