package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"receipt-api/internal/models"
	"receipt-api/pkg/logging"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Receipt-Signature"

// SubscriptionNotifier is told about subscription state changes.
type SubscriptionNotifier interface {
	Notify(event models.HistoryEventType, sub *models.Subscription)
}

// WebhookNotifier posts subscription changes to an app backend.
type WebhookNotifier struct {
	callbackURL string
	secret      string
	httpClient  *http.Client
	retryDelays []time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
	logger      zerolog.Logger
	wg          sync.WaitGroup
}

// NewWebhookNotifier creates a notifier. Requests are signed when secret is set.
func NewWebhookNotifier(callbackURL, secret string) *WebhookNotifier {
	return &WebhookNotifier{
		callbackURL: callbackURL,
		secret:      secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryDelays: []time.Duration{1 * time.Second, 5 * time.Second},
		sleep:       sleepContext,
		now:         time.Now,
		logger:      logging.Component("webhook_notifier"),
	}
}

// WebhookPayload is the body posted to the app backend.
type WebhookPayload struct {
	ID                    string `json:"id"`
	Event                 string `json:"event"` // subscription.created, subscription.renewed, subscription.expired
	SubscriptionID        string `json:"subscription_id"`
	UserID                string `json:"user_id"`
	TransactionID         string `json:"transaction_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	ProductID             string `json:"product_id"`
	IsActive              bool   `json:"is_active"`
	ExpiryDate            string `json:"expiry_date"`
	Environment           string `json:"environment"`
	Platform              string `json:"platform"`
	Timestamp             string `json:"timestamp"`
}

// Notify sends the change in the background.
func (wn *WebhookNotifier) Notify(event models.HistoryEventType, sub *models.Subscription) {
	if wn.callbackURL == "" {
		return
	}

	payload := WebhookPayload{
		ID:                    uuid.NewString(),
		Event:                 "subscription." + string(event),
		SubscriptionID:        sub.ID,
		UserID:                sub.UserID,
		TransactionID:         sub.TransactionID,
		OriginalTransactionID: sub.OriginalTransactionID,
		ProductID:             sub.ProductID,
		IsActive:              sub.IsActive,
		ExpiryDate:            sub.ExpiryDate.UTC().Format(time.RFC3339),
		Environment:           string(sub.Environment),
		Platform:              sub.Platform,
		Timestamp:             wn.now().UTC().Format(time.RFC3339),
	}

	wn.wg.Add(1)
	go func() {
		defer wn.wg.Done()
		wn.sendWithRetry(context.Background(), payload)
	}()
}

// Wait blocks until in-flight notifications finish.
func (wn *WebhookNotifier) Wait() {
	wn.wg.Wait()
}

// sendWithRetry tries once, then once more after each retry delay.
func (wn *WebhookNotifier) sendWithRetry(ctx context.Context, payload WebhookPayload) {
	attempts := len(wn.retryDelays) + 1

	for attempt := 0; attempt < attempts; attempt++ {
		err := wn.sendWebhook(ctx, payload)
		if err == nil {
			wn.logger.Info().Str("event", payload.Event).Str("subscription_id", payload.SubscriptionID).
				Int("attempt", attempt+1).Msg("webhook notification sent")
			return
		}

		wn.logger.Warn().Err(err).Str("event", payload.Event).Str("subscription_id", payload.SubscriptionID).
			Int("attempt", attempt+1).Msg("webhook notification failed")

		if attempt < len(wn.retryDelays) {
			if err := wn.sleep(ctx, wn.retryDelays[attempt]); err != nil {
				return
			}
		}
	}

	wn.logger.Error().Str("event", payload.Event).Str("subscription_id", payload.SubscriptionID).
		Int("attempts", attempts).Msg("webhook notification gave up")
}

func (wn *WebhookNotifier) sendWebhook(ctx context.Context, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wn.callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "receipt-api-webhook/1.0")
	if wn.secret != "" {
		req.Header.Set(SignatureHeader, SignPayload(body, wn.secret))
	}

	resp, err := wn.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// SignPayload returns the hex HMAC-SHA256 of payload.
func SignPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
