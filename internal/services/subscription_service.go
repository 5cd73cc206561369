package services

import (
	"context"
	"strings"
	"time"

	"receipt-api/internal/apperrors"
	"receipt-api/internal/database"
	"receipt-api/internal/metrics"
	"receipt-api/internal/models"
	"receipt-api/pkg/logging"

	"github.com/rs/zerolog"
)

// ReceiptValidator validates a receipt with Apple and parses the result.
type ReceiptValidator interface {
	Validate(ctx context.Context, receiptData string) (*AppleResponse, error)
	ParseSubscriptionInfo(resp *AppleResponse) (*ParsedSubscriptionInfo, error)
}

// SubscriptionRepository persists subscription state.
type SubscriptionRepository interface {
	UpsertSubscription(ctx context.Context, sub *models.Subscription) (*database.UpsertResult, error)
	ExpireSubscription(ctx context.Context, originalTransactionID string) (*models.Subscription, bool, error)
	GetActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	CheckPremiumStatus(ctx context.Context, userID string) (bool, error)
	ListHistory(ctx context.Context, userID string) ([]models.SubscriptionHistory, error)
}

// VerifyReceiptInput is a verification request.
type VerifyReceiptInput struct {
	ReceiptData string
	UserID      string
}

// VerifyReceiptResult is the outcome of a successful verification.
type VerifyReceiptResult struct {
	SubscriptionID string             `json:"subscription_id"`
	IsActive       bool               `json:"is_active"`
	ExpiryDate     time.Time          `json:"expiry_date"`
	ProductID      string             `json:"product_id"`
	PurchaseDate   time.Time          `json:"purchase_date"`
	Environment    models.Environment `json:"environment"`
}

// SubscriptionStatus is the stored state returned by lookups.
type SubscriptionStatus struct {
	UserID       string               `json:"user_id"`
	IsActive     bool                 `json:"is_active"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
}

// SubscriptionService drives receipt verification and subscription reads.
type SubscriptionService struct {
	validator ReceiptValidator
	repo      SubscriptionRepository
	cache     PremiumCache
	notifier  SubscriptionNotifier
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// ServiceOption customizes a SubscriptionService.
type ServiceOption func(*SubscriptionService)

// WithPremiumCache fronts premium checks with a cache.
func WithPremiumCache(c PremiumCache) ServiceOption {
	return func(s *SubscriptionService) { s.cache = c }
}

// WithNotifier publishes subscription changes.
func WithNotifier(n SubscriptionNotifier) ServiceOption {
	return func(s *SubscriptionService) { s.notifier = n }
}

// WithServiceMetrics records verification outcomes.
func WithServiceMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *SubscriptionService) { s.metrics = m }
}

// NewSubscriptionService creates a SubscriptionService.
func NewSubscriptionService(validator ReceiptValidator, repo SubscriptionRepository, opts ...ServiceOption) *SubscriptionService {
	s := &SubscriptionService{
		validator: validator,
		repo:      repo,
		logger:    logging.Component("subscription_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifyReceipt validates the receipt with Apple and upserts the lineage.
func (s *SubscriptionService) VerifyReceipt(ctx context.Context, in VerifyReceiptInput) (result *VerifyReceiptResult, err error) {
	defer func() {
		code := "ok"
		if err != nil {
			code = apperrors.Classify(err).Code
		}
		s.metrics.RecordVerification(code)
	}()

	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeMissingParams, "userId is required")
	}

	resp, err := s.validator.Validate(ctx, in.ReceiptData)
	if err != nil {
		return nil, err
	}

	info, err := s.validator.ParseSubscriptionInfo(resp)
	if err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		UserID:                in.UserID,
		ProductID:             info.ProductID,
		OriginalTransactionID: info.OriginalTransactionID,
		TransactionID:         info.TransactionID,
		IsActive:              info.IsActive,
		ExpiryDate:            info.ExpiryDate,
		PurchaseDate:          info.PurchaseDate,
		Platform:              models.PlatformIOS,
		Environment:           info.Environment,
		ReceiptData:           in.ReceiptData,
	}

	upsert, err := s.repo.UpsertSubscription(ctx, sub)
	if err != nil {
		return nil, err
	}
	sub.ID = upsert.SubscriptionID
	sub.UserID = upsert.OwnerUserID

	s.invalidatePremium(ctx, upsert.OwnerUserID)
	if upsert.OwnerUserID != in.UserID {
		s.logger.Warn().Str("subscription_id", upsert.SubscriptionID).Str("owner_user_id", upsert.OwnerUserID).
			Str("user_id", in.UserID).Msg("receipt validated by a user other than the subscription owner")
		s.invalidatePremium(ctx, in.UserID)
	}
	if s.notifier != nil {
		event := models.HistoryEventRenewed
		if upsert.Created {
			event = models.HistoryEventCreated
		}
		s.notifier.Notify(event, sub)
	}

	logEvent := s.logger.Info().
		Str("subscription_id", upsert.SubscriptionID).
		Bool("created", upsert.Created)
	if !upsert.Created {
		logEvent = logEvent.Time("previous_expiry", upsert.PreviousExpiry)
	}
	logEvent.
		Bool("is_active", info.IsActive).
		Str("product_id", info.ProductID).
		Str("environment", string(info.Environment)).
		Msg("receipt verified")

	return &VerifyReceiptResult{
		SubscriptionID: upsert.SubscriptionID,
		IsActive:       info.IsActive,
		ExpiryDate:     info.ExpiryDate,
		ProductID:      info.ProductID,
		PurchaseDate:   info.PurchaseDate,
		Environment:    info.Environment,
	}, nil
}

// GetSubscriptionStatus returns the stored active subscription without calling Apple.
func (s *SubscriptionService) GetSubscriptionStatus(ctx context.Context, userID string) (*SubscriptionStatus, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeMissingParams, "user_id is required")
	}

	sub, err := s.repo.GetActiveSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &SubscriptionStatus{
		UserID:       userID,
		IsActive:     sub != nil,
		Subscription: sub,
	}, nil
}

// CheckPremiumStatus answers from the cache when possible. Cache errors fall
// through to the database.
func (s *SubscriptionService) CheckPremiumStatus(ctx context.Context, userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, apperrors.NewValidationError(apperrors.CodeMissingParams, "user_id is required")
	}

	if s.cache != nil {
		premium, found, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.logger.Warn().Err(err).Msg("premium cache read failed")
		} else if found {
			return premium, nil
		}
	}

	premium, err := s.repo.CheckPremiumStatus(ctx, userID)
	if err != nil {
		return false, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, premium); err != nil {
			s.logger.Warn().Err(err).Msg("premium cache write failed")
		}
	}
	return premium, nil
}

// ExpireSubscription deactivates the active row of a lineage. It returns
// false when there was nothing to expire.
func (s *SubscriptionService) ExpireSubscription(ctx context.Context, originalTransactionID string) (bool, error) {
	originalTransactionID = strings.TrimSpace(originalTransactionID)
	if originalTransactionID == "" {
		return false, apperrors.NewValidationError(apperrors.CodeMissingParams, "original_transaction_id is required")
	}

	sub, expired, err := s.repo.ExpireSubscription(ctx, originalTransactionID)
	if err != nil {
		return false, err
	}
	s.metrics.RecordExpiration(expired)
	if !expired {
		return false, nil
	}

	s.invalidatePremium(ctx, sub.UserID)
	if s.notifier != nil {
		s.notifier.Notify(models.HistoryEventExpired, sub)
	}
	return true, nil
}

// ListHistory returns the user's audit trail.
func (s *SubscriptionService) ListHistory(ctx context.Context, userID string) ([]models.SubscriptionHistory, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeMissingParams, "user_id is required")
	}
	return s.repo.ListHistory(ctx, userID)
}

func (s *SubscriptionService) invalidatePremium(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Msg("premium cache invalidation failed")
	}
}
