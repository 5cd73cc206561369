package database

import (
	"context"
	"errors"
	"time"

	"receipt-api/internal/apperrors"
	"receipt-api/internal/metrics"
	"receipt-api/internal/models"
	"receipt-api/pkg/logging"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// UpsertResult is returned by UpsertSubscription.
type UpsertResult struct {
	SubscriptionID string
	// OwnerUserID is the user_id stored on the row. On an update it may differ
	// from the user that submitted the receipt.
	OwnerUserID string
	// Created is true when a new lineage row was inserted.
	Created bool
	// PreviousExpiry is the stored expiry before an update.
	PreviousExpiry time.Time
}

// SubscriptionStore persists subscription state and its audit trail.
//
// Upserts are read-then-write without a transaction. Two concurrent first
// validations of the same lineage both see no row; the unique index on
// original_transaction_id rejects the second insert, which surfaces as a
// DatabaseError.
type SubscriptionStore struct {
	db        *gorm.DB
	history   HistoryRecorder
	onFailure HistoryFailureHandler
	metrics   *metrics.Metrics
	now       func() time.Time
	logger    zerolog.Logger
}

// StoreOption customizes a SubscriptionStore.
type StoreOption func(*SubscriptionStore)

// WithHistoryRecorder replaces the gorm history recorder.
func WithHistoryRecorder(r HistoryRecorder) StoreOption {
	return func(s *SubscriptionStore) { s.history = r }
}

// WithHistoryFailureHandler registers a callback for swallowed history failures.
func WithHistoryFailureHandler(h HistoryFailureHandler) StoreOption {
	return func(s *SubscriptionStore) { s.onFailure = h }
}

// WithStoreMetrics counts history write failures.
func WithStoreMetrics(m *metrics.Metrics) StoreOption {
	return func(s *SubscriptionStore) { s.metrics = m }
}

// WithStoreClock replaces time.Now.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *SubscriptionStore) { s.now = now }
}

// NewSubscriptionStore creates a store backed by db.
func NewSubscriptionStore(db *gorm.DB, opts ...StoreOption) *SubscriptionStore {
	s := &SubscriptionStore{
		db:      db,
		history: NewGormHistoryRecorder(db),
		now:     time.Now,
		logger:  logging.Component("subscription_store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertSubscription inserts a new lineage or updates the existing one keyed
// by OriginalTransactionID. An update always appends a "renewed" entry, even
// when nothing changed. UserID, ProductID and PurchaseDate are never rewritten.
func (s *SubscriptionStore) UpsertSubscription(ctx context.Context, sub *models.Subscription) (*UpsertResult, error) {
	now := s.now().UTC()

	var existing models.Subscription
	err := s.db.WithContext(ctx).
		Where("original_transaction_id = ?", sub.OriginalTransactionID).
		First(&existing).Error

	switch {
	case err == nil:
		return s.updateExisting(ctx, &existing, sub, now)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.insert(ctx, sub, now)
	default:
		return nil, apperrors.NewDatabaseError("find subscription", err)
	}
}

func (s *SubscriptionStore) updateExisting(ctx context.Context, existing, sub *models.Subscription, now time.Time) (*UpsertResult, error) {
	s.logger.Info().Str("subscription_id", existing.ID).Msg("updating existing subscription")

	err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"is_active":         sub.IsActive,
			"expiry_date":       sub.ExpiryDate.UTC(),
			"transaction_id":    sub.TransactionID,
			"receipt_data":      sub.ReceiptData,
			"last_validated_at": now,
			"updated_at":        now,
		}).Error
	if err != nil {
		return nil, apperrors.NewDatabaseError("update subscription", err)
	}

	s.recordHistory(ctx, existing.ID, sub.UserID, models.HistoryEventRenewed, map[string]interface{}{
		"timestamp":       now,
		"previous_expiry": existing.ExpiryDate.UTC(),
		"new_expiry":      sub.ExpiryDate.UTC(),
		"was_active":      existing.IsActive,
		"is_active":       sub.IsActive,
	})

	return &UpsertResult{
		SubscriptionID: existing.ID,
		OwnerUserID:    existing.UserID,
		PreviousExpiry: existing.ExpiryDate.UTC(),
	}, nil
}

func (s *SubscriptionStore) insert(ctx context.Context, sub *models.Subscription, now time.Time) (*UpsertResult, error) {
	s.logger.Info().Str("product_id", sub.ProductID).Msg("creating new subscription")

	sub.ExpiryDate = sub.ExpiryDate.UTC()
	sub.PurchaseDate = sub.PurchaseDate.UTC()
	sub.LastValidatedAt = now
	if sub.Platform == "" {
		sub.Platform = models.PlatformIOS
	}

	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, apperrors.NewDatabaseError("create subscription", err)
	}

	s.recordHistory(ctx, sub.ID, sub.UserID, models.HistoryEventCreated, map[string]interface{}{
		"timestamp":   now,
		"product_id":  sub.ProductID,
		"expiry_date": sub.ExpiryDate,
		"environment": sub.Environment,
	})

	return &UpsertResult{SubscriptionID: sub.ID, OwnerUserID: sub.UserID, Created: true}, nil
}

// ExpireSubscription deactivates the currently active row of a lineage. It
// returns false and writes nothing when there is no active row.
func (s *SubscriptionStore) ExpireSubscription(ctx context.Context, originalTransactionID string) (*models.Subscription, bool, error) {
	now := s.now().UTC()

	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("original_transaction_id = ? AND is_active = ?", originalTransactionID, true).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Info().Str("original_transaction_id", originalTransactionID).Msg("no active subscription to expire")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.NewDatabaseError("find active subscription", err)
	}

	result := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND is_active = ?", sub.ID, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": now,
		})
	if result.Error != nil {
		return nil, false, apperrors.NewDatabaseError("expire subscription", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, false, nil
	}

	sub.IsActive = false
	sub.UpdatedAt = now

	s.recordHistory(ctx, sub.ID, sub.UserID, models.HistoryEventExpired, map[string]interface{}{
		"timestamp": now,
	})

	s.logger.Info().Str("subscription_id", sub.ID).Msg("subscription expired")
	return &sub, true, nil
}

// GetActiveSubscription returns the user's active, unexpired subscription
// with the latest expiry, or nil when there is none.
func (s *SubscriptionStore) GetActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND expiry_date > ?", userID, true, s.now().UTC()).
		Order("expiry_date DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get active subscription", err)
	}
	return &sub, nil
}

// CheckPremiumStatus reports whether the user has any active, unexpired
// subscription. On Postgres this calls check_premium_status.
func (s *SubscriptionStore) CheckPremiumStatus(ctx context.Context, userID string) (bool, error) {
	var premium bool
	var err error

	if s.db.Dialector.Name() == DialectPostgres {
		err = s.db.WithContext(ctx).Raw("SELECT check_premium_status(?)", userID).Scan(&premium).Error
	} else {
		err = s.db.WithContext(ctx).
			Raw("SELECT EXISTS (SELECT 1 FROM user_subscriptions WHERE user_id = ? AND is_active = ? AND expiry_date > ?)",
				userID, true, s.now().UTC()).
			Scan(&premium).Error
	}
	if err != nil {
		return false, apperrors.NewDatabaseError("check premium status", err)
	}
	return premium, nil
}

// ListHistory returns the user's history entries, newest first.
func (s *SubscriptionStore) ListHistory(ctx context.Context, userID string) ([]models.SubscriptionHistory, error) {
	var entries []models.SubscriptionHistory
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, apperrors.NewDatabaseError("list subscription history", err)
	}
	return entries, nil
}
