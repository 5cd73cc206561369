package database

import (
	"context"

	"receipt-api/internal/models"

	"gorm.io/gorm"
)

// HistoryRecorder appends subscription history entries.
type HistoryRecorder interface {
	Record(ctx context.Context, entry *models.SubscriptionHistory) error
}

// HistoryFailureHandler observes history entries that could not be written.
type HistoryFailureHandler func(entry *models.SubscriptionHistory, err error)

// GormHistoryRecorder writes history entries to the subscription_history table.
type GormHistoryRecorder struct {
	db *gorm.DB
}

// NewGormHistoryRecorder creates a recorder backed by db.
func NewGormHistoryRecorder(db *gorm.DB) *GormHistoryRecorder {
	return &GormHistoryRecorder{db: db}
}

// Record inserts entry.
func (r *GormHistoryRecorder) Record(ctx context.Context, entry *models.SubscriptionHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// recordHistory is best-effort: failures are logged, counted and handed to the
// failure handler, never returned to the caller.
func (s *SubscriptionStore) recordHistory(ctx context.Context, subscriptionID, userID string, eventType models.HistoryEventType, data map[string]interface{}) {
	entry, err := models.NewSubscriptionHistory(subscriptionID, userID, eventType, data)
	if err == nil {
		err = s.history.Record(ctx, entry)
	}
	if err != nil {
		s.logger.Warn().Err(err).
			Str("subscription_id", subscriptionID).
			Str("event_type", string(eventType)).
			Msg("failed to record subscription history")
		s.metrics.RecordHistoryFailure(string(eventType))
		if s.onFailure != nil {
			s.onFailure(entry, err)
		}
		return
	}

	s.logger.Debug().Str("subscription_id", subscriptionID).Str("event_type", string(eventType)).Msg("subscription history recorded")
}
