package models

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// HistoryEventType is the kind of lineage transition a history row records.
type HistoryEventType string

const (
	HistoryEventCreated HistoryEventType = "created"
	HistoryEventRenewed HistoryEventType = "renewed"
	HistoryEventExpired HistoryEventType = "expired"
)

// SubscriptionHistory is an append-only audit entry. Rows are never updated
// or deleted, and they are not the authoritative subscription state.
type SubscriptionHistory struct {
	BaseModel

	SubscriptionID string           `json:"subscription_id" gorm:"not null;size:36;index"`
	UserID         string           `json:"user_id" gorm:"not null;size:191;index"`
	EventType      HistoryEventType `json:"event_type" gorm:"not null;size:20"`
	EventData      datatypes.JSON   `json:"event_data"`
}

// TableName specifies the table name
func (SubscriptionHistory) TableName() string {
	return "subscription_history"
}

// NewSubscriptionHistory builds a history entry with data marshalled as JSON.
func NewSubscriptionHistory(subscriptionID, userID string, eventType HistoryEventType, data map[string]interface{}) (*SubscriptionHistory, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &SubscriptionHistory{
		SubscriptionID: subscriptionID,
		UserID:         userID,
		EventType:      eventType,
		EventData:      datatypes.JSON(raw),
	}, nil
}
