package models

import (
	"time"
)

// Environment is the Apple verification environment a receipt was validated in.
type Environment string

const (
	EnvironmentSandbox    Environment = "Sandbox"
	EnvironmentProduction Environment = "Production"
)

// PlatformIOS is the only platform this service validates.
const PlatformIOS = "ios"

// Subscription is one purchase lineage, keyed by OriginalTransactionID.
// Rows are created on the first successful validation and mutated afterwards;
// they are never deleted.
type Subscription struct {
	BaseModel

	UserID    string `json:"user_id" gorm:"not null;size:191;index"`
	ProductID string `json:"product_id" gorm:"not null;size:191"`

	// OriginalTransactionID stays the same across renewals and is the idempotency key.
	OriginalTransactionID string `json:"original_transaction_id" gorm:"not null;size:100;uniqueIndex"`
	// TransactionID is the latest renewal transaction.
	TransactionID string `json:"transaction_id" gorm:"not null;size:100"`

	IsActive   bool      `json:"is_active" gorm:"not null;default:false;index"`
	ExpiryDate time.Time `json:"expiry_date" gorm:"not null;index"`
	// PurchaseDate is the original purchase date and is never rewritten.
	PurchaseDate time.Time `json:"purchase_date" gorm:"not null"`

	Platform    string      `json:"platform" gorm:"size:20;default:'ios'"`
	Environment Environment `json:"environment" gorm:"size:20"`

	// ReceiptData is the last validated raw receipt blob.
	ReceiptData     string    `json:"-" gorm:"type:text"`
	LastValidatedAt time.Time `json:"last_validated_at"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name
func (Subscription) TableName() string {
	return "user_subscriptions"
}
