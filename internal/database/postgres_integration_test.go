//go:build integration

package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"testing"
	"time"

	"receipt-api/internal/config"
	"receipt-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

var pgDB *gorm.DB

func TestMain(m *testing.M) {
	if !dockerAvailable() {
		fmt.Println("Docker is not available, skipping integration tests")
		os.Exit(0)
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("receipt_api_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		pgContainer.Terminate(ctx)
		log.Fatalf("failed to get connection string: %v", err)
	}

	pgDB, err = Open(&config.Config{DatabaseURL: connStr})
	if err != nil {
		pgContainer.Terminate(ctx)
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := Migrate(pgDB); err != nil {
		Close(pgDB)
		pgContainer.Terminate(ctx)
		log.Fatalf("failed to run migrations: %v", err)
	}

	code := m.Run()

	Close(pgDB)
	pgContainer.Terminate(ctx)

	os.Exit(code)
}

func dockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	return cmd.Run() == nil
}

func cleanTables(t *testing.T) {
	t.Helper()
	require.NoError(t, pgDB.Exec("TRUNCATE subscription_history, user_subscriptions").Error)
}

func TestPostgres_CheckPremiumStatusFunction(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	store := NewSubscriptionStore(pgDB)
	now := time.Now().UTC()

	premium, err := store.CheckPremiumStatus(ctx, "pg-user")
	require.NoError(t, err)
	assert.False(t, premium)

	_, err = store.UpsertSubscription(ctx, &models.Subscription{
		UserID:                "pg-user",
		ProductID:             "premium.monthly",
		OriginalTransactionID: "pg-otx-1",
		TransactionID:         "pg-tx-1",
		IsActive:              true,
		ExpiryDate:            now.Add(24 * time.Hour),
		PurchaseDate:          now.Add(-24 * time.Hour),
		Environment:           models.EnvironmentProduction,
	})
	require.NoError(t, err)

	premium, err = store.CheckPremiumStatus(ctx, "pg-user")
	require.NoError(t, err)
	assert.True(t, premium)

	_, expired, err := store.ExpireSubscription(ctx, "pg-otx-1")
	require.NoError(t, err)
	assert.True(t, expired)

	premium, err = store.CheckPremiumStatus(ctx, "pg-user")
	require.NoError(t, err)
	assert.False(t, premium)
}

func TestPostgres_ConcurrentFirstInsertKeepsOneRow(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	store := NewSubscriptionStore(pgDB)
	now := time.Now().UTC()

	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func(i int) {
			_, err := store.UpsertSubscription(ctx, &models.Subscription{
				UserID:                "race-user",
				ProductID:             "premium.monthly",
				OriginalTransactionID: "race-otx",
				TransactionID:         fmt.Sprintf("race-tx-%d", i),
				IsActive:              true,
				ExpiryDate:            now.Add(time.Hour),
				PurchaseDate:          now.Add(-time.Hour),
				Environment:           models.EnvironmentSandbox,
			})
			errs <- err
		}(i)
	}
	for i := 0; i < 4; i++ {
		<-errs
	}

	var n int64
	require.NoError(t, pgDB.Model(&models.Subscription{}).Where("original_transaction_id = ?", "race-otx").Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
