package database

import (
	"context"
	"fmt"
	"time"

	"receipt-api/internal/config"
	"receipt-api/internal/models"
	"receipt-api/pkg/logging"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// checkPremiumStatusFunction is installed on Postgres so that premium checks
// evaluate expiry against the database clock.
const checkPremiumStatusFunction = `
CREATE OR REPLACE FUNCTION check_premium_status(p_user_id TEXT)
RETURNS BOOLEAN AS $$
	SELECT EXISTS (
		SELECT 1 FROM user_subscriptions
		WHERE user_id = p_user_id
		  AND is_active
		  AND expiry_date > NOW()
	);
$$ LANGUAGE sql STABLE;`

// Open connects to Postgres when DATABASE_URL is set and falls back to a
// SQLite file for development.
func Open(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg)),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var (
		db  *gorm.DB
		err error
	)
	if cfg.UsePostgres() {
		db, err = gorm.Open(postgres.Open(cfg.DatabaseURL), gormCfg)
	} else {
		logging.Infof("Database URL not set, using SQLite at %s", cfg.SQLitePath)
		db, err = gorm.Open(sqlite.Open(cfg.SQLitePath), gormCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logging.Infof("Database connected successfully (%s)", db.Dialector.Name())
	return db, nil
}

func gormLogLevel(cfg *config.Config) logger.LogLevel {
	if cfg.Mode == "debug" {
		return logger.Info
	}
	return logger.Warn
}

// Migrate creates the subscription tables and, on Postgres, the
// check_premium_status function.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Subscription{},
		&models.SubscriptionHistory{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if db.Dialector.Name() == DialectPostgres {
		if err := db.Exec(checkPremiumStatusFunction).Error; err != nil {
			return fmt.Errorf("failed to create check_premium_status: %w", err)
		}
	} else {
		logging.Debugf("Skipping check_premium_status function on %s", db.Dialector.Name())
	}

	logging.Infof("Database migrated successfully")
	return nil
}

// Ping checks the database connection.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection pool.
func Close(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logging.Errorf("Failed to close database: %v", err)
		}
	}
}

// OpenRedis connects to Redis. It returns nil when redisURL is empty.
func OpenRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		logging.Warnf("Redis URL not set, premium cache disabled and rate limits kept in memory")
		return nil, nil
	}

	logging.Infof("Connecting to Redis: %s", maskRedisURL(redisURL))

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Infof("Redis connected successfully")
	return client, nil
}

// maskRedisURL masks credentials in a Redis URL for logging
func maskRedisURL(url string) string {
	if len(url) > 20 {
		return url[:10] + "***" + url[len(url)-10:]
	}
	return "***"
}
