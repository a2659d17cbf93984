package database

import (
	"fmt"
	"log"
	"time"

	"github.com/dextersy/label-dashboard-sub004/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// constraints back the counter invariants at the storage level, so a bug in
// a conditional update surfaces as an error instead of a corrupt row.
var constraints = []string{
	`ALTER TABLE ticket_types DROP CONSTRAINT IF EXISTS chk_ticket_types_sold`,
	`ALTER TABLE ticket_types ADD CONSTRAINT chk_ticket_types_sold
		CHECK (sold >= 0 AND (capacity = 0 OR sold <= capacity))`,
	`ALTER TABLE orders DROP CONSTRAINT IF EXISTS chk_orders_claimed`,
	`ALTER TABLE orders ADD CONSTRAINT chk_orders_claimed
		CHECK (purchased >= 1 AND claimed >= 0 AND claimed <= purchased)`,
	// Provider references are unique once recorded; unpaid orders carry NULL.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_payment_reference
		ON orders (payment_reference)
		WHERE payment_reference IS NOT NULL`,
}

func NewPostgresDB(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(1 * time.Minute)

	if err := Migrate(db); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	return db
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Event{}, &models.TicketType{}, &models.Referrer{}, &models.Order{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	for _, stmt := range constraints {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply constraint: %w", err)
		}
	}
	return nil
}
