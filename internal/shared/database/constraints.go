package database

import (
	"gorm.io/gorm"
)

// MigrateConstraints adds the partial indexes AutoMigrate cannot express.
// Each statement is idempotent.
func MigrateConstraints(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}

	statements := []string{
		// at most one payment row per provider transaction
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_gateway_tx
			ON payments (gateway, gateway_transaction_id)
			WHERE gateway_transaction_id IS NOT NULL AND gateway_transaction_id <> '';`,

		// the journal applier and sweep scan open orders by deadline
		`CREATE INDEX IF NOT EXISTS idx_orders_pending_reserved_until
			ON orders (reserved_until) WHERE status = 'PENDING';`,
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
