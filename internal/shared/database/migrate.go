package database

import (
	"boxoffice/internal/events"
	"boxoffice/internal/orders"
	"boxoffice/internal/payments"
	"boxoffice/internal/tickets"
	"boxoffice/internal/users"

	"gorm.io/gorm"
)

// Models lists every persisted table in migration order.
func Models() []interface{} {
	return []interface{}{
		&users.User{},
		&events.Event{},
		&events.TicketType{},
		&orders.Buyer{},
		&orders.Order{},
		&orders.OrderItem{},
		&orders.Payment{},
		&orders.ReservationJournal{},
		&tickets.Ticket{},
		&payments.WebhookLog{},
		&payments.SettlementLog{},
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
