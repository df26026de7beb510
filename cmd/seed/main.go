package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"boxoffice/internal/events"
	"boxoffice/internal/shared/config"
	"boxoffice/internal/shared/database"
	"boxoffice/internal/users"
	"boxoffice/pkg/logger"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const seedPassword = "boxoffice123"

// Seeder provisions the accounts that cannot self-register and a demo event.
type Seeder struct {
	db  *gorm.DB
	log *logger.Logger
}

func main() {
	clean := flag.Bool("clean", false, "truncate all tables before seeding")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New().WithComponent("seed")

	ctx := context.Background()
	db, err := database.InitDB(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	seeder := &Seeder{db: db.PostgreSQL, log: log}

	if *clean {
		if err := seeder.CleanDatabase(ctx); err != nil {
			log.Error("failed to clean database", slog.Any("error", err))
			os.Exit(1)
		}
		log.Info("database cleaned")
	}

	if err := seeder.SeedAll(ctx); err != nil {
		log.Error("failed to seed database", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("seeding completed", "password", seedPassword)
}

// CleanDatabase truncates every table, children first.
func (s *Seeder) CleanDatabase(ctx context.Context) error {
	tables := []string{
		"settlement_logs",
		"webhook_logs",
		"tickets",
		"reservation_journal",
		"payments",
		"order_items",
		"orders",
		"buyers",
		"ticket_types",
		"events",
		"users",
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			if err := tx.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
				return fmt.Errorf("failed to truncate table %s: %w", table, err)
			}
		}
		return nil
	})
}

func (s *Seeder) SeedAll(ctx context.Context) error {
	accounts, err := s.SeedUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}
	return s.SeedEvents(ctx, accounts[users.RoleOrganizer])
}

// SeedUsers creates one account per role, skipping emails that exist.
func (s *Seeder) SeedUsers(ctx context.Context) (map[users.Role]*users.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	seed := []users.User{
		{FirstName: "Admin", LastName: "Boxoffice", Email: "admin@boxoffice.local", Role: users.RoleAdmin},
		{FirstName: "Olivia", LastName: "Organizer", Email: "organizer@boxoffice.local", Role: users.RoleOrganizer},
		{FirstName: "Sam", LastName: "Door", Email: "staff@boxoffice.local", Role: users.RoleStaff},
	}

	accounts := make(map[users.Role]*users.User, len(seed))
	for i := range seed {
		u := seed[i]
		u.Password = string(hash)
		if err := s.db.WithContext(ctx).Where(users.User{Email: u.Email}).FirstOrCreate(&u).Error; err != nil {
			return nil, err
		}
		accounts[u.Role] = &u
		s.log.Info("user ready", "email", u.Email, "role", string(u.Role))
	}
	return accounts, nil
}

// SeedEvents publishes a small demo event with two ticket types.
func (s *Seeder) SeedEvents(ctx context.Context, organizer *users.User) error {
	startsAt := time.Now().UTC().AddDate(0, 1, 0).Truncate(time.Hour)

	event := events.Event{
		OrganizerID:           organizer.ID,
		Name:                  "Night Market Live",
		Description:           "Open-air concert series.",
		Venue:                 "Pier 4",
		StartsAt:              startsAt,
		Status:                events.EventStatusPublished,
		MaxTicketsPerPurchase: 6,
		TicketTypes: []events.TicketType{
			{Name: "General", Capacity: 500, UnitPrice: 45000, Currency: "MXN"},
			{Name: "VIP", Capacity: 50, UnitPrice: 120000, Currency: "MXN"},
		},
	}

	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return err
	}
	s.log.Info("event ready", "event_id", event.ID.String(), "ticket_types", len(event.TicketTypes))
	return nil
}
