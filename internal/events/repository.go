package events

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrEventNotFound = errors.New("event not found")

type Repository interface {
	Create(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	ListPublished(ctx context.Context, query EventListQuery) ([]Event, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status EventStatus) error

	CreateTicketType(ctx context.Context, ticketType *TicketType) error
	GetInventory(ctx context.Context, eventID uuid.UUID) ([]TicketType, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, event *Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	var event Event
	err := r.db.WithContext(ctx).
		Preload("TicketTypes", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("id = ?", id).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

func (r *repository) ListPublished(ctx context.Context, query EventListQuery) ([]Event, int64, error) {
	var events []Event
	var totalCount int64

	baseQuery := r.db.WithContext(ctx).
		Model(&Event{}).
		Where("status = ?", EventStatusPublished)

	if search := strings.TrimSpace(query.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		baseQuery = baseQuery.Where("LOWER(name) LIKE ? OR LOWER(venue) LIKE ?", like, like)
	}

	if err := baseQuery.Count(&totalCount).Error; err != nil {
		return nil, 0, err
	}

	offset := (query.Page - 1) * query.Limit
	err := baseQuery.
		Preload("TicketTypes", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Order("starts_at ASC").
		Offset(offset).
		Limit(query.Limit).
		Find(&events).Error

	return events, totalCount, err
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status EventStatus) error {
	result := r.db.WithContext(ctx).
		Model(&Event{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *repository) CreateTicketType(ctx context.Context, ticketType *TicketType) error {
	return r.db.WithContext(ctx).Create(ticketType).Error
}

// GetInventory reads only the counters of an event's ticket types.
func (r *repository) GetInventory(ctx context.Context, eventID uuid.UUID) ([]TicketType, error) {
	var ticketTypes []TicketType
	err := r.db.WithContext(ctx).
		Select("id", "capacity", "sold").
		Where("event_id = ?", eventID).
		Find(&ticketTypes).Error
	return ticketTypes, err
}
