package tickets

import (
	"context"
	"errors"
	"fmt"

	"boxoffice/internal/orders"
	"boxoffice/internal/shared/apperror"
	"boxoffice/internal/shared/clock"
	"boxoffice/internal/users"
	"boxoffice/pkg/logger"

	"github.com/google/uuid"
)

type Service interface {
	IssueTickets(ctx context.Context, orderID uuid.UUID) ([]Ticket, bool, error)
	ListForBuyer(ctx context.Context, orderID uuid.UUID, email string) ([]TicketResponse, error)
	CheckIn(ctx context.Context, code string, staffID uuid.UUID) (*CheckInResponse, error)
	EventAttendance(ctx context.Context, userID uuid.UUID, role users.Role, eventID uuid.UUID) (*AttendanceResponse, error)
}

type service struct {
	repo      Repository
	orderRepo orders.Repository
	clock     clock.Clock
	log       *logger.Logger
}

func NewService(repo Repository, orderRepo orders.Repository, clk clock.Clock, log *logger.Logger) Service {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &service{
		repo:      repo,
		orderRepo: orderRepo,
		clock:     clk,
		log:       logger.OrDefault(log).WithComponent("tickets"),
	}
}

func (s *service) IssueTickets(ctx context.Context, orderID uuid.UUID) ([]Ticket, bool, error) {
	return s.repo.IssueForOrder(ctx, orderID, s.clock.Now())
}

// ListForBuyer returns the tickets of a paid order to the buyer who placed it.
// A wrong email looks the same as a missing order.
func (s *service) ListForBuyer(ctx context.Context, orderID uuid.UUID, email string) ([]TicketResponse, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			return nil, apperror.New(apperror.KindNotFound, "order not found")
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order.Buyer == nil || order.Buyer.Email != orders.NormalizeEmail(email) {
		return nil, apperror.New(apperror.KindNotFound, "order not found")
	}
	if order.Status != orders.StatusPaid {
		return nil, apperror.New(apperror.KindInvalidState, fmt.Sprintf("order is %s", order.Status))
	}

	tickets, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	out := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, tickets[i].ToResponse())
	}
	return out, nil
}

func (s *service) CheckIn(ctx context.Context, code string, staffID uuid.UUID) (*CheckInResponse, error) {
	ticket, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrTicketNotFound) {
			return nil, apperror.New(apperror.KindNotFound, "ticket not found")
		}
		return nil, fmt.Errorf("failed to load ticket: %w", err)
	}

	switch ticket.Status {
	case StatusUsed:
		return nil, apperror.New(apperror.KindInvalidState, "ticket already checked in").
			WithDetail("used_at", ticket.UsedAt)
	case StatusCancelled:
		return nil, apperror.New(apperror.KindInvalidState, "ticket is cancelled")
	}

	order, err := s.orderRepo.GetByID(ctx, ticket.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order.Status != orders.StatusPaid {
		return nil, apperror.New(apperror.KindInvalidState, fmt.Sprintf("order is %s", order.Status))
	}

	now := s.clock.Now()
	ok, err := s.repo.CheckIn(ctx, code, staffID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to check in ticket: %w", err)
	}
	if !ok {
		return nil, apperror.New(apperror.KindInvalidState, "ticket already checked in")
	}

	s.log.LogTicketCheckedIn(ctx, ticket.ID.String(), staffID.String())

	ticket.Status = StatusUsed
	ticket.UsedAt = &now
	ticket.CheckedInBy = &staffID
	return &CheckInResponse{Ticket: ticket.ToResponse(), CheckedInAt: now}, nil
}

// EventAttendance is open to door staff and admins for any event, and to
// organizers for their own.
func (s *service) EventAttendance(ctx context.Context, userID uuid.UUID, role users.Role, eventID uuid.UUID) (*AttendanceResponse, error) {
	owner, err := s.repo.GetEventOwner(ctx, eventID)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			return nil, apperror.New(apperror.KindNotFound, "event not found")
		}
		return nil, fmt.Errorf("failed to load event: %w", err)
	}
	if role == users.RoleOrganizer && owner != userID {
		return nil, apperror.New(apperror.KindForbidden, "event belongs to another organizer")
	}

	rows, err := s.repo.CountAttendance(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attendance: %w", err)
	}

	resp := &AttendanceResponse{
		EventID:      eventID.String(),
		ByTicketType: make([]TicketTypeAttendance, 0, len(rows)),
	}
	for _, row := range rows {
		resp.Issued += row.Issued
		resp.CheckedIn += row.CheckedIn
		resp.ByTicketType = append(resp.ByTicketType, TicketTypeAttendance{
			TicketTypeID: row.TicketTypeID.String(),
			Name:         row.Name,
			Issued:       row.Issued,
			CheckedIn:    row.CheckedIn,
		})
	}
	resp.NotArrived = resp.Issued - resp.CheckedIn
	if resp.Issued > 0 {
		resp.Rate = float64(resp.CheckedIn) * 100 / float64(resp.Issued)
	}
	return resp, nil
}
