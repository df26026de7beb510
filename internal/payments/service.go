package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"boxoffice/internal/orders"
	"boxoffice/internal/shared/apperror"
	"boxoffice/internal/shared/clock"
	"boxoffice/internal/shared/config"
	"boxoffice/internal/shared/money"
	"boxoffice/pkg/logger"

	"github.com/google/uuid"
)

// HoldReleaser is the part of the availability ledger settlement touches.
type HoldReleaser interface {
	Release(ctx context.Context, orderID uuid.UUID) (int, error)
	Extend(ctx context.Context, orderID uuid.UUID) (bool, error)
	HoldTTL() time.Duration
}

// FulfillmentQueue accepts paid orders for ticket issuance.
type FulfillmentQueue interface {
	Enqueue(ctx context.Context, orderID uuid.UUID) error
}

// NotificationResult is what the webhook endpoint answers with.
type NotificationResult struct {
	Outcome    Outcome `json:"outcome"`
	OrderID    string  `json:"order_id,omitempty"`
	WebhookID  string  `json:"webhook_id"`
	HTTPStatus int     `json:"-"`
}

type Service interface {
	HandleNotification(ctx context.Context, gateway string, req WebhookRequest, remoteIP string) (*NotificationResult, error)
}

type service struct {
	repo      Repository
	orderRepo orders.Repository
	registry  *Registry
	ledger    HoldReleaser
	queue     FulfillmentQueue
	clock     clock.Clock
	feePlan   money.FeePlan
	log       *logger.Logger
}

func NewService(
	repo Repository,
	orderRepo orders.Repository,
	registry *Registry,
	holdLedger HoldReleaser,
	queue FulfillmentQueue,
	clk clock.Clock,
	cfg config.PaymentsConfig,
	log *logger.Logger,
) Service {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &service{
		repo:      repo,
		orderRepo: orderRepo,
		registry:  registry,
		ledger:    holdLedger,
		queue:     queue,
		clock:     clk,
		feePlan:   money.FeePlan{PercentBps: cfg.DefaultFeeBps, FixedMinor: cfg.DefaultFeeFixed},
		log:       logger.OrDefault(log).WithComponent("payments"),
	}
}

// HandleNotification settles one webhook delivery.
//
// Every delivery leaves exactly one WebhookLog and one SettlementLog. The
// returned error is non-nil only when the provider should redeliver (or, for
// an untrusted state-changing notification, to answer 401); business
// rejections come back as a result with status 200.
func (s *service) HandleNotification(ctx context.Context, gatewayName string, req WebhookRequest, remoteIP string) (*NotificationResult, error) {
	gw, err := s.registry.Get(gatewayName)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	n, parseErr := gw.Parse(req)
	verified := parseErr == nil && gw.Verify(req, n)

	hook := &WebhookLog{
		Gateway:    gw.Name(),
		Payload:    string(req.Body),
		Verified:   verified,
		ReceivedAt: now,
	}
	if n != nil {
		hook.EventType = n.EventType
		hook.ProviderPaymentID = n.ProviderPaymentID
		hook.Signature = n.Signature
		if id, err := uuid.Parse(n.ExternalReference); err == nil {
			hook.OrderID = &id
		}
	}
	if err := s.repo.CreateWebhookLog(ctx, hook); err != nil {
		return nil, fmt.Errorf("failed to persist webhook log: %w", err)
	}

	result := &NotificationResult{WebhookID: hook.ID.String(), HTTPStatus: http.StatusOK}

	// early records an outcome that never reached the settlement transaction.
	early := func(outcome Outcome, orderID *uuid.UUID, pp *ProviderPayment, detail string) error {
		entry := &SettlementLog{
			WebhookLogID: hook.ID,
			Gateway:      gw.Name(),
			Outcome:      outcome,
			OrderID:      orderID,
			Detail:       detail,
			CreatedAt:    now,
		}
		if n != nil {
			entry.ProviderPaymentID = n.ProviderPaymentID
		}
		if pp != nil {
			entry.ProviderStatus = pp.Status
		}
		result.Outcome = outcome
		if orderID != nil {
			result.OrderID = orderID.String()
		}
		if err := s.repo.AppendSettlementLog(ctx, entry); err != nil {
			return fmt.Errorf("failed to append settlement log: %w", err)
		}
		return nil
	}

	if parseErr != nil {
		if err := early(OutcomeMalformedPayload, nil, nil, parseErr.Error()); err != nil {
			return nil, err
		}
		return result, nil
	}

	if !n.StateChanging {
		if err := early(OutcomeIgnored, hook.OrderID, nil, "informational event "+n.EventType); err != nil {
			return nil, err
		}
		return result, nil
	}

	if !verified {
		s.log.LogUntrustedNotification(ctx, gw.Name(), n.EventType, remoteIP)
		if err := early(OutcomeUntrusted, hook.OrderID, nil, "signature verification failed"); err != nil {
			return nil, err
		}
		result.HTTPStatus = http.StatusUnauthorized
		return result, apperror.New(apperror.KindUntrustedNotification, "notification signature could not be verified")
	}

	pp, err := gw.FetchPayment(ctx, n.ProviderPaymentID)
	if err != nil {
		if errors.Is(err, ErrProviderPaymentNotFound) {
			if err := early(OutcomePaymentNotFound, hook.OrderID, nil, "provider does not know payment "+n.ProviderPaymentID); err != nil {
				return nil, err
			}
			return result, nil
		}
		if logErr := early(OutcomeProviderError, hook.OrderID, nil, err.Error()); logErr != nil {
			return nil, logErr
		}
		result.HTTPStatus = http.StatusBadGateway
		return result, apperror.Wrap(apperror.KindUpstream, "failed to fetch payment from provider", err)
	}

	mapping, ok := gw.MapStatus(pp.Status)
	if !ok {
		if err := early(OutcomeUnmapped, hook.OrderID, pp, "unmapped provider status "+pp.Status); err != nil {
			return nil, err
		}
		return result, nil
	}

	orderID, found, err := s.resolveOrder(ctx, gw.Name(), n, pp)
	if err != nil {
		return nil, err
	}
	if !found {
		if err := early(OutcomeOrderNotFound, nil, pp, "no order for provider payment "+pp.ID); err != nil {
			return nil, err
		}
		return result, nil
	}

	res, err := s.repo.ApplySettlement(ctx, SettlementInput{
		WebhookLogID:   hook.ID,
		Gateway:        gw.Name(),
		OrderID:        orderID,
		Provider:       *pp,
		Mapping:        mapping,
		DefaultFeePlan: s.feePlan,
		Now:            now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply settlement: %w", err)
	}

	result.Outcome = res.Outcome
	result.OrderID = orderID.String()
	s.afterCommit(ctx, gw.Name(), pp.ID, res, now)
	return result, nil
}

// resolveOrder prefers the order already bound to the provider transaction,
// then the provider's external reference, then the payload's.
func (s *service) resolveOrder(ctx context.Context, gateway string, n *Notification, pp *ProviderPayment) (uuid.UUID, bool, error) {
	if pp.ID != "" {
		order, err := s.orderRepo.GetByGatewayTransaction(ctx, gateway, pp.ID)
		if err == nil {
			return order.ID, true, nil
		}
		if !errors.Is(err, orders.ErrOrderNotFound) {
			return uuid.Nil, false, fmt.Errorf("failed to resolve order: %w", err)
		}
	}
	for _, ref := range []string{pp.ExternalReference, n.ExternalReference} {
		if id, err := uuid.Parse(ref); err == nil {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

// afterCommit runs the side effects that must never roll a settlement back.
func (s *service) afterCommit(ctx context.Context, gateway, providerPaymentID string, res *SettlementResult, now time.Time) {
	fields := map[string]interface{}{"order_id": res.OrderID.String()}

	switch res.Outcome {
	case OutcomePaid:
		s.release(ctx, res.OrderID)
		if s.queue != nil {
			if err := s.queue.Enqueue(ctx, res.OrderID); err != nil {
				// reconciliation re-enqueues unfulfilled paid orders
				s.log.ErrorWithContext(ctx, "failed to enqueue fulfillment", err, fields)
			}
		}
	case OutcomeCancelled, OutcomeOversold:
		s.release(ctx, res.OrderID)
	case OutcomePending:
		extended, err := s.ledger.Extend(ctx, res.OrderID)
		if err != nil {
			s.log.ErrorWithContext(ctx, "failed to extend hold", err, fields)
		} else if extended {
			until := now.Add(s.ledger.HoldTTL())
			if err := s.orderRepo.UpdateReservedUntil(ctx, res.OrderID, until); err != nil {
				s.log.ErrorWithContext(ctx, "failed to record hold extension", err, fields)
			}
		}
	case OutcomeDuplicate:
		s.log.LogDuplicateNotification(ctx, gateway, providerPaymentID, res.OrderID.String())
	case OutcomeAmountMismatch:
		s.log.ErrorWithContext(ctx, "provider amount does not match order", errors.New(res.Detail), fields)
	}

	s.log.LogSettlement(ctx, gateway, res.OrderID.String(), string(res.PaymentStatusAfter), string(res.OrderStatusAfter), string(res.Outcome))
}

func (s *service) release(ctx context.Context, orderID uuid.UUID) {
	if _, err := s.ledger.Release(ctx, orderID); err != nil {
		// the hold lapses on its own
		s.log.ErrorWithContext(ctx, "failed to release hold", err, map[string]interface{}{"order_id": orderID.String()})
	}
}
