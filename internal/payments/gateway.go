package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"boxoffice/internal/orders"
	"boxoffice/internal/shared/apperror"

	"github.com/google/uuid"
)

const (
	GatewayMercadoPago = "mercadopago"
	GatewayOpenPay     = "openpay"
)

// ErrProviderPaymentNotFound means the provider does not know the payment id.
var ErrProviderPaymentNotFound = errors.New("provider payment not found")

// WebhookRequest is the raw inbound notification.
type WebhookRequest struct {
	Body    []byte
	Headers http.Header
	Query   url.Values
}

// Notification is what a gateway could read from a webhook before any
// authoritative lookup. Nothing in it is trusted for amounts or status.
type Notification struct {
	EventType         string
	ProviderPaymentID string
	// ExternalReference is the order id when the payload names one
	ExternalReference string
	StateChanging     bool
	Signature         string
}

// ProviderPayment is the provider's authoritative record of a payment.
type ProviderPayment struct {
	ID                string
	Status            string
	ExternalReference string
	Amount            int64
	Currency          string
}

// StatusMapping is one row of a provider status table.
type StatusMapping struct {
	Status   orders.PaymentStatus
	Reversal bool
}

type PreferenceItem struct {
	ID        string
	Title     string
	Quantity  int
	UnitPrice int64
}

// PreferenceRequest asks a provider to open a hosted payment for an order.
type PreferenceRequest struct {
	OrderID    uuid.UUID
	Title      string
	Items      []PreferenceItem
	Total      int64
	Currency   string
	BuyerEmail string
	BuyerName  string
	ExpiresAt  time.Time
}

type Preference struct {
	ID          string
	CheckoutURL string
}

type Gateway interface {
	Name() string
	Parse(req WebhookRequest) (*Notification, error)
	Verify(req WebhookRequest, n *Notification) bool
	FetchPayment(ctx context.Context, providerPaymentID string) (*ProviderPayment, error)
	MapStatus(providerStatus string) (StatusMapping, bool)
	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)
}

// lookupStatus reads a status table with an explicit unmapped default.
func lookupStatus(table map[string]StatusMapping, providerStatus string) (StatusMapping, bool) {
	m, ok := table[providerStatus]
	return m, ok
}

// Registry resolves gateways by name.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, gw := range gateways {
		r.gateways[gw.Name()] = gw
	}
	return r
}

func (r *Registry) Get(name string) (Gateway, error) {
	gw, ok := r.gateways[name]
	if !ok {
		return nil, apperror.New(apperror.KindNotFound, fmt.Sprintf("unknown payment gateway %q", name))
	}
	return gw, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) CreatePreference(ctx context.Context, gateway string, req PreferenceRequest) (*Preference, error) {
	gw, err := r.Get(gateway)
	if err != nil {
		return nil, apperror.New(apperror.KindValidation, err.Error())
	}
	return gw.CreatePreference(ctx, req)
}
