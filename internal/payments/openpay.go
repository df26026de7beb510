package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"boxoffice/internal/orders"
	"boxoffice/internal/shared/apperror"
	"boxoffice/internal/shared/config"
	"boxoffice/internal/shared/money"
)

// openPayStatuses maps OpenPay charge statuses. Anything else is a no-op.
var openPayStatuses = map[string]StatusMapping{
	"completed":           {Status: orders.PaymentCompleted},
	"in_progress":         {Status: orders.PaymentPending},
	"charge_pending":      {Status: orders.PaymentPending},
	"failed":              {Status: orders.PaymentFailed},
	"cancelled":           {Status: orders.PaymentFailed},
	"refunded":            {Status: orders.PaymentFailed, Reversal: true},
	"chargeback_accepted": {Status: orders.PaymentFailed, Reversal: true},
}

// openPayStateChanging lists the webhook types that can move an order.
var openPayStateChanging = map[string]bool{
	"charge.succeeded":    true,
	"charge.failed":       true,
	"charge.cancelled":    true,
	"charge.refunded":     true,
	"charge.created":      true,
	"chargeback.accepted": true,
}

type openPay struct {
	cfg    config.OpenPayConfig
	urls   config.PaymentsConfig
	client *providerClient
}

func NewOpenPay(cfg config.PaymentsConfig) Gateway {
	op := cfg.OpenPay
	client := newProviderClient(op.BaseURL, cfg.HTTPTimeout, func(req *http.Request) {
		req.SetBasicAuth(op.PrivateKey, "")
	})
	return &openPay{
		cfg:    op,
		urls:   cfg,
		client: client,
	}
}

func (g *openPay) Name() string {
	return GatewayOpenPay
}

type openPayWebhook struct {
	Type        string `json:"type"`
	Transaction struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		OrderID string `json:"order_id"`
	} `json:"transaction"`
}

func (g *openPay) Parse(req WebhookRequest) (*Notification, error) {
	var body openPayWebhook
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, "malformed openpay notification", err)
	}
	if body.Type == "" {
		return nil, apperror.New(apperror.KindValidation, "openpay notification without type")
	}

	stateChanging := openPayStateChanging[body.Type]
	if stateChanging && body.Transaction.ID == "" {
		return nil, apperror.New(apperror.KindValidation, "openpay notification without transaction id")
	}

	return &Notification{
		EventType:         body.Type,
		ProviderPaymentID: body.Transaction.ID,
		ExternalReference: body.Transaction.OrderID,
		StateChanging:     stateChanging,
		Signature:         req.Headers.Get("x-openpay-signature"),
	}, nil
}

// Verify checks the hex HMAC-SHA256 of the raw body.
func (g *openPay) Verify(req WebhookRequest, n *Notification) bool {
	if g.cfg.WebhookSecret == "" {
		return false
	}
	sig := req.Headers.Get("x-openpay-signature")
	if sig == "" {
		return false
	}
	return equalHex(signHex(g.cfg.WebhookSecret, string(req.Body)), sig)
}

type openPayCharge struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	OrderID  string  `json:"order_id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

func (g *openPay) FetchPayment(ctx context.Context, providerPaymentID string) (*ProviderPayment, error) {
	var c openPayCharge
	path := fmt.Sprintf("/v1/%s/charges/%s", url.PathEscape(g.cfg.MerchantID), url.PathEscape(providerPaymentID))
	if err := g.client.do(ctx, http.MethodGet, path, nil, &c); err != nil {
		return nil, err
	}
	currency := money.NormalizeCurrency(c.Currency)
	return &ProviderPayment{
		ID:                c.ID,
		Status:            c.Status,
		ExternalReference: c.OrderID,
		Amount:            money.FromMajor(c.Amount, currency),
		Currency:          currency,
	}, nil
}

func (g *openPay) MapStatus(providerStatus string) (StatusMapping, bool) {
	return lookupStatus(openPayStatuses, providerStatus)
}

type openPayCheckout struct {
	Amount         float64           `json:"amount"`
	Currency       string            `json:"currency"`
	Description    string            `json:"description"`
	OrderID        string            `json:"order_id"`
	Customer       map[string]string `json:"customer"`
	SendEmail      bool              `json:"send_email"`
	RedirectURL    string            `json:"redirect_url,omitempty"`
	ExpirationDate string            `json:"expiration_date"`
}

func (g *openPay) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	body := openPayCheckout{
		Amount:         money.ToMajor(req.Total, req.Currency),
		Currency:       req.Currency,
		Description:    req.Title,
		OrderID:        req.OrderID.String(),
		Customer:       map[string]string{"name": req.BuyerName, "email": req.BuyerEmail},
		RedirectURL:    g.urls.SuccessURL,
		ExpirationDate: req.ExpiresAt.UTC().Format("2006-01-02 15:04"),
	}

	var out struct {
		ID           string `json:"id"`
		CheckoutLink string `json:"checkout_link"`
	}
	path := fmt.Sprintf("/v1/%s/checkouts", url.PathEscape(g.cfg.MerchantID))
	if err := g.client.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, apperror.New(apperror.KindUpstream, fmt.Sprintf("openpay returned no checkout for order %s", req.OrderID))
	}
	return &Preference{ID: out.ID, CheckoutURL: out.CheckoutLink}, nil
}
