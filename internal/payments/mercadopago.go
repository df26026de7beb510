package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"boxoffice/internal/orders"
	"boxoffice/internal/shared/apperror"
	"boxoffice/internal/shared/config"
	"boxoffice/internal/shared/money"
)

// mercadoPagoStatuses maps MercadoPago payment statuses. Anything else is a no-op.
var mercadoPagoStatuses = map[string]StatusMapping{
	"approved":     {Status: orders.PaymentCompleted},
	"pending":      {Status: orders.PaymentPending},
	"in_process":   {Status: orders.PaymentPending},
	"authorized":   {Status: orders.PaymentPending},
	"rejected":     {Status: orders.PaymentFailed},
	"cancelled":    {Status: orders.PaymentFailed},
	"refunded":     {Status: orders.PaymentFailed, Reversal: true},
	"charged_back": {Status: orders.PaymentFailed, Reversal: true},
}

type mercadoPago struct {
	cfg    config.MercadoPagoConfig
	urls   config.PaymentsConfig
	client *providerClient
}

func NewMercadoPago(cfg config.PaymentsConfig) Gateway {
	mp := cfg.MercadoPago
	client := newProviderClient(mp.BaseURL, cfg.HTTPTimeout, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+mp.AccessToken)
	})
	return &mercadoPago{
		cfg:    mp,
		urls:   cfg,
		client: client,
	}
}

func (g *mercadoPago) Name() string {
	return GatewayMercadoPago
}

type mercadoPagoWebhook struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

func rawID(raw json.RawMessage) string {
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}

func (g *mercadoPago) Parse(req WebhookRequest) (*Notification, error) {
	var body mercadoPagoWebhook
	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return nil, apperror.Wrap(apperror.KindValidation, "malformed mercadopago notification", err)
		}
	}

	topic := body.Type
	if topic == "" {
		topic = req.Query.Get("type")
	}
	if topic == "" {
		topic = req.Query.Get("topic")
	}

	id := req.Query.Get("data.id")
	if id == "" {
		id = rawID(body.Data.ID)
	}
	if id == "" {
		id = req.Query.Get("id")
	}
	if id == "" {
		return nil, apperror.New(apperror.KindValidation, "mercadopago notification without data id")
	}

	eventType := body.Action
	if eventType == "" {
		eventType = topic
	}

	return &Notification{
		EventType:         eventType,
		ProviderPaymentID: id,
		StateChanging:     topic == "payment",
		Signature:         req.Headers.Get("x-signature"),
	}, nil
}

// parseSignatureHeader splits "ts=<ts>,v1=<hash>".
func parseSignatureHeader(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.TrimSpace(kv[0]) {
		case "ts":
			ts = strings.TrimSpace(kv[1])
		case "v1":
			v1 = strings.TrimSpace(kv[1])
		}
	}
	return ts, v1
}

// mercadoPagoManifest builds "id:<data.id>;request-id:<x-request-id>;ts:<ts>;",
// leaving out parts that are absent from the request.
func mercadoPagoManifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	b.WriteString("ts:" + ts + ";")
	return b.String()
}

func signHex(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func equalHex(expected, got string) bool {
	a, err := hex.DecodeString(expected)
	if err != nil {
		return false
	}
	b, err := hex.DecodeString(strings.ToLower(got))
	if err != nil {
		return false
	}
	return hmac.Equal(a, b)
}

func (g *mercadoPago) Verify(req WebhookRequest, n *Notification) bool {
	if g.cfg.WebhookSecret == "" || n == nil {
		return false
	}
	ts, v1 := parseSignatureHeader(req.Headers.Get("x-signature"))
	if ts == "" || v1 == "" {
		return false
	}
	manifest := mercadoPagoManifest(n.ProviderPaymentID, req.Headers.Get("x-request-id"), ts)
	return equalHex(signHex(g.cfg.WebhookSecret, manifest), v1)
}

type mercadoPagoPayment struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	ExternalReference string      `json:"external_reference"`
	TransactionAmount float64     `json:"transaction_amount"`
	CurrencyID        string      `json:"currency_id"`
}

func (g *mercadoPago) FetchPayment(ctx context.Context, providerPaymentID string) (*ProviderPayment, error) {
	var p mercadoPagoPayment
	if err := g.client.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(providerPaymentID), nil, &p); err != nil {
		return nil, err
	}
	currency := money.NormalizeCurrency(p.CurrencyID)
	return &ProviderPayment{
		ID:                p.ID.String(),
		Status:            p.Status,
		ExternalReference: p.ExternalReference,
		Amount:            money.FromMajor(p.TransactionAmount, currency),
		Currency:          currency,
	}, nil
}

func (g *mercadoPago) MapStatus(providerStatus string) (StatusMapping, bool) {
	return lookupStatus(mercadoPagoStatuses, providerStatus)
}

type mercadoPagoPreferenceItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type mercadoPagoPreference struct {
	Items             []mercadoPagoPreferenceItem `json:"items"`
	Payer             map[string]string           `json:"payer"`
	ExternalReference string                      `json:"external_reference"`
	NotificationURL   string                      `json:"notification_url,omitempty"`
	BackURLs          map[string]string           `json:"back_urls,omitempty"`
	Expires           bool                        `json:"expires"`
	ExpirationDateTo  string                      `json:"expiration_date_to"`
}

func (g *mercadoPago) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	body := mercadoPagoPreference{
		Payer:             map[string]string{"email": req.BuyerEmail, "name": req.BuyerName},
		ExternalReference: req.OrderID.String(),
		Expires:           true,
		ExpirationDateTo:  req.ExpiresAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if g.urls.NotificationURL != "" {
		body.NotificationURL = g.urls.NotificationURL + "/" + GatewayMercadoPago
	}
	if g.urls.SuccessURL != "" || g.urls.FailureURL != "" {
		body.BackURLs = map[string]string{
			"success": g.urls.SuccessURL,
			"failure": g.urls.FailureURL,
			"pending": g.urls.SuccessURL,
		}
	}
	for _, item := range req.Items {
		body.Items = append(body.Items, mercadoPagoPreferenceItem{
			ID:         item.ID,
			Title:      item.Title,
			Quantity:   item.Quantity,
			UnitPrice:  money.ToMajor(item.UnitPrice, req.Currency),
			CurrencyID: req.Currency,
		})
	}

	var out struct {
		ID        string `json:"id"`
		InitPoint string `json:"init_point"`
	}
	if err := g.client.do(ctx, http.MethodPost, "/checkout/preferences", body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, apperror.New(apperror.KindUpstream, fmt.Sprintf("mercadopago returned no preference for order %s", req.OrderID))
	}
	return &Preference{ID: out.ID, CheckoutURL: out.InitPoint}, nil
}
