package checkout

import (
	"net/http"

	"boxoffice/internal/shared/apperror"
	"boxoffice/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller interface {
	CreateSession(c *gin.Context)
	GetOrder(c *gin.Context)
	StartPayment(c *gin.Context)
	CancelOrder(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

func parseOrderID(c *gin.Context) (uuid.UUID, bool) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid order ID", nil, err.Error())
		return uuid.Nil, false
	}
	return orderID, true
}

// toSessionInput converts the bound request; binding already validated the
// UUID fields.
func toSessionInput(req CreateSessionRequest) (SessionInput, error) {
	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		return SessionInput{}, apperror.New(apperror.KindValidation, "invalid event_id")
	}
	in := SessionInput{EventID: eventID, Buyer: req.Buyer, Items: make([]LineItem, 0, len(req.Items))}
	for _, item := range req.Items {
		ttID, err := uuid.Parse(item.TicketTypeID)
		if err != nil {
			return SessionInput{}, apperror.New(apperror.KindValidation, "invalid ticket_type_id")
		}
		in.Items = append(in.Items, LineItem{TicketTypeID: ttID, Quantity: item.Quantity})
	}
	return in, nil
}

// CreateSession godoc
// @Summary Create a checkout session
// @Description Creates a PENDING order and holds its tickets in the availability ledger
// @Tags checkout
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Idempotency key (16-255 chars)"
// @Param body body CreateSessionRequest true "Checkout request"
// @Success 201 {object} response.StandardApiResponse
// @Failure 409 {object} response.StandardApiResponse
// @Failure 422 {object} response.StandardApiResponse
// @Router /checkout/session [post]
func (ctrl *controller) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	in, err := toSessionInput(req)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	in.IPAddress = c.ClientIP()
	in.UserAgent = c.Request.UserAgent()

	session, err := ctrl.service.CreateCheckoutSession(c.Request.Context(), in)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Checkout session created", session, nil)
}

// GetOrder godoc
// @Summary Get order status
// @Tags checkout
// @Produce json
// @Param id path string true "Order ID"
// @Param email query string true "Buyer email"
// @Success 200 {object} response.StandardApiResponse
// @Failure 404 {object} response.StandardApiResponse
// @Router /checkout/orders/{id} [get]
func (ctrl *controller) GetOrder(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}
	email := c.Query("email")
	if email == "" {
		response.RespondJSON(c, "error", http.StatusBadRequest, "email query parameter is required", nil, nil)
		return
	}

	order, err := ctrl.service.GetOrder(c.Request.Context(), orderID, email)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Order retrieved", order, nil)
}

// StartPayment godoc
// @Summary Start paying an order
// @Description Opens a provider checkout and keeps the ticket hold alive while the buyer pays
// @Tags checkout
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param body body StartPaymentRequest true "Buyer email and gateway"
// @Success 200 {object} response.StandardApiResponse
// @Failure 409 {object} response.StandardApiResponse
// @Router /checkout/orders/{id}/payment [post]
func (ctrl *controller) StartPayment(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	var req StartPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	started, err := ctrl.service.StartPayment(c.Request.Context(), orderID, req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Payment started", started, nil)
}

// CancelOrder godoc
// @Summary Cancel a pending order
// @Tags checkout
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param body body CancelOrderRequest true "Buyer email"
// @Success 200 {object} response.StandardApiResponse
// @Router /checkout/orders/{id}/cancel [post]
func (ctrl *controller) CancelOrder(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	var req CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	order, err := ctrl.service.CancelOrder(c.Request.Context(), orderID, req.Email)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Order cancelled", order, nil)
}
