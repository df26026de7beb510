package payments

import (
	"errors"
	"io"
	"net/http"

	"boxoffice/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

type Controller interface {
	ReceiveWebhook(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

// ReceiveWebhook godoc
// @Summary Receive a payment provider notification
// @Description Always answers 200 once the delivery is recorded, except for
// @Description untrusted state-changing notifications (401) and provider lookup failures (502).
// @Tags webhooks
// @Accept json
// @Produce json
// @Param gateway path string true "Gateway" Enums(mercadopago, openpay)
// @Success 200 {object} response.StandardApiResponse
// @Failure 401 {object} response.StandardApiResponse
// @Failure 413 {object} response.StandardApiResponse
// @Failure 502 {object} response.StandardApiResponse
// @Router /webhooks/{gateway} [post]
func (ctrl *controller) ReceiveWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondJSON(c, "error", http.StatusRequestEntityTooLarge, "Notification body too large", nil, nil)
			return
		}
		response.RespondJSON(c, "error", http.StatusBadRequest, "Failed to read notification body", nil, err.Error())
		return
	}

	req := WebhookRequest{
		Body:    body,
		Headers: c.Request.Header,
		Query:   c.Request.URL.Query(),
	}

	result, err := ctrl.service.HandleNotification(c.Request.Context(), c.Param("gateway"), req, c.ClientIP())
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", result.HTTPStatus, "Notification received", result, nil)
}
