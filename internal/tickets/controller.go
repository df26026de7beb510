package tickets

import (
	"net/http"

	"boxoffice/internal/shared/apperror"
	"boxoffice/internal/shared/middleware"
	"boxoffice/internal/shared/utils/response"
	"boxoffice/internal/users"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller interface {
	GetOrderTickets(c *gin.Context)
	CheckIn(c *gin.Context)
	GetEventAttendance(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

// GetOrderTickets godoc
// @Summary List the tickets of a paid order
// @Tags tickets
// @Produce json
// @Param orderId path string true "Order ID"
// @Param email query string true "Buyer email"
// @Success 200 {object} response.StandardApiResponse
// @Router /tickets/orders/{orderId} [get]
func (ctrl *controller) GetOrderTickets(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("orderId"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid order ID", nil, err.Error())
		return
	}
	email := c.Query("email")
	if email == "" {
		response.RespondJSON(c, "error", http.StatusBadRequest, "email query parameter is required", nil, nil)
		return
	}

	tickets, err := ctrl.service.ListForBuyer(c.Request.Context(), orderID, email)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Tickets retrieved successfully", tickets, nil)
}

// CheckIn godoc
// @Summary Check a ticket in at the door
// @Tags staff
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body CheckInRequest true "Ticket code"
// @Success 200 {object} response.StandardApiResponse
// @Router /staff/tickets/check-in [post]
func (ctrl *controller) CheckIn(c *gin.Context) {
	var req CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	userID, _ := c.Get("user_id")
	idStr, _ := userID.(string)
	staffID, err := uuid.Parse(idStr)
	if err != nil {
		response.RespondError(c, apperror.New(apperror.KindUnauthorized, "staff not authenticated"))
		return
	}

	result, err := ctrl.service.CheckIn(c.Request.Context(), req.Code, staffID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Ticket checked in", result, nil)
}

// GetEventAttendance godoc
// @Summary Check-in progress of an event
// @Tags staff
// @Security BearerAuth
// @Produce json
// @Param eventId path string true "Event ID"
// @Success 200 {object} response.StandardApiResponse{data=AttendanceResponse}
// @Failure 403 {object} response.StandardApiResponse
// @Failure 404 {object} response.StandardApiResponse
// @Router /staff/tickets/event/{eventId}/attendance [get]
func (ctrl *controller) GetEventAttendance(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid event ID", nil, err.Error())
		return
	}
	userID, err := uuid.Parse(c.GetString(middleware.ContextUserID))
	if err != nil {
		response.RespondError(c, apperror.New(apperror.KindUnauthorized, "user not authenticated"))
		return
	}
	role := users.Role(c.GetString(middleware.ContextUserRole))

	attendance, err := ctrl.service.EventAttendance(c.Request.Context(), userID, role, eventID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Attendance retrieved successfully", attendance, nil)
}
