package analytics

import (
	"net/http"
	"strconv"

	"boxoffice/internal/events"
	"boxoffice/internal/shared/apperror"
	"boxoffice/internal/shared/middleware"
	"boxoffice/internal/shared/utils/response"
	"boxoffice/internal/users"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Controller defines the dashboard controller interface
type Controller interface {
	// Admin
	GetPlatformMetrics(c *gin.Context)
	ListOrganizers(c *gin.Context)
	ApproveOrganizer(c *gin.Context)
	SuspendOrganizer(c *gin.Context)
	AssignFeePlan(c *gin.Context)
	GetOrderDetails(c *gin.Context)
	ResendTickets(c *gin.Context)

	// Organizer
	GetOrganizerDashboard(c *gin.Context)
	GetEventMetrics(c *gin.Context)
	ListEventOrders(c *gin.Context)
	GetComplimentaryUsage(c *gin.Context)
	IssueComplimentary(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

func actorFromContext(c *gin.Context) (events.Actor, bool) {
	id, err := uuid.Parse(c.GetString(middleware.ContextUserID))
	if err != nil {
		return events.Actor{}, false
	}
	return events.Actor{ID: id, Role: users.Role(c.GetString(middleware.ContextUserRole))}, true
}

func parseID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid "+what+" ID", nil, err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		return 0
	}
	return limit
}

// Admin Implementation

// GetPlatformMetrics godoc
// @Summary Platform-wide organizer, event, order and revenue counts
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.StandardApiResponse{data=PlatformMetrics}
// @Router /admin/metrics [get]
func (ctrl *controller) GetPlatformMetrics(c *gin.Context) {
	metrics, err := ctrl.service.GetPlatformMetrics(c.Request.Context())
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Platform metrics retrieved successfully", metrics, nil)
}

// ListOrganizers godoc
// @Summary List organizers
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param status query string false "PENDING, ACTIVE or SUSPENDED"
// @Param limit query int false "Page size (default 50, max 200)"
// @Success 200 {object} response.StandardApiResponse{data=[]OrganizerSummary}
// @Router /admin/organizers [get]
func (ctrl *controller) ListOrganizers(c *gin.Context) {
	list, err := ctrl.service.ListOrganizers(c.Request.Context(), c.Query("status"), queryLimit(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Organizers retrieved successfully", list, nil)
}

// ApproveOrganizer godoc
// @Summary Activate an organizer account
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "Organizer ID"
// @Success 200 {object} response.StandardApiResponse{data=OrganizerSummary}
// @Failure 404 {object} response.StandardApiResponse
// @Router /admin/organizers/{id}/approve [post]
func (ctrl *controller) ApproveOrganizer(c *gin.Context) {
	id, ok := parseID(c, "organizer")
	if !ok {
		return
	}

	organizer, err := ctrl.service.ApproveOrganizer(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Organizer approved", organizer, nil)
}

// SuspendOrganizer godoc
// @Summary Suspend an organizer account
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "Organizer ID"
// @Success 200 {object} response.StandardApiResponse{data=OrganizerSummary}
// @Failure 404 {object} response.StandardApiResponse
// @Router /admin/organizers/{id}/suspend [post]
func (ctrl *controller) SuspendOrganizer(c *gin.Context) {
	id, ok := parseID(c, "organizer")
	if !ok {
		return
	}

	organizer, err := ctrl.service.SuspendOrganizer(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Organizer suspended", organizer, nil)
}

// AssignFeePlan godoc
// @Summary Set an organizer's fee plan
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Organizer ID"
// @Param body body AssignFeePlanRequest true "Fee plan"
// @Success 200 {object} response.StandardApiResponse{data=OrganizerSummary}
// @Failure 404 {object} response.StandardApiResponse
// @Router /admin/organizers/{id}/fee-plan [post]
func (ctrl *controller) AssignFeePlan(c *gin.Context) {
	id, ok := parseID(c, "organizer")
	if !ok {
		return
	}

	var req AssignFeePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	organizer, err := ctrl.service.AssignFeePlan(c.Request.Context(), id, req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Fee plan assigned", organizer, nil)
}

// GetOrderDetails godoc
// @Summary Full view of one order
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} response.StandardApiResponse{data=OrderDetails}
// @Failure 404 {object} response.StandardApiResponse
// @Router /admin/orders/{id} [get]
func (ctrl *controller) GetOrderDetails(c *gin.Context) {
	id, ok := parseID(c, "order")
	if !ok {
		return
	}

	details, err := ctrl.service.GetOrderDetails(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Order retrieved successfully", details, nil)
}

// ResendTickets godoc
// @Summary Send the order confirmation and tickets again
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "Order ID"
// @Success 202 {object} response.StandardApiResponse{data=ResendResponse}
// @Failure 409 {object} response.StandardApiResponse
// @Router /admin/orders/{id}/resend-tickets [post]
func (ctrl *controller) ResendTickets(c *gin.Context) {
	id, ok := parseID(c, "order")
	if !ok {
		return
	}

	result, err := ctrl.service.ResendTickets(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusAccepted, "Tickets queued for resend", result, nil)
}

// Organizer Implementation

// GetOrganizerDashboard godoc
// @Summary Summary of the caller's events, sales and complimentary allowance
// @Tags organizer
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.StandardApiResponse{data=OrganizerDashboard}
// @Router /organizer/dashboard [get]
func (ctrl *controller) GetOrganizerDashboard(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.RespondError(c, apperror.New(apperror.KindUnauthorized, "organizer not authenticated"))
		return
	}

	dashboard, err := ctrl.service.GetOrganizerDashboard(c.Request.Context(), actor.ID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Dashboard retrieved successfully", dashboard, nil)
}

// GetEventMetrics godoc
// @Summary Sales and attendance of one event
// @Tags organizer
// @Security BearerAuth
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.StandardApiResponse{data=EventMetrics}
// @Failure 403 {object} response.StandardApiResponse
// @Failure 404 {object} response.StandardApiResponse
// @Router /organizer/events/{id}/metrics [get]
func (ctrl *controller) GetEventMetrics(c *gin.Context) {
	eventID, ok := parseID(c, "event")
	if !ok {
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.RespondError(c, apperror.New(apperror.KindUnauthorized, "organizer not authenticated"))
		return
	}

	metrics, err := ctrl.service.GetEventMetrics(c.Request.Context(), actor, eventID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Event metrics retrieved successfully", metrics, nil)
}

// ListEventOrders godoc
// @Summary Most recent orders of one event
// @Tags organizer
// @Security BearerAuth
// @Produce json
// @Param id path string true "Event ID"
// @Param limit query int false "Page size (default 50, max 200)"
// @Success 200 {object} response.StandardApiResponse{data=[]OrderSummary}
// @Failure 403 {object} response.StandardApiResponse
// @Router /organizer/events/{id}/orders [get]
func (ctrl *controller) ListEventOrders(c *gin.Context) {
	eventID, ok := parseID(c, "event")
	if !ok {
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.RespondError(c, apperror.New(apperror.KindUnauthorized, "organizer not authenticated"))
		return
	}

	list, err := ctrl.service.ListEventOrders(c.Request.Context(), actor, eventID, queryLimit(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Orders retrieved successfully", list, nil)
}

// GetComplimentaryUsage godoc
// @Summary Complimentary allowance per event
// @Tags organizer
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.StandardApiResponse{data=ComplimentaryUsage}
// @Router /organizer/complimentary/stats [get]
func (ctrl *controller) GetComplimentaryUsage(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.RespondError(c, apperror.New(apperror.KindUnauthorized, "organizer not authenticated"))
		return
	}

	usage, err := ctrl.service.GetComplimentaryUsage(c.Request.Context(), actor.ID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Complimentary usage retrieved successfully", usage, nil)
}

// IssueComplimentary godoc
// @Summary Issue complimentary tickets
// @Tags organizer
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param body body ComplimentaryRequest true "Recipient and quantity"
// @Success 201 {object} response.StandardApiResponse{data=ComplimentaryResponse}
// @Failure 403 {object} response.StandardApiResponse
// @Failure 409 {object} response.StandardApiResponse
// @Router /organizer/events/{id}/complimentary [post]
func (ctrl *controller) IssueComplimentary(c *gin.Context) {
	eventID, ok := parseID(c, "event")
	if !ok {
		return
	}

	var req ComplimentaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	actor, ok := actorFromContext(c)
	if !ok {
		response.RespondError(c, apperror.New(apperror.KindUnauthorized, "organizer not authenticated"))
		return
	}

	result, err := ctrl.service.IssueComplimentary(c.Request.Context(), actor, eventID, req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Complimentary tickets issued", result, nil)
}
