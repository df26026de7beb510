package events

import (
	"net/http"

	"boxoffice/internal/shared/apperror"
	"boxoffice/internal/shared/utils/response"
	"boxoffice/internal/users"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller interface {
	CreateEvent(c *gin.Context)
	AddTicketType(c *gin.Context)
	PublishEvent(c *gin.Context)
	CancelEvent(c *gin.Context)
	GetEvent(c *gin.Context)
	GetAllEvents(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

// actorFromContext reads the caller set by the JWT middleware.
func actorFromContext(c *gin.Context) (Actor, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		return Actor{}, false
	}
	idStr, _ := userID.(string)
	id, err := uuid.Parse(idStr)
	if err != nil {
		return Actor{}, false
	}
	role, _ := c.Get("user_role")
	roleStr, _ := role.(string)
	return Actor{ID: id, Role: users.Role(roleStr)}, true
}

func parseEventID(c *gin.Context) (uuid.UUID, bool) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid event ID", nil, err.Error())
		return uuid.Nil, false
	}
	return eventID, true
}

// CreateEvent godoc
// @Summary Create an event
// @Tags organizer
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body CreateEventRequest true "Event"
// @Success 201 {object} response.StandardApiResponse
// @Router /organizer/events [post]
func (ctrl *controller) CreateEvent(c *gin.Context) {
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	actor, ok := actorFromContext(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "Organizer not authenticated", nil, nil)
		return
	}

	event, err := ctrl.service.CreateEvent(c.Request.Context(), actor.ID, req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Event created successfully", event, nil)
}

// AddTicketType godoc
// @Summary Add a ticket type to an event
// @Tags organizer
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param body body CreateTicketTypeRequest true "Ticket type"
// @Success 201 {object} response.StandardApiResponse
// @Router /organizer/events/{id}/ticket-types [post]
func (ctrl *controller) AddTicketType(c *gin.Context) {
	eventID, ok := parseEventID(c)
	if !ok {
		return
	}

	var req CreateTicketTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	actor, ok := actorFromContext(c)
	if !ok {
		response.RespondError(c, apperror.New(apperror.KindUnauthorized, "organizer not authenticated"))
		return
	}

	ticketType, err := ctrl.service.AddTicketType(c.Request.Context(), actor, eventID, req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Ticket type created successfully", ticketType, nil)
}

// PublishEvent godoc
// @Summary Publish an event
// @Tags organizer
// @Security BearerAuth
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.StandardApiResponse
// @Router /organizer/events/{id}/publish [post]
func (ctrl *controller) PublishEvent(c *gin.Context) {
	eventID, ok := parseEventID(c)
	if !ok {
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.RespondError(c, apperror.New(apperror.KindUnauthorized, "organizer not authenticated"))
		return
	}

	event, err := ctrl.service.PublishEvent(c.Request.Context(), actor, eventID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Event published", event, nil)
}

// CancelEvent godoc
// @Summary Cancel an event
// @Tags organizer
// @Security BearerAuth
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.StandardApiResponse
// @Router /organizer/events/{id}/cancel [post]
func (ctrl *controller) CancelEvent(c *gin.Context) {
	eventID, ok := parseEventID(c)
	if !ok {
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.RespondError(c, apperror.New(apperror.KindUnauthorized, "organizer not authenticated"))
		return
	}

	event, err := ctrl.service.CancelEvent(c.Request.Context(), actor, eventID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Event cancelled", event, nil)
}

// GetEvent godoc
// @Summary Get event details with live availability
// @Tags events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.StandardApiResponse
// @Router /events/{id} [get]
func (ctrl *controller) GetEvent(c *gin.Context) {
	eventID, ok := parseEventID(c)
	if !ok {
		return
	}

	event, err := ctrl.service.GetEvent(c.Request.Context(), eventID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Event retrieved successfully", event, nil)
}

// GetAllEvents godoc
// @Summary List published events
// @Tags events
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param search query string false "Name or venue"
// @Success 200 {object} response.StandardApiResponse
// @Router /events [get]
func (ctrl *controller) GetAllEvents(c *gin.Context) {
	var query EventListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid query parameters", nil, err.Error())
		return
	}

	result, err := ctrl.service.ListEvents(c.Request.Context(), query)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Events retrieved successfully", result, nil)
}
