package events

import (
	"boxoffice/internal/shared/middleware"
	"boxoffice/internal/users"

	"github.com/gin-gonic/gin"
)

func SetupEventRoutes(router *gin.RouterGroup, controller Controller) {
	// Public routes - anyone can browse published events
	publicEvents := router.Group("/events")
	{
		publicEvents.GET("", controller.GetAllEvents) // GET /api/v1/events - Browse published events
		publicEvents.GET("/:id", controller.GetEvent) // GET /api/v1/events/:id - Event details with availability
	}

	// Organizer routes - organizers manage their own events, admins any event
	organizerEvents := router.Group("/organizer/events")
	organizerEvents.Use(middleware.JWTAuth(), middleware.RequireRoles(string(users.RoleOrganizer), string(users.RoleAdmin)))
	{
		organizerEvents.POST("", controller.CreateEvent)                     // POST /api/v1/organizer/events
		organizerEvents.POST("/:id/ticket-types", controller.AddTicketType) // POST /api/v1/organizer/events/:id/ticket-types
		organizerEvents.POST("/:id/publish", controller.PublishEvent)       // POST /api/v1/organizer/events/:id/publish
		organizerEvents.POST("/:id/cancel", controller.CancelEvent)         // POST /api/v1/organizer/events/:id/cancel
	}
}
