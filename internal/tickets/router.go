package tickets

import (
	"boxoffice/internal/shared/middleware"
	"boxoffice/internal/users"

	"github.com/gin-gonic/gin"
)

func SetupTicketRoutes(router *gin.RouterGroup, controller Controller) {
	// Buyers fetch their tickets with the order id and the purchase email
	router.GET("/tickets/orders/:orderId", controller.GetOrderTickets) // GET /api/v1/tickets/orders/:orderId?email=

	staff := router.Group("/staff/tickets")
	staff.Use(middleware.JWTAuth(), middleware.RequireRoles(string(users.RoleStaff), string(users.RoleAdmin)))
	{
		staff.POST("/check-in", controller.CheckIn) // POST /api/v1/staff/tickets/check-in
	}

	// Organizers follow the door count of their own events
	attendance := router.Group("/staff/tickets/event")
	attendance.Use(middleware.JWTAuth(), middleware.RequireRoles(string(users.RoleStaff), string(users.RoleAdmin), string(users.RoleOrganizer)))
	{
		attendance.GET("/:eventId/attendance", controller.GetEventAttendance) // GET /api/v1/staff/tickets/event/:eventId/attendance
	}
}
