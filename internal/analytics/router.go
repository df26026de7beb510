package analytics

import (
	"boxoffice/internal/shared/middleware"
	"boxoffice/internal/users"

	"github.com/gin-gonic/gin"
)

func SetupAnalyticsRoutes(rg *gin.RouterGroup, controller Controller) {
	// Setup admin routes (protected)
	setupAdminRoutes(rg, controller)

	// Setup organizer routes (protected)
	setupOrganizerRoutes(rg, controller)
}

func setupAdminRoutes(rg *gin.RouterGroup, controller Controller) {
	admin := rg.Group("/admin")
	admin.Use(middleware.JWTAuth(), middleware.RequireRoles(string(users.RoleAdmin)))

	admin.GET("/metrics", controller.GetPlatformMetrics)

	organizers := admin.Group("/organizers")
	{
		organizers.GET("", controller.ListOrganizers)                // ?status=PENDING&limit=50
		organizers.POST("/:id/approve", controller.ApproveOrganizer) // PENDING or SUSPENDED -> ACTIVE
		organizers.POST("/:id/suspend", controller.SuspendOrganizer)
		organizers.POST("/:id/fee-plan", controller.AssignFeePlan)
	}

	orders := admin.Group("/orders")
	{
		orders.GET("/:id", controller.GetOrderDetails)
		orders.POST("/:id/resend-tickets", controller.ResendTickets)
	}
}

func setupOrganizerRoutes(rg *gin.RouterGroup, controller Controller) {
	organizer := rg.Group("/organizer")
	organizer.Use(middleware.JWTAuth())

	// The caller's own dashboard
	own := organizer.Group("")
	own.Use(middleware.RequireRoles(string(users.RoleOrganizer)))
	{
		own.GET("/dashboard", controller.GetOrganizerDashboard)
		own.GET("/complimentary/stats", controller.GetComplimentaryUsage)
	}

	// Per-event views; admins may open any event
	events := organizer.Group("/events")
	events.Use(middleware.RequireRoles(string(users.RoleOrganizer), string(users.RoleAdmin)))
	{
		events.GET("/:id/metrics", controller.GetEventMetrics)
		events.GET("/:id/orders", controller.ListEventOrders)
		events.POST("/:id/complimentary", controller.IssueComplimentary)
	}
}
