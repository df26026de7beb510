package checkout

import (
	"github.com/gin-gonic/gin"
)

// SetupCheckoutRoutes mounts the buyer-facing checkout endpoints. sessionGuards
// run before session creation only (idempotency, rate limiting).
func SetupCheckoutRoutes(router *gin.RouterGroup, controller Controller, sessionGuards ...gin.HandlerFunc) {
	checkoutGroup := router.Group("/checkout")
	{
		session := append(append([]gin.HandlerFunc{}, sessionGuards...), controller.CreateSession)
		checkoutGroup.POST("/session", session...) // POST /api/v1/checkout/session

		checkoutGroup.GET("/orders/:id", controller.GetOrder)              // GET /api/v1/checkout/orders/:id
		checkoutGroup.POST("/orders/:id/payment", controller.StartPayment) // POST /api/v1/checkout/orders/:id/payment
		checkoutGroup.POST("/orders/:id/cancel", controller.CancelOrder)   // POST /api/v1/checkout/orders/:id/cancel
	}
}
