package payments

import "github.com/gin-gonic/gin"

// SetupWebhookRoutes mounts the provider callbacks. They carry no JWT;
// each gateway verifies its own signature.
func SetupWebhookRoutes(router *gin.RouterGroup, controller Controller) {
	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/:gateway", controller.ReceiveWebhook) // POST /api/v1/webhooks/:gateway
	}
}
