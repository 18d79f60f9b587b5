package billing

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the authenticated billing surface.
func RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/billing")
	{
		group.GET("/packages", ListPackages)
	}
}

// RegisterWebhookRoutes mounts the provider callback. It is unauthenticated;
// the HMAC signature is the authentication.
func RegisterWebhookRoutes(router *gin.RouterGroup) {
	router.POST("/billing/webhook", PaymentWebhook)
}
