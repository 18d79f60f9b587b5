package analysis

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/analysis")
	{
		group.POST("", Analyze)
		group.GET("/usage", UsageHistory)
	}
}
