package router

import (
	"github.com/cuongbtq/community-broadcast/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	h := handler.NewBroadcastHandler(deps)
	auth := BearerAuthMiddleware(deps.TriggerToken, deps.RequireAuth, deps.Logger)

	r.GET("/health", h.Health)

	v1 := r.Group("/api/v1")
	{
		broadcasts := v1.Group("/broadcasts")
		{
			broadcasts.POST("", h.CreateBroadcast)
			broadcasts.GET("", h.ListBroadcasts)
			broadcasts.GET("/:job_id", h.GetBroadcast)
			broadcasts.GET("/:job_id/progress", h.GetProgress)

			// scheduler entry point
			broadcasts.POST("/process", auth, h.ProcessQueued)
		}

		v1.POST("/messages", auth, h.SendMessage)
	}

	return r
}
