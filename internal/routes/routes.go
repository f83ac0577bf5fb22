package routes

import (
	"github.com/gin-gonic/gin"

	"resolvebot/internal/handlers"
)

func SetupRoutes(
	r *gin.Engine,
	healthHandler *handlers.HealthHandler,
	taskHandler *handlers.TaskHandler,
) *gin.Engine {
	r.GET("/health", healthHandler.Health)

	tasks := r.Group("/tasks")
	{
		tasks.GET("/", taskHandler.List)
		tasks.GET("/:id", taskHandler.GetByID)
	}
	return r
}
