package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/appforge/internal/api/handler"
	"github.com/timmy/appforge/internal/api/middleware"
	"github.com/timmy/appforge/internal/config"
	"github.com/timmy/appforge/internal/service"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(orchestrator *service.Orchestrator, cfg *config.ServerConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler()
	projectHandler := handler.NewProjectHandler(orchestrator)

	r.GET("/health", healthHandler.Health)

	// The submit/poll pair is the whole external contract: submission
	// returns immediately and clients poll until a terminal status.
	r.POST("/generateProject", projectHandler.GenerateProject)
	r.GET("/getDeploymentStatus", projectHandler.GetDeploymentStatus)

	return r
}
