package http

import (
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/bightlab/matchup/internal/adapter/store/manifest"
)

// SetupRouter creates and configures the Gin router.
func SetupRouter(artifactDir string, man *manifest.Store) *gin.Engine {

	router := gin.Default()

	// Setup CORS middleware.
	corsConfig := cors.DefaultConfig()

	// Get allowed origins from environment variable.
	// Default to allow all origins if not specified.
	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowedOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(allowedOrigins, ",")
	} else {
		corsConfig.AllowAllOrigins = true
	}

	router.Use(cors.New(corsConfig))

	// Create handler.
	handler := NewHandler(artifactDir, man)

	// API v1 routes.
	v1 := router.Group("/v1")
	// Match results and zone comparisons.
	v1.GET("/matches", handler.GetMatches)
	v1.GET("/zones/summary", handler.GetZoneSummary)

	// Run history.
	v1.GET("/runs", handler.GetRuns)
	v1.GET("/runs/:id/stages", handler.GetRunStages)

	// Point sampling of the extracted field.
	v1.GET("/field/at", handler.GetFieldAt)

	// Health check.
	router.GET("/health", handler.HealthCheck)

	return router
}
