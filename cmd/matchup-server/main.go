// Package main provides the match-up API HTTP server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/bightlab/matchup/internal/adapter/store/manifest"
	httpHandler "github.com/bightlab/matchup/internal/http"
)

const version = "0.1.0"

func main() {
	// Parse command-line flags.
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("matchup-server version %s\n", version)
		return
	}

	// Load configuration from environment.
	port := getEnv("PORT", "8080")
	artifactDir := getEnv("ARTIFACT_DIR", ".")
	manifestDB := getEnv("MANIFEST_DB", filepath.Join(artifactDir, "manifest.db"))

	log.Printf("Starting match-up API server...")
	log.Printf("Port: %s", port)
	log.Printf("Artifact directory: %s", artifactDir)
	log.Printf("Manifest database: %s", manifestDB)

	// Open the manifest store.
	man, err := manifest.Open(manifestDB)
	if err != nil {
		log.Fatalf("Failed to open manifest: %v", err)
	}
	defer man.Close()

	// Setup router.
	router := httpHandler.SetupRouter(artifactDir, man)

	// Start server.
	addr := fmt.Sprintf(":%s", port)
	log.Printf("Server listening on %s", addr)
	log.Printf("Health check: http://localhost:%s/health", port)
	log.Printf("API endpoints:")
	log.Printf("  - GET /v1/matches")
	log.Printf("  - GET /v1/zones/summary")
	log.Printf("  - GET /v1/runs")
	log.Printf("  - GET /v1/field/at")

	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("Match-up API Server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  matchup-server [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  PORT                    Server port (default: 8080)")
	fmt.Println("  ARTIFACT_DIR            Pipeline artifact directory (default: .)")
	fmt.Println("  MANIFEST_DB             Manifest database path (default: <ARTIFACT_DIR>/manifest.db)")
	fmt.Println("  CORS_ALLOWED_ORIGINS    Comma-separated list of allowed origins (default: all origins)")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Serve artifacts from the current directory")
	fmt.Println("  matchup-server")
	fmt.Println()
	fmt.Println("  # Serve a dedicated artifact directory on a custom port")
	fmt.Println("  PORT=3000 ARTIFACT_DIR=/var/lib/matchup matchup-server")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET /health                Health check")
	fmt.Println("  GET /v1/matches            Match results (quality, cruise, station, limit, offset)")
	fmt.Println("  GET /v1/zones/summary      Depth-zone comparison table")
	fmt.Println("  GET /v1/runs               Pipeline run history")
	fmt.Println("  GET /v1/runs/:id/stages    Stage outcomes of one run")
	fmt.Println("  GET /v1/field/at           Sample the extracted field at a point")
	fmt.Println()
}
