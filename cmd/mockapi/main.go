package main

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/internal/mockapi"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/logger"
)

var (
	port           int
	catalogPath    string
	minSimilarity  float64
	maxResults     int
	latency        time.Duration
	allowedOrigins string
	logRequests    bool
)

func init() {
	flag.IntVar(&port, "port", 4001, "HTTP server port")
	flag.StringVar(&catalogPath, "catalog", getEnvOrDefault("MOCKAPI_CATALOG", ""), "YAML catalog fixture (generated when empty)")
	flag.Float64Var(&minSimilarity, "min-similarity", 0.55, "Drop matches scoring below this")
	flag.IntVar(&maxResults, "max-results", 10, "Maximum matches per search")
	flag.DurationVar(&latency, "latency", 0, "Artificial delay before search responses")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
	flag.BoolVar(&logRequests, "log-requests", true, "Log every request")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()
	log := logger.GetLogger()

	catalog := mockapi.DefaultCatalog(6, 8)
	if catalogPath != "" {
		c, err := mockapi.LoadCatalog(catalogPath)
		if err != nil {
			log.Fatalf("Failed to load catalog: %v", err)
		}
		catalog = c
	}

	var origins []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		origins = append(origins, strings.TrimSpace(o))
	}

	cfg := mockapi.DefaultConfig()
	cfg.Port = port
	cfg.AllowedOrigins = origins
	cfg.MinSimilarity = minSimilarity
	cfg.MaxResults = maxResults
	cfg.Latency = latency
	cfg.LogRequests = logRequests

	server := mockapi.NewServer(catalog, cfg, log.Named("mockapi"))
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
