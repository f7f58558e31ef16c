package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pgr-report-service/config"
	"pgr-report-service/fetch"
	"pgr-report-service/handlers"
	"pgr-report-service/metrics"
	"pgr-report-service/pdfgen"
	"pgr-report-service/storage"
)

const (
	EndPointGenerateReport = "/generate-report"
	EndPointHealth         = "/health"
	EndPointMetrics        = "/metrics"
)

var serverPort = flag.Int("port", 8080, "The port used by the service.")

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warnf(".env file not found, using system environment variables")
	}
	cfg := config.Load()
	metrics.Register()

	ctx := context.Background()
	store, err := storage.NewClient(ctx)
	if err != nil {
		log.Fatalf("Failed to create the GCS client: %v", err)
	}
	defer store.Close()

	fetcher := fetch.New(store, cfg)
	gen := pdfgen.NewGenerator(fetcher, cfg)
	h := handlers.New(gen)

	log.Info("Starting the PGR report service...")
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowOrigins:     []string{"*"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.POST(EndPointGenerateReport, h.GenerateReport)
	router.GET(EndPointHealth, h.Health)
	router.GET(EndPointMetrics, gin.WrapH(promhttp.Handler()))

	router.Run(fmt.Sprintf(":%d", *serverPort))
	log.Info("Finished the service. Should not ever being seen.")
}
