package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/adapters/database"
	"github.com/rooftopsai/rooftopsgpt-sub003/internal/adapters/dispatch"
	httpAdapter "github.com/rooftopsai/rooftopsgpt-sub003/internal/adapters/http"
	"github.com/rooftopsai/rooftopsgpt-sub003/internal/adapters/weather"
	"github.com/rooftopsai/rooftopsgpt-sub003/internal/app"
	"github.com/rooftopsai/rooftopsgpt-sub003/internal/config"
	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()

	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	jobRepo := database.NewPostgresJobRepository(pool)
	sequenceRepo := database.NewPostgresSequenceRepository(pool)
	enrollmentRepo := database.NewPostgresEnrollmentRepository(pool)
	crmRepo := database.NewPostgresCRMRepository(pool)

	var channelDispatcher domain.ChannelDispatcher
	if cfg.SMSWebhookURL == "" && cfg.EmailWebhookURL == "" {
		log.Println("No provider webhooks configured, using log dispatcher")
		channelDispatcher = dispatch.NewLogDispatcher()
	} else {
		channelDispatcher = dispatch.NewWebhookDispatcher(cfg.SMSWebhookURL, cfg.EmailWebhookURL, cfg.VoiceWebhookURL, 0)
	}
	if cfg.DailySendCap > 0 {
		channelDispatcher = dispatch.NewRateLimitedDispatcher(channelDispatcher, redisClient, cfg.DailySendCap)
	}

	schedulerService := app.NewSchedulerService(jobRepo)
	enrollmentService := app.NewEnrollmentService(enrollmentRepo, sequenceRepo, jobRepo)
	sequenceService := app.NewSequenceService(sequenceRepo, enrollmentRepo, schedulerService)

	handlers := app.NewJobHandlers(app.JobHandlerDeps{
		Dispatcher:     channelDispatcher,
		Customers:      crmRepo,
		CRMJobs:        crmRepo,
		Workspaces:     crmRepo,
		Weather:        weather.NewOpenMeteoClient(cfg.WeatherBaseURL),
		Enrollments:    enrollmentService,
		EnrollmentRepo: enrollmentRepo,
		Sequences:      sequenceRepo,
		Jobs:           jobRepo,
		Scheduler:      schedulerService,
	})
	processorService := app.NewProcessorService(jobRepo, handlers, cfg.JobTimeout)

	handler := httpAdapter.NewHandler(sequenceService, enrollmentService, schedulerService, processorService, jobRepo, enrollmentRepo)

	router := gin.Default()
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Starting API server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
