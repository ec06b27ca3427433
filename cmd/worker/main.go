package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/adapters/database"
	"github.com/rooftopsai/rooftopsgpt-sub003/internal/adapters/dispatch"
	"github.com/rooftopsai/rooftopsgpt-sub003/internal/adapters/weather"
	"github.com/rooftopsai/rooftopsgpt-sub003/internal/app"
	"github.com/rooftopsai/rooftopsgpt-sub003/internal/config"
	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

func main() {
	log.Println("Workflow worker starting...")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
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
	runner := app.NewProcessorRunner(processorService, cfg.ProcessInterval, cfg.BatchSize)

	log.Println("Worker started successfully")
	if err := runner.Start(ctx); err != nil {
		log.Printf("Worker error: %v", err)
	}

	log.Println("Worker stopped")
}
