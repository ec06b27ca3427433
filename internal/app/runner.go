package app

import (
	"context"
	"log"
	"time"
)

// ProcessorRunner drives the processor on a timer. It is one of the
// "periodic external triggers": the HTTP trigger endpoint may fire the
// same batch path concurrently, which is safe because claiming is
// atomic.
type ProcessorRunner struct {
	processor *ProcessorService
	interval  time.Duration
	batchSize int
}

func NewProcessorRunner(processor *ProcessorService, interval time.Duration, batchSize int) *ProcessorRunner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ProcessorRunner{processor: processor, interval: interval, batchSize: batchSize}
}

func (r *ProcessorRunner) Start(ctx context.Context) error {
	log.Printf("Starting job processor (interval=%s batch=%d)...", r.interval, r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Job processor shutting down...")
			return nil
		case <-ticker.C:
			if _, err := r.processor.ProcessPendingJobs(ctx, r.batchSize); err != nil {
				log.Printf("Error processing pending jobs: %v", err)
			}
		}
	}
}
