package vod

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"sync"
)

// analysisSemaphore limits concurrent analyses globally: the background job
// and manual API triggers share the same slots. Initialized once from
// MAX_CONCURRENT_ANALYSES (default: 1 for serial processing).
var (
	analysisSemaphore     chan struct{}
	analysisSemaphoreOnce sync.Once
)

func initAnalysisSemaphore() {
	analysisSemaphoreOnce.Do(func() {
		maxConcurrent := 1
		if s := os.Getenv("MAX_CONCURRENT_ANALYSES"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				maxConcurrent = n
			}
		}
		analysisSemaphore = make(chan struct{}, maxConcurrent)
		slog.Info("analysis concurrency limit initialized", slog.Int("max_concurrent", maxConcurrent))
	})
}

// acquireAnalysisSlot blocks until an analysis slot is available or the
// context is canceled. Returns true if a slot was acquired.
func acquireAnalysisSlot(ctx context.Context) bool {
	initAnalysisSemaphore()
	select {
	case analysisSemaphore <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func releaseAnalysisSlot() {
	<-analysisSemaphore
}
