// threadpark demonstrates out-of-band suspend and resume of worker threads:
// it starts a pool of counting workers, suspends the first half while the
// second half keeps running, resumes them, then repeats with the second
// half.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"threadpark/internal/collectors/suspendstate"
	"threadpark/internal/config"
	"threadpark/internal/logger"
	"threadpark/internal/suspend"
	"threadpark/internal/threading"
)

var version = "0.1.0"

// worker is one demonstration thread plus its private progress counter.
type worker struct {
	thread *threading.Thread
	count  atomic.Int64
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg == nil {
		return // -generate-config handled
	}

	if err := logger.ConfigureLogging(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure loggers: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", version).
		Int("workers", cfg.Workers.Count).
		Int("iterations", cfg.Workers.Iterations).
		Msg("Starting threadpark")

	// Ctrl-C skips the remaining settle waits instead of killing the demo.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal")
		cancel()
	}()

	rt := threading.NewRuntime()
	ctl := suspend.NewController(suspend.NewThreadSignaler(rt), &suspend.Options{
		InitialCapacity: cfg.Suspend.InitialRegistryCapacity,
	})

	if cfg.Server.Enabled {
		prometheus.MustRegister(suspendstate.NewCollector(ctl.Stats, rt))
		http.Handle(cfg.Server.MetricsPath, promhttp.Handler())
		srv := &http.Server{Addr: cfg.Server.ListenAddress}
		go func() {
			log.Info().Str("address", cfg.Server.ListenAddress).Msg("Starting metrics HTTP server")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("Failed to start metrics HTTP server")
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	workers := startWorkers(rt, cfg.Workers)
	settle := time.Duration(cfg.Workers.SettleMillis) * time.Millisecond
	half := len(workers) / 2

	// Each round parks its half before the settle wait, so the targets are
	// still running when the suspend signal lands. Workers fast enough to
	// finish before their round get a warning instead.

	// Round one: park the first half while the second half keeps running.
	suspendAll(ctl, workers[:half])
	log.Info().Int("suspended", half).Msg("First half suspended, sleeping")
	sleep(ctx, settle)
	resumeAll(ctl, workers[:half])

	// Round two: the other half.
	suspendAll(ctl, workers[half:])
	log.Info().Int("suspended", len(workers)-half).Msg("Second half suspended, sleeping")
	sleep(ctx, settle)
	resumeAll(ctl, workers[half:])

	for _, w := range workers {
		w.thread.Join()
	}

	for _, w := range workers {
		log.Info().
			Str("thread", w.thread.String()).
			Int64("iterations", w.count.Load()).
			Msg("Worker finished")
	}

	stats := ctl.Stats()
	log.Info().
		Uint64("suspends", stats.Suspends).
		Uint64("resumes", stats.Resumes).
		Uint64("errors", stats.Errors).
		Msg("threadpark finished")
}

// startWorkers spawns the counting workers. Each increments its private
// counter and yields every iteration; none of them knows it can be paused.
func startWorkers(rt *threading.Runtime, cfg config.WorkersConfig) []*worker {
	wlog := logger.NewLoggerWithContext("worker")

	workers := make([]*worker, cfg.Count)
	for i := range workers {
		w := &worker{}
		w.thread = rt.Spawn(fmt.Sprintf("worker-%02d", i), func(t *threading.Thread) {
			for iter := 1; iter <= cfg.Iterations; iter++ {
				w.count.Store(int64(iter))
				if iter%cfg.ReportEvery == 0 {
					wlog.Info().Str("thread", t.String()).Int("iteration", iter).Msg("progress")
				}
				t.Yield()
			}
		})
		workers[i] = w
	}
	return workers
}

func suspendAll(ctl *suspend.Controller[*threading.Thread], ws []*worker) {
	for _, w := range ws {
		log.Info().Str("thread", w.thread.String()).Msg("Suspending thread")
		if err := ctl.Suspend(w.thread); err != nil {
			// An exited worker is a valid target to have missed.
			log.Warn().Err(err).Str("thread", w.thread.String()).Msg("Suspend failed")
		}
	}
}

func resumeAll(ctl *suspend.Controller[*threading.Thread], ws []*worker) {
	for _, w := range ws {
		log.Info().Str("thread", w.thread.String()).Msg("Resuming thread")
		if err := ctl.Resume(w.thread); err != nil {
			log.Warn().Err(err).Str("thread", w.thread.String()).Msg("Resume failed")
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
