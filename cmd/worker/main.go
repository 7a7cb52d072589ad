// Command worker runs a generic worker process: it registers one or more
// handlers, consumes its queue, and heartbeats its node record until
// interrupted.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devenwen/callme-gate/internal/config"
	"github.com/devenwen/callme-gate/internal/dispatch"
	"github.com/devenwen/callme-gate/internal/domain/job"
	"github.com/devenwen/callme-gate/internal/jobstore"
	"github.com/devenwen/callme-gate/internal/observability"
	"github.com/devenwen/callme-gate/internal/platform/logger"
	"github.com/devenwen/callme-gate/internal/platform/store"
	"github.com/devenwen/callme-gate/internal/registry"
	"github.com/devenwen/callme-gate/internal/workerrt"
)

var rootCmd = &cobra.Command{
	Use:   "worker",
	Short: "callme-gate worker runtime",
	Long: `worker registers handlers for one or more routes and serves jobs
popped off its own version-tagged queue until interrupted.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the worker's consume loop until interrupted",
	RunE:  runWorker,
}

func init() {
	runCmd.Flags().String("version", "", "stable worker version tag (default: generated)")
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runWorker(cmd *cobra.Command, args []string) error {
	log, err := logger.New("production")
	if err != nil {
		return fmt.Errorf("worker: logger init: %w", err)
	}
	defer log.Sync()

	cfg := config.Load(log)
	version, _ := cmd.Flags().GetString("version")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := store.New(ctx, store.Options{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPassword,
		UseSSL:   cfg.RedisUseSSL,
	})
	if err != nil {
		return fmt.Errorf("worker: connect store: %w", err)
	}
	defer kv.Close()

	metrics := observability.NewMetrics()

	reg := registry.New(kv, log.With("component", "Registry"))
	reg.SetMetrics(metrics)

	disp := dispatch.NewDispatcher(reg, kv, log.With("component", "Dispatcher"), cfg.DefaultStrategy)
	disp.SetMetrics(metrics)

	repo := jobstore.NewRepository(kv)

	var opts []workerrt.Option
	if version != "" {
		opts = append(opts, workerrt.WithVersion(version))
	}
	w := workerrt.NewWorker(reg, repo, kv, disp, log.With("component", "WorkerRuntime"), opts...)

	if err := w.RegisterHandler(ctx, "/api/test/echo", "POST", 5*time.Second, echoHandler); err != nil {
		return fmt.Errorf("worker: register echo handler: %w", err)
	}

	heartbeatDone := runHeartbeat(ctx, reg, log, w.Version(), cfg.HeartbeatInterval)

	go w.Run(ctx)

	<-ctx.Done()
	log.Info("worker shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	w.Shutdown(shutCtx)

	<-heartbeatDone
	return nil
}

// echoHandler mirrors the request body back as the response body, a minimal
// handler exercising the dispatch round trip end to end.
func echoHandler(ctx context.Context, j *job.HttpJob) (json.RawMessage, error) {
	if len(j.JSONData) > 0 {
		return j.JSONData, nil
	}
	return json.Marshal(map[string]any{
		"method": j.Method,
		"path":   j.Path,
		"form":   j.FormData,
	})
}

// runHeartbeat refreshes the worker's node record on a fixed interval until
// ctx is cancelled.
func runHeartbeat(ctx context.Context, reg *registry.Registry, log *logger.Logger, workerID string, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ok := reg.NodeHeartbeat(ctx, workerID); !ok {
					log.Warn("heartbeat failed", "worker_id", workerID)
				}
			}
		}
	}()
	return done
}
