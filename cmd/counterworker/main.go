// Command counterworker runs a worker process dedicated to the counter
// example workload: a named, Redis-backed counter reachable through the
// gateway's dispatch path.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devenwen/callme-gate/examples/counter"
	"github.com/devenwen/callme-gate/internal/config"
	"github.com/devenwen/callme-gate/internal/dispatch"
	"github.com/devenwen/callme-gate/internal/jobstore"
	"github.com/devenwen/callme-gate/internal/observability"
	"github.com/devenwen/callme-gate/internal/platform/logger"
	"github.com/devenwen/callme-gate/internal/platform/store"
	"github.com/devenwen/callme-gate/internal/registry"
	"github.com/devenwen/callme-gate/internal/workerrt"
)

var rootCmd = &cobra.Command{
	Use:   "counterworker",
	Short: "callme-gate counter example worker",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the counter worker until interrupted",
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
		return fmt.Errorf("counterworker: logger init: %w", err)
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
		return fmt.Errorf("counterworker: connect store: %w", err)
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

	c := counter.New(kv)
	routes := []struct {
		path    string
		method  string
		handler workerrt.Handler
	}{
		{"/api/counter/value", "GET", c.Value},
		{"/api/counter/increment", "POST", c.IncrementHandler},
		{"/api/counter/decrement", "POST", c.DecrementHandler},
		{"/api/counter/reset", "POST", c.ResetHandler},
		{"/api/counter/delete", "POST", c.DeleteHandler},
	}
	for _, rt := range routes {
		if err := w.RegisterHandler(ctx, rt.path, rt.method, 5*time.Second, rt.handler); err != nil {
			return fmt.Errorf("counterworker: register %s %s: %w", rt.method, rt.path, err)
		}
	}

	heartbeatDone := runHeartbeat(ctx, reg, log, w.Version(), cfg.HeartbeatInterval)

	go w.Run(ctx)

	<-ctx.Done()
	log.Info("counterworker shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	w.Shutdown(shutCtx)

	<-heartbeatDone
	return nil
}

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
