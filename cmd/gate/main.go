// Command gate runs the HTTP gateway: it accepts inbound requests, consults
// the registry for a route's live workers, dispatches a job, and blocks for
// the worker's rendezvous result.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devenwen/callme-gate/internal/config"
	"github.com/devenwen/callme-gate/internal/dispatch"
	"github.com/devenwen/callme-gate/internal/gateway"
	"github.com/devenwen/callme-gate/internal/jobstore"
	"github.com/devenwen/callme-gate/internal/observability"
	"github.com/devenwen/callme-gate/internal/platform/logger"
	"github.com/devenwen/callme-gate/internal/platform/otelx"
	"github.com/devenwen/callme-gate/internal/platform/store"
	"github.com/devenwen/callme-gate/internal/registry"
	"github.com/devenwen/callme-gate/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "gate",
	Short: "callme-gate HTTP gateway",
	Long: `gate is the HTTP-facing half of callme-gate: it dispatches inbound
requests to a dynamic fleet of worker processes over a shared store and
blocks for a synchronous rendezvous result.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway's HTTP server until interrupted",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log, err := logger.New("production")
	if err != nil {
		return fmt.Errorf("gate: logger init: %w", err)
	}
	defer log.Sync()

	cfg := config.Load(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := otelx.Init(ctx, log, "callme-gate", cfg.OTLPEnabled)
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutCtx)
	}()

	kv, err := store.New(ctx, store.Options{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPassword,
		UseSSL:   cfg.RedisUseSSL,
	})
	if err != nil {
		return fmt.Errorf("gate: connect store: %w", err)
	}
	defer kv.Close()

	metrics := observability.NewMetrics()

	reg := registry.New(kv, log.With("component", "Registry"))
	reg.SetMetrics(metrics)

	disp := dispatch.NewDispatcher(reg, kv, log.With("component", "Dispatcher"), cfg.DefaultStrategy)
	disp.SetMetrics(metrics)

	repo := jobstore.NewRepository(kv)

	if cfg.SeedFile != "" {
		seedRoutes(ctx, reg, log, cfg.SeedFile)
	}

	adapter := gateway.NewAdapter(reg, disp, repo, log.With("component", "Gateway"), cfg.JobRecordTTL)
	router := server.NewRouter(server.RouterConfig{
		Adapter:      adapter,
		Log:          log,
		AllowOrigins: cfg.AllowOrigins,
		ServiceName:  "callme-gate",
	})

	reapDone := runReaper(ctx, reg, log, cfg.NodeMaxAge, cfg.ReapInterval)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("gateway listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("gateway shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("gate: server error: %w", err)
		}
	}

	<-reapDone

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// runReaper starts a background ticker that clears stale nodes, stopping
// once ctx is cancelled. The returned channel closes once the goroutine has
// exited, so callers can wait for it before tearing down the store.
func runReaper(ctx context.Context, reg *registry.Registry, log *logger.Logger, maxAge, interval time.Duration) <-chan struct{} {
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
				if n := reg.CleanInactiveNodes(ctx, maxAge); n > 0 {
					log.Info("reaped inactive nodes", "count", n)
				}
			}
		}
	}()
	return done
}

// seedRoutes pre-registers a static route/worker topology at startup, ahead
// of any worker connecting on its own. A failure to read or parse the file
// is logged and otherwise non-fatal: the gateway still starts and workers
// can register the same routes themselves once they come up.
func seedRoutes(ctx context.Context, reg *registry.Registry, log *logger.Logger, path string) {
	routes, err := config.LoadSeedFile(path)
	if err != nil {
		log.Warn("seed file load failed", "path", path, "error", err)
		return
	}
	for _, s := range routes {
		reg.RegisterRoute(ctx, s.Path, s.Method, s.WorkerID, s.Version, s.Queue, s.Timeout, s.Metadata)
	}
	log.Info("seeded routes", "path", path, "count", len(routes))
}
