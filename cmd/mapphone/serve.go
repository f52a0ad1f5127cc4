package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/MapPhone/internal/api"
	"github.com/IshaanNene/MapPhone/internal/browser"
	"github.com/IshaanNene/MapPhone/internal/config"
	"github.com/IshaanNene/MapPhone/internal/dashboard"
	"github.com/IshaanNene/MapPhone/internal/observability"
	"github.com/IshaanNene/MapPhone/internal/queue"
	"github.com/IshaanNene/MapPhone/internal/scraper"
	"github.com/IshaanNene/MapPhone/internal/storage"
	"github.com/IshaanNene/MapPhone/internal/types"
)

var (
	servePort    int
	serveWorkers int
)

// serveCmd creates the "serve" subcommand.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web front end and scrape workers",
		Long: `Serve the search page and JSON endpoints. Submitted searches are queued
and run by a fixed pool of workers, one browser session per worker.`,
		RunE: runServe,
	}

	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (0 = config default)")
	cmd.Flags().IntVarP(&serveWorkers, "workers", "w", 0, "concurrent scrape workers (0 = config default)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, closer, err := loadConfig(func(cfg *config.Config) {
		if servePort > 0 {
			cfg.Server.Port = servePort
		}
		if serveWorkers > 0 {
			cfg.Queue.Workers = serveWorkers
		}
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer store.Close()

	metrics := observability.NewMetrics(logger)

	manager, err := browser.NewManager(cfg, logger)
	if err != nil {
		return fmt.Errorf("create browser manager: %w", err)
	}

	sc := scraper.New(cfg.Scrape, manager, logger,
		scraper.WithStorage(store),
		scraper.WithMetrics(metrics),
		scraper.WithInterruptMode(scraper.Propagate),
	)

	jobs := queue.New(cfg.Queue.Capacity, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs.StartJanitor(ctx, cfg.Queue.PruneInterval, cfg.Queue.Retention)

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		jobs.Run(ctx, cfg.Queue.Workers, func(ctx context.Context, term string) ([]types.BusinessRecord, error) {
			return runJob(ctx, sc, term)
		})
	}()

	srv := api.NewServer(cfg.Server, cfg.Storage, jobs, dashboard.New(logger), metrics, logger).HTTPServer()
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("web interface listening", "addr", srv.Addr, "workers", cfg.Queue.Workers)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			stop()
			<-workersDone
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	<-workersDone
	return nil
}

// runJob adapts one scrape to the queue: aborted runs fail the job while
// keeping whatever records were collected.
func runJob(ctx context.Context, sc *scraper.Scraper, term string) ([]types.BusinessRecord, error) {
	res, err := sc.Run(ctx, term)
	if res == nil {
		return nil, err
	}
	if err != nil {
		return res.Records, err
	}
	return res.Records, res.Err
}
