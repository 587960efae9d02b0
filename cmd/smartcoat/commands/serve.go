package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/smartcoat/async"
	"github.com/teranos/smartcoat/config"
	"github.com/teranos/smartcoat/errors"
	"github.com/teranos/smartcoat/logger"
	"github.com/teranos/smartcoat/server"
	"github.com/teranos/smartcoat/store"
	"github.com/teranos/smartcoat/sym"
	"github.com/teranos/smartcoat/version"
)

// ServeCmd starts the smartcoat web server
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   sym.Run + " Start the smartcoat HTTP + WebSocket server",
	Long: sym.Run + ` serve - HTTP JSON API and WebSocket run updates.

Starts the solve API (synchronous and queued), the run history endpoints,
and the WebSocket hub that streams run progress to connected clients.
Queued runs are executed by a background worker pool; on shutdown, running
solves finish with their best route and still-queued runs are canceled.`,
	RunE: runServe,
}

var (
	servePort    int
	serveDBPath  string
	serveWorkers int
)

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default: config, then 8077)")
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Custom database path (overrides config)")
	ServeCmd.Flags().IntVar(&serveWorkers, "workers", 0, "Concurrent solve workers (default: config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	dbPath := serveDBPath
	if dbPath == "" {
		dbPath = cfg.GetDatabasePath()
	}

	database, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()
	st := store.NewStore(database)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	asyncCfg := cfg.GetAsyncConfig()
	if serveWorkers > 0 {
		asyncCfg.Workers = serveWorkers
	}

	queue := async.NewQueue(st)
	queue.SetMaxQueued(asyncCfg.QueueSize)

	poolCfg := async.DefaultPoolConfig()
	poolCfg.Workers = asyncCfg.Workers
	pool := async.NewWorkerPool(ctx, queue, poolCfg, logger.Logger)

	srv := server.NewServer(st, pool, cfg, logger.Logger)

	watcher := setupConfigWatcher(queue)
	if watcher != nil {
		defer watcher.Stop()
	}

	printServeBanner(cfg, dbPath, asyncCfg.Workers)

	pool.Start()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		// Startup failed; Stop still runs so queued rows are canceled
		if stopErr := srv.Stop(); stopErr != nil {
			logger.Warnw("Cleanup after failed start", "error", stopErr)
		}
		return errors.Wrap(err, "server failed to start")
	case <-sigChan:
		// First Ctrl+C - graceful shutdown
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- srv.Stop()
		}()

		// Wait for either shutdown completion or second Ctrl+C
		select {
		case err := <-shutdownDone:
			if err != nil {
				return errors.Wrap(err, "shutdown error")
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil // unreachable
		}
	}
}

// setupConfigWatcher hot-reloads the config file while the server runs. The
// queued-run bound is retuned live; solver defaults apply to runs enqueued
// after the reload. Returns nil when no config file is in play.
func setupConfigWatcher(queue *async.Queue) *config.ConfigWatcher {
	configPath := config.ActiveConfigFile()
	if configPath == "" {
		logger.Infow("No config file found, config watching disabled")
		return nil
	}

	watcher, err := config.NewConfigWatcher(configPath)
	if err != nil {
		logger.Warnw("Failed to create config watcher, restart to apply config changes",
			"error", err)
		return nil
	}

	// Registered globally so our own setting writes don't trigger a reload
	config.SetGlobalWatcher(watcher)

	watcher.OnReload(func(newCfg *config.Config) error {
		acfg := newCfg.GetAsyncConfig()
		queue.SetMaxQueued(acfg.QueueSize)
		logger.Infow("Config reloaded",
			"queue_size", acfg.QueueSize,
			"strategy", newCfg.Solver.Strategy)
		return nil
	})

	watcher.Start()
	logger.Infow("Config watcher started", "path", configPath)
	return watcher
}

// printServeBanner prints the startup summary before the server binds
func printServeBanner(cfg *config.Config, dbPath string, workers int) {
	info := version.Get()
	port := cfg.Server.Port
	if port == 0 {
		port = config.DefaultServerPort
	}

	pterm.Printf("\n%s smartcoat server\n", sym.RunOpen)
	pterm.Printf("  Version:  %s (commit %s)\n", info.Version, info.Short())
	pterm.Printf("  Database: %s\n", dbPath)
	pterm.Printf("  Port:     %d\n", port)
	pterm.Printf("  Workers:  %d\n", workers)
	pterm.Printf("\n%s Press Ctrl+C for graceful shutdown\n\n", sym.Run)
}
