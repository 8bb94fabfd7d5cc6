package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/veltran/marketsync/internal/bus"
	"github.com/veltran/marketsync/internal/cache"
	checkpointstore "github.com/veltran/marketsync/internal/checkpoint"
	mcommon "github.com/veltran/marketsync/internal/common"
	"github.com/veltran/marketsync/internal/config"
	"github.com/veltran/marketsync/internal/db"
	"github.com/veltran/marketsync/internal/logger"
	"github.com/veltran/marketsync/internal/metrics"
	"github.com/veltran/marketsync/internal/migrations"
	"github.com/veltran/marketsync/internal/processor"
	"github.com/veltran/marketsync/internal/records"
	"github.com/veltran/marketsync/internal/rpc"
	"github.com/veltran/marketsync/internal/scanner"
	"github.com/veltran/marketsync/internal/status"
	"github.com/veltran/marketsync/internal/stream"
	pkgconfig "github.com/veltran/marketsync/pkg/config"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║          marketsync v%s               ║
║   Marketplace Collection Sync Daemon      ║
╚═══════════════════════════════════════════╝
`
)

var (
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "marketsync",
	Short: "marketsync - Marketplace collection sync daemon",
	Long: `marketsync keeps an off-chain view of an on-chain collection marketplace.
It scans marketplace contract logs into durable records, follows the partner
push feed over WebSocket, and keeps market and reward snapshot caches warm.`,
	Version: version,
	RunE:    runDaemon,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the configuration JSON schema",
	Long:  `Print the JSON schema of the configuration file, for editor validation and docs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := pkgconfig.Schema()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.AddCommand(schemaCmd)
}

func buildLogger(cfg *pkgconfig.Config) (*logger.Logger, error) {
	if cfg.Logging == nil {
		return logger.NewLogger("info", false)
	}
	return logger.NewLogger(cfg.Logging.GetDefaultLevel(), cfg.Logging.IsDevelopment())
}

func runDaemon(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	// Load configuration
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	// Initialize logger
	log, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() {
		_ = log.Close()
	}()

	// Status registry feeds the /status route and the health gauge
	registry := status.NewRegistry(log)

	// Initialize metrics server if enabled
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics, registry.Handler(), log)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := metricsServer.Stop(stopCtx); err != nil {
				log.Warnf("Failed to stop metrics server: %v", err)
			}
		}()
		registry.SetComponent(mcommon.ComponentMetrics, status.StateOK)
	} else {
		registry.SetComponent(mcommon.ComponentMetrics, status.StateNotConfigured)
	}

	// Run database migrations
	log.Info("Running database migrations...")
	if err := migrations.RunMigrations(cfg.Database.Path); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize database
	database, err := db.NewSQLiteDBFromConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer func() {
		_ = database.Close()
	}()

	// Initialize maintenance coordinator
	dbMaintenance := db.NewMaintenanceCoordinator(cfg.Database.Path, database, cfg.Maintenance, log)
	if err := dbMaintenance.Start(ctx); err != nil {
		return fmt.Errorf("failed to start database maintenance: %w", err)
	}
	defer func() {
		if err := dbMaintenance.Stop(); err != nil {
			log.Warnf("Failed to stop database maintenance: %v", err)
		}
	}()
	if cfg.Maintenance != nil {
		registry.SetComponent(mcommon.ComponentDB, status.StateOK)
	} else {
		registry.SetComponent(mcommon.ComponentDB, status.StateNotConfigured)
	}

	// Initialize stores
	recordStore := records.NewStore(database, log, dbMaintenance)
	checkpointStore := checkpointstore.NewStore(database, log, dbMaintenance)
	registry.SetComponent(mcommon.ComponentRecords, status.StateOK)
	registry.SetComponent(mcommon.ComponentCheckpoint, status.StateOK)

	// Initialize event bus
	eventBus := bus.New(log)
	defer eventBus.Close()
	registry.SetComponent(mcommon.ComponentBus, status.StateOK)

	// Initialize chain ingestion: RPC client, processor, scanner. Without a
	// chain endpoint (or without sources) the daemon still runs; the scan
	// path just reports not_configured.
	var scan scanner.Service = scanner.NoOpScanner{}
	if cfg.Chain.IsConfigured() && len(cfg.Scanner.Sources) > 0 {
		log.Info("Connecting to chain RPC node...")
		ethClient, err := rpc.NewClient(ctx, cfg.Chain.RPCURL, cfg.Chain.Retry)
		if err != nil {
			return fmt.Errorf("failed to create RPC client: %w", err)
		}
		defer ethClient.Close()

		proc, err := processor.New(recordStore, ethClient, log)
		if err != nil {
			return fmt.Errorf("failed to create event processor: %w", err)
		}

		s, err := scanner.New(cfg.Scanner, ethClient, checkpointStore, proc, eventBus, log)
		if err != nil {
			return fmt.Errorf("failed to create scanner: %w", err)
		}
		scan = s

		registry.SetComponent(mcommon.ComponentRPC, status.StateOK)
		registry.SetComponent(mcommon.ComponentScanner, status.StateOK)
		registry.SetComponent(mcommon.ComponentProcessor, status.StateOK)
	} else {
		if len(cfg.Scanner.Sources) > 0 {
			log.Warn("Scan sources configured but chain.rpc_url is empty; chain ingestion disabled")
		} else {
			log.Info("No chain endpoint or scan sources configured; chain ingestion disabled")
		}
		registry.SetComponent(mcommon.ComponentRPC, status.StateNotConfigured)
		registry.SetComponent(mcommon.ComponentScanner, status.StateNotConfigured)
		registry.SetComponent(mcommon.ComponentProcessor, status.StateNotConfigured)
	}

	// Initialize the push feed connector
	var feed stream.Service = stream.NoOpConnector{}
	if cfg.Stream.IsConfigured() {
		conn, err := stream.New(*cfg.Stream, eventBus, log)
		if err != nil {
			return fmt.Errorf("failed to create stream connector: %w", err)
		}
		feed = conn
		registry.SetComponent(mcommon.ComponentStream, status.StateOK)
	} else {
		log.Info("No feed endpoint configured; stream connector disabled")
		registry.SetComponent(mcommon.ComponentStream, status.StateNotConfigured)
	}

	// Initialize the cache refresher
	refresher, err := cache.New(cfg.Cache, recordStore, eventBus, log)
	if err != nil {
		return fmt.Errorf("failed to create cache refresher: %w", err)
	}
	if cfg.Cache != nil && (cfg.Cache.Market.IsConfigured() || cfg.Cache.Rewards.IsConfigured()) {
		registry.SetComponent(mcommon.ComponentCache, status.StateOK)
	} else {
		log.Info("No cache domains configured; cache refresher disabled")
		registry.SetComponent(mcommon.ComponentCache, status.StateNotConfigured)
	}

	// Wire the status surface
	registry.ProvideScanner(scan.Status)
	registry.ProvideStream(feed.Status)
	registry.ProvideCaches(refresher.Status)
	registry.ProvideRecords(recordStore.Stats)

	// Start the pipeline
	if err := scan.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scanner: %w", err)
	}
	defer scan.Stop()

	if err := feed.Connect(ctx); err != nil {
		return fmt.Errorf("failed to start stream connector: %w", err)
	}
	defer feed.Close()

	if err := refresher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start cache refresher: %w", err)
	}
	defer refresher.Stop()

	log.Infow("marketsync started", "version", version)

	<-ctx.Done()

	log.Info("marketsync stopped successfully")
	return nil
}
