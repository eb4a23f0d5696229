// zeromqtt - MQTT <-> ZeroMQ protocol bridge
//
// This is the main entry point for the bridge process: it loads the
// process config, opens the SQLite-backed configuration store, wires the
// Stats Aggregator, Router, and Bridge Supervisor together, and starts the
// bridge by sending it a Start command over the Control Facade.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/zhxiaoyu/zeromqtt/migrations"

	"github.com/zhxiaoyu/zeromqtt/internal/bridge/router"
	"github.com/zhxiaoyu/zeromqtt/internal/bridge/stats"
	"github.com/zhxiaoyu/zeromqtt/internal/bridge/supervisor"
	"github.com/zhxiaoyu/zeromqtt/internal/bridge/worker"
	"github.com/zhxiaoyu/zeromqtt/internal/bridgestore/sqlite"
	"github.com/zhxiaoyu/zeromqtt/internal/infrastructure/config"
	"github.com/zhxiaoyu/zeromqtt/internal/infrastructure/database"
	"github.com/zhxiaoyu/zeromqtt/internal/infrastructure/influxdb"
	"github.com/zhxiaoyu/zeromqtt/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// defaultConfigPath is the bootstrap config file path used when
// BRIDGE_CONFIG is not set.
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error lets main handle exit codes
// consistently.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting zeromqtt bridge", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised", "level", cfg.Logging.Level, "format", cfg.Logging.Format)

	db, err := database.Open(database.Config{
		Path:        cfg.Store.Path,
		WALMode:     cfg.Store.WALMode,
		BusyTimeout: cfg.Store.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening config store: %w", err)
	}
	defer func() {
		log.Info("closing config store")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing config store", "error", closeErr)
		}
	}()
	log.Info("config store connected", "path", cfg.Store.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("config store migrations complete")

	store := sqlite.New(db.DB)

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to influxdb: %w", err)
		}
		defer func() {
			log.Info("closing influxdb connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing influxdb", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("influxdb write error", "error", err)
		})
		log.Info("influxdb connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("influxdb disabled")
	}

	statsLog := log.With("component", "stats")
	var sink stats.InfluxSink
	if influxClient != nil {
		sink = influxClient
	}
	aggregator := stats.New(sink, statsLog)
	aggregator.Start(ctx)
	defer aggregator.Stop()

	inbox := worker.NewInbox(cfg.Bridge.InboundQueueSize)

	builder := supervisor.DefaultBuilder{
		Inbox:             inbox,
		Stats:             aggregator,
		Logger:            log.With("component", "worker"),
		OutboundQueueSize: cfg.Bridge.OutboundQueueSize,
	}

	sup := supervisor.New(builder, nil, log.With("component", "supervisor"), version)
	r := router.New(inbox, sup, nil, aggregator, log.With("component", "router"))
	sup.SetRouter(r)

	// Run drains the Facade's command queue on its own lifetime, separate
	// from the process signal context: it must stay alive long enough to
	// receive and process the Stop command issued during shutdown below.
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	facade := supervisor.NewFacade()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		sup.Run(runCtx, facade)
	}()

	snap, err := supervisor.LoadSnapshot(ctx, store)
	if err != nil {
		return fmt.Errorf("loading bridge configuration: %w", err)
	}

	if err := facade.Start(ctx, snap); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	log.Info("bridge started",
		"mqtt_endpoints", len(snap.MQTTEndpoints),
		"zmq_endpoints", len(snap.ZMQEndpoints),
		"mappings", len(snap.Mappings),
	)

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, stopping bridge")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	if err := facade.Stop(stopCtx); err != nil {
		log.Error("error stopping bridge", "error", err)
	}
	stopCancel()
	runCancel()

	<-runDone
	log.Info("zeromqtt bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path, honoring the
// BRIDGE_CONFIG environment variable.
func getConfigPath() string {
	if path := os.Getenv("BRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
