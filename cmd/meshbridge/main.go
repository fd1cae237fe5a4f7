// ConnectMesh Bridge - Bluetooth Mesh Cloud Bridge
//
// This is the main entry point for the ConnectMesh Bridge daemon. The
// bridge sits between a vendor mesh cloud API and the local network:
//   - Polls the cloud for device inventory and state
//   - Mirrors devices onto MQTT with Home Assistant discovery
//   - Serves a local REST/WebSocket API for dashboards and tooling
//   - Records state history to InfluxDB
//
// For architecture details, see: docs/architecture/system-overview.md
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/connectmesh-bridge/migrations"

	"github.com/nerrad567/connectmesh-bridge/internal/api"
	"github.com/nerrad567/connectmesh-bridge/internal/audit"
	"github.com/nerrad567/connectmesh-bridge/internal/bridge"
	"github.com/nerrad567/connectmesh-bridge/internal/cloud"
	"github.com/nerrad567/connectmesh-bridge/internal/device"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/config"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/database"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/connectmesh-bridge/internal/poll"
	"github.com/nerrad567/connectmesh-bridge/internal/store"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting ConnectMesh Bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise device registry and warm it from the last persisted
	// snapshot so the API can answer before the first cloud poll lands.
	registry := device.NewRegistry()
	registry.SetLogger(log)

	deviceRepo := store.NewDeviceRepository(db.DB)
	persisted, err := deviceRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading device snapshot: %w", err)
	}
	for _, d := range persisted {
		registry.Upsert(d)
	}
	log.Info("device registry initialised", "devices", registry.Count())

	networkRepo := store.NewNetworkRepository(db.DB)
	exportRepo := store.NewExportRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Cloud API client
	cloudClient := cloud.New(cfg.Cloud, log)
	log.Info("cloud client initialised", "base_url", cfg.Cloud.BaseURL)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks. Subscription restoration and the
	// retained online payload are handled inside the client itself.
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Start the MQTT bridge: discovery, state mirroring, command handling.
	// Telemetry is assigned conditionally so a disabled InfluxDB stays a
	// true nil interface rather than a typed-nil pointer.
	bridgeOpts := bridge.Options{
		MQTT:      mqttClient,
		Commander: cloudClient,
		Registry:  registry,
		QoS:       byte(cfg.MQTT.QoS),
		Version:   version,
		Logger:    log,
	}
	if influxClient != nil {
		bridgeOpts.Telemetry = influxClient
	}
	meshBridge, err := bridge.New(bridgeOpts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if startErr := meshBridge.Start(ctx); startErr != nil {
		return fmt.Errorf("starting bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping bridge")
		meshBridge.Stop()
	}()
	log.Info("bridge started", "base_topic", cfg.MQTT.BaseTopic)

	// Start the cloud poller. The bridge receives its events so device
	// changes flow straight onto MQTT.
	pollOpts := poll.Options{
		Cloud:               cloudClient,
		Registry:            registry,
		Events:              meshBridge,
		Devices:             deviceRepo,
		Networks:            networkRepo,
		StatusInterval:      cfg.Poll.StatusPeriod(),
		DetailsInterval:     cfg.Poll.DetailsPeriod(),
		DiscoveryInterval:   cfg.Poll.DiscoveryPeriod(),
		AvailabilityTimeout: cfg.Poll.OfflineAfter(),
		Logger:              log,
	}
	if influxClient != nil {
		pollOpts.Telemetry = influxClient
	}
	poller, err := poll.New(pollOpts)
	if err != nil {
		return fmt.Errorf("creating poller: %w", err)
	}
	if startErr := poller.Start(ctx); startErr != nil {
		return fmt.Errorf("starting poller: %w", startErr)
	}
	defer func() {
		log.Info("stopping poller")
		poller.Stop()
	}()
	log.Info("poller started",
		"status_interval", cfg.Poll.StatusInterval,
		"discovery_interval", cfg.Poll.DiscoveryInterval,
	)

	// Start the REST/WebSocket API server
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Registry: registry,
		Cloud:    cloudClient,
		MQTT:     mqttClient,
		DB:       db,
		Networks: networkRepo,
		Exports:  exportRepo,
		Audit:    auditRepo,
		Influx:   influxClient,
		Bridge:   meshBridge,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// A cold start with the cloud down is still useful (cached devices,
	// MQTT, local API), so cloud reachability is advisory only.
	if err := cloudClient.HealthCheck(ctx); err != nil {
		log.Warn("cloud API unreachable at startup, continuing with cached devices", "error", err)
	} else {
		log.Info("cloud API reachable")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. Poller
	// 3. Bridge
	// 4. MQTT
	// 5. InfluxDB (if enabled)
	// 6. Database

	log.Info("ConnectMesh Bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MESHBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MESHBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Cloud API reachability is checked separately in run() and is
	// advisory: the bridge serves cached state when the cloud is down.

	return nil
}
