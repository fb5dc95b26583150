// VentHub - Thread mesh vent controller
//
// This is the main entry point for the vent hub. It discovers smart vents on
// a Thread mesh through the border router, keeps a registry of them in
// SQLite, polls their position, and moves them individually, by room, by
// floor or on a daily schedule.
//
// Commands arrive over the HTTP API and over MQTT; state is published back
// to MQTT and optionally written to InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/nerrad567/venthub/migrations"

	"github.com/nerrad567/venthub/internal/api"
	"github.com/nerrad567/venthub/internal/automation"
	"github.com/nerrad567/venthub/internal/device"
	"github.com/nerrad567/venthub/internal/discovery"
	"github.com/nerrad567/venthub/internal/hub"
	"github.com/nerrad567/venthub/internal/infrastructure/config"
	"github.com/nerrad567/venthub/internal/infrastructure/database"
	"github.com/nerrad567/venthub/internal/infrastructure/influxdb"
	"github.com/nerrad567/venthub/internal/infrastructure/logging"
	"github.com/nerrad567/venthub/internal/infrastructure/metrics"
	"github.com/nerrad567/venthub/internal/infrastructure/mqtt"
	"github.com/nerrad567/venthub/internal/protocol"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component from the configuration and blocks until ctx is
// cancelled. Deferred closes run in reverse order of construction.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting vent hub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.Config{
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("registry"))
	count, err := registry.Count(ctx)
	if err != nil {
		return fmt.Errorf("loading device registry: %w", err)
	}
	log.Info("device registry initialised", "devices", count)

	metrics.Init(prometheus.DefaultRegisterer, prometheus.DefaultGatherer, func() float64 {
		n, countErr := registry.Count(context.Background())
		if countErr != nil {
			return 0
		}
		return float64(n)
	})

	transport := protocol.NewCoAPTransport(cfg.Mesh.CoAPPort)
	defer func() {
		log.Info("closing CoAP transport")
		if closeErr := transport.Close(); closeErr != nil {
			log.Error("error closing CoAP transport", "error", closeErr)
		}
	}()
	client := protocol.NewClient(transport, cfg.RequestTimeout())
	client.SetLogger(log.Component("protocol"))

	topology, err := discovery.NewTopology(cfg.Discovery)
	if err != nil {
		return fmt.Errorf("creating topology source: %w", err)
	}
	log.Info("topology source ready", "backend", cfg.Discovery.Backend)

	h := hub.New(hubConfig(cfg), registry, client, topology)
	h.SetLogger(log.Component("hub"))

	h.Scheduler().SetRepository(automation.NewSQLiteRepository(db.DB))
	if loadErr := h.Scheduler().Load(ctx); loadErr != nil {
		return fmt.Errorf("loading schedule rules: %w", loadErr)
	}
	if seedErr := seedRules(ctx, h.Scheduler(), cfg.Scheduler.Rules); seedErr != nil {
		return fmt.Errorf("seeding schedule rules: %w", seedErr)
	}
	log.Info("schedule rules loaded", "rules", len(h.Scheduler().Rules()))

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnReconnect(func() {
			n, repErr := h.RepublishStates(ctx)
			if repErr != nil {
				log.Error("republishing device states after reconnect", "error", repErr)
				return
			}
			log.Info("MQTT reconnected", "states_republished", n)
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		h.SetPublisher(mqttClient)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection", "points_written", influxClient.Written())
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			metrics.IncTelemetryError()
			log.Error("InfluxDB write error", "error", err)
		})
		h.SetTelemetry(influxClient)
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	hubs := hub.NewDirectory()
	if addErr := hubs.Add(h); addErr != nil {
		return fmt.Errorf("registering hub: %w", addErr)
	}
	if startErr := h.Start(ctx); startErr != nil {
		return fmt.Errorf("starting hub: %w", startErr)
	}
	defer func() {
		log.Info("stopping hubs")
		hubs.StopAll()
	}()
	log.Info("hub started", "site_id", h.ID())

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.Component("api"),
			Hubs:    hubs,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses VENTHUB_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VENTHUB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// hubConfig maps the file configuration onto the per-site runtime settings.
// A disabled scheduler still accepts rules but its loop never fires them.
func hubConfig(cfg *config.Config) hub.Config {
	return hub.Config{
		SiteID:            cfg.Site.ID,
		SiteName:          cfg.Site.Name,
		PollInterval:      cfg.PollInterval(),
		DiscoveryInterval: cfg.DiscoveryInterval(),
		TickInterval:      cfg.TickInterval(),
		GroupConcurrency:  cfg.Groups.MaxConcurrency,
		Location:          cfg.Location(),
		SchedulerDisabled: !cfg.Scheduler.Enabled,
	}
}

// seedRules adds the rules from the config file. Rules already present,
// typically restored from the database, keep their stored state.
func seedRules(ctx context.Context, sched *automation.Scheduler, rules []config.RuleConfig) error {
	for _, rc := range rules {
		hour, minute, err := automation.ParseTimeOfDay(rc.Time)
		if err != nil {
			return fmt.Errorf("rule %q: %w", rc.Name, err)
		}
		err = sched.AddRule(ctx, automation.Rule{
			Name:       rc.Name,
			Hour:       hour,
			Minute:     minute,
			TargetType: rc.TargetType,
			Target:     rc.Target,
			Angle:      rc.Angle,
			Enabled:    rc.IsEnabled(),
		})
		if err != nil && !errors.Is(err, automation.ErrRuleExists) {
			return fmt.Errorf("rule %q: %w", rc.Name, err)
		}
	}
	return nil
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
