package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/saviobatista/iss-tracker/internal/config"
	"github.com/saviobatista/iss-tracker/internal/db"
	"github.com/saviobatista/iss-tracker/internal/db/migrations"
	"github.com/saviobatista/iss-tracker/internal/display"
	"github.com/saviobatista/iss-tracker/internal/mapview"
	"github.com/saviobatista/iss-tracker/internal/metrics"
	"github.com/saviobatista/iss-tracker/internal/mqtt"
	"github.com/saviobatista/iss-tracker/internal/nats"
	"github.com/saviobatista/iss-tracker/internal/redis"
	"github.com/saviobatista/iss-tracker/internal/stats"
	"github.com/saviobatista/iss-tracker/internal/telemetry"
	"github.com/saviobatista/iss-tracker/internal/tracker"
	"github.com/saviobatista/iss-tracker/internal/web"
)

const (
	statsLogInterval     = time.Minute
	statsPersistInterval = 5 * time.Minute
	shutdownGrace        = 5 * time.Second
)

// clients holds the optional sink connections. A nil field is disabled.
type clients struct {
	nats  *nats.Client
	mqtt  *mqtt.Client
	redis *redis.Client
	db    *db.Client
}

// sinks returns the enabled clients in publish order
func (c *clients) sinks() []tracker.Sink {
	var out []tracker.Sink
	if c.nats != nil {
		out = append(out, c.nats)
	}
	if c.mqtt != nil {
		out = append(out, c.mqtt)
	}
	if c.redis != nil {
		out = append(out, c.redis)
	}
	if c.db != nil {
		out = append(out, c.db)
	}
	return out
}

// Close closes every open client
func (c *clients) Close() {
	if c.nats != nil {
		c.nats.Close()
	}
	if c.mqtt != nil {
		c.mqtt.Close()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing redisClient: %v\n", err)
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing dbClient: %v\n", err)
		}
	}
}

// createClients connects to every configured sink
func createClients(cfg *config.Config) (*clients, error) {
	c := &clients{}

	if cfg.NATSURL != "" {
		natsClient, err := nats.New(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS client: %w", err)
		}
		c.nats = natsClient
	}

	if cfg.MQTTBroker != "" {
		mqttClient, err := mqtt.New(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to create MQTT client: %w", err)
		}
		c.mqtt = mqttClient
	}

	if cfg.RedisAddr != "" {
		redisClient, err := redis.New(cfg.RedisAddr)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to create Redis client: %w", err)
		}
		c.redis = redisClient
	}

	if cfg.DBConnStr != "" {
		dbClient, err := db.New(cfg.DBConnStr)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to create database client: %w", err)
		}
		c.db = dbClient
		if err := runMigrations(dbClient); err != nil {
			c.Close()
			return nil, err
		}
	}

	return c, nil
}

// runMigrations makes sure the sample tables exist. TimescaleDB policies
// are left to cmd/migrate.
func runMigrations(dbClient *db.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := dbClient.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrations.New(dbClient.DB()).Migrate(migrations.Portable()); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// setupView resolves the marker icon and creates the map with its marker
func setupView(cfg *config.Config) *mapview.View {
	choice := mapview.ResolveIconFile(cfg.IconPath)
	if choice.Fallback() {
		log.Printf("Warning: Using default marker icon: %v", choice.Warning)
	}

	view := mapview.New(mapview.Options{Zoom: cfg.Zoom})
	view.CreateMarker(view.Snapshot().Center, choice.Icon, mapview.DefaultPopup)
	return view
}

// app is a fully wired tracker service
type app struct {
	tracker *tracker.Tracker
	server  *web.Server
	hub     *web.Hub
	stats   *stats.Stats
	clients *clients
}

// newApp wires the update loop, the page server, and the sinks together
func newApp(cfg *config.Config, c *clients, reg *prometheus.Registry) (*app, error) {
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	view := setupView(cfg)
	disp := display.New()
	hub := web.NewHub()

	st := stats.New()
	if c.db != nil {
		st.SetStore(c.db)
	}

	notifiers := []tracker.Notifier{hub}
	if c.redis != nil {
		notifiers = append(notifiers, c.redis)
	}

	t := tracker.New(
		telemetry.New(cfg.APIURL, cfg.FetchTimeout),
		view,
		disp,
		tracker.Options{
			Zoom:      cfg.Zoom,
			Interval:  cfg.UpdateInterval,
			Sinks:     c.sinks(),
			Notifiers: notifiers,
			Stats:     st,
			Metrics:   collector,
		},
	)

	if err := collector.WatchHub(hub); err != nil {
		return nil, fmt.Errorf("failed to register hub metrics: %w", err)
	}

	webOpts := web.Options{
		Addr:    cfg.HTTPAddr,
		Metrics: collector.Handler(),
	}
	if c.redis != nil {
		webOpts.Latest = c.redis
	}
	if c.db != nil {
		webOpts.History = c.db
	}
	server := web.New(view, disp, hub, webOpts)

	return &app{tracker: t, server: server, hub: hub, stats: st, clients: c}, nil
}

// run serves until ctx is cancelled, then shuts down in order: the update
// loop, the web server, and finally the statistics.
func (a *app) run(ctx context.Context) error {
	log.Printf("Starting ISS tracker (run %s)", a.tracker.RunID())

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.server.Start() }()

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	defer cancelLoop()

	schedule := a.tracker.Start(loopCtx)
	go a.stats.StartLogging(loopCtx, statsLogInterval)

	persistDone := make(chan struct{})
	if a.clients.db != nil {
		go func() {
			defer close(persistDone)
			a.stats.StartPersistence(loopCtx, statsPersistInterval)
		}()
	} else {
		close(persistDone)
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	log.Println("Shutting down...")
	schedule.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if serr := a.server.Shutdown(shutdownCtx); serr != nil && !errors.Is(serr, context.Canceled) {
		log.Printf("Warning: Failed to shut down web server: %v", serr)
	}

	cancelLoop()
	<-persistDone

	log.Printf("Final statistics:\n%s", a.stats)
	return err
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	c, err := createClients(cfg)
	if err != nil {
		log.Printf("Failed to create clients: %v", err)
		os.Exit(1)
	}

	a, err := newApp(cfg, c, prometheus.NewRegistry())
	if err != nil {
		log.Printf("Failed to set up tracker: %v", err)
		c.Close()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// Wait for shutdown signal
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	runErr := a.run(ctx)
	c.Close()
	if runErr != nil {
		log.Printf("Tracker failed: %v", runErr)
		os.Exit(1)
	}
}
