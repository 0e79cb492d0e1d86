// Command adorify runs the Adorify study-session API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/justestif/adorify/internal/auth"
	"github.com/justestif/adorify/internal/cache"
	"github.com/justestif/adorify/internal/config"
	"github.com/justestif/adorify/internal/db"
	"github.com/justestif/adorify/internal/logger"
	"github.com/justestif/adorify/internal/metrics"
	"github.com/justestif/adorify/internal/playlists"
	"github.com/justestif/adorify/internal/sessions"
	"github.com/justestif/adorify/internal/stats"
	"github.com/justestif/adorify/internal/usage"
	"github.com/justestif/adorify/internal/web"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// stores groups the persistence backends the services run on.
type stores struct {
	study     sessions.Store
	playlists playlists.Store
	web       web.SessionManager
	users     web.UserStore
	health    map[string]web.Pinger
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	st, cleanup, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	metadataCache, closeCache, err := openMetadataCache(ctx, cfg, m, st.health)
	if err != nil {
		return err
	}
	defer closeCache()

	authenticator, err := auth.New(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Server.RedirectURI)
	if err != nil {
		return err
	}

	scheduler := auth.NewScheduler(st.web, authenticator,
		auth.WithRefreshBuffer(cfg.Auth.RefreshBuffer),
		auth.WithMetrics(m),
	)
	defer scheduler.Stop()

	resumed, err := scheduler.Resume(ctx)
	if err != nil {
		slog.Warn("resuming token refresh tasks", "error", err)
	} else {
		slog.Info("resumed token refresh tasks", "count", resumed)
	}

	counter := usage.New(st.playlists, usage.WithMetrics(m))
	api := web.NewAPI(
		sessions.NewService(st.study, counter, sessions.WithMetrics(m)),
		stats.NewService(st.study,
			stats.WithLocation(loc),
			stats.WithTopUsers(cfg.Stats.TopUsers),
			stats.WithMostPlayedLimit(cfg.Stats.MostPlayedLimit),
			stats.WithMetrics(m),
		),
		playlists.NewService(st.playlists,
			playlists.WithLookupConcurrency(cfg.Stats.LookupConcurrency),
			playlists.WithMetrics(m),
		),
		web.SpotifyMetadata(authenticator, metadataCache),
	)

	server := web.NewServer(web.ServerConfig{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Sessions:     st.web,
		Handlers:     web.NewHandlers(authenticator, st.web, scheduler, st.users),
		API:          api,
		Health:       st.health,
		Metrics:      m.Handler(),
	})

	return server.Run(ctx)
}

// openStores connects to Postgres when a database URL is configured and
// falls back to in-memory stores otherwise.
func openStores(ctx context.Context, cfg *config.Config) (stores, func(), error) {
	if cfg.Database.URL == "" {
		slog.Warn("no database configured, using in-memory stores")
		return stores{
			study:     sessions.NewMemoryStore(),
			playlists: playlists.NewMemoryStore(),
			web:       web.NewSessionStore(),
			health:    map[string]web.Pinger{},
		}, func() {}, nil
	}

	database, err := db.New(ctx, cfg.Database.URL)
	if err != nil {
		return stores{}, nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := database.Migrate(cfg.Database.AutoMigrate); err != nil {
		database.Close()
		return stores{}, nil, fmt.Errorf("migrating database: %w", err)
	}

	if n, err := database.Sessions().DeleteExpired(ctx); err != nil {
		slog.Warn("deleting expired web sessions", "error", err)
	} else if n > 0 {
		slog.Info("deleted expired web sessions", "count", n)
	}

	return stores{
		study:     sessions.NewDBStore(database, cfg.Database.QueryTimeout),
		playlists: playlists.NewDBStore(database, cfg.Database.QueryTimeout),
		web:       web.NewDBSessionStore(database),
		users:     database.Users(),
		health:    map[string]web.Pinger{"database": database},
	}, database.Close, nil
}

// openMetadataCache connects to Redis when configured. Without it every
// metadata lookup goes to Spotify.
func openMetadataCache(ctx context.Context, cfg *config.Config, m *metrics.Metrics, health map[string]web.Pinger) (*playlists.MetadataCache, func(), error) {
	if cfg.Redis.URL == "" {
		return nil, func() {}, nil
	}

	rdb, err := cache.NewRedis(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	health["redis"] = rdb

	return playlists.NewMetadataCache(rdb, cfg.Redis.MetadataTTL, m), func() { _ = rdb.Close() }, nil
}
