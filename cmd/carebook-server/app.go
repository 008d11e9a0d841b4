package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/config"
	"github.com/carebook/carebook/internal/domain/booking"
	"github.com/carebook/carebook/internal/domain/roster"
	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/internal/platform/cache"
	"github.com/carebook/carebook/internal/platform/db"
	"github.com/carebook/carebook/internal/platform/metrics"
)

// app holds the services shared by the server and the CLI commands.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	loc     *time.Location
	pool    *pgxpool.Pool
	redis   *redis.Client
	roster  *roster.Service
	booking *booking.Service
	creds   auth.CredentialStore
	metrics *metrics.Metrics
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func connectPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
	})
}

// buildApp wires repositories for the configured backend and the services
// on top of them.
func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, loc: loc, metrics: metrics.New()}

	var (
		hospitals roster.HospitalRepository
		doctors   roster.DoctorRepository
		tx        booking.Transactor
		repo      booking.Repository
	)
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := connectPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		hospitals = roster.NewHospitalRepo(pool)
		doctors = roster.NewDoctorRepo(pool)
		tx = db.NewTransactor(pool)
		repo = booking.NewAppointmentRepo(pool)
		a.creds = auth.NewPGCredentialStore(pool)
		a.metrics.RegisterPool(func() *db.PoolStats { return db.GetPoolStats(pool) })
		logger.Info().Msg("connected to database")
	case config.BackendMemory:
		hospitals = roster.NewMemoryHospitalRepo()
		doctors = roster.NewMemoryDoctorRepo(hospitals)
		tx = booking.NewMemoryTransactor()
		repo = booking.NewMemoryAppointmentRepo()
		a.creds = auth.NewInMemoryCredentialStore()
		logger.Warn().Msg("using in-memory store; data is lost on exit")
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	opts := []booking.Option{booking.WithRecorder(a.metrics)}
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.redis = client
		opts = append(opts, booking.WithStatsCache(cache.NewRedisStatsCache(client, cfg.StatsCacheTTL, logger)))
		logger.Info().Dur("ttl", cfg.StatsCacheTTL).Msg("stats cache enabled")
	}

	a.roster = roster.NewService(hospitals, doctors, cfg.DefaultDailyCap, logger)
	a.booking = booking.NewService(tx, repo, a.roster, loc, logger, opts...)
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// addStaff creates a staff login and the placeholder hospital it manages.
func (a *app) addStaff(ctx context.Context, username, password string) error {
	username = auth.NormalizeUsername(username)
	if err := a.creds.Create(ctx, username, password); err != nil {
		return err
	}
	return a.roster.RegisterHospital(ctx, username)
}
