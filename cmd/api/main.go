package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apmanager001/tripmaps-sub000/internal/config"
	"github.com/apmanager001/tripmaps-sub000/internal/db"
	"github.com/apmanager001/tripmaps-sub000/internal/logging"
	"github.com/apmanager001/tripmaps-sub000/internal/objectstore"
	"github.com/apmanager001/tripmaps-sub000/internal/server"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

// Resources are the external connections the server runs on. Any of them
// may be nil when the dependency is unavailable at startup.
type Resources struct {
	Postgres *pgxpool.Pool
	Redis    *redis.Client
	Store    objectstore.Store
	Log      *logrus.Logger
}

type mainDeps struct {
	loadConfig      func() config.Config
	newLogger       func(config.Config) *logrus.Logger
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	migrate         func(context.Context, db.Querier) error
	connectRedis    func(config.Config) *redis.Client
	newStore        func(context.Context, config.Config) (*objectstore.S3, error)
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, Resources, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		newLogger:       logging.New,
		connectPostgres: db.ConnectPostgres,
		migrate:         db.Migrate,
		connectRedis:    db.ConnectRedis,
		newStore:        objectstore.NewS3,
		notify:          signal.Notify,
		run:             Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()
	log := deps.newLogger(cfg)
	res := Resources{Log: log}

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.WithError(err).Error("postgres connection failed")
	} else {
		res.Postgres = pg
		if err := deps.migrate(context.Background(), pg); err != nil {
			log.WithError(err).Error("schema migration failed")
		}
	}

	res.Redis = deps.connectRedis(cfg)

	store, err := deps.newStore(context.Background(), cfg)
	if err != nil {
		log.WithError(err).Warn("object store unavailable, photo uploads disabled")
	} else {
		res.Store = store
	}

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, res, signals, nil); err != nil {
		log.WithError(err).Error("server exited with error")
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and waits for termination signals.
func Run(ctx context.Context, cfg config.Config, res Resources, signals <-chan os.Signal, listen ListenFunc) error {
	var pool db.DB
	if res.Postgres != nil {
		pool = res.Postgres
	}
	srv := server.NewServer(cfg, pool, res.Redis, res.Store, res.Log)
	defer srv.Close()

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil {
		return err
	}
	if res.Postgres != nil {
		res.Postgres.Close()
	}
	if res.Redis != nil {
		_ = res.Redis.Close()
	}
	return nil
}
