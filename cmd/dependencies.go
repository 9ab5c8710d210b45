package cmd

import (
	"context"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"crypto-signals/config"
	"crypto-signals/pkg/bus"
	"crypto-signals/pkg/cache"
	"crypto-signals/pkg/logger"
	"crypto-signals/pkg/postgres"
)

type AppDependency struct {
	db            *postgres.DB
	cfg           *config.Config
	log           *logger.Logger
	validator     *goValidator.Validate
	echo          *echo.Echo
	cache         cache.Cache
	notifications bus.Bus
}

func NewAppDependency(ctx context.Context) (*AppDependency, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Encoding, cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	if err != nil {
		return nil, err
	}

	db, err := postgres.NewDB(cfg.DB, log)
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		return nil, err
	}

	notifications, err := newBus(cfg, log)
	if err != nil {
		log.Error("Failed to initialize notification bus", zap.Error(err))
		return nil, err
	}

	return &AppDependency{
		cfg:           cfg,
		log:           log,
		validator:     goValidator.New(),
		db:            db,
		echo:          echo.New(),
		cache:         cache.NewCache(cfg.Cache.DefaultExpiration, cfg.Cache.CleanupInterval),
		notifications: notifications,
	}, nil
}

// newBus picks Redis pub/sub when an address is configured, otherwise the
// in-process bus, which limits fan-out to a single instance.
func newBus(cfg *config.Config, log *logger.Logger) (bus.Bus, error) {
	if cfg.Redis.Addr == "" {
		log.Warn("No redis address configured, using in-memory notification bus")
		return bus.NewMemoryBus(), nil
	}
	return bus.NewRedisBus(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel, log)
}

func (d *AppDependency) Close() error {
	d.log.Info("Closing app dependency")
	if d.notifications != nil {
		if err := d.notifications.Close(); err != nil {
			d.log.Error("Failed to close notification bus", zap.Error(err))
		}
	}
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
