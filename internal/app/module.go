// Package app composes the client from its parts with fx.
package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tmarsal/parley/internal/account"
	"github.com/tmarsal/parley/internal/audio"
	"github.com/tmarsal/parley/internal/auth"
	"github.com/tmarsal/parley/internal/bus"
	"github.com/tmarsal/parley/internal/logging"
	"github.com/tmarsal/parley/internal/outbox"
	"github.com/tmarsal/parley/internal/store"
	intsync "github.com/tmarsal/parley/internal/sync"
	"github.com/tmarsal/parley/internal/tui"
	"github.com/tmarsal/parley/internal/wire"
)

// Params holds the resolved account configuration passed to the fx module.
type Params struct {
	AccountName string
	ServerURL   string
}

// Module returns the fx module for the client, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("parley",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideAuthClient,
			provideWire,
			provideSyncEngine,
			provideSender,
			provideAudio,
			provideApp,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(account.LogPath(p.AccountName), p.AccountName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*account.Lock, error) {
	if err := account.EnsureDir(p.AccountName); err != nil {
		return nil, err
	}
	logger.Info("acquiring account lock", zap.String("account", p.AccountName))
	l, err := account.AcquireLock(account.Dir(p.AccountName))
	if err != nil {
		return nil, err
	}
	logger.Info("account lock acquired")
	return l, nil
}

func provideStore(p Params, b *bus.Bus, logger *zap.Logger) (*store.DB, error) {
	dbPath := account.DBPath(p.AccountName)
	db, err := store.Open(dbPath, b)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideAuthClient(p Params, logger *zap.Logger) auth.Service {
	return auth.NewClient(p.ServerURL, logger)
}

func provideWire(p Params, b *bus.Bus, logger *zap.Logger) *wire.Client {
	return wire.NewClient(p.ServerURL, b, logger)
}

func provideSyncEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, logger)
}

func provideSender(db *store.DB, wireC *wire.Client, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, wireC, b, logger)
}

func provideAudio(logger *zap.Logger) *audio.Session {
	return audio.NewSession(logger)
}

func provideApp(p Params, db *store.DB, b *bus.Bus, authc auth.Service, audioSess *audio.Session, wireC *wire.Client, logger *zap.Logger) *tui.App {
	return tui.NewApp(db, b, authc, audioSess, wireC, p.AccountName, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *account.Lock, engine *intsync.Engine, sender *outbox.Sender, wireC *wire.Client, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The wire event loop starts later, once sign-in has
			// produced a session token.
			engine.Start(context.Background())
			sender.Start(context.Background())
			return nil
		},
		OnStop: func(_ context.Context) error {
			sender.Stop()
			engine.Stop()
			wireC.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}
