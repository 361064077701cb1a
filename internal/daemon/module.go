// Package daemon composes the session daemon: one locked session dir, the
// sqlite cache, the sync engine, the outbox drain loop and the local
// introspection HTTP server.
package daemon

import (
	"context"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ecomstore/chatsync/internal/bus"
	"github.com/ecomstore/chatsync/internal/cache"
	"github.com/ecomstore/chatsync/internal/config"
	"github.com/ecomstore/chatsync/internal/lock"
	"github.com/ecomstore/chatsync/internal/logging"
	"github.com/ecomstore/chatsync/internal/outbox"
	"github.com/ecomstore/chatsync/internal/rest"
	"github.com/ecomstore/chatsync/internal/session"
	intsync "github.com/ecomstore/chatsync/internal/sync"
	"github.com/ecomstore/chatsync/internal/transport"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	// Credential is the service token used for the channel handshake and
	// REST requests.
	Credential string
	// ListenAddr overrides the configured introspection address (tests).
	ListenAddr string
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideCache,
			provideRESTClient,
			provideEngine,
			provideSender,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	path := session.ConfigPath()
	if _, err := os.Stat(path); err != nil {
		// First run: no config file yet.
		return config.Default(), nil
	}
	return config.Load(path)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideCache(p Params, logger *zap.Logger) (*cache.DB, error) {
	dbPath := session.CacheDBPath(p.SessionName)
	db, err := cache.Open(dbPath)
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
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRESTClient(p Params, cfg *config.Config, logger *zap.Logger) *rest.Client {
	return rest.NewClient(cfg.RESTBaseURL, p.Credential, nil, logger)
}

func provideEngine(cfg *config.Config, rc *rest.Client, db *cache.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.New(cfg, transport.Options{
		Endpoints:      cfg.Endpoints,
		ConnectTimeout: cfg.ConnectTimeout(),
	}, "", rc, db, b, logger)
}

func provideSender(db *cache.DB, engine *intsync.Engine, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, engine, b, logger)
}

func provideServer(p Params, cfg *config.Config, logger *zap.Logger, engine *intsync.Engine, db *cache.DB) (*Server, error) {
	addr := p.ListenAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}
	return NewServer(p, addr, logger, engine, db)
}

func registerLifecycle(lc fx.Lifecycle, p Params, srv *Server, lk *lock.Lock, engine *intsync.Engine, sender *outbox.Sender, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Serve the cached state before any network activity.
			engine.WarmStart()

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("introspection server error", zap.Error(err))
				}
			}()

			sender.Start(context.Background())

			// The channel connects in the background; failures roll into
			// the engine's reconnect cycle.
			go func() {
				if err := engine.Connect(context.Background(), p.Credential); err != nil {
					logger.Warn("initial connect failed", zap.Error(err))
					return
				}
				if err := engine.RefreshPresence(context.Background()); err != nil {
					logger.Warn("presence refresh failed", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			sender.Stop()
			engine.Disconnect()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
