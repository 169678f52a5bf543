package daemon

import (
	"context"
	"errors"
	"os"

	"github.com/hemma-app/hemma/internal/api"
	"github.com/hemma-app/hemma/internal/bus"
	"github.com/hemma-app/hemma/internal/chat"
	"github.com/hemma-app/hemma/internal/config"
	"github.com/hemma-app/hemma/internal/lock"
	"github.com/hemma-app/hemma/internal/logging"
	"github.com/hemma-app/hemma/internal/market"
	"github.com/hemma-app/hemma/internal/notify"
	"github.com/hemma-app/hemma/internal/reconcile"
	"github.com/hemma-app/hemma/internal/rooms"
	"github.com/hemma-app/hemma/internal/session"
	"github.com/hemma-app/hemma/internal/status"
	"github.com/hemma-app/hemma/internal/store"
	"github.com/hemma-app/hemma/internal/stream"
	intsync "github.com/hemma-app/hemma/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
}

// Machines bundles the per-channel state machines so both can ride one
// provider.
type Machines struct {
	Stream *status.Machine
	Chat   *status.Machine
}

// Credential is the session's opaque bearer token.
type Credential string

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideMachines,
			provideLock,
			provideCredential,
			provideStore,
			provideNotifyStore,
			provideProjector,
			provideMarketClient,
			provideSyncer,
			provideEngine,
			provideStreamClient,
			provideChatClient,
			provideNotificationService,
			provideRoomService,
			provideStatusService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

// provideConfig loads ~/.hemma/config.toml, falling back to defaults when
// the file does not exist yet.
func provideConfig(logger *zap.Logger) (*config.Config, error) {
	cfg, err := config.Load(session.ConfigPath())
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("no config file, using defaults")
		return config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideMachines(b *bus.Bus) Machines {
	return Machines{
		Stream: status.NewMachine("stream", b),
		Chat:   status.NewMachine("chat", b),
	}
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

func provideCredential(p Params, logger *zap.Logger) (Credential, error) {
	token, err := session.LoadCredential(p.SessionName)
	if err != nil {
		return "", err
	}
	logger.Info("credential loaded", zap.String("session", p.SessionName))
	return Credential(token), nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.CacheDBPath(p.SessionName)
	db, err := store.Open(dbPath)
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

func provideNotifyStore(db *store.DB, b *bus.Bus, logger *zap.Logger) (*notify.Store, error) {
	return notify.New(db, b, logger)
}

func provideProjector(db *store.DB, b *bus.Bus, logger *zap.Logger) (*rooms.Projector, error) {
	return rooms.New(db, b, logger)
}

func provideMarketClient(cfg *config.Config, cred Credential, logger *zap.Logger) *market.Client {
	return market.NewClient(cfg.Server.BaseURL, string(cred), logger)
}

func provideSyncer(client *market.Client, n *notify.Store, b *bus.Bus, logger *zap.Logger) *reconcile.Syncer {
	return reconcile.NewSyncer(client, n, b, logger)
}

func provideEngine(cfg *config.Config, b *bus.Bus, n *notify.Store, p *rooms.Projector, s *reconcile.Syncer, logger *zap.Logger) *intsync.Engine {
	return intsync.New(b, n, p, s, cfg.Server.SelfID, logger)
}

func provideStreamClient(cfg *config.Config, cred Credential, b *bus.Bus, m Machines, logger *zap.Logger) *stream.Client {
	return stream.NewClient(cfg.Server.BaseURL, string(cred),
		cfg.HeartbeatTimeout(), cfg.ReconnectDelay(), b, m.Stream, logger)
}

func provideChatClient(cfg *config.Config, cred Credential, m Machines, logger *zap.Logger) *chat.Client {
	return chat.NewClient(cfg.Server.BaseURL, string(cred), cfg.ReconnectDelay(), m.Chat, logger)
}

func provideNotificationService(client *market.Client, n *notify.Store, logger *zap.Logger) *api.NotificationService {
	return api.NewNotificationService(client, n, logger)
}

func provideRoomService(cfg *config.Config, p *rooms.Projector, c *chat.Client, e *intsync.Engine, logger *zap.Logger) *api.RoomService {
	return api.NewRoomService(p, c, e.HandleChat, cfg.Server.SelfID, logger)
}

func provideStatusService(m Machines) *api.StatusService {
	return api.NewStatusService(m.Stream, m.Chat)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB,
	streamCli *stream.Client, chatCli *chat.Client, engine *intsync.Engine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Routing must be live before either channel can publish.
			engine.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("local API server error", zap.Error(err))
				}
			}()

			streamCli.Start(context.Background())
			go func() {
				if err := chatCli.Connect(context.Background()); err != nil {
					logger.Error("chat connect failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			streamCli.Stop()
			chatCli.Disconnect()
			engine.Stop()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
