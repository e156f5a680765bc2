package app

import (
	"context"
	"fmt"

	"ecolisting-chat-backend/internal/api"
	"ecolisting-chat-backend/internal/chat"
	"ecolisting-chat-backend/internal/config"
	"ecolisting-chat-backend/internal/database"
	"ecolisting-chat-backend/internal/env"
	"ecolisting-chat-backend/internal/functions"
	internaljwt "ecolisting-chat-backend/internal/jwt"
	"ecolisting-chat-backend/internal/localstore"
	"ecolisting-chat-backend/internal/logger"
	"ecolisting-chat-backend/internal/queue"
	"ecolisting-chat-backend/internal/realtime"
	"ecolisting-chat-backend/internal/service/binder"
	"ecolisting-chat-backend/internal/service/conversation"
	"ecolisting-chat-backend/internal/service/feed"
	"ecolisting-chat-backend/internal/service/identity"
	"ecolisting-chat-backend/internal/service/notify"
	"ecolisting-chat-backend/internal/service/policy"

	"github.com/go-redis/redis/v8"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
)

// App holds the components every server is assembled from.
type App struct {
	Config        *config.Config
	Log           *logger.Logger
	Queue         *queue.RequestQueueManager
	Conversations *conversation.Service
	Broker        *realtime.Broker
	Auth          *internaljwt.Authenticator
	Chat          *chat.Service
	Policy        *policy.Decider

	redis *redis.Client
}

// Bootstrap loads .env and the process config and builds the logger.
func Bootstrap(server string) (*config.Config, *logger.Logger, error) {
	if err := env.Load(); err != nil {
		return nil, nil, err
	}
	if err := env.Require(config.RequiredKeys()...); err != nil {
		return nil, nil, err
	}
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log.With("server", server), nil
}

func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	log = logger.OrNop(log)
	a := &App{
		Config: cfg,
		Log:    log,
		Queue:  queue.NewRequestQueueManager(cfg.QueueSize, cfg.WorkerCount, log),
	}

	if cfg.RealtimeBackend != BackendMemory {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPass,
			DB:       0,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisURL, err)
		}
	}

	conversations, err := a.conversationService(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Conversations = conversations

	var (
		bus      realtime.Bus
		profiles localstore.Profiles
		revoked  internaljwt.RevocationStore
	)
	if a.redis != nil {
		bus = realtime.NewRedisBus(a.redis)
		profiles = localstore.NewRedisProfiles(a.redis)
		revoked = internaljwt.NewRedisRevocationStore(a.redis)
	} else {
		bus = realtime.NewMemoryBus()
		profiles = localstore.NewMemoryProfiles()
		revoked = internaljwt.NewMemoryRevocationStore()
	}
	a.Broker = realtime.NewBroker(bus, log)
	a.Auth = internaljwt.NewAuthenticator(cfg.SessionSecret, revoked)
	a.Policy = policy.New(conversations, nil, log)

	dispatcher := notify.NewDispatcher(
		functions.NewClient(cfg.FunctionsURL, cfg.FunctionsAnonKey, nil),
		conversations,
		a.Broker,
		a.Queue,
		notify.Config{
			Lookback:           cfg.AutoReplyLookback,
			PolicyTimeout:      cfg.PolicyTimeout,
			AutoReplyTimeout:   cfg.AutoReplyTimeout,
			NotifyTimeout:      cfg.NotifyTimeout,
			AutoReplyPerMinute: cfg.AutoReplyPerMinute,
		},
		log,
	)

	a.Chat = chat.NewService(chat.Deps{
		Resolver:      identity.NewResolver(a.Auth, conversations, cfg.RoleCacheTTL, log),
		Binder:        binder.New(conversations, cfg.PublicWebURL, log),
		Feed:          feed.NewStore(conversations, a.Broker, cfg.HistoryLimit, log),
		Dispatcher:    dispatcher,
		Conversations: conversations,
		Profiles:      profiles,
		Auth:          a.Auth,
		Log:           log,
	})

	log.Info("app ready",
		"storage", cfg.StorageBackend,
		"realtime", cfg.RealtimeBackend,
		"workers", cfg.WorkerCount,
		"queue", cfg.QueueSize,
	)
	return a, nil
}

func (a *App) conversationService(ctx context.Context) (*conversation.Service, error) {
	switch a.Config.StorageBackend {
	case BackendMemory:
		a.Log.Warn("using in-memory conversation storage")
		return conversation.NewWithRepository(conversation.NewMemoryRepository(), nil), nil
	case BackendDynamoDB, "":
		db, err := database.NewDatabase(ctx, a.Config)
		if err != nil {
			return nil, fmt.Errorf("db init failed: %w", err)
		}
		return conversation.New(db), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", a.Config.StorageBackend)
	}
}

func (a *App) Services() api.Services {
	return api.Services{
		Chat:          a.Chat,
		Conversations: a.Conversations,
		Policy:        a.Policy,
		Auth:          a.Auth,
	}
}

func (a *App) Options() api.Options {
	return api.Options{
		AllowedOrigins: a.Config.AllowedOrigins,
		FunctionsKey:   a.Config.FunctionsAnonKey,
	}
}

// Close drains the worker pool and releases the redis connection.
func (a *App) Close() {
	if a.Queue != nil {
		a.Queue.Shutdown()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Log.Warn("close redis", "error", err)
		}
	}
	a.Log.Sync()
}
