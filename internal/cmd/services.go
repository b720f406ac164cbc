package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/scrawlgame/scrawl/internal/game"
	"github.com/scrawlgame/scrawl/internal/gateway"
	"github.com/scrawlgame/scrawl/internal/rounds"
	"github.com/scrawlgame/scrawl/internal/store"
)

// Services is the wired object graph: store → timer → coordinator →
// gateway, each constructed explicitly and owned here.
type Services struct {
	Hub     *gateway.Hub
	Handler *gateway.Handler
}

// setupServices builds everything. The returned shutdown func releases
// timers, subscriptions and connections in reverse order.
func setupServices(ctx context.Context, cfg Config) (*Services, func(), error) {
	var cleanup []func()
	shutdown := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	tuning, err := readTuning(cfg)
	if err != nil {
		return nil, nil, err
	}

	words, err := wordPicker(tuning)
	if err != nil {
		return nil, nil, err
	}

	var pool *redis.Pool
	if cfg.RedisAddr != "" {
		pool = store.NewRedisPool(cfg.RedisAddr)
		cleanup = append(cleanup, func() { pool.Close() })
	}

	var roomStore game.RoomStore
	if pool != nil {
		roomStore = store.NewRedisStore(pool, cfg.RoomTTL)
		log.Info().Str("addr", cfg.RedisAddr).Msg("using Redis room store")
	} else {
		roomStore = store.NewMemoryStore(clockwork.NewRealClock(), cfg.RoomTTL)
		log.Warn().Msg("REDIS_ADDR not set, using in-memory room store")
	}

	hub := gateway.NewHub()
	var broadcaster game.Broadcaster = hub
	if cfg.NATSURL != "" {
		// A relayed deployment means several nodes serve one game, so they
		// must share the room store and exclude each other through it.
		if pool == nil {
			shutdown()
			return nil, nil, fmt.Errorf("NATS_URL requires REDIS_ADDR: relayed nodes must share one room store")
		}
		relay, err := gateway.NewRelay(cfg.NATSURL, hub)
		if err != nil {
			shutdown()
			return nil, nil, err
		}
		if err := relay.Start(); err != nil {
			relay.Close()
			shutdown()
			return nil, nil, err
		}
		cleanup = append(cleanup, relay.Close)
		broadcaster = relay
		log.Info().Str("url", cfg.NATSURL).Msg("room events relayed over NATS")
	}

	gameCfg := gameConfig(tuning)

	var coordinator *game.Coordinator
	switch cfg.TimerBackend {
	case "redis":
		if pool == nil {
			shutdown()
			return nil, nil, fmt.Errorf("ROUND_TIMER_BACKEND=redis requires REDIS_ADDR")
		}
		notifier := rounds.NewKeyspaceNotifier(pool)
		coordinator = game.NewCoordinator(roomStore, notifier, broadcaster, words, gameCfg)
		notifier.OnExpire(coordinator)
		go func() {
			if err := notifier.Run(ctx); err != nil {
				log.Error().Err(err).Msg("keyspace notifier stopped")
			}
		}()
		log.Info().Msg("round timers backed by Redis key expiry")
	default:
		scheduler := rounds.NewScheduler(clockwork.NewRealClock())
		coordinator = game.NewCoordinator(roomStore, scheduler, broadcaster, words, gameCfg)
		scheduler.OnExpire(coordinator)
		cleanup = append(cleanup, scheduler.Close)
		log.Info().Msg("round timers backed by in-process scheduler")
	}

	if cfg.NATSURL != "" {
		// The in-process keyed mutex only excludes goroutines of this node;
		// with peers on the same store, room mutations lock through Redis.
		coordinator.UseRoomLocker(store.NewRedisLocker(pool))
		log.Info().Msg("room mutations serialized through Redis lock")
	}

	handler := gateway.NewHandler(hub, coordinator, cfg.AllowedOrigin, gateway.DefaultConnectionConfig())

	log.Info().Dur("round", gameCfg.RoundDuration).Dur("restart_delay", gameCfg.RestartDelay).
		Int("guess_reward", gameCfg.GuessReward).Msg("game configured")

	return &Services{Hub: hub, Handler: handler}, shutdown, nil
}

func readTuning(cfg Config) (*GameTuning, error) {
	if cfg.GameConfig == "" {
		return nil, nil
	}
	return loadGameTuning(cfg.GameConfig)
}

func wordPicker(tuning *GameTuning) (game.WordPicker, error) {
	words := game.DefaultWords()
	if tuning != nil && tuning.WordsFile != "" {
		loaded, err := game.LoadWordsFile(tuning.WordsFile)
		if err != nil {
			return nil, err
		}
		words = loaded
	}
	return game.NewListPicker(words, time.Now().UnixNano()), nil
}
