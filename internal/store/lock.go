package store

import (
	"errors"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/scrawlgame/scrawl/internal/game"
)

const (
	lockKeyPrefix = "roomlock:"

	// lockTTL caps how long a crashed holder can block a room. Room
	// mutations are single round trips, so holds are far shorter.
	lockTTL = 10 * time.Second

	lockRetryDelay = 20 * time.Millisecond
)

// releaseScript deletes the lock only when the stored token is the
// caller's, so a holder whose lock already expired cannot release a
// successor's lock.
var releaseScript = redis.NewScript(1, `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker serializes room mutations across processes sharing one
// Redis: a SET NX PX token per room, polled until acquired. Used when
// several relayed nodes work against the same room store, where the
// in-process keyed mutex cannot exclude a peer node.
type RedisLocker struct {
	pool *redis.Pool
}

func NewRedisLocker(pool *redis.Pool) *RedisLocker {
	return &RedisLocker{pool: pool}
}

// Acquire blocks until this process holds the room's lock and returns a
// release func. The release func must be called exactly once.
func (l *RedisLocker) Acquire(roomID string) func() {
	key := lockKeyPrefix + roomID
	token := uuid.NewString()

	for {
		conn := l.pool.Get()
		reply, err := redis.String(conn.Do("SET", key, token, "NX", "PX", lockTTL.Milliseconds()))
		conn.Close()
		if err == nil && reply == "OK" {
			break
		}
		if err != nil && !errors.Is(err, redis.ErrNil) {
			log.Warn().Err(err).Str("room_id", roomID).Msg("room lock acquisition failed, retrying")
		}
		time.Sleep(lockRetryDelay)
	}

	return func() {
		conn := l.pool.Get()
		defer conn.Close()
		if _, err := releaseScript.Do(conn, key, token); err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("room lock release failed")
		}
	}
}

var _ game.RoomLocker = (*RedisLocker)(nil)
