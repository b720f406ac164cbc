package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog/log"

	"github.com/scrawlgame/scrawl/internal/game"
)

const roomKeyPrefix = "room:"

// RedisStore keeps one record per room under room:<id> with a sliding
// expiration refreshed on every Save.
type RedisStore struct {
	pool *redis.Pool
	ttl  time.Duration
}

func NewRedisStore(pool *redis.Pool, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{pool: pool, ttl: ttl}
}

// NewRedisPool builds a connection pool for the given address.
func NewRedisPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     8,
		MaxActive:   64,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr,
				redis.DialConnectTimeout(5*time.Second),
				redis.DialReadTimeout(5*time.Second),
				redis.DialWriteTimeout(5*time.Second),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

func (s *RedisStore) Get(ctx context.Context, roomID string) (*game.Room, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("redis conn: %w", err)
	}
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", roomKeyPrefix+roomID))
	if errors.Is(err, redis.ErrNil) {
		return nil, game.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get room %s: %w", roomID, err)
	}
	room, err := DecodeRoom(data)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("undecodable room record")
		return nil, err
	}
	return room, nil
}

func (s *RedisStore) Save(ctx context.Context, roomID string, room *game.Room) error {
	data, err := EncodeRoom(room)
	if err != nil {
		return err
	}
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("SET", roomKeyPrefix+roomID, data, "EX", int(s.ttl.Seconds())); err != nil {
		return fmt.Errorf("redis set room %s: %w", roomID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, roomID string) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("DEL", roomKeyPrefix+roomID); err != nil {
		return fmt.Errorf("redis del room %s: %w", roomID, err)
	}
	return nil
}
