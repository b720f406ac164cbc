package rounds

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog/log"
)

const (
	roundEndKeyPrefix = "roundtimer:"
	restartKeyPrefix  = "roundrestart:"
	expiredPattern    = "__keyevent@*__:expired"
)

// KeyspaceNotifier implements the round timer on Redis key expiration:
// arming a room writes an ephemeral marker with the round duration as its
// lifetime, and the keyspace notification for the expired marker carries
// the room id and generation back to the handler. Markers live in Redis,
// so armed rounds survive a process restart. Notifications are
// fire-and-forget on the Redis side and reach every subscribed node, so
// a delivery is at-least-once: the handler's generation check, run under
// the shared room lock, discards all but the first.
type KeyspaceNotifier struct {
	pool    *redis.Pool
	handler ExpiryHandler

	mu    sync.Mutex
	armed map[timerKey]string
}

func NewKeyspaceNotifier(pool *redis.Pool) *KeyspaceNotifier {
	return &KeyspaceNotifier{
		pool:  pool,
		armed: make(map[timerKey]string),
	}
}

// OnExpire registers the handler. Must be called before Run.
func (n *KeyspaceNotifier) OnExpire(h ExpiryHandler) {
	n.handler = h
}

func (n *KeyspaceNotifier) ArmRoundEnd(roomID string, gen uint64, d time.Duration) error {
	key := fmt.Sprintf("%s%s:%d", roundEndKeyPrefix, roomID, gen)
	return n.arm(timerKey{roomID: roomID, kind: kindRoundEnd}, key, d)
}

func (n *KeyspaceNotifier) ArmRestart(roomID string, gen uint64, d time.Duration) error {
	key := fmt.Sprintf("%s%s:%d", restartKeyPrefix, roomID, gen)
	return n.arm(timerKey{roomID: roomID, kind: kindRestart}, key, d)
}

// Cancel deletes a room's live markers. A marker that expires between the
// decision to cancel and the DEL still reaches the handler, which discards
// it by generation.
func (n *KeyspaceNotifier) Cancel(roomID string) {
	n.mu.Lock()
	var stale []string
	for _, kind := range []timerKind{kindRoundEnd, kindRestart} {
		key := timerKey{roomID: roomID, kind: kind}
		if marker, ok := n.armed[key]; ok {
			stale = append(stale, marker)
			delete(n.armed, key)
		}
	}
	n.mu.Unlock()
	if len(stale) == 0 {
		return
	}

	conn := n.pool.Get()
	defer conn.Close()
	args := make([]any, len(stale))
	for i, marker := range stale {
		args[i] = marker
	}
	if _, err := conn.Do("DEL", args...); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("failed to delete round markers")
	}
}

func (n *KeyspaceNotifier) arm(key timerKey, marker string, d time.Duration) error {
	conn := n.pool.Get()
	defer conn.Close()

	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	if _, err := conn.Do("SET", marker, "1", "PX", ms); err != nil {
		return fmt.Errorf("set round marker %s: %w", marker, err)
	}

	n.mu.Lock()
	prev, replaced := n.armed[key]
	n.armed[key] = marker
	n.mu.Unlock()

	if replaced && prev != marker {
		if _, err := conn.Do("DEL", prev); err != nil {
			log.Warn().Err(err).Str("marker", prev).Msg("failed to delete replaced round marker")
		}
	}
	return nil
}

// Run subscribes to expired-key notifications and feeds them to the
// handler until the context is cancelled, reconnecting with backoff when
// the subscription drops.
func (n *KeyspaceNotifier) Run(ctx context.Context) error {
	if err := n.enableNotifications(); err != nil {
		return err
	}
	for {
		err := n.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		log.Error().Err(err).Msg("keyspace subscription lost, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(2 * time.Second):
		}
	}
}

// enableNotifications turns on expired-event keyspace notifications for
// the target Redis, as the deployment may not have them configured.
func (n *KeyspaceNotifier) enableNotifications() error {
	conn := n.pool.Get()
	defer conn.Close()
	if _, err := conn.Do("CONFIG", "SET", "notify-keyspace-events", "Ex"); err != nil {
		return fmt.Errorf("enable keyspace notifications: %w", err)
	}
	return nil
}

func (n *KeyspaceNotifier) listen(ctx context.Context) error {
	conn := n.pool.Get()
	defer conn.Close()

	psc := redis.PubSubConn{Conn: conn}
	if err := psc.PSubscribe(expiredPattern); err != nil {
		return fmt.Errorf("psubscribe %s: %w", expiredPattern, err)
	}
	defer psc.PUnsubscribe()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		switch msg := psc.Receive().(type) {
		case redis.Message:
			n.dispatch(ctx, string(msg.Data))
		case redis.Subscription:
			log.Info().Str("channel", msg.Channel).Str("kind", msg.Kind).
				Msg("keyspace subscription state")
		case error:
			return msg
		}
	}
}

// dispatch parses an expired marker key and invokes the matching handler.
// Keys from other applications sharing the Redis are ignored.
func (n *KeyspaceNotifier) dispatch(ctx context.Context, expiredKey string) {
	var (
		rest string
		fire func(context.Context, string, uint64) error
	)
	switch {
	case strings.HasPrefix(expiredKey, roundEndKeyPrefix):
		rest = expiredKey[len(roundEndKeyPrefix):]
		fire = n.handler.HandleRoundExpire
	case strings.HasPrefix(expiredKey, restartKeyPrefix):
		rest = expiredKey[len(restartKeyPrefix):]
		fire = n.handler.HandleRestart
	default:
		return
	}

	sep := strings.LastIndex(rest, ":")
	if sep <= 0 {
		log.Warn().Str("key", expiredKey).Msg("malformed round marker key")
		return
	}
	roomID := rest[:sep]
	gen, err := strconv.ParseUint(rest[sep+1:], 10, 64)
	if err != nil {
		log.Warn().Str("key", expiredKey).Msg("malformed round marker generation")
		return
	}
	if err := fire(ctx, roomID, gen); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Uint64("gen", gen).
			Msg("round marker handler failed")
	}
}
