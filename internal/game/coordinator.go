package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RoomStore persists one record per room. Get returns ErrRoomNotFound when
// no record exists; Save refreshes the record's sliding expiration.
type RoomStore interface {
	Get(ctx context.Context, roomID string) (*Room, error)
	Save(ctx context.Context, roomID string, room *Room) error
	Delete(ctx context.Context, roomID string) error
}

// RoundTimer schedules the one-shot notifications bounding a round and the
// delayed auto-restart after one ends. Re-arming a room replaces the prior
// schedule; delivery is at-least-once, so handlers are generation-checked.
type RoundTimer interface {
	ArmRoundEnd(roomID string, gen uint64, d time.Duration) error
	ArmRestart(roomID string, gen uint64, d time.Duration) error
	Cancel(roomID string)
}

// RoomLocker serializes every load→mutate→save sequence against a room.
// The default is the in-process keyed mutex; a deployment where several
// nodes share one store swaps in a store-backed locker so the exclusion
// spans processes.
type RoomLocker interface {
	Acquire(roomID string) (release func())
}

// Broadcaster fans outbound events out to a room's attached sessions.
// Per-recipient ordering matches emission order; no cross-recipient
// ordering is guaranteed.
type Broadcaster interface {
	Attach(roomID, sessionID string)
	ToRoom(roomID, event string, payload any)
	ToRoomExcept(roomID, senderID, event string, payload any)
	ToSession(sessionID, event string, payload any)
}

// Config tunes round pacing and scoring.
type Config struct {
	RoundDuration time.Duration
	RestartDelay  time.Duration
	GuessReward   int
}

func DefaultConfig() Config {
	return Config{
		RoundDuration: 60 * time.Second,
		RestartDelay:  5 * time.Second,
		GuessReward:   10,
	}
}

// Coordinator owns every room and round transition. It is constructed once
// by the composition root and shared by the transport layer and the round
// timer; there is no package-level instance.
//
// Every operation serializes its load→mutate→save sequence through a
// per-room lock, so client events and timer expiries against the same room
// never interleave mid-mutation. Mutations are applied to the loaded copy
// and persisted with a single Save; a failed Save surfaces a retryable
// error without partial state.
type Coordinator struct {
	store RoomStore
	timer RoundTimer
	bcast Broadcaster
	words WordPicker
	cfg   Config

	locks RoomLocker

	// session→room index maintained on join/reconnect/disconnect so
	// Disconnect resolves without scanning every room.
	mu           sync.Mutex
	sessionRooms map[string]string
}

func NewCoordinator(store RoomStore, timer RoundTimer, bcast Broadcaster, words WordPicker, cfg Config) *Coordinator {
	return &Coordinator{
		store:        store,
		timer:        timer,
		bcast:        bcast,
		words:        words,
		cfg:          cfg,
		locks:        newLockRegistry(),
		sessionRooms: make(map[string]string),
	}
}

// UseRoomLocker replaces the default in-process room lock. Must be called
// before the coordinator starts handling events.
func (c *Coordinator) UseRoomLocker(l RoomLocker) {
	c.locks = l
}

// Join adds a session to a room, creating the room on first contact, and
// replies with the current state before announcing the updated player set.
func (c *Coordinator) Join(ctx context.Context, sessionID, roomID, name string) error {
	if sessionID == "" || roomID == "" || name == "" {
		return ErrInvalidInput
	}
	release := c.locks.Acquire(roomID)
	defer release()

	room, err := c.loadOrInit(ctx, roomID)
	if err != nil {
		return err
	}
	room.AddPlayer(sessionID, name)
	if err := c.store.Save(ctx, roomID, room); err != nil {
		return fmt.Errorf("save room %s: %w", roomID, err)
	}
	c.indexSession(sessionID, roomID)

	c.bcast.Attach(roomID, sessionID)
	c.bcast.ToSession(sessionID, EventRoomJoined, RoomJoinedPayload{
		Players:          room.Players,
		CurrentDrawerIdx: room.CurrentDrawerIdx,
		Scene:            room.Scene,
	})
	c.bcast.ToRoom(roomID, EventRoomUpdate, RoomUpdatePayload{Players: room.Players})

	log.Info().Str("room_id", roomID).Str("session_id", sessionID).Str("name", name).
		Int("players", len(room.Players)).Msg("session joined room")
	return nil
}

// Reconnect migrates a prior session's player state and rotation slot to a
// new session id. An unknown prior session fails with ErrSessionNotFound
// and leaves the room untouched.
func (c *Coordinator) Reconnect(ctx context.Context, sessionID, roomID, oldSessionID string) error {
	if sessionID == "" || roomID == "" || oldSessionID == "" {
		return ErrInvalidInput
	}
	release := c.locks.Acquire(roomID)
	defer release()

	room, err := c.loadOrInit(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.MigrateSession(oldSessionID, sessionID) {
		return ErrSessionNotFound
	}
	if err := c.store.Save(ctx, roomID, room); err != nil {
		return fmt.Errorf("save room %s: %w", roomID, err)
	}
	c.mu.Lock()
	delete(c.sessionRooms, oldSessionID)
	c.sessionRooms[sessionID] = roomID
	c.mu.Unlock()

	c.bcast.Attach(roomID, sessionID)
	c.bcast.ToSession(sessionID, EventReconnected, ReconnectedPayload{
		Players:          room.Players,
		Scene:            room.Scene,
		CurrentDrawerIdx: room.CurrentDrawerIdx,
	})

	log.Info().Str("room_id", roomID).Str("session_id", sessionID).
		Str("old_session_id", oldSessionID).Msg("session reconnected")
	return nil
}

// StartRound begins a round if the caller holds the drawer cursor. Anyone
// else is silently ignored, matching the original policy of not surfacing
// unauthorized actions.
func (c *Coordinator) StartRound(ctx context.Context, sessionID, roomID string) error {
	release := c.locks.Acquire(roomID)
	defer release()

	room, err := c.loadOrInit(ctx, roomID)
	if err != nil {
		return err
	}
	drawer, ok := room.CurrentDrawer()
	if !ok || drawer != sessionID {
		return nil
	}
	c.bcast.ToRoom(roomID, EventGameStarted, struct{}{})
	return c.startRoundLocked(ctx, roomID, room)
}

// UpdateScene stores the shared drawing and forwards the diff to everyone
// but the drawer. Non-drawers are silently ignored.
func (c *Coordinator) UpdateScene(ctx context.Context, sessionID, roomID string, diff SceneDiffPayload) error {
	release := c.locks.Acquire(roomID)
	defer release()

	room, err := c.loadOrInit(ctx, roomID)
	if err != nil {
		return err
	}
	drawer, ok := room.CurrentDrawer()
	if !ok || drawer != sessionID {
		return nil
	}
	room.Scene = &Scene{Elements: diff.Elements, AppState: diff.AppState}
	if err := c.store.Save(ctx, roomID, room); err != nil {
		return fmt.Errorf("save room %s: %w", roomID, err)
	}
	c.bcast.ToRoomExcept(roomID, sessionID, EventSceneDiff, diff)
	return nil
}

// Guess scores a case-insensitive exact match against the hidden word.
// A wrong guess doubles as chat for the whole room. Unknown sessions and
// players who already guessed this round are ignored.
func (c *Coordinator) Guess(ctx context.Context, sessionID, roomID, text string) error {
	release := c.locks.Acquire(roomID)
	defer release()

	room, err := c.loadOrInit(ctx, roomID)
	if err != nil {
		return err
	}
	player, ok := room.Players[sessionID]
	if !ok || player.HasGuessed {
		return nil
	}
	if room.RoundActive() && strings.EqualFold(text, room.CurrentWord) {
		player.HasGuessed = true
		player.Score += c.cfg.GuessReward
		if err := c.store.Save(ctx, roomID, room); err != nil {
			return fmt.Errorf("save room %s: %w", roomID, err)
		}
		c.bcast.ToRoom(roomID, EventCorrectGuess, CorrectGuessPayload{PlayerID: sessionID})
		log.Info().Str("room_id", roomID).Str("session_id", sessionID).
			Int("score", player.Score).Msg("correct guess")
		return nil
	}
	c.bcast.ToRoom(roomID, EventChatMessage, ChatMessagePayload{From: sessionID, Text: text})
	return nil
}

// Disconnect reconciles a vanished session against its room: the session
// leaves the player set and the rotation, the round ends if it held the
// drawer cursor mid-round, and the room is deleted once empty.
func (c *Coordinator) Disconnect(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	roomID, ok := c.sessionRooms[sessionID]
	delete(c.sessionRooms, sessionID)
	c.mu.Unlock()
	if !ok {
		return nil
	}

	release := c.locks.Acquire(roomID)
	defer release()

	room, err := c.store.Get(ctx, roomID)
	if errors.Is(err, ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load room %s: %w", roomID, err)
	}
	if _, known := room.Players[sessionID]; !known {
		return nil
	}

	wasDrawer := room.RemovePlayer(sessionID)
	if len(room.Players) == 0 {
		c.timer.Cancel(roomID)
		if err := c.store.Delete(ctx, roomID); err != nil {
			return fmt.Errorf("delete room %s: %w", roomID, err)
		}
		log.Info().Str("room_id", roomID).Msg("room deleted, last player left")
		return nil
	}
	if err := c.store.Save(ctx, roomID, room); err != nil {
		return fmt.Errorf("save room %s: %w", roomID, err)
	}
	if wasDrawer && room.RoundActive() {
		if err := c.endRoundLocked(ctx, roomID, room); err != nil {
			return err
		}
	}
	c.bcast.ToRoom(roomID, EventRoomUpdate, RoomUpdatePayload{Players: room.Players})
	log.Info().Str("room_id", roomID).Str("session_id", sessionID).
		Bool("was_drawer", wasDrawer).Msg("session left room")
	return nil
}

// HandleRoundExpire ends the round a timer notification refers to. Stale
// or duplicate deliveries (generation mismatch, round already over, room
// gone) are no-ops, so termination stays idempotent even when a drawer
// disconnect and a timer expiry race.
func (c *Coordinator) HandleRoundExpire(ctx context.Context, roomID string, gen uint64) error {
	release := c.locks.Acquire(roomID)
	defer release()

	room, err := c.store.Get(ctx, roomID)
	if errors.Is(err, ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load room %s: %w", roomID, err)
	}
	if room.RoundGen != gen || !room.RoundActive() {
		log.Debug().Str("room_id", roomID).Uint64("gen", gen).
			Uint64("current_gen", room.RoundGen).Msg("ignoring stale round expiry")
		return nil
	}
	return c.endRoundLocked(ctx, roomID, room)
}

// HandleRestart auto-starts the next round after the post-round delay,
// unless the room was deleted, a newer round already started, or the
// rotation emptied in the meantime.
func (c *Coordinator) HandleRestart(ctx context.Context, roomID string, gen uint64) error {
	release := c.locks.Acquire(roomID)
	defer release()

	room, err := c.store.Get(ctx, roomID)
	if errors.Is(err, ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load room %s: %w", roomID, err)
	}
	if room.RoundGen != gen || room.RoundActive() || len(room.DrawerOrder) == 0 {
		log.Debug().Str("room_id", roomID).Uint64("gen", gen).Msg("ignoring stale round restart")
		return nil
	}
	return c.startRoundLocked(ctx, roomID, room)
}

// startRoundLocked selects a word, builds the mask, resets hasGuessed for
// every player, bumps the round generation and arms the round timer.
// Caller holds the room lock.
func (c *Coordinator) startRoundLocked(ctx context.Context, roomID string, room *Room) error {
	word := c.words.Pick()
	runes := []rune(word)
	mask := make([]string, len(runes))
	for i := range mask {
		mask[i] = "_"
	}
	room.CurrentWord = word
	room.WordMask = mask
	for _, p := range room.Players {
		p.HasGuessed = false
	}
	room.RoundGen++

	if err := c.store.Save(ctx, roomID, room); err != nil {
		return fmt.Errorf("save room %s: %w", roomID, err)
	}
	if err := c.timer.ArmRoundEnd(roomID, room.RoundGen, c.cfg.RoundDuration); err != nil {
		return fmt.Errorf("arm round timer for room %s: %w", roomID, err)
	}
	c.bcast.ToRoom(roomID, EventRoundStarted, RoundStartedPayload{
		CurrentDrawerIdx: room.CurrentDrawerIdx,
		WordMask:         room.WordMask,
	})
	log.Info().Str("room_id", roomID).Uint64("gen", room.RoundGen).
		Int("drawer_idx", room.CurrentDrawerIdx).Int("word_len", len(runes)).
		Msg("round started")
	return nil
}

// endRoundLocked snapshots the scoreboard, clears the word, advances the
// drawer cursor and arms the delayed auto-restart. Caller holds the room
// lock and has verified the round is the live one.
func (c *Coordinator) endRoundLocked(ctx context.Context, roomID string, room *Room) error {
	scores := room.Scoreboard()
	room.CurrentWord = ""
	room.WordMask = []string{}
	room.AdvanceDrawer()

	if err := c.store.Save(ctx, roomID, room); err != nil {
		return fmt.Errorf("save room %s: %w", roomID, err)
	}
	c.timer.Cancel(roomID)
	c.bcast.ToRoom(roomID, EventRoundEnded, RoundEndedPayload{
		Scores:        scores,
		NextDrawerIdx: room.CurrentDrawerIdx,
	})
	if len(room.DrawerOrder) > 0 {
		if err := c.timer.ArmRestart(roomID, room.RoundGen, c.cfg.RestartDelay); err != nil {
			return fmt.Errorf("arm restart timer for room %s: %w", roomID, err)
		}
	}
	log.Info().Str("room_id", roomID).Uint64("gen", room.RoundGen).
		Int("next_drawer_idx", room.CurrentDrawerIdx).Msg("round ended")
	return nil
}

// loadOrInit returns the room's state, persisting the default state on
// first contact so callers never observe "not found".
func (c *Coordinator) loadOrInit(ctx context.Context, roomID string) (*Room, error) {
	room, err := c.store.Get(ctx, roomID)
	if errors.Is(err, ErrRoomNotFound) {
		room = NewRoom()
		if err := c.store.Save(ctx, roomID, room); err != nil {
			return nil, fmt.Errorf("init room %s: %w", roomID, err)
		}
		return room, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	return room, nil
}

func (c *Coordinator) indexSession(sessionID, roomID string) {
	c.mu.Lock()
	c.sessionRooms[sessionID] = roomID
	c.mu.Unlock()
}
