package store

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/scrawlgame/scrawl/internal/game"
)

// MemoryStore is the in-process implementation used by tests and
// single-node development. Records pass through the same codec as the
// Redis store, which doubles as a deep copy: callers never share live
// state with the store.
type MemoryStore struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	ttl     time.Duration
	records map[string]memoryRecord
}

type memoryRecord struct {
	data      []byte
	expiresAt time.Time
}

func NewMemoryStore(clock clockwork.Clock, ttl time.Duration) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryStore{
		clock:   clock,
		ttl:     ttl,
		records: make(map[string]memoryRecord),
	}
}

func (s *MemoryStore) Get(ctx context.Context, roomID string) (*game.Room, error) {
	s.mu.Lock()
	rec, ok := s.records[roomID]
	if ok && s.clock.Now().After(rec.expiresAt) {
		delete(s.records, roomID)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil, game.ErrRoomNotFound
	}
	return DecodeRoom(rec.data)
}

func (s *MemoryStore) Save(ctx context.Context, roomID string, room *game.Room) error {
	data, err := EncodeRoom(room)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.records[roomID] = memoryRecord{data: data, expiresAt: s.clock.Now().Add(s.ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, roomID string) error {
	s.mu.Lock()
	delete(s.records, roomID)
	s.mu.Unlock()
	return nil
}
