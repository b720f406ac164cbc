package game

import "sync"

// lockRegistry hands out one mutex per room id so every load→mutate→save
// sequence against a room is serialized while different rooms proceed in
// parallel. Entries are refcounted and reclaimed once the last holder
// releases, so the map does not grow with the lifetime total of room ids.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*roomLock)}
}

// Acquire blocks until the caller holds the room's lock and returns a
// release func. The release func must be called exactly once.
func (lr *lockRegistry) Acquire(roomID string) func() {
	lr.mu.Lock()
	l, ok := lr.locks[roomID]
	if !ok {
		l = &roomLock{}
		lr.locks[roomID] = l
	}
	l.refs++
	lr.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		lr.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(lr.locks, roomID)
		}
		lr.mu.Unlock()
	}
}

var _ RoomLocker = (*lockRegistry)(nil)
