package game_test

import (
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// --- RoundTimer ---

type MockRoundTimer struct {
	mock.Mock
}

func (m *MockRoundTimer) ArmRoundEnd(roomID string, gen uint64, d time.Duration) error {
	args := m.Called(roomID, gen, d)
	return args.Error(0)
}

func (m *MockRoundTimer) ArmRestart(roomID string, gen uint64, d time.Duration) error {
	args := m.Called(roomID, gen, d)
	return args.Error(0)
}

func (m *MockRoundTimer) Cancel(roomID string) {
	m.Called(roomID)
}

// --- WordPicker ---

type stubWordPicker struct {
	mu    sync.Mutex
	words []string
	idx   int
}

func newStubWordPicker(words ...string) *stubWordPicker {
	return &stubWordPicker{words: words}
}

func (p *stubWordPicker) Pick() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.words[p.idx%len(p.words)]
	p.idx++
	return w
}

// --- Broadcaster ---

type broadcastCall struct {
	kind    string // attach, room, except, session
	roomID  string
	target  string // attached/addressed session, or excluded sender
	event   string
	payload any
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (b *recordingBroadcaster) Attach(roomID, sessionID string) {
	b.record(broadcastCall{kind: "attach", roomID: roomID, target: sessionID})
}

func (b *recordingBroadcaster) ToRoom(roomID, event string, payload any) {
	b.record(broadcastCall{kind: "room", roomID: roomID, event: event, payload: payload})
}

func (b *recordingBroadcaster) ToRoomExcept(roomID, senderID, event string, payload any) {
	b.record(broadcastCall{kind: "except", roomID: roomID, target: senderID, event: event, payload: payload})
}

func (b *recordingBroadcaster) ToSession(sessionID, event string, payload any) {
	b.record(broadcastCall{kind: "session", target: sessionID, event: event, payload: payload})
}

func (b *recordingBroadcaster) record(c broadcastCall) {
	b.mu.Lock()
	b.calls = append(b.calls, c)
	b.mu.Unlock()
}

func (b *recordingBroadcaster) ofEvent(event string) []broadcastCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []broadcastCall
	for _, c := range b.calls {
		if c.event == event {
			out = append(out, c)
		}
	}
	return out
}

func (b *recordingBroadcaster) reset() {
	b.mu.Lock()
	b.calls = nil
	b.mu.Unlock()
}
