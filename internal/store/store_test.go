package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrawlgame/scrawl/internal/game"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore(clockwork.NewFakeClock(), time.Hour)
	ctx := context.Background()

	_, err := s.Get(ctx, "r1")
	assert.ErrorIs(t, err, game.ErrRoomNotFound)

	room := game.NewRoom()
	room.AddPlayer("p1", "Ann")
	room.CurrentWord = "crane"
	room.WordMask = []string{"_", "_", "_", "_", "_"}
	room.RoundGen = 3
	require.NoError(t, s.Save(ctx, "r1", room))

	loaded, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, room, loaded)

	// The stored record is a copy: mutating the loaded state must not leak
	// back into the store.
	loaded.Players["p1"].Score = 99
	again, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Zero(t, again.Players["p1"].Score)

	require.NoError(t, s.Delete(ctx, "r1"))
	_, err = s.Get(ctx, "r1")
	assert.ErrorIs(t, err, game.ErrRoomNotFound)
}

func TestMemoryStoreSlidingExpiration(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	s := NewMemoryStore(clock, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "r1", game.NewRoom()))

	clock.Advance(50 * time.Minute)
	_, err := s.Get(ctx, "r1")
	require.NoError(t, err)

	// Save refreshes the window.
	require.NoError(t, s.Save(ctx, "r1", game.NewRoom()))
	clock.Advance(50 * time.Minute)
	_, err = s.Get(ctx, "r1")
	require.NoError(t, err)

	clock.Advance(time.Hour + time.Minute)
	_, err = s.Get(ctx, "r1")
	assert.ErrorIs(t, err, game.ErrRoomNotFound)
}

func TestDecodeRoomCurrentEnvelope(t *testing.T) {
	t.Parallel()
	room := game.NewRoom()
	room.AddPlayer("p1", "Ann")
	room.RoundGen = 2

	data, err := EncodeRoom(room)
	require.NoError(t, err)

	var rec roomRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, schemaVersion, rec.V)

	decoded, err := DecodeRoom(data)
	require.NoError(t, err)
	assert.Equal(t, room, decoded)
}

func TestDecodeRoomLegacyRecord(t *testing.T) {
	t.Parallel()
	// Record written before the version envelope existed: the blob is the
	// room state itself.
	legacy := []byte(`{"players":{"p1":{"name":"Ann","score":10,"hasGuessed":false}},` +
		`"drawerOrder":["p1"],"currentDrawerIdx":0,"wordMask":[]}`)

	room, err := DecodeRoom(legacy)
	require.NoError(t, err)
	assert.Equal(t, "Ann", room.Players["p1"].Name)
	assert.Equal(t, 10, room.Players["p1"].Score)
	assert.Equal(t, []string{"p1"}, room.DrawerOrder)
}

func TestDecodeRoomRejectsNewerSchema(t *testing.T) {
	t.Parallel()
	future := []byte(`{"v":99,"room":{"players":{}}}`)

	_, err := DecodeRoom(future)
	assert.ErrorIs(t, err, ErrIncompatibleRecord)
}

func TestDecodeRoomRejectsGarbage(t *testing.T) {
	t.Parallel()
	_, err := DecodeRoom([]byte("not json"))
	assert.Error(t, err)
}
