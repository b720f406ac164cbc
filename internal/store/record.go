package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/scrawlgame/scrawl/internal/game"
)

// schemaVersion is the current room record format. Version 1 is the room
// state itself; the envelope was introduced with it, so a record missing
// the envelope decodes as version 1 written before the envelope existed.
const schemaVersion = 1

// ErrIncompatibleRecord is returned when a record was written by a newer
// schema than this process understands. Callers treat it as a retryable
// store failure; it is an operator signal during a rolling downgrade.
var ErrIncompatibleRecord = errors.New("room record schema newer than supported")

type roomRecord struct {
	V    int             `json:"v"`
	Room json.RawMessage `json:"room"`
}

// EncodeRoom wraps the room state in the versioned envelope.
func EncodeRoom(room *game.Room) ([]byte, error) {
	body, err := json.Marshal(room)
	if err != nil {
		return nil, fmt.Errorf("marshal room: %w", err)
	}
	data, err := json.Marshal(roomRecord{V: schemaVersion, Room: body})
	if err != nil {
		return nil, fmt.Errorf("marshal room record: %w", err)
	}
	return data, nil
}

// DecodeRoom reads a room record in any supported format. Records are not
// rewritten on read; the next Save persists the current version.
func DecodeRoom(data []byte) (*game.Room, error) {
	var rec roomRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal room record: %w", err)
	}
	if rec.Room == nil {
		// Pre-envelope record: the blob is the room state itself.
		rec.V = schemaVersion
		rec.Room = data
	}
	if rec.V > schemaVersion {
		return nil, fmt.Errorf("record version %d: %w", rec.V, ErrIncompatibleRecord)
	}
	room := game.NewRoom()
	if err := json.Unmarshal(rec.Room, room); err != nil {
		return nil, fmt.Errorf("unmarshal room state: %w", err)
	}
	if room.Players == nil {
		room.Players = make(map[string]*game.PlayerState)
	}
	return room, nil
}
