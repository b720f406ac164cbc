package game

import "encoding/json"

// PlayerState is the per-session slice of a room record.
type PlayerState struct {
	Name       string `json:"name"`
	Score      int    `json:"score"`
	HasGuessed bool   `json:"hasGuessed"`
}

// Scene is the shared drawing payload, last-writer-wins. The contents are
// opaque to the server; they are stored and forwarded verbatim.
type Scene struct {
	Elements json.RawMessage `json:"elements"`
	AppState json.RawMessage `json:"appState"`
}

// Room is the persisted state of one game instance. RoundGen increases by
// one each time a round starts; timer expiries and deferred restarts carry
// the generation they were armed for so late or duplicate deliveries can
// be told apart from the current round.
type Room struct {
	Players          map[string]*PlayerState `json:"players"`
	DrawerOrder      []string                `json:"drawerOrder"`
	CurrentDrawerIdx int                     `json:"currentDrawerIdx"`
	CurrentWord      string                  `json:"currentWord,omitempty"`
	WordMask         []string                `json:"wordMask"`
	Scene            *Scene                  `json:"scene,omitempty"`
	RoundGen         uint64                  `json:"roundGen"`
}

// NewRoom returns the default state persisted on first contact with a room.
func NewRoom() *Room {
	return &Room{
		Players:     make(map[string]*PlayerState),
		DrawerOrder: make([]string, 0, 4),
		WordMask:    []string{},
	}
}

// CurrentDrawer returns the session id at the drawer cursor, or false when
// the rotation is empty and no round can start.
func (r *Room) CurrentDrawer() (string, bool) {
	if len(r.DrawerOrder) == 0 {
		return "", false
	}
	return r.DrawerOrder[r.CurrentDrawerIdx], true
}

// RoundActive reports whether a word is currently hidden behind the mask.
func (r *Room) RoundActive() bool {
	return r.CurrentWord != ""
}

// AddPlayer inserts a session if absent and keeps the rotation free of
// duplicates.
func (r *Room) AddPlayer(sessionID, name string) {
	if _, ok := r.Players[sessionID]; !ok {
		r.Players[sessionID] = &PlayerState{Name: name}
	}
	for _, id := range r.DrawerOrder {
		if id == sessionID {
			return
		}
	}
	r.DrawerOrder = append(r.DrawerOrder, sessionID)
}

// MigrateSession moves oldID's player state and rotation slot to newID.
// Returns false when oldID is not a known player.
func (r *Room) MigrateSession(oldID, newID string) bool {
	state, ok := r.Players[oldID]
	if !ok {
		return false
	}
	delete(r.Players, oldID)
	r.Players[newID] = state
	for i, id := range r.DrawerOrder {
		if id == oldID {
			r.DrawerOrder[i] = newID
		}
	}
	return true
}

// RemovePlayer drops a session from the player map and the rotation,
// keeping the drawer cursor on the same player where possible (the cursor
// shifts down when an earlier slot is removed, and wraps to zero when it
// falls off the end). Returns whether the removed session held the cursor.
func (r *Room) RemovePlayer(sessionID string) (wasDrawer bool) {
	delete(r.Players, sessionID)
	pos := -1
	for i, id := range r.DrawerOrder {
		if id == sessionID {
			pos = i
			break
		}
	}
	if pos == -1 {
		return false
	}
	wasDrawer = pos == r.CurrentDrawerIdx
	r.DrawerOrder = append(r.DrawerOrder[:pos], r.DrawerOrder[pos+1:]...)
	if pos < r.CurrentDrawerIdx {
		r.CurrentDrawerIdx--
	}
	if r.CurrentDrawerIdx >= len(r.DrawerOrder) {
		r.CurrentDrawerIdx = 0
	}
	return wasDrawer
}

// AdvanceDrawer moves the cursor to the next slot in the rotation. With an
// empty rotation the room stays paused at cursor zero.
func (r *Room) AdvanceDrawer() {
	if len(r.DrawerOrder) == 0 {
		r.CurrentDrawerIdx = 0
		return
	}
	r.CurrentDrawerIdx = (r.CurrentDrawerIdx + 1) % len(r.DrawerOrder)
}

// Scoreboard snapshots every current player's score.
func (r *Room) Scoreboard() []PlayerScore {
	scores := make([]PlayerScore, 0, len(r.Players))
	for id, p := range r.Players {
		scores = append(scores, PlayerScore{ID: id, Score: p.Score})
	}
	return scores
}
