package game

import "encoding/json"

// Outbound event types delivered to clients.
const (
	EventRoomJoined   = "roomJoined"
	EventRoomUpdate   = "roomUpdate"
	EventReconnected  = "reconnected"
	EventError        = "error"
	EventGameStarted  = "gameStarted"
	EventRoundStarted = "roundStarted"
	EventSceneDiff    = "sceneDiff"
	EventCorrectGuess = "correctGuess"
	EventChatMessage  = "chatMessage"
	EventRoundEnded   = "roundEnded"
)

// RoomJoinedPayload is the private reply to a joining session.
type RoomJoinedPayload struct {
	Players          map[string]*PlayerState `json:"players"`
	CurrentDrawerIdx int                     `json:"currentDrawerIdx"`
	Scene            *Scene                  `json:"scene"`
}

// RoomUpdatePayload announces a changed player set to the whole room.
type RoomUpdatePayload struct {
	Players map[string]*PlayerState `json:"players"`
}

// ReconnectedPayload is the private reply to a successful session migration.
type ReconnectedPayload struct {
	Players          map[string]*PlayerState `json:"players"`
	Scene            *Scene                  `json:"scene"`
	CurrentDrawerIdx int                     `json:"currentDrawerIdx"`
}

// ErrorPayload is reported to the requester only.
type ErrorPayload struct {
	Message string `json:"message"`
}

// RoundStartedPayload carries the mask, never the word.
type RoundStartedPayload struct {
	CurrentDrawerIdx int      `json:"currentDrawerIdx"`
	WordMask         []string `json:"wordMask"`
}

// SceneDiffPayload forwards a drawing update to everyone but the drawer.
type SceneDiffPayload struct {
	Elements json.RawMessage `json:"elements"`
	AppState json.RawMessage `json:"appState"`
}

// CorrectGuessPayload names the guesser; the word itself is not echoed.
type CorrectGuessPayload struct {
	PlayerID string `json:"playerId"`
}

// ChatMessagePayload relays a non-matching guess as chat.
type ChatMessagePayload struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// PlayerScore is one scoreboard row.
type PlayerScore struct {
	ID    string `json:"id"`
	Score int    `json:"score"`
}

// RoundEndedPayload closes a round with the scoreboard and the next drawer.
type RoundEndedPayload struct {
	Scores        []PlayerScore `json:"scores"`
	NextDrawerIdx int           `json:"nextDrawerIdx"`
}
