package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/scrawlgame/scrawl/internal/game"
)

// Game is what the gateway needs from the coordinator.
type Game interface {
	Join(ctx context.Context, sessionID, roomID, name string) error
	Reconnect(ctx context.Context, sessionID, roomID, oldSessionID string) error
	StartRound(ctx context.Context, sessionID, roomID string) error
	UpdateScene(ctx context.Context, sessionID, roomID string, diff game.SceneDiffPayload) error
	Guess(ctx context.Context, sessionID, roomID, text string) error
	Disconnect(ctx context.Context, sessionID string) error
}

// Handler upgrades websocket connections, assigns each a session id, and
// routes inbound events to the coordinator.
type Handler struct {
	hub      *Hub
	game     Game
	upgrader websocket.Upgrader
	cfg      ConnectionConfig
}

func NewHandler(hub *Hub, g Game, allowedOrigin string, cfg ConnectionConfig) *Handler {
	return &Handler{
		hub:  hub,
		game: g,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
		cfg: cfg,
	}
}

// ServeWS upgrades the request and runs the connection's pumps.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	sessionID := uuid.NewString()
	client := newClient(sessionID, conn, h, h.cfg)
	h.hub.register(client)

	log.Info().Str("session_id", sessionID).Str("remote", r.RemoteAddr).Msg("websocket connected")

	go client.writePump()
	go client.readPump()
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.ServeWS)
}

type joinPayload struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

type reconnectPayload struct {
	RoomID       string `json:"roomId"`
	OldSessionID string `json:"oldSessionId"`
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

type scenePayload struct {
	RoomID   string          `json:"roomId"`
	Elements json.RawMessage `json:"elements"`
	AppState json.RawMessage `json:"appState"`
}

type guessPayload struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

func (h *Handler) dispatch(c *Client, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.sendError(c, "invalid message")
		return
	}

	ctx := context.Background()
	var err error
	switch msg.Type {
	case "join":
		var p joinPayload
		if jsonErr := json.Unmarshal(msg.Data, &p); jsonErr != nil {
			h.sendError(c, "invalid room ID or name")
			return
		}
		roomID, name := strings.TrimSpace(p.RoomID), strings.TrimSpace(p.Name)
		if roomID == "" || name == "" {
			h.sendError(c, "invalid room ID or name")
			return
		}
		err = h.game.Join(ctx, c.id, roomID, name)

	case "reconnect":
		var p reconnectPayload
		if jsonErr := json.Unmarshal(msg.Data, &p); jsonErr != nil {
			h.sendError(c, "invalid reconnect payload")
			return
		}
		roomID, oldID := strings.TrimSpace(p.RoomID), strings.TrimSpace(p.OldSessionID)
		if roomID == "" || oldID == "" {
			h.sendError(c, "invalid reconnect payload")
			return
		}
		err = h.game.Reconnect(ctx, c.id, roomID, oldID)

	case "startRound":
		var p roomPayload
		if jsonErr := json.Unmarshal(msg.Data, &p); jsonErr != nil || strings.TrimSpace(p.RoomID) == "" {
			h.sendError(c, "invalid room ID")
			return
		}
		err = h.game.StartRound(ctx, c.id, strings.TrimSpace(p.RoomID))

	case "sceneUpdate":
		var p scenePayload
		if jsonErr := json.Unmarshal(msg.Data, &p); jsonErr != nil || strings.TrimSpace(p.RoomID) == "" {
			h.sendError(c, "invalid scene payload")
			return
		}
		err = h.game.UpdateScene(ctx, c.id, strings.TrimSpace(p.RoomID), game.SceneDiffPayload{
			Elements: p.Elements,
			AppState: p.AppState,
		})

	case "guess":
		var p guessPayload
		if jsonErr := json.Unmarshal(msg.Data, &p); jsonErr != nil || strings.TrimSpace(p.RoomID) == "" {
			h.sendError(c, "invalid guess payload")
			return
		}
		err = h.game.Guess(ctx, c.id, strings.TrimSpace(p.RoomID), strings.TrimSpace(p.Text))

	default:
		log.Debug().Str("session_id", c.id).Str("type", msg.Type).Msg("unknown inbound event")
		return
	}

	if err != nil {
		h.reportError(c, msg.Type, err)
	}
}

// reportError maps coordinator failures to the requester-only error event.
// Domain rejections carry their own message; anything else is a transient
// infrastructure failure the client may retry.
func (h *Handler) reportError(c *Client, eventType string, err error) {
	switch {
	case errors.Is(err, game.ErrInvalidInput), errors.Is(err, game.ErrSessionNotFound):
		h.sendError(c, err.Error())
	default:
		log.Error().Err(err).Str("session_id", c.id).Str("type", eventType).
			Msg("event handling failed")
		h.sendError(c, "temporary failure, please retry")
	}
}

func (h *Handler) sendError(c *Client, message string) {
	h.hub.ToSession(c.id, game.EventError, game.ErrorPayload{Message: message})
}
