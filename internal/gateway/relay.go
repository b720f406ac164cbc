package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/scrawlgame/scrawl/internal/game"
)

const relaySubjectPrefix = "room.events."

// subjectToken encodes a room id as a single NATS subject token. Room ids
// are client-supplied and may contain `.`, `*`, `>` or whitespace, which
// would corrupt the subject space; the envelope carries the real id.
func subjectToken(roomID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(roomID))
}

// relayEnvelope is one room-scoped event crossing nodes. Sender, when set,
// is excluded on every node; only the node holding that session actually
// filters anything.
type relayEnvelope struct {
	ID      string          `json:"id"`
	RoomID  string          `json:"roomId"`
	Sender  string          `json:"sender,omitempty"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Relay is the multi-node Broadcaster: room-scoped events go through NATS
// so every gateway node fans them out to its local connections, while
// session-scoped replies stay on the node that owns the session. Core
// pub/sub rather than a stream — these are live UI frames, and replaying
// them to a reconnecting node would deliver stale rounds.
type Relay struct {
	nc  *nats.Conn
	hub *Hub
	sub *nats.Subscription
}

func NewRelay(url string, hub *Hub) (*Relay, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &Relay{nc: nc, hub: hub}, nil
}

// Start subscribes to every node's room events, this node's included.
func (r *Relay) Start() error {
	sub, err := r.nc.Subscribe(relaySubjectPrefix+">", r.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s>: %w", relaySubjectPrefix, err)
	}
	r.sub = sub
	log.Info().Msg("room event relay started")
	return nil
}

func (r *Relay) Close() {
	if r.sub != nil {
		r.sub.Unsubscribe()
	}
	r.nc.Close()
}

func (r *Relay) Attach(roomID, sessionID string) {
	r.hub.Attach(roomID, sessionID)
}

func (r *Relay) ToRoom(roomID, event string, payload any) {
	r.publish(roomID, "", event, payload)
}

func (r *Relay) ToRoomExcept(roomID, senderID, event string, payload any) {
	r.publish(roomID, senderID, event, payload)
}

// ToSession stays local: the requester's connection lives on this node.
func (r *Relay) ToSession(sessionID, event string, payload any) {
	r.hub.ToSession(sessionID, event, payload)
}

func (r *Relay) publish(roomID, senderID, event string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to encode relay payload")
		return
	}
	env := relayEnvelope{
		ID:      uuid.NewString(),
		RoomID:  roomID,
		Sender:  senderID,
		Event:   event,
		Payload: body,
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to encode relay envelope")
		return
	}
	if err := r.nc.Publish(relaySubjectPrefix+subjectToken(roomID), data); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("event", event).
			Msg("failed to publish room event")
	}
}

func (r *Relay) handleMessage(msg *nats.Msg) {
	var env relayEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("undecodable relay envelope")
		return
	}
	if env.Sender != "" {
		r.hub.ToRoomExcept(env.RoomID, env.Sender, env.Event, env.Payload)
		return
	}
	r.hub.ToRoom(env.RoomID, env.Event, env.Payload)
}

var _ game.Broadcaster = (*Relay)(nil)
