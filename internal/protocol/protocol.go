package protocol

import (
	"encoding/json"
	"time"
)

const Version = "1.0"

// Client -> server message types.
const (
	TypeAuth   = "AUTH"
	TypeJoin   = "JOIN"
	TypeAction = "ACTION"
	TypeChat   = "CHAT"
)

// Server -> client message types.
const (
	TypeAuthOK          = "AUTH_OK"
	TypeAuthError       = "AUTH_ERROR"
	TypeWorldSnapshot   = "WORLD_SNAPSHOT"
	TypeWorldChunk      = "WORLD_CHUNK"
	TypeActionResult    = "ACTION_RESULT"
	TypePlayerJoin      = "PLAYER_JOIN"
	TypePlayerLeave     = "PLAYER_LEAVE"
	TypePlayerMove      = "PLAYER_MOVE"
	TypeBlockUpdate     = "BLOCK_UPDATE"
	TypeChatMessage     = "CHAT_MESSAGE"
	TypeCreatureSpawn   = "CREATURE_SPAWN"
	TypeCreatureMove    = "CREATURE_MOVE"
	TypeCreatureDespawn = "CREATURE_DESPAWN"
	TypeCreatureHurt    = "CREATURE_HURT"
	TypePlayerHurt      = "PLAYER_HURT"
	TypePlayerDeath     = "PLAYER_DEATH"
	TypePlayerRespawn   = "PLAYER_RESPAWN"
	TypeWorldEvent      = "WORLD_EVENT"
)

// Envelope wraps every message on the wire. Payload stays raw until the
// type is known so unknown messages can be routed (or dropped) cheaply.
type Envelope struct {
	ProtocolVersion string          `json:"protocol_version"`
	Type            string          `json:"type"`
	ID              string          `json:"id,omitempty"`
	TS              int64           `json:"ts"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

func Decode(b []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(b, &e)
	return e, err
}

// Encode builds a fully-formed envelope around the given payload.
func Encode(typ, id string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		ProtocolVersion: Version,
		Type:            typ,
		ID:              id,
		TS:              time.Now().UnixMilli(),
		Payload:         raw,
	})
}

// MustEncode is Encode for payloads that cannot fail to marshal
// (server-built structs). It returns nil on error rather than panicking so
// a bad payload degrades to a dropped message, not a crash.
func MustEncode(typ, id string, payload any) []byte {
	b, err := Encode(typ, id, payload)
	if err != nil {
		return nil
	}
	return b
}
