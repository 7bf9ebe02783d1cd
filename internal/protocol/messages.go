package protocol

// Action kinds carried by ACTION payloads.
const (
	ActMoveTo    = "MOVE_TO"
	ActMine      = "MINE"
	ActPlace     = "PLACE"
	ActEmote     = "EMOTE"
	ActSpeak     = "SPEAK"
	ActAttackMob = "ATTACK_MOB"
	ActPerceive  = "PERCEIVE"
)

// AUTH (client -> server)
type AuthMsg struct {
	Name    string `json:"name"`
	IsAgent bool   `json:"is_agent,omitempty"`
}

// JOIN (client -> server): no payload fields beyond the envelope.
type JoinMsg struct{}

// ACTION (client -> server)
type ActionMsg struct {
	ActionID string `json:"action_id"`
	Kind     string `json:"kind"`

	// MOVE_TO
	Pos   [3]float64 `json:"pos,omitempty"`
	Yaw   float64    `json:"yaw,omitempty"`
	Pitch float64    `json:"pitch,omitempty"`

	// MINE / PLACE
	Block   [3]int `json:"block,omitempty"`
	BlockID uint8  `json:"block_id,omitempty"`

	// EMOTE / SPEAK
	Text string `json:"text,omitempty"`

	// ATTACK_MOB
	TargetID string `json:"target_id,omitempty"`
}

// CHAT (client -> server)
type ChatMsg struct {
	Text string `json:"text"`
}

// AUTH_OK (server -> client)
type AuthOKMsg struct {
	AccountID string  `json:"account_id"`
	Name      string  `json:"name"`
	Profile   Profile `json:"profile"`
}

// AUTH_ERROR (server -> client)
type AuthErrorMsg struct {
	Error ErrorBody `json:"error"`
}

// Profile is the durable identity record mirrored to clients on auth.
type Profile struct {
	Name         string   `json:"name"`
	Traits       []string `json:"traits"`
	Motto        string   `json:"motto"`
	SkinColor    string   `json:"skin_color"`
	ShirtColor   string   `json:"shirt_color"`
	BodyType     string   `json:"body_type"`
	BlocksMined  int      `json:"blocks_mined"`
	BlocksPlaced int      `json:"blocks_placed"`
	ChatCount    int      `json:"chat_count"`
	Kills        int      `json:"kills"`
}

// WORLD_SNAPSHOT (server -> client)
type WorldSnapshotMsg struct {
	Spawn      [3]float64 `json:"spawn"`
	WorldTime  int64      `json:"world_time"`
	DayTicks   int        `json:"day_ticks"`
	TickRateHz int        `json:"tick_rate_hz"`
	ChunkSize  [3]int     `json:"chunk_size"`
	SeaLevel   int        `json:"sea_level"`
	Seed       int64      `json:"seed"`
	Radius     int        `json:"radius"`
}

// WORLD_CHUNK (server -> client): raw block bytes, base64 in JSON.
type WorldChunkMsg struct {
	CX     int    `json:"cx"`
	CZ     int    `json:"cz"`
	Blocks []byte `json:"blocks"`
}

// ACTION_RESULT (server -> client)
type ActionResultMsg struct {
	ActionID string         `json:"action_id"`
	OK       bool           `json:"ok"`
	Error    *ErrorBody     `json:"error,omitempty"`
	Effects  map[string]any `json:"effects,omitempty"`
}
