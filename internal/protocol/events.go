package protocol

// Broadcast payloads. These fan out to every joined session, so they stay
// small: ids, positions, and the single field that changed.

type PlayerJoinMsg struct {
	PlayerID string     `json:"player_id"`
	Name     string     `json:"name"`
	IsAgent  bool       `json:"is_agent,omitempty"`
	Pos      [3]float64 `json:"pos"`
}

type PlayerLeaveMsg struct {
	PlayerID string `json:"player_id"`
}

type PlayerMoveMsg struct {
	PlayerID string     `json:"player_id"`
	Pos      [3]float64 `json:"pos"`
	Yaw      float64    `json:"yaw"`
	Pitch    float64    `json:"pitch"`
}

type BlockUpdateMsg struct {
	Pos     [3]int `json:"pos"`
	BlockID uint8  `json:"block_id"`
	ByID    string `json:"by,omitempty"`
}

type ChatMessageMsg struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Text     string `json:"text"`
}

type CreatureSpawnMsg struct {
	CreatureID string     `json:"creature_id"`
	Kind       string     `json:"kind"`
	Pos        [3]float64 `json:"pos"`
	HP         int        `json:"hp"`
}

type CreatureMoveMsg struct {
	CreatureID string     `json:"creature_id"`
	Pos        [3]float64 `json:"pos"`
}

type CreatureDespawnMsg struct {
	CreatureID string `json:"creature_id"`
	Reason     string `json:"reason,omitempty"` // "killed", "dawn", "distance"
}

type CreatureHurtMsg struct {
	CreatureID string `json:"creature_id"`
	HP         int    `json:"hp"`
	ByID       string `json:"by,omitempty"`
}

type PlayerHurtMsg struct {
	PlayerID string `json:"player_id"`
	HP       int    `json:"hp"`
	ByID     string `json:"by,omitempty"`
}

type PlayerDeathMsg struct {
	PlayerID string `json:"player_id"`
	ByID     string `json:"by,omitempty"`
}

type PlayerRespawnMsg struct {
	PlayerID string     `json:"player_id"`
	Pos      [3]float64 `json:"pos"`
	HP       int        `json:"hp"`
}

// WORLD_EVENT carries low-rate ambient broadcasts: emotes and time-of-day
// phase changes.
type WorldEventMsg struct {
	Kind     string `json:"kind"` // "EMOTE", "TIME_OF_DAY"
	PlayerID string `json:"player_id,omitempty"`
	Text     string `json:"text,omitempty"`
	Phase    string `json:"phase,omitempty"` // "dawn","day","dusk","night"
	Time     int64  `json:"time,omitempty"`
}

// Perception is the PERCEIVE effects payload: the one read-only bulk query
// in the protocol, sized for agent decision loops.
type Perception struct {
	Blocks    []PerceivedBlock    `json:"blocks"`
	Players   []PerceivedPlayer   `json:"players"`
	Creatures []PerceivedCreature `json:"creatures"`
	Biome     string              `json:"biome"`
	TimeOfDay float64             `json:"time_of_day"`
	Phase     string              `json:"phase"`
	Truncated bool                `json:"truncated,omitempty"`
}

type PerceivedBlock struct {
	Pos     [3]int `json:"pos"`
	BlockID uint8  `json:"block_id"`
	Name    string `json:"name"`
}

type PerceivedPlayer struct {
	PlayerID string     `json:"player_id"`
	Name     string     `json:"name"`
	Pos      [3]float64 `json:"pos"`
	HP       int        `json:"hp"`
}

type PerceivedCreature struct {
	CreatureID string     `json:"creature_id"`
	Kind       string     `json:"kind"`
	Pos        [3]float64 `json:"pos"`
	HP         int        `json:"hp"`
	Hostile    bool       `json:"hostile"`
}
