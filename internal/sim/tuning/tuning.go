package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds the operational world constants. The terrain layout
// constants (chunk size, sea level) are compile-time in sim/terrain; only
// knobs that can vary per deployment live here.
type Tuning struct {
	TickRateHz   int   `yaml:"tick_rate_hz"`
	DayTicks     int   `yaml:"day_ticks"`
	Seed         int64 `yaml:"seed"`
	StreamRadius int   `yaml:"stream_radius"`

	FlushEveryTicks int `yaml:"flush_every_ticks"`
	AuditRingSize   int `yaml:"audit_ring_size"`

	ChatMaxLen        int     `yaml:"chat_max_len"`
	SpeakWindowTicks  int     `yaml:"speak_window_ticks"`
	SpeakMax          int     `yaml:"speak_max"`
	AttackReach       float64 `yaml:"attack_reach"`
	AttackDamage      int     `yaml:"attack_damage"`
	HitCooldownTicks  int     `yaml:"hit_cooldown_ticks"`
	RespawnDelayTicks int     `yaml:"respawn_delay_ticks"`

	PerceiveRadius    int     `yaml:"perceive_radius"`
	PerceiveMaxBlocks int     `yaml:"perceive_max_blocks"`
	PerceiveEntityR   float64 `yaml:"perceive_entity_radius"`

	Creatures CreatureTuning `yaml:"creatures"`
}

type CreatureTuning struct {
	Cap             int     `yaml:"cap"`
	SpawnEveryTicks int     `yaml:"spawn_every_ticks"`
	SpawnMinR       float64 `yaml:"spawn_min_r"`
	SpawnMaxR       float64 `yaml:"spawn_max_r"`
	DespawnR        float64 `yaml:"despawn_r"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:        20,
		DayTicks:          12000,
		Seed:              1337,
		StreamRadius:      2,
		FlushEveryTicks:   600,
		AuditRingSize:     1024,
		ChatMaxLen:        256,
		SpeakWindowTicks:  100,
		SpeakMax:          10,
		AttackReach:       4.5,
		AttackDamage:      4,
		HitCooldownTicks:  10,
		RespawnDelayTicks: 100,
		PerceiveRadius:    8,
		PerceiveMaxBlocks: 1500,
		PerceiveEntityR:   24,
		Creatures: CreatureTuning{
			Cap:             24,
			SpawnEveryTicks: 100,
			SpawnMinR:       12,
			SpawnMaxR:       40,
			DespawnR:        96,
		},
	}
}

// Load reads path over the defaults, so a partial file only overrides the
// keys it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if t.TickRateHz <= 0 || t.DayTicks <= 0 || t.StreamRadius < 0 {
		return t, fmt.Errorf("tuning.yaml: non-positive core rates")
	}
	return t, nil
}
