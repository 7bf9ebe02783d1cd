package world

import (
	"math/rand"

	"blockhaven/internal/protocol"
)

var (
	profileTraits = []string{
		"curious", "stoic", "boisterous", "wary", "meticulous", "restless",
		"generous", "gruff", "dreamy", "stubborn", "cheerful", "solitary",
	}
	profileMottos = []string{
		"Dig first, ask later.",
		"Every block has a story.",
		"The night is just unlit day.",
		"Build it twice, build it right.",
		"Home is where the bedrock is.",
		"Maps are for people who stop walking.",
		"Stone remembers.",
		"Never trade your last torch.",
	}
	profileColors = []string{
		"#d9a066", "#8d6e63", "#f0c8a0", "#6d4c41", "#ffe0bd", "#a1887f",
	}
	profileShirts = []string{
		"#c0392b", "#2980b9", "#27ae60", "#8e44ad", "#f39c12", "#16a085",
	}
	profileBodies = []string{"slim", "broad", "wiry", "stocky"}
)

// nameSeed hashes a display name into a stable seed (FNV-1a).
func nameSeed(name string) uint64 {
	var h uint64 = 0xcbf29ce484222325
	for i := 0; i < len(name); i++ {
		h ^= uint64(name[i])
		h *= 0x100000001b3
	}
	return h
}

// deriveProfile builds a first-login profile deterministically from the
// name, so the same name yields the same identity on every server with no
// prior record.
func deriveProfile(name string) protocol.Profile {
	rng := rand.New(rand.NewSource(int64(nameSeed(name))))

	t1 := profileTraits[rng.Intn(len(profileTraits))]
	t2 := profileTraits[rng.Intn(len(profileTraits))]
	for t2 == t1 {
		t2 = profileTraits[rng.Intn(len(profileTraits))]
	}

	return protocol.Profile{
		Name:       name,
		Traits:     []string{t1, t2},
		Motto:      profileMottos[rng.Intn(len(profileMottos))],
		SkinColor:  profileColors[rng.Intn(len(profileColors))],
		ShirtColor: profileShirts[rng.Intn(len(profileShirts))],
		BodyType:   profileBodies[rng.Intn(len(profileBodies))],
	}
}
