package simserver

import "math/rand"

// Demo agent identities: short nature words, enough variety for a scene
// full of workers without collisions in practice.
var agentNames = []string{
	"fern", "moss", "reed", "wren", "alder", "birch",
	"clover", "heron", "juniper", "lark", "marsh", "otter",
	"pike", "rowan", "sedge", "teal", "vetch", "willow",
}

func pickAgentName(rng *rand.Rand, taken map[string]bool) string {
	for i := 0; i < len(agentNames)*2; i++ {
		name := agentNames[rng.Intn(len(agentNames))]
		if !taken[name] {
			taken[name] = true
			return name
		}
	}
	// Everything taken; reuse is acceptable for a demo feed.
	return agentNames[rng.Intn(len(agentNames))]
}
