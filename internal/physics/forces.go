package physics

import (
	"math"

	"github.com/mistakeknot/beadscope/internal/graph"
)

// Force registration names for the domain forces.
const (
	ForceTether = "tether"
	ForceSpread = "spread"
)

// Tether pulls each assigned work item toward its agent along assigned_to
// edges. Strength is the user-facing scalar in [0,1]; nodes with no
// assigned_to edge receive zero force at any strength.
type Tether struct {
	Strength float64
}

// tetherGain converts the 0..1 user scalar into velocity per unit distance.
const tetherGain = 0.1

func (t *Tether) Apply(s *graph.Store, alpha float64) {
	if t.Strength <= 0 {
		return
	}
	strength := math.Min(t.Strength, 1)
	for _, e := range s.EdgesOfType(graph.DepAssignedTo) {
		agent, ok := s.Node(e.Source)
		if !ok {
			continue
		}
		item, ok := s.Node(e.Target)
		if !ok {
			continue
		}
		dx, dy, dz, _ := delta(item.Pos, agent.Pos)
		f := strength * tetherGain * alpha
		item.Vel.X += dx * f
		item.Vel.Y += dy * f
		item.Vel.Z += dz * f
	}
}

// Spread applies mutual repulsion among exactly the highlighted node set to
// de-clutter a selected component. It is registered while a selection is
// active and removed entirely on clear.
type Spread struct {
	// Nodes is the highlighted set, shared with the engine's selection
	// state; membership changes take effect on the next tick.
	Nodes map[string]bool
	// Strength is the repulsion magnitude between member pairs.
	Strength float64
}

func (sp *Spread) Apply(s *graph.Store, alpha float64) {
	members := make([]*graph.Node, 0, len(sp.Nodes))
	for id := range sp.Nodes {
		if n, ok := s.Node(id); ok {
			members = append(members, n)
		}
	}
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			a, b := members[i], members[j]
			dx, dy, dz, d2 := delta(a.Pos, b.Pos)
			// Same coefficient convention as Charge: negative repels.
			f := -sp.Strength * alpha / d2
			a.Vel.X += dx * f
			a.Vel.Y += dy * f
			a.Vel.Z += dz * f
			b.Vel.X -= dx * f
			b.Vel.Y -= dy * f
			b.Vel.Z -= dz * f
		}
	}
}
