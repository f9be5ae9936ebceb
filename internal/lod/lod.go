// Package lod ranks node labels each frame and reveals only as many as fit
// the rendering budget.
package lod

import (
	"math"
	"sort"

	"github.com/mistakeknot/beadscope/internal/graph"
)

// DefaultBudget is how many labels may render in one frame outside a focus.
const DefaultBudget = 40

// distanceFalloff converts camera distance into score penalty. Any
// monotonic falloff preserves the ranking contract; linear is enough.
const distanceFalloff = 0.5

var typeWeight = map[graph.IssueType]float64{
	graph.TypeAgent:    50,
	graph.TypeMolecule: 40,
	graph.TypeEpic:     30,
	graph.TypeGate:     25,
	graph.TypeBug:      15,
	graph.TypeFeature:  10,
	graph.TypeTask:     5,
	graph.TypeChore:    0,
}

var statusWeight = map[string]float64{
	"blocked":     25,
	"in_progress": 20,
	"open":        10,
	"closed":      0,
}

// focusBoost guarantees focused nodes outrank everything else regardless of
// distance; it only matters for ordering since the budget is suspended for
// the focused set anyway.
const focusBoost = 1e6

// Scheduler computes per-frame label visibility.
type Scheduler struct {
	Budget int
}

func NewScheduler() *Scheduler {
	return &Scheduler{Budget: DefaultBudget}
}

// Score ranks one node. Higher is more label-worthy.
func (l *Scheduler) Score(n *graph.Node, camera graph.Position, focused bool) float64 {
	score := typeWeight[n.IssueType] + statusWeight[n.Status]
	score += float64(3-n.Priority) * 2 // P0 outranks P3
	dx := n.Pos.X - camera.X
	dy := n.Pos.Y - camera.Y
	dz := n.Pos.Z - camera.Z
	score -= math.Sqrt(dx*dx+dy*dy+dz*dz) * distanceFalloff
	if focused {
		score += focusBoost
	}
	return score
}

// Rank sets LabelVisible on every node: the focused set is always fully
// visible (its budget is suspended, not raised), then the top scorers fill
// whatever budget remains. An empty node list is a valid steady state.
func (l *Scheduler) Rank(nodes []*graph.Node, camera graph.Position, focused map[string]bool) {
	type scored struct {
		node  *graph.Node
		score float64
	}
	ranked := make([]scored, 0, len(nodes))
	for _, n := range nodes {
		ranked = append(ranked, scored{node: n, score: l.Score(n, camera, focused[n.ID])})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	shown := 0
	for _, r := range ranked {
		if focused[r.node.ID] {
			r.node.LabelVisible = true
			continue
		}
		if shown < l.Budget {
			r.node.LabelVisible = true
			shown++
			continue
		}
		r.node.LabelVisible = false
	}
}
