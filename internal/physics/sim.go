// Package physics runs the per-frame force-directed layout. Built-in
// charge/link/center forces keep the default dynamics; domain forces
// (agent tether, subgraph spread) layer on top under their own names.
package physics

import (
	"math"
	"sort"

	"github.com/mistakeknot/beadscope/internal/graph"
)

// Force contributes velocity to nodes each simulation tick.
type Force interface {
	Apply(s *graph.Store, alpha float64)
}

const (
	alphaStart    = 1.0
	alphaMin      = 0.001
	alphaDecay    = 0.0228
	velocityDecay = 0.6
)

// Simulation steps the layout once per frame. Forces are registered under
// names; re-registering a name replaces the previous instance, so
// registration is idempotent, and removal restores the exact prior dynamics.
type Simulation struct {
	store  *graph.Store
	forces map[string]Force
	alpha  float64
}

func NewSimulation(store *graph.Store) *Simulation {
	s := &Simulation{
		store:  store,
		forces: make(map[string]Force),
		alpha:  alphaStart,
	}
	s.Register("charge", &Charge{Strength: -30})
	s.Register("link", &Link{Distance: 30, Strength: 0.5})
	s.Register("center", &Center{Strength: 0.05})
	return s
}

func (s *Simulation) Register(name string, f Force) {
	s.forces[name] = f
}

func (s *Simulation) Remove(name string) {
	delete(s.forces, name)
}

func (s *Simulation) Has(name string) bool {
	_, ok := s.forces[name]
	return ok
}

// ForceNames lists registered forces, sorted, for state assertions.
func (s *Simulation) ForceNames() []string {
	out := make([]string, 0, len(s.forces))
	for name := range s.forces {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Kick reheats the simulation, e.g. after a snapshot apply moved the graph.
func (s *Simulation) Kick() {
	s.alpha = alphaStart
}

// Step runs one tick: every force contributes velocity, then positions
// integrate with decay. Pinned nodes hold still. Cooled simulations
// (alpha below the floor) are a no-op until kicked.
func (s *Simulation) Step() {
	if s.alpha < alphaMin {
		return
	}
	for _, f := range s.forces {
		f.Apply(s.store, s.alpha)
	}
	for _, n := range s.store.Nodes() {
		if n.Pinned {
			n.Vel = graph.Position{}
			continue
		}
		n.Vel.X *= velocityDecay
		n.Vel.Y *= velocityDecay
		n.Vel.Z *= velocityDecay
		n.Pos.X += n.Vel.X
		n.Pos.Y += n.Vel.Y
		n.Pos.Z += n.Vel.Z
	}
	s.alpha -= s.alpha * alphaDecay
}

// Charge is the pairwise many-body force. Negative strength repels (the
// default), positive attracts.
type Charge struct {
	Strength float64
}

func (c *Charge) Apply(s *graph.Store, alpha float64) {
	nodes := s.Nodes()
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			a, b := nodes[i], nodes[j]
			dx, dy, dz, d2 := delta(a.Pos, b.Pos)
			f := c.Strength * alpha / d2
			a.Vel.X += dx * f
			a.Vel.Y += dy * f
			a.Vel.Z += dz * f
			b.Vel.X -= dx * f
			b.Vel.Y -= dy * f
			b.Vel.Z -= dz * f
		}
	}
}

// Link is a spring along every edge toward a rest distance.
type Link struct {
	Distance float64
	Strength float64
}

func (l *Link) Apply(s *graph.Store, alpha float64) {
	for _, e := range s.Edges() {
		src, ok := s.Node(e.Source)
		if !ok {
			continue
		}
		dst, ok := s.Node(e.Target)
		if !ok {
			continue
		}
		dx, dy, dz, d2 := delta(src.Pos, dst.Pos)
		d := math.Sqrt(d2)
		f := (d - l.Distance) / d * l.Strength * alpha
		src.Vel.X += dx * f / 2
		src.Vel.Y += dy * f / 2
		src.Vel.Z += dz * f / 2
		dst.Vel.X -= dx * f / 2
		dst.Vel.Y -= dy * f / 2
		dst.Vel.Z -= dz * f / 2
	}
}

// Center pulls everything gently toward the origin.
type Center struct {
	Strength float64
}

func (c *Center) Apply(s *graph.Store, alpha float64) {
	for _, n := range s.Nodes() {
		n.Vel.X -= n.Pos.X * c.Strength * alpha
		n.Vel.Y -= n.Pos.Y * c.Strength * alpha
		n.Vel.Z -= n.Pos.Z * c.Strength * alpha
	}
}

// delta returns the displacement from a to b and its squared length,
// floored to keep coincident nodes from dividing by zero.
func delta(a, b graph.Position) (dx, dy, dz, d2 float64) {
	dx = b.X - a.X
	dy = b.Y - a.Y
	dz = b.Z - a.Z
	d2 = dx*dx + dy*dy + dz*dz
	if d2 < 1e-6 {
		d2 = 1e-6
	}
	return dx, dy, dz, d2
}
