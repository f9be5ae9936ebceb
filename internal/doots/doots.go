// Package doots spawns, animates, and recycles the short-lived markers that
// float up from a node when an event lands on it.
package doots

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/mistakeknot/beadscope/internal/feed"
	"github.com/mistakeknot/beadscope/internal/graph"
	"github.com/mistakeknot/beadscope/internal/scene"
)

const (
	// PoolCap is the process-wide live marker limit. Spawning at capacity
	// force-expires the oldest marker first, never the new one.
	PoolCap = 30

	// Lifetime is how long a marker lives; opacity holds at 1.0 until
	// fadeStart of it has elapsed, then decays linearly to zero.
	Lifetime  = 4 * time.Second
	fadeStart = 0.6

	// maxJitter bounds the random horizontal offset per axis.
	maxJitter = 3.0

	// stackStep is the vertical spacing between concurrent markers on one
	// origin; newer markers start lower and everything rises together.
	stackStep = 1.5

	// riseSpeed is layout units per second of upward drift.
	riseSpeed = 2.0
)

// Doot is one live marker.
type Doot struct {
	ID       string
	OriginID string
	Label    string
	Color    Color
	Spawned  time.Time
	Jitter   graph.Position
	Handle   scene.Handle

	basePos graph.Position
	stack   int
}

// Age returns elapsed lifetime fraction in [0, +inf).
func (d *Doot) Age(now time.Time) float64 {
	return float64(now.Sub(d.Spawned)) / float64(Lifetime)
}

// Opacity is 1.0 for the first 60% of life, then linear to 0 at expiry.
func (d *Doot) Opacity(now time.Time) float64 {
	age := d.Age(now)
	if age <= fadeStart {
		return 1.0
	}
	if age >= 1.0 {
		return 0
	}
	return 1.0 - (age-fadeStart)/(1.0-fadeStart)
}

// Pos integrates the constant rise from the spawn position.
func (d *Doot) Pos(now time.Time) graph.Position {
	rise := now.Sub(d.Spawned).Seconds() * riseSpeed
	return graph.Position{
		X: d.basePos.X + d.Jitter.X,
		Y: d.basePos.Y - float64(d.stack)*stackStep + rise,
		Z: d.basePos.Z + d.Jitter.Z,
	}
}

// Pool owns every live marker, in spawn order, and enforces the cap.
type Pool struct {
	renderer scene.Renderer
	live     []*Doot
	rand     *rand.Rand
	now      func() time.Time
}

// Option configures a Pool.
type Option func(*Pool)

// WithClock injects the time source. Tests use a fake clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// WithRand seeds the jitter source deterministically.
func WithRand(r *rand.Rand) Option {
	return func(p *Pool) { p.rand = r }
}

func NewPool(renderer scene.Renderer, opts ...Option) *Pool {
	p := &Pool{
		renderer: renderer,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Live returns the live markers oldest-first.
func (p *Pool) Live() []*Doot {
	return p.live
}

// Spawn creates a marker at the origin node's current coordinates plus
// bounded jitter. At capacity the single oldest live marker is force-expired
// (resources released) before the new one is created.
func (p *Pool) Spawn(origin *graph.Node, label string, color Color) *Doot {
	if origin == nil {
		return nil
	}
	for len(p.live) >= PoolCap {
		p.expire(0)
	}
	stack := 0
	for _, d := range p.live {
		if d.OriginID == origin.ID {
			stack++
		}
	}
	d := &Doot{
		ID:       uuid.NewString(),
		OriginID: origin.ID,
		Label:    label,
		Color:    color,
		Spawned:  p.now(),
		Jitter: graph.Position{
			X: (p.rand.Float64()*2 - 1) * maxJitter,
			Z: (p.rand.Float64()*2 - 1) * maxJitter,
		},
		basePos: origin.Pos,
		stack:   stack,
	}
	d.Handle = p.renderer.AllocMarker(d.Label, string(d.Color))
	p.live = append(p.live, d)
	return d
}

// SpawnEvent spawns the marker an event maps to, if any. Noisy event types
// are filtered here, before any allocation.
func (p *Pool) SpawnEvent(origin *graph.Node, ev feed.Event) *Doot {
	d, ok := Describe(ev)
	if !ok {
		return nil
	}
	return p.Spawn(origin, d.Label, d.Color)
}

// Update advances every live marker one frame: integrate position, fade,
// and expire anything past its lifetime, releasing its rendering handle.
func (p *Pool) Update() {
	now := p.now()
	for i := 0; i < len(p.live); {
		d := p.live[i]
		if d.Age(now) >= 1.0 {
			p.expire(i)
			continue
		}
		p.renderer.UpdateMarker(scene.Marker{
			Handle:  d.Handle,
			Pos:     d.Pos(now),
			Label:   d.Label,
			Color:   string(d.Color),
			Opacity: d.Opacity(now),
		})
		i++
	}
}

func (p *Pool) expire(i int) {
	d := p.live[i]
	p.renderer.ReleaseMarker(d.Handle)
	p.live = append(p.live[:i], p.live[i+1:]...)
}
