// Package agents tracks per-agent session state driven by the routed event
// feed: tool activity, crash status, and a bounded feed history per window.
package agents

import (
	"github.com/mistakeknot/beadscope/internal/doots"
	"github.com/mistakeknot/beadscope/internal/feed"
)

type Status string

const (
	StatusUnknown Status = "unknown"
	StatusIdle    Status = "idle"
	StatusActive  Status = "active"
	StatusCrashed Status = "crashed"
)

// Surface is where a window is currently rendered.
type Surface string

const (
	SurfaceTray     Surface = "tray"
	SurfaceGrid     Surface = "grid"
	SurfaceFloating Surface = "floating"
)

// entryCap bounds the feed history per window; the oldest entry is evicted
// when a new one lands at capacity.
const entryCap = 50

// Entry is one feed line in an agent window.
type Entry struct {
	Event feed.Event
	Label string
	Color doots.Color
}

// Window is the per-agent state container. Created on first referencing
// event or explicit open; destroyed only by explicit close. Overlay toggles
// relocate it between surfaces and never destroy it.
type Window struct {
	Agent     string
	Status    Status
	Tool      string
	CrashText string
	Surface   Surface
	Folded    bool

	entries   []Entry
	feedDirty bool
}

func newWindow(agent string) *Window {
	return &Window{Agent: agent, Status: StatusUnknown, Surface: SurfaceTray}
}

func (w *Window) Entries() []Entry {
	return w.entries
}

// ConsumeDirty reports whether the feed needs a re-render and clears the
// flag. The frame loop calls this once per tick.
func (w *Window) ConsumeDirty() bool {
	d := w.feedDirty
	w.feedDirty = false
	return d
}

// append pushes a feed entry, evicting the oldest at capacity. The first
// entry also clears the "empty" placeholder (entries going from zero to
// non-zero is that transition). Safe to drive from the streaming path or
// from replay injection.
func (w *Window) append(ev feed.Event) {
	d, ok := doots.Describe(ev)
	if !ok {
		d = doots.Desc{Label: string(ev.Type), Color: doots.ColorGray}
	}
	if len(w.entries) >= entryCap {
		w.entries = w.entries[1:]
	}
	w.entries = append(w.entries, Entry{Event: ev, Label: d.Label, Color: d.Color})
	w.feedDirty = true
}

// apply advances the per-agent state machine:
// unknown → idle ⇄ active → crashed; crashed is terminal until a new
// AgentStarted resets it to active.
func (w *Window) apply(ev feed.Event) {
	f := ev.Fields()
	switch ev.Type {
	case feed.EventAgentStarted:
		w.Status = StatusActive
		w.CrashText = ""
		if f.ToolName != "" {
			w.Tool = f.ToolName
		}
	case feed.EventPreToolUse, feed.EventPostToolUse:
		if w.Status != StatusCrashed {
			w.Status = StatusActive
		}
		if f.ToolName != "" {
			w.Tool = f.ToolName
		}
	case feed.EventAgentIdle:
		if w.Status != StatusCrashed {
			w.Status = StatusIdle
		}
	case feed.EventAgentCrashed:
		w.Status = StatusCrashed
		w.CrashText = f.Error
	}
	w.append(ev)
}

// Registry owns the window map. One window per agent identity; lookups and
// event routing go through it rather than any package-level state.
type Registry struct {
	windows map[string]*Window
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{windows: make(map[string]*Window)}
}

// Observe routes an event to the window for its resolved agent, creating
// the window on first reference. Events with no derivable identity are a
// no-op, not an error.
func (r *Registry) Observe(ev feed.Event) *Window {
	id, ok := Resolve(ev)
	if !ok {
		return nil
	}
	w := r.ensure(id)
	w.apply(ev)
	return w
}

// Open creates (or returns) the window for an agent without an event, as an
// explicit overlay open does.
func (r *Registry) Open(agent string) *Window {
	return r.ensure(agent)
}

// Close destroys a window. This is the only way a window goes away.
func (r *Registry) Close(agent string) {
	if _, ok := r.windows[agent]; !ok {
		return
	}
	delete(r.windows, agent)
	for i, id := range r.order {
		if id == agent {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Toggle relocates every window between the tray and the overlay grid,
// folding on the way to the tray. State and history are retained.
func (r *Registry) Toggle(overlayOpen bool) {
	for _, w := range r.windows {
		if w.Surface == SurfaceFloating {
			continue
		}
		if overlayOpen {
			w.Surface = SurfaceGrid
			w.Folded = false
		} else {
			w.Surface = SurfaceTray
			w.Folded = true
		}
	}
}

func (r *Registry) Window(agent string) (*Window, bool) {
	w, ok := r.windows[agent]
	return w, ok
}

// Windows returns windows in creation order.
func (r *Registry) Windows() []*Window {
	out := make([]*Window, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.windows[id])
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.windows)
}

func (r *Registry) ensure(agent string) *Window {
	if w, ok := r.windows[agent]; ok {
		return w
	}
	w := newWindow(agent)
	r.windows[agent] = w
	r.order = append(r.order, agent)
	return w
}
