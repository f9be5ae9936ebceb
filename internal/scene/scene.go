// Package scene is the boundary to the rendering layer. The engine pushes
// positions, label visibility, and marker state through the Renderer
// interface; it never draws anything itself.
package scene

import "github.com/mistakeknot/beadscope/internal/graph"

// Handle identifies a renderer-owned resource, e.g. a marker sprite.
type Handle uint64

// Marker is the render-facing view of one transient marker.
type Marker struct {
	Handle  Handle
	Pos     graph.Position
	Label   string
	Color   string
	Opacity float64
}

// Renderer is implemented by the actual scene layer. All calls happen on
// the engine's frame goroutine.
type Renderer interface {
	// AllocMarker creates a marker resource and returns its handle.
	AllocMarker(label, color string) Handle
	// UpdateMarker moves or fades an existing marker.
	UpdateMarker(m Marker)
	// ReleaseMarker frees the marker resource. Must tolerate handles that
	// were already released.
	ReleaseMarker(h Handle)
	// FlushNodes hands the renderer the per-frame node state (positions and
	// label visibility).
	FlushNodes(nodes []*graph.Node)
}

// Noop discards everything. The engine falls back to it when no renderer is
// attached, e.g. in headless runs and most tests.
type Noop struct {
	next Handle
}

func (n *Noop) AllocMarker(string, string) Handle {
	n.next++
	return n.next
}

func (n *Noop) UpdateMarker(Marker)      {}
func (n *Noop) ReleaseMarker(Handle)     {}
func (n *Noop) FlushNodes([]*graph.Node) {}

var _ Renderer = (*Noop)(nil)
