// Package engine is the frame-loop coordinator: it owns the graph store and
// every registry, drains the event feed, drives the mutation pipeline, steps
// physics, and re-ranks label visibility, once per tick.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mistakeknot/beadscope/internal/agents"
	"github.com/mistakeknot/beadscope/internal/config"
	"github.com/mistakeknot/beadscope/internal/doots"
	"github.com/mistakeknot/beadscope/internal/feed"
	"github.com/mistakeknot/beadscope/internal/graph"
	"github.com/mistakeknot/beadscope/internal/lod"
	"github.com/mistakeknot/beadscope/internal/mutate"
	"github.com/mistakeknot/beadscope/internal/physics"
	"github.com/mistakeknot/beadscope/internal/scene"
)

// Backend is the server the engine synchronizes against: snapshot reads
// plus the per-node write API.
type Backend interface {
	Snapshot(ctx context.Context) (graph.Snapshot, error)
	mutate.Writer
}

// Engine holds all session state. All mutation of shared state happens
// inside Tick on one goroutine; the mutex covers accessors called off-loop.
type Engine struct {
	mu sync.RWMutex

	cfg      config.Config
	store    *graph.Store
	router   *feed.Router
	windows  *agents.Registry
	pool     *doots.Pool
	popups   *doots.Popups
	pipeline *mutate.Pipeline
	sim      *physics.Simulation
	lod      *lod.Scheduler
	renderer scene.Renderer
	backend  Backend
	stream   *feed.Conn

	tether      *physics.Tether
	highlighted map[string]bool
	focused     map[string]bool
	camera      graph.Position

	snapshots  chan graph.Snapshot
	refreshing bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithRenderer attaches the scene layer. Default is a no-op renderer.
func WithRenderer(r scene.Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

// WithStream attaches a live feed connection. Without one the engine runs
// on polling alone, which is the degraded-but-functional mode.
func WithStream(c *feed.Conn) Option {
	return func(e *Engine) { e.stream = c }
}

func New(cfg config.Config, backend Backend, notify mutate.Notifier, router *feed.Router, opts ...Option) *Engine {
	store := graph.NewStore()
	e := &Engine{
		cfg:         cfg,
		store:       store,
		router:      router,
		windows:     agents.NewRegistry(),
		backend:     backend,
		renderer:    &scene.Noop{},
		sim:         physics.NewSimulation(store),
		lod:         lod.NewScheduler(),
		highlighted: make(map[string]bool),
		focused:     make(map[string]bool),
		snapshots:   make(chan graph.Snapshot, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.pool = doots.NewPool(e.renderer)
	e.popups = doots.NewPopups(nil)
	debounce := mutate.NewDebouncer(time.Duration(cfg.RefreshQuiet), e.Refresh)
	e.pipeline = mutate.NewPipeline(store, backend, notify, debounce)
	if cfg.LabelBudget > 0 {
		e.lod.Budget = cfg.LabelBudget
	}
	e.tether = &physics.Tether{Strength: cfg.TetherStrength}
	e.sim.Register(physics.ForceTether, e.tether)

	for _, stream := range feed.Streams {
		e.router.On(stream, e.observe)
	}
	return e
}

// observe routes one feed event into session state: agent window, synthetic
// agent node, marker, popup, and tether edge. Runs inside Tick via Drain.
func (e *Engine) observe(ev feed.Event) {
	w := e.windows.Observe(ev)
	f := ev.Fields()

	var origin *graph.Node
	if w != nil {
		origin = e.store.EnsureAgent(w.Agent)
		if f.IssueID != "" {
			if _, ok := e.store.Node(f.IssueID); ok {
				e.store.AddEdge(graph.Edge{
					Source:  origin.ID,
					Target:  f.IssueID,
					DepType: graph.DepAssignedTo,
				})
			}
		}
	} else if f.IssueID != "" {
		origin, _ = e.store.Node(f.IssueID)
	}
	if origin == nil {
		// Marker origin missing is an expected no-op.
		return
	}

	if d := e.pool.SpawnEvent(origin, ev); d != nil && origin.IssueType != graph.TypeAgent {
		e.popups.Trigger(origin.ID, d.Label)
	}
}

// Run drives the engine until ctx ends: frame ticks, periodic polls, and
// the streaming feed. The first snapshot is requested immediately.
func (e *Engine) Run(ctx context.Context) {
	if e.stream != nil {
		e.stream.Start(ctx)
		defer e.stream.Close()
	}
	e.Refresh()

	frames := time.NewTicker(time.Duration(e.cfg.FrameInterval))
	defer frames.Stop()
	polls := time.NewTicker(time.Duration(e.cfg.PollInterval))
	defer polls.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-polls.C:
			e.Refresh()
		case <-frames.C:
			e.Tick()
		}
	}
}

// Tick advances one frame. Everything that mutates shared state happens
// here, so effects of event/mutation callbacks are observed atomically by
// the next frame.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	select {
	case snap := <-e.snapshots:
		e.refreshing = false
		e.store.ApplySnapshot(snap, e.pipeline.Preserves())
		e.sim.Kick()
	default:
	}

	e.router.Drain()
	e.pipeline.Collect()
	e.pool.Update()
	e.popups.Update()
	e.sim.Step()
	e.lod.Rank(e.store.Nodes(), e.camera, e.focused)
	e.renderer.FlushNodes(e.store.Nodes())
}

// Refresh requests one consolidated snapshot fetch. Concurrent requests
// collapse; failures are dropped and the next poll retries.
func (e *Engine) Refresh() {
	e.mu.Lock()
	if e.refreshing {
		e.mu.Unlock()
		return
	}
	e.refreshing = true
	e.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		snap, err := e.backend.Snapshot(ctx)
		if err != nil {
			e.mu.Lock()
			e.refreshing = false
			e.mu.Unlock()
			return
		}
		select {
		case e.snapshots <- snap:
		default:
			e.mu.Lock()
			e.refreshing = false
			e.mu.Unlock()
		}
	}()
}

// SetStatus, SetPriority, CloseIssues and Claim are the user-facing edit
// operations; all apply optimistically via the mutation pipeline.
func (e *Engine) SetStatus(ids []string, status string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pipeline.SetStatus(ids, status)
}

func (e *Engine) SetPriority(ids []string, priority int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pipeline.SetPriority(ids, priority)
}

func (e *Engine) CloseIssues(ids []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pipeline.Close(ids)
}

func (e *Engine) Claim(ids []string, assignee string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pipeline.Claim(ids, assignee)
}

// HighlightComponent selects the connected component containing id and
// registers the spread force over exactly that set.
func (e *Engine) HighlightComponent(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	comp := e.store.Component(id)
	if len(comp) == 0 {
		return
	}
	e.highlighted = make(map[string]bool, len(comp))
	for _, nodeID := range comp {
		e.highlighted[nodeID] = true
	}
	e.sim.Register(physics.ForceSpread, &physics.Spread{Nodes: e.highlighted, Strength: 25})
	e.sim.Kick()
}

// ClearHighlight removes the selection and the spread force with it.
func (e *Engine) ClearHighlight() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.highlighted = make(map[string]bool)
	e.sim.Remove(physics.ForceSpread)
}

// FocusMolecule isolates a molecule's component: its labels bypass the LOD
// budget until the focus clears.
func (e *Engine) FocusMolecule(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	comp := e.store.Component(id)
	e.focused = make(map[string]bool, len(comp))
	for _, nodeID := range comp {
		e.focused[nodeID] = true
	}
}

func (e *Engine) ClearFocus() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.focused = make(map[string]bool)
}

// SetCamera updates the viewpoint LOD ranks against.
func (e *Engine) SetCamera(pos graph.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.camera = pos
}

// SetTetherStrength adjusts the agent-tether scalar live.
func (e *Engine) SetTetherStrength(s float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}
	e.tether.Strength = s
}

// OpenWindow and CloseWindow manage agent windows explicitly, independent
// of the event feed.
func (e *Engine) OpenWindow(agent string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.windows.Open(agent)
}

func (e *Engine) CloseWindow(agent string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.windows.Close(agent)
}

// ToggleOverlay relocates every window between tray and grid surfaces.
func (e *Engine) ToggleOverlay(open bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.windows.Toggle(open)
}

// Inject feeds an event through the same path as the stream; replay and
// tests use it.
func (e *Engine) Inject(ev feed.Event) {
	e.router.Inject(ev)
}

// The accessors below expose current session state for external UI and for
// deterministic test assertions.

func (e *Engine) Windows() []*agents.Window {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.windows.Windows()
}

func (e *Engine) LiveDoots() []*doots.Doot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*doots.Doot(nil), e.pool.Live()...)
}

func (e *Engine) Highlighted() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return sortedKeys(e.highlighted)
}

func (e *Engine) Focused() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return sortedKeys(e.focused)
}

// Node returns a copy of one node's current state.
func (e *Engine) Node(id string) (graph.Node, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n, ok := e.store.Node(id)
	if !ok {
		return graph.Node{}, false
	}
	return *n, true
}

// EdgesOfType returns copies of the current edges carrying the given dep
// type.
func (e *Engine) EdgesOfType(t graph.DepType) []graph.Edge {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]graph.Edge(nil), e.store.EdgesOfType(t)...)
}

// StreamStatus reports the passive connection indicator.
func (e *Engine) StreamStatus() feed.Status {
	if e.stream == nil {
		return feed.StatusDegraded
	}
	return e.stream.Status()
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
