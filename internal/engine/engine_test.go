package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mistakeknot/beadscope/internal/config"
	"github.com/mistakeknot/beadscope/internal/feed"
	"github.com/mistakeknot/beadscope/internal/graph"
	"github.com/mistakeknot/beadscope/internal/physics"
)

type fakeBackend struct {
	mu      sync.Mutex
	snap    graph.Snapshot
	failing map[string]bool
	writes  int
}

func (b *fakeBackend) Snapshot(context.Context) (graph.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap, nil
}

func (b *fakeBackend) write(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes++
	if b.failing[id] {
		return fmt.Errorf("rejected %s", id)
	}
	return nil
}

func (b *fakeBackend) UpdateIssue(_ context.Context, id, _, _ string) error {
	return b.write(id)
}

func (b *fakeBackend) CloseIssue(_ context.Context, id string) error {
	return b.write(id)
}

func (b *fakeBackend) ClaimIssue(_ context.Context, id, _ string) error {
	return b.write(id)
}

type nullNotifier struct{}

func (nullNotifier) Toast(string)      {}
func (nullNotifier) ToastError(string) {}

func testSnapshot() graph.Snapshot {
	return graph.Snapshot{
		Nodes: []graph.Node{
			{ID: "bd-1", IssueType: graph.TypeTask, Status: "open"},
			{ID: "bd-2", IssueType: graph.TypeTask, Status: "open"},
			{ID: "bd-3", IssueType: graph.TypeMolecule, Status: "open"},
		},
		Edges: []graph.Edge{
			{Source: "bd-3", Target: "bd-1", DepType: graph.DepParentChild},
		},
	}
}

func newEngineForTest(t *testing.T, b *fakeBackend) *Engine {
	t.Helper()
	e := New(config.Default(), b, nullNotifier{}, feed.NewRouter(nil))
	// Load the initial snapshot synchronously.
	e.Refresh()
	deadline := time.Now().Add(time.Second)
	for e.store.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("snapshot never applied")
		}
		e.Tick()
	}
	return e
}

func agentEvent(typ feed.EventType, payload string) feed.Event {
	return feed.Event{
		Stream:  feed.StreamAgents,
		Type:    typ,
		Subject: "agent.event",
		Payload: json.RawMessage(payload),
	}
}

func TestEventCreatesWindowNodeAndDoot(t *testing.T) {
	b := &fakeBackend{snap: testSnapshot()}
	e := newEngineForTest(t, b)

	e.Inject(agentEvent(feed.EventAgentStarted, `{"actor":"fern","issue_id":"bd-1"}`))
	e.Tick()

	if len(e.Windows()) != 1 {
		t.Fatalf("windows = %d", len(e.Windows()))
	}
	if _, ok := e.Node("agent/fern"); !ok {
		t.Fatal("synthetic agent node missing")
	}
	if len(e.LiveDoots()) != 1 {
		t.Fatalf("doots = %d", len(e.LiveDoots()))
	}
	// The issue reference produced a tether edge.
	if len(e.EdgesOfType(graph.DepAssignedTo)) != 1 {
		t.Fatal("assigned_to edge not materialized")
	}
}

func TestEventEffectsVisibleNextTickOnly(t *testing.T) {
	b := &fakeBackend{snap: testSnapshot()}
	e := newEngineForTest(t, b)

	e.Inject(agentEvent(feed.EventAgentStarted, `{"actor":"fern"}`))
	if len(e.Windows()) != 0 {
		t.Fatal("event observed before the frame tick drained it")
	}
	e.Tick()
	if len(e.Windows()) != 1 {
		t.Fatal("event not observed after tick")
	}
}

func TestHighlightRoundTrip(t *testing.T) {
	b := &fakeBackend{snap: testSnapshot()}
	e := newEngineForTest(t, b)
	before := e.sim.ForceNames()

	e.HighlightComponent("bd-1")
	got := e.Highlighted()
	if len(got) != 2 || got[0] != "bd-1" || got[1] != "bd-3" {
		t.Fatalf("highlighted = %v", got)
	}
	if !e.sim.Has(physics.ForceSpread) {
		t.Fatal("spread force not registered")
	}

	e.ClearHighlight()
	if len(e.Highlighted()) != 0 {
		t.Fatal("highlight not cleared")
	}
	after := e.sim.ForceNames()
	if len(after) != len(before) {
		t.Fatalf("force set not restored: %v vs %v", after, before)
	}
}

func TestFocusSuspendsLabelBudget(t *testing.T) {
	snap := testSnapshot()
	for i := 0; i < 100; i++ {
		snap.Nodes = append(snap.Nodes, graph.Node{
			ID:        fmt.Sprintf("extra-%d", i),
			IssueType: graph.TypeTask,
			Status:    "open",
		})
	}
	b := &fakeBackend{snap: snap}
	e := newEngineForTest(t, b)

	e.FocusMolecule("bd-3")
	e.Tick()

	for _, id := range []string{"bd-3", "bd-1"} {
		n, _ := e.Node(id)
		if !n.LabelVisible {
			t.Fatalf("focused node %s label hidden", id)
		}
	}
	e.ClearFocus()
	if len(e.Focused()) != 0 {
		t.Fatal("focus not cleared")
	}
}

func TestMutationRollbackThroughEngine(t *testing.T) {
	b := &fakeBackend{snap: testSnapshot(), failing: map[string]bool{"bd-2": true}}
	e := newEngineForTest(t, b)

	e.SetStatus([]string{"bd-1", "bd-2"}, "closed")
	e.pipeline.Wait()
	e.Tick()

	n1, _ := e.Node("bd-1")
	n2, _ := e.Node("bd-2")
	if n1.Status != "closed" {
		t.Fatalf("bd-1 = %q", n1.Status)
	}
	if n2.Status != "open" {
		t.Fatalf("bd-2 not rolled back: %q", n2.Status)
	}
}

func TestSnapshotPreservesOptimisticFieldMidFlight(t *testing.T) {
	b := &fakeBackend{snap: testSnapshot()}
	e := New(config.Default(), b, nullNotifier{}, feed.NewRouter(nil))
	e.Refresh()
	deadline := time.Now().Add(time.Second)
	for e.store.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("snapshot never applied")
		}
		e.Tick()
	}

	// Leave the write unresolved by not waiting; the pending table still
	// holds the entry when the next snapshot lands.
	e.SetStatus([]string{"bd-1"}, "closed")
	e.mu.Lock()
	e.store.ApplySnapshot(testSnapshot(), e.pipeline.Preserves())
	e.mu.Unlock()

	n, _ := e.Node("bd-1")
	if n.Status != "closed" {
		t.Fatalf("optimistic status lost to snapshot: %q", n.Status)
	}
}

func TestWindowLifecycleThroughEngine(t *testing.T) {
	b := &fakeBackend{snap: testSnapshot()}
	e := newEngineForTest(t, b)

	e.OpenWindow("fern")
	e.ToggleOverlay(true)
	e.ToggleOverlay(false)
	if len(e.Windows()) != 1 {
		t.Fatal("toggle destroyed the window")
	}
	e.CloseWindow("fern")
	if len(e.Windows()) != 0 {
		t.Fatal("close did not remove the window")
	}
}

func TestStreamStatusWithoutStream(t *testing.T) {
	b := &fakeBackend{snap: testSnapshot()}
	e := newEngineForTest(t, b)
	if e.StreamStatus() != feed.StatusDegraded {
		t.Fatal("engine without a stream should report degraded")
	}
}
