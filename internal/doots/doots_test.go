package doots

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/mistakeknot/beadscope/internal/feed"
	"github.com/mistakeknot/beadscope/internal/graph"
	"github.com/mistakeknot/beadscope/internal/scene"
)

// countingRenderer records alloc/release pairs so tests can assert every
// expired marker frees its handle.
type countingRenderer struct {
	scene.Noop
	allocs   int
	released map[scene.Handle]bool
}

func newCountingRenderer() *countingRenderer {
	return &countingRenderer{released: make(map[scene.Handle]bool)}
}

func (r *countingRenderer) AllocMarker(label, color string) scene.Handle {
	r.allocs++
	return r.Noop.AllocMarker(label, color)
}

func (r *countingRenderer) ReleaseMarker(h scene.Handle) {
	r.released[h] = true
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newPoolForTest(r scene.Renderer, clock *fakeClock) *Pool {
	return NewPool(r,
		WithClock(clock.now),
		WithRand(rand.New(rand.NewSource(1))),
	)
}

func TestPoolCapEvictsOldestFIFO(t *testing.T) {
	r := newCountingRenderer()
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := newPoolForTest(r, clock)
	origin := &graph.Node{ID: "bd-1", IssueType: graph.TypeTask}

	var ids []string
	for i := 0; i < 35; i++ {
		d := p.Spawn(origin, fmt.Sprintf("ev-%d", i), ColorBlue)
		ids = append(ids, d.ID)
		clock.advance(time.Millisecond)
	}

	live := p.Live()
	if len(live) != PoolCap {
		t.Fatalf("live count = %d, want %d", len(live), PoolCap)
	}
	// Survivors are the most recently spawned 30, oldest-first in the pool.
	for i, d := range live {
		if d.ID != ids[5+i] {
			t.Fatalf("survivor %d is not the expected spawn", i)
		}
	}
	// The five evicted markers released their handles.
	if len(r.released) != 5 {
		t.Fatalf("expected 5 released handles, got %d", len(r.released))
	}
}

func TestJitterBounded(t *testing.T) {
	p := newPoolForTest(&scene.Noop{}, &fakeClock{t: time.Unix(0, 0)})
	origin := &graph.Node{ID: "bd-1"}
	for i := 0; i < 100; i++ {
		d := p.Spawn(origin, "x", ColorOrange)
		if d.Jitter.X < -3 || d.Jitter.X > 3 || d.Jitter.Z < -3 || d.Jitter.Z > 3 {
			t.Fatalf("jitter out of bounds: %+v", d.Jitter)
		}
		if d.Jitter.Y != 0 {
			t.Fatalf("vertical jitter should be zero, got %f", d.Jitter.Y)
		}
	}
}

func TestStackingAndRise(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := newPoolForTest(&scene.Noop{}, clock)
	origin := &graph.Node{ID: "bd-1", Pos: graph.Position{Y: 10}}

	a := p.Spawn(origin, "a", ColorGreen)
	b := p.Spawn(origin, "b", ColorGreen)

	now := clock.now()
	if b.Pos(now).Y >= a.Pos(now).Y {
		t.Fatal("newer marker should start below the older one")
	}

	before := a.Pos(now).Y
	clock.advance(time.Second)
	if a.Pos(clock.now()).Y <= before {
		t.Fatal("marker did not rise")
	}
}

func TestOpacityCurve(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := newPoolForTest(&scene.Noop{}, clock)
	d := p.Spawn(&graph.Node{ID: "bd-1"}, "x", ColorGreen)

	if got := d.Opacity(clock.now()); got != 1.0 {
		t.Fatalf("opacity at spawn = %f", got)
	}
	clock.advance(Lifetime / 2) // 50% of life: still before fadeStart
	if got := d.Opacity(clock.now()); got != 1.0 {
		t.Fatalf("opacity at half life = %f", got)
	}
	clock.advance(Lifetime * 3 / 10) // 80% of life: mid-fade
	got := d.Opacity(clock.now())
	if got <= 0 || got >= 1 {
		t.Fatalf("opacity at 80%% life = %f, want inside (0,1)", got)
	}
	clock.advance(Lifetime / 5) // 100%
	if got := d.Opacity(clock.now()); got != 0 {
		t.Fatalf("opacity at expiry = %f", got)
	}
}

func TestUpdateExpiresAndReleases(t *testing.T) {
	r := newCountingRenderer()
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := newPoolForTest(r, clock)

	p.Spawn(&graph.Node{ID: "bd-1"}, "x", ColorGreen)
	clock.advance(Lifetime / 2)
	p.Spawn(&graph.Node{ID: "bd-1"}, "y", ColorGreen)

	clock.advance(Lifetime/2 + time.Millisecond)
	p.Update()
	if len(p.Live()) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(p.Live()))
	}
	if len(r.released) != 1 {
		t.Fatalf("expired marker did not release its handle")
	}

	clock.advance(Lifetime)
	p.Update()
	if len(p.Live()) != 0 || len(r.released) != 2 {
		t.Fatalf("pool not drained: live=%d released=%d", len(p.Live()), len(r.released))
	}
}

func TestDescribeMapping(t *testing.T) {
	cases := []struct {
		typ   feed.EventType
		color Color
		ok    bool
	}{
		{feed.EventAgentStarted, ColorGreen, true},
		{feed.EventJobFailed, ColorRed, true},
		{feed.EventAgentCrashed, ColorRed, true},
		{feed.EventAgentIdle, ColorGray, true},
		{feed.EventPreToolUse, ColorBlue, true},
		{feed.EventDecisionNeeded, ColorYellow, true},
		{feed.EventType("issue.mystery"), ColorOrange, true},
		{feed.EventAgentHeartbeat, "", false},
		{feed.EventDecisionOpened, "", false},
		{feed.EventDecisionClosed, "", false},
	}
	for _, tc := range cases {
		d, ok := Describe(feed.Event{Type: tc.typ})
		if ok != tc.ok {
			t.Fatalf("%s: ok = %v, want %v", tc.typ, ok, tc.ok)
		}
		if ok && d.Color != tc.color {
			t.Fatalf("%s: color = %s, want %s", tc.typ, d.Color, tc.color)
		}
	}
}

func TestDescribeToolLabel(t *testing.T) {
	ev := feed.Event{
		Type:    feed.EventPreToolUse,
		Payload: json.RawMessage(`{"tool_name":"bash","tool_input":"rg --files | head -200 please"}`),
	}
	d, ok := Describe(ev)
	if !ok {
		t.Fatal("tool event filtered")
	}
	if d.Label[:5] != "bash:" {
		t.Fatalf("label = %q", d.Label)
	}
	if len(d.Label) > len("bash: ")+27 {
		t.Fatalf("label not truncated: %q", d.Label)
	}
}

func TestToolLabelTruncatesOnRuneBoundary(t *testing.T) {
	input := strings.Repeat("é", 30)
	payload, _ := json.Marshal(map[string]string{"tool_name": "edit", "tool_input": input})
	d, ok := Describe(feed.Event{Type: feed.EventPreToolUse, Payload: payload})
	if !ok {
		t.Fatal("tool event filtered")
	}
	if !utf8.ValidString(d.Label) {
		t.Fatalf("label is not valid UTF-8: %q", d.Label)
	}
	want := "edit: " + strings.Repeat("é", 24) + "…"
	if d.Label != want {
		t.Fatalf("label = %q, want %q", d.Label, want)
	}
}

func TestSpawnEventFiltersNoisyTypes(t *testing.T) {
	p := newPoolForTest(&scene.Noop{}, &fakeClock{t: time.Unix(0, 0)})
	origin := &graph.Node{ID: "bd-1"}
	if d := p.SpawnEvent(origin, feed.Event{Type: feed.EventAgentHeartbeat}); d != nil {
		t.Fatal("heartbeat spawned a marker")
	}
	if d := p.SpawnEvent(origin, feed.Event{Type: feed.EventAgentStarted}); d == nil {
		t.Fatal("start event did not spawn")
	}
}

func TestPopupCapAndReset(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	ps := NewPopups(clock.now)

	ps.Trigger("bd-1", "a")
	ps.Trigger("bd-2", "b")
	ps.Trigger("bd-3", "c")
	ps.Trigger("bd-4", "d")
	open := ps.Open()
	if len(open) != 3 {
		t.Fatalf("popup count = %d, want 3", len(open))
	}
	if open[0].NodeID != "bd-2" {
		t.Fatalf("oldest popup not evicted, first = %s", open[0].NodeID)
	}

	// Re-triggering a popped-up node pulses instead of duplicating.
	p := ps.Trigger("bd-3", "c again")
	if len(ps.Open()) != 3 {
		t.Fatal("repeat trigger duplicated a popup")
	}
	if !p.ConsumePulse() {
		t.Fatal("repeat trigger did not pulse")
	}
	if p.ConsumePulse() {
		t.Fatal("pulse not consumed")
	}
}

func TestPopupFadeWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	ps := NewPopups(clock.now)
	ps.Trigger("bd-1", "a")

	clock.advance(popupHold + time.Millisecond)
	ps.Update()
	open := ps.Open()
	if len(open) != 1 || !open[0].Fading() {
		t.Fatal("popup should be fading, not gone")
	}

	clock.advance(PopupFade)
	ps.Update()
	if len(ps.Open()) != 0 {
		t.Fatal("popup not removed after fade")
	}
}
