package capture

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mistakeknot/beadscope/internal/feed"
)

func TestAppendAndReadBack(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "feed.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	events := []feed.Event{
		{
			Stream:    feed.StreamAgents,
			Type:      feed.EventAgentStarted,
			Subject:   "agent.started",
			Sequence:  1,
			Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
			Payload:   json.RawMessage(`{"actor":"fern"}`),
		},
		{
			Stream:   feed.StreamHooks,
			Type:     feed.EventPreToolUse,
			Subject:  "hook.pre_tool_use",
			Sequence: 2,
			Payload:  json.RawMessage(`{"actor":"fern","tool_name":"bash"}`),
		},
	}
	for _, ev := range events {
		if err := s.Append(ev); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Events()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("events = %d", len(got))
	}
	if got[0].Type != feed.EventAgentStarted || got[0].Subject != "agent.started" {
		t.Fatalf("first event = %+v", got[0])
	}
	if !got[0].Timestamp.Equal(events[0].Timestamp) {
		t.Fatalf("timestamp = %v", got[0].Timestamp)
	}
	if got[1].Fields().ToolName != "bash" {
		t.Fatalf("payload lost: %+v", got[1])
	}
	// Events captured without a timestamp get one at append time.
	if got[1].Timestamp.IsZero() {
		t.Fatal("zero timestamp persisted")
	}

	n, err := s.Count()
	if err != nil || n != 2 {
		t.Fatalf("count = %d, err %v", n, err)
	}
}

func TestNewRequiresPath(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("empty path accepted")
	}
}
