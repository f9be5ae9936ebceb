package simserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mistakeknot/beadscope/client"
	"github.com/mistakeknot/beadscope/internal/feed"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	srv, err := New(Config{Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv
}

func TestSnapshotAndWrites(t *testing.T) {
	srv := startServer(t)
	c := client.New(srv.URL())
	ctx := context.Background()

	snap, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Nodes) == 0 || len(snap.Edges) == 0 {
		t.Fatalf("demo snapshot empty: %d nodes %d edges", len(snap.Nodes), len(snap.Edges))
	}

	if err := c.UpdateIssue(ctx, "bd-1", "status", "in_progress"); err != nil {
		t.Fatal(err)
	}
	if err := c.CloseIssue(ctx, "bd-2"); err != nil {
		t.Fatal(err)
	}
	if err := c.CloseIssue(ctx, "bd-404"); err == nil {
		t.Fatal("close of unknown issue succeeded")
	}

	snap, err = c.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	status := map[string]string{}
	for _, n := range snap.Nodes {
		status[n.ID] = n.Status
	}
	if status["bd-1"] != "in_progress" || status["bd-2"] != "closed" {
		t.Fatalf("writes not applied: %v", status)
	}
}

func TestFeedDelivery(t *testing.T) {
	srv := startServer(t)

	router := feed.NewRouter(nil)
	got := make(chan feed.Event, 1)
	router.On(feed.StreamAgents, func(ev feed.Event) { got <- ev })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := feed.NewConn(srv.URL(), router, feed.WithBackoff(50*time.Millisecond, time.Second))
	conn.Start(ctx)
	defer conn.Close()

	// Wait for the stream to come up before emitting.
	deadline := time.Now().Add(3 * time.Second)
	for conn.Status() != feed.StatusConnected {
		if time.Now().After(deadline) {
			t.Fatal("stream never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}

	payload, _ := json.Marshal(map[string]string{"actor": "fern"})
	srv.Emit(feed.Event{
		Stream:  feed.StreamAgents,
		Type:    feed.EventAgentStarted,
		Subject: "agent.started",
		Payload: payload,
	})

	deadline = time.Now().Add(3 * time.Second)
	for {
		router.Drain()
		select {
		case ev := <-got:
			if ev.Type != feed.EventAgentStarted || ev.Sequence == 0 {
				t.Fatalf("event = %+v", ev)
			}
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("event never delivered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
