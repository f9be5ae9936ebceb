// Package simserver is an in-process bead graph server for demos and
// integration tests: it serves snapshots, accepts writes, and pushes a
// synthetic event feed.
package simserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mistakeknot/beadscope/internal/feed"
	"github.com/mistakeknot/beadscope/internal/graph"
)

// Config configures the sim server.
type Config struct {
	// Addr is the listen address. Use "127.0.0.1:0" to pick a free port.
	Addr string
	// Seed drives the demo feed's randomness; zero means time-seeded.
	Seed int64
	// Demo enables the synthetic agent activity loop.
	Demo bool
	// DemoInterval is the pause between synthetic events.
	DemoInterval time.Duration
	// Snapshot seeds the graph; empty means a small built-in demo graph.
	Snapshot *graph.Snapshot
}

type Server struct {
	cfg  Config
	hub  *Hub
	http *http.Server
	ln   net.Listener
	rng  *rand.Rand
	seq  atomic.Uint64

	mu   sync.Mutex
	snap graph.Snapshot

	cancelDemo context.CancelFunc
}

func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if cfg.DemoInterval <= 0 {
		cfg.DemoInterval = 400 * time.Millisecond
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Server{
		cfg: cfg,
		hub: NewHub(),
		rng: rand.New(rand.NewSource(seed)),
	}
	if cfg.Snapshot != nil {
		s.snap = *cfg.Snapshot
	} else {
		s.snap = demoSnapshot()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/graph", s.handleSnapshot)
	mux.HandleFunc("PATCH /api/issues/{id}", s.handleUpdate)
	mux.HandleFunc("POST /api/issues/{id}/close", s.handleClose)
	mux.HandleFunc("/ws/events", s.hub.Handler())
	s.http = &http.Server{Handler: mux}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	s.ln = ln
	return s, nil
}

// URL returns the server's base URL once New has succeeded.
func (s *Server) URL() string {
	return "http://" + s.ln.Addr().String()
}

func (s *Server) Start() {
	go s.http.Serve(s.ln)
	if s.cfg.Demo {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancelDemo = cancel
		go s.demoLoop(ctx)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelDemo != nil {
		s.cancelDemo()
	}
	return s.http.Shutdown(ctx)
}

// Emit pushes one event to every connected viewer, assigning the stream
// sequence. Tests drive exact scenarios through it.
func (s *Server) Emit(ev feed.Event) {
	ev.Sequence = s.seq.Add(1)
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	s.hub.Broadcast(ev)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	snap := s.snap
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !s.updateNode(id, body) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.emitMutation(id)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.updateNode(id, map[string]string{"status": "closed"}) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.emitMutation(id)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) updateNode(id string, fields map[string]string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.snap.Nodes {
		n := &s.snap.Nodes[i]
		if n.ID != id {
			continue
		}
		if v, ok := fields["status"]; ok {
			n.Status = v
		}
		if v, ok := fields["assignee"]; ok {
			n.Assignee = v
		}
		if v, ok := fields["priority"]; ok {
			fmt.Sscanf(v, "%d", &n.Priority)
		}
		n.UpdatedAt = time.Now().UTC()
		return true
	}
	return false
}

func (s *Server) emitMutation(id string) {
	payload, _ := json.Marshal(map[string]string{"issue_id": id})
	s.Emit(feed.Event{
		Stream:  feed.StreamMutations,
		Type:    feed.EventIssueMutated,
		Subject: "issue.mutated",
		Payload: payload,
	})
}

// demoLoop plays a plausible stream of agent activity against the demo
// graph: starts, tool calls, idles, the occasional crash.
func (s *Server) demoLoop(ctx context.Context) {
	taken := make(map[string]bool)
	var active []string
	tools := []string{"bash", "edit", "read", "search"}

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.DemoInterval):
		}

		if len(active) == 0 || (len(active) < 4 && s.rng.Intn(4) == 0) {
			name := pickAgentName(s.rng, taken)
			active = append(active, name)
			s.emitAgent(feed.EventAgentStarted, "agent.started", name, "")
			continue
		}

		agent := active[s.rng.Intn(len(active))]
		switch s.rng.Intn(10) {
		case 0:
			s.emitAgent(feed.EventAgentIdle, "agent.idle", agent, "")
		case 1:
			s.emitAgent(feed.EventAgentCrashed, "agent.crashed", agent, "")
			active = remove(active, agent)
			delete(taken, agent)
		default:
			tool := tools[s.rng.Intn(len(tools))]
			s.emitAgent(feed.EventPreToolUse, "hook.pre_tool_use", agent, tool)
		}
	}
}

func (s *Server) emitAgent(typ feed.EventType, subject, agent, tool string) {
	fields := map[string]string{"actor": agent}
	if tool != "" {
		fields["tool_name"] = tool
	}
	if typ == feed.EventAgentCrashed {
		fields["error"] = "exit status 1"
	}
	if id := s.randomIssue(); id != "" && typ == feed.EventAgentStarted {
		fields["issue_id"] = id
	}
	payload, _ := json.Marshal(fields)
	stream := feed.StreamAgents
	if strings.HasPrefix(subject, "hook.") {
		stream = feed.StreamHooks
	}
	s.Emit(feed.Event{Stream: stream, Type: typ, Subject: subject, Payload: payload})
}

func (s *Server) randomIssue() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snap.Nodes) == 0 {
		return ""
	}
	n := s.snap.Nodes[s.rng.Intn(len(s.snap.Nodes))]
	if n.IssueType == graph.TypeAgent {
		return ""
	}
	return n.ID
}

func demoSnapshot() graph.Snapshot {
	now := time.Now().UTC()
	mk := func(id string, t graph.IssueType, status string, pri int) graph.Node {
		return graph.Node{ID: id, IssueType: t, Status: status, Priority: pri, Title: id, CreatedAt: now}
	}
	return graph.Snapshot{
		Nodes: []graph.Node{
			mk("bd-epic", graph.TypeEpic, "in_progress", 1),
			mk("bd-1", graph.TypeTask, "open", 2),
			mk("bd-2", graph.TypeBug, "open", 0),
			mk("bd-3", graph.TypeFeature, "in_progress", 1),
			mk("bd-4", graph.TypeTask, "blocked", 2),
			mk("bd-mol", graph.TypeMolecule, "open", 1),
			mk("bd-gate", graph.TypeGate, "open", 1),
		},
		Edges: []graph.Edge{
			{Source: "bd-epic", Target: "bd-1", DepType: graph.DepParentChild},
			{Source: "bd-epic", Target: "bd-3", DepType: graph.DepParentChild},
			{Source: "bd-2", Target: "bd-1", DepType: graph.DepBlocks},
			{Source: "bd-4", Target: "bd-gate", DepType: graph.DepWaitsFor},
			{Source: "bd-mol", Target: "bd-4", DepType: graph.DepChildOf},
		},
		Stats: graph.Stats{Open: 4, InProgress: 2, Blocked: 1},
	}
}

func remove(list []string, item string) []string {
	for i, v := range list {
		if v == item {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
