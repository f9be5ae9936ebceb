// Package graph holds the canonical in-memory node/edge collection for the
// current view. Everything else in the engine reads and writes through it.
package graph

import (
	"time"
)

type IssueType string

const (
	TypeTask     IssueType = "task"
	TypeBug      IssueType = "bug"
	TypeFeature  IssueType = "feature"
	TypeChore    IssueType = "chore"
	TypeEpic     IssueType = "epic"
	TypeAgent    IssueType = "agent"
	TypeMolecule IssueType = "molecule"
	TypeGate     IssueType = "gate"
)

type DepType string

const (
	DepBlocks      DepType = "blocks"
	DepWaitsFor    DepType = "waits-for"
	DepParentChild DepType = "parent-child"
	DepRelatesTo   DepType = "relates-to"
	DepAssignedTo  DepType = "assigned_to"
	DepChildOf     DepType = "child-of"
	DepActionItem  DepType = "action-item"
	DepEscalate    DepType = "escalate"
	DepDuplicate   DepType = "duplicate"
	DepJiraLink    DepType = "jira-link"
	DepRigConflict DepType = "rig_conflict"
)

// Position is a point in layout space. It is owned by the physics
// simulation once the node is unpinned.
type Position struct {
	X, Y, Z float64
}

type Node struct {
	ID        string
	IssueType IssueType
	Status    string
	Priority  int
	Assignee  string
	Title     string
	Labels    []string
	CreatedAt time.Time
	UpdatedAt time.Time

	Pos    Position
	Vel    Position
	Pinned bool

	// LabelVisible is derived per frame by the LOD scheduler.
	LabelVisible bool
}

type Edge struct {
	Source  string
	Target  string
	DepType DepType
}

// Stats is the aggregate snapshot the server reports alongside the graph.
type Stats struct {
	Open       int `json:"open"`
	InProgress int `json:"in_progress"`
	Closed     int `json:"closed"`
	Blocked    int `json:"blocked"`
}

// Snapshot is a full server-authored view of the graph.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
	Stats Stats  `json:"stats"`
}

// Store is the shared mutable graph collection. It does no locking of its
// own: all access happens on the engine's frame goroutine, which serializes
// off-loop callers behind its mutex.
type Store struct {
	nodes map[string]*Node
	edges []Edge
	stats Stats
}

func NewStore() *Store {
	return &Store{nodes: make(map[string]*Node)}
}

func (s *Store) Node(id string) (*Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

func (s *Store) Nodes() []*Node {
	out := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	return out
}

func (s *Store) Edges() []Edge {
	return s.edges
}

func (s *Store) Stats() Stats {
	return s.stats
}

func (s *Store) Len() int {
	return len(s.nodes)
}

// Upsert inserts or replaces a node, preserving the layout position of an
// existing node so a refresh does not scatter the scene.
func (s *Store) Upsert(n Node) *Node {
	if prev, ok := s.nodes[n.ID]; ok {
		n.Pos = prev.Pos
		n.Vel = prev.Vel
		n.Pinned = prev.Pinned
		n.LabelVisible = prev.LabelVisible
	}
	cp := n
	s.nodes[n.ID] = &cp
	return &cp
}

func (s *Store) Remove(id string) {
	delete(s.nodes, id)
	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.Source != id && e.Target != id {
			kept = append(kept, e)
		}
	}
	s.edges = kept
}

// AddEdge appends an edge when both endpoints resolve. Parallel edges with
// different dep types between the same pair are allowed; exact duplicates
// are not.
func (s *Store) AddEdge(e Edge) bool {
	if _, ok := s.nodes[e.Source]; !ok {
		return false
	}
	if _, ok := s.nodes[e.Target]; !ok {
		return false
	}
	for _, have := range s.edges {
		if have == e {
			return false
		}
	}
	s.edges = append(s.edges, e)
	return true
}

// EdgesOfType returns all edges with the given dep type.
func (s *Store) EdgesOfType(t DepType) []Edge {
	var out []Edge
	for _, e := range s.edges {
		if e.DepType == t {
			out = append(out, e)
		}
	}
	return out
}

// Preserve names a field on a node whose local value must survive the next
// snapshot apply because an optimistic mutation is still in flight.
type Preserve struct {
	NodeID string
	Field  string
}

// ApplySnapshot replaces the store contents with server data. Nodes named in
// preserve keep their local status/priority/assignee for the listed field;
// everything else is server-authoritative. Edges with a missing endpoint are
// dropped. Synthetic agent nodes (client-materialized, no server counterpart)
// survive the apply.
func (s *Store) ApplySnapshot(snap Snapshot, preserve []Preserve) {
	keep := make(map[Preserve]bool, len(preserve))
	for _, p := range preserve {
		keep[p] = true
	}

	seen := make(map[string]bool, len(snap.Nodes))
	for _, n := range snap.Nodes {
		seen[n.ID] = true
		prev, had := s.nodes[n.ID]
		node := s.Upsert(n)
		if !had {
			continue
		}
		if keep[Preserve{NodeID: n.ID, Field: "status"}] {
			node.Status = prev.Status
		}
		if keep[Preserve{NodeID: n.ID, Field: "priority"}] {
			node.Priority = prev.Priority
		}
		if keep[Preserve{NodeID: n.ID, Field: "assignee"}] {
			node.Assignee = prev.Assignee
		}
	}

	for id, n := range s.nodes {
		if !seen[id] && n.IssueType != TypeAgent {
			delete(s.nodes, id)
		}
	}

	// Edges anchored to synthetic agent nodes have no server counterpart
	// either; carry them across like the nodes they hang off.
	var synthetic []Edge
	for _, e := range s.edges {
		if s.isAgent(e.Source) || s.isAgent(e.Target) {
			synthetic = append(synthetic, e)
		}
	}
	s.edges = s.edges[:0]
	for _, e := range snap.Edges {
		s.AddEdge(e)
	}
	for _, e := range synthetic {
		s.AddEdge(e)
	}
	s.stats = snap.Stats
}

func (s *Store) isAgent(id string) bool {
	n, ok := s.nodes[id]
	return ok && n.IssueType == TypeAgent
}

// EnsureAgent materializes the synthetic node for an agent identity. The
// node has no server-authored counterpart; it exists so markers and tether
// edges have something to anchor to.
func (s *Store) EnsureAgent(identity string) *Node {
	id := "agent/" + identity
	if n, ok := s.nodes[id]; ok {
		return n
	}
	return s.Upsert(Node{
		ID:        id,
		IssueType: TypeAgent,
		Status:    "active",
		Title:     identity,
		CreatedAt: time.Now(),
	})
}

// Component returns the connected component containing start, ignoring edge
// direction. Used for molecule focus and subgraph highlight.
func (s *Store) Component(start string) []string {
	if _, ok := s.nodes[start]; !ok {
		return nil
	}
	adj := make(map[string][]string)
	for _, e := range s.edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
		adj[e.Target] = append(adj[e.Target], e.Source)
	}
	visited := map[string]bool{start: true}
	queue := []string{start}
	var out []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, id)
		for _, next := range adj[id] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return out
}
