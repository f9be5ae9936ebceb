// Package mutate applies user edits to the graph optimistically, confirms
// them against the write API, and rolls back exactly what failed.
package mutate

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mistakeknot/beadscope/internal/graph"
)

// Writer is the external write API, one call per target node.
type Writer interface {
	UpdateIssue(ctx context.Context, id, field, value string) error
	CloseIssue(ctx context.Context, id string) error
	ClaimIssue(ctx context.Context, id, assignee string) error
}

// Notifier shows outcome toasts to the user.
type Notifier interface {
	Toast(msg string)
	ToastError(msg string)
}

const (
	fieldStatus   = "status"
	fieldPriority = "priority"
	fieldAssignee = "assignee"
)

// pendingKey identifies one optimistically-changed field.
type pendingKey struct {
	nodeID string
	field  string
}

// pending holds the pre-mutation value until every in-flight write for the
// field is confirmed, or a failure replays it.
type pending struct {
	priorStatus   string
	priorPriority int
	priorAssignee string
	inflight      int
}

// outcome is the result of one write call, consumed on the engine loop.
type outcome struct {
	key pendingKey
	op  string
	err error
}

// Pipeline is the optimistic mutation engine. Applies are synchronous on the
// caller (engine loop); write confirmations arrive on a channel drained by
// Collect once per frame.
type Pipeline struct {
	store    *graph.Store
	writer   Writer
	notify   Notifier
	debounce *Debouncer

	pending  map[pendingKey]*pending
	results  chan outcome
	inflight sync.WaitGroup

	writeTimeout time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWriteTimeout bounds each write call's context.
func WithWriteTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.writeTimeout = d }
}

func NewPipeline(store *graph.Store, writer Writer, notify Notifier, debounce *Debouncer, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:        store,
		writer:       writer,
		notify:       notify,
		debounce:     debounce,
		pending:      make(map[pendingKey]*pending),
		results:      make(chan outcome, 256),
		writeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetStatus optimistically sets status on every target and persists each.
func (p *Pipeline) SetStatus(ids []string, status string) {
	n := p.each(ids, "set status", func(node *graph.Node) func(context.Context) error {
		p.remember(node, fieldStatus)
		node.Status = status
		id := node.ID
		return func(ctx context.Context) error {
			return p.writer.UpdateIssue(ctx, id, fieldStatus, status)
		}
	})
	p.done(n, fmt.Sprintf("set %d to %s", n, status))
}

// SetPriority optimistically sets priority on every target and persists each.
func (p *Pipeline) SetPriority(ids []string, priority int) {
	n := p.each(ids, "set priority", func(node *graph.Node) func(context.Context) error {
		p.remember(node, fieldPriority)
		node.Priority = priority
		id := node.ID
		return func(ctx context.Context) error {
			return p.writer.UpdateIssue(ctx, id, fieldPriority, strconv.Itoa(priority))
		}
	})
	p.done(n, fmt.Sprintf("set %d to p%d", n, priority))
}

// Close optimistically closes every target and persists each.
func (p *Pipeline) Close(ids []string) {
	n := p.each(ids, "close", func(node *graph.Node) func(context.Context) error {
		p.remember(node, fieldStatus)
		node.Status = "closed"
		id := node.ID
		return func(ctx context.Context) error {
			return p.writer.CloseIssue(ctx, id)
		}
	})
	p.done(n, fmt.Sprintf("closed %d", n))
}

// Claim optimistically assigns every target to assignee and persists each.
func (p *Pipeline) Claim(ids []string, assignee string) {
	n := p.each(ids, "claim", func(node *graph.Node) func(context.Context) error {
		p.remember(node, fieldAssignee)
		node.Assignee = assignee
		id := node.ID
		return func(ctx context.Context) error {
			return p.writer.ClaimIssue(ctx, id, assignee)
		}
	})
	p.done(n, fmt.Sprintf("claimed %d for %s", n, assignee))
}

// each applies op to every resolvable target and dispatches one write per
// node. Missing nodes are skipped, not errors. Returns the applied count.
func (p *Pipeline) each(ids []string, op string, apply func(*graph.Node) func(context.Context) error) int {
	n := 0
	for _, id := range ids {
		node, ok := p.store.Node(id)
		if !ok {
			continue
		}
		write := apply(node)
		key := pendingKey{nodeID: node.ID, field: opField(op)}
		p.pending[key].inflight++
		n++

		p.inflight.Add(1)
		go func() {
			defer p.inflight.Done()
			ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
			defer cancel()
			p.results <- outcome{key: key, op: op, err: write(ctx)}
		}()
	}
	return n
}

func (p *Pipeline) done(n int, toast string) {
	if n == 0 {
		return
	}
	p.notify.Toast(toast)
	p.debounce.Poke()
}

// remember records the node's current field value the first time it is
// touched while a write is outstanding. Stacked mutations on the same field
// keep the original server-confirmed value as the rollback target.
func (p *Pipeline) remember(node *graph.Node, field string) {
	key := pendingKey{nodeID: node.ID, field: field}
	if _, ok := p.pending[key]; ok {
		return
	}
	p.pending[key] = &pending{
		priorStatus:   node.Status,
		priorPriority: node.Priority,
		priorAssignee: node.Assignee,
	}
}

// Collect drains completed writes: confirmations discard their pending
// entry, failures replay the prior value onto exactly the failed node's
// field. Called once per frame on the engine loop.
func (p *Pipeline) Collect() {
	for {
		select {
		case out := <-p.results:
			p.settle(out)
		default:
			return
		}
	}
}

// Wait blocks until every dispatched write has produced an outcome. Tests
// use it before Collect to make rollback deterministic.
func (p *Pipeline) Wait() {
	p.inflight.Wait()
}

// Preserves lists the (node, field) pairs whose local value must survive a
// snapshot apply because a write is still outstanding.
func (p *Pipeline) Preserves() []graph.Preserve {
	out := make([]graph.Preserve, 0, len(p.pending))
	for key := range p.pending {
		out = append(out, graph.Preserve{NodeID: key.nodeID, Field: key.field})
	}
	return out
}

// PendingCount reports outstanding optimistic fields, mostly for tests and
// the status line.
func (p *Pipeline) PendingCount() int {
	return len(p.pending)
}

func (p *Pipeline) settle(out outcome) {
	entry, ok := p.pending[out.key]
	if !ok {
		return
	}
	entry.inflight--
	if out.err == nil {
		if entry.inflight <= 0 {
			delete(p.pending, out.key)
		}
		return
	}

	// Failure: revert only this node's field to its pre-mutation value.
	if node, exists := p.store.Node(out.key.nodeID); exists {
		switch out.key.field {
		case fieldStatus:
			node.Status = entry.priorStatus
		case fieldPriority:
			node.Priority = entry.priorPriority
		case fieldAssignee:
			node.Assignee = entry.priorAssignee
		}
	}
	delete(p.pending, out.key)
	p.notify.ToastError(fmt.Sprintf("%s failed for %s (reverted)", out.op, out.key.nodeID))
}

func opField(op string) string {
	switch op {
	case "set priority":
		return fieldPriority
	case "claim":
		return fieldAssignee
	default:
		return fieldStatus
	}
}
