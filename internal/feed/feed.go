// Package feed ingests the server's streaming event feed and hands events to
// the engine in per-stream delivery order.
package feed

import (
	"encoding/json"
	"sync"
	"time"
)

type Stream string

const (
	StreamAgents    Stream = "agents"
	StreamHooks     Stream = "hooks"
	StreamJobs      Stream = "jobs"
	StreamMutations Stream = "mutations"
)

// Streams is the fixed subject-stream allowlist the router subscribes to.
var Streams = []Stream{StreamAgents, StreamHooks, StreamJobs, StreamMutations}

type EventType string

const (
	EventAgentStarted   EventType = "agent.started"
	EventAgentIdle      EventType = "agent.idle"
	EventAgentCrashed   EventType = "agent.crashed"
	EventAgentHeartbeat EventType = "agent.heartbeat"
	EventPreToolUse     EventType = "hook.pre_tool_use"
	EventPostToolUse    EventType = "hook.post_tool_use"
	EventJobStarted     EventType = "job.started"
	EventJobFinished    EventType = "job.finished"
	EventJobFailed      EventType = "job.failed"
	EventDecisionOpened EventType = "decision.opened"
	EventDecisionClosed EventType = "decision.closed"
	EventDecisionNeeded EventType = "decision.needed"
	EventIssueMutated   EventType = "issue.mutated"
)

// Event is one parsed frame off the feed.
type Event struct {
	Stream    Stream          `json:"stream"`
	Type      EventType       `json:"type"`
	Subject   string          `json:"subject"`
	Sequence  uint64          `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Payload fields the trackers care about. Everything is optional; events
// from different producers populate different subsets.
type PayloadFields struct {
	Actor       string `json:"actor,omitempty"`
	To          string `json:"to,omitempty"`
	From        string `json:"from,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
	ToolName    string `json:"tool_name,omitempty"`
	ToolInput   string `json:"tool_input,omitempty"`
	Error       string `json:"error,omitempty"`
	IssueID     string `json:"issue_id,omitempty"`
}

// Fields decodes the payload's known fields. A payload that fails to decode
// yields the zero value; missing fields are never an error.
func (e Event) Fields() PayloadFields {
	var f PayloadFields
	if len(e.Payload) > 0 {
		_ = json.Unmarshal(e.Payload, &f)
	}
	return f
}

// Handler consumes events for one stream, in delivery order.
type Handler func(Event)

// queueCap bounds each per-stream buffer between frames. A full queue drops
// the oldest buffered event; the poll path backstops any loss.
const queueCap = 256

// Router demultiplexes inbound events by stream and delivers them to
// registered handlers when the engine drains it, once per frame. The buffer
// is filled from the stream's read goroutine; the mutex covers that handoff.
type Router struct {
	handlers map[Stream][]Handler

	mu     sync.Mutex
	allow  *SubjectFilter
	queues map[Stream][]Event
}

func NewRouter(allow *SubjectFilter) *Router {
	if allow == nil {
		allow = DefaultFilter()
	}
	return &Router{
		allow:    allow,
		handlers: make(map[Stream][]Handler),
		queues:   make(map[Stream][]Event),
	}
}

func (r *Router) On(stream Stream, h Handler) {
	r.handlers[stream] = append(r.handlers[stream], h)
}

// Offer parses a raw frame and buffers it. Malformed frames and frames whose
// subject is outside the allowlist are dropped silently.
func (r *Router) Offer(frame []byte) {
	var ev Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		return
	}
	r.Inject(ev)
}

// Inject buffers an already-parsed event. Replay and tests use this path;
// it applies the same allowlist as the streaming path.
func (r *Router) Inject(ev Event) {
	if ev.Stream == "" || ev.Type == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.allow.Match(ev.Subject) {
		return
	}
	q := r.queues[ev.Stream]
	if len(q) >= queueCap {
		q = q[1:]
	}
	r.queues[ev.Stream] = append(q, ev)
}

// Drain delivers every buffered event to its stream's handlers and empties
// the queues. Called once per engine frame; ordering within a stream is the
// buffer order, and no ordering holds across streams.
func (r *Router) Drain() int {
	r.mu.Lock()
	pending := make(map[Stream][]Event, len(r.queues))
	for stream, q := range r.queues {
		if len(q) > 0 {
			pending[stream] = q
			r.queues[stream] = nil
		}
	}
	r.mu.Unlock()

	delivered := 0
	for _, stream := range Streams {
		q := pending[stream]
		if len(q) == 0 {
			continue
		}
		for _, ev := range q {
			for _, h := range r.handlers[stream] {
				h(ev)
			}
			delivered++
		}
	}
	return delivered
}
