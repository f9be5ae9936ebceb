package agents

import (
	"strings"

	"github.com/mistakeknot/beadscope/internal/feed"
)

// ReservedActor is the system process identity. Events it produces never
// resolve to an agent window.
const ReservedActor = "overseer"

// identityMarker prefixes agent identities in routed to/from fields.
const identityMarker = "agent/"

// strategy extracts a candidate identity from an event payload, or "" when
// the field it reads is absent or not agent-shaped.
type strategy func(feed.PayloadFields) string

// strategies are tried in order; first non-empty candidate wins. The
// reserved-actor exclusion runs after extraction so it applies uniformly.
var strategies = []strategy{
	func(f feed.PayloadFields) string { return strings.TrimSpace(f.Actor) },
	func(f feed.PayloadFields) string { return trimMarker(f.To) },
	func(f feed.PayloadFields) string { return trimMarker(f.From) },
	func(f feed.PayloadFields) string { return strings.TrimSpace(f.RequestedBy) },
}

func trimMarker(addr string) string {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, identityMarker) {
		return ""
	}
	return strings.TrimPrefix(addr, identityMarker)
}

// Resolve derives the agent identity an event belongs to. It is pure: the
// same payload always yields the same answer, and an event with no
// agent-shaped field resolves to ("", false) rather than an error.
func Resolve(ev feed.Event) (string, bool) {
	f := ev.Fields()
	for _, s := range strategies {
		id := s(f)
		if id == "" {
			continue
		}
		if id == ReservedActor {
			return "", false
		}
		return id, true
	}
	return "", false
}
