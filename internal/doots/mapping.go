package doots

import (
	"strings"

	"github.com/mistakeknot/beadscope/internal/feed"
)

// Color is the semantic marker color; the renderer maps it to actual pixels.
type Color string

const (
	ColorGreen  Color = "green"  // start
	ColorRed    Color = "red"    // crash / failure
	ColorGray   Color = "gray"   // stop / idle
	ColorBlue   Color = "blue"   // tool activity
	ColorYellow Color = "yellow" // decision
	ColorOrange Color = "orange" // everything else
)

// Desc is the short human-readable rendering of one event.
type Desc struct {
	Label string
	Color Color
}

// noisy event types produce no marker at all. They are filtered before
// spawn, not expired early.
var noisy = map[feed.EventType]bool{
	feed.EventAgentHeartbeat: true,
	feed.EventDecisionOpened: true,
	feed.EventDecisionClosed: true,
}

// Describe maps an event type (and, for tool events, the announced tool) to
// marker text and a semantic color. ok is false for noisy types that must
// not spawn a marker.
func Describe(ev feed.Event) (Desc, bool) {
	if noisy[ev.Type] {
		return Desc{}, false
	}
	switch ev.Type {
	case feed.EventAgentStarted, feed.EventJobStarted:
		return Desc{Label: "started", Color: ColorGreen}, true
	case feed.EventAgentCrashed, feed.EventJobFailed:
		return Desc{Label: "crashed", Color: ColorRed}, true
	case feed.EventAgentIdle, feed.EventJobFinished:
		return Desc{Label: "idle", Color: ColorGray}, true
	case feed.EventPreToolUse, feed.EventPostToolUse:
		return Desc{Label: toolLabel(ev), Color: ColorBlue}, true
	case feed.EventDecisionNeeded:
		return Desc{Label: "decision", Color: ColorYellow}, true
	default:
		return Desc{Label: string(ev.Type), Color: ColorOrange}, true
	}
}

// toolLabel condenses a tool event to "name: input", truncated so marker
// text stays marker-sized.
func toolLabel(ev feed.Event) string {
	f := ev.Fields()
	name := f.ToolName
	if name == "" {
		name = "tool"
	}
	input := strings.TrimSpace(f.ToolInput)
	if input == "" {
		return name
	}
	const maxInput = 24
	if runes := []rune(input); len(runes) > maxInput {
		input = string(runes[:maxInput]) + "…"
	}
	return name + ": " + input
}
