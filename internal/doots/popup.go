package doots

import "time"

const (
	// popupCap is the maximum number of concurrent popups; the oldest is
	// evicted when a new one lands at capacity.
	popupCap = 3

	// popupHold is how long a popup stays before its fade begins.
	popupHold = 4 * time.Second

	// PopupFade is the fade-out length before the popup is removed from
	// the scene.
	PopupFade = 300 * time.Millisecond
)

// Popup is the secondary transient UI anchored to a non-agent node. Keyed by
// node id: a new doot for an already-popped-up node resets its countdown and
// requests a pulse instead of duplicating.
type Popup struct {
	NodeID   string
	Label    string
	Deadline time.Time
	Pulse    bool
	fading   bool
	fadeEnd  time.Time
}

func (p *Popup) Fading() bool { return p.fading }

// ConsumePulse reports a pending pulse and clears it; the renderer plays the
// affordance once per trigger.
func (p *Popup) ConsumePulse() bool {
	pulse := p.Pulse
	p.Pulse = false
	return pulse
}

// Popups manages the bounded popup set.
type Popups struct {
	now  func() time.Time
	open []*Popup
}

func NewPopups(now func() time.Time) *Popups {
	if now == nil {
		now = time.Now
	}
	return &Popups{now: now}
}

func (ps *Popups) Open() []*Popup {
	return ps.open
}

// Trigger shows (or refreshes) the popup for a node. An existing popup gets
// its countdown reset plus the pulse affordance; otherwise a new popup is
// created, evicting the oldest beyond the cap.
func (ps *Popups) Trigger(nodeID, label string) *Popup {
	deadline := ps.now().Add(popupHold)
	for _, p := range ps.open {
		if p.NodeID == nodeID {
			p.Deadline = deadline
			p.Label = label
			p.Pulse = true
			p.fading = false
			return p
		}
	}
	for len(ps.open) >= popupCap {
		ps.open = ps.open[1:]
	}
	p := &Popup{NodeID: nodeID, Label: label, Deadline: deadline}
	ps.open = append(ps.open, p)
	return p
}

// Update expires popups whose countdown has passed, holding each through
// its fade window before removal.
func (ps *Popups) Update() {
	now := ps.now()
	kept := ps.open[:0]
	for _, p := range ps.open {
		if !p.fading && now.After(p.Deadline) {
			p.fading = true
			p.fadeEnd = p.Deadline.Add(PopupFade)
		}
		if p.fading && now.After(p.fadeEnd) {
			continue
		}
		kept = append(kept, p)
	}
	ps.open = kept
}
