package model

// Phase is one stage of the per-target research state machine.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseSearching    Phase = "searching"
	PhaseBrowsing     Phase = "browsing"
	PhaseExtracting   Phase = "extracting"
	PhaseFinalizing   Phase = "finalizing"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
)

// phaseOrder is the fixed forward order. Failed is outside the order and
// reachable from any non-terminal phase.
var phaseOrder = map[Phase]int{
	PhaseInitializing: 0,
	PhaseSearching:    1,
	PhaseBrowsing:     2,
	PhaseExtracting:   3,
	PhaseFinalizing:   4,
	PhaseCompleted:    5,
}

// Terminal reports whether no further transitions are allowed.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := phaseOrder[p]
	return ok || p == PhaseFailed
}

// CanAdvance reports whether a transition from p to next is legal: exactly
// one step forward, or to failed from any non-terminal phase.
func (p Phase) CanAdvance(next Phase) bool {
	if p.Terminal() {
		return false
	}
	if next == PhaseFailed {
		return true
	}
	from, ok := phaseOrder[p]
	if !ok {
		return false
	}
	to, ok := phaseOrder[next]
	return ok && to == from+1
}

// Next returns the phase that follows p in the forward order, or "" for
// terminal phases.
func (p Phase) Next() Phase {
	switch p {
	case PhaseInitializing:
		return PhaseSearching
	case PhaseSearching:
		return PhaseBrowsing
	case PhaseBrowsing:
		return PhaseExtracting
	case PhaseExtracting:
		return PhaseFinalizing
	case PhaseFinalizing:
		return PhaseCompleted
	}
	return ""
}
