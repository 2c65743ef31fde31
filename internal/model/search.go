package model

import "time"

// Filters narrows a search invocation. It is passed by value and never
// mutated by the coordinator.
type Filters struct {
	Query string
	Since time.Time
	Until time.Time
	Model string
	Kinds RoleSet
	Repo  string
	Path  string
}

// Phase is one ordered stage of a search run.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseIndexed
	PhaseLegacySmall
	PhaseLegacyLarge
	PhaseUnindexedSmall
	PhaseUnindexedLarge
	PhaseToolOutputsSmall
	PhaseToolOutputsLarge
	PhaseDone
)

var phaseNames = [...]string{
	PhaseIdle:             "idle",
	PhaseIndexed:          "indexed",
	PhaseLegacySmall:      "legacy-small",
	PhaseLegacyLarge:      "legacy-large",
	PhaseUnindexedSmall:   "unindexed-small",
	PhaseUnindexedLarge:   "unindexed-large",
	PhaseToolOutputsSmall: "tool-outputs-small",
	PhaseToolOutputsLarge: "tool-outputs-large",
	PhaseDone:             "done",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// IsLarge reports whether the phase scans the large-file half of a tier.
func (p Phase) IsLarge() bool {
	return p == PhaseLegacyLarge || p == PhaseUnindexedLarge || p == PhaseToolOutputsLarge
}

// ScanPhases lists the phases a run walks through, in order.
var ScanPhases = []Phase{
	PhaseIndexed,
	PhaseLegacySmall,
	PhaseLegacyLarge,
	PhaseUnindexedSmall,
	PhaseUnindexedLarge,
	PhaseToolOutputsSmall,
	PhaseToolOutputsLarge,
}

// SearchProgress reports scan counters for the current tier.
type SearchProgress struct {
	Phase        Phase
	ScannedSmall int
	TotalSmall   int
	ScannedLarge int
	TotalLarge   int
}

// Fraction returns overall completion of the current tier in [0, 1].
func (p SearchProgress) Fraction() float64 {
	total := p.TotalSmall + p.TotalLarge
	if total == 0 {
		if p.Phase == PhaseDone {
			return 1
		}
		return 0
	}
	return float64(p.ScannedSmall+p.ScannedLarge) / float64(total)
}
