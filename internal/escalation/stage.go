package escalation

import "github.com/shopspring/decimal"

// Stage is one named step in an ordered escalation sequence.
type Stage struct {
	// Name identifies the stage within its policy, e.g. "WARNING1".
	Name string
	// OffsetDays is the number of clock units after the previous stage,
	// not an absolute threshold.
	OffsetDays int
	// SurchargePercent is applied to the original gross amount when the
	// stage fires.
	SurchargePercent decimal.Decimal
	// IsTerminalAction marks stages that perform an external action
	// (order cancellation) and end the entity's escalation lifecycle.
	IsTerminalAction bool
}

// CompletedSet holds the names of stages already recorded for an entity.
type CompletedSet map[string]bool

// NewCompletedSet builds a CompletedSet from recorded stage names.
func NewCompletedSet(names ...string) CompletedSet {
	set := make(CompletedSet, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// Thresholds returns each stage's absolute threshold, the running sum of
// OffsetDays up to and including it.
func Thresholds(stages []Stage) []int {
	out := make([]int, len(stages))
	sum := 0
	for i, s := range stages {
		sum += s.OffsetDays
		out[i] = sum
	}
	return out
}

// NextStage decides the single stage due for an entity, or none.
//
// A stage fires when its absolute threshold has been reached, it has not
// been recorded yet, and its immediate predecessor has. Only one stage
// fires per entity per sweep even when several thresholds were crossed
// since the last run; the engine relies on frequent invocation rather
// than catching up in a single pass.
func NextStage(stages []Stage, completed CompletedSet, elapsedUnits int) (Stage, bool) {
	threshold := 0
	for i, s := range stages {
		threshold += s.OffsetDays
		if threshold > elapsedUnits {
			continue
		}
		if completed[s.Name] {
			continue
		}
		if i > 0 && !completed[stages[i-1].Name] {
			continue
		}
		return s, true
	}
	return Stage{}, false
}
