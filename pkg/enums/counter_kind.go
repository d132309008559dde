package enums

import "slices"

// CounterKind identifies a non-monetary reward counter.
type CounterKind string

const (
	CounterPoints CounterKind = "points"
	CounterSpins  CounterKind = "spins"
)

var validCounterKinds = []CounterKind{CounterPoints, CounterSpins}

func (k CounterKind) IsValid() bool { return slices.Contains(validCounterKinds, k) }

func ParseCounterKind(value string) (CounterKind, error) {
	return parse(validCounterKinds, "counter kind", value)
}
