package h2mux

import "fmt"

// Limit is a bound that is either a concrete value or absent. It stands in
// for the "very large number means no limit" convention: the concurrent
// stream limit starts out unlimited, and the flow-control window limit
// becomes unlimited once flow control is disabled.
type Limit struct {
	value     uint32
	unlimited bool
}

// Limited returns a Limit bounded at n.
func Limited(n uint32) Limit {
	return Limit{value: n}
}

// Unlimited returns the absent bound.
func Unlimited() Limit {
	return Limit{unlimited: true}
}

// IsUnlimited reports whether the bound is absent.
func (l Limit) IsUnlimited() bool {
	return l.unlimited
}

// Value returns the concrete bound. It is only meaningful when the Limit
// is not unlimited.
func (l Limit) Value() uint32 {
	return l.value
}

// Reached reports whether n has hit the bound. An unlimited Limit is never
// reached.
func (l Limit) Reached(n uint32) bool {
	return !l.unlimited && n >= l.value
}

// String returns the string representation of the Limit.
func (l Limit) String() string {
	if l.unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", l.value)
}
