package domain

import "slices"

const lockKeyPrefix = "stock-lock:"

// DeriveLockKey returns the lock token guarding a single slot
func DeriveLockKey(slot Slot) string {
	return lockKeyPrefix + slot.Key()
}

// DeriveLockKeys returns the lock tokens for a set of slots, deduplicated and
// sorted ascending. Every caller that holds several slots acquires them in
// this order, so two operations can never wait on each other in a cycle.
func DeriveLockKeys(slots []Slot) []string {
	keys := make([]string, 0, len(slots))
	for _, slot := range slots {
		keys = append(keys, DeriveLockKey(slot))
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}
