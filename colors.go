package main

import "fmt"

// fallbackSlot is handed out when the pool is exhausted. Duplicating the
// first slot is deliberate degraded-mode behavior, not an error.
const fallbackSlot = 0

// ColorAllocator hands out identity color slots from a fixed pool,
// labelled "01".."NN". Uniqueness among connected players holds as long
// as the pool is not exhausted; after that the first slot is reused
// unless the allocator was configured to reject instead.
type ColorAllocator struct {
	labels []string
	used   map[string]bool
	reject bool
}

// NewColorAllocator creates an allocator with size slots. When reject is
// true an exhausted pool refuses assignment instead of duplicating the
// fallback slot.
func NewColorAllocator(size int, reject bool) *ColorAllocator {
	labels := make([]string, size)
	for i := range labels {
		labels[i] = fmt.Sprintf("%02d", i+1)
	}
	return &ColorAllocator{
		labels: labels,
		used:   make(map[string]bool, size),
		reject: reject,
	}
}

// Assign returns the lowest free slot, marking it assigned. On an
// exhausted pool it returns the fallback slot, or ("", false) in reject
// mode. The scan order is fixed so reconnect churn is reproducible.
func (a *ColorAllocator) Assign() (string, bool) {
	for _, label := range a.labels {
		if !a.used[label] {
			a.used[label] = true
			return label, true
		}
	}
	if a.reject || len(a.labels) == 0 {
		return "", false
	}
	return a.labels[fallbackSlot], true
}

// Release marks a slot free again. Releasing a free or unknown slot is a
// no-op.
func (a *ColorAllocator) Release(color string) {
	delete(a.used, color)
}

// InUse returns the number of assigned slots
func (a *ColorAllocator) InUse() int {
	return len(a.used)
}

// SetReject switches the exhaustion policy at runtime
func (a *ColorAllocator) SetReject(reject bool) {
	a.reject = reject
}

// Reject reports the current exhaustion policy
func (a *ColorAllocator) Reject() bool {
	return a.reject
}
