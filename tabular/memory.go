package tabular

import (
	"runtime"
)

const (
	bytesPerMB = 1024 * 1024
	// memoryCheckInterval is how many buffered rows pass between heap checks;
	// runtime.ReadMemStats stops the world, so it must stay rare
	memoryCheckInterval = 8192
	// defaultWarningThreshold is the share of the limit reported as a warning
	defaultWarningThreshold = 0.8
)

// MemoryStatus is the heap usage relative to a MemoryLimit.
type MemoryStatus int

const (
	// MemoryStatusOK indicates memory usage is within acceptable limits
	MemoryStatusOK MemoryStatus = iota
	// MemoryStatusWarning indicates memory usage is approaching the limit
	MemoryStatusWarning
	// MemoryStatusExceeded indicates memory usage has exceeded the limit
	MemoryStatusExceeded
)

// String returns string representation of memory status
func (ms MemoryStatus) String() string {
	switch ms {
	case MemoryStatusOK:
		return "OK"
	case MemoryStatusWarning:
		return "WARNING"
	case MemoryStatusExceeded:
		return "EXCEEDED"
	default:
		return "UNKNOWN"
	}
}

// MemoryLimit bounds the heap a MergeSorter may fill with an in-memory run.
// When the heap reaches the limit the current run is spilled early,
// whatever RunSize says. A nil *MemoryLimit never reports pressure.
//
// Performance Note: CheckMemoryUsage calls runtime.ReadMemStats which can
// pause for milliseconds. The sorter calls it every few thousand rows.
type MemoryLimit struct {
	maxBytes         uint64
	warningThreshold float64
}

// NewMemoryLimit creates a limit of maxMemoryMB megabytes of heap. A
// non-positive size returns nil, which disables the check.
func NewMemoryLimit(maxMemoryMB int64) *MemoryLimit {
	if maxMemoryMB <= 0 {
		return nil
	}
	return &MemoryLimit{
		maxBytes:         uint64(maxMemoryMB) * bytesPerMB,
		warningThreshold: defaultWarningThreshold,
	}
}

// CheckMemoryUsage compares the live heap with the limit.
func (ml *MemoryLimit) CheckMemoryUsage() MemoryStatus {
	if ml == nil {
		return MemoryStatusOK
	}
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return ml.status(memStats.HeapAlloc)
}

func (ml *MemoryLimit) status(heapAlloc uint64) MemoryStatus {
	if heapAlloc >= ml.maxBytes {
		return MemoryStatusExceeded
	}
	if float64(heapAlloc)/float64(ml.maxBytes) >= ml.warningThreshold {
		return MemoryStatusWarning
	}
	return MemoryStatusOK
}

// LimitMB returns the configured limit in megabytes, zero when disabled.
func (ml *MemoryLimit) LimitMB() int64 {
	if ml == nil {
		return 0
	}
	return int64(ml.maxBytes / bytesPerMB) //nolint:gosec // constructed from an int64
}
