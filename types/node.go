package types

import "time"

type NodeTraceRecord struct {
	Path  []string
	Phase Phase
	// Tick is the signal tick during which the record was last written.
	Tick int64
	// Count is how many times the node ran in this phase (loops re-enter nodes).
	Count     int64
	StartTime time.Time
	EndTime   time.Time
	Verdict   bool
	Error     string
}

type NodeRuntimeData struct {
	Path         string
	SignalTimes  int64
	DataTimes    int64
	FailedTimes  int64
	TimeoutTimes int64
}
