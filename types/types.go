package types

import (
	"context"
)

type StatusType int32

const (
	None     StatusType = 0
	Pending  StatusType = 1
	Running  StatusType = 2
	Stopped  StatusType = 3
	Aborted  StatusType = 9
	Finished StatusType = 10
)

func (s StatusType) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Aborted:
		return "aborted"
	case Finished:
		return "finished"
	}
	return "none"
}

// Phase names the side of the engine a callback runs on.
type Phase string

const (
	InitPhase     Phase = "init"
	SignalPhase   Phase = "signal"
	ResponsePhase Phase = "response"
	DataPhase     Phase = "data"
	MetaPhase     Phase = "meta"
)

// Context is handed to every feature callback.
type Context interface {
	context.Context

	GetAcquisitionID() string
	// GetNodePath returns the dotted path of the node being executed.
	GetNodePath() string
	GetTick() int64

	Experiment() *Experiment
	// Frames may be nil when the acquisition was started without a frame source.
	Frames() FrameSource
	// MetadataSink may be nil when no sink was attached.
	MetadataSink() MetadataSink
}
