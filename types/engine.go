package types

import (
	"context"
	"time"
)

/**
 * FeatureListHandler builds the feature tree of one acquisition. It is
 * called once when the list is registered and again for every run, so
 * shared lists and node state never leak between runs.
 */
type FeatureListHandler func(exp *Experiment) (Element, error)

type Engine interface {
	RegisterFeatureList(name string, handler FeatureListHandler) error
	GetFeatureList(name string) (Element, bool)
	/**
	 * RenderFeatureList returns the DOT graph of the feature list
	 * registered under name.
	 */
	RenderFeatureList(name string) (string, error)

	ListFeatureListNames() ([]string, error)

	/**
	 * StartAcquisition builds a fresh tree from the named list and runs it.
	 * Construction errors are returned here, before anything runs.
	 * frames is the batch feed of the data goroutine; it may be nil for
	 * signal-only lists. An empty acquisitionID gets a generated one, which
	 * is returned.
	 */
	StartAcquisition(ctx context.Context, listName string, acquisitionID string, exp *Experiment,
		frames <-chan FrameBatch, opts ...AcquisitionOption) (string, error)

	// WaitAcquisition blocks until the acquisition ends or ctx is done.
	WaitAcquisition(ctx context.Context, acquisitionID string) (*AcquisitionStatus, error)
	GetAcquisitionStatus(ctx context.Context, acquisitionID string) (*AcquisitionStatus, error)
	RenderAcquisitionStatus(ctx context.Context, acquisitionID string) (string, error)
	ListAcquisitionRecords(ctx context.Context, acquisitionID string) (map[string]*NodeTraceRecord, error)

	StopAcquisition(ctx context.Context, acquisitionID string) error
	/**
	 * Close stops every running acquisition and waits for them.
	 */
	Close(ctx context.Context) error
}

type AcquisitionStatus struct {
	ID          string
	FeatureList string
	Status      StatusType
	Ticks       int64
	Cursor      []string
	LastError   string
	FailedNode  string
	FailedTick  int64
	StartTime   time.Time
	EndTime     time.Time
}

type AcquisitionOptions struct {
	Frames       FrameSource
	MetadataSink MetadataSink
}

type AcquisitionOption func(*AcquisitionOptions)

func WithFrameSource(frames FrameSource) AcquisitionOption {
	return func(opts *AcquisitionOptions) {
		opts.Frames = frames
	}
}

func WithMetadataSink(sink MetadataSink) AcquisitionOption {
	return func(opts *AcquisitionOptions) {
		opts.MetadataSink = sink
	}
}
