package types

// Feature is a unit of acquisition logic. Its capabilities are the optional
// interfaces below; the engine resolves them once when the tree is built.
type Feature any

// Signaler runs on the signal goroutine each time the node becomes active.
// The returned bool is the node's verdict when it does not need a response.
type Signaler interface {
	Signal(ctx Context) (bool, error)
}

/**
 * SignalResponder is called on the signal goroutine once the data side has
 * delivered a verdict for the node (or the wait timed out, in which case
 * the verdict carries the timeout error). The returned bool becomes the
 * node's verdict.
 */
type SignalResponder interface {
	SignalResponse(ctx Context, v Verdict) (bool, error)
}

// DataGate decides whether a batch is relevant before Data runs.
type DataGate interface {
	PreData(ctx Context, frames FrameBatch) (bool, error)
}

type DataHandler interface {
	Data(ctx Context, frames FrameBatch) (bool, error)
}

// MetadataGenerator decorates a frame. Returning false reports a non-fatal
// metadata failure.
type MetadataGenerator interface {
	GenerateMetaData(ctx Context, frameID int, sink MetadataSink) bool
}

type ResponseRequirer interface {
	NeedsResponse() bool
}

type Initializer interface {
	Init(ctx Context) error
}

type Cleaner interface {
	Cleanup(ctx Context)
}

type (
	SignalFunc         func(ctx Context) (bool, error)
	SignalResponseFunc func(ctx Context, v Verdict) (bool, error)
	FrameFunc          func(ctx Context, frames FrameBatch) (bool, error)
	MetaDataFunc       func(ctx Context, frameID int, sink MetadataSink) bool
)

/**
 * FeatureSpec builds a feature out of plain functions. Nil fields are
 * capabilities the feature does not have; static arguments are captured
 * by the closures.
 */
type FeatureSpec struct {
	Signal         SignalFunc
	SignalResponse SignalResponseFunc
	PreData        FrameFunc
	Data           FrameFunc
	MetaData       MetaDataFunc
	Init           func(ctx Context) error
	Cleanup        func(ctx Context)

	NeedsResponse bool
}

// Capabilities is the dispatch table resolved from a Feature.
type Capabilities struct {
	Signal         SignalFunc
	SignalResponse SignalResponseFunc
	PreData        FrameFunc
	Data           FrameFunc
	MetaData       MetaDataFunc
	Init           func(ctx Context) error
	Cleanup        func(ctx Context)

	NeedsResponse bool
}

func (c *Capabilities) Empty() bool {
	return c.Signal == nil && c.SignalResponse == nil && c.PreData == nil &&
		c.Data == nil && c.MetaData == nil
}

// HasDataSide reports whether the data goroutine must serve the node.
func (c *Capabilities) HasDataSide() bool {
	return c.Data != nil || c.PreData != nil
}

// ResolveCapabilities turns a Feature into its dispatch table.
func ResolveCapabilities(f Feature) Capabilities {
	if spec, ok := f.(*FeatureSpec); ok {
		return spec.capabilities()
	}
	if spec, ok := f.(FeatureSpec); ok {
		return spec.capabilities()
	}

	caps := Capabilities{}
	if s, ok := f.(Signaler); ok {
		caps.Signal = s.Signal
	}
	if s, ok := f.(SignalResponder); ok {
		caps.SignalResponse = s.SignalResponse
	}
	if s, ok := f.(DataGate); ok {
		caps.PreData = s.PreData
	}
	if s, ok := f.(DataHandler); ok {
		caps.Data = s.Data
	}
	if s, ok := f.(MetadataGenerator); ok {
		caps.MetaData = s.GenerateMetaData
	}
	if s, ok := f.(Initializer); ok {
		caps.Init = s.Init
	}
	if s, ok := f.(Cleaner); ok {
		caps.Cleanup = s.Cleanup
	}
	if s, ok := f.(ResponseRequirer); ok {
		caps.NeedsResponse = s.NeedsResponse()
	}
	return caps
}

func (s FeatureSpec) capabilities() Capabilities {
	return Capabilities{
		Signal:         s.Signal,
		SignalResponse: s.SignalResponse,
		PreData:        s.PreData,
		Data:           s.Data,
		MetaData:       s.MetaData,
		Init:           s.Init,
		Cleanup:        s.Cleanup,
		NeedsResponse:  s.NeedsResponse,
	}
}
