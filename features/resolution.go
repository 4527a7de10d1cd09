package features

import (
	"github.com/juju/errors"

	"github.com/warriorguo/featureflow/device"
	"github.com/warriorguo/featureflow/types"
)

var (
	_ types.Signaler          = &ChangeResolution{}
	_ types.MetadataGenerator = &ChangeResolution{}

	_ types.Signaler        = &Snap{}
	_ types.DataGate        = &Snap{}
	_ types.DataHandler     = &Snap{}
	_ types.SignalResponder = &Snap{}
)

// ChangeResolution switches the zoom to Mode/Magnification and records the
// mode in the experiment.
type ChangeResolution struct {
	Zoom          device.Zoom
	Mode          string
	Magnification string
	Path          string
}

func NewChangeResolution(zoom device.Zoom, mode, magnification string) *ChangeResolution {
	return &ChangeResolution{Zoom: zoom, Mode: mode, Magnification: magnification, Path: ResolutionPath}
}

func (f *ChangeResolution) Signal(ctx types.Context) (bool, error) {
	if err := f.Zoom.SetResolution(f.Mode, f.Magnification); err != nil {
		return false, errors.Annotatef(err, "resolution %s %s", f.Mode, f.Magnification)
	}
	return true, errors.Trace(ctx.Experiment().Set(f.Path, f.Mode))
}

func (f *ChangeResolution) GenerateMetaData(ctx types.Context, frameID int, sink types.MetadataSink) bool {
	sink.AddMetaData(frameID, "resolution", f.Mode)
	if f.Magnification != "" {
		sink.AddMetaData(frameID, "zoom", f.Magnification)
	}
	return true
}

/**
 * Snap takes a single exposure and waits until its frame arrives. The id
 * of the frame is stored at FramePath.
 */
type Snap struct {
	Camera    device.Camera
	FramePath string
}

func NewSnap(camera device.Camera) *Snap {
	return &Snap{Camera: camera, FramePath: SnapFramePath}
}

func (f *Snap) NeedsResponse() bool {
	return true
}

func (f *Snap) Signal(ctx types.Context) (bool, error) {
	return true, errors.Annotate(f.Camera.Trigger(ctx, 1), "snap")
}

// PreData skips empty batches so the exposure is answered by a frame.
func (f *Snap) PreData(ctx types.Context, frames types.FrameBatch) (bool, error) {
	return frames.Len() > 0, nil
}

func (f *Snap) Data(ctx types.Context, frames types.FrameBatch) (bool, error) {
	id, ok := frames.Last()
	if !ok {
		return false, nil
	}
	return true, errors.Trace(ctx.Experiment().Set(f.FramePath, id))
}

func (f *Snap) SignalResponse(ctx types.Context, v types.Verdict) (bool, error) {
	return v.Value, nil
}
