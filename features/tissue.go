package features

import (
	"image"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/featureflow/device"
	"github.com/warriorguo/featureflow/types"
)

var (
	_ types.Signaler         = &DetectTissueInStackAndRecord{}
	_ types.SignalResponder  = &DetectTissueInStackAndRecord{}
	_ types.DataGate         = &DetectTissueInStackAndRecord{}
	_ types.DataHandler      = &DetectTissueInStackAndRecord{}
	_ types.ResponseRequirer = &DetectTissueInStackAndRecord{}
)

// DetectFunc decides whether img shows tissue, looking at a centred
// square of side window.
type DetectFunc func(img *image.Gray16, window int, threshold float64) (bool, error)

// MeanIntensity reports tissue when the mean of the centred window exceeds
// threshold.
func MeanIntensity(img *image.Gray16, window int, threshold float64) (bool, error) {
	if img == nil {
		return false, errors.NotValidf("nil frame")
	}
	b := img.Bounds()
	if window <= 0 || window > b.Dx() {
		window = b.Dx()
	}
	if window > b.Dy() {
		window = b.Dy()
	}
	if window == 0 {
		return false, errors.NotValidf("empty frame")
	}

	x0 := b.Min.X + (b.Dx()-window)/2
	y0 := b.Min.Y + (b.Dy()-window)/2
	var sum float64
	for y := y0; y < y0+window; y++ {
		for x := x0; x < x0+window; x++ {
			sum += float64(img.Gray16At(x, y).Y)
		}
	}
	return sum/float64(window*window) > threshold, nil
}

/**
 * DetectTissueInStackAndRecord examines one frame per activation. The
 * signal side optionally triggers an exposure and then waits; the data
 * side takes the first batch delivered after arming (or the batch holding
 * TargetFrame), runs the detector on its first frame and appends the
 * result to Records. The verdict releases the signal side.
 */
type DetectTissueInStackAndRecord struct {
	Window    int
	Threshold float64
	Detect    DetectFunc
	Records   *types.SharedList[Record]

	// Camera, when set, is triggered for one frame on every activation.
	Camera device.Camera
	// TargetFrame pins the frame to examine; negative means the first
	// frame after arming.
	TargetFrame int
}

func NewDetectTissueInStackAndRecord(window int, threshold float64, detect DetectFunc,
	records *types.SharedList[Record]) *DetectTissueInStackAndRecord {
	if detect == nil {
		detect = MeanIntensity
	}
	return &DetectTissueInStackAndRecord{
		Window:      window,
		Threshold:   threshold,
		Detect:      detect,
		Records:     records,
		TargetFrame: -1,
	}
}

func (f *DetectTissueInStackAndRecord) NeedsResponse() bool {
	return true
}

func (f *DetectTissueInStackAndRecord) Signal(ctx types.Context) (bool, error) {
	if f.Camera != nil {
		if err := f.Camera.Trigger(ctx, 1); err != nil {
			return false, errors.Annotate(err, "trigger exposure")
		}
	}
	return true, nil
}

func (f *DetectTissueInStackAndRecord) PreData(ctx types.Context, frames types.FrameBatch) (bool, error) {
	if f.TargetFrame >= 0 {
		return frames.Contains(f.TargetFrame), nil
	}
	return frames.Len() > 0, nil
}

func (f *DetectTissueInStackAndRecord) Data(ctx types.Context, frames types.FrameBatch) (bool, error) {
	frameID, _ := frames.First()
	if f.TargetFrame >= 0 {
		frameID = f.TargetFrame
	}
	if ctx.Frames() == nil {
		return false, errors.NotFoundf("frame source")
	}
	img, ok := ctx.Frames().Get(frameID)
	if !ok {
		return false, errors.NotFoundf("frame %d", frameID)
	}

	verdict, err := f.Detect(img, f.Window, f.Threshold)
	if err != nil {
		return false, errors.Annotatef(err, "detect frame %d", frameID)
	}
	if f.Records != nil {
		f.Records.Append(Record{FrameID: frameID, Verdict: verdict})
	}
	return verdict, nil
}

func (f *DetectTissueInStackAndRecord) SignalResponse(ctx types.Context, v types.Verdict) (bool, error) {
	if v.Err != nil {
		log.Warnf("%s: no detection for tick %d: %v", ctx.GetNodePath(), ctx.GetTick(), v.Err)
	}
	return v.Value, nil
}
