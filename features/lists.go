package features

import (
	"github.com/juju/errors"
	"github.com/mcuadros/go-defaults"

	"github.com/warriorguo/featureflow/types"
)

// Names of the built-in feature lists.
const (
	ChannelLoopList     = "channel_loop"
	TissueDetectionList = "tissue_detection"
	MultiPositionList   = "multi_position"
)

// TissueRecordsPath is where the tissue detection list publishes the
// records of its current run.
const TissueRecordsPath = "TissueRecords"

type ListOptions struct {
	/**
	 * default: 32
	 * side of the centred window the tissue detector averages over.
	 */
	DetectionWindow int `default:"32"`
	/**
	 * default: 1000
	 * mean intensity above which a frame shows tissue.
	 */
	DetectionThreshold float64 `default:"1000"`
	// Detect overrides the mean intensity detector.
	Detect DetectFunc
	/**
	 * default: 50
	 * width of the focus stack around the current focus.
	 */
	FocusRange float64 `default:"50"`
	/**
	 * default: 5
	 */
	FocusStep float64 `default:"5"`
}

func NewListOptions() *ListOptions {
	opts := &ListOptions{}
	defaults.SetDefaults(opts)
	return opts
}

// ChannelLoop visits every selected channel once.
func ChannelLoop(dev *Devices) types.FeatureListHandler {
	return func(exp *types.Experiment) (types.Element, error) {
		return types.Sequence(
			LoopByCount(ChannelsPath,
				types.Lockstep(
					types.Node("prepare_next_channel", NewPrepareNextChannel(dev.Switcher)),
				),
			),
		), nil
	}
}

/**
 * TissueDetection visits every position of the multi-position table,
 * takes one frame there and drops the positions without tissue once the
 * scan is over.
 */
func TissueDetection(dev *Devices, opts *ListOptions) types.FeatureListHandler {
	return func(exp *types.Experiment) (types.Element, error) {
		if dev.Stage == nil {
			return types.Element{}, errors.NotValidf("tissue detection without a stage")
		}
		records := types.NewSharedList[Record]("tissue_records")
		if err := exp.Set(TissueRecordsPath, records); err != nil {
			return types.Element{}, errors.Trace(err)
		}

		detect := NewDetectTissueInStackAndRecord(opts.DetectionWindow, opts.DetectionThreshold, opts.Detect, records)
		detect.Camera = dev.Camera

		return types.Sequence(
			LoopByCount(PositionsPath,
				types.Node("move_to_position", NewMoveToNextPosition(dev.Stage), types.Critical()),
				types.Node("detect_tissue", detect),
			),
			types.Node("remove_empty_positions", NewRemoveEmptyPositions(records)),
		), nil
	}
}

// MultiPosition takes one frame per channel at every position, focused
// on the middle of the focus range.
func MultiPosition(dev *Devices, opts *ListOptions) types.FeatureListHandler {
	return func(exp *types.Experiment) (types.Element, error) {
		if dev.Stage == nil || dev.Camera == nil {
			return types.Element{}, errors.NotValidf("multi position without stage or camera")
		}
		return types.Sequence(
			LoopByCount(PositionsPath,
				types.Node("move_to_position", NewMoveToNextPosition(dev.Stage), types.Critical()),
				types.Node("focus_range", NewCalculateFocusRange(dev.Stage, opts.FocusRange, opts.FocusStep)),
				LoopByCount(ChannelsPath,
					types.Node("prepare_next_channel", NewPrepareNextChannel(dev.Switcher)),
					types.Node("snap", NewSnap(dev.Camera)),
				),
			),
		), nil
	}
}

// RegisterBuiltin registers the lists the devices can drive.
func RegisterBuiltin(e types.Engine, dev *Devices, opts *ListOptions) error {
	if opts == nil {
		opts = NewListOptions()
	}
	if err := e.RegisterFeatureList(ChannelLoopList, ChannelLoop(dev)); err != nil {
		return errors.Trace(err)
	}
	if dev.Stage == nil {
		return nil
	}
	if err := e.RegisterFeatureList(TissueDetectionList, TissueDetection(dev, opts)); err != nil {
		return errors.Trace(err)
	}
	if dev.Camera == nil {
		return nil
	}
	return errors.Trace(e.RegisterFeatureList(MultiPositionList, MultiPosition(dev, opts)))
}
