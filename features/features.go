// Package features is the library of acquisition feature nodes and the
// built-in feature lists made from them.
package features

import (
	"github.com/warriorguo/featureflow/device"
	"github.com/warriorguo/featureflow/types"
)

// Experiment fields the library reads and writes by default.
const (
	ChannelsPath      = "MicroscopeState.selected_channels"
	ChannelIndexPath  = "MicroscopeState.channel_index"
	PositionsPath     = "MultiPositions"
	PositionIndexPath = "MicroscopeState.position_index"
	ResolutionPath    = "MicroscopeState.resolution_mode"
	FocusRangePath    = "MicroscopeState.focus_range"
	SnapFramePath     = "MicroscopeState.snap_frame"
)

// Devices bundles the hardware the built-in feature lists drive.
type Devices struct {
	Stage    device.Stage
	Switcher device.ChannelSwitcher
	Camera   device.Camera
	Zoom     device.Zoom
}

// Record is one detection result: the frame that was examined and the
// verdict on it.
type Record struct {
	FrameID int
	Verdict bool
}

// LoopByCount repeats body once per entry of the list (or the integer)
// stored at fieldPath.
func LoopByCount(fieldPath string, body ...types.Element) types.Element {
	return types.Loop(fieldPath, body...)
}

// nextIndex advances an index stored at indexPath modulo n. On the first
// call of a run the stored value is ignored and index 0 is selected.
func nextIndex(exp *types.Experiment, indexPath string, n int, first bool) (int, error) {
	next := 0
	err := exp.Update(func(d *types.Data) error {
		if idx, exists := d.GetPathInt(indexPath); exists && !first {
			next = (idx + 1) % n
		}
		return d.SetPath(indexPath, next)
	})
	return next, err
}
