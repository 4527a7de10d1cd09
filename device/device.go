// Package device holds the hardware collaborators the feature library
// drives. Real drivers live elsewhere; device/sim has simulated ones.
package device

import "context"

// Stage is a rudimentary multi-axis motion controller.
type Stage interface {
	// GetPos gets the current position of an axis
	GetPos(axis string) (float64, error)
	// MoveAbs moves an axis to an absolute position
	MoveAbs(axis string, pos float64) error
	// MoveRel moves an axis a relative amount
	MoveRel(axis string, delta float64) error
}

// ChannelSwitcher selects the active illumination channel, e.g. "488".
type ChannelSwitcher interface {
	SetChannel(channel string) error
	Channel() string
}

// Camera acquires frames on trigger. Frames arrive asynchronously on the
// data goroutine's batch feed.
type Camera interface {
	Trigger(ctx context.Context, n int) error
}

// Zoom switches between resolution modes and zoom levels.
type Zoom interface {
	SetResolution(mode, zoom string) error
	Resolution() (mode, zoom string)
}
