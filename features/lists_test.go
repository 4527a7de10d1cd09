package features

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warriorguo/featureflow/device/sim"
	"github.com/warriorguo/featureflow/frames"
	"github.com/warriorguo/featureflow/runtime"
	"github.com/warriorguo/featureflow/store/mem"
	"github.com/warriorguo/featureflow/types"
)

func newTestEngine(t *testing.T) types.Engine {
	opts := types.NewEngineOptions()
	opts.MemStore = true
	opts.ResponseTimeout = 2 * time.Second
	opts.DrainTimeout = 100 * time.Millisecond
	e := runtime.NewEngine(mem.NewMemStore(), opts)
	t.Cleanup(func() { e.Close(context.Background()) })
	return e
}

func waitFor(t *testing.T, e types.Engine, id string) *types.AcquisitionStatus {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := e.WaitAcquisition(ctx, id)
	require.Nil(t, err)
	return status
}

// runCamera serves the simulated camera until the test ends.
func runCamera(t *testing.T, cam *sim.Camera) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		cam.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestChannelLoopList(t *testing.T) {
	e := newTestEngine(t)
	switcher := &sim.ChannelSwitcher{}
	require.Nil(t, RegisterBuiltin(e, &Devices{Switcher: switcher}, nil))

	names, err := e.ListFeatureListNames()
	require.Nil(t, err)
	assert.Equal(t, []string{ChannelLoopList}, names)

	id, err := e.StartAcquisition(context.Background(), ChannelLoopList, "", channelExperiment(), nil)
	require.Nil(t, err)
	assert.NotEmpty(t, id)

	status := waitFor(t, e, id)
	assert.Equal(t, types.Finished, status.Status)
	assert.Equal(t, int64(3), status.Ticks)
	assert.Equal(t, []string{"488", "561", "640"}, switcher.History())
}

func TestTissueDetectionList(t *testing.T) {
	e := newTestEngine(t)
	store := frames.NewStore(16)

	var exposures int32
	// tissue on every other position
	cam := sim.NewCamera(store, func() uint16 {
		if atomic.AddInt32(&exposures, 1)%2 == 1 {
			return 5000
		}
		return 0
	}, 0)
	runCamera(t, cam)

	stage := sim.NewStage()
	dev := &Devices{Stage: stage, Switcher: &sim.ChannelSwitcher{}, Camera: cam}
	require.Nil(t, RegisterBuiltin(e, dev, nil))

	names, _ := e.ListFeatureListNames()
	assert.Equal(t, []string{ChannelLoopList, MultiPositionList, TissueDetectionList}, names)

	// an index left over from an earlier run must not shift the scan
	exp := types.NewExperiment(types.Data{
		"MicroscopeState": map[string]any{"position_index": 0},
		"MultiPositions": []any{
			map[string]any{"x": 0, "y": 0},
			map[string]any{"x": 1, "y": 0},
			map[string]any{"x": 2, "y": 0},
			map[string]any{"x": 3, "y": 0},
		},
	})
	sink := types.NewMemMetadataSink()
	id, err := e.StartAcquisition(context.Background(), TissueDetectionList, "tissue", exp, cam.Batches(),
		types.WithFrameSource(store), types.WithMetadataSink(sink))
	require.Nil(t, err)

	status := waitFor(t, e, id)
	require.Equal(t, types.Finished, status.Status, status.LastError)

	v, exists := exp.Get(TissueRecordsPath)
	require.True(t, exists)
	records := v.(*types.SharedList[Record]).Snapshot()
	assert.Equal(t, []Record{{0, true}, {1, false}, {2, true}, {3, false}}, records)

	positions, _ := exp.Get(PositionsPath)
	assert.Equal(t, []any{
		map[string]any{"x": 0, "y": 0},
		map[string]any{"x": 2, "y": 0},
	}, positions)

	x, _ := stage.GetPos("x")
	assert.Equal(t, 3., x)

	for frame := 0; frame < 4; frame++ {
		meta, exists := sink.Frame(frame)
		require.True(t, exists, "frame %d", frame)
		assert.Equal(t, frame, meta["position"], "frame %d", frame)
	}
}

func TestMultiPositionList(t *testing.T) {
	e := newTestEngine(t)
	store := frames.NewStore(16)
	cam := sim.NewCamera(store, func() uint16 { return 100 }, 0)
	runCamera(t, cam)

	switcher := &sim.ChannelSwitcher{}
	dev := &Devices{Stage: sim.NewStage(), Switcher: switcher, Camera: cam}
	require.Nil(t, RegisterBuiltin(e, dev, nil))

	exp := types.NewExperiment(types.Data{
		"MicroscopeState": map[string]any{"selected_channels": []string{"488", "561"}},
		"MultiPositions": []any{
			map[string]any{"x": 0, "f": 10},
			map[string]any{"x": 1, "f": 20},
		},
	})
	sink := types.NewMemMetadataSink()
	id, err := e.StartAcquisition(context.Background(), MultiPositionList, "", exp, cam.Batches(),
		types.WithFrameSource(store), types.WithMetadataSink(sink))
	require.Nil(t, err)

	status := waitFor(t, e, id)
	require.Equal(t, types.Finished, status.Status, status.LastError)
	assert.Equal(t, []string{"488", "561", "488", "561"}, switcher.History())

	latest, ok := store.Latest()
	require.True(t, ok)
	assert.Equal(t, 3, latest)
	last, _ := exp.GetInt(SnapFramePath)
	assert.Equal(t, 3, last)

	v, _ := exp.Get(FocusRangePath)
	assert.Equal(t, FocusRange{Start: -5, End: 45, Step: 5, Steps: 11}, v)

	assert.Equal(t, 4, sink.Len())
	for frame, expected := range []types.Data{
		{"position": 0, "channel": "488"},
		{"position": 0, "channel": "561"},
		{"position": 1, "channel": "488"},
		{"position": 1, "channel": "561"},
	} {
		meta, exists := sink.Frame(frame)
		require.True(t, exists, "frame %d", frame)
		assert.Equal(t, expected, meta, "frame %d", frame)
	}
}
