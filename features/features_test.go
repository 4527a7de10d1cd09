package features

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warriorguo/featureflow/device/sim"
	"github.com/warriorguo/featureflow/frames"
	"github.com/warriorguo/featureflow/types"
)

// testContext stands in for the engine's node context.
type testContext struct {
	context.Context
	exp    *types.Experiment
	frames types.FrameSource
	sink   types.MetadataSink
}

func newTestContext(exp *types.Experiment) *testContext {
	return &testContext{Context: context.Background(), exp: exp}
}

func (c *testContext) GetAcquisitionID() string         { return "test" }
func (c *testContext) GetNodePath() string              { return "test.node" }
func (c *testContext) GetTick() int64                   { return 1 }
func (c *testContext) Experiment() *types.Experiment    { return c.exp }
func (c *testContext) Frames() types.FrameSource        { return c.frames }
func (c *testContext) MetadataSink() types.MetadataSink { return c.sink }

func grayFrame(level uint16) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, 16, 16))
	for i := 0; i < len(img.Pix); i += 2 {
		img.Pix[i] = uint8(level >> 8)
		img.Pix[i+1] = uint8(level)
	}
	return img
}

func channelExperiment() *types.Experiment {
	return types.NewExperiment(types.Data{
		"MicroscopeState": map[string]any{"selected_channels": []string{"488", "561", "640"}},
	})
}

func TestPrepareNextChannel(t *testing.T) {
	switcher := &sim.ChannelSwitcher{}
	f := NewPrepareNextChannel(switcher)
	ctx := newTestContext(channelExperiment())
	sink := types.NewMemMetadataSink()

	for i := 0; i < 4; i++ {
		ok, err := f.Signal(ctx)
		require.Nil(t, err)
		assert.True(t, ok)
		assert.True(t, f.GenerateMetaData(ctx, i, sink))
	}
	assert.Equal(t, []string{"488", "561", "640", "488"}, switcher.History())

	meta, exists := sink.Frame(1)
	require.True(t, exists)
	assert.Equal(t, "561", meta["channel"])

	_, err := f.Signal(newTestContext(types.NewExperiment(nil)))
	assert.NotNil(t, err)
}

func TestIndexRestartsEachRun(t *testing.T) {
	exp := types.NewExperiment(types.Data{
		"MicroscopeState": map[string]any{
			"selected_channels": []string{"488", "561", "640"},
			"channel_index":     0,
			"position_index":    0,
		},
		"MultiPositions": []any{
			map[string]any{"x": 5},
			map[string]any{"x": 7},
		},
	})
	ctx := newTestContext(exp)

	switcher := &sim.ChannelSwitcher{}
	channel := NewPrepareNextChannel(switcher)
	stage := sim.NewStage()
	move := NewMoveToNextPosition(stage)

	for run := 0; run < 2; run++ {
		require.Nil(t, channel.Init(ctx))
		require.Nil(t, move.Init(ctx))

		_, err := channel.Signal(ctx)
		require.Nil(t, err)
		_, err = move.Signal(ctx)
		require.Nil(t, err)

		idx, _ := exp.GetInt(ChannelIndexPath)
		assert.Equal(t, 0, idx)
		idx, _ = exp.GetInt(PositionIndexPath)
		assert.Equal(t, 0, idx)
		x, _ := stage.GetPos("x")
		assert.Equal(t, 5., x)

		_, err = channel.Signal(ctx)
		require.Nil(t, err)
	}
	assert.Equal(t, []string{"488", "561", "488", "561"}, switcher.History())
}

func TestMeanIntensity(t *testing.T) {
	img := grayFrame(0)
	// bright square in the middle
	for y := 6; y < 10; y++ {
		for x := 6; x < 10; x++ {
			img.SetGray16(x, y, color16(4000))
		}
	}

	ok, err := MeanIntensity(img, 4, 1000)
	assert.Nil(t, err)
	assert.True(t, ok)

	// the whole frame averages far below the threshold
	ok, err = MeanIntensity(img, 0, 1000)
	assert.Nil(t, err)
	assert.False(t, ok)

	_, err = MeanIntensity(nil, 4, 1000)
	assert.NotNil(t, err)
}

func TestDetectTissueData(t *testing.T) {
	store := frames.NewStore(4)
	bright := store.Put(grayFrame(5000))
	dark := store.Put(grayFrame(10))

	records := types.NewSharedList[Record]("records")
	f := NewDetectTissueInStackAndRecord(8, 1000, nil, records)
	assert.True(t, f.NeedsResponse())

	ctx := newTestContext(types.NewExperiment(nil))
	ctx.frames = store

	relevant, err := f.PreData(ctx, types.NewFrameBatch())
	assert.Nil(t, err)
	assert.False(t, relevant)

	verdict, err := f.Data(ctx, types.NewFrameBatch(bright))
	assert.Nil(t, err)
	assert.True(t, verdict)
	verdict, err = f.Data(ctx, types.NewFrameBatch(dark, bright))
	assert.Nil(t, err)
	assert.False(t, verdict)

	assert.Equal(t, []Record{{bright, true}, {dark, false}}, records.Snapshot())

	_, err = f.Data(ctx, types.NewFrameBatch(42))
	assert.NotNil(t, err)
	assert.Equal(t, 2, records.Len())

	f.TargetFrame = dark
	relevant, _ = f.PreData(ctx, types.NewFrameBatch(bright))
	assert.False(t, relevant)
	relevant, _ = f.PreData(ctx, types.NewFrameBatch(bright, dark))
	assert.True(t, relevant)

	ok, err := f.SignalResponse(ctx, types.Verdict{Value: true})
	assert.Nil(t, err)
	assert.True(t, ok)
}

func positionsExperiment() *types.Experiment {
	return types.NewExperiment(types.Data{
		"MultiPositions": []any{
			map[string]any{"x": 1.0, "y": 2.0, "z": 3.0},
			map[string]any{"x": 10, "y": 20, "z": 30},
			map[string]any{"x": "100", "y": 200.5, "z": 300},
		},
	})
}

func TestMoveToNextPosition(t *testing.T) {
	stage := sim.NewStage()
	f := NewMoveToNextPosition(stage)
	ctx := newTestContext(positionsExperiment())

	ok, err := f.Signal(ctx)
	require.Nil(t, err)
	assert.True(t, ok)
	pos, _ := stage.GetPos("x")
	assert.Equal(t, 1., pos)

	_, err = f.Signal(ctx)
	require.Nil(t, err)
	_, err = f.Signal(ctx)
	require.Nil(t, err)
	pos, _ = stage.GetPos("x")
	assert.Equal(t, 100., pos)
	pos, _ = stage.GetPos("y")
	assert.Equal(t, 200.5, pos)
	assert.Equal(t, 9, stage.Moves())

	sink := types.NewMemMetadataSink()
	assert.True(t, f.GenerateMetaData(ctx, 7, sink))
	meta, _ := sink.Frame(7)
	assert.Equal(t, 2, meta["position"])

	_, err = f.Signal(newTestContext(types.NewExperiment(nil)))
	assert.NotNil(t, err)
}

func TestRemoveEmptyPositions(t *testing.T) {
	exp := positionsExperiment()
	records := types.NewSharedList[Record]("records")
	records.Append(Record{0, true}, Record{1, false})

	ok, err := NewRemoveEmptyPositions(records).Signal(newTestContext(exp))
	require.Nil(t, err)
	assert.True(t, ok)

	n, err := exp.Count(PositionsPath)
	assert.Nil(t, err)
	assert.Equal(t, 2, n)
	v, _ := exp.Get(PositionsPath)
	positions := v.([]any)
	assert.Equal(t, 1.0, positions[0].(map[string]any)["x"])
	assert.Equal(t, "100", positions[1].(map[string]any)["x"])
}

func TestCalculateFocusRange(t *testing.T) {
	stage := sim.NewStage()
	require.Nil(t, stage.MoveAbs("f", 100))
	exp := types.NewExperiment(nil)

	ok, err := NewCalculateFocusRange(stage, 50, 5).Signal(newTestContext(exp))
	require.Nil(t, err)
	assert.True(t, ok)
	v, exists := exp.Get(FocusRangePath)
	require.True(t, exists)
	assert.Equal(t, FocusRange{Start: 75, End: 125, Step: 5, Steps: 11}, v)

	_, err = NewCalculateFocusRange(stage, 50, 0).Signal(newTestContext(exp))
	assert.NotNil(t, err)
}

func TestChangeResolutionAndSnap(t *testing.T) {
	zoom := &sim.Zoom{}
	exp := types.NewExperiment(nil)
	ctx := newTestContext(exp)

	f := NewChangeResolution(zoom, "high", "N/A")
	ok, err := f.Signal(ctx)
	require.Nil(t, err)
	assert.True(t, ok)
	mode, _ := exp.GetString(ResolutionPath)
	assert.Equal(t, "high", mode)

	sink := types.NewMemMetadataSink()
	assert.True(t, f.GenerateMetaData(ctx, 0, sink))
	meta, _ := sink.Frame(0)
	assert.Equal(t, "high", meta["resolution"])

	_, err = NewChangeResolution(zoom, "", "").Signal(ctx)
	assert.NotNil(t, err)

	snap := NewSnap(nil)
	assert.True(t, snap.NeedsResponse())
	relevant, err := snap.PreData(ctx, types.NewFrameBatch())
	require.Nil(t, err)
	assert.False(t, relevant)
	relevant, err = snap.PreData(ctx, types.NewFrameBatch(3, 4))
	require.Nil(t, err)
	assert.True(t, relevant)
	ok, err = snap.Data(ctx, types.NewFrameBatch(3, 4))
	require.Nil(t, err)
	assert.True(t, ok)
	id, _ := exp.GetInt(SnapFramePath)
	assert.Equal(t, 4, id)
}

func color16(v uint16) color.Gray16 {
	return color.Gray16{Y: v}
}
