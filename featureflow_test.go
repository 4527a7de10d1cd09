package featureflow

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warriorguo/featureflow/store/mem"
	"github.com/warriorguo/featureflow/types"
)

func TestNewStore(t *testing.T) {
	s, err := NewStore(types.NewEngineOptions())
	require.Nil(t, err)
	assert.IsType(t, mem.NewMemStore(), s)

	options := types.NewEngineOptions()
	types.WithPostgresConfig(&types.PostgresConfig{Host: "localhost", Port: -1})(options)
	_, err = NewStore(options)
	assert.NotNil(t, err)
}

// TestChannelLoopScenario runs [(PrepareNextChannel,), LoopByCount("selected_channels")]
// over three channels: the signal side is called once per loop entry and
// nothing ever waits for a response.
func TestChannelLoopScenario(t *testing.T) {
	e, err := NewEngine(types.EnableMemStore(), types.SetResponseTimeout(time.Second))
	require.Nil(t, err)
	defer e.Close(context.Background())

	var prepared, bodies int32
	var switched []string
	handler := func(exp *types.Experiment) (types.Element, error) {
		prepare := &types.FeatureSpec{
			Signal: func(ctx types.Context) (bool, error) {
				n := atomic.AddInt32(&prepared, 1)
				channels, _ := ctx.Experiment().GetStringSlice("experiment.MicroscopeState.selected_channels")
				switched = append(switched, channels[n-1])
				return true, ctx.Experiment().Set("MicroscopeState.channel_index", int(n-1))
			},
		}
		body := &types.FeatureSpec{
			Signal: func(ctx types.Context) (bool, error) {
				atomic.AddInt32(&bodies, 1)
				return true, nil
			},
		}
		return types.Loop("experiment.MicroscopeState.selected_channels",
			types.Lockstep(
				types.Node("prepare_next_channel", prepare),
				types.Node("body", body),
			),
		), nil
	}
	require.Nil(t, e.RegisterFeatureList("channels", handler))

	exp := types.NewExperiment(types.Data{
		"MicroscopeState": map[string]any{"selected_channels": []string{"488", "561", "640"}},
	})
	id, err := e.StartAcquisition(context.Background(), "channels", "", exp, nil)
	require.Nil(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := e.WaitAcquisition(ctx, id)
	require.Nil(t, err)

	assert.Equal(t, types.Finished, status.Status)
	assert.Equal(t, int64(3), status.Ticks)
	assert.Equal(t, int32(3), atomic.LoadInt32(&prepared))
	assert.Equal(t, int32(3), atomic.LoadInt32(&bodies))
	assert.Equal(t, []string{"488", "561", "640"}, switched)
	idx, _ := exp.GetInt("MicroscopeState.channel_index")
	assert.Equal(t, 2, idx)
}

func TestConstructionErrorBeforeStart(t *testing.T) {
	e, err := NewEngine(types.EnableMemStore())
	require.Nil(t, err)
	defer e.Close(context.Background())

	err = e.RegisterFeatureList("broken", func(exp *types.Experiment) (types.Element, error) {
		return types.Node("detect", &types.FeatureSpec{
			Signal:        func(ctx types.Context) (bool, error) { return true, nil },
			NeedsResponse: true,
		}), nil
	})
	assert.True(t, types.IsConstructionError(err))

	_, err = e.StartAcquisition(context.Background(), "broken", "", nil, nil)
	assert.True(t, errors.IsNotFound(err))
}
