package types_test

import (
	"math"
	"strconv"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"

	"github.com/warriorguo/featureflow/types"
)

type stagePosition struct {
	X, Y, Z float64
	Label   string
}

func TestData(t *testing.T) {
	data := &types.Data{}

	data.Set("start", stagePosition{X: 1.5, Y: -2, Z: 300, Label: "well A1"})
	data.Set("exposure_ms", 20)
	data.Set("binning", "2")
	data.Set("na", math.Pi)

	start := &stagePosition{}
	assert.Nil(t, data.GetStruct("start", start))
	assert.Equal(t, stagePosition{X: 1.5, Y: -2, Z: 300, Label: "well A1"}, *start)
	assert.True(t, errors.IsNotFound(data.GetStruct("end", start)))

	_, exists := data.Get("laser")
	assert.False(t, exists)

	n, exists := data.GetInt("binning")
	assert.True(t, exists)
	assert.Equal(t, 2, n)

	s, exists := data.GetString("exposure_ms")
	assert.True(t, exists)
	assert.Equal(t, "20", s)
	s, exists = data.GetString("na")
	assert.True(t, exists)
	assert.Equal(t, strconv.FormatFloat(math.Pi, 'f', -1, 64), s)
}

func TestDataPath(t *testing.T) {
	data := types.Data{
		"MicroscopeState": map[string]any{
			"selected_channels": []any{"488", "561", "640"},
			"stack":             map[any]any{"number_z_steps": 12},
		},
		"a.b": "literal",
	}

	v, exists := data.GetPathStringSlice("MicroscopeState.selected_channels")
	assert.True(t, exists)
	assert.Equal(t, []string{"488", "561", "640"}, v)

	n, exists := data.GetPathInt("MicroscopeState.stack.number_z_steps")
	assert.True(t, exists)
	assert.Equal(t, 12, n)

	s, exists := data.GetPathString("a.b")
	assert.True(t, exists)
	assert.Equal(t, "literal", s)

	_, exists = data.GetPath("MicroscopeState.missing.field")
	assert.False(t, exists)

	assert.Nil(t, data.SetPath("MicroscopeState.stack.start_position", 100.5))
	f, exists := data.GetPath("MicroscopeState.stack.start_position")
	assert.True(t, exists)
	assert.Equal(t, 100.5, f)

	assert.Nil(t, data.SetPath("CameraParameters.x_pixels", 2048))
	n, exists = data.GetPathInt("CameraParameters.x_pixels")
	assert.True(t, exists)
	assert.Equal(t, 2048, n)

	assert.NotNil(t, data.SetPath("MicroscopeState.selected_channels.first", 1))
}

func TestDataPathCount(t *testing.T) {
	data := types.Data{
		"channels":  []string{"488", "561"},
		"positions": []map[string]any{{"x": 1}, {"x": 2}, {"x": 3}},
		"repeat":    "4",
		"empty":     []any{},
		"negative":  -1,
		"name":      "not a number",
	}

	for path, expected := range map[string]int{
		"channels":  2,
		"positions": 3,
		"repeat":    4,
		"empty":     0,
	} {
		n, err := data.GetPathCount(path)
		assert.Nil(t, err, path)
		assert.Equal(t, expected, n, path)
	}

	_, err := data.GetPathCount("missing")
	assert.NotNil(t, err)
	_, err = data.GetPathCount("negative")
	assert.NotNil(t, err)
	_, err = data.GetPathCount("name")
	assert.NotNil(t, err)
}
