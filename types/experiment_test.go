package types

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExperiment(t *testing.T) {
	exp := NewExperiment(Data{
		"MicroscopeState": map[string]any{
			"selected_channels": []string{"488", "561", "640"},
			"channel_index":     0,
		},
	})

	n, err := exp.Count("MicroscopeState.selected_channels")
	assert.Nil(t, err)
	assert.Equal(t, 3, n)

	// paths written against the whole document resolve the same way
	n, err = exp.Count("experiment.MicroscopeState.selected_channels")
	assert.Nil(t, err)
	assert.Equal(t, 3, n)

	_, err = exp.Count("MicroscopeState.missing")
	assert.NotNil(t, err)

	assert.Nil(t, exp.Set("MicroscopeState.channel_index", 2))
	idx, exists := exp.GetInt("MicroscopeState.channel_index")
	assert.True(t, exists)
	assert.Equal(t, 2, idx)

	channels, exists := exp.GetStringSlice("MicroscopeState.selected_channels")
	assert.True(t, exists)
	assert.Equal(t, "640", channels[idx])

	snapshot := exp.Snapshot()
	_, exists = snapshot["MicroscopeState"]
	assert.True(t, exists)
}

func TestExperimentConcurrentUpdate(t *testing.T) {
	exp := NewExperiment(nil)
	assert.Nil(t, exp.Set("counter", 0))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Nil(t, exp.Update(func(d *Data) error {
				n, _ := d.GetInt("counter")
				d.Set("counter", n+1)
				return nil
			}))
		}()
	}
	wg.Wait()

	n, _ := exp.GetInt("counter")
	assert.Equal(t, 50, n)
}

func TestSharedList(t *testing.T) {
	l := NewSharedList[int]("records")
	assert.Equal(t, "records", l.Name())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Append(i)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, l.Len())

	snapshot := l.Snapshot()
	snapshot[0] = 100
	assert.NotContains(t, l.Snapshot(), 100)

	l.Reset()
	assert.Equal(t, 0, l.Len())
}
