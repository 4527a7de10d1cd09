package types

import (
	"strings"
	"sync"

	"github.com/juju/errors"

	"github.com/warriorguo/featureflow/utils"
)

/**
 * Experiment is the experiment state shared by the signal and the data
 * goroutines. Every read and write goes through its mutex.
 */
type Experiment struct {
	mu   sync.Mutex
	data Data
}

func NewExperiment(data Data) *Experiment {
	if data == nil {
		data = Data{}
	}
	return &Experiment{data: data}
}

func (e *Experiment) Get(path string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data.GetPath(e.fieldPath(path))
}

func (e *Experiment) GetInt(path string) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data.GetPathInt(e.fieldPath(path))
}

func (e *Experiment) GetString(path string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data.GetPathString(e.fieldPath(path))
}

func (e *Experiment) GetStringSlice(path string) ([]string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data.GetPathStringSlice(e.fieldPath(path))
}

// Count returns the list length or integer value stored at path.
func (e *Experiment) Count(path string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, err := e.data.GetPathCount(e.fieldPath(path))
	return n, errors.Trace(err)
}

func (e *Experiment) Set(path string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return errors.Trace(e.data.SetPath(e.fieldPath(path), value))
}

// Update runs fn with the lock held so read-modify-write sequences stay atomic.
func (e *Experiment) Update(fn func(d *Data) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return errors.Trace(fn(&e.data))
}

// Snapshot returns a shallow copy of the top level.
func (e *Experiment) Snapshot() Data {
	e.mu.Lock()
	defer e.mu.Unlock()

	return utils.CloneMap(e.data)
}

// fieldPath accepts paths written against the whole experiment document,
// such as "experiment.MicroscopeState.selected_channels".
func (e *Experiment) fieldPath(path string) string {
	rest, found := strings.CutPrefix(path, "experiment.")
	if !found {
		return path
	}
	if _, exists := e.data["experiment"]; exists {
		return path
	}
	return rest
}
