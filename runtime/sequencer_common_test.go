package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warriorguo/featureflow/store"
	"github.com/warriorguo/featureflow/store/mem"
	"github.com/warriorguo/featureflow/types"
)

func newTestStore() store.Store {
	return mem.NewMemStore()
}

// callLog records callback invocations across both goroutines.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := make([]string, len(l.calls))
	copy(cp, l.calls)
	return cp
}

func (l *callLog) count(s string) int {
	n := 0
	for _, c := range l.get() {
		if c == s {
			n++
		}
	}
	return n
}

func signalNode(l *callLog, name string, options ...types.NodeOption) types.Element {
	return types.Node(name, &types.FeatureSpec{
		Signal: func(ctx types.Context) (bool, error) {
			l.add(name)
			return true, nil
		},
	}, options...)
}

// detectNode needs a response; its data side answers with detect(batch).
func detectNode(l *callLog, name string, detect func(types.FrameBatch) (bool, error)) types.Element {
	return types.Node(name, &types.FeatureSpec{
		Signal: func(ctx types.Context) (bool, error) {
			l.add(name)
			return true, nil
		},
		Data: func(ctx types.Context, frames types.FrameBatch) (bool, error) {
			l.add(name + ":data")
			return detect(frames)
		},
		SignalResponse: func(ctx types.Context, v types.Verdict) (bool, error) {
			l.add(name + ":response")
			return v.Value, nil
		},
		NeedsResponse: true,
	})
}

func newTestSequencer(t *testing.T, root types.Element, exp *types.Experiment, opts ...SequencerOption) *Sequencer {
	seq, err := NewSequencer("acq", root.Named("root"), exp, opts...)
	require.Nil(t, err)
	return seq
}

// runToEnd ticks seq until it completes and returns the number of ticks.
func runToEnd(t *testing.T, seq *Sequencer) int {
	ctx := context.Background()
	for i := 1; i <= 1000; i++ {
		done, err := seq.Tick(ctx)
		require.Nil(t, err)
		if done {
			return i
		}
	}
	t.Fatal("sequencer never completed")
	return 0
}

type tickResult struct {
	done bool
	err  error
}

// tickAsync runs one tick on its own goroutine, the way the signal
// goroutine of an acquisition does.
func tickAsync(seq *Sequencer) <-chan tickResult {
	ch := make(chan tickResult, 1)
	go func() {
		done, err := seq.Tick(context.Background())
		ch <- tickResult{done, err}
	}()
	return ch
}

func waitArmed(t *testing.T, seq *Sequencer, n int) {
	assert.Eventually(t, func() bool { return seq.Armed() == n }, time.Second, time.Millisecond)
}

func assertBlocked(t *testing.T, ch <-chan tickResult) {
	select {
	case r := <-ch:
		t.Fatalf("tick returned early: %+v", r)
	case <-time.After(30 * time.Millisecond):
	}
}

func receive(t *testing.T, ch <-chan tickResult) tickResult {
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatal("tick never returned")
	}
	return tickResult{}
}
