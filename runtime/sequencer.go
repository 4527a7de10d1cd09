package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/featureflow/store"
	"github.com/warriorguo/featureflow/types"
)

type sequencerOptions struct {
	responseTimeout time.Duration
	frames          types.FrameSource
	sink            types.MetadataSink
	store           store.Store
}

type SequencerOption func(*sequencerOptions)

// WithResponseTimeout bounds the wait for a response; zero waits forever.
func WithResponseTimeout(timeout time.Duration) SequencerOption {
	return func(o *sequencerOptions) {
		o.responseTimeout = timeout
	}
}

func WithFrames(frames types.FrameSource) SequencerOption {
	return func(o *sequencerOptions) {
		o.frames = frames
	}
}

func WithMetadataSink(sink types.MetadataSink) SequencerOption {
	return func(o *sequencerOptions) {
		o.sink = sink
	}
}

// WithTraceStore stores a trace record per node and phase in s.
func WithTraceStore(s store.Store) SequencerOption {
	return func(o *sequencerOptions) {
		o.store = s
	}
}

/**
 * Sequencer walks one feature tree. Tick is called by the signal goroutine
 * and Dispatch by the data goroutine; the two only meet through the
 * dispatcher, the response channels, the experiment state and whatever
 * shared lists the features hold.
 */
type Sequencer struct {
	acquisitionID string
	experiment    *types.Experiment
	opts          sequencerOptions

	root       runContext
	leaves     []*nodeRuntime
	dispatcher *dataDispatcher
	recorder   *traceRecorder

	tick int64
	done int32

	mu     sync.Mutex
	cursor []string
	// active holds the leaves fired on the current path, in graph order;
	// activeTick is the latest tick that fired one of them.
	active        []*nodeRuntime
	activeTick    int64
	terminalError error
}

// NewSequencer builds the runtime tree. Every ConstructionError surfaces
// here, before any callback runs.
func NewSequencer(acquisitionID string, root types.Element, exp *types.Experiment, opts ...SequencerOption) (*Sequencer, error) {
	if exp == nil {
		exp = types.NewExperiment(nil)
	}
	s := &Sequencer{
		acquisitionID: acquisitionID,
		experiment:    exp,
		dispatcher:    newDataDispatcher(),
	}
	for _, opt := range opts {
		opt(&s.opts)
	}

	rootName := root.Name
	if rootName == "" {
		rootName = acquisitionID
	}
	rc, leaves, err := buildRuntime(&root, rootName)
	if err != nil {
		return nil, errors.Trace(err)
	}
	s.root = rc
	s.leaves = leaves
	s.recorder = newTraceRecorder(s.opts.store, acquisitionID)
	s.cursor = rc.cursor()
	return s, nil
}

/**
 * Tick runs one signal tick: fire the active leaves, wait for the
 * responses they need, then move the cursor. It returns true once the
 * tree has completed.
 */
func (s *Sequencer) Tick(ctx context.Context) (bool, error) {
	if s.Done() {
		return true, nil
	}
	if err := s.checkAbort(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, errors.Trace(err)
	}

	tick := atomic.AddInt64(&s.tick, 1)
	tc := &tickContext{Context: ctx, seq: s, tick: tick}

	pending, err := s.root.fire(tc)
	if err != nil {
		return false, s.fail(err)
	}
	for _, n := range pending {
		if err := n.awaitResponse(tc); err != nil {
			return false, s.fail(err)
		}
	}

	done, _, err := s.root.settle(tc)
	if err != nil {
		return false, s.fail(err)
	}
	if err := s.checkAbort(); err != nil {
		return false, err
	}

	cursor := s.root.cursor()
	s.mu.Lock()
	s.cursor = cursor
	s.mu.Unlock()

	if done {
		atomic.StoreInt32(&s.done, 1)
		log.Debugf("%s completed after %d ticks", s.acquisitionID, tick)
	}
	return done, nil
}

// Dispatch hands one batch to the data side. Batches must be dispatched in
// arrival order from a single goroutine.
func (s *Sequencer) Dispatch(ctx context.Context, batch types.FrameBatch) {
	s.dispatch(ctx, batch)
}

// Cursor lists the paths of the leaves that fire in the next tick.
func (s *Sequencer) Cursor() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]string, len(s.cursor))
	copy(cp, s.cursor)
	return cp
}

func (s *Sequencer) Ticks() int64 {
	return atomic.LoadInt64(&s.tick)
}

func (s *Sequencer) Done() bool {
	return atomic.LoadInt32(&s.done) == 1
}

// Armed returns how many leaf activations still wait for data.
func (s *Sequencer) Armed() int {
	return s.dispatcher.len()
}

func (s *Sequencer) RuntimeData() []types.NodeRuntimeData {
	data := make([]types.NodeRuntimeData, 0, len(s.leaves))
	for _, n := range s.leaves {
		data = append(data, types.NodeRuntimeData{
			Path:         n.runtimeData.Path,
			SignalTimes:  atomic.LoadInt64(&n.runtimeData.SignalTimes),
			DataTimes:    atomic.LoadInt64(&n.runtimeData.DataTimes),
			FailedTimes:  atomic.LoadInt64(&n.runtimeData.FailedTimes),
			TimeoutTimes: atomic.LoadInt64(&n.runtimeData.TimeoutTimes),
		})
	}
	return data
}

/**
 * Close drops the remaining data activations and runs the cleanup
 * callbacks. It must be called once both goroutines have returned.
 */
func (s *Sequencer) Close(ctx context.Context) {
	for _, a := range s.dispatcher.clear() {
		log.Debugf("%s %s still armed at close", s.acquisitionID, a.node.pathString)
	}
	tick := s.Ticks()
	for _, n := range s.leaves {
		n.cleanup(s.newNodeContext(ctx, n, tick))
	}
}

func (s *Sequencer) waitVerdict(tc *tickContext, n *nodeRuntime) (types.Verdict, error) {
	a := n.armed
	if a == nil || a.respCh == nil {
		return types.Verdict{}, errors.Errorf("%s waits for a response it never armed", n.pathString)
	}

	var timeoutCh <-chan time.Time
	if s.opts.responseTimeout > 0 {
		timer := time.NewTimer(s.opts.responseTimeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case v := <-a.respCh:
		return v, nil

	case <-timeoutCh:
		s.dispatcher.disarm(a)
		atomic.AddInt64(&n.runtimeData.TimeoutTimes, 1)
		err := types.NewResponseTimeoutError(n.pathString, tc.tick, s.opts.responseTimeout)
		log.WithFields(log.Fields{
			"acquisition": s.acquisitionID,
			"node":        n.pathString,
			"tick":        tc.tick,
		}).Warnf("%v, continuing with a false verdict", err)
		return types.Verdict{Value: false, Err: err}, nil

	case <-tc.Done():
		s.dispatcher.disarm(a)
		return types.Verdict{}, errors.Trace(tc.Err())
	}
}

/**
 * nodeFailed logs a callback failure on the signal side. It returns a
 * TerminalFailure when the node may not fail, nil otherwise.
 */
func (s *Sequencer) nodeFailed(n *nodeRuntime, tick int64, phase types.Phase, err error) error {
	atomic.AddInt64(&n.runtimeData.FailedTimes, 1)
	nerr := types.NewNodeRuntimeError(n.pathString, tick, phase, err)
	s.logNodeError(nerr)
	if n.critical || n.terminal {
		return types.NewTerminalFailure(n.pathString, tick, nerr)
	}
	return nil
}

func (s *Sequencer) logNodeError(err error) {
	fields := log.Fields{"acquisition": s.acquisitionID}
	var nerr *types.NodeRuntimeError
	if errors.As(err, &nerr) {
		fields["node"] = nerr.Node
		fields["tick"] = nerr.Tick
		fields["phase"] = nerr.Phase
	}
	log.WithFields(fields).Errorf("%v, continuing with a false verdict", err)
}

// abort records a terminal failure raised off the signal goroutine; the
// next Tick returns it.
func (s *Sequencer) abort(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminalError == nil {
		s.terminalError = err
	}
}

// fail keeps a terminal failure so every later Tick returns it too.
func (s *Sequencer) fail(err error) error {
	if types.IsTerminalFailure(err) {
		s.abort(err)
	}
	return errors.Trace(err)
}

// Err returns the terminal failure that aborted the tree, if any.
func (s *Sequencer) Err() error {
	return s.checkAbort()
}

func (s *Sequencer) checkAbort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminalError
}

/**
 * activate refreshes the metadata set with every leaf fired since its
 * enclosing sequence or loop iteration began. It runs on the signal
 * goroutine before the leaf signals, so frames the signal triggers are
 * tagged by the whole path that led to them.
 */
func (s *Sequencer) activate(tick int64) {
	active := make([]*nodeRuntime, 0, len(s.leaves))
	for _, n := range s.leaves {
		if n.fired {
			active = append(active, n)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
	s.activeTick = tick
}

func (s *Sequencer) activeSnapshot() ([]*nodeRuntime, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.activeTick
}
