package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/featureflow/types"
)

// armedNode is one activation of a leaf waiting for data.
type armedNode struct {
	node *nodeRuntime
	tick int64
	// respCh is nil unless the node needs a response. It holds at most one
	// verdict: one producer (the data goroutine), one consumer.
	respCh chan types.Verdict
}

/**
 * dataDispatcher is the data side cursor: the signal goroutine arms the
 * leaves it activates, in graph order, and the data goroutine serves them
 * batch by batch until each has seen a relevant batch.
 */
type dataDispatcher struct {
	mu    sync.Mutex
	armed []*armedNode
}

func newDataDispatcher() *dataDispatcher {
	return &dataDispatcher{}
}

func (d *dataDispatcher) arm(n *nodeRuntime, tick int64, needsResponse bool) *armedNode {
	a := &armedNode{node: n, tick: tick}
	if needsResponse {
		a.respCh = make(chan types.Verdict, 1)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// a node re-entered by a loop drops its previous, unserved activation
	for i, old := range d.armed {
		if old.node == n {
			d.armed = append(d.armed[:i], d.armed[i+1:]...)
			break
		}
	}
	d.armed = append(d.armed, a)
	return a
}

func (d *dataDispatcher) disarm(a *armedNode) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, v := range d.armed {
		if v == a {
			d.armed = append(d.armed[:i], d.armed[i+1:]...)
			return true
		}
	}
	return false
}

func (d *dataDispatcher) snapshot() []*armedNode {
	d.mu.Lock()
	defer d.mu.Unlock()

	cp := make([]*armedNode, len(d.armed))
	copy(cp, d.armed)
	return cp
}

func (d *dataDispatcher) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.armed)
}

func (d *dataDispatcher) clear() []*armedNode {
	d.mu.Lock()
	defer d.mu.Unlock()

	left := d.armed
	d.armed = nil
	return left
}

/**
 * dispatch serves one batch. It never blocks on the signal goroutine:
 * verdicts go into single-slot channels that nobody else writes.
 */
func (s *Sequencer) dispatch(ctx context.Context, batch types.FrameBatch) {
	// tag first: once a verdict is out the signal side moves on and the
	// experiment no longer describes these frames
	s.emitMetaData(ctx, batch)
	for _, a := range s.dispatcher.snapshot() {
		s.serve(ctx, a, batch)
	}
}

func (s *Sequencer) serve(ctx context.Context, a *armedNode, batch types.FrameBatch) {
	n := a.node
	nc := s.newNodeContext(ctx, n, a.tick)
	start := time.Now()

	verdict := true
	var err error
	if n.caps.PreData != nil {
		var relevant bool
		err = safeCall(n.pathString, func() (err error) {
			relevant, err = n.caps.PreData(nc, batch)
			return err
		})
		if err == nil && !relevant {
			return
		}
	}
	if err == nil && n.caps.Data != nil {
		err = safeCall(n.pathString, func() (err error) {
			verdict, err = n.caps.Data(nc, batch)
			return err
		})
		atomic.AddInt64(&n.runtimeData.DataTimes, 1)
	}
	// a failing gate ends the activation like a failing Data call
	if err != nil {
		verdict = false
		err = types.NewNodeRuntimeError(n.pathString, a.tick, types.DataPhase, err)
		atomic.AddInt64(&n.runtimeData.FailedTimes, 1)
		s.logNodeError(err)
		if n.critical || n.terminal {
			s.abort(types.NewTerminalFailure(n.pathString, a.tick, err))
		}
	}
	s.recorder.record(ctx, n.path, types.DataPhase, a.tick, start, verdict, err)

	if !s.dispatcher.disarm(a) {
		// the signal side gave up on this activation already
		log.Debugf("%s late data for %s dropped", s.acquisitionID, n.pathString)
		return
	}
	if a.respCh != nil {
		select {
		case a.respCh <- types.Verdict{FrameIDs: batch.IDs(), Value: verdict, Err: err}:
		default:
		}
	}
}

// emitMetaData lets the leaves of the active path decorate every frame, in
// graph order so deeper nodes can override a key.
func (s *Sequencer) emitMetaData(ctx context.Context, batch types.FrameBatch) {
	if s.opts.sink == nil {
		return
	}
	active, tick := s.activeSnapshot()
	for _, id := range batch.IDs() {
		for _, n := range active {
			if n.caps.MetaData == nil {
				continue
			}
			nc := s.newNodeContext(ctx, n, tick)
			var ok bool
			err := safeCall(n.pathString, func() error {
				ok = n.caps.MetaData(nc, id, s.opts.sink)
				return nil
			})
			if err != nil || !ok {
				log.WithFields(log.Fields{
					"acquisition": s.acquisitionID,
					"node":        n.pathString,
					"frame":       id,
				}).Warnf("metadata generation failed: %v", err)
			}
		}
	}
}
