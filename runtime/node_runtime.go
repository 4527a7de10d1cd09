package runtime

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/featureflow/types"
	"github.com/warriorguo/featureflow/utils"
)

// nodeRuntime is the runtime instance of a leaf element.
type nodeRuntime struct {
	name       string
	path       utils.Path
	pathString string

	caps          types.Capabilities
	needsResponse bool
	critical      bool
	// terminal is set when the node is the only leaf of the tree.
	terminal bool

	// signal goroutine only
	initialized bool
	fired       bool
	verdict     bool
	armed       *armedNode

	runtimeData *types.NodeRuntimeData
}

func newNodeRuntime(name string, path utils.Path, caps types.Capabilities) *nodeRuntime {
	nr := &nodeRuntime{name: name, path: path, caps: caps}
	nr.pathString = strings.Join(path, ".")
	nr.runtimeData = &types.NodeRuntimeData{Path: nr.pathString}
	return nr
}

func (n *nodeRuntime) getPath() utils.Path {
	return n.path
}

func (n *nodeRuntime) cursor() []string {
	if n.fired {
		return nil
	}
	return []string{n.pathString}
}

func (n *nodeRuntime) reset() {
	n.fired = false
	n.verdict = false
	n.armed = nil
}

func (n *nodeRuntime) fire(tc *tickContext) ([]*nodeRuntime, error) {
	if n.fired {
		return nil, nil
	}
	n.fired = true
	n.verdict = true

	s := tc.seq
	s.activate(tc.tick)
	nc := s.newNodeContext(tc, n, tc.tick)

	if !n.initialized {
		n.initialized = true
		if n.caps.Init != nil {
			start := time.Now()
			err := safeCall(n.pathString, func() error { return n.caps.Init(nc) })
			s.recorder.record(tc, n.path, types.InitPhase, tc.tick, start, err == nil, err)
			if err != nil {
				if ferr := s.nodeFailed(n, tc.tick, types.InitPhase, err); ferr != nil {
					return nil, ferr
				}
			}
		}
	}

	// arm before signaling so frames triggered by the signal find the node
	if n.caps.HasDataSide() {
		n.armed = s.dispatcher.arm(n, tc.tick, n.needsResponse)
	}

	if n.caps.Signal != nil {
		start := time.Now()
		var verdict bool
		err := safeCall(n.pathString, func() (err error) {
			verdict, err = n.caps.Signal(nc)
			return err
		})
		atomic.AddInt64(&n.runtimeData.SignalTimes, 1)
		s.recorder.record(tc, n.path, types.SignalPhase, tc.tick, start, verdict && err == nil, err)
		if err != nil {
			verdict = false
			if ferr := s.nodeFailed(n, tc.tick, types.SignalPhase, err); ferr != nil {
				return nil, ferr
			}
		}
		n.verdict = verdict
	}

	if n.needsResponse {
		return []*nodeRuntime{n}, nil
	}
	return nil, nil
}

/**
 * awaitResponse blocks the signal goroutine until the data side delivered
 * a verdict for the activation armed in fire, the response timeout
 * expires, or ctx is done. Only a context error or a terminal failure is
 * returned.
 */
func (n *nodeRuntime) awaitResponse(tc *tickContext) error {
	s := tc.seq
	start := time.Now()

	v, err := s.waitVerdict(tc, n)
	if err != nil {
		return errors.Trace(err)
	}

	nc := s.newNodeContext(tc, n, tc.tick)
	var verdict bool
	err = safeCall(n.pathString, func() (err error) {
		verdict, err = n.caps.SignalResponse(nc, v)
		return err
	})
	s.recorder.record(tc, n.path, types.ResponsePhase, tc.tick, start, verdict && err == nil, err)
	if err != nil {
		verdict = false
		if ferr := s.nodeFailed(n, tc.tick, types.ResponsePhase, err); ferr != nil {
			return ferr
		}
	}
	n.verdict = verdict
	return nil
}

func (n *nodeRuntime) settle(tc *tickContext) (bool, bool, error) {
	if !n.fired {
		return false, false, nil
	}
	return true, n.verdict, nil
}

func (n *nodeRuntime) cleanup(nc *nodeContext) {
	if n.caps.Cleanup == nil || !n.initialized {
		return
	}
	if err := safeCall(n.pathString, func() error {
		n.caps.Cleanup(nc)
		return nil
	}); err != nil {
		log.Errorf("cleanup of %s failed: %v", n.pathString, err)
	}
}

// safeCall runs fn and converts a panic into an error.
func safeCall(path string, fn func() error) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic on %s: %v", path, r)
		}
	}()
	return fn()
}
