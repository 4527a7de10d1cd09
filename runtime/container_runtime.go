package runtime

import (
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/featureflow/utils"
)

var (
	_ runContext = &nodeRuntime{}
	_ runContext = &sequenceRuntime{}
	_ runContext = &lockstepRuntime{}
	_ runContext = &loopRuntime{}
	_ runContext = &loopWhileRuntime{}
	_ runContext = &conditionRuntime{}
)

/**
 * runContext is one vertex of the runtime tree. A signal tick calls fire
 * on the root, waits for the responses of the returned leaves, then calls
 * settle to move the cursor. All methods run on the signal goroutine.
 */
type runContext interface {
	// fire invokes the signal side of the leaves active in this tick and
	// returns the ones waiting for a response.
	fire(tc *tickContext) ([]*nodeRuntime, error)
	// settle advances the cursor and reports whether the element ended,
	// together with its verdict.
	settle(tc *tickContext) (done bool, verdict bool, err error)
	reset()
	getPath() utils.Path
	// cursor lists the leaves that fire next.
	cursor() []string
}

type sequenceRuntime struct {
	path     utils.Path
	children []runContext

	idx     int
	verdict bool
}

func newSequenceRuntime(path utils.Path, children []runContext) *sequenceRuntime {
	return &sequenceRuntime{path: path, children: children, verdict: true}
}

func (r *sequenceRuntime) getPath() utils.Path {
	return r.path
}

func (r *sequenceRuntime) cursor() []string {
	if r.idx >= len(r.children) {
		return nil
	}
	return r.children[r.idx].cursor()
}

func (r *sequenceRuntime) fire(tc *tickContext) ([]*nodeRuntime, error) {
	if r.idx >= len(r.children) {
		return nil, nil
	}
	return r.children[r.idx].fire(tc)
}

func (r *sequenceRuntime) settle(tc *tickContext) (bool, bool, error) {
	if r.idx >= len(r.children) {
		return true, r.verdict, nil
	}
	done, verdict, err := r.children[r.idx].settle(tc)
	if err != nil {
		return false, false, errors.Trace(err)
	}
	if done {
		r.verdict = verdict
		r.idx++
	}
	return r.idx >= len(r.children), r.verdict, nil
}

func (r *sequenceRuntime) reset() {
	r.idx = 0
	r.verdict = true
	for _, c := range r.children {
		c.reset()
	}
}

// lockstepRuntime gives every unfinished child the same tick.
type lockstepRuntime struct {
	path     utils.Path
	children []runContext

	done    []bool
	verdict bool
}

func newLockstepRuntime(path utils.Path, children []runContext) *lockstepRuntime {
	return &lockstepRuntime{path: path, children: children, done: make([]bool, len(children)), verdict: true}
}

func (r *lockstepRuntime) getPath() utils.Path {
	return r.path
}

func (r *lockstepRuntime) cursor() []string {
	var c []string
	for i, child := range r.children {
		if !r.done[i] {
			c = append(c, child.cursor()...)
		}
	}
	return c
}

func (r *lockstepRuntime) fire(tc *tickContext) ([]*nodeRuntime, error) {
	var pending []*nodeRuntime
	for i, child := range r.children {
		if r.done[i] {
			continue
		}
		p, err := child.fire(tc)
		if err != nil {
			return nil, errors.Trace(err)
		}
		pending = append(pending, p...)
	}
	return pending, nil
}

func (r *lockstepRuntime) settle(tc *tickContext) (bool, bool, error) {
	allDone := true
	for i, child := range r.children {
		if r.done[i] {
			continue
		}
		done, verdict, err := child.settle(tc)
		if err != nil {
			return false, false, errors.Trace(err)
		}
		if !done {
			allDone = false
			continue
		}
		r.done[i] = true
		r.verdict = r.verdict && verdict
	}
	return allDone, r.verdict, nil
}

func (r *lockstepRuntime) reset() {
	r.verdict = true
	for i, c := range r.children {
		r.done[i] = false
		c.reset()
	}
}

/**
 * loopRuntime repeats its body once per entry of an experiment field. The
 * count is read every time the loop is entered.
 */
type loopRuntime struct {
	path      utils.Path
	fieldPath string
	body      *sequenceRuntime

	started   bool
	count     int
	iteration int
}

func newLoopRuntime(path utils.Path, fieldPath string, body *sequenceRuntime) *loopRuntime {
	return &loopRuntime{path: path, fieldPath: fieldPath, body: body}
}

func (r *loopRuntime) getPath() utils.Path {
	return r.path
}

func (r *loopRuntime) cursor() []string {
	if r.started && r.iteration >= r.count {
		return nil
	}
	return r.body.cursor()
}

func (r *loopRuntime) enter(tc *tickContext) {
	r.started = true
	r.iteration = 0
	count, err := tc.seq.experiment.Count(r.fieldPath)
	if err != nil {
		// a missing field behaves like an empty list
		log.WithFields(log.Fields{
			"acquisition": tc.seq.acquisitionID,
			"node":        joinPath(r.path),
			"tick":        tc.tick,
		}).Errorf("loop count of %s: %v", r.fieldPath, err)
		count = 0
	}
	r.count = count
	log.Debugf("%s loop %v enters with count %d", tc.seq.acquisitionID, r.path, count)
}

func (r *loopRuntime) fire(tc *tickContext) ([]*nodeRuntime, error) {
	if !r.started {
		r.enter(tc)
	}
	if r.iteration >= r.count {
		return nil, nil
	}
	return r.body.fire(tc)
}

func (r *loopRuntime) settle(tc *tickContext) (bool, bool, error) {
	if !r.started {
		return false, false, nil
	}
	if r.iteration < r.count {
		done, _, err := r.body.settle(tc)
		if err != nil {
			return false, false, errors.Trace(err)
		}
		if !done {
			return false, false, nil
		}
		r.iteration++
		r.body.reset()
	}
	if r.iteration >= r.count {
		r.started = false
		return true, true, nil
	}
	return false, false, nil
}

func (r *loopRuntime) reset() {
	r.started = false
	r.iteration = 0
	r.count = 0
	r.body.reset()
}

// loopWhileRuntime repeats its body while the body ends with a true verdict.
type loopWhileRuntime struct {
	path          utils.Path
	maxIterations int
	body          *sequenceRuntime

	iteration int
}

func newLoopWhileRuntime(path utils.Path, maxIterations int, body *sequenceRuntime) *loopWhileRuntime {
	return &loopWhileRuntime{path: path, maxIterations: maxIterations, body: body}
}

func (r *loopWhileRuntime) getPath() utils.Path {
	return r.path
}

func (r *loopWhileRuntime) cursor() []string {
	return r.body.cursor()
}

func (r *loopWhileRuntime) fire(tc *tickContext) ([]*nodeRuntime, error) {
	return r.body.fire(tc)
}

func (r *loopWhileRuntime) settle(tc *tickContext) (bool, bool, error) {
	done, verdict, err := r.body.settle(tc)
	if err != nil {
		return false, false, errors.Trace(err)
	}
	if !done {
		return false, false, nil
	}
	r.iteration++
	r.body.reset()
	if !verdict || (r.maxIterations > 0 && r.iteration >= r.maxIterations) {
		log.Debugf("%s loop %v leaves after %d iterations", tc.seq.acquisitionID, r.path, r.iteration)
		r.iteration = 0
		return true, true, nil
	}
	return false, false, nil
}

func (r *loopWhileRuntime) reset() {
	r.iteration = 0
	r.body.reset()
}

// conditionRuntime runs its decider, then the branch picked by the verdict.
type conditionRuntime struct {
	path    utils.Path
	decider runContext
	onTrue  runContext
	onFalse runContext

	decided bool
	branch  runContext
}

func newConditionRuntime(path utils.Path, decider, onTrue, onFalse runContext) *conditionRuntime {
	return &conditionRuntime{path: path, decider: decider, onTrue: onTrue, onFalse: onFalse}
}

func (r *conditionRuntime) getPath() utils.Path {
	return r.path
}

func (r *conditionRuntime) cursor() []string {
	if !r.decided {
		return r.decider.cursor()
	}
	if r.branch == nil {
		return nil
	}
	return r.branch.cursor()
}

func (r *conditionRuntime) fire(tc *tickContext) ([]*nodeRuntime, error) {
	if !r.decided {
		return r.decider.fire(tc)
	}
	if r.branch == nil {
		return nil, nil
	}
	return r.branch.fire(tc)
}

func (r *conditionRuntime) settle(tc *tickContext) (bool, bool, error) {
	if !r.decided {
		done, verdict, err := r.decider.settle(tc)
		if err != nil {
			return false, false, errors.Trace(err)
		}
		if !done {
			return false, false, nil
		}
		r.decided = true
		if verdict {
			r.branch = r.onTrue
		} else {
			r.branch = r.onFalse
		}
		log.Debugf("%s condition %v took the %v branch", tc.seq.acquisitionID, r.path, verdict)
		if r.branch == nil {
			return true, verdict, nil
		}
		return false, false, nil
	}
	if r.branch == nil {
		return true, false, nil
	}
	done, verdict, err := r.branch.settle(tc)
	if err != nil {
		return false, false, errors.Trace(err)
	}
	return done, verdict, nil
}

func (r *conditionRuntime) reset() {
	r.decided = false
	r.branch = nil
	r.decider.reset()
	if r.onTrue != nil {
		r.onTrue.reset()
	}
	if r.onFalse != nil {
		r.onFalse.reset()
	}
}
