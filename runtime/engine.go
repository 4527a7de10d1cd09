package runtime

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/featureflow/store"
	"github.com/warriorguo/featureflow/types"
)

var (
	_ types.Engine = &engine{}
)

func NewEngine(store store.Store, opts *types.EngineOptions) types.Engine {
	return newEngine(store, opts)
}

type featureList struct {
	name    string
	handler types.FeatureListHandler
	// root is the tree built at registration, kept for rendering.
	root types.Element
}

type engine struct {
	ctx    context.Context
	cancel context.CancelFunc

	opts   *types.EngineOptions
	store  store.Store
	runner *acquisitionRunner

	// runMu is held shared by every start so Close never stops the pool
	// under a submit
	runMu   sync.RWMutex
	running bool

	listMu sync.Mutex
	lists  map[string]*featureList
}

func newEngine(store store.Store, opts *types.EngineOptions) *engine {
	if opts == nil {
		opts = types.NewEngineOptions()
	}
	ctx := opts.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	e := &engine{
		opts:    opts,
		store:   store,
		runner:  newAcquisitionRunner(opts.MaxConcurrentAcquisitions),
		running: true,
		lists:   make(map[string]*featureList),
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	return e
}

// rootOf names an unnamed root after its feature list so that node paths
// start with the list name.
func rootOf(name string, root types.Element) types.Element {
	if root.Name == "" {
		root.Name = name
	}
	return root
}

/**
 * RegisterFeatureList builds the list once against an empty experiment,
 * so construction errors show up at registration time.
 */
func (e *engine) RegisterFeatureList(name string, handler types.FeatureListHandler) error {
	if !e.isRunning() {
		return errors.MethodNotAllowedf("not running")
	}
	if handler == nil {
		return errors.NotValidf("nil handler for feature list %s", name)
	}
	root, err := handler(types.NewExperiment(nil))
	if err != nil {
		return errors.Trace(err)
	}
	root = rootOf(name, root)
	if _, _, err := buildRuntime(&root, root.Name); err != nil {
		return errors.Trace(err)
	}

	e.listMu.Lock()
	defer e.listMu.Unlock()
	e.lists[name] = &featureList{name: name, handler: handler, root: root}
	return nil
}

func (e *engine) GetFeatureList(name string) (types.Element, bool) {
	fl, exists := e.getFeatureList(name)
	if !exists {
		return types.Element{}, false
	}
	return fl.root, true
}

func (e *engine) RenderFeatureList(name string) (string, error) {
	fl, exists := e.getFeatureList(name)
	if !exists {
		return "", errors.NotFoundf("feature list: %s", name)
	}
	return renderDOT(&fl.root, nil)
}

func (e *engine) ListFeatureListNames() ([]string, error) {
	e.listMu.Lock()
	defer e.listMu.Unlock()

	names := make([]string, 0, len(e.lists))
	for name := range e.lists {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (e *engine) StartAcquisition(ctx context.Context, listName string, acquisitionID string, exp *types.Experiment,
	frames <-chan types.FrameBatch, opts ...types.AcquisitionOption) (string, error) {
	e.runMu.RLock()
	defer e.runMu.RUnlock()
	if !e.running {
		return "", errors.MethodNotAllowedf("not running")
	}
	fl, exists := e.getFeatureList(listName)
	if !exists {
		return "", errors.NotFoundf("feature list: %s", listName)
	}
	if acquisitionID == "" {
		acquisitionID = uuid.NewString()
	}
	if e.runner.exists(acquisitionID) {
		return "", errors.AlreadyExistsf("acquisition id: %s", acquisitionID)
	}
	if exp == nil {
		exp = types.NewExperiment(nil)
	}
	acqOpts := &types.AcquisitionOptions{}
	for _, opt := range opts {
		opt(acqOpts)
	}

	// every run gets its own tree: node state and shared lists start fresh
	root, err := fl.handler(exp)
	if err != nil {
		return "", errors.Trace(err)
	}
	root = rootOf(listName, root)

	seqOpts := []SequencerOption{
		WithResponseTimeout(e.opts.ResponseTimeout),
		WithFrames(acqOpts.Frames),
		WithMetadataSink(acqOpts.MetadataSink),
	}
	if e.opts.RecordTrace {
		seqOpts = append(seqOpts, WithTraceStore(e.store))
	}
	seq, err := NewSequencer(acquisitionID, root, exp, seqOpts...)
	if err != nil {
		return "", errors.Trace(err)
	}

	if err := e.savePlan(ctx, acquisitionID, listName, &root); err != nil {
		return "", errors.Trace(err)
	}

	a := newAcquisition(e.ctx, e.store, acquisitionID, listName, seq, frames, e.opts)
	if err := e.runner.add(acquisitionID, a); err != nil {
		if rerr := e.removePlan(context.WithoutCancel(ctx), acquisitionID); rerr != nil {
			err = errors.Wrapf(err, rerr, "remove plan %s failed after start acquisition", acquisitionID)
		}
		return "", errors.Trace(err)
	}
	a.saveStatus(ctx)
	e.runner.submit(e.ctx, a)

	log.Debugf("acquisition %s of %s submitted", acquisitionID, listName)
	return acquisitionID, nil
}

func (e *engine) WaitAcquisition(ctx context.Context, acquisitionID string) (*types.AcquisitionStatus, error) {
	a := e.runner.get(acquisitionID)
	if a == nil {
		return e.loadStatus(ctx, acquisitionID)
	}
	if err := a.wait(ctx); err != nil {
		return a.getStatus(), errors.Trace(err)
	}
	return a.getStatus(), nil
}

func (e *engine) GetAcquisitionStatus(ctx context.Context, acquisitionID string) (*types.AcquisitionStatus, error) {
	if a := e.runner.get(acquisitionID); a != nil {
		return a.getStatus(), nil
	}
	return e.loadStatus(ctx, acquisitionID)
}

func (e *engine) RenderAcquisitionStatus(ctx context.Context, acquisitionID string) (string, error) {
	root, err := e.loadPlan(ctx, acquisitionID)
	if err != nil {
		return "", errors.Trace(err)
	}
	records, err := e.loadRecords(ctx, acquisitionID)
	if err != nil {
		return "", errors.Trace(err)
	}
	return renderDOT(root, records)
}

func (e *engine) ListAcquisitionRecords(ctx context.Context, acquisitionID string) (map[string]*types.NodeTraceRecord, error) {
	return e.loadRecords(ctx, acquisitionID)
}

func (e *engine) StopAcquisition(ctx context.Context, acquisitionID string) error {
	a := e.runner.get(acquisitionID)
	if a == nil {
		return errors.NotFoundf("acquisition: %s", acquisitionID)
	}
	a.stop()
	return nil
}

func (e *engine) Close(ctx context.Context) error {
	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		return nil
	}
	e.running = false
	e.runMu.Unlock()

	e.cancel()
	return e.runner.stopWait(ctx)
}

func (e *engine) isRunning() bool {
	e.runMu.RLock()
	defer e.runMu.RUnlock()
	return e.running
}

func (e *engine) getFeatureList(name string) (*featureList, bool) {
	e.listMu.Lock()
	defer e.listMu.Unlock()
	fl, exists := e.lists[name]
	return fl, exists
}
