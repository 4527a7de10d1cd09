package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/warriorguo/featureflow/store"
	"github.com/warriorguo/featureflow/types"
	"github.com/warriorguo/featureflow/utils"
)

const (
	AcquisitionPath = "/acquisition/"
)

func newAcquisitionRunner(concurrency int) *acquisitionRunner {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &acquisitionRunner{
		wp:           workerpool.New(concurrency),
		acquisitions: make(map[string]*acquisition),
	}
}

// acquisitionRunner schedules acquisitions on a worker pool.
type acquisitionRunner struct {
	mu sync.Mutex

	wp           *workerpool.WorkerPool
	acquisitions map[string]*acquisition
}

func (b *acquisitionRunner) exists(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, exists := b.acquisitions[key]
	return exists
}

func (b *acquisitionRunner) get(key string) *acquisition {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.acquisitions[key]
}

func (b *acquisitionRunner) add(key string, a *acquisition) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.acquisitions[key]; exists {
		return errors.AlreadyExistsf("acquisition: %s", key)
	}
	b.acquisitions[key] = a
	return nil
}

func (b *acquisitionRunner) submit(ctx context.Context, a *acquisition) {
	b.wp.Submit(func() {
		a.run(ctx)
	})
}

func (b *acquisitionRunner) stopWait(ctx context.Context) error {
	b.mu.Lock()
	all := make([]*acquisition, 0, len(b.acquisitions))
	for _, a := range b.acquisitions {
		all = append(all, a)
	}
	b.mu.Unlock()

	for _, a := range all {
		a.stop()
	}
	b.wp.StopWait()
	return nil
}

// acquisition runs one sequencer with a signal and a data goroutine.
type acquisition struct {
	mu    sync.Mutex
	store store.Store

	id          string
	featureList string
	seq         *Sequencer
	frames      <-chan types.FrameBatch

	tickInterval time.Duration
	drainTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	doneCh chan struct{}

	status    types.StatusType
	lastErr   error
	startTime time.Time
	endTime   time.Time
}

func newAcquisition(ctx context.Context, st store.Store, id, featureList string, seq *Sequencer,
	frames <-chan types.FrameBatch, opts *types.EngineOptions) *acquisition {
	a := &acquisition{
		store:        st,
		id:           id,
		featureList:  featureList,
		seq:          seq,
		frames:       frames,
		tickInterval: opts.TickInterval,
		drainTimeout: opts.DrainTimeout,
		doneCh:       make(chan struct{}),
		status:       types.Pending,
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	return a
}

func (a *acquisition) run(_ context.Context) {
	defer close(a.doneCh)
	ctx := a.ctx

	a.mu.Lock()
	if a.status != types.Pending {
		// stopped before the pool picked it up
		a.mu.Unlock()
		return
	}
	a.status = types.Running
	a.startTime = time.Now()
	a.mu.Unlock()
	a.saveStatus(ctx)

	log.Infof("acquisition %s of %s started", a.id, a.featureList)

	signalDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(signalDone)
		return a.signalLoop(gctx)
	})
	g.Go(func() error {
		return a.dataLoop(gctx, signalDone)
	})
	err := g.Wait()
	if err == nil {
		err = a.seq.Err()
	}

	a.seq.Close(context.WithoutCancel(ctx))
	a.finish(err)
	a.saveStatus(ctx)
}

func (a *acquisition) signalLoop(ctx context.Context) error {
	for {
		done, err := a.seq.Tick(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		if done {
			return nil
		}
		if a.tickInterval > 0 {
			select {
			case <-ctx.Done():
				return errors.Trace(ctx.Err())
			case <-time.After(a.tickInterval):
			}
		}
	}
}

/**
 * dataLoop dispatches batches in arrival order. Once the signal side has
 * completed it keeps serving armed leaves for at most drainTimeout.
 */
func (a *acquisition) dataLoop(ctx context.Context, signalDone <-chan struct{}) error {
	frames := a.frames
	var drainCh <-chan time.Time
	signalFinished := false

	for {
		if signalFinished && a.seq.Armed() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil

		case batch, ok := <-frames:
			if !ok {
				frames = nil
				if signalFinished {
					return nil
				}
				continue
			}
			a.seq.Dispatch(ctx, batch)
			if err := a.seq.Err(); err != nil {
				return err
			}

		case <-signalDone:
			signalDone = nil
			signalFinished = true
			if frames == nil {
				return nil
			}
			timer := time.NewTimer(a.drainTimeout)
			defer timer.Stop()
			drainCh = timer.C

		case <-drainCh:
			log.Warnf("acquisition %s: %d leaves never received data", a.id, a.seq.Armed())
			return nil
		}
	}
}

func (a *acquisition) finish(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.endTime = time.Now()
	a.lastErr = err
	switch {
	case err == nil:
		a.status = types.Finished
		log.Infof("acquisition %s finished after %d ticks", a.id, a.seq.Ticks())

	case types.IsTerminalFailure(err):
		a.status = types.Aborted
		log.Errorf("acquisition %s aborted: %v", a.id, err)

	case errors.Is(err, context.Canceled):
		a.status = types.Stopped
		log.Infof("acquisition %s stopped after %d ticks", a.id, a.seq.Ticks())

	default:
		a.status = types.Aborted
		log.Errorf("acquisition %s aborted: %v", a.id, err)
	}
}

func (a *acquisition) stop() {
	a.mu.Lock()
	if a.status == types.Pending {
		a.status = types.Stopped
		a.endTime = time.Now()
		// run will not start, so it is the one closing doneCh
	}
	a.mu.Unlock()
	a.cancel()
}

func (a *acquisition) wait(ctx context.Context) error {
	select {
	case <-a.doneCh:
		return nil
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

func (a *acquisition) getStatus() *types.AcquisitionStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	status := &types.AcquisitionStatus{
		ID:          a.id,
		FeatureList: a.featureList,
		Status:      a.status,
		Ticks:       a.seq.Ticks(),
		Cursor:      a.seq.Cursor(),
		StartTime:   a.startTime,
		EndTime:     a.endTime,
	}
	if a.lastErr != nil {
		status.LastError = a.lastErr.Error()
		var terr *types.TerminalFailure
		if errors.As(a.lastErr, &terr) {
			status.FailedNode = terr.Node
			status.FailedTick = terr.Tick
		}
	}
	return status
}

func (a *acquisition) saveStatus(ctx context.Context) {
	if a.store == nil {
		return
	}
	b, err := utils.Serialize(a.getStatus())
	if err == nil {
		err = a.store.Set(context.WithoutCancel(ctx), AcquisitionPath, a.id, b)
	}
	if err != nil {
		log.Errorf("%s failed to save status: %v", a.id, err)
	}
}
