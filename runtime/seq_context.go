package runtime

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/featureflow/store"
	"github.com/warriorguo/featureflow/types"
	"github.com/warriorguo/featureflow/utils"
)

const (
	RecordPath = "/record/"
)

const (
	maxDepth = 32
)

var (
	_ types.Context = &nodeContext{}
)

// nodeContext is what a feature callback sees.
type nodeContext struct {
	context.Context

	seq  *Sequencer
	path string
	tick int64
}

func (s *Sequencer) newNodeContext(ctx context.Context, n *nodeRuntime, tick int64) *nodeContext {
	return &nodeContext{Context: ctx, seq: s, path: n.pathString, tick: tick}
}

func (c *nodeContext) GetAcquisitionID() string {
	return c.seq.acquisitionID
}

func (c *nodeContext) GetNodePath() string {
	return c.path
}

func (c *nodeContext) GetTick() int64 {
	return c.tick
}

func (c *nodeContext) Experiment() *types.Experiment {
	return c.seq.experiment
}

func (c *nodeContext) Frames() types.FrameSource {
	return c.seq.opts.frames
}

func (c *nodeContext) MetadataSink() types.MetadataSink {
	return c.seq.opts.sink
}

// tickContext carries one signal tick through the runtime tree.
type tickContext struct {
	context.Context

	seq  *Sequencer
	tick int64
}

func recordSavePath(acquisitionID string) string {
	return RecordPath + acquisitionID
}

func recordKey(path string, phase types.Phase) string {
	return path + "@" + string(phase)
}

func splitRecordKey(key string) (string, types.Phase) {
	idx := strings.LastIndex(key, "@")
	if idx < 0 {
		return key, ""
	}
	return key[:idx], types.Phase(key[idx+1:])
}

// traceRecorder persists one NodeTraceRecord per node and phase.
type traceRecorder struct {
	mu sync.Mutex

	store         store.Store
	acquisitionID string
	counts        map[string]int64
}

func newTraceRecorder(s store.Store, acquisitionID string) *traceRecorder {
	if s == nil {
		return nil
	}
	return &traceRecorder{store: s, acquisitionID: acquisitionID, counts: make(map[string]int64)}
}

func (r *traceRecorder) record(ctx context.Context, path utils.Path, phase types.Phase, tick int64,
	start time.Time, verdict bool, err error) {
	if r == nil {
		return
	}
	key := recordKey(strings.Join(path, "."), phase)

	r.mu.Lock()
	r.counts[key]++
	count := r.counts[key]
	r.mu.Unlock()

	rec := &types.NodeTraceRecord{
		Path:      path.Export(),
		Phase:     phase,
		Tick:      tick,
		Count:     count,
		StartTime: start,
		EndTime:   time.Now(),
		Verdict:   verdict,
	}
	if err != nil {
		rec.Error = errors.ErrorStack(err)
	}
	if err := r.save(context.WithoutCancel(ctx), key, rec); err != nil {
		log.Errorf("%s failed to save record %s: %v", r.acquisitionID, key, err)
	}
}

func (r *traceRecorder) save(ctx context.Context, key string, rec *types.NodeTraceRecord) error {
	b, err := utils.Serialize(rec)
	if err != nil {
		return errors.Trace(err)
	}
	if err := r.store.Set(ctx, recordSavePath(r.acquisitionID), key, b); err != nil {
		return errors.Trace(err)
	}
	return nil
}
