package types

import (
	"image"
	"sync"

	"github.com/warriorguo/featureflow/utils"
)

// FrameBatch is an ordered, immutable set of frame indices delivered to the
// data side in one tick.
type FrameBatch struct {
	ids []int
}

func NewFrameBatch(ids ...int) FrameBatch {
	cp := make([]int, len(ids))
	copy(cp, ids)
	return FrameBatch{ids: cp}
}

func (b FrameBatch) IDs() []int {
	cp := make([]int, len(b.ids))
	copy(cp, b.ids)
	return cp
}

func (b FrameBatch) Len() int {
	return len(b.ids)
}

func (b FrameBatch) Contains(id int) bool {
	for _, v := range b.ids {
		if v == id {
			return true
		}
	}
	return false
}

func (b FrameBatch) First() (int, bool) {
	if len(b.ids) == 0 {
		return 0, false
	}
	return b.ids[0], true
}

func (b FrameBatch) Last() (int, bool) {
	if len(b.ids) == 0 {
		return 0, false
	}
	return b.ids[len(b.ids)-1], true
}

// Verdict is what the data side hands back to a response node.
type Verdict struct {
	FrameIDs []int
	Value    bool
	Err      error
}

// FrameSource gives data callbacks read access to the frame slot store.
type FrameSource interface {
	Get(frameID int) (*image.Gray16, bool)
}

// MetadataSink receives per-frame metadata emitted by feature nodes.
type MetadataSink interface {
	AddMetaData(frameID int, key string, value any)
}

var (
	_ MetadataSink = &MemMetadataSink{}
)

// MemMetadataSink keeps metadata in memory, keyed by frame id.
type MemMetadataSink struct {
	mu sync.Mutex
	m  map[int]Data
}

func NewMemMetadataSink() *MemMetadataSink {
	return &MemMetadataSink{m: make(map[int]Data)}
}

func (s *MemMetadataSink) AddMetaData(frameID int, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, exists := s.m[frameID]
	if !exists {
		d = Data{}
		s.m[frameID] = d
	}
	d.Set(key, value)
}

// Frame returns a copy of the metadata recorded for a frame.
func (s *MemMetadataSink) Frame(frameID int) (Data, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, exists := s.m[frameID]
	if !exists {
		return nil, false
	}
	return utils.CloneMap(d), true
}

func (s *MemMetadataSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
