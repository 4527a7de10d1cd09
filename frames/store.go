// Package frames is the frame slot store: a fixed number of image slots
// the camera writes into and the data side reads from by frame id.
package frames

import (
	"image"
	"sync"
	"time"

	"github.com/warriorguo/featureflow/types"
)

var (
	_ types.FrameSource = &Store{}
)

type slot struct {
	id  int
	img *image.Gray16
	at  time.Time
}

/**
 * Store is a ring of frame slots. Frame ids increase monotonically from
 * zero; a frame is readable until the camera wraps around and reuses its
 * slot.
 */
type Store struct {
	mu    sync.RWMutex
	slots []slot
	next  int
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 1
	}
	slots := make([]slot, capacity)
	for i := range slots {
		slots[i].id = -1
	}
	return &Store{slots: slots}
}

// Put stores img in the next slot and returns its frame id.
func (s *Store) Put(img *image.Gray16) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	s.slots[id%len(s.slots)] = slot{id: id, img: img, at: time.Now()}
	return id
}

// Get returns the frame, or false once its slot has been overwritten.
func (s *Store) Get(frameID int) (*image.Gray16, bool) {
	if frameID < 0 {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl := s.slots[frameID%len(s.slots)]
	if sl.id != frameID {
		return nil, false
	}
	return sl.img, true
}

func (s *Store) Capacity() int {
	return len(s.slots)
}

// Latest returns the id of the most recent frame.
func (s *Store) Latest() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.next == 0 {
		return 0, false
	}
	return s.next - 1, true
}

// FrameRate is the arrival rate over the frames still held, in Hz.
func (s *Store) FrameRate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	held := len(s.slots)
	if s.next < held {
		held = s.next
	}
	if held < 2 {
		return 0
	}
	newest := s.slots[(s.next-1)%len(s.slots)].at
	oldest := s.slots[(s.next-held)%len(s.slots)].at
	elapsed := newest.Sub(oldest).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(held-1) / elapsed
}
