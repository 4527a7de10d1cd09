// Package sim has simulated devices so feature lists can run without a
// microscope attached.
package sim

import (
	"context"
	"image"
	"sync"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/warriorguo/featureflow/device"
	"github.com/warriorguo/featureflow/frames"
	"github.com/warriorguo/featureflow/types"
)

var (
	_ device.Stage           = &Stage{}
	_ device.ChannelSwitcher = &ChannelSwitcher{}
	_ device.Zoom            = &Zoom{}
	_ device.Camera          = &Camera{}
)

// Stage keeps axis positions in memory. FailNext makes the next n calls
// fail, to exercise retries.
type Stage struct {
	mu       sync.Mutex
	pos      map[string]float64
	failNext int
	moves    int
}

func NewStage() *Stage {
	return &Stage{pos: make(map[string]float64)}
}

func (s *Stage) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

func (s *Stage) fault() error {
	if s.failNext > 0 {
		s.failNext--
		return errors.New("stage busy")
	}
	return nil
}

func (s *Stage) GetPos(axis string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(); err != nil {
		return 0, err
	}
	return s.pos[axis], nil
}

func (s *Stage) MoveAbs(axis string, pos float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(); err != nil {
		return err
	}
	s.pos[axis] = pos
	s.moves++
	return nil
}

func (s *Stage) MoveRel(axis string, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(); err != nil {
		return err
	}
	s.pos[axis] += delta
	s.moves++
	return nil
}

// Moves counts the successful moves.
func (s *Stage) Moves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moves
}

type ChannelSwitcher struct {
	mu      sync.Mutex
	channel string
	history []string
}

func (c *ChannelSwitcher) SetChannel(channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channel = channel
	c.history = append(c.history, channel)
	return nil
}

func (c *ChannelSwitcher) Channel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// History lists every channel set so far, in order.
func (c *ChannelSwitcher) History() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]string, len(c.history))
	copy(cp, c.history)
	return cp
}

type Zoom struct {
	mu   sync.Mutex
	mode string
	zoom string
}

func (z *Zoom) SetResolution(mode, zoom string) error {
	if mode == "" {
		return errors.NotValidf("empty resolution mode")
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	z.mode, z.zoom = mode, zoom
	return nil
}

func (z *Zoom) Resolution() (string, string) {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.mode, z.zoom
}

// Scene returns the constant intensity of the next synthetic frame.
type Scene func() uint16

/**
 * Camera renders synthetic frames into a frame store. Triggers are queued
 * and served by Run, one frame per limiter token, and every frame is
 * announced on Batches as its own FrameBatch.
 */
type Camera struct {
	Width, Height int

	store   *frames.Store
	scene   Scene
	limiter *rate.Limiter

	triggers chan int
	batches  chan types.FrameBatch
}

// NewCamera paces frames at fps; fps <= 0 means as fast as possible.
func NewCamera(store *frames.Store, scene Scene, fps float64) *Camera {
	limit := rate.Inf
	if fps > 0 {
		limit = rate.Limit(fps)
	}
	return &Camera{
		Width:    64,
		Height:   64,
		store:    store,
		scene:    scene,
		limiter:  rate.NewLimiter(limit, 1),
		triggers: make(chan int, 64),
		batches:  make(chan types.FrameBatch, 64),
	}
}

func (c *Camera) Batches() <-chan types.FrameBatch {
	return c.batches
}

func (c *Camera) Trigger(ctx context.Context, n int) error {
	if n <= 0 {
		return errors.NotValidf("trigger of %d frames", n)
	}
	select {
	case c.triggers <- n:
		return nil
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

// Run serves triggers until ctx is done, then closes Batches.
func (c *Camera) Run(ctx context.Context) error {
	defer close(c.batches)
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-c.triggers:
			for i := 0; i < n; i++ {
				if err := c.limiter.Wait(ctx); err != nil {
					return nil
				}
				id := c.store.Put(c.render())
				select {
				case c.batches <- types.NewFrameBatch(id):
				case <-ctx.Done():
					return nil
				}
				log.Debugf("sim camera exposed frame %d", id)
			}
		}
	}
}

func (c *Camera) render() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, c.Width, c.Height))
	var v uint16
	if c.scene != nil {
		v = c.scene()
	}
	hi, lo := uint8(v>>8), uint8(v)
	for i := 0; i < len(img.Pix); i += 2 {
		img.Pix[i] = hi
		img.Pix[i+1] = lo
	}
	return img
}
