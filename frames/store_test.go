package frames

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func gray(v uint16) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(img.Pix); i += 2 {
		img.Pix[i] = uint8(v >> 8)
		img.Pix[i+1] = uint8(v)
	}
	return img
}

func TestStore(t *testing.T) {
	s := NewStore(3)
	assert.Equal(t, 3, s.Capacity())

	_, ok := s.Latest()
	assert.False(t, ok)
	_, ok = s.Get(0)
	assert.False(t, ok)

	for i := 0; i < 5; i++ {
		assert.Equal(t, i, s.Put(gray(uint16(i))))
	}
	latest, ok := s.Latest()
	assert.True(t, ok)
	assert.Equal(t, 4, latest)

	// 0 and 1 were overwritten by 3 and 4
	for id, expected := range map[int]bool{0: false, 1: false, 2: true, 3: true, 4: true, 5: false, -1: false} {
		_, ok := s.Get(id)
		assert.Equal(t, expected, ok, "frame %d", id)
	}
	img, _ := s.Get(4)
	assert.Equal(t, uint16(4), img.Gray16At(0, 0).Y)
}

func TestStoreFrameRate(t *testing.T) {
	s := NewStore(4)
	assert.Equal(t, 0., s.FrameRate())
	for i := 0; i < 3; i++ {
		s.Put(gray(0))
		time.Sleep(10 * time.Millisecond)
	}
	rate := s.FrameRate()
	assert.True(t, rate > 10 && rate < 110, "rate %v", rate)
}
