// Package fits writes acquired frames as FITS files, with the metadata the
// feature nodes emitted for them as header cards.
package fits

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/astrogo/fitsio"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/warriorguo/featureflow/types"
)

var (
	_ types.MetadataSink = &Sink{}
)

// CardName turns a metadata key into a FITS keyword: upper case, at most
// eight characters, letters digits '-' and '_' only.
func CardName(key string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(key) {
		if b.Len() == 8 {
			break
		}
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// cardValue maps value onto the types a FITS header can hold.
func cardValue(value any) any {
	switch v := value.(type) {
	case bool, string, float64:
		return v
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return cast.ToInt(v)
	case float32:
		return cast.ToFloat64(v)
	}
	if s, err := cast.ToStringE(value); err == nil {
		return s
	}
	return fmt.Sprint(value)
}

/**
 * Sink collects metadata cards per frame and writes each frame with its
 * cards to Dir/<Prefix>_<frame>.fits. Cards of a frame are dropped once
 * the frame is written.
 */
type Sink struct {
	Dir    string
	Prefix string

	mu    sync.Mutex
	cards map[int][]fitsio.Card
}

func NewSink(dir, prefix string) *Sink {
	if prefix == "" {
		prefix = "frame"
	}
	return &Sink{Dir: dir, Prefix: prefix, cards: make(map[int][]fitsio.Card)}
}

// AddMetaData replaces any card of the same name already set for frameID.
func (s *Sink) AddMetaData(frameID int, key string, value any) {
	card := fitsio.Card{Name: CardName(key), Value: cardValue(value), Comment: key}

	s.mu.Lock()
	defer s.mu.Unlock()

	cards := s.cards[frameID]
	for i := range cards {
		if cards[i].Name == card.Name {
			cards[i] = card
			return
		}
	}
	s.cards[frameID] = append(cards, card)
}

func (s *Sink) Cards(frameID int) []fitsio.Card {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]fitsio.Card, len(s.cards[frameID]))
	copy(cp, s.cards[frameID])
	return cp
}

// Pending lists the frames that have cards but were not written yet.
func (s *Sink) Pending() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, 0, len(s.cards))
	for id := range s.cards {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (s *Sink) FileName(frameID int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_%06d.fits", s.Prefix, frameID))
}

func (s *Sink) WriteFrame(frameID int, img *image.Gray16) (string, error) {
	cards := append(s.Cards(frameID), fitsio.Card{Name: "FRAMEID", Value: frameID, Comment: "frame index"})

	name := s.FileName(frameID)
	f, err := os.Create(name)
	if err != nil {
		return "", errors.Trace(err)
	}
	defer f.Close()

	if err := WriteFits(f, cards, img); err != nil {
		return "", errors.Annotatef(err, "write %s", name)
	}

	s.mu.Lock()
	delete(s.cards, frameID)
	s.mu.Unlock()
	return name, errors.Trace(f.Close())
}

// Flush writes every pending frame still held by frames and returns how
// many files were written.
func (s *Sink) Flush(frames types.FrameSource) (int, error) {
	written := 0
	for _, id := range s.Pending() {
		img, ok := frames.Get(id)
		if !ok {
			log.Warnf("fits: frame %d was overwritten before it was written", id)
			continue
		}
		if _, err := s.WriteFrame(id, img); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// WriteFits streams a single frame FITS file to w.
func WriteFits(w io.Writer, metadata []fitsio.Card, img *image.Gray16) error {
	metadata = append(metadata, fitsio.Card{Name: "BZERO", Value: 32768}, fitsio.Card{Name: "BSCALE", Value: 1.0})
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	fits, err := fitsio.Create(w)
	if err != nil {
		return errors.Trace(err)
	}
	defer fits.Close()

	im := fitsio.NewImage(16, []int{width, height})
	defer im.Close()
	if err := im.Header().Append(metadata...); err != nil {
		return errors.Trace(err)
	}

	ints := make([]int16, 0, width*height)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			ints = append(ints, int16(int32(img.Gray16At(x, y).Y)-32768))
		}
	}
	if err := im.Write(ints); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(fits.Write(im))
}
