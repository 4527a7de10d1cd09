package features

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warriorguo/featureflow/frames"
	"github.com/warriorguo/featureflow/types"
)

// segmentServer answers with the fraction of non-zero pixels.
func segmentServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/segment" || r.Method != http.MethodPost {
			http.Error(w, "no such endpoint", http.StatusNotFound)
			return
		}
		req := &segmentRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.FrameID < 0 {
			http.Error(w, "bad frame", http.StatusUnprocessableEntity)
			return
		}
		lit := 0
		for i := 0; i+1 < len(req.Pixels); i += 2 {
			if req.Pixels[i] != 0 || req.Pixels[i+1] != 0 {
				lit++
			}
		}
		json.NewEncoder(w).Encode(&Segmentation{
			Labels:     []int{1},
			Foreground: float64(lit) / float64(req.Width*req.Height),
		})
	}))
}

func TestHTTPSegmenter(t *testing.T) {
	srv := segmentServer(t)
	defer srv.Close()

	s := NewHTTPSegmenter(srv.URL+"/", time.Second)
	seg, err := s.Segment(newTestContext(nil), 3, grayFrame(100))
	require.Nil(t, err)
	assert.Equal(t, 3, seg.FrameID)
	assert.Equal(t, 1., seg.Foreground)
	assert.Equal(t, []int{1}, seg.Labels)

	_, err = s.Segment(newTestContext(nil), -1, grayFrame(100))
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "bad frame")
}

func TestIlastikSegmentation(t *testing.T) {
	srv := segmentServer(t)
	defer srv.Close()

	store := frames.NewStore(4)
	dark := store.Put(grayFrame(0))
	bright := store.Put(grayFrame(300))

	results := types.NewSharedList[Segmentation]("segmentations")
	f := NewIlastikSegmentation(NewHTTPSegmenter(srv.URL, time.Second), results)

	ctx := newTestContext(types.NewExperiment(nil))
	sink := types.NewMemMetadataSink()
	ctx.sink = sink

	_, err := f.Data(ctx, types.NewFrameBatch(dark))
	assert.NotNil(t, err)

	ctx.frames = store
	found, err := f.Data(ctx, types.NewFrameBatch(dark))
	require.Nil(t, err)
	assert.False(t, found)

	found, err = f.Data(ctx, types.NewFrameBatch(dark, bright, 99))
	require.Nil(t, err)
	assert.True(t, found)

	assert.Equal(t, 3, results.Len())
	meta, exists := sink.Frame(bright)
	require.True(t, exists)
	assert.Equal(t, 1., meta["foreground"])
}
