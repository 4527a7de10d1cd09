package features

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/featureflow/types"
)

var (
	_ types.DataHandler = &IlastikSegmentation{}
	_ Segmenter         = &HTTPSegmenter{}
)

// Segmentation is the answer of a segmentation service for one frame.
type Segmentation struct {
	FrameID    int     `json:"frame_id"`
	Labels     []int   `json:"labels,omitempty"`
	Foreground float64 `json:"foreground"`
}

type Segmenter interface {
	Segment(ctx context.Context, frameID int, img *image.Gray16) (*Segmentation, error)
}

type segmentRequest struct {
	FrameID int    `json:"frame_id"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Pixels  []byte `json:"pixels"`
}

/**
 * HTTPSegmenter posts frames to an ilastik style segmentation service.
 * The body carries the big endian 16 bit pixels; the service answers with
 * a Segmentation document.
 */
type HTTPSegmenter struct {
	URL    string
	Client *http.Client
}

func NewHTTPSegmenter(url string, timeout time.Duration) *HTTPSegmenter {
	return &HTTPSegmenter{
		URL:    strings.TrimSuffix(url, "/"),
		Client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSegmenter) Segment(ctx context.Context, frameID int, img *image.Gray16) (*Segmentation, error) {
	b := img.Bounds()
	body, err := json.Marshal(&segmentRequest{
		FrameID: frameID,
		Width:   b.Dx(),
		Height:  b.Dy(),
		Pixels:  img.Pix,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL+"/segment", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Trace(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, errors.Annotatef(err, "segment frame %d", frameID)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return nil, errors.Errorf("segment frame %d: %s: %s", frameID, resp.Status, strings.TrimSpace(string(msg)))
	}
	seg := &Segmentation{}
	if err := json.NewDecoder(resp.Body).Decode(seg); err != nil {
		return nil, errors.Annotatef(err, "decode segmentation of frame %d", frameID)
	}
	seg.FrameID = frameID
	return seg, nil
}

/**
 * IlastikSegmentation sends every frame of a batch to the segmenter,
 * keeps the results and tags the frames with their foreground fraction.
 * The verdict is true when any frame has foreground.
 */
type IlastikSegmentation struct {
	Segmenter Segmenter
	Results   *types.SharedList[Segmentation]
}

func NewIlastikSegmentation(segmenter Segmenter, results *types.SharedList[Segmentation]) *IlastikSegmentation {
	return &IlastikSegmentation{Segmenter: segmenter, Results: results}
}

func (f *IlastikSegmentation) Data(ctx types.Context, frames types.FrameBatch) (bool, error) {
	if ctx.Frames() == nil {
		return false, errors.NotFoundf("frame source")
	}
	found := false
	for _, id := range frames.IDs() {
		img, ok := ctx.Frames().Get(id)
		if !ok {
			log.Warnf("%s: frame %d already overwritten", ctx.GetNodePath(), id)
			continue
		}
		seg, err := f.Segmenter.Segment(ctx, id, img)
		if err != nil {
			return false, errors.Trace(err)
		}
		if f.Results != nil {
			f.Results.Append(*seg)
		}
		if sink := ctx.MetadataSink(); sink != nil {
			sink.AddMetaData(id, "foreground", seg.Foreground)
		}
		found = found || seg.Foreground > 0
	}
	return found, nil
}
