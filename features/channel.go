package features

import (
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/featureflow/device"
	"github.com/warriorguo/featureflow/types"
)

var (
	_ types.Initializer       = &PrepareNextChannel{}
	_ types.Signaler          = &PrepareNextChannel{}
	_ types.MetadataGenerator = &PrepareNextChannel{}
)

/**
 * PrepareNextChannel advances the active channel index and switches the
 * light path to it. Inside a LoopByCount over the channel list it visits
 * every selected channel once.
 */
type PrepareNextChannel struct {
	ChannelsPath string
	IndexPath    string
	Switcher     device.ChannelSwitcher

	started bool
}

func NewPrepareNextChannel(switcher device.ChannelSwitcher) *PrepareNextChannel {
	return &PrepareNextChannel{
		ChannelsPath: ChannelsPath,
		IndexPath:    ChannelIndexPath,
		Switcher:     switcher,
	}
}

// Init forgets the index a previous run left in the experiment.
func (f *PrepareNextChannel) Init(ctx types.Context) error {
	f.started = false
	return nil
}

func (f *PrepareNextChannel) Signal(ctx types.Context) (bool, error) {
	channels, _ := ctx.Experiment().GetStringSlice(f.ChannelsPath)
	if len(channels) == 0 {
		return false, errors.NotFoundf("channels at %s", f.ChannelsPath)
	}
	idx, err := nextIndex(ctx.Experiment(), f.IndexPath, len(channels), !f.started)
	if err != nil {
		return false, errors.Trace(err)
	}
	f.started = true

	channel := channels[idx]
	log.Debugf("%s: switching to channel %s", ctx.GetNodePath(), channel)
	if f.Switcher != nil {
		if err := f.Switcher.SetChannel(channel); err != nil {
			return false, errors.Annotatef(err, "set channel %s", channel)
		}
	}
	return true, nil
}

// GenerateMetaData tags each frame with the channel it was taken in.
func (f *PrepareNextChannel) GenerateMetaData(ctx types.Context, frameID int, sink types.MetadataSink) bool {
	channels, _ := ctx.Experiment().GetStringSlice(f.ChannelsPath)
	idx, exists := ctx.Experiment().GetInt(f.IndexPath)
	if !exists || idx < 0 || idx >= len(channels) {
		return false
	}
	sink.AddMetaData(frameID, "channel", channels[idx])
	return true
}
