package main

import (
	"context"
	"sync"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/featureflow"
	"github.com/warriorguo/featureflow/config"
	"github.com/warriorguo/featureflow/device"
	"github.com/warriorguo/featureflow/device/sim"
	"github.com/warriorguo/featureflow/features"
	"github.com/warriorguo/featureflow/frames"
	"github.com/warriorguo/featureflow/sink/fits"
	"github.com/warriorguo/featureflow/types"
)

/**
 * rig is the simulated microscope the commands drive: an engine with the
 * built-in lists registered, sim devices, the frame slot store the sim
 * camera writes into and an optional FITS sink.
 */
type rig struct {
	cfg    *config.Config
	engine types.Engine
	stage  *sim.Stage
	frames *frames.Store
	camera *sim.Camera
	sink   *fits.Sink

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// tissueScene lights up the frames taken at even stage x positions.
func tissueScene(stage device.Stage) sim.Scene {
	return func() uint16 {
		x, err := stage.GetPos("x")
		if err != nil || int(x)%2 != 0 {
			return 200
		}
		return 4000
	}
}

func newRig(cfg *config.Config) (*rig, error) {
	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, errors.Trace(err)
	}
	e, err := featureflow.NewEngine(opts...)
	if err != nil {
		return nil, errors.Trace(err)
	}

	r := &rig{cfg: cfg, engine: e, stage: sim.NewStage()}
	r.frames = frames.NewStore(cfg.Camera.Slots)
	r.camera = sim.NewCamera(r.frames, tissueScene(r.stage), cfg.Camera.FPS)
	if cfg.Camera.Width > 0 && cfg.Camera.Height > 0 {
		r.camera.Width, r.camera.Height = cfg.Camera.Width, cfg.Camera.Height
	}
	if cfg.Output.Dir != "" {
		r.sink = fits.NewSink(cfg.Output.Dir, cfg.Output.Prefix)
	}

	dev := &features.Devices{
		Stage:    device.NewRetryStage(r.stage),
		Switcher: &sim.ChannelSwitcher{},
		Camera:   r.camera,
		Zoom:     &sim.Zoom{},
	}
	if err := features.RegisterBuiltin(e, dev, cfg.ListOptions()); err != nil {
		e.Close(context.Background())
		return nil, errors.Trace(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.camera.Run(ctx); err != nil {
			log.Errorf("sim camera stopped: %v", err)
		}
	}()
	return r, nil
}

// start runs list on a fresh copy of the configured experiment.
func (r *rig) start(ctx context.Context, list, id string, exp *types.Experiment) (string, error) {
	if exp == nil {
		exp = r.cfg.NewExperiment()
	}
	opts := []types.AcquisitionOption{types.WithFrameSource(r.frames)}
	if r.sink != nil {
		opts = append(opts, types.WithMetadataSink(r.sink))
	}
	return r.engine.StartAcquisition(ctx, list, id, exp, r.camera.Batches(), opts...)
}

// wait blocks until the acquisition ends and writes out its frames.
func (r *rig) wait(ctx context.Context, id string) (*types.AcquisitionStatus, error) {
	status, err := r.engine.WaitAcquisition(ctx, id)
	if err != nil {
		return status, errors.Trace(err)
	}
	if r.sink != nil {
		n, err := r.sink.Flush(r.frames)
		if err != nil {
			return status, errors.Annotate(err, "write frames")
		}
		log.Infof("acquisition %s: wrote %d frames to %s", id, n, r.sink.Dir)
	}
	return status, nil
}

// watch waits for the acquisition in the background; Close waits for it.
func (r *rig) watch(ctx context.Context, id string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.wait(ctx, id); err != nil {
			log.Warnf("acquisition %s: %v", id, err)
		}
	}()
}

func (r *rig) Close(ctx context.Context) error {
	err := r.engine.Close(ctx)
	r.cancel()
	r.wg.Wait()
	return errors.Trace(err)
}

func loadRig() (*rig, error) {
	cfg, err := config.Load(rootFlags.config)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return newRig(cfg)
}
