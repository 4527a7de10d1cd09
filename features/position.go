package features

import (
	"math"
	"sort"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/warriorguo/featureflow/device"
	"github.com/warriorguo/featureflow/types"
)

var (
	_ types.Signaler          = &RemoveEmptyPositions{}
	_ types.Initializer       = &MoveToNextPositionInMultiPositionTable{}
	_ types.Signaler          = &MoveToNextPositionInMultiPositionTable{}
	_ types.MetadataGenerator = &MoveToNextPositionInMultiPositionTable{}
	_ types.Signaler          = &CalculateFocusRange{}
)

// positionsAt reads the multi-position table: a list of axis->value maps.
func positionsAt(d *types.Data, path string) ([]any, error) {
	v, exists := d.GetPath(path)
	if !exists || v == nil {
		return nil, nil
	}
	positions, err := cast.ToSliceE(v)
	if err != nil {
		return nil, errors.Annotatef(err, "multi-position table %s", path)
	}
	return positions, nil
}

/**
 * RemoveEmptyPositions prunes the multi-position table after a detection
 * loop: record i is the verdict on position i, and positions whose record
 * says no tissue are dropped. Positions beyond the records are kept.
 */
type RemoveEmptyPositions struct {
	PositionsPath string
	Records       *types.SharedList[Record]
}

func NewRemoveEmptyPositions(records *types.SharedList[Record]) *RemoveEmptyPositions {
	return &RemoveEmptyPositions{PositionsPath: PositionsPath, Records: records}
}

func (f *RemoveEmptyPositions) Signal(ctx types.Context) (bool, error) {
	records := f.Records.Snapshot()
	removed := 0
	err := ctx.Experiment().Update(func(d *types.Data) error {
		positions, err := positionsAt(d, f.PositionsPath)
		if err != nil {
			return err
		}
		kept := make([]any, 0, len(positions))
		for i, pos := range positions {
			if i < len(records) && !records[i].Verdict {
				removed++
				continue
			}
			kept = append(kept, pos)
		}
		return d.SetPath(f.PositionsPath, kept)
	})
	if err != nil {
		return false, errors.Trace(err)
	}
	log.Infof("%s: removed %d empty positions", ctx.GetNodePath(), removed)
	return true, nil
}

/**
 * MoveToNextPositionInMultiPositionTable advances the position index and
 * moves every axis of the selected position, in axis name order.
 */
type MoveToNextPositionInMultiPositionTable struct {
	PositionsPath string
	IndexPath     string
	Stage         device.Stage

	started bool
}

func NewMoveToNextPosition(stage device.Stage) *MoveToNextPositionInMultiPositionTable {
	return &MoveToNextPositionInMultiPositionTable{
		PositionsPath: PositionsPath,
		IndexPath:     PositionIndexPath,
		Stage:         stage,
	}
}

func (f *MoveToNextPositionInMultiPositionTable) Init(ctx types.Context) error {
	f.started = false
	return nil
}

func (f *MoveToNextPositionInMultiPositionTable) Signal(ctx types.Context) (bool, error) {
	exp := ctx.Experiment()
	var positions []any
	err := exp.Update(func(d *types.Data) (err error) {
		positions, err = positionsAt(d, f.PositionsPath)
		return err
	})
	if err != nil {
		return false, errors.Trace(err)
	}
	if len(positions) == 0 {
		return false, errors.NotFoundf("positions at %s", f.PositionsPath)
	}

	idx, err := nextIndex(exp, f.IndexPath, len(positions), !f.started)
	if err != nil {
		return false, errors.Trace(err)
	}
	f.started = true
	pos, err := cast.ToStringMapE(positions[idx])
	if err != nil {
		return false, errors.Annotatef(err, "position %d", idx)
	}

	axes := make([]string, 0, len(pos))
	for axis := range pos {
		axes = append(axes, axis)
	}
	sort.Strings(axes)
	for _, axis := range axes {
		v, err := cast.ToFloat64E(pos[axis])
		if err != nil {
			return false, errors.Annotatef(err, "position %d axis %s", idx, axis)
		}
		if err := f.Stage.MoveAbs(axis, v); err != nil {
			return false, errors.Annotatef(err, "position %d", idx)
		}
	}
	log.Debugf("%s: at position %d", ctx.GetNodePath(), idx)
	return true, nil
}

func (f *MoveToNextPositionInMultiPositionTable) GenerateMetaData(ctx types.Context, frameID int, sink types.MetadataSink) bool {
	idx, exists := ctx.Experiment().GetInt(f.IndexPath)
	if !exists {
		return false
	}
	sink.AddMetaData(frameID, "position", idx)
	return true
}

// FocusRange is the z-stack CalculateFocusRange writes into the experiment.
type FocusRange struct {
	Start float64
	End   float64
	Step  float64
	Steps int
}

/**
 * CalculateFocusRange centres a focus stack of width Range on the current
 * focus axis position and stores it at OutputPath.
 */
type CalculateFocusRange struct {
	Stage      device.Stage
	Axis       string
	Range      float64
	Step       float64
	OutputPath string
}

func NewCalculateFocusRange(stage device.Stage, rng, step float64) *CalculateFocusRange {
	return &CalculateFocusRange{Stage: stage, Axis: "f", Range: rng, Step: step, OutputPath: FocusRangePath}
}

func (f *CalculateFocusRange) Signal(ctx types.Context) (bool, error) {
	if f.Step <= 0 || f.Range < 0 {
		return false, errors.NotValidf("focus range %v step %v", f.Range, f.Step)
	}
	center, err := f.Stage.GetPos(f.Axis)
	if err != nil {
		return false, errors.Annotatef(err, "read %s", f.Axis)
	}

	r := FocusRange{
		Start: center - f.Range/2,
		End:   center + f.Range/2,
		Step:  f.Step,
		Steps: int(math.Floor(f.Range/f.Step)) + 1,
	}
	if err := ctx.Experiment().Set(f.OutputPath, r); err != nil {
		return false, errors.Trace(err)
	}
	return true, nil
}
