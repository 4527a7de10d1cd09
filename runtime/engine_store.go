package runtime

import (
	"context"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/featureflow/types"
	"github.com/warriorguo/featureflow/utils"
)

// acquisitionPlan is what gets stored per acquisition so its tree can be
// rendered after the process that ran it is gone.
type acquisitionPlan struct {
	FeatureList string
	Root        types.Element
}

func (e *engine) savePlan(ctx context.Context, acquisitionID, listName string, root *types.Element) error {
	b, err := utils.Serialize(&acquisitionPlan{FeatureList: listName, Root: *root})
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(e.store.Set(ctx, PlanPath, acquisitionID, b))
}

func (e *engine) removePlan(ctx context.Context, acquisitionID string) error {
	return errors.Trace(e.store.Remove(ctx, PlanPath, acquisitionID))
}

func (e *engine) loadPlan(ctx context.Context, acquisitionID string) (*types.Element, error) {
	b, err := e.store.Get(ctx, PlanPath, acquisitionID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if b == nil {
		return nil, errors.NotFoundf("plan of acquisition: %s", acquisitionID)
	}
	plan := &acquisitionPlan{}
	if err := utils.Unserialize(b, plan); err != nil {
		return nil, errors.Trace(err)
	}
	return &plan.Root, nil
}

func (e *engine) loadStatus(ctx context.Context, acquisitionID string) (*types.AcquisitionStatus, error) {
	b, err := e.store.Get(ctx, AcquisitionPath, acquisitionID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if b == nil {
		return nil, errors.NotFoundf("acquisition: %s", acquisitionID)
	}
	status := &types.AcquisitionStatus{}
	if err := utils.Unserialize(b, status); err != nil {
		return nil, errors.Trace(err)
	}
	return status, nil
}

func (e *engine) loadRecords(ctx context.Context, acquisitionID string) (map[string]*types.NodeTraceRecord, error) {
	records := make(map[string]*types.NodeTraceRecord)
	recordPath := recordSavePath(acquisitionID)
	err := e.store.List(ctx, recordPath, func(key string) bool {
		b, err := e.store.Get(ctx, recordPath, key)
		if err != nil {
			log.Errorf("load %s %s from store failed: %v", recordPath, key, err)
			return true
		}
		record := &types.NodeTraceRecord{}
		if err := utils.Unserialize(b, record); err != nil {
			log.Errorf("unserialize %s %s from store:%s failed: %v", recordPath, key, string(b), err)
			return true
		}
		records[key] = record
		return true
	})
	return records, errors.Trace(err)
}
