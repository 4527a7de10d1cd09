package device

import (
	"time"

	"github.com/cenkalti/backoff"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
)

var (
	_ Stage = &RetryStage{}
)

// RetryStage retries every stage call with an exponential backoff, for
// controllers that drop commands while an axis is still settling.
type RetryStage struct {
	Stage

	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
}

func NewRetryStage(s Stage) *RetryStage {
	return &RetryStage{Stage: s, InitialInterval: 25 * time.Millisecond, MaxElapsedTime: 3 * time.Second}
}

func (r *RetryStage) newBackOff() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     r.InitialInterval,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      r.MaxElapsedTime,
		Clock:               backoff.SystemClock}
}

func (r *RetryStage) retry(what string, op func() error) error {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op()
		if err != nil {
			log.Debugf("stage %s attempt %d failed: %v", what, attempt, err)
		}
		return err
	}, r.newBackOff())
	return errors.Annotatef(err, "stage %s after %d attempts", what, attempt)
}

func (r *RetryStage) GetPos(axis string) (float64, error) {
	var pos float64
	err := r.retry("get "+axis, func() (err error) {
		pos, err = r.Stage.GetPos(axis)
		return err
	})
	return pos, err
}

func (r *RetryStage) MoveAbs(axis string, pos float64) error {
	return r.retry("move "+axis, func() error {
		return r.Stage.MoveAbs(axis, pos)
	})
}

func (r *RetryStage) MoveRel(axis string, delta float64) error {
	return r.retry("move "+axis, func() error {
		return r.Stage.MoveRel(axis, delta)
	})
}
