package pipeline

import (
	"errors"
	"fmt"

	"github.com/coct-data/service-alerts/app/snapshot"
	"github.com/coct-data/service-alerts/app/source"
)

type Stage string

const (
	StageLease   Stage = "lease"
	StageFetch   Stage = "fetch"
	StageAugment Stage = "augment"
	StagePublish Stage = "publish"
	StageCommit  Stage = "commit"
)

// StageError is a failure that aborted a run. Degraded outcomes (invalid records, collaborator
// failures, skipped artifacts, undelivered notifications) never produce one; they are listed on
// the Report instead.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("run failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Refused reports whether the run never started because another run held the lease.
func Refused(err error) bool {
	return errors.Is(err, snapshot.ErrRunInProgress)
}

// Unavailable reports whether the run aborted because the store or the source failed.
func Unavailable(err error) bool {
	return errors.Is(err, snapshot.ErrStoreUnavailable) || errors.Is(err, source.ErrSourceUnavailable)
}
