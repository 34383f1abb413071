package progress

import (
	"context"
	"errors"
	"time"

	"github.com/jmylchreest/convertarr/internal/models"
)

// Tracker updates a single operation. All methods are safe on a nil Tracker.
type Tracker struct {
	service *Service
	id      models.ULID
}

// ID returns the operation ID.
func (t *Tracker) ID() models.ULID {
	if t == nil {
		return models.ULID{}
	}
	return t.id
}

// StartStage marks stageID as the current stage.
func (t *Tracker) StartStage(stageID string) {
	if t == nil {
		return
	}
	t.service.update(t.id, true, func(op *Operation) {
		now := time.Now()
		if prev := op.CurrentStage(); prev != nil && prev.State == StateProcessing {
			prev.State = StateCompleted
			prev.Progress = 1
			prev.CompletedAt = &now
		}
		for i := range op.Stages {
			if op.Stages[i].ID == stageID {
				op.CurrentStageIndex = i
				op.Stages[i].State = StateProcessing
				op.Stages[i].StartedAt = &now
				op.Stages[i].Progress = 0
				op.State = StateProcessing
				op.Message = op.Stages[i].Name
				break
			}
		}
		recalculate(op)
	})
}

// SetItemProgress records current of total items done in stageID.
// Broadcasts are throttled except for the final item.
func (t *Tracker) SetItemProgress(stageID string, current, total int) {
	if t == nil {
		return
	}
	t.service.update(t.id, current >= total, func(op *Operation) {
		for i := range op.Stages {
			if op.Stages[i].ID == stageID {
				op.Stages[i].Current = current
				op.Stages[i].Total = total
				if total > 0 {
					op.Stages[i].Progress = float64(current) / float64(total)
				}
				break
			}
		}
		recalculate(op)
	})
}

// Complete marks the operation and all its stages as completed.
func (t *Tracker) Complete(message string) {
	if t == nil {
		return
	}
	t.service.update(t.id, true, func(op *Operation) {
		now := time.Now()
		op.State = StateCompleted
		op.Progress = 1
		op.Message = message
		op.CompletedAt = &now
		for i := range op.Stages {
			if op.Stages[i].State != StateCompleted {
				op.Stages[i].State = StateCompleted
				op.Stages[i].Progress = 1
				op.Stages[i].CompletedAt = &now
			}
		}
	})
}

// Fail marks the operation as failed, or cancelled when err is a context
// cancellation.
func (t *Tracker) Fail(err error) {
	if t == nil {
		return
	}
	t.service.update(t.id, true, func(op *Operation) {
		now := time.Now()
		op.CompletedAt = &now
		if errors.Is(err, context.Canceled) {
			op.State = StateCancelled
			op.Message = "Conversion cancelled"
			return
		}
		op.State = StateError
		op.Error = err.Error()
		op.Message = "Conversion failed"
		if st := op.CurrentStage(); st != nil {
			st.State = StateError
			st.Message = err.Error()
			st.CompletedAt = &now
		}
	})
}

// recalculate updates overall progress from stage weights.
func recalculate(op *Operation) {
	var done, total float64
	for _, st := range op.Stages {
		done += st.Weight * st.Progress
		total += st.Weight
	}
	if total > 0 {
		op.Progress = done / total
	}
}
