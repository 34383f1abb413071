// Package progress tracks running conversions and broadcasts their
// progress to subscribers such as SSE clients.
package progress

import (
	"time"

	"github.com/jmylchreest/convertarr/internal/models"
)

// State is the state of an operation or stage.
type State string

const (
	StateIdle       State = "idle"
	StatePreparing  State = "preparing"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateError      State = "error"
	StateCancelled  State = "cancelled"
)

// IsTerminal returns true for completed, error and cancelled.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateError || s == StateCancelled
}

// IsActive returns true if the operation is currently running.
func (s State) IsActive() bool {
	return s != StateIdle && !s.IsTerminal()
}

// StageInfo describes a single stage within an operation.
type StageInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Weight is the relative contribution of the stage to overall progress.
	Weight   float64 `json:"weight"`
	State    State   `json:"state"`
	Progress float64 `json:"progress"` // 0.0 to 1.0
	Message  string  `json:"message"`
	Current  int     `json:"current"`
	Total    int     `json:"total"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Operation is the progress of one conversion.
type Operation struct {
	// ID is shared with the conversion record written when the operation ends.
	ID        models.ULID      `json:"id"`
	Direction models.Direction `json:"direction"`
	Source    string           `json:"source"`

	State             State       `json:"state"`
	Progress          float64     `json:"progress"` // 0.0 to 1.0
	Message           string      `json:"message"`
	Stages            []StageInfo `json:"stages"`
	CurrentStageIndex int         `json:"current_stage_index"`
	Error             string      `json:"error,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	lastBroadcast time.Time
}

// Clone creates a copy safe to read without holding the service lock.
func (o *Operation) Clone() *Operation {
	clone := *o
	clone.Stages = make([]StageInfo, len(o.Stages))
	copy(clone.Stages, o.Stages)
	return &clone
}

// CurrentStage returns the currently active stage, if any.
func (o *Operation) CurrentStage() *StageInfo {
	if o.CurrentStageIndex >= 0 && o.CurrentStageIndex < len(o.Stages) {
		return &o.Stages[o.CurrentStageIndex]
	}
	return nil
}

// Event is sent to subscribers when an operation changes.
type Event struct {
	Type      string     `json:"event_type"`
	Operation *Operation `json:"operation"`
	Timestamp time.Time  `json:"timestamp"`
}

// Event types.
const (
	EventTypeProgress  = "progress"
	EventTypeCompleted = "completed"
	EventTypeError     = "error"
	EventTypeCancelled = "cancelled"
)

// Filter selects operations. Zero values match everything.
type Filter struct {
	Direction  models.Direction
	ActiveOnly bool
}

// Matches reports whether op satisfies the filter.
func (f *Filter) Matches(op *Operation) bool {
	if f == nil {
		return true
	}
	if f.Direction != "" && f.Direction != op.Direction {
		return false
	}
	if f.ActiveOnly && !op.State.IsActive() {
		return false
	}
	return true
}
