package progress

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jmylchreest/convertarr/internal/models"
	"github.com/jmylchreest/convertarr/internal/observability"
	"github.com/oklog/ulid/v2"
)

// ErrOperationNotFound is returned when the operation doesn't exist.
var ErrOperationNotFound = errors.New("operation not found")

const (
	defaultStaleDuration = 5 * time.Minute
	defaultThrottle      = 250 * time.Millisecond
	subscriberBuffer     = 100
)

// Subscriber receives events for matching operations.
type Subscriber struct {
	ID     string
	Filter *Filter
	Events chan *Event
}

// Service holds in-flight and recently finished operations.
type Service struct {
	mu          sync.RWMutex
	operations  map[models.ULID]*Operation
	subscribers map[string]*Subscriber
	logger      *slog.Logger

	staleDuration time.Duration
	throttle      time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
}

// NewService creates a progress service.
func NewService(logger *slog.Logger) *Service {
	return &Service{
		operations:    make(map[models.ULID]*Operation),
		subscribers:   make(map[string]*Subscriber),
		logger:        observability.WithComponent(logger, "progress"),
		staleDuration: defaultStaleDuration,
		throttle:      defaultThrottle,
		stop:          make(chan struct{}),
	}
}

// Start begins background removal of finished operations.
func (s *Service) Start() {
	go s.cleanupLoop(time.Minute)
}

// Stop halts background cleanup.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Service) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanupStale(time.Now())
		case <-s.stop:
			return
		}
	}
}

// cleanupStale removes terminal operations that finished before now minus staleDuration.
func (s *Service) cleanupStale(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.staleDuration)
	removed := 0
	for id, op := range s.operations {
		if op.State.IsTerminal() && op.CompletedAt != nil && op.CompletedAt.Before(cutoff) {
			delete(s.operations, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("cleaned up stale operations", slog.Int("count", removed))
	}
	return removed
}

// Begin starts tracking a conversion. A nil Service returns a nil Tracker,
// whose methods are no-ops.
func (s *Service) Begin(id models.ULID, direction models.Direction, source string, stages []StageInfo) *Tracker {
	if s == nil {
		return nil
	}

	now := time.Now()
	own := make([]StageInfo, len(stages))
	copy(own, stages)
	for i := range own {
		own[i].State = StateIdle
		own[i].Progress = 0
	}

	op := &Operation{
		ID:                id,
		Direction:         direction,
		Source:            source,
		State:             StatePreparing,
		Message:           "Starting conversion",
		Stages:            own,
		CurrentStageIndex: -1,
		StartedAt:         now,
		UpdatedAt:         now,
	}

	s.mu.Lock()
	s.operations[id] = op
	s.broadcastLocked(op)
	s.mu.Unlock()

	s.logger.Debug("started operation",
		slog.String("operation_id", id.String()),
		slog.String("direction", string(direction)),
	)
	return &Tracker{service: s, id: id}
}

// Get returns a copy of an operation.
func (s *Service) Get(id models.ULID) (*Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.operations[id]
	if !ok {
		return nil, ErrOperationNotFound
	}
	return op.Clone(), nil
}

// List returns copies of all operations matching filter, oldest first.
func (s *Service) List(filter *Filter) []*Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Operation, 0, len(s.operations))
	for _, op := range s.operations {
		if filter.Matches(op) {
			result = append(result, op.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *Operation) int {
		return ulid.ULID(a.ID).Compare(ulid.ULID(b.ID))
	})
	return result
}

// Subscribe registers a subscriber for events matching filter. Subscribers
// that set ActiveOnly will not see terminal events.
func (s *Service) Subscribe(filter *Filter) *Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &Subscriber{
		ID:     ulid.Make().String(),
		Filter: filter,
		Events: make(chan *Event, subscriberBuffer),
	}
	s.subscribers[sub.ID] = sub
	s.logger.Debug("subscriber added", slog.String("subscriber_id", sub.ID))
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Service) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.subscribers[id]; ok {
		close(sub.Events)
		delete(s.subscribers, id)
		s.logger.Debug("subscriber removed", slog.String("subscriber_id", id))
	}
}

// update applies fn to an operation. Updates within the throttle window are
// recorded but only broadcast when force is set.
func (s *Service) update(id models.ULID, force bool, fn func(*Operation)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.operations[id]
	if !ok {
		return
	}
	fn(op)
	now := time.Now()
	op.UpdatedAt = now

	if force || now.Sub(op.lastBroadcast) >= s.throttle {
		s.broadcastLocked(op)
	}
}

// broadcastLocked must be called with s.mu held.
func (s *Service) broadcastLocked(op *Operation) {
	op.lastBroadcast = time.Now()
	event := &Event{
		Type:      eventTypeForState(op.State),
		Operation: op.Clone(),
		Timestamp: time.Now(),
	}

	for _, sub := range s.subscribers {
		if !sub.Filter.Matches(op) {
			continue
		}
		select {
		case sub.Events <- event:
		default:
			s.logger.Warn("subscriber event channel full, dropping event",
				slog.String("subscriber_id", sub.ID),
				slog.String("operation_id", op.ID.String()),
			)
		}
	}
}

func eventTypeForState(state State) string {
	switch state {
	case StateCompleted:
		return EventTypeCompleted
	case StateError:
		return EventTypeError
	case StateCancelled:
		return EventTypeCancelled
	default:
		return EventTypeProgress
	}
}
