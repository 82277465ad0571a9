package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// timelineRepository хранит события в памяти (для разработки/тестов).
type timelineRepository struct {
	st *state
}

// Append добавляет событие, сохраняя хронологический порядок.
func (r timelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	events := append(r.st.timeline[event.OrderID], event)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})
	r.st.timeline[event.OrderID] = events
	return nil
}

// List возвращает события заказа в хронологическом порядке.
func (r timelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	events := r.st.timeline[orderID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result, nil
}

// lockedTimeline читает зафиксированное состояние вне транзакции.
type lockedTimeline struct {
	store *Store
}

func (r *lockedTimeline) Append(ctx context.Context, event domain.TimelineEvent) error {
	return r.store.locked(func(st *state) error {
		return timelineRepository{st: st}.Append(ctx, event)
	})
}

func (r *lockedTimeline) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	var events []domain.TimelineEvent
	err := r.store.locked(func(st *state) error {
		var err error
		events, err = timelineRepository{st: st}.List(ctx, orderID)
		return err
	})
	return events, err
}

var (
	_ domain.TimelineRepository = timelineRepository{}
	_ domain.TimelineRepository = (*lockedTimeline)(nil)
)
