package manager

import (
	"context"

	"github.com/dmellis/chatlog/internal/model"
	"github.com/dmellis/chatlog/internal/store"
)

// Async variants run the blocking call on its own goroutine and deliver
// exactly one result on the returned channel. Cancelling the context
// abandons delivery; a filesystem scan that already started still runs
// to completion in the background.

// DatesResult is the outcome of DatesAsync.
type DatesResult struct {
	Dates []model.Date
	Err   error
}

// DatesAsync runs Dates in the background.
func (m *Manager) DatesAsync(ctx context.Context, account string, target model.Entity, mask model.EventMask) <-chan DatesResult {
	ch := make(chan DatesResult, 1)
	go func() {
		dates, err := m.Dates(account, target, mask)
		deliver(ctx, ch, DatesResult{Dates: dates, Err: err})
	}()
	return ch
}

// EventsResult is the outcome of EventsForDateAsync and
// FilteredEventsAsync.
type EventsResult struct {
	Events []model.Event
	Err    error
}

// EventsForDateAsync runs EventsForDate in the background.
func (m *Manager) EventsForDateAsync(ctx context.Context, account string, target model.Entity, mask model.EventMask, date model.Date) <-chan EventsResult {
	ch := make(chan EventsResult, 1)
	go func() {
		events, err := m.EventsForDate(account, target, mask, date)
		deliver(ctx, ch, EventsResult{Events: events, Err: err})
	}()
	return ch
}

// FilteredEventsAsync runs FilteredEvents in the background.
func (m *Manager) FilteredEventsAsync(ctx context.Context, account string, target model.Entity, mask model.EventMask, max int, filter store.EventFilter) <-chan EventsResult {
	ch := make(chan EventsResult, 1)
	go func() {
		events, err := m.FilteredEvents(account, target, mask, max, filter)
		deliver(ctx, ch, EventsResult{Events: events, Err: err})
	}()
	return ch
}

// EntitiesResult is the outcome of EntitiesAsync.
type EntitiesResult struct {
	Entities []model.Entity
	Err      error
}

// EntitiesAsync runs Entities in the background.
func (m *Manager) EntitiesAsync(ctx context.Context, account string) <-chan EntitiesResult {
	ch := make(chan EntitiesResult, 1)
	go func() {
		entities, err := m.Entities(account)
		deliver(ctx, ch, EntitiesResult{Entities: entities, Err: err})
	}()
	return ch
}

// SearchResult is the outcome of the search async variants.
type SearchResult struct {
	Hits []model.SearchHit
	Err  error
}

// SearchAsync runs Search in the background.
func (m *Manager) SearchAsync(ctx context.Context, text string, mask model.EventMask) <-chan SearchResult {
	ch := make(chan SearchResult, 1)
	go func() {
		hits, err := m.Search(text, mask)
		deliver(ctx, ch, SearchResult{Hits: hits, Err: err})
	}()
	return ch
}

// SearchInIdentifierAsync runs SearchInIdentifier in the background.
func (m *Manager) SearchInIdentifierAsync(ctx context.Context, account string, target model.Entity, mask model.EventMask, text string) <-chan SearchResult {
	ch := make(chan SearchResult, 1)
	go func() {
		hits, err := m.SearchInIdentifier(account, target, mask, text)
		deliver(ctx, ch, SearchResult{Hits: hits, Err: err})
	}()
	return ch
}

// AddEventAsync runs AddEvent in the background.
func (m *Manager) AddEventAsync(ctx context.Context, ev model.Event) <-chan error {
	ch := make(chan error, 1)
	go func() {
		deliver(ctx, ch, m.AddEvent(ev))
	}()
	return ch
}

func deliver[T any](ctx context.Context, ch chan<- T, result T) {
	select {
	case ch <- result:
	case <-ctx.Done():
	}
}
