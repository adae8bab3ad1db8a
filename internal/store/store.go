// Package store defines the capability interfaces a log backend can
// implement. A backend always has a name; whether it can be read from
// or written to is expressed by which of Reader and Writer it satisfies,
// never by methods that may or may not be there at runtime.
package store

import (
	"errors"

	"github.com/dmellis/chatlog/internal/model"
)

// ErrPresent reports that an event with the same log id is already stored.
var ErrPresent = errors.New("event already present")

// ErrNotPresent reports that no matching record exists.
var ErrNotPresent = errors.New("event not present")

// EventFilter decides whether an event belongs in a filtered result set.
type EventFilter func(model.Event) bool

// Store is the minimal backend contract.
type Store interface {
	Name() string
}

// Reader is a backend that can be queried.
type Reader interface {
	Store

	// Exists reports whether any logs exist for the target conversation.
	Exists(account string, target model.Entity, mask model.EventMask) bool

	// Dates lists the days with logged events, ascending and unique.
	Dates(account string, target model.Entity, mask model.EventMask) ([]model.Date, error)

	// EventsForDate returns all events of one day in timestamp order.
	EventsForDate(account string, target model.Entity, mask model.EventMask, date model.Date) ([]model.Event, error)

	// FilteredEvents returns up to max of the most recent events passing
	// filter, ascending. A nil filter admits everything.
	FilteredEvents(account string, target model.Entity, mask model.EventMask, max int, filter EventFilter) ([]model.Event, error)

	// Entities lists the conversation targets known for an account.
	Entities(account string) ([]model.Entity, error)

	// Search returns the conversation days whose logs contain text,
	// across all accounts.
	Search(text string, mask model.EventMask) ([]model.SearchHit, error)

	// SearchInIdentifier is Search restricted to one conversation.
	SearchInIdentifier(account string, target model.Entity, mask model.EventMask, text string) ([]model.SearchHit, error)
}

// Writer is a backend that accepts new events. A Writer silently drops
// event kinds it does not persist; dropping is success, not an error.
type Writer interface {
	Store
	AddEvent(ev model.Event) error
}

type readOnly struct {
	Reader
}

// ReadOnly strips the Writer capability from a backend that has both,
// for registering the same implementation as a query-only store.
func ReadOnly(r Reader) Reader {
	return readOnly{r}
}
