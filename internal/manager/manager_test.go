package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmellis/chatlog/internal/model"
	"github.com/dmellis/chatlog/internal/store"
	"go.uber.org/zap"
)

// spyStore is a readable and writable fake recording every write.
type spyStore struct {
	name    string
	added   []model.Event
	addErr  error
	readErr error

	exists   bool
	dates    []model.Date
	events   []model.Event
	entities []model.Entity
	hits     []model.SearchHit
}

func (s *spyStore) Name() string { return s.name }

func (s *spyStore) AddEvent(ev model.Event) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.added = append(s.added, ev)
	return nil
}

func (s *spyStore) Exists(string, model.Entity, model.EventMask) bool { return s.exists }

func (s *spyStore) Dates(string, model.Entity, model.EventMask) ([]model.Date, error) {
	return s.dates, s.readErr
}

func (s *spyStore) EventsForDate(string, model.Entity, model.EventMask, model.Date) ([]model.Event, error) {
	return s.events, s.readErr
}

func (s *spyStore) FilteredEvents(_ string, _ model.Entity, _ model.EventMask, max int, filter store.EventFilter) ([]model.Event, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	var out []model.Event
	for _, ev := range s.events {
		if filter == nil || filter(ev) {
			out = append(out, ev)
		}
	}
	if len(out) > max {
		out = out[len(out)-max:]
	}
	return out, nil
}

func (s *spyStore) Entities(string) ([]model.Entity, error) { return s.entities, s.readErr }

func (s *spyStore) Search(string, model.EventMask) ([]model.SearchHit, error) {
	return s.hits, s.readErr
}

func (s *spyStore) SearchInIdentifier(string, model.Entity, model.EventMask, string) ([]model.SearchHit, error) {
	return s.hits, s.readErr
}

func testManager(t *testing.T, enabled bool, stores ...store.Store) *Manager {
	t.Helper()
	m := New(enabled, zap.NewNop())
	for _, s := range stores {
		if err := m.RegisterStore(s); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

func textAt(logID string, ts time.Time) *model.TextEvent {
	return &model.TextEvent{
		EventInfo: model.EventInfo{
			Account:   "gabble/jabber/user",
			LogID:     logID,
			Sender:    model.NewContact("user2@collabora.co.uk", "", ""),
			Receiver:  model.NewSelf("me", ""),
			Timestamp: ts,
		},
		MessageType: model.MessageNormal,
		SignalType:  model.SignalReceived,
		Message:     "m",
	}
}

var (
	day10 = model.Date{Year: 2010, Month: time.December, Day: 10}
	day11 = model.Date{Year: 2010, Month: time.December, Day: 11}
	day12 = model.Date{Year: 2010, Month: time.December, Day: 12}

	anyTarget = model.NewContact("user2@collabora.co.uk", "", "")
)

func TestRegisterStoreRejectsDuplicateName(t *testing.T) {
	m := testManager(t, true, &spyStore{name: "A"})
	if err := m.RegisterStore(&spyStore{name: "A"}); err == nil {
		t.Error("duplicate name should be rejected")
	}
	if err := m.RegisterStore(&spyStore{name: "B"}); err != nil {
		t.Errorf("distinct name rejected: %v", err)
	}
}

func TestAddEventDisabledTouchesNoStore(t *testing.T) {
	spy := &spyStore{name: "A"}
	m := testManager(t, false, spy)

	err := m.AddEvent(textAt("l1", time.Now()))
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("error = %v, want ErrDisabled", err)
	}
	if len(spy.added) != 0 {
		t.Error("disabled manager must not reach any store")
	}
}

func TestAddEventSucceedsWhenOneStoreAccepts(t *testing.T) {
	bad := &spyStore{name: "bad", addErr: errors.New("disk full")}
	good := &spyStore{name: "good"}
	m := testManager(t, true, bad, good)

	if err := m.AddEvent(textAt("l1", time.Now())); err != nil {
		t.Fatalf("one healthy store should be enough: %v", err)
	}
	if len(good.added) != 1 {
		t.Error("healthy store did not receive the event")
	}
}

func TestAddEventFailsWhenAllStoresFail(t *testing.T) {
	cause := errors.New("disk full")
	m := testManager(t, true,
		&spyStore{name: "a", addErr: errors.New("other")},
		&spyStore{name: "b", addErr: cause})

	err := m.AddEvent(textAt("l1", time.Now()))
	if err == nil {
		t.Fatal("expected aggregate failure")
	}
	// The most recently consulted failure is preserved as the cause.
	if !errors.Is(err, cause) {
		t.Errorf("error = %v, want wrapped %v", err, cause)
	}
}

func TestAddEventNoWriters(t *testing.T) {
	m := testManager(t, true, store.ReadOnly(&spyStore{name: "ro"}))
	if err := m.AddEvent(textAt("l1", time.Now())); err == nil {
		t.Error("expected error with no writable store")
	}
}

func TestDatesUnionDedupSorted(t *testing.T) {
	m := testManager(t, true,
		&spyStore{name: "a", dates: []model.Date{day12, day10}},
		&spyStore{name: "b", dates: []model.Date{day10, day11}})

	dates, err := m.Dates("acc", anyTarget, model.MaskAny)
	if err != nil {
		t.Fatal(err)
	}
	want := []model.Date{day10, day11, day12}
	if len(dates) != len(want) {
		t.Fatalf("got %d dates, want %d: %v", len(dates), len(want), dates)
	}
	for i := range want {
		if dates[i] != want[i] {
			t.Errorf("dates[%d] = %v, want %v", i, dates[i], want[i])
		}
	}
}

func TestEventsForDateConcatKeepsDuplicates(t *testing.T) {
	ts := time.Date(2010, time.December, 10, 12, 0, 0, 0, time.UTC)
	shared := textAt("same-id", ts)
	first := &spyStore{name: "first", events: []model.Event{shared}}
	second := &spyStore{name: "second", events: []model.Event{shared}}
	m := testManager(t, true, first, second)

	events, err := m.EventsForDate("acc", anyTarget, model.MaskAny, day10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2 (cross-store duplicates survive)", len(events))
	}
}

func TestEventsForDateLIFOOrder(t *testing.T) {
	ts := time.Date(2010, time.December, 10, 12, 0, 0, 0, time.UTC)
	a := &spyStore{name: "a", events: []model.Event{textAt("from-a", ts)}}
	b := &spyStore{name: "b", events: []model.Event{textAt("from-b", ts)}}
	m := testManager(t, true, a, b)

	events, err := m.EventsForDate("acc", anyTarget, model.MaskAny, day10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events", len(events))
	}
	// The store registered last is consulted first.
	if events[0].Info().LogID != "from-b" || events[1].Info().LogID != "from-a" {
		t.Errorf("order = %s, %s", events[0].Info().LogID, events[1].Info().LogID)
	}
}

func TestFilteredEventsKeepsNewestAcrossStores(t *testing.T) {
	base := time.Date(2010, time.December, 10, 12, 0, 0, 0, time.UTC)
	a := &spyStore{name: "a", events: []model.Event{
		textAt("a1", base.Add(1*time.Minute)),
		textAt("a2", base.Add(5*time.Minute)),
	}}
	b := &spyStore{name: "b", events: []model.Event{
		textAt("b1", base.Add(3*time.Minute)),
		textAt("b2", base.Add(4*time.Minute)),
	}}
	m := testManager(t, true, a, b)

	events, err := m.FilteredEvents("acc", anyTarget, model.MaskAny, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	ids := []string{events[0].Info().LogID, events[1].Info().LogID, events[2].Info().LogID}
	// b1(+3), b2(+4), a2(+5) survive; a1(+1) is the global oldest.
	want := []string{"b1", "b2", "a2"}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids = %v, want %v", ids, want)
			break
		}
	}
}

func TestFilteredEventsTieKeepsFirstSeen(t *testing.T) {
	ts := time.Date(2010, time.December, 10, 12, 0, 0, 0, time.UTC)
	first := &spyStore{name: "first", events: []model.Event{textAt("old-first", ts)}}
	later := &spyStore{name: "later", events: []model.Event{textAt("tied-later", ts)}}
	// "later" is registered last, so it is consulted first and fills
	// the single slot; the tie must not evict it.
	m := testManager(t, true, first, later)

	events, err := m.FilteredEvents("acc", anyTarget, model.MaskAny, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Info().LogID != "tied-later" {
		t.Errorf("events = %v, want the first-seen event retained", events)
	}
}

func TestFilteredEventsZeroMax(t *testing.T) {
	m := testManager(t, true, &spyStore{name: "a", events: []model.Event{textAt("x", time.Now())}})
	events, err := m.FilteredEvents("acc", anyTarget, model.MaskAny, 0, nil)
	if err != nil || len(events) != 0 {
		t.Errorf("events = %v, err = %v", events, err)
	}
}

func TestEntitiesDedupByIdentifierAndType(t *testing.T) {
	contact := model.NewContact("user2@collabora.co.uk", "", "")
	sameID := model.NewRoom("user2@collabora.co.uk")
	m := testManager(t, true,
		&spyStore{name: "a", entities: []model.Entity{contact}},
		&spyStore{name: "b", entities: []model.Entity{contact, sameID}})

	entities, err := m.Entities("acc")
	if err != nil {
		t.Fatal(err)
	}
	if len(entities) != 2 {
		t.Errorf("got %d entities, want 2 (contact + room share an id)", len(entities))
	}
}

func TestSearchConcatenates(t *testing.T) {
	hit := model.SearchHit{Account: "acc", ID: "peer", Type: model.HitText, Date: day10}
	m := testManager(t, true,
		&spyStore{name: "a", hits: []model.SearchHit{hit}},
		&spyStore{name: "b", hits: []model.SearchHit{hit}})

	hits, err := m.Search("text", model.MaskAny)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Errorf("got %d hits, want 2 (no cross-store dedup)", len(hits))
	}
}

func TestExistsShortCircuitOR(t *testing.T) {
	m := testManager(t, true,
		&spyStore{name: "a", exists: false},
		&spyStore{name: "b", exists: true})
	if !m.Exists("acc", anyTarget, model.MaskAny) {
		t.Error("one store suffices for existence")
	}

	m = testManager(t, true, &spyStore{name: "a"})
	if m.Exists("acc", anyTarget, model.MaskAny) {
		t.Error("no store has logs")
	}
}

func TestReadsDegradeOnStoreFailure(t *testing.T) {
	broken := &spyStore{name: "broken", readErr: errors.New("io error")}
	healthy := &spyStore{name: "healthy", dates: []model.Date{day10}}
	m := testManager(t, true, broken, healthy)

	dates, err := m.Dates("acc", anyTarget, model.MaskAny)
	if err != nil {
		t.Fatalf("reads must degrade, not fail: %v", err)
	}
	if len(dates) != 1 {
		t.Errorf("got %d dates, want the healthy store's 1", len(dates))
	}
}

func TestDatesAsyncDelivers(t *testing.T) {
	m := testManager(t, true, &spyStore{name: "a", dates: []model.Date{day10}})

	select {
	case res := <-m.DatesAsync(context.Background(), "acc", anyTarget, model.MaskAny):
		if res.Err != nil || len(res.Dates) != 1 {
			t.Errorf("result = %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for async result")
	}
}

func TestAddEventAsyncDelivers(t *testing.T) {
	spy := &spyStore{name: "a"}
	m := testManager(t, true, spy)

	select {
	case err := <-m.AddEventAsync(context.Background(), textAt("l1", time.Now())):
		if err != nil {
			t.Errorf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for async result")
	}
}
