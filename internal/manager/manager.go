// Package manager coordinates every registered log store behind one
// API: writes fan out to all writable stores, reads merge the results
// of all readable ones. Store failures on the read side degrade to
// partial results; on the write side one surviving store is enough.
package manager

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dmellis/chatlog/internal/cache"
	"github.com/dmellis/chatlog/internal/config"
	"github.com/dmellis/chatlog/internal/model"
	"github.com/dmellis/chatlog/internal/pidgin"
	"github.com/dmellis/chatlog/internal/store"
	"github.com/dmellis/chatlog/internal/xmlstore"
	"go.uber.org/zap"
)

// ErrDisabled is returned by AddEvent when logging is switched off.
var ErrDisabled = errors.New("logging is disabled")

// Manager owns the registered stores. The enabled flag is fixed at
// construction; flipping it means rebuilding the manager.
type Manager struct {
	enabled bool
	logger  *zap.Logger

	mu      sync.RWMutex
	names   map[string]bool
	readers []store.Reader
	writers []store.Writer
}

// New returns a manager with no stores registered.
func New(enabled bool, logger *zap.Logger) *Manager {
	return &Manager{
		enabled: enabled,
		logger:  logger,
		names:   make(map[string]bool),
	}
}

// FromConfig builds the standard store set: the writable primary XML
// store, the read-only legacy store, the write-only cache, and the
// Pidgin reader when account bindings exist.
func FromConfig(cfg *config.Config, cacheStore *cache.Store, logger *zap.Logger) (*Manager, error) {
	m := New(cfg.Enabled, logger)

	if err := m.RegisterStore(xmlstore.New("TpLogger", cfg.Log.Dir, logger)); err != nil {
		return nil, err
	}
	if cfg.Log.LegacyDir != "" {
		legacy := xmlstore.NewLegacy("Empathy", cfg.Log.LegacyDir, logger)
		if err := m.RegisterStore(store.ReadOnly(legacy)); err != nil {
			return nil, err
		}
	}
	if cacheStore != nil {
		if err := m.RegisterStore(cacheStore); err != nil {
			return nil, err
		}
	}
	if len(cfg.Pidgin.Accounts) > 0 {
		p := pidgin.New("Pidgin", cfg.Pidgin.Dir, cfg.Pidgin.Accounts, logger)
		if err := m.RegisterStore(p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RegisterStore adds a store under its name. Names are unique; the
// store joins the readable and writable sets according to which
// capability interfaces it implements. Later registrations are
// consulted first.
func (m *Manager) RegisterStore(s store.Store) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.names[s.Name()] {
		return fmt.Errorf("store %q already registered", s.Name())
	}

	registered := false
	if r, ok := s.(store.Reader); ok {
		m.readers = append([]store.Reader{r}, m.readers...)
		registered = true
	}
	if w, ok := s.(store.Writer); ok {
		m.writers = append([]store.Writer{w}, m.writers...)
		registered = true
	}
	if !registered {
		return fmt.Errorf("store %q is neither readable nor writable", s.Name())
	}

	m.names[s.Name()] = true
	return nil
}

// AddEvent writes the event to every writable store. It succeeds when
// at least one store accepted it; per-store failures are logged.
func (m *Manager) AddEvent(ev model.Event) error {
	if !m.enabled {
		return ErrDisabled
	}

	m.mu.RLock()
	writers := m.writers
	m.mu.RUnlock()

	if len(writers) == 0 {
		return errors.New("no writable store registered")
	}

	var lastErr error
	succeeded := 0
	for _, w := range writers {
		if err := w.AddEvent(ev); err != nil {
			lastErr = err
			m.logger.Error("store rejected event",
				zap.String("store", w.Name()),
				zap.String("log_id", ev.Info().LogID),
				zap.Error(err))
			continue
		}
		succeeded++
	}
	if succeeded == 0 {
		return fmt.Errorf("no store accepted the event: %w", lastErr)
	}
	return nil
}

// Exists reports whether any readable store has logs for the target.
func (m *Manager) Exists(account string, target model.Entity, mask model.EventMask) bool {
	for _, r := range m.snapshot() {
		if r.Exists(account, target, mask) {
			return true
		}
	}
	return false
}

// Dates returns the union of all stores' days, ascending and unique.
func (m *Manager) Dates(account string, target model.Entity, mask model.EventMask) ([]model.Date, error) {
	seen := make(map[model.Date]bool)
	var out []model.Date
	for _, r := range m.snapshot() {
		dates, err := r.Dates(account, target, mask)
		if err != nil {
			m.degrade(r, "dates", err)
			continue
		}
		for _, d := range dates {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// EventsForDate concatenates every store's events for that day in
// registration order. Events duplicated across stores stay duplicated;
// callers wanting exactly-once semantics key on log ids.
func (m *Manager) EventsForDate(account string, target model.Entity, mask model.EventMask, date model.Date) ([]model.Event, error) {
	var out []model.Event
	for _, r := range m.snapshot() {
		events, err := r.EventsForDate(account, target, mask, date)
		if err != nil {
			m.degrade(r, "events for date", err)
			continue
		}
		out = append(out, events...)
	}
	return out, nil
}

// FilteredEvents merges each store's most recent matching events,
// keeping the max newest overall and returning them ascending. On a
// timestamp tie the earlier-consulted store wins.
func (m *Manager) FilteredEvents(account string, target model.Entity, mask model.EventMask, max int, filter store.EventFilter) ([]model.Event, error) {
	if max <= 0 {
		return nil, nil
	}

	retained := make([]model.Event, 0, max)
	for _, r := range m.snapshot() {
		events, err := r.FilteredEvents(account, target, mask, max, filter)
		if err != nil {
			m.degrade(r, "filtered events", err)
			continue
		}
		for _, ev := range events {
			if len(retained) < max {
				retained = append(retained, ev)
				continue
			}
			i := oldestIndex(retained)
			if retained[i].Info().Timestamp.Before(ev.Info().Timestamp) {
				retained[i] = ev
			}
		}
	}

	sort.SliceStable(retained, func(i, j int) bool {
		return retained[i].Info().Timestamp.Before(retained[j].Info().Timestamp)
	})
	return retained, nil
}

func oldestIndex(events []model.Event) int {
	oldest := 0
	for i := 1; i < len(events); i++ {
		if events[i].Info().Timestamp.Before(events[oldest].Info().Timestamp) {
			oldest = i
		}
	}
	return oldest
}

// Entities returns the union of all stores' conversation targets,
// deduplicated by identifier and type.
func (m *Manager) Entities(account string) ([]model.Entity, error) {
	type key struct {
		typ model.EntityType
		id  string
	}
	seen := make(map[key]bool)
	var out []model.Entity
	for _, r := range m.snapshot() {
		entities, err := r.Entities(account)
		if err != nil {
			m.degrade(r, "entities", err)
			continue
		}
		for _, e := range entities {
			k := key{e.Type, e.Identifier}
			if !seen[k] {
				seen[k] = true
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// Search concatenates every store's hits.
func (m *Manager) Search(text string, mask model.EventMask) ([]model.SearchHit, error) {
	var out []model.SearchHit
	for _, r := range m.snapshot() {
		hits, err := r.Search(text, mask)
		if err != nil {
			m.degrade(r, "search", err)
			continue
		}
		out = append(out, hits...)
	}
	return out, nil
}

// SearchInIdentifier concatenates every store's hits for one
// conversation.
func (m *Manager) SearchInIdentifier(account string, target model.Entity, mask model.EventMask, text string) ([]model.SearchHit, error) {
	var out []model.SearchHit
	for _, r := range m.snapshot() {
		hits, err := r.SearchInIdentifier(account, target, mask, text)
		if err != nil {
			m.degrade(r, "search in identifier", err)
			continue
		}
		out = append(out, hits...)
	}
	return out, nil
}

func (m *Manager) snapshot() []store.Reader {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readers
}

// degrade logs a read-side store failure; reads return partial results
// rather than failing outright.
func (m *Manager) degrade(r store.Reader, op string, err error) {
	m.logger.Warn("store degraded during read",
		zap.String("store", r.Name()),
		zap.String("op", op),
		zap.Error(err))
}
