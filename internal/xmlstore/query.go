package xmlstore

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dmellis/chatlog/internal/model"
	"github.com/dmellis/chatlog/internal/store"
)

// Exists reports whether the conversation has a log directory.
func (s *Store) Exists(account string, target model.Entity, mask model.EventMask) bool {
	if mask&model.MaskText == 0 {
		return false
	}
	dir := s.conversationDir(account, target.Identifier, target.Type == model.EntityRoom)
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// Dates lists the days with log files for the conversation, ascending.
func (s *Store) Dates(account string, target model.Entity, mask model.EventMask) ([]model.Date, error) {
	if mask&model.MaskText == 0 {
		return nil, nil
	}
	dir := s.conversationDir(account, target.Identifier, target.Type == model.EntityRoom)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var dates []model.Date
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), logExt) {
			continue
		}
		d, err := model.ParseKey(strings.TrimSuffix(e.Name(), logExt))
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// EventsForDate parses the day file of the conversation.
func (s *Store) EventsForDate(account string, target model.Entity, mask model.EventMask, date model.Date) ([]model.Event, error) {
	if mask&model.MaskText == 0 {
		return nil, nil
	}
	room := target.Type == model.EntityRoom
	path := s.filePath(account, target.Identifier, room, date)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return s.parseFile(path, account, target.Identifier, room)
}

// FilteredEvents walks day files newest first until max matching events
// are collected, returning them ascending.
func (s *Store) FilteredEvents(account string, target model.Entity, mask model.EventMask, max int, filter store.EventFilter) ([]model.Event, error) {
	dates, err := s.Dates(account, target, mask)
	if err != nil || max <= 0 {
		return nil, err
	}

	var out []model.Event
	for i := len(dates) - 1; i >= 0 && len(out) < max; i-- {
		events, err := s.EventsForDate(account, target, mask, dates[i])
		if err != nil {
			return nil, err
		}
		var kept []model.Event
		for _, ev := range events {
			if filter == nil || filter(ev) {
				kept = append(kept, ev)
			}
		}
		out = append(kept, out...)
	}
	if len(out) > max {
		out = out[len(out)-max:]
	}
	return out, nil
}

// Entities lists the conversations logged for an account. Rooms live
// under the chatrooms subdirectory.
func (s *Store) Entities(account string) ([]model.Entity, error) {
	dir := filepath.Join(s.basedir, escapeAccount(account))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []model.Entity
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if e.Name() != chatroomsDir {
			out = append(out, model.NewContact(e.Name(), e.Name(), ""))
			continue
		}
		rooms, err := os.ReadDir(filepath.Join(dir, chatroomsDir))
		if err != nil {
			continue
		}
		for _, r := range rooms {
			if r.IsDir() {
				out = append(out, model.NewRoom(r.Name()))
			}
		}
	}
	return out, nil
}

// Search scans every log file under the store for the given text.
func (s *Store) Search(text string, mask model.EventMask) ([]model.SearchHit, error) {
	if mask&model.MaskText == 0 || text == "" {
		return nil, nil
	}

	accounts, err := os.ReadDir(s.basedir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var hits []model.SearchHit
	for _, acc := range accounts {
		if !acc.IsDir() {
			continue
		}
		accDir := filepath.Join(s.basedir, acc.Name())
		convs, err := os.ReadDir(accDir)
		if err != nil {
			continue
		}
		for _, conv := range convs {
			if !conv.IsDir() {
				continue
			}
			if conv.Name() != chatroomsDir {
				hits = append(hits, s.searchDir(filepath.Join(accDir, conv.Name()), acc.Name(), conv.Name(), false, text)...)
				continue
			}
			rooms, err := os.ReadDir(filepath.Join(accDir, chatroomsDir))
			if err != nil {
				continue
			}
			for _, room := range rooms {
				if room.IsDir() {
					hits = append(hits, s.searchDir(filepath.Join(accDir, chatroomsDir, room.Name()), acc.Name(), room.Name(), true, text)...)
				}
			}
		}
	}
	return hits, nil
}

// SearchInIdentifier is Search restricted to one conversation.
func (s *Store) SearchInIdentifier(account string, target model.Entity, mask model.EventMask, text string) ([]model.SearchHit, error) {
	if mask&model.MaskText == 0 || text == "" {
		return nil, nil
	}
	room := target.Type == model.EntityRoom
	dir := s.conversationDir(account, target.Identifier, room)
	return s.searchDir(dir, escapeAccount(account), escapeID(target.Identifier), room, text), nil
}

// searchDir matches the escaped query against the raw bytes of each day
// file, case folded. Matching raw markup means queries behave the same
// as they did against these files historically.
func (s *Store) searchDir(dir, accountDir, id string, room bool, text string) []model.SearchHit {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	needle := strings.ToLower(escapeMarkup(text))
	hitType := model.HitText
	if room {
		hitType = model.HitTextRoom
	}

	var hits []model.SearchHit
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), logExt) {
			continue
		}
		date, err := model.ParseKey(strings.TrimSuffix(e.Name(), logExt))
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(string(data)), needle) {
			hits = append(hits, model.SearchHit{
				Account: unescapeAccount(accountDir),
				ID:      id,
				Type:    hitType,
				Date:    date,
			})
		}
	}
	return hits
}
