// Package pidgin reads libpurple's plain-text and HTML conversation
// logs. The store is query-only; nothing ever writes here.
package pidgin

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dmellis/chatlog/internal/config"
	"github.com/dmellis/chatlog/internal/model"
	"github.com/dmellis/chatlog/internal/store"
	"go.uber.org/zap"
)

const (
	chatSuffix = ".chat"
	systemDir  = ".system"
)

// Store reads logs under basedir for the configured account bindings.
type Store struct {
	name     string
	basedir  string
	accounts []config.PidginAccount
	logger   *zap.Logger
}

// New returns a Pidgin log reader. Accounts without a binding are
// invisible to it.
func New(name, basedir string, accounts []config.PidginAccount, logger *zap.Logger) *Store {
	return &Store{name: name, basedir: basedir, accounts: accounts, logger: logger}
}

// Name returns the registered store name.
func (s *Store) Name() string { return s.name }

// accountDir resolves a logged account name to its libpurple directory.
func (s *Store) accountDir(account string) (string, bool) {
	for _, a := range s.accounts {
		if a.Account != account {
			continue
		}
		username := a.Username
		// IRC logs fold the server into the directory name.
		if a.Protocol == "irc" && a.Server != "" {
			username = username + "@" + a.Server
		}
		return filepath.Join(s.basedir, a.Protocol, username), true
	}
	return "", false
}

// conversationDir returns the directory holding one conversation's logs.
func (s *Store) conversationDir(account string, target model.Entity) (string, bool) {
	accDir, ok := s.accountDir(account)
	if !ok {
		return "", false
	}
	id := target.Identifier
	if target.Type == model.EntityRoom {
		id += chatSuffix
	}
	return filepath.Join(accDir, id), true
}

// cleanConversationID maps a directory name back to an identifier,
// reporting whether it was a chatroom.
func cleanConversationID(dir string) (id string, room bool) {
	id = dir
	if strings.HasSuffix(id, chatSuffix) {
		id = strings.TrimSuffix(id, chatSuffix)
		room = true
	}
	// Conflicting rooms get a numeric suffix; fold them together.
	id = strings.TrimSuffix(id, "#1")
	return id, room
}

// Exists reports whether the conversation has a log directory.
func (s *Store) Exists(account string, target model.Entity, mask model.EventMask) bool {
	if mask&model.MaskText == 0 {
		return false
	}
	dir, ok := s.conversationDir(account, target)
	if !ok {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// Dates lists the days with log files for the conversation, ascending.
func (s *Store) Dates(account string, target model.Entity, mask model.EventMask) ([]model.Date, error) {
	if mask&model.MaskText == 0 {
		return nil, nil
	}
	dir, ok := s.conversationDir(account, target)
	if !ok {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[model.Date]bool)
	var dates []model.Date
	for _, e := range entries {
		d, ok := fileDate(e.Name())
		if !ok || seen[d] {
			continue
		}
		seen[d] = true
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// EventsForDate parses every log file of that day, in filename order.
func (s *Store) EventsForDate(account string, target model.Entity, mask model.EventMask, date model.Date) ([]model.Event, error) {
	if mask&model.MaskText == 0 {
		return nil, nil
	}
	dir, ok := s.conversationDir(account, target)
	if !ok {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if d, ok := fileDate(e.Name()); ok && d == date {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var events []model.Event
	for _, name := range names {
		evs, err := s.parseFile(filepath.Join(dir, name), account, target)
		if err != nil {
			s.logger.Warn("skipping unreadable pidgin log",
				zap.String("path", filepath.Join(dir, name)), zap.Error(err))
			continue
		}
		events = append(events, evs...)
	}
	return events, nil
}

// FilteredEvents walks days newest first until max matching events are
// collected, returning them ascending.
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

// Entities lists the conversations logged for an account.
func (s *Store) Entities(account string) ([]model.Entity, error) {
	accDir, ok := s.accountDir(account)
	if !ok {
		return nil, nil
	}
	entries, err := os.ReadDir(accDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []model.Entity
	for _, e := range entries {
		if !e.IsDir() || e.Name() == systemDir {
			continue
		}
		id, room := cleanConversationID(e.Name())
		if room {
			out = append(out, model.NewRoom(id))
		} else {
			out = append(out, model.NewContact(id, id, ""))
		}
	}
	return out, nil
}

// Search scans every bound account's log files for the given text.
func (s *Store) Search(text string, mask model.EventMask) ([]model.SearchHit, error) {
	if mask&model.MaskText == 0 || text == "" {
		return nil, nil
	}
	var hits []model.SearchHit
	for _, a := range s.accounts {
		accDir, ok := s.accountDir(a.Account)
		if !ok {
			continue
		}
		convs, err := os.ReadDir(accDir)
		if err != nil {
			continue
		}
		for _, conv := range convs {
			if !conv.IsDir() || conv.Name() == systemDir {
				continue
			}
			hits = append(hits, s.searchDir(filepath.Join(accDir, conv.Name()), a.Account, conv.Name(), text)...)
		}
	}
	return hits, nil
}

// SearchInIdentifier is Search restricted to one conversation.
func (s *Store) SearchInIdentifier(account string, target model.Entity, mask model.EventMask, text string) ([]model.SearchHit, error) {
	if mask&model.MaskText == 0 || text == "" {
		return nil, nil
	}
	dir, ok := s.conversationDir(account, target)
	if !ok {
		return nil, nil
	}
	return s.searchDir(dir, account, filepath.Base(dir), text), nil
}

func (s *Store) searchDir(dir, account, convName, text string) []model.SearchHit {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	id, room := cleanConversationID(convName)
	hitType := model.HitText
	if room {
		hitType = model.HitTextRoom
	}
	needle := strings.ToLower(text)

	var hits []model.SearchHit
	for _, e := range entries {
		date, ok := fileDate(e.Name())
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(string(data)), needle) {
			hits = append(hits, model.SearchHit{
				Account: account,
				ID:      id,
				Type:    hitType,
				Date:    date,
			})
		}
	}
	return hits
}
