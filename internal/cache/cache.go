// Package cache is the SQLite write-through store keeping short-lived
// message metadata (pending acknowledgements) and long-lived per-day
// message counters. It is never part of the read fan-out; callers that
// need pending state or frequency data use its direct API.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmellis/chatlog/internal/model"
	"github.com/dmellis/chatlog/internal/store"
	sqlite "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Store implements store.Writer over the cache database.
type Store struct {
	name   string
	db     *DB
	logger *zap.Logger
}

// NewStore wraps an opened, migrated database.
func NewStore(name string, db *DB, logger *zap.Logger) *Store {
	return &Store{name: name, db: db, logger: logger}
}

// Name returns the registered store name.
func (s *Store) Name() string { return s.name }

// AddEvent caches a text event and bumps its conversation's counter.
// A second event with the same log id returns store.ErrPresent and
// leaves the counter untouched. Non-text events are dropped.
func (s *Store) AddEvent(ev model.Event) error {
	text, ok := ev.(*model.TextEvent)
	if !ok {
		return nil
	}

	id, room := targetOf(text)

	pending := sql.NullInt64{}
	if text.PendingID >= 0 {
		pending = sql.NullInt64{Int64: int64(text.PendingID), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO message_cache (channel, account, pending_msg_id, log_identifier, chat_identifier, chatroom, date)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))`,
		text.ChannelPath, text.Account, pending, text.LogID, id, room)
	if err != nil {
		var sqliteErr sqlite.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite.ErrConstraint {
			s.logger.Debug("duplicate log id", zap.String("log_id", text.LogID))
			return fmt.Errorf("log id %s: %w", text.LogID, store.ErrPresent)
		}
		return fmt.Errorf("cache insert: %w", err)
	}

	switch text.SignalType {
	case model.SignalSent, model.SignalReceived:
		return s.bumpCounter(text.Account, id, room, model.DateOf(text.Timestamp))
	}
	return nil
}

func targetOf(ev *model.TextEvent) (id string, room bool) {
	if ev.Receiver.Type == model.EntityRoom {
		return ev.Receiver.Identifier, true
	}
	if ev.Sender.Type == model.EntitySelf {
		return ev.Receiver.Identifier, false
	}
	return ev.Sender.Identifier, false
}

// bumpCounter runs SELECT then INSERT or UPDATE as two statements; the
// daemon is the only writer of this database.
func (s *Store) bumpCounter(account, identifier string, room bool, date model.Date) error {
	var count int
	err := s.db.QueryRow(`
		SELECT messages FROM messagecounts
		WHERE account = ? AND identifier = ? AND chatroom = ? AND date = ?`,
		account, identifier, room, date.String()).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = s.db.Exec(`
			INSERT INTO messagecounts (account, identifier, chatroom, date, messages)
			VALUES (?, ?, ?, ?, 1)`,
			account, identifier, room, date.String())
		if err != nil {
			return fmt.Errorf("insert counter: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read counter: %w", err)
	}
	_, err = s.db.Exec(`
		UPDATE messagecounts SET messages = ?
		WHERE account = ? AND identifier = ? AND chatroom = ? AND date = ?`,
		count+1, account, identifier, room, date.String())
	if err != nil {
		return fmt.Errorf("update counter: %w", err)
	}
	return nil
}

// PendingMessage is a cached message awaiting acknowledgement.
type PendingMessage struct {
	LogID          string
	Channel        string
	Account        string
	PendingID      int
	ChatIdentifier string
	Chatroom       bool
}

// PendingMessages lists unacknowledged messages, oldest first. An empty
// channel lists them across all channels.
func (s *Store) PendingMessages(channel string) ([]PendingMessage, error) {
	query := `
		SELECT log_identifier, channel, account, pending_msg_id, chat_identifier, chatroom
		FROM message_cache WHERE pending_msg_id IS NOT NULL`
	args := []any{}
	if channel != "" {
		query += ` AND channel = ?`
		args = append(args, channel)
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []PendingMessage
	for rows.Next() {
		var p PendingMessage
		if err := rows.Scan(&p.LogID, &p.Channel, &p.Account, &p.PendingID, &p.ChatIdentifier, &p.Chatroom); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AcknowledgeByMsgID clears the pending flag of the message with the
// given middleware id on a channel. store.ErrNotPresent if no match.
func (s *Store) AcknowledgeByMsgID(channel string, pendingID int) error {
	res, err := s.db.Exec(`
		UPDATE message_cache SET pending_msg_id = NULL
		WHERE channel = ? AND pending_msg_id = ?`,
		channel, pendingID)
	if err != nil {
		return fmt.Errorf("acknowledge by msg id: %w", err)
	}
	return checkAffected(res)
}

// Acknowledge clears the pending flag of one cached message by log id.
func (s *Store) Acknowledge(logID string) error {
	res, err := s.db.Exec(`
		UPDATE message_cache SET pending_msg_id = NULL
		WHERE log_identifier = ? AND pending_msg_id IS NOT NULL`,
		logID)
	if err != nil {
		return fmt.Errorf("acknowledge: %w", err)
	}
	return checkAffected(res)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotPresent
	}
	return nil
}

// LogIDsOlderThan lists cached log ids on a channel inserted at or
// before the given instant.
func (s *Store) LogIDsOlderThan(channel string, t time.Time) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT log_identifier FROM message_cache
		WHERE channel = ? AND date <= datetime(?, 'unixepoch')
		ORDER BY rowid`,
		channel, t.Unix())
	if err != nil {
		return nil, fmt.Errorf("list log ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MostRecentDate returns the last day a conversation saw traffic.
func (s *Store) MostRecentDate(account, identifier string) (model.Date, error) {
	var t time.Time
	err := s.db.QueryRow(`
		SELECT date FROM messagecounts
		WHERE account = ? AND identifier = ?
		ORDER BY date DESC LIMIT 1`,
		account, identifier).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Date{}, store.ErrNotPresent
	}
	if err != nil {
		return model.Date{}, fmt.Errorf("most recent date: %w", err)
	}
	return model.DateOf(t), nil
}

// Frequency scores how actively a conversation is used: each day's
// message count is discounted by its age in days.
func (s *Store) Frequency(account, identifier string) (float64, error) {
	var freq sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT SUM(messages / ROUND(JULIANDAY('now') - JULIANDAY(date) + 1))
		FROM messagecounts
		WHERE account = ? AND identifier = ?`,
		account, identifier).Scan(&freq)
	if err != nil {
		return 0, fmt.Errorf("frequency: %w", err)
	}
	return freq.Float64, nil
}

// Entities lists the conversations the counter table knows for an
// account.
func (s *Store) Entities(account string) ([]model.Entity, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT identifier, chatroom FROM messagecounts
		WHERE account = ?`,
		account)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Entity
	for rows.Next() {
		var id string
		var room bool
		if err := rows.Scan(&id, &room); err != nil {
			return nil, err
		}
		if room {
			out = append(out, model.NewRoom(id))
		} else {
			out = append(out, model.NewContact(id, id, ""))
		}
	}
	return out, rows.Err()
}

// Purge drops cache rows older than the retention window. Counters are
// permanent and survive purging.
func (s *Store) Purge(retention time.Duration) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM message_cache WHERE date < datetime('now', ?)`,
		fmt.Sprintf("-%d seconds", int64(retention.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	return res.RowsAffected()
}
