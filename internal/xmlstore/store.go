// Package xmlstore persists text events as one XML document per
// conversation per day, in the on-disk dialect Empathy and its
// successors share. The same implementation serves both the writable
// primary store and the read-only legacy store; the legacy flag only
// changes how the cm_id attribute is interpreted on parse.
package xmlstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmellis/chatlog/internal/model"
	"go.uber.org/zap"
)

const (
	logHeader = "<?xml version='1.0' encoding='utf-8'?>\n" +
		"<?xml-stylesheet type=\"text/xsl\" href=\"log-store-xml.xsl\"?>\n" +
		"<log>\n"
	logFooter = "</log>\n"
	logExt    = ".log"

	chatroomsDir = "chatrooms"
)

// Store is an XML log store rooted at a base directory.
type Store struct {
	name    string
	basedir string
	legacy  bool
	logger  *zap.Logger
}

// New returns a store writing and reading under basedir.
func New(name, basedir string, logger *zap.Logger) *Store {
	return &Store{name: name, basedir: basedir, logger: logger}
}

// NewLegacy returns a store reading pre-existing logs whose cm_id
// attribute holds the numeric pending message id instead of a log id.
// Callers register it read-only.
func NewLegacy(name, basedir string, logger *zap.Logger) *Store {
	return &Store{name: name, basedir: basedir, legacy: true, logger: logger}
}

// Name returns the registered store name.
func (s *Store) Name() string { return s.name }

// AddEvent appends a text message to the day file of its conversation.
// Non-text events are accepted and dropped. Text events carrying a
// signal other than sent or received cannot be represented in this
// format and are rejected.
func (s *Store) AddEvent(ev model.Event) error {
	text, ok := ev.(*model.TextEvent)
	if !ok {
		return nil
	}

	switch text.SignalType {
	case model.SignalSent, model.SignalReceived:
	default:
		s.logger.Warn("signal not representable in XML logs",
			zap.String("signal", string(text.SignalType)),
			zap.String("account", text.Account))
		return fmt.Errorf("cannot log %q text event", text.SignalType)
	}
	if text.Message == "" {
		return errors.New("refusing to log an empty message")
	}

	id, room := conversationTarget(text)
	path := s.filePath(text.Account, id, room, model.DateOf(text.Timestamp))
	return s.appendMessage(path, renderMessage(text))
}

// conversationTarget picks the directory a message files under: the
// room for chatroom traffic, otherwise the remote peer.
func conversationTarget(ev *model.TextEvent) (id string, room bool) {
	if ev.Receiver.Type == model.EntityRoom {
		return ev.Receiver.Identifier, true
	}
	if ev.Sender.Type == model.EntitySelf {
		return ev.Receiver.Identifier, false
	}
	return ev.Sender.Identifier, false
}

// appendMessage writes msg into the day file, creating it with header
// and footer on first use, otherwise splicing before the footer.
func (s *Store) appendMessage(path, msg string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if errors.Is(err, os.ErrNotExist) {
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("create log file: %w", err)
		}
		_, err = f.WriteString(logHeader + msg + logFooter)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		return err
	}
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	if _, err := f.Seek(-int64(len(logFooter)), io.SeekEnd); err != nil {
		_ = f.Close()
		return fmt.Errorf("seek past footer: %w", err)
	}
	_, err = f.WriteString(msg + logFooter)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}
