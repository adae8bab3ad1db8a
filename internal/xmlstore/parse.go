package xmlstore

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmellis/chatlog/internal/model"
	"go.uber.org/zap"
)

// timeAttrLayout is the UTC wall-clock format of the time attribute.
const timeAttrLayout = "20060102T15:04:05"

type xmlLog struct {
	XMLName  xml.Name     `xml:"log"`
	Messages []xmlMessage `xml:"message"`
}

type xmlMessage struct {
	Time   string `xml:"time,attr"`
	CmID   string `xml:"cm_id,attr"`
	ID     string `xml:"id,attr"`
	Name   string `xml:"name,attr"`
	Token  string `xml:"token,attr"`
	IsUser bool   `xml:"isuser,attr"`
	Type   string `xml:"type,attr"`
	Body   string `xml:",chardata"`
}

// renderMessage serializes one text event as a message element. The
// attribute order is fixed; readers of these files exist outside this
// codebase.
func renderMessage(ev *model.TextEvent) string {
	var b strings.Builder
	b.WriteString("<message time='")
	b.WriteString(ev.Timestamp.UTC().Format(timeAttrLayout))
	b.WriteString("' cm_id='")
	b.WriteString(escapeMarkup(ev.LogID))
	b.WriteString("' id='")
	b.WriteString(escapeMarkup(ev.Sender.Identifier))
	b.WriteString("' name='")
	b.WriteString(escapeMarkup(ev.Sender.Alias))
	b.WriteString("' token='")
	b.WriteString(escapeMarkup(ev.Sender.AvatarToken))
	b.WriteString("' isuser='")
	b.WriteString(strconv.FormatBool(ev.Sender.Type == model.EntitySelf))
	b.WriteString("' type='")
	b.WriteString(string(ev.MessageType))
	b.WriteString("'>")
	b.WriteString(escapeMarkup(ev.Message))
	b.WriteString("</message>\n")
	return b.String()
}

var markupEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	"\"", "&quot;",
)

func escapeMarkup(s string) string {
	return markupEscaper.Replace(s)
}

// parseFile decodes one day file into events for the given conversation.
func (s *Store) parseFile(path, account, id string, room bool) ([]model.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	var doc xmlLog
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	events := make([]model.Event, 0, len(doc.Messages))
	for _, msg := range doc.Messages {
		ev, err := s.eventFromMessage(msg, account, id, room)
		if err != nil {
			s.logger.Warn("skipping malformed message",
				zap.String("path", path), zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *Store) eventFromMessage(msg xmlMessage, account, id string, room bool) (model.Event, error) {
	ts, err := time.Parse(timeAttrLayout, msg.Time)
	if err != nil {
		return nil, fmt.Errorf("bad time attribute %q: %w", msg.Time, err)
	}

	var sender model.Entity
	if msg.IsUser {
		sender = model.NewSelf(msg.ID, msg.Name)
	} else {
		sender = model.NewContact(msg.ID, msg.Name, msg.Token)
	}

	var receiver model.Entity
	switch {
	case room:
		receiver = model.NewRoom(id)
	case msg.IsUser:
		receiver = model.NewContact(id, id, "")
	default:
		receiver = model.NewSelf(account, account)
	}

	logID := msg.CmID
	pendingID := model.PendingAcknowledged
	if s.legacy {
		// Old logs stored the numeric pending message id where newer
		// ones store the log id; synthesize a stable id instead.
		pendingID, err = strconv.Atoi(msg.CmID)
		if err != nil {
			pendingID = model.PendingUnknown
		}
		logID = model.LogToken(account+msg.ID, ts.Unix(), pendingID)
	}

	signal := model.SignalReceived
	if msg.IsUser {
		signal = model.SignalSent
	}

	return &model.TextEvent{
		EventInfo: model.EventInfo{
			Account:   account,
			LogID:     logID,
			Sender:    sender,
			Receiver:  receiver,
			Timestamp: ts,
		},
		MessageType: model.ParseMessageType(msg.Type),
		SignalType:  signal,
		Message:     msg.Body,
		PendingID:   pendingID,
	}, nil
}
