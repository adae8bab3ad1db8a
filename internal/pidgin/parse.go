package pidgin

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dmellis/chatlog/internal/model"
)

var (
	headerTxtRe  = regexp.MustCompile(`Conversation with (.+) at (.+) on (.+) \((.+)\)`)
	headerHTMLRe = regexp.MustCompile(`<h3>Conversation with (.+) at (.+) on (.+) \((.+)\)</h3>`)

	lineTxtRe = regexp.MustCompile(`^\((.+)\) (.+?): (.+)`)
	// The local user's lines are the only ones rendered in color 16569E,
	// which is the one way HTML logs reveal who "you" are.
	lineHTMLRe = regexp.MustCompile(`<font size="2">\((.+?)\)</font> <b>(.+?):</b></font> (?:<body>)?(.*?)(?:</body>)?<br/>$`)

	htmlBreakRe = regexp.MustCompile(`<br/>`)
)

const selfColorMarker = "16569E"

// fileDate extracts the calendar day from a log file name like
// "2010-12-08.120313+0100CET.txt".
func fileDate(name string) (model.Date, bool) {
	if !strings.HasSuffix(name, ".txt") && !strings.HasSuffix(name, ".html") {
		return model.Date{}, false
	}
	if len(name) < 10 {
		return model.Date{}, false
	}
	t, err := time.Parse("2006-01-02", name[:10])
	if err != nil {
		return model.Date{}, false
	}
	return model.DateOf(t), true
}

// parseFile turns one libpurple log file into text events.
func (s *Store) parseFile(path, account string, target model.Entity) ([]model.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	date, ok := fileDate(filepath.Base(path))
	if !ok {
		return nil, fmt.Errorf("unexpected file name %q", filepath.Base(path))
	}

	isHTML := strings.HasSuffix(path, ".html")
	isRoom := target.Type == model.EntityRoom

	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 {
		return nil, nil
	}

	headerRe := headerTxtRe
	if isHTML {
		headerRe = headerHTMLRe
	}
	header := headerRe.FindStringSubmatch(lines[0])
	if header == nil {
		return nil, fmt.Errorf("missing conversation header in %q", filepath.Base(path))
	}
	targetID := header[1]
	ownUser := header[3]

	var events []model.Event
	for n, line := range lines[1:] {
		if isHTML && line == "</body></html>" {
			break
		}

		var timeStr, senderName, body string
		isUser := false
		if isHTML {
			hits := lineHTMLRe.FindStringSubmatch(line)
			if hits == nil {
				continue
			}
			timeStr, senderName = hits[1], hits[2]
			body = html.UnescapeString(htmlBreakRe.ReplaceAllString(hits[3], "\n"))
			isUser = strings.Contains(line, selfColorMarker)
		} else {
			hits := lineTxtRe.FindStringSubmatch(line)
			if hits == nil {
				continue
			}
			timeStr, senderName, body = hits[1], hits[2], hits[3]
		}

		ts, ok := lineTime(date, timeStr)
		if !ok {
			continue
		}

		var sender model.Entity
		if isUser {
			sender = model.NewSelf(ownUser, senderName)
		} else {
			sender = model.NewContact(senderName, senderName, "")
		}

		// Plain-text 1:1 logs give no way to tell who received the
		// message; the receiver stays zero there.
		var receiver model.Entity
		switch {
		case isRoom:
			receiver = model.NewRoom(target.Identifier)
		case isHTML && isUser:
			receiver = model.NewContact(targetID, targetID, "")
		case isHTML:
			receiver = model.NewSelf(ownUser, ownUser)
		}

		signal := model.SignalReceived
		if isUser {
			signal = model.SignalSent
		}

		events = append(events, &model.TextEvent{
			EventInfo: model.EventInfo{
				Account:   account,
				LogID:     model.LogToken(path, ts.Unix(), n),
				Sender:    sender,
				Receiver:  receiver,
				Timestamp: ts,
			},
			MessageType: model.MessageNormal,
			SignalType:  signal,
			Message:     body,
			PendingID:   model.PendingAcknowledged,
		})
	}
	return events, nil
}

// lineTime combines the file's calendar day with a per-line wall clock,
// interpreted in local time like libpurple wrote it.
func lineTime(date model.Date, clock string) (time.Time, bool) {
	for _, layout := range []string{"15:04:05", "3:04:05 PM", "15:04"} {
		t, err := time.Parse(layout, clock)
		if err == nil {
			return time.Date(date.Year, date.Month, date.Day,
				t.Hour(), t.Minute(), t.Second(), 0, time.Local), true
		}
	}
	return time.Time{}, false
}
