package pidgin

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmellis/chatlog/internal/config"
	"github.com/dmellis/chatlog/internal/model"
	"go.uber.org/zap"
)

const (
	testAccount = "gabble/jabber/user"
	testPeer    = "user2@collabora.co.uk"
)

const txtLog = `Conversation with user2@collabora.co.uk at Fri 10 Dec 2010 12:00:00 PM CET on user@collabora.co.uk (jabber)
(12:01:01) me: hello
(12:01:02) User Two: hey there
not a message line
(12:01:03) User Two: bye
`

const htmlLog = `<html><head><meta http-equiv="content-type" content="text/html; charset=UTF-8"><title>Conversation</title></head><body><h3>Conversation with user2@collabora.co.uk at Fri 10 Dec 2010 12:00:00 PM CET on user@collabora.co.uk (jabber)</h3>
<font color="#16569E"><font size="2">(12:01:01)</font> <b>me:</b></font> hello &amp; welcome<br/>
<font color="#A82F2F"><font size="2">(12:01:02)</font> <b>User Two:</b></font> first line<br/>second line<br/>
</body></html>
`

func testStore(t *testing.T) *Store {
	t.Helper()
	basedir := t.TempDir()
	accounts := []config.PidginAccount{
		{Account: testAccount, Protocol: "jabber", Username: "user@collabora.co.uk"},
	}
	return New("Pidgin", basedir, accounts, zap.NewNop())
}

func writeLog(t *testing.T, s *Store, conv, name, content string) {
	t.Helper()
	dir := filepath.Join(s.basedir, "jabber", "user@collabora.co.uk", conv)
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestParsePlainTextLog(t *testing.T) {
	s := testStore(t)
	writeLog(t, s, testPeer, "2010-12-10.120000+0000GMT.txt", txtLog)

	target := model.NewContact(testPeer, "", "")
	date := model.Date{Year: 2010, Month: time.December, Day: 10}
	events, err := s.EventsForDate(testAccount, target, model.MaskAny, date)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	first := events[0].(*model.TextEvent)
	if first.Message != "hello" {
		t.Errorf("message = %q, want hello", first.Message)
	}
	// Plain text gives no self detection; everyone parses as a contact.
	if first.Sender.Type != model.EntityContact || first.Sender.Identifier != "me" {
		t.Errorf("sender = %+v", first.Sender)
	}
	if first.Receiver.Identifier != "" {
		t.Errorf("plain 1:1 receiver should stay zero, got %+v", first.Receiver)
	}
	if got := first.Timestamp; got.Hour() != 12 || got.Minute() != 1 || got.Second() != 1 {
		t.Errorf("timestamp = %v", got)
	}
	if model.DateOf(first.Timestamp) != date {
		t.Errorf("event day = %v, want %v", model.DateOf(first.Timestamp), date)
	}

	last := events[2].(*model.TextEvent)
	if last.Message != "bye" || last.Sender.Identifier != "User Two" {
		t.Errorf("last event = %+v", last)
	}
}

func TestParseHTMLLog(t *testing.T) {
	s := testStore(t)
	writeLog(t, s, testPeer, "2010-12-10.120000+0000GMT.html", htmlLog)

	target := model.NewContact(testPeer, "", "")
	date := model.Date{Year: 2010, Month: time.December, Day: 10}
	events, err := s.EventsForDate(testAccount, target, model.MaskAny, date)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	mine := events[0].(*model.TextEvent)
	if mine.Sender.Type != model.EntitySelf {
		t.Errorf("colored line should parse as self, got %+v", mine.Sender)
	}
	if mine.Sender.Identifier != "user@collabora.co.uk" {
		t.Errorf("self identifier = %q", mine.Sender.Identifier)
	}
	if mine.Message != "hello & welcome" {
		t.Errorf("entities not unescaped: %q", mine.Message)
	}
	if mine.Receiver.Identifier != testPeer {
		t.Errorf("receiver = %+v", mine.Receiver)
	}
	if mine.SignalType != model.SignalSent {
		t.Errorf("signal = %q, want sent", mine.SignalType)
	}

	theirs := events[1].(*model.TextEvent)
	if theirs.Sender.Type != model.EntityContact || theirs.Sender.Identifier != "User Two" {
		t.Errorf("sender = %+v", theirs.Sender)
	}
	if theirs.Message != "first line\nsecond line" {
		t.Errorf("br not folded to newline: %q", theirs.Message)
	}
	if theirs.Receiver.Type != model.EntitySelf {
		t.Errorf("receiver = %+v", theirs.Receiver)
	}
}

func TestRoomLogs(t *testing.T) {
	s := testStore(t)
	writeLog(t, s, "test@conference.collabora.co.uk.chat", "2010-12-10.120000+0000GMT.txt", txtLog)

	room := model.NewRoom("test@conference.collabora.co.uk")
	date := model.Date{Year: 2010, Month: time.December, Day: 10}

	if !s.Exists(testAccount, room, model.MaskAny) {
		t.Error("room conversation should exist")
	}
	events, err := s.EventsForDate(testAccount, room, model.MaskAny, date)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) == 0 {
		t.Fatal("no events parsed from room log")
	}
	if recv := events[0].Info().Receiver; recv.Type != model.EntityRoom || recv.Identifier != "test@conference.collabora.co.uk" {
		t.Errorf("room receiver = %+v", recv)
	}
}

func TestDatesAcrossFiles(t *testing.T) {
	s := testStore(t)
	writeLog(t, s, testPeer, "2010-12-10.120000+0000GMT.txt", txtLog)
	writeLog(t, s, testPeer, "2010-12-10.180000+0000GMT.txt", txtLog)
	writeLog(t, s, testPeer, "2010-12-08.090000+0000GMT.txt", txtLog)
	writeLog(t, s, testPeer, "garbage.log", "not a log")

	target := model.NewContact(testPeer, "", "")
	dates, err := s.Dates(testAccount, target, model.MaskAny)
	if err != nil {
		t.Fatal(err)
	}
	if len(dates) != 2 {
		t.Fatalf("got %d dates, want 2 (deduped): %v", len(dates), dates)
	}
	if dates[0].String() != "2010-12-08" || dates[1].String() != "2010-12-10" {
		t.Errorf("dates = %v", dates)
	}
}

func TestEntitiesSkipsSystemAndCleansNames(t *testing.T) {
	s := testStore(t)
	writeLog(t, s, testPeer, "2010-12-10.120000+0000GMT.txt", txtLog)
	writeLog(t, s, "test@conference.collabora.co.uk.chat", "2010-12-10.120000+0000GMT.txt", txtLog)
	writeLog(t, s, "other@conference.collabora.co.uk#1.chat", "2010-12-10.120000+0000GMT.txt", txtLog)
	writeLog(t, s, ".system", "2010-12-10.120000+0000GMT.txt", txtLog)

	entities, err := s.Entities(testAccount)
	if err != nil {
		t.Fatal(err)
	}
	if len(entities) != 3 {
		t.Fatalf("got %d entities, want 3: %v", len(entities), entities)
	}
	byID := make(map[string]model.EntityType)
	for _, e := range entities {
		byID[e.Identifier] = e.Type
	}
	if byID[testPeer] != model.EntityContact {
		t.Errorf("peer entity = %v", byID)
	}
	if byID["test@conference.collabora.co.uk"] != model.EntityRoom {
		t.Errorf("room entity missing: %v", byID)
	}
	if byID["other@conference.collabora.co.uk"] != model.EntityRoom {
		t.Errorf("numeric suffix not stripped: %v", byID)
	}
}

func TestSearch(t *testing.T) {
	s := testStore(t)
	writeLog(t, s, testPeer, "2010-12-10.120000+0000GMT.txt", txtLog)

	hits, err := s.Search("HEY THERE", model.MaskAny)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].Account != testAccount || hits[0].ID != testPeer || hits[0].Type != model.HitText {
		t.Errorf("hit = %+v", hits[0])
	}

	if hits, _ := s.Search("absent", model.MaskAny); len(hits) != 0 {
		t.Errorf("unexpected hits: %v", hits)
	}
}

func TestUnboundAccountIsInvisible(t *testing.T) {
	s := testStore(t)
	writeLog(t, s, testPeer, "2010-12-10.120000+0000GMT.txt", txtLog)

	target := model.NewContact(testPeer, "", "")
	if s.Exists("gabble/jabber/stranger", target, model.MaskAny) {
		t.Error("unbound account should not resolve")
	}
	dates, err := s.Dates("gabble/jabber/stranger", target, model.MaskAny)
	if err != nil || len(dates) != 0 {
		t.Errorf("dates = %v, err = %v", dates, err)
	}
}

func TestFilteredEventsBound(t *testing.T) {
	s := testStore(t)
	writeLog(t, s, testPeer, "2010-12-08.090000+0000GMT.txt", txtLog)
	writeLog(t, s, testPeer, "2010-12-10.120000+0000GMT.txt", txtLog)

	target := model.NewContact(testPeer, "", "")
	events, err := s.FilteredEvents(testAccount, target, model.MaskAny, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	// Most recent day wins.
	for _, ev := range events {
		if model.DateOf(ev.Info().Timestamp).Day != 10 {
			t.Errorf("event from wrong day: %v", ev.Info().Timestamp)
		}
	}
	if events[0].Info().Timestamp.After(events[1].Info().Timestamp) {
		t.Error("events not ascending")
	}
}
