package model

import (
	"testing"
	"time"
)

func TestDateKeyRoundTrip(t *testing.T) {
	d := Date{Year: 2010, Month: time.December, Day: 10}
	if d.Key() != "20101210" {
		t.Errorf("key = %q, want 20101210", d.Key())
	}
	if d.String() != "2010-12-10" {
		t.Errorf("string = %q, want 2010-12-10", d.String())
	}
	parsed, err := ParseKey(d.Key())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != d {
		t.Errorf("round trip = %v, want %v", parsed, d)
	}
}

func TestParseKeyRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "2010121", "notadate", "20101341"} {
		if _, err := ParseKey(s); err == nil {
			t.Errorf("ParseKey(%q) should fail", s)
		}
	}
}

func TestDateBefore(t *testing.T) {
	a := Date{2010, time.December, 9}
	b := Date{2010, time.December, 10}
	c := Date{2011, time.January, 1}
	if !a.Before(b) || !b.Before(c) || b.Before(a) || a.Before(a) {
		t.Error("Before ordering broken")
	}
}

func TestDateOfUsesEventLocation(t *testing.T) {
	loc := time.FixedZone("east", 10*3600)
	// 23:30 on the 9th UTC is already the 10th at +10.
	ts := time.Date(2010, time.December, 9, 23, 30, 0, 0, time.UTC).In(loc)
	if got := DateOf(ts); got.Day != 10 {
		t.Errorf("day = %d, want 10", got.Day)
	}
}

func TestParseMessageType(t *testing.T) {
	cases := map[string]MessageType{
		"normal":          MessageNormal,
		"action":          MessageAction,
		"notice":          MessageNotice,
		"auto-reply":      MessageAutoReply,
		"delivery-report": MessageDeliveryReport,
		"bogus":           MessageNormal,
		"":                MessageNormal,
	}
	for in, want := range cases {
		if got := ParseMessageType(in); got != want {
			t.Errorf("ParseMessageType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLogTokenDeterministic(t *testing.T) {
	a := LogToken("/org/freedesktop/Telepathy/Connection/c0", 1291934400, 41)
	b := LogToken("/org/freedesktop/Telepathy/Connection/c0", 1291934400, 41)
	if a != b {
		t.Error("same inputs produced different tokens")
	}
	if len(a) != 40 {
		t.Errorf("token length = %d, want 40 hex chars", len(a))
	}
	if c := LogToken("/org/freedesktop/Telepathy/Connection/c0", 1291934400, 42); c == a {
		t.Error("different msg id produced same token")
	}
}

func TestEventMaskMatches(t *testing.T) {
	text := &TextEvent{}
	call := &CallEvent{}
	if !MaskText.Matches(text) || MaskText.Matches(call) {
		t.Error("MaskText selection wrong")
	}
	if !MaskCall.Matches(call) || MaskCall.Matches(text) {
		t.Error("MaskCall selection wrong")
	}
	if !MaskAny.Matches(text) || !MaskAny.Matches(call) {
		t.Error("MaskAny should admit both kinds")
	}
}

func TestEntitySame(t *testing.T) {
	a := NewContact("user2@collabora.co.uk", "User Two", "tok1")
	b := NewContact("user2@collabora.co.uk", "Other Alias", "tok2")
	if !a.Same(b) {
		t.Error("alias/avatar should not affect identity")
	}
	if a.Same(NewRoom("user2@collabora.co.uk")) {
		t.Error("different types must not compare equal")
	}
}

func TestSearchHitSameIgnoresAccount(t *testing.T) {
	d := Date{2010, time.December, 10}
	a := SearchHit{Account: "gabble/jabber/user", ID: "friend", Type: HitText, Date: d}
	b := SearchHit{Account: "gabble/jabber/other", ID: "friend", Type: HitText, Date: d}
	if !a.Same(b) {
		t.Error("hits differing only by account should match")
	}
	if a.Same(SearchHit{ID: "friend", Type: HitTextRoom, Date: d}) {
		t.Error("hit type must participate in identity")
	}
}
