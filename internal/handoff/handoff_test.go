package handoff

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	"customer-care/internal/fallback"
	"customer-care/internal/tracker"
)

func escalatingTracker() *tracker.Tracker {
	tr := tracker.New("chat-7")
	for i := 0; i < 3; i++ {
		tr.Append(tracker.UserMessage(fmt.Sprintf("gibberish %d", i), tracker.ParseData{Intent: tracker.Intent{Name: fallback.Intent}}))
		tr.Append(fallback.Increment(tr)...)
		tr.Append(tracker.BotMessage("Sorry, I didn't get that."))
	}
	return tr
}

func TestNewTicket(t *testing.T) {
	tk := NewTicket(escalatingTracker(), "user asked for a human")
	if tk.ID == "" || tk.SessionID != "chat-7" {
		t.Fatalf("unexpected ticket: %+v", tk)
	}
	if tk.Fallbacks != 3 || tk.LastMessage != "gibberish 2" {
		t.Fatalf("ticket lost context: %+v", tk)
	}
	if len(tk.Transcript) != 6 {
		t.Fatalf("want 6 utterances, got %d", len(tk.Transcript))
	}
	s := tk.Summary()
	for _, want := range []string{"Session: chat-7", "Consecutive fallbacks: 3", "user: gibberish 0", "bot: Sorry"} {
		if !strings.Contains(s, want) {
			t.Fatalf("summary missing %q:\n%s", want, s)
		}
	}
}

func TestNewTicket_TranscriptIsBounded(t *testing.T) {
	tr := tracker.New("long")
	for i := 0; i < 40; i++ {
		tr.Append(tracker.BotMessage(fmt.Sprintf("m%d", i)))
	}
	tk := NewTicket(tr, "")
	if len(tk.Transcript) != transcriptTail || tk.Transcript[0].Text != "m20" {
		t.Fatalf("unexpected transcript tail: %d %+v", len(tk.Transcript), tk.Transcript[0])
	}
}

type recordingNotifier struct {
	got []Ticket
	err error
}

func (r *recordingNotifier) Notify(ctx context.Context, tk Ticket) error {
	r.got = append(r.got, tk)
	return r.err
}

func TestMultiNotifier(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("smtp down")}
	m := MultiNotifier{ok, nil, bad, LogNotifier{}}
	err := m.Notify(context.Background(), Ticket{ID: "t1", SessionID: "s"})
	if err == nil || !strings.Contains(err.Error(), "smtp down") {
		t.Fatalf("want joined error, got %v", err)
	}
	if len(ok.got) != 1 || len(bad.got) != 1 {
		t.Fatalf("every notifier must be called")
	}
}

type fakeSender struct{ raw []string }

func (f *fakeSender) send(ctx context.Context, raw string) error {
	f.raw = append(f.raw, raw)
	return nil
}

func TestGmailNotifier_BuildsMessage(t *testing.T) {
	fs := &fakeSender{}
	g := &GmailNotifier{sender: fs, from: "bot@example.com", to: []string{"a@example.com", "b@example.com"}}
	if err := g.Notify(context.Background(), Ticket{ID: "t1", SessionID: "chat-7", Reason: "asked"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(fs.raw) != 1 {
		t.Fatalf("expected one message")
	}
	decoded, err := base64.URLEncoding.DecodeString(fs.raw[0])
	if err != nil {
		t.Fatalf("raw is not base64url: %v", err)
	}
	msg := string(decoded)
	for _, want := range []string{"From: bot@example.com\r\n", "To: a@example.com, b@example.com\r\n", "Subject: [handoff] session chat-7\r\n", "Reason: asked\r\n"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestParseGoogleCredentials(t *testing.T) {
	direct := `{"client_id":"id","client_secret":"secret"}`
	wrapped := `{"installed":{"client_id":"id2","client_secret":"s2"}}`
	c, err := ParseGoogleCredentials([]byte(direct))
	if err != nil || c.ClientID != "id" {
		t.Fatalf("direct: %+v %v", c, err)
	}
	c, err = ParseGoogleCredentials([]byte(wrapped))
	if err != nil || c.ClientID != "id2" {
		t.Fatalf("wrapped: %+v %v", c, err)
	}
	if _, err := ParseGoogleCredentials([]byte(`{}`)); err == nil {
		t.Fatalf("expected error for empty credentials")
	}
}
