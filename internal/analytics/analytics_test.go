package analytics

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"customer-care/internal/fallback"
	"customer-care/internal/storage"
	"customer-care/internal/tracker"
)

var day = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func clockAt(start time.Time) func() time.Time {
	cur := start
	return func() time.Time {
		cur = cur.Add(time.Minute)
		return cur
	}
}

func user(text, intent string, entities ...tracker.Entity) tracker.Event {
	return tracker.UserMessage(text, tracker.ParseData{Intent: tracker.Intent{Name: intent, Confidence: 0.9}, Entities: entities})
}

func conversation(id string, start time.Time, build func(t *tracker.Tracker)) *tracker.Tracker {
	t := tracker.New(id)
	t.SetClock(clockAt(start))
	build(t)
	return t
}

func sample() []*tracker.Tracker {
	order := conversation("a", day.Add(9*time.Hour), func(t *tracker.Tracker) {
		t.Append(user("where is order 123", "check_order_status", tracker.Entity{Entity: "order_id", Value: "123"}))
		t.Append(tracker.SlotSet("order_id", "123"), tracker.BotMessage("It ships tomorrow"))
	})
	lost := conversation("b", day.Add(14*time.Hour), func(t *tracker.Tracker) {
		for i := 0; i < 2; i++ {
			t.Append(user("???", fallback.Intent))
			t.Append(tracker.ActionExecuted(fallback.ActionIncrement))
			t.Append(fallback.Increment(t)...)
			t.Append(tracker.BotMessage("Sorry?"))
		}
		t.Append(user("human", "request_human"))
		t.Append(tracker.ActionExecuted(fallback.ActionHandoff))
		t.Append(fallback.Handoff(t)...)
	})
	yesterday := conversation("c", day.Add(-2*time.Hour), func(t *tracker.Tracker) {
		t.Append(user("hi", "greet"), tracker.BotMessage("hello"))
	})
	return []*tracker.Tracker{order, lost, yesterday}
}

func TestAnalyze_Day(t *testing.T) {
	st := Analyze(sample(), Day(day.Add(12*time.Hour)))

	if st.Conversations != 2 {
		t.Fatalf("want 2 conversations in window, got %d", st.Conversations)
	}
	if st.UserMessages != 4 || st.BotMessages != 3 {
		t.Fatalf("unexpected message counts: user=%d bot=%d", st.UserMessages, st.BotMessages)
	}
	if st.IntentDistribution[fallback.Intent] != 2 || st.IntentDistribution["greet"] != 0 {
		t.Fatalf("unexpected intents: %v", st.IntentDistribution)
	}
	if st.EntityUsage["order_id"] != 1 {
		t.Fatalf("unexpected entities: %v", st.EntityUsage)
	}
	if st.TotalFallbacks != 2 || st.ConversationsWithFallbacks != 1 {
		t.Fatalf("unexpected fallbacks: %d/%d", st.TotalFallbacks, st.ConversationsWithFallbacks)
	}
	if st.Escalations != 1 || st.EscalatedConversations != 1 {
		t.Fatalf("unexpected escalations: %d/%d", st.Escalations, st.EscalatedConversations)
	}
	// num_fallbacks is back to 0 after the handoff and does not count as used
	if st.SlotUsage["escalated"] != 1 || st.SlotUsage["order_id"] != 1 || st.SlotUsage[fallback.SlotCount] != 0 {
		t.Fatalf("unexpected slot usage: %v", st.SlotUsage)
	}
	if st.ByHour[9] != 3 || st.ByWeekday[time.Monday] != st.Events {
		t.Fatalf("unexpected histograms: hour9=%d monday=%d events=%d", st.ByHour[9], st.ByWeekday[time.Monday], st.Events)
	}
}

func TestAnalyze_OpenWindow(t *testing.T) {
	st := Analyze(sample(), Window{})
	if st.Conversations != 3 || st.IntentDistribution["greet"] != 1 {
		t.Fatalf("open window must see everything: %+v", st)
	}
	if st.Since != nil || st.Until != nil {
		t.Fatalf("open window must not report bounds")
	}
	if st.AvgEventsPerConversation != float64(st.Events)/3 {
		t.Fatalf("bad average: %v", st.AvgEventsPerConversation)
	}
}

func TestAnalyze_Empty(t *testing.T) {
	st := Analyze(nil, Window{})
	if st.Conversations != 0 || st.AvgEventsPerConversation != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if !strings.Contains(st.GenerateReportSummary(), "Total conversations: 0") {
		t.Fatalf("empty report must still render")
	}
}

func TestGenerateReportSummary(t *testing.T) {
	s := Analyze(sample(), Window{}).GenerateReportSummary()
	for _, want := range []string{
		"Total conversations: 3",
		"Total fallbacks: 2",
		"Handoffs to a human: 1 (1 conversations)",
		"| `nlu_fallback` | 2 | 40.0% |",
		"| `order_id` | 1 |",
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("summary missing %q:\n%s", want, s)
		}
	}
	// highest count first
	if strings.Index(s, "`nlu_fallback`") > strings.Index(s, "`greet`") {
		t.Fatalf("intents not ordered by count:\n%s", s)
	}
}

func TestToJSON(t *testing.T) {
	js, err := Analyze(sample(), Day(day)).ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	for _, want := range []string{`"total_conversations": 2`, `"since": "2024-01-15T00:00:00Z"`, `"nlu_fallback": 2`} {
		if !strings.Contains(js, want) {
			t.Fatalf("json missing %q:\n%s", want, js)
		}
	}
}

type failingStore struct{ storage.Store }

func (failingStore) Keys() ([]string, error) {
	return nil, &storage.StorageError{Op: "read", Path: "x", Err: errors.New("io")}
}

func TestCollect(t *testing.T) {
	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "trackers.json"))
	if err != nil {
		t.Fatal(err)
	}
	for _, tr := range sample() {
		if err := store.Save(tr); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	got, err := Collect(context.Background(), store, 2)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 3 || got[0].SessionID != "a" || got[2].SessionID != "c" {
		t.Fatalf("unexpected trackers: %d", len(got))
	}

	st, err := Build(context.Background(), store, Day(day), 4)
	if err != nil || st.Conversations != 2 {
		t.Fatalf("build: %+v %v", st, err)
	}

	if _, err := Collect(context.Background(), failingStore{}, 1); !storage.IsStorageError(err) {
		t.Fatalf("want StorageError, got %v", err)
	}
}

// corruptStore reports one session as undecodable.
type corruptStore struct {
	storage.Store
	bad string
}

func (c corruptStore) Keys() ([]string, error) {
	keys, err := c.Store.Keys()
	return append(keys, c.bad), err
}

func (c corruptStore) Retrieve(id string) (*tracker.Tracker, bool, error) {
	if id == c.bad {
		return nil, false, &tracker.DecodingError{SessionID: id, Index: 0, Err: errors.New("no kind")}
	}
	return c.Store.Retrieve(id)
}

func TestLoad_ListsSkippedSessions(t *testing.T) {
	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "trackers.json"))
	if err != nil {
		t.Fatal(err)
	}
	for _, tr := range sample() {
		if err := store.Save(tr); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	c, err := Load(context.Background(), corruptStore{Store: store, bad: "zz"}, 3)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Trackers) != 3 || len(c.Skipped) != 1 || c.Skipped[0] != "zz" {
		t.Fatalf("unexpected collection: %d trackers, skipped %v", len(c.Trackers), c.Skipped)
	}
}
