package tracker

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"
)

func fixedClock(start time.Time) func() time.Time {
	cur := start
	return func() time.Time {
		cur = cur.Add(time.Second)
		return cur
	}
}

func newTestTracker(id string) *Tracker {
	t := New(id)
	t.SetClock(fixedClock(time.Unix(1700000000, 0)))
	return t
}

func greet() ParseData {
	return ParseData{Intent: Intent{Name: "greet", Confidence: 0.97}}
}

func TestSlotsFoldLatestWins(t *testing.T) {
	tr := newTestTracker("u1")
	tr.Append(
		UserMessage("hola", greet()),
		SlotSet("language", "es"),
		BotMessage("hola!"),
		SlotSet("language", "fr"),
	)
	v, ok := tr.Slot("language")
	if !ok || v != "fr" {
		t.Fatalf("want language=fr, got %v (%v)", v, ok)
	}
	if tr.Len() != 4 {
		t.Fatalf("want 4 events, got %d", tr.Len())
	}
}

func TestAppendKeepsTimestampsNonDecreasing(t *testing.T) {
	tr := newTestTracker("u1")
	first := UserMessage("a", greet())
	first.Timestamp = 2000
	second := BotMessage("b")
	second.Timestamp = 1000
	tr.Append(first, second)
	evs := tr.Events()
	if evs[1].Timestamp != 2000 {
		t.Fatalf("timestamp went backwards: %v", evs[1].Timestamp)
	}
}

func TestRewindDropsLatestUserTurn(t *testing.T) {
	tr := newTestTracker("u1")
	tr.Append(
		UserMessage("order status", ParseData{Intent: Intent{Name: "check_order"}}),
		SlotSet("order_id", "A1"),
		UserMessage("asdf", ParseData{Intent: Intent{Name: "nlu_fallback"}}),
		SlotSet("order_id", "garbage"),
		UtteranceReverted(),
	)
	if v, _ := tr.Slot("order_id"); v != "A1" {
		t.Fatalf("rewind did not restore slot, got %v", v)
	}
	if tr.LatestIntent() != "check_order" {
		t.Fatalf("latest intent after rewind: %q", tr.LatestIntent())
	}
	if tr.Len() != 5 {
		t.Fatalf("history must keep reverted events, got %d", tr.Len())
	}
}

func TestRestartAndResetSlots(t *testing.T) {
	tr := newTestTracker("u1")
	tr.Append(SlotSet("a", 1), SlotSet("b", true), AllSlotsReset())
	if len(tr.Slots()) != 0 {
		t.Fatalf("reset_slots left %v", tr.Slots())
	}
	tr.Append(UserMessage("hi", greet()), SlotSet("a", 2), Restarted())
	if len(tr.Slots()) != 0 {
		t.Fatalf("restart left %v", tr.Slots())
	}
	if _, ok := tr.LatestMessage(); ok {
		t.Fatalf("restart should clear latest message")
	}
}

func TestPreviousIntentAndTranscript(t *testing.T) {
	tr := newTestTracker("u1")
	tr.Append(
		UserMessage("hi", greet()),
		BotMessage("hello"),
		UserMessage("??", ParseData{Intent: Intent{Name: "nlu_fallback"}}),
	)
	prev, ok := tr.PreviousIntent()
	if !ok || prev != "greet" {
		t.Fatalf("previous intent: %q %v", prev, ok)
	}
	tx := tr.Transcript()
	if len(tx) != 3 || !tx[0].FromUser || tx[1].FromUser || tx[1].Text != "hello" {
		t.Fatalf("unexpected transcript: %+v", tx)
	}
}

func TestIntSlotHandlesDecodedNumbers(t *testing.T) {
	tr := newTestTracker("u1")
	tr.Append(SlotSet("num_fallbacks", 3))
	if tr.IntSlot("num_fallbacks") != 3 {
		t.Fatalf("want 3, got %d", tr.IntSlot("num_fallbacks"))
	}
	if tr.IntSlot("missing") != 0 || tr.BoolSlot("missing") {
		t.Fatalf("unset slots must read as zero values")
	}
}

func TestRoundTrip(t *testing.T) {
	tr := newTestTracker("u1")
	tr.Append(
		UserMessage("my order 42 is late", ParseData{
			Intent:   Intent{Name: "check_order", Confidence: 0.88},
			Entities: []Entity{{Entity: "order_id", Value: "42", Start: 9, End: 11}},
		}),
		ActionExecuted("action_check_order_status"),
		SlotSet("order_id", "42"),
		SlotSet("num_fallbacks", 0),
		SlotSet("escalated", false),
		SlotSet("tags", []string{"late", "vip"}),
		BotMessage("Your order ships tomorrow."),
	)

	doc, err := Encode(tr)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if doc.SessionID != "u1" {
		t.Fatalf("session id lost: %q", doc.SessionID)
	}
	got, err := Decode(doc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got.Events(), tr.Events()) {
		t.Fatalf("events differ:\n got %+v\nwant %+v", got.Events(), tr.Events())
	}
	if !reflect.DeepEqual(got.Slots(), tr.Slots()) {
		t.Fatalf("slots differ: got %v want %v", got.Slots(), tr.Slots())
	}

	again, err := Decode(doc)
	if err != nil {
		t.Fatalf("decode again: %v", err)
	}
	if !reflect.DeepEqual(again.Slots(), got.Slots()) {
		t.Fatalf("replay is not deterministic")
	}
}

func TestDecodeEmptySession(t *testing.T) {
	tr, err := Decode(Document{SessionID: "empty", Events: []byte(`[]`)})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.Len() != 0 || len(tr.Slots()) != 0 {
		t.Fatalf("expected empty tracker")
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := map[string]string{
		"missing":      ``,
		"null":         `null`,
		"not a list":   `{"event":"user"}`,
		"no kind":      `[{"text":"hi"}]`,
		"unknown kind": `[{"event":"teleport"}]`,
		"bad entry":    `[42]`,
	}
	for name, events := range cases {
		_, err := Decode(Document{SessionID: "x", Events: []byte(events)})
		var de *DecodingError
		if !errors.As(err, &de) {
			t.Fatalf("%s: want DecodingError, got %v", name, err)
		}
	}
}

func TestEncodeRejectsUnserializableValue(t *testing.T) {
	tr := newTestTracker("u1")
	tr.Append(SlotSet("score", math.NaN()))
	_, err := Encode(tr)
	var ee *EncodingError
	if !errors.As(err, &ee) {
		t.Fatalf("want EncodingError, got %v", err)
	}
	if ee.Index != 0 || !strings.Contains(ee.Error(), "u1") {
		t.Fatalf("unexpected error: %v", ee)
	}
}

func TestEncodeRejectsInvalidUTF8(t *testing.T) {
	cases := map[string]Event{
		"user text":    UserMessage("caf\xe9", greet()),
		"slot string":  SlotSet("note", "a\xffb"),
		"nested slot":  SlotSet("items", []any{"ok", map[string]any{"k": "\xff"}}),
		"entity value": UserMessage("order", ParseData{Intent: Intent{Name: "check_order_status"}, Entities: []Entity{{Entity: "order_id", Value: "12\xfe"}}}),
		"action name":  ActionExecuted("action_\xff"),
	}
	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			tr := newTestTracker("u1")
			tr.Append(BotMessage("hello"), ev)
			_, err := Encode(tr)
			var ee *EncodingError
			if !errors.As(err, &ee) {
				t.Fatalf("want EncodingError, got %v", err)
			}
			if ee.Index != 1 {
				t.Fatalf("want index 1, got %d", ee.Index)
			}
		})
	}
}

func TestRoundTripKeepsValidUnicode(t *testing.T) {
	tr := newTestTracker("u1")
	tr.Append(UserMessage("café ☕", greet()), SlotSet("note", "naïve"))
	doc, err := Encode(tr)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := Decode(doc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(back.Events(), tr.Events()) || !reflect.DeepEqual(back.Slots(), tr.Slots()) {
		t.Fatalf("round trip changed tracker: %+v vs %+v", back.Events(), tr.Events())
	}
}

func TestDocumentsFileLayout(t *testing.T) {
	tr := newTestTracker("u1")
	tr.Append(UserMessage("hi", greet()))
	doc, err := Encode(tr)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	data, err := MarshalDocuments([]Document{doc})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"session_id": "u1"`) || !strings.Contains(string(data), `"event": "user"`) {
		t.Fatalf("unexpected layout:\n%s", data)
	}
	docs, err := UnmarshalDocuments(data)
	if err != nil || len(docs) != 1 {
		t.Fatalf("unmarshal: %v %d", err, len(docs))
	}
	if empty, err := UnmarshalDocuments([]byte("  \n")); err != nil || empty != nil {
		t.Fatalf("blank file should be an empty store")
	}
}
