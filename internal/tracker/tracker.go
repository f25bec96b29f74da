package tracker

import (
	"time"
)

// Tracker is the event history of one conversation plus the state derived
// from it. Slots are never assigned directly: they are always the result of
// replaying the events in append order.
//
// A Tracker is not safe for concurrent use; it belongs to whichever turn
// handler is processing the session.
type Tracker struct {
	SessionID string

	events []Event
	// applied holds the events still in effect after rewinds and restarts
	applied []Event
	slots   map[string]any
	now     func() time.Time
}

// New returns an empty tracker for sessionID.
func New(sessionID string) *Tracker {
	return &Tracker{
		SessionID: sessionID,
		slots:     make(map[string]any),
		now:       time.Now,
	}
}

// FromEvents rebuilds a tracker by replaying events in order. Timestamps are
// taken as recorded.
func FromEvents(sessionID string, events []Event) *Tracker {
	t := New(sessionID)
	for _, ev := range events {
		t.apply(ev)
	}
	return t
}

// Append records new events at the end of the history and replays them.
// A zero timestamp is filled with the current time; timestamps never go
// backwards within a session.
func (t *Tracker) Append(events ...Event) {
	for _, ev := range events {
		if ev.Timestamp == 0 {
			ev.Timestamp = toTimestamp(t.now())
		}
		if n := len(t.events); n > 0 && ev.Timestamp < t.events[n-1].Timestamp {
			ev.Timestamp = t.events[n-1].Timestamp
		}
		t.apply(ev)
	}
}

func (t *Tracker) apply(ev Event) {
	t.events = append(t.events, ev)
	switch ev.Kind {
	case KindRestart:
		t.applied = nil
		t.slots = make(map[string]any)
		return
	case KindRewind:
		for i := len(t.applied) - 1; i >= 0; i-- {
			if t.applied[i].Kind == KindUser {
				t.applied = t.applied[:i]
				t.slots = foldSlots(t.applied)
				break
			}
		}
		return
	}
	t.applied = append(t.applied, ev)
	applySlot(t.slots, ev)
}

func foldSlots(events []Event) map[string]any {
	slots := make(map[string]any)
	for _, ev := range events {
		applySlot(slots, ev)
	}
	return slots
}

func applySlot(slots map[string]any, ev Event) {
	switch ev.Kind {
	case KindSlot:
		slots[ev.Name] = ev.Value
	case KindResetAll:
		for k := range slots {
			delete(slots, k)
		}
	}
}

// Events returns a copy of the full history in append order.
func (t *Tracker) Events() []Event {
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Len is the number of recorded events.
func (t *Tracker) Len() int { return len(t.events) }

// Slots returns a copy of the derived slot values.
func (t *Tracker) Slots() map[string]any {
	out := make(map[string]any, len(t.slots))
	for k, v := range t.slots {
		out[k] = v
	}
	return out
}

// Slot returns the current value of a slot.
func (t *Tracker) Slot(name string) (any, bool) {
	v, ok := t.slots[name]
	return v, ok
}

// IntSlot reads a numeric slot, returning 0 when it is unset or not a number.
func (t *Tracker) IntSlot(name string) int {
	switch v := t.slots[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// BoolSlot reads a boolean slot, returning false when it is unset.
func (t *Tracker) BoolSlot(name string) bool {
	b, _ := t.slots[name].(bool)
	return b
}

// LatestMessage returns the most recent user message still in effect.
func (t *Tracker) LatestMessage() (Event, bool) {
	for i := len(t.applied) - 1; i >= 0; i-- {
		if t.applied[i].Kind == KindUser {
			return t.applied[i], true
		}
	}
	return Event{}, false
}

// LatestIntent is the intent name of LatestMessage, or "".
func (t *Tracker) LatestIntent() string {
	ev, ok := t.LatestMessage()
	if !ok {
		return ""
	}
	return ev.IntentName()
}

// PreviousIntent is the intent of the user message before the latest one.
func (t *Tracker) PreviousIntent() (string, bool) {
	seen := 0
	for i := len(t.applied) - 1; i >= 0; i-- {
		if t.applied[i].Kind != KindUser {
			continue
		}
		seen++
		if seen == 2 {
			return t.applied[i].IntentName(), true
		}
	}
	return "", false
}

// Turn is one utterance of the transcript.
type Turn struct {
	FromUser bool
	Text     string
}

// Transcript lists the user and bot utterances still in effect.
func (t *Tracker) Transcript() []Turn {
	var out []Turn
	for _, ev := range t.applied {
		switch ev.Kind {
		case KindUser:
			out = append(out, Turn{FromUser: true, Text: ev.Text})
		case KindBot:
			out = append(out, Turn{Text: ev.Text})
		}
	}
	return out
}

// LatestEventTime is the timestamp of the newest event, or zero.
func (t *Tracker) LatestEventTime() time.Time {
	if len(t.events) == 0 {
		return time.Time{}
	}
	return t.events[len(t.events)-1].Time()
}

// SetClock replaces the time source used by Append.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }
