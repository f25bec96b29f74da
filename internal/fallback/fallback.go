// Package fallback keeps the per-session count of consecutive turns the
// bot could not understand, and the escalation flag set when the
// conversation is handed to a human.
//
// The state lives in tracker slots and is durable only once the tracker
// has been saved.
package fallback

import "customer-care/internal/tracker"

const (
	// Intent is what the NLU layer reports when it cannot match a message.
	Intent = "nlu_fallback"

	SlotCount     = "num_fallbacks"
	SlotEscalated = "escalated"

	ActionIncrement = "action_increment_fallback_count"
	ActionHandoff   = "action_handoff_to_human"
)

// Count is the current number of consecutive fallbacks.
func Count(t *tracker.Tracker) int {
	n := t.IntSlot(SlotCount)
	if n < 0 {
		return 0
	}
	return n
}

// Escalated reports whether the session was handed to a human.
func Escalated(t *tracker.Tracker) bool {
	return t.BoolSlot(SlotEscalated)
}

// Increment returns the events recording one more fallback turn. The count
// restarts from zero when the user message before the latest one was
// understood, and is reset outright when the latest message itself was
// not a fallback.
func Increment(t *tracker.Tracker) []tracker.Event {
	if t.LatestIntent() != Intent {
		return []tracker.Event{tracker.SlotSet(SlotCount, 0)}
	}
	base := Count(t)
	if prev, ok := t.PreviousIntent(); ok && prev != Intent {
		base = 0
	}
	return []tracker.Event{tracker.SlotSet(SlotCount, base+1)}
}

// Reset returns the events clearing the counter after an understood turn,
// or nothing when it is already zero.
func Reset(t *tracker.Tracker) []tracker.Event {
	if Count(t) == 0 {
		return nil
	}
	return []tracker.Event{tracker.SlotSet(SlotCount, 0)}
}

// Handoff returns the events marking the session as escalated. It does not
// look at the counter.
func Handoff(t *tracker.Tracker) []tracker.Event {
	return []tracker.Event{
		tracker.SlotSet(SlotCount, 0),
		tracker.SlotSet(SlotEscalated, true),
	}
}
