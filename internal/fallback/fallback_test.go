package fallback

import (
	"testing"

	"customer-care/internal/tracker"
)

func userSays(intent string) tracker.Event {
	return tracker.UserMessage("...", tracker.ParseData{Intent: tracker.Intent{Name: intent}})
}

// turn plays one user message through the counter the way the turn handler
// does: fallbacks increment, understood messages reset.
func turn(tr *tracker.Tracker, intent string) {
	tr.Append(userSays(intent))
	if intent == Intent {
		tr.Append(tracker.ActionExecuted(ActionIncrement))
		tr.Append(Increment(tr)...)
		return
	}
	tr.Append(Reset(tr)...)
}

func TestConsecutiveFallbacksAccumulate(t *testing.T) {
	tr := tracker.New("s")
	turn(tr, Intent)
	turn(tr, Intent)
	turn(tr, Intent)
	if Count(tr) != 3 {
		t.Fatalf("want 3, got %d", Count(tr))
	}
}

func TestSuccessResetsCounter(t *testing.T) {
	tr := tracker.New("s")
	turn(tr, Intent)
	turn(tr, "greet")
	turn(tr, Intent)
	if Count(tr) != 1 {
		t.Fatalf("want 1 after intervening success, got %d", Count(tr))
	}

	// the same holds after a save/load cycle
	doc, err := tracker.Encode(tr)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	replayed, err := tracker.Decode(doc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if Count(replayed) != 1 {
		t.Fatalf("replayed count: want 1, got %d", Count(replayed))
	}
}

func TestIncrementResetsWithoutExplicitReset(t *testing.T) {
	tr := tracker.New("s")
	tr.Append(userSays(Intent))
	tr.Append(Increment(tr)...)
	tr.Append(userSays("greet"))
	tr.Append(userSays(Intent))
	tr.Append(Increment(tr)...)
	if Count(tr) != 1 {
		t.Fatalf("want 1, got %d", Count(tr))
	}
}

func TestIncrementOnUnderstoodMessageZeroes(t *testing.T) {
	tr := tracker.New("s")
	tr.Append(tracker.SlotSet(SlotCount, 4), userSays("greet"))
	tr.Append(Increment(tr)...)
	if Count(tr) != 0 {
		t.Fatalf("want 0, got %d", Count(tr))
	}
}

func TestResetIsNoopAtZero(t *testing.T) {
	tr := tracker.New("s")
	if evs := Reset(tr); len(evs) != 0 {
		t.Fatalf("expected no events, got %+v", evs)
	}
}

func TestHandoffResetsAndEscalates(t *testing.T) {
	tr := tracker.New("s")
	for i := 0; i < 5; i++ {
		turn(tr, Intent)
	}
	tr.Append(tracker.ActionExecuted(ActionHandoff))
	tr.Append(Handoff(tr)...)
	if !Escalated(tr) {
		t.Fatalf("expected escalated")
	}
	if Count(tr) != 0 {
		t.Fatalf("want counter 0 after handoff, got %d", Count(tr))
	}

	turn(tr, Intent)
	if Count(tr) != 1 {
		t.Fatalf("counter should start over after handoff, got %d", Count(tr))
	}
}
