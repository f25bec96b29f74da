package tracker

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// Kind identifies what an Event records. The string values are the
// "event" discriminator used in stored documents.
type Kind string

const (
	KindUser     Kind = "user"
	KindBot      Kind = "bot"
	KindAction   Kind = "action"
	KindSlot     Kind = "slot"
	KindRewind   Kind = "rewind"
	KindRestart  Kind = "restart"
	KindResetAll Kind = "reset_slots"
)

var knownKinds = map[Kind]bool{
	KindUser:     true,
	KindBot:      true,
	KindAction:   true,
	KindSlot:     true,
	KindRewind:   true,
	KindRestart:  true,
	KindResetAll: true,
}

// Valid reports whether k is an event kind the tracker knows how to replay.
func (k Kind) Valid() bool { return knownKinds[k] }

// Intent is the classification attached to a user message.
type Intent struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Entity is one extracted entity of a user message.
type Entity struct {
	Entity string `json:"entity"`
	Value  string `json:"value"`
	Start  int    `json:"start,omitempty"`
	End    int    `json:"end,omitempty"`
}

// ParseData is what the NLU layer produced for a user message.
type ParseData struct {
	Intent   Intent   `json:"intent"`
	Entities []Entity `json:"entities,omitempty"`
}

// Event is one immutable record in a session history. Which payload fields
// are meaningful depends on Kind:
//
//	user   Text, ParseData, InputChannel
//	bot    Text
//	action Name
//	slot   Name, Value
type Event struct {
	Kind         Kind           `json:"event"`
	Timestamp    float64        `json:"timestamp"`
	Text         string         `json:"text,omitempty"`
	ParseData    *ParseData     `json:"parse_data,omitempty"`
	InputChannel string         `json:"input_channel,omitempty"`
	Name         string         `json:"name,omitempty"`
	Value        any            `json:"value,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// UnmarshalJSON rejects entries whose kind is missing or unknown.
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Kind == "" {
		return fmt.Errorf("event kind missing")
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", p.Kind)
	}
	*e = Event(p)
	return nil
}

// UserMessage builds a user utterance event.
func UserMessage(text string, parse ParseData) Event {
	if len(parse.Entities) == 0 {
		parse.Entities = nil
	}
	return Event{Kind: KindUser, Text: text, ParseData: &parse}
}

// BotMessage builds a bot utterance event.
func BotMessage(text string) Event {
	return Event{Kind: KindBot, Text: text}
}

// ActionExecuted records that the named action ran.
func ActionExecuted(name string) Event {
	return Event{Kind: KindAction, Name: name}
}

// SlotSet assigns value to slot name. Integer values are stored as float64
// so an in-memory tracker compares equal to its decoded copy.
func SlotSet(name string, value any) Event {
	return Event{Kind: KindSlot, Name: name, Value: normalizeValue(value)}
}

// UtteranceReverted undoes the latest user message and everything after it.
func UtteranceReverted() Event { return Event{Kind: KindRewind} }

// Restarted wipes the conversation state.
func Restarted() Event { return Event{Kind: KindRestart} }

// AllSlotsReset clears every slot but keeps the history.
func AllSlotsReset() Event { return Event{Kind: KindResetAll} }

// IntentName returns the intent name of a user event, or "".
func (e Event) IntentName() string {
	if e.Kind != KindUser || e.ParseData == nil {
		return ""
	}
	return e.ParseData.Intent.Name
}

// Time converts the float timestamp back to a time.Time.
func (e Event) Time() time.Time {
	sec := int64(e.Timestamp)
	nsec := int64((e.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

func toTimestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func normalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case nil, bool, string, float64:
		return v
	}
	// composite values take the shape they will have after decoding;
	// unencodable ones are left alone for Encode to reject
	if checkStrings(reflect.ValueOf(v)) != nil {
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
