package tracker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"unicode/utf8"
)

// Document is the stored form of a tracker. Events stays raw so a store can
// match documents by SessionID without replaying them.
type Document struct {
	SessionID string          `json:"session_id"`
	Events    json.RawMessage `json:"events"`
}

// EncodingError means a tracker holds data that cannot be serialized.
type EncodingError struct {
	SessionID string
	Index     int
	Err       error
}

func (e *EncodingError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("encode tracker %q: %v", e.SessionID, e.Err)
	}
	return fmt.Sprintf("encode tracker %q: event %d: %v", e.SessionID, e.Index, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// DecodingError means a stored document is not a valid tracker. Index is -1
// when the events list as a whole is at fault.
type DecodingError struct {
	SessionID string
	Index     int
	Err       error
}

func (e *DecodingError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("decode tracker %q: %v", e.SessionID, e.Err)
	}
	return fmt.Sprintf("decode tracker %q: event %d: %v", e.SessionID, e.Index, e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

var (
	errEventsMissing  = errors.New("events missing")
	errEventsNotArray = errors.New("events is not a list")
	errInvalidUTF8    = errors.New("string is not valid UTF-8")
)

// Encode converts t into its stored document.
func Encode(t *Tracker) (Document, error) {
	raws := make([]json.RawMessage, 0, len(t.events))
	for i, ev := range t.events {
		if err := checkStrings(reflect.ValueOf(ev)); err != nil {
			return Document{}, &EncodingError{SessionID: t.SessionID, Index: i, Err: err}
		}
		b, err := json.Marshal(ev)
		if err != nil {
			return Document{}, &EncodingError{SessionID: t.SessionID, Index: i, Err: err}
		}
		raws = append(raws, b)
	}
	events, err := json.Marshal(raws)
	if err != nil {
		return Document{}, &EncodingError{SessionID: t.SessionID, Index: -1, Err: err}
	}
	return Document{SessionID: t.SessionID, Events: events}, nil
}

// checkStrings walks v and fails on any string json.Marshal would silently
// rewrite with U+FFFD.
func checkStrings(v reflect.Value) error {
	switch v.Kind() {
	case reflect.String:
		if !utf8.ValidString(v.String()) {
			return fmt.Errorf("%w: %q", errInvalidUTF8, v.String())
		}
	case reflect.Interface, reflect.Pointer:
		if !v.IsNil() {
			return checkStrings(v.Elem())
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := checkStrings(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := checkStrings(iter.Key()); err != nil {
				return err
			}
			if err := checkStrings(iter.Value()); err != nil {
				return err
			}
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).IsExported() {
				if err := checkStrings(v.Field(i)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Decode rebuilds a tracker from doc by replaying its events in order.
func Decode(doc Document) (*Tracker, error) {
	trimmed := bytes.TrimSpace(doc.Events)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, &DecodingError{SessionID: doc.SessionID, Index: -1, Err: errEventsMissing}
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, &DecodingError{SessionID: doc.SessionID, Index: -1, Err: fmt.Errorf("%w: %v", errEventsNotArray, err)}
	}
	events := make([]Event, 0, len(raws))
	for i, raw := range raws {
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, &DecodingError{SessionID: doc.SessionID, Index: i, Err: err}
		}
		events = append(events, ev)
	}
	return FromEvents(doc.SessionID, events), nil
}

// MarshalDocuments renders the store file layout: a JSON array of documents.
func MarshalDocuments(docs []Document) ([]byte, error) {
	if docs == nil {
		docs = []Document{}
	}
	return json.MarshalIndent(docs, "", "  ")
}

// UnmarshalDocuments parses the store file layout. Blank input is an empty
// store.
func UnmarshalDocuments(data []byte) ([]Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}
