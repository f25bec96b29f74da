// Package dialogue runs one conversation turn: it loads the session tracker,
// classifies the message, picks the bot response and saves the tracker back.
//
// Turns for the same session are not serialized. Two concurrent turns for
// one session both start from the same stored tracker and the later Save
// wins.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log"

	"customer-care/internal/fallback"
	"customer-care/internal/handoff"
	"customer-care/internal/llm"
	"customer-care/internal/nlu"
	"customer-care/internal/storage"
	"customer-care/internal/tracker"
)

const (
	UtterDefault    = "Sorry, I didn't quite understand that. Could you rephrase?"
	UtterEscalate   = "I'm connecting you with a human agent. Someone from our support team will reach out to you shortly."
	UtterAwaitAgent = "An agent will contact you soon. Thank you for your patience."
	UtterOutOfScope = "Sorry, I can only help with orders, returns and our store policies."
	UtterApology    = "Sorry, something went wrong on my side. Please try again in a moment."
	UtterRestarted  = "Let's start over. How can I help you?"
)

// historyTurns bounds how much of the transcript is sent to the model.
const historyTurns = 20

// Reply is what the bot says back for one turn.
type Reply struct {
	Text      string
	Intent    string
	Fallbacks int
	Escalated bool
	// Ticket is set when this turn handed the session to a human.
	Ticket *handoff.Ticket
}

type Handler struct {
	store        storage.Store
	classifier   nlu.Classifier
	llm          llm.Client
	notifier     handoff.Notifier
	systemPrompt string
}

// NewHandler wires a turn handler. notifier may be nil.
func NewHandler(store storage.Store, classifier nlu.Classifier, client llm.Client, notifier handoff.Notifier, systemPrompt string) *Handler {
	return &Handler{
		store:        store,
		classifier:   classifier,
		llm:          client,
		notifier:     notifier,
		systemPrompt: systemPrompt,
	}
}

// HandleMessage processes one user message. Storage failures are logged and
// the turn is still answered; tracker encoding and decoding errors are
// returned.
func (h *Handler) HandleMessage(ctx context.Context, sessionID, text string) (Reply, error) {
	t, err := h.load(sessionID)
	if err != nil {
		return Reply{}, err
	}

	parse, err := h.classifier.Parse(ctx, text)
	if err != nil {
		log.Printf("⚠️ NLU failed for session %s: %v", sessionID, err)
		parse = nlu.Fallback(0)
	}
	t.Append(tracker.UserMessage(text, parse))
	t.Append(entitySlots(t, parse.Entities)...)

	reply := Reply{Intent: parse.Intent.Name}
	switch {
	case parse.Intent.Name == fallback.Intent:
		t.Append(tracker.ActionExecuted(fallback.ActionIncrement))
		t.Append(fallback.Increment(t)...)
		log.Printf("🤷 Fallback in session %s (%d in a row)", sessionID, fallback.Count(t))
		reply.Text = UtterDefault
	case parse.Intent.Name == nlu.IntentRequestHuman:
		tk := h.escalate(ctx, t, "user asked for a human agent")
		reply.Ticket = &tk
		reply.Text = UtterEscalate
	case fallback.Escalated(t):
		t.Append(fallback.Reset(t)...)
		reply.Text = UtterAwaitAgent
	case parse.Intent.Name == nlu.IntentOutOfScope:
		t.Append(fallback.Reset(t)...)
		reply.Text = UtterOutOfScope
	default:
		t.Append(fallback.Reset(t)...)
		reply.Text = h.answer(ctx, t)
	}
	t.Append(tracker.BotMessage(reply.Text))

	reply.Fallbacks = fallback.Count(t)
	reply.Escalated = fallback.Escalated(t)
	return reply, h.save(t)
}

// Handoff escalates a session on request of an operator or another system.
func (h *Handler) Handoff(ctx context.Context, sessionID, reason string) (handoff.Ticket, error) {
	t, err := h.load(sessionID)
	if err != nil {
		return handoff.Ticket{}, err
	}
	tk := h.escalate(ctx, t, reason)
	t.Append(tracker.BotMessage(UtterEscalate))
	return tk, h.save(t)
}

// Restart forgets the conversation state of a session. The history stays in
// the stored event log.
func (h *Handler) Restart(ctx context.Context, sessionID string) error {
	t, err := h.load(sessionID)
	if err != nil {
		return err
	}
	t.Append(tracker.Restarted(), tracker.BotMessage(UtterRestarted))
	log.Printf("🔄 Session %s restarted", sessionID)
	return h.save(t)
}

// entitySlots copies extracted entities into slots of the same name. The
// counter slots are never overwritten and unchanged values add no event.
func entitySlots(t *tracker.Tracker, entities []tracker.Entity) []tracker.Event {
	var out []tracker.Event
	for _, e := range entities {
		if e.Entity == "" || e.Entity == fallback.SlotCount || e.Entity == fallback.SlotEscalated {
			continue
		}
		if cur, ok := t.Slot(e.Entity); ok && cur == e.Value {
			continue
		}
		out = append(out, tracker.SlotSet(e.Entity, e.Value))
	}
	return out
}

func (h *Handler) escalate(ctx context.Context, t *tracker.Tracker, reason string) handoff.Ticket {
	tk := handoff.NewTicket(t, reason)
	t.Append(tracker.ActionExecuted(fallback.ActionHandoff))
	t.Append(fallback.Handoff(t)...)
	log.Printf("🙋 Session %s handed off: %s", t.SessionID, reason)
	if h.notifier != nil {
		if err := h.notifier.Notify(ctx, tk); err != nil {
			log.Printf("❌ Failed to notify about handoff %s: %v", tk.ID, err)
		}
	}
	return tk
}

func (h *Handler) answer(ctx context.Context, t *tracker.Tracker) string {
	if h.llm == nil {
		return UtterDefault
	}
	msgs := []llm.Message{}
	if h.systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: h.systemPrompt})
	}
	turns := t.Transcript()
	if len(turns) > historyTurns {
		turns = turns[len(turns)-historyTurns:]
	}
	for _, turn := range turns {
		role := llm.RoleAssistant
		if turn.FromUser {
			role = llm.RoleUser
		}
		msgs = append(msgs, llm.Message{Role: role, Content: turn.Text})
	}
	resp, err := h.llm.Generate(ctx, msgs)
	if err != nil {
		log.Printf("❌ LLM error for session %s: %v", t.SessionID, err)
		return UtterApology
	}
	if resp.Content == "" {
		return UtterApology
	}
	return resp.Content
}

// load returns the stored tracker or a fresh one. An unreadable store is
// treated as no persisted state.
func (h *Handler) load(sessionID string) (*tracker.Tracker, error) {
	if sessionID == "" {
		return nil, storage.ErrEmptySessionID
	}
	t, ok, err := h.store.Retrieve(sessionID)
	if err != nil {
		if !storage.IsStorageError(err) {
			return nil, fmt.Errorf("load session %s: %w", sessionID, err)
		}
		log.Printf("⚠️ Tracker store unavailable, starting session %s fresh: %v", sessionID, err)
		return tracker.New(sessionID), nil
	}
	if !ok {
		return tracker.New(sessionID), nil
	}
	return t, nil
}

func (h *Handler) save(t *tracker.Tracker) error {
	err := h.store.Save(t)
	if err == nil {
		return nil
	}
	var se *storage.StorageError
	if errors.As(err, &se) {
		log.Printf("⚠️ Failed to persist session %s: %v", t.SessionID, err)
		return nil
	}
	return fmt.Errorf("save session %s: %w", t.SessionID, err)
}
