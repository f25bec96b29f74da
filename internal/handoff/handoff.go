package handoff

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"customer-care/internal/fallback"
	"customer-care/internal/tracker"
)

// transcriptTail bounds how many utterances a ticket carries.
const transcriptTail = 20

// Ticket describes a conversation handed over to a human agent.
type Ticket struct {
	ID          string
	SessionID   string
	Reason      string
	Fallbacks   int
	LastMessage string
	Transcript  []tracker.Turn
	CreatedAt   time.Time
}

// NewTicket captures the state of t at the moment of escalation. Call it
// before the handoff events are appended so Fallbacks still holds the run
// that led here.
func NewTicket(t *tracker.Tracker, reason string) Ticket {
	tk := Ticket{
		ID:        uuid.NewString(),
		SessionID: t.SessionID,
		Reason:    reason,
		Fallbacks: fallback.Count(t),
		CreatedAt: time.Now().UTC(),
	}
	if ev, ok := t.LatestMessage(); ok {
		tk.LastMessage = ev.Text
	}
	tx := t.Transcript()
	if len(tx) > transcriptTail {
		tx = tx[len(tx)-transcriptTail:]
	}
	tk.Transcript = tx
	return tk
}

// Summary renders the ticket as plain text for chat or e-mail.
func (tk Ticket) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Handoff %s\n", tk.ID)
	fmt.Fprintf(&b, "Session: %s\n", tk.SessionID)
	if tk.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", tk.Reason)
	}
	fmt.Fprintf(&b, "Consecutive fallbacks: %d\n", tk.Fallbacks)
	fmt.Fprintf(&b, "Created: %s\n", tk.CreatedAt.Format(time.RFC3339))
	if tk.LastMessage != "" {
		fmt.Fprintf(&b, "Last message: %s\n", tk.LastMessage)
	}
	if len(tk.Transcript) > 0 {
		b.WriteString("\nTranscript:\n")
		for _, turn := range tk.Transcript {
			who := "bot"
			if turn.FromUser {
				who = "user"
			}
			fmt.Fprintf(&b, "%s: %s\n", who, turn.Text)
		}
	}
	return b.String()
}

// Notifier tells the support team about a handoff.
type Notifier interface {
	Notify(ctx context.Context, tk Ticket) error
}

// LogNotifier only writes the ticket to the log.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, tk Ticket) error {
	log.Printf("🙋 Handoff %s for session %s (reason=%q, fallbacks=%d)", tk.ID, tk.SessionID, tk.Reason, tk.Fallbacks)
	return nil
}

// MultiNotifier fans a ticket out to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, tk Ticket) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, tk); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
