package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"customer-care/internal/handoff"
	"customer-care/internal/operators"
)

// OperatorNotifier posts handoff tickets to every operator chat.
type OperatorNotifier struct {
	s         sender
	operators *operators.Service
}

func NewOperatorNotifier(b *Bot, ops *operators.Service) *OperatorNotifier {
	return &OperatorNotifier{s: b.s, operators: ops}
}

func (n *OperatorNotifier) Notify(ctx context.Context, tk handoff.Ticket) error {
	text := "🙋 " + tk.Summary() + fmt.Sprintf("\nReply with /takeover %s to claim it.", tk.SessionID)
	if err := n.Broadcast(text); err != nil {
		return fmt.Errorf("ticket %s: %w", tk.ID, err)
	}
	return nil
}

// Broadcast sends text to every operator chat.
func (n *OperatorNotifier) Broadcast(text string) error {
	ids := n.operators.ChatIDs()
	if len(ids) == 0 {
		return errors.New("no operators configured")
	}
	var errs []error
	for _, id := range ids {
		for _, part := range splitMessage(text) {
			if _, err := n.s.Send(tgbotapi.NewMessage(id, part)); err != nil {
				errs = append(errs, fmt.Errorf("notify operator %d: %w", id, err))
				break
			}
		}
	}
	return errors.Join(errs...)
}
