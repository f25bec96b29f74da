package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"customer-care/internal/dialogue"
	"customer-care/internal/operators"
)

const (
	handoffCmd = "handoff"

	// suggestHumanAfter is the fallback run length after which replies carry
	// a "talk to a human" button.
	suggestHumanAfter = 2

	takeoverNotice = "👋 Your conversation has been passed to our support team. An agent will contact you shortly."
)

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || strings.TrimSpace(msg.Text) == "" {
		return
	}
	if msg.IsCommand() && b.handleCommand(ctx, msg) {
		return
	}
	b.runTurn(ctx, msg.Chat.ID, msg.Text)
}

// handleCommand processes bot-level commands and reports whether msg was
// consumed. Commands the classifier understands (/start, /human) fall
// through to a regular turn.
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) bool {
	switch msg.Command() {
	case "restart":
		if err := b.turns.Restart(ctx, sessionID(msg.Chat.ID)); err != nil {
			log.Printf("❌ restart of %d failed: %v", msg.Chat.ID, err)
			b.sendMessage(msg.Chat.ID, dialogue.UtterApology)
			return true
		}
		b.sendMessage(msg.Chat.ID, dialogue.UtterRestarted)
		return true
	case "report":
		b.handleReportCommand(ctx, msg)
		return true
	case "operators":
		b.handleOperatorsCommand(msg)
		return true
	case "takeover":
		b.handleTakeover(ctx, msg)
		return true
	}
	return false
}

// handleOperatorsCommand lists operators, or with "add <id>" / "remove <id>"
// edits the allowlist.
func (b *Bot) handleOperatorsCommand(msg *tgbotapi.Message) {
	if !b.isOperator(msg) {
		b.sendMessage(msg.Chat.ID, "❌ This command is for operators only.")
		return
	}
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		var bld strings.Builder
		bld.WriteString("Operators:\n")
		for _, op := range b.operators.List() {
			bld.WriteString(fmt.Sprintf("- id=%d @%s %s %s\n", op.ID, op.Username, op.FirstName, op.LastName))
		}
		b.sendMessage(msg.Chat.ID, bld.String())
		return
	}
	if len(args) != 2 || (args[0] != "add" && args[0] != "remove") {
		b.sendMessage(msg.Chat.ID, "Usage: /operators [add|remove <user_id>]")
		return
	}
	uid, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		b.sendMessage(msg.Chat.ID, "Invalid user_id")
		return
	}
	switch args[0] {
	case "add":
		if err := b.operators.Upsert(operators.Operator{ID: uid}); err != nil {
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("❌ Failed to add operator: %v", err))
			return
		}
		log.Printf("👤 Operator %d added by %d", uid, msg.From.ID)
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ User %d is now an operator", uid))
	case "remove":
		if uid == msg.From.ID {
			b.sendMessage(msg.Chat.ID, "❌ You cannot remove yourself")
			return
		}
		if err := b.operators.Remove(uid); err != nil {
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("❌ Failed to remove operator: %v", err))
			return
		}
		log.Printf("👤 Operator %d removed by %d", uid, msg.From.ID)
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("User %d removed from operators", uid))
	}
}

// handleTakeover lets an operator escalate a session by chat id.
func (b *Bot) handleTakeover(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isOperator(msg) {
		b.sendMessage(msg.Chat.ID, "❌ This command is for operators only.")
		return
	}
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 1 {
		b.sendMessage(msg.Chat.ID, "Usage: /takeover <chat_id>")
		return
	}
	chatID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.sendMessage(msg.Chat.ID, "Invalid chat_id")
		return
	}
	tk, err := b.turns.Handoff(ctx, sessionID(chatID), fmt.Sprintf("taken over by operator %d", msg.From.ID))
	if err != nil {
		log.Printf("❌ takeover of %d failed: %v", chatID, err)
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("❌ Takeover failed: %v", err))
		return
	}
	b.sendMessage(chatID, takeoverNotice)
	b.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ Session %d handed off (ticket %s). The bot will only tell the customer to wait for an agent.", chatID, tk.ID))
}

func (b *Bot) handleReportCommand(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isOperator(msg) {
		b.sendMessage(msg.Chat.ID, "❌ This command is for operators only.")
		return
	}
	if b.report == nil {
		b.sendMessage(msg.Chat.ID, "Reports are not configured.")
		return
	}
	text, err := b.report(ctx)
	if err != nil {
		log.Printf("❌ Report generation failed: %v", err)
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("❌ Report failed: %v", err))
		return
	}
	b.sendMessage(msg.Chat.ID, text)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	if _, err := b.s.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("failed to answer callback %s: %v", cb.ID, err)
	}
	if cb.Data == handoffCmd {
		b.runTurn(ctx, cb.Message.Chat.ID, "/human")
	}
}

// runTurn passes text to the dialogue and sends the reply. Users never see
// internal errors.
func (b *Bot) runTurn(ctx context.Context, chatID int64, text string) {
	log.Printf("💬 Incoming message in chat %d: %q", chatID, text)
	reply, err := b.turns.HandleMessage(ctx, sessionID(chatID), text)
	if err != nil {
		log.Printf("❌ turn failed for chat %d: %v", chatID, err)
		if errors.Is(err, context.Canceled) {
			return
		}
		if reply.Text == "" {
			reply.Text = dialogue.UtterApology
		}
	}
	parts := splitMessage(reply.Text)
	for i, part := range parts {
		out := tgbotapi.NewMessage(chatID, part)
		if i == len(parts)-1 && !reply.Escalated && reply.Fallbacks >= suggestHumanAfter {
			out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData("Talk to a human", handoffCmd),
				),
			)
		}
		if _, err := b.s.Send(out); err != nil {
			log.Printf("failed to send reply to %d: %v", chatID, err)
			return
		}
	}
}

func (b *Bot) isOperator(msg *tgbotapi.Message) bool {
	return msg.From != nil && b.operators != nil && b.operators.IsOperator(msg.From.ID)
}
