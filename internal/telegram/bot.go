package telegram

import (
	"context"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"customer-care/internal/dialogue"
	"customer-care/internal/handoff"
	"customer-care/internal/operators"
)

// TurnHandler runs conversation turns for a chat session.
type TurnHandler interface {
	HandleMessage(ctx context.Context, sessionID, text string) (dialogue.Reply, error)
	Handoff(ctx context.Context, sessionID, reason string) (handoff.Ticket, error)
	Restart(ctx context.Context, sessionID string) error
}

// Reporter renders the conversation report sent on /report.
type Reporter func(ctx context.Context) (string, error)

type Bot struct {
	api       *tgbotapi.BotAPI
	s         sender
	turns     TurnHandler
	operators *operators.Service
	report    Reporter
	workers   int
}

func New(botToken string, turns TurnHandler, ops *operators.Service, report Reporter, workers int) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	log.Printf("🤖 Authorized on account @%s", api.Self.UserName)
	return newBot(botAPISender{api: api}, turns, ops, report, workers, api), nil
}

func newBot(s sender, turns TurnHandler, ops *operators.Service, report Reporter, workers int, api *tgbotapi.BotAPI) *Bot {
	if workers < 1 {
		workers = 1
	}
	return &Bot{api: api, s: s, turns: turns, operators: ops, report: report, workers: workers}
}

// Start polls Telegram until ctx is cancelled and waits for in-flight turns.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()
	return b.serve(ctx, updates)
}

// serve dispatches updates to at most b.workers concurrent turns.
func (b *Bot) serve(ctx context.Context, updates <-chan tgbotapi.Update) error {
	g := new(errgroup.Group)
	g.SetLimit(b.workers)
	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case update, ok := <-updates:
			if !ok {
				return g.Wait()
			}
			g.Go(func() error {
				b.handleUpdate(ctx, update)
				return nil
			})
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ panic while handling update %d: %v", update.UpdateID, r)
		}
	}()
	switch {
	case update.Message != nil:
		b.handleIncomingMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func sessionID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	for _, part := range splitMessage(text) {
		if _, err := b.s.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			log.Printf("failed to send message to %d: %v", chatID, err)
			return
		}
	}
}
