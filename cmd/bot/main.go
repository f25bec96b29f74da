package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"customer-care/internal/adminapi"
	"customer-care/internal/analytics"
	"customer-care/internal/config"
	"customer-care/internal/dialogue"
	"customer-care/internal/handoff"
	"customer-care/internal/llm"
	"customer-care/internal/nlu"
	"customer-care/internal/operators"
	"customer-care/internal/scheduler"
	"customer-care/internal/storage"
	"customer-care/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}
	cfg := config.New()
	if cfg.TelegramBotToken == "" {
		log.Fatal("❌ TELEGRAM_BOT_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.TrackerStoreBackend, cfg.TrackerStorePath)
	if err != nil {
		log.Fatalf("failed to open tracker store: %v", err)
	}
	defer store.Close()
	log.Printf("🗄️ Tracker store: %s at %s", cfg.TrackerStoreBackend, cfg.TrackerStorePath)

	var opsRepo operators.Repository
	if cfg.OperatorsFilePath != "" {
		repo, err := operators.NewFileRepository(cfg.OperatorsFilePath)
		if err != nil {
			log.Printf("failed to init operators repo: %v", err)
		} else {
			opsRepo = repo
		}
	}
	ops, err := operators.NewService(opsRepo, cfg.Operators)
	if err != nil {
		log.Fatalf("failed to load operators: %v", err)
	}

	llmClient, err := llm.NewFactory(cfg).CreateClient(string(cfg.LLMProvider), cfg.OpenAIModel)
	if err != nil {
		log.Fatalf("failed to create llm client: %v", err)
	}
	classifier := nlu.CommandClassifier{
		Commands: nlu.DefaultCommands(),
		Next:     nlu.NewLLMClassifier(llmClient, cfg.Intents, cfg.NLUThreshold),
	}

	// Operator notifications go through the bot, which is built after the handler.
	notifiers := handoff.MultiNotifier{handoff.LogNotifier{}}
	if cfg.GmailEnabled() {
		gm, err := handoff.NewGmailNotifier(ctx, cfg.GmailCredentialsPath, cfg.GmailRefreshToken, cfg.HandoffEmailFrom, splitList(cfg.HandoffEmailTo))
		if err != nil {
			log.Printf("⚠️ Gmail handoff notifications disabled: %v", err)
		} else {
			notifiers = append(notifiers, gm)
			log.Printf("📧 Handoff tickets will be e-mailed to %s", cfg.HandoffEmailTo)
		}
	}
	late := &lateNotifier{}
	notifiers = append(notifiers, late)

	turns := dialogue.NewHandler(store, classifier, llmClient, notifiers, readSystemPrompt(cfg.SystemPromptPath))

	report := func(ctx context.Context) (string, error) {
		st, err := analytics.Build(ctx, store, analytics.Day(time.Now()), cfg.Workers)
		if err != nil {
			return "", err
		}
		return st.GenerateReportSummary(), nil
	}

	bot, err := telegram.New(cfg.TelegramBotToken, turns, ops, report, cfg.Workers)
	if err != nil {
		log.Fatalf("failed to create bot: %v", err)
	}
	opNotifier := telegram.NewOperatorNotifier(bot, ops)
	late.set(opNotifier)

	sched := scheduler.New(cfg.ReportCron)
	sched.SetReportFunction(func(ctx context.Context) error {
		text, err := report(ctx)
		if err != nil {
			return err
		}
		return opNotifier.Broadcast(text)
	})
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.AdminHTTPAddr != "" {
		srv := &http.Server{Addr: cfg.AdminHTTPAddr, Handler: adminapi.NewRouter(store, cfg.Workers), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			log.Printf("🌐 Admin API listening on %s", cfg.AdminHTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		return bot.Start(gctx)
	})
	if err := g.Wait(); err != nil {
		log.Printf("❌ bot stopped with error: %v", err)
	}
	log.Println("👋 Bot stopped")
}

func readSystemPrompt(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("system prompt file not found or unreadable at %s: %v", path, err)
		return ""
	}
	return string(data)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
