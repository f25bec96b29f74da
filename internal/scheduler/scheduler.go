package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSpec runs the daily conversation report at 21:00 UTC.
const DefaultSpec = "0 21 * * *"

// ReportFunc produces and delivers one report.
type ReportFunc func(ctx context.Context) error

// Scheduler runs the conversation report on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	reportFunc ReportFunc
	running    bool
}

// New creates a scheduler in UTC. An empty spec means DefaultSpec.
func New(spec string) *Scheduler {
	if spec == "" {
		spec = DefaultSpec
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		spec:   spec,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) SetReportFunction(f ReportFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reportFunc = f
}

// Start registers the report job and starts the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already started")
	}
	if s.reportFunc == nil {
		log.Println("⚠️ Report function not set, scheduler will not generate reports")
		return nil
	}
	if _, err := s.cron.AddFunc(s.spec, s.runReport); err != nil {
		return err
	}
	s.cron.Start()
	s.running = true
	log.Printf("📅 Scheduler started, conversation reports on %q (UTC)", s.spec)
	return nil
}

func (s *Scheduler) runReport() {
	s.mu.Lock()
	f := s.reportFunc
	s.mu.Unlock()
	log.Println("🕘 Triggered conversation report")
	if err := f(s.ctx); err != nil {
		log.Printf("❌ Conversation report failed: %v", err)
	}
}

// Stop halts the cron loop and waits for a running report to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	s.cancel()
	<-ctx.Done()
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	log.Println("📅 Scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && len(s.cron.Entries()) > 0
}

// Next is the next planned report time, or zero when not running.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
