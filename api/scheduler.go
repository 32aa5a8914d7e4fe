/*
scheduler.go - Automated leadership accountability sweep

PURPOSE:
  Periodically evaluates every agent with an assigned leader for Cases D
  and E over the most recent performance weeks, and persists any reports.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each pass covers the trailing WindowWeeks ending today
  - A lapse already covered by an active report for an overlapping period
    is skipped, so the sliding window never double-reports a leader
  - GetNextRunTime feeds the next_run field of the sweep response

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 24 hours)
  - WindowWeeks: Trailing weeks evaluated per pass (default: 4)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewLeadershipScheduler(service)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Sweep endpoint (manual trigger)
  - workflow/service.go: SweepLeaders
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/deadlyrat/qperform-server-dev/discipline"
	"github.com/deadlyrat/qperform-server-dev/workflow"
)

// DefaultWindowWeeks is the trailing period swept when none is given.
const DefaultWindowWeeks = 4

// LeadershipScheduler runs the leadership sweep on a ticker.
type LeadershipScheduler struct {
	Service       *workflow.Service
	CheckInterval time.Duration
	WindowWeeks   int
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex

	nextMu  sync.Mutex
	nextRun time.Time
}

// NewLeadershipScheduler creates a new scheduler.
func NewLeadershipScheduler(service *workflow.Service) *LeadershipScheduler {
	return &LeadershipScheduler{
		Service:       service,
		CheckInterval: 24 * time.Hour,
		WindowWeeks:   DefaultWindowWeeks,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (ls *LeadershipScheduler) Start() {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if !ls.Enabled || ls.CheckInterval <= 0 {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}
	if ls.ticker != nil {
		return
	}

	ls.ticker = time.NewTicker(ls.CheckInterval)
	ls.stop = make(chan bool)
	ls.setNextRun(time.Now().Add(ls.CheckInterval))
	ls.wg.Add(1)

	go ls.run(ls.ticker, ls.stop)

	log.Printf("[Scheduler] Started with check interval: %v", ls.CheckInterval)
}

// Stop stops the scheduler and waits for an in-flight sweep to finish.
func (ls *LeadershipScheduler) Stop() {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.ticker != nil {
		ls.ticker.Stop()
		close(ls.stop)
		ls.wg.Wait()
		ls.ticker = nil
		ls.setNextRun(time.Time{})
		log.Println("[Scheduler] Stopped")
	}
}

func (ls *LeadershipScheduler) run(ticker *time.Ticker, stop chan bool) {
	defer ls.wg.Done()

	// Run immediately on start
	ls.RunNow(context.Background())

	for {
		select {
		case t := <-ticker.C:
			ls.setNextRun(t.Add(ls.CheckInterval))
			ls.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow sweeps immediately (for testing/admin).
func (ls *LeadershipScheduler) RunNow(ctx context.Context) (*workflow.SweepResult, error) {
	today := ls.Service.Today()
	window := RecentWindow(today, ls.WindowWeeks)

	log.Printf("[Scheduler] Sweeping leaders over %s", window)

	res, err := ls.Service.SweepLeaders(ctx, window, today)
	if err != nil {
		log.Printf("[Scheduler] Sweep failed: %v", err)
		return res, err
	}
	for _, e := range res.Errors {
		log.Printf("[Scheduler] %v", e)
	}
	if len(res.Reported) > 0 || len(res.Errors) > 0 {
		log.Printf("[Scheduler] Completed: %d evaluated, %d reported, %d failed",
			res.Evaluated, len(res.Reported), len(res.Errors))
	}
	return res, nil
}

// GetNextRunTime returns when the next scheduled sweep will occur, or the
// zero time when the scheduler is not running.
func (ls *LeadershipScheduler) GetNextRunTime() time.Time {
	ls.nextMu.Lock()
	defer ls.nextMu.Unlock()
	return ls.nextRun
}

func (ls *LeadershipScheduler) setNextRun(t time.Time) {
	ls.nextMu.Lock()
	ls.nextRun = t
	ls.nextMu.Unlock()
}

// RecentWindow is the trailing n weeks ending on today, inclusive.
func RecentWindow(today discipline.TimePoint, weeks int) discipline.WeekRange {
	if weeks < 1 {
		weeks = DefaultWindowWeeks
	}
	return discipline.WeekRange{Start: today.AddDays(-7*weeks + 1), End: today}
}
