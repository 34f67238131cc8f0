package relay

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/boostme/boostme/catalog"
	"github.com/boostme/boostme/notify"
	"github.com/boostme/boostme/ranking"
)

// WorkerConfig tunes the relay worker loop.
type WorkerConfig struct {
	// PollInterval between due-user scans. Default: 1m.
	PollInterval time.Duration
	// Lease is the claim visibility window. Default: 2m.
	Lease time.Duration
	// Batch is the max users claimed per scan. Default: 100.
	Batch int
}

func (c *WorkerConfig) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	if c.Lease <= 0 {
		c.Lease = 2 * time.Minute
	}
	if c.Batch <= 0 {
		c.Batch = 100
	}
}

// Worker drains due users: claim, rank, push, reschedule.
type Worker struct {
	store   *Store
	catalog *catalog.Store
	push    *notify.PushClient
	policy  *ranking.Policy
	cfg     WorkerConfig
	logger  *slog.Logger
	now     func() time.Time
}

// WorkerOption customises a Worker.
type WorkerOption func(*Worker)

// WithWorkerLogger sets the logger. Default: slog.Default().
func WithWorkerLogger(l *slog.Logger) WorkerOption { return func(w *Worker) { w.logger = l } }

// WithWorkerClock overrides the time source, for tests.
func WithWorkerClock(now func() time.Time) WorkerOption { return func(w *Worker) { w.now = now } }

// WithWorkerPolicy overrides the ranking policy.
func WithWorkerPolicy(p *ranking.Policy) WorkerOption { return func(w *Worker) { w.policy = p } }

// NewWorker wires the relay worker.
func NewWorker(store *Store, cat *catalog.Store, push *notify.PushClient, cfg WorkerConfig, opts ...WorkerOption) *Worker {
	cfg.defaults()
	w := &Worker{
		store:   store,
		catalog: cat,
		push:    push,
		policy:  ranking.NewPolicy(ranking.Config{Mode: ranking.ModeAffinity, Rand: rand.New(rand.NewSource(time.Now().UnixNano()))}),
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run polls for due users until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("relay: worker started", "poll", w.cfg.PollInterval, "lease", w.cfg.Lease)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("relay: worker stopped")
			return
		case <-ticker.C:
			w.ProcessDue(ctx)
		}
	}
}

// ProcessDue claims and processes one batch of due users. Exported so tests
// and a one-shot CLI mode can drive the worker without the ticker.
func (w *Worker) ProcessDue(ctx context.Context) {
	now := w.now()
	users, err := w.store.ClaimDue(ctx, now, w.cfg.Lease, w.cfg.Batch)
	if err != nil {
		w.logger.Error("relay: claim failed", "error", err)
		return
	}
	for _, u := range users {
		if err := w.processUser(ctx, u, now); err != nil {
			w.logger.Warn("relay: user cycle failed", "token", u.Token, "error", err)
			if rerr := w.store.Release(ctx, u.Token); rerr != nil {
				w.logger.Error("relay: release failed", "token", u.Token, "error", rerr)
			}
		}
	}
}

func (w *Worker) processUser(ctx context.Context, u *User, now time.Time) error {
	loc := u.Settings.Location()
	localNow := now.In(loc)

	day := localNow.Format("2006-01-02")
	if u.LastReset != day {
		u.LastReset = day
		u.SentToday = 0
		u.ShownToday = nil
	}

	// Whole day excluded by the window: park the user until tomorrow.
	if !u.Settings.ShouldSendToday(localNow) {
		u.NextTrigger = NextTrigger(now, true, loc)
		return w.store.CompleteCycle(ctx, u)
	}

	if u.SentToday > u.Settings.MaxQuotes {
		u.NextTrigger = NextTrigger(now, true, loc)
		return w.store.CompleteCycle(ctx, u)
	}

	quotes, err := w.catalog.GetAll(ctx)
	if err != nil {
		return err
	}
	if !u.Settings.Community {
		filtered := quotes[:0]
		for _, q := range quotes {
			if q.Source != "community" {
				filtered = append(filtered, q)
			}
		}
		quotes = filtered
	}

	shown := make(map[string]bool, len(u.ShownToday))
	for _, id := range u.ShownToday {
		shown[id] = true
	}

	if q := w.policy.Pick(quotes, shown, localNow); q != nil {
		if err := w.push.Send(ctx, u.Token, notify.FromQuote(*q)); err != nil {
			// Push failures keep the hourly cadence; the quote is not
			// counted against the quota.
			w.logger.Warn("relay: push failed", "token", u.Token, "quote_id", q.ID, "error", err)
		} else {
			u.SentToday++
			u.ShownToday = append(u.ShownToday, q.ID)
		}
	}

	u.NextTrigger = NextTrigger(now, u.SentToday > u.Settings.MaxQuotes, loc)
	return w.store.CompleteCycle(ctx, u)
}
