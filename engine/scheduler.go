package engine

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/boostme/boostme/catalog"
	"github.com/boostme/boostme/ranking"
	"github.com/boostme/boostme/settings"
)

// State is the scheduler's lifecycle position.
type State int

const (
	// StateIdle means never started.
	StateIdle State = iota
	// StateArmed means exactly one timer is pending.
	StateArmed
	// StateFiring means a notification cycle is executing.
	StateFiring
	// StateStopped means explicitly halted; no timer is pending.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateFiring:
		return "firing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// dailyState tracks one calendar day's deliveries. count always equals the
// size of shown: both advance only when a quote is actually dispatched.
type dailyState struct {
	day   string // "2006-01-02"
	count int
	shown map[string]bool
}

func (d *dailyState) resetTo(day string) {
	d.day = day
	d.count = 0
	d.shown = make(map[string]bool)
}

func (d *dailyState) record() settings.DailyRecord {
	rec := settings.DailyRecord{Day: d.day, Count: d.count}
	for id := range d.shown {
		rec.Shown = append(rec.Shown, id)
	}
	return rec
}

// scheduler is the notification timer state machine. All transitions run
// under mu; the timer callback is the only writer of dailyState.
type scheduler struct {
	cfg    SchedulerConfig
	policy *ranking.Policy
	logger *slog.Logger

	loadSettings func(ctx context.Context) (*settings.Settings, error)
	loadCatalog  func(ctx context.Context, st *settings.Settings) ([]catalog.Quote, error)
	send         func(ctx context.Context, q catalog.Quote)
	persistDaily func(ctx context.Context, rec settings.DailyRecord)

	now func() time.Time
	rng *rand.Rand

	mu    sync.Mutex
	state State
	timer *time.Timer
	daily dailyState
	loc   *time.Location
}

func newScheduler(cfg SchedulerConfig, policy *ranking.Policy, logger *slog.Logger) *scheduler {
	if cfg.StartDelay <= 0 {
		cfg.StartDelay = 15 * time.Second
	}
	if cfg.Volatility < 0 {
		cfg.Volatility = 0
	}
	if cfg.ActiveHours <= 0 {
		cfg.ActiveHours = 14
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = time.Minute
	}
	s := &scheduler{
		cfg:    cfg,
		policy: policy,
		logger: logger,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		loc:    time.Local,
	}
	s.daily.resetTo("")
	return s
}

// restore seeds the daily counters from a persisted record, typically at
// process start. Stale records (a different day) are ignored: the next
// cycle's lazy reset would discard them anyway.
func (s *scheduler) restore(rec settings.DailyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Day == "" || rec.Day != s.now().In(s.loc).Format("2006-01-02") {
		return
	}
	s.daily.day = rec.Day
	s.daily.count = rec.Count
	s.daily.shown = make(map[string]bool, len(rec.Shown))
	for _, id := range rec.Shown {
		s.daily.shown[id] = true
	}
}

// Start arms the first-fire timer. Calling it while already armed replaces
// the pending timer, so repeated starts still yield a single pending fire.
func (s *scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arm(s.cfg.StartDelay)
	s.logger.Info("scheduler: armed", "delay", s.cfg.StartDelay)
}

// Stop cancels any pending timer.
func (s *scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.state = StateStopped
	s.logger.Info("scheduler: stopped")
}

// State returns the current lifecycle position.
func (s *scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Daily returns a snapshot of today's counters.
func (s *scheduler) Daily() settings.DailyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.daily.record()
}

// arm schedules the next fire, cancelling any pending timer first. There is
// never more than one pending timer. Caller holds mu.
func (s *scheduler) arm(d time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(d, s.fire)
	s.state = StateArmed
}

func (s *scheduler) fire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return
	}
	s.state = StateFiring

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	delay := s.evaluate(ctx)
	s.arm(delay)
}

// evaluate runs one notification cycle and returns the delay until the next
// one. Caller holds mu.
//
// Order matters: settings load first because the day boundary is a user-local
// concept, then the day reset so counters clear even on suppressed cycles,
// then the quota check so an exhausted day costs no catalog read.
func (s *scheduler) evaluate(ctx context.Context) time.Duration {
	now := s.now()

	st, err := s.loadSettings(ctx)
	if err != nil {
		s.logger.Warn("scheduler: settings unavailable, idling this cycle", "error", err)
		s.rollDay(ctx, now.In(s.loc))
		return s.jittered(time.Hour)
	}
	s.loc = st.Location()

	localNow := now.In(s.loc)
	s.rollDay(ctx, localNow)
	interval := s.nominalInterval(st.MaxQuotes)

	if !st.Enabled {
		s.logger.Debug("scheduler: disabled, no send")
		return s.jittered(interval)
	}
	if !st.ShouldSendToday(localNow) {
		s.logger.Debug("scheduler: outside time window", "window", st.TimeWindow, "weekday", localNow.Weekday().String())
		return s.jittered(interval)
	}
	if s.daily.count > st.MaxQuotes {
		s.logger.Debug("scheduler: daily quota exhausted", "count", s.daily.count, "max", st.MaxQuotes)
		return s.jittered(interval)
	}

	quotes, err := s.loadCatalog(ctx, st)
	if err != nil {
		s.logger.Warn("scheduler: catalog unavailable", "error", err)
		return s.jittered(interval)
	}

	q := s.policy.Pick(quotes, s.daily.shown, localNow)
	if q == nil {
		s.logger.Info("scheduler: no eligible quote this cycle")
		return s.jittered(interval)
	}

	s.daily.count++
	s.daily.shown[q.ID] = true
	s.persistDaily(ctx, s.daily.record())
	s.send(ctx, *q)

	return s.jittered(interval)
}

// rollDay resets the counters when localNow crosses into a new user-local
// calendar day. Caller holds mu.
func (s *scheduler) rollDay(ctx context.Context, localNow time.Time) {
	day := localNow.Format("2006-01-02")
	if s.daily.day == day {
		return
	}
	s.daily.resetTo(day)
	s.persistDaily(ctx, s.daily.record())
	s.logger.Info("scheduler: new day", "day", day)
}

// nominalInterval spreads the daily quota across the active hours.
func (s *scheduler) nominalInterval(maxQuotes int) time.Duration {
	if maxQuotes < 1 {
		maxQuotes = 1
	}
	return time.Duration(s.cfg.ActiveHours / float64(maxQuotes) * float64(time.Hour))
}

// jittered perturbs d by a uniform magnitude up to Volatility with a uniform
// sign, clamped to MinInterval.
func (s *scheduler) jittered(d time.Duration) time.Duration {
	if s.cfg.Volatility > 0 {
		j := time.Duration(s.rng.Int63n(int64(s.cfg.Volatility) + 1))
		if s.rng.Intn(2) == 0 {
			j = -j
		}
		d += j
	}
	if d < s.cfg.MinInterval {
		d = s.cfg.MinInterval
	}
	return d
}
