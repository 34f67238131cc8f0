package engine

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boostme/boostme/catalog"
	"github.com/boostme/boostme/dbopen"
	"github.com/boostme/boostme/notify"
	"github.com/boostme/boostme/settings"
	_ "modernc.org/sqlite"
)

// testEngine bundles a Service with its fakes for scheduler-level tests.
type testEngine struct {
	svc   *Service
	sink  *notify.MemorySink
	clock *fakeClock
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func newTestEngine(t *testing.T, quotes []catalog.Quote, st *settings.Settings) *testEngine {
	t.Helper()
	db := dbopen.OpenMemory(t)

	cfg := DefaultConfig()
	cfg.Scheduler.Volatility = 0
	cfg.Scheduler.StartDelay = 10 * time.Millisecond

	sink := &notify.MemorySink{}
	clock := &fakeClock{now: time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)} // Monday morning

	svc, err := New(db, cfg,
		WithSinks(sink),
		WithSyncer(nil),
		WithClock(clock.Now),
		WithRand(rand.New(rand.NewSource(1))),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ctx := context.Background()
	if len(quotes) > 0 {
		if err := svc.catalog.ReplaceAll(ctx, quotes); err != nil {
			t.Fatalf("seed catalog: %v", err)
		}
	}
	if st != nil {
		if st.Timezone == "" {
			// Pin the zone so day boundaries don't depend on the host.
			st.Timezone = "UTC"
		}
		if err := svc.settings.Save(ctx, st); err != nil {
			t.Fatalf("seed settings: %v", err)
		}
		// Settings are saved after New, so seed the zone the way New does.
		svc.sched.loc = st.Location()
	}
	return &testEngine{svc: svc, sink: sink, clock: clock}
}

func manyQuotes(n int) []catalog.Quote {
	out := make([]catalog.Quote, n)
	for i := range out {
		out[i] = catalog.Quote{ID: string(rune('a'+i)) + "_q", Body: "quote body"}
	}
	return out
}

// cycle runs one scheduler evaluation under the fake clock.
func (te *testEngine) cycle() {
	te.svc.sched.mu.Lock()
	defer te.svc.sched.mu.Unlock()
	te.svc.sched.evaluate(context.Background())
}

func TestScheduler_QuotaSuppressesAfterLimit(t *testing.T) {
	// WHAT: With maxQuotes=M, cycles keep sending until the counter passes
	// M, then suppress while still re-arming.
	st := settings.Default()
	st.MaxQuotes = 2
	te := newTestEngine(t, manyQuotes(10), st)

	for i := 0; i < 6; i++ {
		te.cycle()
	}
	// Counts 0,1,2 pass the quota check: three sends, then suppression.
	if got := len(te.sink.Sent()); got != 3 {
		t.Fatalf("expected 3 sends for maxQuotes=2, got %d", got)
	}
	daily := te.svc.sched.Daily()
	if daily.Count != 3 || len(daily.Shown) != 3 {
		t.Fatalf("daily counters diverged: %+v", daily)
	}
}

func TestScheduler_DayRolloverResetsCounters(t *testing.T) {
	// WHAT: The first cycle on a new calendar day clears count and shown.
	st := settings.Default()
	st.MaxQuotes = 1
	te := newTestEngine(t, manyQuotes(5), st)

	for i := 0; i < 4; i++ {
		te.cycle()
	}
	sentDay1 := len(te.sink.Sent())

	te.clock.now = te.clock.now.Add(24 * time.Hour)
	te.cycle()

	daily := te.svc.sched.Daily()
	if daily.Day != "2026-09-01" {
		t.Fatalf("day not rolled: %+v", daily)
	}
	if daily.Count != 1 || len(daily.Shown) != 1 {
		t.Fatalf("counters not reset on rollover: %+v", daily)
	}
	if len(te.sink.Sent()) != sentDay1+1 {
		t.Fatalf("expected a send on the fresh day")
	}
}

func TestScheduler_DayBoundaryFollowsUserTimezone(t *testing.T) {
	// WHAT: Crossing process midnight must not reset the quota while the
	// user's local calendar day is unchanged.
	st := settings.Default()
	st.MaxQuotes = 1
	st.Timezone = "Asia/Ho_Chi_Minh" // UTC+7
	te := newTestEngine(t, manyQuotes(6), st)

	te.clock.now = time.Date(2026, 8, 31, 23, 30, 0, 0, time.UTC) // 06:30 Sep 1 local
	for i := 0; i < 4; i++ {
		te.cycle()
	}
	sent := len(te.sink.Sent())
	if sent != 2 {
		t.Fatalf("expected quota filled with 2 sends, got %d", sent)
	}

	te.clock.now = time.Date(2026, 9, 1, 0, 30, 0, 0, time.UTC) // 07:30, same local day
	for i := 0; i < 4; i++ {
		te.cycle()
	}
	if got := len(te.sink.Sent()); got != sent {
		t.Fatalf("quota reset across process midnight: %d extra sends", got-sent)
	}
	if d := te.svc.sched.Daily(); d.Day != "2026-09-01" {
		t.Fatalf("expected user-local day 2026-09-01, got %q", d.Day)
	}
}

func TestScheduler_WorkdayWindowSuppressesWeekend(t *testing.T) {
	// WHAT: A workday-only config sends nothing on Saturday and leaves the
	// daily counters untouched.
	st := settings.Default()
	st.TimeWindow = settings.Workday
	te := newTestEngine(t, manyQuotes(5), st)

	te.clock.now = time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC) // Saturday
	te.cycle()
	te.cycle()

	if len(te.sink.Sent()) != 0 {
		t.Fatal("weekend cycle sent a notification under workday window")
	}
	daily := te.svc.sched.Daily()
	if daily.Count != 0 || len(daily.Shown) != 0 {
		t.Fatalf("suppressed cycle mutated daily state: %+v", daily)
	}
}

func TestScheduler_DisabledSendsNothing(t *testing.T) {
	// WHAT: enabled=false suppresses sends but cycles keep re-arming.
	st := settings.Default()
	st.Enabled = false
	te := newTestEngine(t, manyQuotes(5), st)

	te.cycle()
	if len(te.sink.Sent()) != 0 {
		t.Fatal("disabled engine sent a notification")
	}
	if te.svc.sched.State() == StateStopped {
		t.Fatal("a disabled cycle must not stop the scheduler")
	}
}

func TestScheduler_ExhaustedCatalogGoesSilent(t *testing.T) {
	// WHAT: Once every quote was shown today, cycles pass without a send
	// and the count stays equal to the shown-set size.
	st := settings.Default()
	st.MaxQuotes = 10
	te := newTestEngine(t, manyQuotes(2), st)

	for i := 0; i < 5; i++ {
		te.cycle()
	}
	if got := len(te.sink.Sent()); got != 2 {
		t.Fatalf("expected 2 sends for a 2-quote catalog, got %d", got)
	}
	daily := te.svc.sched.Daily()
	if daily.Count != 2 || len(daily.Shown) != 2 {
		t.Fatalf("count must track shown exactly: %+v", daily)
	}
}

func TestScheduler_DoubleStartYieldsSingleFire(t *testing.T) {
	// WHAT: Start while armed replaces the pending timer instead of
	// stacking a second one.
	st := settings.Default()
	st.MaxQuotes = 1
	te := newTestEngine(t, manyQuotes(3), st)

	te.svc.sched.Start()
	te.svc.sched.Start()

	deadline := time.After(2 * time.Second)
	for len(te.sink.Sent()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timer never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}
	// Interval after the first fire is hours long; any second send within
	// this window means two timers were pending.
	time.Sleep(100 * time.Millisecond)
	if got := len(te.sink.Sent()); got != 1 {
		t.Fatalf("expected exactly 1 send after double start, got %d", got)
	}
}

func TestScheduler_RestoreResumesSameDayOnly(t *testing.T) {
	// WHAT: A persisted daily record from today is restored; a stale one
	// from yesterday is ignored.
	st := settings.Default()
	te := newTestEngine(t, manyQuotes(3), st)

	te.svc.sched.restore(settings.DailyRecord{Day: "2026-08-31", Count: 2, Shown: []string{"x", "y"}})
	daily := te.svc.sched.Daily()
	if daily.Count != 2 || len(daily.Shown) != 2 {
		t.Fatalf("same-day record not restored: %+v", daily)
	}

	te2 := newTestEngine(t, nil, settings.Default())
	te2.svc.sched.restore(settings.DailyRecord{Day: "2026-08-30", Count: 2, Shown: []string{"x"}})
	if d := te2.svc.sched.Daily(); d.Count != 0 {
		t.Fatalf("stale record restored: %+v", d)
	}
}

func TestScheduler_JitterStaysWithinVolatility(t *testing.T) {
	// WHAT: The jittered interval stays inside [d-v, d+v] and above the floor.
	s := newScheduler(SchedulerConfig{
		StartDelay:  time.Second,
		Volatility:  20 * time.Minute,
		ActiveHours: 14,
		MinInterval: time.Minute,
	}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.rng = rand.New(rand.NewSource(9))

	base := 2 * time.Hour
	for i := 0; i < 1000; i++ {
		d := s.jittered(base)
		if d < base-20*time.Minute || d > base+20*time.Minute {
			t.Fatalf("jitter out of bounds: %v", d)
		}
	}
	if d := s.jittered(30 * time.Second); d < time.Minute {
		t.Fatalf("floor violated: %v", d)
	}
}

func TestService_SaveSettingsTogglesScheduler(t *testing.T) {
	// WHAT: Saving enabled settings arms the scheduler; disabling stops it.
	te := newTestEngine(t, manyQuotes(3), nil)
	ctx := context.Background()

	st := settings.Default()
	if err := te.svc.SaveSettings(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := te.svc.sched.State(); got != StateArmed {
		t.Fatalf("expected armed after enable, got %s", got)
	}

	st.Enabled = false
	if err := te.svc.SaveSettings(ctx, st); err != nil {
		t.Fatalf("save disabled: %v", err)
	}
	if got := te.svc.sched.State(); got != StateStopped {
		t.Fatalf("expected stopped after disable, got %s", got)
	}
}

func TestService_SaveSettingsSurvivesMirrorFailure(t *testing.T) {
	// WHAT: The local write is authoritative; a failing mirror endpoint is
	// logged, never surfaced to the caller.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	mirror, err := settings.NewMirror(srv.URL, settings.WithPrivateMirrorHost())
	if err != nil {
		t.Fatalf("mirror: %v", err)
	}

	db := dbopen.OpenMemory(t)
	svc, err := New(db, DefaultConfig(),
		WithSinks(&notify.MemorySink{}),
		WithSyncer(nil),
		WithMirror(mirror),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer svc.Stop()

	st := settings.Default()
	st.PushToken = "tok_123"
	ctx := context.Background()
	if err := svc.SaveSettings(ctx, st); err != nil {
		t.Fatalf("save must succeed despite mirror failure: %v", err)
	}

	got, err := svc.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get after save: %v", err)
	}
	if got.PushToken != "tok_123" {
		t.Fatalf("local record lost: %+v", got)
	}
}

func TestService_CommunityOptOutFiltersCatalog(t *testing.T) {
	// WHAT: With community content off, community-sourced quotes never
	// reach the ranking policy.
	quotes := []catalog.Quote{
		{ID: "cur_1", Body: "curated"},
		{ID: "com_1", Body: "community", Source: "community"},
	}
	st := settings.Default()
	st.Community = false
	st.MaxQuotes = 10
	te := newTestEngine(t, quotes, st)

	for i := 0; i < 4; i++ {
		te.cycle()
	}
	sent := te.sink.Sent()
	if len(sent) != 1 || sent[0].Tag != "cur_1" {
		t.Fatalf("community filter failed: %+v", sent)
	}
}

func TestService_StatusReportsCounters(t *testing.T) {
	// WHAT: Status exposes state, today's count and catalog size.
	st := settings.Default()
	te := newTestEngine(t, manyQuotes(4), st)
	te.cycle()

	status := te.svc.Status(context.Background())
	if status["state"] != "idle" && status["state"] != "armed" {
		t.Fatalf("unexpected state: %v", status["state"])
	}
	if status["sent_today"] != 1 {
		t.Fatalf("expected sent_today=1, got %v", status["sent_today"])
	}
	if status["catalog_size"] != 4 {
		t.Fatalf("expected catalog_size=4, got %v", status["catalog_size"])
	}
}
