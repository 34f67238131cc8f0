// Package engine wires the boostme notification engine together: the quote
// catalog and its sync loop, the settings store, the ranking policy and the
// notification scheduler, exposed through one Service.
package engine

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/boostme/boostme/catalog"
	"github.com/boostme/boostme/netprobe"
	"github.com/boostme/boostme/notify"
	"github.com/boostme/boostme/observability"
	"github.com/boostme/boostme/ranking"
	"github.com/boostme/boostme/settings"
)

// Service is the on-device notification engine.
type Service struct {
	cfg    *Config
	logger *slog.Logger

	catalog  *catalog.Store
	settings *settings.Store
	syncer   *catalog.Syncer
	mirror   *settings.Mirror
	sinks    []notify.Sink
	events   *observability.EventLogger
	sched    *scheduler

	prober    netprobe.Prober
	clock     func() time.Time
	rng       *rand.Rand
	syncerSet bool
}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithSinks sets the notification sinks. Default: the structured log.
func WithSinks(sinks ...notify.Sink) Option { return func(s *Service) { s.sinks = sinks } }

// WithMirror enables best-effort settings mirroring to the relay.
func WithMirror(m *settings.Mirror) Option { return func(s *Service) { s.mirror = m } }

// WithEventLogger enables the delivery trail.
func WithEventLogger(l *observability.EventLogger) Option { return func(s *Service) { s.events = l } }

// WithSyncer overrides the catalog syncer; nil disables syncing. Intended
// for tests and for deployments without a remote catalog.
func WithSyncer(sy *catalog.Syncer) Option {
	return func(s *Service) {
		s.syncer = sy
		s.syncerSet = true
	}
}

// WithProber sets the connectivity prober used by the default syncer.
func WithProber(p netprobe.Prober) Option { return func(s *Service) { s.prober = p } }

// WithClock overrides the scheduler's time source, for tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.clock = now } }

// WithRand seeds the scheduler and ranking randomness, for tests.
func WithRand(rng *rand.Rand) Option { return func(s *Service) { s.rng = rng } }

// New builds a Service on db. The catalog, settings and observability
// schemas are applied to db if missing.
func New(db *sql.DB, cfg *Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:    cfg,
		logger: slog.Default(),
		prober: &netprobe.DialProber{},
	}
	for _, o := range opts {
		o(s)
	}

	ctx := context.Background()
	for _, apply := range []func(context.Context, *sql.DB) error{
		catalog.ApplySchema, settings.ApplySchema, observability.ApplySchema,
	} {
		if err := apply(ctx, db); err != nil {
			return nil, err
		}
	}

	s.catalog = catalog.NewStore(db, catalog.WithLogger(s.logger))
	s.settings = settings.NewStore(db)
	if len(s.sinks) == 0 {
		s.sinks = []notify.Sink{&notify.LogSink{Logger: s.logger}}
	}

	if !s.syncerSet && cfg.CatalogURL != "" {
		var copts []catalog.ClientOption
		if cfg.Sync.PageRate > 0 {
			copts = append(copts, catalog.WithRateLimit(rate.Limit(cfg.Sync.PageRate), 1))
		}
		if cfg.AllowPrivateHosts {
			copts = append(copts, catalog.WithPrivateHost())
		}
		client, err := catalog.NewClient(cfg.CatalogURL, copts...)
		if err != nil {
			return nil, err
		}
		s.syncer = catalog.NewSyncer(s.catalog, client,
			catalog.WithProber(s.prober), catalog.WithSyncLogger(s.logger))
	}

	if s.mirror == nil && cfg.MirrorURL != "" {
		var mopts []settings.MirrorOption
		if cfg.AllowPrivateHosts {
			mopts = append(mopts, settings.WithPrivateMirrorHost())
		}
		m, err := settings.NewMirror(cfg.MirrorURL, mopts...)
		if err != nil {
			return nil, err
		}
		s.mirror = m
	}

	mode := ranking.ModeAffinity
	if cfg.Ranking.Mode == "timefit" {
		mode = ranking.ModeTimeFit
	}
	policy := ranking.NewPolicy(ranking.Config{
		Mode:           mode,
		StrictBoost:    cfg.Ranking.StrictBoost,
		BoostThreshold: cfg.Ranking.BoostThreshold,
		MaxBodyLen:     cfg.Ranking.MaxBodyLen,
		Rand:           s.rng,
	})

	s.sched = newScheduler(cfg.Scheduler, policy, s.logger)
	if s.clock != nil {
		s.sched.now = s.clock
	}
	if s.rng != nil {
		s.sched.rng = s.rng
	}
	s.sched.loadSettings = s.loadSettings
	s.sched.loadCatalog = s.loadCatalog
	s.sched.send = s.dispatch
	s.sched.persistDaily = s.persistDaily

	// Day boundaries are user-local; seed the zone before restoring counters.
	if st, err := s.settings.Get(ctx); err == nil {
		s.sched.loc = st.Location()
	}
	if rec, err := s.settings.LoadDaily(ctx); err != nil {
		s.logger.Warn("engine: daily state restore failed", "error", err)
	} else {
		s.sched.restore(rec)
	}

	return s, nil
}

// Start launches the background loops: the scheduler (when the engine is
// configured and enabled) and the periodic catalog sync. It returns
// immediately; loops exit when ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	st, err := s.settings.Get(ctx)
	if err == nil && st.Enabled {
		s.sched.Start()
	} else {
		s.logger.Info("engine: scheduler not armed at start", "reason", startReason(st, err))
	}

	if s.syncer != nil {
		go s.syncLoop(ctx)
	}
}

func startReason(st *settings.Settings, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case !st.Enabled:
		return "disabled"
	default:
		return ""
	}
}

func (s *Service) syncLoop(ctx context.Context) {
	delay := s.cfg.Sync.StartupDelay
	if delay <= 0 {
		delay = time.Second
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
		s.syncer.Sync(ctx)
	}

	ticker := time.NewTicker(s.cfg.Sync.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncer.Sync(ctx)
		}
	}
}

// SaveSettings validates and persists settings locally, mirrors them to the
// relay on a best-effort basis, and starts or stops the scheduler to match
// the enabled flag.
func (s *Service) SaveSettings(ctx context.Context, st *settings.Settings) error {
	if err := s.settings.Save(ctx, st); err != nil {
		return err
	}

	if s.mirror != nil && st.PushToken != "" {
		// Local write already succeeded; the mirror is advisory.
		if err := s.mirror.Save(ctx, st); err != nil {
			s.logger.Warn("engine: settings mirror failed", "error", err)
		}
	}

	if st.Enabled {
		s.sched.Start()
	} else {
		s.sched.Stop()
	}
	return nil
}

// GetSettings returns the saved settings or settings.ErrNoSettings.
func (s *Service) GetSettings(ctx context.Context) (*settings.Settings, error) {
	return s.settings.Get(ctx)
}

// Boost re-arms the scheduler for a near-immediate fire and refreshes the
// catalog in the background.
func (s *Service) Boost(ctx context.Context) {
	s.sched.Start()
	if s.syncer != nil {
		go func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			s.syncer.Sync(sctx)
		}()
	}
}

// SyncNow refreshes the catalog synchronously. Returns true when the
// snapshot was replaced.
func (s *Service) SyncNow(ctx context.Context) bool {
	if s.syncer == nil {
		return false
	}
	return s.syncer.Sync(ctx)
}

// Status reports scheduler state, today's counters and the catalog size.
func (s *Service) Status(ctx context.Context) map[string]any {
	daily := s.sched.Daily()
	n, err := s.catalog.Count(ctx)
	if err != nil {
		s.logger.Warn("engine: catalog count failed", "error", err)
	}
	return map[string]any{
		"state":          s.sched.State().String(),
		"day":            daily.Day,
		"sent_today":     daily.Count,
		"catalog_size":   n,
		"sinks":          sinkNames(s.sinks),
		"sync_enabled":   s.syncer != nil,
		"mirror_enabled": s.mirror != nil,
	}
}

// RecentDeliveries returns the latest delivery trail entries, newest first.
// Without an event logger it returns an empty slice.
func (s *Service) RecentDeliveries(ctx context.Context, limit int) ([]observability.DeliveryRecord, error) {
	if s.events == nil {
		return nil, nil
	}
	return s.events.RecentDeliveries(ctx, limit)
}

// Stop halts the scheduler.
func (s *Service) Stop() {
	s.sched.Stop()
}

func sinkNames(sinks []notify.Sink) []string {
	names := make([]string, len(sinks))
	for i, sk := range sinks {
		names[i] = sk.Name()
	}
	return names
}

func (s *Service) loadSettings(ctx context.Context) (*settings.Settings, error) {
	return s.settings.Get(ctx)
}

// loadCatalog reads the snapshot, dropping community quotes when the user
// opted out of community content.
func (s *Service) loadCatalog(ctx context.Context, st *settings.Settings) ([]catalog.Quote, error) {
	quotes, err := s.catalog.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if st.Community {
		return quotes, nil
	}
	filtered := quotes[:0]
	for _, q := range quotes {
		if q.Source != "community" {
			filtered = append(filtered, q)
		}
	}
	return filtered, nil
}

// dispatch fans the quote out to every sink. Delivery is fire-and-forget:
// failures are logged and recorded but never stall the cycle.
func (s *Service) dispatch(ctx context.Context, q catalog.Quote) {
	n := notify.FromQuote(q)
	for _, sink := range s.sinks {
		err := sink.Send(ctx, n)
		if err != nil {
			s.logger.Warn("engine: notification delivery failed", "sink", sink.Name(), "quote_id", q.ID, "error", err)
		}
		if s.events != nil {
			ev := observability.DeliveryEvent{QuoteID: q.ID, Title: n.Title, Sink: sink.Name(), Success: err == nil}
			if err != nil {
				ev.Error = err.Error()
			}
			s.events.LogDelivery(ctx, ev)
		}
	}
}

func (s *Service) persistDaily(ctx context.Context, rec settings.DailyRecord) {
	if err := s.settings.SaveDaily(ctx, rec); err != nil {
		s.logger.Warn("engine: daily state persist failed", "error", err)
	}
}
