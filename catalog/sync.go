package catalog

import (
	"context"
	"log/slog"

	"github.com/boostme/boostme/netprobe"
)

// maxPages bounds a single sync so a misbehaving server cannot keep us
// paging forever.
const maxPages = 1000

// Syncer rebuilds the local snapshot from the remote quote service.
type Syncer struct {
	store  *Store
	client *Client
	probe  netprobe.Prober
	logger *slog.Logger
}

// SyncerOption customises a Syncer.
type SyncerOption func(*Syncer)

// WithProber sets the connectivity prober. Default: DialProber.
func WithProber(p netprobe.Prober) SyncerOption { return func(s *Syncer) { s.probe = p } }

// WithSyncLogger sets the logger. Default: slog.Default().
func WithSyncLogger(l *slog.Logger) SyncerOption { return func(s *Syncer) { s.logger = l } }

// NewSyncer wires a store and a client together.
func NewSyncer(store *Store, client *Client, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		store:  store,
		client: client,
		probe:  &netprobe.DialProber{},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sync fetches every page from the remote service and atomically replaces
// the local snapshot. Returns true only when the snapshot was replaced.
//
// Fail-soft rules: offline means no fetch is attempted and the stale
// snapshot stays; a failed page terminates paging as if it were empty; a
// run that yields zero quotes keeps the prior snapshot rather than wiping it.
func (s *Syncer) Sync(ctx context.Context) bool {
	if !s.probe.Online(ctx) {
		s.logger.Info("sync: offline, keeping current snapshot")
		return false
	}

	var all []Quote
	for page := 0; page < maxPages; page++ {
		quotes, err := s.client.Page(ctx, page)
		if err != nil {
			s.logger.Warn("sync: page fetch failed, stopping pagination", "page", page, "error", err)
			break
		}
		if len(quotes) == 0 {
			break
		}
		all = append(all, quotes...)
	}

	if len(all) == 0 {
		s.logger.Warn("sync: remote returned no quotes, keeping current snapshot")
		return false
	}

	if err := s.store.ReplaceAll(ctx, all); err != nil {
		s.logger.Error("sync: snapshot replace failed", "error", err)
		return false
	}

	s.logger.Info("sync: snapshot replaced", "quotes", len(all))
	return true
}
