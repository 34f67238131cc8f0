// Package ranking picks the next quote to display. Candidates are filtered
// against the day's already-shown set, scored for time-of-day fit and shift
// tag affinity, then drawn at random with the draw biased toward the boosted
// tail when enough candidates earned a boost.
package ranking

import (
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/boostme/boostme/catalog"
)

// Mode selects which signals contribute to a candidate's rank.
type Mode int

const (
	// ModeTimeFit ranks on the quote's declared display window only.
	ModeTimeFit Mode = iota
	// ModeAffinity additionally rewards quotes tagged for the current shift.
	ModeAffinity
)

// Default tuning. BoostThreshold is the minimum boosted-pool size before the
// draw narrows to boosted candidates only; MaxBodyLen keeps notification
// bodies inside platform display limits.
const (
	DefaultBoostThreshold = 3
	DefaultMaxBodyLen     = 300
)

// Config tunes a Policy. Zero values fall back to defaults.
type Config struct {
	Mode           Mode
	StrictBoost    bool // boosted pool = rank exactly 1, not rank >= 1
	BoostThreshold int
	MaxBodyLen     int
	Rand           *rand.Rand
}

func (c *Config) defaults() {
	if c.BoostThreshold <= 0 {
		c.BoostThreshold = DefaultBoostThreshold
	}
	if c.MaxBodyLen <= 0 {
		c.MaxBodyLen = DefaultMaxBodyLen
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
}

// Policy is a configured ranking strategy. Not safe for concurrent use: the
// scheduler owns one and calls it from a single goroutine.
type Policy struct {
	cfg Config
}

// NewPolicy applies defaults and returns a Policy.
func NewPolicy(cfg Config) *Policy {
	cfg.defaults()
	return &Policy{cfg: cfg}
}

// Pick selects the next quote from quotes, excluding IDs present in shown.
// Returns nil when every candidate is filtered out.
func (p *Policy) Pick(quotes []catalog.Quote, shown map[string]bool, now time.Time) *catalog.Quote {
	type candidate struct {
		quote catalog.Quote
		rank  int
	}

	shiftTags := ShiftTags(now.Hour())

	var cands []candidate
	for _, q := range quotes {
		if q.ID == "" || shown[q.ID] {
			continue
		}
		if utf8.RuneCountInString(q.Body) > p.cfg.MaxBodyLen {
			continue
		}
		rank := 0
		if q.HasTimeRange() && hourInRange(now.Hour(), q.TimeStart, q.TimeEnd) {
			rank++
		}
		if p.cfg.Mode == ModeAffinity && hasAnyTag(&q, shiftTags) {
			rank++
		}
		cands = append(cands, candidate{quote: q, rank: rank})
	}
	if len(cands) == 0 {
		return nil
	}

	// Ascending by rank; stable so the boosted tail keeps input order.
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].rank < cands[j].rank })

	var boosted []candidate
	for _, c := range cands {
		if (p.cfg.StrictBoost && c.rank == 1) || (!p.cfg.StrictBoost && c.rank >= 1) {
			boosted = append(boosted, c)
		}
	}

	pool := cands
	if len(boosted) > p.cfg.BoostThreshold {
		pool = boosted
	}
	picked := pool[p.cfg.Rand.Intn(len(pool))].quote
	return &picked
}

// ShiftTags returns the preferred tag set for the shift containing the given
// hour: morning before 12, afternoon from 12 to 18, night after.
func ShiftTags(hour int) []string {
	switch {
	case hour < 12:
		return []string{"goal", "productive", "inspired"}
	case hour < 18:
		return []string{"life", "work", "funny"}
	default:
		return []string{"calm", "love", "wisdom"}
	}
}

// hourInRange reports whether hour falls inside ["HH:mm", "HH:mm") at hour
// granularity. Unparseable bounds never match.
func hourInRange(hour int, start, end string) bool {
	sh, ok := parseHour(start)
	if !ok {
		return false
	}
	eh, ok := parseHour(end)
	if !ok {
		return false
	}
	return hour >= sh && hour < eh
}

func parseHour(hhmm string) (int, bool) {
	h, _, found := strings.Cut(hhmm, ":")
	if !found {
		return 0, false
	}
	n, err := strconv.Atoi(h)
	if err != nil || n < 0 || n > 23 {
		return 0, false
	}
	return n, true
}

func hasAnyTag(q *catalog.Quote, tags []string) bool {
	for _, t := range tags {
		if q.HasTag(t) {
			return true
		}
	}
	return false
}
