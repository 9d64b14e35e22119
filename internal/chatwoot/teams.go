package chatwoot

import (
	"context"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/supportrelay/chatwoot-ai-bridge/internal/lib/sl"
)

// TeamLister is the slice of the Chatwoot API the directory needs.
type TeamLister interface {
	ListTeams(ctx context.Context) ([]Team, error)
}

// TeamDirectory caches the lower-cased team name → ID mapping with a TTL.
// The mapping is replaced wholesale on refresh, never mutated in place,
// so readers see either the old set or the new set, never a mix.
// With caching disabled every lookup hits the API directly and no shared
// state is touched.
type TeamDirectory struct {
	lister  TeamLister
	ttl     time.Duration
	enabled bool
	log     *slog.Logger

	mu          sync.RWMutex
	cache       map[string]int64
	lastRefresh time.Time

	// refreshMu serializes fetch+swap; it is never held across lookups.
	refreshMu sync.Mutex
}

func NewTeamDirectory(lister TeamLister, ttl time.Duration, enabled bool, log *slog.Logger) *TeamDirectory {
	return &TeamDirectory{
		lister:  lister,
		ttl:     ttl,
		enabled: enabled,
		log:     log.With(sl.Module("teams")),
	}
}

func (d *TeamDirectory) Enabled() bool {
	return d.enabled
}

// ResolveTeamID returns the ID for a team name, case-insensitively.
// The boolean reports whether the name is known.
func (d *TeamDirectory) ResolveTeamID(ctx context.Context, name string) (int64, bool, error) {
	key := strings.ToLower(name)

	if !d.enabled {
		teams, err := d.lister.ListTeams(ctx)
		if err != nil {
			return 0, false, err
		}
		for _, t := range teams {
			if strings.ToLower(t.Name) == key {
				return t.ID, true, nil
			}
		}
		return 0, false, nil
	}

	if d.stale() {
		if err := d.refreshIfStale(ctx); err != nil {
			// Stale-but-available: keep answering from the previous
			// mapping when one exists.
			d.mu.RLock()
			empty := len(d.cache) == 0
			d.mu.RUnlock()
			if empty {
				return 0, false, err
			}
			d.log.Warn("team cache refresh failed, serving stale mapping", sl.Err(err))
		}
	}

	d.mu.RLock()
	id, ok := d.cache[key]
	d.mu.RUnlock()
	return id, ok, nil
}

// Refresh fetches the full team list and atomically swaps in the new
// mapping. Disabled mode is a no-op returning the current (empty) view.
// On fetch failure the previous mapping is kept and the error returned.
func (d *TeamDirectory) Refresh(ctx context.Context) (map[string]int64, error) {
	if !d.enabled {
		return d.snapshot(), nil
	}

	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()
	return d.fetchAndSwap(ctx)
}

// refreshIfStale is the TTL-triggered path: a caller that lost the race
// for the refresh lock finds a fresh mapping and skips its own fetch.
func (d *TeamDirectory) refreshIfStale(ctx context.Context) error {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()

	if !d.stale() {
		return nil
	}
	_, err := d.fetchAndSwap(ctx)
	return err
}

func (d *TeamDirectory) fetchAndSwap(ctx context.Context) (map[string]int64, error) {
	teams, err := d.lister.ListTeams(ctx)
	if err != nil {
		return nil, err
	}

	fresh := make(map[string]int64, len(teams))
	for _, t := range teams {
		fresh[strings.ToLower(t.Name)] = t.ID
	}

	d.mu.Lock()
	d.cache = fresh
	d.lastRefresh = time.Now()
	d.mu.Unlock()

	d.log.Info("team cache refreshed", slog.Int("teams", len(fresh)))
	return maps.Clone(fresh), nil
}

func (d *TeamDirectory) stale() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cache == nil || time.Since(d.lastRefresh) > d.ttl
}

func (d *TeamDirectory) snapshot() map[string]int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.cache)
}

// KnownTeams returns the cached team names, sorted. Empty when caching is
// disabled or the cache has never been populated.
func (d *TeamDirectory) KnownTeams() []string {
	d.mu.RLock()
	names := make([]string, 0, len(d.cache))
	for name := range d.cache {
		names = append(names, name)
	}
	d.mu.RUnlock()

	sort.Strings(names)
	return names
}
