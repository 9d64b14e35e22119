package chatwoot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	mu    sync.Mutex
	teams []Team
	err   error
	calls int
}

func (f *fakeLister) ListTeams(_ context.Context) ([]Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]Team, len(f.teams))
	copy(out, f.teams)
	return out, nil
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeLister) set(teams []Team, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teams = teams
	f.err = err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveTeamIDLowercasesLookup(t *testing.T) {
	lister := &fakeLister{teams: []Team{{ID: 1, Name: "Support Team"}, {ID: 2, Name: "Sales"}}}
	d := NewTeamDirectory(lister, time.Hour, true, testLogger())

	id, ok, err := d.ResolveTeamID(context.Background(), "SUPPORT team")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, id)
}

func TestResolveTeamIDTTLExpiryTriggersSingleRefresh(t *testing.T) {
	lister := &fakeLister{teams: []Team{{ID: 1, Name: "Support"}}}
	d := NewTeamDirectory(lister, time.Hour, true, testLogger())

	_, err := d.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, lister.callCount())

	// Fresh cache: no extra fetch.
	_, ok, err := d.ResolveTeamID(context.Background(), "support")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, lister.callCount())

	// Expired cache: exactly one refresh before answering.
	d.mu.Lock()
	d.lastRefresh = time.Now().Add(-2 * time.Hour)
	d.mu.Unlock()

	_, ok, err = d.ResolveTeamID(context.Background(), "support")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, lister.callCount())
}

func TestResolveTeamIDDisabledBypassesCache(t *testing.T) {
	lister := &fakeLister{teams: []Team{{ID: 3, Name: "Support"}}}
	d := NewTeamDirectory(lister, time.Hour, false, testLogger())

	for i := 0; i < 2; i++ {
		id, ok, err := d.ResolveTeamID(context.Background(), "Support")
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 3, id)
	}
	require.Equal(t, 2, lister.callCount(), "disabled cache must hit the remote on every lookup")

	// Refresh is a no-op in disabled mode.
	mapping, err := d.Refresh(context.Background())
	require.NoError(t, err)
	require.Empty(t, mapping)
	require.Equal(t, 2, lister.callCount())
}

func TestRefreshFailureKeepsPreviousMapping(t *testing.T) {
	lister := &fakeLister{teams: []Team{{ID: 1, Name: "Support"}}}
	d := NewTeamDirectory(lister, time.Hour, true, testLogger())

	_, err := d.Refresh(context.Background())
	require.NoError(t, err)

	lister.set(nil, errors.New("chatwoot down"))
	_, err = d.Refresh(context.Background())
	require.Error(t, err)

	// Stale-but-available: the old mapping still answers.
	id, ok, lookupErr := d.ResolveTeamID(context.Background(), "support")
	require.NoError(t, lookupErr)
	require.True(t, ok)
	require.EqualValues(t, 1, id)
}

func TestRefreshFailureWithEmptyCachePropagates(t *testing.T) {
	lister := &fakeLister{err: errors.New("chatwoot down")}
	d := NewTeamDirectory(lister, time.Hour, true, testLogger())

	_, _, err := d.ResolveTeamID(context.Background(), "support")
	require.Error(t, err)
}

func TestRefreshSwapIsAtomicUnderConcurrentReads(t *testing.T) {
	generationA := []Team{{ID: 1, Name: "Support"}, {ID: 2, Name: "Sales"}}
	generationB := []Team{{ID: 10, Name: "Support"}, {ID: 20, Name: "Sales"}}

	lister := &fakeLister{teams: generationA}
	d := NewTeamDirectory(lister, time.Hour, true, testLogger())
	_, err := d.Refresh(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		flip := false
		for {
			select {
			case <-done:
				return
			default:
			}
			if flip {
				lister.set(generationA, nil)
			} else {
				lister.set(generationB, nil)
			}
			flip = !flip
			_, _ = d.Refresh(context.Background())
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				supportID, ok, err := d.ResolveTeamID(context.Background(), "support")
				require.NoError(t, err)
				require.True(t, ok)
				salesID, ok, err := d.ResolveTeamID(context.Background(), "sales")
				require.NoError(t, err)
				require.True(t, ok)

				// Each individual read sees a complete mapping from one
				// generation, never a hole.
				require.Contains(t, []int64{1, 10}, supportID)
				require.Contains(t, []int64{2, 20}, salesID)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(done)
	wg.Wait()
}

func TestKnownTeamsSorted(t *testing.T) {
	lister := &fakeLister{teams: []Team{{ID: 2, Name: "Sales"}, {ID: 1, Name: "Billing"}, {ID: 3, Name: "support"}}}
	d := NewTeamDirectory(lister, time.Hour, true, testLogger())

	_, err := d.Refresh(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"billing", "sales", "support"}, d.KnownTeams())
}
