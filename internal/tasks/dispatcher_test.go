package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(retries int) *Dispatcher {
	return NewDispatcher(Options{
		Workers:    2,
		QueueSize:  8,
		Retries:    retries,
		Backoff:    0, // no waiting between attempts in tests
		JobTimeout: time.Second,
	}, testLogger())
}

func TestDispatcherRunsJob(t *testing.T) {
	d := newTestDispatcher(0)

	var ran atomic.Int32
	d.Submit(Job{
		Name: "once",
		Run: func(context.Context) error {
			ran.Add(1)
			return nil
		},
	})
	d.Close()

	require.EqualValues(t, 1, ran.Load())
}

func TestDispatcherRetriesUntilSuccess(t *testing.T) {
	d := newTestDispatcher(3)

	var attempts atomic.Int32
	var failed atomic.Bool
	d.Submit(Job{
		Name: "flaky",
		Run: func(context.Context) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient")
			}
			return nil
		},
		OnFailure: func(context.Context) { failed.Store(true) },
	})
	d.Close()

	require.EqualValues(t, 3, attempts.Load())
	require.False(t, failed.Load(), "OnFailure must not fire when a retry succeeds")
}

func TestDispatcherExhaustedRetriesInvokeOnFailure(t *testing.T) {
	d := newTestDispatcher(2)

	var attempts atomic.Int32
	var failures atomic.Int32
	d.Submit(Job{
		Name: "doomed",
		Run: func(context.Context) error {
			attempts.Add(1)
			return errors.New("permanent")
		},
		OnFailure: func(context.Context) { failures.Add(1) },
	})
	d.Close()

	require.EqualValues(t, 3, attempts.Load(), "retries=2 means three attempts total")
	require.EqualValues(t, 1, failures.Load())
}

func TestDispatcherJobTimeout(t *testing.T) {
	d := NewDispatcher(Options{
		Workers:    1,
		Retries:    0,
		JobTimeout: 20 * time.Millisecond,
	}, testLogger())

	var sawDeadline atomic.Bool
	d.Submit(Job{
		Name: "slow",
		Run: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				sawDeadline.Store(true)
				return ctx.Err()
			case <-time.After(time.Second):
				return nil
			}
		},
	})
	d.Close()

	require.True(t, sawDeadline.Load())
}

func TestDispatcherCloseDrainsQueue(t *testing.T) {
	d := newTestDispatcher(0)

	const jobs = 20
	var done atomic.Int32
	var wg sync.WaitGroup
	wg.Add(jobs)
	for i := 0; i < jobs; i++ {
		go func() {
			defer wg.Done()
			d.Submit(Job{
				Name: "work",
				Run: func(context.Context) error {
					done.Add(1)
					return nil
				},
			})
		}()
	}
	wg.Wait()
	d.Close()

	require.EqualValues(t, jobs, done.Load(), "Close waits for every queued job")
}

func TestDispatcherCloseIsIdempotent(t *testing.T) {
	d := newTestDispatcher(0)
	d.Close()
	require.NotPanics(t, d.Close)
}
