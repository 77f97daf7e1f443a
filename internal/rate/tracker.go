package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSweepInterval is how often the janitor evicts idle windows when no
// interval is given.
const DefaultSweepInterval = time.Minute

type window struct {
	mu        sync.Mutex
	count     int
	start     time.Time
	expiresAt time.Time
	dead      bool
}

// Tracker is an in-process fixed-window counter keyed by client key.
//
// Each key owns its own mutex, so requests for unrelated keys never contend.
// The zero value is not usable; construct with NewTracker.
type Tracker struct {
	windows sync.Map // string -> *window
	size    atomic.Int64
	now     func() time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// RecordAndCheck records one request for key at now and reports the updated
// count and whether it is within limit.
//
// The window resets when now >= start+windowLength. Every call pushes the
// entry expiry to now+windowLength.
func (t *Tracker) RecordAndCheck(key string, limit int, windowLength time.Duration, now time.Time) (int, bool, error) {
	if key == "" {
		return 0, false, ErrEmptyKey
	}
	if windowLength <= 0 {
		return 0, false, ErrInvalidWindow
	}
	if limit < 1 {
		return 0, false, ErrInvalidLimit
	}

	for {
		w := t.load(key, now)

		w.mu.Lock()
		if w.dead {
			// Lost a race with Sweep; the entry is gone from the map.
			w.mu.Unlock()
			continue
		}
		if !now.Before(w.start.Add(windowLength)) {
			w.start = now
			w.count = 0
		}
		w.count++
		w.expiresAt = now.Add(windowLength)
		count := w.count
		w.mu.Unlock()

		return count, count <= limit, nil
	}
}

func (t *Tracker) load(key string, now time.Time) *window {
	if v, ok := t.windows.Load(key); ok {
		return v.(*window)
	}
	fresh := &window{start: now}
	v, loaded := t.windows.LoadOrStore(key, fresh)
	if !loaded {
		t.size.Add(1)
	}
	return v.(*window)
}

// Sweep evicts every window whose expiry is at or before now and returns the
// number removed.
func (t *Tracker) Sweep(now time.Time) int {
	removed := 0
	t.windows.Range(func(k, v any) bool {
		w := v.(*window)
		w.mu.Lock()
		if !w.dead && !now.Before(w.expiresAt) {
			w.dead = true
			if t.windows.CompareAndDelete(k, w) {
				t.size.Add(-1)
				removed++
			}
		}
		w.mu.Unlock()
		return true
	})
	return removed
}

// Len reports the number of tracked keys.
func (t *Tracker) Len() int {
	return int(t.size.Load())
}

// StartJanitor sweeps idle windows every interval until ctx is done. The
// returned channel is closed once the janitor has stopped.
func (t *Tracker) StartJanitor(ctx context.Context, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Sweep(t.now())
			}
		}
	}()
	return done
}
