package cleanse

import "time"

type BackoffConfig struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
}

// backoffTracker keeps per-source exponential backoff state. A
// suggested duration (e.g. from Retry-After) overrides the schedule.
type backoffTracker struct {
	min    time.Duration
	max    time.Duration
	factor float64
	items  map[string]backoffEntry
}

type backoffEntry struct {
	until    time.Time
	duration time.Duration
}

func newBackoffTracker(cfg BackoffConfig) *backoffTracker {
	if cfg.Min <= 0 {
		cfg.Min = 30 * time.Second
	}
	if cfg.Max <= 0 {
		cfg.Max = 10 * time.Minute
	}
	if cfg.Factor <= 0 {
		cfg.Factor = 2.0
	}
	return &backoffTracker{
		min:    cfg.Min,
		max:    cfg.Max,
		factor: cfg.Factor,
		items:  make(map[string]backoffEntry),
	}
}

func (b *backoffTracker) Remaining(id string, now time.Time) time.Duration {
	entry, ok := b.items[id]
	if !ok {
		return 0
	}
	if now.After(entry.until) {
		delete(b.items, id)
		return 0
	}
	return entry.until.Sub(now)
}

func (b *backoffTracker) Schedule(id string, now time.Time, suggested time.Duration) time.Duration {
	entry := b.items[id]
	duration := suggested
	if duration <= 0 {
		if entry.duration == 0 {
			duration = b.min
		} else {
			duration = time.Duration(float64(entry.duration) * b.factor)
		}
	}
	if duration > b.max {
		duration = b.max
	}
	entry.duration = duration
	entry.until = now.Add(duration)
	b.items[id] = entry
	return duration
}

func (b *backoffTracker) Reset(id string) {
	delete(b.items, id)
}
