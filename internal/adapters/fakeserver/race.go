package fakeserver

import (
	"sync"
	"time"
)

// LoginRaceDetector reproduces the defect of the real server where two logins processed too
// close to each other corrupt its state. Allow reports false for a login that arrives within
// window of a previous one. A zero window never trips.
type LoginRaceDetector struct {
	mu      sync.Mutex
	history []time.Time
	limit   int
	window  time.Duration
}

func NewLoginRaceDetector(window time.Duration) *LoginRaceDetector {
	return &LoginRaceDetector{limit: 1, window: window}
}

func (d *LoginRaceDetector) Allow() bool {
	if d.window <= 0 {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-d.window)

	fresh := d.history[:0]
	for _, t := range d.history {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	d.history = append(fresh, now)
	return len(fresh) < d.limit
}
