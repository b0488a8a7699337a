// Package ratelimit paces calls to the activity source below its published limits.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

const (
	shortWindow = 15 * time.Minute
	longWindow  = 24 * time.Hour

	// wakeSlack is added past a window boundary so the server has reset its counters too.
	wakeSlack = time.Second
)

// Limiter counts calls in fixed 15-minute and daily windows aligned to UTC,
// and blocks when either window is exhausted until it rolls over.
type Limiter struct {
	clock    clock.Clock
	log      zerolog.Logger
	perShort int
	perLong  int

	mu         sync.Mutex
	shortStart time.Time
	longStart  time.Time
	shortCalls int
	longCalls  int
}

// New creates a limiter allowing perShort calls per 15 minutes and perLong calls per day.
func New(perShort, perLong int, clk clock.Clock, log zerolog.Logger) *Limiter {
	if clk == nil {
		clk = clock.New()
	}
	return &Limiter{
		clock:    clk,
		log:      log,
		perShort: perShort,
		perLong:  perLong,
	}
}

// Wait blocks until a call is allowed, then counts it.
// It returns ctx.Err() if the context ends while waiting.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if delay, window := l.delay(now); delay > 0 {
		l.log.Warn().
			Str("window", window).
			Dur("sleep", delay).
			Msg("rate limit reached, sleeping")

		timer := l.clock.Timer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		now = l.clock.Now()
		l.roll(now)
	}

	l.shortCalls++
	l.longCalls++
	return nil
}

// Sync raises the counters to the usage reported by the server, which also counts
// calls made by other clients of the same application.
func (l *Limiter) Sync(shortUsage, longUsage int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.roll(l.clock.Now())
	if shortUsage > l.shortCalls {
		l.shortCalls = shortUsage
	}
	if longUsage > l.longCalls {
		l.longCalls = longUsage
	}
}

// Usage returns the calls counted in the current 15-minute and daily windows.
func (l *Limiter) Usage() (short, long int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.roll(l.clock.Now())
	return l.shortCalls, l.longCalls
}

// delay rolls windows forward to now and returns how long to wait before the next call.
// Must be called with mu held.
func (l *Limiter) delay(now time.Time) (time.Duration, string) {
	l.roll(now)

	if l.longCalls >= l.perLong {
		return l.longStart.Add(longWindow).Sub(now) + wakeSlack, "daily"
	}
	if l.shortCalls >= l.perShort {
		return l.shortStart.Add(shortWindow).Sub(now) + wakeSlack, "15m"
	}
	return 0, ""
}

// roll resets counters whose window has ended. Must be called with mu held.
func (l *Limiter) roll(now time.Time) {
	now = now.UTC()

	// Truncate counts from the zero time, which is midnight UTC, so both
	// windows land on UTC boundaries.
	if day := now.Truncate(longWindow); !day.Equal(l.longStart) {
		l.longStart = day
		l.longCalls = 0
	}
	if quarter := now.Truncate(shortWindow); !quarter.Equal(l.shortStart) {
		l.shortStart = quarter
		l.shortCalls = 0
	}
}

// ParseUsage parses a "short,long" rate-limit header such as X-RateLimit-Usage.
func ParseUsage(header string) (short, long int, err error) {
	parts := strings.Split(header, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed rate limit header %q", header)
	}
	short, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("malformed rate limit header %q: %w", header, err)
	}
	long, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("malformed rate limit header %q: %w", header, err)
	}
	return short, long, nil
}
