// Package ratelimit provides per-tool token bucket rate limiting for MCP tools.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRateLimited is wrapped by CheckLimit when a tool has no tokens left.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate is a token bucket budget: PerMinute tokens refill every minute, at
// most Burst are held at once.
type Rate struct {
	PerMinute float64
	Burst     int
}

func (r Rate) perSecond() float64 {
	return r.PerMinute / 60
}

// DefaultToolRates returns the budgets for the hddl MCP tools. Tools that
// write to disk (merge output, session state) get the tighter budgets.
func DefaultToolRates() map[string]Rate {
	return map[string]Rate{
		"hddl_validate":      {PerMinute: 60, Burst: 10},
		"hddl_stats":         {PerMinute: 60, Burst: 10},
		"hddl_catalog_list":  {PerMinute: 60, Burst: 10},
		"hddl_merge":         {PerMinute: 30, Burst: 5},
		"hddl_session_apply": {PerMinute: 30, Burst: 5},
	}
}

type bucket struct {
	rate      Rate
	tokens    float64
	lastCheck time.Time
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastCheck).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = min(b.tokens+b.rate.perSecond()*elapsed, float64(b.rate.Burst))
	b.lastCheck = now
}

// wait is how long until the bucket holds a whole token again, or 0 when it
// never refills.
func (b *bucket) wait() time.Duration {
	if b.rate.PerMinute <= 0 {
		return 0
	}
	secs := (1 - b.tokens) / b.rate.perSecond()
	return time.Duration(secs * float64(time.Second)).Round(time.Second)
}

// ToolLimiters holds one token bucket per tool. Buckets start full.
// It is safe for concurrent use.
type ToolLimiters struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewToolLimiters creates a bucket for every tool in rates. A nil map uses
// DefaultToolRates.
func NewToolLimiters(rates map[string]Rate) *ToolLimiters {
	if rates == nil {
		rates = DefaultToolRates()
	}
	l := &ToolLimiters{
		buckets: make(map[string]*bucket, len(rates)),
		now:     time.Now,
	}
	start := l.now()
	for tool, r := range rates {
		l.buckets[tool] = &bucket{rate: r, tokens: float64(r.Burst), lastCheck: start}
	}
	return l
}

// Tools reports how many tools have a budget.
func (l *ToolLimiters) Tools() int {
	if l == nil {
		return 0
	}
	return len(l.buckets)
}

// take spends one token for tool. When none is available it returns false
// and the expected wait before the next token.
func (l *ToolLimiters) take(tool string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[tool]
	if !ok {
		return true, 0
	}
	b.refill(l.now())
	if b.tokens < 1 {
		return false, b.wait()
	}
	b.tokens--
	return true, 0
}

// Allow spends one token for tool and reports whether one was available.
// Tools without a budget are always allowed.
func (l *ToolLimiters) Allow(tool string) bool {
	ok, _ := l.take(tool)
	return ok
}

// CheckLimit returns an error wrapping ErrRateLimited when tool is out of
// tokens. A nil limiter allows everything.
func CheckLimit(l *ToolLimiters, tool string) error {
	ok, wait := l.take(tool)
	if ok {
		return nil
	}
	if wait <= 0 {
		return fmt.Errorf("%w for %s", ErrRateLimited, tool)
	}
	return fmt.Errorf("%w for %s, retry in %s", ErrRateLimited, tool, max(wait, time.Second))
}
