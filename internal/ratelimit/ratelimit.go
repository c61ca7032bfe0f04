package ratelimit

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Rule allows Limit requests per Window for requests whose method matches
// Method (empty matches any) and whose path starts with Prefix.
type Rule struct {
	Method string
	Prefix string
	Limit  int
	Window time.Duration
}

func (r Rule) matches(method, path string) bool {
	return (r.Method == "" || r.Method == method) && strings.HasPrefix(path, r.Prefix)
}

// Result contains rate limit status for a request.
type Result struct {
	Limit     int
	Remaining int
	RetryIn   time.Duration
}

type entry struct {
	rule     int
	bucket   *rate.Limiter
	lastSeen time.Time
}

// Limiter implements token-bucket rate limiting per IP and rule. Buckets hold
// Limit tokens and refill completely over Window.
type Limiter struct {
	mu      sync.Mutex
	rules   []Rule
	entries map[string]*entry
	clock   Clock
}

// NewLimiter creates a Limiter with the given rules. The first matching rule
// applies to a request.
func NewLimiter(rules []Rule) *Limiter {
	return &Limiter{
		rules:   rules,
		entries: make(map[string]*entry),
		clock:   realClock{},
	}
}

// Allow checks whether a request from ip to method+path is allowed.
// If no rule matches, it returns (Result{}, true).
func (l *Limiter) Allow(ip, method, path string) (Result, bool) {
	idx := -1
	for i, r := range l.rules {
		if r.matches(method, path) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Result{}, true
	}
	rule := l.rules[idx]
	now := l.clock.Now()
	key := ip + "|" + rule.Method + ":" + rule.Prefix

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{
			rule:   idx,
			bucket: rate.NewLimiter(rate.Every(rule.Window/time.Duration(rule.Limit)), rule.Limit),
		}
		l.entries[key] = e
	}
	e.lastSeen = now

	res := e.bucket.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return Result{Limit: rule.Limit, RetryIn: delay}, false
	}
	return Result{Limit: rule.Limit, Remaining: int(e.bucket.TokensAt(now))}, true
}

// Cleanup removes buckets that have been idle long enough to refill.
// Call periodically to prevent unbounded growth.
func (l *Limiter) Cleanup() {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, e := range l.entries {
		if now.Sub(e.lastSeen) >= l.rules[e.rule].Window {
			delete(l.entries, key)
		}
	}
}

// Len reports the number of tracked buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
