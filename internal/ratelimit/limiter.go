// Package ratelimit provides the process-local quota primitives shared by
// AI calls and outbound network actions: a fixed-window counter keyed by
// an arbitrary string, and a pacer enforcing a minimum delay between
// consecutive actions on the same key. Both are injected into their
// consumers so a shared external store can replace them for multi-instance
// deployments.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/joaomazul/LinkedFlow-sub001/internal/apperrors"
)

// Result reports the outcome of a quota check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter is a fixed-window counter. Check consumes one unit of quota for
// key when allowed; when denied it reports when the window resets.
type Limiter interface {
	Check(key string, limit int, window time.Duration) Result
}

// Pacer tracks the last action time per key. Ready fails fast when called
// before the minimum delay has elapsed; Record marks an action as done.
type Pacer interface {
	Ready(key string, minDelay time.Duration) error
	Record(key string)
}

type fixedWindow struct {
	count   int
	resetAt time.Time
}

// FixedWindowLimiter is the in-process Limiter implementation. Expired
// windows are replaced lazily on the next Check for their key.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow
	now     func() time.Time
}

func NewFixedWindowLimiter() *FixedWindowLimiter {
	return &FixedWindowLimiter{
		windows: make(map[string]*fixedWindow),
		now:     time.Now,
	}
}

func (l *FixedWindowLimiter) Check(key string, limit int, window time.Duration) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &fixedWindow{resetAt: now.Add(window)}
		l.windows[key] = w
	}

	if w.count >= limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: w.resetAt}
	}

	w.count++
	return Result{Allowed: true, Remaining: limit - w.count, ResetAt: w.resetAt}
}

// MemoryPacer is the in-process Pacer implementation.
type MemoryPacer struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewMemoryPacer() *MemoryPacer {
	return &MemoryPacer{
		last: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (p *MemoryPacer) Ready(key string, minDelay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	last, ok := p.last[key]
	if !ok {
		return nil
	}

	readyAt := last.Add(minDelay)
	now := p.now()
	if now.Before(readyAt) {
		wait := readyAt.Sub(now).Round(time.Second)
		if wait < time.Second {
			wait = time.Second
		}
		msg := fmt.Sprintf("muitas ações em sequência, aguarde %ds", int(wait.Seconds()))
		return apperrors.NewRateLimited(msg, 0, readyAt)
	}

	return nil
}

func (p *MemoryPacer) Record(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last[key] = p.now()
}
