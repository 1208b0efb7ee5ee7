package ratelimit

import (
	"context"
	"sync"
	"time"
)

// localCounters tracks one pair's windows in process memory.
type localCounters struct {
	minute      int64
	minuteReset time.Time
	day         int64
	dayReset    time.Time
	credits     float64
	creditReset time.Time
}

// LocalLimiter implements the same budget semantics in process memory.
// It serves single-node deployments without a cache store and tests;
// budgets are per-process, so it must not be mixed with remote workers.
type LocalLimiter struct {
	mu    sync.Mutex
	pairs map[string]*localCounters
	now   func() time.Time
}

var _ Limiter = (*LocalLimiter)(nil)

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{
		pairs: make(map[string]*localCounters),
		now:   time.Now,
	}
}

func (l *LocalLimiter) Check(_ context.Context, provider, service string) Decision {
	policy, ok := PolicyFor(provider, service)
	if !ok {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return evaluate(policy, l.usageLocked(provider, service))
}

func (l *LocalLimiter) Increment(_ context.Context, provider, service string) {
	policy, ok := PolicyFor(provider, service)
	if !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c := l.countersLocked(provider, service)
	if !now.Before(c.minuteReset) {
		c.minute = 0
		c.minuteReset = now.Add(minuteWindow)
	}
	c.minute++
	if !now.Before(c.dayReset) {
		c.day = 0
		c.dayReset = now.Add(dayWindow)
	}
	c.day++
	if policy.Priced() {
		if !now.Before(c.creditReset) {
			c.credits = 0
			c.creditReset = now.Add(creditWindow)
		}
		c.credits += policy.CostPerRequest
	}
}

func (l *LocalLimiter) Status(_ context.Context) ([]ProviderStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	statuses := make([]ProviderStatus, 0, len(policies))
	for _, policy := range policies {
		statuses = append(statuses, buildStatus(policy, l.usageLocked(policy.Provider, policy.Service)))
	}
	return statuses, nil
}

func (l *LocalLimiter) StatusFor(_ context.Context, provider, service string) (ProviderStatus, error) {
	policy, ok := PolicyFor(provider, service)
	if !ok {
		return ProviderStatus{}, errNoPolicy(provider, service)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return buildStatus(policy, l.usageLocked(provider, service)), nil
}

func (l *LocalLimiter) Reset(_ context.Context, provider, service string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pairs, provider+":"+service)
	return nil
}

func (l *LocalLimiter) countersLocked(provider, service string) *localCounters {
	key := provider + ":" + service
	c, ok := l.pairs[key]
	if !ok {
		c = &localCounters{}
		l.pairs[key] = c
	}
	return c
}

// usageLocked reads a pair's counters, treating elapsed windows as empty.
func (l *LocalLimiter) usageLocked(provider, service string) usage {
	now := l.now()
	c := l.countersLocked(provider, service)

	var u usage
	if now.Before(c.minuteReset) {
		u.minute = c.minute
		u.minuteTTL = c.minuteReset.Sub(now)
	}
	if now.Before(c.dayReset) {
		u.day = c.day
		u.dayTTL = c.dayReset.Sub(now)
	}
	if now.Before(c.creditReset) {
		u.credits = c.credits
		u.creditTTL = c.creditReset.Sub(now)
	}
	return u
}
