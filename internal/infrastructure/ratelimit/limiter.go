package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	minuteWindow = time.Minute
	dayWindow    = 24 * time.Hour
	creditWindow = 30 * 24 * time.Hour
)

// Decision is the outcome of a limit check. It never carries an error:
// when the counter store is unreachable the limiter fails open, because it
// protects the provider's quota rather than correctness.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string
}

// WindowStatus reports usage against one counting window.
type WindowStatus struct {
	Used     int64 `json:"used"`
	Limit    int64 `json:"limit"`
	ResetsIn int64 `json:"resetsInSeconds"`
}

// CreditStatus reports accumulated spend against a currency budget.
type CreditStatus struct {
	Used  float64 `json:"used"`
	Limit float64 `json:"limit"`
}

// ProviderStatus is the observable state of one (provider, service) pair.
type ProviderStatus struct {
	Provider string        `json:"provider"`
	Service  string        `json:"service"`
	Minute   WindowStatus  `json:"minute"`
	Day      WindowStatus  `json:"day"`
	Credit   *CreditStatus `json:"credit,omitempty"`
	Limited  bool          `json:"limited"`
}

// Limiter guards provider calls against the static policy table.
type Limiter interface {
	// Check reports whether a call may proceed right now. Denials carry
	// the remaining TTL of the binding counter as RetryAfter.
	Check(ctx context.Context, provider, service string) Decision

	// Increment records one successful call. Callers invoke it only after
	// the provider accepted the request.
	Increment(ctx context.Context, provider, service string)

	// Status returns the state of every policy in the table.
	Status(ctx context.Context) ([]ProviderStatus, error)

	// StatusFor returns the state of a single pair.
	StatusFor(ctx context.Context, provider, service string) (ProviderStatus, error)

	// Reset clears the counters of a single pair.
	Reset(ctx context.Context, provider, service string) error
}

// usage is a point-in-time read of one pair's counters.
type usage struct {
	minute    int64
	day       int64
	credits   float64
	minuteTTL time.Duration
	dayTTL    time.Duration
	creditTTL time.Duration
}

// evaluate applies a policy to observed usage. Checks run in fixed order
// so the reported reason is stable: minute, then day, then credits.
func evaluate(p Policy, u usage) Decision {
	if p.PerMinute > 0 && u.minute >= p.PerMinute {
		return Decision{Reason: "minute limit reached", RetryAfter: clampTTL(u.minuteTTL, minuteWindow)}
	}
	if p.PerDay > 0 && u.day >= p.PerDay {
		return Decision{Reason: "day limit reached", RetryAfter: clampTTL(u.dayTTL, dayWindow)}
	}
	if p.Priced() && u.credits >= p.CreditLimit {
		return Decision{Reason: "credit limit reached", RetryAfter: clampTTL(u.creditTTL, creditWindow)}
	}
	return Decision{Allowed: true}
}

// clampTTL substitutes the full window when Redis reports no expiry
// (-1 for unarmed keys, -2 for missing ones).
func clampTTL(ttl, window time.Duration) time.Duration {
	if ttl <= 0 || ttl > window {
		return window
	}
	return ttl
}

func minuteKey(provider, service string) string {
	return fmt.Sprintf("ratelimit:%s:%s:minute", provider, service)
}

func dayKey(provider, service string) string {
	return fmt.Sprintf("ratelimit:%s:%s:day", provider, service)
}

// creditsKey has no service segment: the credit pool is provider-wide,
// shared by every service billed to the same account.
func creditsKey(provider string) string {
	return fmt.Sprintf("ratelimit:%s:credits", provider)
}

// RedisLimiter keeps the counters in Redis so the server and every worker
// process share one budget. Counter keys live under the ratelimit: prefix
// with the TTL armed when a window's first request lands.
type RedisLimiter struct {
	client *redis.Client
	logger *zap.Logger
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client *redis.Client, logger *zap.Logger) *RedisLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLimiter{
		client: client,
		logger: logger.With(zap.String("component", "rate-limiter")),
	}
}

func (l *RedisLimiter) Check(ctx context.Context, provider, service string) Decision {
	policy, ok := PolicyFor(provider, service)
	if !ok {
		return Decision{Allowed: true}
	}

	u, err := l.readUsage(ctx, policy)
	if err != nil {
		l.logger.Warn("Rate limit check failed, allowing request",
			zap.String("provider", provider),
			zap.String("service", service),
			zap.Error(err))
		return Decision{Allowed: true}
	}
	return evaluate(policy, u)
}

func (l *RedisLimiter) Increment(ctx context.Context, provider, service string) {
	policy, ok := PolicyFor(provider, service)
	if !ok {
		return
	}

	pipe := l.client.TxPipeline()
	minuteCmd := pipe.Incr(ctx, minuteKey(provider, service))
	dayCmd := pipe.Incr(ctx, dayKey(provider, service))
	var creditTTLCmd *redis.DurationCmd
	if policy.Priced() {
		pipe.IncrByFloat(ctx, creditsKey(provider), policy.CostPerRequest)
		creditTTLCmd = pipe.TTL(ctx, creditsKey(provider))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("Rate limit increment failed",
			zap.String("provider", provider),
			zap.String("service", service),
			zap.Error(err))
		return
	}

	// A counter that just became 1 opened a fresh window; arm its TTL.
	if minuteCmd.Val() == 1 {
		l.client.Expire(ctx, minuteKey(provider, service), minuteWindow)
	}
	if dayCmd.Val() == 1 {
		l.client.Expire(ctx, dayKey(provider, service), dayWindow)
	}
	if creditTTLCmd != nil && creditTTLCmd.Val() < 0 {
		l.client.Expire(ctx, creditsKey(provider), creditWindow)
	}
}

func (l *RedisLimiter) Status(ctx context.Context) ([]ProviderStatus, error) {
	statuses := make([]ProviderStatus, 0, len(policies))
	for _, policy := range policies {
		u, err := l.readUsage(ctx, policy)
		if err != nil {
			return nil, fmt.Errorf("read usage for %s/%s: %w", policy.Provider, policy.Service, err)
		}
		statuses = append(statuses, buildStatus(policy, u))
	}
	return statuses, nil
}

func (l *RedisLimiter) StatusFor(ctx context.Context, provider, service string) (ProviderStatus, error) {
	policy, ok := PolicyFor(provider, service)
	if !ok {
		return ProviderStatus{}, errNoPolicy(provider, service)
	}
	u, err := l.readUsage(ctx, policy)
	if err != nil {
		return ProviderStatus{}, err
	}
	return buildStatus(policy, u), nil
}

func (l *RedisLimiter) Reset(ctx context.Context, provider, service string) error {
	keys := []string{
		minuteKey(provider, service),
		dayKey(provider, service),
		creditsKey(provider),
	}
	if err := l.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("reset rate limit for %s/%s: %w", provider, service, err)
	}
	return nil
}

// readUsage fetches all counters of one pair in a single pipeline.
// Missing keys read as zero usage.
func (l *RedisLimiter) readUsage(ctx context.Context, policy Policy) (usage, error) {
	pipe := l.client.Pipeline()
	minuteCmd := pipe.Get(ctx, minuteKey(policy.Provider, policy.Service))
	minuteTTLCmd := pipe.TTL(ctx, minuteKey(policy.Provider, policy.Service))
	dayCmd := pipe.Get(ctx, dayKey(policy.Provider, policy.Service))
	dayTTLCmd := pipe.TTL(ctx, dayKey(policy.Provider, policy.Service))
	var creditsCmd *redis.StringCmd
	var creditTTLCmd *redis.DurationCmd
	if policy.Priced() {
		creditsCmd = pipe.Get(ctx, creditsKey(policy.Provider))
		creditTTLCmd = pipe.TTL(ctx, creditsKey(policy.Provider))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return usage{}, err
	}

	u := usage{
		minute:    intResult(minuteCmd),
		day:       intResult(dayCmd),
		minuteTTL: minuteTTLCmd.Val(),
		dayTTL:    dayTTLCmd.Val(),
	}
	if creditsCmd != nil {
		u.credits = floatResult(creditsCmd)
		u.creditTTL = creditTTLCmd.Val()
	}
	return u, nil
}

func intResult(cmd *redis.StringCmd) int64 {
	v, err := cmd.Int64()
	if err != nil {
		return 0
	}
	return v
}

func floatResult(cmd *redis.StringCmd) float64 {
	v, err := cmd.Float64()
	if err != nil {
		return 0
	}
	return v
}

func buildStatus(policy Policy, u usage) ProviderStatus {
	status := ProviderStatus{
		Provider: policy.Provider,
		Service:  policy.Service,
		Minute: WindowStatus{
			Used:     u.minute,
			Limit:    policy.PerMinute,
			ResetsIn: ttlSeconds(u.minuteTTL),
		},
		Day: WindowStatus{
			Used:     u.day,
			Limit:    policy.PerDay,
			ResetsIn: ttlSeconds(u.dayTTL),
		},
	}
	if policy.Priced() {
		status.Credit = &CreditStatus{Used: u.credits, Limit: policy.CreditLimit}
	}
	status.Limited = !evaluate(policy, u).Allowed
	return status
}

func ttlSeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return int64(ttl.Seconds())
}
