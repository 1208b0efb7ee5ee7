package ratelimit

import "fmt"

// Policy declares the request budget for one (provider, service) pair.
// CreditLimit and CostPerRequest are set only for providers billed in
// currency; a zero CreditLimit means the pair is not credit-accounted.
type Policy struct {
	Provider       string
	Service        string
	PerMinute      int64
	PerDay         int64
	CreditLimit    float64
	CostPerRequest float64
}

// Priced reports whether the pair accumulates currency credits.
func (p Policy) Priced() bool {
	return p.CreditLimit > 0
}

// policies is the static budget table. Limits mirror the free-tier quotas
// of each upstream provider.
var policies = []Policy{
	{Provider: "groq", Service: "whisper", PerMinute: 20, PerDay: 2000},
	{Provider: "groq", Service: "vision", PerMinute: 15, PerDay: 1500},
	{Provider: "groq", Service: "llm", PerMinute: 30, PerDay: 14400},
	{Provider: "gemini", Service: "vision", PerMinute: 10, PerDay: 1500},
	{Provider: "gemini", Service: "llm", PerMinute: 15, PerDay: 1500},
	{Provider: "deepgram", Service: "audio", PerMinute: 40, PerDay: 10000, CreditLimit: 200, CostPerRequest: 0.0043},
	{Provider: "assemblyai", Service: "audio", PerMinute: 30, PerDay: 5000, CreditLimit: 50, CostPerRequest: 0.0062},
}

// PolicyFor returns the policy for a (provider, service) pair. Pairs
// without a policy are not limited.
func PolicyFor(provider, service string) (Policy, bool) {
	for _, p := range policies {
		if p.Provider == provider && p.Service == service {
			return p, true
		}
	}
	return Policy{}, false
}

// Policies returns a copy of the full policy table.
func Policies() []Policy {
	out := make([]Policy, len(policies))
	copy(out, policies)
	return out
}

func errNoPolicy(provider, service string) error {
	return fmt.Errorf("no rate limit policy for %s/%s", provider, service)
}
