package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ActionSendMessage        = "send_message"
	ActionCreateConversation = "create_conversation"
	ActionTyping             = "typing"
	ActionReport             = "report_message"
	ActionHTTP               = "http"
)

// Policy is a token bucket: Burst tokens, refilled one every Every.
type Policy struct {
	Burst int
	Every time.Duration
}

// DefaultPolicies mirror how often a person can plausibly act in a chat.
var DefaultPolicies = map[string]Policy{
	ActionSendMessage:        {Burst: 10, Every: 6 * time.Second}, // 10 per minute
	ActionCreateConversation: {Burst: 5, Every: 12 * time.Minute}, // 5 per hour
	ActionTyping:             {Burst: 30, Every: 2 * time.Second}, // 30 per minute
	ActionReport:             {Burst: 5, Every: 2 * time.Minute},  // 5 per 10 minutes
	ActionHTTP:               {Burst: 100, Every: 600 * time.Millisecond},
}

var defaultPolicy = Policy{Burst: 20, Every: 3 * time.Second}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per user and action.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	policies map[string]Policy
	now      func() time.Time
}

func NewRateLimiter(policies map[string]Policy) *RateLimiter {
	if policies == nil {
		policies = DefaultPolicies
	}
	return &RateLimiter{
		buckets:  make(map[string]*bucket),
		policies: policies,
		now:      time.Now,
	}
}

// Allow consumes a token for userID performing action. When no token is
// available it returns false and how long until the next one.
func (rl *RateLimiter) Allow(userID, action string) (bool, time.Duration) {
	key := userID + ":" + action
	now := rl.now()

	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		policy, found := rl.policies[action]
		if !found {
			policy = defaultPolicy
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Every(policy.Every), policy.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	reservation := b.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, 0
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Cleanup drops buckets unused for longer than idle.
func (rl *RateLimiter) Cleanup(idle time.Duration) {
	cutoff := rl.now().Add(-idle)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanupRoutine evicts idle buckets every interval until stop is closed.
func (rl *RateLimiter) StartCleanupRoutine(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.Cleanup(time.Hour)
			case <-stop:
				return
			}
		}
	}()
}
