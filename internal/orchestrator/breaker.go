package orchestrator

import "time"

// breakerState mirrors the teacher's three-state circuit breaker
// (closed/open/half-open), repurposed here to track per-model health across
// delegation attempts instead of per-agent reputation.
type breakerState string

const (
	breakerClosed   breakerState = "closed"
	breakerOpen     breakerState = "open"
	breakerHalfOpen breakerState = "half_open"
)

// modelBreaker trips after consecutive upstream failures (timeouts,
// transport errors) for a given model_id, excluding it from routing until a
// cooldown elapses or a probe succeeds.
type modelBreaker struct {
	failureCount     int
	failureThreshold int
	cooldown         time.Duration
	state            breakerState
	lastTripped      time.Time
}

func newModelBreaker(failureThreshold int, cooldown time.Duration) *modelBreaker {
	return &modelBreaker{failureThreshold: failureThreshold, cooldown: cooldown, state: breakerClosed}
}

func (b *modelBreaker) recordFailure(now time.Time) bool {
	b.failureCount++
	if b.failureCount >= b.failureThreshold {
		b.state = breakerOpen
		b.lastTripped = now
		return true
	}
	return false
}

func (b *modelBreaker) recordSuccess() {
	b.failureCount = 0
	b.state = breakerClosed
}

func (b *modelBreaker) allowed(now time.Time) bool {
	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if now.Sub(b.lastTripped) > b.cooldown {
			b.state = breakerHalfOpen
			return true
		}
		return false
	case breakerHalfOpen:
		return true
	default:
		return false
	}
}

// breakerRegistry tracks one modelBreaker per model_id, created lazily.
type breakerRegistry struct {
	breakers         map[string]*modelBreaker
	failureThreshold int
	cooldown         time.Duration
}

func newBreakerRegistry(failureThreshold int, cooldown time.Duration) *breakerRegistry {
	return &breakerRegistry{
		breakers:         make(map[string]*modelBreaker),
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
	}
}

func (r *breakerRegistry) forModel(modelID string) *modelBreaker {
	b, ok := r.breakers[modelID]
	if !ok {
		b = newModelBreaker(r.failureThreshold, r.cooldown)
		r.breakers[modelID] = b
	}
	return b
}

func (r *breakerRegistry) excluded(now time.Time) map[string]struct{} {
	out := make(map[string]struct{})
	for id, b := range r.breakers {
		if !b.allowed(now) {
			out[id] = struct{}{}
		}
	}
	return out
}
