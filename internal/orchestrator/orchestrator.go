// Package orchestrator implements the Hybrid Orchestrator (C6): the
// delegate/validate/retry/escalate state machine that drives one task from
// ROUTING through ACCEPT, FAIL, or exhaustion.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/dataparency-dev/delegatecore/internal/registry"
	"github.com/dataparency-dev/delegatecore/internal/router"
	"github.com/dataparency-dev/delegatecore/internal/tokenizer"
	"github.com/dataparency-dev/delegatecore/internal/types"
	"github.com/dataparency-dev/delegatecore/internal/validator"
	"github.com/rs/zerolog/log"
)

// ModelClient is the external collaborator contract (spec.md §6): the only
// I/O boundary the orchestrator crosses besides the continuity store.
type ModelClient interface {
	Complete(ctx context.Context, prompt, modelID string, maxTokens int, temperature float64) (text string, inputTokens, outputTokens int, latencyMs int64, err error)
}

// EventSink receives SessionEvents in transition order. The continuity
// store (C7) implements this; tests may supply a recording stub.
type EventSink interface {
	AppendEvent(event types.SessionEvent) error
}

const (
	defaultSoftTimeout = 300 * time.Second
	breakerThreshold   = 3
	breakerCooldown    = 5 * time.Minute
	scoreStallDelta    = 5 // two consecutive REFINEs must improve score by at least this much
)

// Orchestrator drives the ROUTING -> DELEGATING -> VALIDATING ->
// (ACCEPT|REFINE|ESCALATE|FAIL) state machine for one task at a time. It
// holds per-model circuit breaker state across tasks within a process but
// no cross-task mutable scheduling state (spec.md §5: "the pipeline itself
// makes no shared-mutable assumptions").
type Orchestrator struct {
	registry *registry.Registry
	client   ModelClient
	sink     EventSink
	breakers *breakerRegistry
	est      *tokenizer.Estimator
	meter    *tokenizer.CostMeter
}

// New constructs an Orchestrator.
func New(reg *registry.Registry, client ModelClient, sink EventSink) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		client:   client,
		sink:     sink,
		breakers: newBreakerRegistry(breakerThreshold, breakerCooldown),
		est:      tokenizer.NewEstimator(),
		meter:    tokenizer.NewCostMeter(),
	}
}

// Orchestrate implements the C6 contract: orchestrate(task,
// compressed_context, policy, threshold, max_retries) -> Result.
func (o *Orchestrator) Orchestrate(ctx context.Context, taskID, taskPrompt string, compressed types.CompressedContext, policy types.Policy, threshold, maxRetries int) (types.Result, error) {
	budget := NewEscalationBudget(1)
	prompt := taskPrompt
	var attempts []types.Attempt
	// tierAttempts holds only the attempts made since the last escalation
	// (or since the start): max_retries, stall detection, and fix_tier are
	// all scoped to the current escalation tier, since an ESCALATE
	// transition re-enters DELEGATING with a fresh tier-0 prompt and its own
	// retry budget (spec.md §4.3).
	var tierAttempts []types.Attempt
	var totalCost float64
	var lastValidation types.ValidationResult
	var lastArtifact string
	consecutiveStalls := 0
	currentPolicy := policy

	if perr := o.emit(taskID, types.EventClassify, nil); perr != nil {
		return types.Result{}, persistenceFailure(perr)
	}

	for len(tierAttempts) <= maxRetries {
		excluded := mergeExcluded(currentPolicy.ExcludeModelIDs, o.breakers.excluded(time.Now()))
		routingPolicy := currentPolicy
		routingPolicy.ExcludeModelIDs = excluded

		routing, err := router.Route(o.registry, taskPrompt, routingPolicy)
		if err != nil {
			o.emit(taskID, types.EventError, map[string]any{"error": err.Error()})
			return types.Result{Attempts: attempts, TotalCost: totalCost}, err
		}
		if perr := o.emit(taskID, types.EventDelegate, map[string]any{"model_id": routing.Model.ModelID}); perr != nil {
			return types.Result{}, persistenceFailure(perr)
		}

		callCtx, cancel := context.WithTimeout(ctx, defaultSoftTimeout)
		text, inTok, outTok, latencyMs, callErr := o.client.Complete(callCtx, prompt, routing.Model.ModelID, routing.Model.MaxTokens, 0.2)
		cancel()

		breaker := o.breakers.forModel(routing.Model.ModelID)

		if callErr != nil {
			breaker.recordFailure(time.Now())
			if len(tierAttempts) >= maxRetries {
				o.emit(taskID, types.EventError, map[string]any{"error": callErr.Error()})
				return types.Result{Attempts: attempts, TotalCost: totalCost}, types.NewCoreError(
					types.ErrUpstreamUnavailable, "model call failed past retry cap",
					types.WithCause(callErr),
				)
			}
			failed := types.Attempt{ModelID: routing.Model.ModelID}
			attempts = append(attempts, failed)
			tierAttempts = append(tierAttempts, failed)
			if perr := o.emit(taskID, types.EventRetry, map[string]any{"reason": "timeout_or_transport_error"}); perr != nil {
				return types.Result{}, persistenceFailure(perr)
			}
			continue
		}
		breaker.recordSuccess()

		cost := o.meter.Cost(routing.Model, inTok, outTok)
		totalCost += cost

		attemptIdx := fixTierAttemptIndex(len(tierAttempts))
		validation := validator.Validate(taskPrompt, text, threshold, attemptIdx)

		attempt := types.Attempt{ModelID: routing.Model.ModelID, Score: validation.Score, Cost: cost, LatencyMs: latencyMs, Tier: validation.FixTier}
		attempts = append(attempts, attempt)
		tierAttempts = append(tierAttempts, attempt)
		lastValidation = validation
		lastArtifact = text

		if perr := o.emit(taskID, types.EventValidate, map[string]any{"score": validation.Score, "model_id": routing.Model.ModelID}); perr != nil {
			return types.Result{}, persistenceFailure(perr)
		}

		if validation.Score >= threshold {
			if perr := o.emit(taskID, types.EventComplete, map[string]any{"score": validation.Score}); perr != nil {
				return types.Result{}, persistenceFailure(perr)
			}
			return types.Result{Artifact: lastArtifact, FinalValidation: lastValidation, Attempts: attempts, TotalCost: totalCost}, nil
		}

		improved := len(tierAttempts) < 2 || scoreImproved(tierAttempts, scoreStallDelta)
		if !improved {
			consecutiveStalls++
		} else {
			consecutiveStalls = 0
		}

		freePoolExhausted := isFreePoolExhausted(o.registry, routing.Kind, routingPolicy)
		shouldEscalate := (freePoolExhausted || consecutiveStalls >= 2) && budget.Intact() && currentPolicy.AllowPremium

		if shouldEscalate {
			budget = budget.Attenuate()
			currentPolicy.PreferFree = false
			prompt = taskPrompt // fresh tier-0 prompt, issues list only
			if len(validation.Issues) > 0 {
				prompt = taskPrompt + "\n\nIssues found in earlier attempts: " + strings.Join(validation.Issues, "; ")
			}
			tierAttempts = nil
			consecutiveStalls = 0
			if perr := o.emit(taskID, types.EventEscalate, map[string]any{"issues": validation.Issues}); perr != nil {
				return types.Result{}, persistenceFailure(perr)
			}
			continue
		}

		if len(tierAttempts) > maxRetries {
			break
		}

		prompt = taskPrompt + "\n\n" + validation.FixInstructions
		if perr := o.emit(taskID, types.EventRetry, map[string]any{"tier": string(validation.FixTier)}); perr != nil {
			return types.Result{}, persistenceFailure(perr)
		}
	}

	o.emit(taskID, types.EventError, map[string]any{"reason": "max_retries_exhausted"})
	return types.Result{Artifact: lastArtifact, FinalValidation: lastValidation, Attempts: attempts, TotalCost: totalCost},
		types.NewCoreError(types.ErrValidationBelowThreshold, "max_retries exhausted without reaching threshold",
			types.WithHint("caller may accept-with-warning using final_validation"))
}

// persistenceFailure wraps an AppendEvent error in the closed error
// taxonomy. A continuity-store write failure aborts the task outright: no
// partial Result is returned (spec.md §4.5, §7 — "no partial success is
// returned").
func persistenceFailure(cause error) error {
	return types.NewCoreError(types.ErrPersistenceFailure, "failed to persist session event",
		types.WithCause(cause))
}

func scoreImproved(attempts []types.Attempt, minDelta int) bool {
	n := len(attempts)
	if n < 2 {
		return true
	}
	return attempts[n-1].Score-attempts[n-2].Score >= minDelta
}

func isFreePoolExhausted(reg *registry.Registry, kind types.TaskKind, policy types.Policy) bool {
	candidates := reg.Eligible(kind, policy.MaxInputTokens, policy.ExcludeModelIDs)
	for _, m := range candidates {
		if m.IsFree {
			return false
		}
	}
	return true
}

func mergeExcluded(a map[string]struct{}, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

// emit appends a SessionEvent and returns any continuity-store write error
// to the caller — it does not swallow it. A SessionEvent must be durably
// persisted before the state transition it records is visible to callers
// (spec.md §4.5), so a failed append has to abort the task rather than
// continue on unrecorded state.
func (o *Orchestrator) emit(taskID string, kind types.SessionEventKind, payload map[string]any) error {
	if o.sink == nil {
		return nil
	}
	event := types.SessionEvent{Timestamp: time.Now(), Kind: kind, Payload: payload, CorrelationID: taskID}
	if err := o.sink.AppendEvent(event); err != nil {
		log.Error().Err(err).Str("task_id", taskID).Str("kind", string(kind)).Msg("append_event_failed")
		return err
	}
	return nil
}
