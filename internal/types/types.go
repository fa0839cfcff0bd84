// Package types defines the shared data model of the orchestration core:
// messages and segments consumed by the compressor, the model registry's
// catalogue entries, the router's task taxonomy, validator output, and the
// records persisted by the continuity store.
package types

import "time"

// ─── Messages & Segments (Context Compressor input/intermediate) ────────────

// Role identifies who produced a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one element of conversation history fed to the compressor.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// Preserve flags a system message for verbatim round-trip through
	// compression — it is excluded from scoring and never rewritten.
	Preserve bool `json:"preserve,omitempty"`
}

// SegmentKind classifies a compressor-produced segment.
type SegmentKind string

const (
	SegmentDecision  SegmentKind = "decision"
	SegmentCode      SegmentKind = "code"
	SegmentError     SegmentKind = "error"
	SegmentReasoning SegmentKind = "reasoning"
	SegmentNarrative SegmentKind = "narrative"
)

// Segment is a chunk produced by partitioning history during compression.
type Segment struct {
	ID         string      `json:"id"`
	Text       string      `json:"text"`
	TokenCount int         `json:"token_count"`
	Kind       SegmentKind `json:"kind"`

	RecencyScore   float64 `json:"recency_score"`
	TypeScore      float64 `json:"type_score"`
	RelevanceScore float64 `json:"relevance_score"`

	// SourceIndex is the position of the originating message in history,
	// used to keep key_decisions in chronological order after selection.
	SourceIndex int `json:"source_index"`
}

// Composite returns the weighted composite score used for MMR selection:
// s = 0.3*recency + 0.3*type + 0.4*relevance (spec.md §4.1 step 3).
func (s Segment) Composite() float64 {
	return 0.3*s.RecencyScore + 0.3*s.TypeScore + 0.4*s.RelevanceScore
}

// CodeSnippet is a verbatim code extract preserved by Chain-of-Density pass A.
type CodeSnippet struct {
	Language   string `json:"language"`
	Code       string `json:"code"`
	Provenance string `json:"provenance"` // originating segment id
}

// CompressedContext is the Context Compressor's output artifact.
type CompressedContext struct {
	Summary                 string        `json:"summary"`
	KeyDecisions            []string      `json:"key_decisions"`
	CodeSnippets            []CodeSnippet `json:"code_snippets"`
	PreservedSystemMessages []string      `json:"preserved_system_messages"`
	ExpectationVector       []float64     `json:"expectation_vector"`
	TotalTokens             int           `json:"total_tokens"`
	CompressionRatio        float64       `json:"compression_ratio"`
	Namespace               string        `json:"namespace"`
}

// ─── Model Registry (C2) ─────────────────────────────────────────────────────

// TaskKind is the closed enum of task categories used by the router.
type TaskKind string

const (
	TaskCodeGeneration  TaskKind = "code_generation"
	TaskCodeReview      TaskKind = "code_review"
	TaskDocumentParsing TaskKind = "document_parsing"
	TaskAgenticComplex  TaskKind = "agentic_complex"
	TaskAgenticSimple   TaskKind = "agentic_simple"
	TaskVisionLanguage  TaskKind = "vision_language"
	TaskDeepReasoning   TaskKind = "deep_reasoning"
	TaskGeneral         TaskKind = "general"
)

// ModelSpec is one entry in the model registry.
type ModelSpec struct {
	ModelID                 string     `json:"model_id"`
	IsFree                  bool       `json:"is_free"`
	InputPricePerMegatoken  float64    `json:"input_price_per_megatoken"`
	OutputPricePerMegatoken float64    `json:"output_price_per_megatoken"`
	TaskAffinities          []TaskKind `json:"task_affinities"`
	Priority                int        `json:"priority"` // 1..5, lower = preferred within a tier
	MaxTokens               int        `json:"max_tokens"`
}

// HasAffinity reports whether the model declares affinity for kind.
func (m ModelSpec) HasAffinity(kind TaskKind) bool {
	for _, k := range m.TaskAffinities {
		if k == kind {
			return true
		}
	}
	return false
}

// ─── Routing Policy ───────────────────────────────────────────────────────────

// ScoringMode selects how the router breaks ties within a pool.
type ScoringMode string

const (
	// ScoringDeterministic is the spec-mandated default: ascending priority,
	// ties broken lexicographically by model_id.
	ScoringDeterministic ScoringMode = "deterministic"
	// ScoringWeighted re-sorts the chosen pool by a weighted score of input
	// price and priority, falling back to the deterministic order on equal
	// scores. It can never change which pool (free/paid) is eligible, but
	// within that pool a cheaper model can outrank one with a lower
	// priority number.
	ScoringWeighted ScoringMode = "weighted"
)

// Policy governs model selection in the router.
type Policy struct {
	PreferFree      bool
	AllowPremium    bool
	MaxInputTokens  int
	ExcludeModelIDs map[string]struct{}
	OverrideKind    TaskKind // empty means "classify normally"
	ScoringMode     ScoringMode
}

// ─── Validation (C5) ──────────────────────────────────────────────────────────

// FixTier dictates the specificity of retry feedback.
type FixTier string

const (
	FixTierBroad    FixTier = "broad"
	FixTierSpecific FixTier = "specific"
	FixTierExact    FixTier = "exact"
)

// ScoreBreakdown itemizes the validator's rubric (spec.md §4.4).
type ScoreBreakdown struct {
	Completeness    int `json:"completeness"`     // 0..30
	Correctness     int `json:"correctness"`      // 0..40
	ProductionReady int `json:"production_ready"` // 0..30
}

// Sum returns the total score represented by the breakdown.
func (b ScoreBreakdown) Sum() int {
	return b.Completeness + b.Correctness + b.ProductionReady
}

// ValidationResult is the Output Validator's verdict on generated output.
type ValidationResult struct {
	Score           int            `json:"score"` // 0..100
	Breakdown       ScoreBreakdown `json:"breakdown"`
	Issues          []string       `json:"issues"`
	FixTier         FixTier        `json:"fix_tier"`
	FixInstructions string         `json:"fix_instructions"`
}

// ─── Continuity Store (C7) ────────────────────────────────────────────────────

// TaskStatus tracks a TaskRecord's lifecycle state.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskValidated  TaskStatus = "validated"
	TaskFailed     TaskStatus = "failed"
	TaskAbandoned  TaskStatus = "abandoned"
)

// IsTerminal reports whether the status is a final state.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskValidated, TaskFailed, TaskAbandoned:
		return true
	default:
		return false
	}
}

// Attempt records one delegate/validate pass against a model.
type Attempt struct {
	ModelID   string  `json:"model_id"`
	Score     int     `json:"score"`
	Cost      float64 `json:"cost"`
	LatencyMs int64   `json:"latency_ms"`
	Tier      FixTier `json:"tier,omitempty"`
}

// TaskRecord is the durable, continuity-store-owned state of a delegated task.
type TaskRecord struct {
	TaskID           string     `json:"task_id"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Status           TaskStatus `json:"status"`
	Attempts         []Attempt  `json:"attempts"`
	FinalArtifactRef string     `json:"final_artifact_ref,omitempty"`
}

// SessionEventKind enumerates the transitions C7 records.
type SessionEventKind string

const (
	EventClassify SessionEventKind = "classify"
	EventDelegate SessionEventKind = "delegate"
	EventValidate SessionEventKind = "validate"
	EventRetry    SessionEventKind = "retry"
	EventEscalate SessionEventKind = "escalate"
	EventComplete SessionEventKind = "complete"
	EventError    SessionEventKind = "error"
)

// SessionEvent is an append-only record in the continuity store's event log.
type SessionEvent struct {
	Timestamp     time.Time        `json:"timestamp"`
	Kind          SessionEventKind `json:"kind"`
	Payload       map[string]any   `json:"payload,omitempty"`
	CorrelationID string           `json:"correlation_id"` // task_id
}

// Checkpoint is a minimal recovery manifest, bounded to <= 2KB on disk by
// moving the active task list out by reference. LastEventsSummary is stored
// as given and is not shortened, so a summary that alone approaches 2KB can
// still push the file past that size.
type Checkpoint struct {
	CheckpointID      string    `json:"checkpoint_id"`
	Timestamp         time.Time `json:"timestamp"`
	ActiveTaskIDs     []string  `json:"active_task_ids"`
	LastEventsSummary string    `json:"last_events_summary"`
	StateHash         string    `json:"state_hash"`
	// ActiveTasksRef is set instead of an inline ActiveTaskIDs list when the
	// naive serialization would exceed the 2KB cap — it is a pointer to
	// tasks/active.json rather than the content itself (lossless by
	// reference, spec.md §4.5).
	ActiveTasksRef string `json:"active_tasks_ref,omitempty"`
}

// Result is the orchestrator's (C6) and the pipeline facade's (C8) return
// value: the accepted artifact, its final validation, the full attempt
// history, and the total cost spent reaching ACCEPT or FAIL.
type Result struct {
	Artifact        string           `json:"artifact"`
	FinalValidation ValidationResult `json:"final_validation"`
	Attempts        []Attempt        `json:"attempts"`
	TotalCost       float64          `json:"total_cost"`
}

// ─── Errors (§7) ──────────────────────────────────────────────────────────────

// ErrorKind is the closed taxonomy of errors the core surfaces to callers.
type ErrorKind string

const (
	ErrBudgetExceeded           ErrorKind = "BudgetExceeded"
	ErrNoEligibleModel          ErrorKind = "NoEligibleModel"
	ErrUpstreamUnavailable      ErrorKind = "UpstreamUnavailable"
	ErrValidationBelowThreshold ErrorKind = "ValidationBelowThreshold"
	ErrPersistenceFailure       ErrorKind = "PersistenceFailure"
	ErrCancelledByCaller        ErrorKind = "CancelledByCaller"
)

// CoreError is the error type the compressor, router, orchestrator,
// continuity store and pipeline return to a caller (registry.New reports
// configuration errors as plain errors instead). It always carries one of
// the ErrorKind taxonomy values plus a human-readable message and, where
// applicable, a remedial hint.
type CoreError struct {
	Kind    ErrorKind
	Message string
	Hint    string
	Cause   error
}

func (e *CoreError) Error() string {
	if e.Hint != "" {
		return string(e.Kind) + ": " + e.Message + " (hint: " + e.Hint + ")"
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *CoreError) Unwrap() error { return e.Cause }

// NewCoreError constructs a CoreError.
func NewCoreError(kind ErrorKind, message string, opts ...func(*CoreError)) *CoreError {
	e := &CoreError{Kind: kind, Message: message}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithHint attaches a remedial hint to a CoreError.
func WithHint(hint string) func(*CoreError) {
	return func(e *CoreError) { e.Hint = hint }
}

// WithCause wraps an underlying error.
func WithCause(cause error) func(*CoreError) {
	return func(e *CoreError) { e.Cause = cause }
}
