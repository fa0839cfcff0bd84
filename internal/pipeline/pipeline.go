// Package pipeline implements the Pipeline Facade (C8): the single run()
// entry point composing the Context Compressor (C3), Specialized Task
// Router (C4, invoked internally by the orchestrator), Hybrid Orchestrator
// (C6), and Continuity Store (C7) into one request/response call.
package pipeline

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/dataparency-dev/delegatecore/internal/compressor"
	"github.com/dataparency-dev/delegatecore/internal/continuity"
	"github.com/dataparency-dev/delegatecore/internal/orchestrator"
	"github.com/dataparency-dev/delegatecore/internal/registry"
	"github.com/dataparency-dev/delegatecore/internal/types"
)

// Pipeline wires C3, C6 (which itself drives C4 and C5), and C7 behind the
// single run() facade described in spec.md §6.
type Pipeline struct {
	reg   *registry.Registry
	orch  *orchestrator.Orchestrator
	store *continuity.Store
}

// New constructs a Pipeline. client is the caller's ModelClient
// implementation; store is the continuity store the orchestrator emits
// SessionEvents to and the facade persists TaskRecords/checkpoints through.
func New(reg *registry.Registry, client orchestrator.ModelClient, store *continuity.Store) *Pipeline {
	return &Pipeline{
		reg:   reg,
		orch:  orchestrator.New(reg, client, store),
		store: store,
	}
}

// Run implements the C8 contract: run(task, history, policy,
// target_tokens=8000, threshold=80, max_retries=2) -> Result. The listed
// defaults are not filled in here: every argument is used as passed, so a
// zero threshold or maxRetries is taken literally.
func (p *Pipeline) Run(ctx context.Context, task string, history []types.Message, policy types.Policy, targetTokens, threshold, maxRetries int, namespace string, preserveSystemMessages bool) (types.Result, error) {
	taskID := deriveTaskID(task, history)
	now := time.Now()

	if err := p.store.PutTask(types.TaskRecord{TaskID: taskID, CreatedAt: now, UpdatedAt: now, Status: types.TaskPending}); err != nil {
		return types.Result{}, err
	}

	compressed, err := compressor.Compress(history, task, targetTokens, namespace, preserveSystemMessages)
	if err != nil {
		p.markFailed(taskID, nil)
		return types.Result{}, err
	}

	if err := p.store.PutTask(types.TaskRecord{TaskID: taskID, CreatedAt: now, UpdatedAt: time.Now(), Status: types.TaskInProgress}); err != nil {
		return types.Result{}, err
	}

	result, err := p.orch.Orchestrate(ctx, taskID, task, compressed, policy, threshold, maxRetries)

	status := types.TaskValidated
	if err != nil {
		status = types.TaskFailed
	}

	record := types.TaskRecord{
		TaskID:           taskID,
		CreatedAt:        now,
		UpdatedAt:        time.Now(),
		Status:           status,
		Attempts:         result.Attempts,
		FinalArtifactRef: taskID + "#artifact",
	}
	if putErr := p.store.PutTask(record); putErr != nil {
		return result, putErr
	}

	return result, err
}

func (p *Pipeline) markFailed(taskID string, attempts []types.Attempt) {
	_ = p.store.PutTask(types.TaskRecord{
		TaskID:    taskID,
		UpdatedAt: time.Now(),
		Status:    types.TaskFailed,
		Attempts:  attempts,
	})
}

// deriveTaskID content-addresses the task from the prompt, the first
// message's content (if any) and the history length, so repeated identical
// requests resolve to the
// same task_id (spec.md §3: "task_id (stable, content-derived)").
func deriveTaskID(task string, history []types.Message) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(task))
	if len(history) > 0 {
		h.Write([]byte(history[0].Content))
	}
	h.Write([]byte(fmt.Sprintf("%d", len(history))))
	return "task-" + hex.EncodeToString(h.Sum(nil))[:16]
}
