// Package continuity implements the Continuity Store (C7): a single-writer,
// append-only event log plus per-task JSON records and bounded checkpoints,
// all durable via atomic temp-file-then-rename writes. Grounded on the
// filesystem artifact-store idiom (os.MkdirAll/os.WriteFile,
// directory-per-entity layout), adapted here to add true write atomicity
// and an append-only log the source idiom doesn't need.
package continuity

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/dataparency-dev/delegatecore/internal/types"
)

// maxCheckpointBytes is the §4.5 invariant: a naive checkpoint serialization
// must not exceed this size; if it would, the inline task_id list is dropped
// and the checkpoint stores a pointer to tasks/active.json instead.
const maxCheckpointBytes = 2048

// Store is the file-backed ContinuityStore implementation. All writes
// serialize through mu (spec.md §5: "all writes serialize through a single
// writer"); Resume takes the same mutex, so reads are serialized with writes
// and with each other.
type Store struct {
	baseDir string
	mu      sync.Mutex

	// natsConn is an optional, best-effort mirror of SessionEvents for live
	// observers. It is never consulted by resume() or any correctness path
	// — publish failures are logged and swallowed (spec.md §6: the core's
	// only authoritative external dependency is ModelClient.complete; NATS
	// here is purely an observability side channel, never load-bearing).
	natsConn *nats.Conn
}

// Option configures a Store at construction.
type Option func(*Store)

// WithNATSMirror attaches a best-effort NATS publisher for SessionEvents on
// subject "delegatecore.events.<correlation_id>". A nil or unreachable
// connection is tolerated: publish errors are logged, never surfaced.
func WithNATSMirror(conn *nats.Conn) Option {
	return func(s *Store) { s.natsConn = conn }
}

// New constructs a Store rooted at baseDir, creating the on-disk layout
// described in spec.md §4.5 if it does not already exist.
func New(baseDir string, opts ...Option) (*Store, error) {
	s := &Store{baseDir: baseDir}
	for _, opt := range opts {
		opt(s)
	}
	for _, sub := range []string{"sessions", "tasks", "checkpoints"} {
		if err := os.MkdirAll(filepath.Join(baseDir, sub), 0o755); err != nil {
			return nil, types.NewCoreError(types.ErrPersistenceFailure, "failed to initialize continuity store layout", types.WithCause(err))
		}
	}
	return s, nil
}

// AppendEvent appends one SessionEvent to today's session log, fsyncing
// before return so the event is durable before the caller observes the
// corresponding state transition (spec.md §4.5 invariant).
func (s *Store) AppendEvent(event types.SessionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	line, err := json.Marshal(event)
	if err != nil {
		return types.NewCoreError(types.ErrPersistenceFailure, "failed to marshal session event", types.WithCause(err))
	}

	path := filepath.Join(s.baseDir, "sessions", event.Timestamp.Format("2006-01-02")+".log.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return types.NewCoreError(types.ErrPersistenceFailure, "failed to open session log", types.WithCause(err))
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return types.NewCoreError(types.ErrPersistenceFailure, "failed to append session event", types.WithCause(err))
	}
	if err := f.Sync(); err != nil {
		return types.NewCoreError(types.ErrPersistenceFailure, "failed to fsync session log", types.WithCause(err))
	}

	s.mirrorToNATS(event)
	return nil
}

func (s *Store) mirrorToNATS(event types.SessionEvent) {
	if s.natsConn == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	subject := "delegatecore.events." + event.CorrelationID
	if err := s.natsConn.Publish(subject, payload); err != nil {
		log.Debug().Err(err).Str("subject", subject).Msg("nats_mirror_publish_failed")
	}
}

// PutTask upserts a task record: last-write-wins by UpdatedAt, written
// atomically via temp-file-then-rename.
func (s *Store) PutTask(task types.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readTaskLocked(task.TaskID)
	if err == nil && existing.UpdatedAt.After(task.UpdatedAt) {
		return nil // last-write-wins: a newer record is already on disk
	}

	if err := s.writeJSONAtomic(filepath.Join(s.baseDir, "tasks", task.TaskID+".json"), task); err != nil {
		return err
	}
	return s.updateActiveIndexLocked(task)
}

func (s *Store) readTaskLocked(taskID string) (types.TaskRecord, error) {
	var t types.TaskRecord
	data, err := os.ReadFile(filepath.Join(s.baseDir, "tasks", taskID+".json"))
	if err != nil {
		return t, err
	}
	err = json.Unmarshal(data, &t)
	return t, err
}

func (s *Store) updateActiveIndexLocked(task types.TaskRecord) error {
	indexPath := filepath.Join(s.baseDir, "tasks", "active.json")
	var active []string
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = json.Unmarshal(data, &active)
	}

	set := make(map[string]struct{}, len(active))
	for _, id := range active {
		set[id] = struct{}{}
	}
	if task.Status.IsTerminal() {
		delete(set, task.TaskID)
	} else {
		set[task.TaskID] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)

	return s.writeJSONAtomic(indexPath, out)
}

// Checkpoint produces a bounded recovery manifest (spec.md §4.5). digest
// values are caller-supplied summaries (e.g. a short text describing recent
// activity); StateHash is derived deterministically from the active task
// ids so repeated checkpoints of identical state hash identically.
func (s *Store) Checkpoint(activeTasksDigest, recentEventsDigest string) (types.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var activeIDs []string
	indexPath := filepath.Join(s.baseDir, "tasks", "active.json")
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = json.Unmarshal(data, &activeIDs)
	}

	cp := types.Checkpoint{
		CheckpointID:      "ckpt-" + uuid.NewString(),
		Timestamp:         time.Now(),
		ActiveTaskIDs:     activeIDs,
		LastEventsSummary: recentEventsDigest,
		StateHash:         stateHash(activeIDs),
	}

	naive, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return types.Checkpoint{}, types.NewCoreError(types.ErrPersistenceFailure, "failed to marshal checkpoint", types.WithCause(err))
	}
	if len(naive) > maxCheckpointBytes {
		cp.ActiveTaskIDs = nil
		cp.ActiveTasksRef = "tasks/active.json"
	}

	if err := s.writeJSONAtomic(filepath.Join(s.baseDir, "checkpoints", "latest.json"), cp); err != nil {
		return types.Checkpoint{}, err
	}
	if err := s.writeJSONAtomic(filepath.Join(s.baseDir, "checkpoints", cp.CheckpointID+".json"), cp); err != nil {
		return types.Checkpoint{}, err
	}
	return cp, nil
}

func stateHash(activeIDs []string) string {
	sorted := append([]string(nil), activeIDs...)
	sort.Strings(sorted)
	sum := blake2b.Sum256([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(sum[:])
}

// ResumeState is the result of resume(): the last checkpoint, if any, plus
// all non-terminal task records.
type ResumeState struct {
	LastCheckpoint *types.Checkpoint
	PendingTasks   []types.TaskRecord
}

// Resume reconstructs enough state to continue after a restart: the last
// checkpoint (if any) and every task still in a non-terminal state. It
// completes in O(|active_tasks|) — a single index load plus one file read
// per active task, per spec.md §4.5.
func (s *Store) Resume() (ResumeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state ResumeState

	latestPath := filepath.Join(s.baseDir, "checkpoints", "latest.json")
	if data, err := os.ReadFile(latestPath); err == nil {
		var cp types.Checkpoint
		if err := json.Unmarshal(data, &cp); err == nil {
			state.LastCheckpoint = &cp
		}
	}

	var activeIDs []string
	indexPath := filepath.Join(s.baseDir, "tasks", "active.json")
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = json.Unmarshal(data, &activeIDs)
	}

	for _, id := range activeIDs {
		t, err := s.readTaskLocked(id)
		if err != nil {
			continue // a missing/corrupt task file does not abort resume
		}
		state.PendingTasks = append(state.PendingTasks, t)
	}

	return state, nil
}

// writeJSONAtomic marshals v and writes it via temp-file-then-rename so a
// reader never observes a partially written file.
func (s *Store) writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return types.NewCoreError(types.ErrPersistenceFailure, "failed to marshal "+filepath.Base(path), types.WithCause(err))
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return types.NewCoreError(types.ErrPersistenceFailure, "failed to create temp file for "+filepath.Base(path), types.WithCause(err))
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return types.NewCoreError(types.ErrPersistenceFailure, "failed to write temp file for "+filepath.Base(path), types.WithCause(err))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return types.NewCoreError(types.ErrPersistenceFailure, "failed to fsync temp file for "+filepath.Base(path), types.WithCause(err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return types.NewCoreError(types.ErrPersistenceFailure, "failed to close temp file for "+filepath.Base(path), types.WithCause(err))
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return types.NewCoreError(types.ErrPersistenceFailure, "failed to rename temp file into place for "+filepath.Base(path), types.WithCause(err))
	}
	return nil
}
