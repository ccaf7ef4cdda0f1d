package agentcore

import (
	"fmt"
	"sync"
)

// ErrThreadNotFound mirrors the lifecycle error the teacher's control
// plane returns when a thread id is unknown.
type ErrThreadNotFound struct{ ID ThreadId }

func (e *ErrThreadNotFound) Error() string {
	return fmt.Sprintf("thread not found: %s", e.ID)
}

// Registry owns the AgentRecord store and enforces the data-model
// invariants: closed-monotonicity, depth computation, and fan-out
// counting. It is the in-process backing store behind AgentControl;
// callers needing cross-workflow visibility layer a watch-channel
// (see watch.go) and/or a Temporal child-workflow boundary on top of it.
type Registry struct {
	mu      sync.Mutex
	records map[ThreadId]*AgentRecord
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[ThreadId]*AgentRecord)}
}

// Put inserts or replaces a record.
func (r *Registry) Put(rec *AgentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.AgentID] = rec
}

// Get returns the stored record, regardless of closed state — closed
// threads remain retrievable via get_agent_record per the spec.
func (r *Registry) Get(id ThreadId) (*AgentRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	return rec, ok
}

// LiveStatus returns NotFound for a closed or unknown thread, else the
// record's stored status — the "closed threads report NotFound from
// live status queries" invariant.
func (r *Registry) LiveStatus(id ThreadId) AgentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Closed {
		return NotFound()
	}
	return rec.Status
}

// SetStatus updates a record's status, leaving Closed untouched.
func (r *Registry) SetStatus(id ThreadId, status AgentStatus, nowMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return &ErrThreadNotFound{ID: id}
	}
	rec.Status = status
	rec.UpdatedAtMs = nowMs
	return nil
}

// Close marks a record closed. Closed is monotonic: once true it is
// never cleared by a later call.
func (r *Registry) Close(id ThreadId, nowMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return &ErrThreadNotFound{ID: id}
	}
	rec.Closed = true
	rec.UpdatedAtMs = nowMs
	return nil
}

// Rename sets a record's display name.
func (r *Registry) Rename(id ThreadId, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return &ErrThreadNotFound{ID: id}
	}
	rec.Name = &name
	return nil
}

// Depth returns the chain length following CreatorThreadID to a root
// (CreatorThreadID == nil). A thread with no creator has depth 0; its
// direct children have depth 1, and so on.
func (r *Registry) Depth(id ThreadId) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.depthLocked(id)
}

func (r *Registry) depthLocked(id ThreadId) int {
	depth := 0
	cur := id
	seen := map[ThreadId]bool{}
	for {
		rec, ok := r.records[cur]
		if !ok || rec.CreatorThreadID == nil {
			return depth
		}
		if seen[cur] {
			// Parent pointers never cycle by construction; this guards
			// a corrupted store rather than a reachable case.
			return depth
		}
		seen[cur] = true
		depth++
		cur = *rec.CreatorThreadID
	}
}

// NextDepth returns the depth a new child of parent would have.
func (r *Registry) NextDepth(parent *ThreadId) int {
	if parent == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.depthLocked(*parent) + 1
}

// ActiveFanOut counts records whose CreatorThreadID == parent, are not
// closed, and whose status is PendingInit or Running.
func (r *Registry) ActiveFanOut(parent ThreadId) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, rec := range r.records {
		if rec.CreatorThreadID == nil || *rec.CreatorThreadID != parent {
			continue
		}
		if rec.Closed {
			continue
		}
		if rec.Status.Kind == StatusPendingInit || rec.Status.Kind == StatusRunning {
			count++
		}
	}
	return count
}

// Children returns records whose CreatorThreadID == parent, applying the
// optional statuses/includeClosed filters used by list_agents.
func (r *Registry) Children(parent *ThreadId, statuses []AgentStatusKind, includeClosed bool) []*AgentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var statusSet map[AgentStatusKind]bool
	if len(statuses) > 0 {
		statusSet = make(map[AgentStatusKind]bool, len(statuses))
		for _, s := range statuses {
			statusSet[s] = true
		}
	}
	var out []*AgentRecord
	for _, rec := range r.records {
		if parent != nil {
			if rec.CreatorThreadID == nil || *rec.CreatorThreadID != *parent {
				continue
			}
		}
		if rec.Closed && !includeClosed {
			continue
		}
		if statusSet != nil && !statusSet[rec.Status.Kind] {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// ActiveChildren returns non-final children of parent — the default
// target set for wait_agents when agent_ids is omitted.
func (r *Registry) ActiveChildren(parent ThreadId) []ThreadId {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ThreadId
	for _, rec := range r.records {
		if rec.CreatorThreadID == nil || *rec.CreatorThreadID != parent {
			continue
		}
		if rec.Closed || rec.Status.IsFinal() {
			continue
		}
		out = append(out, rec.AgentID)
	}
	return out
}
