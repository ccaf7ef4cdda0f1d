package agentcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseThreadID(t *testing.T) {
	id, err := ParseThreadID("a1")
	require.NoError(t, err)
	assert.Equal(t, ThreadId("a1"), id)
	assert.Equal(t, "a1", id.String())

	_, err = ParseThreadID("  ")
	assert.Error(t, err)
}

func TestAgentStatus_IsFinal(t *testing.T) {
	tests := []struct {
		name   string
		status AgentStatus
		final  bool
	}{
		{"pending init", PendingInit(), false},
		{"running", Running(), false},
		{"completed", Completed("done"), true},
		{"errored", Errored("boom"), true},
		{"shutdown", Shutdown(), true},
		{"not found", NotFound(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.final, tt.status.IsFinal())
		})
	}
}

func TestAgentStatus_IsTimeout(t *testing.T) {
	assert.True(t, Errored("operation timed out after 30s").IsTimeout())
	assert.True(t, Errored("Timeout waiting for agent").IsTimeout())
	assert.False(t, Errored("exit code 1").IsTimeout())
	assert.False(t, Running().IsTimeout(), "non-errored status is never a timeout")
}

func TestAgentStatus_String(t *testing.T) {
	assert.Equal(t, "running", Running().String())
	assert.Equal(t, "completed(done)", Completed("done").String())
	assert.Equal(t, "errored(boom)", Errored("boom").String())
}

func TestParseApprovalLevel(t *testing.T) {
	tests := []struct {
		input string
		level ApprovalLevel
	}{
		{"never", ApprovalNever},
		{"unless_trusted", ApprovalUnlessTrusted},
		{"on_request", ApprovalOnRequest},
		{"on_failure", ApprovalOnFailure},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			lvl, err := ParseApprovalLevel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.level, lvl)
			assert.Equal(t, tt.input, lvl.String())
		})
	}

	_, err := ParseApprovalLevel("bogus")
	assert.Error(t, err)
}

func TestApprovalLevel_Ordering(t *testing.T) {
	assert.Less(t, int(ApprovalNever), int(ApprovalUnlessTrusted))
	assert.Less(t, int(ApprovalUnlessTrusted), int(ApprovalOnRequest))
	assert.Less(t, int(ApprovalOnRequest), int(ApprovalOnFailure))
}

func TestParseSandboxLevel(t *testing.T) {
	tests := []struct {
		input string
		level SandboxLevel
	}{
		{"read_only", SandboxReadOnly},
		{"workspace_write", SandboxWorkspaceWrite},
		{"danger_full_access", SandboxTop},
		{"external_sandbox", SandboxTop},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			lvl, err := ParseSandboxLevel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.level, lvl)
		})
	}

	_, err := ParseSandboxLevel("bogus")
	assert.Error(t, err)
}

func TestSandboxLevel_Ordering(t *testing.T) {
	assert.Less(t, int(SandboxReadOnly), int(SandboxWorkspaceWrite))
	assert.Less(t, int(SandboxWorkspaceWrite), int(SandboxTop))
}

func newRecord(id ThreadId, creator *ThreadId, status AgentStatus) *AgentRecord {
	return &AgentRecord{AgentID: id, CreatorThreadID: creator, Status: status}
}

func tidPtr(t ThreadId) *ThreadId { return &t }

func TestRegistry_PutGet(t *testing.T) {
	r := NewRegistry()
	rec := newRecord("a1", nil, PendingInit())
	r.Put(rec)

	got, ok := r.Get("a1")
	require.True(t, ok)
	assert.Equal(t, rec, got)

	_, ok = r.Get("nonexistent")
	assert.False(t, ok)
}

func TestRegistry_LiveStatus(t *testing.T) {
	r := NewRegistry()
	r.Put(newRecord("a1", nil, Running()))
	assert.Equal(t, Running(), r.LiveStatus("a1"))

	r.Close("a1", 1)
	assert.Equal(t, NotFound(), r.LiveStatus("a1"), "closed threads report NotFound")

	assert.Equal(t, NotFound(), r.LiveStatus("unknown"))
}

func TestRegistry_SetStatus(t *testing.T) {
	r := NewRegistry()
	r.Put(newRecord("a1", nil, PendingInit()))

	require.NoError(t, r.SetStatus("a1", Running(), 100))
	rec, _ := r.Get("a1")
	assert.Equal(t, Running(), rec.Status)
	assert.Equal(t, int64(100), rec.UpdatedAtMs)

	err := r.SetStatus("unknown", Running(), 100)
	assert.Error(t, err)
	var notFound *ErrThreadNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry()
	r.Put(newRecord("a1", nil, Running()))

	require.NoError(t, r.Close("a1", 50))
	rec, _ := r.Get("a1")
	assert.True(t, rec.Closed)

	// Closed is monotonic: a second close doesn't un-set it or error.
	require.NoError(t, r.Close("a1", 75))
	rec, _ = r.Get("a1")
	assert.True(t, rec.Closed)

	assert.Error(t, r.Close("unknown", 0))
}

func TestRegistry_Rename(t *testing.T) {
	r := NewRegistry()
	r.Put(newRecord("a1", nil, Running()))

	require.NoError(t, r.Rename("a1", "reviewer"))
	rec, _ := r.Get("a1")
	require.NotNil(t, rec.Name)
	assert.Equal(t, "reviewer", *rec.Name)

	assert.Error(t, r.Rename("unknown", "x"))
}

func TestRegistry_Depth(t *testing.T) {
	r := NewRegistry()
	r.Put(newRecord("root", nil, Running()))
	r.Put(newRecord("child", tidPtr("root"), Running()))
	r.Put(newRecord("grandchild", tidPtr("child"), Running()))

	assert.Equal(t, 0, r.Depth("root"))
	assert.Equal(t, 1, r.Depth("child"))
	assert.Equal(t, 2, r.Depth("grandchild"))
	assert.Equal(t, 0, r.Depth("unknown"), "unknown id has no recorded ancestry")
}

func TestRegistry_NextDepth(t *testing.T) {
	r := NewRegistry()
	r.Put(newRecord("root", nil, Running()))
	r.Put(newRecord("child", tidPtr("root"), Running()))

	assert.Equal(t, 0, r.NextDepth(nil))
	assert.Equal(t, 1, r.NextDepth(tidPtr("root")))
	assert.Equal(t, 2, r.NextDepth(tidPtr("child")))
}

func TestRegistry_ActiveFanOut(t *testing.T) {
	r := NewRegistry()
	r.Put(newRecord("parent", nil, Running()))
	r.Put(newRecord("c1", tidPtr("parent"), Running()))
	r.Put(newRecord("c2", tidPtr("parent"), PendingInit()))
	r.Put(newRecord("c3", tidPtr("parent"), Completed("")))
	closedChild := newRecord("c4", tidPtr("parent"), Running())
	closedChild.Closed = true
	r.Put(closedChild)

	assert.Equal(t, 2, r.ActiveFanOut("parent"))
	assert.Equal(t, 0, r.ActiveFanOut("c1"), "leaf has no children")
}

func TestRegistry_Children(t *testing.T) {
	r := NewRegistry()
	parent := ThreadId("parent")
	r.Put(newRecord("parent", nil, Running()))
	r.Put(newRecord("c1", &parent, Running()))
	r.Put(newRecord("c2", &parent, Completed("")))
	closedChild := newRecord("c3", &parent, Running())
	closedChild.Closed = true
	r.Put(closedChild)
	r.Put(newRecord("unrelated", nil, Running()))

	t.Run("all children, excluding closed by default", func(t *testing.T) {
		children := r.Children(&parent, nil, false)
		assert.Len(t, children, 2)
	})

	t.Run("include closed", func(t *testing.T) {
		children := r.Children(&parent, nil, true)
		assert.Len(t, children, 3)
	})

	t.Run("filter by status", func(t *testing.T) {
		children := r.Children(&parent, []AgentStatusKind{StatusCompleted}, false)
		require.Len(t, children, 1)
		assert.Equal(t, ThreadId("c2"), children[0].AgentID)
	})

	t.Run("nil parent returns everything not closed", func(t *testing.T) {
		children := r.Children(nil, nil, false)
		assert.Len(t, children, 4) // parent, c1, c2, unrelated
	})
}

func TestRegistry_ActiveChildren(t *testing.T) {
	r := NewRegistry()
	parent := ThreadId("parent")
	r.Put(newRecord("parent", nil, Running()))
	r.Put(newRecord("c1", &parent, Running()))
	r.Put(newRecord("c2", &parent, Completed("")))
	closedChild := newRecord("c3", &parent, Running())
	closedChild.Closed = true
	r.Put(closedChild)

	active := r.ActiveChildren(parent)
	require.Len(t, active, 1)
	assert.Equal(t, ThreadId("c1"), active[0])
}

func TestWatchChannel_SendAndValue(t *testing.T) {
	w := NewWatchChannel(PendingInit())
	v, closed := w.Value()
	assert.Equal(t, PendingInit(), v)
	assert.False(t, closed)

	changed := w.Changed()
	w.Send(Running())

	select {
	case <-changed:
	default:
		t.Fatal("Changed channel should be closed after Send")
	}

	v, closed = w.Value()
	assert.Equal(t, Running(), v)
	assert.False(t, closed)
}

func TestWatchChannel_Close(t *testing.T) {
	w := NewWatchChannel(Running())
	changed := w.Changed()
	w.Close()

	select {
	case <-changed:
	default:
		t.Fatal("Changed channel should be closed after Close")
	}

	_, closed := w.Value()
	assert.True(t, closed)

	// Close/Send after closed are no-ops, not panics.
	w.Close()
	w.Send(Completed("too late"))
	v, _ := w.Value()
	assert.Equal(t, Running(), v, "Send after Close must not take effect")
}

func TestWatchChannel_ChangedAfterClose(t *testing.T) {
	w := NewWatchChannel(Running())
	w.Close()

	ch := w.Changed()
	select {
	case <-ch:
	default:
		t.Fatal("subscribing after close should yield an already-closed channel")
	}
}

func TestBroadcaster_SubscribePublish(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe("a1", PendingInit())
	v, _ := ch.Value()
	assert.Equal(t, PendingInit(), v)

	b.Publish("a1", Running())
	v, _ = ch.Value()
	assert.Equal(t, Running(), v)

	// Subscribing again returns the same channel instance.
	again := b.Subscribe("a1", PendingInit())
	assert.Same(t, ch, again)
}

func TestBroadcaster_PublishCreatesChannel(t *testing.T) {
	b := NewBroadcaster()
	b.Publish("a1", Running())

	ch := b.Subscribe("a1", PendingInit())
	v, _ := ch.Value()
	assert.Equal(t, Running(), v, "Publish before Subscribe should seed the channel's value")
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe("a1", Running())
	b.Close("a1")

	_, closed := ch.Value()
	assert.True(t, closed)

	// Closing an unknown id is a no-op, not a panic.
	b.Close("unknown")
}
