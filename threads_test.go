package codexlink

import "testing"

func TestThreadMap_MapAndLookup(t *testing.T) {
	tm := newThreadMap()

	tm.Map("local-1", "remote-1")

	if r, ok := tm.Remote("local-1"); !ok || r != "remote-1" {
		t.Errorf("Remote(local-1) = %q, %v", r, ok)
	}
	if l, ok := tm.Local("remote-1"); !ok || l != "local-1" {
		t.Errorf("Local(remote-1) = %q, %v", l, ok)
	}
	if _, ok := tm.Remote("local-2"); ok {
		t.Error("unmapped local id should miss")
	}
}

func TestThreadMap_RemapEvictsStalePairings(t *testing.T) {
	tm := newThreadMap()

	tm.Map("local-1", "remote-1")
	tm.MarkResumed("remote-1")
	tm.Map("local-1", "remote-2")

	if _, ok := tm.Local("remote-1"); ok {
		t.Error("remote-1 should be unmapped after its local moved")
	}
	if tm.Resumed("remote-1") {
		t.Error("remote-1 should lose its resumed marker")
	}
	if r, _ := tm.Remote("local-1"); r != "remote-2" {
		t.Errorf("Remote(local-1) = %q, want remote-2", r)
	}

	// the reverse direction: a remote stolen by another local
	tm.Map("local-9", "remote-2")
	if _, ok := tm.Remote("local-1"); ok {
		t.Error("local-1 should be unmapped after remote-2 moved")
	}
	if l, _ := tm.Local("remote-2"); l != "local-9" {
		t.Errorf("Local(remote-2) = %q, want local-9", l)
	}
}

func TestThreadMap_Resumed(t *testing.T) {
	tm := newThreadMap()

	tm.Map("local-1", "remote-1")
	if tm.Resumed("remote-1") {
		t.Error("fresh mapping should not be resumed")
	}

	tm.MarkResumed("remote-1")
	if !tm.Resumed("remote-1") {
		t.Error("MarkResumed should stick")
	}
}

func TestThreadMap_Invalidate(t *testing.T) {
	tm := newThreadMap()

	tm.Map("local-1", "remote-1")
	tm.MarkResumed("remote-1")
	tm.SetLastMessage("local-1", "msg-1")

	tm.Invalidate("local-1")

	if _, ok := tm.Remote("local-1"); ok {
		t.Error("invalidated local should miss")
	}
	if _, ok := tm.Local("remote-1"); ok {
		t.Error("invalidated remote should miss")
	}
	if tm.Resumed("remote-1") {
		t.Error("invalidated remote should not be resumed")
	}
	if tm.LastMessage("local-1") != "" {
		t.Error("invalidated conversation should have no last message")
	}
}

func TestThreadMap_LastMessage(t *testing.T) {
	tm := newThreadMap()

	if tm.LastMessage("local-1") != "" {
		t.Error("unknown conversation should have no last message")
	}

	tm.SetLastMessage("local-1", "msg-1")
	tm.SetLastMessage("local-1", "msg-2")

	if got := tm.LastMessage("local-1"); got != "msg-2" {
		t.Errorf("LastMessage = %q, want msg-2", got)
	}
}

func TestThreadMap_Reset(t *testing.T) {
	tm := newThreadMap()

	tm.Map("local-1", "remote-1")
	tm.MarkResumed("remote-1")
	tm.SetLastMessage("local-1", "msg-1")

	tm.Reset()

	if _, ok := tm.Remote("local-1"); ok {
		t.Error("Reset should drop mappings")
	}
	if tm.Resumed("remote-1") {
		t.Error("Reset should drop resumed markers")
	}
	if tm.LastMessage("local-1") != "" {
		t.Error("Reset should drop last messages")
	}
}

func TestCorrelator_IDsNeverRepeat(t *testing.T) {
	cr := newCorrelator()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := cr.NextID()
		if seen[id] {
			t.Fatalf("id %q issued twice", id)
		}
		seen[id] = true
	}
}

func TestCorrelator_TakeIsExactlyOnce(t *testing.T) {
	cr := newCorrelator()

	p := &pendingRequest{id: cr.NextID(), kind: kindStartTurn}
	cr.Track(p)

	got, ok := cr.Take(p.id)
	if !ok || got != p {
		t.Fatalf("Take = %v, %v", got, ok)
	}
	if _, ok := cr.Take(p.id); ok {
		t.Error("second Take for the same id should miss")
	}
}

func TestCorrelator_DropAllKeepsIDMonotonic(t *testing.T) {
	cr := newCorrelator()

	first := cr.NextID()
	cr.Track(&pendingRequest{id: first})
	cr.DropAll()

	if _, ok := cr.Take(first); ok {
		t.Error("DropAll should clear pending requests")
	}
	if next := cr.NextID(); next == first {
		t.Error("ids must keep increasing across DropAll")
	}
}
