package chat

import (
	"sync"
	"testing"
	"time"

	vodpkg "github.com/onnwee/vod-moments/backend/vod"
)

func TestRecorderStateLifecycle(t *testing.T) {
	var s recorderState
	if s.recording() || s.pendingReconcile() {
		t.Fatal("fresh state must be idle")
	}
	s.streamUp()
	if !s.recording() || !s.pendingReconcile() {
		t.Fatal("live session must be recording and awaiting reconciliation")
	}
	s.sessionResolved()
	if s.recording() || s.pendingReconcile() {
		t.Fatal("resolved session must be idle again")
	}
}

// The reconciliation goroutine resolves the session while the poll loop
// keeps reading; the state must stay consistent under that concurrency.
func TestRecorderStateConcurrentResolve(t *testing.T) {
	var s recorderState
	s.streamUp()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.sessionResolved()
	}()
	go func() {
		defer wg.Done()
		for range 1000 {
			_ = s.recording()
			_ = s.pendingReconcile()
		}
	}()
	wg.Wait()
	if s.recording() || s.pendingReconcile() {
		t.Fatal("state not idle after resolve")
	}
}

func TestMatchSession(t *testing.T) {
	start := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	vods := []vodpkg.VOD{
		{ID: "old", Date: start.Add(-2 * time.Hour)},
		{ID: "early", Date: start.Add(-5 * time.Minute)},
		{ID: "match", Date: start.Add(2 * time.Minute)},
		{ID: "late", Date: start.Add(30 * time.Minute)},
	}
	got := matchSession(vods, start)
	if got == nil || got.ID != "match" {
		t.Fatalf("matchSession() = %v, want match", got)
	}
}

func TestMatchSessionNoCandidate(t *testing.T) {
	start := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	vods := []vodpkg.VOD{
		{ID: "old", Date: start.Add(-time.Hour)},
		{ID: "future", Date: start.Add(time.Hour)},
	}
	if got := matchSession(vods, start); got != nil {
		t.Fatalf("matchSession() = %v, want nil", got)
	}
}

func TestMatchSessionPrefersLatestWithinWindow(t *testing.T) {
	start := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	vods := []vodpkg.VOD{
		{ID: "first", Date: start.Add(1 * time.Minute)},
		{ID: "second", Date: start.Add(8 * time.Minute)},
	}
	got := matchSession(vods, start)
	if got == nil || got.ID != "second" {
		t.Fatalf("matchSession() = %v, want second", got)
	}
}
