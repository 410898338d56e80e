package vod

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchRechatChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("video_id"); got != "123" {
			t.Errorf("video_id = %q", got)
		}
		if got := r.URL.Query().Get("offset"); got != "0" {
			t.Errorf("offset = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[
			{"attributes":{"id":"m1","timestamp":"2026-05-01T18:00:05Z","offset":5.2,"message":{"body":"hello","user":{"userLogin":"alice","displayName":"Alice"}}}},
			{"attributes":{"id":"m2","offset":12.0,"message":{"body":"POGGERS","user":{"displayName":"Bob"}}}}
		]}`)
	}))
	defer server.Close()

	old := rechatBaseURL
	rechatBaseURL = server.URL
	defer func() { rechatBaseURL = old }()

	msgs, next, err := fetchRechatChunk(context.Background(), "123", 0)
	if err != nil {
		t.Fatalf("fetchRechatChunk() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].User != "alice" || msgs[0].Text != "hello" || msgs[0].Rel != 5.2 {
		t.Errorf("first message = %+v", msgs[0])
	}
	// DisplayName is the fallback when no login is present.
	if msgs[1].User != "Bob" {
		t.Errorf("second message user = %q, want Bob", msgs[1].User)
	}
	// Next offset follows the last message's relative timestamp.
	if next != 13 {
		t.Errorf("next offset = %d, want 13", next)
	}
}

func TestFetchRechatChunkFallsBackToPrefixedID(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("video_id")
		paths = append(paths, id)
		if id == "v123" {
			fmt.Fprint(w, `{"data":[{"attributes":{"id":"m1","offset":1,"message":{"body":"hi","user":{"userLogin":"alice"}}}}]}`)
			return
		}
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	old := rechatBaseURL
	rechatBaseURL = server.URL
	defer func() { rechatBaseURL = old }()

	msgs, _, err := fetchRechatChunk(context.Background(), "123", 0)
	if err != nil {
		t.Fatalf("fetchRechatChunk() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if len(paths) != 2 || paths[0] != "123" || paths[1] != "v123" {
		t.Errorf("request ids = %v, want [123 v123]", paths)
	}
}

func TestFetchRechatChunkErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	old := rechatBaseURL
	rechatBaseURL = server.URL
	defer func() { rechatBaseURL = old }()

	if _, _, err := fetchRechatChunk(context.Background(), "123", 0); err == nil {
		t.Error("expected error from non-200 response")
	}
}
