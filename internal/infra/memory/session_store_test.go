package memory

import (
	"testing"

	"quiz-arena/internal/app"
	"quiz-arena/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()

	session := app.NewSession(domain.Session{ID: "s-1", Status: domain.StatusWaiting}, sampleQuiz(), app.SessionDeps{})
	store.Add(session)
	got, ok := store.Get("s-1")
	if !ok || got != session {
		t.Fatalf("expected session present")
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", store.Len())
	}

	store.Remove("s-1")
	if _, ok := store.Get("s-1"); ok {
		t.Fatalf("expected session removed")
	}
	store.Remove("s-1")
}
