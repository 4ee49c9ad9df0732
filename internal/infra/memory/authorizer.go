package memory

import (
	"context"
	"sync"

	"quiz-arena/internal/domain"
)

// Authorizer is a configurable identity stand-in. The session owner and any
// admin may drive a session. With open registration anyone may join; otherwise
// only IDs added through Register are accepted.
type Authorizer struct {
	mu       sync.RWMutex
	open     bool
	admins   map[string]struct{}
	verified map[string]struct{}
}

func NewAuthorizer(openRegistration bool, admins ...string) *Authorizer {
	a := &Authorizer{
		open:     openRegistration,
		admins:   make(map[string]struct{}, len(admins)),
		verified: make(map[string]struct{}),
	}
	for _, id := range admins {
		a.admins[id] = struct{}{}
	}
	return a
}

// Register marks participant IDs as known.
func (a *Authorizer) Register(ids ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		a.verified[id] = struct{}{}
	}
}

func (a *Authorizer) IsSessionOwner(_ context.Context, session domain.Session, callerID string) (bool, error) {
	if callerID == "" {
		return false, nil
	}
	if callerID == session.OwnerID {
		return true, nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, admin := a.admins[callerID]
	return admin, nil
}

func (a *Authorizer) IsRegisteredParticipant(_ context.Context, _ domain.Session, callerID string) (bool, error) {
	if callerID == "" {
		return false, nil
	}
	if a.open {
		return true, nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.verified[callerID]
	return ok, nil
}
