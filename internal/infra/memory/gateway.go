package memory

import (
	"context"
	"sync"

	"quiz-arena/internal/app"
	"quiz-arena/internal/domain"
)

// Gateway keeps aggregates in process memory. A save replaces the session row,
// appends the submissions and leaderboard versions it carries, and is atomic
// under the gateway lock.
type Gateway struct {
	mu          sync.RWMutex
	sessions    map[string]app.SessionRecord
	tournaments map[string]app.TournamentRecord
}

func NewGateway() *Gateway {
	return &Gateway{
		sessions:    make(map[string]app.SessionRecord),
		tournaments: make(map[string]app.TournamentRecord),
	}
}

func (g *Gateway) SaveSession(_ context.Context, rec app.SessionRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	prev := g.sessions[rec.Session.ID]
	g.sessions[rec.Session.ID] = app.SessionRecord{
		Session:      rec.Session,
		Participants: append([]domain.Participant(nil), rec.Participants...),
		Submissions:  append(prev.Submissions[:len(prev.Submissions):len(prev.Submissions)], rec.Submissions...),
		Leaderboards: append(prev.Leaderboards[:len(prev.Leaderboards):len(prev.Leaderboards)], rec.Leaderboards...),
	}
	return nil
}

func (g *Gateway) LoadSession(_ context.Context, sessionID string) (app.SessionRecord, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.sessions[sessionID]
	if !ok {
		return app.SessionRecord{}, domain.ErrSessionNotFound
	}
	return app.SessionRecord{
		Session:      rec.Session,
		Participants: append([]domain.Participant(nil), rec.Participants...),
		Submissions:  append([]domain.AnswerSubmission(nil), rec.Submissions...),
		Leaderboards: append([]domain.Leaderboard(nil), rec.Leaderboards...),
	}, nil
}

func (g *Gateway) SaveTournament(_ context.Context, rec app.TournamentRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec.Bracket = rec.Bracket.Clone()
	g.tournaments[rec.Tournament.ID] = rec
	return nil
}

func (g *Gateway) LoadTournament(_ context.Context, tournamentID string) (app.TournamentRecord, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.tournaments[tournamentID]
	if !ok {
		return app.TournamentRecord{}, domain.ErrTournamentNotFound
	}
	rec.Bracket = rec.Bracket.Clone()
	return rec, nil
}
