package app

import (
	"context"

	"quiz-arena/internal/bracket"
	"quiz-arena/internal/domain"
)

// Publisher pushes lifecycle events to whatever transport clients listen on.
// Delivery is fire-and-forget; callers log and drop errors.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev domain.Event) error
}

// SessionRecord is everything one session transition writes.
type SessionRecord struct {
	Session      domain.Session
	Participants []domain.Participant
	// Submissions holds answers scored by the transition being saved; loads return the full trail.
	Submissions []domain.AnswerSubmission
	// Leaderboards holds versions produced by the transition being saved; loads return every version.
	Leaderboards []domain.Leaderboard
}

// TournamentRecord is a tournament together with its bracket.
type TournamentRecord struct {
	Tournament domain.Tournament `json:"tournament"`
	Bracket    *bracket.Bracket  `json:"bracket"`
}

// Gateway persists aggregates. Each save must commit atomically or not at all.
type Gateway interface {
	SaveSession(ctx context.Context, rec SessionRecord) error
	LoadSession(ctx context.Context, sessionID string) (SessionRecord, error)
	SaveTournament(ctx context.Context, rec TournamentRecord) error
	LoadTournament(ctx context.Context, tournamentID string) (TournamentRecord, error)
}

// Authorizer supplies identity decisions; the engine never makes them itself.
type Authorizer interface {
	IsSessionOwner(ctx context.Context, session domain.Session, callerID string) (bool, error)
	IsRegisteredParticipant(ctx context.Context, session domain.Session, callerID string) (bool, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// SessionRegistry tracks live session drivers (in-memory, Redis-marked, etc).
type SessionRegistry interface {
	Add(session *Session)
	Get(sessionID string) (*Session, bool)
	Remove(sessionID string)
}
