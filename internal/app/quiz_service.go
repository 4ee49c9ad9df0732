package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/scoring"
)

const defaultBattleRoyaleMin = 2

// QuizService contains the session use cases: it creates session drivers, keeps
// them in the registry while they are live, and routes calls to them.
type QuizService struct {
	sessions  SessionRegistry
	quizzes   QuizRepository
	deps      SessionDeps
	retention time.Duration
	log       *slog.Logger
}

// NewQuizService wires the session use cases. Terminal sessions stay in the
// registry for retention so late readers hit memory before the gateway.
func NewQuizService(sessions SessionRegistry, quizzes QuizRepository, deps SessionDeps, retention time.Duration) *QuizService {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &QuizService{
		sessions:  sessions,
		quizzes:   quizzes,
		deps:      deps,
		retention: retention,
		log:       deps.Logger,
	}
}

// CreateSession validates settings, loads the quiz and opens a waiting session owned by ownerID.
func (s *QuizService) CreateSession(ctx context.Context, ownerID, quizID string, settings domain.SessionSettings) (domain.SessionView, error) {
	sess, err := s.create(ctx, ownerID, quizID, settings, nil)
	if err != nil {
		return domain.SessionView{}, err
	}
	return sess.View(), nil
}

// matchBinding ties a session to the tournament match it decides.
type matchBinding struct {
	TournamentID string
	MatchID      string
	Roster       []string
	OnEnd        func(domain.SessionView)
}

func (s *QuizService) create(ctx context.Context, ownerID, quizID string, settings domain.SessionSettings, match *matchBinding) (*Session, error) {
	if settings.Kind == "" {
		settings.Kind = domain.KindStandard
	}
	if settings.Kind == domain.KindBattleRoyale && settings.MinParticipants == 0 {
		settings.MinParticipants = defaultBattleRoyaleMin
	}
	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if len(quiz.Questions) == 0 {
		return nil, fmt.Errorf("%w: quiz %s has no questions", domain.ErrInvalidSettings, quizID)
	}
	for _, q := range quiz.Questions {
		if q.CorrectCount() == 0 {
			return nil, fmt.Errorf("%w: question %s has no correct option", domain.ErrInvalidSettings, q.ID)
		}
	}

	order := make([]int, len(quiz.Questions))
	for i := range order {
		order[i] = i
	}
	var seed int64
	if settings.RandomizeQuestions {
		seed = rand.Int63()
		order = rand.New(rand.NewSource(seed)).Perm(len(quiz.Questions))
	}

	record := domain.Session{
		ID:            uuid.NewString(),
		QuizID:        quizID,
		OwnerID:       ownerID,
		Kind:          settings.Kind,
		Status:        domain.StatusWaiting,
		QuestionIndex: -1,
		QuestionOrder: order,
		Seed:          seed,
		Settings:      settings,
		CreatedAt:     s.deps.Clock.Now(),
	}
	if match != nil {
		record.TournamentID = match.TournamentID
		record.MatchID = match.MatchID
	}

	sess := NewSession(record, quiz, s.deps)
	if match != nil {
		sess.restrict(match.Roster)
		if match.OnEnd != nil {
			sess.OnEnd(match.OnEnd)
		}
	}
	sess.OnEnd(func(view domain.SessionView) {
		s.log.Info("session finished", "session_id", view.Session.ID, "status", view.Session.Status, "reason", view.Session.EndReason)
		s.deps.Clock.AfterFunc(s.retention, func() { s.sessions.Remove(view.Session.ID) })
	})
	if err := sess.Open(ctx); err != nil {
		return nil, err
	}
	s.sessions.Add(sess)
	s.log.Info("session created", "session_id", record.ID, "quiz_id", record.QuizID, "kind", record.Kind)
	return sess, nil
}

// ValidateSettings rejects settings a session cannot run with.
func ValidateSettings(settings domain.SessionSettings) error {
	switch settings.Kind {
	case domain.KindStandard, domain.KindBattleRoyale, domain.KindTournament:
	default:
		return fmt.Errorf("%w: unknown session kind %q", domain.ErrInvalidSettings, settings.Kind)
	}
	if settings.DefaultTimeLimit <= 0 {
		return fmt.Errorf("%w: default time limit must be positive", domain.ErrInvalidSettings)
	}
	if settings.AutoAdvance < 0 {
		return fmt.Errorf("%w: auto advance delay must not be negative", domain.ErrInvalidSettings)
	}
	if settings.MinParticipants < 0 || settings.MaxParticipants < 0 {
		return fmt.Errorf("%w: participant bounds must not be negative", domain.ErrInvalidSettings)
	}
	if settings.MaxParticipants > 0 && settings.MinParticipants > settings.MaxParticipants {
		return fmt.Errorf("%w: min participants exceeds max participants", domain.ErrInvalidSettings)
	}
	if settings.Kind == domain.KindBattleRoyale {
		el := settings.Elimination
		if el.Percentage < 0 || el.Percentage > 100 {
			return fmt.Errorf("%w: elimination percentage must be within 0..100", domain.ErrInvalidSettings)
		}
		if el.MinCount < 0 || el.MaxRounds < 0 {
			return fmt.Errorf("%w: elimination bounds must not be negative", domain.ErrInvalidSettings)
		}
		if el.Percentage == 0 && el.MinCount == 0 && el.MaxRounds == 0 {
			return fmt.Errorf("%w: battle royale needs an elimination percentage, a minimum count or a round cap", domain.ErrInvalidSettings)
		}
	}
	return scoring.Validate(settings.Scoring)
}

// Join registers or refreshes a participant in a live session.
func (s *QuizService) Join(ctx context.Context, sessionID, participantID, displayName string, spectator bool) (domain.Participant, error) {
	sess, err := s.live(sessionID)
	if err != nil {
		return domain.Participant{}, err
	}
	return sess.Join(ctx, participantID, displayName, spectator)
}

// Start begins a waiting session.
func (s *QuizService) Start(ctx context.Context, sessionID, callerID string) error {
	sess, err := s.live(sessionID)
	if err != nil {
		return err
	}
	return sess.Start(ctx, callerID)
}

// NextQuestion displays the next question of a session.
func (s *QuizService) NextQuestion(ctx context.Context, sessionID, callerID string) error {
	sess, err := s.live(sessionID)
	if err != nil {
		return err
	}
	return sess.NextQuestion(ctx, callerID)
}

// SubmitAnswer queues an answer for the displayed question.
func (s *QuizService) SubmitAnswer(ctx context.Context, sessionID, participantID string, questionIndex int, optionIDs []string) (domain.AnswerAck, error) {
	sess, err := s.live(sessionID)
	if err != nil {
		return domain.AnswerAck{}, err
	}
	return sess.SubmitAnswer(ctx, participantID, questionIndex, optionIDs)
}

// End finalizes a session on behalf of its owner. A session that already ended
// and left the registry is still a no-op success for its owner.
func (s *QuizService) End(ctx context.Context, sessionID, callerID string) error {
	if sess, ok := s.sessions.Get(sessionID); ok {
		return sess.End(ctx, callerID)
	}
	rec, err := s.deps.Gateway.LoadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !rec.Session.Status.Terminal() {
		return domain.ErrSessionNotFound
	}
	ok, err := s.deps.Authorizer.IsSessionOwner(ctx, rec.Session, callerID)
	if err != nil {
		return fmt.Errorf("authorize owner: %w", err)
	}
	if !ok {
		return domain.ErrNotAuthorized
	}
	return nil
}

// GetSession returns the session, falling back to the gateway once the driver is gone.
func (s *QuizService) GetSession(ctx context.Context, sessionID string) (domain.SessionView, error) {
	if sess, ok := s.sessions.Get(sessionID); ok {
		return sess.View(), nil
	}
	rec, err := s.deps.Gateway.LoadSession(ctx, sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return domain.SessionView{Session: rec.Session, Participants: rec.Participants}, nil
}

// Leaderboard returns a leaderboard version, or the latest one when version is 0.
func (s *QuizService) Leaderboard(ctx context.Context, sessionID string, version int) (domain.Leaderboard, error) {
	if sess, ok := s.sessions.Get(sessionID); ok {
		var (
			lb    domain.Leaderboard
			found bool
		)
		if version == 0 {
			lb, found = sess.Leaderboard()
		} else {
			lb, found = sess.LeaderboardVersion(version)
		}
		if !found {
			return domain.Leaderboard{}, ErrLeaderboardNotFound
		}
		return lb, nil
	}

	rec, err := s.deps.Gateway.LoadSession(ctx, sessionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	for i := len(rec.Leaderboards) - 1; i >= 0; i-- {
		if version == 0 || rec.Leaderboards[i].Version == version {
			return rec.Leaderboards[i], nil
		}
	}
	return domain.Leaderboard{}, ErrLeaderboardNotFound
}

// CurrentQuestion returns the question currently open for answers.
func (s *QuizService) CurrentQuestion(sessionID string) (domain.QuestionView, error) {
	sess, err := s.live(sessionID)
	if err != nil {
		return domain.QuestionView{}, err
	}
	q, ok := sess.CurrentQuestion()
	if !ok {
		return domain.QuestionView{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

// Submissions returns the scored answer trail of a session.
func (s *QuizService) Submissions(ctx context.Context, sessionID string) ([]domain.AnswerSubmission, error) {
	if sess, ok := s.sessions.Get(sessionID); ok {
		return sess.Submissions(), nil
	}
	rec, err := s.deps.Gateway.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return rec.Submissions, nil
}

func (s *QuizService) live(sessionID string) (*Session, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// ErrLeaderboardNotFound is returned before the first reveal or for an unknown version.
var ErrLeaderboardNotFound = errors.New("leaderboard version not found")
