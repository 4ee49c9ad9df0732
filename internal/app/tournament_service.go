package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"quiz-arena/internal/bracket"
	"quiz-arena/internal/domain"
)

// TournamentService runs brackets. Results are applied to a clone of the bracket,
// persisted, and only then committed, one tournament at a time.
type TournamentService struct {
	sessions *QuizService
	gateway  Gateway
	pub      Publisher
	clock    clockwork.Clock
	log      *slog.Logger

	mu   sync.Mutex
	live map[string]*liveTournament
}

// liveTournament is guarded by a plain mutex: bracket lookups rebuild their index lazily.
type liveTournament struct {
	mu  sync.Mutex
	rec TournamentRecord
}

// CreateTournamentParams describes a new bracket.
type CreateTournamentParams struct {
	OwnerID      string
	Name         string
	Format       domain.BracketFormat
	Participants []string
	Shuffle      bool
	Seed         int64
}

// NewTournamentService wires the tournament use cases. Match sessions are created through sessions.
func NewTournamentService(sessions *QuizService, gateway Gateway, pub Publisher, clock clockwork.Clock, logger *slog.Logger) *TournamentService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TournamentService{
		sessions: sessions,
		gateway:  gateway,
		pub:      pub,
		clock:    clock,
		log:      logger,
		live:     make(map[string]*liveTournament),
	}
}

// CreateTournament builds and persists a bracket.
func (s *TournamentService) CreateTournament(ctx context.Context, p CreateTournamentParams) (TournamentRecord, error) {
	now := s.clock.Now()
	seed := p.Seed
	if p.Shuffle && seed == 0 {
		seed = rand.Int63()
	}
	b, err := bracket.New(p.Format, p.Participants, bracket.Options{Shuffle: p.Shuffle, Seed: seed}, now)
	if err != nil {
		return TournamentRecord{}, err
	}
	status := domain.TournamentActive
	if b.Completed {
		status = domain.TournamentCompleted
	}
	rec := TournamentRecord{
		Tournament: domain.Tournament{
			ID:           uuid.NewString(),
			Name:         p.Name,
			OwnerID:      p.OwnerID,
			Format:       p.Format,
			Status:       status,
			Participants: b.Entrants,
			Seed:         seed,
			ChampionID:   b.ChampionID,
			CreatedAt:    now,
		},
		Bracket: b,
	}
	if err := s.gateway.SaveTournament(ctx, rec); err != nil {
		return TournamentRecord{}, fmt.Errorf("save tournament: %w", err)
	}

	s.mu.Lock()
	s.live[rec.Tournament.ID] = &liveTournament{rec: rec}
	s.mu.Unlock()
	s.log.Info("tournament created", "tournament_id", rec.Tournament.ID, "format", p.Format, "entrants", len(b.Entrants))
	return copyRecord(rec), nil
}

// GetTournament returns a copy of the tournament and its bracket.
func (s *TournamentService) GetTournament(ctx context.Context, tournamentID string) (TournamentRecord, error) {
	lt, err := s.entry(ctx, tournamentID)
	if err != nil {
		return TournamentRecord{}, err
	}
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return copyRecord(lt.rec), nil
}

// Standings returns the current standings of a tournament.
func (s *TournamentService) Standings(ctx context.Context, tournamentID string) ([]domain.Standing, error) {
	lt, err := s.entry(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.rec.Bracket.Standings(), nil
}

// RecordResult stores a match result reported by the tournament owner.
func (s *TournamentService) RecordResult(ctx context.Context, callerID, tournamentID, matchID, winnerID string, scores [2]int) (bracket.Result, error) {
	lt, err := s.entry(ctx, tournamentID)
	if err != nil {
		return bracket.Result{}, err
	}
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if callerID != lt.rec.Tournament.OwnerID {
		return bracket.Result{}, domain.ErrNotAuthorized
	}
	return s.recordLocked(ctx, lt, matchID, winnerID, scores)
}

// PlayMatch opens a tournament session between the two holders of a scheduled
// match. When that session completes its winner is recorded automatically.
func (s *TournamentService) PlayMatch(ctx context.Context, callerID, tournamentID, matchID, quizID string, settings domain.SessionSettings) (domain.SessionView, error) {
	lt, err := s.entry(ctx, tournamentID)
	if err != nil {
		return domain.SessionView{}, err
	}
	lt.mu.Lock()
	defer lt.mu.Unlock()

	t := lt.rec.Tournament
	if callerID != t.OwnerID {
		return domain.SessionView{}, domain.ErrNotAuthorized
	}
	if t.Status == domain.TournamentCompleted {
		return domain.SessionView{}, domain.ErrTournamentCompleted
	}
	m, ok := lt.rec.Bracket.Match(matchID)
	if !ok {
		return domain.SessionView{}, domain.ErrMatchNotFound
	}
	switch m.Status {
	case domain.MatchCompleted:
		return domain.SessionView{}, domain.ErrMatchCompleted
	case domain.MatchPending:
		return domain.SessionView{}, domain.ErrMatchNotReady
	case domain.MatchInProgress:
		return domain.SessionView{}, fmt.Errorf("%w: match %s already in progress", domain.ErrInvalidTransition, matchID)
	}

	settings.Kind = domain.KindTournament
	settings.MinParticipants = 2
	settings.MaxParticipants = 2
	sess, err := s.sessions.create(ctx, t.OwnerID, quizID, settings, &matchBinding{
		TournamentID: t.ID,
		MatchID:      matchID,
		Roster:       m.Slots[:],
		OnEnd:        s.matchDecided(lt, m),
	})
	if err != nil {
		return domain.SessionView{}, err
	}

	next := lt.rec.Bracket.Clone()
	if err := next.MarkInProgress(matchID, sess.ID(), s.clock.Now()); err != nil {
		return domain.SessionView{}, err
	}
	rec := TournamentRecord{Tournament: t, Bracket: next}
	if err := s.gateway.SaveTournament(ctx, rec); err != nil {
		if endErr := sess.End(ctx, t.OwnerID); endErr != nil {
			s.log.Warn("close orphaned match session", "session_id", sess.ID(), "error", endErr)
		}
		return domain.SessionView{}, fmt.Errorf("save tournament: %w", err)
	}
	lt.rec = rec

	s.publish(ctx, t.ID, domain.MatchStarted{
		TournamentID: t.ID,
		MatchID:      matchID,
		SessionID:    sess.ID(),
		Slots:        m.Slots,
	})
	return sess.View(), nil
}

// matchDecided records the outcome of a match session. Sessions ended without a
// winner leave the match in progress for the owner to settle manually.
func (s *TournamentService) matchDecided(lt *liveTournament, m domain.Match) func(domain.SessionView) {
	return func(view domain.SessionView) {
		log := s.log.With("match_id", m.ID, "session_id", view.Session.ID)
		if view.Session.Status != domain.StatusCompleted || view.Session.WinnerID == "" {
			log.Warn("match session ended without a winner", "status", view.Session.Status, "reason", view.Session.EndReason)
			return
		}
		var scores [2]int
		for _, p := range view.Participants {
			for slot := range m.Slots {
				if p.ID == m.Slots[slot] {
					scores[slot] = p.Score
				}
			}
		}

		lt.mu.Lock()
		defer lt.mu.Unlock()
		if _, err := s.recordLocked(context.Background(), lt, m.ID, view.Session.WinnerID, scores); err != nil {
			log.Error("record match result", "error", err)
		}
	}
}

func (s *TournamentService) recordLocked(ctx context.Context, lt *liveTournament, matchID, winnerID string, scores [2]int) (res bracket.Result, err error) {
	t := lt.rec.Tournament
	ctx, span := tracer.Start(ctx, "tournament.record_result", trace.WithAttributes(
		attribute.String("tournament.id", t.ID),
		attribute.String("match.id", matchID),
	))
	defer func() { endSpan(span, err) }()

	if t.Status == domain.TournamentCompleted {
		return bracket.Result{}, domain.ErrTournamentCompleted
	}
	now := s.clock.Now()
	next := lt.rec.Bracket.Clone()
	res, err = next.RecordResult(matchID, winnerID, scores, now)
	if err != nil {
		if domain.IsInvariantViolation(err) {
			s.log.Error("bracket invariant violated", "tournament_id", t.ID, "match_id", matchID, "error", err)
		}
		return bracket.Result{}, err
	}
	if res.Completed {
		t.Status = domain.TournamentCompleted
		t.ChampionID = res.ChampionID
		t.CompletedAt = &now
	}
	rec := TournamentRecord{Tournament: t, Bracket: next}
	if err := s.gateway.SaveTournament(ctx, rec); err != nil {
		return bracket.Result{}, fmt.Errorf("save tournament: %w", err)
	}
	lt.rec = rec

	s.publish(ctx, t.ID, domain.MatchResultRecorded{TournamentID: t.ID, Match: res.Match, Advanced: res.Advanced})
	if res.Completed {
		s.log.Info("tournament completed", "tournament_id", t.ID, "champion", res.ChampionID)
		s.publish(ctx, t.ID, domain.TournamentEnded{
			TournamentID: t.ID,
			ChampionID:   res.ChampionID,
			Standings:    next.Standings(),
			EndedAt:      now,
		})
	}
	return res, nil
}

func (s *TournamentService) entry(ctx context.Context, tournamentID string) (*liveTournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lt, ok := s.live[tournamentID]; ok {
		return lt, nil
	}
	rec, err := s.gateway.LoadTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	lt := &liveTournament{rec: rec}
	s.live[tournamentID] = lt
	return lt, nil
}

func (s *TournamentService) publish(ctx context.Context, tournamentID string, ev domain.Event) {
	if err := s.pub.Publish(ctx, domain.TournamentTopic(tournamentID), ev); err != nil {
		s.log.Warn("publish failed", "event", ev.EventName(), "tournament_id", tournamentID, "error", err)
	}
}

func copyRecord(rec TournamentRecord) TournamentRecord {
	rec.Tournament.Participants = append([]string(nil), rec.Tournament.Participants...)
	rec.Bracket = rec.Bracket.Clone()
	return rec
}
