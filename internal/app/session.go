package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/elimination"
	"quiz-arena/internal/leaderboard"
	"quiz-arena/internal/scoring"
)

var tracer = otel.Tracer("quiz-arena/internal/app")

const defaultRetryDelay = time.Second

// SessionDeps are the collaborators a session driver works with.
type SessionDeps struct {
	Publisher   Publisher
	Gateway     Gateway
	Authorizer  Authorizer
	Clock       clockwork.Clock
	Logger      *slog.Logger
	IdleTimeout time.Duration
	RetryDelay  time.Duration
}

// Session drives one live quiz. Every transition is serialized by mu, computed on a
// clone of the committed state, persisted through the Gateway, and only then
// committed and published. Events are published before mu is released so
// subscribers observe transitions in commit order.
type Session struct {
	id     string
	quiz   domain.Quiz
	deps   SessionDeps
	log    *slog.Logger
	roster map[string]struct{}

	mu    sync.RWMutex
	state sessionState
	timer clockwork.Timer
	onEnd []func(domain.SessionView)
}

type sessionState struct {
	session      domain.Session
	participants []domain.Participant
	pending      map[string]domain.AnswerSubmission
	submissions  []domain.AnswerSubmission
	leaderboards []domain.Leaderboard
	displayedAt  time.Time
}

// NewSession wraps a freshly created session. Call Open before sharing it.
func NewSession(sess domain.Session, quiz domain.Quiz, deps SessionDeps) *Session {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.RetryDelay <= 0 {
		deps.RetryDelay = defaultRetryDelay
	}
	return &Session{
		id:   sess.ID,
		quiz: quiz,
		deps: deps,
		log:  deps.Logger.With("session_id", sess.ID),
		state: sessionState{
			session: sess,
			pending: make(map[string]domain.AnswerSubmission),
		},
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// OnEnd registers a callback fired once the session reaches a terminal status.
// Callbacks run outside the session lock.
func (s *Session) OnEnd(fn func(domain.SessionView)) {
	s.mu.Lock()
	s.onEnd = append(s.onEnd, fn)
	s.mu.Unlock()
}

// restrict limits player joins to the given IDs. Spectators are unaffected.
func (s *Session) restrict(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roster = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.roster[id] = struct{}{}
	}
}

// Open persists the new session and arms the idle timeout.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(ctx, s.state, nil); err != nil {
		return err
	}
	if s.deps.IdleTimeout > 0 {
		s.arm(s.deps.IdleTimeout, s.onIdle)
	}
	return nil
}

// Join registers a participant, or refreshes the display name of one who already joined.
func (s *Session) Join(ctx context.Context, participantID, displayName string, spectator bool) (p domain.Participant, err error) {
	ctx, span := s.span(ctx, "session.join")
	defer func() { endSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.state.session
	if sess.Status.Terminal() {
		return domain.Participant{}, domain.ErrSessionClosed
	}
	ok, err := s.deps.Authorizer.IsRegisteredParticipant(ctx, sess, participantID)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("authorize join: %w", err)
	}
	if !ok {
		return domain.Participant{}, domain.ErrNotAuthorized
	}

	next := s.state.clone()
	if i := next.find(participantID); i >= 0 {
		next.participants[i].DisplayName = displayName
	} else {
		if !spectator {
			if sess.Status != domain.StatusWaiting {
				return domain.Participant{}, domain.ErrSessionClosed
			}
			if s.roster != nil {
				if _, listed := s.roster[participantID]; !listed {
					return domain.Participant{}, domain.ErrNotAuthorized
				}
			}
			if max := sess.Settings.MaxParticipants; max > 0 && next.players() >= max {
				return domain.Participant{}, domain.ErrSessionFull
			}
		}
		next.participants = append(next.participants, domain.Participant{
			ID:          participantID,
			DisplayName: displayName,
			JoinOrder:   len(next.participants),
			Spectator:   spectator,
			JoinedAt:    s.deps.Clock.Now(),
		})
	}

	if err := s.persist(ctx, next, nil); err != nil {
		return domain.Participant{}, err
	}
	s.state = next
	p = next.participants[next.find(participantID)]
	s.publish(ctx, domain.ParticipantJoined{
		SessionID:        s.id,
		ParticipantID:    p.ID,
		DisplayName:      p.DisplayName,
		Spectator:        p.Spectator,
		ParticipantCount: next.players(),
	})
	return p, nil
}

// Start moves a waiting session to active. Only the owner may start it.
func (s *Session) Start(ctx context.Context, callerID string) (err error) {
	ctx, span := s.span(ctx, "session.start")
	defer func() { endSpan(span, err) }()

	return s.transition(func() (*domain.SessionView, error) {
		if err := s.authorizeOwner(ctx, callerID); err != nil {
			return nil, err
		}
		sess := s.state.session
		if sess.Status != domain.StatusWaiting {
			return nil, fmt.Errorf("%w: cannot start a %s session", domain.ErrInvalidTransition, sess.Status)
		}
		need := 1
		if sess.Kind != domain.KindStandard && sess.Settings.MinParticipants > need {
			need = sess.Settings.MinParticipants
		}
		players := s.state.players()
		if players < need {
			return nil, fmt.Errorf("%w: have %d, need %d", domain.ErrNotEnoughParticipants, players, need)
		}

		now := s.deps.Clock.Now()
		next := s.state.clone()
		next.session.Status = domain.StatusActive
		next.session.StartedAt = &now
		if err := s.persist(ctx, next, nil); err != nil {
			return nil, err
		}
		s.state = next
		s.stopTimer()
		s.publish(ctx, domain.SessionStarted{
			SessionID:      s.id,
			Kind:           sess.Kind,
			TotalQuestions: len(sess.QuestionOrder),
			Players:        players,
			StartedAt:      now,
		})
		s.scheduleAdvance()
		return nil, nil
	})
}

// NextQuestion displays the next question. Only the owner may advance.
func (s *Session) NextQuestion(ctx context.Context, callerID string) (err error) {
	ctx, span := s.span(ctx, "session.next_question")
	defer func() { endSpan(span, err) }()

	return s.transition(func() (*domain.SessionView, error) {
		if err := s.authorizeOwner(ctx, callerID); err != nil {
			return nil, err
		}
		return s.nextLocked(ctx)
	})
}

// SubmitAnswer validates and queues an answer for the displayed question. The
// returned ack carries no correctness; results are published on reveal. When the
// last active player answers, the reveal runs before SubmitAnswer returns.
func (s *Session) SubmitAnswer(ctx context.Context, participantID string, questionIndex int, optionIDs []string) (ack domain.AnswerAck, err error) {
	ctx, span := s.span(ctx, "session.submit_answer", attribute.String("participant.id", participantID))
	defer func() { endSpan(span, err) }()

	err = s.transition(func() (*domain.SessionView, error) {
		a, err := s.acceptLocked(participantID, questionIndex, optionIDs)
		if err != nil {
			return nil, err
		}
		ack = a
		if !s.state.allAnswered() {
			return nil, nil
		}
		view, err := s.revealLocked(ctx)
		if err != nil && !domain.IsInvariantViolation(err) {
			s.log.Warn("reveal after last answer failed, deadline will retry", "error", err)
		}
		return view, nil
	})
	return ack, err
}

// End finalizes the session. Ending a terminal session is a no-op.
func (s *Session) End(ctx context.Context, callerID string) (err error) {
	ctx, span := s.span(ctx, "session.end")
	defer func() { endSpan(span, err) }()

	return s.transition(func() (*domain.SessionView, error) {
		if err := s.authorizeOwner(ctx, callerID); err != nil {
			return nil, err
		}
		return s.endLocked(ctx, domain.EndByOwner)
	})
}

// View returns a consistent copy of the session and its participants.
func (s *Session) View() domain.SessionView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.view()
}

// Leaderboard returns the latest leaderboard version, if any question was revealed.
func (s *Session) Leaderboard() (domain.Leaderboard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.state.leaderboards)
	if n == 0 {
		return domain.Leaderboard{}, false
	}
	return s.state.leaderboards[n-1], true
}

// LeaderboardVersion returns a historical leaderboard. Versions start at 1.
func (s *Session) LeaderboardVersion(version int) (domain.Leaderboard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if version < 1 || version > len(s.state.leaderboards) {
		return domain.Leaderboard{}, false
	}
	return s.state.leaderboards[version-1], true
}

// CurrentQuestion returns the displayed question while answers are being accepted.
func (s *Session) CurrentQuestion() (domain.QuestionView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess := s.state.session
	if sess.Status != domain.StatusQuestionDisplayed {
		return domain.QuestionView{}, false
	}
	q, ok := s.question(sess.QuestionIndex)
	if !ok {
		return domain.QuestionView{}, false
	}
	limit := q.TimeLimit(sess.Settings.DefaultTimeLimit)
	return q.View(sess.QuestionIndex, len(sess.QuestionOrder), limit, s.state.displayedAt.Add(limit)), true
}

// Submissions returns the scored audit trail.
func (s *Session) Submissions() []domain.AnswerSubmission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AnswerSubmission(nil), s.state.submissions...)
}

// transition runs fn under the write lock and fires end callbacks after releasing it.
func (s *Session) transition(fn func() (*domain.SessionView, error)) error {
	view, err := s.locked(fn)
	if view != nil {
		s.mu.RLock()
		callbacks := append([]func(domain.SessionView){}, s.onEnd...)
		s.mu.RUnlock()
		for _, cb := range callbacks {
			cb(*view)
		}
	}
	return err
}

func (s *Session) locked(fn func() (*domain.SessionView, error)) (*domain.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Session) nextLocked(ctx context.Context) (*domain.SessionView, error) {
	sess := s.state.session
	if sess.Status != domain.StatusActive && sess.Status != domain.StatusAnswersRevealed {
		return nil, fmt.Errorf("%w: cannot show a question while %s", domain.ErrInvalidTransition, sess.Status)
	}
	idx := sess.QuestionIndex + 1
	q, ok := s.question(idx)
	if !ok {
		return s.failLocked(ctx, fmt.Sprintf("question index %d out of range", idx))
	}

	now := s.deps.Clock.Now()
	next := s.state.clone()
	next.session.QuestionIndex = idx
	next.session.Round = idx + 1
	next.session.Status = domain.StatusQuestionDisplayed
	next.displayedAt = now
	next.pending = make(map[string]domain.AnswerSubmission)
	if err := s.persist(ctx, next, nil); err != nil {
		return nil, err
	}
	s.state = next

	limit := q.TimeLimit(sess.Settings.DefaultTimeLimit)
	s.arm(limit, func() { s.onDeadline(idx) })
	s.publish(ctx, domain.QuestionDisplayed{
		SessionID: s.id,
		Round:     next.session.Round,
		Question:  q.View(idx, len(sess.QuestionOrder), limit, now.Add(limit)),
	})
	return nil, nil
}

func (s *Session) acceptLocked(participantID string, questionIndex int, optionIDs []string) (domain.AnswerAck, error) {
	now := s.deps.Clock.Now()
	i := s.state.find(participantID)
	if i < 0 {
		return domain.AnswerAck{}, domain.ErrParticipantNotFound
	}
	p := s.state.participants[i]
	switch {
	case p.Spectator:
		return domain.AnswerAck{}, domain.Rejected(domain.RejectSpectator)
	case p.Eliminated:
		return domain.AnswerAck{}, domain.Rejected(domain.RejectEliminated)
	}

	sess := s.state.session
	switch sess.Status {
	case domain.StatusQuestionDisplayed:
	case domain.StatusAnswersRevealed:
		if questionIndex > sess.QuestionIndex {
			return domain.AnswerAck{}, domain.Rejected(domain.RejectWrongQuestion)
		}
		return domain.AnswerAck{}, domain.Rejected(domain.RejectTooLate)
	default:
		return domain.AnswerAck{}, domain.Rejected(domain.RejectNotActive)
	}
	switch {
	case questionIndex < sess.QuestionIndex:
		return domain.AnswerAck{}, domain.Rejected(domain.RejectTooLate)
	case questionIndex > sess.QuestionIndex:
		return domain.AnswerAck{}, domain.Rejected(domain.RejectWrongQuestion)
	}
	if _, dup := s.state.pending[participantID]; dup {
		return domain.AnswerAck{}, domain.Rejected(domain.RejectAlreadyAnswered)
	}
	if len(optionIDs) == 0 {
		return domain.AnswerAck{}, domain.ErrNoOptionSelected
	}

	q, ok := s.question(sess.QuestionIndex)
	if !ok {
		return domain.AnswerAck{}, domain.ErrQuestionNotFound
	}
	selected := make([]string, 0, len(optionIDs))
	seen := make(map[string]struct{}, len(optionIDs))
	for _, id := range optionIDs {
		if _, ok := q.Option(id); !ok {
			return domain.AnswerAck{}, fmt.Errorf("%w: %s", domain.ErrOptionNotFound, id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		selected = append(selected, id)
	}

	elapsed := now.Sub(s.state.displayedAt)
	if elapsed > q.TimeLimit(sess.Settings.DefaultTimeLimit) {
		return domain.AnswerAck{}, domain.Rejected(domain.RejectTooLate)
	}

	s.state.pending[participantID] = domain.AnswerSubmission{
		SessionID:     s.id,
		ParticipantID: participantID,
		QuestionIndex: questionIndex,
		QuestionID:    q.ID,
		OptionIDs:     selected,
		SubmittedAt:   now,
		Elapsed:       elapsed,
	}
	return domain.AnswerAck{
		SessionID:     s.id,
		ParticipantID: participantID,
		QuestionIndex: questionIndex,
		ReceivedAt:    now,
		Elapsed:       elapsed,
	}, nil
}

// revealLocked scores the displayed question, recomputes the leaderboard, runs
// elimination for battle royale and decides completion, all in one transaction.
func (s *Session) revealLocked(ctx context.Context) (*domain.SessionView, error) {
	ctx, span := s.span(ctx, "session.reveal")
	defer span.End()

	now := s.deps.Clock.Now()
	sess := s.state.session
	q, ok := s.question(sess.QuestionIndex)
	if !ok {
		return s.failLocked(ctx, fmt.Sprintf("question index %d out of range", sess.QuestionIndex))
	}
	cfg := sess.Settings.Scoring
	limit := q.TimeLimit(sess.Settings.DefaultTimeLimit)
	allAnswered := s.state.allAnswered()

	next := s.state.clone()
	next.session.Status = domain.StatusAnswersRevealed
	scored := make([]domain.AnswerSubmission, 0, len(next.participants))
	results := make([]domain.ParticipantResult, 0, len(next.participants))
	for i := range next.participants {
		p := &next.participants[i]
		if !p.Active() {
			continue
		}
		sub, answered := next.pending[p.ID]
		if !answered {
			sub = domain.AnswerSubmission{
				SessionID:     s.id,
				ParticipantID: p.ID,
				QuestionIndex: sess.QuestionIndex,
				QuestionID:    q.ID,
				SubmittedAt:   next.displayedAt.Add(limit),
				Elapsed:       limit,
				Timeout:       true,
			}
		}
		sub.Breakdown = scoring.Score(cfg, q, &sub, limit, p.Streak)
		sub.Correct = !sub.Timeout && scoring.IsCorrect(q, sub.OptionIDs)
		sub.Scored = true
		applySubmission(cfg, p, sub)

		scored = append(scored, sub)
		results = append(results, domain.ParticipantResult{
			ParticipantID: p.ID,
			OptionIDs:     sub.OptionIDs,
			Correct:       sub.Correct,
			Timeout:       sub.Timeout,
			ElapsedMs:     sub.Elapsed.Milliseconds(),
			Breakdown:     sub.Breakdown,
			TotalScore:    p.Score,
		})
	}
	next.pending = make(map[string]domain.AnswerSubmission)
	next.submissions = append(next.submissions, scored...)

	var (
		culled []domain.Event
		reason domain.EndReason
	)
	if sess.Kind == domain.KindBattleRoyale {
		var err error
		culled, reason, err = s.eliminate(&next)
		if err != nil {
			return s.failLocked(ctx, err.Error())
		}
	}
	if reason == "" && next.session.QuestionIndex >= len(next.session.QuestionOrder)-1 {
		reason = domain.EndQuestionsExhausted
	}

	board := next.board(now)
	boards := []domain.Leaderboard{board}
	events := []domain.Event{
		domain.AnswersRevealed{
			SessionID:        s.id,
			QuestionIndex:    sess.QuestionIndex,
			QuestionID:       q.ID,
			CorrectOptionIDs: q.CorrectOptionIDs(),
			Results:          results,
			AllAnswered:      allAnswered,
		},
		domain.LeaderboardUpdated{Leaderboard: board},
	}
	events = append(events, culled...)
	if reason != "" {
		final, ended := next.complete(reason, now)
		boards = append(boards, final)
		events = append(events, domain.LeaderboardUpdated{Leaderboard: final}, ended)
	}

	if err := s.persist(ctx, next, scored, boards...); err != nil {
		return nil, err
	}
	s.state = next
	s.stopTimer()
	s.publish(ctx, events...)
	if reason != "" {
		s.log.Info("session completed", "reason", reason, "winner", next.session.WinnerID)
		view := next.view()
		return &view, nil
	}
	s.scheduleAdvance()
	return nil, nil
}

// eliminate runs one battle royale elimination pass on next and reports whether the session is over.
func (s *Session) eliminate(next *sessionState) ([]domain.Event, domain.EndReason, error) {
	active := next.active()
	if active == 0 {
		return nil, "", errors.New("no active participants entering elimination")
	}
	round := next.session.Round
	cfg := next.session.Settings.Elimination

	var events []domain.Event
	if elimination.ShouldRun(round, active, cfg) {
		plan, err := elimination.Plan(round, leaderboard.Ordered(next.participants), cfg)
		if err != nil {
			return nil, "", err
		}
		for _, e := range plan.Eliminated {
			p := &next.participants[next.find(e.ParticipantID)]
			r, pos := round, e.Position
			p.Eliminated = true
			p.EliminatedRound = &r
			p.FinalRank = &pos
			events = append(events, domain.ParticipantEliminated{
				SessionID:     s.id,
				ParticipantID: p.ID,
				DisplayName:   p.DisplayName,
				Round:         round,
				FinalPosition: pos,
				Score:         p.Score,
			})
		}
		events = append(events, domain.EliminationRoundSummary{
			SessionID:            s.id,
			Round:                round,
			ActiveBefore:         plan.ActiveBefore,
			EliminatedIDs:        plan.EliminatedIDs(),
			Survivors:            len(plan.Survivors),
			EliminatedPercentage: elimination.DisplayPercentage(len(plan.Eliminated), plan.ActiveBefore),
			WinnerID:             plan.WinnerID,
		})
	}

	switch {
	case next.active() == 1:
		return events, domain.EndLastSurvivor, nil
	case cfg.MaxRounds > 0 && round >= cfg.MaxRounds:
		return events, domain.EndMaxRounds, nil
	}
	return events, "", nil
}

func (s *Session) endLocked(ctx context.Context, reason domain.EndReason) (*domain.SessionView, error) {
	if s.state.session.Status.Terminal() {
		return nil, nil
	}
	now := s.deps.Clock.Now()
	next := s.state.clone()
	next.pending = make(map[string]domain.AnswerSubmission)
	final, ended := next.complete(reason, now)
	if err := s.persist(ctx, next, nil, final); err != nil {
		return nil, err
	}
	s.state = next
	s.stopTimer()
	s.publish(ctx, domain.LeaderboardUpdated{Leaderboard: final}, ended)
	s.log.Info("session ended", "reason", reason)
	view := next.view()
	return &view, nil
}

// failLocked moves the session to failed. The failure is persisted best-effort:
// the session is dead either way.
func (s *Session) failLocked(ctx context.Context, detail string) (*domain.SessionView, error) {
	iv := &domain.InvariantViolation{Scope: "session", ID: s.id, Detail: detail}
	now := s.deps.Clock.Now()
	s.stopTimer()

	next := s.state.clone()
	next.pending = make(map[string]domain.AnswerSubmission)
	next.session.Status = domain.StatusFailed
	next.session.EndedAt = &now
	next.session.EndReason = domain.EndInvariant
	if err := s.persist(ctx, next, nil); err != nil {
		s.log.Error("persist failed session", "error", err)
	}
	s.state = next
	s.log.Error("session failed", "detail", detail)
	s.publish(ctx, domain.SessionFailed{SessionID: s.id, Detail: detail, FailedAt: now})
	view := next.view()
	return &view, iv
}

func (s *Session) onDeadline(index int) {
	ctx := context.Background()
	_ = s.transition(func() (*domain.SessionView, error) {
		sess := s.state.session
		if sess.Status != domain.StatusQuestionDisplayed || sess.QuestionIndex != index {
			return nil, nil
		}
		view, err := s.revealLocked(ctx)
		if err != nil && !domain.IsInvariantViolation(err) {
			s.log.Error("reveal failed, retrying", "question_index", index, "error", err)
			s.arm(s.deps.RetryDelay, func() { s.onDeadline(index) })
		}
		return view, nil
	})
}

func (s *Session) onAdvance(index int) {
	ctx := context.Background()
	_ = s.transition(func() (*domain.SessionView, error) {
		sess := s.state.session
		if sess.QuestionIndex != index || (sess.Status != domain.StatusActive && sess.Status != domain.StatusAnswersRevealed) {
			return nil, nil
		}
		view, err := s.nextLocked(ctx)
		if err != nil && !domain.IsInvariantViolation(err) {
			s.log.Error("auto advance failed, retrying", "question_index", index, "error", err)
			s.arm(s.deps.RetryDelay, func() { s.onAdvance(index) })
		}
		return view, nil
	})
}

func (s *Session) onIdle() {
	ctx := context.Background()
	_ = s.transition(func() (*domain.SessionView, error) {
		if s.state.session.Status != domain.StatusWaiting {
			return nil, nil
		}
		view, err := s.endLocked(ctx, domain.EndIdleTimeout)
		if err != nil {
			s.log.Error("idle timeout failed, retrying", "error", err)
			s.arm(s.deps.RetryDelay, s.onIdle)
		}
		return view, nil
	})
}

func (s *Session) scheduleAdvance() {
	delay := s.state.session.Settings.AutoAdvance
	if delay <= 0 {
		return
	}
	index := s.state.session.QuestionIndex
	s.arm(delay, func() { s.onAdvance(index) })
}

func (s *Session) arm(d time.Duration, fn func()) {
	s.stopTimer()
	s.timer = s.deps.Clock.AfterFunc(d, fn)
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) authorizeOwner(ctx context.Context, callerID string) error {
	ok, err := s.deps.Authorizer.IsSessionOwner(ctx, s.state.session, callerID)
	if err != nil {
		return fmt.Errorf("authorize owner: %w", err)
	}
	if !ok {
		return domain.ErrNotAuthorized
	}
	return nil
}

func (s *Session) question(index int) (domain.Question, bool) {
	order := s.state.session.QuestionOrder
	if index < 0 || index >= len(order) {
		return domain.Question{}, false
	}
	pos := order[index]
	if pos < 0 || pos >= len(s.quiz.Questions) {
		return domain.Question{}, false
	}
	return s.quiz.Questions[pos], true
}

func (s *Session) persist(ctx context.Context, next sessionState, scored []domain.AnswerSubmission, boards ...domain.Leaderboard) error {
	err := s.deps.Gateway.SaveSession(ctx, SessionRecord{
		Session:      next.session,
		Participants: next.participants,
		Submissions:  scored,
		Leaderboards: boards,
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.id, err)
	}
	return nil
}

func (s *Session) publish(ctx context.Context, events ...domain.Event) {
	topic := domain.SessionTopic(s.id)
	for _, ev := range events {
		if err := s.deps.Publisher.Publish(ctx, topic, ev); err != nil {
			s.log.Warn("publish failed", "event", ev.EventName(), "error", err)
		}
	}
}

func (s *Session) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("session.id", s.id))
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func applySubmission(cfg domain.ScoringConfig, p *domain.Participant, sub domain.AnswerSubmission) {
	p.Score = scoring.Apply(cfg, p.Score, sub.Breakdown.Points)
	p.Streak = sub.Breakdown.Streak
	if p.Streak > p.BestStreak {
		p.BestStreak = p.Streak
	}
	if !sub.Timeout {
		p.Answered++
		p.TotalResponseTime += sub.Elapsed
		at := sub.SubmittedAt
		p.LastAnswerAt = &at
	}
	if sub.Correct {
		p.Correct++
	} else {
		p.Wrong++
	}
}

// clone copies everything a transition may mutate. The append-only slices are
// capped so appends on the clone never write into the committed backing arrays.
func (st sessionState) clone() sessionState {
	c := st
	c.participants = append([]domain.Participant(nil), st.participants...)
	c.pending = make(map[string]domain.AnswerSubmission, len(st.pending))
	for k, v := range st.pending {
		c.pending[k] = v
	}
	c.submissions = st.submissions[:len(st.submissions):len(st.submissions)]
	c.leaderboards = st.leaderboards[:len(st.leaderboards):len(st.leaderboards)]
	return c
}

func (st sessionState) view() domain.SessionView {
	return domain.SessionView{
		Session:      st.session,
		Participants: append([]domain.Participant(nil), st.participants...),
	}
}

func (st sessionState) find(participantID string) int {
	for i := range st.participants {
		if st.participants[i].ID == participantID {
			return i
		}
	}
	return -1
}

func (st sessionState) players() int {
	n := 0
	for _, p := range st.participants {
		if !p.Spectator {
			n++
		}
	}
	return n
}

func (st sessionState) active() int {
	n := 0
	for _, p := range st.participants {
		if p.Active() {
			n++
		}
	}
	return n
}

func (st sessionState) allAnswered() bool {
	active := 0
	for _, p := range st.participants {
		if !p.Active() {
			continue
		}
		active++
		if _, ok := st.pending[p.ID]; !ok {
			return false
		}
	}
	return active > 0
}

// board appends a new leaderboard version.
func (st *sessionState) board(now time.Time) domain.Leaderboard {
	var prev *domain.Leaderboard
	if n := len(st.leaderboards); n > 0 {
		prev = &st.leaderboards[n-1]
	}
	lb := leaderboard.Build(st.session.ID, len(st.leaderboards)+1, st.session.QuestionIndex, st.participants, prev, now)
	st.leaderboards = append(st.leaderboards, lb)
	return lb
}

// complete finalizes ranks and the winner. The perfect score bonus needs every
// question of the quiz answered correctly, except when battle royale ends early
// by elimination, where the rounds actually played count. An in-flight question
// is discarded.
func (st *sessionState) complete(reason domain.EndReason, now time.Time) (domain.Leaderboard, domain.SessionEnded) {
	sess := &st.session
	revealed := sess.QuestionIndex + 1
	if sess.Status == domain.StatusQuestionDisplayed {
		revealed = sess.QuestionIndex
	}
	total := len(sess.QuestionOrder)
	if reason == domain.EndLastSurvivor || reason == domain.EndMaxRounds {
		total = revealed
	}
	cfg := sess.Settings.Scoring
	if revealed > 0 {
		for i := range st.participants {
			p := &st.participants[i]
			if !p.Active() {
				continue
			}
			if bonus := scoring.PerfectBonus(cfg, p.Correct, total); bonus > 0 {
				p.Score = scoring.Apply(cfg, p.Score, bonus)
			}
		}
	}

	ordered := leaderboard.Ordered(st.participants)
	for rank, id := range ordered {
		r := rank + 1
		st.participants[st.find(id)].FinalRank = &r
	}
	if revealed > 0 && len(ordered) > 0 {
		sess.WinnerID = ordered[0]
	}
	sess.Status = domain.StatusCompleted
	sess.EndedAt = &now
	sess.EndReason = reason

	final := st.board(now)
	return final, domain.SessionEnded{
		SessionID:   sess.ID,
		Reason:      reason,
		WinnerID:    sess.WinnerID,
		Leaderboard: final,
		EndedAt:     now,
	}
}
