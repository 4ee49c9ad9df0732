package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-arena/internal/app"
	"quiz-arena/internal/domain"
	"quiz-arena/internal/infra/memory"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recorded struct {
	topic string
	ev    domain.Event
}

// recorder keeps every published event in order.
type recorder struct {
	mu     sync.Mutex
	events []recorded
}

func (r *recorder) Publish(_ context.Context, topic string, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{topic: topic, ev: ev})
	return nil
}

func (r *recorder) names(topic string) []domain.EventName {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.EventName
	for _, e := range r.events {
		if e.topic == topic {
			out = append(out, e.ev.EventName())
		}
	}
	return out
}

func (r *recorder) of(name domain.EventName) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.ev.EventName() == name {
			out = append(out, e.ev)
		}
	}
	return out
}

// flakyGateway fails every save while fail is set.
type flakyGateway struct {
	app.Gateway
	fail atomic.Bool
}

func (g *flakyGateway) SaveSession(ctx context.Context, rec app.SessionRecord) error {
	if g.fail.Load() {
		return errors.New("database unavailable")
	}
	return g.Gateway.SaveSession(ctx, rec)
}

type harness struct {
	clock   clockwork.FakeClock
	rec     *recorder
	broker  *memory.Broker
	gateway *flakyGateway
	store   *memory.SessionStore
	svc     *app.QuizService
}

func newHarness(t *testing.T, idle time.Duration) *harness {
	t.Helper()
	h := &harness{
		clock:   clockwork.NewFakeClockAt(t0),
		rec:     &recorder{},
		broker:  memory.NewBroker(),
		gateway: &flakyGateway{Gateway: memory.NewGateway()},
		store:   memory.NewSessionStore(),
	}
	quizzes := memory.NewQuizRepositoryWithClock(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1":  testQuiz(2),
		"quiz-3":  testQuiz(3),
		"quiz-1q": testQuiz(1),
	}), time.Hour, h.clock)
	h.svc = app.NewQuizService(h.store, quizzes, app.SessionDeps{
		Publisher:   app.MultiPublisher{h.broker, h.rec},
		Gateway:     h.gateway,
		Authorizer:  memory.NewAuthorizer(true, "admin"),
		Clock:       h.clock,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		IdleTimeout: idle,
		RetryDelay:  time.Second,
	}, time.Minute)
	return h
}

func testQuiz(n int) domain.Quiz {
	qs := make([]domain.Question, n)
	ids := []string{"q1", "q2", "q3", "q4"}
	for i := range qs {
		qs[i] = domain.Question{
			ID:     ids[i],
			Prompt: "Pick b",
			Options: []domain.Option{
				{ID: "a", Text: "A"},
				{ID: "b", Text: "B", Correct: true},
			},
			TimeLimitSeconds: 10,
		}
	}
	return domain.Quiz{ID: "quiz", Questions: qs}
}

func standardSettings() domain.SessionSettings {
	return domain.SessionSettings{
		Kind:             domain.KindStandard,
		DefaultTimeLimit: 30 * time.Second,
		Scoring: domain.ScoringConfig{
			BasePoints:           1000,
			TimePenaltyPerSecond: 10,
			PerfectScoreBonus:    500,
		},
	}
}

func (h *harness) create(t *testing.T, quizID string, settings domain.SessionSettings, players ...string) string {
	t.Helper()
	view, err := h.svc.CreateSession(context.Background(), "owner", quizID, settings)
	require.NoError(t, err)
	for _, p := range players {
		_, err := h.svc.Join(context.Background(), view.Session.ID, p, "name-"+p, false)
		require.NoError(t, err)
	}
	return view.Session.ID
}

func (h *harness) answerAt(t *testing.T, id, participant string, index int, after time.Duration, options ...string) {
	t.Helper()
	h.clock.Advance(after)
	_, err := h.svc.SubmitAnswer(context.Background(), id, participant, index, options)
	require.NoError(t, err)
}

func (h *harness) status(id string) domain.SessionStatus {
	view, _ := h.svc.GetSession(context.Background(), id)
	return view.Session.Status
}

func participant(view domain.SessionView, id string) domain.Participant {
	for _, p := range view.Participants {
		if p.ID == id {
			return p
		}
	}
	return domain.Participant{}
}

func TestStandardSessionFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	id := h.create(t, "quiz-1", standardSettings(), "u1", "u2")
	_, err := h.svc.Join(ctx, id, "watcher", "Watcher", true)
	require.NoError(t, err)

	require.NoError(t, h.svc.Start(ctx, id, "owner"))
	require.NoError(t, h.svc.NextQuestion(ctx, id, "owner"))

	q, err := h.svc.CurrentQuestion(id)
	require.NoError(t, err)
	assert.Equal(t, "q1", q.ID)
	assert.Equal(t, 10*time.Second, q.TimeLimit)
	assert.Equal(t, t0.Add(10*time.Second), q.Deadline)

	h.clock.Advance(2 * time.Second)
	ack, err := h.svc.SubmitAnswer(ctx, id, "u1", 0, []string{"b"})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, ack.Elapsed)
	assert.Equal(t, domain.StatusQuestionDisplayed, h.status(id), "reveal waits for every active player")

	h.answerAt(t, id, "u2", 0, time.Second, "a")
	assert.Equal(t, domain.StatusAnswersRevealed, h.status(id))

	lb, err := h.svc.Leaderboard(ctx, id, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, lb.Version)
	require.Len(t, lb.Entries, 2, "spectators are not ranked")
	assert.Equal(t, "u1", lb.Entries[0].ParticipantID)
	assert.Equal(t, 980, lb.Entries[0].Score)
	assert.Equal(t, 0, lb.Entries[1].Score)

	require.NoError(t, h.svc.NextQuestion(ctx, id, "owner"))
	h.answerAt(t, id, "u1", 1, time.Second, "b")
	h.answerAt(t, id, "u2", 1, 3*time.Second, "b")

	view, err := h.svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, view.Session.Status)
	assert.Equal(t, domain.EndQuestionsExhausted, view.Session.EndReason)
	assert.Equal(t, "u1", view.Session.WinnerID)

	u1, u2 := participant(view, "u1"), participant(view, "u2")
	assert.Equal(t, 980+990+500, u1.Score, "perfect bonus applies to all-correct players")
	assert.Equal(t, 960, u2.Score)
	assert.Equal(t, 2, u1.BestStreak)
	require.NotNil(t, u1.FinalRank)
	assert.Equal(t, 1, *u1.FinalRank)
	require.NotNil(t, u2.FinalRank)
	assert.Equal(t, 2, *u2.FinalRank)
	assert.Equal(t, 1, u2.Wrong)

	final, err := h.svc.Leaderboard(ctx, id, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, final.Version)
	first, err := h.svc.Leaderboard(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, 980, first.Entries[0].Score)

	subs, err := h.svc.Submissions(ctx, id)
	require.NoError(t, err)
	assert.Len(t, subs, 4)
	for _, s := range subs {
		assert.True(t, s.Scored)
	}

	assert.Equal(t, []domain.EventName{
		domain.EventParticipantJoined,
		domain.EventParticipantJoined,
		domain.EventParticipantJoined,
		domain.EventSessionStarted,
		domain.EventQuestionDisplayed,
		domain.EventAnswersRevealed,
		domain.EventLeaderboardUpdated,
		domain.EventQuestionDisplayed,
		domain.EventAnswersRevealed,
		domain.EventLeaderboardUpdated,
		domain.EventLeaderboardUpdated,
		domain.EventSessionEnded,
	}, h.rec.names(domain.SessionTopic(id)))
}

func TestDeadlineRevealsWithTimeouts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	id := h.create(t, "quiz-1", standardSettings(), "u1", "u2")
	require.NoError(t, h.svc.Start(ctx, id, "owner"))
	require.NoError(t, h.svc.NextQuestion(ctx, id, "owner"))

	h.answerAt(t, id, "u1", 0, 4*time.Second, "b")
	h.clock.Advance(6 * time.Second)
	require.Eventually(t, func() bool {
		return h.status(id) == domain.StatusAnswersRevealed
	}, time.Second, 5*time.Millisecond)

	view, err := h.svc.GetSession(ctx, id)
	require.NoError(t, err)
	u2 := participant(view, "u2")
	assert.Equal(t, 0, u2.Answered, "timeouts do not count as answered")
	assert.Equal(t, 1, u2.Wrong)
	assert.Equal(t, int64(-1), u2.AvgResponseMs())

	revealed := h.rec.of(domain.EventAnswersRevealed)
	require.Len(t, revealed, 1)
	ev := revealed[0].(domain.AnswersRevealed)
	assert.False(t, ev.AllAnswered)
	assert.Equal(t, []string{"b"}, ev.CorrectOptionIDs)
	require.Len(t, ev.Results, 2)
	assert.True(t, ev.Results[1].Timeout)

	_, err = h.svc.SubmitAnswer(ctx, id, "u2", 0, []string{"b"})
	reason, ok := domain.RejectionReason(err)
	require.True(t, ok)
	assert.Equal(t, domain.RejectTooLate, reason)
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	id := h.create(t, "quiz-1", standardSettings(), "u1", "u2")
	_, err := h.svc.Join(ctx, id, "watcher", "Watcher", true)
	require.NoError(t, err)

	_, err = h.svc.SubmitAnswer(ctx, id, "u1", 0, []string{"b"})
	assert.ErrorIs(t, err, domain.Rejected(domain.RejectNotActive))

	require.NoError(t, h.svc.Start(ctx, id, "owner"))
	require.NoError(t, h.svc.NextQuestion(ctx, id, "owner"))

	_, err = h.svc.SubmitAnswer(ctx, id, "ghost", 0, []string{"b"})
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
	_, err = h.svc.SubmitAnswer(ctx, id, "watcher", 0, []string{"b"})
	assert.ErrorIs(t, err, domain.Rejected(domain.RejectSpectator))
	_, err = h.svc.SubmitAnswer(ctx, id, "u1", 1, []string{"b"})
	assert.ErrorIs(t, err, domain.Rejected(domain.RejectWrongQuestion))
	_, err = h.svc.SubmitAnswer(ctx, id, "u1", 0, nil)
	assert.ErrorIs(t, err, domain.ErrNoOptionSelected)
	_, err = h.svc.SubmitAnswer(ctx, id, "u1", 0, []string{"z"})
	assert.ErrorIs(t, err, domain.ErrOptionNotFound)

	_, err = h.svc.SubmitAnswer(ctx, id, "u1", 0, []string{"b", "b"})
	require.NoError(t, err)
	_, err = h.svc.SubmitAnswer(ctx, id, "u1", 0, []string{"a"})
	assert.ErrorIs(t, err, domain.Rejected(domain.RejectAlreadyAnswered))

	h.clock.Advance(10*time.Second + time.Millisecond)
	_, err = h.svc.SubmitAnswer(ctx, id, "u2", 0, []string{"b"})
	assert.ErrorIs(t, err, domain.Rejected(domain.RejectTooLate))

	require.Eventually(t, func() bool {
		return h.status(id) == domain.StatusAnswersRevealed
	}, time.Second, 5*time.Millisecond)
	subs, err := h.svc.Submissions(ctx, id)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, []string{"b"}, subs[0].OptionIDs, "duplicate option IDs collapse")
	assert.True(t, subs[1].Timeout)
}

func TestStartRequirements(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)

	id := h.create(t, "quiz-1", standardSettings())
	assert.ErrorIs(t, h.svc.Start(ctx, id, "owner"), domain.ErrNotEnoughParticipants)

	settings := standardSettings()
	settings.MaxParticipants = 2
	id = h.create(t, "quiz-1", settings, "u1", "u2")
	_, err := h.svc.Join(ctx, id, "u3", "Carol", false)
	assert.ErrorIs(t, err, domain.ErrSessionFull)
	_, err = h.svc.Join(ctx, id, "u1", "Alice Renamed", false)
	require.NoError(t, err, "rejoining refreshes the display name")

	assert.ErrorIs(t, h.svc.Start(ctx, id, "u1"), domain.ErrNotAuthorized)
	require.NoError(t, h.svc.Start(ctx, id, "admin"))
	assert.ErrorIs(t, h.svc.Start(ctx, id, "owner"), domain.ErrInvalidTransition)

	_, err = h.svc.Join(ctx, id, "late", "Late", false)
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
	_, err = h.svc.Join(ctx, id, "late", "Late", true)
	assert.NoError(t, err, "spectators may join a running session")

	view, err := h.svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Alice Renamed", participant(view, "u1").DisplayName)

	br := standardSettings()
	br.Kind = domain.KindBattleRoyale
	br.Elimination = domain.EliminationConfig{Percentage: 50}
	id = h.create(t, "quiz-1", br, "u1")
	assert.ErrorIs(t, h.svc.Start(ctx, id, "owner"), domain.ErrNotEnoughParticipants)
}

func TestBattleRoyaleEliminatesUntilLastSurvivor(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	settings := standardSettings()
	settings.Kind = domain.KindBattleRoyale
	settings.Scoring.PerfectScoreBonus = 0
	settings.Elimination = domain.EliminationConfig{Percentage: 50, MinCount: 1}
	id := h.create(t, "quiz-3", settings, "u1", "u2", "u3", "u4")

	require.NoError(t, h.svc.Start(ctx, id, "owner"))
	require.NoError(t, h.svc.NextQuestion(ctx, id, "owner"))
	h.answerAt(t, id, "u1", 0, time.Second, "b")
	h.answerAt(t, id, "u2", 0, time.Second, "b")
	h.answerAt(t, id, "u3", 0, time.Second, "a")
	h.answerAt(t, id, "u4", 0, time.Second, "a")

	view, err := h.svc.GetSession(ctx, id)
	require.NoError(t, err)
	u3, u4 := participant(view, "u3"), participant(view, "u4")
	assert.True(t, u3.Eliminated)
	assert.True(t, u4.Eliminated)
	require.NotNil(t, u4.FinalRank)
	assert.Equal(t, 4, *u4.FinalRank, "slowest wrong answer goes out last place")
	require.NotNil(t, u3.FinalRank)
	assert.Equal(t, 3, *u3.FinalRank)
	assert.Equal(t, domain.StatusAnswersRevealed, view.Session.Status)

	summaries := h.rec.of(domain.EventEliminationSummary)
	require.Len(t, summaries, 1)
	summary := summaries[0].(domain.EliminationRoundSummary)
	assert.Equal(t, 4, summary.ActiveBefore)
	assert.Equal(t, []string{"u4", "u3"}, summary.EliminatedIDs)
	assert.Equal(t, 50.0, summary.EliminatedPercentage)

	require.NoError(t, h.svc.NextQuestion(ctx, id, "owner"))
	_, err = h.svc.SubmitAnswer(ctx, id, "u3", 1, []string{"b"})
	assert.ErrorIs(t, err, domain.Rejected(domain.RejectEliminated))
	h.answerAt(t, id, "u1", 1, time.Second, "b")
	h.answerAt(t, id, "u2", 1, time.Second, "a")

	view, err = h.svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, view.Session.Status)
	assert.Equal(t, domain.EndLastSurvivor, view.Session.EndReason)
	assert.Equal(t, "u1", view.Session.WinnerID)
	assert.Equal(t, 2, *participant(view, "u2").FinalRank)
	assert.Equal(t, 1, *participant(view, "u1").FinalRank)

	names := h.rec.names(domain.SessionTopic(id))
	tail := names[len(names)-6:]
	assert.Equal(t, []domain.EventName{
		domain.EventAnswersRevealed,
		domain.EventLeaderboardUpdated,
		domain.EventParticipantOut,
		domain.EventEliminationSummary,
		domain.EventLeaderboardUpdated,
		domain.EventSessionEnded,
	}, tail)
}

func TestBattleRoyaleMaxRounds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	settings := standardSettings()
	settings.Kind = domain.KindBattleRoyale
	settings.Elimination = domain.EliminationConfig{Percentage: 10, MaxRounds: 1}
	id := h.create(t, "quiz-3", settings, "u1", "u2", "u3")

	require.NoError(t, h.svc.Start(ctx, id, "owner"))
	require.NoError(t, h.svc.NextQuestion(ctx, id, "owner"))
	h.answerAt(t, id, "u1", 0, time.Second, "b")
	h.answerAt(t, id, "u2", 0, time.Second, "b")
	h.answerAt(t, id, "u3", 0, time.Second, "b")

	view, err := h.svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, view.Session.Status)
	assert.Equal(t, domain.EndMaxRounds, view.Session.EndReason)
	for _, p := range view.Participants {
		assert.False(t, p.Eliminated, "ten percent of three players rounds down to nobody")
	}
}

func TestEndByOwner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	id := h.create(t, "quiz-1", standardSettings(), "u1", "u2")
	require.NoError(t, h.svc.Start(ctx, id, "owner"))
	require.NoError(t, h.svc.NextQuestion(ctx, id, "owner"))
	h.answerAt(t, id, "u1", 0, time.Second, "b")

	assert.ErrorIs(t, h.svc.End(ctx, id, "u1"), domain.ErrNotAuthorized)
	require.NoError(t, h.svc.End(ctx, id, "owner"))
	require.NoError(t, h.svc.End(ctx, id, "owner"), "ending twice is a no-op")

	view, err := h.svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, view.Session.Status)
	assert.Equal(t, domain.EndByOwner, view.Session.EndReason)
	assert.Empty(t, view.Session.WinnerID, "nothing was revealed")
	assert.Equal(t, 0, participant(view, "u1").Score, "in-flight answers are discarded")

	// the stale deadline must not resurrect the session
	h.clock.Advance(time.Minute)
	assert.Len(t, h.rec.of(domain.EventSessionEnded), 1)
	assert.Empty(t, h.rec.of(domain.EventAnswersRevealed))
}

func TestEndAfterPartialQuizWithholdsPerfectBonus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	id := h.create(t, "quiz-3", standardSettings(), "u1", "u2")
	require.NoError(t, h.svc.Start(ctx, id, "owner"))
	require.NoError(t, h.svc.NextQuestion(ctx, id, "owner"))
	h.answerAt(t, id, "u1", 0, time.Second, "b")
	h.answerAt(t, id, "u2", 0, time.Second, "a")
	require.Equal(t, domain.StatusAnswersRevealed, h.status(id))

	require.NoError(t, h.svc.End(ctx, id, "owner"))

	view, err := h.svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.EndByOwner, view.Session.EndReason)
	assert.Equal(t, "u1", view.Session.WinnerID)
	assert.Equal(t, 990, participant(view, "u1").Score, "one of three questions is not a perfect quiz")

	ended := h.rec.of(domain.EventSessionEnded)
	require.Len(t, ended, 1)
	final := ended[0].(domain.SessionEnded).Leaderboard
	assert.Equal(t, 990, final.Entries[0].Score)
}

func TestIdleTimeoutEndsWaitingSession(t *testing.T) {
	h := newHarness(t, 5*time.Minute)
	id := h.create(t, "quiz-1", standardSettings(), "u1")

	h.clock.Advance(5 * time.Minute)
	require.Eventually(t, func() bool {
		return h.status(id) == domain.StatusCompleted
	}, time.Second, 5*time.Millisecond)
	view, err := h.svc.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.EndIdleTimeout, view.Session.EndReason)
}

func TestAutoAdvance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	settings := standardSettings()
	settings.AutoAdvance = 3 * time.Second
	id := h.create(t, "quiz-1", settings, "u1")
	require.NoError(t, h.svc.Start(ctx, id, "owner"))

	h.clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool {
		return h.status(id) == domain.StatusQuestionDisplayed
	}, time.Second, 5*time.Millisecond)

	h.answerAt(t, id, "u1", 0, time.Second, "b")
	h.clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool {
		q, err := h.svc.CurrentQuestion(id)
		return err == nil && q.Index == 1
	}, time.Second, 5*time.Millisecond)
}

func TestFailedSaveLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	id := h.create(t, "quiz-1q", standardSettings(), "u1")

	h.gateway.fail.Store(true)
	err := h.svc.Start(ctx, id, "owner")
	require.Error(t, err)
	assert.Equal(t, domain.StatusWaiting, h.status(id))
	assert.Empty(t, h.rec.of(domain.EventSessionStarted), "nothing is published for an aborted transition")

	h.gateway.fail.Store(false)
	require.NoError(t, h.svc.Start(ctx, id, "owner"))
	require.NoError(t, h.svc.NextQuestion(ctx, id, "owner"))

	h.gateway.fail.Store(true)
	h.answerAt(t, id, "u1", 0, time.Second, "b")
	assert.Equal(t, domain.StatusQuestionDisplayed, h.status(id), "reveal rolled back")

	h.gateway.fail.Store(false)
	h.clock.Advance(9 * time.Second)
	require.Eventually(t, func() bool {
		return h.status(id) == domain.StatusCompleted
	}, time.Second, 5*time.Millisecond, "the deadline retries the reveal")
	view, err := h.svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 990+500, participant(view, "u1").Score, "the queued answer survives the failed save")
}

func TestRetentionFallsBackToGateway(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	id := h.create(t, "quiz-1q", standardSettings(), "u1")
	require.NoError(t, h.svc.Start(ctx, id, "owner"))
	require.NoError(t, h.svc.NextQuestion(ctx, id, "owner"))
	h.answerAt(t, id, "u1", 0, time.Second, "b")
	require.Equal(t, domain.StatusCompleted, h.status(id))

	h.clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return h.store.Len() == 0 }, time.Second, 5*time.Millisecond)

	view, err := h.svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "u1", view.Session.WinnerID)
	lb, err := h.svc.Leaderboard(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, 990, lb.Entries[0].Score)
	_, err = h.svc.Leaderboard(ctx, id, 9)
	assert.ErrorIs(t, err, app.ErrLeaderboardNotFound)
	assert.ErrorIs(t, h.svc.Start(ctx, id, "owner"), domain.ErrSessionNotFound)

	assert.NoError(t, h.svc.End(ctx, id, "owner"), "ending a stored completed session is a no-op")
	assert.ErrorIs(t, h.svc.End(ctx, id, "u1"), domain.ErrNotAuthorized)
	assert.ErrorIs(t, h.svc.End(ctx, "missing", "owner"), domain.ErrSessionNotFound)
	assert.Len(t, h.rec.of(domain.EventSessionEnded), 1)
}

func TestCreateSessionValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)

	bad := standardSettings()
	bad.DefaultTimeLimit = 0
	_, err := h.svc.CreateSession(ctx, "owner", "quiz-1", bad)
	assert.ErrorIs(t, err, domain.ErrInvalidSettings)

	bad = standardSettings()
	bad.Scoring.WrongAnswerPenalty = -5
	_, err = h.svc.CreateSession(ctx, "owner", "quiz-1", bad)
	assert.ErrorIs(t, err, domain.ErrInvalidSettings)

	bad = standardSettings()
	bad.Kind = domain.KindBattleRoyale
	_, err = h.svc.CreateSession(ctx, "owner", "quiz-1", bad)
	assert.ErrorIs(t, err, domain.ErrInvalidSettings, "battle royale without any elimination rule")

	_, err = h.svc.CreateSession(ctx, "owner", "missing", standardSettings())
	assert.ErrorIs(t, err, domain.ErrQuizNotFound)

	random := standardSettings()
	random.RandomizeQuestions = true
	view, err := h.svc.CreateSession(ctx, "owner", "quiz-3", random)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1, 2}, view.Session.QuestionOrder)
	assert.Equal(t, -1, view.Session.QuestionIndex)
	assert.Equal(t, domain.StatusWaiting, view.Session.Status)
}

func TestBrokerReceivesSessionEvents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	id := h.create(t, "quiz-1", standardSettings())
	ch, cancel := h.broker.Subscribe(domain.SessionTopic(id))
	defer cancel()

	_, err := h.svc.Join(ctx, id, "u1", "Alice", false)
	require.NoError(t, err)

	select {
	case env := <-ch:
		assert.Equal(t, domain.EventParticipantJoined, env.Name)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}
