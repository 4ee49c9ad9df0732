package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"quiz-arena/internal/app"
	"quiz-arena/internal/bracket"
	"quiz-arena/internal/domain"
)

func TestGatewaySessionRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	gw := NewGateway(newClient(mr), time.Hour)
	sess := domain.Session{ID: "s-1", QuizID: "quiz-1", Status: domain.StatusWaiting, QuestionIndex: -1}

	if err := gw.SaveSession(ctx, app.SessionRecord{Session: sess}); err != nil {
		t.Fatalf("save: %v", err)
	}
	sess.Status = domain.StatusAnswersRevealed
	sess.QuestionIndex = 0
	err = gw.SaveSession(ctx, app.SessionRecord{
		Session:      sess,
		Participants: []domain.Participant{{ID: "u1", Score: 990}},
		Submissions: []domain.AnswerSubmission{
			{SessionID: "s-1", ParticipantID: "u1", OptionIDs: []string{"o2"}, Scored: true, Correct: true},
		},
		Leaderboards: []domain.Leaderboard{{SessionID: "s-1", Version: 1}},
	})
	if err != nil {
		t.Fatalf("save reveal: %v", err)
	}
	err = gw.SaveSession(ctx, app.SessionRecord{
		Session:      sess,
		Participants: []domain.Participant{{ID: "u1", Score: 990}},
		Leaderboards: []domain.Leaderboard{{SessionID: "s-1", Version: 2}},
	})
	if err != nil {
		t.Fatalf("save final: %v", err)
	}

	rec, err := gw.LoadSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.Session.Status != domain.StatusAnswersRevealed || rec.Session.QuizID != "quiz-1" {
		t.Fatalf("unexpected session row %+v", rec.Session)
	}
	if len(rec.Participants) != 1 || rec.Participants[0].Score != 990 {
		t.Fatalf("unexpected participants %+v", rec.Participants)
	}
	if len(rec.Submissions) != 1 || !rec.Submissions[0].Correct {
		t.Fatalf("unexpected submissions %+v", rec.Submissions)
	}
	if len(rec.Leaderboards) != 2 || rec.Leaderboards[1].Version != 2 {
		t.Fatalf("unexpected leaderboards %+v", rec.Leaderboards)
	}
	if ttl := mr.TTL("arena:session:s-1:leaderboards"); ttl != time.Hour {
		t.Fatalf("expected trail ttl, got %s", ttl)
	}
}

func TestGatewayMissingRecords(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	gw := NewGateway(newClient(mr), 0)
	if _, err := gw.LoadSession(context.Background(), "nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
	if _, err := gw.LoadTournament(context.Background(), "nope"); !errors.Is(err, domain.ErrTournamentNotFound) {
		t.Fatalf("expected tournament not found, got %v", err)
	}
}

func TestGatewayTournamentRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	gw := NewGateway(newClient(mr), 0)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b, err := bracket.New(domain.FormatSingleElimination, []string{"a", "b", "c", "d"}, bracket.Options{}, now)
	if err != nil {
		t.Fatalf("bracket: %v", err)
	}
	tour := domain.Tournament{ID: "t-1", Name: "Cup", Format: domain.FormatSingleElimination, Status: domain.TournamentActive}
	if err := gw.SaveTournament(ctx, app.TournamentRecord{Tournament: tour, Bracket: b}); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec, err := gw.LoadTournament(ctx, "t-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.Tournament.Name != "Cup" || len(rec.Bracket.Matches) != len(b.Matches) {
		t.Fatalf("unexpected tournament %+v", rec.Tournament)
	}
	// the decoded bracket must still accept results
	if _, err := rec.Bracket.RecordResult("W1-1", "a", [2]int{3, 1}, now); err != nil {
		t.Fatalf("record on loaded bracket: %v", err)
	}
}
