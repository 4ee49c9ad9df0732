package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quiz-arena/internal/app"
	"quiz-arena/internal/bracket"
	"quiz-arena/internal/domain"
)

type sessionRow struct {
	Session      domain.Session       `json:"session"`
	Participants []domain.Participant `json:"participants"`
}

type sessionModel struct {
	bun.BaseModel `bun:"table:sessions"`

	ID        string     `bun:"id,pk"`
	QuizID    string     `bun:"quiz_id,notnull"`
	Status    string     `bun:"status,notnull"`
	Data      sessionRow `bun:"data,type:jsonb,notnull"`
	UpdatedAt time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type submissionModel struct {
	bun.BaseModel `bun:"table:session_submissions"`

	ID            int64                   `bun:"id,pk,autoincrement"`
	SessionID     string                  `bun:"session_id,notnull"`
	ParticipantID string                  `bun:"participant_id,notnull"`
	QuestionIndex int                     `bun:"question_index,notnull"`
	Data          domain.AnswerSubmission `bun:"data,type:jsonb,notnull"`
}

type leaderboardModel struct {
	bun.BaseModel `bun:"table:session_leaderboards"`

	SessionID string             `bun:"session_id,pk"`
	Version   int                `bun:"version,pk"`
	Data      domain.Leaderboard `bun:"data,type:jsonb,notnull"`
}

type tournamentRow struct {
	Tournament domain.Tournament `json:"tournament"`
	Bracket    *bracket.Bracket  `json:"bracket"`
}

type tournamentModel struct {
	bun.BaseModel `bun:"table:tournaments"`

	ID        string        `bun:"id,pk"`
	Status    string        `bun:"status,notnull"`
	Data      tournamentRow `bun:"data,type:jsonb,notnull"`
	UpdatedAt time.Time     `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Gateway persists sessions and tournaments with bun. Each save runs in one transaction.
type Gateway struct {
	db *bun.DB
}

func NewGateway(db *bun.DB) *Gateway {
	return &Gateway{db: db}
}

func (g *Gateway) SaveSession(ctx context.Context, rec app.SessionRecord) error {
	id := rec.Session.ID
	row := sessionModel{
		ID:     id,
		QuizID: rec.Session.QuizID,
		Status: string(rec.Session.Status),
		Data:   sessionRow{Session: rec.Session, Participants: rec.Participants},
	}
	err := g.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&row).
			On("CONFLICT (id) DO UPDATE").
			Set("status = EXCLUDED.status").
			Set("data = EXCLUDED.data").
			Set("updated_at = current_timestamp").
			Exec(ctx)
		if err != nil {
			return err
		}

		if len(rec.Submissions) > 0 {
			subs := make([]submissionModel, 0, len(rec.Submissions))
			for _, s := range rec.Submissions {
				subs = append(subs, submissionModel{
					SessionID:     id,
					ParticipantID: s.ParticipantID,
					QuestionIndex: s.QuestionIndex,
					Data:          s,
				})
			}
			if _, err := tx.NewInsert().Model(&subs).Exec(ctx); err != nil {
				return err
			}
		}

		if len(rec.Leaderboards) > 0 {
			boards := make([]leaderboardModel, 0, len(rec.Leaderboards))
			for _, lb := range rec.Leaderboards {
				boards = append(boards, leaderboardModel{SessionID: id, Version: lb.Version, Data: lb})
			}
			_, err := tx.NewInsert().Model(&boards).
				On("CONFLICT (session_id, version) DO NOTHING").
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

func (g *Gateway) LoadSession(ctx context.Context, sessionID string) (app.SessionRecord, error) {
	var row sessionModel
	err := g.db.NewSelect().Model(&row).Where("id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return app.SessionRecord{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return app.SessionRecord{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var subs []submissionModel
	if err := g.db.NewSelect().Model(&subs).Where("session_id = ?", sessionID).Order("id ASC").Scan(ctx); err != nil {
		return app.SessionRecord{}, fmt.Errorf("load submissions %s: %w", sessionID, err)
	}
	var boards []leaderboardModel
	if err := g.db.NewSelect().Model(&boards).Where("session_id = ?", sessionID).Order("version ASC").Scan(ctx); err != nil {
		return app.SessionRecord{}, fmt.Errorf("load leaderboards %s: %w", sessionID, err)
	}

	rec := app.SessionRecord{
		Session:      row.Data.Session,
		Participants: row.Data.Participants,
		Submissions:  make([]domain.AnswerSubmission, 0, len(subs)),
		Leaderboards: make([]domain.Leaderboard, 0, len(boards)),
	}
	for _, s := range subs {
		rec.Submissions = append(rec.Submissions, s.Data)
	}
	for _, b := range boards {
		rec.Leaderboards = append(rec.Leaderboards, b.Data)
	}
	return rec, nil
}

func (g *Gateway) SaveTournament(ctx context.Context, rec app.TournamentRecord) error {
	row := tournamentModel{
		ID:     rec.Tournament.ID,
		Status: string(rec.Tournament.Status),
		Data:   tournamentRow{Tournament: rec.Tournament, Bracket: rec.Bracket},
	}
	err := g.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&row).
			On("CONFLICT (id) DO UPDATE").
			Set("status = EXCLUDED.status").
			Set("data = EXCLUDED.data").
			Set("updated_at = current_timestamp").
			Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("save tournament %s: %w", rec.Tournament.ID, err)
	}
	return nil
}

func (g *Gateway) LoadTournament(ctx context.Context, tournamentID string) (app.TournamentRecord, error) {
	var row tournamentModel
	err := g.db.NewSelect().Model(&row).Where("id = ?", tournamentID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return app.TournamentRecord{}, domain.ErrTournamentNotFound
	}
	if err != nil {
		return app.TournamentRecord{}, fmt.Errorf("load tournament %s: %w", tournamentID, err)
	}
	return app.TournamentRecord{Tournament: row.Data.Tournament, Bracket: row.Data.Bracket}, nil
}
