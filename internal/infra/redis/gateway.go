package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-arena/internal/app"
	"quiz-arena/internal/bracket"
	"quiz-arena/internal/domain"
)

// Gateway persists aggregates in Redis. Every save is one MULTI/EXEC transaction.
//
//	arena:session:{id}               JSON of the session row and participants
//	arena:session:{id}:submissions   RPUSH of scored submissions
//	arena:session:{id}:leaderboards  RPUSH of leaderboard versions
//	arena:tournament:{id}            JSON of the tournament and bracket
type Gateway struct {
	client *redis.Client
	ttl    time.Duration
}

// NewGateway keeps records for ttl after their last write; zero keeps them forever.
func NewGateway(client *redis.Client, ttl time.Duration) *Gateway {
	return &Gateway{client: client, ttl: ttl}
}

type sessionRow struct {
	Session      domain.Session       `json:"session"`
	Participants []domain.Participant `json:"participants"`
}

type tournamentRow struct {
	Tournament domain.Tournament `json:"tournament"`
	Bracket    *bracket.Bracket  `json:"bracket"`
}

func (g *Gateway) SaveSession(ctx context.Context, rec app.SessionRecord) error {
	id := rec.Session.ID
	row, err := json.Marshal(sessionRow{Session: rec.Session, Participants: rec.Participants})
	if err != nil {
		return err
	}
	subs, err := marshalAll(rec.Submissions)
	if err != nil {
		return err
	}
	boards, err := marshalAll(rec.Leaderboards)
	if err != nil {
		return err
	}

	_, err = g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(id), row, g.ttl)
		if len(subs) > 0 {
			pipe.RPush(ctx, submissionsKey(id), subs...)
		}
		if len(boards) > 0 {
			pipe.RPush(ctx, leaderboardsKey(id), boards...)
		}
		if g.ttl > 0 {
			pipe.Expire(ctx, submissionsKey(id), g.ttl)
			pipe.Expire(ctx, leaderboardsKey(id), g.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

func (g *Gateway) LoadSession(ctx context.Context, sessionID string) (app.SessionRecord, error) {
	var (
		rowCmd    *redis.StringCmd
		subsCmd   *redis.StringSliceCmd
		boardsCmd *redis.StringSliceCmd
	)
	_, err := g.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		rowCmd = pipe.Get(ctx, sessionKey(sessionID))
		subsCmd = pipe.LRange(ctx, submissionsKey(sessionID), 0, -1)
		boardsCmd = pipe.LRange(ctx, leaderboardsKey(sessionID), 0, -1)
		return nil
	})
	if errors.Is(err, redis.Nil) || errors.Is(rowCmd.Err(), redis.Nil) {
		return app.SessionRecord{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return app.SessionRecord{}, fmt.Errorf("redis load session: %w", err)
	}

	var row sessionRow
	if err := json.Unmarshal([]byte(rowCmd.Val()), &row); err != nil {
		return app.SessionRecord{}, err
	}
	rec := app.SessionRecord{Session: row.Session, Participants: row.Participants}
	if rec.Submissions, err = unmarshalAll[domain.AnswerSubmission](subsCmd.Val()); err != nil {
		return app.SessionRecord{}, err
	}
	if rec.Leaderboards, err = unmarshalAll[domain.Leaderboard](boardsCmd.Val()); err != nil {
		return app.SessionRecord{}, err
	}
	return rec, nil
}

func (g *Gateway) SaveTournament(ctx context.Context, rec app.TournamentRecord) error {
	raw, err := json.Marshal(tournamentRow{Tournament: rec.Tournament, Bracket: rec.Bracket})
	if err != nil {
		return err
	}
	_, err = g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tournamentKey(rec.Tournament.ID), raw, g.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save tournament: %w", err)
	}
	return nil
}

func (g *Gateway) LoadTournament(ctx context.Context, tournamentID string) (app.TournamentRecord, error) {
	raw, err := g.client.Get(ctx, tournamentKey(tournamentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return app.TournamentRecord{}, domain.ErrTournamentNotFound
	}
	if err != nil {
		return app.TournamentRecord{}, fmt.Errorf("redis load tournament: %w", err)
	}
	var row tournamentRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return app.TournamentRecord{}, err
	}
	return app.TournamentRecord{Tournament: row.Tournament, Bracket: row.Bracket}, nil
}

func marshalAll[T any](items []T) ([]interface{}, error) {
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func unmarshalAll[T any](raws []string) ([]T, error) {
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var item T
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func sessionKey(id string) string { return "arena:session:" + id }
func submissionsKey(id string) string { return "arena:session:" + id + ":submissions" }
func leaderboardsKey(id string) string { return "arena:session:" + id + ":leaderboards" }
func tournamentKey(id string) string { return "arena:tournament:" + id }
