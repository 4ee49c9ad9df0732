package domain

import (
	"encoding/json"
	"time"
)

// EventName identifies a lifecycle transition.
type EventName string

const (
	EventParticipantJoined  EventName = "participant.joined"
	EventSessionStarted     EventName = "session.started"
	EventQuestionDisplayed  EventName = "question.displayed"
	EventAnswersRevealed    EventName = "answers.revealed"
	EventLeaderboardUpdated EventName = "leaderboard.updated"
	EventParticipantOut     EventName = "participant.eliminated"
	EventEliminationSummary EventName = "elimination.round_summary"
	EventSessionEnded       EventName = "session.ended"
	EventSessionFailed      EventName = "session.failed"
	EventMatchStarted       EventName = "match.started"
	EventMatchCompleted     EventName = "match.completed"
	EventTournamentEnded    EventName = "tournament.ended"
)

// Event is the closed set of payloads the engine publishes.
type Event interface {
	EventName() EventName
	isEvent()
}

// SessionTopic is the publish topic for a session.
func SessionTopic(sessionID string) string { return "session:" + sessionID }

// TournamentTopic is the publish topic for a tournament.
func TournamentTopic(tournamentID string) string { return "tournament:" + tournamentID }

// ParticipantJoined is published when a player or spectator enters a session.
type ParticipantJoined struct {
	SessionID        string `json:"sessionId"`
	ParticipantID    string `json:"participantId"`
	DisplayName      string `json:"displayName"`
	Spectator        bool   `json:"spectator"`
	ParticipantCount int    `json:"participantCount"`
}

// SessionStarted is published on waiting -> active.
type SessionStarted struct {
	SessionID      string      `json:"sessionId"`
	Kind           SessionKind `json:"kind"`
	TotalQuestions int         `json:"totalQuestions"`
	Players        int         `json:"players"`
	StartedAt      time.Time   `json:"startedAt"`
}

// QuestionDisplayed carries the question without correctness flags.
type QuestionDisplayed struct {
	SessionID string       `json:"sessionId"`
	Round     int          `json:"round"`
	Question  QuestionView `json:"question"`
}

// ParticipantResult is one line of an answers.revealed event.
type ParticipantResult struct {
	ParticipantID string         `json:"participantId"`
	OptionIDs     []string       `json:"optionIds,omitempty"`
	Correct       bool           `json:"correct"`
	Timeout       bool           `json:"timeout"`
	ElapsedMs     int64          `json:"elapsedMs"`
	Breakdown     ScoreBreakdown `json:"breakdown"`
	TotalScore    int            `json:"totalScore"`
}

// AnswersRevealed closes a question.
type AnswersRevealed struct {
	SessionID        string              `json:"sessionId"`
	QuestionIndex    int                 `json:"questionIndex"`
	QuestionID       string              `json:"questionId"`
	CorrectOptionIDs []string            `json:"correctOptionIds"`
	Results          []ParticipantResult `json:"results"`
	AllAnswered      bool                `json:"allAnswered"`
}

// LeaderboardUpdated carries a new leaderboard version.
type LeaderboardUpdated struct {
	Leaderboard Leaderboard `json:"leaderboard"`
}

// ParticipantEliminated is published once per eliminee.
type ParticipantEliminated struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Round         int    `json:"round"`
	FinalPosition int    `json:"finalPosition"`
	Score         int    `json:"score"`
}

// EliminationRoundSummary summarizes one battle royale elimination pass.
type EliminationRoundSummary struct {
	SessionID            string   `json:"sessionId"`
	Round                int      `json:"round"`
	ActiveBefore         int      `json:"activeBefore"`
	EliminatedIDs        []string `json:"eliminatedIds"`
	Survivors            int      `json:"survivors"`
	EliminatedPercentage float64  `json:"eliminatedPercentage"`
	WinnerID             string   `json:"winnerId,omitempty"`
}

// SessionEnded is published when a session completes normally or is ended by its owner.
type SessionEnded struct {
	SessionID   string      `json:"sessionId"`
	Reason      EndReason   `json:"reason"`
	WinnerID    string      `json:"winnerId,omitempty"`
	Leaderboard Leaderboard `json:"leaderboard"`
	EndedAt     time.Time   `json:"endedAt"`
}

// SessionFailed notifies everyone that the session ended abnormally.
type SessionFailed struct {
	SessionID string    `json:"sessionId"`
	Detail    string    `json:"detail"`
	FailedAt  time.Time `json:"failedAt"`
}

// MatchStarted is published when a bracket match is played as a live session.
type MatchStarted struct {
	TournamentID string    `json:"tournamentId"`
	MatchID      string    `json:"matchId"`
	SessionID    string    `json:"sessionId"`
	Slots        [2]string `json:"slots"`
}

// MatchResultRecorded is published after a result is recorded.
type MatchResultRecorded struct {
	TournamentID string      `json:"tournamentId"`
	Match        Match       `json:"match"`
	Advanced     []MatchLink `json:"advanced,omitempty"`
}

// TournamentEnded is published once the bracket is decided.
type TournamentEnded struct {
	TournamentID string     `json:"tournamentId"`
	ChampionID   string     `json:"championId,omitempty"`
	Standings    []Standing `json:"standings"`
	EndedAt      time.Time  `json:"endedAt"`
}

func (ParticipantJoined) EventName() EventName       { return EventParticipantJoined }
func (SessionStarted) EventName() EventName          { return EventSessionStarted }
func (QuestionDisplayed) EventName() EventName       { return EventQuestionDisplayed }
func (AnswersRevealed) EventName() EventName         { return EventAnswersRevealed }
func (LeaderboardUpdated) EventName() EventName      { return EventLeaderboardUpdated }
func (ParticipantEliminated) EventName() EventName   { return EventParticipantOut }
func (EliminationRoundSummary) EventName() EventName { return EventEliminationSummary }
func (SessionEnded) EventName() EventName            { return EventSessionEnded }
func (SessionFailed) EventName() EventName           { return EventSessionFailed }
func (MatchStarted) EventName() EventName            { return EventMatchStarted }
func (MatchResultRecorded) EventName() EventName     { return EventMatchCompleted }
func (TournamentEnded) EventName() EventName         { return EventTournamentEnded }

func (ParticipantJoined) isEvent()       {}
func (SessionStarted) isEvent()          {}
func (QuestionDisplayed) isEvent()       {}
func (AnswersRevealed) isEvent()         {}
func (LeaderboardUpdated) isEvent()      {}
func (ParticipantEliminated) isEvent()   {}
func (EliminationRoundSummary) isEvent() {}
func (SessionEnded) isEvent()            {}
func (SessionFailed) isEvent()           {}
func (MatchStarted) isEvent()            {}
func (MatchResultRecorded) isEvent()     {}
func (TournamentEnded) isEvent()         {}

// Envelope is the serialized form handed to transports.
type Envelope struct {
	Topic   string          `json:"topic"`
	Name    EventName       `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// Seal encodes an event for a topic.
func Seal(topic string, ev Event) (Envelope, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Topic: topic, Name: ev.EventName(), Payload: raw}, nil
}
