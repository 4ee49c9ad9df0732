package domain

import "time"

// SessionKind selects the rules a live session runs under.
type SessionKind string

const (
	KindStandard     SessionKind = "standard"
	KindBattleRoyale SessionKind = "battle_royale"
	KindTournament   SessionKind = "tournament"
)

// SessionStatus is the lifecycle position of a session.
type SessionStatus string

const (
	StatusWaiting           SessionStatus = "waiting"
	StatusActive            SessionStatus = "active"
	StatusQuestionDisplayed SessionStatus = "question_displayed"
	StatusAnswersRevealed   SessionStatus = "answers_revealed"
	StatusCompleted         SessionStatus = "completed"
	StatusFailed            SessionStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// EndReason explains why a session reached a terminal status.
type EndReason string

const (
	EndQuestionsExhausted EndReason = "questions_exhausted"
	EndLastSurvivor       EndReason = "last_survivor"
	EndMaxRounds          EndReason = "max_rounds"
	EndByOwner            EndReason = "ended_by_owner"
	EndIdleTimeout        EndReason = "idle_timeout"
	EndInvariant          EndReason = "invariant_violation"
)

// ScoringConfig is fixed when a session is created and never mutated afterwards.
type ScoringConfig struct {
	BasePoints             int           `json:"basePoints" yaml:"base_points"`
	TimePenaltyPerSecond   int           `json:"timePenaltyPerSecond" yaml:"time_penalty_per_second"`
	DividePointsMultiple   bool          `json:"dividePointsMultiple" yaml:"divide_points_multiple"`
	StreakBonusPerQuestion int           `json:"streakBonusPerQuestion" yaml:"streak_bonus_per_question"`
	MaxStreakBonus         int           `json:"maxStreakBonus" yaml:"max_streak_bonus"`
	PerfectScoreBonus      int           `json:"perfectScoreBonus" yaml:"perfect_score_bonus"`
	SpeedBonusThreshold    time.Duration `json:"speedBonusThreshold" yaml:"speed_bonus_threshold"`
	SpeedBonusPoints       int           `json:"speedBonusPoints" yaml:"speed_bonus_points"`
	EnableNegativeScoring  bool          `json:"enableNegativeScoring" yaml:"enable_negative_scoring"`
	WrongAnswerPenalty     int           `json:"wrongAnswerPenalty" yaml:"wrong_answer_penalty"`
	TimeoutPenalty         int           `json:"timeoutPenalty" yaml:"timeout_penalty"`
	AllowNegativeTotal     bool          `json:"allowNegativeTotal" yaml:"allow_negative_total"`
}

// EliminationConfig parameterizes battle royale culling.
type EliminationConfig struct {
	Percentage int `json:"percentage" yaml:"percentage"`
	MinCount   int `json:"minCount" yaml:"min_count"`
	MaxRounds  int `json:"maxRounds" yaml:"max_rounds"`
}

// SessionSettings are attached to a session at creation and treated as a value.
type SessionSettings struct {
	Kind               SessionKind       `json:"kind"`
	Scoring            ScoringConfig     `json:"scoring"`
	DefaultTimeLimit   time.Duration     `json:"defaultTimeLimit"`
	RandomizeQuestions bool              `json:"randomizeQuestions"`
	MinParticipants    int               `json:"minParticipants"`
	MaxParticipants    int               `json:"maxParticipants"`
	AutoAdvance        time.Duration     `json:"autoAdvance"`
	Elimination        EliminationConfig `json:"elimination"`
}

// Session is one live run of a quiz.
type Session struct {
	ID            string          `json:"id"`
	QuizID        string          `json:"quizId"`
	OwnerID       string          `json:"ownerId"`
	Kind          SessionKind     `json:"kind"`
	Status        SessionStatus   `json:"status"`
	QuestionIndex int             `json:"questionIndex"`
	Round         int             `json:"round"`
	QuestionOrder []int           `json:"questionOrder"`
	Seed          int64           `json:"seed,omitempty"`
	Settings      SessionSettings `json:"settings"`
	CreatedAt     time.Time       `json:"createdAt"`
	StartedAt     *time.Time      `json:"startedAt,omitempty"`
	EndedAt       *time.Time      `json:"endedAt,omitempty"`
	EndReason     EndReason       `json:"endReason,omitempty"`
	WinnerID      string          `json:"winnerId,omitempty"`
	TournamentID  string          `json:"tournamentId,omitempty"`
	MatchID       string          `json:"matchId,omitempty"`
}

// Participant represents a player (or spectator) inside one session.
type Participant struct {
	ID                string        `json:"id"`
	DisplayName       string        `json:"displayName"`
	JoinOrder         int           `json:"joinOrder"`
	Spectator         bool          `json:"spectator"`
	Score             int           `json:"score"`
	Streak            int           `json:"streak"`
	BestStreak        int           `json:"bestStreak"`
	Answered          int           `json:"answered"`
	Correct           int           `json:"correct"`
	Wrong             int           `json:"wrong"`
	TotalResponseTime time.Duration `json:"totalResponseTime"`
	Eliminated        bool          `json:"eliminated"`
	EliminatedRound   *int          `json:"eliminatedRound,omitempty"`
	FinalRank         *int          `json:"finalRank,omitempty"`
	LastAnswerAt      *time.Time    `json:"lastAnswerAt,omitempty"`
	JoinedAt          time.Time     `json:"joinedAt"`
}

// Active reports whether the participant still competes.
func (p Participant) Active() bool {
	return !p.Spectator && !p.Eliminated
}

// AvgResponseMs is the mean response time over answered questions, or -1 with no answers.
func (p Participant) AvgResponseMs() int64 {
	if p.Answered == 0 {
		return -1
	}
	return p.TotalResponseTime.Milliseconds() / int64(p.Answered)
}

// ScoreBreakdown keeps every intermediate scoring quantity for audit.
type ScoreBreakdown struct {
	Base        int `json:"base"`
	TimeBonus   int `json:"timeBonus"`
	StreakBonus int `json:"streakBonus"`
	SpeedBonus  int `json:"speedBonus"`
	Penalty     int `json:"penalty"`
	Points      int `json:"points"`
	Streak      int `json:"streak"`
}

// AnswerSubmission is one participant's answer to one question. Once scored it is never mutated.
type AnswerSubmission struct {
	SessionID     string         `json:"sessionId"`
	ParticipantID string         `json:"participantId"`
	QuestionIndex int            `json:"questionIndex"`
	QuestionID    string         `json:"questionId"`
	OptionIDs     []string       `json:"optionIds"`
	SubmittedAt   time.Time      `json:"submittedAt"`
	Elapsed       time.Duration  `json:"elapsed"`
	Timeout       bool           `json:"timeout"`
	Scored        bool           `json:"scored"`
	Correct       bool           `json:"correct"`
	Breakdown     ScoreBreakdown `json:"breakdown"`
}

// AnswerAck is returned to a submitter; correctness is revealed later.
type AnswerAck struct {
	SessionID     string        `json:"sessionId"`
	ParticipantID string        `json:"participantId"`
	QuestionIndex int           `json:"questionIndex"`
	ReceivedAt    time.Time     `json:"receivedAt"`
	Elapsed       time.Duration `json:"elapsed"`
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	ParticipantID   string `json:"participantId"`
	DisplayName     string `json:"displayName"`
	Score           int    `json:"score"`
	Rank            int    `json:"rank"`
	PreviousRank    int    `json:"previousRank,omitempty"`
	Movement        int    `json:"movement"`
	Answered        int    `json:"answered"`
	Correct         int    `json:"correct"`
	Wrong           int    `json:"wrong"`
	AvgResponseMs   int64  `json:"avgResponseMs"`
	Streak          int    `json:"streak"`
	BestStreak      int    `json:"bestStreak"`
	Eliminated      bool   `json:"eliminated"`
	EliminatedRound int    `json:"eliminatedRound,omitempty"`
}

// Leaderboard captures the ordered standings after one reveal.
type Leaderboard struct {
	SessionID     string             `json:"sessionId"`
	Version       int                `json:"version"`
	QuestionIndex int                `json:"questionIndex"`
	Entries       []LeaderboardEntry `json:"entries"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// Entry returns the entry for a participant.
func (l Leaderboard) Entry(participantID string) (LeaderboardEntry, bool) {
	for _, e := range l.Entries {
		if e.ParticipantID == participantID {
			return e, true
		}
	}
	return LeaderboardEntry{}, false
}

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id" yaml:"id"`
	Text    string `json:"text" yaml:"text"`
	Correct bool   `json:"correct" yaml:"correct"`
}

// Question models a question with one or more correct options.
type Question struct {
	ID               string   `json:"id" yaml:"id"`
	Prompt           string   `json:"prompt" yaml:"prompt"`
	Options          []Option `json:"options" yaml:"options"`
	TimeLimitSeconds int      `json:"timeLimitSeconds,omitempty" yaml:"time_limit_seconds"`
}

// CorrectCount returns how many options are marked correct.
func (q Question) CorrectCount() int {
	n := 0
	for _, o := range q.Options {
		if o.Correct {
			n++
		}
	}
	return n
}

// CorrectOptionIDs lists the IDs of the correct options in declaration order.
func (q Question) CorrectOptionIDs() []string {
	ids := make([]string, 0, 1)
	for _, o := range q.Options {
		if o.Correct {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// Option looks up an option by ID.
func (q Question) Option(id string) (Option, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// TimeLimit resolves the question limit, falling back to the session default.
func (q Question) TimeLimit(fallback time.Duration) time.Duration {
	if q.TimeLimitSeconds > 0 {
		return time.Duration(q.TimeLimitSeconds) * time.Second
	}
	return fallback
}

// View strips correctness so the question can be shown to players.
func (q Question) View(index, total int, limit time.Duration, deadline time.Time) QuestionView {
	opts := make([]OptionView, 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, OptionView{ID: o.ID, Text: o.Text})
	}
	return QuestionView{
		Index:     index,
		Total:     total,
		ID:        q.ID,
		Prompt:    q.Prompt,
		Options:   opts,
		TimeLimit: limit,
		Deadline:  deadline,
	}
}

// OptionView is an option without its correctness flag.
type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionView is the player-facing projection of the displayed question.
type QuestionView struct {
	Index     int           `json:"index"`
	Total     int           `json:"total"`
	ID        string        `json:"id"`
	Prompt    string        `json:"prompt"`
	Options   []OptionView  `json:"options"`
	TimeLimit time.Duration `json:"timeLimit"`
	Deadline  time.Time     `json:"deadline"`
}

// Quiz is a collection of questions.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title,omitempty" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// SessionView is a consistent read-only copy of a session and its participants.
type SessionView struct {
	Session      Session       `json:"session"`
	Participants []Participant `json:"participants"`
}
