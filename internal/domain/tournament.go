package domain

import "time"

// BracketFormat is chosen when a tournament is created and never changes.
type BracketFormat string

const (
	FormatRoundRobin        BracketFormat = "round_robin"
	FormatSingleElimination BracketFormat = "single_elimination"
	FormatDoubleElimination BracketFormat = "double_elimination"
)

// BracketSide places a match inside a double elimination structure.
type BracketSide string

const (
	SideWinners    BracketSide = "winners"
	SideLosers     BracketSide = "losers"
	SideGrandFinal BracketSide = "grand_final"
	SideReset      BracketSide = "grand_final_reset"
	SideGroup      BracketSide = "group"
)

// MatchStatus tracks a bracket match.
type MatchStatus string

const (
	MatchPending    MatchStatus = "pending"
	MatchScheduled  MatchStatus = "scheduled"
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
)

// SlotState tells whether a match slot is still waiting for its feeder.
type SlotState string

const (
	SlotOpen   SlotState = "open"
	SlotFilled SlotState = "filled"
	SlotVoid   SlotState = "void"
)

// MatchLink routes a participant out of a match into a slot of another match.
type MatchLink struct {
	MatchID string `json:"matchId"`
	Slot    int    `json:"slot"`
}

// Match is one pairing inside a tournament.
type Match struct {
	ID          string       `json:"id"`
	Side        BracketSide  `json:"side"`
	Round       int          `json:"round"`
	Order       int          `json:"order"`
	Slots       [2]string    `json:"slots"`
	SlotStates  [2]SlotState `json:"slotStates"`
	Scores      [2]int       `json:"scores"`
	WinnerID    string       `json:"winnerId,omitempty"`
	LoserID     string       `json:"loserId,omitempty"`
	Status      MatchStatus  `json:"status"`
	Walkover    bool         `json:"walkover"`
	WinnerTo    *MatchLink   `json:"winnerTo,omitempty"`
	LoserTo     *MatchLink   `json:"loserTo,omitempty"`
	SessionID   string       `json:"sessionId,omitempty"`
	ScheduledAt *time.Time   `json:"scheduledAt,omitempty"`
	StartedAt   *time.Time   `json:"startedAt,omitempty"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

// Played reports whether two participants actually contested the match.
func (m Match) Played() bool {
	return m.Status == MatchCompleted && !m.Walkover
}

// Has reports whether the participant occupies one of the slots.
func (m Match) Has(participantID string) bool {
	return participantID != "" && (m.Slots[0] == participantID || m.Slots[1] == participantID)
}

// TournamentStatus tracks the whole bracket.
type TournamentStatus string

const (
	TournamentActive    TournamentStatus = "active"
	TournamentCompleted TournamentStatus = "completed"
)

// Tournament is a bracket over registered participants.
type Tournament struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	OwnerID      string           `json:"ownerId"`
	Format       BracketFormat    `json:"format"`
	Status       TournamentStatus `json:"status"`
	Participants []string         `json:"participants"`
	Seed         int64            `json:"seed,omitempty"`
	ChampionID   string           `json:"championId,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	CompletedAt  *time.Time       `json:"completedAt,omitempty"`
}

// Standing is one row of tournament standings.
type Standing struct {
	ParticipantID string `json:"participantId"`
	Rank          int    `json:"rank"`
	Played        int    `json:"played"`
	Wins          int    `json:"wins"`
	Draws         int    `json:"draws"`
	Losses        int    `json:"losses"`
	ScoreFor      int    `json:"scoreFor"`
	ScoreAgainst  int    `json:"scoreAgainst"`
	Differential  int    `json:"differential"`
	Eliminated    bool   `json:"eliminated"`
}
