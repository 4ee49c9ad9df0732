// Package elimination plans battle royale culling rounds.
package elimination

import (
	"errors"
	"math"

	"quiz-arena/internal/domain"
)

// ErrNoActiveParticipants means a round was planned with nobody left to rank.
var ErrNoActiveParticipants = errors.New("no active participants entering elimination")

// Eliminee is one participant removed in a round.
type Eliminee struct {
	ParticipantID string
	Position      int
}

// Round is the outcome of one elimination pass.
type Round struct {
	Number       int
	ActiveBefore int
	// Eliminated is ordered lowest-ranked first.
	Eliminated []Eliminee
	Survivors  []string
	WinnerID   string
}

// EliminatedIDs lists eliminee IDs in elimination order.
func (r Round) EliminatedIDs() []string {
	ids := make([]string, len(r.Eliminated))
	for i, e := range r.Eliminated {
		ids[i] = e.ParticipantID
	}
	return ids
}

// Count returns how many of n active players a round removes:
// max(MinCount, floor(n*Percentage/100)), never leaving fewer than one survivor.
func Count(n int, cfg domain.EliminationConfig) int {
	if n <= 1 {
		return 0
	}
	count := n * cfg.Percentage / 100
	if count < cfg.MinCount {
		count = cfg.MinCount
	}
	if count >= n {
		count = n - 1
	}
	if count < 0 {
		count = 0
	}
	return count
}

// ShouldRun reports whether an elimination pass happens after the given round.
func ShouldRun(round, active int, cfg domain.EliminationConfig) bool {
	if active <= 1 {
		return false
	}
	return cfg.MaxRounds <= 0 || round <= cfg.MaxRounds
}

// Plan selects the eliminees of a round. ordered holds active participant IDs
// ranked best first, using the leaderboard order.
func Plan(round int, ordered []string, cfg domain.EliminationConfig) (Round, error) {
	n := len(ordered)
	if n == 0 {
		return Round{}, ErrNoActiveParticipants
	}
	count := Count(n, cfg)
	r := Round{
		Number:       round,
		ActiveBefore: n,
		Survivors:    append([]string(nil), ordered[:n-count]...),
	}
	for i := 0; i < count; i++ {
		r.Eliminated = append(r.Eliminated, Eliminee{
			ParticipantID: ordered[n-1-i],
			Position:      n - i,
		})
	}
	if len(r.Survivors) == 1 {
		r.WinnerID = r.Survivors[0]
	}
	return r, nil
}

// DisplayPercentage is the share of the field removed, rounded to one decimal.
// It is only ever shown to players.
func DisplayPercentage(eliminated, before int) float64 {
	if before == 0 {
		return 0
	}
	return math.Round(float64(eliminated)/float64(before)*1000) / 10
}
