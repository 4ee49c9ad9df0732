// Package leaderboard orders session participants into ranked snapshots.
package leaderboard

import (
	"sort"
	"time"

	"quiz-arena/internal/domain"
)

// Compare reports whether a ranks strictly ahead of b. It is a strict total order:
// score desc, wrong answers asc, average response time asc (no answers last),
// join order asc, and finally participant ID so no two participants ever tie.
func Compare(a, b domain.Participant) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Wrong != b.Wrong {
		return a.Wrong < b.Wrong
	}
	aa, ba := a.AvgResponseMs(), b.AvgResponseMs()
	if aa != ba {
		if aa < 0 {
			return false
		}
		if ba < 0 {
			return true
		}
		return aa < ba
	}
	if a.JoinOrder != b.JoinOrder {
		return a.JoinOrder < b.JoinOrder
	}
	return a.ID < b.ID
}

// Ordered returns the IDs of active players, best first.
func Ordered(participants []domain.Participant) []string {
	active := make([]domain.Participant, 0, len(participants))
	for _, p := range participants {
		if p.Active() {
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool { return Compare(active[i], active[j]) })
	ids := make([]string, len(active))
	for i, p := range active {
		ids[i] = p.ID
	}
	return ids
}

// Build recomputes a leaderboard version. Active players are ranked 1..k; eliminated
// players keep their frozen final rank behind the active pool; spectators are left out.
// previous may be nil for the first snapshot.
func Build(sessionID string, version, questionIndex int, participants []domain.Participant, previous *domain.Leaderboard, now time.Time) domain.Leaderboard {
	var active, out []domain.Participant
	for _, p := range participants {
		switch {
		case p.Spectator:
		case p.Eliminated:
			out = append(out, p)
		default:
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool { return Compare(active[i], active[j]) })
	sort.Slice(out, func(i, j int) bool {
		ri, rj := frozenRank(out[i]), frozenRank(out[j])
		if ri != rj {
			return ri < rj
		}
		return Compare(out[i], out[j])
	})

	prevRanks := map[string]int{}
	if previous != nil {
		for _, e := range previous.Entries {
			prevRanks[e.ParticipantID] = e.Rank
		}
	}

	entries := make([]domain.LeaderboardEntry, 0, len(active)+len(out))
	for i, p := range active {
		entries = append(entries, entry(p, i+1, prevRanks[p.ID]))
	}
	next := len(active) + 1
	for _, p := range out {
		rank := frozenRank(p)
		if rank == 0 || rank < next {
			rank = next
		}
		next = rank + 1
		entries = append(entries, entry(p, rank, prevRanks[p.ID]))
	}

	return domain.Leaderboard{
		SessionID:     sessionID,
		Version:       version,
		QuestionIndex: questionIndex,
		Entries:       entries,
		UpdatedAt:     now,
	}
}

func frozenRank(p domain.Participant) int {
	if p.FinalRank == nil {
		return 0
	}
	return *p.FinalRank
}

func entry(p domain.Participant, rank, previous int) domain.LeaderboardEntry {
	e := domain.LeaderboardEntry{
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
		Score:         p.Score,
		Rank:          rank,
		PreviousRank:  previous,
		Answered:      p.Answered,
		Correct:       p.Correct,
		Wrong:         p.Wrong,
		AvgResponseMs: p.AvgResponseMs(),
		Streak:        p.Streak,
		BestStreak:    p.BestStreak,
		Eliminated:    p.Eliminated,
	}
	if previous > 0 {
		e.Movement = previous - rank
	}
	if p.EliminatedRound != nil {
		e.EliminatedRound = *p.EliminatedRound
	}
	return e
}
