package bracket

import (
	"math"
	"sort"

	"quiz-arena/internal/domain"
)

const (
	depthGrandFinal = math.MaxInt32 - 2
	depthAlive      = math.MaxInt32 - 1
	depthChampion   = math.MaxInt32
)

// Standings returns one row per entrant, best first. Round robin ranks by wins,
// then score differential, then head-to-head when exactly two are tied, then
// registration order. Elimination formats rank by how deep a participant went
// before their final loss; participants knocked out at the same depth share a rank.
func (b *Bracket) Standings() []domain.Standing {
	rows := make([]domain.Standing, len(b.Entrants))
	pos := make(map[string]int, len(b.Entrants))
	for i, id := range b.Entrants {
		rows[i] = domain.Standing{ParticipantID: id}
		pos[id] = i
	}
	for _, m := range b.Matches {
		if !m.Played() {
			continue
		}
		for s := 0; s < 2; s++ {
			i, ok := pos[m.Slots[s]]
			if !ok {
				continue
			}
			r := &rows[i]
			r.Played++
			r.ScoreFor += m.Scores[s]
			r.ScoreAgainst += m.Scores[1-s]
			switch m.WinnerID {
			case "":
				r.Draws++
			case m.Slots[s]:
				r.Wins++
			default:
				r.Losses++
			}
		}
	}
	for i := range rows {
		rows[i].Differential = rows[i].ScoreFor - rows[i].ScoreAgainst
	}

	if b.Format == domain.FormatRoundRobin {
		b.rankRoundRobin(rows, pos)
	} else {
		b.rankElimination(rows, pos)
	}
	return rows
}

func (b *Bracket) rankRoundRobin(rows []domain.Standing, pos map[string]int) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Wins != rows[j].Wins {
			return rows[i].Wins > rows[j].Wins
		}
		if rows[i].Differential != rows[j].Differential {
			return rows[i].Differential > rows[j].Differential
		}
		return pos[rows[i].ParticipantID] < pos[rows[j].ParticipantID]
	})
	for i := 0; i < len(rows); {
		j := i + 1
		for j < len(rows) && rows[j].Wins == rows[i].Wins && rows[j].Differential == rows[i].Differential {
			j++
		}
		if j-i == 2 && b.beat(rows[i+1].ParticipantID, rows[i].ParticipantID) {
			rows[i], rows[i+1] = rows[i+1], rows[i]
		}
		i = j
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}
}

func (b *Bracket) rankElimination(rows []domain.Standing, pos map[string]int) {
	need := 1
	if b.Format == domain.FormatDoubleElimination {
		need = 2
	}
	depth := make(map[string]int, len(rows))
	for i := range rows {
		r := &rows[i]
		switch {
		case b.Completed && r.ParticipantID == b.ChampionID:
			depth[r.ParticipantID] = depthChampion
		case r.Losses >= need:
			r.Eliminated = true
			depth[r.ParticipantID] = b.knockoutDepth(r.ParticipantID)
		default:
			depth[r.ParticipantID] = depthAlive
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		di, dj := depth[rows[i].ParticipantID], depth[rows[j].ParticipantID]
		if di != dj {
			return di > dj
		}
		return pos[rows[i].ParticipantID] < pos[rows[j].ParticipantID]
	})
	for i := range rows {
		if i > 0 && depth[rows[i].ParticipantID] == depth[rows[i-1].ParticipantID] {
			rows[i].Rank = rows[i-1].Rank
			continue
		}
		rows[i].Rank = i + 1
	}
}

// knockoutDepth is the depth of the deepest match the participant lost.
func (b *Bracket) knockoutDepth(id string) int {
	deepest := 0
	for _, m := range b.Matches {
		if !m.Played() || m.LoserID != id {
			continue
		}
		d := 0
		switch m.Side {
		case domain.SideGrandFinal, domain.SideReset:
			d = depthGrandFinal
		case domain.SideLosers:
			d = m.Round
		case domain.SideWinners:
			if b.Format == domain.FormatSingleElimination {
				d = m.Round
			}
		}
		if d > deepest {
			deepest = d
		}
	}
	return deepest
}

func (b *Bracket) beat(winner, loser string) bool {
	for _, m := range b.Matches {
		if m.Played() && m.WinnerID == winner && m.LoserID == loser {
			return true
		}
	}
	return false
}
