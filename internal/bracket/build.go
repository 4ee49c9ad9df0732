package bracket

import (
	"time"

	"quiz-arena/internal/domain"
)

// buildRoundRobin pairs every entrant with every other exactly once using the circle method.
func (b *Bracket) buildRoundRobin(now time.Time) {
	ids := append([]string(nil), b.Entrants...)
	if len(ids)%2 == 1 {
		ids = append(ids, "")
	}
	n := len(ids)
	t := now
	for r := 1; r < n; r++ {
		order := 0
		for i := 0; i < n/2; i++ {
			home, away := ids[i], ids[n-1-i]
			if home == "" || away == "" {
				continue
			}
			b.add(domain.Match{
				ID:          matchID(domain.SideGroup, r, order),
				Side:        domain.SideGroup,
				Round:       r,
				Order:       order,
				Slots:       [2]string{home, away},
				SlotStates:  [2]domain.SlotState{domain.SlotFilled, domain.SlotFilled},
				Status:      domain.MatchScheduled,
				ScheduledAt: &t,
			})
			order++
		}
		rotated := make([]string, 0, n)
		rotated = append(rotated, ids[0], ids[n-1])
		rotated = append(rotated, ids[1:n-1]...)
		ids = rotated
	}
}

func (b *Bracket) buildElimination(double bool, now time.Time) error {
	size, rounds := 1, 0
	for size < len(b.Entrants) {
		size <<= 1
		rounds++
	}

	for r := 1; r <= rounds; r++ {
		for i := 0; i < size>>r; i++ {
			b.add(domain.Match{ID: matchID(domain.SideWinners, r, i), Side: domain.SideWinners, Round: r, Order: i})
		}
	}
	for r := 1; r < rounds; r++ {
		for i := 0; i < size>>r; i++ {
			b.mustMatch(matchID(domain.SideWinners, r, i)).WinnerTo = &domain.MatchLink{
				MatchID: matchID(domain.SideWinners, r+1, i/2),
				Slot:    i % 2,
			}
		}
	}
	if double {
		b.buildLosers(size, rounds)
	}
	return b.seed(size, now)
}

// buildLosers lays out L1..L(2k-2) and the grand final. Odd losers rounds are fed by
// the previous losers round; even round L(2j) also takes the losers of W(j+1) in slot 1.
func (b *Bracket) buildLosers(size, rounds int) {
	gf := matchID(domain.SideGrandFinal, 1, 0)
	b.add(domain.Match{ID: gf, Side: domain.SideGrandFinal, Round: 1})
	final := b.mustMatch(matchID(domain.SideWinners, rounds, 0))
	final.WinnerTo = &domain.MatchLink{MatchID: gf, Slot: 0}
	if rounds == 1 {
		final.LoserTo = &domain.MatchLink{MatchID: gf, Slot: 1}
		return
	}

	last := 2*rounds - 2
	for r := 1; r <= last; r++ {
		for i := 0; i < losersRoundSize(size, r); i++ {
			b.add(domain.Match{ID: matchID(domain.SideLosers, r, i), Side: domain.SideLosers, Round: r, Order: i})
		}
	}

	for i := 0; i < size/2; i++ {
		b.mustMatch(matchID(domain.SideWinners, 1, i)).LoserTo = &domain.MatchLink{
			MatchID: matchID(domain.SideLosers, 1, i/2),
			Slot:    i % 2,
		}
	}

	for r := 1; r <= last; r++ {
		m := losersRoundSize(size, r)
		for i := 0; i < m; i++ {
			var to domain.MatchLink
			switch {
			case r == last:
				to = domain.MatchLink{MatchID: gf, Slot: 1}
			case r%2 == 1:
				to = domain.MatchLink{MatchID: matchID(domain.SideLosers, r+1, i), Slot: 0}
			default:
				to = domain.MatchLink{MatchID: matchID(domain.SideLosers, r+1, i/2), Slot: i % 2}
			}
			b.mustMatch(matchID(domain.SideLosers, r, i)).WinnerTo = &to
		}
		if r%2 == 0 {
			j := r / 2
			for i := 0; i < m; i++ {
				b.mustMatch(matchID(domain.SideWinners, j+1, i)).LoserTo = &domain.MatchLink{
					MatchID: matchID(domain.SideLosers, r, dropPosition(i, m, j)),
					Slot:    1,
				}
			}
		}
	}
}

// losersRoundSize is the match count of losers round r: L(2j-1) and L(2j) both hold size/2^(j+1).
func losersRoundSize(size, r int) int {
	j := (r + 1) / 2
	return size >> (j + 1)
}

// dropPosition places the loser of W(j+1) match i into L(2j). Alternating a full
// reversal with a half shift keeps losers rounds L1..L(k-1) of a k-round winners
// bracket free of rematches. Later losers rounds are too narrow for that and may
// repeat a winners bracket pairing.
func dropPosition(i, m, j int) int {
	if j%2 == 1 {
		return m - 1 - i
	}
	return (i + m/2) % m
}

// seed fills round one. Byes go to the earliest seeds and are spread evenly over the
// first round; each bye match completes immediately as a walkover.
func (b *Bracket) seed(size int, now time.Time) error {
	half := size / 2
	byes := size - len(b.Entrants)
	isBye := make([]bool, half)
	for i := 0; i < byes; i++ {
		isBye[i*half/byes] = true
	}

	adv := &advance{b: b, now: now}
	nextBye, next := 0, byes
	for i := 0; i < half; i++ {
		id := matchID(domain.SideWinners, 1, i)
		if isBye[i] {
			if err := adv.fill(domain.MatchLink{MatchID: id, Slot: 0}, b.Entrants[nextBye]); err != nil {
				return err
			}
			if err := adv.void(domain.MatchLink{MatchID: id, Slot: 1}); err != nil {
				return err
			}
			nextBye++
			continue
		}
		for s := 0; s < 2; s++ {
			if err := adv.fill(domain.MatchLink{MatchID: id, Slot: s}, b.Entrants[next]); err != nil {
				return err
			}
			next++
		}
	}
	return nil
}
