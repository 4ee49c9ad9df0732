// Package bracket schedules tournament matches and advances participants through them.
//
// A Bracket is a plain aggregate: every match is created up front (except the
// double elimination reset match), and RecordResult is the only mutation.
// Slots start open and are later filled by a participant or voided by an empty
// feeder (a bye). A match with one void slot completes as a walkover without
// being played.
package bracket

import (
	"fmt"
	"math/rand"
	"time"

	"quiz-arena/internal/domain"
)

// Options controls seeding.
type Options struct {
	Shuffle bool
	Seed    int64
}

// Result describes what one recorded result changed.
type Result struct {
	Match      domain.Match
	Advanced   []domain.MatchLink
	Completed  bool
	ChampionID string
}

// Bracket holds the full match structure of a tournament.
type Bracket struct {
	Format     domain.BracketFormat `json:"format"`
	Entrants   []string             `json:"entrants"`
	Matches    []domain.Match       `json:"matches"`
	ChampionID string               `json:"championId,omitempty"`
	Completed  bool                 `json:"completed"`

	byID map[string]int
}

// New builds a bracket. Duplicate and empty participant IDs are dropped; at least
// two entrants must remain. With Shuffle the seeding is a permutation fixed by Seed.
func New(format domain.BracketFormat, participants []string, opts Options, now time.Time) (*Bracket, error) {
	entrants := unique(participants)
	if len(entrants) < 2 {
		return nil, domain.ErrNotEnoughEntrants
	}
	if opts.Shuffle {
		perm := rand.New(rand.NewSource(opts.Seed)).Perm(len(entrants))
		shuffled := make([]string, len(entrants))
		for i, p := range perm {
			shuffled[i] = entrants[p]
		}
		entrants = shuffled
	}

	b := &Bracket{Format: format, Entrants: entrants}
	switch format {
	case domain.FormatRoundRobin:
		b.buildRoundRobin(now)
		return b, nil
	case domain.FormatSingleElimination, domain.FormatDoubleElimination:
		if err := b.buildElimination(format == domain.FormatDoubleElimination, now); err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownFormat, format)
	}
}

// Match returns a copy of the match with the given ID.
func (b *Bracket) Match(id string) (domain.Match, bool) {
	i, ok := b.lookup(id)
	if !ok {
		return domain.Match{}, false
	}
	return b.Matches[i], true
}

// Ready lists matches whose two participants are known and that have not started.
func (b *Bracket) Ready() []domain.Match {
	var out []domain.Match
	for _, m := range b.Matches {
		if m.Status == domain.MatchScheduled {
			out = append(out, m)
		}
	}
	return out
}

// PlayedMatches lists completed matches that were actually contested, in creation order.
func (b *Bracket) PlayedMatches() []domain.Match {
	var out []domain.Match
	for _, m := range b.Matches {
		if m.Played() {
			out = append(out, m)
		}
	}
	return out
}

// Clone returns an independent copy. Match link and timestamp pointers are never
// mutated in place, so sharing them is safe.
func (b *Bracket) Clone() *Bracket {
	return &Bracket{
		Format:     b.Format,
		Entrants:   append([]string(nil), b.Entrants...),
		Matches:    append([]domain.Match(nil), b.Matches...),
		ChampionID: b.ChampionID,
		Completed:  b.Completed,
	}
}

// MarkInProgress records that a scheduled match is being played as a live session.
func (b *Bracket) MarkInProgress(matchID, sessionID string, now time.Time) error {
	i, ok := b.lookup(matchID)
	if !ok {
		return domain.ErrMatchNotFound
	}
	m := &b.Matches[i]
	switch m.Status {
	case domain.MatchCompleted:
		return domain.ErrMatchCompleted
	case domain.MatchPending:
		return domain.ErrMatchNotReady
	case domain.MatchInProgress:
		return fmt.Errorf("%w: match %s already in progress", domain.ErrInvalidTransition, matchID)
	}
	t := now
	m.Status = domain.MatchInProgress
	m.SessionID = sessionID
	m.StartedAt = &t
	return nil
}

// RecordResult completes a match and advances its participants. An empty winnerID
// records a draw, which only round robin accepts. On an invariant violation the
// bracket may be partially advanced; callers mutate a Clone and discard it on error.
func (b *Bracket) RecordResult(matchID, winnerID string, scores [2]int, now time.Time) (Result, error) {
	i, ok := b.lookup(matchID)
	if !ok {
		return Result{}, domain.ErrMatchNotFound
	}
	m := &b.Matches[i]
	switch {
	case m.Status == domain.MatchCompleted:
		return Result{}, domain.ErrMatchCompleted
	case m.Status == domain.MatchPending:
		return Result{}, domain.ErrMatchNotReady
	case b.Completed:
		return Result{}, domain.ErrTournamentCompleted
	}
	if winnerID == "" {
		if b.Format != domain.FormatRoundRobin {
			return Result{}, domain.ErrDrawNotAllowed
		}
	} else if !m.Has(winnerID) {
		return Result{}, domain.ErrInvalidWinner
	}

	t := now
	m.Scores = scores
	m.Status = domain.MatchCompleted
	m.CompletedAt = &t
	if m.StartedAt == nil {
		m.StartedAt = &t
	}
	if winnerID != "" {
		m.WinnerID = winnerID
		m.LoserID = m.Slots[0]
		if winnerID == m.Slots[0] {
			m.LoserID = m.Slots[1]
		}
	}

	adv := &advance{b: b, now: now}
	if err := adv.finish(i); err != nil {
		return Result{}, &domain.InvariantViolation{Scope: "bracket", ID: matchID, Detail: err.Error(), Err: err}
	}
	if b.Format == domain.FormatRoundRobin && b.allCompleted() {
		b.ChampionID = b.Standings()[0].ParticipantID
		b.Completed = true
	}
	return Result{
		Match:      b.Matches[i],
		Advanced:   adv.moved,
		Completed:  b.Completed,
		ChampionID: b.ChampionID,
	}, nil
}

func (b *Bracket) allCompleted() bool {
	for _, m := range b.Matches {
		if m.Status != domain.MatchCompleted {
			return false
		}
	}
	return true
}

func (b *Bracket) add(m domain.Match) {
	if m.Status == "" {
		m.Status = domain.MatchPending
	}
	for s := range m.SlotStates {
		if m.SlotStates[s] == "" {
			m.SlotStates[s] = domain.SlotOpen
		}
	}
	b.Matches = append(b.Matches, m)
	if b.byID != nil {
		b.byID[m.ID] = len(b.Matches) - 1
	}
}

func (b *Bracket) lookup(id string) (int, bool) {
	if b.byID == nil || len(b.byID) != len(b.Matches) {
		b.byID = make(map[string]int, len(b.Matches))
		for i, m := range b.Matches {
			b.byID[m.ID] = i
		}
	}
	i, ok := b.byID[id]
	return i, ok
}

func (b *Bracket) mustMatch(id string) *domain.Match {
	i, ok := b.lookup(id)
	if !ok {
		panic("bracket: unknown match " + id)
	}
	return &b.Matches[i]
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func matchID(side domain.BracketSide, round, order int) string {
	switch side {
	case domain.SideWinners:
		return fmt.Sprintf("W%d-%d", round, order+1)
	case domain.SideLosers:
		return fmt.Sprintf("L%d-%d", round, order+1)
	case domain.SideGrandFinal:
		return "GF"
	case domain.SideReset:
		return "GF2"
	default:
		return fmt.Sprintf("R%d-%d", round, order+1)
	}
}

// advance routes participants out of completed matches, recording every slot it touches.
type advance struct {
	b     *Bracket
	now   time.Time
	moved []domain.MatchLink
}

func (a *advance) fill(to domain.MatchLink, participantID string) error {
	i, ok := a.b.lookup(to.MatchID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrMatchNotFound, to.MatchID)
	}
	m := &a.b.Matches[i]
	if m.SlotStates[to.Slot] != domain.SlotOpen {
		return fmt.Errorf("%w: %s slot %d", domain.ErrSlotOccupied, to.MatchID, to.Slot)
	}
	m.Slots[to.Slot] = participantID
	m.SlotStates[to.Slot] = domain.SlotFilled
	a.moved = append(a.moved, to)
	return a.settle(i)
}

func (a *advance) void(to domain.MatchLink) error {
	i, ok := a.b.lookup(to.MatchID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrMatchNotFound, to.MatchID)
	}
	m := &a.b.Matches[i]
	if m.SlotStates[to.Slot] != domain.SlotOpen {
		return fmt.Errorf("%w: %s slot %d", domain.ErrSlotOccupied, to.MatchID, to.Slot)
	}
	m.SlotStates[to.Slot] = domain.SlotVoid
	return a.settle(i)
}

// settle schedules a match once both slots are resolved, or completes it as a walkover.
func (a *advance) settle(i int) error {
	m := &a.b.Matches[i]
	if m.Status != domain.MatchPending {
		return nil
	}
	s0, s1 := m.SlotStates[0], m.SlotStates[1]
	if s0 == domain.SlotOpen || s1 == domain.SlotOpen {
		return nil
	}
	t := a.now
	if s0 == domain.SlotFilled && s1 == domain.SlotFilled {
		m.Status = domain.MatchScheduled
		m.ScheduledAt = &t
		return nil
	}
	m.Status = domain.MatchCompleted
	m.Walkover = true
	m.CompletedAt = &t
	switch {
	case s0 == domain.SlotFilled:
		m.WinnerID = m.Slots[0]
	case s1 == domain.SlotFilled:
		m.WinnerID = m.Slots[1]
	}
	return a.finish(i)
}

// finish routes the winner and loser of a completed match.
func (a *advance) finish(i int) error {
	m := a.b.Matches[i]
	if m.Side == domain.SideGroup {
		return nil
	}
	switch {
	case m.WinnerTo != nil:
		if err := a.route(*m.WinnerTo, m.WinnerID); err != nil {
			return err
		}
	case m.Side == domain.SideGrandFinal && m.Played() && m.WinnerID == m.Slots[1]:
		// The losers bracket champion handed the winners bracket champion a first loss.
		t := a.now
		a.b.add(domain.Match{
			ID:          matchID(domain.SideReset, 2, 0),
			Side:        domain.SideReset,
			Round:       2,
			Slots:       m.Slots,
			SlotStates:  [2]domain.SlotState{domain.SlotFilled, domain.SlotFilled},
			Status:      domain.MatchScheduled,
			ScheduledAt: &t,
		})
		reset := matchID(domain.SideReset, 2, 0)
		a.moved = append(a.moved, domain.MatchLink{MatchID: reset, Slot: 0}, domain.MatchLink{MatchID: reset, Slot: 1})
	default:
		a.b.ChampionID = m.WinnerID
		a.b.Completed = true
	}
	if m.LoserTo != nil {
		return a.route(*m.LoserTo, m.LoserID)
	}
	return nil
}

func (a *advance) route(to domain.MatchLink, participantID string) error {
	if participantID == "" {
		return a.void(to)
	}
	return a.fill(to, participantID)
}
