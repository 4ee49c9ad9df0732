// Package scoring computes per-answer points.
//
// Every function here is pure: the same configuration, question, submission and
// streak always produce the same breakdown, which is what makes recorded sessions
// auditable. All arithmetic is integer and truncates toward zero.
package scoring

import (
	"fmt"
	"time"

	"quiz-arena/internal/domain"
)

// defaultStreakCapMultiplier bounds the streak bonus when no explicit cap is configured.
const defaultStreakCapMultiplier = 10

// Validate rejects configurations that cannot be scored deterministically.
func Validate(cfg domain.ScoringConfig) error {
	switch {
	case cfg.BasePoints < 0:
		return fmt.Errorf("%w: base points must not be negative", domain.ErrInvalidSettings)
	case cfg.TimePenaltyPerSecond < 0:
		return fmt.Errorf("%w: time penalty must not be negative", domain.ErrInvalidSettings)
	case cfg.StreakBonusPerQuestion < 0 || cfg.MaxStreakBonus < 0:
		return fmt.Errorf("%w: streak bonus must not be negative", domain.ErrInvalidSettings)
	case cfg.SpeedBonusPoints < 0 || cfg.SpeedBonusThreshold < 0:
		return fmt.Errorf("%w: speed bonus must not be negative", domain.ErrInvalidSettings)
	case cfg.WrongAnswerPenalty < 0 || cfg.TimeoutPenalty < 0:
		return fmt.Errorf("%w: penalties are magnitudes and must not be negative", domain.ErrInvalidSettings)
	case cfg.PerfectScoreBonus < 0:
		return fmt.Errorf("%w: perfect bonus must not be negative", domain.ErrInvalidSettings)
	}
	return nil
}

// IsCorrect reports whether the selection is non-empty and every selected option is correct.
func IsCorrect(q domain.Question, optionIDs []string) bool {
	if len(optionIDs) == 0 {
		return false
	}
	for _, id := range optionIDs {
		opt, ok := q.Option(id)
		if !ok || !opt.Correct {
			return false
		}
	}
	return true
}

// Score computes the breakdown for one question. A nil submission is a timeout.
// limit is the question's time limit; elapsed time is clamped to it.
func Score(cfg domain.ScoringConfig, q domain.Question, sub *domain.AnswerSubmission, limit time.Duration, streak int) domain.ScoreBreakdown {
	if sub == nil || sub.Timeout {
		b := domain.ScoreBreakdown{Streak: 0}
		if cfg.EnableNegativeScoring {
			b.Penalty = cfg.TimeoutPenalty
			b.Points = -cfg.TimeoutPenalty
		}
		return b
	}
	if !IsCorrect(q, sub.OptionIDs) {
		b := domain.ScoreBreakdown{Streak: 0}
		if cfg.EnableNegativeScoring {
			b.Penalty = cfg.WrongAnswerPenalty
			b.Points = -cfg.WrongAnswerPenalty
		}
		return b
	}

	base := cfg.BasePoints
	if cfg.DividePointsMultiple {
		if n := q.CorrectCount(); n > 1 {
			base /= n
		}
	}

	elapsed := clampElapsed(sub.Elapsed, limit)
	decay := int(int64(cfg.TimePenaltyPerSecond) * elapsed.Milliseconds() / 1000)
	timeBonus := base - decay
	if timeBonus < 0 {
		timeBonus = 0
	}

	streak++
	streakBonus := 0
	if streak >= 2 {
		streakBonus = cfg.StreakBonusPerQuestion * (streak - 1)
		if ceiling := streakCap(cfg); streakBonus > ceiling {
			streakBonus = ceiling
		}
	}

	speedBonus := 0
	if cfg.SpeedBonusThreshold > 0 && elapsed <= cfg.SpeedBonusThreshold {
		speedBonus = cfg.SpeedBonusPoints
	}

	return domain.ScoreBreakdown{
		Base:        base,
		TimeBonus:   timeBonus,
		StreakBonus: streakBonus,
		SpeedBonus:  speedBonus,
		Points:      timeBonus + streakBonus + speedBonus,
		Streak:      streak,
	}
}

// PerfectBonus returns the one-off bonus for answering every question correctly.
func PerfectBonus(cfg domain.ScoringConfig, correct, totalQuestions int) int {
	if totalQuestions == 0 || correct != totalQuestions {
		return 0
	}
	return cfg.PerfectScoreBonus
}

// Apply adds delta to a cumulative score, flooring at zero unless negative totals are allowed.
func Apply(cfg domain.ScoringConfig, score, delta int) int {
	next := score + delta
	if next < 0 && !cfg.AllowNegativeTotal {
		return 0
	}
	return next
}

func streakCap(cfg domain.ScoringConfig) int {
	if cfg.MaxStreakBonus > 0 {
		return cfg.MaxStreakBonus
	}
	return cfg.StreakBonusPerQuestion * defaultStreakCapMultiplier
}

func clampElapsed(elapsed, limit time.Duration) time.Duration {
	if elapsed < 0 {
		return 0
	}
	if limit > 0 && elapsed > limit {
		return limit
	}
	return elapsed
}
