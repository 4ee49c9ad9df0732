package scoring

import (
	"time"

	"quiz-arena/internal/domain"
)

// ReplayAnswer is one recorded answer for replay. A nil entry in the
// answers slice passed to Replay means the participant timed out.
type ReplayAnswer struct {
	OptionIDs []string      `yaml:"options" json:"optionIds"`
	Elapsed   time.Duration `yaml:"elapsed" json:"elapsed"`
}

// ReplayLine is the recomputed outcome of one question.
type ReplayLine struct {
	QuestionID string
	Correct    bool
	Timeout    bool
	Breakdown  domain.ScoreBreakdown
	Total      int
}

// ReplayResult is a full participant history recomputed from scratch.
type ReplayResult struct {
	Lines        []ReplayLine
	PerfectBonus int
	Total        int
	BestStreak   int
}

// Replay rescores a participant's answers question by question, in order.
// answers[i] belongs to questions[i]; missing trailing answers count as timeouts.
func Replay(cfg domain.ScoringConfig, defaultLimit time.Duration, questions []domain.Question, answers []*ReplayAnswer) ReplayResult {
	var res ReplayResult
	streak, correct := 0, 0
	for i, q := range questions {
		var sub *domain.AnswerSubmission
		if i < len(answers) && answers[i] != nil {
			sub = &domain.AnswerSubmission{
				QuestionID: q.ID,
				OptionIDs:  answers[i].OptionIDs,
				Elapsed:    answers[i].Elapsed,
			}
		}
		b := Score(cfg, q, sub, q.TimeLimit(defaultLimit), streak)
		streak = b.Streak
		if streak > res.BestStreak {
			res.BestStreak = streak
		}
		ok := sub != nil && IsCorrect(q, sub.OptionIDs)
		if ok {
			correct++
		}
		res.Total = Apply(cfg, res.Total, b.Points)
		res.Lines = append(res.Lines, ReplayLine{
			QuestionID: q.ID,
			Correct:    ok,
			Timeout:    sub == nil,
			Breakdown:  b,
			Total:      res.Total,
		})
	}
	res.PerfectBonus = PerfectBonus(cfg, correct, len(questions))
	res.Total = Apply(cfg, res.Total, res.PerfectBonus)
	return res
}
