package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/scoring"
)

// auditScenario is a recorded game replayed through the scoring engine.
type auditScenario struct {
	Scoring          domain.ScoringConfig `yaml:"scoring"`
	DefaultTimeLimit time.Duration        `yaml:"default_time_limit"`
	Questions        []domain.Question    `yaml:"questions"`
	Participants     []auditParticipant   `yaml:"participants"`
}

type auditParticipant struct {
	ID string `yaml:"id"`
	// A null entry is a timeout.
	Answers []*scoring.ReplayAnswer `yaml:"answers"`
}

// NewAuditCmd recomputes scores for a YAML scenario and prints the breakdown.
func NewAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <scenario.yaml>",
		Short: "Replay a scoring scenario and print each participant's breakdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var sc auditScenario
			if err := yaml.Unmarshal(data, &sc); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			return runAudit(cmd.OutOrStdout(), sc)
		},
	}
}

func runAudit(out io.Writer, sc auditScenario) error {
	if err := scoring.Validate(sc.Scoring); err != nil {
		return err
	}
	if len(sc.Questions) == 0 {
		return fmt.Errorf("scenario has no questions")
	}
	if sc.DefaultTimeLimit <= 0 {
		sc.DefaultTimeLimit = 20 * time.Second
	}

	correct := color.New(color.FgGreen).SprintFunc()
	wrong := color.New(color.FgRed).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, p := range sc.Participants {
		res := scoring.Replay(sc.Scoring, sc.DefaultTimeLimit, sc.Questions, p.Answers)
		fmt.Fprintf(w, "%s\n", bold(p.ID))
		fmt.Fprintln(w, "  question\tresult\ttime\tstreak\tspeed\tpenalty\tpoints\ttotal")
		for _, line := range res.Lines {
			result := correct("correct")
			switch {
			case line.Timeout:
				result = wrong("timeout")
			case !line.Correct:
				result = wrong("wrong")
			}
			b := line.Breakdown
			fmt.Fprintf(w, "  %s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
				line.QuestionID, result, b.TimeBonus, b.StreakBonus, b.SpeedBonus, b.Penalty, b.Points, line.Total)
		}
		fmt.Fprintf(w, "  perfect bonus\t%d\n", res.PerfectBonus)
		fmt.Fprintf(w, "  best streak\t%d\n", res.BestStreak)
		fmt.Fprintf(w, "  final score\t%d\n", res.Total)
	}
	return w.Flush()
}
