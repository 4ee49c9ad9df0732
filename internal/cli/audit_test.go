package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
)

const scenario = `
scoring:
  base_points: 1000
  time_penalty_per_second: 10
  perfect_score_bonus: 500
default_time_limit: 20s
questions:
  - id: q1
    prompt: "2 + 2?"
    options:
      - {id: a, text: "3"}
      - {id: b, text: "4", correct: true}
  - id: q2
    prompt: "Closest planet?"
    time_limit_seconds: 10
    options:
      - {id: a, text: Mercury, correct: true}
      - {id: b, text: Venus}
participants:
  - id: alice
    answers:
      - {options: [b], elapsed: 2s}
      - {options: [a], elapsed: 5s}
  - id: bob
    answers:
      - {options: [b], elapsed: 1s}
      - null
`

func TestAuditCommandPrintsBreakdown(t *testing.T) {
	color.NoColor = true
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(scenario), 0o600); err != nil {
		t.Fatalf("write scenario: %v", err)
	}

	var out bytes.Buffer
	cmd := NewAuditCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("audit: %v", err)
	}

	text := out.String()
	for _, want := range []string{"alice", "bob", "timeout"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output:\n%s", want, text)
		}
	}
	// alice: 980 + 950 + 500 perfect bonus, bob: 990 then a timeout
	var finals []string
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, "final score") {
			fields := strings.Fields(line)
			finals = append(finals, fields[len(fields)-1])
		}
	}
	if len(finals) != 2 || finals[0] != "2430" || finals[1] != "990" {
		t.Fatalf("unexpected final scores %v in output:\n%s", finals, text)
	}
}

func TestAuditRejectsInvalidScoring(t *testing.T) {
	err := runAudit(&bytes.Buffer{}, auditScenario{})
	if err == nil {
		t.Fatalf("expected validation error for empty scenario")
	}
}
