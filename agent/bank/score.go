package bank

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"

	contractx "github.com/ritobank/assistant/agent/contract"
)

var ruleHeader = []string{"min_score", "max_score", "max_limit"}

type scoreBracket struct {
	minScore int
	maxScore int
	maxLimit float64
}

// RuleTable maps a credit score to the maximum limit the bank allows,
// loaded from a CSV of inclusive score brackets.
type RuleTable struct {
	brackets []scoreBracket
}

func NewRuleTable(path string) (*RuleTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open score rules: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read score rules: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("score rules %s: no brackets", path)
	}

	t := &RuleTable{}
	for i, row := range rows[1:] {
		if len(row) != len(ruleHeader) {
			return nil, fmt.Errorf("score rules %s: row %d has %d columns", path, i+2, len(row))
		}
		minScore, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, fmt.Errorf("score rules %s: row %d min_score: %w", path, i+2, err)
		}
		maxScore, err := strconv.Atoi(row[1])
		if err != nil {
			return nil, fmt.Errorf("score rules %s: row %d max_score: %w", path, i+2, err)
		}
		maxLimit, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("score rules %s: row %d max_limit: %w", path, i+2, err)
		}
		t.brackets = append(t.brackets, scoreBracket{minScore: minScore, maxScore: maxScore, maxLimit: maxLimit})
	}
	return t, nil
}

// MaxAllowed returns the limit ceiling for a score. The second return is
// false when no bracket covers the score.
func (t *RuleTable) MaxAllowed(score int) (float64, bool) {
	for _, b := range t.brackets {
		if score >= b.minScore && score <= b.maxScore {
			return b.maxLimit, true
		}
	}
	return 0, false
}

// InterviewScore computes the credit score from the interview answers.
func InterviewScore(form contractx.InterviewForm) int {
	raw := (form.Income/(form.Expenses+1))*30 +
		employmentWeight(form.EmploymentType) +
		dependentsWeight(form.Dependents) +
		debtWeight(form.HasDebt)
	if raw < 0 {
		raw = 0
	}
	if raw > 1000 {
		raw = 1000
	}
	return int(math.Round(raw))
}

func employmentWeight(employment string) float64 {
	switch employment {
	case contractx.EmploymentFormal:
		return 300
	case contractx.EmploymentSelfEmployed:
		return 200
	default:
		return 0
	}
}

func dependentsWeight(dependents int) float64 {
	switch dependents {
	case 0:
		return 100
	case 1:
		return 80
	case 2:
		return 60
	default:
		return 30
	}
}

func debtWeight(hasDebt bool) float64 {
	if hasDebt {
		return -100
	}
	return 100
}
