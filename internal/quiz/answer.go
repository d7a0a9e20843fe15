package quiz

import (
	"strconv"
	"strings"
)

// matchChoice compares a learner's answer against a multiple-choice
// question. The learner may answer with the option text (case-insensitive,
// whitespace-trimmed) or a 1-based option index. Index form is only
// honored when no option text is itself numeric: with options like
// {"6","9","3"} the answer "1" means the literal value 1, never option
// one.
func matchChoice(learnerAnswer string, q Question) bool {
	learnerAnswer = strings.TrimSpace(learnerAnswer)
	if learnerAnswer == "" {
		return false
	}

	if idx, err := strconv.Atoi(learnerAnswer); err == nil &&
		idx >= 1 && idx <= len(q.Options) && !hasNumericOption(q.Options) {
		return strings.EqualFold(
			strings.TrimSpace(q.Options[idx-1]),
			strings.TrimSpace(q.Answer),
		)
	}

	return strings.EqualFold(learnerAnswer, strings.TrimSpace(q.Answer))
}

func hasNumericOption(options []string) bool {
	for _, opt := range options {
		if _, err := strconv.ParseFloat(strings.TrimSpace(opt), 64); err == nil {
			return true
		}
	}
	return false
}
