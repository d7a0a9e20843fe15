package quiz

import "testing"

func TestMatchChoice(t *testing.T) {
	q := Question{
		Prompt:  "Which fraction is larger?",
		Options: []string{"1/3", "3/4", "2/5", "1/2"},
		Answer:  "3/4",
	}

	tests := []struct {
		name   string
		answer string
		want   bool
	}{
		{"exact text", "3/4", true},
		{"text with whitespace", "  3/4  ", true},
		{"correct index", "2", true},
		{"wrong index", "1", false},
		{"wrong text", "1/2", false},
		{"out of range index", "9", false},
		{"empty", "", false},
		{"case insensitive", "3/4", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchChoice(tt.answer, q); got != tt.want {
				t.Errorf("matchChoice(%q) = %v, want %v", tt.answer, got, tt.want)
			}
		})
	}
}

func TestMatchChoice_NumericOptionsAreLiteral(t *testing.T) {
	q := Question{
		Prompt:  "What is 2 × 3?",
		Options: []string{"6", "9", "3"},
		Answer:  "6",
	}

	tests := []struct {
		name   string
		answer string
		want   bool
	}{
		{"literal correct value", "6", true},
		{"literal wrong value", "9", false},
		{"index of the correct option is not an answer", "1", false},
		{"index of a wrong option is not an answer", "2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchChoice(tt.answer, q); got != tt.want {
				t.Errorf("matchChoice(%q) = %v, want %v", tt.answer, got, tt.want)
			}
		})
	}
}

func TestMatchChoice_DecimalOptionsDisableIndexForm(t *testing.T) {
	q := Question{
		Options: []string{"0.5", "0.25", "0.75"},
		Answer:  "0.25",
	}
	if matchChoice("2", q) {
		t.Error("index form must not apply when option texts are numeric")
	}
	if !matchChoice("0.25", q) {
		t.Error("literal numeric answer should match")
	}
}

func TestMatchChoice_CaseInsensitiveText(t *testing.T) {
	q := Question{
		Options: []string{"Paris", "London", "Rome"},
		Answer:  "Paris",
	}
	if !matchChoice("paris", q) {
		t.Error("matchChoice should be case-insensitive")
	}
}
