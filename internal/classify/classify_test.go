package classify_test

import (
	"testing"

	"github.com/MrWong99/scriptvox/internal/classify"
	"github.com/MrWong99/scriptvox/pkg/types"
)

func TestClassify_Default(t *testing.T) {
	c := classify.Default()

	tests := []struct {
		text string
		want types.Classification
	}{
		{"yeah sure", types.Affirmative},
		{"Yes please", types.Affirmative},
		{"OKAY", types.Affirmative},
		{"of course I will", types.Affirmative},
		{"no thanks", types.Negative},
		{"Nope", types.Negative},
		{"I don't think so", types.Negative},
		{"not really", types.Negative},
		{"sorry what", types.Repeat},
		{"can you say that again", types.Repeat},
		{"I didn't catch that", types.Repeat},
		{"", types.Unrecognized},
		{"   ", types.Unrecognized},
		{"purple elephant", types.Unrecognized},
		// Substring matching: "na" inside "banana".
		{"banana", types.Negative},
		// Affirmative wins over negative when both match.
		{"yes no", types.Affirmative},
		// "know" contains "no", checked before repeat's "what".
		{"what do you know", types.Negative},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := c.Classify(tt.text); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestClassify_CustomKeywords(t *testing.T) {
	c := classify.New(classify.Keywords{
		Affirmative: []string{" Ja ", ""},
		Negative:    []string{"Nein"},
	})

	if got := c.Classify("ja gerne"); got != types.Affirmative {
		t.Errorf("Classify(ja gerne) = %q, want affirmative", got)
	}
	if got := c.Classify("NEIN danke"); got != types.Negative {
		t.Errorf("Classify(NEIN danke) = %q, want negative", got)
	}
	// No repeat keywords configured and the blank entry is ignored.
	if got := c.Classify("wie bitte"); got != types.Unrecognized {
		t.Errorf("Classify(wie bitte) = %q, want unrecognized", got)
	}
}

func TestMatch_ReturnsKeyword(t *testing.T) {
	class, kw := classify.Default().Match("well of course")
	if class != types.Affirmative || kw != "of course" {
		t.Errorf("Match = %q, %q; want affirmative, %q", class, kw, "of course")
	}
	if _, kw := classify.Default().Match("hmm"); kw != "" {
		t.Errorf("keyword for unrecognized text = %q, want empty", kw)
	}
}

func TestKeywords_Merge(t *testing.T) {
	merged := classify.DefaultKeywords().Merge(classify.Keywords{Repeat: []string{"pardon"}})
	if len(merged.Repeat) != 1 || merged.Repeat[0] != "pardon" {
		t.Errorf("Repeat = %v, want [pardon]", merged.Repeat)
	}
	if len(merged.Affirmative) != len(classify.DefaultKeywords().Affirmative) {
		t.Error("Merge must keep sets that are not overridden")
	}
}
