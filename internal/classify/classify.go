// Package classify maps a recognized utterance to one of the conversation
// intents (affirmative, negative, repeat) by literal keyword containment.
//
// Matching is a case-insensitive substring test, so short keywords match
// inside longer words ("na" matches "banana"). Categories are checked in a
// fixed priority order: affirmative, then negative, then repeat.
package classify

import (
	"strings"

	"github.com/MrWong99/scriptvox/pkg/types"
)

// Keywords lists the phrases that select each classification.
type Keywords struct {
	Affirmative []string `yaml:"affirmative"`
	Negative    []string `yaml:"negative"`
	Repeat      []string `yaml:"repeat"`
}

// DefaultKeywords returns the built-in keyword sets.
func DefaultKeywords() Keywords {
	return Keywords{
		Affirmative: []string{"yes", "yeah", "yep", "sure", "of course", "i agree", "ok", "okay"},
		Negative:    []string{"no", "na", "naa", "nope", "never", "not really", "i don't"},
		Repeat:      []string{"repeat", "again", "what", "sorry", "can you repeat", "didn't catch"},
	}
}

// Merge returns k with every non-empty set of override replacing its
// counterpart.
func (k Keywords) Merge(override Keywords) Keywords {
	if len(override.Affirmative) > 0 {
		k.Affirmative = override.Affirmative
	}
	if len(override.Negative) > 0 {
		k.Negative = override.Negative
	}
	if len(override.Repeat) > 0 {
		k.Repeat = override.Repeat
	}
	return k
}

type keywordSet struct {
	class    types.Classification
	keywords []string
}

// Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	sets [3]keywordSet
}

// New builds a Classifier from kw. Keywords are lowercased; blank entries are
// dropped.
func New(kw Keywords) *Classifier {
	return &Classifier{sets: [3]keywordSet{
		{class: types.Affirmative, keywords: normalize(kw.Affirmative)},
		{class: types.Negative, keywords: normalize(kw.Negative)},
		{class: types.Repeat, keywords: normalize(kw.Repeat)},
	}}
}

// Default returns a Classifier over [DefaultKeywords].
func Default() *Classifier { return New(DefaultKeywords()) }

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Classify returns the first category, in priority order, with a keyword
// contained in text. Empty or whitespace-only text is unrecognized.
func (c *Classifier) Classify(text string) types.Classification {
	class, _ := c.Match(text)
	return class
}

// Match reports the classification of text together with the keyword that
// selected it. The keyword is empty for unrecognized text.
func (c *Classifier) Match(text string) (types.Classification, string) {
	t := strings.ToLower(text)
	if strings.TrimSpace(t) == "" {
		return types.Unrecognized, ""
	}
	for _, set := range c.sets {
		for _, k := range set.keywords {
			if strings.Contains(t, k) {
				return set.class, k
			}
		}
	}
	return types.Unrecognized, ""
}
