package session

import "github.com/MrWong99/scriptvox/pkg/types"

// State is a step of one speak-and-listen turn.
type State int

const (
	StateIdle State = iota
	StateSynthesizing
	StateRecognizing
	StateClassifying
	StateAdvancing
	StateExhausted
	StateBlocked
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateSynthesizing: "synthesizing",
	StateRecognizing:  "recognizing",
	StateClassifying:  "classifying",
	StateAdvancing:    "advancing",
	StateExhausted:    "exhausted",
	StateBlocked:      "blocked",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Transition is the script move computed from one classified reply.
type Transition struct {
	Classification types.Classification
	PreviousLine   int
	NextLine       int

	// Terminal is set when the conversation cannot continue: the script is
	// exhausted or the caller declined.
	Terminal bool

	// Ended is set when the caller declined. NextLine equals PreviousLine.
	Ended bool
}

// Advanced reports whether the transition moves the script forward.
func (t Transition) Advanced() bool { return t.NextLine != t.PreviousLine }

// outcome returns the metric label for t.
func (t Transition) outcome() string {
	switch {
	case t.Ended:
		return "ended"
	case t.Advanced():
		return "advanced"
	default:
		return "held"
	}
}

// Next computes the transition for a reply classified as c while the bot sits
// at line prev of a script with length lines.
//
// Affirmative moves one line forward. Negative ends the conversation and
// keeps the position so a restart does not skip a line. Repeat and
// unrecognized hold the position; replaying the prompt is left to the caller.
func Next(c types.Classification, prev, length int) Transition {
	t := Transition{Classification: c, PreviousLine: prev, NextLine: prev}
	switch c {
	case types.Affirmative:
		t.NextLine = prev + 1
		t.Terminal = t.NextLine >= length
	case types.Negative:
		t.Terminal = true
		t.Ended = true
	}
	return t
}
