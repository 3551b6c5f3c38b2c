// Package validator decides whether a free-text answer is usable for the
// interview and, when it is not, how the dialogue should react.
package validator

import (
	"context"

	"github.com/ashureev/orientador/internal/domain"
)

// Action tells the dialogue what to do with an answer.
type Action string

const (
	ActionAccept      Action = "accept"
	ActionReformulate Action = "reformulate"
	ActionElaborate   Action = "elaborate"
)

// Rejection reasons reported by the heuristic tier.
const (
	ReasonTooShort   = "too_short"
	ReasonNoLetters  = "no_letters"
	ReasonRepeated   = "repeated_characters"
	ReasonNoVowels   = "no_vowels"
	ReasonEvasive    = "evasive"
	ReasonLowScore   = "low_score"
	ReasonWordCount  = "word_count_override"
	ReasonHeuristics = "passed_heuristics"
)

// Result is the verdict for one answer.
type Result struct {
	Usable bool
	Score  int
	Scored bool
	Reason string
	Action Action
}

// Validator judges an answer against the question it responds to.
type Validator interface {
	Validate(ctx context.Context, q domain.Question, answer string) Result
}

func accept(reason string) Result {
	return Result{Usable: true, Reason: reason, Action: ActionAccept}
}

func reject(reason string) Result {
	return Result{Usable: false, Reason: reason, Action: ActionReformulate}
}
