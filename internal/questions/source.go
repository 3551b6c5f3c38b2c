// Package questions produces the fixed question list for an interview.
package questions

import (
	"context"
	"errors"

	"github.com/ashureev/orientador/internal/domain"
)

var (
	ErrGenerationFailed = errors.New("question generation failed")
	ErrPoolTooSmall     = errors.New("question pool smaller than requested count")
)

// Request describes what the interview needs from a Source.
type Request struct {
	Interests string
	Count     int
}

// Source produces exactly Count questions with unique keys, or an error.
type Source interface {
	Questions(ctx context.Context, req Request) ([]domain.Question, error)
	// NeedsInterests reports whether the source uses the student's interests,
	// which adds a collecting_interests step to the interview.
	NeedsInterests() bool
}
