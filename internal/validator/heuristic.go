package validator

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ashureev/orientador/internal/domain"
)

// Heuristic is the I/O-free validation tier.
type Heuristic struct {
	cfg     Config
	evasive [][]string
}

// NewHeuristic builds a heuristic validator. Evasive phrases are pre-folded
// into word sequences.
func NewHeuristic(cfg Config) *Heuristic {
	h := &Heuristic{cfg: cfg}
	for _, p := range cfg.EvasivePhrases {
		if words := foldWords(p); len(words) > 0 {
			h.evasive = append(h.evasive, words)
		}
	}
	return h
}

// Validate implements Validator.
func (h *Heuristic) Validate(_ context.Context, _ domain.Question, answer string) Result {
	return h.check(answer)
}

func (h *Heuristic) check(answer string) Result {
	text := strings.ToLower(strings.TrimSpace(answer))

	if len([]rune(text)) < h.cfg.MinLength {
		return reject(ReasonTooShort)
	}
	if !strings.ContainsFunc(text, unicode.IsLetter) {
		return reject(ReasonNoLetters)
	}
	if hasRun(text, h.cfg.RepeatRunLength) {
		return reject(ReasonRepeated)
	}

	folded := fold(text)
	if !strings.ContainsAny(folded, "aeiou") && !strings.ContainsFunc(text, unicode.IsSpace) {
		return reject(ReasonNoVowels)
	}

	words := foldWords(text)
	if len(words) >= h.cfg.MinWordCountOverride {
		return accept(ReasonWordCount)
	}
	for _, phrase := range h.evasive {
		if containsSequence(words, phrase) {
			return reject(ReasonEvasive)
		}
	}
	return accept(ReasonHeuristics)
}

// hasRun reports whether any rune repeats n or more times consecutively.
func hasRun(s string, n int) bool {
	var prev rune
	count := 0
	for _, r := range s {
		if r == prev {
			count++
		} else {
			prev, count = r, 1
		}
		if count >= n {
			return true
		}
	}
	return false
}

// fold lowercases s and strips diacritics.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// foldWords splits s into accent-free lowercase words.
func foldWords(s string) []string {
	return strings.FieldsFunc(fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsSequence(words, seq []string) bool {
	if len(seq) == 0 || len(seq) > len(words) {
		return false
	}
outer:
	for i := 0; i+len(seq) <= len(words); i++ {
		for j := range seq {
			if words[i+j] != seq[j] {
				continue outer
			}
		}
		return true
	}
	return false
}
