package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/ashureev/orientador/internal/completion"
	"github.com/ashureev/orientador/internal/domain"
	"github.com/ashureev/orientador/internal/prompts"
)

// Generative asks the completion service to write questions from the student's interests.
type Generative struct {
	completer completion.Completer
	system    string
	logger    *slog.Logger
}

// NewGenerative creates a generative source.
func NewGenerative(completer completion.Completer, system string, logger *slog.Logger) *Generative {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generative{completer: completer, system: system, logger: logger}
}

// NeedsInterests implements Source.
func (g *Generative) NeedsInterests() bool { return true }

// Questions implements Source.
func (g *Generative) Questions(ctx context.Context, req Request) ([]domain.Question, error) {
	out, err := g.completer.Complete(ctx, completion.Request{
		System: g.system,
		User:   prompts.QuestionGeneration(req.Interests, req.Count),
		Op:     "questions",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	qs, err := ParseQuestions(out, req.Count)
	if err != nil {
		g.logger.Warn("generated questions rejected", "error", err, "raw_chars", len(out))
		return nil, err
	}
	return qs, nil
}

// ParseQuestions extracts exactly count questions from a completion reply.
func ParseQuestions(raw string, count int) ([]domain.Question, error) {
	body := isolateArray(cleanResponse(raw))
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON array in response", ErrGenerationFailed)
	}

	var items []domain.Question
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(body)
		if repairErr != nil {
			return nil, fmt.Errorf("%w: repair JSON: %v", ErrGenerationFailed, repairErr)
		}
		if err := json.Unmarshal([]byte(repaired), &items); err != nil {
			return nil, fmt.Errorf("%w: parse JSON: %v", ErrGenerationFailed, err)
		}
	}

	if len(items) != count {
		return nil, fmt.Errorf("%w: got %d questions, want %d", ErrGenerationFailed, len(items), count)
	}
	for i := range items {
		items[i].Key = strings.TrimSpace(items[i].Key)
		items[i].Text = strings.TrimSpace(items[i].Text)
		items[i].Dimension = ""
	}
	if err := domain.ValidateQuestions(items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	return items, nil
}

// cleanResponse drops markdown fences and commentary lines such as "**Nota: ...".
func cleanResponse(raw string) string {
	raw = strings.ReplaceAll(raw, "```json", "")
	raw = strings.ReplaceAll(raw, "```", "")

	lines := strings.Split(raw, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "**Nota") || strings.HasPrefix(trimmed, "Nota:") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func isolateArray(s string) string {
	start := strings.Index(s, "[")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(s, "]")
	if end < start {
		// Truncated reply; let the repair step close it.
		return s[start:]
	}
	return s[start : end+1]
}
