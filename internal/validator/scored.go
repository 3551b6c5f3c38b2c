package validator

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/ashureev/orientador/internal/completion"
	"github.com/ashureev/orientador/internal/domain"
	"github.com/ashureev/orientador/internal/prompts"
)

var firstInteger = regexp.MustCompile(`-?\d+`)

// Scored runs the heuristic tier first and then asks the completion service to
// rate answers that pass it. Any failure to obtain a score counts as score_min.
type Scored struct {
	cfg       Config
	heuristic *Heuristic
	completer completion.Completer
	system    string
	logger    *slog.Logger
}

// NewScored builds a two-tier validator.
func NewScored(cfg Config, completer completion.Completer, system string, logger *slog.Logger) *Scored {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scored{
		cfg:       cfg,
		heuristic: NewHeuristic(cfg),
		completer: completer,
		system:    system,
		logger:    logger,
	}
}

// Validate implements Validator.
func (s *Scored) Validate(ctx context.Context, q domain.Question, answer string) Result {
	if res := s.heuristic.check(answer); !res.Usable {
		return res
	}

	score := s.score(ctx, q, answer)
	res := Result{Score: score, Scored: true}
	switch {
	case score >= s.cfg.ScoreThreshold:
		res.Usable = true
		res.Action = ActionAccept
		res.Reason = ReasonHeuristics
	case score <= s.cfg.ReformulateAtOrBelow || !s.cfg.ElaborateOnBoundary:
		res.Action = ActionReformulate
		res.Reason = ReasonLowScore
	default:
		res.Action = ActionElaborate
		res.Reason = ReasonLowScore
	}
	return res
}

func (s *Scored) score(ctx context.Context, q domain.Question, answer string) int {
	out, err := s.completer.Complete(ctx, completion.Request{
		System: s.system,
		User:   prompts.Score(q, answer, s.cfg.ScoreMin, s.cfg.ScoreMax),
		Op:     "score",
	})
	if err != nil {
		s.logger.Warn("answer scoring failed", "question_key", q.Key, "error", err)
		return s.cfg.ScoreMin
	}
	return ParseScore(out, s.cfg.ScoreMin, s.cfg.ScoreMax)
}

// ParseScore extracts the first integer in reply. Missing or out-of-range values
// yield minScore.
func ParseScore(reply string, minScore, maxScore int) int {
	m := firstInteger.FindString(reply)
	if m == "" {
		return minScore
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < minScore || n > maxScore {
		return minScore
	}
	return n
}
