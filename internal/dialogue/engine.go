// Package dialogue drives the vocational interview: the per-session state
// machine and the registry of live sessions.
package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ashureev/orientador/internal/completion"
	"github.com/ashureev/orientador/internal/domain"
	"github.com/ashureev/orientador/internal/metrics"
	"github.com/ashureev/orientador/internal/prompts"
	"github.com/ashureev/orientador/internal/questions"
	"github.com/ashureev/orientador/internal/sink"
	"github.com/ashureev/orientador/internal/store"
	"github.com/ashureev/orientador/internal/validator"
)

// EngineConfig holds interview policy.
type EngineConfig struct {
	QuestionCount int
	// MaxRetries caps reformulations per question; 0 disables the cap.
	MaxRetries   int
	FollowUp     bool
	SystemPrompt string
}

// Deps are the collaborators of an Engine. Metrics and Logger may be nil.
type Deps struct {
	Completer completion.Completer
	Validator validator.Validator
	Source    questions.Source
	Repo      store.Repository
	Sink      sink.Sink
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Engine applies one user turn to a session. It is stateless between calls;
// callers must serialize turns per session.
type Engine struct {
	cfg       EngineConfig
	completer completion.Completer
	validator validator.Validator
	source    questions.Source
	repo      store.Repository
	sink      sink.Sink
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig, deps Deps) (*Engine, error) {
	if deps.Completer == nil || deps.Validator == nil || deps.Source == nil || deps.Repo == nil || deps.Sink == nil {
		return nil, errors.New("dialogue engine requires completer, validator, source, repository and sink")
	}
	if cfg.QuestionCount <= 0 {
		return nil, errors.New("question count must be positive")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{
		cfg:       cfg,
		completer: deps.Completer,
		validator: deps.Validator,
		source:    deps.Source,
		repo:      deps.Repo,
		sink:      deps.Sink,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}, nil
}

// turn collects the bot messages emitted while handling one input.
type turn struct {
	s    *domain.Session
	sent []domain.Message
}

func (t *turn) say(text string) {
	t.sent = append(t.sent, t.s.AppendMessage(domain.SenderBot, text))
}

// Greet opens a fresh session. Pooled questions are drawn here.
func (e *Engine) Greet(ctx context.Context, s *domain.Session) []domain.Message {
	t := &turn{s: s}
	if !e.source.NeedsInterests() && len(s.Questions) == 0 {
		if err := e.loadQuestions(ctx, s); err != nil {
			e.logger.Warn("question draw at start failed", "error", err)
		}
	}
	t.say(prompts.Greeting)
	return t.sent
}

// Handle applies a user message and returns the bot replies it produced.
// Terminated sessions without follow-up ignore input.
func (e *Engine) Handle(ctx context.Context, s *domain.Session, text string) []domain.Message {
	text = strings.TrimSpace(text)
	if text == "" || s.State == domain.StateTerminated {
		return nil
	}

	t := &turn{s: s}
	s.AppendMessage(domain.SenderUser, text)

	switch s.State {
	case domain.StateAwaitingName:
		e.captureName(ctx, t, text)
	case domain.StateCollectingInterests:
		interests := text
		if isRetryKeyword(text) && s.Interests != "" {
			interests = s.Interests
		}
		e.collectInterests(ctx, t, interests)
	case domain.StateAnsweringQuestions:
		e.answer(ctx, t, text)
	case domain.StateFinalizing:
		e.finalize(ctx, t)
	case domain.StateAwaitingFollowUp:
		e.followUp(ctx, t, text)
	}
	e.checkpoint(ctx, s)
	return t.sent
}

// Retry repeats the last failed step without new user input.
func (e *Engine) Retry(ctx context.Context, s *domain.Session) []domain.Message {
	t := &turn{s: s}
	switch s.State {
	case domain.StateAwaitingName:
		t.say(prompts.Greeting)
	case domain.StateCollectingInterests:
		if s.Interests == "" && e.source.NeedsInterests() {
			t.say(prompts.Welcome(s.FirstName()))
			break
		}
		e.collectInterests(ctx, t, s.Interests)
	case domain.StateAnsweringQuestions:
		if q, ok := s.CurrentQuestion(); ok {
			t.say(q.Text)
		}
	case domain.StateFinalizing:
		e.finalize(ctx, t)
	}
	e.checkpoint(ctx, s)
	return t.sent
}

// Resumed greets a student whose stored session was reattached and repeats
// the pending prompt.
func (e *Engine) Resumed(ctx context.Context, s *domain.Session) []domain.Message {
	t := &turn{s: s}
	if s.Terminated {
		return nil
	}
	t.say(prompts.Resumed(s.FirstName()))
	switch s.State {
	case domain.StateCollectingInterests:
		if s.Interests == "" {
			t.say(prompts.Welcome(s.FirstName()))
		} else {
			t.say(prompts.GenerationFailed)
		}
	case domain.StateAnsweringQuestions:
		if q, ok := s.CurrentQuestion(); ok {
			t.say(q.Text)
		}
	case domain.StateFinalizing:
		t.say(prompts.RecommendationFail)
	}
	e.checkpoint(ctx, s)
	return t.sent
}

func (e *Engine) captureName(ctx context.Context, t *turn, text string) {
	name, ok := ExtractName(text)
	if !ok {
		t.say(prompts.NameRetry)
		return
	}
	s := t.s
	s.UserID = name
	s.HasName = true
	e.metrics.IncInterviewStarted()
	e.logger.Info("interview started", "user_id", name)

	if e.source.NeedsInterests() {
		s.State = domain.StateCollectingInterests
		t.say(prompts.Welcome(s.FirstName()))
		return
	}

	t.say(prompts.WelcomePooled(s.FirstName()))
	if len(s.Questions) == 0 {
		if err := e.loadQuestions(ctx, s); err != nil {
			s.State = domain.StateCollectingInterests
			t.say(prompts.GenerationFailed)
			return
		}
	}
	s.State = domain.StateAnsweringQuestions
	q, _ := s.CurrentQuestion()
	t.say(q.Text)
}

func (e *Engine) collectInterests(ctx context.Context, t *turn, interests string) {
	s := t.s
	s.Interests = interests
	t.say(prompts.PreparingQuestions)
	if err := e.loadQuestions(ctx, s); err != nil {
		t.say(prompts.GenerationFailed)
		return
	}
	s.State = domain.StateAnsweringQuestions
	q, _ := s.CurrentQuestion()
	t.say(q.Text)
}

func (e *Engine) loadQuestions(ctx context.Context, s *domain.Session) error {
	qs, err := e.source.Questions(ctx, questions.Request{Interests: s.Interests, Count: e.cfg.QuestionCount})
	if err != nil {
		e.logger.Warn("question source failed", "user_id", s.UserID, "error", err)
		return err
	}
	if err := s.SetQuestions(qs); err != nil {
		e.logger.Warn("question list rejected", "user_id", s.UserID, "error", err)
		return err
	}
	return nil
}

func (e *Engine) answer(ctx context.Context, t *turn, text string) {
	s := t.s
	q, ok := s.CurrentQuestion()
	if !ok {
		s.State = domain.StateFinalizing
		e.finalize(ctx, t)
		return
	}

	res := e.validator.Validate(ctx, q, text)
	forced := false
	if !res.Usable {
		s.RetryCount++
		if e.cfg.MaxRetries > 0 && s.RetryCount > e.cfg.MaxRetries {
			forced = true
		} else {
			e.metrics.IncAnswer(res.Reason)
			e.logger.Debug("answer rejected", "user_id", s.UserID, "question_key", q.Key,
				"reason", res.Reason, "score", res.Score, "retry", s.RetryCount)
			if res.Action == validator.ActionElaborate {
				t.say(prompts.Elaborate(q.Text))
			} else {
				t.say(e.reformulate(ctx, q))
			}
			return
		}
	}

	if _, err := s.RecordAnswer(text, forced); err != nil {
		e.logger.Error("record answer failed", "user_id", s.UserID, "error", err)
		return
	}
	if forced {
		e.metrics.IncAnswer("forced")
	} else {
		e.metrics.IncAnswer("accepted")
	}
	e.checkpoint(ctx, s)

	next, more := s.CurrentQuestion()
	if more {
		e.transition(ctx, t, q, text, next)
		return
	}

	t.say(prompts.Analyzing)
	s.State = domain.StateFinalizing
	e.checkpoint(ctx, s)
	e.finalize(ctx, t)
}

func (e *Engine) reformulate(ctx context.Context, q domain.Question) string {
	out, err := e.completer.Complete(ctx, completion.Request{
		System: e.cfg.SystemPrompt,
		User:   prompts.Reformulation(q),
		Op:     "reformulation",
	})
	if err != nil || strings.TrimSpace(out) == "" {
		return q.Text
	}
	return strings.TrimSpace(out)
}

func (e *Engine) transition(ctx context.Context, t *turn, answered domain.Question, answer string, next domain.Question) {
	out, err := e.completer.Complete(ctx, completion.Request{
		System: e.cfg.SystemPrompt,
		User:   prompts.Transition(answered, answer, next),
		Op:     "transition",
	})
	if err != nil || strings.TrimSpace(out) == "" {
		t.say(prompts.TransitionFallback)
		t.say(next.Text)
		return
	}
	t.say(strings.TrimSpace(out))
}

func (e *Engine) finalize(ctx context.Context, t *turn) {
	s := t.s
	out, err := e.completer.Complete(ctx, completion.Request{
		System: e.cfg.SystemPrompt,
		User:   prompts.Recommendation(s.UserID, s.Questions, s.Answers),
		Op:     "recommendation",
	})
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		e.logger.Warn("recommendation failed", "user_id", s.UserID, "error", err)
		t.say(prompts.RecommendationFail)
		return
	}

	t.say(out)
	next := domain.StateTerminated
	if e.cfg.FollowUp {
		next = domain.StateAwaitingFollowUp
	}
	if err := s.Terminate(out, next); err != nil {
		e.logger.Error("terminate session failed", "user_id", s.UserID, "error", err)
		return
	}
	e.checkpoint(ctx, s)
	e.metrics.IncInterviewCompleted()
	e.logger.Info("interview completed", "user_id", s.UserID, "answers", len(s.Answers))

	if err := e.sink.Deliver(ctx, sink.Result{UserID: s.UserID, Recommendation: out}); err != nil {
		e.logger.Error("result sink rejected recommendation", "user_id", s.UserID, "error", err)
	}
}

func (e *Engine) followUp(ctx context.Context, t *turn, text string) {
	out, err := e.completer.Complete(ctx, completion.Request{
		System: e.cfg.SystemPrompt,
		User:   prompts.FollowUp(text),
		Op:     "follow_up",
	})
	if err != nil || strings.TrimSpace(out) == "" {
		t.say(prompts.FollowUpFallback)
		return
	}
	t.say(strings.TrimSpace(out))
}

// checkpoint saves named sessions. Failures are logged and counted; the
// conversation continues in memory.
func (e *Engine) checkpoint(ctx context.Context, s *domain.Session) {
	if !s.HasName {
		return
	}
	if err := e.repo.SaveSession(ctx, s); err != nil {
		e.metrics.IncPersistenceFailure("save")
		e.logger.Error("checkpoint failed", "user_id", s.UserID, "state", s.State, "error", err)
	}
}
