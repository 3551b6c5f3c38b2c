package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is a position in the interview state machine.
type State string

const (
	StateAwaitingName        State = "awaiting_name"
	StateCollectingInterests State = "collecting_interests"
	StateAnsweringQuestions  State = "answering_questions"
	StateFinalizing          State = "finalizing"
	StateAwaitingFollowUp    State = "awaiting_follow_up"
	StateTerminated          State = "terminated"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateAwaitingName, StateCollectingInterests, StateAnsweringQuestions,
		StateFinalizing, StateAwaitingFollowUp, StateTerminated:
		return true
	}
	return false
}

// Sender identifies who wrote a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Question is one interview prompt. Text never changes after creation.
type Question struct {
	Key       string `json:"key" yaml:"key"`
	Text      string `json:"text" yaml:"text"`
	Dimension string `json:"dimension,omitempty" yaml:"-"`
}

// Answer is a recorded answer, kept in question order.
type Answer struct {
	QuestionKey string `json:"question_key"`
	Text        string `json:"text"`
	// Forced marks an answer accepted after the reformulation cap was reached.
	Forced bool `json:"forced,omitempty"`
}

// Message is one entry of the append-only conversation history.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one user's complete interview state from name capture to recommendation.
type Session struct {
	UserID         string
	State          State
	HasName        bool
	Interests      string
	Questions      []Question
	AnswerIndex    int
	Answers        []Answer
	RetryCount     int
	History        []Message
	Terminated     bool
	Recommendation string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Owner is the client identity that created the session. Only it may resume it.
	Owner string
}

// SessionSummary is the listing form of a stored session.
type SessionSummary struct {
	UserID      string    `json:"user_id"`
	State       State     `json:"state"`
	Terminated  bool      `json:"terminated"`
	AnswerIndex int       `json:"answer_index"`
	Total       int       `json:"total_questions"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewSession returns an empty session waiting for the user's name.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		State:     StateAwaitingName,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendMessage adds a message to the history and returns it.
func (s *Session) AppendMessage(sender Sender, text string) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		CreatedAt: time.Now(),
	}
	s.History = append(s.History, msg)
	s.UpdatedAt = msg.CreatedAt
	return msg
}

// SetQuestions fixes the question list for the session. It can only happen once.
func (s *Session) SetQuestions(questions []Question) error {
	if s.Terminated {
		return ErrSessionTerminated
	}
	if len(s.Questions) > 0 {
		return ErrQuestionsAlreadySet
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}
	if err := ValidateQuestions(questions); err != nil {
		return err
	}
	s.Questions = append([]Question(nil), questions...)
	s.AnswerIndex = 0
	s.RetryCount = 0
	s.UpdatedAt = time.Now()
	return nil
}

// CurrentQuestion returns the question under the cursor.
func (s *Session) CurrentQuestion() (Question, bool) {
	if s.AnswerIndex < 0 || s.AnswerIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.AnswerIndex], true
}

// RecordAnswer stores the answer for the current question and advances the cursor.
func (s *Session) RecordAnswer(text string, forced bool) (Question, error) {
	if s.Terminated {
		return Question{}, ErrSessionTerminated
	}
	q, ok := s.CurrentQuestion()
	if !ok {
		return Question{}, ErrNoCurrentQuestion
	}
	s.Answers = append(s.Answers, Answer{QuestionKey: q.Key, Text: text, Forced: forced})
	s.AnswerIndex++
	s.RetryCount = 0
	s.UpdatedAt = time.Now()
	return q, nil
}

// Remaining returns how many questions are still unanswered.
func (s *Session) Remaining() int {
	return len(s.Questions) - s.AnswerIndex
}

// AnswerFor returns the recorded answer for a question key.
func (s *Session) AnswerFor(key string) (Answer, bool) {
	for _, a := range s.Answers {
		if a.QuestionKey == key {
			return a, true
		}
	}
	return Answer{}, false
}

// Terminate marks the session finished with the given recommendation.
func (s *Session) Terminate(recommendation string, next State) error {
	if s.Terminated {
		return ErrSessionTerminated
	}
	s.Recommendation = recommendation
	s.Terminated = true
	s.State = next
	s.UpdatedAt = time.Now()
	return nil
}

// FirstName returns the first word of the user's name.
func (s *Session) FirstName() string {
	for i, r := range s.UserID {
		if r == ' ' {
			return s.UserID[:i]
		}
	}
	return s.UserID
}

// Summary returns the listing form of the session.
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		UserID:      s.UserID,
		State:       s.State,
		Terminated:  s.Terminated,
		AnswerIndex: s.AnswerIndex,
		Total:       len(s.Questions),
		UpdatedAt:   s.UpdatedAt,
	}
}

// Validate checks the structural invariants of a session, typically after loading a snapshot.
func (s *Session) Validate() error {
	if !s.State.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidSnapshot, s.State)
	}
	if s.AnswerIndex < 0 || s.AnswerIndex > len(s.Questions) {
		return fmt.Errorf("%w: answer index %d out of range [0,%d]", ErrInvalidSnapshot, s.AnswerIndex, len(s.Questions))
	}
	if err := ValidateQuestions(s.Questions); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if len(s.Answers) != s.AnswerIndex {
		return fmt.Errorf("%w: %d answers for answer index %d", ErrInvalidSnapshot, len(s.Answers), s.AnswerIndex)
	}
	for i, a := range s.Answers {
		if a.QuestionKey != s.Questions[i].Key {
			return fmt.Errorf("%w: answer %d keyed %q, expected %q", ErrInvalidSnapshot, i, a.QuestionKey, s.Questions[i].Key)
		}
	}
	if s.HasName && s.UserID == "" {
		return fmt.Errorf("%w: named session without user id", ErrInvalidSnapshot)
	}
	return nil
}

// ValidateQuestions checks that every question has a non-empty key and text and keys are unique.
func ValidateQuestions(questions []Question) error {
	seen := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		if q.Key == "" {
			return fmt.Errorf("question %d: %w", i, ErrBlankQuestionKey)
		}
		if q.Text == "" {
			return fmt.Errorf("question %q: %w", q.Key, ErrBlankQuestionText)
		}
		if _, dup := seen[q.Key]; dup {
			return fmt.Errorf("question %q: %w", q.Key, ErrDuplicateQuestionKey)
		}
		seen[q.Key] = struct{}{}
	}
	return nil
}
