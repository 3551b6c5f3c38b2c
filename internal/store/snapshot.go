package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ashureev/orientador/internal/domain"
)

// row is the flattened form of a session shared by both backends. Collections
// are stored as JSON text.
type row struct {
	UserID         string
	Owner          string
	State          string
	HasName        bool
	Terminated     bool
	Interests      string
	AnswerIndex    int
	RetryCount     int
	QuestionsJSON  []byte
	AnswersJSON    []byte
	HistoryJSON    []byte
	Recommendation string
	CreatedAt      int64
	UpdatedAt      int64
}

func encodeSession(s *domain.Session) (row, error) {
	if s.UserID == "" {
		return row{}, fmt.Errorf("session has no user id")
	}
	questions, err := marshalList(s.Questions)
	if err != nil {
		return row{}, fmt.Errorf("encode questions: %w", err)
	}
	answers, err := marshalList(s.Answers)
	if err != nil {
		return row{}, fmt.Errorf("encode answers: %w", err)
	}
	history, err := marshalList(s.History)
	if err != nil {
		return row{}, fmt.Errorf("encode history: %w", err)
	}

	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	created := s.CreatedAt
	if created.IsZero() {
		created = updated
	}

	return row{
		UserID:         s.UserID,
		Owner:          s.Owner,
		State:          string(s.State),
		HasName:        s.HasName,
		Terminated:     s.Terminated,
		Interests:      s.Interests,
		AnswerIndex:    s.AnswerIndex,
		RetryCount:     s.RetryCount,
		QuestionsJSON:  questions,
		AnswersJSON:    answers,
		HistoryJSON:    history,
		Recommendation: s.Recommendation,
		CreatedAt:      created.Unix(),
		UpdatedAt:      updated.Unix(),
	}, nil
}

func decodeSession(r row) (*domain.Session, error) {
	s := &domain.Session{
		UserID:         r.UserID,
		Owner:          r.Owner,
		State:          domain.State(r.State),
		HasName:        r.HasName,
		Terminated:     r.Terminated,
		Interests:      r.Interests,
		AnswerIndex:    r.AnswerIndex,
		RetryCount:     r.RetryCount,
		Recommendation: r.Recommendation,
		CreatedAt:      time.Unix(r.CreatedAt, 0),
		UpdatedAt:      time.Unix(r.UpdatedAt, 0),
	}
	if err := unmarshalList(r.QuestionsJSON, &s.Questions); err != nil {
		return nil, fmt.Errorf("decode questions for %s: %w", r.UserID, err)
	}
	if err := unmarshalList(r.AnswersJSON, &s.Answers); err != nil {
		return nil, fmt.Errorf("decode answers for %s: %w", r.UserID, err)
	}
	if err := unmarshalList(r.HistoryJSON, &s.History); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", r.UserID, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("load %s: %w", r.UserID, err)
	}
	return s, nil
}

func summaryFromRow(r row) domain.SessionSummary {
	var questions []domain.Question
	_ = unmarshalList(r.QuestionsJSON, &questions)
	return domain.SessionSummary{
		UserID:      r.UserID,
		State:       domain.State(r.State),
		Terminated:  r.Terminated,
		AnswerIndex: r.AnswerIndex,
		Total:       len(questions),
		UpdatedAt:   time.Unix(r.UpdatedAt, 0),
	}
}

func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

func unmarshalList[T any](data []byte, out *[]T) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
