package domain

import (
	"errors"
	"testing"
)

func sampleQuestions() []Question {
	return []Question{
		{Key: "q1", Text: "¿Qué materias disfrutas más?"},
		{Key: "q2", Text: "¿Qué harías un sábado libre?"},
	}
}

func TestSetQuestionsOnlyOnce(t *testing.T) {
	s := NewSession()
	if err := s.SetQuestions(sampleQuestions()); err != nil {
		t.Fatalf("SetQuestions failed: %v", err)
	}
	if err := s.SetQuestions(sampleQuestions()); !errors.Is(err, ErrQuestionsAlreadySet) {
		t.Fatalf("expected ErrQuestionsAlreadySet, got %v", err)
	}
}

func TestSetQuestionsRejectsDuplicateKeys(t *testing.T) {
	s := NewSession()
	err := s.SetQuestions([]Question{{Key: "a", Text: "x"}, {Key: "a", Text: "y"}})
	if !errors.Is(err, ErrDuplicateQuestionKey) {
		t.Fatalf("expected ErrDuplicateQuestionKey, got %v", err)
	}
	if len(s.Questions) != 0 {
		t.Fatalf("questions must stay empty on failure, got %d", len(s.Questions))
	}
}

func TestRecordAnswerAdvancesCursor(t *testing.T) {
	s := NewSession()
	if err := s.SetQuestions(sampleQuestions()); err != nil {
		t.Fatal(err)
	}
	s.RetryCount = 2

	q, err := s.RecordAnswer("Me encantan las matemáticas", false)
	if err != nil {
		t.Fatalf("RecordAnswer failed: %v", err)
	}
	if q.Key != "q1" {
		t.Errorf("expected answered key q1, got %q", q.Key)
	}
	if s.AnswerIndex != 1 {
		t.Errorf("expected AnswerIndex 1, got %d", s.AnswerIndex)
	}
	if s.RetryCount != 0 {
		t.Errorf("expected retry counter reset, got %d", s.RetryCount)
	}
	if a, ok := s.AnswerFor("q1"); !ok || a.Text != "Me encantan las matemáticas" {
		t.Errorf("unexpected answer for q1: %+v ok=%v", a, ok)
	}

	if _, err := s.RecordAnswer("Leer y programar", false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordAnswer("extra", false); !errors.Is(err, ErrNoCurrentQuestion) {
		t.Fatalf("expected ErrNoCurrentQuestion past the end, got %v", err)
	}
	if s.AnswerIndex != len(s.Questions) {
		t.Fatalf("AnswerIndex must not exceed question count, got %d", s.AnswerIndex)
	}
}

func TestTerminatedSessionRejectsMutation(t *testing.T) {
	s := NewSession()
	if err := s.SetQuestions(sampleQuestions()); err != nil {
		t.Fatal(err)
	}
	if err := s.Terminate("Ingeniería en TI", StateTerminated); err != nil {
		t.Fatal(err)
	}

	if _, err := s.RecordAnswer("tarde", false); !errors.Is(err, ErrSessionTerminated) {
		t.Fatalf("expected ErrSessionTerminated, got %v", err)
	}
	if err := s.Terminate("otra", StateTerminated); !errors.Is(err, ErrSessionTerminated) {
		t.Fatalf("expected second Terminate to fail, got %v", err)
	}
	if s.AnswerIndex != 0 || len(s.Answers) != 0 {
		t.Fatalf("terminated session was mutated: index=%d answers=%d", s.AnswerIndex, len(s.Answers))
	}
}

func TestValidateDetectsInconsistentSnapshot(t *testing.T) {
	s := NewSession()
	if err := s.SetQuestions(sampleQuestions()); err != nil {
		t.Fatal(err)
	}
	s.AnswerIndex = 1
	if err := s.Validate(); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot for missing answer, got %v", err)
	}

	s.Answers = []Answer{{QuestionKey: "q2", Text: "x"}}
	if err := s.Validate(); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot for misordered answer, got %v", err)
	}

	s.Answers = []Answer{{QuestionKey: "q1", Text: "x"}}
	if err := s.Validate(); err != nil {
		t.Fatalf("expected valid snapshot, got %v", err)
	}
}

func TestFirstName(t *testing.T) {
	s := &Session{UserID: "Ana Torres"}
	if got := s.FirstName(); got != "Ana" {
		t.Fatalf("expected Ana, got %q", got)
	}
	s.UserID = "Juan"
	if got := s.FirstName(); got != "Juan" {
		t.Fatalf("expected Juan, got %q", got)
	}
}

func TestTranscript(t *testing.T) {
	s := NewSession()
	s.AppendMessage(SenderBot, "¿Cuál es tu nombre?")
	s.AppendMessage(SenderUser, "Ana")

	want := "Bot: ¿Cuál es tu nombre?\nUsuario: Ana\n"
	if got := Transcript(s.History); got != want {
		t.Fatalf("Transcript() = %q, want %q", got, want)
	}
}
