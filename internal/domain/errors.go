// Package domain contains the core interview types: sessions, questions, answers and messages.
package domain

import "errors"

var (
	ErrSessionTerminated    = errors.New("session already terminated")
	ErrSessionBusy          = errors.New("session is processing another message")
	ErrSessionNotFound      = errors.New("session not found")
	ErrQuestionsAlreadySet  = errors.New("questions already set for session")
	ErrNoQuestions          = errors.New("empty question list")
	ErrNoCurrentQuestion    = errors.New("no question under cursor")
	ErrBlankQuestionKey     = errors.New("blank question key")
	ErrBlankQuestionText    = errors.New("blank question text")
	ErrDuplicateQuestionKey = errors.New("duplicate question key")
	ErrInvalidSnapshot      = errors.New("invalid session snapshot")
)
