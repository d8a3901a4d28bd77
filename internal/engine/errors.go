package engine

import "errors"

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidTransition  = errors.New("action is not allowed in the current step")
	ErrSectionIncomplete  = errors.New("section still has unanswered questions")
	ErrSessionCompleted   = errors.New("session is already completed")
	ErrQuestionNotFound   = errors.New("question not found in current section")
	ErrAnswerKindMismatch = errors.New("answer variant does not match the section type")
)
