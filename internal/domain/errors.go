package domain

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the core wraps exactly one of these.
var (
	// ErrValidation marks malformed or incomplete input; retrying without fixing it is pointless.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a confirmed absence of a category, question or result.
	ErrNotFound = errors.New("not found")
	// ErrStorage marks a failed read or write against the key-value store.
	ErrStorage = errors.New("storage failure")
	// ErrState marks a quiz event that arrived out of sequence.
	ErrState = errors.New("invalid session state")
)

var (
	// ErrCategoryNotFound indicates an unknown category id.
	ErrCategoryNotFound = fmt.Errorf("category %w", ErrNotFound)
	// ErrEmptyCategory indicates a category that has no questions to review.
	ErrEmptyCategory = fmt.Errorf("category has no questions: %w", ErrNotFound)
	// ErrQuestionNotFound indicates an unknown question id.
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	// ErrResultNotFound indicates an unknown, expired or unreadable result id.
	ErrResultNotFound = fmt.Errorf("result %w", ErrNotFound)
	// ErrOptionNotFound indicates an answer that names no option of the current question.
	ErrOptionNotFound = fmt.Errorf("%w: option not found", ErrValidation)

	// ErrNotSettled is returned when advancing past a question that has no outcome yet.
	ErrNotSettled = fmt.Errorf("%w: current question not settled", ErrState)
	// ErrSubmissionInFlight is returned when a second submission is attempted while one is pending.
	ErrSubmissionInFlight = fmt.Errorf("%w: submission already in flight", ErrState)
)
