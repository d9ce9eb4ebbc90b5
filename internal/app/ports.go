package app

import (
	"context"
	"time"

	"exam-reviewer/internal/domain"
)

// Bank is the read-only question bank. Lookups of unknown ids return errors wrapping
// domain.ErrNotFound.
type Bank interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, id string) (domain.Category, error)
	ListQuestions(ctx context.Context, categoryID string) ([]domain.Question, error)
	GetQuestion(ctx context.Context, id string) (domain.Question, error)
}

// KVStore abstracts the TTL-capable key-value store (in-memory, Redis, etc).
// Get may hand back structured data or serialized text depending on the backend.
type KVStore interface {
	Get(ctx context.Context, key string) (value any, found bool, err error)
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Submitter persists a finished quiz and returns the id of the stored result.
type Submitter interface {
	Submit(ctx context.Context, req domain.SubmitRequest) (string, error)
}

// Recorder receives outcome counts for submissions, reports and result lookups.
type Recorder interface {
	Submission(outcome string)
	Report(outcome string)
	Lookup(outcome string)
}

// Outcome labels passed to a Recorder.
const (
	OutcomeOK           = "ok"
	OutcomeInvalid      = "invalid"
	OutcomeNotFound     = "not_found"
	OutcomeStorageError = "storage_error"
)

type nopRecorder struct{}

func (nopRecorder) Submission(string) {}
func (nopRecorder) Report(string)     {}
func (nopRecorder) Lookup(string)     {}
