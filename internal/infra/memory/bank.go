package memory

import (
	"context"

	"exam-reviewer/internal/corpus"
	"exam-reviewer/internal/domain"
)

// Bank is an immutable, in-memory question bank. Every read returns copies, so callers
// can shuffle or annotate what they get without touching the shared corpus.
type Bank struct {
	categories []domain.Category
	categoryOf map[string]int
	byCategory map[string][]domain.Question
	byID       map[string]domain.Question
}

func NewBank(c corpus.Corpus) *Bank {
	b := &Bank{
		categories: append([]domain.Category(nil), c.Categories...),
		categoryOf: make(map[string]int, len(c.Categories)),
		byCategory: make(map[string][]domain.Question, len(c.Categories)),
		byID:       make(map[string]domain.Question, len(c.Questions)),
	}
	for i, cat := range b.categories {
		b.categoryOf[cat.ID] = i
	}
	for _, q := range c.Questions {
		q = q.Clone()
		b.byCategory[q.CategoryID] = append(b.byCategory[q.CategoryID], q)
		b.byID[q.ID] = q
	}
	return b
}

func (b *Bank) ListCategories(_ context.Context) ([]domain.Category, error) {
	return append([]domain.Category(nil), b.categories...), nil
}

func (b *Bank) GetCategory(_ context.Context, id string) (domain.Category, error) {
	i, ok := b.categoryOf[id]
	if !ok {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	return b.categories[i], nil
}

// ListQuestions returns the questions of a category in corpus order. Unknown categories
// simply have no questions.
func (b *Bank) ListQuestions(_ context.Context, categoryID string) ([]domain.Question, error) {
	src := b.byCategory[categoryID]
	out := make([]domain.Question, 0, len(src))
	for _, q := range src {
		out = append(out, q.Clone())
	}
	return out, nil
}

func (b *Bank) GetQuestion(_ context.Context, id string) (domain.Question, error) {
	q, ok := b.byID[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q.Clone(), nil
}
