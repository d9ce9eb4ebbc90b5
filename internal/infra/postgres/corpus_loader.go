package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"exam-reviewer/internal/corpus"
	"exam-reviewer/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// CorpusLoader loads categories and question JSONB from Postgres.
type CorpusLoader struct {
	pool *pgxpool.Pool
}

func NewCorpusLoader(pool *pgxpool.Pool) *CorpusLoader {
	return &CorpusLoader{pool: pool}
}

func (l *CorpusLoader) LoadCorpus(ctx context.Context) (corpus.Corpus, error) {
	var c corpus.Corpus

	rows, err := l.pool.Query(ctx, `SELECT id, title, description, question_count FROM categories ORDER BY position, id`)
	if err != nil {
		return c, fmt.Errorf("load categories: %w", err)
	}
	for rows.Next() {
		var cat domain.Category
		if err := rows.Scan(&cat.ID, &cat.Title, &cat.Description, &cat.QuestionCount); err != nil {
			rows.Close()
			return c, fmt.Errorf("scan category: %w", err)
		}
		c.Categories = append(c.Categories, cat)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return c, fmt.Errorf("load categories: %w", err)
	}

	rows, err = l.pool.Query(ctx, `
		SELECT q.category_id, q.data
		FROM questions q
		JOIN categories c ON c.id = q.category_id
		ORDER BY c.position, q.position, q.id`)
	if err != nil {
		return c, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			categoryID string
			raw        []byte
		)
		if err := rows.Scan(&categoryID, &raw); err != nil {
			return c, fmt.Errorf("scan question: %w", err)
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return c, fmt.Errorf("unmarshal question: %w", err)
		}
		q.CategoryID = categoryID
		c.Questions = append(c.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return c, fmt.Errorf("load questions: %w", err)
	}

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}
