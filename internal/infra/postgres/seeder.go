package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"exam-reviewer/internal/corpus"
	"github.com/uptrace/bun"
)

type categoryRow struct {
	bun.BaseModel `bun:"table:categories"`

	ID            string `bun:"id,pk"`
	Title         string `bun:"title"`
	Description   string `bun:"description"`
	QuestionCount int    `bun:"question_count"`
	Position      int    `bun:"position"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions"`

	ID         string          `bun:"id,pk"`
	CategoryID string          `bun:"category_id"`
	Position   int             `bun:"position"`
	Data       json.RawMessage `bun:"data,type:jsonb"`
}

// Seeder upserts a corpus into the question bank tables.
type Seeder struct {
	db *bun.DB
}

func NewSeeder(db *bun.DB) *Seeder {
	return &Seeder{db: db}
}

// Seed writes every category and question of c in one transaction. Existing rows are
// overwritten; rows absent from c are left alone.
func (s *Seeder) Seed(ctx context.Context, c corpus.Corpus) (int, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}

	categories := make([]categoryRow, len(c.Categories))
	for i, cat := range c.Categories {
		categories[i] = categoryRow{
			ID:            cat.ID,
			Title:         cat.Title,
			Description:   cat.Description,
			QuestionCount: cat.QuestionCount,
			Position:      i,
		}
	}

	positions := make(map[string]int)
	questions := make([]questionRow, 0, len(c.Questions))
	for _, q := range c.Questions {
		data, err := json.Marshal(q)
		if err != nil {
			return 0, fmt.Errorf("encode question %s: %w", q.ID, err)
		}
		questions = append(questions, questionRow{
			ID:         q.ID,
			CategoryID: q.CategoryID,
			Position:   positions[q.CategoryID],
			Data:       data,
		})
		positions[q.CategoryID]++
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if len(categories) > 0 {
			if _, err := tx.NewInsert().Model(&categories).
				On("CONFLICT (id) DO UPDATE").
				Set("title = EXCLUDED.title").
				Set("description = EXCLUDED.description").
				Set("question_count = EXCLUDED.question_count").
				Set("position = EXCLUDED.position").
				Exec(ctx); err != nil {
				return fmt.Errorf("upsert categories: %w", err)
			}
		}
		if len(questions) > 0 {
			if _, err := tx.NewInsert().Model(&questions).
				On("CONFLICT (id) DO UPDATE").
				Set("category_id = EXCLUDED.category_id").
				Set("position = EXCLUDED.position").
				Set("data = EXCLUDED.data").
				Exec(ctx); err != nil {
				return fmt.Errorf("upsert questions: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(questions), nil
}
