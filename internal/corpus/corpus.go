// Package corpus holds the static question bank shipped with the service.
package corpus

import (
	_ "embed"
	"fmt"

	"exam-reviewer/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed reviewer.yaml
var reviewerYAML []byte

// Corpus is the full set of categories and questions.
type Corpus struct {
	Categories []domain.Category `yaml:"categories"`
	Questions  []domain.Question `yaml:"questions"`
}

// Default parses the embedded reviewer corpus.
func Default() (Corpus, error) {
	return Parse(reviewerYAML)
}

// Parse decodes a YAML corpus and validates it.
func Parse(data []byte) (Corpus, error) {
	var c Corpus
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Corpus{}, fmt.Errorf("decode corpus: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Corpus{}, err
	}
	return c, nil
}

// Validate checks the structural rules every question and category must follow.
func (c Corpus) Validate() error {
	categories := make(map[string]struct{}, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.ID == "" {
			return fmt.Errorf("category with empty id")
		}
		if _, dup := categories[cat.ID]; dup {
			return fmt.Errorf("duplicate category %q", cat.ID)
		}
		categories[cat.ID] = struct{}{}
	}

	questions := make(map[string]struct{}, len(c.Questions))
	for _, q := range c.Questions {
		if q.ID == "" {
			return fmt.Errorf("question with empty id")
		}
		if _, dup := questions[q.ID]; dup {
			return fmt.Errorf("duplicate question %q", q.ID)
		}
		questions[q.ID] = struct{}{}

		if _, ok := categories[q.CategoryID]; !ok {
			return fmt.Errorf("question %q: unknown category %q", q.ID, q.CategoryID)
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("question %q: needs at least 2 options, has %d", q.ID, len(q.Options))
		}
		options := make(map[string]struct{}, len(q.Options))
		for _, o := range q.Options {
			if _, dup := options[o.ID]; dup {
				return fmt.Errorf("question %q: duplicate option %q", q.ID, o.ID)
			}
			options[o.ID] = struct{}{}
		}
		if _, ok := options[q.CorrectOptionID]; !ok {
			return fmt.Errorf("question %q: correct option %q not among options", q.ID, q.CorrectOptionID)
		}
	}
	return nil
}
