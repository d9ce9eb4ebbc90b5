package corpus

import (
	"strings"
	"testing"
)

func TestDefaultCorpusLoads(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("load default corpus: %v", err)
	}
	if len(c.Categories) != 4 {
		t.Fatalf("expected 4 categories, got %d", len(c.Categories))
	}
	if len(c.Questions) != 70 {
		t.Fatalf("expected 70 questions, got %d", len(c.Questions))
	}

	counts := map[string]int{}
	for _, q := range c.Questions {
		counts[q.CategoryID]++
	}
	want := map[string]int{
		"school-leadership":                     20,
		"instructional-leadership":              20,
		"personal-and-professional-development": 15,
		"human-resource-management":             15,
	}
	for id, n := range want {
		if counts[id] != n {
			t.Fatalf("category %s: expected %d questions, got %d", id, n, counts[id])
		}
	}
}

func TestParseRejectsBadCorrectOption(t *testing.T) {
	data := []byte(`
categories:
  - id: c1
    title: C1
questions:
  - id: q1
    categoryId: c1
    text: pick
    options:
      - {id: a, text: A}
      - {id: b, text: B}
    correctOptionId: z
`)
	_, err := Parse(data)
	if err == nil || !strings.Contains(err.Error(), "correct option") {
		t.Fatalf("expected correct option error, got %v", err)
	}
}

func TestParseRejectsSingleOption(t *testing.T) {
	data := []byte(`
categories:
  - id: c1
questions:
  - id: q1
    categoryId: c1
    options:
      - {id: a, text: A}
    correctOptionId: a
`)
	if _, err := Parse(data); err == nil {
		t.Fatalf("expected error for single option question")
	}
}

func TestParseRejectsUnknownCategory(t *testing.T) {
	data := []byte(`
categories:
  - id: c1
questions:
  - id: q1
    categoryId: c2
    options:
      - {id: a, text: A}
      - {id: b, text: B}
    correctOptionId: a
`)
	if _, err := Parse(data); err == nil {
		t.Fatalf("expected error for unknown category")
	}
}
