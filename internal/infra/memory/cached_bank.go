package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"exam-reviewer/internal/corpus"
	"exam-reviewer/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CorpusLoader fetches the whole question corpus from a backing store (e.g., Postgres).
type CorpusLoader interface {
	LoadCorpus(ctx context.Context) (corpus.Corpus, error)
}

// CachedBank serves a question bank built from a loader and rebuilds it after ttl to avoid
// repeated DB hits.
type CachedBank struct {
	loader CorpusLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	snapshot  *Bank
	expiresAt time.Time
}

func NewCachedBank(loader CorpusLoader, ttl time.Duration) *CachedBank {
	return &CachedBank{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *CachedBank) ListCategories(ctx context.Context) ([]domain.Category, error) {
	bank, err := b.current(ctx)
	if err != nil {
		return nil, err
	}
	return bank.ListCategories(ctx)
}

func (b *CachedBank) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	bank, err := b.current(ctx)
	if err != nil {
		return domain.Category{}, err
	}
	return bank.GetCategory(ctx, id)
}

func (b *CachedBank) ListQuestions(ctx context.Context, categoryID string) ([]domain.Question, error) {
	bank, err := b.current(ctx)
	if err != nil {
		return nil, err
	}
	return bank.ListQuestions(ctx, categoryID)
}

func (b *CachedBank) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	bank, err := b.current(ctx)
	if err != nil {
		return domain.Question{}, err
	}
	return bank.GetQuestion(ctx, id)
}

func (b *CachedBank) current(ctx context.Context) (*Bank, error) {
	if bank := b.fresh(b.clock()); bank != nil {
		return bank, nil
	}

	result, err, _ := b.sf.Do("corpus", func() (interface{}, error) {
		now := b.clock()
		if bank := b.fresh(now); bank != nil {
			return bank, nil
		}

		c, err := b.loader.LoadCorpus(ctx)
		if err != nil {
			return nil, err
		}
		bank := NewBank(c)

		b.mu.Lock()
		b.snapshot = bank
		b.expiresAt = time.Time{}
		if b.ttl > 0 {
			b.expiresAt = now.Add(b.ttlWithJitter())
		}
		b.mu.Unlock()
		return bank, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Bank), nil
}

func (b *CachedBank) fresh(now time.Time) *Bank {
	b.mu.RLock()
	defer b.mu.RUnlock()
	// a zero expiry means the snapshot never goes stale
	if b.snapshot != nil && (b.expiresAt.IsZero() || b.expiresAt.After(now)) {
		return b.snapshot
	}
	return nil
}

func (b *CachedBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

// StaticCorpusLoader is a simple loader backed by an in-memory corpus (useful for tests/demos).
type StaticCorpusLoader struct {
	corpus corpus.Corpus
}

func NewStaticCorpusLoader(c corpus.Corpus) *StaticCorpusLoader {
	return &StaticCorpusLoader{corpus: c}
}

func (l *StaticCorpusLoader) LoadCorpus(_ context.Context) (corpus.Corpus, error) {
	return l.corpus, nil
}
