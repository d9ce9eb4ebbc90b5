package app

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"exam-reviewer/internal/domain"
	"go.uber.org/zap"
)

// DefaultQuestionDuration is the countdown each question gets.
const DefaultQuestionDuration = 120 * time.Second

// QuizService starts timed review sessions over a question bank.
type QuizService struct {
	bank      Bank
	submitter Submitter
	duration  time.Duration
	now       func() time.Time
	logger    *zap.Logger

	mu  sync.Mutex // guards rnd
	rnd *rand.Rand
}

func NewQuizService(bank Bank, submitter Submitter, duration time.Duration, logger *zap.Logger) *QuizService {
	return NewQuizServiceWithSource(bank, submitter, duration, logger, time.Now, time.Now().UnixNano())
}

// NewQuizServiceWithSource is test-only for deterministic shuffles and timestamps.
func NewQuizServiceWithSource(bank Bank, submitter Submitter, duration time.Duration, logger *zap.Logger, now func() time.Time, seed int64) *QuizService {
	if duration <= 0 {
		duration = DefaultQuestionDuration
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuizService{
		bank:      bank,
		submitter: submitter,
		duration:  duration,
		now:       now,
		logger:    logger,
		rnd:       rand.New(rand.NewSource(seed)),
	}
}

// QuestionDuration returns the countdown applied to every question.
func (s *QuizService) QuestionDuration() time.Duration {
	return s.duration
}

// Begin starts a session over a freshly shuffled copy of the category's questions and
// presents the first one.
func (s *QuizService) Begin(ctx context.Context, categoryID string) (*Session, error) {
	questions, err := s.bank.ListQuestions(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, domain.ErrEmptyCategory
	}

	views := make([]QuestionView, len(questions))
	for i, q := range questions {
		views[i] = QuestionView{Question: q.Clone()}
	}

	s.mu.Lock()
	// rand.Shuffle is a Fisher-Yates shuffle.
	s.rnd.Shuffle(len(views), func(i, j int) { views[i], views[j] = views[j], views[i] })
	for i := range views {
		opts := views[i].Options
		s.rnd.Shuffle(len(opts), func(a, b int) { opts[a], opts[b] = opts[b], opts[a] })
	}
	s.mu.Unlock()

	session := newSession(categoryID, views, s.duration, s.now, s.submitter, s.logger)
	s.logger.Debug("session started",
		zap.String("category", categoryID),
		zap.Int("questions", len(views)),
	)
	return session, nil
}
