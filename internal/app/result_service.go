package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"exam-reviewer/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultResultTTL is how long a stored result stays readable.
const DefaultResultTTL = time.Hour

const (
	resultKeyPrefix = "results:"
	reportKeyPrefix = "report:"
	// InlinePrefix marks result ids that carry the whole result instead of a store key.
	InlinePrefix = "inline."
)

var errMalformedResult = errors.New("malformed stored result")

// ResultService persists finished quizzes and question reports and serves the read side:
// existence checks, summaries, detailed reviews and insights.
type ResultService struct {
	store    KVStore
	bank     Bank
	ttl      time.Duration
	logger   *zap.Logger
	recorder Recorder
	validate *validator.Validate
	newID    func() string
	now      func() time.Time
	sf       singleflight.Group
}

func NewResultService(store KVStore, bank Bank, ttl time.Duration, logger *zap.Logger, recorder Recorder) *ResultService {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &ResultService{
		store:    store,
		bank:     bank,
		ttl:      ttl,
		logger:   logger,
		recorder: recorder,
		validate: v,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Submit validates req and writes it under a fresh id. Nothing is written when validation fails.
func (s *ResultService) Submit(ctx context.Context, req domain.SubmitRequest) (string, error) {
	if err := s.check(req); err != nil {
		s.recorder.Submission(OutcomeInvalid)
		return "", err
	}
	if len(req.Answers) != *req.Total {
		s.logger.Warn("answer count does not match total",
			zap.String("category", req.CategoryID),
			zap.Int("answers", len(req.Answers)),
			zap.Int("total", *req.Total),
		)
	}

	result := storedFromRequest(s.newID(), req)
	if err := s.store.Put(ctx, resultKeyPrefix+result.ID, result, s.ttl); err != nil {
		s.recorder.Submission(OutcomeStorageError)
		s.logger.Error("save result failed", zap.String("category", req.CategoryID), zap.Error(err))
		return "", fmt.Errorf("%w: save result: %w", domain.ErrStorage, err)
	}
	s.recorder.Submission(OutcomeOK)
	s.logger.Info("result saved",
		zap.String("id", result.ID),
		zap.String("category", result.CategoryID),
		zap.Int("score", result.Score),
		zap.Int("total", result.Total),
	)
	return result.ID, nil
}

// InlineID encodes req into a self-contained result id, for use when the store is unavailable.
// Every read path accepts these ids.
func (s *ResultService) InlineID(req domain.SubmitRequest) (string, error) {
	if err := s.check(req); err != nil {
		return "", err
	}
	result := storedFromRequest("", req)
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode inline result: %w", err)
	}
	return InlinePrefix + base64.RawURLEncoding.EncodeToString(data), nil
}

// InlineFallback submits through a ResultService and, when the store is unavailable, hands
// back an inline id that carries the whole result instead of failing the submission.
type InlineFallback struct {
	results *ResultService
	logger  *zap.Logger
}

func NewInlineFallback(results *ResultService, logger *zap.Logger) *InlineFallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InlineFallback{results: results, logger: logger}
}

func (f *InlineFallback) Submit(ctx context.Context, req domain.SubmitRequest) (string, error) {
	id, err := f.results.Submit(ctx, req)
	if err == nil || !errors.Is(err, domain.ErrStorage) {
		return id, err
	}
	inline, inlineErr := f.results.InlineID(req)
	if inlineErr != nil {
		return "", err
	}
	f.logger.Warn("result store unavailable, returning inline result id", zap.Error(err))
	return inline, nil
}

// Report stores a question report. Reports never expire.
func (s *ResultService) Report(ctx context.Context, req domain.ReportRequest) (string, error) {
	if err := s.check(req); err != nil {
		s.recorder.Report(OutcomeInvalid)
		return "", err
	}
	report := domain.Report{
		ID:           s.newID(),
		QuestionID:   req.QuestionID,
		CategoryID:   req.CategoryID,
		QuestionText: req.QuestionText,
		Message:      req.Message,
		Timestamp:    req.Timestamp,
		Status:       domain.ReportStatusPending,
	}
	if report.Timestamp == 0 {
		report.Timestamp = s.now().UnixMilli()
	}
	if err := s.store.Put(ctx, reportKeyPrefix+report.ID, report, 0); err != nil {
		s.recorder.Report(OutcomeStorageError)
		s.logger.Error("save report failed", zap.String("question", req.QuestionID), zap.Error(err))
		return "", fmt.Errorf("%w: save report: %w", domain.ErrStorage, err)
	}
	s.recorder.Report(OutcomeOK)
	s.logger.Info("report saved", zap.String("id", report.ID), zap.String("question", report.QuestionID))
	return report.ID, nil
}

// Exists reports whether id names a readable result without decoding it.
func (s *ResultService) Exists(ctx context.Context, id string) (bool, error) {
	if strings.HasPrefix(id, InlinePrefix) {
		_, err := decodeInline(id)
		return err == nil, nil
	}
	ok, err := s.store.Exists(ctx, resultKeyPrefix+id)
	if err != nil {
		return false, fmt.Errorf("%w: check result: %w", domain.ErrStorage, err)
	}
	return ok, nil
}

// Result returns the stored record for id.
func (s *ResultService) Result(ctx context.Context, id string) (domain.StoredResult, error) {
	return s.load(ctx, id)
}

// Summary returns the headline score of a stored result.
func (s *ResultService) Summary(ctx context.Context, id string) (domain.Summary, error) {
	result, err := s.load(ctx, id)
	if err != nil {
		return domain.Summary{}, err
	}
	return domain.Summary{
		ID:         id,
		CategoryID: result.CategoryID,
		Score:      result.Score,
		Total:      result.Total,
		Percentage: Percentage(result.Score, result.Total),
	}, nil
}

// DetailedReview joins the stored answers with the bank in answer order. Answers whose
// question no longer resolves are dropped.
func (s *ResultService) DetailedReview(ctx context.Context, id string) ([]domain.ReviewedQuestion, error) {
	result, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ReviewedQuestion, 0, len(result.Answers))
	for _, a := range result.Answers {
		q, err := s.bank.GetQuestion(ctx, a.QuestionID)
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Debug("dropping unresolved question from review",
				zap.String("result", id),
				zap.String("question", a.QuestionID),
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, domain.ReviewedQuestion{Question: q, UserAnswer: a.UserAnswer, TimeSpent: a.TimeSpent})
	}
	return out, nil
}

// Insights aggregates the detailed review of id.
func (s *ResultService) Insights(ctx context.Context, id string) (Insights, error) {
	review, err := s.DetailedReview(ctx, id)
	if err != nil {
		return Insights{}, err
	}
	return ComputeInsights(review), nil
}

// load fetches and normalizes a stored result once per request and coalesces concurrent
// reads of the same id.
func (s *ResultService) load(ctx context.Context, id string) (domain.StoredResult, error) {
	memo := resultMemoFrom(ctx)
	if memo != nil {
		if r, ok := memo.get(id); ok {
			return r, nil
		}
	}

	// The shared fetch must not inherit one caller's cancellation; each caller waits on its own ctx.
	shared := context.WithoutCancel(ctx)
	ch := s.sf.DoChan(id, func() (any, error) {
		return s.fetch(shared, id)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return domain.StoredResult{}, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return domain.StoredResult{}, res.Err
	}
	result := res.Val.(domain.StoredResult)
	if memo != nil {
		memo.put(id, result)
	}
	return result, nil
}

func (s *ResultService) fetch(ctx context.Context, id string) (domain.StoredResult, error) {
	if strings.HasPrefix(id, InlinePrefix) {
		result, err := decodeInline(id)
		if err != nil {
			s.recorder.Lookup(OutcomeNotFound)
			s.logger.Warn("malformed inline result", zap.Error(err))
			return domain.StoredResult{}, domain.ErrResultNotFound
		}
		s.recorder.Lookup(OutcomeOK)
		return result, nil
	}

	raw, found, err := s.store.Get(ctx, resultKeyPrefix+id)
	if err != nil {
		s.recorder.Lookup(OutcomeStorageError)
		return domain.StoredResult{}, fmt.Errorf("%w: load result: %w", domain.ErrStorage, err)
	}
	if !found {
		s.recorder.Lookup(OutcomeNotFound)
		return domain.StoredResult{}, domain.ErrResultNotFound
	}
	result, err := decodeStoredResult(raw)
	if err != nil {
		s.recorder.Lookup(OutcomeNotFound)
		s.logger.Warn("malformed stored result", zap.String("id", id), zap.Error(err))
		return domain.StoredResult{}, domain.ErrResultNotFound
	}
	if result.ID == "" {
		result.ID = id
	}
	s.recorder.Lookup(OutcomeOK)
	return result, nil
}

func (s *ResultService) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(fields, "; "))
	}
	return fmt.Errorf("%w: %w", domain.ErrValidation, err)
}

// Percentage is round(score/total*100), or 0 for an empty quiz.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return int(float64(score)*100/float64(total) + 0.5)
}

func storedFromRequest(id string, req domain.SubmitRequest) domain.StoredResult {
	answers := make([]domain.AnswerRecord, len(req.Answers))
	copy(answers, req.Answers)
	return domain.StoredResult{
		ID:         id,
		CategoryID: req.CategoryID,
		Score:      *req.Score,
		Total:      *req.Total,
		Answers:    answers,
	}
}

// decodeStoredResult normalizes whatever the store handed back: a struct, JSON text (possibly
// encoded twice) or a generic map.
func decodeStoredResult(raw any) (domain.StoredResult, error) {
	var data []byte
	switch v := raw.(type) {
	case domain.StoredResult:
		return validStored(v)
	case *domain.StoredResult:
		if v == nil {
			return domain.StoredResult{}, errMalformedResult
		}
		return validStored(*v)
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return domain.StoredResult{}, fmt.Errorf("%w: %w", errMalformedResult, err)
		}
		data = encoded
	}

	var result domain.StoredResult
	if err := json.Unmarshal(data, &result); err != nil {
		var inner string
		if json.Unmarshal(data, &inner) != nil {
			return domain.StoredResult{}, fmt.Errorf("%w: %w", errMalformedResult, err)
		}
		if err := json.Unmarshal([]byte(inner), &result); err != nil {
			return domain.StoredResult{}, fmt.Errorf("%w: %w", errMalformedResult, err)
		}
	}
	return validStored(result)
}

func validStored(r domain.StoredResult) (domain.StoredResult, error) {
	if r.CategoryID == "" || r.Answers == nil {
		return domain.StoredResult{}, errMalformedResult
	}
	return r, nil
}

func decodeInline(id string) (domain.StoredResult, error) {
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(id, InlinePrefix))
	if err != nil {
		return domain.StoredResult{}, fmt.Errorf("%w: %w", errMalformedResult, err)
	}
	result, err := decodeStoredResult(data)
	if err != nil {
		return domain.StoredResult{}, err
	}
	result.ID = id
	return result, nil
}

type resultMemoKey struct{}

type resultMemo struct {
	mu      sync.Mutex
	results map[string]domain.StoredResult
}

func (m *resultMemo) get(id string) (domain.StoredResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	return r, ok
}

func (m *resultMemo) put(id string, r domain.StoredResult) {
	m.mu.Lock()
	m.results[id] = r
	m.mu.Unlock()
}

// WithResultCache returns a context under which repeated reads of the same result are
// served from memory. It is meant to live for one request.
func WithResultCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, resultMemoKey{}, &resultMemo{results: make(map[string]domain.StoredResult)})
}

func resultMemoFrom(ctx context.Context) *resultMemo {
	m, _ := ctx.Value(resultMemoKey{}).(*resultMemo)
	return m
}
