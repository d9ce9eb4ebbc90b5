package app_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"exam-reviewer/internal/app"
	"exam-reviewer/internal/corpus"
	"exam-reviewer/internal/domain"
	"exam-reviewer/internal/infra/memory"
)

func TestBeginShufflesWithoutMutatingBank(t *testing.T) {
	ctx := context.Background()
	bank := newCorpusBank(t)
	clock := newTestClock()
	service := app.NewQuizServiceWithSource(bank, &stubSubmitter{}, 0, nil, clock.Now, 7)

	session, err := service.Begin(ctx, "school-leadership")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	snap := session.Snapshot()

	original, _ := bank.ListQuestions(ctx, "school-leadership")
	if len(snap.Questions) != len(original) {
		t.Fatalf("expected %d questions, got %d", len(original), len(snap.Questions))
	}
	if got, want := sortedIDs(snap.Questions), questionIDs(original); !equalStrings(got, want) {
		t.Fatalf("session is not a permutation of the category: %v vs %v", got, want)
	}

	byID := make(map[string]domain.Question, len(original))
	for _, q := range original {
		byID[q.ID] = q
	}
	for _, view := range snap.Questions {
		want := byID[view.ID]
		if len(view.Options) != len(want.Options) {
			t.Fatalf("question %s lost options", view.ID)
		}
		for _, o := range want.Options {
			if !view.HasOption(o.ID) {
				t.Fatalf("question %s missing option %s", view.ID, o.ID)
			}
		}
	}

	bankOrder := make([]string, len(original))
	for i, q := range original {
		bankOrder[i] = q.ID
	}
	sessionOrder := make([]string, len(snap.Questions))
	for i, v := range snap.Questions {
		sessionOrder[i] = v.ID
	}
	shuffled := !equalStrings(sessionOrder, bankOrder)
	for _, view := range snap.Questions {
		if view.Options[0].ID != byID[view.ID].Options[0].ID {
			shuffled = true
		}
	}
	if !shuffled {
		t.Fatalf("expected seed 7 to reorder questions or options")
	}

	// The bank must still hand out the canonical option order.
	again, _ := bank.GetQuestion(ctx, "sl-1")
	if again.Options[0].ID != "a" || again.Options[3].ID != "d" {
		t.Fatalf("bank options were mutated: %+v", again.Options)
	}
	if snap.Questions[0].State != app.QuestionPresented || snap.Questions[1].State != app.QuestionUnreached {
		t.Fatalf("unexpected initial states: %v, %v", snap.Questions[0].State, snap.Questions[1].State)
	}
}

func TestBeginEmptyCategory(t *testing.T) {
	service := app.NewQuizService(memory.NewBank(sessionCorpus()), &stubSubmitter{}, 0, nil)
	if _, err := service.Begin(context.Background(), "empty"); !errors.Is(err, domain.ErrEmptyCategory) {
		t.Fatalf("expected empty category, got %v", err)
	}
	if _, err := service.Begin(context.Background(), "unknown"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown category, got %v", err)
	}
}

func TestSelectAnswerScoresAndRecordsTime(t *testing.T) {
	clock := newTestClock()
	session := beginSession(t, clock, &stubSubmitter{})

	clock.Advance(12 * time.Second)
	q := session.Current()
	st, err := session.SelectAnswer(q.CorrectOptionID)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !st.Applied || !st.Correct || st.Score != 1 || st.TimeSpent != 12 {
		t.Fatalf("unexpected settlement %+v", st)
	}
	if st.Explanation == "" {
		t.Fatalf("expected explanation in settlement")
	}
}

func TestDoubleSelectKeepsFirstAnswer(t *testing.T) {
	clock := newTestClock()
	session := beginSession(t, clock, &stubSubmitter{})
	q := session.Current()
	wrong := wrongOption(q.Question)

	if _, err := session.SelectAnswer(wrong); err != nil {
		t.Fatalf("select: %v", err)
	}
	clock.Advance(5 * time.Second)
	st, err := session.SelectAnswer(q.CorrectOptionID)
	if err != nil {
		t.Fatalf("second select: %v", err)
	}
	if st.Applied {
		t.Fatalf("second select should be a no-op")
	}
	if st.UserAnswer == nil || *st.UserAnswer != wrong || session.Score() != 0 {
		t.Fatalf("first answer should stand, got %+v score=%d", st, session.Score())
	}
}

func TestUnknownOptionIsValidationError(t *testing.T) {
	session := beginSession(t, newTestClock(), &stubSubmitter{})
	if _, err := session.SelectAnswer("zz"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if session.Current().State != app.QuestionPresented {
		t.Fatalf("question should stay presented")
	}
}

func TestExpireThenSelectFirstEventWins(t *testing.T) {
	clock := newTestClock()
	session := beginSession(t, clock, &stubSubmitter{})
	q := session.Current()

	clock.Advance(2 * time.Minute)
	session.Observe()

	snap := session.Snapshot()
	if snap.Questions[0].State != app.QuestionTimedOut {
		t.Fatalf("expected timed out, got %v", snap.Questions[0].State)
	}
	if snap.Times[q.ID] != 120 {
		t.Fatalf("expected full duration recorded, got %d", snap.Times[q.ID])
	}

	st, err := session.SelectAnswer(q.CorrectOptionID)
	if err != nil {
		t.Fatalf("late select: %v", err)
	}
	if st.Applied || !st.TimedOut || session.Score() != 0 {
		t.Fatalf("late select must not count, got %+v", st)
	}
}

func TestLateAnswerAfterDeadlineTimesOut(t *testing.T) {
	clock := newTestClock()
	session := beginSession(t, clock, &stubSubmitter{})
	expired := 0
	session.SetHooks(app.Hooks{Expired: func(app.Settlement) { expired++ }})
	q := session.Current()

	// No Observe runs between the deadline and the answer.
	clock.Advance(10 * time.Minute)
	st, err := session.SelectAnswer(q.CorrectOptionID)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !st.Applied || !st.TimedOut || st.UserAnswer != nil || st.TimeSpent != 120 {
		t.Fatalf("expected timeout settlement, got %+v", st)
	}
	if session.Score() != 0 {
		t.Fatalf("late answer must not score, got %d", session.Score())
	}

	session.Observe()
	snap := session.Snapshot()
	if snap.Questions[0].State != app.QuestionTimedOut || snap.Times[q.ID] != 120 {
		t.Fatalf("unexpected question after observe: %v %d", snap.Questions[0].State, snap.Times[q.ID])
	}
	if expired != 0 {
		t.Fatalf("question was settled twice, expired hook fired %d times", expired)
	}
}

func TestInlineFallbackCompletesSessionWhenStoreIsDown(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := &countingStore{Store: memory.NewStore(), putErr: errors.New("connection refused")}
	bank := memory.NewBank(sessionCorpus())
	results := app.NewResultService(store, bank, 0, nil, nil)
	session := answerAll(t, clock, app.NewInlineFallback(results, nil))

	progress, err := session.Advance(ctx)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !progress.Done || !strings.HasPrefix(progress.ResultID, app.InlinePrefix) {
		t.Fatalf("expected inline result id, got %+v", progress)
	}
	summary, err := results.Summary(ctx, progress.ResultID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.CategoryID != "math" || summary.Score != summary.Total || summary.Percentage != 100 {
		t.Fatalf("unexpected inline summary %+v", summary)
	}

	// Other failures are not masked.
	if _, err := app.NewInlineFallback(results, nil).Submit(ctx, domain.SubmitRequest{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSelectThenExpireFirstEventWins(t *testing.T) {
	clock := newTestClock()
	session := beginSession(t, clock, &stubSubmitter{})
	q := session.Current()

	clock.Advance(40 * time.Second)
	if _, err := session.SelectAnswer(q.CorrectOptionID); err != nil {
		t.Fatalf("select: %v", err)
	}
	st, err := session.TimeExpire()
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if st.Applied || st.TimedOut || st.TimeSpent != 40 {
		t.Fatalf("expire after answer must be a no-op, got %+v", st)
	}

	clock.Advance(5 * time.Minute)
	session.Observe()
	if session.Snapshot().Times[q.ID] != 40 {
		t.Fatalf("paused timer should not overwrite the recorded time")
	}
}

func TestExpiredHookFires(t *testing.T) {
	clock := newTestClock()
	session := beginSession(t, clock, &stubSubmitter{})

	var ticks []int
	var expired []app.Settlement
	session.SetHooks(app.Hooks{
		Tick:    func(elapsed, _ int) { ticks = append(ticks, elapsed) },
		Expired: func(st app.Settlement) { expired = append(expired, st) },
	})

	session.Observe()
	clock.Advance(3 * time.Second)
	session.Observe()
	clock.Advance(3 * time.Minute)
	session.Observe()
	session.Observe()

	if len(expired) != 1 || !expired[0].TimedOut {
		t.Fatalf("expected exactly one expiry, got %+v", expired)
	}
	if len(ticks) < 2 || ticks[0] != 0 || ticks[1] != 3 {
		t.Fatalf("unexpected ticks %v", ticks)
	}
}

func TestAdvanceRequiresSettledQuestion(t *testing.T) {
	session := beginSession(t, newTestClock(), &stubSubmitter{})
	if _, err := session.Advance(context.Background()); !errors.Is(err, domain.ErrNotSettled) {
		t.Fatalf("expected not settled, got %v", err)
	}
	if !errors.Is(domain.ErrNotSettled, domain.ErrState) {
		t.Fatalf("not settled must be a state error")
	}
}

func TestAllCorrectHumanResourceManagement(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	bank := newCorpusBank(t)
	store := memory.NewStoreWithClock(clock.Now)
	results := app.NewResultService(store, bank, time.Hour, nil, nil)
	service := app.NewQuizServiceWithSource(bank, results, 0, nil, clock.Now, 42)

	session, err := service.Begin(ctx, "human-resource-management")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	var progress app.Progress
	for i := 0; i < 15; i++ {
		clock.Advance(time.Duration(i+1) * time.Second)
		q := session.Current()
		if _, err := session.SelectAnswer(q.CorrectOptionID); err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
		progress, err = session.Advance(ctx)
		if err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}
	if !progress.Done || progress.ResultID == "" {
		t.Fatalf("expected submitted session, got %+v", progress)
	}
	if session.Score() != 15 {
		t.Fatalf("expected score 15, got %d", session.Score())
	}

	summary, err := results.Summary(ctx, progress.ResultID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Score != 15 || summary.Total != 15 || summary.Percentage != 100 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	again, err := session.Advance(ctx)
	if err != nil || again.ResultID != progress.ResultID {
		t.Fatalf("advance after submit should return the same id, got %+v %v", again, err)
	}
}

func TestScoreMatchesCorrectAnswers(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	sub := &stubSubmitter{}
	session := beginSession(t, clock, sub)

	for i := 0; ; i++ {
		q := session.Current()
		switch i % 3 {
		case 0:
			_, _ = session.SelectAnswer(q.CorrectOptionID)
		case 1:
			_, _ = session.SelectAnswer(wrongOption(q.Question))
		default:
			clock.Advance(2 * time.Minute)
			session.Observe()
		}
		p, err := session.Advance(ctx)
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
		if p.Done {
			break
		}
	}

	snap := session.Snapshot()
	correct := 0
	for _, q := range snap.Questions {
		if q.UserAnswer != nil && *q.UserAnswer == q.CorrectOptionID {
			correct++
		}
		if tm, ok := snap.Times[q.ID]; !ok || tm < 0 || tm > 120 {
			t.Fatalf("bad time for %s: %d (%v)", q.ID, tm, ok)
		}
	}
	if snap.Score != correct {
		t.Fatalf("score %d does not match %d correct answers", snap.Score, correct)
	}

	req := sub.last()
	if *req.Score != correct || *req.Total != len(snap.Questions) || len(req.Answers) != len(snap.Questions) {
		t.Fatalf("unexpected submission %+v", req)
	}
	if sub.calls() != 1 {
		t.Fatalf("expected one submission, got %d", sub.calls())
	}
}

func TestDuplicateAdvanceWhileSubmitting(t *testing.T) {
	ctx := context.Background()
	sub := &stubSubmitter{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	session := answerAll(t, newTestClock(), sub)

	done := make(chan error, 1)
	go func() {
		_, err := session.Advance(ctx)
		done <- err
	}()
	<-sub.entered

	if _, err := session.Advance(ctx); !errors.Is(err, domain.ErrSubmissionInFlight) {
		t.Fatalf("expected in-flight error, got %v", err)
	}
	close(sub.release)
	if err := <-done; err != nil {
		t.Fatalf("first advance: %v", err)
	}
	if sub.calls() != 1 {
		t.Fatalf("expected a single submission, got %d", sub.calls())
	}
}

func TestFailedSubmissionCanBeRetried(t *testing.T) {
	ctx := context.Background()
	sub := &stubSubmitter{err: domain.ErrStorage}
	session := answerAll(t, newTestClock(), sub)

	if _, err := session.Advance(ctx); !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if session.State() != app.SessionSubmissionFailed {
		t.Fatalf("expected submission failed, got %v", session.State())
	}

	sub.setErr(nil)
	p, err := session.Advance(ctx)
	if err != nil || !p.Done || p.ResultID == "" {
		t.Fatalf("retry failed: %+v %v", p, err)
	}
	if sub.calls() != 2 {
		t.Fatalf("expected two attempts, got %d", sub.calls())
	}
}

// helpers

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubSubmitter struct {
	mu      sync.Mutex
	reqs    []domain.SubmitRequest
	err     error
	entered chan struct{}
	release chan struct{}
}

func (s *stubSubmitter) Submit(_ context.Context, req domain.SubmitRequest) (string, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	err := s.err
	n := len(s.reqs)
	s.mu.Unlock()
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	if err != nil {
		return "", err
	}
	return "result-" + string(rune('0'+n)), nil
}

func (s *stubSubmitter) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *stubSubmitter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

func (s *stubSubmitter) last() domain.SubmitRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reqs[len(s.reqs)-1]
}

func beginSession(t *testing.T, clock *testClock, sub app.Submitter) *app.Session {
	t.Helper()
	service := app.NewQuizServiceWithSource(memory.NewBank(sessionCorpus()), sub, 2*time.Minute, nil, clock.Now, 1)
	session, err := service.Begin(context.Background(), "math")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	return session
}

// answerAll settles every question and advances up to, but not past, the last one.
func answerAll(t *testing.T, clock *testClock, sub app.Submitter) *app.Session {
	t.Helper()
	session := beginSession(t, clock, sub)
	total := len(session.Snapshot().Questions)
	for i := 0; i < total; i++ {
		q := session.Current()
		if _, err := session.SelectAnswer(q.CorrectOptionID); err != nil {
			t.Fatalf("select: %v", err)
		}
		if i < total-1 {
			if _, err := session.Advance(context.Background()); err != nil {
				t.Fatalf("advance: %v", err)
			}
		}
	}
	return session
}

func newCorpusBank(t *testing.T) *memory.Bank {
	t.Helper()
	c, err := corpus.Default()
	if err != nil {
		t.Fatalf("load corpus: %v", err)
	}
	return memory.NewBank(c)
}

func sessionCorpus() corpus.Corpus {
	opts := []domain.Option{{ID: "a", Text: "A"}, {ID: "b", Text: "B"}, {ID: "c", Text: "C"}}
	return corpus.Corpus{
		Categories: []domain.Category{
			{ID: "math", Title: "Math"},
			{ID: "empty", Title: "Empty"},
		},
		Questions: []domain.Question{
			{ID: "m1", CategoryID: "math", Text: "1+1", Options: opts, CorrectOptionID: "b", Explanation: "two"},
			{ID: "m2", CategoryID: "math", Text: "2+1", Options: opts, CorrectOptionID: "c", Explanation: "three"},
			{ID: "m3", CategoryID: "math", Text: "0+1", Options: opts, CorrectOptionID: "a", Explanation: "one"},
			{ID: "m4", CategoryID: "math", Text: "1+2", Options: opts, CorrectOptionID: "c", Explanation: "three"},
		},
	}
}

func wrongOption(q domain.Question) string {
	for _, o := range q.Options {
		if o.ID != q.CorrectOptionID {
			return o.ID
		}
	}
	return ""
}

func sortedIDs(views []app.QuestionView) []string {
	ids := make([]string, len(views))
	for i, v := range views {
		ids[i] = v.ID
	}
	sort.Strings(ids)
	return ids
}

func questionIDs(qs []domain.Question) []string {
	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	sort.Strings(ids)
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
