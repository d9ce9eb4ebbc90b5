package app

import (
	"context"
	"math"
	"sync"
	"time"

	"exam-reviewer/internal/domain"
	"exam-reviewer/internal/timer"
	"go.uber.org/zap"
)

// QuestionState tracks one question through Unreached -> Presented -> Answered|TimedOut.
type QuestionState int

const (
	QuestionUnreached QuestionState = iota
	QuestionPresented
	QuestionAnswered
	QuestionTimedOut
)

// Settled reports whether the question's outcome is locked.
func (s QuestionState) Settled() bool {
	return s == QuestionAnswered || s == QuestionTimedOut
}

func (s QuestionState) String() string {
	switch s {
	case QuestionPresented:
		return "presented"
	case QuestionAnswered:
		return "answered"
	case QuestionTimedOut:
		return "timed_out"
	default:
		return "unreached"
	}
}

// SessionState tracks the attempt as a whole.
type SessionState int

const (
	SessionInProgress SessionState = iota
	SessionSubmitting
	SessionSubmitted
	SessionSubmissionFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionSubmitting:
		return "submitting"
	case SessionSubmitted:
		return "submitted"
	case SessionSubmissionFailed:
		return "submission_failed"
	default:
		return "in_progress"
	}
}

// QuestionView is a session-private copy of a question plus the user's outcome.
// UserAnswer is nil both before the question is settled and after a timeout; State
// tells the two apart.
type QuestionView struct {
	domain.Question
	UserAnswer *string
	State      QuestionState
}

// Settlement describes the outcome of the current question. Applied is false when the
// event that produced it was ignored because the question was already settled.
type Settlement struct {
	Applied         bool           `json:"applied"`
	QuestionID      string         `json:"questionId"`
	UserAnswer      *string        `json:"userAnswer"`
	CorrectOptionID string         `json:"correctOptionId"`
	Correct         bool           `json:"correct"`
	TimedOut        bool           `json:"timedOut"`
	TimeSpent       int            `json:"timeSpent"`
	Score           int            `json:"score"`
	Explanation     string         `json:"explanation"`
	Source          *domain.Source `json:"source,omitempty"`
}

// Progress is returned by Advance.
type Progress struct {
	Index    int    `json:"index"`
	Total    int    `json:"total"`
	Done     bool   `json:"done"`
	ResultID string `json:"resultId,omitempty"`
}

// Hooks lets a transport follow the countdown. Both run on the timer's goroutine.
type Hooks struct {
	Tick    func(elapsed, remaining int)
	Expired func(Settlement)
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	CategoryID string
	Index      int
	Score      int
	State      SessionState
	ResultID   string
	Questions  []QuestionView
	Times      map[string]int
}

// Session drives one user through a shuffled question sequence. SelectAnswer, TimeExpire and
// Advance are serialized by mu, and each re-checks its guards, so a late or duplicated event
// is a no-op instead of a double count.
type Session struct {
	mu         sync.Mutex
	categoryID string
	questions  []QuestionView
	index      int
	score      int
	times      map[string]int
	state      SessionState
	resultID   string
	hooks      Hooks

	duration  time.Duration
	timer     *timer.Timer
	submitter Submitter
	logger    *zap.Logger
}

func newSession(categoryID string, questions []QuestionView, duration time.Duration, now func() time.Time, submitter Submitter, logger *zap.Logger) *Session {
	s := &Session{
		categoryID: categoryID,
		questions:  questions,
		times:      make(map[string]int, len(questions)),
		duration:   duration,
		submitter:  submitter,
		logger:     logger,
	}
	s.timer = timer.New(
		timer.WithClock(now),
		timer.OnTick(s.handleTick),
		timer.OnExpire(s.handleExpire),
	)
	s.questions[0].State = QuestionPresented
	s.timer.Start(duration)
	return s
}

// SetHooks replaces the countdown observers.
func (s *Session) SetHooks(h Hooks) {
	s.mu.Lock()
	s.hooks = h
	s.mu.Unlock()
}

// Observe samples the countdown; due ticks and expiry are delivered through the hooks.
func (s *Session) Observe() {
	s.timer.Observe()
}

// Run observes the countdown every interval until ctx is done.
func (s *Session) Run(ctx context.Context, every time.Duration) {
	s.timer.Run(ctx, every)
}

// SelectAnswer records optionID for the current question, scores it and freezes its timer.
func (s *Session) SelectAnswer(optionID string) (Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionInProgress {
		return Settlement{}, nil
	}
	q := &s.questions[s.index]
	if q.State != QuestionPresented {
		return s.settlementLocked(q, false), nil
	}
	if !q.HasOption(optionID) {
		return Settlement{}, domain.ErrOptionNotFound
	}
	if !s.timer.Pause() {
		// The deadline passed before this answer arrived.
		return s.expireLocked(q), nil
	}

	answer := optionID
	q.UserAnswer = &answer
	q.State = QuestionAnswered
	if optionID == q.CorrectOptionID {
		s.score++
	}
	s.times[q.ID] = s.timer.Elapsed()
	return s.settlementLocked(q, true), nil
}

// TimeExpire settles the current question as unanswered with the full duration spent.
func (s *Session) TimeExpire() (Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionInProgress {
		return Settlement{}, nil
	}
	q := &s.questions[s.index]
	if q.State != QuestionPresented {
		return s.settlementLocked(q, false), nil
	}

	return s.expireLocked(q), nil
}

func (s *Session) expireLocked(q *QuestionView) Settlement {
	s.timer.Stop()
	q.UserAnswer = nil
	q.State = QuestionTimedOut
	s.times[q.ID] = int(math.Ceil(s.duration.Seconds()))
	return s.settlementLocked(q, true)
}

// Advance presents the next question, or submits the attempt after the last one.
// A failed submission can be retried by calling Advance again; once submitted, Advance keeps
// returning the same result id without writing again.
func (s *Session) Advance(ctx context.Context) (Progress, error) {
	s.mu.Lock()
	switch s.state {
	case SessionSubmitting:
		p := s.progressLocked()
		s.mu.Unlock()
		return p, domain.ErrSubmissionInFlight
	case SessionSubmitted:
		p := s.progressLocked()
		s.mu.Unlock()
		return p, nil
	case SessionInProgress:
		if !s.questions[s.index].State.Settled() {
			p := s.progressLocked()
			s.mu.Unlock()
			return p, domain.ErrNotSettled
		}
		if s.index < len(s.questions)-1 {
			s.index++
			s.questions[s.index].State = QuestionPresented
			s.timer.Start(s.duration)
			p := s.progressLocked()
			s.mu.Unlock()
			return p, nil
		}
	}

	req := s.submissionLocked()
	s.state = SessionSubmitting
	s.mu.Unlock()

	id, err := s.submitter.Submit(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = SessionSubmissionFailed
		s.logger.Warn("session submission failed",
			zap.String("category", s.categoryID),
			zap.Error(err),
		)
		return s.progressLocked(), err
	}
	s.state = SessionSubmitted
	s.resultID = id
	return s.progressLocked(), nil
}

// Current returns a copy of the question being presented.
func (s *Session) Current() QuestionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneView(s.questions[s.index])
}

// Score returns the number of correctly answered questions so far.
func (s *Session) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// State returns the session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Duration returns the per-question countdown length.
func (s *Session) Duration() time.Duration {
	return s.duration
}

// Snapshot copies the whole session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		CategoryID: s.categoryID,
		Index:      s.index,
		Score:      s.score,
		State:      s.state,
		ResultID:   s.resultID,
		Questions:  make([]QuestionView, len(s.questions)),
		Times:      make(map[string]int, len(s.times)),
	}
	for i, q := range s.questions {
		snap.Questions[i] = cloneView(q)
	}
	for id, t := range s.times {
		snap.Times[id] = t
	}
	return snap
}

func (s *Session) handleTick(elapsed int) {
	s.mu.Lock()
	hook := s.hooks.Tick
	s.mu.Unlock()
	if hook == nil {
		return
	}
	total := int(math.Ceil(s.duration.Seconds()))
	hook(elapsed, total-elapsed)
}

func (s *Session) handleExpire() {
	settlement, err := s.TimeExpire()
	if err != nil || !settlement.Applied {
		return
	}
	s.mu.Lock()
	hook := s.hooks.Expired
	s.mu.Unlock()
	if hook != nil {
		hook(settlement)
	}
}

func (s *Session) settlementLocked(q *QuestionView, applied bool) Settlement {
	st := Settlement{
		Applied:         applied,
		QuestionID:      q.ID,
		CorrectOptionID: q.CorrectOptionID,
		TimedOut:        q.State == QuestionTimedOut,
		TimeSpent:       s.times[q.ID],
		Score:           s.score,
		Explanation:     q.Explanation,
		Source:          q.Source,
	}
	if q.UserAnswer != nil {
		answer := *q.UserAnswer
		st.UserAnswer = &answer
		st.Correct = answer == q.CorrectOptionID
	}
	return st
}

func (s *Session) submissionLocked() domain.SubmitRequest {
	answers := make([]domain.AnswerRecord, 0, len(s.questions))
	for _, q := range s.questions {
		record := domain.AnswerRecord{QuestionID: q.ID, TimeSpent: s.times[q.ID]}
		if q.UserAnswer != nil {
			answer := *q.UserAnswer
			record.UserAnswer = &answer
		}
		answers = append(answers, record)
	}
	score, total := s.score, len(s.questions)
	return domain.SubmitRequest{
		CategoryID: s.categoryID,
		Score:      &score,
		Total:      &total,
		Answers:    answers,
	}
}

func (s *Session) progressLocked() Progress {
	return Progress{
		Index:    s.index,
		Total:    len(s.questions),
		Done:     s.state == SessionSubmitted,
		ResultID: s.resultID,
	}
}

func cloneView(q QuestionView) QuestionView {
	out := QuestionView{Question: q.Question.Clone(), State: q.State}
	if q.UserAnswer != nil {
		answer := *q.UserAnswer
		out.UserAnswer = &answer
	}
	return out
}
