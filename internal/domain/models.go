package domain

// Option is one selectable answer of a question.
type Option struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// Source cites where a question's explanation comes from.
type Source struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID              string   `json:"id" yaml:"id"`
	CategoryID      string   `json:"categoryId" yaml:"categoryId"`
	Text            string   `json:"text" yaml:"text"`
	Options         []Option `json:"options" yaml:"options"`
	CorrectOptionID string   `json:"correctOptionId" yaml:"correctOptionId"`
	Explanation     string   `json:"explanation" yaml:"explanation"`
	Source          *Source  `json:"source,omitempty" yaml:"source,omitempty"`
}

// HasOption reports whether optionID belongs to the question.
func (q Question) HasOption(optionID string) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// Clone returns a copy whose option slice and source are not shared with q.
func (q Question) Clone() Question {
	out := q
	out.Options = append([]Option(nil), q.Options...)
	if q.Source != nil {
		src := *q.Source
		out.Source = &src
	}
	return out
}

// Category groups questions by topic. QuestionCount is display-only.
type Category struct {
	ID            string `json:"id" yaml:"id"`
	Title         string `json:"title" yaml:"title"`
	Description   string `json:"description" yaml:"description"`
	QuestionCount int    `json:"questionCount" yaml:"questionCount"`
}

// AnswerRecord is the minimal per-question outcome persisted with a result.
// A nil UserAnswer means the question timed out unanswered.
type AnswerRecord struct {
	QuestionID string  `json:"questionId" validate:"required"`
	UserAnswer *string `json:"userAnswer"`
	TimeSpent  int     `json:"timeSpent" validate:"gte=0"`
}

// SubmitRequest is the boundary shape for persisting a finished quiz.
// Score and Total are pointers so that an absent field can be told apart from zero.
type SubmitRequest struct {
	CategoryID string         `json:"categoryId" validate:"required"`
	Score      *int           `json:"score" validate:"required,gte=0"`
	Total      *int           `json:"total" validate:"required,gt=0"`
	Answers    []AnswerRecord `json:"answers" validate:"required,dive"`
}

// StoredResult is the record kept under results:{id}.
type StoredResult struct {
	ID         string         `json:"id"`
	CategoryID string         `json:"categoryId"`
	Score      int            `json:"score"`
	Total      int            `json:"total"`
	Answers    []AnswerRecord `json:"answers"`
}

// Summary is the headline view of a stored result.
type Summary struct {
	ID         string `json:"id"`
	CategoryID string `json:"categoryId"`
	Score      int    `json:"score"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
}

// ReviewedQuestion joins a bank question with the stored answer and timing.
type ReviewedQuestion struct {
	Question
	UserAnswer *string `json:"userAnswer"`
	TimeSpent  int     `json:"timeSpent"`
}

// Correct reports whether the stored answer matches the correct option.
func (r ReviewedQuestion) Correct() bool {
	return r.UserAnswer != nil && *r.UserAnswer == r.CorrectOptionID
}

// ReportRequest is the boundary shape for flagging a problem with a question.
type ReportRequest struct {
	QuestionID   string `json:"questionId" validate:"required"`
	CategoryID   string `json:"categoryId" validate:"required"`
	QuestionText string `json:"questionText"`
	Message      string `json:"message" validate:"required"`
	Timestamp    int64  `json:"timestamp"`
}

// ReportStatusPending is the status every new report starts in.
const ReportStatusPending = "pending"

// Report is the record kept under report:{id}. It never expires.
type Report struct {
	ID           string `json:"id"`
	QuestionID   string `json:"questionId"`
	CategoryID   string `json:"categoryId"`
	QuestionText string `json:"questionText"`
	Message      string `json:"message"`
	Timestamp    int64  `json:"timestamp"`
	Status       string `json:"status"`
	Reviewed     bool   `json:"reviewed"`
}
