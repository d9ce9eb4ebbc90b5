package app

import "exam-reviewer/internal/domain"

// Timeline entry statuses.
const (
	StatusCorrect    = "correct"
	StatusIncorrect  = "incorrect"
	StatusUnanswered = "unanswered"
)

// TimelineEntry is one question's place in the per-question time chart.
type TimelineEntry struct {
	Number     int    `json:"number"`
	QuestionID string `json:"questionId"`
	TimeSpent  int    `json:"timeSpent"`
	Status     string `json:"status"`
}

// Insights are read-time aggregates over a reviewed result.
type Insights struct {
	Total       int             `json:"total"`
	Correct     int             `json:"correct"`
	Incorrect   int             `json:"incorrect"`
	Unanswered  int             `json:"unanswered"`
	Percentage  int             `json:"percentage"`
	AverageTime int             `json:"averageTime"`
	FastestTime int             `json:"fastestTime"`
	SlowestTime int             `json:"slowestTime"`
	Timeline    []TimelineEntry `json:"timeline"`
}

// ComputeInsights derives counts and timing stats. An empty review yields all zeros.
func ComputeInsights(review []domain.ReviewedQuestion) Insights {
	out := Insights{Total: len(review), Timeline: make([]TimelineEntry, 0, len(review))}
	if len(review) == 0 {
		return out
	}

	sum := 0
	out.FastestTime = review[0].TimeSpent
	out.SlowestTime = review[0].TimeSpent
	for i, q := range review {
		status := StatusIncorrect
		switch {
		case q.UserAnswer == nil:
			status = StatusUnanswered
			out.Unanswered++
		case q.Correct():
			status = StatusCorrect
			out.Correct++
		default:
			out.Incorrect++
		}

		sum += q.TimeSpent
		if q.TimeSpent < out.FastestTime {
			out.FastestTime = q.TimeSpent
		}
		if q.TimeSpent > out.SlowestTime {
			out.SlowestTime = q.TimeSpent
		}
		out.Timeline = append(out.Timeline, TimelineEntry{
			Number:     i + 1,
			QuestionID: q.ID,
			TimeSpent:  q.TimeSpent,
			Status:     status,
		})
	}
	out.AverageTime = int(float64(sum)/float64(len(review)) + 0.5)
	out.Percentage = Percentage(out.Correct, out.Total)
	return out
}
