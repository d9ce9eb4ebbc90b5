package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"exam-reviewer/internal/app"
	"exam-reviewer/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultPageSize is the review page length when the client does not ask for one.
const DefaultPageSize = 10

const maxPageSize = 100

// API serves the REST endpoints for the question bank, results and reports.
type API struct {
	bank          app.Bank
	results       *app.ResultService
	submitter     app.Submitter
	logger        *zap.Logger
	reportLimiter *rate.Limiter
}

func NewAPI(bank app.Bank, results *app.ResultService, logger *zap.Logger, inlineFallback bool, reportLimiter *rate.Limiter) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	var submitter app.Submitter = results
	if inlineFallback {
		submitter = app.NewInlineFallback(results, logger)
	}
	return &API{
		bank:          bank,
		results:       results,
		submitter:     submitter,
		logger:        logger,
		reportLimiter: reportLimiter,
	}
}

type idResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type resultResponse struct {
	domain.Summary
	CategoryTitle string `json:"categoryTitle"`
}

type reviewPage struct {
	Items      []reviewItem `json:"items"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalItems int          `json:"totalItems"`
	TotalPages int          `json:"totalPages"`
}

type reviewItem struct {
	Number int `json:"number"`
	domain.ReviewedQuestion
	Correct bool `json:"correct"`
}

func (a *API) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := a.bank.ListCategories(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (a *API) GetCategory(w http.ResponseWriter, r *http.Request) {
	cat, err := a.bank.GetCategory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}

// ReviewerQuestions lists a category's questions with answers, for study mode.
func (a *API) ReviewerQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := a.bank.ListQuestions(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if len(questions) == 0 {
		a.writeError(w, r, domain.ErrEmptyCategory)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (a *API) SubmitResult(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	id, err := a.submitter.Submit(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (a *API) HeadResult(w http.ResponseWriter, r *http.Request) {
	ok, err := a.results.Exists(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err != nil:
		w.WriteHeader(statusFor(err))
	case !ok:
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (a *API) GetResult(w http.ResponseWriter, r *http.Request) {
	summary, err := a.results.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	resp := resultResponse{Summary: summary, CategoryTitle: summary.CategoryID}
	if cat, err := a.bank.GetCategory(r.Context(), summary.CategoryID); err == nil {
		resp.CategoryTitle = cat.Title
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) ReviewResult(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil || page < 1 {
		a.writeError(w, r, fmt.Errorf("%w: page must be a positive integer", domain.ErrValidation))
		return
	}
	size, err := queryInt(r, "pageSize", DefaultPageSize)
	if err != nil || size < 1 || size > maxPageSize {
		a.writeError(w, r, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize))
		return
	}

	review, err := a.results.DetailedReview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(review, page, size))
}

func (a *API) ResultInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := a.results.Insights(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insights)
}

func (a *API) CreateReport(w http.ResponseWriter, r *http.Request) {
	if a.reportLimiter != nil && !a.reportLimiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many reports, try again shortly"})
		return
	}
	var req domain.ReportRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	id, err := a.results.Report(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func paginate(review []domain.ReviewedQuestion, page, size int) reviewPage {
	total := len(review)
	out := reviewPage{
		Items:      []reviewItem{},
		Page:       page,
		PageSize:   size,
		TotalItems: total,
		TotalPages: (total + size - 1) / size,
	}
	start := (page - 1) * size
	if start >= total {
		return out
	}
	end := min(start+size, total)
	for i := start; i < end; i++ {
		out.Items = append(out.Items, reviewItem{
			Number:           i + 1,
			ReviewedQuestion: review[i],
			Correct:          review[i].Correct(),
		})
	}
	return out
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %w", domain.ErrValidation, err)
	}
	return nil
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
