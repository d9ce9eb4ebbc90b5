package http

import (
	"net/http"
	"time"

	"exam-reviewer/internal/app"
	"exam-reviewer/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options tunes the HTTP surface.
type Options struct {
	CORSOrigins    []string
	InlineFallback bool
	StrictState    bool
	ReportInterval time.Duration
	ReportBurst    int
	TickInterval   time.Duration
}

// NewRouter mounts the REST API, the websocket endpoint, health and metrics.
func NewRouter(bank app.Bank, quiz *app.QuizService, results *app.ResultService, m *metrics.Metrics, logger *zap.Logger, opts Options) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	interval := opts.ReportInterval
	if interval <= 0 {
		interval = time.Second
	}
	burst := opts.ReportBurst
	if burst <= 0 {
		burst = 5
	}

	api := NewAPI(bank, results, logger, opts.InlineFallback, rate.NewLimiter(rate.Every(interval), burst))
	ws := NewWSHandler(quiz, logger, WSOptions{StrictState: opts.StrictState, TickInterval: opts.TickInterval, Sessions: sessionObserver(m)})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(logger))
	if m != nil {
		r.Use(m.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	r.Get("/ws", ws.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", api.ListCategories)
		r.Get("/categories/{id}", api.GetCategory)
		r.Get("/reviewer/{category}", api.ReviewerQuestions)
		r.Post("/reports", api.CreateReport)

		r.Post("/results", api.SubmitResult)
		r.Group(func(r chi.Router) {
			r.Use(resultCache)
			r.Head("/results/{id}", api.HeadResult)
			r.Get("/results/{id}", api.GetResult)
			r.Get("/results/{id}/review", api.ReviewResult)
			r.Get("/results/{id}/insights", api.ResultInsights)
		})
	})
	return r
}

// resultCache scopes one result memo to each request.
func resultCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(app.WithResultCache(r.Context())))
	})
}

func accessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func sessionObserver(m *metrics.Metrics) SessionObserver {
	if m == nil {
		return nil
	}
	return m
}
