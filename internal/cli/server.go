package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exam-reviewer/internal/app"
	"exam-reviewer/internal/config"
	"exam-reviewer/internal/corpus"
	"exam-reviewer/internal/infra/memory"
	"exam-reviewer/internal/infra/postgres"
	redisstore "exam-reviewer/internal/infra/redis"
	"exam-reviewer/internal/logging"
	"exam-reviewer/internal/metrics"
	transport "exam-reviewer/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the reviewer server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	bank, closeBank, err := buildBank(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBank()

	store, closeStore := buildStore(cfg, logger)
	defer closeStore()

	m := metrics.New()
	results := app.NewResultService(store, bank, config.TTLDuration(cfg.Results.TTL, app.DefaultResultTTL), logger, m)
	var submitter app.Submitter = results
	if cfg.Results.InlineFallback {
		submitter = app.NewInlineFallback(results, logger)
	}
	quiz := app.NewQuizService(bank, submitter, config.TTLDuration(cfg.Quiz.QuestionDuration, app.DefaultQuestionDuration), logger)

	router := transport.NewRouter(bank, quiz, results, m, logger, transport.Options{
		CORSOrigins:    cfg.Server.CORSOrigins,
		InlineFallback: cfg.Results.InlineFallback,
		StrictState:    cfg.Quiz.StrictState,
		ReportInterval: config.TTLDuration(cfg.Reports.Interval, time.Second),
		ReportBurst:    cfg.Reports.Burst,
	})

	// No WriteTimeout: websocket sessions outlive any single write deadline.
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting exam reviewer", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildBank serves questions from Postgres when configured, otherwise from the embedded corpus.
func buildBank(ctx context.Context, cfg config.Config, logger *zap.Logger) (app.Bank, func(), error) {
	if cfg.Postgres.URL == "" {
		c, err := corpus.Default()
		if err != nil {
			return nil, nil, err
		}
		logger.Info("serving embedded question corpus", zap.Int("questions", len(c.Questions)))
		return memory.NewBank(c), func() {}, nil
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, nil, err
	}
	loader := postgres.NewCorpusLoader(pool)
	bank := memory.NewCachedBank(loader, config.TTLDuration(cfg.Quiz.BankTTL, 10*time.Minute))
	logger.Info("serving question bank from postgres")
	return bank, pool.Close, nil
}

// buildStore picks Redis when an address is configured, otherwise process memory.
func buildStore(cfg config.Config, logger *zap.Logger) (app.KVStore, func()) {
	if cfg.Redis.Addr == "" {
		logger.Warn("redis not configured, results are kept in process memory")
		return memory.NewStore(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return redisstore.NewStore(client), func() { _ = client.Close() }
}
