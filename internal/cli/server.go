package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/julienschmidt/httprouter"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quizroom/internal/app"
	"quizroom/internal/config"
	"quizroom/internal/domain"
	"quizroom/internal/infra/memory"
	infrapg "quizroom/internal/infra/postgres"
	infraredis "quizroom/internal/infra/redis"
	transport "quizroom/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var store app.Store
	var questions app.QuestionSource
	if pool != nil {
		pgStore := infrapg.NewStore(pool)
		store = pgStore
		questions = pgStore
	} else {
		memStore := memory.NewStore()
		seedDemoRoom(memStore)
		store = memStore
		questions = memStore
		logger.Warn("postgres not configured, using in-memory store with a demo room")
	}

	questionTTL := config.TTLDuration(cfg.Game.QuestionTTL, 10*time.Minute)
	stateTTL := config.TTLDuration(cfg.Game.StateTTL, time.Hour)
	scoreTTL := config.TTLDuration(cfg.Redis.ScoreTTL, 2*time.Hour)

	var cache app.GameCache
	if redisClient != nil {
		cache = infraredis.NewGameCache(redisClient, scoreTTL)
		questions = infraredis.NewQuestionCache(redisClient, questions, questionTTL)
	} else {
		cache = memory.NewCache()
		logger.Warn("redis not configured, using in-memory game cache")
	}

	hub := app.NewHub()
	registry := app.NewRegistry()
	game := app.NewGameService(store, questions, cache, hub, logger, stateTTL)

	wsHandler := transport.NewWSHandler(game, registry, hub, logger)
	apiHandler := transport.NewAPIHandler(game, logger)

	router := httprouter.New()
	apiHandler.Register(router)
	router.HandlerFunc(http.MethodGet, "/ws", wsHandler.ServeWS)
	router.HandlerFunc(http.MethodGet, "/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting quizroom server", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "err", err)
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

// seedDemoRoom provides minimal fixtures for running without Postgres;
// room and question authoring normally happens upstream of this service.
func seedDemoRoom(store *memory.Store) {
	store.SeedRoom(domain.Room{
		ID:     "room-1",
		Code:   "DEMO42",
		Name:   "Demo room",
		Status: domain.RoomWaiting,
	}, []domain.Question{
		{
			ID: "q1", RoomID: "room-1", Text: "What is 2 + 2?",
			Type: domain.SingleChoice, TimeLimitSeconds: 20, PointValue: 10, Ordinal: 1,
			Options: []domain.AnswerOption{
				{ID: "q1o1", QuestionID: "q1", Text: "3"},
				{ID: "q1o2", QuestionID: "q1", Text: "4", IsCorrect: true},
				{ID: "q1o3", QuestionID: "q1", Text: "5"},
			},
		},
		{
			ID: "q2", RoomID: "room-1", Text: "The sky is blue.",
			Type: domain.TrueFalse, TimeLimitSeconds: 10, PointValue: 20, Ordinal: 2,
			Options: []domain.AnswerOption{
				{ID: "q2o1", QuestionID: "q2", Text: "True", IsCorrect: true},
				{ID: "q2o2", QuestionID: "q2", Text: "False"},
			},
		},
	})
	store.SeedPlayer(domain.Player{ID: "p1", RoomID: "room-1", DisplayName: "Alice", ClubID: "club-1"})
	store.SeedPlayer(domain.Player{ID: "p2", RoomID: "room-1", DisplayName: "Bob", ClubID: "club-1"})
}
