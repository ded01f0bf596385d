package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	infrapg "live-quiz-service/internal/infra/postgres"
	infraredis "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	setupLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
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
	roomTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = infrapg.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var rooms app.RoomStore
	if redisClient != nil {
		rooms = infraredis.NewRoomStore(redisClient, roomTTL)
	} else {
		rooms = memory.NewRoomStore(roomTTL)
	}

	var boards app.LeaderboardRepository
	switch {
	case pool != nil:
		boards = infrapg.NewLeaderboardRepository(pool)
	case redisClient != nil:
		boards = infraredis.NewLeaderboardRepository(redisClient)
	default:
		boards = memory.NewLeaderboardRepository()
	}

	gateway := app.NewGateway()
	service := app.NewRoomService(rooms, quizRepo, boards, gateway, clockwork.NewRealClock())
	defer service.Close()

	wsHandler := transport.NewWSHandler(service, gateway)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting live quiz service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}
}

// sampleQuizzes provides demo content for redis/postgres-less runs; production
// deployments load quizzes from the document store instead.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "General Knowledge Demo",
			Questions: []domain.Question{
				{
					ID:   "q1",
					Kind: domain.KindScored,
					Text: "What is the capital of France?",
					Options: []domain.Option{
						{ID: "A", Text: "Berlin"},
						{ID: "B", Text: "Madrid"},
						{ID: "C", Text: "Paris"},
						{ID: "D", Text: "London"},
					},
					CorrectOptionID:  "C",
					TimeLimitSeconds: 15,
				},
				{
					ID:   "q2",
					Kind: domain.KindScored,
					Text: "Which planet is known as the Red Planet?",
					Options: []domain.Option{
						{ID: "A", Text: "Mars"},
						{ID: "B", Text: "Venus"},
						{ID: "C", Text: "Jupiter"},
						{ID: "D", Text: "Saturn"},
					},
					CorrectOptionID:  "A",
					TimeLimitSeconds: 15,
				},
				{
					ID:   "q3",
					Kind: domain.KindUnscored,
					Text: "Which topic should we cover next?",
					Options: []domain.Option{
						{ID: "A", Text: "History"},
						{ID: "B", Text: "Science"},
						{ID: "C", Text: "Sports"},
					},
					TimeLimitSeconds: 10,
				},
			},
		},
	}
}
