package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	infrapg "live-quiz-service/internal/infra/postgres"
	infraredis "live-quiz-service/internal/infra/redis"
	pgmigrations "live-quiz-service/internal/infra/postgres/migrations"
)

func TestRoomLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	loader := infrapg.NewQuizLoader(pool)
	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	rooms := infraredis.NewRoomStore(redisClient, 5*time.Minute)
	boards := infrapg.NewLeaderboardRepository(pool)
	gateway := app.NewGateway()
	service := app.NewRoomService(rooms, quizRepo, boards, gateway, clockwork.NewRealClock())
	defer service.Close()

	roomID, err := service.CreateRoom(ctx, "host-conn", "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	if _, err := service.JoinRoom(ctx, "conn-alice", roomID, "Alice"); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if _, err := service.JoinRoom(ctx, "conn-bob", roomID, "Bob"); err != nil {
		t.Fatalf("join bob: %v", err)
	}

	events, cancel := gateway.Subscribe(roomID, "observer")
	defer cancel()

	if err := service.StartQuestion(ctx, "host-conn", roomID); err != nil {
		t.Fatalf("start question: %v", err)
	}
	if err := service.SubmitVote(ctx, "conn-alice", roomID, "A"); err != nil {
		t.Fatalf("vote alice: %v", err)
	}
	if err := service.SubmitVote(ctx, "conn-bob", roomID, "B"); err != nil {
		t.Fatalf("vote bob: %v", err)
	}

	ended := waitEvent(t, events, app.EventQuestionEnd).Payload.(app.QuestionEndedPayload)
	if ended.CorrectOptionID == nil || *ended.CorrectOptionID != "A" {
		t.Fatalf("question result: %+v", ended)
	}
	if len(ended.Leaderboard) != 2 || ended.Leaderboard[0].DisplayName != "Alice" || ended.Leaderboard[0].Score != 10 {
		t.Fatalf("expected Alice leading with 10, got %+v", ended.Leaderboard)
	}

	// Last question played: next start closes the quiz and persists the result.
	if err := service.StartQuestion(ctx, "host-conn", roomID); err != nil {
		t.Fatalf("finish quiz: %v", err)
	}
	waitEvent(t, events, app.EventQuizEnd)

	room, err := rooms.Load(ctx, roomID)
	if err != nil {
		t.Fatalf("load finished room: %v", err)
	}
	if room.Phase != domain.PhaseQuizEnded {
		t.Fatalf("expected QUIZ_ENDED, got %s", room.Phase)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM leaderboards WHERE room_id = $1`, roomID).Scan(&count); err != nil {
		t.Fatalf("count leaderboards: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one leaderboard row, got %d", count)
	}

	var playersJSON []byte
	if err := pool.QueryRow(ctx, `SELECT players FROM leaderboards WHERE room_id = $1`, roomID).Scan(&playersJSON); err != nil {
		t.Fatalf("read leaderboard players: %v", err)
	}
	var players []domain.PlayerResult
	if err := json.Unmarshal(playersJSON, &players); err != nil {
		t.Fatalf("decode players: %v", err)
	}
	if len(players) != 2 {
		t.Fatalf("expected two players, got %+v", players)
	}
	scores := map[string]int{}
	for _, p := range players {
		scores[p.DisplayName] = p.FinalScore
	}
	if scores["Alice"] != 10 || scores["Bob"] != 0 {
		t.Fatalf("persisted scores: %+v", scores)
	}
}

func waitEvent(t *testing.T, ch <-chan app.Event, typ app.EventType) app.Event {
	t.Helper()
	timeout := time.After(15 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed waiting for %s", typ)
			}
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Integration",
		Questions: []domain.Question{
			{
				ID:   "q1",
				Kind: domain.KindScored,
				Text: "Pick the right one",
				Options: []domain.Option{
					{ID: "A", Text: "Right"},
					{ID: "B", Text: "Wrong"},
				},
				CorrectOptionID:  "A",
				TimeLimitSeconds: 2,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
