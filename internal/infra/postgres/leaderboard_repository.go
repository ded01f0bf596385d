package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

// LeaderboardRepository appends finished-room records to Postgres. Append-only;
// this service never reads them back.
type LeaderboardRepository struct {
	pool *pgxpool.Pool
}

func NewLeaderboardRepository(pool *pgxpool.Pool) *LeaderboardRepository {
	return &LeaderboardRepository{pool: pool}
}

func (r *LeaderboardRepository) Insert(ctx context.Context, record domain.LeaderboardRecord) error {
	players, err := json.Marshal(record.Players)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO leaderboards (room_id, quiz_id, finished_at, players) VALUES ($1, $2, $3, $4)`,
		record.RoomID, record.QuizID, record.FinishedAt, players,
	)
	if err != nil {
		return fmt.Errorf("insert leaderboard: %w", err)
	}
	return nil
}
