package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

// LeaderboardRepository writes one durable JSON document per finished room.
// Records are write-once: a second insert for the same room fails instead of
// overwriting history. Keys carry no TTL; the reporting side owns retention.
type LeaderboardRepository struct {
	client *redis.Client
}

func NewLeaderboardRepository(client *redis.Client) *LeaderboardRepository {
	return &LeaderboardRepository{client: client}
}

func (r *LeaderboardRepository) Insert(ctx context.Context, record domain.LeaderboardRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, r.key(record.RoomID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("insert leaderboard: %w", err)
	}
	if !ok {
		return fmt.Errorf("leaderboard already recorded for room %s", record.RoomID)
	}
	return nil
}

func (r *LeaderboardRepository) key(roomID string) string {
	return "quiz:leaderboard:" + roomID
}
