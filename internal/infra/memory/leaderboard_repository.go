package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

// LeaderboardRepository collects records in memory. Used by tests and
// redis/postgres-less runs.
type LeaderboardRepository struct {
	mu      sync.Mutex
	records []domain.LeaderboardRecord
}

func NewLeaderboardRepository() *LeaderboardRepository {
	return &LeaderboardRepository{}
}

func (r *LeaderboardRepository) Insert(_ context.Context, record domain.LeaderboardRecord) error {
	r.mu.Lock()
	r.records = append(r.records, record)
	r.mu.Unlock()
	return nil
}

// Records returns a copy of everything inserted so far.
func (r *LeaderboardRepository) Records() []domain.LeaderboardRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.LeaderboardRecord, len(r.records))
	copy(out, r.records)
	return out
}
