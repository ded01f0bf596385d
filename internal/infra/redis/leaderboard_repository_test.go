package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestLeaderboardInsertIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	repo := NewLeaderboardRepository(client)

	record := domain.LeaderboardRecord{
		RoomID:     "ABC123",
		QuizID:     "quiz-1",
		FinishedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Players: []domain.PlayerResult{{
			Identity:    "conn-1",
			DisplayName: "Alice",
			FinalScore:  20,
		}},
	}

	if err := repo.Insert(ctx, record); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	raw, err := mr.Get("quiz:leaderboard:ABC123")
	if err != nil {
		t.Fatalf("stored record missing: %v", err)
	}
	var stored domain.LeaderboardRecord
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatalf("decode stored record: %v", err)
	}
	if stored.QuizID != "quiz-1" || len(stored.Players) != 1 || stored.Players[0].FinalScore != 20 {
		t.Fatalf("stored record mismatch: %+v", stored)
	}

	// Second write must be rejected, not overwrite history.
	record.Players[0].FinalScore = 999
	if err := repo.Insert(ctx, record); err == nil {
		t.Fatal("duplicate insert succeeded")
	}
	raw, _ = mr.Get("quiz:leaderboard:ABC123")
	json.Unmarshal([]byte(raw), &stored)
	if stored.Players[0].FinalScore != 20 {
		t.Fatalf("duplicate insert overwrote record: %+v", stored)
	}
}
