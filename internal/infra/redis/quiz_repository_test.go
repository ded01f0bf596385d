package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

type countingLoader struct {
	loads   int32
	quizzes map[string]domain.Quiz
}

func (l *countingLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	atomic.AddInt32(&l.loads, 1)
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func TestQuizRepositoryCachesInRedis(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	loader := &countingLoader{quizzes: map[string]domain.Quiz{
		"quiz-1": {ID: "quiz-1", Title: "Cached", Questions: []domain.Question{{ID: "q1"}}},
	}}
	repo := NewQuizRepository(client, loader, time.Minute)

	for i := 0; i < 3; i++ {
		quiz, err := repo.GetQuiz(ctx, "quiz-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if quiz.Title != "Cached" || len(quiz.Questions) != 1 {
			t.Fatalf("wrong quiz: %+v", quiz)
		}
	}
	if n := atomic.LoadInt32(&loader.loads); n != 1 {
		t.Fatalf("expected one backend load, got %d", n)
	}
	if !mr.Exists("quiz:content:quiz-1") {
		t.Fatal("quiz not cached in redis")
	}
}

func TestQuizRepositoryReloadsAfterExpiry(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	loader := &countingLoader{quizzes: map[string]domain.Quiz{
		"quiz-1": {ID: "quiz-1"},
	}}
	repo := NewQuizRepository(client, loader, time.Minute)

	if _, err := repo.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	// Past the TTL even with max jitter applied.
	mr.FastForward(2 * time.Minute)
	if _, err := repo.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if n := atomic.LoadInt32(&loader.loads); n != 2 {
		t.Fatalf("expected reload after expiry, got %d loads", n)
	}
}

func TestQuizRepositoryMiss(t *testing.T) {
	_, client := newTestClient(t)
	loader := &countingLoader{quizzes: map[string]domain.Quiz{}}
	repo := NewQuizRepository(client, loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}
