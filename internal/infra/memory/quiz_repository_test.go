package memory

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

func TestQuizRepositoryCachesLoads(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{quizzes: map[string]domain.Quiz{
		"quiz-1": {ID: "quiz-1", Title: "Cached"},
	}}
	repo := NewQuizRepository(loader, time.Minute)

	for i := 0; i < 5; i++ {
		quiz, err := repo.GetQuiz(ctx, "quiz-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if quiz.Title != "Cached" {
			t.Fatalf("wrong quiz: %+v", quiz)
		}
	}
	if n := atomic.LoadInt32(&loader.loads); n != 1 {
		t.Fatalf("expected a single backend load, got %d", n)
	}
}

func TestQuizRepositoryDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{quizzes: map[string]domain.Quiz{}}
	repo := NewQuizRepository(loader, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := repo.GetQuiz(ctx, "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
			t.Fatalf("expected quiz not found, got %v", err)
		}
	}
	if n := atomic.LoadInt32(&loader.loads); n != 2 {
		t.Fatalf("misses should hit the loader every time, got %d loads", n)
	}
}

func TestStaticQuizLoader(t *testing.T) {
	loader := NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {ID: "quiz-1"},
	})

	if _, err := loader.LoadQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("known quiz: %v", err)
	}
	if _, err := loader.LoadQuiz(context.Background(), "nope"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}
