package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quizroom/internal/domain"
	"quizroom/internal/infra/memory"
)

type countingSource struct {
	inner *memory.Store
	calls atomic.Int64
}

func (c *countingSource) QuestionsForRoom(ctx context.Context, roomID string) ([]domain.Question, error) {
	c.calls.Add(1)
	return c.inner.QuestionsForRoom(ctx, roomID)
}

func seedQuestionRoom() *memory.Store {
	store := memory.NewStore()
	store.SeedRoom(domain.Room{ID: "room-1", Code: "QUIZ42"}, []domain.Question{
		{
			ID: "q1", RoomID: "room-1", Text: "What is 2 + 2?",
			Type: domain.SingleChoice, TimeLimitSeconds: 20, PointValue: 10, Ordinal: 1,
			Options: []domain.AnswerOption{
				{ID: "q1o1", QuestionID: "q1", Text: "3"},
				{ID: "q1o2", QuestionID: "q1", Text: "4", IsCorrect: true},
			},
		},
	})
	return store
}

func TestQuestionCacheFillsOnMiss(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)

	source := &countingSource{inner: seedQuestionRoom()}
	cache := NewQuestionCache(client, source, 10*time.Minute)

	questions, err := cache.QuestionsForRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if len(questions) != 1 || questions[0].ID != "q1" || len(questions[0].Options) != 2 {
		t.Fatalf("unexpected questions: %+v", questions)
	}
	if !mr.Exists("quiz_game:questions:room-1") {
		t.Fatalf("expected cached blob after miss")
	}

	// Correctness metadata must survive the round trip; the transport
	// layer strips it, not the cache.
	questions, err = cache.QuestionsForRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if !questions[0].Options[1].IsCorrect {
		t.Fatalf("cache dropped the correct flag")
	}
	if got := source.calls.Load(); got != 1 {
		t.Fatalf("expected a single store read, got %d", got)
	}
}

func TestQuestionCacheSingleFlight(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)

	source := &countingSource{inner: seedQuestionRoom()}
	cache := NewQuestionCache(client, source, 10*time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.QuestionsForRoom(ctx, "room-1"); err != nil {
				t.Errorf("read: %v", err)
			}
		}()
	}
	wg.Wait()

	// Concurrent cold reads collapse; a few may slip past the first
	// cache check before the winner fills it, but most must not.
	if got := source.calls.Load(); got > 3 {
		t.Fatalf("cold stampede hit the store %d times", got)
	}
}

func TestQuestionCacheExpires(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)

	source := &countingSource{inner: seedQuestionRoom()}
	cache := NewQuestionCache(client, source, 10*time.Minute)

	if _, err := cache.QuestionsForRoom(ctx, "room-1"); err != nil {
		t.Fatalf("first read: %v", err)
	}
	mr.FastForward(12 * time.Minute)
	if _, err := cache.QuestionsForRoom(ctx, "room-1"); err != nil {
		t.Fatalf("read after expiry: %v", err)
	}
	if got := source.calls.Load(); got != 2 {
		t.Fatalf("expected a refill after expiry, got %d store reads", got)
	}
}

func TestQuestionCachePropagatesSourceErrors(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)

	source := &countingSource{inner: memory.NewStore()} // no rooms seeded
	cache := NewQuestionCache(client, source, 10*time.Minute)

	if _, err := cache.QuestionsForRoom(ctx, "room-missing"); err == nil {
		t.Fatalf("expected the store's error to surface")
	}
}
