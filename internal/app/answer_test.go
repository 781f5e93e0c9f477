package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quizroom/internal/domain"
)

func TestSubmitAnswerScoresAndBroadcasts(t *testing.T) {
	ctx := context.Background()
	tg := newTestGame(t)

	events, cancel := tg.hub.Subscribe("QUIZ42")
	defer cancel()

	if _, err := tg.game.Start(ctx, "room-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	tg.clock.Advance(4 * time.Second)

	result, err := tg.game.SubmitAnswer(ctx, "room-1", "p1", "q1", "q1o2")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// 4s into a 20s window: 10 * (0.5 + 0.5*0.8) = 9.
	if !result.Accepted || !result.IsCorrect || result.PointsAwarded != 9 || result.NewTotalScore != 9 {
		t.Fatalf("unexpected result: %+v", result)
	}

	player, err := tg.store.PlayerByID(ctx, "p1")
	if err != nil || player.Score != 9 {
		t.Fatalf("expected durable score 9, got %+v err=%v", player, err)
	}
	scores, err := tg.cache.TopScores(ctx, "room-1", 10)
	if err != nil || len(scores) != 1 || scores[0].Score != 9 {
		t.Fatalf("expected cached score 9, got %+v err=%v", scores, err)
	}

	sawScored := false
	for i := 0; i < 4 && !sawScored; i++ {
		select {
		case event := <-events:
			if scored, ok := event.(domain.AnswerScored); ok {
				if scored.PlayerID != "p1" || scored.NewTotalScore != 9 {
					t.Fatalf("unexpected scored event: %+v", scored)
				}
				sawScored = true
			}
		default:
		}
	}
	if !sawScored {
		t.Fatalf("expected an AnswerScored event")
	}
}

func TestSubmitAnswerWrongOptionStillRecorded(t *testing.T) {
	ctx := context.Background()
	tg := newTestGame(t)

	if _, err := tg.game.Start(ctx, "room-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	result, err := tg.game.SubmitAnswer(ctx, "room-1", "p1", "q1", "q1o1")
	if err != nil {
		t.Fatalf("submit wrong answer: %v", err)
	}
	if result.IsCorrect || result.PointsAwarded != 0 {
		t.Fatalf("unexpected result for wrong answer: %+v", result)
	}
	// Wrong answers still consume the one attempt.
	if _, err := tg.game.SubmitAnswer(ctx, "room-1", "p1", "q1", "q1o2"); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected already answered, got %v", err)
	}
}

func TestSubmitAnswerLateEarnsZero(t *testing.T) {
	ctx := context.Background()
	tg := newTestGame(t)

	if _, err := tg.game.Start(ctx, "room-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	tg.clock.Advance(21 * time.Second)

	result, err := tg.game.SubmitAnswer(ctx, "room-1", "p1", "q1", "q1o2")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.PointsAwarded != 0 || result.NewTotalScore != 0 {
		t.Fatalf("expected zero points for late answer, got %+v", result)
	}
}

func TestSubmitAnswerRejections(t *testing.T) {
	ctx := context.Background()
	tg := newTestGame(t)

	if _, err := tg.game.SubmitAnswer(ctx, "room-1", "p1", "q1", "q1o2"); !errors.Is(err, domain.ErrGameNotActive) {
		t.Fatalf("expected game not active before start, got %v", err)
	}

	if _, err := tg.game.Start(ctx, "room-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := tg.game.SubmitAnswer(ctx, "room-1", "ghost", "q1", "q1o2"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player not found, got %v", err)
	}
	if _, err := tg.game.SubmitAnswer(ctx, "room-1", "p1", "q-missing", "q1o2"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
	if _, err := tg.game.SubmitAnswer(ctx, "room-1", "p1", "q1", "q2o1"); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected option not found for mismatched option, got %v", err)
	}

	if _, err := tg.game.End(ctx, "room-1"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := tg.game.SubmitAnswer(ctx, "room-1", "p1", "q1", "q1o2"); !errors.Is(err, domain.ErrGameNotActive) {
		t.Fatalf("expected game not active after end, got %v", err)
	}
}

func TestSubmitAnswerAtMostOnceUnderRace(t *testing.T) {
	ctx := context.Background()
	tg := newTestGame(t)

	if _, err := tg.game.Start(ctx, "room-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	tg.clock.Advance(time.Second)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = tg.game.SubmitAnswer(ctx, "room-1", "p1", "q1", "q1o2")
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, domain.ErrAlreadyAnswered):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted submission, got %d", accepted)
	}
	if tg.store.AnswerCountForRoom("room-1") != 1 {
		t.Fatalf("expected a single recorded answer")
	}
	player, _ := tg.store.PlayerByID(ctx, "p1")
	if player.Score > 10 {
		t.Fatalf("score credited more than once: %d", player.Score)
	}
}

func TestFullGameScenario(t *testing.T) {
	ctx := context.Background()
	tg := newTestGame(t)

	if _, err := tg.game.Start(ctx, "room-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	tg.clock.Advance(4 * time.Second)
	if _, err := tg.game.SubmitAnswer(ctx, "room-1", "p1", "q1", "q1o2"); err != nil {
		t.Fatalf("p1 q1: %v", err)
	}
	if _, err := tg.game.SubmitAnswer(ctx, "room-1", "p2", "q1", "q1o1"); err != nil {
		t.Fatalf("p2 q1: %v", err)
	}

	if _, err := tg.game.Advance(ctx, "room-1", 0); err != nil {
		t.Fatalf("advance: %v", err)
	}

	tg.clock.Advance(2 * time.Second)
	if _, err := tg.game.SubmitAnswer(ctx, "room-1", "p2", "q2", "q2o1"); err != nil {
		t.Fatalf("p2 q2: %v", err)
	}

	result, err := tg.game.Advance(ctx, "room-1", 1)
	if err != nil {
		t.Fatalf("final advance: %v", err)
	}
	if !result.Finished {
		t.Fatalf("expected finished game")
	}
	if len(result.Leaderboard) != 2 {
		t.Fatalf("expected 2 leaderboard entries, got %d", len(result.Leaderboard))
	}
	// p2: 20 * (0.5 + 0.5*0.8) = 18 on q2. p1: 9 on q1.
	if result.Leaderboard[0].PlayerID != "p2" || result.Leaderboard[0].Score != 18 {
		t.Fatalf("unexpected winner: %+v", result.Leaderboard[0])
	}
	if result.Leaderboard[1].PlayerID != "p1" || result.Leaderboard[1].Score != 9 {
		t.Fatalf("unexpected runner-up: %+v", result.Leaderboard[1])
	}
}
