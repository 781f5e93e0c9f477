package app

import (
	"context"
	"math"

	"github.com/google/uuid"

	"quizroom/internal/domain"
)

// SubmitAnswer validates and scores one submission. Correct answers
// within the time limit earn between 50% and 100% of the question's
// point value, decaying linearly with elapsed time; late or wrong
// answers earn zero but are still recorded so the player cannot retry.
//
// The durable insert+increment commits first; the live ranking bump is
// best-effort afterwards. Rejections are returned to the submitter and
// never broadcast.
func (g *GameService) SubmitAnswer(ctx context.Context, roomID, playerID, questionID, answerID string) (domain.AnswerResult, error) {
	unlock := g.lockRoom(roomID)
	defer unlock()

	room, err := g.store.RoomByID(ctx, roomID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	player, err := g.store.PlayerByID(ctx, playerID)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	questions, err := g.questions.QuestionsForRoom(ctx, roomID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	var question domain.Question
	found := false
	for _, q := range questions {
		if q.ID == questionID {
			question, found = q, true
			break
		}
	}
	if !found {
		return domain.AnswerResult{}, domain.ErrQuestionNotFound
	}
	option, ok := question.Option(answerID)
	if !ok {
		return domain.AnswerResult{}, domain.ErrOptionNotFound
	}

	answered, err := g.store.HasPlayerAnswer(ctx, playerID, questionID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if answered {
		return domain.AnswerResult{}, domain.ErrAlreadyAnswered
	}

	state, ok, err := g.cache.GameState(ctx, roomID)
	if err != nil {
		g.logger.Warn("game state read failed", "room", room.Code, "err", err)
	}
	if !ok || !state.IsActive {
		return domain.AnswerResult{}, domain.ErrGameNotActive
	}

	now := g.clock()
	elapsed := now.Sub(state.QuestionStartedAt).Seconds()
	points := awardPoints(option.IsCorrect, elapsed, question.TimeLimitSeconds, question.PointValue)

	newTotal, err := g.store.RecordAnswer(ctx, domain.PlayerAnswer{
		ID:         uuid.NewString(),
		PlayerID:   playerID,
		QuestionID: questionID,
		AnswerID:   answerID,
		RoomID:     roomID,
		Score:      points,
		AnsweredAt: now,
	})
	if err != nil {
		return domain.AnswerResult{}, err
	}

	if points > 0 {
		if _, err := g.cache.IncrementScore(ctx, roomID, playerID, points); err != nil {
			g.logger.Warn("live score increment failed", "room", room.Code, "player", playerID, "err", err)
		}
	}

	g.hub.Publish(domain.AnswerScored{
		RoomCode:      room.Code,
		RoomID:        roomID,
		PlayerID:      playerID,
		DisplayName:   player.DisplayName,
		NewTotalScore: newTotal,
	})

	return domain.AnswerResult{
		Accepted:      true,
		IsCorrect:     option.IsCorrect,
		PointsAwarded: points,
		NewTotalScore: newTotal,
	}, nil
}

// awardPoints implements the time-decayed score: zero for wrong or
// late answers, otherwise pointValue * (0.5 + 0.5*timeBonus) rounded,
// where timeBonus falls linearly from 1 at elapsed=0 to 0 at the limit.
// The bonus is clamped to [0, 1] so an answer can never exceed the
// question's point value, even if the clock steps backward.
func awardPoints(correct bool, elapsedSeconds float64, timeLimitSeconds, pointValue int) int {
	if !correct || timeLimitSeconds <= 0 || elapsedSeconds > float64(timeLimitSeconds) {
		return 0
	}
	timeBonus := math.Min(1, math.Max(0, 1-elapsedSeconds/float64(timeLimitSeconds)))
	return int(math.Round(float64(pointValue) * (0.5 + 0.5*timeBonus)))
}
