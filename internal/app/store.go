package app

import (
	"context"

	"quizroom/internal/domain"
)

// Store is the durable source of truth for rooms, questions, players
// and recorded answers. Implementations must make RecordAnswer and
// ResetGame atomic: a crash mid-operation may leave the prior state or
// the new state, never half of either.
type Store interface {
	RoomByID(ctx context.Context, roomID string) (domain.Room, error)
	RoomByCode(ctx context.Context, code string) (domain.Room, error)
	UpdateRoom(ctx context.Context, roomID string, upd domain.RoomUpdate) (domain.Room, error)
	PlayerByID(ctx context.Context, playerID string) (domain.Player, error)

	// HasPlayerAnswer reports whether the player already scored on the
	// question. It is a fast-path check only; RecordAnswer enforces the
	// uniqueness for real.
	HasPlayerAnswer(ctx context.Context, playerID, questionID string) (bool, error)

	// RecordAnswer inserts the answer row and increments the player's
	// durable score in one transaction, returning the new total.
	// A duplicate (player, question) pair yields domain.ErrAlreadyAnswered.
	RecordAnswer(ctx context.Context, ans domain.PlayerAnswer) (int, error)

	// ResetGame deletes the room's answer rows, zeroes its player
	// scores and returns the room to WAITING in one transaction.
	ResetGame(ctx context.Context, roomID string) (domain.Room, error)

	PlayersByScoreDesc(ctx context.Context, roomID string, limit int) ([]domain.Player, error)
}

// QuestionSource loads a room's questions with their options, ordered
// by ordinal. The postgres store implements it directly; the redis
// question cache wraps another source to avoid repeated loads.
type QuestionSource interface {
	QuestionsForRoom(ctx context.Context, roomID string) ([]domain.Question, error)
}
