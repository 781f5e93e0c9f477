package app

import (
	"context"
	"time"

	"quizroom/internal/domain"
)

// GameCache is the disposable fast path: live game state plus a
// per-room score ranking. Every method must be safe against a cold or
// expired cache; the durable store is always the fallback of record.
type GameCache interface {
	SetGameState(ctx context.Context, state domain.GameState, ttl time.Duration) error

	// GameState returns ok=false on a miss; a miss is not an error.
	GameState(ctx context.Context, roomID string) (domain.GameState, bool, error)

	DeleteGameState(ctx context.Context, roomID string) error

	// IncrementScore bumps the room's live ranking entry and returns
	// the new cached score.
	IncrementScore(ctx context.Context, roomID, playerID string, delta int) (int, error)

	// TopScores returns up to limit entries, highest first.
	TopScores(ctx context.Context, roomID string, limit int) ([]domain.CachedScore, error)

	// ClearRoom removes every cache entry for the room.
	ClearRoom(ctx context.Context, roomID string) error
}
