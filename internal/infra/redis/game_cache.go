package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"quizroom/internal/domain"
)

const keyPrefix = "quiz_game"

// GameCache implements app.GameCache on Redis. Game state lives in a
// TTL'd JSON key, the live ranking in a ZSet whose expiry is refreshed
// on every touch. Everything here is disposable; durable truth stays
// in the store.
//
// Keys: quiz_game:game_state:{roomID}, quiz_game:scores:{roomID}.
type GameCache struct {
	client   *redis.Client
	scoreTTL time.Duration
}

func NewGameCache(client *redis.Client, scoreTTL time.Duration) *GameCache {
	if scoreTTL <= 0 {
		scoreTTL = 2 * time.Hour
	}
	return &GameCache{client: client, scoreTTL: scoreTTL}
}

func stateKey(roomID string) string  { return keyPrefix + ":game_state:" + roomID }
func scoresKey(roomID string) string { return keyPrefix + ":scores:" + roomID }

func (c *GameCache) SetGameState(ctx context.Context, state domain.GameState, ttl time.Duration) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, stateKey(state.RoomID), data, ttl).Err()
}

func (c *GameCache) GameState(ctx context.Context, roomID string) (domain.GameState, bool, error) {
	data, err := c.client.Get(ctx, stateKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.GameState{}, false, nil
	}
	if err != nil {
		return domain.GameState{}, false, err
	}
	var state domain.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		// A corrupt entry is treated as a miss; the store rebuilds it.
		return domain.GameState{}, false, nil
	}
	return state, true, nil
}

func (c *GameCache) DeleteGameState(ctx context.Context, roomID string) error {
	return c.client.Del(ctx, stateKey(roomID)).Err()
}

func (c *GameCache) IncrementScore(ctx context.Context, roomID, playerID string, delta int) (int, error) {
	key := scoresKey(roomID)
	pipe := c.client.Pipeline()
	incr := pipe.ZIncrBy(ctx, key, float64(delta), playerID)
	pipe.Expire(ctx, key, c.scoreTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (c *GameCache) TopScores(ctx context.Context, roomID string, limit int) ([]domain.CachedScore, error) {
	if limit <= 0 {
		limit = 10
	}
	results, err := c.client.ZRevRangeWithScores(ctx, scoresKey(roomID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	scores := make([]domain.CachedScore, 0, len(results))
	for _, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		scores = append(scores, domain.CachedScore{PlayerID: member, Score: int(z.Score)})
	}
	return scores, nil
}

func (c *GameCache) ClearRoom(ctx context.Context, roomID string) error {
	return c.client.Del(ctx, stateKey(roomID), scoresKey(roomID), questionsKey(roomID)).Err()
}
