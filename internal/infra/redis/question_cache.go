package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizroom/internal/app"
	"quizroom/internal/domain"
)

// QuestionCache caches each room's question set (options included) as
// a JSON blob and falls back to the wrapped source on a miss.
// Questions are immutable once a room starts, so a TTL'd blob is safe;
// singleflight keeps a cold room from stampeding the store.
//
// Key: quiz_game:questions:{roomID}.
type QuestionCache struct {
	client *redis.Client
	source app.QuestionSource
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, source app.QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func questionsKey(roomID string) string { return keyPrefix + ":questions:" + roomID }

func (c *QuestionCache) QuestionsForRoom(ctx context.Context, roomID string) ([]domain.Question, error) {
	if questions, ok := c.fromCache(ctx, roomID); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(roomID, func() (interface{}, error) {
		// Re-check in case another goroutine filled the key.
		if questions, ok := c.fromCache(ctx, roomID); ok {
			return questions, nil
		}

		questions, err := c.source.QuestionsForRoom(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(questions); err == nil {
			_ = c.client.Set(ctx, questionsKey(roomID), data, c.ttlWithJitter()).Err()
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) fromCache(ctx context.Context, roomID string) ([]domain.Question, bool) {
	data, err := c.client.Get(ctx, questionsKey(roomID)).Bytes()
	if err != nil {
		// Misses and cache trouble both degrade to a store read.
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, false
	}
	return questions, true
}

// ttlWithJitter spreads expirations by up to 10%.
func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
