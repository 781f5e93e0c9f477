package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quizroom/internal/domain"
)

// Cache is an in-memory implementation of app.GameCache with lazy TTL
// expiry, mirroring how the Redis cache behaves when warm.
type Cache struct {
	mu     sync.RWMutex
	now    func() time.Time
	states map[string]cachedState
	scores map[string]map[string]int // roomID -> playerID -> score
}

type cachedState struct {
	state     domain.GameState
	expiresAt time.Time
}

func NewCache() *Cache {
	return NewCacheWithClock(time.Now)
}

func NewCacheWithClock(now func() time.Time) *Cache {
	return &Cache{
		now:    now,
		states: make(map[string]cachedState),
		scores: make(map[string]map[string]int),
	}
}

func (c *Cache) SetGameState(_ context.Context, state domain.GameState, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := cachedState{state: state}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.states[state.RoomID] = entry
	return nil
}

func (c *Cache) GameState(_ context.Context, roomID string) (domain.GameState, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.states[roomID]
	if !ok {
		return domain.GameState{}, false, nil
	}
	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(c.now()) {
		return domain.GameState{}, false, nil
	}
	return entry.state, true, nil
}

func (c *Cache) DeleteGameState(_ context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, roomID)
	return nil
}

func (c *Cache) IncrementScore(_ context.Context, roomID, playerID string, delta int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room, ok := c.scores[roomID]
	if !ok {
		room = make(map[string]int)
		c.scores[roomID] = room
	}
	room[playerID] += delta
	return room[playerID], nil
}

func (c *Cache) TopScores(_ context.Context, roomID string, limit int) ([]domain.CachedScore, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	room := c.scores[roomID]
	out := make([]domain.CachedScore, 0, len(room))
	for playerID, score := range room {
		out = append(out, domain.CachedScore{PlayerID: playerID, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *Cache) ClearRoom(_ context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, roomID)
	delete(c.scores, roomID)
	return nil
}
