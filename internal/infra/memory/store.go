package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quizroom/internal/domain"
)

// Store is an in-memory implementation of app.Store and
// app.QuestionSource, used by unit tests and the no-backend demo mode.
type Store struct {
	mu          sync.RWMutex
	now         func() time.Time
	rooms       map[string]domain.Room
	roomsByCode map[string]string
	questions   map[string][]domain.Question
	players     map[string]domain.Player
	answers     map[string]domain.PlayerAnswer // playerID+"/"+questionID
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock allows deterministic timestamps in tests.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		now:         now,
		rooms:       make(map[string]domain.Room),
		roomsByCode: make(map[string]string),
		questions:   make(map[string][]domain.Question),
		players:     make(map[string]domain.Player),
		answers:     make(map[string]domain.PlayerAnswer),
	}
}

func answerKey(playerID, questionID string) string {
	return playerID + "/" + questionID
}

// SeedRoom registers a room with its questions; authoring is out of
// scope so seeding stands in for it.
func (s *Store) SeedRoom(room domain.Room, questions []domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room.Status == "" {
		room.Status = domain.RoomWaiting
	}
	s.rooms[room.ID] = room
	s.roomsByCode[room.Code] = room.ID
	qs := make([]domain.Question, len(questions))
	copy(qs, questions)
	sort.Slice(qs, func(i, j int) bool { return qs[i].Ordinal < qs[j].Ordinal })
	s.questions[room.ID] = qs
}

// SeedPlayer registers a durable player row (created at HTTP join time
// in the real system).
func (s *Store) SeedPlayer(p domain.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now()
	}
	s.players[p.ID] = p
}

func (s *Store) RoomByID(_ context.Context, roomID string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room, nil
}

func (s *Store) RoomByCode(_ context.Context, code string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.roomsByCode[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return s.rooms[id], nil
}

func (s *Store) UpdateRoom(_ context.Context, roomID string, upd domain.RoomUpdate) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if upd.Status != nil {
		room.Status = *upd.Status
	}
	if upd.CurrentQuestionIndex != nil {
		room.CurrentQuestionIndex = *upd.CurrentQuestionIndex
	}
	if upd.StartedAt != nil {
		t := *upd.StartedAt
		room.StartedAt = &t
	}
	if upd.ClearStartedAt {
		room.StartedAt = nil
	}
	room.UpdatedAt = s.now()
	s.rooms[roomID] = room
	return room, nil
}

func (s *Store) QuestionsForRoom(_ context.Context, roomID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.rooms[roomID]; !ok {
		return nil, domain.ErrRoomNotFound
	}
	qs := s.questions[roomID]
	out := make([]domain.Question, len(qs))
	copy(out, qs)
	return out, nil
}

func (s *Store) PlayerByID(_ context.Context, playerID string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[playerID]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return p, nil
}

func (s *Store) HasPlayerAnswer(_ context.Context, playerID, questionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.answers[answerKey(playerID, questionID)]
	return ok, nil
}

func (s *Store) RecordAnswer(_ context.Context, ans domain.PlayerAnswer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := answerKey(ans.PlayerID, ans.QuestionID)
	if _, ok := s.answers[key]; ok {
		return 0, domain.ErrAlreadyAnswered
	}
	player, ok := s.players[ans.PlayerID]
	if !ok {
		return 0, domain.ErrPlayerNotFound
	}

	s.answers[key] = ans
	player.Score += ans.Score
	player.UpdatedAt = s.now()
	s.players[ans.PlayerID] = player
	return player.Score, nil
}

func (s *Store) ResetGame(_ context.Context, roomID string) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}

	for key, ans := range s.answers {
		if ans.RoomID == roomID {
			delete(s.answers, key)
		}
	}
	now := s.now()
	for id, p := range s.players {
		if p.RoomID == roomID {
			p.Score = 0
			p.UpdatedAt = now
			s.players[id] = p
		}
	}

	room.Status = domain.RoomWaiting
	room.CurrentQuestionIndex = 0
	room.StartedAt = nil
	room.UpdatedAt = now
	s.rooms[roomID] = room
	return room, nil
}

func (s *Store) PlayersByScoreDesc(_ context.Context, roomID string, limit int) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]domain.Player, 0)
	for _, p := range s.players {
		if p.RoomID == roomID {
			players = append(players, p)
		}
	}
	// Ties go to whoever reached the score first, then to the lower id.
	sort.Slice(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		if !players[i].UpdatedAt.Equal(players[j].UpdatedAt) {
			return players[i].UpdatedAt.Before(players[j].UpdatedAt)
		}
		return players[i].ID < players[j].ID
	})
	if limit > 0 && len(players) > limit {
		players = players[:limit]
	}
	return players, nil
}

// AnswerCountForRoom reports how many PlayerAnswer rows exist for the
// room, for test assertions on reset completeness.
func (s *Store) AnswerCountForRoom(roomID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, ans := range s.answers {
		if ans.RoomID == roomID {
			n++
		}
	}
	return n
}
