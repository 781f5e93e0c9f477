package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"quizroom/internal/domain"
)

// GameService drives rooms through WAITING -> IN_PROGRESS -> FINISHED
// and scores answers. All mutations of one room are serialized by a
// per-room mutex; distinct rooms proceed fully in parallel. Durable
// writes always commit before the fast-path cache is touched, and a
// cache failure is never fatal.
type GameService struct {
	store     Store
	questions QuestionSource
	cache     GameCache
	hub       *Hub
	logger    *slog.Logger
	clock     func() time.Time
	stateTTL  time.Duration

	locks sync.Map // roomID -> *sync.Mutex
}

func NewGameService(store Store, questions QuestionSource, cache GameCache, hub *Hub, logger *slog.Logger, stateTTL time.Duration) *GameService {
	if logger == nil {
		logger = slog.Default()
	}
	if stateTTL <= 0 {
		stateTTL = time.Hour
	}
	return &GameService{
		store:     store,
		questions: questions,
		cache:     cache,
		hub:       hub,
		logger:    logger,
		clock:     time.Now,
		stateTTL:  stateTTL,
	}
}

// WithClock is test-only for deterministic timestamps.
func (g *GameService) WithClock(now func() time.Time) *GameService {
	g.clock = now
	return g
}

func (g *GameService) lockRoom(roomID string) func() {
	v, _ := g.locks.LoadOrStore(roomID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// AdvanceResult reports what Advance did: either the next question or,
// past the last question, the final leaderboard.
type AdvanceResult struct {
	Room           domain.Room
	Finished       bool
	Index          int
	Question       domain.Question
	TotalQuestions int
	Leaderboard    []domain.LeaderboardEntry
}

// RoomState is the combined durable + cached view of a room.
type RoomState struct {
	Room      domain.Room       `json:"room"`
	Questions []domain.Question `json:"questions"`
	GameState *domain.GameState `json:"gameState,omitempty"`
}

// GameSync carries the live question for a participant joining a game
// already in progress.
type GameSync struct {
	Index             int             `json:"index"`
	Question          domain.Question `json:"question"`
	TotalQuestions    int             `json:"totalQuestions"`
	QuestionStartedAt time.Time       `json:"questionStartedAt"`
}

// Start moves a WAITING room with at least one question to IN_PROGRESS,
// pointing at question zero, and publishes the first question.
func (g *GameService) Start(ctx context.Context, roomID string) (domain.Room, error) {
	unlock := g.lockRoom(roomID)
	defer unlock()

	room, err := g.store.RoomByID(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if room.Status != domain.RoomWaiting {
		return domain.Room{}, domain.ErrInvalidTransition
	}
	questions, err := g.questions.QuestionsForRoom(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if len(questions) == 0 {
		return domain.Room{}, domain.ErrNoQuestions
	}

	now := g.clock()
	status := domain.RoomInProgress
	zero := 0
	room, err = g.store.UpdateRoom(ctx, roomID, domain.RoomUpdate{
		Status:               &status,
		CurrentQuestionIndex: &zero,
		StartedAt:            &now,
	})
	if err != nil {
		return domain.Room{}, err
	}

	g.writeGameState(ctx, domain.GameState{
		RoomID:               roomID,
		CurrentQuestionIndex: 0,
		StartedAt:            now,
		QuestionStartedAt:    now,
		IsActive:             true,
		TotalQuestions:       len(questions),
	})

	g.hub.Publish(domain.RoomStarted{
		RoomCode:        room.Code,
		RoomID:          roomID,
		Question:        questions[0].PublicView(),
		Index:           0,
		TotalQuestions:  len(questions),
		ServerStartedAt: now,
	})
	g.logger.Info("game started", "room", room.Code, "questions", len(questions))
	return room, nil
}

// Advance moves the room from expectedIndex to the next question, or
// to FINISHED past the last one. A caller whose expectedIndex no
// longer matches the committed index lost a race and gets ErrConflict;
// the room never advances twice from the same index.
func (g *GameService) Advance(ctx context.Context, roomID string, expectedIndex int) (AdvanceResult, error) {
	unlock := g.lockRoom(roomID)
	defer unlock()

	room, err := g.store.RoomByID(ctx, roomID)
	if err != nil {
		return AdvanceResult{}, err
	}
	if room.Status != domain.RoomInProgress {
		return AdvanceResult{}, domain.ErrGameNotActive
	}
	state, ok, err := g.cache.GameState(ctx, roomID)
	if err != nil {
		g.logger.Warn("game state read failed", "room", room.Code, "err", err)
	}
	if !ok || !state.IsActive {
		return AdvanceResult{}, domain.ErrGameNotActive
	}
	if room.CurrentQuestionIndex != expectedIndex {
		return AdvanceResult{}, domain.ErrConflict
	}

	questions, err := g.questions.QuestionsForRoom(ctx, roomID)
	if err != nil {
		return AdvanceResult{}, err
	}

	next := room.CurrentQuestionIndex + 1
	if next >= len(questions) {
		room, err = g.finishLocked(ctx, room, state)
		if err != nil {
			return AdvanceResult{}, err
		}
		entries, err := g.leaderboard(ctx, roomID, 0)
		if err != nil {
			return AdvanceResult{}, err
		}
		g.hub.Publish(domain.GameFinished{RoomCode: room.Code, RoomID: roomID, Leaderboard: entries})
		g.logger.Info("game finished", "room", room.Code)
		return AdvanceResult{Room: room, Finished: true, Index: room.CurrentQuestionIndex, TotalQuestions: len(questions), Leaderboard: entries}, nil
	}

	room, err = g.store.UpdateRoom(ctx, roomID, domain.RoomUpdate{CurrentQuestionIndex: &next})
	if err != nil {
		return AdvanceResult{}, err
	}

	now := g.clock()
	state.CurrentQuestionIndex = next
	state.QuestionStartedAt = now
	g.writeGameState(ctx, state)

	g.hub.Publish(domain.QuestionAdvanced{
		RoomCode:        room.Code,
		RoomID:          roomID,
		Question:        questions[next].PublicView(),
		Index:           next,
		TotalQuestions:  len(questions),
		ServerStartedAt: now,
	})
	return AdvanceResult{Room: room, Index: next, Question: questions[next].PublicView(), TotalQuestions: len(questions)}, nil
}

// End finishes the room unconditionally, even mid-question. The only
// precondition is that the room exists.
func (g *GameService) End(ctx context.Context, roomID string) (domain.Room, error) {
	unlock := g.lockRoom(roomID)
	defer unlock()

	room, err := g.store.RoomByID(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	state, ok, _ := g.cache.GameState(ctx, roomID)
	if !ok {
		state = domain.GameState{RoomID: roomID}
	}
	room, err = g.finishLocked(ctx, room, state)
	if err != nil {
		return domain.Room{}, err
	}
	entries, err := g.leaderboard(ctx, roomID, 0)
	if err != nil {
		return domain.Room{}, err
	}
	g.hub.Publish(domain.GameFinished{RoomCode: room.Code, RoomID: roomID, Leaderboard: entries})
	g.logger.Info("game ended by host", "room", room.Code)
	return room, nil
}

func (g *GameService) finishLocked(ctx context.Context, room domain.Room, state domain.GameState) (domain.Room, error) {
	status := domain.RoomFinished
	room, err := g.store.UpdateRoom(ctx, room.ID, domain.RoomUpdate{Status: &status})
	if err != nil {
		return domain.Room{}, err
	}
	state.IsActive = false
	g.writeGameState(ctx, state)
	return room, nil
}

// Reset wipes the room's answers and scores and returns it to WAITING.
// This is the only transition that moves backward.
func (g *GameService) Reset(ctx context.Context, roomID string) (domain.Room, error) {
	unlock := g.lockRoom(roomID)
	defer unlock()

	room, err := g.store.ResetGame(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if err := g.cache.ClearRoom(ctx, roomID); err != nil {
		g.logger.Warn("cache clear failed", "room", room.Code, "err", err)
	}
	g.hub.Publish(domain.RoomReset{RoomCode: room.Code, RoomID: roomID})
	g.logger.Info("game reset", "room", room.Code)
	return room, nil
}

// CloseRoom force-finishes a room whose host went away: End semantics
// plus a full cache purge and a room_closed broadcast. Already-finished
// rooms are closed quietly. The room is re-read under its lock so a
// concurrent transition cannot slip between the lookup and the close.
func (g *GameService) CloseRoom(ctx context.Context, roomCode, reason string) error {
	room, err := g.store.RoomByCode(ctx, roomCode)
	if err != nil {
		return err
	}

	unlock := g.lockRoom(room.ID)
	defer unlock()

	room, err = g.store.RoomByID(ctx, room.ID)
	if err != nil {
		return err
	}
	if room.Status != domain.RoomFinished {
		status := domain.RoomFinished
		if _, err := g.store.UpdateRoom(ctx, room.ID, domain.RoomUpdate{Status: &status}); err != nil {
			return err
		}
	}
	if err := g.cache.ClearRoom(ctx, room.ID); err != nil {
		g.logger.Warn("cache clear failed", "room", roomCode, "err", err)
	}
	g.hub.Publish(domain.RoomClosed{RoomCode: roomCode, RoomID: room.ID, Reason: reason})
	g.logger.Info("room closed", "room", roomCode, "reason", reason)
	return nil
}

// RoomByCode resolves a join code to its room.
func (g *GameService) RoomByCode(ctx context.Context, code string) (domain.Room, error) {
	return g.store.RoomByCode(ctx, code)
}

// State returns the combined durable and cached view of a room. A cold
// cache yields a nil GameState, not an error.
func (g *GameService) State(ctx context.Context, roomID string) (RoomState, error) {
	room, err := g.store.RoomByID(ctx, roomID)
	if err != nil {
		return RoomState{}, err
	}
	questions, err := g.questions.QuestionsForRoom(ctx, roomID)
	if err != nil {
		return RoomState{}, err
	}
	out := RoomState{Room: room, Questions: questions}
	if state, ok, _ := g.cache.GameState(ctx, roomID); ok {
		out.GameState = &state
	}
	return out, nil
}

// Sync returns the live question for a participant who joined a room
// mid-game, so their client can catch up with the running countdown.
func (g *GameService) Sync(ctx context.Context, roomCode string) (GameSync, bool, error) {
	room, err := g.store.RoomByCode(ctx, roomCode)
	if err != nil {
		return GameSync{}, false, err
	}
	state, ok, err := g.cache.GameState(ctx, room.ID)
	if err != nil || !ok || !state.IsActive {
		return GameSync{}, false, err
	}
	questions, err := g.questions.QuestionsForRoom(ctx, room.ID)
	if err != nil {
		return GameSync{}, false, err
	}
	if state.CurrentQuestionIndex < 0 || state.CurrentQuestionIndex >= len(questions) {
		return GameSync{}, false, nil
	}
	return GameSync{
		Index:             state.CurrentQuestionIndex,
		Question:          questions[state.CurrentQuestionIndex].PublicView(),
		TotalQuestions:    state.TotalQuestions,
		QuestionStartedAt: state.QuestionStartedAt,
	}, true, nil
}

// Leaderboard reads the authoritative ranking from the durable store:
// score descending, ties broken by who reached the score first, then
// by player id. limit <= 0 returns every player.
func (g *GameService) Leaderboard(ctx context.Context, roomID string, limit int) ([]domain.LeaderboardEntry, error) {
	return g.leaderboard(ctx, roomID, limit)
}

func (g *GameService) leaderboard(ctx context.Context, roomID string, limit int) ([]domain.LeaderboardEntry, error) {
	players, err := g.store.PlayersByScoreDesc(ctx, roomID, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.LeaderboardEntry, len(players))
	for i, p := range players {
		entries[i] = domain.LeaderboardEntry{
			PlayerID:    p.ID,
			DisplayName: p.DisplayName,
			ClubID:      p.ClubID,
			Score:       p.Score,
			Rank:        i + 1,
		}
	}
	return entries, nil
}

// LiveScores serves the fast-path ranking. An empty ZSet (cold cache)
// self-heals from durable truth before answering.
func (g *GameService) LiveScores(ctx context.Context, roomID string, limit int) ([]domain.CachedScore, error) {
	scores, err := g.cache.TopScores(ctx, roomID, limit)
	if err == nil && len(scores) > 0 {
		return scores, nil
	}
	if err != nil {
		g.logger.Warn("live score read failed, rebuilding from store", "room", roomID, "err", err)
	}

	players, err := g.store.PlayersByScoreDesc(ctx, roomID, limit)
	if err != nil {
		return nil, err
	}
	scores = make([]domain.CachedScore, 0, len(players))
	for _, p := range players {
		scores = append(scores, domain.CachedScore{PlayerID: p.ID, Score: p.Score})
		if p.Score != 0 {
			if _, err := g.cache.IncrementScore(ctx, roomID, p.ID, p.Score); err != nil {
				g.logger.Warn("live score rebuild failed", "room", roomID, "err", err)
				break
			}
		}
	}
	return scores, nil
}

func (g *GameService) writeGameState(ctx context.Context, state domain.GameState) {
	if err := g.cache.SetGameState(ctx, state, g.stateTTL); err != nil {
		g.logger.Warn("game state write failed", "room", state.RoomID, "err", err)
	}
}
