package domain

import "time"

// RoomStatus is the lifecycle state of a quiz room.
type RoomStatus string

const (
	RoomWaiting    RoomStatus = "WAITING"
	RoomInProgress RoomStatus = "IN_PROGRESS"
	RoomFinished   RoomStatus = "FINISHED"
)

// QuestionType distinguishes how answer options are presented.
type QuestionType string

const (
	SingleChoice   QuestionType = "SINGLE_CHOICE"
	MultipleChoice QuestionType = "MULTIPLE_CHOICE"
	TrueFalse      QuestionType = "TRUE_FALSE"
)

// Room is one quiz session, joined by a short human-typeable code.
// Status and CurrentQuestionIndex are mutated only by the game engine.
type Room struct {
	ID                   string     `json:"id"`
	Code                 string     `json:"code"`
	Name                 string     `json:"name"`
	Status               RoomStatus `json:"status"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	StartedAt            *time.Time `json:"startedAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// RoomUpdate carries the fields a single room transition may change.
// Nil means "leave unchanged"; ClearStartedAt nulls StartedAt.
type RoomUpdate struct {
	Status               *RoomStatus
	CurrentQuestionIndex *int
	StartedAt            *time.Time
	ClearStartedAt       bool
}

// AnswerOption is one selectable answer for a question.
type AnswerOption struct {
	ID         string `json:"id"`
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"isCorrect"`
}

// Question is immutable once its room starts. Ordinal is creation
// order, which is also play order.
type Question struct {
	ID               string         `json:"id"`
	RoomID           string         `json:"roomId"`
	Text             string         `json:"text"`
	Type             QuestionType   `json:"type"`
	TimeLimitSeconds int            `json:"timeLimitSeconds"`
	PointValue       int            `json:"pointValue"`
	Ordinal          int            `json:"ordinal"`
	Options          []AnswerOption `json:"options"`
}

// Option returns the option with the given id, if it belongs to q.
func (q Question) Option(optionID string) (AnswerOption, bool) {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return opt, true
		}
	}
	return AnswerOption{}, false
}

// PublicView strips correctness flags so a question can be broadcast
// to players without leaking the answer.
func (q Question) PublicView() Question {
	out := q
	out.Options = make([]AnswerOption, len(q.Options))
	for i, opt := range q.Options {
		opt.IsCorrect = false
		out.Options[i] = opt
	}
	return out
}

// Player is a durable participant row. Score only grows during a game;
// Reset is the single operation allowed to zero it.
type Player struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	DisplayName string    `json:"displayName"`
	ClubID      string    `json:"clubId"`
	Score       int       `json:"score"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PlayerAnswer records one scored submission. The (PlayerID, QuestionID)
// pair is unique: a player scores on a question at most once.
type PlayerAnswer struct {
	ID         string    `json:"id"`
	PlayerID   string    `json:"playerId"`
	QuestionID string    `json:"questionId"`
	AnswerID   string    `json:"answerId"`
	RoomID     string    `json:"roomId"`
	Score      int       `json:"score"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// GameState is the ephemeral cache-resident record of the live game.
// It is derived from Room on every transition and may expire; absence
// means "no active game", never an error.
type GameState struct {
	RoomID               string    `json:"roomId"`
	CurrentQuestionIndex int       `json:"currentQuestionIndex"`
	StartedAt            time.Time `json:"startedAt"`
	QuestionStartedAt    time.Time `json:"questionStartedAt"`
	IsActive             bool      `json:"isActive"`
	TotalQuestions       int       `json:"totalQuestions"`
}

// Participant is a live registry entry, not durable truth.
type Participant struct {
	ConnectionID string    `json:"-"`
	PlayerID     string    `json:"playerId"`
	DisplayName  string    `json:"displayName"`
	ClubID       string    `json:"clubId"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// AnswerResult summarizes the outcome of a submission for one player.
type AnswerResult struct {
	Accepted      bool `json:"accepted"`
	IsCorrect     bool `json:"isCorrect"`
	PointsAwarded int  `json:"pointsAwarded"`
	NewTotalScore int  `json:"newTotalScore"`
}

// LeaderboardEntry is one row of the durable, score-descending ranking.
type LeaderboardEntry struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	ClubID      string `json:"clubId"`
	Score       int    `json:"score"`
	Rank        int    `json:"rank"`
}

// CachedScore is one member of the fast-path ZSet ranking.
type CachedScore struct {
	PlayerID string `json:"playerId"`
	Score    int    `json:"score"`
}
