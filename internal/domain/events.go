package domain

import "time"

// Event is a typed domain event published by the engine and registry.
// The transport layer translates these into outbound push messages;
// the engine itself never touches a socket.
type Event interface {
	EventRoomCode() string
}

// RoomStarted is published when a room enters IN_PROGRESS.
type RoomStarted struct {
	RoomCode        string    `json:"roomCode"`
	RoomID          string    `json:"roomId"`
	Question        Question  `json:"question"`
	Index           int       `json:"index"`
	TotalQuestions  int       `json:"totalQuestions"`
	ServerStartedAt time.Time `json:"serverStartedAt"`
}

// QuestionAdvanced is published when the current question pointer moves.
type QuestionAdvanced struct {
	RoomCode        string    `json:"roomCode"`
	RoomID          string    `json:"roomId"`
	Question        Question  `json:"question"`
	Index           int       `json:"index"`
	TotalQuestions  int       `json:"totalQuestions"`
	ServerStartedAt time.Time `json:"serverStartedAt"`
}

// GameFinished is published when a room reaches FINISHED, either by
// advancing past the last question or by an explicit end.
type GameFinished struct {
	RoomCode    string             `json:"roomCode"`
	RoomID      string             `json:"roomId"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

// RoomReset is published after a reset returns the room to WAITING.
type RoomReset struct {
	RoomCode string `json:"roomCode"`
	RoomID   string `json:"roomId"`
}

// RoomClosed is published when a room is force-finished, e.g. because
// its host disconnected.
type RoomClosed struct {
	RoomCode string `json:"roomCode"`
	RoomID   string `json:"roomId"`
	Reason   string `json:"reason"`
}

// AnswerScored is published room-wide after a durable score commit so
// host and spectator views update without a full leaderboard fetch.
type AnswerScored struct {
	RoomCode      string `json:"roomCode"`
	RoomID        string `json:"roomId"`
	PlayerID      string `json:"playerId"`
	DisplayName   string `json:"displayName"`
	NewTotalScore int    `json:"newTotalScore"`
}

// RosterChanged is published when the live participant set of a room
// changes (join, rejoin, disconnect).
type RosterChanged struct {
	RoomCode     string        `json:"roomCode"`
	Participants []Participant `json:"participants"`
	Count        int           `json:"count"`
}

func (e RoomStarted) EventRoomCode() string      { return e.RoomCode }
func (e QuestionAdvanced) EventRoomCode() string { return e.RoomCode }
func (e GameFinished) EventRoomCode() string     { return e.RoomCode }
func (e RoomReset) EventRoomCode() string        { return e.RoomCode }
func (e RoomClosed) EventRoomCode() string       { return e.RoomCode }
func (e AnswerScored) EventRoomCode() string     { return e.RoomCode }
func (e RosterChanged) EventRoomCode() string    { return e.RoomCode }
