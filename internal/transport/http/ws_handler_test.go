package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quizroom/internal/app"
	"quizroom/internal/domain"
	"quizroom/internal/infra/memory"
)

type wsFixture struct {
	server *httptest.Server
	game   *app.GameService
	store  *memory.Store
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	store := memory.NewStore()
	store.SeedRoom(domain.Room{ID: "room-1", Code: "QUIZ42", Status: domain.RoomWaiting},
		[]domain.Question{
			{
				ID: "q1", RoomID: "room-1", Text: "What is 2 + 2?",
				Type: domain.SingleChoice, TimeLimitSeconds: 20, PointValue: 10, Ordinal: 1,
				Options: []domain.AnswerOption{
					{ID: "q1o1", QuestionID: "q1", Text: "3"},
					{ID: "q1o2", QuestionID: "q1", Text: "4", IsCorrect: true},
				},
			},
			{
				ID: "q2", RoomID: "room-1", Text: "The sky is blue.",
				Type: domain.TrueFalse, TimeLimitSeconds: 10, PointValue: 20, Ordinal: 2,
				Options: []domain.AnswerOption{
					{ID: "q2o1", QuestionID: "q2", Text: "True", IsCorrect: true},
					{ID: "q2o2", QuestionID: "q2", Text: "False"},
				},
			},
		})
	store.SeedPlayer(domain.Player{ID: "p1", RoomID: "room-1", DisplayName: "Alice", ClubID: "club-1"})
	store.SeedPlayer(domain.Player{ID: "p2", RoomID: "room-1", DisplayName: "Bob", ClubID: "club-1"})

	hub := app.NewHub()
	registry := app.NewRegistry()
	game := app.NewGameService(store, store, memory.NewCache(), hub, nil, time.Hour)
	wsHandler := NewWSHandler(game, registry, hub, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &wsFixture{server: server, game: game, store: store}
}

func (f *wsFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	u := "ws" + f.server.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (payload %v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

// readUntil drains messages until one of the wanted type arrives.
func readUntil(conn *websocket.Conn, t *testing.T, want string) map[string]any {
	t.Helper()
	for i := 0; i < 10; i++ {
		typ, payload := readNext(conn, t, "")
		if typ == want {
			return payload
		}
	}
	t.Fatalf("never received %s", want)
	return nil
}

func TestWebSocketGameFlow(t *testing.T) {
	f := newWSFixture(t)

	host := f.dial(t)
	if err := host.WriteJSON(map[string]any{
		"type":    "join_as_host",
		"payload": map[string]any{"roomCode": "QUIZ42"},
	}); err != nil {
		t.Fatalf("host join: %v", err)
	}
	_, hostJoined := readNext(host, t, "host_joined")
	generation := hostJoined["generation"].(float64)
	readNext(host, t, "roster_update")
	if generation < 1 {
		t.Fatalf("expected a positive host generation, got %v", generation)
	}

	player := f.dial(t)
	if err := player.WriteJSON(map[string]any{
		"type": "join_as_player",
		"payload": map[string]any{
			"roomCode": "QUIZ42", "playerId": "p1", "displayName": "Alice", "clubId": "club-1",
		},
	}); err != nil {
		t.Fatalf("player join: %v", err)
	}
	roster := readUntil(host, t, "roster_update")
	if count := roster["count"].(float64); count != 1 {
		t.Fatalf("expected 1 participant, got %v", count)
	}

	if _, err := f.game.Start(context.Background(), "room-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	question := readUntil(player, t, "question_broadcast")
	if idx := question["index"].(float64); idx != 0 {
		t.Fatalf("expected question 0, got %v", idx)
	}
	readUntil(host, t, "question_broadcast")

	// Correctness flags never cross the wire to clients.
	q := question["question"].(map[string]any)
	for _, raw := range q["options"].([]any) {
		opt := raw.(map[string]any)
		if opt["isCorrect"] == true {
			t.Fatalf("correct answer leaked to clients: %v", opt)
		}
	}

	if err := player.WriteJSON(map[string]any{
		"type": "submit_answer",
		"payload": map[string]any{
			"roomId": "room-1", "playerId": "p1", "questionId": "q1", "answerId": "q1o2",
		},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	accepted := readUntil(player, t, "answer_accepted")
	if accepted["isCorrect"] != true || accepted["pointsAwarded"].(float64) <= 0 {
		t.Fatalf("unexpected answer result: %v", accepted)
	}
	score := readUntil(host, t, "score_update")
	if score["playerId"] != "p1" {
		t.Fatalf("unexpected score update: %v", score)
	}

	if err := host.WriteJSON(map[string]any{
		"type":    "request_next",
		"payload": map[string]any{"roomCode": "QUIZ42", "currentIndex": 0},
	}); err != nil {
		t.Fatalf("next: %v", err)
	}
	question = readUntil(player, t, "question_broadcast")
	if idx := question["index"].(float64); idx != 1 {
		t.Fatalf("expected question 1, got %v", idx)
	}

	if err := host.WriteJSON(map[string]any{
		"type":    "request_end",
		"payload": map[string]any{"roomCode": "QUIZ42"},
	}); err != nil {
		t.Fatalf("end: %v", err)
	}
	board := readUntil(player, t, "leaderboard")
	entries := board["entries"].([]any)
	if len(entries) != 2 {
		t.Fatalf("expected 2 leaderboard entries, got %d", len(entries))
	}
	top := entries[0].(map[string]any)
	if top["playerId"] != "p1" || top["score"].(float64) <= 0 {
		t.Fatalf("unexpected leaderboard top: %v", top)
	}
}

func TestWebSocketLateJoinerGetsSync(t *testing.T) {
	f := newWSFixture(t)

	if _, err := f.game.Start(context.Background(), "room-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	player := f.dial(t)
	if err := player.WriteJSON(map[string]any{
		"type": "join_as_player",
		"payload": map[string]any{
			"roomCode": "QUIZ42", "playerId": "p2", "displayName": "Bob",
		},
	}); err != nil {
		t.Fatalf("join: %v", err)
	}
	sync := readUntil(player, t, "game_sync")
	if idx := sync["index"].(float64); idx != 0 {
		t.Fatalf("expected sync to question 0, got %v", idx)
	}
	if total := sync["totalQuestions"].(float64); total != 2 {
		t.Fatalf("expected 2 total questions, got %v", total)
	}
}

func TestWebSocketPlayerCannotDriveGame(t *testing.T) {
	f := newWSFixture(t)

	if _, err := f.game.Start(context.Background(), "room-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	player := f.dial(t)
	if err := player.WriteJSON(map[string]any{
		"type": "join_as_player",
		"payload": map[string]any{
			"roomCode": "QUIZ42", "playerId": "p1", "displayName": "Alice",
		},
	}); err != nil {
		t.Fatalf("join: %v", err)
	}
	readUntil(player, t, "game_sync")

	if err := player.WriteJSON(map[string]any{
		"type":    "request_next",
		"payload": map[string]any{"roomCode": "QUIZ42", "currentIndex": 0},
	}); err != nil {
		t.Fatalf("next: %v", err)
	}
	readUntil(player, t, "error")

	room, err := f.store.RoomByID(context.Background(), "room-1")
	if err != nil || room.CurrentQuestionIndex != 0 {
		t.Fatalf("player advanced the game: %+v err=%v", room, err)
	}
}

func TestWebSocketSupersededHostIsRejected(t *testing.T) {
	f := newWSFixture(t)

	if _, err := f.game.Start(context.Background(), "room-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	oldHost := f.dial(t)
	if err := oldHost.WriteJSON(map[string]any{
		"type":    "join_as_host",
		"payload": map[string]any{"roomCode": "QUIZ42"},
	}); err != nil {
		t.Fatalf("old host join: %v", err)
	}
	readNext(oldHost, t, "host_joined")

	newHost := f.dial(t)
	if err := newHost.WriteJSON(map[string]any{
		"type":    "join_as_host",
		"payload": map[string]any{"roomCode": "QUIZ42"},
	}); err != nil {
		t.Fatalf("new host join: %v", err)
	}
	readNext(newHost, t, "host_joined")

	// The superseded connection can no longer drive the room.
	if err := oldHost.WriteJSON(map[string]any{
		"type":    "request_next",
		"payload": map[string]any{"roomCode": "QUIZ42", "currentIndex": 0},
	}); err != nil {
		t.Fatalf("stale next: %v", err)
	}
	readUntil(oldHost, t, "error")

	room, _ := f.store.RoomByID(context.Background(), "room-1")
	if room.CurrentQuestionIndex != 0 {
		t.Fatalf("stale host advanced the game to %d", room.CurrentQuestionIndex)
	}

	// The takeover host still can.
	if err := newHost.WriteJSON(map[string]any{
		"type":    "request_next",
		"payload": map[string]any{"roomCode": "QUIZ42", "currentIndex": 0},
	}); err != nil {
		t.Fatalf("next: %v", err)
	}
	question := readUntil(newHost, t, "question_broadcast")
	if idx := question["index"].(float64); idx != 1 {
		t.Fatalf("expected question 1, got %v", idx)
	}
}

func TestWebSocketHostDisconnectClosesRoom(t *testing.T) {
	f := newWSFixture(t)

	host := f.dial(t)
	if err := host.WriteJSON(map[string]any{
		"type":    "join_as_host",
		"payload": map[string]any{"roomCode": "QUIZ42"},
	}); err != nil {
		t.Fatalf("host join: %v", err)
	}
	readNext(host, t, "host_joined")

	player := f.dial(t)
	if err := player.WriteJSON(map[string]any{
		"type": "join_as_player",
		"payload": map[string]any{
			"roomCode": "QUIZ42", "playerId": "p1", "displayName": "Alice",
		},
	}); err != nil {
		t.Fatalf("player join: %v", err)
	}
	readUntil(player, t, "roster_update")

	if _, err := f.game.Start(context.Background(), "room-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	readUntil(player, t, "question_broadcast")

	host.Close()

	closed := readUntil(player, t, "room_closed")
	if closed["reason"] != "host_disconnected" {
		t.Fatalf("unexpected close reason: %v", closed)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		room, err := f.store.RoomByID(context.Background(), "room-1")
		if err != nil {
			t.Fatalf("room: %v", err)
		}
		if room.Status == domain.RoomFinished {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("room never finished after host disconnect, status %s", room.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
