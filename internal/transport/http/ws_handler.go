package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quizroom/internal/app"
	"quizroom/internal/domain"
)

// WSHandler is the push channel: one websocket per participant, JSON
// envelopes {type, payload} both ways. It translates inbound messages
// into engine/registry calls and hub events into outbound broadcasts.
type WSHandler struct {
	game     *app.GameService
	registry *app.Registry
	hub      *app.Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(game *app.GameService, registry *app.Registry, hub *app.Hub, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		game:     game,
		registry: registry,
		hub:      hub,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type joinPlayerPayload struct {
	RoomCode    string `json:"roomCode"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	ClubID      string `json:"clubId"`
}

type joinHostPayload struct {
	RoomCode string `json:"roomCode"`
}

type submitAnswerPayload struct {
	RoomID     string `json:"roomId"`
	PlayerID   string `json:"playerId"`
	QuestionID string `json:"questionId"`
	AnswerID   string `json:"answerId"`
}

type requestNextPayload struct {
	RoomCode     string `json:"roomCode"`
	CurrentIndex int    `json:"currentIndex"`
}

type requestEndPayload struct {
	RoomCode string `json:"roomCode"`
}

type rosterUpdate struct {
	Participants []domain.Participant `json:"participants"`
	Count        int                  `json:"count"`
}

type questionBroadcast struct {
	Index           int             `json:"index"`
	Question        domain.Question `json:"question"`
	TotalQuestions  int             `json:"totalQuestions"`
	ServerStartedAt time.Time       `json:"serverStartedAt"`
}

type scoreUpdate struct {
	PlayerID      string `json:"playerId"`
	DisplayName   string `json:"displayName"`
	NewTotalScore int    `json:"newTotalScore"`
}

type leaderboardPayload struct {
	Entries []domain.LeaderboardEntry `json:"entries"`
}

type roomClosedPayload struct {
	Reason string `json:"reason"`
}

type hostJoinedPayload struct {
	RoomCode   string `json:"roomCode"`
	Generation int64  `json:"generation"`
}

// connSession is the per-connection state the read loop tracks.
type connSession struct {
	connID   string
	roomCode string
	isHost   bool
	hostGen  int64
	joined   bool
}

// ServeWS upgrades the request and runs the connection until the peer
// goes away. The first join message binds the connection to a room;
// a host disconnect force-finishes that room.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	sess := &connSession{connID: uuid.NewString()}
	send := make(chan any, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	var eventsDone chan struct{}
	var cancelSub func()

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", "conn", sess.connID, "err", err)
				return
			}
		}
	}()

	ctx := r.Context()
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "join_as_player":
			eventsDone, cancelSub = h.handleJoinPlayer(ctx, sess, inbound.Payload, send, closeSignals, eventsDone, cancelSub)
		case "join_as_host":
			eventsDone, cancelSub = h.handleJoinHost(sess, inbound.Payload, send, closeSignals, eventsDone, cancelSub)
		case "submit_answer":
			h.handleSubmitAnswer(ctx, inbound.Payload, send)
		case "request_next":
			h.handleRequestNext(ctx, sess, inbound.Payload, send)
		case "request_end":
			h.handleRequestEnd(ctx, sess, inbound.Payload, send)
		default:
			send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	// The request context dies with the connection; departure cleanup
	// must still reach the engine.
	h.handleDisconnect(context.Background(), sess)

	close(closeSignals)
	if eventsDone != nil {
		cancelSub()
		<-eventsDone
	}
	close(send)
	<-writerDone
}

func (h *WSHandler) handleJoinPlayer(ctx context.Context, sess *connSession, raw json.RawMessage, send chan any, closeSignals chan struct{}, eventsDone chan struct{}, cancelSub func()) (chan struct{}, func()) {
	var p joinPlayerPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomCode == "" || p.PlayerID == "" {
		send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "invalid join payload"}}
		return eventsDone, cancelSub
	}
	if sess.joined {
		send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "connection already joined a room"}}
		return eventsDone, cancelSub
	}

	sess.roomCode = p.RoomCode
	sess.joined = true
	eventsDone, cancelSub = h.startEventPump(p.RoomCode, send, closeSignals)

	roster := h.registry.JoinAsPlayer(p.RoomCode, sess.connID, p.PlayerID, p.DisplayName, p.ClubID)
	h.hub.Publish(domain.RosterChanged{RoomCode: p.RoomCode, Participants: roster, Count: len(roster)})

	// Late joiners catch up with the question already on screen.
	if sync, ok, err := h.game.Sync(ctx, p.RoomCode); err == nil && ok {
		send <- outboundMessage[app.GameSync]{Type: "game_sync", Payload: sync}
	}
	return eventsDone, cancelSub
}

func (h *WSHandler) handleJoinHost(sess *connSession, raw json.RawMessage, send chan any, closeSignals chan struct{}, eventsDone chan struct{}, cancelSub func()) (chan struct{}, func()) {
	var p joinHostPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomCode == "" {
		send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "invalid join payload"}}
		return eventsDone, cancelSub
	}
	if sess.joined {
		send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "connection already joined a room"}}
		return eventsDone, cancelSub
	}

	sess.roomCode = p.RoomCode
	sess.isHost = true
	sess.joined = true
	sess.hostGen = h.registry.JoinAsHost(p.RoomCode, sess.connID)
	eventsDone, cancelSub = h.startEventPump(p.RoomCode, send, closeSignals)

	send <- outboundMessage[hostJoinedPayload]{Type: "host_joined", Payload: hostJoinedPayload{RoomCode: p.RoomCode, Generation: sess.hostGen}}
	roster := h.registry.Roster(p.RoomCode)
	send <- outboundMessage[rosterUpdate]{Type: "roster_update", Payload: rosterUpdate{Participants: roster, Count: len(roster)}}
	return eventsDone, cancelSub
}

func (h *WSHandler) handleSubmitAnswer(ctx context.Context, raw json.RawMessage, send chan any) {
	var p submitAnswerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
		return
	}
	result, err := h.game.SubmitAnswer(ctx, p.RoomID, p.PlayerID, p.QuestionID, p.AnswerID)
	if err != nil {
		// Rejections go to the submitter only, never the room.
		send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		return
	}
	send <- outboundMessage[domain.AnswerResult]{Type: "answer_accepted", Payload: result}
}

func (h *WSHandler) handleRequestNext(ctx context.Context, sess *connSession, raw json.RawMessage, send chan any) {
	var p requestNextPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "invalid payload"}}
		return
	}
	room, err := h.authorizeHost(ctx, sess, p.RoomCode)
	if err != nil {
		send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		return
	}
	if _, err := h.game.Advance(ctx, room.ID, p.CurrentIndex); err != nil {
		send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}}
	}
}

func (h *WSHandler) handleRequestEnd(ctx context.Context, sess *connSession, raw json.RawMessage, send chan any) {
	var p requestEndPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "invalid payload"}}
		return
	}
	room, err := h.authorizeHost(ctx, sess, p.RoomCode)
	if err != nil {
		send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		return
	}
	if _, err := h.game.End(ctx, room.ID); err != nil {
		send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}}
	}
}

func (h *WSHandler) authorizeHost(ctx context.Context, sess *connSession, roomCode string) (domain.Room, error) {
	if !sess.isHost || sess.roomCode != roomCode ||
		!h.registry.IsCurrentHost(roomCode, sess.connID, sess.hostGen) {
		return domain.Room{}, domain.ErrStaleHost
	}
	return h.game.RoomByCode(ctx, roomCode)
}

func (h *WSHandler) handleDisconnect(ctx context.Context, sess *connSession) {
	dep, ok := h.registry.Leave(sess.connID)
	if !ok {
		return
	}
	if dep.WasHost {
		if err := h.game.CloseRoom(ctx, dep.RoomCode, "host_disconnected"); err != nil &&
			!errors.Is(err, domain.ErrRoomNotFound) {
			h.logger.Warn("close room on host disconnect failed", "room", dep.RoomCode, "err", err)
		}
		return
	}
	roster := h.registry.Roster(dep.RoomCode)
	h.hub.Publish(domain.RosterChanged{RoomCode: dep.RoomCode, Participants: roster, Count: len(roster)})
}

// startEventPump subscribes the connection to its room and forwards
// hub events to the writer until the connection closes.
func (h *WSHandler) startEventPump(roomCode string, send chan any, closeSignals chan struct{}) (chan struct{}, func()) {
	events, cancel := h.hub.Subscribe(roomCode)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				msg, ok := translateEvent(event)
				if !ok {
					continue
				}
				select {
				case send <- msg:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()
	return done, cancel
}

func translateEvent(event domain.Event) (any, bool) {
	switch e := event.(type) {
	case domain.RoomStarted:
		return outboundMessage[questionBroadcast]{Type: "question_broadcast", Payload: questionBroadcast{
			Index: e.Index, Question: e.Question, TotalQuestions: e.TotalQuestions, ServerStartedAt: e.ServerStartedAt,
		}}, true
	case domain.QuestionAdvanced:
		return outboundMessage[questionBroadcast]{Type: "question_broadcast", Payload: questionBroadcast{
			Index: e.Index, Question: e.Question, TotalQuestions: e.TotalQuestions, ServerStartedAt: e.ServerStartedAt,
		}}, true
	case domain.GameFinished:
		return outboundMessage[leaderboardPayload]{Type: "leaderboard", Payload: leaderboardPayload{Entries: e.Leaderboard}}, true
	case domain.RoomReset:
		return outboundMessage[struct{}]{Type: "room_reset", Payload: struct{}{}}, true
	case domain.RoomClosed:
		return outboundMessage[roomClosedPayload]{Type: "room_closed", Payload: roomClosedPayload{Reason: e.Reason}}, true
	case domain.AnswerScored:
		return outboundMessage[scoreUpdate]{Type: "score_update", Payload: scoreUpdate{
			PlayerID: e.PlayerID, DisplayName: e.DisplayName, NewTotalScore: e.NewTotalScore,
		}}, true
	case domain.RosterChanged:
		return outboundMessage[rosterUpdate]{Type: "roster_update", Payload: rosterUpdate{
			Participants: e.Participants, Count: e.Count,
		}}, true
	}
	return nil, false
}
