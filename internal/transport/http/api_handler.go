package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"quizroom/internal/app"
	"quizroom/internal/domain"
)

// APIHandler exposes the host command endpoints and the non-socket
// answer path over plain request/response JSON.
type APIHandler struct {
	game   *app.GameService
	logger *slog.Logger
}

func NewAPIHandler(game *app.GameService, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{game: game, logger: logger}
}

// Register mounts the API routes on the router.
func (h *APIHandler) Register(r *httprouter.Router) {
	r.POST("/api/rooms/:roomId/start", h.startGame)
	r.POST("/api/rooms/:roomId/next", h.nextQuestion)
	r.POST("/api/rooms/:roomId/end", h.endGame)
	r.POST("/api/rooms/:roomId/reset", h.resetGame)
	r.GET("/api/rooms/:roomId/state", h.roomState)
	r.GET("/api/rooms/:roomId/leaderboard", h.leaderboard)
	r.GET("/api/rooms/:roomId/scores", h.liveScores)
	r.POST("/api/rooms/:roomId/answers", h.submitAnswer)
}

type resultEnvelope struct {
	Result any `json:"result"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

func (h *APIHandler) startGame(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	room, err := h.game.Start(r.Context(), p.ByName("roomId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultEnvelope{Result: room})
}

type nextRequest struct {
	ExpectedIndex int `json:"expectedIndex"`
}

func (h *APIHandler) nextQuestion(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var req nextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: "invalid request body"})
		return
	}
	result, err := h.game.Advance(r.Context(), p.ByName("roomId"), req.ExpectedIndex)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultEnvelope{Result: result.Room})
}

func (h *APIHandler) endGame(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	room, err := h.game.End(r.Context(), p.ByName("roomId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultEnvelope{Result: room})
}

func (h *APIHandler) resetGame(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	room, err := h.game.Reset(r.Context(), p.ByName("roomId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultEnvelope{Result: room})
}

func (h *APIHandler) roomState(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	state, err := h.game.State(r.Context(), p.ByName("roomId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultEnvelope{Result: state})
}

func (h *APIHandler) leaderboard(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	entries, err := h.game.Leaderboard(r.Context(), p.ByName("roomId"), 10)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultEnvelope{Result: entries})
}

func (h *APIHandler) liveScores(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	scores, err := h.game.LiveScores(r.Context(), p.ByName("roomId"), 10)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultEnvelope{Result: scores})
}

type submitRequest struct {
	PlayerID   string `json:"playerId"`
	QuestionID string `json:"questionId"`
	AnswerID   string `json:"answerId"`
}

func (h *APIHandler) submitAnswer(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: "invalid request body"})
		return
	}
	result, err := h.game.SubmitAnswer(r.Context(), p.ByName("roomId"), req.PlayerID, req.QuestionID, req.AnswerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultEnvelope{Result: result})
}

func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "err", err)
	}
	writeJSON(w, status, errorEnvelope{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrPlayerNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoQuestions),
		errors.Is(err, domain.ErrOptionNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAlreadyAnswered),
		errors.Is(err, domain.ErrGameNotActive),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStaleHost):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
