package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no room matches the given id or code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrPlayerNotFound is returned when a submission names an unknown player.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrQuestionNotFound indicates a submitted question id is not part of the room.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates the answer option does not belong to the question.
	ErrOptionNotFound = errors.New("answer option not found")
	// ErrInvalidTransition is returned when the room status forbids the operation.
	ErrInvalidTransition = errors.New("room status does not allow this transition")
	// ErrNoQuestions rejects starting a room that has no questions.
	ErrNoQuestions = errors.New("room has no questions")
	// ErrAlreadyAnswered rejects a second submission for the same question.
	ErrAlreadyAnswered = errors.New("question already answered by this player")
	// ErrGameNotActive is returned when no live game state exists for the room.
	ErrGameNotActive = errors.New("game is not active")
	// ErrConflict signals a lost race on a concurrent transition.
	ErrConflict = errors.New("concurrent transition conflict")
	// ErrStaleHost rejects host commands from a superseded host connection.
	ErrStaleHost = errors.New("host connection has been superseded")
)
