package gateway

import (
	"errors"
	"net/http"

	"cultura-chupistica/internal/game"
)

// Kind is a stable error identifier surfaced to clients. Internal detail
// never leaks past KindInternal.
type Kind string

const (
	KindInvalidGameCode        Kind = "invalid_game_code"
	KindInvalidPlayerID        Kind = "invalid_player_id"
	KindInvalidCard            Kind = "invalid_card"
	KindInvalidCardType        Kind = "invalid_card_type"
	KindGameNotFound           Kind = "game_not_found"
	KindSessionFull            Kind = "session_full"
	KindPlayerAlreadyInSession Kind = "player_already_in_session"
	KindPlayerNotInSession     Kind = "player_not_in_session"
	KindWrongState             Kind = "wrong_state"
	KindNotYourTurn            Kind = "not_your_turn"
	KindDeckEmpty              Kind = "deck_empty"
	KindNotHost                Kind = "not_host"
	KindSavedCardNotFound      Kind = "saved_card_not_found"
	KindNoVenganzaAvailable    Kind = "no_venganza_available"
	KindInvalidTargetPlayer    Kind = "invalid_target_player"
	KindInvalidRules           Kind = "invalid_rules"
	KindSaveCapacity           Kind = "save_capacity"
	KindCodeTaken              Kind = "code_taken"
	KindCodeSpaceExhausted     Kind = "code_space_exhausted"
	KindCapacityExceeded       Kind = "capacity_exceeded"
	KindCancelled              Kind = "cancelled"
	KindInvalidCommand         Kind = "invalid_command"
	KindInternal               Kind = "internal"
)

// Error carries a stable kind plus a human-readable message.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }

func Errf(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// AsError extracts the typed error, wrapping anything unrecognized as
// internal so stack detail stays out of responses.
func AsError(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return mapGameError(err)
}

var gameErrKinds = map[error]Kind{
	game.ErrInvalidPlayerID:   KindInvalidPlayerID,
	game.ErrSessionFull:       KindSessionFull,
	game.ErrAlreadyInSession:  KindPlayerAlreadyInSession,
	game.ErrNotInSession:      KindPlayerNotInSession,
	game.ErrWrongState:        KindWrongState,
	game.ErrNotYourTurn:       KindNotYourTurn,
	game.ErrDeckEmpty:         KindDeckEmpty,
	game.ErrNotHost:           KindNotHost,
	game.ErrNotEnoughPlayers:  KindWrongState,
	game.ErrSavedCardNotFound: KindSavedCardNotFound,
	game.ErrNoVenganza:        KindNoVenganzaAvailable,
	game.ErrInvalidTarget:     KindInvalidTargetPlayer,
	game.ErrInvalidRules:      KindInvalidRules,
	game.ErrSaveCapacity:      KindSaveCapacity,
}

func mapGameError(err error) *Error {
	for sentinel, kind := range gameErrKinds {
		if errors.Is(err, sentinel) {
			return &Error{Kind: kind, Message: sentinel.Error()}
		}
	}
	return &Error{Kind: KindInternal, Message: "internal error"}
}

// HTTPStatus maps an error kind to the status code the transport returns.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidGameCode, KindInvalidPlayerID, KindInvalidCard,
		KindInvalidCardType, KindInvalidRules, KindInvalidTargetPlayer,
		KindInvalidCommand:
		return http.StatusBadRequest
	case KindGameNotFound, KindSavedCardNotFound:
		return http.StatusNotFound
	case KindSessionFull, KindPlayerAlreadyInSession, KindWrongState,
		KindNotYourTurn, KindDeckEmpty, KindNoVenganzaAvailable,
		KindSaveCapacity, KindCodeTaken:
		return http.StatusConflict
	case KindPlayerNotInSession, KindNotHost:
		return http.StatusForbidden
	case KindCapacityExceeded, KindCodeSpaceExhausted:
		return http.StatusServiceUnavailable
	case KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
