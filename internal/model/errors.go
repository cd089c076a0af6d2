package model

import "errors"

// ErrorCode is a stable identifier that is safe to send to clients
type ErrorCode string

const (
	CodeGameNotFound       ErrorCode = "GAME_NOT_FOUND"
	CodeGameAlreadyStarted ErrorCode = "GAME_ALREADY_STARTED"
	CodeGameNotStarted     ErrorCode = "GAME_NOT_STARTED"
	CodeGameFull           ErrorCode = "GAME_FULL"
	CodeNotGameCreator     ErrorCode = "NOT_GAME_CREATOR"
	CodePlayerNotFound     ErrorCode = "PLAYER_NOT_FOUND"
	CodeInvalidPlayerName  ErrorCode = "INVALID_PLAYER_NAME"
	CodeConnectionNotFound ErrorCode = "CONNECTION_NOT_FOUND"
	CodeInvalidRequest     ErrorCode = "INVALID_REQUEST"
	CodeInternalError      ErrorCode = "INTERNAL_ERROR"
)

// Error is a coded game error. Two Errors match under errors.Is when
// their codes are equal, so callers may attach a custom message.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error carrying the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a coded error with the given message
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	// Game errors
	ErrGameNotFound       = NewError(CodeGameNotFound, "game not found")
	ErrGameAlreadyStarted = NewError(CodeGameAlreadyStarted, "game has already started")
	ErrGameNotStarted     = NewError(CodeGameNotStarted, "game has not started")
	ErrGameFull           = NewError(CodeGameFull, "game is full")
	ErrNotGameCreator     = NewError(CodeNotGameCreator, "only the game creator can do that")

	// Player errors
	ErrPlayerNotFound    = NewError(CodePlayerNotFound, "player not found")
	ErrInvalidPlayerName = NewError(CodeInvalidPlayerName, "player name must be 1 to 20 characters")

	// Connection errors
	ErrConnectionNotFound = NewError(CodeConnectionNotFound, "connection not found")

	// Request errors
	ErrInvalidRequest = NewError(CodeInvalidRequest, "invalid request")

	// ErrStatusConflict is returned by storage when a conditional status
	// write finds a status other than the expected one
	ErrStatusConflict = errors.New("game status changed concurrently")

	// ErrConnectionGone is returned by a transport sender when the target
	// connection is terminally closed and should be pruned
	ErrConnectionGone = errors.New("connection gone")
)

// CodeOf extracts the error code from err, or INTERNAL_ERROR if err is not coded
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternalError
}
