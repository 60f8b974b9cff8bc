package lobby

// Error is a lobby operation failure carrying the stable code the
// clients surface directly (e.g. toasting LOBBY_FULL).
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	// ErrValidation covers malformed create/join input.
	ErrValidation = &Error{Code: "VALIDATION_ERROR", Message: "invalid input"}
	// ErrUserResolution means the acting user could not be created or loaded.
	ErrUserResolution = &Error{Code: "USER_RESOLUTION_FAILED", Message: "failed to resolve user"}
	// ErrLobbyNotFound means the lobby id matched no row.
	ErrLobbyNotFound = &Error{Code: "NOT_FOUND", Message: "lobby not found"}
	// ErrInvalidPassword means a private lobby's password did not match.
	ErrInvalidPassword = &Error{Code: "INVALID_PASSWORD", Message: "invalid password"}
	// ErrNotOpen means the lobby is no longer accepting joins.
	ErrNotOpen = &Error{Code: "LOBBY_NOT_OPEN", Message: "lobby not open"}
	// ErrFull means every seat is taken.
	ErrFull = &Error{Code: "LOBBY_FULL", Message: "lobby full"}
	// ErrNotCreator means the caller may not finish this lobby.
	ErrNotCreator = &Error{Code: "FORBIDDEN", Message: "only the creator can finish a lobby"}
	// ErrNoParticipants means a winner cannot be drawn from an empty lobby.
	ErrNoParticipants = &Error{Code: "NO_PARTICIPANTS", Message: "no active participants"}
)
