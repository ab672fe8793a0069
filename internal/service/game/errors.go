package game

import "errors"

var (
	ErrNotFound        = errors.New("board state not found")
	ErrDuplicateBoard  = errors.New("board state already exists")
	ErrVersionConflict = errors.New("board state version conflict")
)

type ValidationKind string

const (
	KindMalformedRequest       ValidationKind = "malformed_request"
	KindOutOfTurn              ValidationKind = "out_of_turn"
	KindIllegalDestination     ValidationKind = "illegal_destination"
	KindGameOver               ValidationKind = "game_over"
	KindConcurrentModification ValidationKind = "concurrent_modification"
)

// ValidationError reports why a move submission was rejected. Code selects the
// user-facing message; Kind is the coarse constraint that failed. The board
// state is guaranteed unchanged whenever one of these is returned.
type ValidationError struct {
	Kind      ValidationKind
	Code      string
	Message   string
	Retryable bool
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return string(e.Kind)
}

// AsValidation unwraps err into a *ValidationError when it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

func rejected(kind ValidationKind, code, message string) *ValidationError {
	return &ValidationError{Kind: kind, Code: code, Message: message}
}
