package protocol

const (
	ErrUnauthenticated = "UNAUTHENTICATED"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrNotFound        = "NOT_FOUND"
	ErrInvalidArgument = "INVALID_ARGUMENT"
	ErrRateLimited     = "RATE_LIMITED"
	ErrConflict        = "CONFLICT"
	ErrInternal        = "INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrUnauthenticated: {},
	ErrUnauthorized:    {},
	ErrNotFound:        {},
	ErrInvalidArgument: {},
	ErrRateLimited:     {},
	ErrConflict:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// ErrorBody is the structured error carried by negative results.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
