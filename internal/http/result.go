package httpapi

// Result is the envelope every JSON endpoint returns. Failures still use
// HTTP 200 and carry code -1; only the bearer check answers 401.
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"` // success | error | warning
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
	// ResultTokenExpired goes with HTTP 401 so the admin UI redirects to login.
	ResultTokenExpired = 60401
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message}
}

// Warn reports a saved change whose follow-up step failed.
func Warn[T any](message string, result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "warning", Message: message, Result: result}
}

func unauthorized() Result[any] {
	return Result[any]{Code: ResultTokenExpired, Type: "error", Message: "unauthorized"}
}
