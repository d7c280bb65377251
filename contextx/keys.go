// Package contextx carries request-scoped values (the signed-in player,
// the request ID and the matched route group) through context.Context.
package contextx

// contextKey is an unexported type used as context key to avoid collisions
// with keys defined in other packages.
type contextKey int

const (
	playerKey contextKey = iota
	requestIDKey
	groupKey
)
