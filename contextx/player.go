package contextx

import "context"

// Player identifies the signed-in player behind a request. The auth
// middleware stores it with [WithPlayer]; handlers read it back with
// [PlayerFromContext].
type Player struct {
	ID       string
	Username string
	Region   string
}

// WithPlayer returns a derived context that carries p.
func WithPlayer(ctx context.Context, p Player) context.Context {
	return context.WithValue(ctx, playerKey, p)
}

// PlayerFromContext extracts the Player stored in ctx.
// The boolean return value indicates whether a Player was present.
func PlayerFromContext(ctx context.Context) (Player, bool) {
	p, ok := ctx.Value(playerKey).(Player)
	return p, ok
}
