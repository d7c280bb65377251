package valoapps

// DefaultOptions returns the options every deployment should carry: panic
// recovery and request IDs.
func DefaultOptions() []Option {
	return []Option{
		WithRecovery(),
		WithRequestID(),
	}
}
