package cache

// SentinelError is an error.
type SentinelError string

const (
	// ErrAbort is returned by a Factory to leave the cache as it is.
	// Unlike other errors it is not recorded on the entry.
	ErrAbort = SentinelError("population aborted")

	// ErrInvalidOptions indicates a Depot configuration that cannot be built.
	ErrInvalidOptions = SentinelError("invalid options")
)

// Error implements error.
func (e SentinelError) Error() string {
	return string(e)
}
