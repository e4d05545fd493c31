package domain

import "errors"

// Domain errors represent error conditions in the sensorrelay domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("sensorrelay: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("sensorrelay: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("sensorrelay: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("sensorrelay: invalid configuration")

	// ErrInvalidTrialName is returned when a file name does not follow the
	// trial naming scheme.
	ErrInvalidTrialName = errors.New("sensorrelay: invalid trial name")

	// ErrNoEndpoint is returned when relay is attempted while no host
	// receiver is known to be alive.
	ErrNoEndpoint = errors.New("sensorrelay: no host endpoint")
)

// Error classes. Adapters wrap their failures with one of these so callers
// can react to the class without knowing the concrete cause.
var (
	// ErrDecode marks a malformed message received over the peer channel.
	ErrDecode = errors.New("decode error")

	// ErrIO marks a local file open/read/write failure.
	ErrIO = errors.New("io error")

	// ErrNetwork marks a probe or post that failed or timed out.
	ErrNetwork = errors.New("network error")
)
