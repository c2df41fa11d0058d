package hmochat

import "errors"

var (
	// ErrInvalidConfig is returned for configuration that cannot work,
	// such as a missing endpoint or deployment name.
	ErrInvalidConfig = errors.New("hmochat: invalid configuration")

	// ErrBuildFailed is returned when knowledge-base construction fails
	// (embedding errors after retries, unwritable cache).
	ErrBuildFailed = errors.New("hmochat: knowledge base build failed")
)
