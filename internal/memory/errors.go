package memory

import "errors"

// ErrNotFound reports that an operation referenced an unknown item ID.
// Missing memories are an expected condition: callers check with errors.Is
// and carry on.
var ErrNotFound = errors.New("memory not found")

// ErrInvalidConfig reports out-of-range construction parameters. It is the
// only condition under which the engine refuses to start.
var ErrInvalidConfig = errors.New("invalid configuration")
