package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound   = errors.New("db: key not found")
	ErrIndexNotFound = errors.New("db: index not found")
)

// Op constants map to Valkey/Redis command names for error context.
const (
	OpIndexInfo = "FT.INFO"
	OpSearch    = "FT.SEARCH"
	OpGet       = "GET"
	OpSet       = "SET"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
