package cli

import "errors"

// Error variables for command line handling.
var (
	ErrUnknownCommand  = errors.New("unknown command")
	ErrIDRequired      = errors.New("document id is required")
	ErrInvalidID       = errors.New("invalid document id")
	ErrBadAssignment   = errors.New("expected field=value")
	ErrNothingToWrite  = errors.New("no fields to set or unset")
	ErrUnsetNeedsID    = errors.New("--unset requires --id")
	ErrPathRequired    = errors.New("output path is required")
	ErrTooManyArgs     = errors.New("too many arguments")
	ErrNestedShell     = errors.New("shell cannot be started from inside the shell")
	ErrUnterminatedArg = errors.New("unterminated quote")
)
