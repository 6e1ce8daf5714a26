package model

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField marks a source record lacking a required key.
	ErrMissingField = errors.New("missing required field")

	// ErrBadTimestamp marks a timestamp in neither accepted layout.
	ErrBadTimestamp = errors.New("unrecognized timestamp")
)

// MissingFieldError names the absent source key.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMissingField, e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// TimestampError carries the raw value that failed to parse.
type TimestampError struct {
	Field string
	Value string
	Err   error
}

func (e *TimestampError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %q in %s: %v", ErrBadTimestamp, e.Value, e.Field, e.Err)
	}
	return fmt.Sprintf("%s %q in %s", ErrBadTimestamp, e.Value, e.Field)
}

func (e *TimestampError) Unwrap() error { return ErrBadTimestamp }
