package compliance

import "errors"

var (
	// ErrInvalidFilter indicates search filters that cannot be satisfied,
	// e.g. an unknown change kind or a negative offset.
	ErrInvalidFilter = errors.New("compliance.invalid_filter")

	// ErrInvalidWindow indicates a report window whose start is not before its end.
	ErrInvalidWindow = errors.New("compliance.invalid_window")
)
