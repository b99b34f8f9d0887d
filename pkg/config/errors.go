package config

import "errors"

var (
	// ErrParsingConfig is joined with the parser error when variables do not fit the struct.
	ErrParsingConfig = errors.New("config: cannot parse environment into struct")

	// ErrEnvFile wraps a .env file that exists but cannot be read or parsed.
	ErrEnvFile = errors.New("config: cannot load env file")

	ErrConfigNotLoaded = errors.New("config: not loaded")
	ErrNilPointer      = errors.New("config: nil target")
)
