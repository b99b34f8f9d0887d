package main

import "errors"

var (
	errInvalidConfig = errors.New("invalid configuration")
	errTampered      = errors.New("audit trail tampered")
)
