package config

import "errors"

var (
	// ErrInvalidConfig wraps every problem Validate finds, joined.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig marks a YAML file or TOURNEY_ environment that could not be read.
	ErrLoadConfig = errors.New("load config failed")
)
