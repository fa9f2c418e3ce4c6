package config

import (
	"errors"
)

// Sentinel error kinds for this package, matchable with errors.Is.
// ErrInvalidConfig marks a config that parsed but fails validation;
// ErrLoadConfig marks a failure to read or decode a source.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
