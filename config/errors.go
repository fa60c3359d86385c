package config

import (
	"errors"
	"fmt"
)

// Sentinel resolution errors, matched with errors.Is.
var (
	// ErrNoArena indicates that no ownership arena was supplied to own
	// the resolved configuration.
	ErrNoArena = errors.New("config: no ownership arena supplied")

	// ErrNotFound indicates the settings file does not exist.
	ErrNotFound = errors.New("config: settings file not found")

	// ErrMissingRequired indicates a required setting is absent. No
	// partial configuration is returned.
	ErrMissingRequired = errors.New("config: missing required setting")

	// ErrBindModeConflict indicates contradictory authentication flags:
	// use_anon cannot be combined with use_sasl or simple_bind.
	ErrBindModeConflict = errors.New("config: contradictory bind-mode flags")
)

// ParseError reports a malformed settings source with its location.
type ParseError struct {
	File    string
	Line    int
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("config: %s:%d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("config: %s: %s", e.File, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

func missingRequired(key string) error {
	return fmt.Errorf("%w: %s", ErrMissingRequired, key)
}
