package loader

import (
	"errors"
	"fmt"
)

// Sentinel errors of the lifecycle operations. The plugin manager maps them
// onto its reply vocabulary.
var (
	ErrResolution    = errors.New("plugin does not exist")
	ErrNotFound      = errors.New("plugin not active")
	ErrAlreadyLoaded = errors.New("plugin already active")
)

// LoadError is returned when building or starting a plugin failed. Nothing
// of the plugin stays registered.
type LoadError struct {
	Plugin string
	Err    error
	Stack  []byte
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load plugin %s: %v", e.Plugin, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
