package schemas

import (
	"errors"
	"fmt"
)

// ErrConfiguration matches every ConfigError through errors.Is.
var ErrConfiguration = errors.New("configuration error")

// ConfigError is a fatal, user-facing setup problem detected before any
// side effect.
type ConfigError struct {
	Reason string
}

func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Reason
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}
