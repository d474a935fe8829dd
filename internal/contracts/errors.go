package contracts

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig marks rejected caller input
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError 설정 오류 (호출자에게 즉시 반환)
type ConfigError struct {
	Field   string
	Message string
}

// NewConfigError creates a ConfigError
func NewConfigError(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfig, e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidConfig
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// IsConfigError reports whether err is a configuration error
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}
