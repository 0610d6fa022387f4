package source

import (
	"errors"
	"fmt"
)

// ConfigError reports a query shape that structurally requires a source
// which is not configured. It is raised before any network activity and
// is never subject to retry, fallback, or error policy.
type ConfigError struct {
	Operation string
	Detail    string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Operation, e.Detail)
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var configErr *ConfigError
	return errors.As(err, &configErr)
}
