package client

import "fmt"

// Common registry error types
var (
	ErrNetworkError    = fmt.Errorf("network error")
	ErrUnauthorized    = fmt.Errorf("unauthorized")
	ErrPublishFailed   = fmt.Errorf("publish failed")
	ErrInvalidRegistry = fmt.Errorf("invalid registry")
	ErrInvalidRecords  = fmt.Errorf("invalid index records")
)

// RegistryError provides detailed error information
type RegistryError struct {
	Type    error
	Message string
}

func (e *RegistryError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%v: %s", e.Type, e.Message)
	}
	return e.Type.Error()
}

func (e *RegistryError) Unwrap() error {
	return e.Type
}

// NewRegistryError creates a new registry error
func NewRegistryError(errType error, message string) *RegistryError {
	return &RegistryError{
		Type:    errType,
		Message: message,
	}
}
