package engine

import (
	"errors"
	"fmt"
	"log/slog"
)

// BackendFactory creates OutputBackend instances based on configuration
type BackendFactory interface {
	CreateBackend(backendType string) (OutputBackend, error)
	GetSupportedBackends() []string
	IsValidBackendType(backendType string) bool
}

// DefaultBackendFactory implements BackendFactory with platform detection
type DefaultBackendFactory struct {
	isWSLFunc func() bool
}

// Factory errors
var (
	ErrInvalidBackendType    = errors.New("invalid backend type")
	ErrBackendCreationFailed = errors.New("backend creation failed")
)

// NewBackendFactory creates a new DefaultBackendFactory with real platform detection
func NewBackendFactory() *DefaultBackendFactory {
	return &DefaultBackendFactory{
		isWSLFunc: IsWSL,
	}
}

// NewBackendFactoryWithDependencies creates a factory with injected detection for testing
func NewBackendFactoryWithDependencies(isWSLFunc func() bool) *DefaultBackendFactory {
	return &DefaultBackendFactory{
		isWSLFunc: isWSLFunc,
	}
}

// CreateBackend creates an OutputBackend instance based on the specified type
func (f *DefaultBackendFactory) CreateBackend(backendType string) (OutputBackend, error) {
	// Default empty string to "auto"
	if backendType == "" {
		backendType = "auto"
	}

	slog.Debug("creating output backend", "type", backendType)

	switch backendType {
	case "auto":
		return f.CreateBackend(detectOptimalBackendType(f.isWSLFunc()))
	case "malgo":
		return NewMalgoBackend()
	case "oto":
		return NewOtoBackend(), nil
	default:
		slog.Error("invalid backend type requested", "type", backendType)
		return nil, fmt.Errorf("%w: %s", ErrInvalidBackendType, backendType)
	}
}

// GetSupportedBackends returns a list of all supported backend types
func (f *DefaultBackendFactory) GetSupportedBackends() []string {
	return []string{"auto", "malgo", "oto"}
}

// IsValidBackendType checks if a backend type is supported
func (f *DefaultBackendFactory) IsValidBackendType(backendType string) bool {
	// Empty string is valid (defaults to auto)
	if backendType == "" {
		return true
	}

	for _, supported := range f.GetSupportedBackends() {
		if backendType == supported {
			return true
		}
	}
	return false
}
