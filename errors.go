package blueprint

import (
	"errors"
	"fmt"
	"strings"
)

// Framework errors
var (
	// Validation errors
	ErrValidation          = errors.New("validation failed")
	ErrBlueprintIDMissing  = errors.New("execution context has no blueprint id")
	ErrContextNil          = errors.New("execution context is nil")
	ErrDependencyMissing   = errors.New("module depends on unregistered module")
	ErrDependencyDisabled  = errors.New("module depends on disabled module")
	ErrCircularDependency  = errors.New("circular dependency detected")
	ErrInvalidModuleConfig = errors.New("invalid module config")

	// Lifecycle errors
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	ErrModuleDisposed    = errors.New("module is disposed")

	// Registry errors
	ErrModuleNotFound          = errors.New("module not found")
	ErrModuleAlreadyRegistered = errors.New("module already registered")
	ErrUnknownModuleType       = errors.New("unknown module type")
	ErrNoBlueprintLoaded       = errors.New("no blueprint loaded")
	ErrEmptyIDList             = errors.New("id list is empty")
	ErrModuleNameEmpty         = errors.New("module name is empty")
	ErrModuleTypeEmpty         = errors.New("module type is empty")
	ErrModuleDisabled          = errors.New("module is disabled")

	// Persistence errors
	ErrPersistence = errors.New("persistence failure")
	ErrNotFound    = errors.New("record not found")

	// Event bus errors
	ErrEventTypeEmpty   = errors.New("event type cannot be empty")
	ErrEventHandlerNil  = errors.New("event handler cannot be nil")
	ErrPayloadMismatch  = errors.New("event payload has unexpected type")
	ErrEventBusNotFound = errors.New("execution context has no event bus")

	// Service errors
	ErrServiceNotFound     = errors.New("service not found")
	ErrTargetNotPointer    = errors.New("target must be a non-nil pointer")
	ErrServiceIncompatible = errors.New("service cannot be assigned to target")
)

// ValidationError reports an input or precondition that failed validation.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// DependencyError lists the dependencies of a module that are not available.
type DependencyError struct {
	ModuleID string
	Missing  []string
	Disabled []string
}

func (e *DependencyError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing dependencies [%s]", strings.Join(e.Missing, ", ")))
	}
	if len(e.Disabled) > 0 {
		parts = append(parts, fmt.Sprintf("disabled dependencies [%s]", strings.Join(e.Disabled, ", ")))
	}
	return fmt.Sprintf("module %s: %s", e.ModuleID, strings.Join(parts, "; "))
}

// Is matches ErrValidation and the specific dependency sentinels.
func (e *DependencyError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return true
	case ErrDependencyMissing:
		return len(e.Missing) > 0
	case ErrDependencyDisabled:
		return len(e.Disabled) > 0
	}
	return false
}

// PersistenceError wraps a failure returned by a repository.
type PersistenceError struct {
	Op       string
	ModuleID string
	Err      error
}

func (e *PersistenceError) Error() string {
	if e.ModuleID == "" {
		return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence %s failed for module %s: %v", e.Op, e.ModuleID, e.Err)
}

// Is makes every PersistenceError match ErrPersistence.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// LifecycleError records the phase in which a module failed.
type LifecycleError struct {
	ModuleID string
	Phase    string
	Err      error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("module %s failed during %s: %v", e.ModuleID, e.Phase, e.Err)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}

func newPersistenceError(op, moduleID string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, ModuleID: moduleID, Err: err}
}
