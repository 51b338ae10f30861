package blueprint

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sort"
)

// ExecutionContext is the immutable bundle handed to every module's Init.
// It is built once per Blueprint activation and shared by reference; all
// fields are unexported and only readable through accessors.
type ExecutionContext struct {
	blueprintID string
	bus         *EventBus
	logger      Logger
	directory   ModuleDirectory
	policy      DependencyPolicy
	services    map[string]any
}

// ContextOption adds an ambient service to an ExecutionContext under
// construction.
type ContextOption func(*ExecutionContext)

// WithContextLogger sets the logger modules receive.
func WithContextLogger(logger Logger) ContextOption {
	return func(ec *ExecutionContext) {
		if logger != nil {
			ec.logger = logger
		}
	}
}

// WithDirectory sets the module directory used for dependency validation.
func WithDirectory(dir ModuleDirectory) ContextOption {
	return func(ec *ExecutionContext) {
		ec.directory = dir
	}
}

// WithValidationPolicy sets the dependency policy applied during Init.
func WithValidationPolicy(policy DependencyPolicy) ContextOption {
	return func(ec *ExecutionContext) {
		ec.policy = policy
	}
}

// WithService registers a named ambient service.
func WithService(name string, service any) ContextOption {
	return func(ec *ExecutionContext) {
		ec.services[name] = service
	}
}

// WithServices registers several named ambient services.
func WithServices(services map[string]any) ContextOption {
	return func(ec *ExecutionContext) {
		maps.Copy(ec.services, services)
	}
}

// NewExecutionContext builds a context. The blueprint id is not validated
// here; Init rejects contexts without one.
func NewExecutionContext(blueprintID string, bus *EventBus, opts ...ContextOption) *ExecutionContext {
	ec := &ExecutionContext{
		blueprintID: blueprintID,
		bus:         bus,
		logger:      NopLogger{},
		policy:      RequireEnabled,
		services:    make(map[string]any),
	}
	for _, opt := range opts {
		opt(ec)
	}
	return ec
}

// BlueprintID returns the id of the owning Blueprint.
func (ec *ExecutionContext) BlueprintID() string {
	if ec == nil {
		return ""
	}
	return ec.blueprintID
}

// EventBus returns the Blueprint's event bus.
func (ec *ExecutionContext) EventBus() *EventBus {
	if ec == nil {
		return nil
	}
	return ec.bus
}

// Logger returns the ambient logger, never nil.
func (ec *ExecutionContext) Logger() Logger {
	if ec == nil || ec.logger == nil {
		return NopLogger{}
	}
	return ec.logger
}

// Directory returns the module directory, which may be nil.
func (ec *ExecutionContext) Directory() ModuleDirectory {
	if ec == nil {
		return nil
	}
	return ec.directory
}

// DependencyPolicy returns the policy applied when validating dependencies.
func (ec *ExecutionContext) DependencyPolicy() DependencyPolicy {
	if ec == nil {
		return RequireEnabled
	}
	return ec.policy
}

// Service returns a named ambient service.
func (ec *ExecutionContext) Service(name string) (any, bool) {
	if ec == nil {
		return nil, false
	}
	svc, ok := ec.services[name]
	return svc, ok
}

// ServiceNames lists the registered ambient services, sorted.
func (ec *ExecutionContext) ServiceNames() []string {
	if ec == nil {
		return nil
	}
	names := slices.Collect(maps.Keys(ec.services))
	sort.Strings(names)
	return names
}

// GetService assigns a named service to target, which must be a non-nil
// pointer to a type the service is assignable to.
func (ec *ExecutionContext) GetService(name string, target any) error {
	svc, ok := ec.Service(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}

	targetValue := reflect.ValueOf(target)
	if targetValue.Kind() != reflect.Ptr || targetValue.IsNil() {
		return ErrTargetNotPointer
	}

	svcValue := reflect.ValueOf(svc)
	elem := targetValue.Elem()
	switch {
	case svcValue.Type().AssignableTo(elem.Type()):
		elem.Set(svcValue)
	case svcValue.Kind() == reflect.Ptr && svcValue.Elem().Type().AssignableTo(elem.Type()):
		elem.Set(svcValue.Elem())
	default:
		return fmt.Errorf("%w: service '%s' of type %s cannot be assigned to %s",
			ErrServiceIncompatible, name, svcValue.Type(), elem.Type())
	}
	return nil
}
