// Package blueprint provides the module lifecycle and orchestration runtime
// of a Blueprint (a construction project workspace).
//
// Independent business-domain modules are registered against a Blueprint,
// validated against their declared dependencies, driven through a uniform
// lifecycle and connected to each other only through the Blueprint's
// EventBus:
//
//	factory := blueprint.NewFactory()
//	builtin.Register(factory)
//	mgr := blueprint.NewModuleManager(repo, auditLog, factory, blueprint.WithLogger(logger))
//	if err := mgr.LoadModules(ctx, "bp-1"); err != nil {
//		return err
//	}
//	report, err := mgr.Activate(ctx)
package blueprint

import "context"

// ModuleType selects the concrete implementation of a module.
type ModuleType string

// Module is a pluggable domain capability driven by the lifecycle
//
//	UNINITIALIZED → INITIALIZING → INITIALIZED → STARTING → STARTED → READY → RUNNING
//
// with STOPPING → STOPPED reachable from the active phases, ERROR reachable
// from any phase, and DISPOSED reachable from everywhere.
//
// Lifecycle methods of one instance must not be called concurrently; callers
// wait for Init to return before calling Start, and so on. Distinct
// instances may be driven concurrently.
//
// Concrete modules normally embed *Lifecycle, which implements every method.
type Module interface {
	// ID returns the module id, unique within its Blueprint.
	ID() string

	// Name returns the human-readable module name.
	Name() string

	// Version returns the module version.
	Version() string

	// Type returns the module kind.
	Type() ModuleType

	// Dependencies returns the ids of modules that must be registered
	// (and by policy enabled) before Init may proceed.
	Dependencies() []string

	// Status returns the current lifecycle status.
	Status() ModuleStatus

	// StatusView exposes the status as an observable, read-only cell.
	StatusView() View[ModuleStatus]

	// Exports returns the capabilities the module exposes to other code.
	// The contents are stable once the module is RUNNING.
	Exports() map[string]any

	// Init binds the module to its execution context: validates the
	// Blueprint id, validates dependencies, subscribes to events and
	// registers exports.
	Init(ctx context.Context, ec *ExecutionContext) error

	// Start moves an initialized module to STARTED.
	Start(ctx context.Context) error

	// Ready performs the final handshake and moves the module to RUNNING.
	Ready(ctx context.Context) error

	// Stop moves an active module to STOPPED.
	Stop(ctx context.Context) error

	// Dispose releases every subscription and the context reference. It is
	// idempotent and never fails.
	Dispose()
}

// Behavior is the domain-specific part of a module. Setup runs during Init,
// after the Blueprint id and dependencies have been validated.
type Behavior interface {
	Setup(ctx context.Context, ec *ExecutionContext, b *Binder) error
}

// Starter is implemented by behaviors that do work during Start.
type Starter interface {
	OnStart(ctx context.Context) error
}

// Stopper is implemented by behaviors that do work during Stop.
type Stopper interface {
	OnStop(ctx context.Context) error
}

// Disposer is implemented by behaviors that release resources on Dispose.
// Errors are logged and never returned.
type Disposer interface {
	OnDispose() error
}

// BehaviorFunc adapts a function to the Behavior interface.
type BehaviorFunc func(ctx context.Context, ec *ExecutionContext, b *Binder) error

// Setup implements Behavior.
func (f BehaviorFunc) Setup(ctx context.Context, ec *ExecutionContext, b *Binder) error {
	return f(ctx, ec, b)
}
