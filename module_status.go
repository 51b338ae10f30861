package blueprint

// ModuleStatus is the lifecycle phase of a module instance.
type ModuleStatus string

const (
	StatusUninitialized ModuleStatus = "UNINITIALIZED"
	StatusInitializing  ModuleStatus = "INITIALIZING"
	StatusInitialized   ModuleStatus = "INITIALIZED"
	StatusStarting      ModuleStatus = "STARTING"
	StatusStarted       ModuleStatus = "STARTED"
	StatusReady         ModuleStatus = "READY"
	StatusRunning       ModuleStatus = "RUNNING"
	StatusStopping      ModuleStatus = "STOPPING"
	StatusStopped       ModuleStatus = "STOPPED"
	StatusDisposed      ModuleStatus = "DISPOSED"
	StatusError         ModuleStatus = "ERROR"
)

// AllStatuses lists every status in lifecycle order, ERROR last.
var AllStatuses = []ModuleStatus{
	StatusUninitialized,
	StatusInitializing,
	StatusInitialized,
	StatusStarting,
	StatusStarted,
	StatusReady,
	StatusRunning,
	StatusStopping,
	StatusStopped,
	StatusDisposed,
	StatusError,
}

// transitions holds the forward edges of the lifecycle graph. ERROR and
// DISPOSED are handled separately: ERROR is reachable from every phase but
// DISPOSED, and DISPOSED is reachable from everything.
var transitions = map[ModuleStatus][]ModuleStatus{
	StatusUninitialized: {StatusInitializing},
	StatusInitializing:  {StatusInitialized},
	StatusInitialized:   {StatusStarting, StatusStopping},
	StatusStarting:      {StatusStarted},
	StatusStarted:       {StatusReady, StatusStopping},
	StatusReady:         {StatusRunning, StatusStopping},
	StatusRunning:       {StatusStopping},
	StatusStopping:      {StatusStopped},
}

// CanTransition reports whether a module may move from one status to another.
func CanTransition(from, to ModuleStatus) bool {
	switch {
	case to == StatusDisposed:
		return true
	case from == StatusDisposed:
		return false
	case to == StatusError:
		return from != StatusError
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsActive reports whether stop() is allowed from this status.
func (s ModuleStatus) IsActive() bool {
	switch s {
	case StatusInitialized, StatusStarted, StatusReady, StatusRunning:
		return true
	}
	return false
}

// IsTerminal reports whether the status requires dispose and a fresh
// instance before the module can run again.
func (s ModuleStatus) IsTerminal() bool {
	return s == StatusError || s == StatusDisposed || s == StatusStopped
}

// Valid reports whether s is a known status.
func (s ModuleStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s ModuleStatus) String() string {
	return string(s)
}
