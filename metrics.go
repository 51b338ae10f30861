package blueprint

// MetricsRecorder receives framework measurements. The metrics package
// provides a Prometheus implementation.
type MetricsRecorder interface {
	// ModuleTransition records a module entering a status.
	ModuleTransition(moduleType ModuleType, status ModuleStatus)

	// EventEmitted records one Emit call for an event type.
	EventEmitted(eventType string)

	// HandlerFailed records a contained handler error or panic.
	HandlerFailed(eventType string)

	// BatchCompleted records the outcome of a batch enable/disable.
	BatchCompleted(succeeded, failed int)
}

type nopMetrics struct{}

func (nopMetrics) ModuleTransition(ModuleType, ModuleStatus) {}
func (nopMetrics) EventEmitted(string)                       {}
func (nopMetrics) HandlerFailed(string)                      {}
func (nopMetrics) BatchCompleted(int, int)                   {}
