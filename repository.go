package blueprint

import "context"

// DescriptorRepository persists module descriptors per Blueprint.
// Implementations live under storage/.
type DescriptorRepository interface {
	// FindByBlueprintID returns every descriptor of a Blueprint in
	// registration order.
	FindByBlueprintID(ctx context.Context, blueprintID string) ([]ModuleDescriptor, error)

	// Create stores a new descriptor and returns it as persisted.
	Create(ctx context.Context, blueprintID string, data ModuleDescriptor) (ModuleDescriptor, error)

	// Update applies a patch to an existing descriptor.
	Update(ctx context.Context, blueprintID, id string, patch DescriptorPatch) error

	// UpdateStatus records the live status of a module.
	UpdateStatus(ctx context.Context, blueprintID, id string, status ModuleStatus) error

	// Delete removes a descriptor.
	Delete(ctx context.Context, blueprintID, id string) error

	// BatchUpdateEnabled sets the enabled flag of each id independently.
	// A failure on one id never affects the others.
	BatchUpdateEnabled(ctx context.Context, blueprintID string, ids []string, enabled bool) (BatchResult, error)
}

// AuditLogRepository stores audit entries.
type AuditLogRepository interface {
	Create(ctx context.Context, entry AuditEntry) error
}

// BatchResult separates the per-item outcomes of a batch operation.
type BatchResult struct {
	Success []string `json:"success"`
	Failed  []string `json:"failed"`
}

// Partial reports whether some but not all items failed.
func (r BatchResult) Partial() bool {
	return len(r.Failed) > 0 && len(r.Success) > 0
}
