package blueprint

import (
	"context"
	"fmt"
	"slices"
)

// BatchUpdateEnabled sets the enabled flag of several modules. Each id is
// persisted independently; only ids that persisted are updated in memory
// and nothing is rolled back. A repository failure for the whole call is
// reported as every id failing, not as an error.
func (m *ModuleManager) BatchUpdateEnabled(ctx context.Context, ids []string, enabled bool) (BatchResult, error) {
	if len(ids) == 0 {
		return BatchResult{}, ErrEmptyIDList
	}
	blueprintID, err := m.requireBlueprint()
	if err != nil {
		return BatchResult{}, err
	}

	result, err := m.repo.BatchUpdateEnabled(ctx, blueprintID, slices.Clone(ids), enabled)
	if err != nil {
		m.logger.Error("Batch update failed in repository", "blueprint", blueprintID, "error", err)
		result = BatchResult{Failed: slices.Clone(ids)}
	}
	if result.Success == nil {
		result.Success = []string{}
	}
	if result.Failed == nil {
		result.Failed = []string{}
	}

	if len(result.Success) > 0 {
		patch := DescriptorPatch{Enabled: &enabled, UpdatedAt: m.now()}
		succeeded := make(map[string]struct{}, len(result.Success))
		for _, id := range result.Success {
			succeeded[id] = struct{}{}
		}
		m.modules.Update(func(list []ModuleDescriptor) []ModuleDescriptor {
			next := slices.Clone(list)
			for i, d := range next {
				if _, ok := succeeded[d.ID]; ok {
					next[i] = patch.Apply(d)
				}
			}
			return next
		})
	}

	verb := "enabled"
	if !enabled {
		verb = "disabled"
	}
	entry := m.newEntry(AuditEventModulesBatchUpdated, "batch_update", "",
		fmt.Sprintf("%d modules %s, %d failed", len(result.Success), verb, len(result.Failed)))
	if len(result.Failed) > 0 {
		entry.Status = AuditPartial
		entry.Severity = SeverityWarning
		m.lastError.Set(fmt.Sprintf("Failed to update %d of %d modules", len(result.Failed), len(ids)))
	}
	entry.Metadata = map[string]any{
		"enabled": enabled,
		"success": slices.Clone(result.Success),
		"failed":  slices.Clone(result.Failed),
	}
	m.writeAudit(ctx, entry)
	m.metrics.BatchCompleted(len(result.Success), len(result.Failed))

	m.logger.Info("Batch update completed", "blueprint", blueprintID, "enabled", enabled,
		"succeeded", len(result.Success), "failed", len(result.Failed))
	return result, nil
}

// BatchUpdateSelected applies BatchUpdateEnabled to the current selection.
func (m *ModuleManager) BatchUpdateSelected(ctx context.Context, enabled bool) (BatchResult, error) {
	return m.BatchUpdateEnabled(ctx, m.selection.Get().IDs(), enabled)
}
