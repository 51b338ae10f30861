// Package events defines the domain events exchanged by the built-in
// modules. Modules only share these types; they never reference each other.
package events

import "time"

// Event types
const (
	ContractCreated        = "contract.created"
	AcceptancePassed       = "acceptance.passed"
	AcceptanceFailed       = "acceptance.failed"
	SafetyIncidentReported = "safety.incident.reported"
	CloudFileUploaded      = "cloud.file.uploaded"
	FinanceLineAdded       = "finance.line.added"
)

// ContractCreatedPayload announces a new contract.
type ContractCreatedPayload struct {
	ContractID string    `json:"contractId"`
	Title      string    `json:"title"`
	Value      float64   `json:"value"`
	CreatedAt  time.Time `json:"createdAt"`
}

// InspectionPayload reports the outcome of an acceptance inspection.
type InspectionPayload struct {
	ChecklistID string `json:"checklistId"`
	ContractID  string `json:"contractId"`
	Inspector   string `json:"inspector"`
	Notes       string `json:"notes,omitempty"`
}

// IncidentPayload announces a recorded safety incident.
type IncidentPayload struct {
	IncidentID string `json:"incidentId"`
	Title      string `json:"title"`
	Severity   string `json:"severity"`
	Source     string `json:"source,omitempty"`
}

// FileUploadedPayload announces stored file metadata.
type FileUploadedPayload struct {
	FileID string `json:"fileId"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
}

// BudgetLinePayload announces a new budget line.
type BudgetLinePayload struct {
	LineID string  `json:"lineId"`
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}
