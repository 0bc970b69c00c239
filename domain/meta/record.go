package meta

import "gometa/domain/core"

// StoredDataset is a persisted input bundle with identity and provenance.
//
// INVARIANTS:
// - Dataset passed construction-time validation before persistence
// - Name is unique per source; enforced by the repository layer
type StoredDataset struct {
	ID          core.DatasetID          `json:"id"`
	Name        string                  `json:"name"`
	Source      string                  `json:"source,omitempty"` // originating file path, or "api"
	Fingerprint core.DatasetFingerprint `json:"fingerprint,omitempty"`
	Dataset     *Dataset                `json:"dataset"`
	CreatedAt   core.Timestamp          `json:"created_at"`
}

// AnalysisRecord is one persisted estimator invocation: the raw estimate
// plus the flattened table shown to users.
type AnalysisRecord struct {
	ID        core.AnalysisID `json:"id"`
	DatasetID core.DatasetID  `json:"dataset_id,omitempty"`
	Estimator string          `json:"estimator"`
	Alpha     float64         `json:"alpha"`
	Estimate  *Estimate       `json:"estimate"`
	Table     []TableRow      `json:"table,omitempty"`
	Tau2CI    *REStats        `json:"tau2_ci,omitempty"`
	CreatedAt core.Timestamp  `json:"created_at"`
}
