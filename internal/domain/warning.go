package domain

// WarningKind classifies a coherence finding.
type WarningKind string

const (
	WarningIdentical          WarningKind = "identical"
	WarningMoreGenerous       WarningKind = "more-generous"
	WarningConflict           WarningKind = "conflict"
	WarningMissingProductCost WarningKind = "missing-product-cost"
	WarningZeroCost           WarningKind = "zero-cost"
	WarningUnusedCost         WarningKind = "unused-cost"
)

// Severity of a coherence finding.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Warning is an advisory produced by coherence validation. Warnings never
// block a calculation.
type Warning struct {
	Kind             WarningKind `json:"kind"`
	Message          string      `json:"message"`
	Severity         Severity    `json:"severity"`
	RelatedException *int        `json:"relatedException,omitempty"`
}
