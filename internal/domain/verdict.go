package domain

// VerdictStatus is the outcome class of a rule evaluation
type VerdictStatus string

const (
	VerdictCompliant VerdictStatus = "Compliant"
	VerdictOffending VerdictStatus = "Offending"
)

// OffenseKind enumerates the waste patterns the rule engine detects
type OffenseKind string

const (
	OffenseNone            OffenseKind = "NONE"
	OffenseLicenseHoarding OffenseKind = "LICENSE_HOARDING"
	OffenseSpectrumWaste   OffenseKind = "SPECTRUM_WASTE"
)

// Verdict is the rule engine's classification of one snapshot.
// It is created fresh every cycle and never persisted directly.
type Verdict struct {
	Status      VerdictStatus `json:"status"`
	Offense     OffenseKind   `json:"offense"`
	WastedQty   float64       `json:"wasted_qty"`
	SavingValue float64       `json:"saving_value"`
	Rationale   string        `json:"rationale"`
}

// CompliantVerdict returns the zero-waste verdict
func CompliantVerdict() Verdict {
	return Verdict{
		Status:    VerdictCompliant,
		Offense:   OffenseNone,
		Rationale: "Clean",
	}
}

// IsOffending reports whether the verdict found waste
func (v Verdict) IsOffending() bool {
	return v.Status == VerdictOffending
}
