package domain

// DrugCategory is the closed set of roles a drug plays in a protocol.
type DrugCategory string

const (
	// CategoryPrimary drugs induce immobilization.
	CategoryPrimary DrugCategory = "primary"
	// CategoryReversal drugs antagonise the primary drugs.
	CategoryReversal DrugCategory = "reversal"
	// CategoryEmergency drugs are used for resuscitation and supportive care.
	CategoryEmergency DrugCategory = "emergency"
)

// Valid reports whether c is a known category.
func (c DrugCategory) Valid() bool {
	switch c {
	case CategoryPrimary, CategoryReversal, CategoryEmergency:
		return true
	}
	return false
}

// DoseRange is an inclusive [Min, Max] dose per body weight in mg/kg.
type DoseRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Mean returns the midpoint of the range.
func (r DoseRange) Mean() float64 { return (r.Min + r.Max) / 2 }

// DrugDosage describes one drug entry of a protocol.
type DrugDosage struct {
	Name          string    `json:"name" yaml:"name"`
	Concentration float64   `json:"concentration" yaml:"concentration"`
	DoseRange     DoseRange `json:"doseRange" yaml:"dose_range"`
	Route         string    `json:"route" yaml:"route"`
	Notes         string    `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// SpeciesProtocol is the static drug prescription for a species.
type SpeciesProtocol struct {
	Species        string       `json:"species" yaml:"species"`
	CommonName     string       `json:"commonName,omitempty" yaml:"common_name,omitempty"`
	PrimaryDrugs   []DrugDosage `json:"primaryDrugs" yaml:"primary_drugs"`
	SecondaryDrugs []DrugDosage `json:"secondaryDrugs,omitempty" yaml:"secondary_drugs,omitempty"`
	ReversalDrugs  []DrugDosage `json:"reversalDrugs" yaml:"reversal_drugs"`
	Notes          string       `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// DoseResult is a computed dose for one drug. DoseMg is nil for volume-only
// entries (secondary drugs), which are titrated rather than bolus-dosed.
type DoseResult struct {
	Drug          string       `json:"drug"`
	Category      DrugCategory `json:"category"`
	Concentration float64      `json:"concentration"`
	Route         string       `json:"route"`
	DoseMg        *float64     `json:"doseMg,omitempty"`
	VolumeMl      float64      `json:"volumeMl"`
	Secondary     bool         `json:"secondary,omitempty"`
	Notes         string       `json:"notes,omitempty"`
}
