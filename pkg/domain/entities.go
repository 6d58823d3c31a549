// Package domain defines the persistent records, closed value sets, and
// error types shared by every immobilog layer.
package domain

import (
	"sort"
	"strings"
	"time"
)

// Collection names a persisted record collection.
type Collection string

// Record collections persisted through the KeyValueStore.
const (
	CollectionAnimals      Collection = "animals"
	CollectionEvents       Collection = "immobilizationEvents"
	CollectionMeasurements Collection = "measurements"
	// CollectionActiveEvent holds the persisted Session (the active-event slot).
	CollectionActiveEvent Collection = "activeEvent"
)

// EntityType identifies the kind of record referenced by errors and logs.
type EntityType string

// Entity identifiers used by NotFoundError and log fields.
const (
	EntityAnimal      EntityType = "animal"
	EntityEvent       EntityType = "immobilization_event"
	EntityMeasurement EntityType = "measurement"
	EntityProtocol    EntityType = "species_protocol"
)

// Sex of an animal as recorded at capture.
type Sex string

// Recognised sexes.
const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexUnknown Sex = "unknown"
)

// Valid reports whether s is one of the recognised values (empty is allowed).
func (s Sex) Valid() bool {
	switch s {
	case "", SexMale, SexFemale, SexUnknown:
		return true
	}
	return false
}

// AgeClass is the coarse age bracket estimated in the field.
type AgeClass string

// Recognised age classes.
const (
	AgeCub      AgeClass = "cub"
	AgeSubadult AgeClass = "subadult"
	AgeAdult    AgeClass = "adult"
	AgeSenior   AgeClass = "senior"
)

// Valid reports whether a is one of the recognised values (empty is allowed).
func (a AgeClass) Valid() bool {
	switch a {
	case "", AgeCub, AgeSubadult, AgeAdult, AgeSenior:
		return true
	}
	return false
}

// Location is the optional capture position.
type Location struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

// Animal is the identity record for a captured individual.
type Animal struct {
	ID              string    `json:"id"`
	Species         string    `json:"species"`
	Name            string    `json:"name,omitempty"`
	Identifier      string    `json:"identifier,omitempty"`
	Sex             Sex       `json:"sex,omitempty"`
	AgeClass        AgeClass  `json:"ageClass,omitempty"`
	EstimatedWeight *float64  `json:"estimatedWeight,omitempty"`
	Location        *Location `json:"location,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// DisplayName returns the best human label for the animal, falling back from
// name to identifier to species.
func (a Animal) DisplayName() string {
	switch {
	case a.Name != "":
		return a.Name
	case a.Identifier != "":
		return a.Identifier
	case a.Species != "":
		return a.Species
	}
	return "unknown"
}

// PhaseKind is the closed set of immobilization phases.
type PhaseKind string

// Phase kinds. PhaseRecoveryComplete is terminal: recording it ends the event.
const (
	PhaseInduction        PhaseKind = "induction"
	PhaseImmobilization   PhaseKind = "immobilization"
	PhaseRecovery         PhaseKind = "recovery"
	PhaseRecoveryComplete PhaseKind = "recovery_complete"
	PhaseComplication     PhaseKind = "complication"
	PhaseOther            PhaseKind = "other"
)

// PhaseKinds lists every phase kind in workflow order.
func PhaseKinds() []PhaseKind {
	return []PhaseKind{
		PhaseInduction,
		PhaseImmobilization,
		PhaseRecovery,
		PhaseRecoveryComplete,
		PhaseComplication,
		PhaseOther,
	}
}

// Valid reports whether k is a known phase kind.
func (k PhaseKind) Valid() bool {
	switch k {
	case PhaseInduction, PhaseImmobilization, PhaseRecovery, PhaseRecoveryComplete, PhaseComplication, PhaseOther:
		return true
	}
	return false
}

// Terminal reports whether recording this phase completes the event.
func (k PhaseKind) Terminal() bool { return k == PhaseRecoveryComplete }

// Label renders the kind with underscores replaced by spaces.
func (k PhaseKind) Label() string { return strings.ReplaceAll(string(k), "_", " ") }

// Phase is a time-bounded stage of an event. EndTime is nil while open.
type Phase struct {
	Phase     PhaseKind  `json:"phase"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// Open reports whether the phase has not been closed.
func (p Phase) Open() bool { return p.EndTime == nil }

// Contains reports whether t falls in the half-open interval [start, end).
// An open phase is unbounded on the right.
func (p Phase) Contains(t time.Time) bool {
	if t.Before(p.StartTime) {
		return false
	}
	return p.EndTime == nil || t.Before(*p.EndTime)
}

// Vital is an immutable snapshot of physiological readings.
type Vital struct {
	Time                time.Time `json:"time"`
	HeartRate           *float64  `json:"heartRate,omitempty"`
	RespirationRate     *float64  `json:"respirationRate,omitempty"`
	Temperature         *float64  `json:"temperature,omitempty"`
	CapillaryRefillTime *float64  `json:"capillaryRefillTime,omitempty"`
	OxygenSaturation    *float64  `json:"oxygenSaturation,omitempty"`
	Notes               string    `json:"notes,omitempty"`
}

// DrugSample records a biological sample taken alongside a drug administration.
type DrugSample struct {
	Type  string `json:"type"`
	Time  string `json:"time"`
	Notes string `json:"notes,omitempty"`
}

// AdministeredDrug is an immutable record of a drug given during an event.
type AdministeredDrug struct {
	DrugName      string      `json:"drugName"`
	Concentration float64     `json:"concentration"`
	Volume        float64     `json:"volume"`
	Dose          float64     `json:"dose"`
	Unit          string      `json:"unit"`
	Route         string      `json:"route"`
	Time          time.Time   `json:"time"`
	Notes         string      `json:"notes,omitempty"`
	Sample        *DrugSample `json:"sample,omitempty"`
}

// EventStatus is derived from the presence of an end time.
type EventStatus string

// Event statuses.
const (
	EventActive    EventStatus = "active"
	EventCompleted EventStatus = "completed"
)

// ImmobilizationEvent is the central aggregate for one chemical immobilization.
type ImmobilizationEvent struct {
	ID                string             `json:"id"`
	AnimalID          string             `json:"animalId"`
	StartTime         time.Time          `json:"startTime"`
	EndTime           *time.Time         `json:"endTime,omitempty"`
	Phases            []Phase            `json:"phases"`
	Vitals            []Vital            `json:"vitals"`
	DrugsAdministered []AdministeredDrug `json:"drugsAdministered"`
	Complications     []string           `json:"complications,omitempty"`
	Notes             string             `json:"notes,omitempty"`
}

// Status derives the event status from EndTime.
func (e ImmobilizationEvent) Status() EventStatus {
	if e.EndTime == nil {
		return EventActive
	}
	return EventCompleted
}

// OpenPhaseIndex returns the index of the open phase or -1.
func (e ImmobilizationEvent) OpenPhaseIndex() int {
	for i := len(e.Phases) - 1; i >= 0; i-- {
		if e.Phases[i].Open() {
			return i
		}
	}
	return -1
}

// PhaseAt returns the first phase whose [start, end) interval contains t.
func (e ImmobilizationEvent) PhaseAt(t time.Time) (Phase, bool) {
	for _, p := range e.Phases {
		if p.Contains(t) {
			return p, true
		}
	}
	return Phase{}, false
}

// Duration returns the elapsed time between start and end; ok is false while active.
func (e ImmobilizationEvent) Duration() (time.Duration, bool) {
	if e.EndTime == nil {
		return 0, false
	}
	return e.EndTime.Sub(e.StartTime), true
}

// Clone returns a deep copy so lifecycle transitions never alias caller state.
func (e ImmobilizationEvent) Clone() ImmobilizationEvent {
	out := e
	out.EndTime = cloneTime(e.EndTime)
	if e.Phases != nil {
		out.Phases = make([]Phase, len(e.Phases))
		for i, p := range e.Phases {
			p.EndTime = cloneTime(p.EndTime)
			out.Phases[i] = p
		}
	}
	out.Vitals = cloneSlice(e.Vitals)
	out.DrugsAdministered = cloneSlice(e.DrugsAdministered)
	out.Complications = cloneSlice(e.Complications)
	return out
}

// cloneSlice copies src keeping nil and empty distinct, so an empty list
// still serialises as [].
func cloneSlice[T any](src []T) []T {
	if src == nil {
		return nil
	}
	out := make([]T, len(src))
	copy(out, src)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// MeasurementFields is a sparse map of morphometric values keyed by field name.
type MeasurementFields map[string]float64

// Known morphometric fields in entry order.
const (
	FieldTotalLength              = "totalLength"
	FieldTailLength               = "tailLength"
	FieldShoulderHeight           = "shoulderHeight"
	FieldChestGirth               = "chestGirth"
	FieldNeckCircumference        = "neckCircumference"
	FieldWeight                   = "weight"
	FieldUpperCanineLength        = "upperCanineLength"
	FieldLowerCanineLength        = "lowerCanineLength"
	FieldUpperCanineWidth         = "upperCanineWidth"
	FieldLowerCanineWidth         = "lowerCanineWidth"
	FieldIntercanineDistanceUpper = "intercanineDistanceUpper"
	FieldIntercanineDistanceLower = "intercanineDistanceLower"
)

var knownMeasurementFields = []string{
	FieldTotalLength,
	FieldTailLength,
	FieldShoulderHeight,
	FieldChestGirth,
	FieldNeckCircumference,
	FieldWeight,
	FieldUpperCanineLength,
	FieldLowerCanineLength,
	FieldUpperCanineWidth,
	FieldLowerCanineWidth,
	FieldIntercanineDistanceUpper,
	FieldIntercanineDistanceLower,
}

// KnownMeasurementFields returns the built-in field names in entry order.
func KnownMeasurementFields() []string {
	return append([]string(nil), knownMeasurementFields...)
}

// Keys returns known fields in entry order followed by custom fields sorted by name.
func (m MeasurementFields) Keys() []string {
	out := make([]string, 0, len(m))
	seen := make(map[string]struct{}, len(knownMeasurementFields))
	for _, k := range knownMeasurementFields {
		seen[k] = struct{}{}
		if _, ok := m[k]; ok {
			out = append(out, k)
		}
	}
	var custom []string
	for k := range m {
		if _, ok := seen[k]; !ok {
			custom = append(custom, k)
		}
	}
	sort.Strings(custom)
	return append(out, custom...)
}

// MeasurementUnit returns the display unit for a field: cm for body
// dimensions, mm for canine dimensions, kg for weight, empty otherwise.
func MeasurementUnit(field string) string {
	switch field {
	case FieldWeight:
		return "kg"
	case FieldTotalLength, FieldTailLength, FieldShoulderHeight, FieldChestGirth, FieldNeckCircumference:
		return "cm"
	case FieldUpperCanineLength, FieldLowerCanineLength, FieldUpperCanineWidth, FieldLowerCanineWidth,
		FieldIntercanineDistanceUpper, FieldIntercanineDistanceLower:
		return "mm"
	}
	return ""
}

// Measurement is an immutable morphometric snapshot tied to an animal and event.
type Measurement struct {
	ID           string            `json:"id"`
	AnimalID     string            `json:"animalId"`
	EventID      string            `json:"eventId"`
	Timestamp    time.Time         `json:"timestamp"`
	Measurements MeasurementFields `json:"measurements"`
	Notes        string            `json:"notes,omitempty"`
}
