package core

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"immobilog/internal/stopwatch"
	"immobilog/pkg/domain"
)

// Clock provides the current time. Tests inject a fixed clock.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// IDGenerator returns a new unique identifier with the given prefix.
type IDGenerator interface {
	NewID(prefix string) string
}

// IDFunc adapts a function to IDGenerator.
type IDFunc func(prefix string) string

// NewID implements IDGenerator.
func (f IDFunc) NewID(prefix string) string { return f(prefix) }

type uuidGenerator struct{}

func (uuidGenerator) NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// UUIDGenerator returns identifiers of the form "<prefix>-<uuid>".
func UUIDGenerator() IDGenerator { return uuidGenerator{} }

// ID prefixes for generated records.
const (
	prefixAnimal      = "animal"
	prefixEvent       = "event"
	prefixMeasurement = "meas"
)

// Session is the explicit context carried between lifecycle commands: the
// selected animal, the single active event (if any), and the display timer.
type Session struct {
	AnimalID string                      `json:"animalId,omitempty"`
	Active   *domain.ImmobilizationEvent `json:"activeEvent,omitempty"`
	Timer    stopwatch.State             `json:"timer"`
}

// Running reports whether the presentation timer is counting.
func (s Session) Running() bool { return s.Timer.Running() }

// HasActiveEvent reports whether an event is in progress.
func (s Session) HasActiveEvent() bool { return s.Active != nil }

func (s Session) clone() Session {
	out := s
	if s.Active != nil {
		ev := s.Active.Clone()
		out.Active = &ev
	}
	if s.Timer.RunningSince != nil {
		t := *s.Timer.RunningSince
		out.Timer.RunningSince = &t
	}
	return out
}

// Result describes the effect of a lifecycle command.
type Result struct {
	Outcome domain.Outcome
	// Reason explains an ignored command.
	Reason string
	// Completed is set when the command ended the active event.
	Completed *domain.ImmobilizationEvent
}

// Ignored reports whether the command was a no-op.
func (r Result) Ignored() bool { return r.Outcome == domain.OutcomeIgnored }

func applied() Result { return Result{Outcome: domain.OutcomeApplied} }

func ignored(reason string) Result {
	return Result{Outcome: domain.OutcomeIgnored, Reason: reason}
}

// VitalInput carries optional vital-sign readings. Nil fields are absent.
type VitalInput struct {
	HeartRate           *float64
	RespirationRate     *float64
	Temperature         *float64
	CapillaryRefillTime *float64
	OxygenSaturation    *float64
	Notes               string
}

// DrugInput describes an administered drug as entered by the operator.
type DrugInput struct {
	DrugName      string
	Concentration float64
	Volume        float64
	Dose          float64
	Unit          string
	Route         string
	Notes         string
	Sample        *domain.DrugSample
}

// AnimalInput holds the editable fields of an animal.
type AnimalInput struct {
	Species         string
	Name            string
	Identifier      string
	Sex             domain.Sex
	AgeClass        domain.AgeClass
	EstimatedWeight *float64
	Location        *domain.Location
	Notes           string
}

func (in AnimalInput) validate() error {
	if strings.TrimSpace(in.Species) == "" {
		return domain.ValidationError{Field: "species", Message: "species is required"}
	}
	if !in.Sex.Valid() {
		return domain.ValidationError{Field: "sex", Message: "must be male, female or unknown"}
	}
	if !in.AgeClass.Valid() {
		return domain.ValidationError{Field: "ageClass", Message: "must be cub, subadult, adult or senior"}
	}
	if in.EstimatedWeight != nil && *in.EstimatedWeight <= 0 {
		return domain.ValidationError{Field: "estimatedWeight", Message: "must be positive"}
	}
	return nil
}

func (in AnimalInput) apply(a *domain.Animal) {
	a.Species = strings.TrimSpace(in.Species)
	a.Name = in.Name
	a.Identifier = in.Identifier
	a.Sex = in.Sex
	a.AgeClass = in.AgeClass
	a.EstimatedWeight = in.EstimatedWeight
	a.Location = in.Location
	a.Notes = in.Notes
}

// InputFromAnimal returns the editable fields of a, for read-modify-write updates.
func InputFromAnimal(a domain.Animal) AnimalInput {
	return AnimalInput{
		Species:         a.Species,
		Name:            a.Name,
		Identifier:      a.Identifier,
		Sex:             a.Sex,
		AgeClass:        a.AgeClass,
		EstimatedWeight: a.EstimatedWeight,
		Location:        a.Location,
		Notes:           a.Notes,
	}
}
