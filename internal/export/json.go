package export

import (
	"encoding/json"
	"fmt"
	"time"

	"immobilog/pkg/domain"
)

// isoStamp marshals as an ISO-8601 UTC string with millisecond precision.
type isoStamp time.Time

func (t isoStamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(isoTime(time.Time(t)))
}

func stampPtr(t *time.Time) *isoStamp {
	if t == nil {
		return nil
	}
	s := isoStamp(*t)
	return &s
}

type phaseJSON struct {
	Phase     domain.PhaseKind `json:"phase"`
	StartTime isoStamp         `json:"startTime"`
	EndTime   *isoStamp        `json:"endTime,omitempty"`
	Notes     string           `json:"notes,omitempty"`
}

type vitalJSON struct {
	Time                isoStamp `json:"time"`
	HeartRate           *float64 `json:"heartRate,omitempty"`
	RespirationRate     *float64 `json:"respirationRate,omitempty"`
	Temperature         *float64 `json:"temperature,omitempty"`
	CapillaryRefillTime *float64 `json:"capillaryRefillTime,omitempty"`
	OxygenSaturation    *float64 `json:"oxygenSaturation,omitempty"`
	Notes               string   `json:"notes,omitempty"`
}

type drugJSON struct {
	DrugName      string             `json:"drugName"`
	Concentration float64            `json:"concentration"`
	Volume        float64            `json:"volume"`
	Dose          float64            `json:"dose"`
	Unit          string             `json:"unit"`
	Route         string             `json:"route"`
	Time          isoStamp           `json:"time"`
	Notes         string             `json:"notes,omitempty"`
	Sample        *domain.DrugSample `json:"sample,omitempty"`
}

type eventJSON struct {
	ID                string             `json:"id"`
	AnimalID          string             `json:"animalId"`
	StartTime         isoStamp           `json:"startTime"`
	EndTime           *isoStamp          `json:"endTime,omitempty"`
	Status            domain.EventStatus `json:"status"`
	Phases            []phaseJSON        `json:"phases"`
	Vitals            []vitalJSON        `json:"vitals"`
	DrugsAdministered []drugJSON         `json:"drugsAdministered"`
	Complications     []string           `json:"complications,omitempty"`
	Notes             string             `json:"notes,omitempty"`
	AnimalName        string             `json:"animalName"`
	Species           string             `json:"species"`
	Duration          string             `json:"duration"`
}

// DurationText is "N minutes" for a completed event and "Ongoing" otherwise.
func DurationText(ev domain.ImmobilizationEvent) string {
	d, ok := ev.Duration()
	if !ok {
		return "Ongoing"
	}
	return fmt.Sprintf("%d minutes", minutes(d))
}

// EventJSON renders a single event as indented JSON with ISO timestamps and
// the derived animalName, species and duration fields.
func EventJSON(ev domain.ImmobilizationEvent, animal *domain.Animal) ([]byte, error) {
	out := eventJSON{
		ID:                ev.ID,
		AnimalID:          ev.AnimalID,
		StartTime:         isoStamp(ev.StartTime),
		EndTime:           stampPtr(ev.EndTime),
		Status:            ev.Status(),
		Phases:            make([]phaseJSON, 0, len(ev.Phases)),
		Vitals:            make([]vitalJSON, 0, len(ev.Vitals)),
		DrugsAdministered: make([]drugJSON, 0, len(ev.DrugsAdministered)),
		Complications:     ev.Complications,
		Notes:             ev.Notes,
		AnimalName:        "Unknown",
		Species:           "Unknown",
		Duration:          DurationText(ev),
	}
	if animal != nil {
		out.AnimalName = orDefault(animal.Name, out.AnimalName)
		out.Species = orDefault(animal.Species, out.Species)
	}
	for _, p := range ev.Phases {
		out.Phases = append(out.Phases, phaseJSON{
			Phase:     p.Phase,
			StartTime: isoStamp(p.StartTime),
			EndTime:   stampPtr(p.EndTime),
			Notes:     p.Notes,
		})
	}
	for _, v := range ev.Vitals {
		out.Vitals = append(out.Vitals, vitalJSON{
			Time:                isoStamp(v.Time),
			HeartRate:           v.HeartRate,
			RespirationRate:     v.RespirationRate,
			Temperature:         v.Temperature,
			CapillaryRefillTime: v.CapillaryRefillTime,
			OxygenSaturation:    v.OxygenSaturation,
			Notes:               v.Notes,
		})
	}
	for _, d := range ev.DrugsAdministered {
		out.DrugsAdministered = append(out.DrugsAdministered, drugJSON{
			DrugName:      d.DrugName,
			Concentration: d.Concentration,
			Volume:        d.Volume,
			Dose:          d.Dose,
			Unit:          d.Unit,
			Route:         d.Route,
			Time:          isoStamp(d.Time),
			Notes:         d.Notes,
			Sample:        d.Sample,
		})
	}
	return json.MarshalIndent(out, "", "  ")
}
