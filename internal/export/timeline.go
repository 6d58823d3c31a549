package export

import (
	"strings"

	"immobilog/pkg/domain"
)

// Timeline row types.
const (
	RowEvent = "Event"
	RowPhase = "Phase"
	RowVital = "Vital"
	RowNote  = "Note"
)

// UnknownPhase labels a vital that falls outside every phase interval.
const UnknownPhase = "unknown"

// TimelineColumns is the fixed column schema of the flattened timeline.
var TimelineColumns = []string{"Type", "Field", "Value", "Unit", "Timestamp", "Phase"}

// TimelineRow is one discrete fact of an event.
type TimelineRow struct {
	Type      string
	Field     string
	Value     string
	Unit      string
	Timestamp string
	Phase     string
}

func (r TimelineRow) cells() []string {
	return []string{r.Type, r.Field, r.Value, r.Unit, r.Timestamp, r.Phase}
}

type vitalReading struct {
	field string
	unit  string
	value func(domain.Vital) *float64
}

var vitalReadings = []vitalReading{
	{"Heart Rate", "bpm", func(v domain.Vital) *float64 { return v.HeartRate }},
	{"Respiration Rate", "rpm", func(v domain.Vital) *float64 { return v.RespirationRate }},
	{"Temperature", "°C", func(v domain.Vital) *float64 { return v.Temperature }},
	{"Oxygen Saturation", "%", func(v domain.Vital) *float64 { return v.OxygenSaturation }},
	{"Capillary Refill Time", "s", func(v domain.Vital) *float64 { return v.CapillaryRefillTime }},
}

// Timeline flattens ev into event metadata rows, one row per phase, one row
// per present vital reading and one row per free-text note. A vital's phase
// is the phase whose [start, end) interval contains its time.
func Timeline(ev domain.ImmobilizationEvent, animal *domain.Animal, opts Options) []TimelineRow {
	name, species := "Unknown", "Unknown"
	if animal != nil {
		if animal.Name != "" {
			name = animal.Name
		}
		if animal.Species != "" {
			species = animal.Species
		}
	}
	end := "In Progress"
	if ev.EndTime != nil {
		end = opts.dateTime(*ev.EndTime)
	}
	rows := []TimelineRow{
		{Type: RowEvent, Field: "Animal", Value: name},
		{Type: RowEvent, Field: "Species", Value: species},
		{Type: RowEvent, Field: "Start Time", Value: opts.dateTime(ev.StartTime)},
		{Type: RowEvent, Field: "End Time", Value: end},
	}

	for _, p := range ev.Phases {
		value := p.Notes
		if value == "" {
			value = "Started"
		}
		stamp := opts.clock(p.StartTime)
		if p.EndTime != nil {
			stamp += " - " + opts.clock(*p.EndTime)
		}
		rows = append(rows, TimelineRow{
			Type:      RowPhase,
			Field:     strings.ToUpper(p.Phase.Label()),
			Value:     value,
			Timestamp: stamp,
		})
	}

	for _, v := range ev.Vitals {
		phase := UnknownPhase
		if p, ok := ev.PhaseAt(v.Time); ok {
			phase = string(p.Phase)
		}
		stamp := opts.clock(v.Time)
		for _, r := range vitalReadings {
			reading := r.value(v)
			if reading == nil {
				continue
			}
			rows = append(rows, TimelineRow{
				Type:      RowVital,
				Field:     r.field,
				Value:     number(*reading),
				Unit:      r.unit,
				Timestamp: stamp,
				Phase:     phase,
			})
		}
		if v.Notes != "" {
			rows = append(rows, TimelineRow{Type: RowNote, Field: "Notes", Value: v.Notes, Timestamp: stamp, Phase: phase})
		}
	}

	if ev.Notes != "" {
		rows = append(rows, TimelineRow{Type: RowEvent, Field: "Notes", Value: ev.Notes})
	}
	return rows
}

// TimelineTable wraps rows in the fixed timeline schema.
func TimelineTable(rows []TimelineRow) Table {
	t := Table{Columns: append([]string(nil), TimelineColumns...), Rows: make([][]string, len(rows))}
	for i, r := range rows {
		t.Rows[i] = r.cells()
	}
	return t
}

// TimelineCSV renders the flattened timeline of ev.
func TimelineCSV(ev domain.ImmobilizationEvent, animal *domain.Animal, opts Options) ([]byte, error) {
	return TimelineTable(Timeline(ev, animal, opts)).CSV()
}
