package export

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"immobilog/pkg/domain"
)

// ReportTitle heads every procedure report.
const ReportTitle = "IMMOBILIZATION PROCEDURE REPORT"

// Lookup-miss results rendered in place of a report.
const (
	AnimalNotFoundText = "Error: Animal not found."
	EventNotFoundText  = "Error: Immobilization event not found."
)

// Section is one titled block of a report.
type Section struct {
	Heading string
	Lines   []string
}

// Document is the structured form of a report; renderers turn it into text
// or HTML.
type Document struct {
	Title    string
	Sections []Section
}

// Section returns the section with heading, if present.
func (d Document) Section(heading string) (Section, bool) {
	for _, s := range d.Sections {
		if s.Heading == heading {
			return s, true
		}
	}
	return Section{}, false
}

// DoseCalculator computes protocol doses; *dosing.Table satisfies it.
type DoseCalculator interface {
	ComputeAllDoses(species string, weightKg float64) ([]domain.DoseResult, error)
}

// ReportInput carries the loaded collections and the selection to report on.
type ReportInput struct {
	AnimalID     string
	EventID      string
	Animals      []domain.Animal
	Events       []domain.ImmobilizationEvent
	Measurements []domain.Measurement
	Doses        DoseCalculator
}

// BuildReport gathers the sections for one animal and event. A missing
// animal or event is reported as a domain.NotFoundError.
func BuildReport(in ReportInput, opts Options) (Document, error) {
	animal, ok := findAnimal(in.Animals, in.AnimalID)
	if !ok {
		return Document{}, domain.NotFoundError{Entity: domain.EntityAnimal, ID: in.AnimalID}
	}
	ev, ok := findEvent(in.Events, in.EventID)
	if !ok {
		return Document{}, domain.NotFoundError{Entity: domain.EntityEvent, ID: in.EventID}
	}
	var measurements []domain.Measurement
	for _, m := range in.Measurements {
		if m.EventID == ev.ID {
			measurements = append(measurements, m)
		}
	}

	doc := Document{Title: ReportTitle}
	doc.Sections = append(doc.Sections,
		animalSection(animal),
		eventSection(ev, opts),
		phaseSection(ev, opts),
		drugSection(ev, opts),
		doseSection(animal, in.Doses),
		vitalSection(ev, opts),
		measurementSection(measurements, opts),
		listSection("Complications", ev.Complications, "None reported"),
		textSection("Notes", ev.Notes, "No additional notes"),
		Section{Heading: "Report Generated", Lines: []string{opts.dateTime(opts.now())}},
	)
	return doc, nil
}

// GenerateReport renders the report as text, or the lookup-miss message
// when the animal or event cannot be found.
func GenerateReport(in ReportInput, opts Options) string {
	doc, err := BuildReport(in, opts)
	if err != nil {
		var nf domain.NotFoundError
		if errors.As(err, &nf) && nf.Entity == domain.EntityAnimal {
			return AnimalNotFoundText
		}
		return EventNotFoundText
	}
	return doc.Text()
}

func findAnimal(animals []domain.Animal, id string) (domain.Animal, bool) {
	for _, a := range animals {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Animal{}, false
}

func findEvent(events []domain.ImmobilizationEvent, id string) (domain.ImmobilizationEvent, bool) {
	for _, e := range events {
		if e.ID == id {
			return e, true
		}
	}
	return domain.ImmobilizationEvent{}, false
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func animalSection(a domain.Animal) Section {
	weight := "Not specified"
	if a.EstimatedWeight != nil && *a.EstimatedWeight != 0 {
		weight = number(*a.EstimatedWeight) + " kg"
	}
	return Section{Heading: "Animal Information", Lines: []string{
		"Species: " + orDefault(a.Species, "Not specified"),
		"Identifier: " + orDefault(a.Identifier, "N/A"),
		"Name: " + orDefault(a.Name, "Not named"),
		"Sex: " + orDefault(string(a.Sex), "Unknown"),
		"Age Class: " + orDefault(string(a.AgeClass), "Unknown"),
		"Estimated Weight: " + weight,
	}}
}

func eventSection(ev domain.ImmobilizationEvent, opts Options) Section {
	end := "Ongoing"
	if ev.EndTime != nil {
		end = opts.dateTime(*ev.EndTime)
	}
	return Section{Heading: "Immobilization Event", Lines: []string{
		"Start Time: " + opts.dateTime(ev.StartTime),
		"End Time: " + end,
	}}
}

func phaseSection(ev domain.ImmobilizationEvent, opts Options) Section {
	s := Section{Heading: "Event Phases"}
	if len(ev.Phases) == 0 {
		s.Lines = []string{"No phase information available"}
		return s
	}
	for _, p := range ev.Phases {
		line := p.Phase.Label() + ": " + opts.dateTime(p.StartTime) + " - "
		if p.EndTime != nil {
			line += fmt.Sprintf("%s (%d min)", opts.dateTime(*p.EndTime), minutes(p.EndTime.Sub(p.StartTime)))
		} else {
			line += "In Progress"
		}
		s.Lines = append(s.Lines, line)
		if p.Notes != "" {
			s.Lines = append(s.Lines, "  Notes: "+p.Notes)
		}
	}
	return s
}

func unknownIfZero(v float64) string {
	if v == 0 {
		return "?"
	}
	return number(v)
}

func drugSection(ev domain.ImmobilizationEvent, opts Options) Section {
	s := Section{Heading: "Drugs Administered"}
	if len(ev.DrugsAdministered) == 0 {
		s.Lines = []string{"No drugs were recorded for this event."}
		return s
	}
	for i, d := range ev.DrugsAdministered {
		if i > 0 {
			s.Lines = append(s.Lines, "")
		}
		s.Lines = append(s.Lines,
			fmt.Sprintf("%d. %s", i+1, orDefault(d.DrugName, "Unknown Drug")),
			"   - Volume: "+unknownIfZero(d.Volume)+" ml",
			"   - Concentration: "+unknownIfZero(d.Concentration)+" mg/ml",
			"   - Route: "+orDefault(d.Route, "Not specified"),
			"   - Time: "+opts.dateTime(d.Time),
			"   - Dose: "+unknownIfZero(d.Dose)+" "+orDefault(d.Unit, "units"),
		)
		if d.Sample != nil {
			s.Lines = append(s.Lines, "   - Sample: "+strings.TrimSpace(d.Sample.Type+" "+d.Sample.Time))
		}
		if d.Notes != "" {
			s.Lines = append(s.Lines, "   - Notes: "+d.Notes)
		}
	}
	return s
}

func doseSection(a domain.Animal, calc DoseCalculator) Section {
	s := Section{Heading: "Recommended Drug Dosages", Lines: []string{"No dosage data available"}}
	if calc == nil || a.Species == "" || a.EstimatedWeight == nil || *a.EstimatedWeight <= 0 {
		return s
	}
	doses, err := calc.ComputeAllDoses(a.Species, *a.EstimatedWeight)
	if err != nil {
		s.Lines = []string{"Error calculating dosages"}
		return s
	}
	if len(doses) == 0 {
		return s
	}
	s.Lines = make([]string, 0, len(doses))
	for _, d := range doses {
		mg := "N/A"
		if d.DoseMg != nil {
			mg = fixed2(*d.DoseMg)
		}
		s.Lines = append(s.Lines, fmt.Sprintf("%s (%s mg/ml): %s mg / %s ml (%s)",
			d.Drug, number(d.Concentration), mg, fixed2(d.VolumeMl), d.Route))
	}
	return s
}

func vitalSection(ev domain.ImmobilizationEvent, opts Options) Section {
	s := Section{Heading: "Vital Signs Monitoring"}
	if len(ev.Vitals) == 0 {
		s.Lines = []string{"No vitals recorded"}
		return s
	}
	for _, v := range ev.Vitals {
		parts := []string{"Time: " + opts.dateTime(v.Time)}
		if v.HeartRate != nil {
			parts = append(parts, "Heart Rate: "+number(*v.HeartRate)+" bpm")
		}
		if v.RespirationRate != nil {
			parts = append(parts, "Respiration: "+number(*v.RespirationRate)+" bpm")
		}
		if v.Temperature != nil {
			parts = append(parts, "Temperature: "+number(*v.Temperature)+"°C")
		}
		if v.CapillaryRefillTime != nil {
			parts = append(parts, "CRT: "+number(*v.CapillaryRefillTime)+" sec")
		}
		if v.OxygenSaturation != nil {
			parts = append(parts, "SpO2: "+number(*v.OxygenSaturation)+"%")
		}
		if v.Notes != "" {
			parts = append(parts, "Notes: "+v.Notes)
		}
		s.Lines = append(s.Lines, strings.Join(parts, ", "))
	}
	return s
}

func measurementSection(sets []domain.Measurement, opts Options) Section {
	s := Section{Heading: "Morphometric Measurements"}
	if len(sets) == 0 {
		s.Lines = []string{"No measurements were recorded for this event."}
		return s
	}
	for i, m := range sets {
		if i > 0 {
			s.Lines = append(s.Lines, "")
		}
		var entries []string
		for _, key := range m.Measurements.Keys() {
			v := m.Measurements[key]
			if v == 0 {
				continue
			}
			entry := "  • " + FieldLabel(key) + ": " + number(v)
			if unit := domain.MeasurementUnit(key); unit != "" {
				entry += " " + unit
			}
			entries = append(entries, entry)
		}
		if len(entries) == 0 {
			s.Lines = append(s.Lines, fmt.Sprintf("Measurement Set %d: No measurement data", i+1))
		} else {
			s.Lines = append(s.Lines, fmt.Sprintf("Measurement Set %d - %s:", i+1, opts.dateTime(m.Timestamp)))
			s.Lines = append(s.Lines, entries...)
		}
		if m.Notes != "" {
			s.Lines = append(s.Lines, "  Notes: "+m.Notes)
		}
	}
	return s
}

func listSection(heading string, items []string, fallback string) Section {
	if len(items) == 0 {
		return Section{Heading: heading, Lines: []string{fallback}}
	}
	return Section{Heading: heading, Lines: append([]string(nil), items...)}
}

func textSection(heading, text, fallback string) Section {
	return Section{Heading: heading, Lines: []string{orDefault(text, fallback)}}
}

// Text renders the document as markdown-flavoured plain text.
func (d Document) Text() string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(d.Title)
	b.WriteString("\n")
	for _, s := range d.Sections {
		b.WriteString("\n## ")
		b.WriteString(s.Heading)
		b.WriteString("\n")
		for _, line := range s.Lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// HTML renders the document as a standalone HTML page.
func (d Document) HTML() string {
	buf := &strings.Builder{}
	buf.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>")
	buf.WriteString(html.EscapeString(d.Title))
	buf.WriteString("</title></head><body><h1>")
	buf.WriteString(html.EscapeString(d.Title))
	buf.WriteString("</h1>")
	for _, s := range d.Sections {
		buf.WriteString("<section><h2>")
		buf.WriteString(html.EscapeString(s.Heading))
		buf.WriteString("</h2><pre>")
		buf.WriteString(html.EscapeString(strings.Join(s.Lines, "\n")))
		buf.WriteString("</pre></section>")
	}
	buf.WriteString("</body></html>")
	return buf.String()
}
