package export_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"immobilog/internal/dosing"
	"immobilog/internal/export"
	"immobilog/pkg/domain"
)

var t0 = time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)

func at(min int) time.Time { return t0.Add(time.Duration(min) * time.Minute) }

func ptr[T any](v T) *T { return &v }

func utcOpts() export.Options {
	return export.Options{Location: time.UTC, Now: func() time.Time { return at(120) }}
}

func lion() domain.Animal {
	return domain.Animal{
		ID:              "animal-1",
		Species:         "Panthera leo",
		Name:            "Kibo",
		Identifier:      "KNP-041",
		Sex:             domain.SexMale,
		EstimatedWeight: ptr(150.0),
	}
}

func completedEvent() domain.ImmobilizationEvent {
	return domain.ImmobilizationEvent{
		ID:        "event-1",
		AnimalID:  "animal-1",
		StartTime: at(0),
		EndTime:   ptr(at(45)),
		Phases: []domain.Phase{
			{Phase: domain.PhaseInduction, StartTime: at(0), EndTime: ptr(at(10))},
			{Phase: domain.PhaseImmobilization, StartTime: at(10), EndTime: ptr(at(40)), Notes: "down"},
			{Phase: domain.PhaseRecoveryComplete, StartTime: at(40), EndTime: ptr(at(45))},
		},
		Vitals: []domain.Vital{
			{Time: at(5), HeartRate: ptr(80.0)},
			{Time: at(50), RespirationRate: ptr(12.0), Notes: "standing"},
		},
		DrugsAdministered: []domain.AdministeredDrug{
			{DrugName: "Tiletamine-Zolazepam", Concentration: 100, Volume: 6, Dose: 600, Unit: "mg", Route: "IM", Time: at(0)},
		},
		Complications: []string{"hyperthermia"},
		Notes:         `He said, "hi"`,
	}
}

func TestTableCSVQuotesCommasAndQuotes(t *testing.T) {
	table := export.Table{
		Columns: []string{"id", "notes"},
		Rows:    [][]string{{"a1", `He said, "hi"`}},
	}
	out, err := table.CSV()
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	want := "id,notes\r\na1,\"He said, \"\"hi\"\"\"\r\n"
	if string(out) != want {
		t.Fatalf("unexpected csv:\n%q\nwant\n%q", out, want)
	}
	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if records[1][1] != `He said, "hi"` {
		t.Fatalf("round trip lost value: %q", records[1][1])
	}
}

func TestTableCSVPadsShortRows(t *testing.T) {
	table := export.Table{Columns: []string{"a", "b", "c"}, Rows: [][]string{{"1"}}}
	out, err := table.CSV()
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if !strings.HasSuffix(string(out), "1,,\r\n") {
		t.Fatalf("expected padded row, got %q", out)
	}
}

func TestProjectRecordsKeepsNestedValuesCompact(t *testing.T) {
	ev := completedEvent()
	table, err := export.ProjectRecords([]domain.ImmobilizationEvent{ev}, []string{"id", "endTime", "vitals", "missing"})
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	row := table.Rows[0]
	if row[0] != "event-1" {
		t.Fatalf("expected unquoted id, got %q", row[0])
	}
	if row[1] != "2024-06-03T08:45:00Z" {
		t.Fatalf("unexpected endTime cell %q", row[1])
	}
	if !strings.HasPrefix(row[2], `[{"time":"2024-06-03T08:05:00Z","heartRate":80}`) {
		t.Fatalf("vitals should keep field order, got %q", row[2])
	}
	if row[3] != "" {
		t.Fatalf("missing column should be empty, got %q", row[3])
	}
}

func TestBulkExports(t *testing.T) {
	if _, err := export.BulkCSV(mustSpec(t, domain.CollectionAnimals), []domain.Animal{}); !errors.Is(err, export.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if _, err := export.BulkSpecFor(domain.CollectionActiveEvent); err == nil {
		t.Fatalf("active event slot must not be exportable")
	}
	spec := mustSpec(t, domain.CollectionEvents)
	if spec.Filename != "immobilization_events.csv" {
		t.Fatalf("unexpected filename %s", spec.Filename)
	}
	out, err := export.BulkCSV(spec, []domain.ImmobilizationEvent{completedEvent()})
	if err != nil {
		t.Fatalf("bulk csv: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if diff := cmp.Diff(spec.Columns, records[0]); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	if got := records[1][7]; got != `He said, "hi"` {
		t.Fatalf("notes cell = %q", got)
	}

	bare := domain.ImmobilizationEvent{ID: "event-2", AnimalID: "animal-1", StartTime: at(0),
		Phases: []domain.Phase{}, Vitals: []domain.Vital{}, DrugsAdministered: []domain.AdministeredDrug{}}
	table, err := export.BulkTable(spec, []domain.ImmobilizationEvent{bare.Clone()})
	if err != nil {
		t.Fatalf("bulk table: %v", err)
	}
	if drugs, vitals := table.Rows[0][4], table.Rows[0][5]; drugs != "[]" || vitals != "[]" {
		t.Fatalf("expected empty list cells, got drugs=%q vitals=%q", drugs, vitals)
	}

	specs := export.BulkSpecs()
	specs[0].Columns[0] = "mutated"
	if export.BulkSpecs()[0].Columns[0] != "id" {
		t.Fatalf("BulkSpecs must return copies")
	}
}

func mustSpec(t *testing.T, c domain.Collection) export.BulkSpec {
	t.Helper()
	spec, err := export.BulkSpecFor(c)
	if err != nil {
		t.Fatalf("spec for %s: %v", c, err)
	}
	return spec
}

func TestTimelineResolvesVitalPhases(t *testing.T) {
	animal := lion()
	rows := export.Timeline(completedEvent(), &animal, utcOpts())

	var vitals []export.TimelineRow
	for _, r := range rows {
		if r.Type == export.RowVital {
			vitals = append(vitals, r)
		}
	}
	want := []export.TimelineRow{
		{Type: export.RowVital, Field: "Heart Rate", Value: "80", Unit: "bpm", Timestamp: "08:05:00", Phase: "induction"},
		{Type: export.RowVital, Field: "Respiration Rate", Value: "12", Unit: "rpm", Timestamp: "08:50:00", Phase: export.UnknownPhase},
	}
	if diff := cmp.Diff(want, vitals); diff != "" {
		t.Fatalf("vital rows mismatch (-want +got):\n%s", diff)
	}
}

func TestTimelineBoundaryBelongsToNextPhase(t *testing.T) {
	ev := completedEvent()
	ev.Vitals = []domain.Vital{{Time: at(10), HeartRate: ptr(70.0)}}
	rows := export.Timeline(ev, nil, utcOpts())
	for _, r := range rows {
		if r.Type == export.RowVital && r.Phase != string(domain.PhaseImmobilization) {
			t.Fatalf("vital at boundary resolved to %q", r.Phase)
		}
	}
}

func TestTimelineRows(t *testing.T) {
	rows := export.Timeline(completedEvent(), nil, utcOpts())
	if rows[0].Value != "Unknown" || rows[1].Value != "Unknown" {
		t.Fatalf("missing animal should render Unknown, got %+v %+v", rows[0], rows[1])
	}
	if rows[3].Value != "2024-06-03 08:45:00" {
		t.Fatalf("unexpected end time row %+v", rows[3])
	}
	phase := rows[5]
	if phase.Field != "IMMOBILIZATION" || phase.Value != "down" || phase.Timestamp != "08:10:00 - 08:40:00" {
		t.Fatalf("unexpected phase row %+v", phase)
	}
	last := rows[len(rows)-1]
	if last.Type != export.RowEvent || last.Field != "Notes" {
		t.Fatalf("event notes should be last, got %+v", last)
	}
	var note bool
	for _, r := range rows {
		if r.Type == export.RowNote && r.Value == "standing" && r.Phase == export.UnknownPhase {
			note = true
		}
	}
	if !note {
		t.Fatalf("vital note row missing")
	}

	active := completedEvent()
	active.EndTime = nil
	if got := export.Timeline(active, nil, utcOpts())[3].Value; got != "In Progress" {
		t.Fatalf("active event end = %q", got)
	}
}

func TestTimelineCSVHeader(t *testing.T) {
	out, err := export.TimelineCSV(completedEvent(), nil, utcOpts())
	if err != nil {
		t.Fatalf("timeline csv: %v", err)
	}
	if !strings.HasPrefix(string(out), "Type,Field,Value,Unit,Timestamp,Phase\r\n") {
		t.Fatalf("unexpected header: %q", out)
	}
}

func reportInput() export.ReportInput {
	return export.ReportInput{
		AnimalID: "animal-1",
		EventID:  "event-1",
		Animals:  []domain.Animal{lion()},
		Events:   []domain.ImmobilizationEvent{completedEvent()},
		Measurements: []domain.Measurement{
			{ID: "m-1", AnimalID: "animal-1", EventID: "event-1", Timestamp: at(30), Measurements: domain.MeasurementFields{
				domain.FieldWeight:      0,
				domain.FieldTotalLength: 250,
			}, Notes: "tape"},
			{ID: "m-2", AnimalID: "animal-1", EventID: "event-1", Timestamp: at(31), Measurements: domain.MeasurementFields{}},
			{ID: "m-3", AnimalID: "animal-1", EventID: "other", Timestamp: at(31)},
		},
		Doses: dosing.Default(),
	}
}

func TestBuildReportSections(t *testing.T) {
	doc, err := export.BuildReport(reportInput(), utcOpts())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var headings []string
	for _, s := range doc.Sections {
		headings = append(headings, s.Heading)
	}
	want := []string{
		"Animal Information",
		"Immobilization Event",
		"Event Phases",
		"Drugs Administered",
		"Recommended Drug Dosages",
		"Vital Signs Monitoring",
		"Morphometric Measurements",
		"Complications",
		"Notes",
		"Report Generated",
	}
	if diff := cmp.Diff(want, headings); diff != "" {
		t.Fatalf("section order (-want +got):\n%s", diff)
	}

	m, _ := doc.Section("Morphometric Measurements")
	text := strings.Join(m.Lines, "\n")
	if strings.Contains(text, "Weight") {
		t.Fatalf("zero weight must be suppressed:\n%s", text)
	}
	if !strings.Contains(text, "  • Total Length: 250 cm") {
		t.Fatalf("expected total length line:\n%s", text)
	}
	if !strings.Contains(text, "Measurement Set 2: No measurement data") {
		t.Fatalf("empty set should be reported:\n%s", text)
	}
	if strings.Contains(text, "Measurement Set 3") {
		t.Fatalf("measurements of other events leaked:\n%s", text)
	}

	d, _ := doc.Section("Recommended Drug Dosages")
	if !strings.Contains(strings.Join(d.Lines, "\n"), "600.00 mg / 6.00 ml") {
		t.Fatalf("expected lion dose line, got %v", d.Lines)
	}
	p, _ := doc.Section("Event Phases")
	if p.Lines[0] != "induction: 2024-06-03 08:00:00 - 2024-06-03 08:10:00 (10 min)" {
		t.Fatalf("unexpected phase line %q", p.Lines[0])
	}
	g, _ := doc.Section("Report Generated")
	if g.Lines[0] != "2024-06-03 10:00:00" {
		t.Fatalf("unexpected generated stamp %q", g.Lines[0])
	}
}

func TestBuildReportFallbacks(t *testing.T) {
	in := reportInput()
	in.Animals[0].EstimatedWeight = nil
	in.Events[0].DrugsAdministered = []domain.AdministeredDrug{{Time: at(1)}}
	in.Events[0].Complications = nil
	in.Events[0].Notes = ""
	in.Events[0].Vitals = nil
	doc, err := export.BuildReport(in, utcOpts())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	cases := map[string][]string{
		"Recommended Drug Dosages": {"No dosage data available"},
		"Vital Signs Monitoring":   {"No vitals recorded"},
		"Complications":            {"None reported"},
		"Notes":                    {"No additional notes"},
	}
	for heading, want := range cases {
		s, ok := doc.Section(heading)
		if !ok {
			t.Fatalf("missing section %s", heading)
		}
		if diff := cmp.Diff(want, s.Lines); diff != "" {
			t.Fatalf("%s (-want +got):\n%s", heading, diff)
		}
	}
	drugs, _ := doc.Section("Drugs Administered")
	want := []string{
		"1. Unknown Drug",
		"   - Volume: ? ml",
		"   - Concentration: ? mg/ml",
		"   - Route: Not specified",
		"   - Time: 2024-06-03 08:01:00",
		"   - Dose: ? units",
	}
	if diff := cmp.Diff(want, drugs.Lines); diff != "" {
		t.Fatalf("drug fallbacks (-want +got):\n%s", diff)
	}
}

func TestGenerateReportLookupMisses(t *testing.T) {
	in := reportInput()
	in.AnimalID = "nope"
	if got := export.GenerateReport(in, utcOpts()); got != export.AnimalNotFoundText {
		t.Fatalf("unexpected %q", got)
	}
	in = reportInput()
	in.EventID = "nope"
	if got := export.GenerateReport(in, utcOpts()); got != export.EventNotFoundText {
		t.Fatalf("unexpected %q", got)
	}
	_, err := export.BuildReport(in, utcOpts())
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
	text := export.GenerateReport(reportInput(), utcOpts())
	if !strings.HasPrefix(text, "# "+export.ReportTitle+"\n\n## Animal Information\nSpecies: Panthera leo\n") {
		t.Fatalf("unexpected report head:\n%s", text)
	}
}

func TestDocumentHTMLEscapes(t *testing.T) {
	doc := export.Document{Title: "R&D", Sections: []export.Section{{Heading: "<Notes>", Lines: []string{`a < b & "c"`}}}}
	out := doc.HTML()
	for _, want := range []string{"<title>R&amp;D</title>", "<h2>&lt;Notes&gt;</h2>", "a &lt; b &amp; &#34;c&#34;"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %s", want, out)
		}
	}
}

func TestFilenames(t *testing.T) {
	a := lion()
	a.Name = "Kibo / The Great!"
	ev := completedEvent()
	if got := export.ReportFilename(a, ev); got != "immobilization_report_kibo_the_great_2024-06-03.md" {
		t.Fatalf("report filename %q", got)
	}
	if got := export.ReportFilename(domain.Animal{Species: "???"}, ev); got != "immobilization_report_unknown_2024-06-03.md" {
		t.Fatalf("fallback report filename %q", got)
	}
	if got := export.EventFilename(ev, &a, ".json"); got != "immobilization-event-event-1-Kibo _ The Great!.json" {
		t.Fatalf("event filename %q", got)
	}
	if got := export.EventFilename(ev, nil, "csv"); got != "immobilization-event-event-1-unknown.csv" {
		t.Fatalf("event filename %q", got)
	}
}

func TestFieldLabel(t *testing.T) {
	cases := map[string]string{
		"upperCanineLength": "Upper Canine Length",
		"weight":            "Weight",
	}
	for in, want := range cases {
		if got := export.FieldLabel(in); got != want {
			t.Fatalf("FieldLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEventJSON(t *testing.T) {
	a := lion()
	out, err := export.EventJSON(completedEvent(), &a)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	checks := map[string]any{
		"animalName": "Kibo",
		"species":    "Panthera leo",
		"duration":   "45 minutes",
		"status":     "completed",
		"startTime":  "2024-06-03T08:00:00.000Z",
	}
	for k, want := range checks {
		if got[k] != want {
			t.Fatalf("%s = %v, want %v", k, got[k], want)
		}
	}
	if !bytes.Contains(out, []byte("\n  \"id\": \"event-1\"")) {
		t.Fatalf("expected two-space indentation:\n%s", out)
	}

	active := completedEvent()
	active.EndTime = nil
	out, err = export.EventJSON(active, nil)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	got = nil
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["duration"] != "Ongoing" || got["animalName"] != "Unknown" || got["species"] != "Unknown" {
		t.Fatalf("unexpected fallbacks: %v", got)
	}
	if _, ok := got["endTime"]; ok {
		t.Fatalf("active event should omit endTime")
	}
}

func TestWriteXLSX(t *testing.T) {
	if err := export.WriteXLSX(&bytes.Buffer{}); !errors.Is(err, export.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	timeline := export.TimelineTable(export.Timeline(completedEvent(), nil, utcOpts()))
	animals, err := export.BulkTable(mustSpec(t, domain.CollectionAnimals), []domain.Animal{lion()})
	if err != nil {
		t.Fatalf("animals table: %v", err)
	}
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, export.Sheet{Name: "Timeline", Table: timeline}, export.Sheet{Name: "Animals", Table: animals}); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer func() { _ = f.Close() }()
	if diff := cmp.Diff([]string{"Timeline", "Animals"}, f.GetSheetList()); diff != "" {
		t.Fatalf("sheets (-want +got):\n%s", diff)
	}
	header, err := f.GetCellValue("Timeline", "A1")
	if err != nil || header != "Type" {
		t.Fatalf("timeline header = %q, %v", header, err)
	}
	species, err := f.GetCellValue("Animals", "B2")
	if err != nil || species != "Panthera leo" {
		t.Fatalf("animals B2 = %q, %v", species, err)
	}
}
