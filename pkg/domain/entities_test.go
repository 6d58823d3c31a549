package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func at(min int) time.Time { return t0.Add(time.Duration(min) * time.Minute) }

func ptrTime(t time.Time) *time.Time { return &t }

func TestEventStatusDerivedFromEndTime(t *testing.T) {
	ev := ImmobilizationEvent{ID: "event-1", StartTime: t0}
	if ev.Status() != EventActive {
		t.Fatalf("expected active, got %s", ev.Status())
	}
	if _, ok := ev.Duration(); ok {
		t.Fatalf("expected no duration while active")
	}
	ev.EndTime = ptrTime(at(42))
	if ev.Status() != EventCompleted {
		t.Fatalf("expected completed, got %s", ev.Status())
	}
	if d, ok := ev.Duration(); !ok || d != 42*time.Minute {
		t.Fatalf("expected 42m duration, got %v %v", d, ok)
	}
}

func TestPhaseAtUsesHalfOpenIntervals(t *testing.T) {
	ev := ImmobilizationEvent{Phases: []Phase{
		{Phase: PhaseInduction, StartTime: at(0), EndTime: ptrTime(at(10))},
		{Phase: PhaseImmobilization, StartTime: at(10), EndTime: ptrTime(at(30))},
		{Phase: PhaseRecovery, StartTime: at(30)},
	}}
	cases := []struct {
		at   time.Time
		want PhaseKind
		ok   bool
	}{
		{at(-1), "", false},
		{at(0), PhaseInduction, true},
		{at(9), PhaseInduction, true},
		{at(10), PhaseImmobilization, true},
		{at(30), PhaseRecovery, true},
		{at(600), PhaseRecovery, true},
	}
	for _, tc := range cases {
		p, ok := ev.PhaseAt(tc.at)
		if ok != tc.ok || p.Phase != tc.want {
			t.Errorf("PhaseAt(%s) = %q %v, want %q %v", tc.at.Format(time.Kitchen), p.Phase, ok, tc.want, tc.ok)
		}
	}

	closed := ImmobilizationEvent{Phases: []Phase{{Phase: PhaseInduction, StartTime: at(0), EndTime: ptrTime(at(5))}}}
	if _, ok := closed.PhaseAt(at(5)); ok {
		t.Fatalf("expected end instant to fall outside a closed phase")
	}
}

func TestOpenPhaseIndex(t *testing.T) {
	ev := ImmobilizationEvent{}
	if ev.OpenPhaseIndex() != -1 {
		t.Fatalf("expected -1 for no phases")
	}
	ev.Phases = []Phase{{Phase: PhaseInduction, StartTime: at(0), EndTime: ptrTime(at(1))}, {Phase: PhaseRecovery, StartTime: at(1)}}
	if ev.OpenPhaseIndex() != 1 {
		t.Fatalf("expected open phase at index 1, got %d", ev.OpenPhaseIndex())
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	hr := 80.0
	ev := ImmobilizationEvent{
		ID:            "event-1",
		Phases:        []Phase{{Phase: PhaseInduction, StartTime: at(0)}},
		Vitals:        []Vital{{Time: at(1), HeartRate: &hr}},
		Complications: []string{"apnea"},
	}
	cp := ev.Clone()
	cp.Phases[0].EndTime = ptrTime(at(2))
	cp.Complications[0] = "changed"
	cp.Vitals = append(cp.Vitals, Vital{Time: at(3)})
	if ev.Phases[0].EndTime != nil {
		t.Fatalf("clone mutated original phase")
	}
	if ev.Complications[0] != "apnea" || len(ev.Vitals) != 1 {
		t.Fatalf("clone mutated original slices: %+v", ev)
	}
}

func TestPhaseKindLabelsAndValidity(t *testing.T) {
	for _, k := range PhaseKinds() {
		if !k.Valid() {
			t.Errorf("expected %s to be valid", k)
		}
	}
	if PhaseKind("sleeping").Valid() {
		t.Fatalf("expected unknown kind to be invalid")
	}
	if PhaseRecoveryComplete.Label() != "recovery complete" {
		t.Fatalf("unexpected label %q", PhaseRecoveryComplete.Label())
	}
	if !PhaseRecoveryComplete.Terminal() || PhaseRecovery.Terminal() {
		t.Fatalf("only recovery_complete is terminal")
	}
}

func TestMeasurementKeysOrderKnownThenCustom(t *testing.T) {
	m := MeasurementFields{
		"zeta":          1,
		FieldWeight:     120,
		FieldTailLength: 80,
		"alpha":         2,
	}
	want := []string{FieldTailLength, FieldWeight, "alpha", "zeta"}
	if got := m.Keys(); !reflect.DeepEqual(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
}

func TestMeasurementUnit(t *testing.T) {
	cases := map[string]string{
		FieldWeight:                   "kg",
		FieldChestGirth:               "cm",
		FieldIntercanineDistanceLower: "mm",
		"earLength":                   "",
	}
	for field, want := range cases {
		if got := MeasurementUnit(field); got != want {
			t.Errorf("MeasurementUnit(%s) = %q, want %q", field, got, want)
		}
	}
}

func TestEventJSONUsesCamelCase(t *testing.T) {
	ev := ImmobilizationEvent{ID: "event-1", AnimalID: "animal-1", StartTime: t0, Phases: []Phase{}, Vitals: []Vital{}}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"animalId", "startTime", "phases", "vitals"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("expected key %s in %s", key, data)
		}
	}
	if _, ok := raw["endTime"]; ok {
		t.Fatalf("expected endTime omitted while active")
	}
}

func TestErrorTypes(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NotFoundError{Entity: EntityProtocol, ID: "Felis catus"})
	if !errors.Is(err, ErrProtocolNotFound) {
		t.Fatalf("expected protocol miss to match sentinel")
	}
	if !IsNotFound(err) {
		t.Fatalf("expected IsNotFound")
	}
	other := NotFoundError{Entity: EntityAnimal, ID: "x"}
	if errors.Is(other, ErrProtocolNotFound) {
		t.Fatalf("animal miss must not match protocol sentinel")
	}
	v := ValidationError{Field: "animalId", Message: "required"}
	if v.Error() != "animalId: required" {
		t.Fatalf("unexpected message %q", v.Error())
	}
	if !IsValidation(fmt.Errorf("wrap: %w", v)) {
		t.Fatalf("expected IsValidation")
	}
}

func TestAnimalDisplayName(t *testing.T) {
	cases := []struct {
		a    Animal
		want string
	}{
		{Animal{Name: "Raja", Identifier: "T-12", Species: "Panthera tigris"}, "Raja"},
		{Animal{Identifier: "T-12", Species: "Panthera tigris"}, "T-12"},
		{Animal{Species: "Panthera tigris"}, "Panthera tigris"},
		{Animal{}, "unknown"},
	}
	for _, tc := range cases {
		if got := tc.a.DisplayName(); got != tc.want {
			t.Errorf("DisplayName() = %q, want %q", got, tc.want)
		}
	}
}

func TestCloneKeepsEmptyListsEmpty(t *testing.T) {
	ev := ImmobilizationEvent{ID: "event-1", Phases: []Phase{}, Vitals: []Vital{}, DrugsAdministered: []AdministeredDrug{}}
	cp := ev.Clone()
	if cp.Vitals == nil || cp.DrugsAdministered == nil || cp.Phases == nil {
		t.Fatalf("clone dropped empty lists: %+v", cp)
	}
	if cp.Complications != nil {
		t.Fatalf("clone invented complications: %+v", cp.Complications)
	}
	data, err := json.Marshal(cp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"vitals", "drugsAdministered"} {
		if string(raw[key]) != "[]" {
			t.Fatalf("expected %s to be [], got %s", key, raw[key])
		}
	}
}
