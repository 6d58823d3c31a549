package core

import (
	"strings"
	"time"

	"immobilog/internal/stopwatch"
	"immobilog/pkg/domain"
)

const (
	inductionNotes = "Induction phase started"
	reasonNoActive = "no active event"
	reasonPaused   = "timer already paused"
	reasonRunning  = "timer already running"
)

// Lifecycle applies commands to a Session. Every method is a pure
// transformation: the input session is never modified, and on error or
// ignore the returned session equals the input.
type Lifecycle struct {
	clock Clock
	ids   IDGenerator
}

// NewLifecycle constructs a Lifecycle. Nil arguments fall back to the wall
// clock and UUID identifiers.
func NewLifecycle(clock Clock, ids IDGenerator) *Lifecycle {
	if clock == nil {
		clock = ClockFunc(time.Now)
	}
	if ids == nil {
		ids = UUIDGenerator()
	}
	return &Lifecycle{clock: clock, ids: ids}
}

func (l *Lifecycle) now() time.Time { return l.clock.Now().UTC() }

// StartEvent opens a new event for animalID with a single open induction
// phase and starts the timer. A blank animal id or an already active event
// is a validation error.
func (l *Lifecycle) StartEvent(s Session, animalID string) (Session, Result, error) {
	animalID = strings.TrimSpace(animalID)
	if animalID == "" {
		return s, Result{}, domain.ValidationError{Field: "animalId", Message: "select an animal before starting an event"}
	}
	if s.Active != nil {
		return s, Result{}, domain.ValidationError{Field: "activeEvent", Message: "event " + s.Active.ID + " is still active"}
	}
	now := l.now()
	ev := domain.ImmobilizationEvent{
		ID:                l.ids.NewID(prefixEvent),
		AnimalID:          animalID,
		StartTime:         now,
		Phases:            []domain.Phase{{Phase: domain.PhaseInduction, StartTime: now, Notes: inductionNotes}},
		Vitals:            []domain.Vital{},
		DrugsAdministered: []domain.AdministeredDrug{},
	}
	return Session{AnimalID: animalID, Active: &ev, Timer: stopwatch.Started(now)}, applied(), nil
}

// RecordPhase closes the open phase and appends a new open phase of kind.
// The closed phase keeps its own notes when it has any, otherwise it takes
// notes. Recording the terminal kind ends the event in the same call.
func (l *Lifecycle) RecordPhase(s Session, kind domain.PhaseKind, notes string) (Session, Result, error) {
	if !kind.Valid() {
		return s, Result{}, domain.ValidationError{Field: "phase", Message: "unknown phase " + string(kind)}
	}
	if s.Active == nil {
		return s, ignored(reasonNoActive), nil
	}
	now := l.now()
	out := s.clone()
	ev := out.Active
	if i := ev.OpenPhaseIndex(); i >= 0 {
		closePhase(&ev.Phases[i], now, notes)
	}
	ev.Phases = append(ev.Phases, domain.Phase{Phase: kind, StartTime: now, Notes: notes})
	if kind.Terminal() {
		return l.end(out, now)
	}
	return out, applied(), nil
}

func closePhase(p *domain.Phase, at time.Time, notes string) {
	end := at
	p.EndTime = &end
	if p.Notes == "" {
		p.Notes = notes
	}
}

// RecordVital appends a vital snapshot stamped with the current time.
func (l *Lifecycle) RecordVital(s Session, in VitalInput) (Session, Result, error) {
	if s.Active == nil {
		return s, ignored(reasonNoActive), nil
	}
	out := s.clone()
	out.Active.Vitals = append(out.Active.Vitals, domain.Vital{
		Time:                l.now(),
		HeartRate:           copyFloat(in.HeartRate),
		RespirationRate:     copyFloat(in.RespirationRate),
		Temperature:         copyFloat(in.Temperature),
		CapillaryRefillTime: copyFloat(in.CapillaryRefillTime),
		OxygenSaturation:    copyFloat(in.OxygenSaturation),
		Notes:               in.Notes,
	})
	return out, applied(), nil
}

// RecordDrug appends an administered-drug entry stamped with the current
// time. Dose and volume are recorded as given.
func (l *Lifecycle) RecordDrug(s Session, in DrugInput) (Session, Result, error) {
	if strings.TrimSpace(in.DrugName) == "" {
		return s, Result{}, domain.ValidationError{Field: "drugName", Message: "drug name is required"}
	}
	if s.Active == nil {
		return s, ignored(reasonNoActive), nil
	}
	out := s.clone()
	var sample *domain.DrugSample
	if in.Sample != nil {
		cp := *in.Sample
		sample = &cp
	}
	out.Active.DrugsAdministered = append(out.Active.DrugsAdministered, domain.AdministeredDrug{
		DrugName:      strings.TrimSpace(in.DrugName),
		Concentration: in.Concentration,
		Volume:        in.Volume,
		Dose:          in.Dose,
		Unit:          in.Unit,
		Route:         in.Route,
		Time:          l.now(),
		Notes:         in.Notes,
		Sample:        sample,
	})
	return out, applied(), nil
}

// AddComplication appends a complication to the active event.
func (l *Lifecycle) AddComplication(s Session, text string) (Session, Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return s, Result{}, domain.ValidationError{Field: "complication", Message: "complication text is required"}
	}
	if s.Active == nil {
		return s, ignored(reasonNoActive), nil
	}
	out := s.clone()
	out.Active.Complications = append(out.Active.Complications, text)
	return out, applied(), nil
}

// SetNotes replaces the free-text notes of the active event.
func (l *Lifecycle) SetNotes(s Session, notes string) (Session, Result, error) {
	if s.Active == nil {
		return s, ignored(reasonNoActive), nil
	}
	out := s.clone()
	out.Active.Notes = notes
	return out, applied(), nil
}

// Pause stops the display timer. Event data is untouched.
func (l *Lifecycle) Pause(s Session) (Session, Result, error) {
	if s.Active == nil {
		return s, ignored(reasonNoActive), nil
	}
	if !s.Timer.Running() {
		return s, ignored(reasonPaused), nil
	}
	out := s.clone()
	out.Timer = out.Timer.Paused(l.now())
	return out, applied(), nil
}

// Resume restarts the display timer.
func (l *Lifecycle) Resume(s Session) (Session, Result, error) {
	if s.Active == nil {
		return s, ignored(reasonNoActive), nil
	}
	if s.Timer.Running() {
		return s, ignored(reasonRunning), nil
	}
	out := s.clone()
	out.Timer = out.Timer.Resumed(l.now())
	return out, applied(), nil
}

// EndEvent closes any open phase, stamps the end time and clears the active
// slot. The completed event is returned in Result.Completed.
func (l *Lifecycle) EndEvent(s Session) (Session, Result, error) {
	if s.Active == nil {
		return s, ignored(reasonNoActive), nil
	}
	return l.end(s.clone(), l.now())
}

func (l *Lifecycle) end(s Session, now time.Time) (Session, Result, error) {
	ev := s.Active
	for i := range ev.Phases {
		if ev.Phases[i].EndTime == nil {
			end := now
			ev.Phases[i].EndTime = &end
		}
	}
	end := now
	ev.EndTime = &end
	res := applied()
	res.Completed = ev
	return Session{AnimalID: s.AnimalID}, res, nil
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
