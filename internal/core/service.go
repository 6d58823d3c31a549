package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"immobilog/internal/dosing"
	"immobilog/internal/recordstore"
	"immobilog/pkg/domain"
)

// Service persists the active session and the record collections, applying
// lifecycle commands through Lifecycle. Each command runs as a single
// load -> apply -> persist cycle under a mutex.
type Service struct {
	mu        sync.Mutex
	records   *recordstore.Store
	lifecycle *Lifecycle
	protocols *dosing.Table
	clock     Clock
	ids       IDGenerator
	logger    *zap.Logger
	metrics   MetricsRecorder
	tracer    Tracer
}

type serviceOptions struct {
	clock     Clock
	ids       IDGenerator
	logger    *zap.Logger
	metrics   MetricsRecorder
	tracer    Tracer
	protocols *dosing.Table
}

// ServiceOption customises a Service.
type ServiceOption func(*serviceOptions)

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:   ClockFunc(time.Now),
		ids:     UUIDGenerator(),
		logger:  zap.NewNop(),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(ids IDGenerator) ServiceOption {
	return func(o *serviceOptions) {
		if ids != nil {
			o.ids = ids
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder installs an operation metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer installs an operation tracer.
func WithTracer(t Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithProtocols replaces the built-in species protocol table.
func WithProtocols(t *dosing.Table) ServiceOption {
	return func(o *serviceOptions) {
		if t != nil {
			o.protocols = t
		}
	}
}

// NewService constructs a service over kv.
func NewService(kv domain.KeyValueStore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.protocols == nil {
		o.protocols = dosing.Default()
	}
	return &Service{
		records:   recordstore.New(kv, recordstore.WithLogger(o.logger.Named("recordstore"))),
		lifecycle: NewLifecycle(o.clock, o.ids),
		protocols: o.protocols,
		clock:     o.clock,
		ids:       o.ids,
		logger:    o.logger,
		metrics:   o.metrics,
		tracer:    o.tracer,
	}
}

// Records exposes the typed record store.
func (s *Service) Records() *recordstore.Store { return s.records }

// Protocols returns the species protocol table in use.
func (s *Service) Protocols() *dosing.Table { return s.protocols }

// Close releases the underlying store.
func (s *Service) Close() error { return s.records.Close() }

func (s *Service) now() time.Time { return s.clock.Now().UTC() }

func (s *Service) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))
	return err
}

// Session returns the persisted session, or an empty one.
func (s *Service) Session(ctx context.Context) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadSession(ctx)
}

func (s *Service) loadSession(ctx context.Context) Session {
	sess, _ := recordstore.LoadValue(ctx, s.records, domain.CollectionActiveEvent, Session{})
	return sess
}

type command func(Session) (Session, Result, error)

func (s *Service) apply(ctx context.Context, op string, cmd command) (Session, Result, error) {
	var (
		out Session
		res Result
	)
	err := s.observe(ctx, op, func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		cur := s.loadSession(ctx)
		out = cur
		next, r, err := cmd(cur)
		if err != nil {
			return err
		}
		res = r
		if r.Ignored() {
			return nil
		}
		if r.Completed != nil {
			events := recordstore.Load[domain.ImmobilizationEvent](ctx, s.records, domain.CollectionEvents)
			events = upsertEvent(events, *r.Completed)
			if err := recordstore.Save(ctx, s.records, domain.CollectionEvents, events); err != nil {
				return err
			}
		}
		if err := recordstore.SaveValue(ctx, s.records, domain.CollectionActiveEvent, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		s.logger.Warn("lifecycle command failed", zap.String("operation", op), zap.Error(err))
		return out, res, err
	}
	s.logger.Info("lifecycle command",
		zap.String("operation", op),
		zap.String("event_id", eventID(out, res)),
		zap.String("outcome", string(res.Outcome)),
		zap.String("reason", res.Reason))
	return out, res, nil
}

// upsertEvent replaces the entry with ev's id, or appends ev. A retried end
// after a failed slot write must not record the event twice.
func upsertEvent(events []domain.ImmobilizationEvent, ev domain.ImmobilizationEvent) []domain.ImmobilizationEvent {
	for i := range events {
		if events[i].ID == ev.ID {
			events[i] = ev
			return events
		}
	}
	return append(events, ev)
}

func eventID(sess Session, res Result) string {
	switch {
	case res.Completed != nil:
		return res.Completed.ID
	case sess.Active != nil:
		return sess.Active.ID
	}
	return ""
}

// StartEvent opens a new event for animalID.
func (s *Service) StartEvent(ctx context.Context, animalID string) (Session, Result, error) {
	return s.apply(ctx, "start_event", func(cur Session) (Session, Result, error) {
		return s.lifecycle.StartEvent(cur, animalID)
	})
}

// RecordPhase transitions the active event to a new phase.
func (s *Service) RecordPhase(ctx context.Context, kind domain.PhaseKind, notes string) (Session, Result, error) {
	return s.apply(ctx, "record_phase", func(cur Session) (Session, Result, error) {
		return s.lifecycle.RecordPhase(cur, kind, notes)
	})
}

// RecordVital appends a vital snapshot to the active event.
func (s *Service) RecordVital(ctx context.Context, in VitalInput) (Session, Result, error) {
	return s.apply(ctx, "record_vital", func(cur Session) (Session, Result, error) {
		return s.lifecycle.RecordVital(cur, in)
	})
}

// RecordDrug appends an administered drug to the active event.
func (s *Service) RecordDrug(ctx context.Context, in DrugInput) (Session, Result, error) {
	return s.apply(ctx, "record_drug", func(cur Session) (Session, Result, error) {
		return s.lifecycle.RecordDrug(cur, in)
	})
}

// AddComplication appends a complication to the active event.
func (s *Service) AddComplication(ctx context.Context, text string) (Session, Result, error) {
	return s.apply(ctx, "add_complication", func(cur Session) (Session, Result, error) {
		return s.lifecycle.AddComplication(cur, text)
	})
}

// SetNotes replaces the active event's notes.
func (s *Service) SetNotes(ctx context.Context, notes string) (Session, Result, error) {
	return s.apply(ctx, "set_notes", func(cur Session) (Session, Result, error) {
		return s.lifecycle.SetNotes(cur, notes)
	})
}

// Pause stops the display timer.
func (s *Service) Pause(ctx context.Context) (Session, Result, error) {
	return s.apply(ctx, "pause", s.lifecycle.Pause)
}

// Resume restarts the display timer.
func (s *Service) Resume(ctx context.Context) (Session, Result, error) {
	return s.apply(ctx, "resume", s.lifecycle.Resume)
}

// EndEvent completes the active event and appends it to the event collection.
func (s *Service) EndEvent(ctx context.Context) (Session, Result, error) {
	return s.apply(ctx, "end_event", s.lifecycle.EndEvent)
}

// CreateAnimal registers a new animal.
func (s *Service) CreateAnimal(ctx context.Context, in AnimalInput) (domain.Animal, error) {
	var created domain.Animal
	err := s.observe(ctx, "create_animal", func(ctx context.Context) error {
		if err := in.validate(); err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		now := s.now()
		a := domain.Animal{ID: s.ids.NewID(prefixAnimal), CreatedAt: now, UpdatedAt: now}
		in.apply(&a)
		animals := recordstore.Load[domain.Animal](ctx, s.records, domain.CollectionAnimals)
		animals = append(animals, a)
		if err := recordstore.Save(ctx, s.records, domain.CollectionAnimals, animals); err != nil {
			return err
		}
		created = a
		return nil
	})
	if err == nil {
		s.logger.Info("animal created", zap.String("animal_id", created.ID), zap.String("species", created.Species))
	}
	return created, err
}

// UpdateAnimal mutates an animal's editable fields using the provided mutator
// and refreshes UpdatedAt. The collection is replaced in place.
func (s *Service) UpdateAnimal(ctx context.Context, id string, mutator func(*AnimalInput) error) (domain.Animal, error) {
	var updated domain.Animal
	err := s.observe(ctx, "update_animal", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		animals := recordstore.Load[domain.Animal](ctx, s.records, domain.CollectionAnimals)
		idx := indexAnimal(animals, id)
		if idx < 0 {
			return domain.NotFoundError{Entity: domain.EntityAnimal, ID: id}
		}
		in := InputFromAnimal(animals[idx])
		if mutator != nil {
			if err := mutator(&in); err != nil {
				return err
			}
		}
		if err := in.validate(); err != nil {
			return err
		}
		a := animals[idx]
		in.apply(&a)
		a.UpdatedAt = s.now()
		animals[idx] = a
		if err := recordstore.Save(ctx, s.records, domain.CollectionAnimals, animals); err != nil {
			return err
		}
		updated = a
		return nil
	})
	return updated, err
}

// DeleteAnimal removes an animal. Its events and measurements are kept.
func (s *Service) DeleteAnimal(ctx context.Context, id string) error {
	return s.observe(ctx, "delete_animal", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		animals := recordstore.Load[domain.Animal](ctx, s.records, domain.CollectionAnimals)
		idx := indexAnimal(animals, id)
		if idx < 0 {
			return domain.NotFoundError{Entity: domain.EntityAnimal, ID: id}
		}
		animals = append(animals[:idx], animals[idx+1:]...)
		if err := recordstore.Save(ctx, s.records, domain.CollectionAnimals, animals); err != nil {
			return err
		}
		s.logger.Info("animal deleted", zap.String("animal_id", id))
		return nil
	})
}

func indexAnimal(animals []domain.Animal, id string) int {
	for i := range animals {
		if animals[i].ID == id {
			return i
		}
	}
	return -1
}

// ListAnimals returns every registered animal in insertion order.
func (s *Service) ListAnimals(ctx context.Context) []domain.Animal {
	return recordstore.Load[domain.Animal](ctx, s.records, domain.CollectionAnimals)
}

// GetAnimal returns the animal with id.
func (s *Service) GetAnimal(ctx context.Context, id string) (domain.Animal, error) {
	for _, a := range s.ListAnimals(ctx) {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Animal{}, domain.NotFoundError{Entity: domain.EntityAnimal, ID: id}
}

// ListEvents returns completed events in completion order.
func (s *Service) ListEvents(ctx context.Context) []domain.ImmobilizationEvent {
	return recordstore.Load[domain.ImmobilizationEvent](ctx, s.records, domain.CollectionEvents)
}

// GetEvent finds an event by id among completed events and the active slot.
func (s *Service) GetEvent(ctx context.Context, id string) (domain.ImmobilizationEvent, error) {
	for _, ev := range s.ListEvents(ctx) {
		if ev.ID == id {
			return ev, nil
		}
	}
	if sess := s.Session(ctx); sess.Active != nil && sess.Active.ID == id {
		return sess.Active.Clone(), nil
	}
	return domain.ImmobilizationEvent{}, domain.NotFoundError{Entity: domain.EntityEvent, ID: id}
}

// EventsForAnimal returns completed events referencing animalID.
func (s *Service) EventsForAnimal(ctx context.Context, animalID string) []domain.ImmobilizationEvent {
	out := make([]domain.ImmobilizationEvent, 0)
	for _, ev := range s.ListEvents(ctx) {
		if ev.AnimalID == animalID {
			out = append(out, ev)
		}
	}
	return out
}

// MeasurementInput is a measurement form submission.
type MeasurementInput struct {
	AnimalID string
	EventID  string
	Fields   map[string]float64
	Notes    string
}

// SaveMeasurement stores a new snapshot at the front of the collection.
func (s *Service) SaveMeasurement(ctx context.Context, in MeasurementInput) (domain.Measurement, error) {
	var saved domain.Measurement
	err := s.observe(ctx, "save_measurement", func(ctx context.Context) error {
		m, err := BuildMeasurement(s.ids.NewID(prefixMeasurement), in.AnimalID, in.EventID, s.now(), in.Fields, strings.TrimSpace(in.Notes))
		if err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		existing := recordstore.Load[domain.Measurement](ctx, s.records, domain.CollectionMeasurements)
		all := make([]domain.Measurement, 0, len(existing)+1)
		all = append(all, m)
		all = append(all, existing...)
		if err := recordstore.Save(ctx, s.records, domain.CollectionMeasurements, all); err != nil {
			return err
		}
		saved = m
		return nil
	})
	if err == nil {
		s.logger.Info("measurement saved",
			zap.String("measurement_id", saved.ID),
			zap.String("event_id", saved.EventID),
			zap.Int("fields", len(saved.Measurements)))
	}
	return saved, err
}

// ListMeasurements returns all snapshots, most recent first.
func (s *Service) ListMeasurements(ctx context.Context) []domain.Measurement {
	return recordstore.Load[domain.Measurement](ctx, s.records, domain.CollectionMeasurements)
}

// MeasurementsForEvent returns the snapshots taken during eventID.
func (s *Service) MeasurementsForEvent(ctx context.Context, eventID string) []domain.Measurement {
	out := make([]domain.Measurement, 0)
	for _, m := range s.ListMeasurements(ctx) {
		if m.EventID == eventID {
			out = append(out, m)
		}
	}
	return out
}

// ComputeAllDoses doses every protocol drug for species at weightKg.
func (s *Service) ComputeAllDoses(ctx context.Context, species string, weightKg float64) ([]domain.DoseResult, error) {
	var out []domain.DoseResult
	err := s.observe(ctx, "compute_doses", func(context.Context) error {
		var err error
		out, err = s.protocols.ComputeAllDoses(species, weightKg)
		return err
	})
	return out, err
}

// RecommendedDoses computes the protocol doses for a registered animal.
func (s *Service) RecommendedDoses(ctx context.Context, animalID string) ([]domain.DoseResult, error) {
	a, err := s.GetAnimal(ctx, animalID)
	if err != nil {
		return nil, err
	}
	if a.EstimatedWeight == nil {
		return nil, domain.ValidationError{Field: "estimatedWeight", Message: fmt.Sprintf("animal %s has no estimated weight", a.ID)}
	}
	return s.ComputeAllDoses(ctx, a.Species, *a.EstimatedWeight)
}
