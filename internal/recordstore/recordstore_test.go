package recordstore

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"immobilog/internal/infra/persistence/memory"
	"immobilog/pkg/domain"
)

type failingKV struct{ *memory.Store }

func (failingKV) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk on fire")
}

func (failingKV) Set(context.Context, string, []byte) error { return errors.New("read-only") }

func newObserved() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.WarnLevel)
	return zap.New(core), logs
}

func TestLoadMissingCollectionIsEmpty(t *testing.T) {
	s := New(memory.NewStore())
	got := Load[domain.Animal](context.Background(), s, domain.CollectionAnimals)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestSaveThenLoadPreservesOrder(t *testing.T) {
	ctx := context.Background()
	s := New(memory.NewStore())
	in := []domain.Animal{{ID: "b", Species: "Axis axis"}, {ID: "a", Species: "Cuon alpinus"}}
	if err := Save(ctx, s, domain.CollectionAnimals, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out := Load[domain.Animal](ctx, s, domain.CollectionAnimals)
	if len(out) != 2 || out[0].ID != "b" || out[1].ID != "a" {
		t.Fatalf("unexpected order %+v", out)
	}
}

func TestMalformedContentRecoversAndLogs(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewStore()
	_ = kv.Set(ctx, string(domain.CollectionEvents), []byte(`{not json`))
	logger, logs := newObserved()
	s := New(kv, WithLogger(logger))

	got := Load[domain.ImmobilizationEvent](ctx, s, domain.CollectionEvents)
	if len(got) != 0 {
		t.Fatalf("expected empty fallback, got %d", len(got))
	}
	entries := logs.FilterMessage("discarding malformed collection").All()
	if len(entries) != 1 {
		t.Fatalf("expected one warning, got %d", logs.Len())
	}
	if entries[0].ContextMap()["collection"] != "immobilizationEvents" {
		t.Fatalf("unexpected fields %v", entries[0].ContextMap())
	}
}

func TestNullContentIsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewStore()
	_ = kv.Set(ctx, string(domain.CollectionMeasurements), []byte(`null`))
	got := Load[domain.Measurement](ctx, New(kv), domain.CollectionMeasurements)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty slice for null, got %#v", got)
	}
}

func TestReadErrorsAreRecoveredWriteErrorsAreReturned(t *testing.T) {
	ctx := context.Background()
	logger, logs := newObserved()
	s := New(failingKV{memory.NewStore()}, WithLogger(logger))
	if got := Load[domain.Animal](ctx, s, domain.CollectionAnimals); len(got) != 0 {
		t.Fatalf("expected empty on read failure")
	}
	if logs.Len() != 1 {
		t.Fatalf("expected read failure to be logged")
	}
	if err := Save(ctx, s, domain.CollectionAnimals, []domain.Animal{{ID: "x"}}); err == nil {
		t.Fatalf("expected write error to surface")
	}
}

func TestValueSlot(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewStore()
	s := New(kv)
	type slot struct {
		AnimalID string `json:"animalId"`
	}
	if v, ok := LoadValue(ctx, s, domain.CollectionActiveEvent, slot{AnimalID: "none"}); ok || v.AnimalID != "none" {
		t.Fatalf("expected fallback, got %+v %v", v, ok)
	}
	if err := SaveValue(ctx, s, domain.CollectionActiveEvent, slot{AnimalID: "animal-1"}); err != nil {
		t.Fatalf("save value: %v", err)
	}
	if v, ok := LoadValue(ctx, s, domain.CollectionActiveEvent, slot{}); !ok || v.AnimalID != "animal-1" {
		t.Fatalf("unexpected slot %+v %v", v, ok)
	}
	_ = kv.Set(ctx, string(domain.CollectionActiveEvent), []byte(`[`))
	if _, ok := LoadValue(ctx, s, domain.CollectionActiveEvent, slot{}); ok {
		t.Fatalf("expected malformed slot to fall back")
	}
	if err := s.Clear(ctx, domain.CollectionActiveEvent); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(kv.Keys()) != 0 {
		t.Fatalf("expected slot removed, keys %v", kv.Keys())
	}
}
