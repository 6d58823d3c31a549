package core

import (
	"math"
	"strconv"
	"strings"
	"time"

	"immobilog/pkg/domain"
)

// NormalizeMeasurementFields drops fields that count as not provided: zero,
// NaN and infinities. Zero is treated as absent for compatibility with
// records produced by the field form.
func NormalizeMeasurementFields(in map[string]float64) domain.MeasurementFields {
	out := make(domain.MeasurementFields, len(in))
	for k, v := range in {
		k = strings.TrimSpace(k)
		if k == "" || v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[k] = v
	}
	return out
}

// ParseMeasurementFields converts raw form strings into numeric fields.
// Blank, unparsable and zero values are omitted rather than zeroed.
func ParseMeasurementFields(raw map[string]string) domain.MeasurementFields {
	parsed := make(map[string]float64, len(raw))
	for k, s := range raw {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			continue
		}
		parsed[k] = v
	}
	return NormalizeMeasurementFields(parsed)
}

// BuildMeasurement validates the owning ids and assembles an immutable snapshot.
func BuildMeasurement(id, animalID, eventID string, at time.Time, fields map[string]float64, notes string) (domain.Measurement, error) {
	if strings.TrimSpace(animalID) == "" {
		return domain.Measurement{}, domain.ValidationError{Field: "animalId", Message: "select an animal before saving measurements"}
	}
	if strings.TrimSpace(eventID) == "" {
		return domain.Measurement{}, domain.ValidationError{Field: "eventId", Message: "select an immobilization event before saving measurements"}
	}
	return domain.Measurement{
		ID:           id,
		AnimalID:     animalID,
		EventID:      eventID,
		Timestamp:    at.UTC(),
		Measurements: NormalizeMeasurementFields(fields),
		Notes:        notes,
	}, nil
}
