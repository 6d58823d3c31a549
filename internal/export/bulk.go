package export

import (
	"errors"
	"fmt"

	"immobilog/pkg/domain"
)

// ErrNoData is returned when a bulk export is requested for an empty collection.
var ErrNoData = errors.New("no data to export")

// NoDataMessage is the operator-facing text for ErrNoData.
const NoDataMessage = "No data to export."

// BulkSpec names the file and column order of a collection export.
type BulkSpec struct {
	Collection domain.Collection
	Filename   string
	Columns    []string
}

var bulkSpecs = []BulkSpec{
	{
		Collection: domain.CollectionAnimals,
		Filename:   "animals.csv",
		Columns:    []string{"id", "species", "name", "identifier", "sex", "ageClass", "estimatedWeight", "location", "notes", "createdAt", "updatedAt"},
	},
	{
		Collection: domain.CollectionEvents,
		Filename:   "immobilization_events.csv",
		Columns:    []string{"id", "animalId", "startTime", "endTime", "drugsAdministered", "vitals", "complications", "notes"},
	},
	{
		Collection: domain.CollectionMeasurements,
		Filename:   "measurements.csv",
		Columns:    []string{"id", "animalId", "eventId", "timestamp", "measurements", "notes"},
	},
}

// BulkSpecs lists the exportable collections.
func BulkSpecs() []BulkSpec {
	out := make([]BulkSpec, len(bulkSpecs))
	for i, s := range bulkSpecs {
		s.Columns = append([]string(nil), s.Columns...)
		out[i] = s
	}
	return out
}

// BulkSpecFor returns the export layout of a collection.
func BulkSpecFor(c domain.Collection) (BulkSpec, error) {
	for _, s := range BulkSpecs() {
		if s.Collection == c {
			return s, nil
		}
	}
	return BulkSpec{}, fmt.Errorf("collection %s is not exportable", c)
}

// BulkTable projects records through spec. An empty collection yields ErrNoData.
func BulkTable[T any](spec BulkSpec, records []T) (Table, error) {
	if len(records) == 0 {
		return Table{}, ErrNoData
	}
	return ProjectRecords(records, spec.Columns)
}

// BulkCSV renders records as the CSV file described by spec.
func BulkCSV[T any](spec BulkSpec, records []T) ([]byte, error) {
	t, err := BulkTable(spec, records)
	if err != nil {
		return nil, err
	}
	return t.CSV()
}
