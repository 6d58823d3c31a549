package dosing

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"immobilog/pkg/domain"
)

//go:embed protocols.yaml
var builtinProtocols []byte

type tableFile struct {
	Species   []domain.SpeciesProtocol `yaml:"species"`
	Emergency []domain.DrugDosage      `yaml:"emergency"`
}

// Table is a read-only species protocol lookup. It is safe for concurrent use
// because nothing mutates it after construction.
type Table struct {
	protocols []domain.SpeciesProtocol
	index     map[string]int
	emergency []domain.DrugDosage
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
	defaultErr   error
)

// Default returns the built-in protocol table.
func Default() *Table {
	defaultOnce.Do(func() {
		defaultTable, defaultErr = Parse(bytes.NewReader(builtinProtocols))
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("dosing: built-in protocol table is invalid: %v", defaultErr))
	}
	return defaultTable
}

// LoadFile reads a protocol table from a YAML file.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path) // #nosec G304 -- operator supplied protocol file
	if err != nil {
		return nil, fmt.Errorf("open protocols: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Parse decodes and validates a YAML protocol table. When the document has
// no emergency section the built-in emergency drugs are kept.
func Parse(r io.Reader) (*Table, error) {
	var doc tableFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode protocols: %w", err)
	}
	t := &Table{index: make(map[string]int, len(doc.Species)*2)}
	for _, p := range doc.Species {
		if strings.TrimSpace(p.Species) == "" {
			return nil, fmt.Errorf("protocol without species name")
		}
		if err := validateDrugs(p.Species, p.PrimaryDrugs, p.SecondaryDrugs, p.ReversalDrugs); err != nil {
			return nil, err
		}
		key := normalizeKey(p.Species)
		if _, dup := t.index[key]; dup {
			return nil, fmt.Errorf("duplicate protocol for %s", p.Species)
		}
		t.index[key] = len(t.protocols)
		if p.CommonName != "" {
			if _, taken := t.index[normalizeKey(p.CommonName)]; !taken {
				t.index[normalizeKey(p.CommonName)] = len(t.protocols)
			}
		}
		t.protocols = append(t.protocols, p)
	}
	if err := validateDrugs("emergency", doc.Emergency); err != nil {
		return nil, err
	}
	t.emergency = doc.Emergency
	if len(t.emergency) == 0 && len(builtinProtocols) > 0 {
		var fallback tableFile
		if err := yaml.Unmarshal(builtinProtocols, &fallback); err == nil {
			t.emergency = fallback.Emergency
		}
	}
	return t, nil
}

func validateDrugs(owner string, lists ...[]domain.DrugDosage) error {
	for _, list := range lists {
		for _, d := range list {
			if d.Name == "" {
				return fmt.Errorf("%s: drug without name", owner)
			}
			if d.Concentration <= 0 {
				return fmt.Errorf("%s: %s concentration must be positive", owner, d.Name)
			}
			if d.DoseRange.Min < 0 || d.DoseRange.Min > d.DoseRange.Max {
				return fmt.Errorf("%s: %s dose range [%v, %v] is invalid", owner, d.Name, d.DoseRange.Min, d.DoseRange.Max)
			}
		}
	}
	return nil
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Lookup finds a protocol by scientific or common name, ignoring case and
// surrounding whitespace.
func (t *Table) Lookup(species string) (domain.SpeciesProtocol, error) {
	i, ok := t.index[normalizeKey(species)]
	if !ok {
		return domain.SpeciesProtocol{}, domain.NotFoundError{Entity: domain.EntityProtocol, ID: species}
	}
	return cloneProtocol(t.protocols[i]), nil
}

// Species lists the scientific names in table order.
func (t *Table) Species() []string {
	out := make([]string, len(t.protocols))
	for i, p := range t.protocols {
		out[i] = p.Species
	}
	return out
}

// Protocols returns copies of every protocol in table order.
func (t *Table) Protocols() []domain.SpeciesProtocol {
	out := make([]domain.SpeciesProtocol, len(t.protocols))
	for i, p := range t.protocols {
		out[i] = cloneProtocol(p)
	}
	return out
}

// Emergency returns the emergency drug definitions.
func (t *Table) Emergency() []domain.DrugDosage {
	return append([]domain.DrugDosage(nil), t.emergency...)
}

// ComputeAllDoses applies ComputeDose to every primary drug (full dose) and
// every secondary drug (volume only). A protocol without secondary drugs is
// treated as having an empty list.
func (t *Table) ComputeAllDoses(species string, weightKg float64) ([]domain.DoseResult, error) {
	p, err := t.Lookup(species)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DoseResult, 0, len(p.PrimaryDrugs)+len(p.SecondaryDrugs))
	for _, d := range p.PrimaryDrugs {
		res, err := doseResult(d, domain.CategoryPrimary, weightKg)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	for _, d := range p.SecondaryDrugs {
		cat, ok := CategoryOf(d.Name)
		if !ok {
			cat = domain.CategoryPrimary
		}
		res, err := doseResult(d, cat, weightKg)
		if err != nil {
			return nil, err
		}
		res.DoseMg = nil
		res.Secondary = true
		out = append(out, res)
	}
	return out, nil
}

// ComputeReversalDoses doses the protocol's reversal drugs.
func (t *Table) ComputeReversalDoses(species string, weightKg float64) ([]domain.DoseResult, error) {
	p, err := t.Lookup(species)
	if err != nil {
		return nil, err
	}
	return doseAll(p.ReversalDrugs, domain.CategoryReversal, weightKg)
}

// ComputeEmergencyDoses doses every emergency drug for the given weight.
func (t *Table) ComputeEmergencyDoses(weightKg float64) ([]domain.DoseResult, error) {
	return doseAll(t.emergency, domain.CategoryEmergency, weightKg)
}

func doseAll(drugs []domain.DrugDosage, category domain.DrugCategory, weightKg float64) ([]domain.DoseResult, error) {
	out := make([]domain.DoseResult, 0, len(drugs))
	for _, d := range drugs {
		res, err := doseResult(d, category, weightKg)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func doseResult(d domain.DrugDosage, category domain.DrugCategory, weightKg float64) (domain.DoseResult, error) {
	dose, err := ComputeDose(weightKg, d.DoseRange, d.Concentration)
	if err != nil {
		return domain.DoseResult{}, fmt.Errorf("%s: %w", d.Name, err)
	}
	mg := dose.DoseMg
	return domain.DoseResult{
		Drug:          d.Name,
		Category:      category,
		Concentration: d.Concentration,
		Route:         d.Route,
		DoseMg:        &mg,
		VolumeMl:      dose.VolumeMl,
		Notes:         d.Notes,
	}, nil
}

func cloneProtocol(p domain.SpeciesProtocol) domain.SpeciesProtocol {
	p.PrimaryDrugs = append([]domain.DrugDosage(nil), p.PrimaryDrugs...)
	p.ReversalDrugs = append([]domain.DrugDosage(nil), p.ReversalDrugs...)
	if p.SecondaryDrugs != nil {
		p.SecondaryDrugs = append([]domain.DrugDosage(nil), p.SecondaryDrugs...)
	}
	return p
}
