// Package exports renders projections of the record store and writes them as
// named artifacts to a blob.Store, which is where "downloaded" files land.
package exports

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"

	"immobilog/internal/blob"
	"immobilog/internal/dosing"
	"immobilog/internal/export"
	"immobilog/pkg/domain"
)

// Format identifies a rendered artifact encoding.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatXLSX     Format = "xlsx"
)

const contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Artifact key prefixes.
const (
	PrefixReports   = "reports/"
	PrefixEvents    = "events/"
	PrefixBulk      = "bulk/"
	PrefixWorkbooks = "workbooks/"
)

// Artifact describes a published export.
type Artifact struct {
	Key         string            `json:"key"`
	Filename    string            `json:"filename"`
	Format      Format            `json:"format"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	Checksum    string            `json:"checksum,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Source supplies the records being exported; *core.Service satisfies it.
type Source interface {
	ListAnimals(ctx context.Context) []domain.Animal
	ListEvents(ctx context.Context) []domain.ImmobilizationEvent
	ListMeasurements(ctx context.Context) []domain.Measurement
	GetEvent(ctx context.Context, id string) (domain.ImmobilizationEvent, error)
	Protocols() *dosing.Table
}

// Publisher renders and stores export artifacts.
type Publisher struct {
	source Source
	store  blob.Store
	logger *zap.Logger
	opts   export.Options
	now    func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the publisher logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRenderOptions sets the timestamp location and report clock.
func WithRenderOptions(o export.Options) Option {
	return func(p *Publisher) {
		p.opts = o
		if o.Now != nil {
			p.now = o.Now
		}
	}
}

// NewPublisher constructs a publisher over source writing into store.
func NewPublisher(source Source, store blob.Store, opts ...Option) *Publisher {
	p := &Publisher{source: source, store: store, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type rendered struct {
	key         string
	filename    string
	format      Format
	contentType string
	payload     []byte
	metadata    map[string]string
}

// PublishReport renders the procedure report of one animal and event.
func (p *Publisher) PublishReport(ctx context.Context, animalID, eventID string, format Format) (Artifact, error) {
	in := export.ReportInput{
		AnimalID:     animalID,
		EventID:      eventID,
		Animals:      p.source.ListAnimals(ctx),
		Events:       p.allEvents(ctx, eventID),
		Measurements: p.source.ListMeasurements(ctx),
		Doses:        p.source.Protocols(),
	}
	doc, err := export.BuildReport(in, p.opts)
	if err != nil {
		return Artifact{}, err
	}
	var animal domain.Animal
	if a := p.findAnimal(ctx, animalID); a != nil {
		animal = *a
	}
	ev, _ := p.source.GetEvent(ctx, eventID)
	filename := export.ReportFilename(animal, ev)
	r := rendered{
		filename: filename,
		format:   format,
		metadata: map[string]string{"animal_id": animalID, "event_id": eventID, "sections": strconv.Itoa(len(doc.Sections))},
	}
	switch format {
	case FormatMarkdown:
		r.contentType = "text/markdown"
		r.payload = []byte(doc.Text())
	case FormatHTML:
		r.filename = replaceExt(filename, "html")
		r.contentType = "text/html"
		r.payload = []byte(doc.HTML())
	default:
		return Artifact{}, fmt.Errorf("format %s not supported for reports", format)
	}
	r.key = PrefixReports + r.filename
	return p.put(ctx, r)
}

// PublishEvent exports a single event as JSON, timeline CSV or a one-sheet workbook.
func (p *Publisher) PublishEvent(ctx context.Context, eventID string, format Format) (Artifact, error) {
	ev, err := p.source.GetEvent(ctx, eventID)
	if err != nil {
		return Artifact{}, err
	}
	animal := p.findAnimal(ctx, ev.AnimalID)
	r := rendered{
		filename: export.EventFilename(ev, animal, string(format)),
		format:   format,
		metadata: map[string]string{"event_id": ev.ID, "animal_id": ev.AnimalID, "status": string(ev.Status())},
	}
	switch format {
	case FormatJSON:
		r.contentType = "application/json"
		r.payload, err = export.EventJSON(ev, animal)
	case FormatCSV:
		rows := export.Timeline(ev, animal, p.opts)
		r.metadata["rows"] = strconv.Itoa(len(rows))
		r.contentType = "text/csv"
		r.payload, err = export.TimelineTable(rows).CSV()
	case FormatXLSX:
		r.contentType = contentTypeXLSX
		r.payload, err = p.workbook(export.Sheet{Name: "Timeline", Table: export.TimelineTable(export.Timeline(ev, animal, p.opts))})
	default:
		return Artifact{}, fmt.Errorf("format %s not supported for events", format)
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("render event %s: %w", ev.ID, err)
	}
	r.key = PrefixEvents + r.filename
	return p.put(ctx, r)
}

// PublishBulk exports a whole collection as CSV. An empty collection yields
// export.ErrNoData and nothing is written.
func (p *Publisher) PublishBulk(ctx context.Context, collection domain.Collection) (Artifact, error) {
	table, spec, err := p.bulkTable(ctx, collection)
	if err != nil {
		return Artifact{}, err
	}
	payload, err := table.CSV()
	if err != nil {
		return Artifact{}, fmt.Errorf("render %s: %w", collection, err)
	}
	return p.put(ctx, rendered{
		key:         PrefixBulk + spec.Filename,
		filename:    spec.Filename,
		format:      FormatCSV,
		contentType: "text/csv",
		payload:     payload,
		metadata:    map[string]string{"collection": string(collection), "rows": strconv.Itoa(len(table.Rows))},
	})
}

// PublishWorkbook writes one workbook holding the event timeline plus a sheet
// per non-empty collection.
func (p *Publisher) PublishWorkbook(ctx context.Context, eventID string) (Artifact, error) {
	ev, err := p.source.GetEvent(ctx, eventID)
	if err != nil {
		return Artifact{}, err
	}
	animal := p.findAnimal(ctx, ev.AnimalID)
	sheets := []export.Sheet{{Name: "Timeline", Table: export.TimelineTable(export.Timeline(ev, animal, p.opts))}}
	for _, spec := range export.BulkSpecs() {
		table, _, err := p.bulkTable(ctx, spec.Collection)
		if err != nil {
			continue
		}
		sheets = append(sheets, export.Sheet{Name: sheetName(spec.Filename), Table: table})
	}
	payload, err := p.workbook(sheets...)
	if err != nil {
		return Artifact{}, fmt.Errorf("render workbook: %w", err)
	}
	filename := export.EventFilename(ev, animal, string(FormatXLSX))
	return p.put(ctx, rendered{
		key:         PrefixWorkbooks + filename,
		filename:    filename,
		format:      FormatXLSX,
		contentType: contentTypeXLSX,
		payload:     payload,
		metadata:    map[string]string{"event_id": ev.ID, "sheets": strconv.Itoa(len(sheets))},
	})
}

// List returns published artifacts under prefix.
func (p *Publisher) List(ctx context.Context, prefix string) ([]Artifact, error) {
	infos, err := p.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Artifact, 0, len(infos))
	for _, info := range infos {
		out = append(out, fromInfo(info, Format(info.Metadata["format"])))
	}
	return out, nil
}

func (p *Publisher) bulkTable(ctx context.Context, c domain.Collection) (export.Table, export.BulkSpec, error) {
	spec, err := export.BulkSpecFor(c)
	if err != nil {
		return export.Table{}, export.BulkSpec{}, err
	}
	var table export.Table
	switch c {
	case domain.CollectionAnimals:
		table, err = export.BulkTable(spec, p.source.ListAnimals(ctx))
	case domain.CollectionEvents:
		table, err = export.BulkTable(spec, p.source.ListEvents(ctx))
	case domain.CollectionMeasurements:
		table, err = export.BulkTable(spec, p.source.ListMeasurements(ctx))
	}
	return table, spec, err
}

func (p *Publisher) workbook(sheets ...export.Sheet) ([]byte, error) {
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, sheets...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// allEvents includes the active event so a report can be drafted mid-procedure.
func (p *Publisher) allEvents(ctx context.Context, eventID string) []domain.ImmobilizationEvent {
	events := p.source.ListEvents(ctx)
	for _, e := range events {
		if e.ID == eventID {
			return events
		}
	}
	if ev, err := p.source.GetEvent(ctx, eventID); err == nil {
		events = append(events, ev)
	}
	return events
}

func (p *Publisher) findAnimal(ctx context.Context, id string) *domain.Animal {
	for _, a := range p.source.ListAnimals(ctx) {
		if a.ID == id {
			return &a
		}
	}
	return nil
}

func (p *Publisher) put(ctx context.Context, r rendered) (Artifact, error) {
	md := map[string]string{"format": string(r.format), "filename": r.filename}
	for k, v := range r.metadata {
		md[k] = v
	}
	info, err := p.store.Put(ctx, r.key, bytes.NewReader(r.payload), blob.PutOptions{
		ContentType: r.contentType,
		Metadata:    md,
		Overwrite:   true,
	})
	if err != nil {
		p.logger.Warn("store export artifact failed", zap.String("key", r.key), zap.Error(err))
		return Artifact{}, fmt.Errorf("store artifact %s: %w", r.key, err)
	}
	art := fromInfo(info, r.format)
	art.Filename = r.filename
	art.CreatedAt = p.now().UTC()
	if art.ContentType == "" {
		art.ContentType = r.contentType
	}
	if art.SizeBytes == 0 {
		art.SizeBytes = int64(len(r.payload))
	}
	if art.Metadata == nil {
		art.Metadata = md
	}
	p.logger.Info("export published",
		zap.String("key", art.Key),
		zap.String("format", string(art.Format)),
		zap.Int64("size_bytes", art.SizeBytes),
	)
	return art, nil
}

func fromInfo(info blob.Info, format Format) Artifact {
	return Artifact{
		Key:         info.Key,
		Filename:    info.Metadata["filename"],
		Format:      format,
		ContentType: info.ContentType,
		SizeBytes:   info.Size,
		Checksum:    info.Checksum,
		Metadata:    info.Metadata,
		CreatedAt:   info.LastModified,
	}
}

func replaceExt(name, ext string) string {
	return name[:len(name)-len(path.Ext(name))] + "." + ext
}

func sheetName(filename string) string {
	name := filename[:len(filename)-len(path.Ext(filename))]
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}
