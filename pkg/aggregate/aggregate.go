// Package aggregate turns a batch of report files into one dataset per rule
// and an updated watermark table.
//
// A run first collects the successfully decomposed and tagged files, then
// folds that list twice: grouped by rule and concatenated, and reduced into
// the watermark table. Invalid filenames are reported and skipped; every
// other failure aborts the batch.
package aggregate

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/logflow/reportflow/pkg/decode"
	rferrors "github.com/logflow/reportflow/pkg/errors"
	"github.com/logflow/reportflow/pkg/report"
	"github.com/logflow/reportflow/pkg/table"
	"github.com/logflow/reportflow/pkg/telemetry"
	"github.com/logflow/reportflow/pkg/watermark"
)

// FileRef identifies a file to process.
type FileRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Skipped is a file dropped because its name did not decompose.
type Skipped struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Report is a decomposed filename with its tagged rows.
type Report struct {
	Meta report.Name
	Data *table.Dataset
}

// Options configures an Aggregator.
type Options struct {
	Tag report.TagOptions

	// Decode controls how downloaded payloads are decoded.
	Decode decode.Options

	// OnSkip receives one call per invalid filename. Defaults to a
	// warning on the default slog logger.
	OnSkip func(ctx context.Context, file FileRef, err error)

	// OnFile is called after each file has been handled, skipped or not.
	OnFile func(file FileRef)
}

// Aggregator processes batches of report files.
type Aggregator struct {
	opener decode.Opener
	opts   Options
}

// New creates an aggregator downloading through opener.
func New(opener decode.Opener, opts Options) *Aggregator {
	if opts.OnSkip == nil {
		opts.OnSkip = logSkip
	}
	return &Aggregator{opener: opener, opts: opts}
}

func logSkip(ctx context.Context, file FileRef, err error) {
	slog.WarnContext(ctx, "invalid report filename, skipping",
		"file", file.Name,
		"id", file.ID,
		"error", err,
	)
}

// Collect decomposes, downloads and tags every file in list order.
// Files with invalid names are skipped; download and decode failures
// abort the batch.
func (a *Aggregator) Collect(ctx context.Context, files []FileRef) ([]Report, []Skipped, error) {
	var (
		reports []Report
		skipped []Skipped
	)

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, rferrors.Wrap(err, rferrors.CodeCanceled, "batch canceled")
		}

		meta, err := report.Parse(file.Name)
		if err != nil {
			a.opts.OnSkip(ctx, file, err)
			skipped = append(skipped, Skipped{Name: file.Name, Reason: err.Error()})
			a.notify(file)
			continue
		}

		data, err := a.collectOne(ctx, file, meta)
		if err != nil {
			return nil, nil, err
		}
		reports = append(reports, Report{Meta: meta, Data: data})
		a.notify(file)
	}

	return reports, skipped, nil
}

func (a *Aggregator) collectOne(ctx context.Context, file FileRef, meta report.Name) (_ *table.Dataset, err error) {
	ctx, span := telemetry.Start(ctx, "aggregate.file",
		attribute.String("file", file.Name),
		attribute.String("rule", meta.Rule),
	)
	defer func() { telemetry.End(span, err) }()

	rows, err := a.opts.Decode.Fetch(ctx, a.opener, file.ID)
	if err != nil {
		return nil, rferrors.Wrap(err, rferrors.GetCode(err), "failed to load report").
			WithContext("file", file.Name)
	}

	tagged := report.Tag(rows, meta, a.opts.Tag)
	span.SetAttributes(attribute.Int("rows", tagged.NumRows()))
	slog.DebugContext(ctx, "report tagged",
		"file", file.Name,
		"rule", meta.Rule,
		"rows", tagged.NumRows(),
	)
	return tagged, nil
}

func (a *Aggregator) notify(file FileRef) {
	if a.opts.OnFile != nil {
		a.opts.OnFile(file)
	}
}

// Rules is the per-rule concatenation of a batch. Order lists rule names
// by first appearance; Data has exactly those keys.
type Rules struct {
	Order []string
	Data  map[string]*table.Dataset
}

// Len returns the number of rules.
func (r *Rules) Len() int {
	return len(r.Order)
}

// Rows returns the total row count across rules.
func (r *Rules) Rows() int {
	n := 0
	for _, ds := range r.Data {
		n += ds.NumRows()
	}
	return n
}

// GroupByRule concatenates the reports of each rule. Rules without reports
// never appear.
func GroupByRule(reports []Report) *Rules {
	buckets := make(map[string][]*table.Dataset)
	var order []string
	for _, r := range reports {
		if _, ok := buckets[r.Meta.Rule]; !ok {
			order = append(order, r.Meta.Rule)
		}
		buckets[r.Meta.Rule] = append(buckets[r.Meta.Rule], r.Data)
	}

	data := make(map[string]*table.Dataset, len(buckets))
	for rule, parts := range buckets {
		data[rule] = table.Concat(parts...)
	}
	return &Rules{Order: order, Data: data}
}

// FoldWatermarks returns a copy of current updated with every report in
// order. The last report of a source wins regardless of its timestamp.
func FoldWatermarks(current *watermark.Table, reports []Report) *watermark.Table {
	next := watermark.New()
	if current != nil {
		next = current.Clone()
	}
	for _, r := range reports {
		next.Observe(r.Meta)
	}
	return next
}

// Result is the outcome of one batch.
type Result struct {
	Watermarks *watermark.Table
	Rules      *Rules
	Skipped    []Skipped
	Files      int
}

// Run processes files against the current watermarks.
func (a *Aggregator) Run(ctx context.Context, current *watermark.Table, files []FileRef) (*Result, error) {
	reports, skipped, err := a.Collect(ctx, files)
	if err != nil {
		return nil, err
	}

	return &Result{
		Watermarks: FoldWatermarks(current, reports),
		Rules:      GroupByRule(reports),
		Skipped:    skipped,
		Files:      len(files),
	}, nil
}
