// Package pipeline runs one import invocation end to end: load the
// watermarks, aggregate the batch, append each rule table, archive, save
// the watermarks.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/logflow/reportflow/pkg/aggregate"
	"github.com/logflow/reportflow/pkg/archive"
	"github.com/logflow/reportflow/pkg/checkpoint"
	"github.com/logflow/reportflow/pkg/decode"
	rferrors "github.com/logflow/reportflow/pkg/errors"
	"github.com/logflow/reportflow/pkg/logger"
	"github.com/logflow/reportflow/pkg/report"
	"github.com/logflow/reportflow/pkg/table"
	"github.com/logflow/reportflow/pkg/telemetry"
	"github.com/logflow/reportflow/pkg/warehouse"
	"github.com/logflow/reportflow/pkg/watermark"
)

// Request is the invocation contract.
type Request struct {
	Project string              `json:"gcp_project"`
	Dataset string              `json:"gcp_dataset"`
	Files   []aggregate.FileRef `json:"file_list"`
}

// Validate checks required fields before any I/O. A missing file_list is
// an error; an empty one is not.
func (r Request) Validate() error {
	if r.Project == "" {
		return rferrors.MissingField("gcp_project")
	}
	if r.Dataset == "" {
		return rferrors.MissingField("gcp_dataset")
	}
	if r.Files == nil {
		return rferrors.MissingField("file_list")
	}
	for i, f := range r.Files {
		if f.ID == "" {
			return rferrors.MissingField(fmt.Sprintf("file_list[%d].id", i))
		}
		if f.Name == "" {
			return rferrors.MissingField(fmt.Sprintf("file_list[%d].name", i))
		}
	}
	return nil
}

// Result is the outcome of a successful invocation.
type Result struct {
	RunID    string              `json:"run_id"`
	Tables   []string            `json:"tables"`
	Skipped  []aggregate.Skipped `json:"skipped,omitempty"`
	Rows     map[string]int      `json:"rows,omitempty"`
	Archived []string            `json:"archived,omitempty"`
	Duration time.Duration       `json:"-"`
}

// Options configures a Runner.
type Options struct {
	Tag report.TagOptions

	// Decode controls how downloaded payloads are decoded.
	Decode decode.Options

	// Archive, when set, receives every rule dataset after the appends.
	Archive *archive.Writer

	// Journal records run progress. Nil disables journaling.
	Journal *checkpoint.Journal

	// OnFile is called after each file of a batch is handled.
	OnFile func(file aggregate.FileRef)

	// NewID generates run IDs. Defaults to random UUIDs.
	NewID func() string
}

// Runner executes invocations one at a time.
type Runner struct {
	source  decode.Opener
	loader  *warehouse.Loader
	marks   *watermark.Store
	archive *archive.Writer
	journal *checkpoint.Journal
	opts    Options

	mu sync.Mutex
}

// NewRunner creates a runner reading files through source and writing to wh.
func NewRunner(source decode.Opener, wh warehouse.Warehouse, opts Options) *Runner {
	if opts.Journal == nil {
		opts.Journal = checkpoint.NewJournal(nil)
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Runner{
		source:  source,
		loader:  warehouse.NewLoader(wh),
		marks:   watermark.NewStore(wh),
		archive: opts.Archive,
		journal: opts.Journal,
		opts:    opts,
	}
}

// Journal returns the run journal.
func (r *Runner) Journal() *checkpoint.Journal {
	return r.journal
}

// Watermarks loads the current watermarks of project.dataset.
func (r *Runner) Watermarks(ctx context.Context, project, dataset string) (*watermark.Table, error) {
	if project == "" {
		return nil, rferrors.MissingField("gcp_project")
	}
	if dataset == "" {
		return nil, rferrors.MissingField("gcp_dataset")
	}
	return r.marks.Load(ctx, project, dataset)
}

// Run executes one invocation. Rule tables are appended before the
// watermarks are saved; a failure in between leaves the rule appends in
// place and the previous watermarks untouched.
func (r *Runner) Run(ctx context.Context, req Request) (res *Result, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	runID := r.opts.NewID()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx)

	ctx, span := telemetry.Start(ctx, "pipeline.run",
		attribute.String("run_id", runID),
		attribute.String("project", req.Project),
		attribute.String("dataset", req.Dataset),
		attribute.Int("files", len(req.Files)),
	)
	defer func() { telemetry.End(span, err) }()

	run := r.journal.Start(ctx, runID, req.Project, req.Dataset, len(req.Files))
	defer func() {
		if err != nil {
			r.journal.Fail(ctx, run, err)
			log.ErrorContext(ctx, "import failed",
				"project", req.Project,
				"dataset", req.Dataset,
				"code", rferrors.GetCode(err),
				"error", err,
			)
			if stack := rferrors.Stack(err); stack != "" {
				log.DebugContext(ctx, "import failure origin", "stack", stack)
			}
		}
	}()

	log.InfoContext(ctx, "import started",
		"project", req.Project,
		"dataset", req.Dataset,
		"files", len(req.Files),
	)

	current, err := r.marks.Load(ctx, req.Project, req.Dataset)
	if err != nil {
		return nil, err
	}

	agg := aggregate.New(r.source, aggregate.Options{
		Tag:    r.opts.Tag,
		Decode: r.opts.Decode,
		OnFile: r.opts.OnFile,
	})
	batch, err := agg.Run(ctx, current, req.Files)
	if err != nil {
		return nil, err
	}

	skipped := make([]checkpoint.SkippedFile, len(batch.Skipped))
	for i, s := range batch.Skipped {
		skipped[i] = checkpoint.SkippedFile{Name: s.Name, Reason: s.Reason}
	}
	r.journal.Skipped(run, skipped)
	r.journal.Advance(ctx, run, checkpoint.PhaseLoading)

	res = &Result{
		RunID:   runID,
		Tables:  make([]string, 0, batch.Rules.Len()),
		Skipped: batch.Skipped,
		Rows:    make(map[string]int, batch.Rules.Len()),
	}

	loaded := make(map[string][]*table.Dataset, batch.Rules.Len())
	for _, rule := range batch.Rules.Order {
		rows := batch.Rules.Data[rule]
		if err := r.loader.Append(ctx, req.Project, req.Dataset, rule, rows); err != nil {
			return nil, err
		}

		name := table.Normalize(rule)
		r.journal.TableLoaded(ctx, run, name, rows.NumRows())
		res.Rows[name] += rows.NumRows()
		if _, ok := loaded[name]; !ok {
			res.Tables = append(res.Tables, name)
		}
		loaded[name] = append(loaded[name], rows)
		log.DebugContext(ctx, "rule table appended", "rule", rule, "table", name, "rows", rows.NumRows())
	}

	if r.archive != nil {
		// Rules sharing a normalized name share one archive file.
		for _, name := range res.Tables {
			key, err := r.archive.Write(ctx, req.Project, req.Dataset, name, runID, table.Concat(loaded[name]...))
			if err != nil {
				return nil, err
			}
			res.Archived = append(res.Archived, key)
		}
	}

	r.journal.Advance(ctx, run, checkpoint.PhaseWatermark)
	if err := r.marks.Save(ctx, req.Project, req.Dataset, batch.Watermarks); err != nil {
		return nil, err
	}

	r.journal.Complete(ctx, run)
	res.Duration = time.Since(start)

	log.InfoContext(ctx, "import complete",
		"tables", len(res.Tables),
		"rows", batch.Rules.Rows(),
		"skipped", len(res.Skipped),
		"duration", res.Duration,
	)
	return res, nil
}
