package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/logflow/reportflow/pkg/aggregate"
	"github.com/logflow/reportflow/pkg/pipeline"
	"github.com/logflow/reportflow/pkg/tui"
)

var (
	ingestProject  string
	ingestDataset  string
	ingestRequest  string
	ingestFiles    []string
	ingestProgress bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [flags] [file...]",
	Short: "Run one import batch from the command line",
	Long: `Run one import batch: decompose every filename, tag and append its rows
to the table of its rule, then overwrite last_report with the merged watermarks.

Files come from positional arguments, repeated --file flags, or a request
document (the same JSON the HTTP server accepts). A bare path uses the path as
the storage ID and its base name as the filename; id=name sets both.

Examples:
  reportflow ingest --project acme --dataset reports exports/*.csv
  reportflow ingest --project acme --dataset reports --file 1a2b=SA360_L_Anomalies_S_2024-01-01T00:00:00.000Z.csv
  reportflow ingest --request batch.json
  reportflow list --folder exports --new --project acme --dataset reports | reportflow ingest --request -`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestProject, "project", "", "Warehouse project")
	ingestCmd.Flags().StringVar(&ingestDataset, "dataset", "", "Warehouse dataset")
	ingestCmd.Flags().StringVarP(&ingestRequest, "request", "r", "", "Request JSON file (- for stdin)")
	ingestCmd.Flags().StringArrayVarP(&ingestFiles, "file", "f", nil, "File as path or id=name (repeatable)")
	ingestCmd.Flags().BoolVar(&ingestProgress, "progress", true, "Show a progress bar")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(cmd.InOrStdin(), ingestRequest, ingestProject, ingestDataset, append(ingestFiles, args...))
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	var onFile func(aggregate.FileRef)
	if ingestProgress && len(req.Files) > 0 {
		bar := tui.ShowProgress(cmd.ErrOrStderr(), int64(len(req.Files)), "Reading reports")
		defer bar.Finish()
		onFile = func(aggregate.FileRef) { bar.Add(1) }
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, appOptions{OnFile: onFile})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	res, err := a.runner.Run(ctx, req)
	if err != nil {
		return err
	}

	p := &tui.Printer{W: cmd.OutOrStdout()}
	p.PrintImportSummary(&tui.ImportSummary{
		RunID:    res.RunID,
		Files:    len(req.Files),
		Skipped:  len(res.Skipped),
		Tables:   res.Tables,
		Rows:     res.Rows,
		Archived: res.Archived,
		Duration: res.Duration,
	})
	for _, s := range res.Skipped {
		p.Fail(fmt.Sprintf("skipped %s: %s", s.Name, s.Reason))
	}
	return nil
}

// buildRequest merges a request document, read from stdin when path is "-",
// with flag values. Flags override the document's project and dataset and
// add to its file list.
func buildRequest(stdin io.Reader, path, project, dataset string, files []string) (pipeline.Request, error) {
	var req pipeline.Request
	if path != "" {
		data, err := readInput(stdin, path)
		if err != nil {
			return req, err
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("invalid request %s: %w", path, err)
		}
	}
	if project != "" {
		req.Project = project
	}
	if dataset != "" {
		req.Dataset = dataset
	}
	for _, f := range files {
		req.Files = append(req.Files, parseFileArg(f))
	}
	if req.Files == nil {
		req.Files = []aggregate.FileRef{}
	}
	return req, nil
}

func parseFileArg(s string) aggregate.FileRef {
	if id, name, ok := strings.Cut(s, "="); ok {
		return aggregate.FileRef{ID: id, Name: name}
	}
	return aggregate.FileRef{ID: s, Name: filepath.Base(s)}
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
