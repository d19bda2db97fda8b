package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/reportflow/pkg/aggregate"
	"github.com/logflow/reportflow/pkg/pipeline"
	"github.com/logflow/reportflow/pkg/report"
	"github.com/logflow/reportflow/pkg/storage"
	"github.com/logflow/reportflow/pkg/watermark"
)

var (
	listFolder  string
	listProject string
	listDataset string
	listSince   string
	listNew     bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List report files in the source and print an import request",
	Long: `List the CSV files of a source folder and print them as an import request.

With --new, files whose sheet already has an equal or later watermark in
project.dataset are left out.

Examples:
  reportflow list --folder exports
  reportflow list --folder exports --since 2024-01-01T00:00:00Z
  reportflow list --folder exports --new --project acme --dataset reports`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listFolder, "folder", "", "Folder to list")
	listCmd.Flags().StringVar(&listProject, "project", "", "Warehouse project")
	listCmd.Flags().StringVar(&listDataset, "dataset", "", "Warehouse dataset")
	listCmd.Flags().StringVar(&listSince, "since", "", "Only files modified after this RFC3339 time")
	listCmd.Flags().BoolVar(&listNew, "new", false, "Only files newer than the stored watermarks")

	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	filter := storage.Filter{Suffix: report.Extension}
	if listSince != "" {
		t, err := time.Parse(time.RFC3339, listSince)
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
		filter.ModifiedAfter = t
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, appOptions{SourceOnly: !listNew})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	objects, err := a.source.List(ctx, listFolder, filter)
	if err != nil {
		return err
	}

	var marks *watermark.Table
	if listNew {
		if marks, err = a.runner.Watermarks(ctx, listProject, listDataset); err != nil {
			return err
		}
	}

	req := pipeline.Request{
		Project: listProject,
		Dataset: listDataset,
		Files:   selectFiles(objects, marks),
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(req)
}

// selectFiles turns a listing into an import file list ordered by report
// timestamp, so the last file of each sheet is its latest report. Names that
// do not decompose keep their listing order at the end. With marks set, files
// not newer than their sheet's watermark are dropped.
func selectFiles(objects []storage.ObjectInfo, marks *watermark.Table) []aggregate.FileRef {
	type entry struct {
		ref  aggregate.FileRef
		name report.Name
		ok   bool
	}

	entries := make([]entry, 0, len(objects))
	for _, o := range objects {
		name, err := report.Parse(o.Name)
		if err == nil && marks != nil && !marks.IsNew(name) {
			continue
		}
		entries = append(entries, entry{
			ref:  aggregate.FileRef{ID: o.ID, Name: o.Name},
			name: name,
			ok:   err == nil,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ok != entries[j].ok {
			return entries[i].ok
		}
		return entries[i].ok && entries[i].name.Timestamp.Before(entries[j].name.Timestamp)
	})

	files := make([]aggregate.FileRef, len(entries))
	for i, e := range entries {
		files[i] = e.ref
	}
	return files
}
