// Package report decomposes exported report filenames into their metadata
// and tags report rows with it.
//
// A report filename has the shape
//
//	{category}_{label}_{rule}_{source_id}_{YYYY-MM-DDTHH:MM:SS.mmmZ}.csv
//
// where label may be empty and source_id may itself contain underscores.
// The fixed-shape timestamp suffix anchors the end of source_id.
package report

import (
	"fmt"
	"regexp"
	"time"

	rferrors "github.com/logflow/reportflow/pkg/errors"
	"github.com/logflow/reportflow/pkg/table"
)

// TimestampLayout is the exact timestamp form embedded in report filenames.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Extension terminates every report filename.
const Extension = ".csv"

// ErrInvalidFilename matches (via errors.Is) every error returned by Parse.
var ErrInvalidFilename = rferrors.New(rferrors.CodeInvalidFilename, "invalid filename")

// The source_id group is lazy so the shortest source_id that still leaves a
// well-formed timestamp suffix wins. RE2 keeps leftmost-first semantics for
// lazy quantifiers, and the anchors enforce a full match.
var filenamePattern = regexp.MustCompile(
	`^(?P<category>[^_]+)_` +
		`(?P<label>[^_]*)_` +
		`(?P<rule>[^_]+)_` +
		`(?P<source_id>.+?)_` +
		`(?P<timestamp>\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z)\.csv$`,
)

var (
	groupCategory  = filenamePattern.SubexpIndex("category")
	groupLabel     = filenamePattern.SubexpIndex("label")
	groupRule      = filenamePattern.SubexpIndex("rule")
	groupSourceID  = filenamePattern.SubexpIndex("source_id")
	groupTimestamp = filenamePattern.SubexpIndex("timestamp")
)

// Name is the metadata carried by a report filename. It is immutable and
// only ever produced whole by Parse.
type Name struct {
	Filename  string
	Category  string
	Label     string
	Rule      string
	SourceID  string
	Timestamp time.Time
}

// Parse decomposes filename. Any structural mismatch (segment count,
// timestamp shape or value, trailing content) yields an error matching
// ErrInvalidFilename; sub-reasons are not distinguished.
func Parse(filename string) (Name, error) {
	m := filenamePattern.FindStringSubmatch(filename)
	if m == nil {
		return Name{}, invalid(filename)
	}

	ts, err := time.Parse(TimestampLayout, m[groupTimestamp])
	if err != nil {
		return Name{}, invalid(filename)
	}

	return Name{
		Filename:  filename,
		Category:  m[groupCategory],
		Label:     m[groupLabel],
		Rule:      m[groupRule],
		SourceID:  m[groupSourceID],
		Timestamp: ts.UTC(),
	}, nil
}

func invalid(filename string) error {
	return rferrors.New(rferrors.CodeInvalidFilename, "invalid filename").
		WithContext("filename", filename)
}

// String reconstructs the canonical filename from the parsed fields.
// Parse(n.String()) yields the same fields.
func (n Name) String() string {
	return fmt.Sprintf("%s_%s_%s_%s_%s%s",
		n.Category, n.Label, n.Rule, n.SourceID,
		n.Timestamp.UTC().Format(TimestampLayout), Extension)
}

// Table returns the destination table name for the report's rule.
func (n Name) Table() string {
	return table.Normalize(n.Rule)
}
