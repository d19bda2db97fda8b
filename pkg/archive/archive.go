// Package archive writes aggregated rule datasets as Parquet files.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"go.opentelemetry.io/otel/attribute"

	rferrors "github.com/logflow/reportflow/pkg/errors"
	"github.com/logflow/reportflow/pkg/storage"
	"github.com/logflow/reportflow/pkg/table"
	"github.com/logflow/reportflow/pkg/telemetry"
)

// Compression types.
const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"
	CompressionGzip   = "gzip"
	CompressionZstd   = "zstd"
)

// Config configures a Writer.
type Config struct {
	Prefix      string
	Compression string
}

// Writer archives datasets onto a storage sink.
type Writer struct {
	sink      storage.Sink
	prefix    string
	codec     compress.Compression
	allocator memory.Allocator
}

// Codec maps a compression name to its Parquet codec.
func Codec(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case CompressionSnappy, "":
		return compress.Codecs.Snappy, nil
	case CompressionGzip:
		return compress.Codecs.Gzip, nil
	case CompressionZstd:
		return compress.Codecs.Zstd, nil
	case CompressionNone:
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, rferrors.InvalidConfig("unsupported archive compression: %s", name)
	}
}

// NewWriter creates a writer putting files under cfg.Prefix on sink.
func NewWriter(sink storage.Sink, cfg Config) (*Writer, error) {
	codec, err := Codec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	return &Writer{
		sink:      sink,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		codec:     codec,
		allocator: memory.NewGoAllocator(),
	}, nil
}

// Key returns the object key of a rule table's archive for one run.
func (w *Writer) Key(project, dataset, tableName, runID string) string {
	return path.Join(w.prefix, project, dataset, tableName, runID+".parquet")
}

// Write encodes rows as Parquet and puts it at Key. It returns the key.
func (w *Writer) Write(ctx context.Context, project, dataset, tableName, runID string, rows *table.Dataset) (key string, err error) {
	key = w.Key(project, dataset, tableName, runID)

	ctx, span := telemetry.Start(ctx, "archive.write",
		attribute.String("key", key),
		attribute.Int("rows", rows.NumRows()),
	)
	defer func() { telemetry.End(span, err) }()

	var buf bytes.Buffer
	if err := w.encode(&buf, rows); err != nil {
		return "", rferrors.Wrap(err, rferrors.CodeUploadFailed, "failed to encode parquet").
			WithContext("key", key)
	}

	if err := w.sink.Put(ctx, key, &buf); err != nil {
		return "", err
	}
	return key, nil
}

func (w *Writer) encode(buf *bytes.Buffer, rows *table.Dataset) error {
	if rows.NumColumns() == 0 {
		return fmt.Errorf("dataset has no columns")
	}

	record, err := table.ToRecord(rows, w.allocator)
	if err != nil {
		return err
	}
	defer record.Release()

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(w.codec),
		parquet.WithDictionaryDefault(true),
		parquet.WithDataPageSize(1024*1024), // 1MB
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithStoreSchema(),
	)

	fw, err := pqarrow.NewFileWriter(record.Schema(), buf, writerProps, arrowProps)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	if err := fw.Write(record); err != nil {
		fw.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	return fw.Close()
}
