package table

import (
	"fmt"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
)

// ArrowType returns the Arrow data type used for a column type.
// Timestamps are stored at millisecond precision in UTC.
func ArrowType(t Type) arrow.DataType {
	switch t {
	case Bool:
		return arrow.FixedWidthTypes.Boolean
	case Timestamp:
		return arrow.FixedWidthTypes.Timestamp_ms
	default:
		return arrow.BinaryTypes.String
	}
}

// Schema returns the Arrow schema of d. All fields are nullable.
func Schema(d *Dataset) *arrow.Schema {
	fields := make([]arrow.Field, len(d.columns))
	for i, col := range d.columns {
		fields[i] = arrow.Field{Name: col.Name, Type: ArrowType(col.Type), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// ToRecord converts d into an Arrow record. The caller must Release it.
func ToRecord(d *Dataset, alloc memory.Allocator) (arrow.Record, error) {
	if alloc == nil {
		alloc = memory.NewGoAllocator()
	}

	schema := Schema(d)
	builder := array.NewRecordBuilder(alloc, schema)
	defer builder.Release()

	for i, col := range d.columns {
		if err := appendColumn(builder.Field(i), col); err != nil {
			return nil, err
		}
	}

	return builder.NewRecord(), nil
}

func appendColumn(b array.Builder, col *Column) error {
	b.Reserve(col.Len())

	switch col.Type {
	case String:
		sb := b.(*array.StringBuilder)
		for _, v := range col.Values {
			if v == nil {
				sb.AppendNull()
				continue
			}
			sb.Append(v.(string))
		}
	case Bool:
		bb := b.(*array.BooleanBuilder)
		for _, v := range col.Values {
			if v == nil {
				bb.AppendNull()
				continue
			}
			bb.Append(v.(bool))
		}
	case Timestamp:
		tb := b.(*array.TimestampBuilder)
		for _, v := range col.Values {
			if v == nil {
				tb.AppendNull()
				continue
			}
			tb.Append(arrow.Timestamp(v.(time.Time).UnixMilli()))
		}
	default:
		return fmt.Errorf("column %q: unsupported type %s", col.Name, col.Type)
	}

	return nil
}
