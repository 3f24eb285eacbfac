package columnar

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
)

var timestampType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

// ArrowType maps a value type onto the Arrow type used on the wire.
func ArrowType(t types.ValueType) (arrow.DataType, error) {
	switch t {
	case types.ValueTypeBytes:
		return arrow.BinaryTypes.Binary, nil
	case types.ValueTypeString:
		return arrow.BinaryTypes.String, nil
	case types.ValueTypeInt32:
		return arrow.PrimitiveTypes.Int32, nil
	case types.ValueTypeInt64:
		return arrow.PrimitiveTypes.Int64, nil
	case types.ValueTypeDouble:
		return arrow.PrimitiveTypes.Float64, nil
	case types.ValueTypeFloat:
		return arrow.PrimitiveTypes.Float32, nil
	case types.ValueTypeBool:
		return arrow.FixedWidthTypes.Boolean, nil
	case types.ValueTypeUnixTimestamp:
		return timestampType, nil
	case types.ValueTypeNull, types.ValueTypeInvalid:
		return arrow.Null, nil
	}
	if t.IsList() {
		elem, err := ArrowType(t.Elem())
		if err != nil {
			return nil, err
		}
		return arrow.ListOf(elem), nil
	}
	return nil, fmt.Errorf("no arrow type for %s", t)
}

// ValueTypeOf maps an Arrow type back onto a value type. Narrow integers widen to INT32
// and large strings or binaries map onto their regular counterparts.
func ValueTypeOf(dt arrow.DataType) (types.ValueType, error) {
	switch dt.ID() {
	case arrow.BINARY, arrow.LARGE_BINARY:
		return types.ValueTypeBytes, nil
	case arrow.STRING, arrow.LARGE_STRING:
		return types.ValueTypeString, nil
	case arrow.INT8, arrow.INT16, arrow.INT32:
		return types.ValueTypeInt32, nil
	case arrow.INT64:
		return types.ValueTypeInt64, nil
	case arrow.FLOAT64:
		return types.ValueTypeDouble, nil
	case arrow.FLOAT32:
		return types.ValueTypeFloat, nil
	case arrow.BOOL:
		return types.ValueTypeBool, nil
	case arrow.TIMESTAMP:
		return types.ValueTypeUnixTimestamp, nil
	case arrow.NULL:
		return types.ValueTypeNull, nil
	case arrow.LIST:
		elem, err := ValueTypeOf(dt.(*arrow.ListType).Elem())
		if err != nil {
			return types.ValueTypeInvalid, err
		}
		if list := types.ListOf(elem); list != types.ValueTypeInvalid {
			return list, nil
		}
	}
	return types.ValueTypeInvalid, fmt.Errorf("unsupported arrow type %s", dt)
}

// Encode writes the batch as a single-record Arrow IPC stream.
func Encode(b *Batch) ([]byte, error) {
	rec, err := ToRecord(memory.NewGoAllocator(), b)
	if err != nil {
		return nil, err
	}
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(rec.Schema()))
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("write arrow record: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close arrow writer: %w", err)
	}
	return buf.Bytes(), nil
}

// ToRecord builds an Arrow record from the batch. The caller releases it.
func ToRecord(mem memory.Allocator, b *Batch) (arrow.Record, error) {
	fields := make([]arrow.Field, len(b.columns))
	arrays := make([]arrow.Array, 0, len(b.columns))
	defer func() {
		for _, a := range arrays {
			a.Release()
		}
	}()
	for i, c := range b.columns {
		dt, err := ArrowType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		fields[i] = arrow.Field{Name: c.Name, Type: dt, Nullable: true}
		arr, err := buildArray(mem, dt, c.Values)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		arrays = append(arrays, arr)
	}
	return array.NewRecord(arrow.NewSchema(fields, nil), arrays, int64(b.numRows)), nil
}

func buildArray(mem memory.Allocator, dt arrow.DataType, values []types.Value) (arrow.Array, error) {
	bldr := array.NewBuilder(mem, dt)
	defer bldr.Release()
	bldr.Reserve(len(values))
	for _, v := range values {
		if err := appendValue(bldr, v); err != nil {
			return nil, err
		}
	}
	return bldr.NewArray(), nil
}

func appendValue(bldr array.Builder, v types.Value) error {
	if v.IsNull() {
		bldr.AppendNull()
		return nil
	}
	ok := true
	switch b := bldr.(type) {
	case *array.BinaryBuilder:
		var x []byte
		if x, ok = v.Bytes(); ok {
			b.Append(x)
		}
	case *array.StringBuilder:
		var x string
		if x, ok = v.Str(); ok {
			b.Append(x)
		}
	case *array.Int32Builder:
		var x int32
		if x, ok = v.Int32(); ok {
			b.Append(x)
		}
	case *array.Int64Builder:
		var x int64
		if x, ok = v.Int64(); ok {
			b.Append(x)
		}
	case *array.Float64Builder:
		var x float64
		if x, ok = v.Double(); ok {
			b.Append(x)
		}
	case *array.Float32Builder:
		var x float32
		if x, ok = v.Float(); ok {
			b.Append(x)
		}
	case *array.BooleanBuilder:
		var x bool
		if x, ok = v.Bool(); ok {
			b.Append(x)
		}
	case *array.TimestampBuilder:
		var x time.Time
		if x, ok = v.Time(); ok {
			b.Append(arrow.Timestamp(x.UnixMicro()))
		}
	case *array.ListBuilder:
		if !v.Type().IsList() {
			ok = false
			break
		}
		b.Append(true)
		for _, e := range v.Elements() {
			if err := appendValue(b.ValueBuilder(), e); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported builder %T", bldr)
	}
	if !ok {
		return fmt.Errorf("cannot append %s value to %T", v.Type(), bldr)
	}
	return nil
}

// Decode reads every record of an Arrow IPC stream into one batch.
func Decode(data []byte) (*Batch, error) {
	r, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("open arrow stream: %w", err)
	}
	defer r.Release()

	schema := r.Schema()
	columns := make([]Column, schema.NumFields())
	for i, f := range schema.Fields() {
		t, err := ValueTypeOf(f.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", f.Name, err)
		}
		columns[i] = Column{Name: f.Name, Type: t}
	}

	numRows := 0
	for r.Next() {
		rec := r.Record()
		for i := range columns {
			values, err := arrayValues(rec.Column(i), columns[i].Type)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", columns[i].Name, err)
			}
			columns[i].Values = append(columns[i].Values, values...)
		}
		numRows += int(rec.NumRows())
	}
	if err := r.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read arrow stream: %w", err)
	}
	for i := range columns {
		if columns[i].Values == nil {
			columns[i].Values = []types.Value{}
		}
	}
	return NewBatch(numRows, columns...)
}

// FromRecord converts a single Arrow record.
func FromRecord(rec arrow.Record) (*Batch, error) {
	columns := make([]Column, rec.NumCols())
	for i, f := range rec.Schema().Fields() {
		t, err := ValueTypeOf(f.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", f.Name, err)
		}
		values, err := arrayValues(rec.Column(i), t)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", f.Name, err)
		}
		columns[i] = Column{Name: f.Name, Type: t, Values: values}
	}
	return NewBatch(int(rec.NumRows()), columns...)
}

func arrayValues(arr arrow.Array, t types.ValueType) ([]types.Value, error) {
	out := make([]types.Value, arr.Len())
	for i := range out {
		v, err := valueAt(arr, i, t)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func valueAt(arr arrow.Array, i int, t types.ValueType) (types.Value, error) {
	if arr.IsNull(i) {
		return types.NullValue(t), nil
	}
	switch a := arr.(type) {
	case *array.Binary:
		return types.BytesValue(a.Value(i)), nil
	case *array.LargeBinary:
		return types.BytesValue(a.Value(i)), nil
	case *array.String:
		return types.StringValue(a.Value(i)), nil
	case *array.LargeString:
		return types.StringValue(a.Value(i)), nil
	case *array.Int8:
		return types.Int32Value(int32(a.Value(i))), nil
	case *array.Int16:
		return types.Int32Value(int32(a.Value(i))), nil
	case *array.Int32:
		return types.Int32Value(a.Value(i)), nil
	case *array.Int64:
		return types.Int64Value(a.Value(i)), nil
	case *array.Float64:
		return types.DoubleValue(a.Value(i)), nil
	case *array.Float32:
		return types.FloatValue(a.Value(i)), nil
	case *array.Boolean:
		return types.BoolValue(a.Value(i)), nil
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return types.UnixTimestampValue(a.Value(i).ToTime(unit)), nil
	case *array.Null:
		return types.NullValue(t), nil
	case *array.List:
		start, end := a.ValueOffsets(i)
		child := a.ListValues()
		elems := make([]types.Value, 0, end-start)
		for j := start; j < end; j++ {
			e, err := valueAt(child, int(j), t.Elem())
			if err != nil {
				return types.Value{}, err
			}
			if e.IsNull() {
				return types.Value{}, fmt.Errorf("null element in %s", t)
			}
			elems = append(elems, e)
		}
		return types.ListFromValues(t, elems)
	}
	return types.Value{}, fmt.Errorf("unsupported arrow array %T", arr)
}
