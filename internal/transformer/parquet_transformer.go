package transformer

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/apache/arrow/go/v10/parquet"
	"github.com/apache/arrow/go/v10/parquet/compress"
	"github.com/apache/arrow/go/v10/parquet/file"
	"github.com/apache/arrow/go/v10/parquet/pqarrow"

	"github.com/chtzvt/bundleslurp/internal/record"
)

const parquetChunkSize = 4096

// ParquetTransformer writes one parquet file per part, columns in
// record.Columns order. Text columns are nullable strings, list columns are
// list<string>, integer columns are int32.
type ParquetTransformer struct {
	Codec compress.Compression
}

func newParquetTransformer(opts map[string]interface{}) (Transformer, error) {
	codec := compress.Codecs.Snappy
	if name, ok := opts["codec"].(string); ok {
		switch name {
		case "snappy":
		case "gzip":
			codec = compress.Codecs.Gzip
		case "zstd":
			codec = compress.Codecs.Zstd
		case "none", "uncompressed":
			codec = compress.Codecs.Uncompressed
		default:
			return nil, fmt.Errorf("parquet transformer: unknown codec %q", name)
		}
	}
	return &ParquetTransformer{Codec: codec}, nil
}

// Schema is the arrow schema of the report table.
func Schema() *arrow.Schema {
	fields := make([]arrow.Field, len(record.Columns))
	for i, c := range record.Columns {
		switch {
		case c == record.FieldBundleID:
			fields[i] = arrow.Field{Name: c, Type: arrow.BinaryTypes.String}
		case record.IsIntColumn(c):
			fields[i] = arrow.Field{Name: c, Type: arrow.PrimitiveTypes.Int32}
		case record.IsListColumn(c):
			fields[i] = arrow.Field{Name: c, Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true}
		default:
			fields[i] = arrow.Field{Name: c, Type: arrow.BinaryTypes.String, Nullable: true}
		}
	}
	return arrow.NewSchema(fields, nil)
}

func (p *ParquetTransformer) Encode(w io.Writer, recs []record.FlatRecord) error {
	mem := memory.NewGoAllocator()
	schema := Schema()

	cols := make([]arrow.Array, len(record.Columns))
	defer func() {
		for _, c := range cols {
			if c != nil {
				c.Release()
			}
		}
	}()
	for i, c := range record.Columns {
		cols[i] = buildColumn(mem, c, recs)
	}

	rec := array.NewRecord(schema, cols, int64(len(recs)))
	defer rec.Release()
	table := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer table.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(p.Codec), parquet.WithDictionaryDefault(false))
	return pqarrow.WriteTable(table, w, parquetChunkSize, props, pqarrow.DefaultWriterProps())
}

func buildColumn(mem memory.Allocator, field string, recs []record.FlatRecord) arrow.Array {
	switch {
	case record.IsIntColumn(field):
		b := array.NewInt32Builder(mem)
		defer b.Release()
		for i := range recs {
			v, _ := recs[i].Int(field)
			b.Append(int32(v))
		}
		return b.NewArray()
	case record.IsListColumn(field):
		b := array.NewListBuilder(mem, arrow.BinaryTypes.String)
		defer b.Release()
		vb := b.ValueBuilder().(*array.StringBuilder)
		for i := range recs {
			vals := recs[i].List(field)
			if vals == nil {
				b.AppendNull()
				continue
			}
			b.Append(true)
			for _, v := range vals {
				vb.Append(v)
			}
		}
		return b.NewArray()
	default:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		for i := range recs {
			if s := recs[i].String(field); s != nil {
				b.Append(*s)
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray()
	}
}

// Decode reads a whole parquet file back into records.
func (p *ParquetTransformer) Decode(r io.Reader) ([]record.FlatRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	table, err := ReadParquetTable(context.Background(), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer table.Release()
	return recordsFromTable(table)
}

// ReadParquetTable loads a parquet file into an arrow table.
func ReadParquetTable(ctx context.Context, r parquet.ReaderAtSeeker) (arrow.Table, error) {
	pf, err := file.NewParquetReader(r)
	if err != nil {
		return nil, err
	}
	defer pf.Close()
	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		return nil, err
	}
	return reader.ReadTable(ctx)
}

func recordsFromTable(table arrow.Table) ([]record.FlatRecord, error) {
	out := make([]record.FlatRecord, table.NumRows())
	schema := table.Schema()
	for ci, f := range schema.Fields() {
		row := 0
		for _, chunk := range table.Column(ci).Data().Chunks() {
			for i := 0; i < chunk.Len(); i++ {
				if err := setFromArray(&out[row], f.Name, chunk, i); err != nil {
					return nil, err
				}
				row++
			}
		}
	}
	return out, nil
}

func setFromArray(rec *record.FlatRecord, field string, arr arrow.Array, i int) error {
	switch a := arr.(type) {
	case *array.Int32:
		return rec.SetInt(field, int(a.Value(i)))
	case *array.String:
		if a.IsNull(i) {
			return nil
		}
		if field == record.FieldBundleID {
			rec.BundleID = a.Value(i)
			return nil
		}
		return rec.SetString(field, a.Value(i))
	case *array.List:
		if a.IsNull(i) {
			return nil
		}
		offsets := a.Offsets()
		values, ok := a.ListValues().(*array.String)
		if !ok {
			return fmt.Errorf("column %s: unexpected list element type %s", field, a.ListValues().DataType())
		}
		vals := make([]string, 0, offsets[i+1]-offsets[i])
		for j := offsets[i]; j < offsets[i+1]; j++ {
			vals = append(vals, values.Value(int(j)))
		}
		return rec.SetList(field, vals)
	}
	return fmt.Errorf("column %s: unsupported arrow type %s", field, arr.DataType())
}

func (p *ParquetTransformer) Extension() string { return "parquet" }

func init() {
	Register("parquet", newParquetTransformer)
}
