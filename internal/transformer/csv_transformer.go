package transformer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/chtzvt/bundleslurp/internal/record"
)

// CSVTransformer writes a header row followed by one row per record. List
// columns are rendered as JSON arrays; absent values are empty cells.
type CSVTransformer struct {
	Fields []string
}

func newCSVTransformer(opts map[string]interface{}) (Transformer, error) {
	raw, _ := opts["fields"].([]interface{})
	if len(raw) == 0 {
		return &CSVTransformer{Fields: record.Columns}, nil
	}
	fields := make([]string, len(raw))
	for i, f := range raw {
		name, _ := f.(string)
		if !isColumn(name) {
			return nil, fmt.Errorf("csv transformer: unknown field %q", name)
		}
		fields[i] = name
	}
	return &CSVTransformer{Fields: fields}, nil
}

func isColumn(name string) bool {
	for _, c := range record.Columns {
		if c == name {
			return true
		}
	}
	return false
}

func (c *CSVTransformer) Encode(w io.Writer, recs []record.FlatRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(c.Fields); err != nil {
		return err
	}
	row := make([]string, len(c.Fields))
	for i := range recs {
		for j, f := range c.Fields {
			cell, err := csvCell(&recs[i], f)
			if err != nil {
				return err
			}
			row[j] = cell
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvCell(r *record.FlatRecord, field string) (string, error) {
	switch {
	case record.IsListColumn(field):
		b, err := json.Marshal(r.List(field))
		return string(b), err
	case record.IsIntColumn(field):
		v, _ := r.Int(field)
		return strconv.Itoa(v), nil
	}
	if s := r.String(field); s != nil {
		return *s, nil
	}
	return "", nil
}

func (c *CSVTransformer) Extension() string { return "csv" }

func init() {
	Register("csv", newCSVTransformer)
}
