package transformer

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"

	"github.com/chtzvt/bundleslurp/internal/record"
)

// JSONLTransformer writes one JSON object per line.
type JSONLTransformer struct{}

func (j *JSONLTransformer) Encode(w io.Writer, recs []record.FlatRecord) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i := range recs {
		if err := enc.Encode(&recs[i]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (j *JSONLTransformer) Decode(r io.Reader) ([]record.FlatRecord, error) {
	dec := json.NewDecoder(r)
	var out []record.FlatRecord
	for {
		var rec record.FlatRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

func (j *JSONLTransformer) Extension() string { return "jsonl" }

func init() {
	Register("jsonl", func(map[string]interface{}) (Transformer, error) { return &JSONLTransformer{}, nil })
}
