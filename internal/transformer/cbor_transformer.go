package transformer

import (
	"errors"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/chtzvt/bundleslurp/internal/record"
)

// CBORTransformer writes a sequence of CBOR maps, one per record.
type CBORTransformer struct{}

func (c *CBORTransformer) Encode(w io.Writer, recs []record.FlatRecord) error {
	enc := cbor.NewEncoder(w)
	for i := range recs {
		if err := enc.Encode(&recs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (c *CBORTransformer) Decode(r io.Reader) ([]record.FlatRecord, error) {
	dec := cbor.NewDecoder(r)
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

func (c *CBORTransformer) Extension() string { return "cbor" }

func init() {
	Register("cbor", func(map[string]interface{}) (Transformer, error) { return &CBORTransformer{}, nil })
}
