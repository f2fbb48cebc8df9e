package extractor

import (
	"errors"
	"fmt"
	"time"

	"github.com/chtzvt/bundleslurp/internal/document"
	"github.com/chtzvt/bundleslurp/internal/record"
)

var (
	ErrNotObject         = errors.New("document is not a JSON object")
	ErrMalformedSubEntry = errors.New("malformed sub-entry")
)

// EntryListPath locates the sub-entries of a bundle.
var EntryListPath = []string{"transactions", "entry"}

// Clock returns the processing time used for partition columns.
type Clock func() time.Time

// Result is the outcome of flattening one bundle.
type Result struct {
	BundleID string
	Records  []record.FlatRecord
	// Skipped holds one error per sub-entry that could not be flattened.
	Skipped []error
}

// Extractor flattens bundle documents with a fixed rule set.
type Extractor struct {
	rules []Rule
	clock Clock
	loc   *time.Location
}

// New builds an extractor. A nil clock uses time.Now; a nil location keeps
// the clock's own location.
func New(rules []Rule, clock Clock, loc *time.Location) (*Extractor, error) {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	if clock == nil {
		clock = time.Now
	}
	return &Extractor{rules: rules, clock: clock, loc: loc}, nil
}

// Extract parses and flattens one raw document. The error is non-nil only
// when the document cannot be parsed as a JSON object at all.
func (e *Extractor) Extract(raw []byte) (Result, error) {
	doc, err := document.Parse(raw)
	if err != nil {
		return Result{}, fmt.Errorf("parse bundle: %w", err)
	}
	if !doc.IsObject() {
		return Result{}, ErrNotObject
	}
	return e.ExtractValue(doc), nil
}

// ExtractValue flattens an already parsed document. Every sub-entry under
// EntryListPath yields one record unless it is malformed, including one with
// no resources; a missing entry list yields no records.
func (e *Extractor) ExtractValue(doc document.Value) Result {
	now := e.clock()
	if e.loc != nil {
		now = now.In(e.loc)
	}
	key := record.PartitionFor(now)

	res := Result{}
	res.BundleID, _ = doc.Get("id").Text()

	entries := doc.Path(EntryListPath...)
	if !entries.Present() {
		return res
	}
	if !entries.IsArray() {
		res.Skipped = append(res.Skipped, fmt.Errorf("%w: %s is %s, not an array", ErrMalformedSubEntry, "transactions.entry", entries.Kind()))
		return res
	}

	for i, sub := range entries.Elems() {
		rec, err := e.flatten(res.BundleID, i, sub)
		if err != nil {
			res.Skipped = append(res.Skipped, err)
			continue
		}
		rec.SetPartition(key)
		res.Records = append(res.Records, rec)
	}
	return res
}

func (e *Extractor) flatten(bundleID string, idx int, sub document.Value) (rec record.FlatRecord, err error) {
	if sub.Present() && !sub.IsObject() {
		return rec, fmt.Errorf("%w %d: sub-entry is %s, not an object", ErrMalformedSubEntry, idx, sub.Kind())
	}
	resources := sub.Get("entry")
	// No resources at all still yields a record carrying only the bundle id.
	if !resources.Present() {
		return record.FlatRecord{BundleID: bundleID, SubEntryIndex: idx, ServiceNames: []string{}}, nil
	}
	if !resources.IsArray() {
		return rec, fmt.Errorf("%w %d: entry is %s, not an array", ErrMalformedSubEntry, idx, resources.Kind())
	}
	for j, r := range resources.Elems() {
		if res := r.Get("resource"); res.Present() && !res.IsObject() {
			return rec, fmt.Errorf("%w %d: resource %d is %s, not an object", ErrMalformedSubEntry, idx, j, res.Kind())
		}
	}

	rec = record.FlatRecord{BundleID: bundleID, SubEntryIndex: idx, ServiceNames: []string{}}
	for _, rule := range e.rules {
		if err := rule.apply(resources, &rec); err != nil {
			return record.FlatRecord{}, fmt.Errorf("%w %d: %s: %v", ErrMalformedSubEntry, idx, rule.Field, err)
		}
	}
	if rec.ServiceNames == nil {
		rec.ServiceNames = []string{}
	}
	return rec, nil
}
