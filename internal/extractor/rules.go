package extractor

import (
	"fmt"

	"github.com/chtzvt/bundleslurp/internal/document"
	"github.com/chtzvt/bundleslurp/internal/record"
)

// Strategy selects how a rule resolves its field from the projected values.
type Strategy int

const (
	// FirstNonNull takes the first non-null projected value.
	FirstNonNull Strategy = iota
	// FixedIndex takes the non-null projected value at Index. Positions are
	// assigned by upstream array order, which no contract guarantees.
	FixedIndex
	// Collect keeps every non-null projected value, in order. Values that lack
	// the Then target are dropped, so positions are not preserved.
	Collect
)

func (s Strategy) String() string {
	switch s {
	case FirstNonNull:
		return "first-non-null"
	case FixedIndex:
		return "fixed-index"
	case Collect:
		return "collect"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// Rule maps one output column to a selection over the resources of a
// sub-entry. Path is projected across every resource, nulls are dropped, the
// strategy picks value(s) and Then walks into each picked value.
type Rule struct {
	Field    string
	Path     []string
	Strategy Strategy
	Index    int
	Then     []document.Step
}

// Validate checks that the rule targets a column its strategy can fill.
func (r Rule) Validate() error {
	switch r.Strategy {
	case FirstNonNull, FixedIndex:
		if !record.IsTextColumn(r.Field) {
			return fmt.Errorf("rule %s: %s needs a text column", r.Field, r.Strategy)
		}
		if r.Strategy == FixedIndex && r.Index < 0 {
			return fmt.Errorf("rule %s: negative index %d", r.Field, r.Index)
		}
	case Collect:
		if !record.IsListColumn(r.Field) {
			return fmt.Errorf("rule %s: collect needs a list column", r.Field)
		}
	default:
		return fmt.Errorf("rule %s: unknown strategy %v", r.Field, r.Strategy)
	}
	if len(r.Path) == 0 {
		return fmt.Errorf("rule %s: empty path", r.Field)
	}
	return nil
}

// apply resolves the rule against the resource wrappers of one sub-entry.
func (r Rule) apply(resources document.Value, rec *record.FlatRecord) error {
	vals := document.Compact(document.Pluck(resources, r.Path...))
	switch r.Strategy {
	case FirstNonNull:
		if len(vals) == 0 {
			return nil
		}
		return r.setText(rec, vals[0])
	case FixedIndex:
		if r.Index >= len(vals) {
			return nil
		}
		return r.setText(rec, vals[r.Index])
	case Collect:
		out := make([]string, 0, len(vals))
		for _, v := range vals {
			if s, ok := v.Walk(r.Then...).Text(); ok {
				out = append(out, s)
			}
		}
		return rec.SetList(r.Field, out)
	}
	return fmt.Errorf("unknown strategy %v", r.Strategy)
}

func (r Rule) setText(rec *record.FlatRecord, v document.Value) error {
	s, ok := v.Walk(r.Then...).Text()
	if !ok {
		return nil
	}
	return rec.SetString(r.Field, s)
}

// DefaultRules is the field mapping of the report table. Name positions
// (patient, doctor, hospital, faculty, room) follow the order in which
// upstream emits resources inside a sub-entry.
func DefaultRules() []Rule {
	res := func(field string) []string { return []string{"resource", field} }
	text := []document.Step{document.At(0), document.Key("text")}
	firstValue := []document.Step{document.At(0), document.Key("value")}

	return []Rule{
		{Field: record.FieldSubscriberID, Path: res("subscriberId"), Strategy: FirstNonNull},
		{Field: record.FieldIdentifierCodes, Path: res("identifier"), Strategy: Collect, Then: firstValue},
		{Field: record.FieldPatientID, Path: res("identifier"), Strategy: FixedIndex, Index: 0, Then: firstValue},
		{Field: record.FieldMedicalRecordID, Path: res("identifier"), Strategy: FixedIndex, Index: 1, Then: firstValue},
		{Field: record.FieldPatientName, Path: res("name"), Strategy: FixedIndex, Index: 0, Then: text},
		{Field: record.FieldGender, Path: res("gender"), Strategy: FirstNonNull},
		{Field: record.FieldBirthDate, Path: res("birthDate"), Strategy: FirstNonNull},
		{Field: record.FieldAddress, Path: res("address"), Strategy: FirstNonNull, Then: text},
		{Field: record.FieldDoctorName, Path: res("name"), Strategy: FixedIndex, Index: 1, Then: text},
		{Field: record.FieldHospitalName, Path: res("name"), Strategy: FixedIndex, Index: 2},
		{Field: record.FieldFacultyName, Path: res("name"), Strategy: FixedIndex, Index: 3},
		{Field: record.FieldRoomName, Path: res("name"), Strategy: FixedIndex, Index: 4},
		{Field: record.FieldDiagnoseText, Path: res("reasonCode"), Strategy: FirstNonNull, Then: text},
		{Field: record.FieldRequesterName, Path: res("requester"), Strategy: FirstNonNull, Then: []document.Step{document.Key("display")}},
		{Field: record.FieldServiceNames, Path: res("code"), Strategy: Collect, Then: []document.Step{document.Key("coding"), document.At(0), document.Key("display")}},
	}
}
