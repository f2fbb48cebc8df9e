package extractor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chtzvt/bundleslurp/internal/record"
	"github.com/chtzvt/bundleslurp/internal/testutil"
)

var fixedNow = time.Date(2024, 3, 7, 10, 30, 0, 0, time.UTC)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	ex, err := New(DefaultRules(), testutil.FixedClock(fixedNow), time.UTC)
	require.NoError(t, err)
	return ex
}

func TestExtract_FullSubEntries(t *testing.T) {
	ex := newTestExtractor(t)
	raw := testutil.Bundle(t, "bundle-a", testutil.FullPatient("Alice"), testutil.FullPatient("Bob"))

	res, err := ex.Extract(raw)
	require.NoError(t, err)
	require.Empty(t, res.Skipped)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "bundle-a", res.BundleID)

	alice := res.Records[0]
	assert.Equal(t, "bundle-a", alice.BundleID)
	assert.Equal(t, 0, alice.SubEntryIndex)
	assert.Equal(t, "SUB-Alice", *alice.SubscriberID)
	assert.Equal(t, []string{"PID-Alice", "MR-Alice"}, alice.IdentifierCodes)
	assert.Equal(t, "PID-Alice", *alice.PatientID)
	assert.Equal(t, "MR-Alice", *alice.MedicalRecordID)
	assert.Equal(t, "Alice", *alice.PatientName)
	assert.Equal(t, "female", *alice.Gender)
	assert.Equal(t, "1990-04-01", *alice.BirthDate)
	assert.Equal(t, "12 Tran Phu, Hanoi", *alice.Address)
	assert.Equal(t, "Dr. Nguyen", *alice.DoctorName)
	assert.Equal(t, "City General", *alice.HospitalName)
	assert.Equal(t, "Cardiology", *alice.FacultyName)
	assert.Equal(t, "Room 204", *alice.RoomName)
	assert.Equal(t, "Hypertension", *alice.DiagnoseText)
	assert.Equal(t, "Dr. Requester", *alice.RequesterName)
	assert.Equal(t, []string{"ECG", "Blood panel"}, alice.ServiceNames)
	assert.Equal(t, record.PartitionKey{Year: 2024, Month: 3, Day: 7}, alice.Key())

	assert.Equal(t, 1, res.Records[1].SubEntryIndex)
	assert.Equal(t, "Bob", *res.Records[1].PatientName)
}

func TestExtract_NoEntryList(t *testing.T) {
	ex := newTestExtractor(t)

	res, err := ex.Extract(testutil.EmptyBundle(t, "bundle-b"))
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Empty(t, res.Skipped)

	res, err = ex.Extract(testutil.Bundle(t, "bundle-b"))
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Empty(t, res.Skipped)
}

func TestExtract_MissingFieldsAreAbsent(t *testing.T) {
	ex := newTestExtractor(t)
	p := testutil.FullPatient("Carol")
	p.Gender = ""
	p.Diagnose = ""
	p.Services = nil

	res, err := ex.Extract(testutil.Bundle(t, "bundle-c", p))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.Nil(t, rec.Gender)
	assert.Nil(t, rec.DiagnoseText)
	assert.NotNil(t, rec.ServiceNames)
	assert.Empty(t, rec.ServiceNames)
	assert.Equal(t, "Carol", *rec.PatientName)
	assert.Equal(t, "Dr. Requester", *rec.RequesterName)
}

func TestExtract_ShortNameListLeavesTrailingPositionsAbsent(t *testing.T) {
	ex := newTestExtractor(t)
	p := testutil.FullPatient("Dan")
	p.Faculty = ""
	p.Room = ""

	res, err := ex.Extract(testutil.Bundle(t, "bundle-d", p))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.Equal(t, "City General", *rec.HospitalName)
	assert.Nil(t, rec.FacultyName)
	assert.Nil(t, rec.RoomName)
}

func TestExtract_PositionalNamesShiftWhenEarlierNameMissing(t *testing.T) {
	ex := newTestExtractor(t)
	p := testutil.FullPatient("Eve")
	p.Doctor = ""

	res, err := ex.Extract(testutil.Bundle(t, "bundle-e", p))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	// Name positions follow emission order, so every later slot moves up.
	assert.Nil(t, rec.DoctorName)
	assert.Equal(t, "Cardiology", *rec.HospitalName)
	assert.Equal(t, "Room 204", *rec.FacultyName)
	assert.Nil(t, rec.RoomName)
}

func TestExtract_PartitionFromClockNotDocument(t *testing.T) {
	raw := []byte(`{"id":"x","meta":{"lastUpdated":"2019-01-01T00:00:00Z"},
		"transactions":{"entry":[{"entry":[{"resource":{"gender":"male","birthDate":"2019-01-01"}}]}]}}`)

	ex, err := New(DefaultRules(), testutil.FixedClock(time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)), time.UTC)
	require.NoError(t, err)
	res, err := ex.Extract(raw)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, record.PartitionKey{Year: 2025, Month: 12, Day: 31}, res.Records[0].Key())

	// Same instant seen from a zone east of UTC lands on the next day.
	loc := time.FixedZone("ICT", 7*60*60)
	ex, err = New(DefaultRules(), testutil.FixedClock(time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)), loc)
	require.NoError(t, err)
	res, err = ex.Extract(raw)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, record.PartitionKey{Year: 2026, Month: 1, Day: 1}, res.Records[0].Key())
}

func TestExtract_Deterministic(t *testing.T) {
	ex := newTestExtractor(t)
	raw := testutil.Bundle(t, "bundle-f", testutil.FullPatient("Fay"), testutil.FullPatient("Gus"))

	first, err := ex.Extract(raw)
	require.NoError(t, err)
	second, err := ex.Extract(raw)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExtract_MalformedSubEntrySkipped(t *testing.T) {
	ex := newTestExtractor(t)
	raw := []byte(`{"id":"m","transactions":{"entry":[
		{"entry":[{"resource":{"gender":"male"}}]},
		{"entry":"oops"},
		{"entry":[{"resource":42}]},
		{"entry":[{"resource":{"gender":"female"}}]}
	]}}`)

	res, err := ex.Extract(raw)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	require.Len(t, res.Skipped, 2)
	for _, e := range res.Skipped {
		assert.ErrorIs(t, e, ErrMalformedSubEntry)
	}
	assert.Equal(t, 0, res.Records[0].SubEntryIndex)
	assert.Equal(t, "male", *res.Records[0].Gender)
	assert.Equal(t, 3, res.Records[1].SubEntryIndex)
	assert.Equal(t, "female", *res.Records[1].Gender)
}

func TestExtract_SubEntryWithoutResourcesStillEmitted(t *testing.T) {
	ex := newTestExtractor(t)
	for _, sub := range []string{`{}`, `null`, `{"entry":null}`, `{"entry":[]}`} {
		t.Run(sub, func(t *testing.T) {
			res, err := ex.Extract([]byte(`{"id":"x","transactions":{"entry":[` + sub + `]}}`))
			require.NoError(t, err)
			require.Empty(t, res.Skipped)
			require.Len(t, res.Records, 1)

			rec := res.Records[0]
			assert.Equal(t, "x", rec.BundleID)
			assert.Equal(t, 0, rec.SubEntryIndex)
			assert.Nil(t, rec.PatientName)
			assert.Nil(t, rec.Gender)
			assert.Nil(t, rec.SubscriberID)
			assert.Empty(t, rec.ServiceNames)
			assert.Equal(t, record.PartitionKey{Year: 2024, Month: 3, Day: 7}, rec.Key())
		})
	}
}

func TestExtract_SubEntryNotObjectSkipped(t *testing.T) {
	ex := newTestExtractor(t)
	res, err := ex.Extract([]byte(`{"id":"y","transactions":{"entry":[7,{"entry":[]}]}}`))
	require.NoError(t, err)
	require.Len(t, res.Skipped, 1)
	assert.ErrorIs(t, res.Skipped[0], ErrMalformedSubEntry)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 1, res.Records[0].SubEntryIndex)
}

func TestExtract_ServiceNamesDropCodesWithoutDisplay(t *testing.T) {
	ex := newTestExtractor(t)
	raw := []byte(`{"id":"s","transactions":{"entry":[{"entry":[
		{"resource":{"code":{"coding":[{"display":"ECG"}]}}},
		{"resource":{"code":{"coding":[{"system":"loinc"}]}}},
		{"resource":{"code":{"coding":[]}}},
		{"resource":{"code":{"coding":[{"display":"X-ray"}]}}}
	]}]}}`)

	res, err := ex.Extract(raw)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, []string{"ECG", "X-ray"}, res.Records[0].ServiceNames)
}

func TestExtract_EntryListNotArray(t *testing.T) {
	ex := newTestExtractor(t)
	res, err := ex.Extract([]byte(`{"id":"n","transactions":{"entry":{"entry":[]}}}`))
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	require.Len(t, res.Skipped, 1)
	assert.ErrorIs(t, res.Skipped[0], ErrMalformedSubEntry)
}

func TestExtract_ParseErrors(t *testing.T) {
	ex := newTestExtractor(t)

	_, err := ex.Extract([]byte(`{"id":`))
	assert.Error(t, err)

	_, err = ex.Extract([]byte(`[1,2,3]`))
	assert.ErrorIs(t, err, ErrNotObject)
}

func TestExtract_IdentifierCodesSkipEmptyIdentifiers(t *testing.T) {
	ex := newTestExtractor(t)
	raw := []byte(`{"id":"i","transactions":{"entry":[{"entry":[
		{"resource":{"identifier":[{"value":"A"},{"value":"A2"}]}},
		{"resource":{"identifier":[]}},
		{"resource":{"identifier":[{"system":"x"}]}},
		{"resource":{"identifier":[{"value":"B"}]}}
	]}]}}`)

	res, err := ex.Extract(raw)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, []string{"A", "B"}, res.Records[0].IdentifierCodes)
}

func TestThreeDocumentScenario(t *testing.T) {
	ex := newTestExtractor(t)
	carol := testutil.FullPatient("Carol")
	carol.Gender = ""
	carol.Diagnose = ""

	docs := [][]byte{
		testutil.Bundle(t, "A", testutil.FullPatient("Alice"), testutil.FullPatient("Bob")),
		testutil.EmptyBundle(t, "B"),
		testutil.Bundle(t, "C", carol),
	}

	var all []record.FlatRecord
	for _, d := range docs {
		res, err := ex.Extract(d)
		require.NoError(t, err)
		all = append(all, res.Records...)
	}
	require.Len(t, all, 3)
	assert.Equal(t, "A", all[0].BundleID)
	assert.Equal(t, "A", all[1].BundleID)
	assert.Equal(t, "C", all[2].BundleID)
	assert.Nil(t, all[2].Gender)
	assert.Nil(t, all[2].DiagnoseText)
}

func TestRuleValidate(t *testing.T) {
	cases := []struct {
		name string
		rule Rule
		ok   bool
	}{
		{"text ok", Rule{Field: record.FieldGender, Path: []string{"resource", "gender"}}, true},
		{"collect on text column", Rule{Field: record.FieldGender, Path: []string{"x"}, Strategy: Collect}, false},
		{"text strategy on list column", Rule{Field: record.FieldServiceNames, Path: []string{"x"}}, false},
		{"negative index", Rule{Field: record.FieldRoomName, Path: []string{"x"}, Strategy: FixedIndex, Index: -1}, false},
		{"empty path", Rule{Field: record.FieldRoomName}, false},
		{"unknown strategy", Rule{Field: record.FieldRoomName, Path: []string{"x"}, Strategy: Strategy(9)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rule.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}

	_, err := New([]Rule{{Field: "nope", Path: []string{"x"}}}, nil, nil)
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	rules, err := ForName("report")
	require.NoError(t, err)
	assert.Len(t, rules, len(DefaultRules()))

	_, err = ForName("missing")
	assert.Error(t, err)

	Register("gender-only", func() []Rule {
		return []Rule{{Field: record.FieldGender, Path: []string{"resource", "gender"}}}
	})
	rules, err = ForName("gender-only")
	require.NoError(t, err)
	require.Len(t, rules, 1)
}
