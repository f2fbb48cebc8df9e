package record

import (
	"fmt"
)

// Column names, as written to the warehouse table.
const (
	FieldBundleID        = "bundleId"
	FieldSubEntryIndex   = "subEntryIndex"
	FieldSubscriberID    = "subscriberId"
	FieldIdentifierCodes = "identifierCodes"
	FieldPatientID       = "patientId"
	FieldMedicalRecordID = "medicalRecordId"
	FieldPatientName     = "patientName"
	FieldGender          = "gender"
	FieldBirthDate       = "birthDate"
	FieldAddress         = "address"
	FieldDoctorName      = "doctorName"
	FieldFacultyName     = "facultyName"
	FieldRoomName        = "roomName"
	FieldHospitalName    = "hospitalName"
	FieldDiagnoseText    = "diagnoseText"
	FieldRequesterName   = "requesterName"
	FieldServiceNames    = "serviceNames"
	FieldYear            = "year"
	FieldMonth           = "month"
	FieldDay             = "day"
)

// Columns lists every column in table order.
var Columns = []string{
	FieldBundleID, FieldSubEntryIndex, FieldSubscriberID, FieldIdentifierCodes,
	FieldPatientID, FieldMedicalRecordID, FieldPatientName, FieldGender,
	FieldBirthDate, FieldAddress, FieldDoctorName, FieldFacultyName,
	FieldRoomName, FieldHospitalName, FieldDiagnoseText, FieldRequesterName,
	FieldServiceNames, FieldYear, FieldMonth, FieldDay,
}

// FlatRecord is one flattened sub-entry of a bundle. Nil pointers are absent
// values. Year, Month and Day hold the processing date, never a document date.
type FlatRecord struct {
	BundleID        string   `json:"bundleId" cbor:"bundleId"`
	SubEntryIndex   int      `json:"subEntryIndex" cbor:"subEntryIndex"`
	SubscriberID    *string  `json:"subscriberId" cbor:"subscriberId"`
	IdentifierCodes []string `json:"identifierCodes" cbor:"identifierCodes"`
	PatientID       *string  `json:"patientId" cbor:"patientId"`
	MedicalRecordID *string  `json:"medicalRecordId" cbor:"medicalRecordId"`
	PatientName     *string  `json:"patientName" cbor:"patientName"`
	Gender          *string  `json:"gender" cbor:"gender"`
	BirthDate       *string  `json:"birthDate" cbor:"birthDate"`
	Address         *string  `json:"address" cbor:"address"`
	DoctorName      *string  `json:"doctorName" cbor:"doctorName"`
	FacultyName     *string  `json:"facultyName" cbor:"facultyName"`
	RoomName        *string  `json:"roomName" cbor:"roomName"`
	HospitalName    *string  `json:"hospitalName" cbor:"hospitalName"`
	DiagnoseText    *string  `json:"diagnoseText" cbor:"diagnoseText"`
	RequesterName   *string  `json:"requesterName" cbor:"requesterName"`
	ServiceNames    []string `json:"serviceNames" cbor:"serviceNames"`
	Year            int      `json:"year" cbor:"year"`
	Month           int      `json:"month" cbor:"month"`
	Day             int      `json:"day" cbor:"day"`
}

// Key returns the record's partition key.
func (r *FlatRecord) Key() PartitionKey {
	return PartitionKey{Year: r.Year, Month: r.Month, Day: r.Day}
}

// SetPartition stamps the partition columns.
func (r *FlatRecord) SetPartition(k PartitionKey) {
	r.Year, r.Month, r.Day = k.Year, k.Month, k.Day
}

func (r *FlatRecord) stringField(field string) (**string, bool) {
	switch field {
	case FieldSubscriberID:
		return &r.SubscriberID, true
	case FieldPatientID:
		return &r.PatientID, true
	case FieldMedicalRecordID:
		return &r.MedicalRecordID, true
	case FieldPatientName:
		return &r.PatientName, true
	case FieldGender:
		return &r.Gender, true
	case FieldBirthDate:
		return &r.BirthDate, true
	case FieldAddress:
		return &r.Address, true
	case FieldDoctorName:
		return &r.DoctorName, true
	case FieldFacultyName:
		return &r.FacultyName, true
	case FieldRoomName:
		return &r.RoomName, true
	case FieldHospitalName:
		return &r.HospitalName, true
	case FieldDiagnoseText:
		return &r.DiagnoseText, true
	case FieldRequesterName:
		return &r.RequesterName, true
	}
	return nil, false
}

// SetString assigns an optional text column by name.
func (r *FlatRecord) SetString(field, value string) error {
	p, ok := r.stringField(field)
	if !ok {
		return fmt.Errorf("not a text column: %s", field)
	}
	s := value
	*p = &s
	return nil
}

// SetList assigns a list column by name.
func (r *FlatRecord) SetList(field string, values []string) error {
	switch field {
	case FieldIdentifierCodes:
		r.IdentifierCodes = values
	case FieldServiceNames:
		r.ServiceNames = values
	default:
		return fmt.Errorf("not a list column: %s", field)
	}
	return nil
}

// String returns the value of an optional text column by name.
func (r *FlatRecord) String(field string) *string {
	if field == FieldBundleID {
		return &r.BundleID
	}
	p, ok := r.stringField(field)
	if !ok {
		return nil
	}
	return *p
}

// IsTextColumn reports whether field names an optional text column.
func IsTextColumn(field string) bool {
	var r FlatRecord
	_, ok := r.stringField(field)
	return ok
}

// IsListColumn reports whether field names a list column.
func IsListColumn(field string) bool {
	return field == FieldIdentifierCodes || field == FieldServiceNames
}

// Int returns the value of an integer column by name.
func (r *FlatRecord) Int(field string) (int, bool) {
	switch field {
	case FieldSubEntryIndex:
		return r.SubEntryIndex, true
	case FieldYear:
		return r.Year, true
	case FieldMonth:
		return r.Month, true
	case FieldDay:
		return r.Day, true
	}
	return 0, false
}

// SetInt assigns an integer column by name.
func (r *FlatRecord) SetInt(field string, v int) error {
	switch field {
	case FieldSubEntryIndex:
		r.SubEntryIndex = v
	case FieldYear:
		r.Year = v
	case FieldMonth:
		r.Month = v
	case FieldDay:
		r.Day = v
	default:
		return fmt.Errorf("not an integer column: %s", field)
	}
	return nil
}

// List returns the value of a list column by name.
func (r *FlatRecord) List(field string) []string {
	switch field {
	case FieldIdentifierCodes:
		return r.IdentifierCodes
	case FieldServiceNames:
		return r.ServiceNames
	}
	return nil
}

// IsIntColumn reports whether field names an integer column.
func IsIntColumn(field string) bool {
	var r FlatRecord
	_, ok := r.Int(field)
	return ok
}
