package testutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// Patient describes the fields of one clinical transaction used to build a
// test bundle. Empty strings leave the corresponding resource field out.
type Patient struct {
	SubscriberID  string
	PatientID     string
	MedicalRecord string
	Name          string
	Gender        string
	BirthDate     string
	Address       string
	Doctor        string
	Hospital      string
	Faculty       string
	Room          string
	Diagnose      string
	Requester     string
	Services      []string
}

// FullPatient returns a transaction with every field populated.
func FullPatient(name string) Patient {
	return Patient{
		SubscriberID:  "SUB-" + name,
		PatientID:     "PID-" + name,
		MedicalRecord: "MR-" + name,
		Name:          name,
		Gender:        "female",
		BirthDate:     "1990-04-01",
		Address:       "12 Tran Phu, Hanoi",
		Doctor:        "Dr. Nguyen",
		Hospital:      "City General",
		Faculty:       "Cardiology",
		Room:          "Room 204",
		Diagnose:      "Hypertension",
		Requester:     "Dr. Requester",
		Services:      []string{"ECG", "Blood panel"},
	}
}

// SubEntry renders the resource list of one transaction in the order
// upstream emits it: patient, practitioner, organization, faculty, room,
// request.
func (p Patient) SubEntry() map[string]interface{} {
	patient := map[string]interface{}{"resourceType": "Patient"}
	if p.SubscriberID != "" {
		patient["subscriberId"] = p.SubscriberID
	}
	if p.PatientID != "" {
		patient["identifier"] = []interface{}{map[string]interface{}{"value": p.PatientID}}
	}
	if p.Name != "" {
		patient["name"] = []interface{}{map[string]interface{}{"text": p.Name}}
	}
	if p.Gender != "" {
		patient["gender"] = p.Gender
	}
	if p.BirthDate != "" {
		patient["birthDate"] = p.BirthDate
	}
	if p.Address != "" {
		patient["address"] = []interface{}{map[string]interface{}{"text": p.Address}}
	}

	practitioner := map[string]interface{}{"resourceType": "Practitioner"}
	if p.Doctor != "" {
		practitioner["name"] = []interface{}{map[string]interface{}{"text": p.Doctor}}
	}

	record := map[string]interface{}{"resourceType": "EpisodeOfCare"}
	if p.MedicalRecord != "" {
		record["identifier"] = []interface{}{map[string]interface{}{"value": p.MedicalRecord}}
	}

	resources := []interface{}{
		map[string]interface{}{"resource": patient},
		map[string]interface{}{"resource": record},
		map[string]interface{}{"resource": practitioner},
	}
	for _, org := range []string{p.Hospital, p.Faculty, p.Room} {
		if org != "" {
			resources = append(resources, map[string]interface{}{"resource": map[string]interface{}{"resourceType": "Organization", "name": org}})
		}
	}

	request := map[string]interface{}{"resourceType": "ServiceRequest"}
	if p.Diagnose != "" {
		request["reasonCode"] = []interface{}{map[string]interface{}{"text": p.Diagnose}}
	}
	if p.Requester != "" {
		request["requester"] = map[string]interface{}{"display": p.Requester}
	}
	resources = append(resources, map[string]interface{}{"resource": request})
	for _, s := range p.Services {
		resources = append(resources, map[string]interface{}{"resource": map[string]interface{}{
			"resourceType": "ServiceRequest",
			"code":         map[string]interface{}{"coding": []interface{}{map[string]interface{}{"display": s}}},
		}})
	}
	return map[string]interface{}{"entry": resources}
}

// Bundle renders a bundle document with one sub-entry per patient.
func Bundle(t testing.TB, id string, patients ...Patient) []byte {
	t.Helper()
	subs := make([]interface{}, 0, len(patients))
	for _, p := range patients {
		subs = append(subs, p.SubEntry())
	}
	doc := map[string]interface{}{
		"id":           id,
		"resourceType": "Bundle",
		"transactions": map[string]interface{}{"entry": subs},
	}
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	return b
}

// EmptyBundle renders a bundle without an entry list.
func EmptyBundle(t testing.TB, id string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{"id": id, "resourceType": "Bundle"})
	require.NoError(t, err)
	return b
}
