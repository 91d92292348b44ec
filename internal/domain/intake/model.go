package intake

import (
	"strings"
	"time"
)

// Severity is the patient-reported severity of the presenting complaint.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// Onset describes how the presenting complaint developed.
type Onset string

const (
	OnsetAcute    Onset = "acute"
	OnsetChronic  Onset = "chronic"
	OnsetSubacute Onset = "subacute"
)

// SymptomKind distinguishes patient-reported from clinician-observed findings.
type SymptomKind string

const (
	SymptomSubjective SymptomKind = "subjective"
	SymptomObjective  SymptomKind = "objective"
)

var validSeverities = map[Severity]bool{
	SeverityMild: true, SeverityModerate: true, SeveritySevere: true,
}

var validOnsets = map[Onset]bool{
	OnsetAcute: true, OnsetChronic: true, OnsetSubacute: true,
}

// Symptom is a single entry in the symptoms section of the intake form.
type Symptom struct {
	Kind SymptomKind `json:"kind"`
	Text string      `json:"text"`
}

// VitalSigns holds the optional vitals section. A nil pointer (or empty
// blood pressure) means the value was not recorded.
type VitalSigns struct {
	BloodPressure    string   `json:"bloodPressure,omitempty"`
	HeartRate        *float64 `json:"heartRate,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	RespiratoryRate  *float64 `json:"respiratoryRate,omitempty"`
	OxygenSaturation *float64 `json:"oxygenSaturation,omitempty"`
}

// Medication is a current medication listed on the intake form.
type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
}

// LabResult is a recent laboratory value listed on the intake form.
type LabResult struct {
	TestName       string `json:"testName"`
	Value          string `json:"value"`
	Unit           string `json:"unit,omitempty"`
	ReferenceRange string `json:"referenceRange,omitempty"`
}

// CaseDraft is the in-progress intake form for one patient.
type CaseDraft struct {
	PatientID          string       `json:"patientId"`
	Symptoms           []Symptom    `json:"symptoms"`
	VitalSigns         VitalSigns   `json:"vitalSigns"`
	Duration           string       `json:"duration"`
	Severity           Severity     `json:"severity"`
	Onset              Onset        `json:"onset"`
	MedicalHistory     []string     `json:"medicalHistory,omitempty"`
	Allergies          []string     `json:"allergies,omitempty"`
	CurrentMedications []Medication `json:"currentMedications,omitempty"`
	LabResults         []LabResult  `json:"labResults,omitempty"`
	SavedAt            time.Time    `json:"savedAt,omitempty"`
}

// NewDraft returns a blank draft for the patient with the form's default
// severity and onset selections.
func NewDraft(patientID string) CaseDraft {
	return CaseDraft{
		PatientID: patientID,
		Symptoms:  []Symptom{},
		Severity:  SeverityMild,
		Onset:     OnsetAcute,
	}
}

// Clone returns a deep copy so snapshots handed to other goroutines cannot
// observe later edits.
func (d CaseDraft) Clone() CaseDraft {
	cp := d
	cp.Symptoms = append([]Symptom(nil), d.Symptoms...)
	cp.MedicalHistory = append([]string(nil), d.MedicalHistory...)
	cp.Allergies = append([]string(nil), d.Allergies...)
	cp.CurrentMedications = append([]Medication(nil), d.CurrentMedications...)
	cp.LabResults = append([]LabResult(nil), d.LabResults...)
	cp.VitalSigns = d.VitalSigns.clone()
	if cp.Symptoms == nil {
		cp.Symptoms = []Symptom{}
	}
	return cp
}

func (v VitalSigns) clone() VitalSigns {
	cp := v
	cp.HeartRate = copyFloat(v.HeartRate)
	cp.Temperature = copyFloat(v.Temperature)
	cp.RespiratoryRate = copyFloat(v.RespiratoryRate)
	cp.OxygenSaturation = copyFloat(v.OxygenSaturation)
	return cp
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// SubjectiveSymptoms returns the trimmed text of every subjective symptom.
func (d CaseDraft) SubjectiveSymptoms() []string {
	var out []string
	for _, s := range d.Symptoms {
		if s.Kind == SymptomSubjective {
			out = append(out, strings.TrimSpace(s.Text))
		}
	}
	return out
}

// ObjectiveFindings returns the trimmed text of every objective symptom.
func (d CaseDraft) ObjectiveFindings() []string {
	var out []string
	for _, s := range d.Symptoms {
		if s.Kind == SymptomObjective {
			out = append(out, strings.TrimSpace(s.Text))
		}
	}
	return out
}

// DraftSnapshot is the cached form of a draft. The patient id is the cache
// key and is therefore not repeated in the payload.
type DraftSnapshot struct {
	Symptoms           []Symptom    `json:"symptoms"`
	VitalSigns         VitalSigns   `json:"vitalSigns"`
	Duration           string       `json:"duration"`
	Severity           Severity     `json:"severity"`
	Onset              Onset        `json:"onset"`
	MedicalHistory     []string     `json:"medicalHistory,omitempty"`
	Allergies          []string     `json:"allergies,omitempty"`
	CurrentMedications []Medication `json:"currentMedications,omitempty"`
	LabResults         []LabResult  `json:"labResults,omitempty"`
	SavedAt            time.Time    `json:"savedAt"`
}

// Snapshot strips the patient id and stamps the save time.
func (d CaseDraft) Snapshot(savedAt time.Time) DraftSnapshot {
	c := d.Clone()
	return DraftSnapshot{
		Symptoms:           c.Symptoms,
		VitalSigns:         c.VitalSigns,
		Duration:           c.Duration,
		Severity:           c.Severity,
		Onset:              c.Onset,
		MedicalHistory:     c.MedicalHistory,
		Allergies:          c.Allergies,
		CurrentMedications: c.CurrentMedications,
		LabResults:         c.LabResults,
		SavedAt:            savedAt,
	}
}

// Restore rebuilds a draft for patientID from a cached snapshot.
func (s DraftSnapshot) Restore(patientID string) CaseDraft {
	d := CaseDraft{
		PatientID:          patientID,
		Symptoms:           s.Symptoms,
		VitalSigns:         s.VitalSigns,
		Duration:           s.Duration,
		Severity:           s.Severity,
		Onset:              s.Onset,
		MedicalHistory:     s.MedicalHistory,
		Allergies:          s.Allergies,
		CurrentMedications: s.CurrentMedications,
		LabResults:         s.LabResults,
		SavedAt:            s.SavedAt,
	}
	if d.Severity == "" {
		d.Severity = SeverityMild
	}
	if d.Onset == "" {
		d.Onset = OnsetAcute
	}
	return d.Clone()
}
