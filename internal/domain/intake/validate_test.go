package intake

import (
	"strings"
	"testing"
)

func ptrFloat(f float64) *float64 { return &f }

func minimalDraft() CaseDraft {
	d := NewDraft("p1")
	d.Symptoms = []Symptom{{Kind: SymptomSubjective, Text: "mild headache"}}
	return d
}

func TestValidate_MissingPatientIsNeverValid(t *testing.T) {
	drafts := []CaseDraft{
		NewDraft(""),
		func() CaseDraft { d := minimalDraft(); d.PatientID = ""; return d }(),
		func() CaseDraft { d := minimalDraft(); d.PatientID = "   "; d.Duration = "3 days"; return d }(),
	}
	for i, d := range drafts {
		r := Validate(d, NewFieldSet(AllFields...))
		if r.IsValid {
			t.Errorf("draft %d: expected invalid without patient", i)
		}
		if _, ok := r.ErrorFor(string(FieldPatient)); !ok {
			t.Errorf("draft %d: expected patientId error, got %+v", i, r.Errors)
		}
	}
}

func TestValidate_MinimalDraftIsValid(t *testing.T) {
	r := Validate(minimalDraft(), nil)
	if !r.IsValid {
		t.Fatalf("expected valid, got errors %+v", r.Errors)
	}
	if len(r.Errors) != 0 {
		t.Errorf("expected no errors, got %+v", r.Errors)
	}
	if r.TotalSections != 6 {
		t.Errorf("expected 6 total sections, got %d", r.TotalSections)
	}
}

func TestValidate_HardGateIgnoresTouchedState(t *testing.T) {
	d := NewDraft("p1")
	d.Symptoms = []Symptom{{Kind: SymptomObjective, Text: "rash on left arm"}}
	r := Validate(d, nil)
	if r.IsValid {
		t.Fatal("expected invalid without a subjective symptom")
	}
	if _, ok := r.ErrorFor(string(FieldSymptoms)); !ok {
		t.Errorf("expected symptoms gate error, got %+v", r.Errors)
	}
}

func TestValidate_SubjectiveSymptomTrimmed(t *testing.T) {
	d := NewDraft("p1")
	d.Symptoms = []Symptom{{Kind: SymptomSubjective, Text: "  ab  "}}
	if Validate(d, nil).IsValid {
		t.Error("expected two trimmed characters to fail the gate")
	}
	d.Symptoms[0].Text = "  abc "
	if !Validate(d, nil).IsValid {
		t.Error("expected three trimmed characters to pass the gate")
	}
}

func TestValidate_ShortSymptomOnlyReportedWhenTouched(t *testing.T) {
	d := minimalDraft()
	d.Symptoms = append(d.Symptoms, Symptom{Kind: SymptomObjective, Text: "ok"})

	if r := Validate(d, nil); !r.IsValid {
		t.Errorf("untouched short symptom should not block, got %+v", r.Errors)
	}

	r := Validate(d, NewFieldSet(FieldSymptoms))
	if r.IsValid {
		t.Fatal("expected invalid once symptoms touched")
	}
	if _, ok := r.ErrorFor("symptoms[1].text"); !ok {
		t.Errorf("expected symptoms[1].text error, got %+v", r.Errors)
	}
}

func TestValidate_Duration(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{"", true},
		{"3 days", true},
		{"2weeks", true},
		{"1 Month", true},
		{"10 hours", true},
		{"45 minutes", true},
		{"30 seconds", true},
		{"1.5 years", true},
		{"days", false},
		{"three days", false},
		{"3 fortnights", false},
		{"3" + strings.Repeat("0", 95) + " days", false},
	}
	for _, tt := range tests {
		d := minimalDraft()
		d.Duration = tt.value
		r := Validate(d, NewFieldSet(FieldDuration))
		_, hasErr := r.ErrorFor(string(FieldDuration))
		if hasErr == tt.ok {
			t.Errorf("duration %q: expected ok=%v, errors %+v", tt.value, tt.ok, r.Errors)
		}
	}
}

func TestValidate_DurationLengthCountsCharacters(t *testing.T) {
	d := minimalDraft()
	d.Duration = strings.Repeat("é", 60)
	r := Validate(d, NewFieldSet(FieldDuration))
	msg, ok := r.ErrorFor(string(FieldDuration))
	if !ok {
		t.Fatal("expected a duration error")
	}
	if strings.Contains(msg, "characters") {
		t.Errorf("60 characters is within the limit, got %q", msg)
	}

	d.Duration = strings.Repeat("é", 101)
	r = Validate(d, NewFieldSet(FieldDuration))
	if msg, _ := r.ErrorFor(string(FieldDuration)); !strings.Contains(msg, "characters") {
		t.Errorf("expected length error for 101 characters, got %q", msg)
	}
}

func TestValidate_BloodPressure(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{"120", true},
		{"120/80", true},
		{"120/80 mmHg", true},
		{"120/80mmHg", true},
		{"90/60", true},
		{"9/6", false},
		{"120/", false},
		{"high", false},
		{"1200/80", false},
		{"120 mmHg", false},
	}
	for _, tt := range tests {
		d := minimalDraft()
		d.VitalSigns.BloodPressure = tt.value
		r := Validate(d, NewFieldSet(FieldBloodPressure))
		if r.IsValid != tt.ok {
			t.Errorf("blood pressure %q: expected valid=%v, errors %+v", tt.value, tt.ok, r.Errors)
		}
	}
}

func TestValidate_VitalRanges(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		set   func(*VitalSigns, float64)
		value float64
		ok    bool
	}{
		{"hr low edge", FieldHeartRate, func(v *VitalSigns, f float64) { v.HeartRate = &f }, 30, true},
		{"hr high edge", FieldHeartRate, func(v *VitalSigns, f float64) { v.HeartRate = &f }, 250, true},
		{"hr too low", FieldHeartRate, func(v *VitalSigns, f float64) { v.HeartRate = &f }, 29, false},
		{"hr too high", FieldHeartRate, func(v *VitalSigns, f float64) { v.HeartRate = &f }, 251, false},
		{"temp ok", FieldTemperature, func(v *VitalSigns, f float64) { v.Temperature = &f }, 37.2, true},
		{"temp high", FieldTemperature, func(v *VitalSigns, f float64) { v.Temperature = &f }, 45.1, false},
		{"rr low", FieldRespiratoryRate, func(v *VitalSigns, f float64) { v.RespiratoryRate = &f }, 4, false},
		{"rr ok", FieldRespiratoryRate, func(v *VitalSigns, f float64) { v.RespiratoryRate = &f }, 16, true},
		{"spo2 low", FieldOxygenSaturation, func(v *VitalSigns, f float64) { v.OxygenSaturation = &f }, 49, false},
		{"spo2 max", FieldOxygenSaturation, func(v *VitalSigns, f float64) { v.OxygenSaturation = &f }, 100, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := minimalDraft()
			tt.set(&d.VitalSigns, tt.value)

			untouched := Validate(d, nil)
			if !untouched.IsValid {
				t.Errorf("untouched vital should not block, got %+v", untouched.Errors)
			}

			r := Validate(d, NewFieldSet(tt.field))
			if r.IsValid != tt.ok {
				t.Errorf("expected valid=%v, got errors %+v", tt.ok, r.Errors)
			}
		})
	}
}

func TestValidate_AbsentVitalsAreValid(t *testing.T) {
	r := Validate(minimalDraft(), NewFieldSet(AllFields...))
	if !r.IsValid {
		t.Errorf("expected valid with every field touched and no vitals, got %+v", r.Errors)
	}
}

func TestValidate_CompletedSections(t *testing.T) {
	blank := Validate(NewDraft(""), nil)
	// vitals, labs and medications have nothing failing on a blank form
	if blank.CompletedSections != 3 {
		t.Errorf("blank draft: expected 3 sections, got %d", blank.CompletedSections)
	}

	d := minimalDraft()
	d.Duration = "3 days"
	full := Validate(d, nil)
	if full.CompletedSections != 6 {
		t.Errorf("complete draft: expected 6 sections, got %d", full.CompletedSections)
	}

	d.VitalSigns.HeartRate = ptrFloat(300)
	if got := Validate(d, nil).CompletedSections; got != 5 {
		t.Errorf("out-of-range vital: expected 5 sections, got %d", got)
	}
}

func TestValidate_LabsAndMedicationsAlwaysComplete(t *testing.T) {
	d := minimalDraft()
	d.Duration = "1 week"
	d.LabResults = []LabResult{{TestName: ""}}
	d.CurrentMedications = []Medication{{Name: ""}}
	if got := Validate(d, nil).CompletedSections; got != 6 {
		t.Errorf("expected labs and medications to count as complete, got %d", got)
	}
}

func TestValidate_Deterministic(t *testing.T) {
	d := minimalDraft()
	d.Duration = "bogus"
	touched := NewFieldSet(FieldDuration)
	a := Validate(d, touched)
	b := Validate(d, touched)
	if a.IsValid != b.IsValid || a.CompletedSections != b.CompletedSections || len(a.Errors) != len(b.Errors) {
		t.Errorf("expected identical reports, got %+v and %+v", a, b)
	}
}

func TestValidate_UntouchedFieldsDoNotBlock(t *testing.T) {
	d := minimalDraft()
	hr := 300.0
	d.VitalSigns.HeartRate = &hr
	d.Duration = "forever"

	if r := Validate(d, NewFieldSet()); !r.IsValid {
		t.Errorf("untouched fields must not block, got %+v", r.Errors)
	}
	if r := Validate(d, NewFieldSet(FieldHeartRate)); r.IsValid {
		t.Error("expected touched heart rate to block")
	}
	var empty FieldSet
	if empty.Has(FieldDuration) {
		t.Error("nil set should have nothing touched")
	}
}
