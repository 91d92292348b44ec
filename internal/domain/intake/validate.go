package intake

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Field names a form control. Per-field rules only report errors for
// fields the user has interacted with.
type Field string

const (
	FieldPatient          Field = "patientId"
	FieldSymptoms         Field = "symptoms"
	FieldDuration         Field = "duration"
	FieldSeverity         Field = "severity"
	FieldOnset            Field = "onset"
	FieldBloodPressure    Field = "vitals.bloodPressure"
	FieldHeartRate        Field = "vitals.heartRate"
	FieldTemperature      Field = "vitals.temperature"
	FieldRespiratoryRate  Field = "vitals.respiratoryRate"
	FieldOxygenSaturation Field = "vitals.oxygenSaturation"
)

// AllFields lists every field with a per-field rule.
var AllFields = []Field{
	FieldPatient, FieldSymptoms, FieldDuration, FieldSeverity, FieldOnset,
	FieldBloodPressure, FieldHeartRate, FieldTemperature,
	FieldRespiratoryRate, FieldOxygenSaturation,
}

// FieldSet is the set of touched fields.
type FieldSet map[Field]bool

// NewFieldSet returns a set containing fields.
func NewFieldSet(fields ...Field) FieldSet {
	fs := make(FieldSet, len(fields))
	fs.Touch(fields...)
	return fs
}

// Touch marks fields as interacted with.
func (fs FieldSet) Touch(fields ...Field) {
	for _, f := range fields {
		fs[f] = true
	}
}

// Has reports whether f has been touched. A nil set has nothing touched.
func (fs FieldSet) Has(f Field) bool {
	return fs[f]
}

// Clone copies the set.
func (fs FieldSet) Clone() FieldSet {
	cp := make(FieldSet, len(fs))
	for f, v := range fs {
		if v {
			cp[f] = true
		}
	}
	return cp
}

// FieldError is one inline validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// TotalSections is the number of logical sections on the intake form:
// patient, symptoms, clinical details, vitals, labs and medications.
const TotalSections = 6

// ValidationReport is derived from a draft on every change and never
// persisted.
type ValidationReport struct {
	Errors            []FieldError `json:"errors"`
	CompletedSections int          `json:"completedSections"`
	TotalSections     int          `json:"totalSections"`
	IsValid           bool         `json:"isValid"`
}

// ErrorFor returns the first message reported for field, if any.
func (r ValidationReport) ErrorFor(field string) (string, bool) {
	for _, e := range r.Errors {
		if e.Field == field {
			return e.Message, true
		}
	}
	return "", false
}

const (
	minSymptomLength  = 3
	maxDurationLength = 100
)

type vitalRange struct {
	field    Field
	label    string
	unit     string
	min, max float64
}

var vitalRanges = []vitalRange{
	{FieldHeartRate, "Heart rate", "bpm", 30, 250},
	{FieldTemperature, "Temperature", "°C", 30, 45},
	{FieldRespiratoryRate, "Respiratory rate", "breaths/min", 5, 100},
	{FieldOxygenSaturation, "Oxygen saturation", "%", 50, 100},
}

var (
	durationPattern      = regexp.MustCompile(`(?i)^\d+(\.\d+)?\s*(day|week|month|year|hour|minute|second)s?$`)
	bloodPressurePattern = regexp.MustCompile(`(?i)^\d{2,3}(/\d{2,3}( ?mmhg)?)?$`)
)

// Validate computes the validation report for draft given the set of
// touched fields. It is a pure function of its arguments.
func Validate(draft CaseDraft, touched FieldSet) ValidationReport {
	report := ValidationReport{
		Errors:        []FieldError{},
		TotalSections: TotalSections,
	}

	hasPatient := strings.TrimSpace(draft.PatientID) != ""
	if !hasPatient {
		report.Errors = append(report.Errors, FieldError{
			Field:   string(FieldPatient),
			Message: "Please select a patient",
		})
	}

	hasSubjective := false
	for _, text := range draft.SubjectiveSymptoms() {
		if len([]rune(text)) >= minSymptomLength {
			hasSubjective = true
			break
		}
	}
	if !hasSubjective {
		report.Errors = append(report.Errors, FieldError{
			Field:   string(FieldSymptoms),
			Message: fmt.Sprintf("At least one subjective symptom of %d or more characters is required", minSymptomLength),
		})
	}

	symptomErrs := symptomErrors(draft.Symptoms)
	if touched.Has(FieldSymptoms) {
		report.Errors = append(report.Errors, symptomErrs...)
	}

	durationMsg := durationError(draft.Duration)
	if touched.Has(FieldDuration) && durationMsg != "" {
		report.Errors = append(report.Errors, FieldError{Field: string(FieldDuration), Message: durationMsg})
	}

	if touched.Has(FieldSeverity) && draft.Severity != "" && !validSeverities[draft.Severity] {
		report.Errors = append(report.Errors, FieldError{
			Field:   string(FieldSeverity),
			Message: "Severity must be mild, moderate or severe",
		})
	}
	if touched.Has(FieldOnset) && draft.Onset != "" && !validOnsets[draft.Onset] {
		report.Errors = append(report.Errors, FieldError{
			Field:   string(FieldOnset),
			Message: "Onset must be acute, chronic or subacute",
		})
	}

	vitalErrs := vitalErrors(draft.VitalSigns)
	for _, e := range vitalErrs {
		if touched.Has(Field(e.Field)) {
			report.Errors = append(report.Errors, e)
		}
	}

	// Section completion evaluates rules regardless of touched state.
	// Labs and medications have no rules and always count as complete.
	completed := 2
	if hasPatient {
		completed++
	}
	if hasSubjective && len(symptomErrs) == 0 {
		completed++
	}
	if strings.TrimSpace(draft.Duration) != "" && durationMsg == "" {
		completed++
	}
	if len(vitalErrs) == 0 {
		completed++
	}
	report.CompletedSections = completed

	report.IsValid = hasPatient && hasSubjective && len(report.Errors) == 0
	return report
}

func symptomErrors(symptoms []Symptom) []FieldError {
	var errs []FieldError
	for i, s := range symptoms {
		if len([]rune(strings.TrimSpace(s.Text))) < minSymptomLength {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("symptoms[%d].text", i),
				Message: fmt.Sprintf("Symptom description must be at least %d characters", minSymptomLength),
			})
		}
	}
	return errs
}

func durationError(duration string) string {
	d := strings.TrimSpace(duration)
	if d == "" {
		return ""
	}
	if utf8.RuneCountInString(d) > maxDurationLength {
		return fmt.Sprintf("Duration must be between 1 and %d characters", maxDurationLength)
	}
	if !durationPattern.MatchString(d) {
		return "Duration must be a number followed by a unit, e.g. \"3 days\" or \"2 weeks\""
	}
	return ""
}

func vitalErrors(v VitalSigns) []FieldError {
	var errs []FieldError
	if bp := strings.TrimSpace(v.BloodPressure); bp != "" && !bloodPressurePattern.MatchString(bp) {
		errs = append(errs, FieldError{
			Field:   string(FieldBloodPressure),
			Message: "Blood pressure must look like 120, 120/80 or 120/80 mmHg",
		})
	}
	values := map[Field]*float64{
		FieldHeartRate:        v.HeartRate,
		FieldTemperature:      v.Temperature,
		FieldRespiratoryRate:  v.RespiratoryRate,
		FieldOxygenSaturation: v.OxygenSaturation,
	}
	for _, r := range vitalRanges {
		val := values[r.field]
		if val == nil {
			continue
		}
		if *val < r.min || *val > r.max {
			errs = append(errs, FieldError{
				Field:   string(r.field),
				Message: fmt.Sprintf("%s must be between %g and %g %s", r.label, r.min, r.max, r.unit),
			})
		}
	}
	return errs
}
