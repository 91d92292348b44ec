package intake

import (
	"strings"
	"time"
)

// AnalysisRequest is the outbound case payload. It is built once per
// submission and not modified afterwards.
type AnalysisRequest struct {
	PatientID          string          `json:"patientId"`
	Symptoms           RequestSymptoms `json:"symptoms"`
	VitalSigns         VitalSigns      `json:"vitalSigns"`
	Duration           string          `json:"duration,omitempty"`
	Severity           Severity        `json:"severity"`
	Onset              Onset           `json:"onset"`
	MedicalHistory     []string        `json:"medicalHistory"`
	Allergies          []string        `json:"allergies"`
	CurrentMedications []Medication    `json:"currentMedications"`
	LabResults         []LabResult     `json:"labResults"`
	ConsentObtained    bool            `json:"patientConsent"`
	ConsentTimestamp   time.Time       `json:"consentTimestamp"`
}

// RequestSymptoms groups symptom text by kind the way the analysis service
// expects it.
type RequestSymptoms struct {
	Subjective []string `json:"subjective"`
	Objective  []string `json:"objective"`
	Duration   string   `json:"duration,omitempty"`
	Severity   Severity `json:"severity"`
	Onset      Onset    `json:"onset"`
}

// BuildRequest converts a validated draft into the outbound payload.
// Symptoms with blank text are dropped.
func BuildRequest(draft CaseDraft, consentAt time.Time) AnalysisRequest {
	d := draft.Clone()
	req := AnalysisRequest{
		PatientID:          d.PatientID,
		VitalSigns:         d.VitalSigns,
		Duration:           strings.TrimSpace(d.Duration),
		Severity:           d.Severity,
		Onset:              d.Onset,
		MedicalHistory:     nonBlank(d.MedicalHistory),
		Allergies:          nonBlank(d.Allergies),
		CurrentMedications: d.CurrentMedications,
		LabResults:         d.LabResults,
		ConsentObtained:    !consentAt.IsZero(),
		ConsentTimestamp:   consentAt,
	}
	req.Symptoms = RequestSymptoms{
		Subjective: nonBlank(d.SubjectiveSymptoms()),
		Objective:  nonBlank(d.ObjectiveFindings()),
		Duration:   req.Duration,
		Severity:   d.Severity,
		Onset:      d.Onset,
	}
	if req.CurrentMedications == nil {
		req.CurrentMedications = []Medication{}
	}
	if req.LabResults == nil {
		req.LabResults = []LabResult{}
	}
	return req
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
