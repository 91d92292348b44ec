package analysis

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Score is an upstream numeric value that may arrive as a JSON number or a
// numeric string. Values that carry no number (labels such as "high",
// empty strings, booleans) decode as NaN and are treated as absent.
type Score float64

func (s *Score) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	*s = Score(math.NaN())
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		str = strings.TrimSpace(str)
		pct := strings.HasSuffix(str, "%")
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(str, "%")), 64)
		if err != nil {
			return nil
		}
		if pct {
			f /= 100
		}
		*s = Score(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*s = Score(f)
	}
	return nil
}

// scoreOf returns the first candidate holding a number.
func scoreOf(candidates ...*Score) *Score {
	for _, c := range candidates {
		if c != nil && !math.IsNaN(float64(*c)) {
			return c
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// RawDiagnosis is a diagnosis as reported upstream.
type RawDiagnosis struct {
	Condition  string
	Confidence *Score
	Reasoning  string
}

func (d *RawDiagnosis) UnmarshalJSON(b []byte) error {
	if s, ok := asString(b); ok {
		d.Condition = s
		return nil
	}
	var w struct {
		Condition   string `json:"condition"`
		Name        string `json:"name"`
		Diagnosis   string `json:"diagnosis"`
		Confidence  *Score `json:"confidence"`
		Probability *Score `json:"probability"`
		Reasoning   string `json:"reasoning"`
		Rationale   string `json:"rationale"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	d.Condition = firstNonEmpty(w.Condition, w.Name, w.Diagnosis)
	d.Confidence = scoreOf(w.Confidence, w.Probability)
	d.Reasoning = firstNonEmpty(w.Reasoning, w.Rationale)
	return nil
}

// RawTest is a recommended investigation as reported upstream.
type RawTest struct {
	TestName  string
	Priority  string
	Reasoning string
}

func (t *RawTest) UnmarshalJSON(b []byte) error {
	if s, ok := asString(b); ok {
		t.TestName = s
		return nil
	}
	var w struct {
		Test      string `json:"test"`
		TestName  string `json:"testName"`
		Name      string `json:"name"`
		Priority  string `json:"priority"`
		Reasoning string `json:"reasoning"`
		Rationale string `json:"rationale"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	t.TestName = firstNonEmpty(w.TestName, w.Test, w.Name)
	t.Priority = strings.TrimSpace(w.Priority)
	t.Reasoning = firstNonEmpty(w.Reasoning, w.Rationale)
	return nil
}

// RawTherapy is a therapeutic suggestion as reported upstream.
type RawTherapy struct {
	Medication  string
	Dosage      string
	Frequency   string
	Duration    string
	Reasoning   string
	SafetyNotes []string
}

func (t *RawTherapy) UnmarshalJSON(b []byte) error {
	if s, ok := asString(b); ok {
		t.Medication = s
		return nil
	}
	var w struct {
		Medication  string   `json:"medication"`
		Drug        string   `json:"drug"`
		Name        string   `json:"name"`
		Dosage      string   `json:"dosage"`
		Dose        string   `json:"dose"`
		Frequency   string   `json:"frequency"`
		Duration    string   `json:"duration"`
		Reasoning   string   `json:"reasoning"`
		Rationale   string   `json:"rationale"`
		SafetyNotes []string `json:"safetyNotes"`
		Warnings    []string `json:"warnings"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	t.Medication = firstNonEmpty(w.Medication, w.Drug, w.Name)
	t.Dosage = firstNonEmpty(w.Dosage, w.Dose)
	t.Frequency = strings.TrimSpace(w.Frequency)
	t.Duration = strings.TrimSpace(w.Duration)
	t.Reasoning = firstNonEmpty(w.Reasoning, w.Rationale)
	t.SafetyNotes = append(w.SafetyNotes, w.Warnings...)
	return nil
}

// RawRedFlag is either a bare string or an object upstream.
type RawRedFlag struct {
	Flag     string
	Severity string
	Action   string
}

func (f *RawRedFlag) UnmarshalJSON(b []byte) error {
	if s, ok := asString(b); ok {
		f.Flag = s
		return nil
	}
	var w struct {
		Flag        string `json:"flag"`
		Description string `json:"description"`
		Finding     string `json:"finding"`
		Severity    string `json:"severity"`
		Action      string `json:"action"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	f.Flag = firstNonEmpty(w.Flag, w.Description, w.Finding)
	f.Severity = strings.TrimSpace(w.Severity)
	f.Action = strings.TrimSpace(w.Action)
	return nil
}

// RawFollowUp is a follow-up recommendation; a bare string is read as the
// reason.
type RawFollowUp struct {
	Specialty string
	Urgency   string
	Reason    string
}

func (f *RawFollowUp) UnmarshalJSON(b []byte) error {
	if s, ok := asString(b); ok {
		f.Reason = s
		return nil
	}
	var w struct {
		Specialty      string `json:"specialty"`
		Urgency        string `json:"urgency"`
		Timeframe      string `json:"timeframe"`
		Reason         string `json:"reason"`
		Recommendation string `json:"recommendation"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	f.Specialty = strings.TrimSpace(w.Specialty)
	f.Urgency = firstNonEmpty(w.Urgency, w.Timeframe)
	f.Reason = firstNonEmpty(w.Reason, w.Recommendation)
	return nil
}

// RawAnalysisResponse is the terminal payload returned by the analysis
// service. It is transient: it is normalized before being stored or shown.
type RawAnalysisResponse struct {
	ID                      string
	Status                  string
	PrimaryDiagnosis        *RawDiagnosis
	DifferentialDiagnoses   []RawDiagnosis
	RecommendedTests        []RawTest
	TherapeuticOptions      []RawTherapy
	RedFlags                []RawRedFlag
	FollowUpRecommendations []RawFollowUp
	Confidence              *Score
	Disclaimer              string
	ProcessingTimeMs        *Score
}

type rawWire struct {
	ID                      string         `json:"id"`
	CaseID                  string         `json:"caseId"`
	RequestID               string         `json:"requestId"`
	Status                  string         `json:"status"`
	PrimaryDiagnosis        *RawDiagnosis  `json:"primaryDiagnosis"`
	DifferentialDiagnoses   []RawDiagnosis `json:"differentialDiagnoses"`
	Differentials           []RawDiagnosis `json:"differentials"`
	RecommendedTests        []RawTest      `json:"recommendedTests"`
	SuggestedTests          []RawTest      `json:"suggestedTests"`
	TherapeuticOptions      []RawTherapy   `json:"therapeuticOptions"`
	TreatmentSuggestions    []RawTherapy   `json:"treatmentSuggestions"`
	RedFlags                []RawRedFlag   `json:"redFlags"`
	FollowUpRecommendations []RawFollowUp  `json:"followUpRecommendations"`
	FollowUp                []RawFollowUp  `json:"followUp"`
	Confidence              *Score         `json:"confidence"`
	ConfidenceScore         *Score         `json:"confidenceScore"`
	Disclaimer              string         `json:"disclaimer"`
	ProcessingTime          *Score         `json:"processingTime"`
	ProcessingTimeMs        *Score         `json:"processingTimeMs"`
}

func (r *RawAnalysisResponse) UnmarshalJSON(b []byte) error {
	var w rawWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = RawAnalysisResponse{
		ID:                      firstNonEmpty(w.ID, w.CaseID, w.RequestID),
		Status:                  strings.TrimSpace(w.Status),
		PrimaryDiagnosis:        w.PrimaryDiagnosis,
		DifferentialDiagnoses:   pick(w.DifferentialDiagnoses, w.Differentials),
		RecommendedTests:        pick(w.RecommendedTests, w.SuggestedTests),
		TherapeuticOptions:      pick(w.TherapeuticOptions, w.TreatmentSuggestions),
		RedFlags:                w.RedFlags,
		FollowUpRecommendations: pick(w.FollowUpRecommendations, w.FollowUp),
		Confidence:              scoreOf(w.Confidence, w.ConfidenceScore),
		Disclaimer:              strings.TrimSpace(w.Disclaimer),
		ProcessingTimeMs:        scoreOf(w.ProcessingTimeMs, w.ProcessingTime),
	}
	return nil
}

// MarshalJSON writes the canonical upstream field names so a decoded
// response can be re-encoded (history records embed it).
func (r RawAnalysisResponse) MarshalJSON() ([]byte, error) {
	w := struct {
		ID                      string          `json:"id,omitempty"`
		Status                  string          `json:"status,omitempty"`
		PrimaryDiagnosis        *rawDiagWire    `json:"primaryDiagnosis,omitempty"`
		DifferentialDiagnoses   []rawDiagWire   `json:"differentialDiagnoses,omitempty"`
		RecommendedTests        []rawTestWire   `json:"recommendedTests,omitempty"`
		TherapeuticOptions      []rawTherWire   `json:"therapeuticOptions,omitempty"`
		RedFlags                []rawFlagWire   `json:"redFlags,omitempty"`
		FollowUpRecommendations []rawFollowWire `json:"followUpRecommendations,omitempty"`
		Confidence              *Score          `json:"confidence,omitempty"`
		Disclaimer              string          `json:"disclaimer,omitempty"`
		ProcessingTimeMs        *Score          `json:"processingTimeMs,omitempty"`
	}{
		ID:               r.ID,
		Status:           r.Status,
		Confidence:       r.Confidence,
		Disclaimer:       r.Disclaimer,
		ProcessingTimeMs: r.ProcessingTimeMs,
	}
	if r.PrimaryDiagnosis != nil {
		p := rawDiagWire(*r.PrimaryDiagnosis)
		w.PrimaryDiagnosis = &p
	}
	for _, d := range r.DifferentialDiagnoses {
		w.DifferentialDiagnoses = append(w.DifferentialDiagnoses, rawDiagWire(d))
	}
	for _, t := range r.RecommendedTests {
		w.RecommendedTests = append(w.RecommendedTests, rawTestWire(t))
	}
	for _, t := range r.TherapeuticOptions {
		w.TherapeuticOptions = append(w.TherapeuticOptions, rawTherWire(t))
	}
	for _, f := range r.RedFlags {
		w.RedFlags = append(w.RedFlags, rawFlagWire(f))
	}
	for _, f := range r.FollowUpRecommendations {
		w.FollowUpRecommendations = append(w.FollowUpRecommendations, rawFollowWire(f))
	}
	return json.Marshal(w)
}

type rawDiagWire struct {
	Condition  string `json:"condition"`
	Confidence *Score `json:"confidence,omitempty"`
	Reasoning  string `json:"reasoning,omitempty"`
}

type rawTestWire struct {
	TestName  string `json:"testName"`
	Priority  string `json:"priority,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

type rawTherWire struct {
	Medication  string   `json:"medication"`
	Dosage      string   `json:"dosage,omitempty"`
	Frequency   string   `json:"frequency,omitempty"`
	Duration    string   `json:"duration,omitempty"`
	Reasoning   string   `json:"reasoning,omitempty"`
	SafetyNotes []string `json:"safetyNotes,omitempty"`
}

type rawFlagWire struct {
	Flag     string `json:"flag"`
	Severity string `json:"severity,omitempty"`
	Action   string `json:"action,omitempty"`
}

type rawFollowWire struct {
	Specialty string `json:"specialty,omitempty"`
	Urgency   string `json:"urgency,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func pick[T any](primary, fallback []T) []T {
	if len(primary) > 0 {
		return primary
	}
	return fallback
}

func asString(b []byte) (string, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}
