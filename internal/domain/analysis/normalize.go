package analysis

import (
	"math"
	"strings"
)

// Normalize converts an upstream response into the canonical schema. It is
// total: a nil or sparse response yields documented defaults, never an
// error.
func Normalize(raw *RawAnalysisResponse) NormalizedAnalysis {
	if raw == nil {
		raw = &RawAnalysisResponse{}
	}

	out := NormalizedAnalysis{
		CaseID:                raw.ID,
		DifferentialDiagnoses: []Diagnosis{},
		RecommendedTests:      []RecommendedTest{},
		TherapeuticOptions:    []TherapeuticOption{},
		RedFlags:              []RedFlag{},
		Disclaimer:            raw.Disclaimer,
	}
	if out.Disclaimer == "" {
		out.Disclaimer = DefaultDisclaimer
	}

	primary := Diagnosis{Condition: UnknownCondition, Probability: 0, Reasoning: "", Severity: SeverityLow}
	if p := raw.PrimaryDiagnosis; p != nil {
		c := confidence(scoreOf(p.Confidence, raw.Confidence))
		primary = Diagnosis{
			Condition:   p.Condition,
			Probability: Percent(c),
			Reasoning:   p.Reasoning,
			Severity:    SeverityFor(c),
		}
		if primary.Condition == "" {
			primary.Condition = UnknownCondition
		}
	}
	out.DifferentialDiagnoses = append(out.DifferentialDiagnoses, primary)

	for _, d := range raw.DifferentialDiagnoses {
		if d.Condition == "" || strings.EqualFold(d.Condition, primary.Condition) {
			continue
		}
		c := confidence(d.Confidence)
		out.DifferentialDiagnoses = append(out.DifferentialDiagnoses, Diagnosis{
			Condition:   d.Condition,
			Probability: Percent(c),
			Reasoning:   d.Reasoning,
			Severity:    SeverityFor(c),
		})
	}

	for _, t := range raw.RecommendedTests {
		if t.TestName == "" {
			continue
		}
		out.RecommendedTests = append(out.RecommendedTests, RecommendedTest{
			TestName:  t.TestName,
			Priority:  PriorityFor(t.Priority),
			Reasoning: t.Reasoning,
		})
	}

	for _, t := range raw.TherapeuticOptions {
		if t.Medication == "" {
			continue
		}
		notes := t.SafetyNotes
		if notes == nil {
			notes = []string{}
		}
		out.TherapeuticOptions = append(out.TherapeuticOptions, TherapeuticOption{
			Medication:  t.Medication,
			Dosage:      t.Dosage,
			Frequency:   t.Frequency,
			Duration:    t.Duration,
			Reasoning:   t.Reasoning,
			SafetyNotes: notes,
		})
	}

	for _, f := range raw.RedFlags {
		if f.Flag == "" {
			continue
		}
		out.RedFlags = append(out.RedFlags, RedFlag{
			Flag:     f.Flag,
			Severity: flagSeverityFor(f.Severity),
			Action:   f.Action,
		})
	}

	if len(raw.FollowUpRecommendations) > 0 {
		f := raw.FollowUpRecommendations[0]
		out.ReferralRecommendation = &Referral{
			Recommended: true,
			Urgency:     urgencyFor(f.Urgency),
			Specialty:   f.Specialty,
			Reason:      f.Reason,
		}
	}

	switch {
	case raw.Confidence != nil:
		out.ConfidenceScore = Percent(confidence(raw.Confidence))
	case raw.PrimaryDiagnosis != nil && raw.PrimaryDiagnosis.Confidence != nil:
		out.ConfidenceScore = primary.Probability
	}

	if raw.ProcessingTimeMs != nil && *raw.ProcessingTimeMs > 0 {
		out.ProcessingTimeMs = int64(math.Round(float64(*raw.ProcessingTimeMs)))
	}

	return out
}

// Percent maps a confidence in [0,1] to a rounded percentage.
func Percent(c float64) int {
	return int(math.Round(clamp(c) * 100))
}

// SeverityFor buckets a confidence: above 0.7 is high, 0.4 up to and
// including 0.7 is medium, anything lower is low.
func SeverityFor(c float64) Severity {
	c = clamp(c)
	switch {
	case c > 0.7:
		return SeverityHigh
	case c >= 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// PriorityFor maps the upstream high/medium/low priority. Unrecognised
// values fall back to routine.
func PriorityFor(p string) TestPriority {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "high":
		return PriorityUrgent
	case "low":
		return PriorityOptional
	default:
		return PriorityRoutine
	}
}

func flagSeverityFor(s string) FlagSeverity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "emergency":
		return FlagCritical
	case "medium", "moderate":
		return FlagMedium
	case "low", "minor":
		return FlagLow
	default:
		return FlagHigh
	}
}

func urgencyFor(u string) ReferralUrgency {
	u = strings.ToLower(u)
	switch {
	case strings.Contains(u, "immediate"), strings.Contains(u, "emergency"):
		return UrgencyImmediate
	case strings.Contains(u, "24"), strings.Contains(u, "urgent"), strings.Contains(u, "high"):
		return UrgencyWithin24h
	case strings.Contains(u, "week"), strings.Contains(u, "soon"), strings.Contains(u, "medium"):
		return UrgencyWithinWeek
	default:
		return UrgencyRoutine
	}
}

func confidence(s *Score) float64 {
	if s == nil {
		return 0
	}
	return clamp(float64(*s))
}

func clamp(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
