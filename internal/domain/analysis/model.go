package analysis

// Severity is the bucket a diagnosis falls into based on its confidence.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// TestPriority is the internal priority of a recommended test.
type TestPriority string

const (
	PriorityUrgent   TestPriority = "urgent"
	PriorityRoutine  TestPriority = "routine"
	PriorityOptional TestPriority = "optional"
)

// FlagSeverity grades a red flag.
type FlagSeverity string

const (
	FlagCritical FlagSeverity = "critical"
	FlagHigh     FlagSeverity = "high"
	FlagMedium   FlagSeverity = "medium"
	FlagLow      FlagSeverity = "low"
)

// ReferralUrgency is how soon a referral should happen.
type ReferralUrgency string

const (
	UrgencyImmediate  ReferralUrgency = "immediate"
	UrgencyWithin24h  ReferralUrgency = "within_24h"
	UrgencyWithinWeek ReferralUrgency = "within_week"
	UrgencyRoutine    ReferralUrgency = "routine"
)

// DefaultDisclaimer is used when the upstream response carries none.
const DefaultDisclaimer = "This AI-generated analysis is decision support only and must be reviewed by a qualified healthcare professional before any clinical action is taken."

// UnknownCondition names the placeholder primary diagnosis.
const UnknownCondition = "Unknown"

// Diagnosis is one entry of the differential list. Probability is a
// percentage in [0,100].
type Diagnosis struct {
	Condition   string   `json:"condition"`
	Probability int      `json:"probability"`
	Reasoning   string   `json:"reasoning"`
	Severity    Severity `json:"severity"`
}

type RecommendedTest struct {
	TestName  string       `json:"testName"`
	Priority  TestPriority `json:"priority"`
	Reasoning string       `json:"reasoning"`
}

type TherapeuticOption struct {
	Medication  string   `json:"medication"`
	Dosage      string   `json:"dosage"`
	Frequency   string   `json:"frequency"`
	Duration    string   `json:"duration"`
	Reasoning   string   `json:"reasoning"`
	SafetyNotes []string `json:"safetyNotes"`
}

type RedFlag struct {
	Flag     string       `json:"flag"`
	Severity FlagSeverity `json:"severity"`
	Action   string       `json:"action"`
}

type Referral struct {
	Recommended bool            `json:"recommended"`
	Urgency     ReferralUrgency `json:"urgency"`
	Specialty   string          `json:"specialty"`
	Reason      string          `json:"reason"`
}

// NormalizedAnalysis is the canonical analysis consumed by the presentation
// layer and persisted in the analysis cache.
type NormalizedAnalysis struct {
	CaseID                 string              `json:"caseId"`
	DifferentialDiagnoses  []Diagnosis         `json:"differentialDiagnoses"`
	RecommendedTests       []RecommendedTest   `json:"recommendedTests"`
	TherapeuticOptions     []TherapeuticOption `json:"therapeuticOptions"`
	RedFlags               []RedFlag           `json:"redFlags"`
	ReferralRecommendation *Referral           `json:"referralRecommendation,omitempty"`
	Disclaimer             string              `json:"disclaimer"`
	ConfidenceScore        int                 `json:"confidenceScore"`
	ProcessingTimeMs       int64               `json:"processingTimeMs"`
}

// PrimaryDiagnosis returns the first differential, which is always the
// primary diagnosis.
func (a *NormalizedAnalysis) PrimaryDiagnosis() Diagnosis {
	if a == nil || len(a.DifferentialDiagnoses) == 0 {
		return Diagnosis{Condition: UnknownCondition, Severity: SeverityLow}
	}
	return a.DifferentialDiagnoses[0]
}
