package analysissim

import (
	"strings"

	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/analysis"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/intake"
)

type profile struct {
	keyword       string
	condition     string
	confidence    float64
	reasoning     string
	differentials []analysis.RawDiagnosis
	tests         []analysis.RawTest
	therapies     []analysis.RawTherapy
	redFlags      []analysis.RawRedFlag
	followUp      []analysis.RawFollowUp
}

func score(f float64) *analysis.Score {
	s := analysis.Score(f)
	return &s
}

// profiles are matched in order against the subjective symptoms.
var profiles = []profile{
	{
		keyword:    "chest pain",
		condition:  "Acute coronary syndrome",
		confidence: 0.78,
		reasoning:  "Chest pain warrants exclusion of cardiac causes",
		differentials: []analysis.RawDiagnosis{
			{Condition: "Gastro-oesophageal reflux", Confidence: score(0.35)},
			{Condition: "Musculoskeletal chest pain", Confidence: score(0.3)},
		},
		tests: []analysis.RawTest{
			{TestName: "12-lead ECG", Priority: "high", Reasoning: "Identify ischaemic changes"},
			{TestName: "Troponin", Priority: "high"},
		},
		redFlags: []analysis.RawRedFlag{
			{Flag: "Chest pain with possible cardiac origin", Severity: "critical", Action: "Refer to emergency services"},
		},
		followUp: []analysis.RawFollowUp{{Specialty: "Cardiology", Urgency: "immediate", Reason: "Suspected ACS"}},
	},
	{
		keyword:    "headache",
		condition:  "Tension-type headache",
		confidence: 0.85,
		reasoning:  "Bilateral pressing headache without neurological signs",
		differentials: []analysis.RawDiagnosis{
			{Condition: "Migraine without aura", Confidence: score(0.55)},
			{Condition: "Medication overuse headache", Confidence: score(0.2)},
		},
		tests: []analysis.RawTest{
			{TestName: "Blood pressure measurement", Priority: "medium"},
		},
		therapies: []analysis.RawTherapy{
			{Medication: "Paracetamol", Dosage: "500-1000mg", Frequency: "every 6 hours as needed", Duration: "up to 3 days", SafetyNotes: []string{"Maximum 4g per day"}},
			{Medication: "Ibuprofen", Dosage: "400mg", Frequency: "every 8 hours with food", SafetyNotes: []string{"Avoid with peptic ulcer history"}},
		},
		redFlags: []analysis.RawRedFlag{{Flag: "Sudden severe headache"}},
	},
	{
		keyword:    "cough",
		condition:  "Acute bronchitis",
		confidence: 0.64,
		reasoning:  "Productive cough without signs of pneumonia",
		differentials: []analysis.RawDiagnosis{
			{Condition: "Community-acquired pneumonia", Confidence: score(0.25)},
		},
		tests: []analysis.RawTest{
			{TestName: "Chest X-ray", Priority: "low", Reasoning: "Only if symptoms persist beyond 3 weeks"},
		},
		therapies: []analysis.RawTherapy{
			{Medication: "Dextromethorphan", Dosage: "15mg", Frequency: "every 6 hours"},
		},
		followUp: []analysis.RawFollowUp{{Reason: "Review if no improvement in 7 days", Urgency: "within a week"}},
	},
}

var fallbackProfile = profile{
	condition:  "Non-specific presentation",
	confidence: 0.42,
	reasoning:  "Symptoms do not match a specific pattern",
	tests:      []analysis.RawTest{{TestName: "Full blood count", Priority: "medium"}},
}

// resultFor builds a canned upstream response from the submitted symptoms.
func resultFor(id string, req intake.AnalysisRequest, processingMs float64) *analysis.RawAnalysisResponse {
	text := strings.ToLower(strings.Join(req.Symptoms.Subjective, " "))
	p := fallbackProfile
	for _, candidate := range profiles {
		if strings.Contains(text, candidate.keyword) {
			p = candidate
			break
		}
	}

	return &analysis.RawAnalysisResponse{
		ID:     id,
		Status: StatusCompleted,
		PrimaryDiagnosis: &analysis.RawDiagnosis{
			Condition:  p.condition,
			Confidence: score(p.confidence),
			Reasoning:  p.reasoning,
		},
		DifferentialDiagnoses:   p.differentials,
		RecommendedTests:        p.tests,
		TherapeuticOptions:      p.therapies,
		RedFlags:                p.redFlags,
		FollowUpRecommendations: p.followUp,
		Confidence:              score(p.confidence),
		ProcessingTimeMs:        score(processingMs),
	}
}
