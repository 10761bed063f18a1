// Package advisor turns detection output for one narrative into an
// actionable recommendation: a weighted risk score, response timing,
// a reply strategy, a filled draft, and a structured evidence package.
package advisor

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Risk signal weights. These sum to 1.0.
const (
	weightBotRatio       = 0.30
	weightSpikeVelocity  = 0.25
	weightCoordination   = 0.25
	weightSuspiciousURLs = 0.20
)

// Risk levels.
const (
	RiskHigh   = "HIGH"
	RiskMedium = "MEDIUM"
	RiskLow    = "LOW"
)

const (
	highRiskThreshold   = 0.7
	mediumRiskThreshold = 0.4
)

// NarrativeInput is everything the advisor needs about one narrative,
// aggregated from the detection sweeps.
type NarrativeInput struct {
	Title              string
	Summary            string
	Keywords           []string
	BotRatio           float64 // Fraction of posting authors labeled BOT
	Velocity           float64 // Current rate over baseline
	CoordinationScore  float64 // 0 when no coordination cluster overlaps the narrative
	SuspiciousURLCount int
	PostCount          int
}

// SignalContribution is one weighted component of the risk score.
type SignalContribution struct {
	Value        float64 `json:"value"`
	Normalized   float64 `json:"normalized"`
	Contribution float64 `json:"contribution"`
}

// RiskReport is the scored risk assessment.
type RiskReport struct {
	Score          float64                       `json:"risk_score"`
	Level          string                        `json:"risk_level"`
	Interpretation string                        `json:"interpretation"`
	Breakdown      map[string]SignalContribution `json:"breakdown"`
}

// ScoreRisk combines the four weighted signals. Velocity normalizes so 1x
// contributes nothing and 5x saturates; five suspicious URLs saturate the
// URL signal.
func ScoreRisk(in *NarrativeInput) RiskReport {
	velNorm := clamp((in.Velocity-1)/4.0, 0, 1)
	urlNorm := math.Min(float64(in.SuspiciousURLCount)/5.0, 1.0)

	breakdown := map[string]SignalContribution{
		"bot_ratio": {
			Value:        in.BotRatio,
			Normalized:   in.BotRatio,
			Contribution: round3(in.BotRatio * weightBotRatio),
		},
		"spike_velocity": {
			Value:        in.Velocity,
			Normalized:   round2(velNorm),
			Contribution: round3(velNorm * weightSpikeVelocity),
		},
		"coordination": {
			Value:        in.CoordinationScore,
			Normalized:   in.CoordinationScore,
			Contribution: round3(in.CoordinationScore * weightCoordination),
		},
		"suspicious_urls": {
			Value:        float64(in.SuspiciousURLCount),
			Normalized:   round2(urlNorm),
			Contribution: round3(urlNorm * weightSuspiciousURLs),
		},
	}

	score := in.BotRatio*weightBotRatio +
		velNorm*weightSpikeVelocity +
		in.CoordinationScore*weightCoordination +
		urlNorm*weightSuspiciousURLs

	level := RiskLow

	switch {
	case score >= highRiskThreshold:
		level = RiskHigh
	case score >= mediumRiskThreshold:
		level = RiskMedium
	}

	return RiskReport{
		Score:          round3(score),
		Level:          level,
		Interpretation: interpretBotRatio(in.BotRatio),
		Breakdown:      breakdown,
	}
}

func interpretBotRatio(ratio float64) string {
	switch {
	case ratio >= 0.7:
		return "SEVERE: highly automated campaign"
	case ratio >= 0.4:
		return "MODERATE: significant bot activity"
	default:
		return "LOW: mostly organic accounts"
	}
}

// Timing is a response timing recommendation.
type Timing struct {
	Timing    string `json:"timing"`
	Timeframe string `json:"timeframe"`
	Rationale string `json:"rationale"`
	Priority  string `json:"priority"`
}

// RecommendTiming maps risk level and spread velocity to a response window.
func RecommendTiming(risk RiskReport, velocity float64) Timing {
	switch {
	case risk.Level == RiskHigh && velocity >= 3.0:
		return Timing{
			Timing:    "IMMEDIATE",
			Timeframe: "< 30 minutes",
			Rationale: "High-risk fast-spreading narrative requires immediate containment",
			Priority:  "P0",
		}
	case risk.Level == RiskHigh:
		return Timing{
			Timing:    "URGENT",
			Timeframe: "< 2 hours",
			Rationale: "High-risk but slower spread allows brief preparation",
			Priority:  "P1",
		}
	case risk.Level == RiskMedium && velocity >= 2.0:
		return Timing{
			Timing:    "DELAY",
			Timeframe: "2-4 hours",
			Rationale: "Moderate risk, gather more data before responding",
			Priority:  "P2",
		}
	case risk.Level == RiskMedium:
		return Timing{
			Timing:    "MONITOR",
			Timeframe: "6-12 hours",
			Rationale: "Watch for escalation before committing response",
			Priority:  "P3",
		}
	default:
		return Timing{
			Timing:    "MONITOR",
			Timeframe: "24 hours",
			Rationale: "Low risk, continue monitoring without response",
			Priority:  "P4",
		}
	}
}

// NarrativeType classifies what kind of narrative is spreading.
type NarrativeType string

// Narrative types, in classification priority order.
const (
	TypeScam           NarrativeType = "SCAM"
	TypePanic          NarrativeType = "PANIC"
	TypeDefamation     NarrativeType = "DEFAMATION"
	TypeCoordinatedBot NarrativeType = "COORDINATED_BOT"
	TypeCriticism      NarrativeType = "CRITICISM"
)

var (
	scamIndicators       = []string{"invest", "guarantee", "double your", "limited time", "crypto", "free"}
	panicIndicators      = []string{"collapse", "crisis", "shutdown", "failing", "danger", "hack"}
	defamationIndicators = []string{"fraud", "illegal", "scandal", "corrupt", "criminal"}
)

// ClassifyType inspects the narrative's keywords and summary. Indicator
// classes are checked in severity order; a heavily botted narrative with no
// textual indicator is COORDINATED_BOT.
func ClassifyType(in *NarrativeInput) NarrativeType {
	text := strings.ToLower(strings.Join(in.Keywords, " ") + " " + in.Summary)

	switch {
	case containsAny(text, scamIndicators):
		return TypeScam
	case containsAny(text, panicIndicators):
		return TypePanic
	case containsAny(text, defamationIndicators):
		return TypeDefamation
	case in.BotRatio > 0.6:
		return TypeCoordinatedBot
	default:
		return TypeCriticism
	}
}

func containsAny(text string, indicators []string) bool {
	for _, ind := range indicators {
		if strings.Contains(text, ind) {
			return true
		}
	}

	return false
}

// Strategy is the recommended reply posture for one narrative type.
type Strategy struct {
	Type     NarrativeType `json:"type"`
	Tone     string        `json:"tone"`
	Approach string        `json:"approach"`
	Template string        `json:"template"`
}

// SelectStrategy picks the reply posture. A bot ratio above 0.6 escalates
// any non-indicator narrative to the coordination expose.
func SelectStrategy(in *NarrativeInput) Strategy {
	narrativeType := ClassifyType(in)
	if narrativeType == TypeCriticism && in.BotRatio > 0.6 {
		narrativeType = TypeCoordinatedBot
	}

	switch narrativeType {
	case TypeScam:
		return Strategy{
			Type:     TypeScam,
			Tone:     "FIRM",
			Approach: "Call out fraud directly with evidence",
			Template: "WARNING: This is a known scam. Do not engage. Verified evidence: {evidence_link}",
		}
	case TypePanic:
		return Strategy{
			Type:     TypePanic,
			Tone:     "CALM",
			Approach: "Reassure with facts and authoritative sources",
			Template: "We understand concerns about {topic}. Official data: {fact_link}",
		}
	case TypeDefamation:
		return Strategy{
			Type:     TypeDefamation,
			Tone:     "EVIDENCE_BASED",
			Approach: "Correct with verifiable data and sources",
			Template: "The facts about {topic}: see {fact_link}",
		}
	case TypeCoordinatedBot:
		return Strategy{
			Type:     TypeCoordinatedBot,
			Tone:     "TRANSPARENT",
			Approach: "Expose coordination evidence",
			Template: "Detection alert: inauthentic activity is driving this trend. Analysis: {dashboard_link}",
		}
	case TypeCriticism:
		return Strategy{
			Type:     TypeCriticism,
			Tone:     "POLITE",
			Approach: "Acknowledge concern and provide context",
			Template: "We hear you on {topic}. Here's what we're doing: {fact_link}",
		}
	}

	return Strategy{}
}

// Links fill the strategy template placeholders.
type Links struct {
	Evidence  string
	Facts     string
	Dashboard string
}

// DraftReply fills the strategy template with the narrative title and the
// configured links.
func DraftReply(strategy Strategy, title string, links Links) string {
	if title == "" {
		title = "this topic"
	}

	r := strings.NewReplacer(
		"{topic}", title,
		"{evidence_link}", links.Evidence,
		"{fact_link}", links.Facts,
		"{dashboard_link}", links.Dashboard,
	)

	return r.Replace(strategy.Template)
}

// EvidencePackage is the structured report backing one recommendation.
type EvidencePackage struct {
	ReportID    string         `json:"report_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	Narrative   map[string]any `json:"narrative"`
	Risk        RiskReport     `json:"risk_assessment"`
	Strategy    Strategy       `json:"strategy"`
	Timing      Timing         `json:"timing"`
}

// Advice is the complete output for one narrative.
type Advice struct {
	Risk       RiskReport      `json:"risk_report"`
	Timing     Timing          `json:"timing_recommendation"`
	Strategy   Strategy        `json:"recommended_strategy"`
	DraftReply string          `json:"draft_reply"`
	Evidence   EvidencePackage `json:"evidence_package"`
}

// Advisor produces recommendations.
type Advisor struct {
	links  Links
	logger *zerolog.Logger
}

// New creates an advisor with the links used in reply drafts.
func New(links Links, logger *zerolog.Logger) *Advisor {
	return &Advisor{links: links, logger: logger}
}

// Advise runs the full pipeline for one narrative.
func (a *Advisor) Advise(in *NarrativeInput) Advice {
	risk := ScoreRisk(in)
	timing := RecommendTiming(risk, in.Velocity)
	strategy := SelectStrategy(in)

	advice := Advice{
		Risk:       risk,
		Timing:     timing,
		Strategy:   strategy,
		DraftReply: DraftReply(strategy, in.Title, a.links),
		Evidence: EvidencePackage{
			ReportID:    fmt.Sprintf("RPT-%s", uuid.NewString()),
			GeneratedAt: time.Now().UTC(),
			Narrative: map[string]any{
				"title":   in.Title,
				"summary": in.Summary,
				"metrics": map[string]any{
					"bot_ratio": in.BotRatio,
					"velocity":  in.Velocity,
					"volume":    in.PostCount,
				},
			},
			Risk:     risk,
			Strategy: strategy,
			Timing:   timing,
		},
	}

	a.logger.Info().
		Str("report_id", advice.Evidence.ReportID).
		Float64("risk_score", risk.Score).
		Str("risk_level", risk.Level).
		Str("timing", timing.Timing).
		Str("strategy", string(strategy.Type)).
		Msg("advice generated")

	return advice
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
