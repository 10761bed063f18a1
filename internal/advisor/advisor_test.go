package advisor

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestScoreRisk_HighRiskCampaign(t *testing.T) {
	// Heavy botting, 6x spike, strong coordination, 3 suspicious URLs:
	// 0.255 + 0.25 + 0.225 + 0.12 = 0.85.
	in := &NarrativeInput{
		BotRatio:           0.85,
		Velocity:           6.0,
		CoordinationScore:  0.9,
		SuspiciousURLCount: 3,
	}

	risk := ScoreRisk(in)

	if risk.Score <= 0.7 {
		t.Errorf("Score = %v, want above 0.7", risk.Score)
	}

	if risk.Level != RiskHigh {
		t.Errorf("Level = %q, want HIGH", risk.Level)
	}

	timing := RecommendTiming(risk, in.Velocity)
	if timing.Timing != "IMMEDIATE" || timing.Priority != "P0" {
		t.Errorf("timing = %+v, want IMMEDIATE/P0", timing)
	}
}

func TestScoreRisk_QuietNarrative(t *testing.T) {
	in := &NarrativeInput{BotRatio: 0.1, Velocity: 1.0}

	risk := ScoreRisk(in)

	if risk.Level != RiskLow {
		t.Errorf("Level = %q (score %v), want LOW", risk.Level, risk.Score)
	}

	if risk.Breakdown["spike_velocity"].Contribution != 0 {
		t.Errorf("baseline velocity contributed %v, want 0", risk.Breakdown["spike_velocity"].Contribution)
	}
}

func TestScoreRisk_VelocityNormalizationClamps(t *testing.T) {
	// Below baseline clamps to zero, extreme spikes saturate at one.
	low := ScoreRisk(&NarrativeInput{Velocity: 0.5})
	if low.Breakdown["spike_velocity"].Normalized != 0 {
		t.Errorf("sub-baseline normalized = %v, want 0", low.Breakdown["spike_velocity"].Normalized)
	}

	high := ScoreRisk(&NarrativeInput{Velocity: 50})
	if high.Breakdown["spike_velocity"].Normalized != 1 {
		t.Errorf("extreme spike normalized = %v, want 1", high.Breakdown["spike_velocity"].Normalized)
	}
}

func TestScoreRisk_URLSaturation(t *testing.T) {
	risk := ScoreRisk(&NarrativeInput{SuspiciousURLCount: 20})

	if got := risk.Breakdown["suspicious_urls"].Contribution; got != 0.2 {
		t.Errorf("URL contribution = %v, want saturated 0.2", got)
	}
}

func TestRecommendTiming_Table(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		velocity float64
		timing   string
		priority string
	}{
		{"high and fast", RiskHigh, 4.0, "IMMEDIATE", "P0"},
		{"high and slow", RiskHigh, 1.5, "URGENT", "P1"},
		{"medium and rising", RiskMedium, 2.5, "DELAY", "P2"},
		{"medium and flat", RiskMedium, 1.0, "MONITOR", "P3"},
		{"low", RiskLow, 9.0, "MONITOR", "P4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecommendTiming(RiskReport{Level: tt.level}, tt.velocity)
			if got.Timing != tt.timing || got.Priority != tt.priority {
				t.Errorf("RecommendTiming(%s, %v) = %s/%s, want %s/%s",
					tt.level, tt.velocity, got.Timing, got.Priority, tt.timing, tt.priority)
			}
		})
	}
}

func TestClassifyType(t *testing.T) {
	tests := []struct {
		name string
		in   NarrativeInput
		want NarrativeType
	}{
		{"scam keywords", NarrativeInput{Keywords: []string{"crypto", "giveaway"}}, TypeScam},
		{"panic in summary", NarrativeInput{Summary: "network collapse imminent"}, TypePanic},
		{"defamation", NarrativeInput{Keywords: []string{"corrupt"}}, TypeDefamation},
		{"scam outranks panic", NarrativeInput{Summary: "crisis! double your money"}, TypeScam},
		{"botted without keywords", NarrativeInput{BotRatio: 0.8}, TypeCoordinatedBot},
		{"plain complaint", NarrativeInput{Summary: "service is slow today"}, TypeCriticism},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyType(&tt.in); got != tt.want {
				t.Errorf("ClassifyType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSelectStrategy_BotRatioEscalatesCriticism(t *testing.T) {
	in := &NarrativeInput{Summary: "service is slow", BotRatio: 0.7}

	got := SelectStrategy(in)
	if got.Type != TypeCoordinatedBot {
		t.Errorf("Type = %q, want COORDINATED_BOT when heavily botted", got.Type)
	}
}

func TestDraftReply_FillsPlaceholders(t *testing.T) {
	links := Links{Evidence: "sentinel.io/report", Facts: "official.com/facts", Dashboard: "sentinel.io/dash"}

	strategy := SelectStrategy(&NarrativeInput{Summary: "network collapse"})

	draft := DraftReply(strategy, "jio outage", links)

	if strings.Contains(draft, "{") {
		t.Errorf("draft = %q, want all placeholders filled", draft)
	}

	if !strings.Contains(draft, "jio outage") || !strings.Contains(draft, "official.com/facts") {
		t.Errorf("draft = %q, want topic and fact link substituted", draft)
	}
}

func TestAdviseProducesCompletePackage(t *testing.T) {
	logger := zerolog.Nop()
	a := New(Links{Evidence: "e", Facts: "f", Dashboard: "d"}, &logger)

	advice := a.Advise(&NarrativeInput{
		Title:              "fake refund scheme",
		Summary:            "guaranteed double your money back",
		BotRatio:           0.9,
		Velocity:           5.0,
		CoordinationScore:  0.8,
		SuspiciousURLCount: 4,
		PostCount:          240,
	})

	if advice.Strategy.Type != TypeScam {
		t.Errorf("Strategy.Type = %q, want SCAM", advice.Strategy.Type)
	}

	if advice.Risk.Level != RiskHigh || advice.Timing.Priority != "P0" {
		t.Errorf("risk = %s timing = %s, want HIGH/P0", advice.Risk.Level, advice.Timing.Priority)
	}

	if !strings.HasPrefix(advice.Evidence.ReportID, "RPT-") {
		t.Errorf("ReportID = %q, want RPT- prefix", advice.Evidence.ReportID)
	}

	if advice.Evidence.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not set")
	}

	if advice.DraftReply == "" || strings.Contains(advice.DraftReply, "{") {
		t.Errorf("DraftReply = %q, want filled template", advice.DraftReply)
	}
}
