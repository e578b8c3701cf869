package analytics

import (
	"math"

	"github.com/opensource-finance/sentinela/internal/domain"
)

// Penalty identifiers reported alongside a risk score.
const (
	PenaltyIDBenford      = "benford-significant"
	PenaltyIDRoundValues  = "round-values"
	PenaltyIDTopSupplier  = "top-supplier"
	PenaltyIDPartyOutlier = "party-outlier"
	PenaltyIDStateOutlier = "state-outlier"
)

// RiskInput carries everything the scorer reads.
type RiskInput struct {
	HHILevel           string
	BenfordSignificant bool
	RoundValuePct      float64
	TopSupplierPct     float64
	ZScoreParty        float64
	ZScoreState        float64
}

// RiskResult is a clipped composite score with its level.
type RiskResult struct {
	Score     float64
	Level     string
	Base      float64
	Penalties []string
}

// ScoreRisk combines the concentration base score with additive penalties,
// clips the sum to [0,1] and rounds it to hundredths before picking the level,
// so a sum landing exactly on a tier bound is never pushed below it.
func ScoreRisk(in RiskInput) RiskResult {
	base := baseScore(in.HHILevel)
	score := base
	var applied []string

	add := func(ok bool, weight float64, id string) {
		if ok {
			score += weight
			applied = append(applied, id)
		}
	}
	add(in.BenfordSignificant, PenaltyBenford, PenaltyIDBenford)
	add(in.RoundValuePct > RiskRoundValuePct, PenaltyRoundValues, PenaltyIDRoundValues)
	add(in.TopSupplierPct > RiskTopSupplierPct, PenaltyTopSupplier, PenaltyIDTopSupplier)
	add(math.Abs(in.ZScoreParty) > RiskPeerZ, PenaltyPartyOutlier, PenaltyIDPartyOutlier)
	add(math.Abs(in.ZScoreState) > RiskPeerZ, PenaltyStateOutlier, PenaltyIDStateOutlier)

	score = math.Round(clamp(score, 0, 1)*100) / 100
	return RiskResult{
		Score:     score,
		Level:     LevelForScore(score),
		Base:      base,
		Penalties: applied,
	}
}

// LevelForScore maps a risk score to its level.
func LevelForScore(score float64) string {
	switch {
	case score >= RiskLevelCritical:
		return domain.LevelCritical
	case score >= RiskLevelHigh:
		return domain.LevelHigh
	case score >= RiskLevelMedium:
		return domain.LevelMedium
	default:
		return domain.LevelLow
	}
}

func baseScore(hhiLevel string) float64 {
	switch hhiLevel {
	case domain.LevelCritical:
		return RiskBaseCritical
	case domain.LevelHigh:
		return RiskBaseHigh
	case domain.LevelMedium:
		return RiskBaseMedium
	default:
		return RiskBaseLow
	}
}
