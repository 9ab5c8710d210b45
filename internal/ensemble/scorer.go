package ensemble

import (
	"fmt"
	"sort"

	"crypto-signals/config"
	"crypto-signals/internal/dto"
	"crypto-signals/internal/indicator"
)

// Outcome is an accepted ensemble decision. Confidence is on the 0-100 scale.
type Outcome struct {
	Direction   string
	Confidence  float64
	LongScore   float64
	ShortScore  float64
	ModelScores map[string]float64
	Votes       map[string]ModelVote
}

// Scorer combines the fixed sub-model set with configured decision gates.
type Scorer struct {
	models        []weightedModel
	agreementGap  float64
	minConfidence float64
}

func NewScorer(cfg config.Ensemble) *Scorer {
	return &Scorer{
		models:        defaultModels(),
		agreementGap:  cfg.AgreementGap,
		minConfidence: cfg.MinConfidence,
	}
}

// Score runs every sub-model and applies the two gates in order: first the
// agreement gap between sides, then the confidence floor. A nil Outcome with
// a nil error means no signal, which is the common case, not a failure.
func (s *Scorer) Score(fv *indicator.FeatureVector) *Outcome {
	var longScore, shortScore float64
	votes := make(map[string]ModelVote, len(s.models))
	modelScores := make(map[string]float64, len(s.models)+2)

	for _, wm := range s.models {
		vote := wm.model.Evaluate(fv)
		votes[wm.model.Name()] = vote
		modelScores[wm.model.Name()] = vote.Score()
		longScore += wm.weight * vote.Long
		shortScore += wm.weight * vote.Short
	}

	gap := longScore - shortScore
	if gap < 0 {
		gap = -gap
	}
	if gap < s.agreementGap {
		return nil
	}

	best := longScore
	direction := dto.DirectionLong
	if shortScore > longScore {
		best = shortScore
		direction = dto.DirectionShort
	}
	if best < s.minConfidence {
		return nil
	}

	modelScores["long_score"] = longScore
	modelScores["short_score"] = shortScore

	return &Outcome{
		Direction:   direction,
		Confidence:  best * 100,
		LongScore:   longScore,
		ShortScore:  shortScore,
		ModelScores: modelScores,
		Votes:       votes,
	}
}

// BuildRationale produces up to three human-readable lines explaining an
// accepted outcome, strongest evidence first.
func BuildRationale(out *Outcome, fv *indicator.FeatureVector) []string {
	lines := make([]string, 0, 3)

	if out.Confidence >= 80 {
		lines = append(lines, fmt.Sprintf("High confidence %s signal (%.1f%%) from ensemble model", out.Direction, out.Confidence))
	} else {
		lines = append(lines, fmt.Sprintf("Moderate confidence %s signal (%.1f%%) from ensemble model", out.Direction, out.Confidence))
	}

	agreement := out.LongScore - out.ShortScore
	if agreement < 0 {
		agreement = -agreement
	}
	if agreement > 0.4 {
		lines = append(lines, fmt.Sprintf("Strong consensus across prediction models (agreement: %.2f)", agreement))
	} else if agreement > 0.25 {
		lines = append(lines, fmt.Sprintf("Moderate consensus across prediction models (agreement: %.2f)", agreement))
	}

	type scored struct {
		name  string
		vote  ModelVote
		score float64
	}
	ranked := make([]scored, 0, len(out.Votes))
	for name, vote := range out.Votes {
		ranked = append(ranked, scored{name: name, vote: vote, score: vote.Score()})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].name < ranked[j].name
	})
	if len(ranked) > 0 && ranked[0].score > 0.7 && ranked[0].vote.Reason != "" {
		lines = append(lines, ranked[0].vote.Reason)
	}

	if len(lines) < 3 {
		if out.Direction == dto.DirectionLong && fv.RSI < 40 {
			lines = append(lines, fmt.Sprintf("RSI at %.1f indicates oversold conditions supporting upside", fv.RSI))
		} else if out.Direction == dto.DirectionShort && fv.RSI > 60 {
			lines = append(lines, fmt.Sprintf("RSI at %.1f indicates overbought conditions supporting downside", fv.RSI))
		}
	}

	if len(lines) > 3 {
		lines = lines[:3]
	}
	return lines
}
