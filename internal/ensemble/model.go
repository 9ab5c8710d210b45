package ensemble

import (
	"crypto-signals/internal/dto"
	"crypto-signals/internal/indicator"
)

// ModelVote carries a sub-model's independent conviction for each side in
// [0,1] plus a short reason used when building signal rationale. A model may
// score both sides low (neutral).
type ModelVote struct {
	Long   float64
	Short  float64
	Reason string
}

// Score is the vote magnitude on the side the model favors.
func (v ModelVote) Score() float64 {
	if v.Long >= v.Short {
		return v.Long
	}
	return v.Short
}

func (v ModelVote) Direction() string {
	if v.Long >= v.Short {
		return dto.DirectionLong
	}
	return dto.DirectionShort
}

// Model is a pure scoring function over one feature vector.
type Model interface {
	Name() string
	Evaluate(fv *indicator.FeatureVector) ModelVote
}

type weightedModel struct {
	model  Model
	weight float64
}

// defaultModels is the fixed ensemble: four sub-models with weights summing
// to 1. New models are added here, not discovered at runtime.
func defaultModels() []weightedModel {
	return []weightedModel{
		{model: &TechnicalModel{}, weight: 0.30},
		{model: &MomentumModel{}, weight: 0.30},
		{model: &MeanReversionModel{}, weight: 0.20},
		{model: &VolatilityBreakoutModel{}, weight: 0.20},
	}
}
