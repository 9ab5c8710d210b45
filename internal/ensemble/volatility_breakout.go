package ensemble

import (
	"fmt"

	"crypto-signals/internal/dto"
	"crypto-signals/internal/indicator"
)

// VolatilityBreakoutModel looks for price escaping a tight consolidation on
// elevated volume.
type VolatilityBreakoutModel struct{}

func (m *VolatilityBreakoutModel) Name() string {
	return dto.ModelVolatilityBreakout
}

func (m *VolatilityBreakoutModel) Evaluate(fv *indicator.FeatureVector) ModelVote {
	reason := fmt.Sprintf("Volatility breakout: band width %.3f, volume ratio %.2f",
		fv.BBWidth, fv.VolumeRatio)

	if fv.BBWidth < 0.02 && fv.VolumeRatio > 1.5 {
		switch {
		case fv.BBPosition > 0.7 && fv.Momentum1 > 0:
			return ModelVote{Long: 0.85, Reason: reason}
		case fv.BBPosition < 0.3 && fv.Momentum1 < 0:
			return ModelVote{Short: 0.85, Reason: reason}
		case fv.Momentum1 > 0:
			return ModelVote{Long: 0.4, Reason: reason}
		default:
			return ModelVote{Short: 0.4, Reason: reason}
		}
	}

	if fv.BBPosition > 0.5 {
		return ModelVote{Long: 0.3, Reason: reason}
	}
	return ModelVote{Short: 0.3, Reason: reason}
}
