package ensemble

import (
	"fmt"

	"crypto-signals/internal/dto"
	"crypto-signals/internal/indicator"
)

// MomentumModel follows sustained directional moves confirmed by volume.
type MomentumModel struct{}

func (m *MomentumModel) Name() string {
	return dto.ModelMomentum
}

func (m *MomentumModel) Evaluate(fv *indicator.FeatureVector) ModelVote {
	reason := fmt.Sprintf("Momentum: 5-candle change %.2f%%, volume ratio %.2f",
		fv.PriceChange5*100, fv.VolumeRatio)

	switch {
	case fv.PriceChange5 > 0.02 && fv.PriceChange10 > 0.03 && fv.VolumeRatio > 1.2:
		return ModelVote{Long: 0.8, Reason: reason}
	case fv.PriceChange5 < -0.02 && fv.PriceChange10 < -0.03 && fv.VolumeRatio > 1.2:
		return ModelVote{Short: 0.8, Reason: reason}
	case fv.PriceChange5 > 0.01 && fv.TrendUp:
		return ModelVote{Long: 0.6, Reason: reason}
	case fv.PriceChange5 < -0.01 && fv.TrendDown:
		return ModelVote{Short: 0.6, Reason: reason}
	case fv.PriceChange5 > 0:
		return ModelVote{Long: 0.3, Reason: reason}
	default:
		return ModelVote{Short: 0.3, Reason: reason}
	}
}
