package ensemble

import (
	"fmt"

	"crypto-signals/internal/dto"
	"crypto-signals/internal/indicator"
)

// MeanReversionModel fades stretched moves at band extremes. Votes are
// discounted in high volatility, where reversion setups fail more often.
type MeanReversionModel struct{}

func (m *MeanReversionModel) Name() string {
	return dto.ModelMeanReversion
}

func (m *MeanReversionModel) Evaluate(fv *indicator.FeatureVector) ModelVote {
	reason := fmt.Sprintf("Mean reversion: band position %.2f, RSI %.1f", fv.BBPosition, fv.RSI)

	var vote ModelVote
	switch {
	case fv.BBPosition < 0.1 && fv.RSI < 30:
		vote = ModelVote{Long: 0.9, Reason: reason}
	case fv.BBPosition > 0.9 && fv.RSI > 70:
		vote = ModelVote{Short: 0.9, Reason: reason}
	case fv.BBPosition < 0.3 && fv.RSI < 40:
		vote = ModelVote{Long: 0.6, Reason: reason}
	case fv.BBPosition > 0.7 && fv.RSI > 60:
		vote = ModelVote{Short: 0.6, Reason: reason}
	case fv.BBPosition < 0.5:
		vote = ModelVote{Long: 0.2, Reason: reason}
	default:
		vote = ModelVote{Short: 0.2, Reason: reason}
	}

	if fv.Volatility5 > 0.05 {
		vote.Long *= 0.7
		vote.Short *= 0.7
	}
	return vote
}
