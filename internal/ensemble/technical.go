package ensemble

import (
	"fmt"

	"crypto-signals/internal/dto"
	"crypto-signals/internal/indicator"
)

// TechnicalModel scores classic indicator confluence: RSI zones, MACD
// histogram side and Bollinger band position.
type TechnicalModel struct{}

func (m *TechnicalModel) Name() string {
	return dto.ModelTechnical
}

func (m *TechnicalModel) Evaluate(fv *indicator.FeatureVector) ModelVote {
	var score float64
	var signals []string

	switch {
	case fv.RSI < 30:
		score += 0.4
		signals = append(signals, dto.DirectionLong)
	case fv.RSI > 70:
		score += 0.4
		signals = append(signals, dto.DirectionShort)
	case fv.RSI < 45:
		score += 0.2
		signals = append(signals, dto.DirectionLong)
	case fv.RSI > 55:
		score += 0.2
		signals = append(signals, dto.DirectionShort)
	}

	if fv.MACDStrength > 0 {
		if containsDirection(signals, dto.DirectionLong) || len(signals) == 0 {
			score += 0.3
		} else {
			score -= 0.1
		}
		if !containsDirection(signals, dto.DirectionLong) {
			signals = append(signals, dto.DirectionLong)
		}
	} else {
		if containsDirection(signals, dto.DirectionShort) || len(signals) == 0 {
			score += 0.3
		} else {
			score -= 0.1
		}
		if !containsDirection(signals, dto.DirectionShort) {
			signals = append(signals, dto.DirectionShort)
		}
	}

	if fv.BBPosition < 0.2 {
		if containsDirection(signals, dto.DirectionLong) {
			score += 0.3
		} else {
			score += 0.1
			signals = append(signals, dto.DirectionLong)
		}
	} else if fv.BBPosition > 0.8 {
		if containsDirection(signals, dto.DirectionShort) {
			score += 0.3
		} else {
			score += 0.1
			signals = append(signals, dto.DirectionShort)
		}
	}

	score = clamp01(score)

	longCount, shortCount := 0, 0
	for _, s := range signals {
		if s == dto.DirectionLong {
			longCount++
		} else {
			shortCount++
		}
	}

	reason := fmt.Sprintf("Technical indicators: RSI %.1f, MACD %s, band position %.2f",
		fv.RSI, macdSide(fv.MACDStrength), fv.BBPosition)

	if longCount > shortCount {
		return ModelVote{Long: score, Reason: reason}
	}
	return ModelVote{Short: score, Reason: reason}
}

func containsDirection(signals []string, direction string) bool {
	for _, s := range signals {
		if s == direction {
			return true
		}
	}
	return false
}

func macdSide(strength float64) string {
	if strength > 0 {
		return "bullish"
	}
	return "bearish"
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
