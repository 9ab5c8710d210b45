package ensemble

import (
	"crypto-signals/config"
	"crypto-signals/internal/dto"
)

// Levels are the price targets derived for an accepted direction.
type Levels struct {
	Entry           float64
	Target          float64
	Stop            float64
	RiskRewardRatio float64
}

// RiskCalculator sizes target and stop from volatility and conviction. Higher
// confidence widens the target and tightens the stop, so the reward profile
// scales with conviction.
type RiskCalculator struct {
	minRiskReward float64
}

func NewRiskCalculator(cfg config.Risk) *RiskCalculator {
	return &RiskCalculator{minRiskReward: cfg.MinRiskReward}
}

// Compute returns nil when the resulting risk/reward falls under the
// configured floor, which rejects the signal outright.
func (r *RiskCalculator) Compute(direction string, entry, atr, confidence float64) *Levels {
	if entry <= 0 || atr <= 0 {
		return nil
	}

	atrPct := atr / entry
	k := confidence / 100.0

	targetMult := 1.5 + 1.5*k
	stopMult := 1.5 - 0.7*k

	var target, stop float64
	if direction == dto.DirectionLong {
		target = entry * (1 + atrPct*targetMult)
		stop = entry * (1 - atrPct*stopMult)
	} else {
		target = entry * (1 - atrPct*targetMult)
		stop = entry * (1 + atrPct*stopMult)
	}

	risk := entry - stop
	if risk < 0 {
		risk = -risk
	}
	reward := target - entry
	if reward < 0 {
		reward = -reward
	}
	if risk == 0 {
		return nil
	}

	rr := reward / risk
	if rr < r.minRiskReward {
		return nil
	}

	return &Levels{
		Entry:           entry,
		Target:          target,
		Stop:            stop,
		RiskRewardRatio: rr,
	}
}
