package indicator

import (
	"errors"
	"fmt"
	"math"

	"crypto-signals/internal/dto"
)

const (
	// MinCandles is the shortest window the engine accepts. Anything less and
	// the slow indicators (MACD, Bollinger) have no meaningful value.
	MinCandles = 50

	rsiPeriod       = 14
	bollingerPeriod = 20
	bollingerStdDev = 2.0
	macdFast        = 12
	macdSlow        = 26
	macdSignal      = 9
	atrPeriod       = 20
)

var ErrInsufficientData = errors.New("insufficient candle data")

// FeatureVector is the normalized view of a candle window the ensemble models
// vote on. Ratios are fractions (0.05 == 5%), not percents.
type FeatureVector struct {
	PriceChange5  float64
	PriceChange10 float64
	PriceChange20 float64

	Volatility5  float64
	Volatility10 float64

	VolumeRatio float64
	VolumeTrend float64

	RSI           float64
	RSIOversold   bool
	RSIOverbought bool

	MACDBullishCross bool
	MACDBearishCross bool
	MACDStrength     float64

	BBPosition float64
	BBWidth    float64

	TrendUp   bool
	TrendDown bool

	Momentum1 float64

	ATR       float64
	ATRPct    float64
	LastClose float64
}

// Engine turns a rolling OHLCV window into a FeatureVector.
type Engine struct {
	minCandles int
}

// NewEngine accepts the configured minimum window size. MinCandles is the
// hard floor; the slow indicators need that much history regardless of what
// the configuration asks for.
func NewEngine(minCandles int) *Engine {
	if minCandles < MinCandles {
		minCandles = MinCandles
	}
	return &Engine{minCandles: minCandles}
}

// Compute validates the window and extracts all features. Candles must be
// oldest first with strictly increasing timestamps.
func (e *Engine) Compute(candles []dto.OHLCV) (*FeatureVector, error) {
	if len(candles) < e.minCandles {
		return nil, fmt.Errorf("%w: have %d candles, need %d", ErrInsufficientData, len(candles), e.minCandles)
	}
	if err := validateWindow(candles); err != nil {
		return nil, err
	}

	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	n := len(closes)
	last := closes[n-1]

	fv := &FeatureVector{
		PriceChange5:  changeOver(closes, 5),
		PriceChange10: changeOver(closes, 10),
		PriceChange20: changeOver(closes, 20),
		Volatility5:   coefVariation(closes[n-5:]),
		Volatility10:  coefVariation(closes[n-10:]),
		Momentum1:     changeOver(closes, 1),
		LastClose:     last,
	}

	avgVolume := mean(volumes[n-20:])
	if avgVolume > 0 {
		fv.VolumeRatio = volumes[n-1] / avgVolume
	} else {
		fv.VolumeRatio = 1
	}
	recentVol := mean(volumes[n-5:])
	olderVol := mean(volumes[n-10 : n-5])
	if olderVol > 0 {
		fv.VolumeTrend = (recentVol - olderVol) / olderVol
	}

	fv.RSI = rsi(closes, rsiPeriod)
	fv.RSIOversold = fv.RSI < 30
	fv.RSIOverbought = fv.RSI > 70

	macdLine, signalLine := macd(closes)
	prevMACD, prevSignal := macdAt(closes[:n-1])
	fv.MACDBullishCross = prevMACD <= prevSignal && macdLine > signalLine
	fv.MACDBearishCross = prevMACD >= prevSignal && macdLine < signalLine
	if last > 0 {
		fv.MACDStrength = (macdLine - signalLine) / last
	}

	mid := mean(closes[n-bollingerPeriod:])
	sd := stdDev(closes[n-bollingerPeriod:])
	upper := mid + bollingerStdDev*sd
	lower := mid - bollingerStdDev*sd
	if band := upper - lower; band > 0 {
		fv.BBPosition = (last - lower) / band
	} else {
		fv.BBPosition = 0.5
	}
	if mid > 0 {
		fv.BBWidth = (upper - lower) / mid
	}

	// Trend alignment compares the fast and slow averages only; price may
	// dip below the fast average without breaking the trend.
	sma5 := mean(closes[n-5:])
	sma20 := mean(closes[n-20:])
	fv.TrendUp = sma5 > sma20
	fv.TrendDown = sma5 < sma20

	fv.ATR = atr(candles, atrPeriod)
	if last > 0 {
		fv.ATRPct = fv.ATR / last
	}

	return fv, nil
}

func validateWindow(candles []dto.OHLCV) error {
	for i := 1; i < len(candles); i++ {
		if candles[i].Timestamp <= candles[i-1].Timestamp {
			return fmt.Errorf("candle window not strictly ordered at index %d", i)
		}
	}
	for i, c := range candles {
		if c.Close <= 0 || c.High <= 0 || c.Low <= 0 || c.Open <= 0 {
			return fmt.Errorf("non-positive price at index %d", i)
		}
		if c.High < c.Low {
			return fmt.Errorf("high below low at index %d", i)
		}
	}
	return nil
}

// changeOver is the fractional price change across the last k candles.
func changeOver(closes []float64, k int) float64 {
	n := len(closes)
	base := closes[n-1-k]
	if base == 0 {
		return 0
	}
	return (closes[n-1] - base) / base
}

// coefVariation is the population standard deviation of the closes relative
// to their mean.
func coefVariation(closes []float64) float64 {
	m := mean(closes)
	if m == 0 {
		return 0
	}
	return stdDev(closes) / m
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

func rsi(closes []float64, period int) float64 {
	n := len(closes)
	var gains, losses float64
	for i := n - period; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	if losses == 0 {
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}

func ema(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	k := 2.0 / float64(period+1)
	out[0] = closes[0]
	for i := 1; i < len(closes); i++ {
		out[i] = closes[i]*k + out[i-1]*(1-k)
	}
	return out
}

func macd(closes []float64) (macdLine, signalLine float64) {
	fast := ema(closes, macdFast)
	slow := ema(closes, macdSlow)
	diffs := make([]float64, len(closes))
	for i := range closes {
		diffs[i] = fast[i] - slow[i]
	}
	signal := ema(diffs, macdSignal)
	return diffs[len(diffs)-1], signal[len(signal)-1]
}

func macdAt(closes []float64) (macdLine, signalLine float64) {
	return macd(closes)
}

// atr is the mean true range over the last period candles, where true range
// is simply high minus low.
func atr(candles []dto.OHLCV, period int) float64 {
	n := len(candles)
	var sum float64
	for _, c := range candles[n-period:] {
		sum += c.High - c.Low
	}
	return sum / float64(period)
}
