package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-signals/internal/dto"
)

func makeCandles(n int, next func(i int) dto.OHLCV) []dto.OHLCV {
	candles := make([]dto.OHLCV, 0, n)
	for i := 0; i < n; i++ {
		candles = append(candles, next(i))
	}
	return candles
}

func flatCandle(i int) dto.OHLCV {
	return dto.OHLCV{
		Timestamp: int64(i+1) * 3600_000,
		Open:      100,
		High:      101,
		Low:       99,
		Close:     100,
		Volume:    1000,
	}
}

func risingCandle(i int) dto.OHLCV {
	price := 100.0 + float64(i)
	return dto.OHLCV{
		Timestamp: int64(i+1) * 3600_000,
		Open:      price - 1,
		High:      price + 1,
		Low:       price - 1,
		Close:     price,
		Volume:    1000,
	}
}

func TestEngine_Compute_InsufficientData(t *testing.T) {
	engine := NewEngine(MinCandles)

	_, err := engine.Compute(makeCandles(MinCandles-1, flatCandle))
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = engine.Compute(nil)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestEngine_Compute_RejectsUnorderedWindow(t *testing.T) {
	engine := NewEngine(MinCandles)

	candles := makeCandles(MinCandles, flatCandle)
	candles[10].Timestamp = candles[9].Timestamp

	_, err := engine.Compute(candles)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientData)
}

func TestEngine_Compute_RejectsInvalidPrices(t *testing.T) {
	engine := NewEngine(MinCandles)

	candles := makeCandles(MinCandles, flatCandle)
	candles[5].Close = 0

	_, err := engine.Compute(candles)
	assert.Error(t, err)

	candles = makeCandles(MinCandles, flatCandle)
	candles[5].High = candles[5].Low - 1

	_, err = engine.Compute(candles)
	assert.Error(t, err)
}

func TestEngine_Compute_FlatWindow(t *testing.T) {
	engine := NewEngine(MinCandles)

	fv, err := engine.Compute(makeCandles(60, flatCandle))
	require.NoError(t, err)

	assert.Equal(t, 100.0, fv.LastClose)
	assert.Zero(t, fv.PriceChange5)
	assert.Zero(t, fv.PriceChange10)
	assert.Zero(t, fv.PriceChange20)
	assert.Zero(t, fv.Momentum1)
	assert.Zero(t, fv.Volatility5)

	// Every candle has a 2-point range, so the mean true range is exactly 2.
	assert.InDelta(t, 2.0, fv.ATR, 1e-9)
	assert.InDelta(t, 0.02, fv.ATRPct, 1e-9)

	assert.InDelta(t, 1.0, fv.VolumeRatio, 1e-9)
	assert.False(t, fv.TrendUp)
	assert.False(t, fv.TrendDown)
}

func TestEngine_Compute_Uptrend(t *testing.T) {
	engine := NewEngine(MinCandles)

	fv, err := engine.Compute(makeCandles(60, risingCandle))
	require.NoError(t, err)

	assert.Greater(t, fv.PriceChange5, 0.0)
	assert.Greater(t, fv.PriceChange10, fv.PriceChange5)
	assert.Greater(t, fv.Momentum1, 0.0)
	assert.True(t, fv.TrendUp)
	assert.False(t, fv.TrendDown)

	// Only gains in the window drives RSI to its ceiling.
	assert.Equal(t, 100.0, fv.RSI)
	assert.True(t, fv.RSIOverbought)
	assert.False(t, fv.RSIOversold)

	// Price rides the upper band in a steady climb.
	assert.Greater(t, fv.BBPosition, 0.5)
}

func TestEngine_Compute_Downtrend(t *testing.T) {
	engine := NewEngine(MinCandles)

	fv, err := engine.Compute(makeCandles(60, func(i int) dto.OHLCV {
		price := 200.0 - float64(i)
		return dto.OHLCV{
			Timestamp: int64(i+1) * 3600_000,
			Open:      price + 1,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000,
		}
	}))
	require.NoError(t, err)

	assert.Less(t, fv.PriceChange5, 0.0)
	assert.True(t, fv.TrendDown)
	assert.False(t, fv.TrendUp)
	assert.Less(t, fv.RSI, 30.0)
	assert.True(t, fv.RSIOversold)
	assert.Less(t, fv.BBPosition, 0.5)
}

func TestEngine_Compute_ConfiguredMinimum(t *testing.T) {
	// A larger configured window raises the bar.
	engine := NewEngine(60)
	_, err := engine.Compute(makeCandles(55, flatCandle))
	assert.ErrorIs(t, err, ErrInsufficientData)
	_, err = engine.Compute(makeCandles(60, flatCandle))
	assert.NoError(t, err)

	// A smaller one is clamped to the floor the slow indicators need.
	engine = NewEngine(10)
	_, err = engine.Compute(makeCandles(MinCandles-1, flatCandle))
	assert.ErrorIs(t, err, ErrInsufficientData)
	_, err = engine.Compute(makeCandles(MinCandles, flatCandle))
	assert.NoError(t, err)
}

func TestEngine_Compute_VolatilityIsCoefficientOfVariation(t *testing.T) {
	engine := NewEngine(MinCandles)

	// Flat at 100, then the last 5 closes fan out to 90..110.
	tail := []float64{90, 95, 100, 105, 110}
	candles := makeCandles(60, func(i int) dto.OHLCV {
		price := 100.0
		if i >= 55 {
			price = tail[i-55]
		}
		return dto.OHLCV{
			Timestamp: int64(i+1) * 3600_000,
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000,
		}
	})

	fv, err := engine.Compute(candles)
	require.NoError(t, err)

	// std({90,95,100,105,110}) = sqrt(50) around a mean of 100.
	assert.InDelta(t, math.Sqrt(50)/100, fv.Volatility5, 1e-9)
	// The 10-candle window adds five flat closes: std drops to 5.
	assert.InDelta(t, 0.05, fv.Volatility10, 1e-9)
}

func TestEngine_Compute_TrendComparesFastAndSlowAverages(t *testing.T) {
	engine := NewEngine(MinCandles)

	// A strong run-up with a final dip: the last close sits below the recent
	// highs but SMA(5) still clears SMA(20), so the trend stays up.
	tail := []float64{120, 120, 120, 120, 105}
	candles := makeCandles(60, func(i int) dto.OHLCV {
		price := 100.0
		if i >= 55 {
			price = tail[i-55]
		}
		return dto.OHLCV{
			Timestamp: int64(i+1) * 3600_000,
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000,
		}
	})

	fv, err := engine.Compute(candles)
	require.NoError(t, err)

	assert.True(t, fv.TrendUp)
	assert.False(t, fv.TrendDown)
}

func TestEngine_Compute_VolumeRatio(t *testing.T) {
	engine := NewEngine(MinCandles)

	candles := makeCandles(60, flatCandle)
	candles[59].Volume = 3000

	fv, err := engine.Compute(candles)
	require.NoError(t, err)

	// 3000 against a 20-candle average dominated by 1000-volume candles.
	assert.Greater(t, fv.VolumeRatio, 2.0)
}
