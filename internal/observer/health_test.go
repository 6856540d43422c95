package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/neurallock/nla/internal/types"
)

func TestClassifyHealth(t *testing.T) {
	tests := []struct {
		name   string
		market types.MarketSnapshot
		health types.HealthMetrics
		want   types.HealthStatus
	}{
		{
			name:   "calm market is healthy",
			market: types.MarketSnapshot{Price24hChange: 1.2, SellPressure: 0.5},
			health: types.HealthMetrics{Volatility: 0.05, LiquidityRatio: 0.2, ConcentrationRisk: 0.3},
			want:   types.StatusHealthy,
		},
		{
			name:   "single severe factor stays below warning",
			market: types.MarketSnapshot{SellPressure: 0.5},
			health: types.HealthMetrics{Volatility: 0.55},
			want:   types.StatusHealthy,
		},
		{
			name:   "score five is warning",
			market: types.MarketSnapshot{Price24hChange: -12, SellPressure: 0.5},
			health: types.HealthMetrics{Volatility: 0.35, NetworkCongestion: 0.85},
			want:   types.StatusWarning,
		},
		{
			name:   "score eight is critical",
			market: types.MarketSnapshot{Price24hChange: -25, SellPressure: 0.75},
			health: types.HealthMetrics{Volatility: 0.55},
			want:   types.StatusCritical,
		},
		{
			name:   "score ten is emergency",
			market: types.MarketSnapshot{Price24hChange: -25, SellPressure: 0.75},
			health: types.HealthMetrics{Volatility: 0.55, LiquidityRatio: 1.2},
			want:   types.StatusEmergency,
		},
		{
			name:   "thresholds are strict inequalities",
			market: types.MarketSnapshot{Price24hChange: -5, SellPressure: 0.6},
			health: types.HealthMetrics{Volatility: 0.15, LiquidityRatio: 0.5, ConcentrationRisk: 0.5, NetworkCongestion: 0.8},
			want:   types.StatusHealthy,
		},
		{
			name:   "only the highest volatility threshold counts",
			market: types.MarketSnapshot{Price24hChange: -12, SellPressure: 0.5},
			health: types.HealthMetrics{Volatility: 0.31},
			want:   types.StatusHealthy, // 2 + 2 = 4 would be warning if tiers stacked
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyHealth(tt.market, tt.health))
		})
	}
}

func TestClassifyHealthVolatilityTierDoesNotStack(t *testing.T) {
	// Volatility 0.31 crosses both the elevated and high thresholds but must
	// only contribute its highest tier (2, not 3).
	market := types.MarketSnapshot{Price24hChange: -12, SellPressure: 0.65}
	health := types.HealthMetrics{Volatility: 0.31, NetworkCongestion: 0.85}

	// 2 (price) + 2 (volatility) + 1 (congestion) + 1 (sell pressure) = 6.
	assert.Equal(t, types.StatusWarning, classifyHealth(market, health))
}

func TestClassifyHealthMonotonicInVolatility(t *testing.T) {
	// With everything else fixed, rising volatility must never improve the
	// status. StatusHealthy < StatusWarning < StatusCritical < StatusEmergency.
	market := types.MarketSnapshot{Price24hChange: -12, SellPressure: 0.65}

	previous := types.StatusHealthy
	for _, volatility := range []float64{0.1, 0.4, 0.6} {
		status := classifyHealth(market, types.HealthMetrics{Volatility: volatility})
		assert.GreaterOrEqual(t, status, previous,
			"status regressed at volatility %.1f", volatility)
		previous = status
	}
}

func TestCalculateVolatility(t *testing.T) {
	t.Run("fewer than two samples yields zero", func(t *testing.T) {
		assert.Zero(t, calculateVolatility(nil))
		assert.Zero(t, calculateVolatility([]float64{1.0}))
	})

	t.Run("constant prices yield zero", func(t *testing.T) {
		assert.Zero(t, calculateVolatility([]float64{2, 2, 2, 2}))
	})

	t.Run("larger swings yield larger volatility", func(t *testing.T) {
		mild := calculateVolatility([]float64{100, 101, 100, 101})
		wild := calculateVolatility([]float64{100, 120, 90, 130})
		assert.Greater(t, wild, mild)
	})

	t.Run("zero prices are skipped not divided by", func(t *testing.T) {
		assert.NotPanics(t, func() {
			calculateVolatility([]float64{0, 100, 110})
		})
	})
}

func TestNetworkCongestion(t *testing.T) {
	assert.Zero(t, networkCongestion(0))
	assert.InDelta(t, 0.5, networkCongestion(45), 1e-9)
	assert.InDelta(t, 1.0, networkCongestion(90), 1e-9)
	assert.InDelta(t, 1.0, networkCongestion(500), 1e-9) // saturates
}

func TestHistoryEviction(t *testing.T) {
	h := newHistory(3)
	for i := 1; i <= 5; i++ {
		h.Append(float64(i))
	}

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []float64{3, 4, 5}, h.Samples())
}

func TestHistorySamplesReturnsCopy(t *testing.T) {
	h := newHistory(3)
	h.Append(1)
	h.Append(2)

	samples := h.Samples()
	samples[0] = 99

	assert.Equal(t, []float64{1, 2}, h.Samples())
}
