/*

This file derives the protocol health metrics and the coarse health
classification. The risk-score thresholds and weights are heuristic policy
constants carried over from the deployed classifier; they must not drift, or
the agent and the contract disagree about what "Emergency" means.

*/

package observer

import (
	"math"

	"github.com/neurallock/nla/internal/types"
)

// ReferenceGasPriceGwei anchors the congestion metric: congestion saturates
// at 3x this price.
const ReferenceGasPriceGwei = 30.0

// Risk score contributions. Within each group only the highest matched
// threshold counts.
const (
	priceDropMild   = -5.0  // % change, adds 1
	priceDropSevere = -10.0 // adds 2
	priceDropCrash  = -20.0 // adds 3

	volatilityElevated = 0.15 // adds 1
	volatilityHigh     = 0.3  // adds 2
	volatilityExtreme  = 0.5  // adds 3

	liquidityRatioHigh    = 0.5 // adds 1
	liquidityRatioDrained = 1.0 // adds 2

	concentrationHigh     = 0.5 // adds 1
	concentrationCritical = 0.7 // adds 2

	congestionHigh = 0.8 // adds 1

	sellPressureHigh    = 0.6 // adds 1
	sellPressureExtreme = 0.7 // adds 2
)

// Risk score to status mapping.
const (
	scoreEmergency = 10
	scoreCritical  = 7
	scoreWarning   = 4
)

// RiskSignals supplies the holder-level metrics that need data sources this
// observer does not have yet. The static implementation returns the fixed
// values the rest of the pipeline was calibrated against.
type RiskSignals interface {
	ConcentrationRisk() float64
	SmartMoneyFlow() float64
	WhaleActivity() float64
}

// StaticRiskSignals is the placeholder RiskSignals provider.
// TODO: replace concentration with a holder-distribution scan once an
// indexer endpoint for the LP token is available.
type StaticRiskSignals struct {
	Concentration float64
	SmartMoney    float64
	Whale         float64
}

func DefaultRiskSignals() StaticRiskSignals {
	return StaticRiskSignals{Concentration: 0.3, SmartMoney: 0.1, Whale: 0.2}
}

func (s StaticRiskSignals) ConcentrationRisk() float64 { return s.Concentration }
func (s StaticRiskSignals) SmartMoneyFlow() float64    { return s.SmartMoney }
func (s StaticRiskSignals) WhaleActivity() float64     { return s.Whale }

// calculateVolatility returns the sample standard deviation of
// period-over-period returns across the rolling price history. Fewer than
// two samples yields 0.
func calculateVolatility(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	if len(returns) == 0 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var sumSqDiff float64
	for _, r := range returns {
		sumSqDiff += math.Pow(r-mean, 2)
	}
	variance := sumSqDiff / float64(len(returns))

	return math.Sqrt(variance)
}

// classifyHealth maps market and health metrics to the ordered status enum
// via the additive risk score.
func classifyHealth(market types.MarketSnapshot, health types.HealthMetrics) types.HealthStatus {
	riskScore := 0

	switch {
	case market.Price24hChange < priceDropCrash:
		riskScore += 3
	case market.Price24hChange < priceDropSevere:
		riskScore += 2
	case market.Price24hChange < priceDropMild:
		riskScore += 1
	}

	switch {
	case health.Volatility > volatilityExtreme:
		riskScore += 3
	case health.Volatility > volatilityHigh:
		riskScore += 2
	case health.Volatility > volatilityElevated:
		riskScore += 1
	}

	switch {
	case health.LiquidityRatio > liquidityRatioDrained:
		riskScore += 2
	case health.LiquidityRatio > liquidityRatioHigh:
		riskScore += 1
	}

	switch {
	case health.ConcentrationRisk > concentrationCritical:
		riskScore += 2
	case health.ConcentrationRisk > concentrationHigh:
		riskScore += 1
	}

	if health.NetworkCongestion > congestionHigh {
		riskScore += 1
	}

	switch {
	case market.SellPressure > sellPressureExtreme:
		riskScore += 2
	case market.SellPressure > sellPressureHigh:
		riskScore += 1
	}

	switch {
	case riskScore >= scoreEmergency:
		return types.StatusEmergency
	case riskScore >= scoreCritical:
		return types.StatusCritical
	case riskScore >= scoreWarning:
		return types.StatusWarning
	default:
		return types.StatusHealthy
	}
}

// networkCongestion saturates at 1 when gas runs at 3x the reference price.
func networkCongestion(gasPriceGwei float64) float64 {
	return math.Min(gasPriceGwei/(ReferenceGasPriceGwei*3), 1)
}
