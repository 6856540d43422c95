/*

This file contains the market-facing observation types: the per-cycle market
snapshot pulled from the pair statistics provider and the protocol health
metrics derived from it.

*/

package types

// MarketSnapshot is the market data vector captured once per cycle.
// It is immutable after capture; the next cycle supersedes it.
type MarketSnapshot struct {
	Price          float64 `json:"price"`            // Current pair price in USD
	Price24hChange float64 `json:"price_24h_change"` // 24h price change (%)
	Volume24h      float64 `json:"volume_24h"`       // 24h trading volume in USD
	Liquidity      float64 `json:"liquidity"`        // Liquidity depth in USD
	MarketCap      float64 `json:"market_cap"`       // Fully diluted valuation
	TxCount24h     int     `json:"tx_count_24h"`     // 24h buy+sell transaction count
	BuyPressure    float64 `json:"buy_pressure"`     // buys/(buys+sells), 0.5 when no txns
	SellPressure   float64 `json:"sell_pressure"`    // sells/(buys+sells), 0.5 when no txns
}

// HealthMetrics are the protocol risk metrics combined from market data,
// lock signals and current chain fee data.
type HealthMetrics struct {
	TVL               float64 `json:"tvl"`                // Total value locked in USD
	Volatility        float64 `json:"volatility"`         // Stddev of rolling period returns, >= 0
	LiquidityRatio    float64 `json:"liquidity_ratio"`    // volume24h / liquidity, 0 if no liquidity
	ConcentrationRisk float64 `json:"concentration_risk"` // Holder concentration, 0 to 1
	SmartMoneyFlow    float64 `json:"smart_money_flow"`   // Net smart-money signal, -1 to 1
	WhaleActivity     float64 `json:"whale_activity"`     // Large wallet activity index
	GasPriceGwei      float64 `json:"gas_price_gwei"`     // Current gas price in Gwei
	NetworkCongestion float64 `json:"network_congestion"` // min(gas/(3*reference), 1), 0 to 1
}
