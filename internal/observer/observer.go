/*

This file contains the state observer: three independent fetches executed
concurrently with individual timeouts, fused into one immutable snapshot with
a derived health classification. Every fetch fails soft to a documented
neutral default so a flaky data source degrades the snapshot instead of
killing the cycle.

*/

package observer

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/neurallock/nla/internal/chain"
	"github.com/neurallock/nla/internal/logger"
	"github.com/neurallock/nla/internal/types"
	"github.com/neurallock/nla/internal/utils"
)

const (
	marketTimeout  = 15 * time.Second
	signalsTimeout = 30 * time.Second
	healthTimeout  = 15 * time.Second

	// LP token decimals assumed for TVL conversion.
	lpTokenDecimals = 18
)

// Config holds the dependencies for creating an Observer.
type Config struct {
	Market  MarketSource
	Reader  chain.Reader
	Risk    RiskSignals
	Locker  common.Address
}

// Observer collects market, protocol and health signals and fuses them into
// one versioned state snapshot per cycle. The rolling price/volume history
// lives here and survives across cycles; it is only mutated from the
// control-loop goroutine.
type Observer struct {
	market MarketSource
	reader chain.Reader
	risk   RiskSignals
	locker common.Address

	priceHistory  *history
	volumeHistory *history

	logger zerolog.Logger
}

// New validates the dependencies and creates an Observer.
func New(cfg Config) (*Observer, error) {
	if cfg.Market == nil {
		return nil, fmt.Errorf("market source cannot be nil")
	}
	if cfg.Reader == nil {
		return nil, fmt.Errorf("chain reader cannot be nil")
	}
	risk := cfg.Risk
	if risk == nil {
		risk = DefaultRiskSignals()
	}

	return &Observer{
		market:        cfg.Market,
		reader:        cfg.Reader,
		risk:          risk,
		locker:        cfg.Locker,
		priceHistory:  newHistory(historyMaxSamples),
		volumeHistory: newHistory(historyMaxSamples),
		logger:        logger.GetForComponent("state_observer"),
	}, nil
}

// chainHealthRaw is the on-chain half of the health fetch.
type chainHealthRaw struct {
	feeData       chain.FeeData
	lockerBalance *big.Int
}

// Fuse collects all three data sources concurrently and produces the fused
// state snapshot. It never returns an error for data-source failures; those
// degrade to neutral defaults.
func (o *Observer) Fuse(ctx context.Context) types.FusedState {
	var (
		wg      sync.WaitGroup
		pair    PairStats
		pairOK  bool
		signals = neutralModularSignals()
		raw     chainHealthRaw
	)

	now := time.Now()

	wg.Add(3)
	go func() {
		defer wg.Done()
		fetchCtx, cancel := context.WithTimeout(ctx, marketTimeout)
		defer cancel()
		stats, err := o.market.PairStats(fetchCtx)
		if err != nil {
			o.logger.Warn().Err(err).Msg("Market fetch failed, using neutral defaults")
			return
		}
		pair = stats
		pairOK = true
	}()
	go func() {
		defer wg.Done()
		fetchCtx, cancel := context.WithTimeout(ctx, signalsTimeout)
		defer cancel()
		s, err := fetchModularSignals(fetchCtx, o.reader, now)
		if err != nil {
			o.logger.Warn().Err(err).Msg("Modular signal fetch failed, using neutral defaults")
			return
		}
		signals = s
	}()
	go func() {
		defer wg.Done()
		fetchCtx, cancel := context.WithTimeout(ctx, healthTimeout)
		defer cancel()
		raw = o.fetchChainHealth(fetchCtx)
	}()
	wg.Wait()

	market := o.buildMarketSnapshot(pair, pairOK)
	health := o.buildHealthMetrics(market, raw)
	status := classifyHealth(market, health)

	state := types.FusedState{
		Market:       market,
		Modular:      signals,
		Health:       health,
		HealthStatus: status,
		Timestamp:    now,
		StateHash:    computeStateHash(market, health, signals, now),
	}

	o.logger.Info().
		Str("healthStatus", status.String()).
		Float64("price", market.Price).
		Float64("tvl", health.TVL).
		Float64("volatility", health.Volatility).
		Int("activeLocks", signals.ActiveLocks).
		Str("stateHash", state.StateHash.Hex()).
		Msg("Fused state computed")

	return state
}

// buildMarketSnapshot derives pressure ratios and feeds the rolling history.
// A failed fetch yields the neutral snapshot (0.5/0.5 pressure, zeros) and
// leaves the history untouched.
func (o *Observer) buildMarketSnapshot(pair PairStats, ok bool) types.MarketSnapshot {
	if !ok {
		return types.MarketSnapshot{BuyPressure: 0.5, SellPressure: 0.5}
	}

	totalTxns := pair.Buys24h + pair.Sells24h
	buyPressure, sellPressure := 0.5, 0.5
	if totalTxns > 0 {
		buyPressure = float64(pair.Buys24h) / float64(totalTxns)
		sellPressure = float64(pair.Sells24h) / float64(totalTxns)
	}

	o.priceHistory.Append(pair.PriceUSD)
	o.volumeHistory.Append(pair.Volume24h)

	return types.MarketSnapshot{
		Price:          pair.PriceUSD,
		Price24hChange: pair.PriceChange24h,
		Volume24h:      pair.Volume24h,
		Liquidity:      pair.LiquidityUSD,
		MarketCap:      pair.FDV,
		TxCount24h:     totalTxns,
		BuyPressure:    buyPressure,
		SellPressure:   sellPressure,
	}
}

// fetchChainHealth reads fee data and the locker's LP token balance. Both
// fail soft to zero values.
func (o *Observer) fetchChainHealth(ctx context.Context) chainHealthRaw {
	raw := chainHealthRaw{lockerBalance: new(big.Int)}

	feeData, err := o.reader.FeeData(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Fee data fetch failed, assuming zero gas price")
	} else {
		raw.feeData = feeData
	}

	balance, err := o.reader.TokenBalance(ctx, o.locker)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Locker balance fetch failed, assuming zero TVL")
	} else {
		raw.lockerBalance = balance
	}

	return raw
}

// buildHealthMetrics combines market data, chain fee data and the rolling
// history into the health metric vector.
func (o *Observer) buildHealthMetrics(market types.MarketSnapshot, raw chainHealthRaw) types.HealthMetrics {
	gasPriceGwei := raw.feeData.GasPriceGwei()

	var tvl float64
	if balance, err := utils.FixedToFloat64(raw.lockerBalance, lpTokenDecimals); err == nil {
		tvl = balance * market.Price
	}

	var liquidityRatio float64
	if market.Liquidity > 0 {
		liquidityRatio = market.Volume24h / market.Liquidity
	}

	return types.HealthMetrics{
		TVL:               tvl,
		Volatility:        calculateVolatility(o.priceHistory.Samples()),
		LiquidityRatio:    liquidityRatio,
		ConcentrationRisk: o.risk.ConcentrationRisk(),
		SmartMoneyFlow:    o.risk.SmartMoneyFlow(),
		WhaleActivity:     o.risk.WhaleActivity(),
		GasPriceGwei:      gasPriceGwei,
		NetworkCongestion: networkCongestion(gasPriceGwei),
	}
}

// computeStateHash produces the deterministic content hash binding decisions
// to the numeric state they were computed from. The packing matches the
// contract's verification: five uint256 values, tightly packed.
func computeStateHash(market types.MarketSnapshot, health types.HealthMetrics, signals types.ModularSignals, ts time.Time) common.Hash {
	price, err := utils.Float64ToFixed(market.Price, 8)
	if err != nil {
		price = new(big.Int)
	}
	tvl, err := utils.Float64ToFixed(health.TVL, 8)
	if err != nil {
		tvl = new(big.Int)
	}
	volatility, err := utils.Float64ToFixed(health.Volatility, 4)
	if err != nil {
		volatility = new(big.Int)
	}

	packed := make([]byte, 0, 5*32)
	for _, v := range []*big.Int{
		price,
		tvl,
		volatility,
		big.NewInt(int64(signals.ActiveLocks)),
		big.NewInt(ts.UnixMilli()),
	} {
		packed = append(packed, common.LeftPadBytes(v.Bytes(), 32)...)
	}

	return crypto.Keccak256Hash(packed)
}
