/*

This file is used to fetch live pair statistics from the DexScreener API.

The observer derives buy/sell pressure from the 24h transaction counts and
keeps a bounded rolling history of price and volume samples for volatility
calculation across cycles.

*/

package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/neurallock/nla/internal/logger"
)

var marketLogger = logger.GetForComponent("market_retriever")

var ErrPairNotFound = errors.New("pair not found in market data response")

const (
	marketBaseURL        = "https://api.dexscreener.com/latest/dex/pairs/ethereum"
	marketFetchTimeout   = 15 * time.Second
	historyMaxSamples    = 100
)

// PairStats is the raw pair statistics view returned by a market source.
type PairStats struct {
	PriceUSD       float64
	PriceChange24h float64
	Volume24h      float64
	LiquidityUSD   float64
	FDV            float64
	Buys24h        int
	Sells24h       int
}

// MarketSource fetches pair statistics for a configured trading pair.
type MarketSource interface {
	PairStats(ctx context.Context) (PairStats, error)
}

// dexScreenerResponse mirrors the fields of the pairs endpoint we consume.
type dexScreenerResponse struct {
	Pairs []struct {
		PriceUSD    string `json:"priceUsd"`
		PriceChange struct {
			H24 float64 `json:"h24"`
		} `json:"priceChange"`
		Volume struct {
			H24 float64 `json:"h24"`
		} `json:"volume"`
		Liquidity struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
		FDV  float64 `json:"fdv"`
		Txns struct {
			H24 struct {
				Buys  int `json:"buys"`
				Sells int `json:"sells"`
			} `json:"h24"`
		} `json:"txns"`
	} `json:"pairs"`
}

// DexScreenerSource implements MarketSource against the public pairs API.
type DexScreenerSource struct {
	pairID  string
	baseURL string
	client  *http.Client
}

func NewDexScreenerSource(pairID string) *DexScreenerSource {
	return &DexScreenerSource{
		pairID:  pairID,
		baseURL: marketBaseURL,
		client:  &http.Client{Timeout: marketFetchTimeout},
	}
}

func (s *DexScreenerSource) PairStats(ctx context.Context) (PairStats, error) {
	url := fmt.Sprintf("%s/%s", s.baseURL, s.pairID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return PairStats{}, fmt.Errorf("failed to build market data request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return PairStats{}, fmt.Errorf("market data request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PairStats{}, fmt.Errorf("market data request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return PairStats{}, fmt.Errorf("failed to read market data response: %w", err)
	}

	var decoded dexScreenerResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return PairStats{}, fmt.Errorf("failed to decode market data response: %w", err)
	}

	if len(decoded.Pairs) == 0 {
		return PairStats{}, ErrPairNotFound
	}

	pair := decoded.Pairs[0]
	price, err := parsePrice(pair.PriceUSD)
	if err != nil {
		return PairStats{}, err
	}

	marketLogger.Debug().
		Float64("price", price).
		Float64("volume24h", pair.Volume.H24).
		Float64("liquidity", pair.Liquidity.USD).
		Msg("Fetched pair statistics")

	return PairStats{
		PriceUSD:       price,
		PriceChange24h: pair.PriceChange.H24,
		Volume24h:      pair.Volume.H24,
		LiquidityUSD:   pair.Liquidity.USD,
		FDV:            pair.FDV,
		Buys24h:        pair.Txns.H24.Buys,
		Sells24h:       pair.Txns.H24.Sells,
	}, nil
}

func parsePrice(raw string) (float64, error) {
	if raw == "" {
		return 0, errors.New("market data response has empty price")
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q in market data response: %w", raw, err)
	}
	return price, nil
}
