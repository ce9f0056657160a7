package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"signalforge/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const binanceFuturesBaseURL = "https://fapi.binance.com"

// BinanceProvider fetches candles, funding rates and order book depth
// from the Binance USD-M futures public API.
type BinanceProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *RateLimiter
}

// NewBinanceProvider creates a provider with built-in rate limiting.
// The public futures endpoints allow a generous weight budget; one
// token every 250ms keeps us well under it.
func NewBinanceProvider(tracer trace.Tracer, baseURL string) *BinanceProvider {
	if baseURL == "" {
		baseURL = binanceFuturesBaseURL
	}
	return &BinanceProvider{
		client:  &http.Client{Timeout: 20 * time.Second},
		baseURL: baseURL,
		tracer:  tracer,
		limiter: NewRateLimiter(20, 250*time.Millisecond),
	}
}

// FetchKlines fetches up to limit closed candles for symbol/timeframe,
// oldest first.
func (p *BinanceProvider) FetchKlines(ctx context.Context, symbol, timeframe string, limit int) ([]*domain.Candle, error) {
	_, span := p.tracer.Start(ctx, "binance.fetch-klines")
	defer span.End()

	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	url := fmt.Sprintf("%s/fapi/v1/klines?symbol=%s&interval=%s&limit=%d",
		p.baseURL, symbol, timeframe, limit)

	body, err := p.doRequest(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch klines for %s %s: %w", symbol, timeframe, err)
	}

	// Each row: [openTime, open, high, low, close, volume, closeTime, ...]
	var raw [][]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse klines for %s: %w", symbol, err)
	}

	candles := make([]*domain.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 7 {
			continue
		}
		var openMs int64
		if err := json.Unmarshal(row[0], &openMs); err != nil {
			continue
		}
		open, err1 := quotedFloat(row[1])
		high, err2 := quotedFloat(row[2])
		low, err3 := quotedFloat(row[3])
		closePx, err4 := quotedFloat(row[4])
		volume, err5 := quotedFloat(row[5])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}
		candles = append(candles, &domain.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			OpenTime:  time.UnixMilli(openMs).UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    volume,
		})
	}
	return candles, nil
}

// FundingSnapshot is the current funding state of a perpetual contract.
type FundingSnapshot struct {
	Symbol      string
	FundingRate float64
	MarkPrice   float64
	NextFunding time.Time
	FetchedAt   time.Time
}

// FetchFundingRate fetches the current funding rate from the premium
// index endpoint.
func (p *BinanceProvider) FetchFundingRate(ctx context.Context, symbol string) (*FundingSnapshot, error) {
	_, span := p.tracer.Start(ctx, "binance.fetch-funding")
	defer span.End()

	url := fmt.Sprintf("%s/fapi/v1/premiumIndex?symbol=%s", p.baseURL, symbol)
	body, err := p.doRequest(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch funding for %s: %w", symbol, err)
	}

	var raw struct {
		Symbol          string `json:"symbol"`
		MarkPrice       string `json:"markPrice"`
		LastFundingRate string `json:"lastFundingRate"`
		NextFundingTime int64  `json:"nextFundingTime"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse funding for %s: %w", symbol, err)
	}

	rate, err := strconv.ParseFloat(raw.LastFundingRate, 64)
	if err != nil {
		return nil, fmt.Errorf("parse funding rate %q: %w", raw.LastFundingRate, err)
	}
	mark, _ := strconv.ParseFloat(raw.MarkPrice, 64)

	return &FundingSnapshot{
		Symbol:      symbol,
		FundingRate: rate,
		MarkPrice:   mark,
		NextFunding: time.UnixMilli(raw.NextFundingTime).UTC(),
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// DepthSnapshot summarizes resting order book liquidity near the mid.
type DepthSnapshot struct {
	Symbol    string
	BidVolume float64
	AskVolume float64
	// Imbalance is (bid-ask)/(bid+ask) in [-1, 1]; positive means
	// bid-heavy books.
	Imbalance float64
	FetchedAt time.Time
}

// FetchDepth fetches the top levels of the order book and computes the
// bid/ask volume imbalance.
func (p *BinanceProvider) FetchDepth(ctx context.Context, symbol string, levels int) (*DepthSnapshot, error) {
	_, span := p.tracer.Start(ctx, "binance.fetch-depth")
	defer span.End()

	if levels <= 0 {
		levels = 100
	}
	url := fmt.Sprintf("%s/fapi/v1/depth?symbol=%s&limit=%d", p.baseURL, symbol, levels)
	body, err := p.doRequest(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch depth for %s: %w", symbol, err)
	}

	var raw struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse depth for %s: %w", symbol, err)
	}

	bidVol := sumLevelVolume(raw.Bids)
	askVol := sumLevelVolume(raw.Asks)
	imbalance := 0.0
	if total := bidVol + askVol; total > 0 {
		imbalance = (bidVol - askVol) / total
	}

	return &DepthSnapshot{
		Symbol:    symbol,
		BidVolume: bidVol,
		AskVolume: askVol,
		Imbalance: imbalance,
		FetchedAt: time.Now().UTC(),
	}, nil
}

func sumLevelVolume(levels [][]string) float64 {
	var total float64
	for _, lvl := range levels {
		if len(lvl) < 2 {
			continue
		}
		qty, err := strconv.ParseFloat(lvl[1], 64)
		if err != nil {
			continue
		}
		total += qty
	}
	return total
}

func quotedFloat(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}

func (p *BinanceProvider) doRequest(ctx context.Context, url string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("binance API error %d: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}
