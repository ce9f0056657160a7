package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// OnChainSnapshot is a normalized read of network activity, scored in
// [-1, 1] where positive means unusually high activity.
type OnChainSnapshot struct {
	ProviderKey string
	Symbol      string
	FetchedAt   time.Time
	Score       float64
	Metrics     map[string]float64
}

// MempoolProvider fetches BTC mempool statistics from mempool.space and
// condenses them into an activity score.
type MempoolProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
}

func NewMempoolProvider(tracer trace.Tracer, baseURL string) *MempoolProvider {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = "https://mempool.space"
	}
	return &MempoolProvider{
		client:  &http.Client{Timeout: 20 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		tracer:  tracer,
	}
}

func (p *MempoolProvider) FetchSnapshot(ctx context.Context) (*OnChainSnapshot, error) {
	_, span := p.tracer.Start(ctx, "onchain.mempool.fetch")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/v1/statistics/24h", nil)
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
		return nil, fmt.Errorf("mempool error %d: %s", resp.StatusCode, string(body))
	}

	var rows []struct {
		Count           float64 `json:"count"`
		VBytesPerSecond float64 `json:"vbytes_per_second"`
		MinFee          float64 `json:"min_fee"`
		TotalFee        float64 `json:"total_fee"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode mempool payload: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("mempool payload has no rows")
	}

	r := rows[0]
	countNorm := clampScore((r.Count - 120000.0) / 180000.0)
	throughputNorm := clampScore((r.VBytesPerSecond - 1200.0) / 2400.0)
	feeLoadNorm := clampScore((r.MinFee - 5.0) / 40.0)
	totalFeeNorm := clampScore((r.TotalFee - 2_000_000.0) / 8_000_000.0)

	score := clampScore((0.35 * countNorm) + (0.35 * throughputNorm) + (0.15 * totalFeeNorm) - (0.15 * feeLoadNorm))

	return &OnChainSnapshot{
		ProviderKey: "btc_mempool",
		Symbol:      "BTC",
		FetchedAt:   time.Now().UTC(),
		Score:       score,
		Metrics: map[string]float64{
			"count":             r.Count,
			"vbytes_per_second": r.VBytesPerSecond,
			"min_fee":           r.MinFee,
			"total_fee":         r.TotalFee,
		},
	}, nil
}

func clampScore(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
