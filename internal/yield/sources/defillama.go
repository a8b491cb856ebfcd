package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/web3-frozen/yield-guardian/internal/risk"
	"github.com/web3-frozen/yield-guardian/internal/yield"
)

const defiLlamaAPI = "https://yields.llama.fi"

type llamaPool struct {
	Pool    string  `json:"pool"`
	Chain   string  `json:"chain"`
	Project string  `json:"project"`
	Symbol  string  `json:"symbol"`
	TVLUsd  float64 `json:"tvlUsd"`
	APY     float64 `json:"apy"`
}

type llamaResp struct {
	Status string      `json:"status"`
	Data   []llamaPool `json:"data"`
}

// DefiLlama quotes one project on one chain from the DefiLlama yields API.
type DefiLlama struct {
	name    string
	project string
	chain   string
	risk    risk.Score
	client  *resty.Client
}

// NewDefiLlama creates a source named name reading project pools (e.g.
// "aave-v3") on chain (e.g. "Ethereum").
func NewDefiLlama(name, project, chain string, score risk.Score) *DefiLlama {
	return newDefiLlama(name, project, chain, score, defiLlamaAPI)
}

func newDefiLlama(name, project, chain string, score risk.Score, baseURL string) *DefiLlama {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("Accept", "application/json")
	return &DefiLlama{name: name, project: project, chain: chain, risk: score, client: client}
}

func (d *DefiLlama) Name() string { return d.name }

func (d *DefiLlama) FetchYield(ctx context.Context, asset string) (*yield.Quote, error) {
	pool, err := d.findPool(ctx, asset)
	if err != nil {
		return nil, err
	}
	return &yield.Quote{
		Venue:     d.name,
		Asset:     asset,
		APY:       pool.APY,
		TVL:       decimal.NewFromFloat(pool.TVLUsd).Floor().String(),
		RiskScore: d.risk,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (d *DefiLlama) FetchTVL(ctx context.Context, asset string) (string, error) {
	pool, err := d.findPool(ctx, asset)
	if err != nil {
		return "", err
	}
	return decimal.NewFromFloat(pool.TVLUsd).Floor().String(), nil
}

func (d *DefiLlama) FetchRiskScore(_ context.Context) (risk.Score, error) {
	return d.risk, nil
}

func (d *DefiLlama) findPool(ctx context.Context, asset string) (*llamaPool, error) {
	var body llamaResp
	resp, err := d.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/pools")
	if err != nil {
		return nil, fmt.Errorf("defillama API: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("defillama API status: %d", resp.StatusCode())
	}

	var best *llamaPool
	for i := range body.Data {
		p := &body.Data[i]
		if p.Project != d.project || !strings.EqualFold(p.Chain, d.chain) {
			continue
		}
		if p.Symbol != asset && p.Symbol != asset+".e" {
			continue
		}
		// several pools can match; quote the deepest one
		if best == nil || p.TVLUsd > best.TVLUsd {
			best = p
		}
	}
	if best == nil {
		return nil, fmt.Errorf("pool not found: %s/%s/%s", d.project, d.chain, asset)
	}
	return best, nil
}
