package yield

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/web3-frozen/yield-guardian/internal/cache"
	"github.com/web3-frozen/yield-guardian/internal/metrics"
	"github.com/web3-frozen/yield-guardian/internal/portfolio"
)

const cacheKeyPrefix = "yields:"

// Config tunes caching and the rebalance economics. The native price is a
// fixed assumption, not a live feed.
type Config struct {
	CacheTTL            time.Duration
	NativeUSDPrice      decimal.Decimal
	GasUnitsPerTransfer uint64
	MinAPYGain          float64 // percentage points
	MaxBreakEvenDays    float64
}

// DefaultConfig returns a 300s TTL, 2000 USD per native unit, 200k gas per
// withdraw+deposit, 0.5pp minimum gain and a 30 day break-even window.
func DefaultConfig() Config {
	return Config{
		CacheTTL:            300 * time.Second,
		NativeUSDPrice:      decimal.NewFromInt(2000),
		GasUnitsPerTransfer: 200_000,
		MinAPYGain:          0.5,
		MaxBreakEvenDays:    30,
	}
}

// Aggregator fans quote requests out to every registered Source.
type Aggregator struct {
	sources []Source
	cache   cache.Cache
	cfg     Config
	logger  *slog.Logger

	mu     sync.RWMutex
	venues map[string]Venue
	tvl    map[string]string
}

// NewAggregator creates an Aggregator. Source order is the tie-break order
// for equal APYs.
func NewAggregator(sources []Source, c cache.Cache, cfg Config, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		sources: sources,
		cache:   c,
		cfg:     cfg,
		logger:  logger,
		venues:  make(map[string]Venue),
		tvl:     make(map[string]string),
	}
}

// SetVenues registers venue descriptors used when building opportunities.
func (a *Aggregator) SetVenues(venues []Venue) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, v := range venues {
		a.venues[v.Name] = v
	}
}

// SourceNames returns the registered source names in registration order.
func (a *Aggregator) SourceNames() []string {
	names := make([]string, 0, len(a.sources))
	for _, s := range a.sources {
		names = append(names, s.Name())
	}
	return names
}

// TVL returns the last TVL observed for venue. It satisfies risk.TVLLookup.
func (a *Aggregator) TVL(venue string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.tvl[venue]
	return v, ok
}

// GetAllYields returns every source's quote for asset, sorted by APY
// descending. Results are cached for the configured TTL. Any failing source
// fails the whole call with ErrUpstream.
func (a *Aggregator) GetAllYields(ctx context.Context, asset string) ([]Quote, error) {
	key := cacheKeyPrefix + asset
	if raw, ok := a.cache.Get(ctx, key); ok {
		var cached []Quote
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		a.logger.Warn("discarding corrupt cache entry", "key", key)
	}

	quotes := make([]Quote, len(a.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range a.sources {
		i, src := i, src
		g.Go(func() error {
			q, err := a.fetch(gctx, src, asset)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrUpstream, src.Name(), err)
			}
			quotes[i] = *q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(quotes, func(i, j int) bool { return quotes[i].APY > quotes[j].APY })
	a.observe(asset, quotes)

	raw, err := json.Marshal(quotes)
	if err != nil {
		return nil, fmt.Errorf("encode quotes: %w", err)
	}
	a.cache.Set(ctx, key, raw, a.cfg.CacheTTL)
	return quotes, nil
}

// GetBestYield returns the highest-APY quote for asset.
func (a *Aggregator) GetBestYield(ctx context.Context, asset string) (*Quote, error) {
	quotes, err := a.GetAllYields(ctx, asset)
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, ErrNoQuotes
	}
	return &quotes[0], nil
}

// Comparison is the side-by-side view of all venues for one asset.
type Comparison struct {
	Asset     string  `json:"asset"`
	Venues    []Quote `json:"venues"`
	BestVenue string  `json:"best_venue"`
	AvgAPY    float64 `json:"avg_apy"`
}

// GetProtocolComparison ranks venues for asset and reports the mean APY.
func (a *Aggregator) GetProtocolComparison(ctx context.Context, asset string) (*Comparison, error) {
	quotes, err := a.GetAllYields(ctx, asset)
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, ErrNoQuotes
	}
	var sum float64
	for _, q := range quotes {
		sum += q.APY
	}
	return &Comparison{
		Asset:     asset,
		Venues:    quotes,
		BestVenue: quotes[0].Venue,
		AvgAPY:    sum / float64(len(quotes)),
	}, nil
}

// Days is a day count that encodes +Inf as JSON null.
type Days float64

func (d Days) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(d), 0) || math.IsNaN(float64(d)) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(float64(d), 'f', 2, 64)), nil
}

// RebalanceCheck is the outcome of ShouldRebalance.
type RebalanceCheck struct {
	ShouldRebalance     bool    `json:"should_rebalance"`
	FromVenue           string  `json:"from_venue"`
	ToVenue             string  `json:"to_venue"`
	Amount              string  `json:"amount"`
	Reasoning           string  `json:"reasoning"`
	ExpectedGain        float64 `json:"expected_gain"`
	EstimatedGasCostUSD string  `json:"estimated_gas_cost_usd"`
	DaysToBreakEven     Days    `json:"days_to_break_even"`
}

// ShouldRebalance decides whether moving amount of asset out of currentVenue
// into the best venue recovers its gas cost soon enough. amount is a decimal
// string in asset units; gasPriceWei is the price per gas unit.
func (a *Aggregator) ShouldRebalance(ctx context.Context, currentVenue, asset, amount string, gasPriceWei *big.Int) (*RebalanceCheck, error) {
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if amt.IsNegative() {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, amount)
	}
	if gasPriceWei == nil {
		gasPriceWei = new(big.Int)
	}

	quotes, err := a.GetAllYields(ctx, asset)
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, ErrNoQuotes
	}

	var current *Quote
	for i := range quotes {
		if quotes[i].Venue == currentVenue {
			current = &quotes[i]
			break
		}
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %s has no %s quote", ErrVenueNotFound, currentVenue, asset)
	}
	best := quotes[0]

	gain := decimal.NewFromFloat(best.APY).Sub(decimal.NewFromFloat(current.APY))

	gasWei := new(big.Int).Mul(new(big.Int).SetUint64(a.cfg.GasUnitsPerTransfer), gasPriceWei)
	gasCostUSD := decimal.NewFromBigInt(gasWei, -18).Mul(a.cfg.NativeUSDPrice)
	annualGainUSD := amt.Mul(gain).Div(decimal.NewFromInt(100))

	days := math.Inf(1)
	if annualGainUSD.IsPositive() {
		days, _ = gasCostUSD.Div(annualGainUSD).Mul(decimal.NewFromInt(365)).Float64()
	}

	gainF, _ := gain.Float64()
	should := gain.GreaterThanOrEqual(decimal.NewFromFloat(a.cfg.MinAPYGain)) &&
		days <= a.cfg.MaxBreakEvenDays &&
		best.Venue != current.Venue

	var reasoning string
	if should {
		reasoning = fmt.Sprintf("%.2f%% APY improvement. Gas cost recovered in %.0f days.", gainF, math.Round(days))
		a.cache.Delete(ctx, cacheKeyPrefix+asset)
	} else {
		reasoning = fmt.Sprintf("Insufficient gain (%.2f%%) or high gas cost (%.0f days to break even)", gainF, days)
	}

	return &RebalanceCheck{
		ShouldRebalance:     should,
		FromVenue:           currentVenue,
		ToVenue:             best.Venue,
		Amount:              amount,
		Reasoning:           reasoning,
		ExpectedGain:        gainF,
		EstimatedGasCostUSD: gasCostUSD.StringFixed(2),
		DaysToBreakEven:     Days(days),
	}, nil
}

// CollectQuotes queries every source concurrently and reports each outcome
// separately. Failing sources never fail the call. Results keep
// registration order and bypass the cache.
func (a *Aggregator) CollectQuotes(ctx context.Context, asset string) []SourceResult {
	results := make([]SourceResult, len(a.sources))
	var g errgroup.Group
	for i, src := range a.sources {
		i, src := i, src
		g.Go(func() error {
			q, err := a.fetch(ctx, src, asset)
			results[i] = SourceResult{Source: src.Name(), Quote: q, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	ok := make([]Quote, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			ok = append(ok, *r.Quote)
		}
	}
	a.observe(asset, ok)
	return results
}

// Opportunities collects quotes for every asset and converts the
// non-zero ones into fraction-scale opportunities. Failing sources are
// logged and skipped; ErrNoQuotes is returned only when sources exist and
// none of them answered.
func (a *Aggregator) Opportunities(ctx context.Context, assets []string) ([]portfolio.Opportunity, error) {
	var opps []portfolio.Opportunity
	answered := 0
	for _, asset := range assets {
		for _, r := range a.CollectQuotes(ctx, asset) {
			if r.Err != nil {
				a.logger.Warn("quote source skipped", "source", r.Source, "asset", asset, "error", r.Err)
				continue
			}
			answered++
			if r.Quote.APY <= 0 {
				continue
			}
			opps = append(opps, a.toOpportunity(*r.Quote))
		}
	}
	if answered == 0 && len(a.sources) > 0 && len(assets) > 0 {
		return nil, ErrNoQuotes
	}
	return opps, nil
}

func (a *Aggregator) toOpportunity(q Quote) portfolio.Opportunity {
	a.mu.RLock()
	venue, ok := a.venues[q.Venue]
	a.mu.RUnlock()
	if !ok {
		venue = Venue{Name: q.Venue, Kind: portfolio.KindOther}
	}

	var liquidity float64
	if tvl, err := decimal.NewFromString(q.TVL); err == nil {
		liquidity, _ = tvl.Float64()
	}

	return portfolio.Opportunity{
		Venue:        venue,
		Asset:        q.Asset,
		CurrentYield: q.APY / 100,
		RiskScore:    q.RiskScore.Fraction(),
		Liquidity:    liquidity,
		Timestamp:    q.Timestamp,
	}
}

func (a *Aggregator) fetch(ctx context.Context, src Source, asset string) (*Quote, error) {
	name := src.Name()
	start := time.Now()
	q, err := src.FetchYield(ctx, asset)
	metrics.SourceFetchDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err == nil && q == nil {
		err = fmt.Errorf("%s returned no quote", name)
	}
	if err != nil {
		metrics.SourceFetchTotal.WithLabelValues(name, "error").Inc()
		a.logger.Error("fetch yield failed", "source", name, "asset", asset, "error", err)
		return nil, err
	}
	metrics.SourceFetchTotal.WithLabelValues(name, "success").Inc()
	metrics.SourceLastSuccess.WithLabelValues(name).SetToCurrentTime()
	return q, nil
}

func (a *Aggregator) observe(asset string, quotes []Quote) {
	a.mu.Lock()
	for _, q := range quotes {
		if q.TVL != "" {
			a.tvl[q.Venue] = q.TVL
		}
	}
	a.mu.Unlock()

	var best float64
	for _, q := range quotes {
		if q.APY > best {
			best = q.APY
		}
	}
	if len(quotes) > 0 {
		metrics.BestAPY.WithLabelValues(asset).Set(best)
	}
}
