package handler

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/web3-frozen/yield-guardian/internal/yield"
)

// Yields is the aggregator surface served over HTTP.
type Yields interface {
	GetAllYields(ctx context.Context, asset string) ([]yield.Quote, error)
	GetBestYield(ctx context.Context, asset string) (*yield.Quote, error)
	GetProtocolComparison(ctx context.Context, asset string) (*yield.Comparison, error)
	ShouldRebalance(ctx context.Context, currentVenue, asset, amount string, gasPriceWei *big.Int) (*yield.RebalanceCheck, error)
	CollectQuotes(ctx context.Context, asset string) []yield.SourceResult
}

func assetParam(r *http.Request) string {
	return strings.ToUpper(chi.URLParam(r, "asset"))
}

func ListYields(y Yields) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quotes, err := y.GetAllYields(r.Context(), assetParam(r))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quotes)
	}
}

func BestYield(y Yields) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := y.GetBestYield(r.Context(), assetParam(r))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func CompareProtocols(y Yields) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := y.GetProtocolComparison(r.Context(), assetParam(r))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// SourceQuotes reports each quote source's answer for an asset without
// failing when some sources are down.
func SourceQuotes(y Yields) http.HandlerFunc {
	type result struct {
		Source string       `json:"source"`
		Quote  *yield.Quote `json:"quote,omitempty"`
		Error  string       `json:"error,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		results := y.CollectQuotes(r.Context(), assetParam(r))
		out := make([]result, len(results))
		for i, res := range results {
			out[i] = result{Source: res.Source, Quote: res.Quote}
			if res.Err != nil {
				out[i].Error = res.Err.Error()
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// RebalanceCheck evaluates moving an amount out of a venue. The gas price
// comes from the request when given, otherwise the configured fixed price
// is used.
func RebalanceCheck(y Yields, defaultGasPriceWei *big.Int) http.HandlerFunc {
	type request struct {
		CurrentVenue string `json:"current_venue"`
		Asset        string `json:"asset"`
		Amount       string `json:"amount"`
		GasPriceWei  string `json:"gas_price_wei"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.CurrentVenue == "" || req.Asset == "" || req.Amount == "" {
			writeError(w, http.StatusBadRequest, "current_venue, asset and amount required")
			return
		}

		price := defaultGasPriceWei
		if req.GasPriceWei != "" {
			p, ok := new(big.Int).SetString(req.GasPriceWei, 10)
			if !ok || p.Sign() < 0 {
				writeError(w, http.StatusBadRequest, "invalid gas_price_wei")
				return
			}
			price = p
		}

		check, err := y.ShouldRebalance(r.Context(), req.CurrentVenue, strings.ToUpper(req.Asset), req.Amount, price)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, check)
	}
}
