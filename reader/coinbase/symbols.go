package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"tickflow/logger"
	"tickflow/models"
)

const defaultRestEndpoint = "https://api.exchange.coinbase.com"

// Discoverer pulls the tradable product list from the Coinbase Exchange REST
// API. Coinbase has no Go SDK, so this talks to /products directly.
type Discoverer struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	log      *logger.Entry
}

func NewDiscoverer(restEndpoint string) *Discoverer {
	if restEndpoint == "" {
		restEndpoint = defaultRestEndpoint
	}
	return &Discoverer{
		endpoint: restEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(1), 1),
		log:      logger.GetLogger().WithComponent("coinbase_discovery"),
	}
}

type product struct {
	ID              string `json:"id"`
	BaseCurrency    string `json:"base_currency"`
	QuoteCurrency   string `json:"quote_currency"`
	Status          string `json:"status"`
	TradingDisabled bool   `json:"trading_disabled"`
	BaseIncrement   string `json:"base_increment"`
	QuoteIncrement  string `json:"quote_increment"`
}

// Discover returns every product currently online for trading.
func (d *Discoverer) Discover(ctx context.Context) ([]models.Symbol, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"/products", nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("products request returned status %d", resp.StatusCode)
	}

	var products []product
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}

	out := make([]models.Symbol, 0, len(products))
	for _, p := range products {
		if p.Status != "online" || p.TradingDisabled {
			continue
		}
		out = append(out, models.Symbol{
			Exchange:   models.Coinbase,
			Symbol:     p.ID,
			Normalized: p.BaseCurrency + "-" + p.QuoteCurrency,
			BaseAsset:  p.BaseCurrency,
			QuoteAsset: p.QuoteCurrency,
			AssetClass: models.Spot,
			Active:     true,
			MinSize:    parseIncrement(p.BaseIncrement),
			TickSize:   parseIncrement(p.QuoteIncrement),
		})
	}

	d.log.WithFields(logger.Fields{"symbols": len(out)}).Info("discovered tradable products")
	return out, nil
}

func parseIncrement(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
