package bitfinex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tickflow/internal/symbols"
	"tickflow/logger"
	"tickflow/models"
)

const defaultRestEndpoint = "https://api-pub.bitfinex.com/v2"

// Discoverer pulls the exchange pair list from the Bitfinex conf endpoint.
// The listing is names only; min-size and tick-size are not published there.
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
		log:      logger.GetLogger().WithComponent("bitfinex_discovery"),
	}
}

// Discover returns every listed exchange pair as a tradable symbol. Funding
// pairs are excluded.
func (d *Discoverer) Discover(ctx context.Context) ([]models.Symbol, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := d.endpoint + "/conf/pub:list:pair:exchange"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pair list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pair list request returned status %d", resp.StatusCode)
	}

	// The body is an array of arrays; the first element holds the pair names.
	var lists [][]string
	if err := json.NewDecoder(resp.Body).Decode(&lists); err != nil {
		return nil, fmt.Errorf("failed to decode pair list: %w", err)
	}
	if len(lists) == 0 {
		return nil, fmt.Errorf("empty pair list response")
	}

	out := make([]models.Symbol, 0, len(lists[0]))
	for _, pair := range lists[0] {
		if pair == "" || strings.HasPrefix(pair, "f") {
			continue
		}
		sym := "t" + strings.ToUpper(pair)
		normalized := symbols.HeuristicNormalize(models.Bitfinex, sym)
		base, quote := "", ""
		if i := strings.IndexByte(normalized, '-'); i > 0 {
			base, quote = normalized[:i], normalized[i+1:]
		}
		out = append(out, models.Symbol{
			Exchange:   models.Bitfinex,
			Symbol:     sym,
			Normalized: normalized,
			BaseAsset:  base,
			QuoteAsset: quote,
			AssetClass: models.Spot,
			Active:     true,
		})
	}

	d.log.WithFields(logger.Fields{"symbols": len(out)}).Info("discovered exchange pairs")
	return out, nil
}
