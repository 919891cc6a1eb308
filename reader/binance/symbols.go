package binance

import (
	"context"
	"fmt"
	"strconv"

	gobinance "github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"

	"tickflow/logger"
	"tickflow/models"
)

// Discoverer pulls the tradable symbol universe from the Binance REST API.
// Calls are rate limited so repeated discovery cannot trip the exchange's
// request weight limits.
type Discoverer struct {
	client  *gobinance.Client
	limiter *rate.Limiter
	log     *logger.Entry
}

func NewDiscoverer(restEndpoint string) *Discoverer {
	client := gobinance.NewClient("", "")
	if restEndpoint != "" {
		client.BaseURL = restEndpoint
	}
	return &Discoverer{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		log:     logger.GetLogger().WithComponent("binance_discovery"),
	}
}

// Discover returns every symbol currently in TRADING status.
func (d *Discoverer) Discover(ctx context.Context) ([]models.Symbol, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	info, err := d.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exchange info: %w", err)
	}

	out := make([]models.Symbol, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		sym := models.Symbol{
			Exchange:   models.Binance,
			Symbol:     s.Symbol,
			Normalized: s.BaseAsset + "-" + s.QuoteAsset,
			BaseAsset:  s.BaseAsset,
			QuoteAsset: s.QuoteAsset,
			AssetClass: models.Spot,
			Active:     true,
		}
		for _, f := range s.Filters {
			switch f["filterType"] {
			case "LOT_SIZE":
				sym.MinSize = parseFilterFloat(f["minQty"])
			case "PRICE_FILTER":
				sym.TickSize = parseFilterFloat(f["tickSize"])
			}
		}
		out = append(out, sym)
	}

	d.log.WithFields(logger.Fields{"symbols": len(out)}).Info("discovered tradable symbols")
	return out, nil
}

func parseFilterFloat(v interface{}) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
