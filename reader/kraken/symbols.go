package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tickflow/internal/symbols"
	"tickflow/logger"
	"tickflow/models"
)

const defaultRestEndpoint = "https://api.kraken.com/0"

// Discoverer pulls the tradable pair list from the Kraken REST API.
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
		log:      logger.GetLogger().WithComponent("kraken_discovery"),
	}
}

type assetPair struct {
	WsName   string `json:"wsname"`
	Base     string `json:"base"`
	Quote    string `json:"quote"`
	Status   string `json:"status"`
	OrderMin string `json:"ordermin"`
	TickSize string `json:"tick_size"`
}

type assetPairsResponse struct {
	Error  []string             `json:"error"`
	Result map[string]assetPair `json:"result"`
}

// Discover returns every pair currently online. The websocket name is the
// symbol identity; the REST pair key is only a fallback when wsname is absent.
func (d *Discoverer) Discover(ctx context.Context) ([]models.Symbol, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"/public/AssetPairs", nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch asset pairs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("asset pairs request returned status %d", resp.StatusCode)
	}

	var pairs assetPairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&pairs); err != nil {
		return nil, fmt.Errorf("failed to decode asset pairs: %w", err)
	}
	if len(pairs.Error) > 0 {
		return nil, fmt.Errorf("asset pairs error: %s", strings.Join(pairs.Error, ", "))
	}

	out := make([]models.Symbol, 0, len(pairs.Result))
	for name, pair := range pairs.Result {
		if pair.Status != "online" {
			continue
		}
		if pair.Base == "" || pair.Quote == "" {
			continue
		}
		ws := pair.WsName
		if ws == "" {
			ws = name
		}
		out = append(out, models.Symbol{
			Exchange:   models.Kraken,
			Symbol:     ws,
			Normalized: symbols.HeuristicNormalize(models.Kraken, ws),
			BaseAsset:  pair.Base,
			QuoteAsset: pair.Quote,
			AssetClass: models.Spot,
			Active:     true,
			MinSize:    parsePairFloat(pair.OrderMin),
			TickSize:   parsePairFloat(pair.TickSize),
		})
	}

	d.log.WithFields(logger.Fields{"symbols": len(out)}).Info("discovered tradable pairs")
	return out, nil
}

func parsePairFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
