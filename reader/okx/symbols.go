package okx

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

const defaultRestEndpoint = "https://www.okx.com/api/v5"

// Discoverer pulls the spot instrument list from the OKX REST API.
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
		log:      logger.GetLogger().WithComponent("okx_discovery"),
	}
}

type instrument struct {
	InstID   string `json:"instId"`
	BaseCcy  string `json:"baseCcy"`
	QuoteCcy string `json:"quoteCcy"`
	State    string `json:"state"`
	MinSz    string `json:"minSz"`
	TickSz   string `json:"tickSz"`
}

type instrumentsResponse struct {
	Code string       `json:"code"`
	Msg  string       `json:"msg"`
	Data []instrument `json:"data"`
}

// Discover returns every spot instrument currently live.
func (d *Discoverer) Discover(ctx context.Context) ([]models.Symbol, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := d.endpoint + "/public/instruments?instType=SPOT"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instruments: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("instruments request returned status %d", resp.StatusCode)
	}

	var body instrumentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode instruments: %w", err)
	}
	if body.Code != "0" {
		return nil, fmt.Errorf("instruments error %s: %s", body.Code, body.Msg)
	}

	out := make([]models.Symbol, 0, len(body.Data))
	for _, inst := range body.Data {
		if inst.State != "live" || inst.InstID == "" {
			continue
		}
		out = append(out, models.Symbol{
			Exchange:   models.OKX,
			Symbol:     inst.InstID,
			Normalized: inst.InstID,
			BaseAsset:  inst.BaseCcy,
			QuoteAsset: inst.QuoteCcy,
			AssetClass: models.Spot,
			Active:     true,
			MinSize:    parseInstrumentFloat(inst.MinSz),
			TickSize:   parseInstrumentFloat(inst.TickSz),
		})
	}

	d.log.WithFields(logger.Fields{"symbols": len(out)}).Info("discovered live instruments")
	return out, nil
}

func parseInstrumentFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
