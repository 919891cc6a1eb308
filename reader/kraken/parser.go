package kraken

import (
	"encoding/json"
	"strconv"

	"tickflow/models"
)

// tickerPayload is the object carried in a ticker channel frame. Price fields
// arrive as string arrays, last trade under "c" as [price, volume].
type tickerPayload struct {
	Ask  []string `json:"a"`
	Bid  []string `json:"b"`
	Last []string `json:"c"`
	Open string   `json:"o"`
}

func f32(s string) float32 {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0
	}
	return float32(v)
}

func first(arr []string) string {
	if len(arr) > 0 {
		return arr[0]
	}
	return ""
}

// ParseTicker converts the data object of a ticker channel frame. Kraken
// tickers carry no timestamp, so the record keeps its receive-time stamp.
func ParseTicker(data json.RawMessage, pair string) (*models.UnifiedMarketData, error) {
	var payload tickerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	md := models.NewMarketData(models.Kraken, pair)
	md.Price = f32(first(payload.Last))
	if len(payload.Last) > 1 {
		md.Volume = f32(payload.Last[1])
	}
	md.BestAsk = f32(first(payload.Ask))
	md.BestBid = f32(first(payload.Bid))

	md.Side = models.Buy
	if first(payload.Last) != "" && payload.Open != "" && md.Price < f32(payload.Open) {
		md.Side = models.Sell
	}

	return &md, nil
}

// ParseTrade converts one element of a trade channel frame, an array of
// [price, volume, time, side, orderType, misc]. Kraken publishes no trade id,
// so the microsecond trade time stands in for one.
func ParseTrade(trade json.RawMessage, pair string) (*models.UnifiedTradeData, error) {
	var fields []string
	if err := json.Unmarshal(trade, &fields); err != nil {
		return nil, err
	}
	if len(fields) < 4 {
		return nil, nil
	}

	tradeTime, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		tradeTime = 0
	}
	tradeID := uint64(tradeTime * 1e6)

	data := models.NewTradeData(models.Kraken, pair, tradeID)
	sec := uint32(tradeTime)
	data.Timestamp = sec
	data.Nanos = uint32((tradeTime - float64(sec)) * 1e9)
	data.Price = f32(fields[0])
	data.Size = f32(fields[1])
	if side, ok := models.ParseTradeSide(fields[3]); ok {
		data.Side = side
	}

	return &data, nil
}
