package binance

import (
	"encoding/binary"
	"encoding/json"
	"strconv"

	"tickflow/models"
)

// streamFrame is the combined-stream envelope, {"stream": "...", "data": {...}}.
type streamFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type tickerEvent struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
	OpenPrice string `json:"o"`
	Volume    string `json:"v"`
	BestBid   string `json:"b"`
	BestAsk   string `json:"a"`
}

type tradeEvent struct {
	Event        string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	TradeID      uint64 `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	BuyerIsMaker bool   `json:"m"`
}

func f32(s string) float32 {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0
	}
	return float32(v)
}

// ParseTicker converts a 24hrTicker event payload. The volume recorded is the
// rolling 24h base volume as sent, not a per-trade quantity.
func ParseTicker(raw []byte) (*models.UnifiedMarketData, error) {
	var ev tickerEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	if ev.Event != "24hrTicker" || ev.Symbol == "" {
		return nil, nil
	}

	data := models.NewMarketData(models.Binance, ev.Symbol)
	if ev.EventTime > 0 {
		data.Timestamp, data.Nanos = models.TimestampPartsFromMillis(ev.EventTime)
	}
	data.Price = f32(ev.LastPrice)
	data.Volume = f32(ev.Volume)
	data.BestBid = f32(ev.BestBid)
	data.BestAsk = f32(ev.BestAsk)

	data.Side = models.Buy
	if ev.LastPrice != "" && ev.OpenPrice != "" && f32(ev.LastPrice) < f32(ev.OpenPrice) {
		data.Side = models.Sell
	}

	return &data, nil
}

// ParseTrade converts a trade event payload. Binance reports no order ids on
// the trade stream, so the trade id bytes stand in: low half of the maker id
// and high half of the taker id.
func ParseTrade(raw []byte) (*models.UnifiedTradeData, error) {
	var ev tradeEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	if ev.Event != "trade" || ev.Symbol == "" {
		return nil, nil
	}

	data := models.NewTradeData(models.Binance, ev.Symbol, ev.TradeID)
	if ev.TradeTime > 0 {
		data.Timestamp, data.Nanos = models.TimestampPartsFromMillis(ev.TradeTime)
	}
	data.Price = f32(ev.Price)
	data.Size = f32(ev.Quantity)

	// m=true means the buyer was resting, so the aggressor sold.
	if ev.BuyerIsMaker {
		data.Side = models.Sell
	} else {
		data.Side = models.Buy
	}

	binary.LittleEndian.PutUint64(data.MakerOrderID[:8], ev.TradeID)
	binary.LittleEndian.PutUint64(data.TakerOrderID[8:], ev.TradeID)

	return &data, nil
}
