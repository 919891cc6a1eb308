package coinbase

import (
	"encoding/json"
	"strconv"
	"time"

	"tickflow/models"
)

type tickerMessage struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	LastSize  string `json:"last_size"`
	BestBid   string `json:"best_bid"`
	BestAsk   string `json:"best_ask"`
	Open24h   string `json:"open_24h"`
	Time      string `json:"time"`
}

type tradeMessage struct {
	Type         string `json:"type"`
	TradeID      uint64 `json:"trade_id"`
	Sequence     uint64 `json:"sequence"`
	ProductID    string `json:"product_id"`
	Price        string `json:"price"`
	Size         string `json:"size"`
	Side         string `json:"side"`
	Time         string `json:"time"`
	MakerOrderID string `json:"maker_order_id"`
	TakerOrderID string `json:"taker_order_id"`
}

func f32(s string) float32 {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0
	}
	return float32(v)
}

func stampRFC3339(ts string, sec, nanos *uint32) {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		*sec, *nanos = models.TimestampParts(t.UTC())
	}
}

// ParseTicker converts a Coinbase ticker frame. It returns nil for frames of
// any other type.
func ParseTicker(raw []byte) (*models.UnifiedMarketData, error) {
	var msg tickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Type != "ticker" || msg.ProductID == "" {
		return nil, nil
	}

	data := models.NewMarketData(models.Coinbase, msg.ProductID)
	stampRFC3339(msg.Time, &data.Timestamp, &data.Nanos)
	data.Price = f32(msg.Price)
	data.Volume = f32(msg.LastSize)
	data.BestBid = f32(msg.BestBid)
	data.BestAsk = f32(msg.BestAsk)

	// The ticker carries no aggressor side, so infer it from the move against
	// the 24h open.
	data.Side = models.Buy
	if msg.Price != "" && msg.Open24h != "" && f32(msg.Price) < f32(msg.Open24h) {
		data.Side = models.Sell
	}

	return &data, nil
}

// ParseTrade converts a Coinbase match frame. Both live matches and the
// last_match replay sent after subscribing are accepted.
func ParseTrade(raw []byte) (*models.UnifiedTradeData, error) {
	var msg tradeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	if (msg.Type != "match" && msg.Type != "last_match") || msg.ProductID == "" {
		return nil, nil
	}

	tradeID := msg.TradeID
	if tradeID == 0 {
		tradeID = msg.Sequence
	}

	data := models.NewTradeData(models.Coinbase, msg.ProductID, tradeID)
	stampRFC3339(msg.Time, &data.Timestamp, &data.Nanos)
	data.Price = f32(msg.Price)
	data.Size = f32(msg.Size)
	if side, ok := models.ParseTradeSide(msg.Side); ok {
		data.Side = side
	}
	data.SetMakerOrderID(msg.MakerOrderID)
	data.SetTakerOrderID(msg.TakerOrderID)

	return &data, nil
}
