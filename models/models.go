package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExchangeID identifies one of the supported trading venues.
type ExchangeID int

const (
	Coinbase ExchangeID = iota
	Binance
	Kraken
	OKX
	Bitfinex
)

func (e ExchangeID) String() string {
	switch e {
	case Coinbase:
		return "coinbase"
	case Binance:
		return "binance"
	case Kraken:
		return "kraken"
	case OKX:
		return "okx"
	case Bitfinex:
		return "bitfinex"
	default:
		return "unknown"
	}
}

// ParseExchangeID resolves a lowercase exchange name to its identifier.
func ParseExchangeID(s string) (ExchangeID, bool) {
	switch strings.ToLower(s) {
	case "coinbase":
		return Coinbase, true
	case "binance":
		return Binance, true
	case "kraken":
		return Kraken, true
	case "okx":
		return OKX, true
	case "bitfinex":
		return Bitfinex, true
	default:
		return 0, false
	}
}

// TradeSide is the aggressor side of a trade. The numeric values are part of
// the on-disk format and must not change.
type TradeSide uint32

const (
	Buy  TradeSide = 0
	Sell TradeSide = 1
)

func (s TradeSide) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

// ParseTradeSide accepts the side spellings used across exchange feeds.
func ParseTradeSide(s string) (TradeSide, bool) {
	switch strings.ToLower(s) {
	case "buy", "b":
		return Buy, true
	case "sell", "s":
		return Sell, true
	default:
		return 0, false
	}
}

// AssetClass classifies an instrument.
type AssetClass int

const (
	Spot AssetClass = iota
	Futures
	Options
)

// UnifiedMarketData is a normalized ticker update. Timestamps are split into
// whole seconds and the sub-second nanosecond remainder so each half fits a
// four byte column.
type UnifiedMarketData struct {
	Exchange  ExchangeID
	Symbol    string
	Timestamp uint32
	Nanos     uint32
	Price     float32
	Volume    float32
	Side      TradeSide
	BestBid   float32
	BestAsk   float32
}

// UnifiedTradeData is a normalized trade execution.
type UnifiedTradeData struct {
	Exchange     ExchangeID
	Symbol       string
	TradeID      uint64
	Timestamp    uint32
	Nanos        uint32
	Price        float32
	Size         float32
	Side         TradeSide
	MakerOrderID [16]byte
	TakerOrderID [16]byte
}

// Symbol describes one instrument as listed on a specific exchange.
type Symbol struct {
	Exchange   ExchangeID
	Symbol     string
	Normalized string
	BaseAsset  string
	QuoteAsset string
	AssetClass AssetClass
	Active     bool
	MinSize    float64
	TickSize   float64
}

// NewMarketData returns a market data record stamped with the current time.
func NewMarketData(exchange ExchangeID, symbol string) UnifiedMarketData {
	sec, nanos := TimestampParts(time.Now().UTC())
	return UnifiedMarketData{
		Exchange:  exchange,
		Symbol:    symbol,
		Timestamp: sec,
		Nanos:     nanos,
	}
}

// NewTradeData returns a trade record stamped with the current time.
func NewTradeData(exchange ExchangeID, symbol string, tradeID uint64) UnifiedTradeData {
	sec, nanos := TimestampParts(time.Now().UTC())
	return UnifiedTradeData{
		Exchange:  exchange,
		Symbol:    symbol,
		TradeID:   tradeID,
		Timestamp: sec,
		Nanos:     nanos,
	}
}

// TimestampNanos combines the second and nanosecond halves into the single
// value the buffer orders on.
func (d UnifiedMarketData) TimestampNanos() uint64 {
	return uint64(d.Timestamp)*1e9 + uint64(d.Nanos)
}

// TimestampNanos combines the second and nanosecond halves into the single
// value the buffer orders on.
func (d UnifiedTradeData) TimestampNanos() uint64 {
	return uint64(d.Timestamp)*1e9 + uint64(d.Nanos)
}

// SetMakerOrderID parses a UUID string into the maker order id bytes. Invalid
// ids leave the field zeroed.
func (d *UnifiedTradeData) SetMakerOrderID(id string) {
	if u, err := uuid.Parse(id); err == nil {
		d.MakerOrderID = u
	}
}

// SetTakerOrderID parses a UUID string into the taker order id bytes. Invalid
// ids leave the field zeroed.
func (d *UnifiedTradeData) SetTakerOrderID(id string) {
	if u, err := uuid.Parse(id); err == nil {
		d.TakerOrderID = u
	}
}

// TimestampParts splits a time into whole seconds and nanosecond remainder.
func TimestampParts(t time.Time) (uint32, uint32) {
	return uint32(t.Unix()), uint32(t.Nanosecond())
}

// TimestampPartsFromMillis splits an epoch millisecond value, the common
// exchange wire format, into seconds and nanoseconds.
func TimestampPartsFromMillis(ms int64) (uint32, uint32) {
	return uint32(ms / 1000), uint32(ms%1000) * 1e6
}

// MessageType discriminates the payload carried by a Message.
type MessageType int

const (
	MarketDataMessage MessageType = iota
	TradeMessage
	ErrorMessage
)

// Message is the single record type flowing from exchange connections to the
// processor.
type Message struct {
	Type       MessageType
	MarketData UnifiedMarketData
	Trade      UnifiedTradeData
	Err        string
}

// NewMarketDataMessage wraps a market data record.
func NewMarketDataMessage(d UnifiedMarketData) Message {
	return Message{Type: MarketDataMessage, MarketData: d}
}

// NewTradeMessage wraps a trade record.
func NewTradeMessage(d UnifiedTradeData) Message {
	return Message{Type: TradeMessage, Trade: d}
}

// NewErrorMessage wraps an exchange-reported error.
func NewErrorMessage(text string) Message {
	return Message{Type: ErrorMessage, Err: text}
}
