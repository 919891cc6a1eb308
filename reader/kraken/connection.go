package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"tickflow/internal/channel"
	"tickflow/internal/symbols"
	"tickflow/logger"
	"tickflow/models"
	"tickflow/reader"
)

// Connection is one session with the Kraken websocket API v1. Channel data
// arrives as arrays of [channelID, payload, channelName, pair], system
// messages as objects keyed by "event".
type Connection struct {
	url      string
	symbols  []string
	channels *channel.Channels
	mapper   *symbols.Mapper
	ws       *websocket.Conn
	writeMu  sync.Mutex
	reqID    atomic.Uint64
	log      *logger.Entry
}

func New(url string, syms []string, ch *channel.Channels, mapper *symbols.Mapper) *Connection {
	return &Connection{
		url:      url,
		symbols:  syms,
		channels: ch,
		mapper:   mapper,
		log:      logger.GetLogger().WithComponent("kraken_reader"),
	}
}

func (c *Connection) Exchange() models.ExchangeID { return models.Kraken }
func (c *Connection) Symbols() []string           { return c.symbols }

func (c *Connection) Connect(ctx context.Context) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.url, err)
	}
	c.ws = ws
	c.log.WithFields(logger.Fields{"url": c.url}).Info("connected")
	return nil
}

func channelName(ch reader.Channel) string {
	if ch == reader.Trades {
		return "trade"
	}
	return "ticker"
}

// Subscribe sends one subscription request per channel covering every pair.
func (c *Connection) Subscribe(channels []reader.Channel) error {
	for _, ch := range channels {
		msg := map[string]interface{}{
			"event": "subscribe",
			"pair":  c.symbols,
			"subscription": map[string]string{
				"name": channelName(ch),
			},
			"reqid": c.reqID.Add(1),
		}
		if err := c.writeJSON(msg); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", channelName(ch), err)
		}
	}
	c.log.WithFields(logger.Fields{"symbols": len(c.symbols), "channels": len(channels)}).Info("subscribed")
	return nil
}

func (c *Connection) writeJSON(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.ws == nil {
		return fmt.Errorf("not connected")
	}
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}

func (c *Connection) ReadMessage(ctx context.Context) error {
	if c.ws == nil {
		return fmt.Errorf("not connected")
	}
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return err
	}
	return c.process(ctx, raw)
}

func (c *Connection) process(ctx context.Context, raw []byte) error {
	if len(raw) > 0 && raw[0] == '[' {
		return c.processChannelFrame(ctx, raw)
	}
	return c.processEvent(ctx, raw)
}

func (c *Connection) processChannelFrame(ctx context.Context, raw []byte) error {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil || len(frame) < 4 {
		return nil
	}

	var name, pair string
	if err := json.Unmarshal(frame[2], &name); err != nil {
		return nil
	}
	if err := json.Unmarshal(frame[3], &pair); err != nil {
		return nil
	}
	normalized := c.mapper.Normalize(models.Kraken, pair)

	switch name {
	case "ticker":
		data, err := ParseTicker(frame[1], normalized)
		if err != nil || data == nil {
			return nil
		}
		logger.IncrementMarketDataRead(len(raw))
		c.channels.Send(ctx, models.NewMarketDataMessage(*data))
	case "trade":
		var trades []json.RawMessage
		if err := json.Unmarshal(frame[1], &trades); err != nil {
			return nil
		}
		for _, trade := range trades {
			data, err := ParseTrade(trade, normalized)
			if err != nil || data == nil {
				continue
			}
			logger.IncrementTradeRead(len(trade))
			c.channels.Send(ctx, models.NewTradeMessage(*data))
		}
	}
	return nil
}

func (c *Connection) processEvent(ctx context.Context, raw []byte) error {
	var msg struct {
		Event        string `json:"event"`
		Status       string `json:"status"`
		Pair         string `json:"pair"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil
	}

	switch msg.Event {
	case "systemStatus":
		c.log.WithFields(logger.Fields{"status": msg.Status}).Info("system status")
	case "subscriptionStatus":
		if msg.Status == "error" {
			c.log.WithFields(logger.Fields{"pair": msg.Pair, "message": msg.ErrorMessage}).Warn("subscription error")
			c.channels.TrySend(ctx, models.NewErrorMessage(msg.ErrorMessage))
		}
	case "error":
		c.log.WithFields(logger.Fields{"message": msg.ErrorMessage}).Warn("exchange error")
		c.channels.TrySend(ctx, models.NewErrorMessage(msg.ErrorMessage))
	case "heartbeat", "pong":
	}
	return nil
}

// SendPing uses Kraken's JSON ping event rather than a websocket ping frame.
func (c *Connection) SendPing() error {
	return c.writeJSON(map[string]interface{}{
		"event": "ping",
		"reqid": c.reqID.Add(1),
	})
}

// Close holds the write lock so an in-flight ping cannot observe a half
// torn-down session.
func (c *Connection) Close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
}
