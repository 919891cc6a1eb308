package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"tickflow/internal/channel"
	"tickflow/internal/symbols"
	"tickflow/logger"
	"tickflow/models"
	"tickflow/reader"
)

// Connection is one session with the Binance combined stream endpoint. All
// subscriptions ride in the URL, so connect and subscribe collapse into one
// dial that happens on Subscribe.
type Connection struct {
	baseURL  string
	symbols  []string
	channels *channel.Channels
	mapper   *symbols.Mapper
	ctx      context.Context
	ws       *websocket.Conn
	writeMu  sync.Mutex
	log      *logger.Entry
}

func New(baseURL string, syms []string, ch *channel.Channels, mapper *symbols.Mapper) *Connection {
	return &Connection{
		baseURL:  baseURL,
		symbols:  syms,
		channels: ch,
		mapper:   mapper,
		log:      logger.GetLogger().WithComponent("binance_reader"),
	}
}

func (c *Connection) Exchange() models.ExchangeID { return models.Binance }
func (c *Connection) Symbols() []string           { return c.symbols }

// Connect only stashes the context; the dial happens in Subscribe once the
// stream list is known.
func (c *Connection) Connect(ctx context.Context) error {
	c.ctx = ctx
	return nil
}

func streamName(symbol string, ch reader.Channel) string {
	if ch == reader.Trades {
		return strings.ToLower(symbol) + "@trade"
	}
	return strings.ToLower(symbol) + "@ticker"
}

func (c *Connection) streamURL(channels []reader.Channel) string {
	streams := make([]string, 0, len(c.symbols)*len(channels))
	for _, symbol := range c.symbols {
		for _, ch := range channels {
			streams = append(streams, streamName(symbol, ch))
		}
	}
	return fmt.Sprintf("%s/stream?streams=%s", c.baseURL, strings.Join(streams, "/"))
}

func (c *Connection) Subscribe(channels []reader.Channel) error {
	url := c.streamURL(channels)
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial combined stream: %w", err)
	}
	c.ws = ws
	c.log.WithFields(logger.Fields{
		"symbols": len(c.symbols),
		"streams": len(c.symbols) * len(channels),
	}).Info("connected to combined stream")
	return nil
}

func (c *Connection) ReadMessage(ctx context.Context) error {
	if c.ws == nil {
		return fmt.Errorf("not connected")
	}
	msgType, raw, err := c.ws.ReadMessage()
	if err != nil {
		return err
	}
	if msgType != websocket.TextMessage {
		return nil
	}
	return c.process(ctx, raw)
}

func (c *Connection) process(ctx context.Context, raw []byte) error {
	var frame streamFrame
	if err := json.Unmarshal(raw, &frame); err != nil || len(frame.Data) == 0 {
		return nil
	}

	var head struct {
		Event string `json:"e"`
	}
	if err := json.Unmarshal(frame.Data, &head); err != nil {
		return nil
	}

	switch head.Event {
	case "24hrTicker":
		data, err := ParseTicker(frame.Data)
		if err != nil || data == nil {
			return nil
		}
		data.Symbol = c.mapper.Normalize(models.Binance, data.Symbol)
		logger.IncrementMarketDataRead(len(raw))
		c.channels.Send(ctx, models.NewMarketDataMessage(*data))
	case "trade":
		data, err := ParseTrade(frame.Data)
		if err != nil || data == nil {
			return nil
		}
		data.Symbol = c.mapper.Normalize(models.Binance, data.Symbol)
		logger.IncrementTradeRead(len(raw))
		c.channels.Send(ctx, models.NewTradeMessage(*data))
	}
	return nil
}

// SendPing answers the server-keepalive contract with a websocket ping frame.
func (c *Connection) SendPing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.ws == nil {
		return fmt.Errorf("not connected")
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
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
