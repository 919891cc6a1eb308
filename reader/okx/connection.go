package okx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"tickflow/internal/channel"
	"tickflow/internal/symbols"
	"tickflow/logger"
	"tickflow/models"
	"tickflow/reader"
)

// Connection is one session with the OKX public v5 websocket.
type Connection struct {
	url      string
	symbols  []string
	channels *channel.Channels
	mapper   *symbols.Mapper
	ws       *websocket.Conn
	writeMu  sync.Mutex
	log      *logger.Entry
}

func New(url string, syms []string, ch *channel.Channels, mapper *symbols.Mapper) *Connection {
	return &Connection{
		url:      url,
		symbols:  syms,
		channels: ch,
		mapper:   mapper,
		log:      logger.GetLogger().WithComponent("okx_reader"),
	}
}

func (c *Connection) Exchange() models.ExchangeID { return models.OKX }
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
		return "trades"
	}
	return "tickers"
}

// Subscribe batches every channel and instrument into one subscribe request.
func (c *Connection) Subscribe(channels []reader.Channel) error {
	type arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	}
	args := make([]arg, 0, len(channels)*len(c.symbols))
	for _, ch := range channels {
		for _, symbol := range c.symbols {
			args = append(args, arg{Channel: channelName(ch), InstID: symbol})
		}
	}

	msg := map[string]interface{}{
		"op":   "subscribe",
		"args": args,
	}
	if err := c.writeJSON(msg); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	c.log.WithFields(logger.Fields{"symbols": len(c.symbols), "args": len(args)}).Info("subscribed")
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
	// Pong arrives as plain text, not JSON.
	if bytes.Equal(raw, []byte("pong")) {
		return nil
	}

	var frame struct {
		Event string `json:"event"`
		Code  string `json:"code"`
		Msg   string `json:"msg"`
		Arg   struct {
			Channel string `json:"channel"`
		} `json:"arg"`
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.log.WithError(err).Debug("unparseable frame")
		return nil
	}

	switch frame.Event {
	case "subscribe":
		c.log.Debug("subscription confirmed")
		return nil
	case "error":
		text := fmt.Sprintf("okx error %s: %s", frame.Code, frame.Msg)
		c.log.WithFields(logger.Fields{"code": frame.Code, "message": frame.Msg}).Warn("exchange error")
		c.channels.TrySend(ctx, models.NewErrorMessage(text))
		return nil
	}

	switch frame.Arg.Channel {
	case "tickers":
		for _, item := range frame.Data {
			data, err := ParseTicker(item)
			if err != nil || data == nil {
				continue
			}
			data.Symbol = c.mapper.Normalize(models.OKX, data.Symbol)
			logger.IncrementMarketDataRead(len(item))
			c.channels.Send(ctx, models.NewMarketDataMessage(*data))
		}
	case "trades":
		for _, item := range frame.Data {
			data, err := ParseTrade(item)
			if err != nil || data == nil {
				continue
			}
			data.Symbol = c.mapper.Normalize(models.OKX, data.Symbol)
			logger.IncrementTradeRead(len(item))
			c.channels.Send(ctx, models.NewTradeMessage(*data))
		}
	}
	return nil
}

// SendPing sends OKX's plain text ping, not a websocket ping frame.
func (c *Connection) SendPing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.ws == nil {
		return fmt.Errorf("not connected")
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte("ping"))
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
