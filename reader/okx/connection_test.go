package okx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"tickflow/internal/channel"
	"tickflow/internal/symbols"

	appconfig "tickflow/config"
)

func testMapper(t *testing.T) *symbols.Mapper {
	t.Helper()
	m, err := symbols.NewMapper(appconfig.SymbolMappingsConfig{})
	if err != nil {
		t.Fatalf("mapper: %v", err)
	}
	return m
}

func wsTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return srv
}

func TestSendPingAfterClose(t *testing.T) {
	c := New("ws://unused", []string{"BTC-USDT"}, channel.NewChannels(8), testMapper(t))
	c.Close()
	if err := c.SendPing(); err == nil {
		t.Error("ping on a closed session should error, not panic")
	}
}

func TestCloseDuringPings(t *testing.T) {
	srv := wsTestServer(t)
	defer srv.Close()

	url := "ws://" + strings.TrimPrefix(srv.URL, "http://")
	c := New(url, []string{"BTC-USDT"}, channel.NewChannels(8), testMapper(t))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if err := c.SendPing(); err != nil {
				return
			}
		}
	}()

	c.Close()
	wg.Wait()

	if err := c.SendPing(); err == nil {
		t.Error("ping after close should error")
	}
}
