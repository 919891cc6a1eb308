package okx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"tickflow/models"
)

func TestDiscoverFiltersNonLiveInstruments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/public/instruments" || r.URL.Query().Get("instType") != "SPOT" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":"0","msg":"","data":[
			{"instId":"BTC-USDT","baseCcy":"BTC","quoteCcy":"USDT","state":"live","minSz":"0.00001","tickSz":"0.1"},
			{"instId":"OLD-USDT","baseCcy":"OLD","quoteCcy":"USDT","state":"suspend","minSz":"1","tickSz":"0.01"}
		]}`))
	}))
	defer srv.Close()

	syms, err := NewDiscoverer(srv.URL).Discover(context.Background())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(syms) != 1 {
		t.Fatalf("symbols = %d, want 1", len(syms))
	}

	sym := syms[0]
	if sym.Exchange != models.OKX {
		t.Errorf("exchange = %v", sym.Exchange)
	}
	if sym.Symbol != "BTC-USDT" || sym.Normalized != "BTC-USDT" {
		t.Errorf("symbol = %s normalized = %s", sym.Symbol, sym.Normalized)
	}
	if sym.MinSize != 0.00001 || sym.TickSize != 0.1 {
		t.Errorf("min size = %v tick size = %v", sym.MinSize, sym.TickSize)
	}
}

func TestDiscoverRejectsErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"50011","msg":"rate limited","data":[]}`))
	}))
	defer srv.Close()

	if _, err := NewDiscoverer(srv.URL).Discover(context.Background()); err == nil {
		t.Fatal("expected error for non-zero code")
	}
}
