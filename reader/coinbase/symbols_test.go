package coinbase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"tickflow/models"
)

func TestDiscoverFiltersOfflineProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"BTC-USD","base_currency":"BTC","quote_currency":"USD","status":"online","trading_disabled":false,"base_increment":"0.00000001","quote_increment":"0.01"},
			{"id":"ETH-USD","base_currency":"ETH","quote_currency":"USD","status":"delisted","trading_disabled":false,"base_increment":"0.001","quote_increment":"0.01"},
			{"id":"XRP-USD","base_currency":"XRP","quote_currency":"USD","status":"online","trading_disabled":true,"base_increment":"0.01","quote_increment":"0.0001"}
		]`))
	}))
	defer srv.Close()

	d := NewDiscoverer(srv.URL)
	syms, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(syms) != 1 {
		t.Fatalf("symbols = %d, want 1", len(syms))
	}

	sym := syms[0]
	if sym.Exchange != models.Coinbase {
		t.Errorf("exchange = %v", sym.Exchange)
	}
	if sym.Symbol != "BTC-USD" || sym.Normalized != "BTC-USD" {
		t.Errorf("symbol = %s normalized = %s", sym.Symbol, sym.Normalized)
	}
	if sym.TickSize != 0.01 {
		t.Errorf("tick size = %v", sym.TickSize)
	}
}

func TestDiscoverRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewDiscoverer(srv.URL).Discover(context.Background()); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
