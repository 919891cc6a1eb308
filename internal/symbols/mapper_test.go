package symbols

import (
	"os"
	"path/filepath"
	"testing"

	appconfig "tickflow/config"
	"tickflow/models"
)

func testConfig() appconfig.SymbolMappingsConfig {
	return appconfig.SymbolMappingsConfig{
		AutoDiscover: true,
		EquivalenceRules: appconfig.EquivalenceRules{
			QuoteAssets: []appconfig.AssetGroup{{
				Group:   "USD_EQUIVALENT",
				Members: []string{"USD", "USDT", "USDC"},
				Primary: "USD",
			}},
		},
	}
}

func newTestMapper(t *testing.T) *Mapper {
	t.Helper()
	m, err := NewMapper(testConfig())
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}

	m.Register(models.Symbol{
		Exchange:   models.Coinbase,
		Symbol:     "BTC-USD",
		Normalized: "BTC-USD",
		BaseAsset:  "BTC",
		QuoteAsset: "USD",
	})
	m.Register(models.Symbol{
		Exchange:   models.Binance,
		Symbol:     "BTCUSDT",
		Normalized: "BTC-USDT",
		BaseAsset:  "BTC",
		QuoteAsset: "USDT",
	})
	return m
}

func TestNormalizeRegistered(t *testing.T) {
	m := newTestMapper(t)

	if got := m.Normalize(models.Coinbase, "BTC-USD"); got != "BTC-USD" {
		t.Errorf("coinbase normalize = %q", got)
	}
	if got := m.Normalize(models.Binance, "BTCUSDT"); got != "BTC-USDT" {
		t.Errorf("binance normalize = %q", got)
	}
}

func TestNormalizeHeuristics(t *testing.T) {
	m := newTestMapper(t)

	cases := []struct {
		exchange models.ExchangeID
		in, want string
	}{
		{models.Binance, "ETHUSDT", "ETH-USDT"},
		{models.Binance, "SOLBTC", "SOL-BTC"},
		{models.Kraken, "XBT/USD", "BTC-USD"},
		{models.Kraken, "ETH/EUR", "ETH-EUR"},
		{models.OKX, "ETH-USDT", "ETH-USDT"},
		{models.Coinbase, "SOL-USD", "SOL-USD"},
		{models.Bitfinex, "tBTCUSD", "BTC-USD"},
		{models.Bitfinex, "tTESTBTC:TESTUSD", "TESTBTC-TESTUSD"},
	}
	for _, tc := range cases {
		if got := m.Normalize(tc.exchange, tc.in); got != tc.want {
			t.Errorf("Normalize(%v, %q) = %q, want %q", tc.exchange, tc.in, got, tc.want)
		}
	}
}

func TestNormalizeFallsBackToRaw(t *testing.T) {
	m := newTestMapper(t)

	// No registration, no recognizable quote suffix: the raw string comes
	// back so the record is still written.
	if got := m.Normalize(models.Binance, "WEIRDPAIR"); got != "WEIRDPAIR" {
		t.Errorf("fallback = %q", got)
	}
	if got := m.Normalize(models.Kraken, "NOSLASH"); got != "NOSLASH" {
		t.Errorf("kraken fallback = %q", got)
	}
}

func TestToExchange(t *testing.T) {
	m := newTestMapper(t)

	sym, ok := m.ToExchange("BTC-USDT", models.Binance)
	if !ok || sym != "BTCUSDT" {
		t.Errorf("ToExchange = %q, %v", sym, ok)
	}
	if _, ok := m.ToExchange("BTC-USDT", models.Kraken); ok {
		t.Error("unexpected kraken listing")
	}
}

func TestEquivalence(t *testing.T) {
	m := newTestMapper(t)

	if !m.AreEquivalent("BTC-USD", "BTC-USD") {
		t.Error("identity equivalence failed")
	}
	if !m.AreEquivalent("BTC-USD", "BTC-USDT") {
		t.Error("USD/USDT group equivalence failed")
	}

	m.Register(models.Symbol{
		Exchange:   models.Coinbase,
		Symbol:     "ETH-USD",
		Normalized: "ETH-USD",
		BaseAsset:  "ETH",
		QuoteAsset: "USD",
	})
	if m.AreEquivalent("BTC-USD", "ETH-USD") {
		t.Error("different bases must not be equivalent")
	}
}

func TestUSDPairsAndRelated(t *testing.T) {
	m := newTestMapper(t)

	pairs := m.USDPairs("BTC")
	if len(pairs) != 2 {
		t.Fatalf("USDPairs = %d entries, want 2", len(pairs))
	}

	related := m.FindRelated("BTC", "USDT")
	if len(related) != 1 || related[0].Symbol != "BTCUSDT" {
		t.Errorf("FindRelated = %+v", related)
	}
}

func TestLoadMappingsFile(t *testing.T) {
	content := `
symbol_mappings:
  - normalized: BTC-USD
    base: BTC
    quote: USD
    exchanges:
      coinbase: BTC-USD
      kraken: XBT/USD
      bitfinex: tBTCUSD
`
	path := filepath.Join(t.TempDir(), "symbol_mappings.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write mappings: %v", err)
	}

	cfg := testConfig()
	cfg.MappingsFile = path
	m, err := NewMapper(cfg)
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}

	if got := m.Normalize(models.Kraken, "XBT/USD"); got != "BTC-USD" {
		t.Errorf("kraken mapping = %q", got)
	}
	if got := m.Normalize(models.Bitfinex, "tBTCUSD"); got != "BTC-USD" {
		t.Errorf("bitfinex mapping = %q", got)
	}
	sym, ok := m.ToExchange("BTC-USD", models.Coinbase)
	if !ok || sym != "BTC-USD" {
		t.Errorf("ToExchange = %q, %v", sym, ok)
	}
}
