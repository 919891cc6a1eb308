package symbols

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	appconfig "tickflow/config"
	"tickflow/logger"
	"tickflow/models"
)

// Mapper translates exchange-native symbols to and from the canonical
// BASE-QUOTE form. Normalization never fails: symbols with no registration
// and no heuristic split fall back to the raw exchange string so data is
// recorded rather than dropped.
type Mapper struct {
	mu              sync.RWMutex
	mappings        map[string]*symbolMap // normalized -> mapping
	normalizedIndex map[string]string     // exchange:symbol -> normalized
	config          appconfig.SymbolMappingsConfig
	log             *logger.Log
}

type symbolMap struct {
	normalized      string
	exchangeSymbols map[models.ExchangeID]string
	baseAsset       string
	quoteAsset      string
}

// Info describes one exchange listing of a normalized pair.
type Info struct {
	Exchange   models.ExchangeID
	Symbol     string
	Normalized string
}

type mappingFile struct {
	SymbolMappings []mappingEntry `yaml:"symbol_mappings"`
}

type mappingEntry struct {
	Normalized string            `yaml:"normalized"`
	Base       string            `yaml:"base"`
	Quote      string            `yaml:"quote"`
	Exchanges  map[string]string `yaml:"exchanges"`
}

// NewMapper builds a mapper and loads the optional mappings file.
func NewMapper(cfg appconfig.SymbolMappingsConfig) (*Mapper, error) {
	m := &Mapper{
		mappings:        make(map[string]*symbolMap),
		normalizedIndex: make(map[string]string),
		config:          cfg,
		log:             logger.GetLogger(),
	}

	if cfg.MappingsFile != "" {
		if _, err := os.Stat(cfg.MappingsFile); err == nil {
			if err := m.loadFromFile(cfg.MappingsFile); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func (m *Mapper) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read mappings file: %w", err)
	}

	var file mappingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse mappings file: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range file.SymbolMappings {
		sm := &symbolMap{
			normalized:      entry.Normalized,
			exchangeSymbols: make(map[models.ExchangeID]string),
			baseAsset:       entry.Base,
			quoteAsset:      entry.Quote,
		}
		for name, symbol := range entry.Exchanges {
			ex, ok := models.ParseExchangeID(name)
			if !ok {
				m.log.WithComponent("symbol_mapper").WithFields(logger.Fields{
					"exchange": name,
					"symbol":   symbol,
				}).Warn("unknown exchange in mappings file, skipping")
				continue
			}
			sm.exchangeSymbols[ex] = symbol
			m.normalizedIndex[indexKey(ex, symbol)] = entry.Normalized
		}
		m.mappings[entry.Normalized] = sm
	}

	m.log.WithComponent("symbol_mapper").WithFields(logger.Fields{
		"mappings": len(file.SymbolMappings),
		"file":     path,
	}).Info("symbol mappings loaded")
	return nil
}

func indexKey(ex models.ExchangeID, symbol string) string {
	return ex.String() + ":" + symbol
}

// Register records one exchange listing. It is used both by the mappings file
// loader and by REST symbol discovery.
func (m *Mapper) Register(sym models.Symbol) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.normalizedIndex[indexKey(sym.Exchange, sym.Symbol)] = sym.Normalized

	if existing, ok := m.mappings[sym.Normalized]; ok {
		existing.exchangeSymbols[sym.Exchange] = sym.Symbol
		return
	}
	m.mappings[sym.Normalized] = &symbolMap{
		normalized:      sym.Normalized,
		exchangeSymbols: map[models.ExchangeID]string{sym.Exchange: sym.Symbol},
		baseAsset:       sym.BaseAsset,
		quoteAsset:      sym.QuoteAsset,
	}
}

// Normalize maps an exchange symbol to its canonical BASE-QUOTE form. Exact
// registrations win; otherwise a per-exchange heuristic split is attempted and
// finally the raw symbol is returned unchanged.
func (m *Mapper) Normalize(exchange models.ExchangeID, symbol string) string {
	m.mu.RLock()
	normalized, ok := m.normalizedIndex[indexKey(exchange, symbol)]
	m.mu.RUnlock()
	if ok {
		return normalized
	}

	if split := heuristicNormalize(exchange, symbol); split != "" {
		return split
	}
	return symbol
}

// HeuristicNormalize applies the per-exchange split without consulting
// registrations, falling back to the raw symbol. Symbol discovery uses it to
// canonicalize listings before any mapping exists.
func HeuristicNormalize(exchange models.ExchangeID, symbol string) string {
	if split := heuristicNormalize(exchange, symbol); split != "" {
		return split
	}
	return symbol
}

// ToExchange resolves a normalized pair back to the symbol an exchange uses.
func (m *Mapper) ToExchange(normalized string, exchange models.ExchangeID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sm, ok := m.mappings[normalized]; ok {
		symbol, ok := sm.exchangeSymbols[exchange]
		return symbol, ok
	}
	return "", false
}

// FindRelated returns every registered listing with the given base and quote.
func (m *Mapper) FindRelated(base, quote string) []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []Info
	for _, sm := range m.mappings {
		if sm.baseAsset != base || sm.quoteAsset != quote {
			continue
		}
		for ex, symbol := range sm.exchangeSymbols {
			results = append(results, Info{Exchange: ex, Symbol: symbol, Normalized: sm.normalized})
		}
	}
	return results
}

// USDPairs returns every listing of the asset quoted in a USD-equivalent
// currency per the configured equivalence groups.
func (m *Mapper) USDPairs(asset string) []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.config.EquivalenceRules.QuoteAssets) == 0 {
		return nil
	}
	equivalents := m.config.EquivalenceRules.QuoteAssets[0].Members

	var results []Info
	for _, sm := range m.mappings {
		if sm.baseAsset != asset {
			continue
		}
		if !contains(equivalents, sm.quoteAsset) {
			continue
		}
		for ex, symbol := range sm.exchangeSymbols {
			results = append(results, Info{Exchange: ex, Symbol: symbol, Normalized: sm.normalized})
		}
	}
	return results
}

// AreEquivalent reports whether two normalized pairs track the same market:
// either the same pair, or the same base with quotes in one equivalence group.
func (m *Mapper) AreEquivalent(sym1, sym2 string) bool {
	if sym1 == sym2 {
		return true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	map1, ok1 := m.mappings[sym1]
	map2, ok2 := m.mappings[sym2]
	if !ok1 || !ok2 {
		return false
	}
	if map1.normalized == map2.normalized {
		return true
	}
	if map1.baseAsset != map2.baseAsset {
		return false
	}
	for _, group := range m.config.EquivalenceRules.QuoteAssets {
		if contains(group.Members, map1.quoteAsset) && contains(group.Members, map2.quoteAsset) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// knownQuotes is ordered longest-first so BTCUSDT splits as BTC/USDT rather
// than as a shorter quote match.
var knownQuotes = []string{
	"USDT", "USDC", "BUSD", "TUSD", "FDUSD",
	"USD", "EUR", "GBP", "JPY", "AUD", "CHF",
	"BTC", "ETH", "BNB", "DAI",
}

var krakenAliases = map[string]string{
	"XBT":  "BTC",
	"XDG":  "DOGE",
	"XXBT": "BTC",
	"XETH": "ETH",
	"ZUSD": "USD",
	"ZEUR": "EUR",
}

func heuristicNormalize(exchange models.ExchangeID, symbol string) string {
	switch exchange {
	case models.Coinbase, models.OKX:
		// Already BASE-QUOTE.
		if strings.Contains(symbol, "-") {
			return symbol
		}
		return splitConcatenated(symbol)
	case models.Binance:
		return splitConcatenated(symbol)
	case models.Kraken:
		return normalizeKraken(symbol)
	case models.Bitfinex:
		return normalizeBitfinex(symbol)
	default:
		return ""
	}
}

func splitConcatenated(symbol string) string {
	upper := strings.ToUpper(symbol)
	for _, quote := range knownQuotes {
		if strings.HasSuffix(upper, quote) && len(upper) > len(quote) {
			return upper[:len(upper)-len(quote)] + "-" + quote
		}
	}
	return ""
}

func normalizeKraken(symbol string) string {
	parts := strings.Split(strings.ToUpper(symbol), "/")
	if len(parts) != 2 {
		return ""
	}
	base, quote := parts[0], parts[1]
	if alias, ok := krakenAliases[base]; ok {
		base = alias
	}
	if alias, ok := krakenAliases[quote]; ok {
		quote = alias
	}
	return base + "-" + quote
}

func normalizeBitfinex(symbol string) string {
	s := strings.TrimPrefix(symbol, "t")
	if i := strings.IndexByte(s, ':'); i >= 0 {
		// Long symbols use a colon separator, e.g. tTESTBTC:TESTUSD.
		return strings.ToUpper(s[:i]) + "-" + strings.ToUpper(s[i+1:])
	}
	return splitConcatenated(s)
}
