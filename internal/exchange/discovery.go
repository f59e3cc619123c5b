package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gapsniper-go/internal/config"
)

const (
	defaultBitvavoURL = "https://api.bitvavo.com"
	defaultBinanceURL = "https://api.binance.com"
)

// Discovery keeps the target set equal to the Bitvavo EUR listings that also trade on Binance.
type Discovery struct {
	log        zerolog.Logger
	targets    *TargetSet
	manual     []string
	client     *http.Client
	bitvavoURL string
	binanceURL string
	quoteAsset string
	cfg        config.Discovery

	mu      sync.Mutex
	binance map[string]struct{}
	lastSet []string
}

type bitvavoMarket struct {
	Market string `json:"market"`
	Base   string `json:"base"`
	Quote  string `json:"quote"`
	Status string `json:"status"`
}

type binanceExchangeInfo struct {
	Symbols []struct {
		Symbol string `json:"symbol"`
		Status string `json:"status"`
	} `json:"symbols"`
}

// NewDiscovery constructs a discovery service; returns nil if disabled or targets is nil.
func NewDiscovery(log zerolog.Logger, targets *TargetSet, manual []string, quoteAsset string, cfg config.Discovery) *Discovery {
	if targets == nil || !cfg.Enabled {
		return nil
	}
	bitvavo := strings.TrimSuffix(cfg.BitvavoURL, "/")
	if bitvavo == "" {
		bitvavo = defaultBitvavoURL
	}
	binance := strings.TrimSuffix(cfg.BinanceURL, "/")
	if binance == "" {
		binance = defaultBinanceURL
	}
	if quoteAsset == "" {
		quoteAsset = "USDT"
	}
	return &Discovery{
		log:        log,
		targets:    targets,
		manual:     append([]string(nil), manual...),
		client:     &http.Client{Timeout: 15 * time.Second},
		bitvavoURL: bitvavo,
		binanceURL: binance,
		quoteAsset: strings.ToUpper(quoteAsset),
		cfg:        cfg,
	}
}

// Run refreshes immediately and then every refresh interval until ctx is done.
func (d *Discovery) Run(ctx context.Context) error {
	if d == nil {
		return nil
	}
	interval := time.Duration(d.cfg.RefreshInterval) * time.Millisecond
	if interval <= 0 {
		interval = 180 * time.Second
	}
	if err := d.Refresh(ctx); err != nil {
		d.log.Warn().Err(err).Msg("target discovery refresh failed")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.Refresh(ctx); err != nil {
				d.log.Warn().Err(err).Msg("target discovery refresh failed")
			}
		}
	}
}

// Refresh performs a single discovery cycle. An empty intersection keeps the previous targets.
func (d *Discovery) Refresh(ctx context.Context) error {
	if d == nil {
		return nil
	}
	bases, err := d.fetchBitvavoBases(ctx)
	if err != nil {
		return fmt.Errorf("bitvavo markets: %w", err)
	}
	tradable, err := d.binanceSymbols(ctx)
	if err != nil {
		return fmt.Errorf("binance exchangeInfo: %w", err)
	}

	discovered := make([]string, 0, len(bases))
	for _, base := range bases {
		cand := base + d.quoteAsset
		if _, ok := tradable[cand]; ok {
			discovered = append(discovered, cand)
		}
	}
	if len(discovered) == 0 {
		d.log.Warn().Strs("bases", bases).Msg("no overlap between bitvavo and binance listings, keeping previous targets")
		return nil
	}
	combined := mergeSymbols(d.manual, discovered)
	d.targets.Replace(combined)
	d.logDiscoveryChange(combined, bases)
	return nil
}

func (d *Discovery) fetchBitvavoBases(ctx context.Context) ([]string, error) {
	var markets []bitvavoMarket
	if err := d.getJSON(ctx, d.bitvavoURL+"/v2/markets", &markets); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(d.cfg.QuoteCurrency)
	if currency == "" {
		currency = "EUR"
	}
	seen := make(map[string]struct{}, len(markets))
	bases := make([]string, 0, len(markets))
	for _, m := range markets {
		base, quote := strings.ToUpper(m.Base), strings.ToUpper(m.Quote)
		if base == "" || quote == "" {
			parts := strings.SplitN(strings.ToUpper(m.Market), "-", 2)
			if len(parts) != 2 {
				continue
			}
			base, quote = parts[0], parts[1]
		}
		if quote != currency || base == "" {
			continue
		}
		if _, ok := seen[base]; ok {
			continue
		}
		seen[base] = struct{}{}
		bases = append(bases, base)
	}
	sort.Strings(bases)
	if n := d.cfg.TopN; n > 0 && len(bases) > n {
		bases = bases[:n]
	}
	return bases, nil
}

// binanceSymbols loads exchangeInfo once; later cycles reuse the cached TRADING set.
func (d *Discovery) binanceSymbols(ctx context.Context) (map[string]struct{}, error) {
	d.mu.Lock()
	cached := d.binance
	d.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	var info binanceExchangeInfo
	if err := d.getJSON(ctx, d.binanceURL+"/api/v3/exchangeInfo", &info); err != nil {
		return nil, err
	}
	ok := make(map[string]struct{}, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status == "TRADING" && s.Symbol != "" {
			ok[strings.ToUpper(s.Symbol)] = struct{}{}
		}
	}
	d.log.Info().Int("symbols", len(ok)).Msg("binance exchangeInfo loaded")

	d.mu.Lock()
	d.binance = ok
	d.mu.Unlock()
	return ok, nil
}

func (d *Discovery) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "gapsniper-go/1.0 (discovery)")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (d *Discovery) logDiscoveryChange(combined, bases []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slicesEqual(combined, d.lastSet) {
		return
	}
	prev := append([]string(nil), d.lastSet...)
	d.lastSet = append([]string(nil), combined...)
	d.log.Info().
		Strs("targets", combined).
		Strs("bitvavo_bases", bases).
		Strs("manual", d.manual).
		Strs("previous", prev).
		Uint64("version", d.targets.Version()).
		Msg("updated target universe")
}

func mergeSymbols(manual, discovered []string) []string {
	set := make(map[string]struct{}, len(manual)+len(discovered))
	for _, sym := range manual {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			set[sym] = struct{}{}
		}
	}
	for _, sym := range discovered {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			set[sym] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
