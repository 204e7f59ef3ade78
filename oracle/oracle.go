// Package oracle provides in-process price sources for the lending pool.
// Prices are WAD integers per native asset unit; there is no floating point
// anywhere on the path.
package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// ErrNoQuote indicates that no usable price is available for the asset.
var ErrNoQuote = errors.New("oracle: no price quote available")

// Quote captures a WAD price together with the time it was observed and the
// source that reported it.
type Quote struct {
	PriceWad  *big.Int
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q Quote) Clone() Quote {
	clone := Quote{Timestamp: q.Timestamp, Source: q.Source}
	if q.PriceWad != nil {
		clone.PriceWad = new(big.Int).Set(q.PriceWad)
	}
	return clone
}

// Source resolves the WAD price for an asset.
type Source interface {
	GetPrice(asset string) (*big.Int, error)
}

// Manual is a hand-fed price source. Operators and tests set prices
// explicitly; reads for unset assets fail rather than defaulting to zero.
type Manual struct {
	mu     sync.RWMutex
	name   string
	quotes map[string]Quote
	now    func() time.Time
}

// NewManual constructs an empty manual price source.
func NewManual() *Manual {
	return &Manual{name: "manual", quotes: make(map[string]Quote), now: time.Now}
}

// SetClock overrides the timestamp source used when recording quotes.
func (m *Manual) SetClock(now func() time.Time) {
	if m == nil || now == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetPrice records the WAD price for an asset. Non-positive prices clear the
// quote.
func (m *Manual) SetPrice(asset string, priceWad *big.Int) {
	if m == nil {
		return
	}
	asset = normalize(asset)
	m.mu.Lock()
	defer m.mu.Unlock()
	if priceWad == nil || priceWad.Sign() <= 0 {
		delete(m.quotes, asset)
		return
	}
	m.quotes[asset] = Quote{
		PriceWad:  new(big.Int).Set(priceWad),
		Timestamp: m.now(),
		Source:    m.name,
	}
}

// GetPrice implements Source.
func (m *Manual) GetPrice(asset string) (*big.Int, error) {
	if m == nil {
		return nil, ErrNoQuote
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	quote, ok := m.quotes[normalize(asset)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoQuote, asset)
	}
	return new(big.Int).Set(quote.PriceWad), nil
}

// Quote returns the full quote for an asset, including observation metadata.
func (m *Manual) Quote(asset string) (Quote, error) {
	if m == nil {
		return Quote{}, ErrNoQuote
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	quote, ok := m.quotes[normalize(asset)]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrNoQuote, asset)
	}
	return quote.Clone(), nil
}

func normalize(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// Aggregator consults registered sources in priority order until one of them
// produces a quote.
type Aggregator struct {
	mu       sync.RWMutex
	priority []string
	sources  map[string]Source
}

// NewAggregator constructs an aggregator with the provided priority order.
func NewAggregator(priority []string) *Aggregator {
	return &Aggregator{
		priority: append([]string{}, priority...),
		sources:  make(map[string]Source),
	}
}

// Register adds a named source. Unknown names in the priority list are
// skipped at read time, so registration order is flexible.
func (a *Aggregator) Register(name string, source Source) {
	if a == nil || source == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.sources[name]; !ok {
		found := false
		for _, p := range a.priority {
			if p == name {
				found = true
				break
			}
		}
		if !found {
			a.priority = append(a.priority, name)
		}
	}
	a.sources[name] = source
}

// GetPrice implements Source by walking the priority list.
func (a *Aggregator) GetPrice(asset string) (*big.Int, error) {
	if a == nil {
		return nil, ErrNoQuote
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	var lastErr error
	for _, name := range a.priority {
		source, ok := a.sources[name]
		if !ok {
			continue
		}
		price, err := source.GetPrice(asset)
		if err == nil && price != nil && price.Sign() > 0 {
			return price, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %s", ErrNoQuote, asset)
}
