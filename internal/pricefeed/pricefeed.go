// Package pricefeed supplies current market prices to the engine and drives
// the per-tick portfolio re-projection.
//
// The engine itself holds no timers: an external Scheduler invokes the
// Refresher, which takes one snapshot of quotes and re-projects every
// portfolio through the valuation calculator. Real market-data ingestion
// is out of scope; StaticSource accepts quotes posted by an operator or an
// upstream collector.
package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrUnknownSymbol is returned when a quote is requested for a symbol the
// source has never seen.
var ErrUnknownSymbol = errors.New("pricefeed: unknown symbol")

// ErrInvalidQuote is returned when a posted price is negative.
var ErrInvalidQuote = errors.New("pricefeed: price must not be negative")

// Source provides current prices. Snapshot must return a stable copy: the
// engine valuates a whole group against one snapshot, never against a map
// that can shift mid-computation.
type Source interface {
	// Quote returns the current price for one symbol.
	Quote(ctx context.Context, symbol string) (decimal.Decimal, error)

	// Snapshot returns a copy of all known quotes.
	Snapshot(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Board is a Source that also accepts posted quotes.
type Board interface {
	Source

	// Set posts a price for a symbol.
	Set(symbol string, price decimal.Decimal) error
}

// StaticSource is an in-memory quote board. Safe for concurrent use.
type StaticSource struct {
	mu     sync.RWMutex
	quotes map[string]decimal.Decimal
}

// NewStaticSource creates an empty quote board.
func NewStaticSource() *StaticSource {
	return &StaticSource{quotes: make(map[string]decimal.Decimal)}
}

// Set posts a price for a symbol.
func (s *StaticSource) Set(symbol string, price decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("%w: %s at %s", ErrInvalidQuote, symbol, price)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[symbol] = price
	return nil
}

func (s *StaticSource) Quote(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	price, ok := s.quotes[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return price, nil
}

func (s *StaticSource) Snapshot(_ context.Context) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(s.quotes))
	for symbol, price := range s.quotes {
		out[symbol] = price
	}
	return out, nil
}
