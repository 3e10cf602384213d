package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/liqmon/internal/domain"
	"github.com/vadiminshakov/liqmon/pkg/retrier"
	"go.uber.org/zap"
)

const pollFetchTimeout = 5 * time.Second

// DefaultPrices are the explicit hardcoded fallbacks callers may use
// when neither stream nor poll has ever produced a quote for a symbol.
// The aggregator itself never fabricates entries from this map; a
// missing symbol stays missing until a caller opts into the default.
var DefaultPrices = map[string]decimal.Decimal{
	"BTC":  decimal.NewFromInt(60000),
	"ETH":  decimal.NewFromInt(3000),
	"USDC": decimal.NewFromInt(1),
	"USDT": decimal.NewFromInt(1),
	"DAI":  decimal.NewFromInt(1),
}

// DefaultPrice returns the hardcoded fallback quote for a symbol,
// clearly marked with PriceSourceFallbackDefault.
func DefaultPrice(symbol string) (domain.AssetPrice, bool) {
	price, ok := DefaultPrices[symbol]
	if !ok {
		return domain.AssetPrice{}, false
	}
	return domain.AssetPrice{
		Symbol:     symbol,
		Price:      price,
		ObservedAt: time.Time{},
		Source:     domain.PriceSourceFallbackDefault,
	}, true
}

// Aggregator maintains the latest quote per symbol, fed by a streaming
// subscription with a polling fallback. Both paths may be live during
// a reconnect race; merging is last-write-wins per symbol by
// observation time. The price map is only ever replaced entry by entry
// under the lock and handed out as full copies, so readers always see
// an internally consistent snapshot.
type Aggregator struct {
	symbols      []string
	stream       StreamSource
	poll         PollSource
	pollInterval time.Duration

	mu     sync.RWMutex
	prices map[string]domain.AssetPrice

	subMu     sync.Mutex
	subs      map[int]func(map[string]domain.AssetPrice)
	nextSubID int

	streamHealthy atomic.Bool
	retrier       *retrier.Retrier
	logger        *zap.Logger
}

// NewAggregator wires the aggregator. stream may be nil, which leaves
// the poll path permanently active.
func NewAggregator(symbols []string, stream StreamSource, poll PollSource, pollInterval time.Duration, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		symbols:      symbols,
		stream:       stream,
		poll:         poll,
		pollInterval: pollInterval,
		prices:       make(map[string]domain.AssetPrice),
		subs:         make(map[int]func(map[string]domain.AssetPrice)),
		retrier: retrier.New(
			retrier.WithMaxRetries(2),
			retrier.WithInitialInterval(500*time.Millisecond),
		),
		logger: logger.With(zap.String("component", "feed_aggregator")),
	}
}

// GetPrice returns the latest quote for a symbol. The second return is
// false when no path has ever produced a price; callers must then use
// an explicit default, never treat missing as zero.
func (a *Aggregator) GetPrice(symbol string) (domain.AssetPrice, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	price, ok := a.prices[symbol]
	return price, ok
}

// GetAllPrices returns a copy of the full price map.
func (a *Aggregator) GetAllPrices() map[string]domain.AssetPrice {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return copyPrices(a.prices)
}

// PriceValues returns just the decimal values, the shape the health
// calculator consumes.
func (a *Aggregator) PriceValues() map[string]decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	values := make(map[string]decimal.Decimal, len(a.prices))
	for symbol, price := range a.prices {
		values[symbol] = price.Price
	}
	return values
}

// Subscribe registers a callback invoked with a full snapshot of the
// price map on every feed update. Returns an unsubscribe handle.
func (a *Aggregator) Subscribe(fn func(map[string]domain.AssetPrice)) func() {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	id := a.nextSubID
	a.nextSubID++
	a.subs[id] = fn
	return func() {
		a.subMu.Lock()
		defer a.subMu.Unlock()
		delete(a.subs, id)
	}
}

// Run drives both feed paths until ctx is done. Network failures are
// logged and flip to the fallback; they are never fatal.
func (a *Aggregator) Run(ctx context.Context) error {
	if a.stream != nil {
		go func() {
			err := a.stream.Run(ctx, a.symbols, func(update map[string]decimal.Decimal) {
				a.apply(update, domain.PriceSourceStream)
			}, func(connected bool) {
				a.streamHealthy.Store(connected)
				if connected {
					a.logger.Info("price stream healthy")
				} else {
					a.logger.Warn("price stream down, polling fallback armed")
				}
			})
			if err != nil && ctx.Err() == nil {
				a.logger.Error("price stream terminated", zap.Error(err))
			}
		}()
	}

	// warm the map so the first scan cycle has data
	a.pollOnce(ctx)

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if a.stream != nil && a.streamHealthy.Load() {
				continue
			}
			a.pollOnce(ctx)
		}
	}
}

func (a *Aggregator) pollOnce(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, pollFetchTimeout)
	defer cancel()

	update, err := retrier.DoWithData(a.retrier, fetchCtx, func(ctx context.Context) (map[string]decimal.Decimal, error) {
		return a.poll.Prices(ctx, a.symbols)
	})
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Warn("price poll failed", zap.Error(err))
		}
		return
	}
	a.apply(update, domain.PriceSourcePoll)
}

func (a *Aggregator) apply(update map[string]decimal.Decimal, source domain.PriceSource) {
	now := time.Now()

	a.mu.Lock()
	changed := false
	for symbol, value := range update {
		quote, err := domain.NewAssetPrice(symbol, value, now, source)
		if err != nil {
			a.logger.Warn("dropping invalid quote", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if existing, ok := a.prices[symbol]; ok && existing.NewerThan(quote) {
			continue
		}
		a.prices[symbol] = quote
		changed = true
	}
	var snapshot map[string]domain.AssetPrice
	if changed {
		snapshot = copyPrices(a.prices)
	}
	a.mu.Unlock()

	if !changed {
		return
	}

	a.subMu.Lock()
	callbacks := make([]func(map[string]domain.AssetPrice), 0, len(a.subs))
	for _, fn := range a.subs {
		callbacks = append(callbacks, fn)
	}
	a.subMu.Unlock()

	// each subscriber gets its own copy so nobody can corrupt another's view
	for _, fn := range callbacks {
		fn(copyPrices(snapshot))
	}
}

func copyPrices(src map[string]domain.AssetPrice) map[string]domain.AssetPrice {
	dst := make(map[string]domain.AssetPrice, len(src))
	for symbol, price := range src {
		dst[symbol] = price
	}
	return dst
}
