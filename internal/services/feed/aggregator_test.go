package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/liqmon/internal/domain"
	"go.uber.org/zap"
)

type fakePoll struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	err    error
	calls  int
}

func (f *fakePoll) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]decimal.Decimal, len(f.prices))
	for k, v := range f.prices {
		out[k] = v
	}
	return out, nil
}

func (f *fakePoll) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeStream reports unhealthy immediately and blocks until ctx ends,
// simulating a stream that never manages to connect.
type fakeStream struct{}

func (fakeStream) Run(ctx context.Context, symbols []string, onUpdate func(map[string]decimal.Decimal), onState func(bool)) error {
	onState(false)
	<-ctx.Done()
	return ctx.Err()
}

func TestAggregator_GetPriceMissing(t *testing.T) {
	a := NewAggregator([]string{"ETH"}, nil, &fakePoll{}, time.Second, zap.NewNop())

	_, ok := a.GetPrice("ETH")
	assert.False(t, ok, "symbol without any feed data must report missing, not zero")
}

func TestAggregator_LastWriteWinsPerSymbol(t *testing.T) {
	a := NewAggregator([]string{"ETH"}, nil, &fakePoll{}, time.Second, zap.NewNop())

	a.apply(map[string]decimal.Decimal{"ETH": decimal.NewFromInt(3000)}, domain.PriceSourceStream)
	first, ok := a.GetPrice("ETH")
	require.True(t, ok)

	// a poll result applied later wins regardless of source
	a.apply(map[string]decimal.Decimal{"ETH": decimal.NewFromInt(2990)}, domain.PriceSourcePoll)
	second, ok := a.GetPrice("ETH")
	require.True(t, ok)

	assert.True(t, second.Price.Equal(decimal.NewFromInt(2990)))
	assert.Equal(t, domain.PriceSourcePoll, second.Source)
	assert.False(t, first.NewerThan(second))
}

func TestAggregator_StaleUpdateDiscarded(t *testing.T) {
	a := NewAggregator([]string{"ETH"}, nil, &fakePoll{}, time.Second, zap.NewNop())

	a.mu.Lock()
	a.prices["ETH"] = domain.AssetPrice{
		Symbol:     "ETH",
		Price:      decimal.NewFromInt(3000),
		ObservedAt: time.Now().Add(time.Hour),
		Source:     domain.PriceSourceStream,
	}
	a.mu.Unlock()

	a.apply(map[string]decimal.Decimal{"ETH": decimal.NewFromInt(1)}, domain.PriceSourcePoll)

	quote, ok := a.GetPrice("ETH")
	require.True(t, ok)
	assert.True(t, quote.Price.Equal(decimal.NewFromInt(3000)), "older update must not overwrite newer quote")
}

func TestAggregator_NegativePriceDropped(t *testing.T) {
	a := NewAggregator([]string{"ETH"}, nil, &fakePoll{}, time.Second, zap.NewNop())

	a.apply(map[string]decimal.Decimal{"ETH": decimal.NewFromInt(-5)}, domain.PriceSourceStream)

	_, ok := a.GetPrice("ETH")
	assert.False(t, ok)
}

func TestAggregator_SubscribeGetsFullSnapshotCopies(t *testing.T) {
	a := NewAggregator([]string{"ETH", "BTC"}, nil, &fakePoll{}, time.Second, zap.NewNop())

	var mu sync.Mutex
	var received []map[string]domain.AssetPrice
	unsubscribe := a.Subscribe(func(snapshot map[string]domain.AssetPrice) {
		mu.Lock()
		received = append(received, snapshot)
		mu.Unlock()
	})

	a.apply(map[string]decimal.Decimal{"ETH": decimal.NewFromInt(3000)}, domain.PriceSourceStream)
	a.apply(map[string]decimal.Decimal{"BTC": decimal.NewFromInt(60000)}, domain.PriceSourceStream)

	mu.Lock()
	require.Len(t, received, 2)
	assert.Len(t, received[0], 1)
	assert.Len(t, received[1], 2, "callback receives the full map, not a diff")

	// mutating a delivered snapshot must not affect the aggregator
	delete(received[1], "ETH")
	mu.Unlock()

	_, ok := a.GetPrice("ETH")
	assert.True(t, ok)

	unsubscribe()
	a.apply(map[string]decimal.Decimal{"ETH": decimal.NewFromInt(1)}, domain.PriceSourceStream)
	mu.Lock()
	assert.Len(t, received, 2, "unsubscribed callback must not fire")
	mu.Unlock()
}

func TestAggregator_PollFallbackWhenStreamDown(t *testing.T) {
	poll := &fakePoll{prices: map[string]decimal.Decimal{"ETH": decimal.NewFromInt(2950)}}
	a := NewAggregator([]string{"ETH"}, fakeStream{}, poll, 20*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = a.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		quote, ok := a.GetPrice("ETH")
		return ok && quote.Source == domain.PriceSourcePoll
	}, time.Second, 5*time.Millisecond, "polling fallback must produce a price while the stream is down")

	cancel()
	<-done
	assert.GreaterOrEqual(t, poll.callCount(), 1)
}

func TestAggregator_PollFailureIsNotFatal(t *testing.T) {
	poll := &fakePoll{err: context.DeadlineExceeded}
	a := NewAggregator([]string{"ETH"}, nil, poll, 10*time.Millisecond, zap.NewNop())

	// long enough for the retrier inside pollOnce to attempt at least twice
	ctx, cancel := context.WithTimeout(context.Background(), 1200*time.Millisecond)
	defer cancel()

	err := a.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, poll.callCount(), 2, "loop must keep polling across failures")
}

func TestDefaultPrice(t *testing.T) {
	quote, ok := DefaultPrice("ETH")
	require.True(t, ok)
	assert.Equal(t, domain.PriceSourceFallbackDefault, quote.Source)
	assert.False(t, quote.IsLive())

	_, ok = DefaultPrice("NOPE")
	assert.False(t, ok)
}
