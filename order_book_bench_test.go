package match

import (
	"math/rand"
	"testing"
)

func BenchmarkOrderBookMatch(b *testing.B) {
	book := NewOrderBook("X", NewDiscardPublishLog(), WithInvariantChecks(false))

	// Use fixed seed for repeatability
	rng := rand.New(rand.NewSource(42))
	midPrice := int64(10000)

	batch := make([]Order, 1)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		offset := rng.Int63n(50)
		if rng.Intn(2) == 0 {
			batch[0] = Order{Price: midPrice - 25 + offset, Quantity: rng.Int63n(10) + 1}
		} else {
			batch[0] = Order{Price: midPrice - 25 + offset, Quantity: -(rng.Int63n(10) + 1)}
		}
		_, _ = book.Match(batch, OwnerAlgo, 0)

		if i%10000 == 0 {
			book.Reset()
		}
	}

	stats := book.Stats()
	b.Logf("bid orders: %d, ask orders: %d", stats.BidOrderCount, stats.AskOrderCount)
}

func BenchmarkOrderBookSeed(b *testing.B) {
	book := NewOrderBook("X", NewDiscardPublishLog(), WithInvariantChecks(false))

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		level := int64(i % 3)
		_, _ = book.Seed(9990-level, 5, OwnerMarket, 0)
		_, _ = book.Seed(10010+level, -5, OwnerMarket, 0)

		if i%3 == 2 {
			book.Reset()
		}
	}
}
