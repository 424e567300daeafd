package match

import (
	"math/rand"
	"testing"
)

func BenchmarkDepthAdd(b *testing.B) {
	q := NewBuyerQueue()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.insertOrder(&DetailedOrder{
			Order:    Order{Symbol: "X", Price: int64(rand.Intn(10000) + 1), Quantity: 1},
			Owner:    OwnerMarket,
			Sequence: uint64(i + 1),
		}, false)
	}
}

func BenchmarkDepthRemove(b *testing.B) {
	q := NewSellerQueue()

	prices := make([]int64, b.N)
	for i := 0; i < b.N; i++ {
		prices[i] = int64(rand.Intn(10000) + 1)
		q.insertOrder(&DetailedOrder{
			Order:    Order{Symbol: "X", Price: prices[i], Quantity: -1},
			Owner:    OwnerMarket,
			Sequence: uint64(i + 1),
		}, false)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.removeOrder(prices[i], uint64(i+1))
	}
}

func BenchmarkDepthSnapshot(b *testing.B) {
	q := NewBuyerQueue()
	for i := 0; i < 1000; i++ {
		q.insertOrder(&DetailedOrder{
			Order:    Order{Symbol: "X", Price: int64(i%100 + 1), Quantity: 1},
			Owner:    OwnerMarket,
			Sequence: uint64(i + 1),
		}, false)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = q.depth(0)
	}
}
