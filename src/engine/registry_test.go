package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func unixMillis(ms int) time.Time {
	return time.UnixMilli(int64(ms))
}

func TestNewRegistryRoundsShardsToPowerOfTwo(t *testing.T) {
	cases := map[int]int{0: DefaultRegistryShards, -4: DefaultRegistryShards, 1: 1, 3: 4, 32: 32, 33: 64}
	for in, want := range cases {
		if got := len(NewRegistry(in).shards); got != want {
			t.Errorf("NewRegistry(%d): expected %d shards, got: %d", in, want, got)
		}
	}
}

func TestRegistryConcurrentGetOrCreateBuildsOneBook(t *testing.T) {
	r := NewRegistry(8)

	const goroutines = 64
	books := make([]*OrderBook, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			books[i] = r.getOrCreate("BTCUSD", func() *OrderBook {
				return newOrderBook("BTCUSD", zerolog.Nop())
			})
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if books[i] != books[0] {
			t.Fatalf("Goroutine %d got a different book instance", i)
		}
	}
	if r.Len() != 1 {
		t.Errorf("Expected 1 book, got: %d", r.Len())
	}
}

func TestRegistryReleaseIfEmpty(t *testing.T) {
	r := NewRegistry(2)
	ob := r.getOrCreate("BTCUSD", func() *OrderBook { return newOrderBook("BTCUSD", zerolog.Nop()) })
	o := mustOrder(t, "BTCUSD", SideBuy, "1", "1", 1)
	ob.AddOrder(o)

	if r.releaseIfEmpty("BTCUSD", ob) {
		t.Error("Non-empty book must not be released")
	}

	ob.DeleteOrder(o)
	if !r.releaseIfEmpty("BTCUSD", ob) {
		t.Error("Empty book should be released")
	}
	if _, ok := r.Get("BTCUSD"); ok {
		t.Error("Released book should be gone")
	}
	if added, live := ob.addOrder(o); added || live {
		t.Errorf("Retired book should refuse inserts, added=%v live=%v", added, live)
	}

	other := newOrderBook("BTCUSD", zerolog.Nop())
	if !r.releaseIfEmpty("BTCUSD", other) {
		t.Error("Releasing an unregistered instrument should report it gone")
	}
}

func TestRegistryInstrumentsSorted(t *testing.T) {
	r := NewRegistry(4)
	for _, s := range []string{"SOLUSD", "BTCUSD", "ETHUSD"} {
		s := s
		r.getOrCreate(s, func() *OrderBook { return newOrderBook(s, zerolog.Nop()) })
	}
	got := r.Instruments()
	want := []string{"BTCUSD", "ETHUSD", "SOLUSD"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected %v, got: %v", want, got)
		}
	}
}
