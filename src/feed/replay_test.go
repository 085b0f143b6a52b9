package feed

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"quote-book/src/engine"
)

const sampleFeed = `# opening snapshot
t=1|i=BTCUSD|p=100.00|q=2|s=b
t=2|i=BTCUSD|p=101.00|q=1|s=s

t=3|i=ETHUSD|p=10.00|q=5|s=b
t=1|i=BTCUSD|p=100.00|q=2|s=b
t=1|i=BTCUSD|p=100.00|q=3|s=b
t=2|i=BTCUSD|p=101.00|q=0|s=s
t=9|i=BTCUSD|p=99.00|q=0|s=b
garbage
`

func TestReplayAppliesFeed(t *testing.T) {
	m := engine.NewOrderBookManager(engine.NewRegistry(4), zerolog.Nop())

	stats, err := Replay(context.Background(), strings.NewReader(sampleFeed), m, zerolog.Nop())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// insert, insert, insert, no-op, replace, delete, ignore, garbage
	want := Stats{Lines: 8, Applied: 5, Skipped: 2, Rejected: 1}
	if stats != want {
		t.Errorf("Expected %+v, got: %+v", want, stats)
	}

	total, _ := m.TotalQtyOverLevel("BTCUSD", engine.SideBuy, 1)
	if !total.Equal(decimal.NewFromInt(3)) {
		t.Errorf("Expected replaced quantity 3, got: %s", total)
	}
	if _, ok, _ := m.BestPrice("BTCUSD", engine.SideSell); ok {
		t.Error("Deleted ask should be gone")
	}
}

type failingApplier struct{}

func (failingApplier) Apply(engine.Order) (engine.UpdateAction, bool, error) {
	return "", false, engine.ErrConsistencyViolation
}

func TestReplayStopsOnConsistencyViolation(t *testing.T) {
	_, err := Replay(context.Background(), strings.NewReader(sampleFeed), failingApplier{}, zerolog.Nop())
	if !errors.Is(err, engine.ErrConsistencyViolation) {
		t.Errorf("Expected ErrConsistencyViolation, got: %v", err)
	}
}

func TestReplayHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := engine.NewOrderBookManager(engine.NewRegistry(1), zerolog.Nop())
	stats, err := Replay(ctx, strings.NewReader(sampleFeed), m, zerolog.Nop())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
	if stats.Lines != 0 {
		t.Errorf("Expected nothing replayed, got: %+v", stats)
	}
}
