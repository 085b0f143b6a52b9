package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrConsistencyViolation = errors.New("internal consistency violation")
)

// Scale is the number of decimal places kept on prices and quantities.
const Scale int32 = 2

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide accepts BUY, SELL and the feed shorthands B and S, in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "B":
		return SideBuy, nil
	case "SELL", "S":
		return SideSell, nil
	}
	return "", fmt.Errorf("%w: side must be BUY or SELL, got %q", ErrInvalidArgument, s)
}

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Better reports whether price a ranks ahead of price b on this side:
// higher first for bids, lower first for asks.
func (s Side) Better(a, b decimal.Decimal) bool {
	if s == SideBuy {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}

// Normalize truncates d toward zero at Scale decimal places.
func Normalize(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(Scale)
}

// Order is one resting quote. It is immutable once built by NewOrder and
// is shared read-only between the book and query callers.
type Order struct {
	instrument string
	side       Side
	price      decimal.Decimal
	quantity   decimal.Decimal
	timestamp  time.Time
}

// OrderKey identifies a resting order. It excludes quantity, so two
// snapshots sharing a key describe the same order at different sizes.
type OrderKey struct {
	Instrument string
	Side       Side
	Price      string
	Timestamp  int64
}

func NewOrder(instrument string, side Side, price, quantity decimal.Decimal, timestamp time.Time) (Order, error) {
	if instrument == "" {
		return Order{}, fmt.Errorf("%w: instrument is required", ErrInvalidArgument)
	}
	if !side.Valid() {
		return Order{}, fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidArgument)
	}
	if timestamp.IsZero() {
		return Order{}, fmt.Errorf("%w: timestamp is required", ErrInvalidArgument)
	}

	price = Normalize(price)
	quantity = Normalize(quantity)

	// edge case: 0.001 truncates to 0.00, which is not a valid price
	if !price.IsPositive() {
		return Order{}, fmt.Errorf("%w: price must be positive", ErrInvalidArgument)
	}
	if quantity.IsNegative() {
		return Order{}, fmt.Errorf("%w: quantity must not be negative", ErrInvalidArgument)
	}

	return Order{
		instrument: instrument,
		side:       side,
		price:      price,
		quantity:   quantity,
		timestamp:  timestamp,
	}, nil
}

func (o Order) Instrument() string { return o.instrument }
func (o Order) Side() Side { return o.side }
func (o Order) Price() decimal.Decimal { return o.price }
func (o Order) Quantity() decimal.Decimal { return o.quantity }
func (o Order) Timestamp() time.Time { return o.timestamp }
func (o Order) IsZero() bool { return o.instrument == "" }

func (o Order) Key() OrderKey {
	return OrderKey{
		Instrument: o.instrument,
		Side:       o.side,
		Price:      priceKey(o.price),
		Timestamp:  o.timestamp.UnixNano(),
	}
}

func (o Order) SameIdentity(other Order) bool {
	return o.Key() == other.Key()
}

func (o Order) String() string {
	return fmt.Sprintf("Order{instrument=%s side=%s price=%s quantity=%s timestamp=%d}",
		o.instrument, o.side, o.price.StringFixed(Scale), o.quantity.StringFixed(Scale), o.timestamp.UnixMilli())
}

func priceKey(p decimal.Decimal) string {
	return p.StringFixed(Scale)
}
