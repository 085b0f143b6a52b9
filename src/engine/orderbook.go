package engine

import (
	"sync"

	"github.com/google/btree"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const btreeDegree = 32

// Level is one price level in best-first output.
type Level struct {
	Price  decimal.Decimal
	Orders []Order
}

// LevelSummary aggregates a price level without materialising its orders.
type LevelSummary struct {
	Price    decimal.Decimal
	Count    int
	TotalQty decimal.Decimal
}

// BookSnapshot holds both sides of one instrument, each best-first.
type BookSnapshot struct {
	Instrument string
	Buy        []Level
	Sell       []Level
}

// priceLevel holds the orders resting at one price. A level that lost its
// last order is marked dead under mu and is never revived; inserts that
// find it replace it with a fresh level under the side write lock.
type priceLevel struct {
	price  decimal.Decimal
	mu     sync.Mutex
	orders []Order // arrival order
	dead   bool
}

func (pl *priceLevel) add(order Order) (added bool, live bool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.dead {
		return false, false
	}
	for _, o := range pl.orders {
		if o.SameIdentity(order) {
			return false, true
		}
	}
	pl.orders = append(pl.orders, order)
	return true, true
}

func (pl *priceLevel) remove(order Order) (removed bool, emptied bool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.dead {
		return false, false
	}
	for i, o := range pl.orders {
		if o.SameIdentity(order) {
			pl.orders = append(pl.orders[:i], pl.orders[i+1:]...)
			removed = true
			break
		}
	}
	if removed && len(pl.orders) == 0 {
		pl.dead = true
		emptied = true
	}
	return removed, emptied
}

func (pl *priceLevel) live() bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return !pl.dead && len(pl.orders) > 0
}

// snapshot copies the orders under the level lock. ok is false for a dead level.
func (pl *priceLevel) snapshot() (orders []Order, ok bool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.dead || len(pl.orders) == 0 {
		return nil, false
	}
	orders = make([]Order, len(pl.orders))
	copy(orders, pl.orders)
	return orders, true
}

func (pl *priceLevel) summary() (LevelSummary, bool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.dead || len(pl.orders) == 0 {
		return LevelSummary{}, false
	}
	total := decimal.Zero
	for _, o := range pl.orders {
		total = total.Add(o.quantity)
	}
	return LevelSummary{Price: pl.price, Count: len(pl.orders), TotalQty: total}, true
}

// bookSide is one side of a book: a btree of price levels ordered best-first
// by the side's comparator. mu guards the tree shape; each level guards its
// own orders. Lock order is side before level.
type bookSide struct {
	side   Side
	mu     sync.RWMutex
	levels *btree.BTreeG[*priceLevel]
}

func newBookSide(side Side) *bookSide {
	return &bookSide{
		side: side,
		levels: btree.NewG(btreeDegree, func(a, b *priceLevel) bool {
			return side.Better(a.price, b.price)
		}),
	}
}

func probe(price decimal.Decimal) *priceLevel {
	return &priceLevel{price: price}
}

func (s *bookSide) add(order Order) bool {
	key := probe(order.price)

	// fast path: join an existing live level under the shared lock
	s.mu.RLock()
	if level, ok := s.levels.Get(key); ok {
		if added, live := level.add(order); live {
			s.mu.RUnlock()
			return added
		}
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// edge case: another writer may have created the level meanwhile
	if level, ok := s.levels.Get(key); ok {
		if added, live := level.add(order); live {
			return added
		}
	}
	s.levels.ReplaceOrInsert(&priceLevel{price: order.price, orders: []Order{order}})
	return true
}

// remove deletes order by identity. stale reports an emptied level whose
// key could not be pruned from the tree.
func (s *bookSide) remove(order Order) (removed bool, stale bool) {
	s.mu.RLock()
	level, ok := s.levels.Get(probe(order.price))
	if !ok {
		s.mu.RUnlock()
		return false, false
	}
	removed, emptied := level.remove(order)
	s.mu.RUnlock()

	if emptied && !s.prune(level) {
		return removed, true
	}
	return removed, false
}

func (s *bookSide) prune(level *priceLevel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.levels.Get(level)
	if !ok || current != level {
		// already replaced by a fresh level or removed
		return true
	}
	_, ok = s.levels.Delete(level)
	return ok
}

func (s *bookSide) empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.levels.Len() == 0 {
		return true
	}
	empty := true
	s.levels.Ascend(func(level *priceLevel) bool {
		if level.live() {
			empty = false
		}
		return empty
	})
	return empty
}

func (s *bookSide) best() (decimal.Decimal, bool) {
	var best decimal.Decimal
	found := false
	s.ascendLive(1, func(level *priceLevel) bool {
		found = level.live()
		if found {
			best = level.price
		}
		return found
	})
	return best, found
}

func (s *bookSide) at(price decimal.Decimal) []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	level, ok := s.levels.Get(probe(price))
	if !ok {
		return []Order{}
	}
	orders, ok := level.snapshot()
	if !ok {
		return []Order{}
	}
	return orders
}

// ascendLive walks levels best-first under the shared lock until visit has
// accepted n levels. visit returns true when it accepted the level.
func (s *bookSide) ascendLive(n int, visit func(level *priceLevel) bool) {
	if n < 1 {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	accepted := 0
	s.levels.Ascend(func(level *priceLevel) bool {
		if visit(level) {
			accepted++
		}
		return accepted < n
	})
}

func (s *bookSide) upTo(n int) []Level {
	levels := make([]Level, 0)
	s.ascendLive(n, func(level *priceLevel) bool {
		orders, ok := level.snapshot()
		if ok {
			levels = append(levels, Level{Price: level.price, Orders: orders})
		}
		return ok
	})
	return levels
}

func (s *bookSide) summaries(n int) []LevelSummary {
	out := make([]LevelSummary, 0)
	s.ascendLive(n, func(level *priceLevel) bool {
		sum, ok := level.summary()
		if ok {
			out = append(out, sum)
		}
		return ok
	})
	return out
}

// OrderBook tracks the resting orders of one instrument. All synchronization
// is internal; callers need no external locking.
type OrderBook struct {
	Instrument string
	bids       *bookSide // highest first
	asks       *bookSide // lowest first
	logger     zerolog.Logger

	// lifecycle is held shared by mutations and exclusively by retire, so a
	// retired book is guaranteed empty and never accepts another order.
	lifecycle sync.RWMutex
	retired   bool
}

func NewOrderBook(instrument string) *OrderBook {
	return newOrderBook(instrument, log.Logger)
}

func newOrderBook(instrument string, logger zerolog.Logger) *OrderBook {
	ob := &OrderBook{
		Instrument: instrument,
		bids:       newBookSide(SideBuy),
		asks:       newBookSide(SideSell),
		logger:     logger.With().Str("instrument", instrument).Logger(),
	}
	ob.logger.Debug().Msg("Order book created")
	return ob
}

func (ob *OrderBook) sideBook(side Side) *bookSide {
	if side == SideBuy {
		return ob.bids
	}
	return ob.asks
}

// AddOrder inserts order into the level for its side and price, creating the
// level if needed. It returns false for a duplicate identity, an order of
// another instrument, or a retired book.
func (ob *OrderBook) AddOrder(order Order) bool {
	added, _ := ob.addOrder(order)
	return added
}

func (ob *OrderBook) addOrder(order Order) (added bool, live bool) {
	if order.instrument != ob.Instrument || !order.side.Valid() {
		ob.logger.Warn().Stringer("order", order).Msg("Order rejected: wrong instrument or side")
		return false, true
	}

	ob.lifecycle.RLock()
	defer ob.lifecycle.RUnlock()

	if ob.retired {
		return false, false
	}
	return ob.sideBook(order.side).add(order), true
}

// DeleteOrder removes the order sharing order's identity. An emptied level
// is removed with it; failing to remove it is reported and returns false.
func (ob *OrderBook) DeleteOrder(order Order) bool {
	if order.instrument != ob.Instrument || !order.side.Valid() {
		return false
	}

	ob.lifecycle.RLock()
	defer ob.lifecycle.RUnlock()

	removed, stale := ob.sideBook(order.side).remove(order)
	if stale {
		ob.logger.Error().
			Str("side", string(order.side)).
			Str("price", order.price.StringFixed(Scale)).
			Msg("Internal error: emptied price level could not be removed")
		return false
	}
	if !removed {
		ob.logger.Debug().Stringer("order", order).Msg("Delete ignored: order not found")
	}
	return removed
}

func (ob *OrderBook) IsEmpty() bool {
	return ob.bids.empty() && ob.asks.empty()
}

// retireIfEmpty marks an empty book retired. Callers hold the registry shard
// lock for the book's instrument.
func (ob *OrderBook) retireIfEmpty() bool {
	ob.lifecycle.Lock()
	defer ob.lifecycle.Unlock()

	if ob.retired {
		return true
	}
	if !ob.IsEmpty() {
		return false
	}
	ob.retired = true
	ob.logger.Debug().Msg("Order book retired")
	return true
}

func (ob *OrderBook) BestPrice(side Side) (decimal.Decimal, bool) {
	if !side.Valid() {
		return decimal.Decimal{}, false
	}
	return ob.sideBook(side).best()
}

// OrdersAtLevel returns the orders at exactly price in arrival order, or an
// empty slice.
func (ob *OrderBook) OrdersAtLevel(side Side, price decimal.Decimal) []Order {
	if !side.Valid() {
		return []Order{}
	}
	return ob.sideBook(side).at(Normalize(price))
}

// OrdersUpToLevel returns the first n levels best-first, or all of them when
// the side is shallower.
func (ob *OrderBook) OrdersUpToLevel(side Side, n int) []Level {
	if !side.Valid() {
		return []Level{}
	}
	return ob.sideBook(side).upTo(n)
}

func (ob *OrderBook) VolumeWeightedPriceOverLevel(side Side, n int) []LevelSummary {
	if !side.Valid() {
		return []LevelSummary{}
	}
	return ob.sideBook(side).summaries(n)
}

func (ob *OrderBook) TotalQtyOverLevel(side Side, n int) decimal.Decimal {
	total := decimal.Zero
	for _, level := range ob.VolumeWeightedPriceOverLevel(side, n) {
		total = total.Add(level.TotalQty)
	}
	return total
}

// AveragePriceOverLevel is the quantity-weighted mean price of the first n
// levels, truncated at Scale. It is zero when those levels hold no quantity.
func (ob *OrderBook) AveragePriceOverLevel(side Side, n int) decimal.Decimal {
	return weightedAverage(ob.VolumeWeightedPriceOverLevel(side, n))
}

func weightedAverage(levels []LevelSummary) decimal.Decimal {
	numerator := decimal.Zero
	denominator := decimal.Zero
	for _, level := range levels {
		numerator = numerator.Add(level.Price.Mul(level.TotalQty))
		denominator = denominator.Add(level.TotalQty)
	}
	// edge case: all quantities zero
	if denominator.IsZero() {
		return decimal.Zero
	}
	quotient, _ := numerator.QuoRem(denominator, Scale)
	return quotient
}

// Snapshot copies both sides. Each level is consistent on its own; the two
// sides are read one after the other.
func (ob *OrderBook) Snapshot() BookSnapshot {
	all := int(^uint(0) >> 1)
	return BookSnapshot{
		Instrument: ob.Instrument,
		Buy:        ob.bids.upTo(all),
		Sell:       ob.asks.upTo(all),
	}
}

// matching returns every resting order sharing order's identity.
func (ob *OrderBook) matching(order Order) []Order {
	var matches []Order
	for _, o := range ob.OrdersAtLevel(order.side, order.price) {
		if o.SameIdentity(order) {
			matches = append(matches, o)
		}
	}
	return matches
}
