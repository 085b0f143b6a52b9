package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// UpdateAction is the reconciliation step UpdateOrder took for a snapshot.
type UpdateAction string

const (
	ActionInsert  UpdateAction = "INSERT"
	ActionIgnore  UpdateAction = "IGNORE"
	ActionNoOp    UpdateAction = "NOOP"
	ActionReplace UpdateAction = "REPLACE"
	ActionDelete  UpdateAction = "DELETE"
)

// ManagerStats counts reconciliation outcomes since the manager was built.
type ManagerStats struct {
	Updates     int64
	Applied     int64
	Inserts     int64
	Ignores     int64
	NoOps       int64
	Replaces    int64
	Deletes     int64
	Violations  int64
	Instruments int
}

type managerCounters struct {
	updates    atomic.Int64
	applied    atomic.Int64
	inserts    atomic.Int64
	ignores    atomic.Int64
	noops      atomic.Int64
	replaces   atomic.Int64
	deletes    atomic.Int64
	violations atomic.Int64
}

// OrderBookManager routes snapshots and queries to per-instrument books.
// It is safe for concurrent use. Books are created on the first order of an
// instrument and dropped from the registry once both sides are empty.
type OrderBookManager struct {
	registry *Registry
	logger   zerolog.Logger
	counters managerCounters
}

func NewOrderBookManager(registry *Registry, logger zerolog.Logger) *OrderBookManager {
	if registry == nil {
		registry = NewRegistry(DefaultRegistryShards)
	}
	return &OrderBookManager{
		registry: registry,
		logger:   logger,
	}
}

func (m *OrderBookManager) Registry() *Registry {
	return m.registry
}

// UpdateOrder reconciles order against the resting order sharing its
// identity. See Apply.
func (m *OrderBookManager) UpdateOrder(order Order) (bool, error) {
	_, applied, err := m.Apply(order)
	return applied, err
}

// Apply reconciles a full-state snapshot:
//
//	no match, quantity > 0      INSERT
//	no match, quantity == 0     IGNORE
//	match, same quantity        NOOP
//	match, new quantity > 0     REPLACE (delete then insert)
//	match, quantity == 0        DELETE
//
// More than one match means the book holds duplicate identities and is
// returned as ErrConsistencyViolation.
//
// REPLACE is two steps. A reader between them sees the order absent, and a
// concurrent update of the same identity may interleave with it.
func (m *OrderBookManager) Apply(order Order) (UpdateAction, bool, error) {
	if order.IsZero() {
		return "", false, fmt.Errorf("%w: order is required", ErrInvalidArgument)
	}
	m.counters.updates.Add(1)

	var matches []Order
	if ob, ok := m.registry.Get(order.instrument); ok {
		matches = ob.matching(order)
	}

	var (
		action  UpdateAction
		applied bool
	)
	switch len(matches) {
	case 0:
		if order.quantity.IsZero() {
			action = ActionIgnore
			m.counters.ignores.Add(1)
			break
		}
		action = ActionInsert
		applied = m.insert(order)
		m.counters.inserts.Add(1)
	case 1:
		resting := matches[0]
		switch {
		case resting.quantity.Equal(order.quantity):
			action = ActionNoOp
			m.counters.noops.Add(1)
		case order.quantity.IsZero():
			action = ActionDelete
			applied = m.delete(resting)
			m.counters.deletes.Add(1)
		default:
			action = ActionReplace
			applied = m.delete(resting) && m.insert(order)
			m.counters.replaces.Add(1)
		}
	default:
		m.counters.violations.Add(1)
		m.logger.Error().
			Stringer("order", order).
			Int("matches", len(matches)).
			Msg("Internal error: duplicate identity in order book")
		return "", false, fmt.Errorf("%w: %d resting orders share the identity of %s",
			ErrConsistencyViolation, len(matches), order)
	}

	if applied {
		m.counters.applied.Add(1)
	}

	m.logger.Debug().
		Str("instrument", order.instrument).
		Str("side", string(order.side)).
		Str("price", order.price.StringFixed(Scale)).
		Str("quantity", order.quantity.StringFixed(Scale)).
		Str("action", string(action)).
		Bool("applied", applied).
		Msg("Order update reconciled")

	return action, applied, nil
}

func (m *OrderBookManager) insert(order Order) bool {
	create := func() *OrderBook {
		return newOrderBook(order.instrument, m.logger)
	}
	for {
		ob := m.registry.getOrCreate(order.instrument, create)
		added, live := ob.addOrder(order)
		if !live {
			// edge case: book retired between lookup and insert, retry on a fresh one
			continue
		}
		if !added {
			m.registry.releaseIfEmpty(order.instrument, ob)
		}
		return added
	}
}

func (m *OrderBookManager) delete(order Order) bool {
	ob, ok := m.registry.Get(order.instrument)
	if !ok {
		m.logger.Debug().Stringer("order", order).Msg("Delete ignored: no order book for instrument")
		return false
	}
	removed := ob.DeleteOrder(order)
	if removed && ob.IsEmpty() {
		m.registry.releaseIfEmpty(order.instrument, ob)
	}
	return removed
}

func validateQuery(instrument string, side Side) error {
	if instrument == "" {
		return fmt.Errorf("%w: instrument is required", ErrInvalidArgument)
	}
	if !side.Valid() {
		return fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidArgument)
	}
	return nil
}

func validateDepth(instrument string, side Side, levels int) error {
	if err := validateQuery(instrument, side); err != nil {
		return err
	}
	if levels < 1 {
		return fmt.Errorf("%w: level count must be at least 1, got %d", ErrInvalidArgument, levels)
	}
	return nil
}

// BestPrice returns the best resting price on side. ok is false when the
// instrument has no book or the side is empty.
func (m *OrderBookManager) BestPrice(instrument string, side Side) (price decimal.Decimal, ok bool, err error) {
	if err := validateQuery(instrument, side); err != nil {
		return decimal.Decimal{}, false, err
	}
	ob, exists := m.registry.Get(instrument)
	if !exists {
		return decimal.Decimal{}, false, nil
	}
	price, ok = ob.BestPrice(side)
	return price, ok, nil
}

func (m *OrderBookManager) OrdersAtLevel(instrument string, side Side, price decimal.Decimal) ([]Order, error) {
	if err := validateQuery(instrument, side); err != nil {
		return nil, err
	}
	ob, exists := m.registry.Get(instrument)
	if !exists {
		return []Order{}, nil
	}
	return ob.OrdersAtLevel(side, price), nil
}

func (m *OrderBookManager) OrdersUpToLevel(instrument string, side Side, levels int) ([]Level, error) {
	if err := validateDepth(instrument, side, levels); err != nil {
		return nil, err
	}
	ob, exists := m.registry.Get(instrument)
	if !exists {
		return []Level{}, nil
	}
	return ob.OrdersUpToLevel(side, levels), nil
}

func (m *OrderBookManager) AveragePriceOverLevel(instrument string, side Side, levels int) (decimal.Decimal, error) {
	if err := validateDepth(instrument, side, levels); err != nil {
		return decimal.Zero, err
	}
	ob, exists := m.registry.Get(instrument)
	if !exists {
		return decimal.Zero, nil
	}
	return ob.AveragePriceOverLevel(side, levels), nil
}

func (m *OrderBookManager) TotalQtyOverLevel(instrument string, side Side, levels int) (decimal.Decimal, error) {
	if err := validateDepth(instrument, side, levels); err != nil {
		return decimal.Zero, err
	}
	ob, exists := m.registry.Get(instrument)
	if !exists {
		return decimal.Zero, nil
	}
	return ob.TotalQtyOverLevel(side, levels), nil
}

func (m *OrderBookManager) VolumeWeightedPriceOverLevel(instrument string, side Side, levels int) ([]LevelSummary, error) {
	if err := validateDepth(instrument, side, levels); err != nil {
		return nil, err
	}
	ob, exists := m.registry.Get(instrument)
	if !exists {
		return []LevelSummary{}, nil
	}
	return ob.VolumeWeightedPriceOverLevel(side, levels), nil
}

// FullOrderBook snapshots every instrument with at least one resting order.
func (m *OrderBookManager) FullOrderBook() map[string]BookSnapshot {
	books := m.registry.Snapshot()
	full := make(map[string]BookSnapshot, len(books))
	for instrument, ob := range books {
		snapshot := ob.Snapshot()
		// edge case: book emptied after the registry copy was taken
		if len(snapshot.Buy) == 0 && len(snapshot.Sell) == 0 {
			continue
		}
		full[instrument] = snapshot
	}
	return full
}

func (m *OrderBookManager) Stats() ManagerStats {
	return ManagerStats{
		Updates:     m.counters.updates.Load(),
		Applied:     m.counters.applied.Load(),
		Inserts:     m.counters.inserts.Load(),
		Ignores:     m.counters.ignores.Load(),
		NoOps:       m.counters.noops.Load(),
		Replaces:    m.counters.replaces.Load(),
		Deletes:     m.counters.deletes.Load(),
		Violations:  m.counters.violations.Load(),
		Instruments: m.registry.Len(),
	}
}
