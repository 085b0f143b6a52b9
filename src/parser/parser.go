// Package parser decodes feed lines of the form
//
//	t=<unix millis>|i=<instrument>|p=<price>|q=<quantity>|s=<b|s>
//
// into engine orders. Fields may come in any order but each exactly once.
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"quote-book/src/engine"
)

const (
	fieldTimestamp  = "t"
	fieldInstrument = "i"
	fieldPrice      = "p"
	fieldQuantity   = "q"
	fieldSide       = "s"
)

var requiredFields = []string{fieldTimestamp, fieldInstrument, fieldPrice, fieldQuantity, fieldSide}

func ParseOrder(line string) (engine.Order, error) {
	fields, err := split(line)
	if err != nil {
		return engine.Order{}, err
	}

	millis, err := strconv.ParseInt(fields[fieldTimestamp], 10, 64)
	if err != nil {
		return engine.Order{}, fmt.Errorf("%w: timestamp %q is not unix millis", engine.ErrInvalidArgument, fields[fieldTimestamp])
	}
	price, err := decimal.NewFromString(fields[fieldPrice])
	if err != nil {
		return engine.Order{}, fmt.Errorf("%w: price %q: %v", engine.ErrInvalidArgument, fields[fieldPrice], err)
	}
	quantity, err := decimal.NewFromString(fields[fieldQuantity])
	if err != nil {
		return engine.Order{}, fmt.Errorf("%w: quantity %q: %v", engine.ErrInvalidArgument, fields[fieldQuantity], err)
	}
	side, err := engine.ParseSide(fields[fieldSide])
	if err != nil {
		return engine.Order{}, err
	}

	return engine.NewOrder(fields[fieldInstrument], side, price, quantity, time.UnixMilli(millis))
}

func split(line string) (map[string]string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("%w: empty order message", engine.ErrInvalidArgument)
	}

	fields := make(map[string]string, len(requiredFields))
	for _, part := range strings.Split(line, "|") {
		key, value, ok := strings.Cut(part, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			return nil, fmt.Errorf("%w: malformed field %q", engine.ErrInvalidArgument, part)
		}
		if _, seen := fields[key]; seen {
			return nil, fmt.Errorf("%w: duplicate field %q", engine.ErrInvalidArgument, key)
		}
		fields[key] = value
	}

	for _, key := range requiredFields {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("%w: missing field %q", engine.ErrInvalidArgument, key)
		}
	}
	if len(fields) != len(requiredFields) {
		return nil, fmt.Errorf("%w: unknown fields in %q", engine.ErrInvalidArgument, line)
	}
	return fields, nil
}

// FormatOrder renders o in the feed format, the inverse of ParseOrder.
func FormatOrder(o engine.Order) string {
	side := "b"
	if o.Side() == engine.SideSell {
		side = "s"
	}
	return fmt.Sprintf("t=%d|i=%s|p=%s|q=%s|s=%s",
		o.Timestamp().UnixMilli(), o.Instrument(),
		o.Price().StringFixed(engine.Scale), o.Quantity().StringFixed(engine.Scale), side)
}
