package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"quote-book/src/engine"
	"quote-book/src/parser"
)

// Applier is the mutating side of the order book manager.
type Applier interface {
	Apply(order engine.Order) (engine.UpdateAction, bool, error)
}

type Stats struct {
	Lines    int
	Applied  int
	Skipped  int // reconciled but not applied (ignore, no-op, lost race)
	Rejected int // unparseable or invalid lines
}

// Replay reads feed lines from r and applies each to m in order. Blank lines
// and lines starting with '#' are skipped. Invalid lines are counted and
// logged; a consistency violation stops the replay and is returned.
func Replay(ctx context.Context, r io.Reader, m Applier, logger zerolog.Logger) (Stats, error) {
	var stats Stats
	scanner := bufio.NewScanner(r)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		stats.Lines++

		order, err := parser.ParseOrder(line)
		if err != nil {
			stats.Rejected++
			logger.Warn().Err(err).Int("line", lineNo).Msg("Feed line rejected")
			continue
		}

		_, applied, err := m.Apply(order)
		if err != nil {
			if errors.Is(err, engine.ErrInvalidArgument) {
				stats.Rejected++
				logger.Warn().Err(err).Int("line", lineNo).Msg("Feed line rejected")
				continue
			}
			return stats, fmt.Errorf("feed line %d: %w", lineNo, err)
		}
		if applied {
			stats.Applied++
		} else {
			stats.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("reading feed: %w", err)
	}

	logger.Info().
		Int("lines", stats.Lines).
		Int("applied", stats.Applied).
		Int("skipped", stats.Skipped).
		Int("rejected", stats.Rejected).
		Msg("Feed replay complete")
	return stats, nil
}
