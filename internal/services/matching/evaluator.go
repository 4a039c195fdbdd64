package matching

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	domainErrors "github.com/nastyazhadan/trading-hub/shared/errors/domain"
)

type OrderFinder interface {
	FindMatchable(ctx context.Context, symbol string, price decimal.Decimal) ([]models.Order, error)
}

// Evaluator selects resting LIMIT orders eligible at a reference price. It
// reads a snapshot and reserves nothing.
type Evaluator struct {
	finder OrderFinder
}

func NewEvaluator(finder OrderFinder) *Evaluator {
	return &Evaluator{
		finder: finder,
	}
}

// Evaluate returns BUY candidates by limit price descending, then SELL
// candidates by limit price ascending, ties broken by creation time.
func (e *Evaluator) Evaluate(ctx context.Context, symbol string, price decimal.Decimal) ([]models.Order, error) {
	const op = "Evaluator.Evaluate"

	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%s: %w", op, domainErrors.Validation("symbol", "is required"))
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%s: %w", op, domainErrors.Validation("price", "must be positive"))
	}

	found, err := e.finder.FindMatchable(ctx, symbol, price)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	candidates := make([]models.Order, 0, len(found))
	for _, order := range found {
		if order.Matches(symbol, price) {
			candidates = append(candidates, order)
		}
	}

	slices.SortStableFunc(candidates, compareCandidates)

	return candidates, nil
}

func compareCandidates(a, b models.Order) int {
	if a.Side != b.Side {
		if a.Side == models.SideBuy {
			return -1
		}
		return 1
	}

	if c := a.Price.Cmp(b.Price); c != 0 {
		if a.Side == models.SideBuy {
			return -c
		}
		return c
	}

	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}

	return strings.Compare(a.ID.String(), b.ID.String())
}
