package service

import (
	"context"
	"math"

	"github.com/shopspring/decimal"

	"mitsys/backend/internal/domain"
)

// RecalculateProductCost derives the product's cost from its recipe:
// the sum of required quantity times ingredient unit cost over the lines
// whose ingredient is still active. Products without recipe lines keep their
// manually entered cost untouched. Profit always ends up as price minus cost.
func (s *Service) RecalculateProductCost(ctx context.Context, productID int) error {
	lines, err := s.repo.ListRecipeLines(ctx, productID)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}

	cost := decimal.Zero
	for _, line := range lines {
		lineCost := line.IngredientUnitCost.Mul(decimal.NewFromFloat(line.RequiredQuantity))
		cost = cost.Add(lineCost)
	}

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	profit := product.UnitPrice.Sub(cost)
	return s.repo.SetProductCost(ctx, productID, cost, profit)
}

// RecalculateAllProductCosts runs the cost derivation over every active
// product. Used after an ingredient delete, which can touch many recipes.
func (s *Service) RecalculateAllProductCosts(ctx context.Context) error {
	products, err := s.repo.ListProducts(ctx, false)
	if err != nil {
		return err
	}
	for _, p := range products {
		if err := s.RecalculateProductCost(ctx, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// EstimatedStock computes how many whole units of the product the current
// ingredient stocks allow: the floor of the most constraining ratio of
// ingredient stock to required quantity. Lines requiring nothing are skipped;
// a product without recipe lines estimates to zero.
func (s *Service) EstimatedStock(ctx context.Context, productID int) (float64, error) {
	lines, err := s.repo.ListRecipeLines(ctx, productID)
	if err != nil {
		return 0, err
	}

	limit := math.Inf(1)
	counted := false
	for _, line := range lines {
		if line.RequiredQuantity == 0 {
			continue
		}
		possible := line.IngredientStock / line.RequiredQuantity
		if possible < limit {
			limit = possible
		}
		counted = true
	}
	if !counted {
		return 0, nil
	}
	return math.Floor(limit), nil
}

func (s *Service) refreshEstimatedStock(ctx context.Context, productID int) error {
	stock, err := s.EstimatedStock(ctx, productID)
	if err != nil {
		return err
	}
	return s.repo.SetProductEstimatedStock(ctx, productID, stock)
}

// RefreshAllEstimatedStocks recomputes the estimate for every active
// stock-managed product. Safe to call repeatedly.
func (s *Service) RefreshAllEstimatedStocks(ctx context.Context) error {
	ids, err := s.repo.ListStockManagedProductIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.refreshEstimatedStock(ctx, id); err != nil {
			return err
		}
	}
	s.invalidateCatalog(ctx)
	return nil
}

// LowStockProducts lists active stock-managed products at or below their
// minimum stock, for the replenishment warning.
func (s *Service) LowStockProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx, false)
	if err != nil {
		return nil, err
	}
	var out []domain.Product
	for _, p := range products {
		if p.StockManaged && p.EstimatedStock <= p.MinimumStock {
			out = append(out, p)
		}
	}
	return out, nil
}
