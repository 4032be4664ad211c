package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"mitsys/backend/internal/domain"
	"mitsys/backend/internal/format"
	"mitsys/backend/internal/store"
)

func validUnit(unit string) bool {
	switch unit {
	case domain.UnitPiece, domain.UnitKilo, domain.UnitLiter:
		return true
	}
	return false
}

// --- products ---

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if cached, ok, err := s.catalog.Get(ctx, catalogCacheKey); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: catalog cache read failed: %v", err)
	}

	products, err := s.repo.ListProducts(ctx, false)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.Set(ctx, catalogCacheKey, products, s.catalogTTL); err != nil {
		log.Printf("[service] WARN: catalog cache write failed: %v", err)
	}
	return products, nil
}

// SearchProducts filters by name ignoring case and accents.
func (s *Service) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return products, nil
	}
	var out []domain.Product
	for _, p := range products {
		if format.MatchesFold(p.Name, query) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) GetProduct(ctx context.Context, id int) (domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *p, nil
}

func (s *Service) NextProductID(ctx context.Context) (int, error) {
	return s.repo.NextProductID(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.ID < 1 {
		return domain.Product{}, fmt.Errorf("product id must be positive: %w", store.ErrValidation)
	}
	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("product name required: %w", store.ErrValidation)
	}
	if req.UnitPrice.IsNegative() || req.Cost.IsNegative() {
		return domain.Product{}, fmt.Errorf("product price and cost must not be negative: %w", store.ErrValidation)
	}
	if !validUnit(req.UnitOfMeasure) {
		return domain.Product{}, fmt.Errorf("unknown unit of measure %q: %w", req.UnitOfMeasure, store.ErrValidation)
	}

	product := domain.Product{
		ID:             req.ID,
		Name:           req.Name,
		UnitPrice:      req.UnitPrice,
		Cost:           req.Cost,
		Profit:         req.UnitPrice.Sub(req.Cost),
		UnitOfMeasure:  req.UnitOfMeasure,
		EstimatedStock: req.EstimatedStock,
		MinimumStock:   req.MinimumStock,
		StockManaged:   req.StockManaged,
		ImageRef:       req.ImageRef,
		Active:         true,
		CreatedAt:      format.Timestamp(time.Now()),
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "product_create", "product", strconv.Itoa(created.ID), "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.NewID != nil {
		if *req.NewID < 1 {
			return domain.Product{}, fmt.Errorf("product id must be positive: %w", store.ErrValidation)
		}
		updated.ID = *req.NewID
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("product name required: %w", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.UnitPrice != nil {
		if req.UnitPrice.IsNegative() {
			return domain.Product{}, fmt.Errorf("product price must not be negative: %w", store.ErrValidation)
		}
		updated.UnitPrice = *req.UnitPrice
	}
	if req.Cost != nil {
		if req.Cost.IsNegative() {
			return domain.Product{}, fmt.Errorf("product cost must not be negative: %w", store.ErrValidation)
		}
		updated.Cost = *req.Cost
	}
	if req.UnitOfMeasure != nil {
		if !validUnit(*req.UnitOfMeasure) {
			return domain.Product{}, fmt.Errorf("unknown unit of measure %q: %w", *req.UnitOfMeasure, store.ErrValidation)
		}
		updated.UnitOfMeasure = *req.UnitOfMeasure
	}
	if req.EstimatedStock != nil {
		updated.EstimatedStock = *req.EstimatedStock
	}
	if req.MinimumStock != nil {
		updated.MinimumStock = *req.MinimumStock
	}
	if req.StockManaged != nil {
		updated.StockManaged = *req.StockManaged
	}
	if req.ImageRef != nil {
		updated.ImageRef = *req.ImageRef
	}
	updated.Profit = updated.UnitPrice.Sub(updated.Cost)

	saved, err := s.repo.UpdateProduct(ctx, id, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "product_update", "product", strconv.Itoa(saved.ID), "name="+saved.Name)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "product_delete", "product", strconv.Itoa(id), "")
	return nil
}

// --- ingredients ---

func (s *Service) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	return s.repo.ListIngredients(ctx, false)
}

func (s *Service) SearchIngredients(ctx context.Context, query string) ([]domain.Ingredient, error) {
	ingredients, err := s.repo.ListIngredients(ctx, false)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return ingredients, nil
	}
	var out []domain.Ingredient
	for _, ing := range ingredients {
		if format.MatchesFold(ing.Name, query) {
			out = append(out, ing)
		}
	}
	return out, nil
}

func (s *Service) GetIngredient(ctx context.Context, id int) (domain.Ingredient, error) {
	ing, err := s.repo.GetIngredient(ctx, id)
	if err != nil {
		return domain.Ingredient{}, err
	}
	return *ing, nil
}

func (s *Service) NextIngredientID(ctx context.Context) (int, error) {
	return s.repo.NextIngredientID(ctx)
}

func (s *Service) CreateIngredient(ctx context.Context, req domain.IngredientCreateRequest) (domain.Ingredient, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.ID < 1 {
		return domain.Ingredient{}, fmt.Errorf("ingredient id must be positive: %w", store.ErrValidation)
	}
	if req.Name == "" {
		return domain.Ingredient{}, fmt.Errorf("ingredient name required: %w", store.ErrValidation)
	}
	if req.UnitCost.IsNegative() || req.StockQuantity < 0 {
		return domain.Ingredient{}, fmt.Errorf("ingredient cost and stock must not be negative: %w", store.ErrValidation)
	}
	if !validUnit(req.StorageUnit) {
		return domain.Ingredient{}, fmt.Errorf("unknown storage unit %q: %w", req.StorageUnit, store.ErrValidation)
	}

	ingredient := domain.Ingredient{
		ID:            req.ID,
		Name:          req.Name,
		StorageUnit:   req.StorageUnit,
		UnitCost:      req.UnitCost,
		StockQuantity: req.StockQuantity,
		StockManaged:  req.StockManaged,
		Active:        true,
		CreatedAt:     format.Timestamp(time.Now()),
	}

	created, err := s.repo.CreateIngredient(ctx, ingredient)
	if err != nil {
		return domain.Ingredient{}, err
	}

	s.logAudit(ctx, "ingredient_create", "ingredient", strconv.Itoa(created.ID), "name="+created.Name)
	return *created, nil
}

// UpdateIngredient merges the request and saves. A unit cost change does not
// recompute product costs; only the estimated stocks are refreshed, so costs
// catch up the next time each recipe is touched.
func (s *Service) UpdateIngredient(ctx context.Context, id int, req domain.IngredientUpdateRequest) (domain.Ingredient, error) {
	existing, err := s.repo.GetIngredient(ctx, id)
	if err != nil {
		return domain.Ingredient{}, err
	}

	updated := *existing
	if req.NewID != nil {
		if *req.NewID < 1 {
			return domain.Ingredient{}, fmt.Errorf("ingredient id must be positive: %w", store.ErrValidation)
		}
		updated.ID = *req.NewID
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Ingredient{}, fmt.Errorf("ingredient name required: %w", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.StorageUnit != nil {
		if !validUnit(*req.StorageUnit) {
			return domain.Ingredient{}, fmt.Errorf("unknown storage unit %q: %w", *req.StorageUnit, store.ErrValidation)
		}
		updated.StorageUnit = *req.StorageUnit
	}
	if req.UnitCost != nil {
		if req.UnitCost.IsNegative() {
			return domain.Ingredient{}, fmt.Errorf("ingredient cost must not be negative: %w", store.ErrValidation)
		}
		updated.UnitCost = *req.UnitCost
	}
	if req.StockQuantity != nil {
		if *req.StockQuantity < 0 {
			return domain.Ingredient{}, fmt.Errorf("ingredient stock must not be negative: %w", store.ErrValidation)
		}
		updated.StockQuantity = *req.StockQuantity
	}
	if req.StockManaged != nil {
		updated.StockManaged = *req.StockManaged
	}

	saved, err := s.repo.UpdateIngredient(ctx, id, updated)
	if err != nil {
		return domain.Ingredient{}, err
	}

	if err := s.RefreshAllEstimatedStocks(ctx); err != nil {
		log.Printf("[service] WARN: estimated stock refresh after ingredient update failed: %v", err)
	}
	s.logAudit(ctx, "ingredient_update", "ingredient", strconv.Itoa(saved.ID), "name="+saved.Name)
	return *saved, nil
}

func (s *Service) DeleteIngredient(ctx context.Context, id int) error {
	if err := s.repo.DeleteIngredient(ctx, id); err != nil {
		return err
	}
	if err := s.RecalculateAllProductCosts(ctx); err != nil {
		log.Printf("[service] WARN: cost recalculation after ingredient delete failed: %v", err)
	}
	if err := s.RefreshAllEstimatedStocks(ctx); err != nil {
		log.Printf("[service] WARN: estimated stock refresh after ingredient delete failed: %v", err)
	}
	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "ingredient_delete", "ingredient", strconv.Itoa(id), "")
	return nil
}

// RegisterIngredientPurchase adds the purchased quantity to stock and
// refreshes every estimated product stock.
func (s *Service) RegisterIngredientPurchase(ctx context.Context, id int, quantity float64) (domain.Ingredient, error) {
	if quantity <= 0 {
		return domain.Ingredient{}, fmt.Errorf("purchase quantity must be positive: %w", store.ErrValidation)
	}
	ing, err := s.repo.AddIngredientStock(ctx, id, quantity)
	if err != nil {
		return domain.Ingredient{}, err
	}
	if err := s.RefreshAllEstimatedStocks(ctx); err != nil {
		log.Printf("[service] WARN: estimated stock refresh after purchase failed: %v", err)
	}
	s.logAudit(ctx, "ingredient_purchase", "ingredient", strconv.Itoa(id), fmt.Sprintf("quantity=%g", quantity))
	return *ing, nil
}

// --- recipe lines ---

func (s *Service) ListRecipe(ctx context.Context, productID int) ([]domain.RecipeDetail, error) {
	return s.repo.ListRecipeLines(ctx, productID)
}

func (s *Service) ListAllRecipeLines(ctx context.Context) ([]domain.RecipeDetail, error) {
	return s.repo.ListAllRecipeLines(ctx)
}

func (s *Service) NextRecipeLineID(ctx context.Context) (int, error) {
	return s.repo.NextRecipeLineID(ctx)
}

func (s *Service) CreateRecipeLine(ctx context.Context, line domain.RecipeLine) (domain.RecipeLine, error) {
	if line.ID < 1 {
		return domain.RecipeLine{}, fmt.Errorf("recipe line id must be positive: %w", store.ErrValidation)
	}
	if line.RequiredQuantity < 0 {
		return domain.RecipeLine{}, fmt.Errorf("required quantity must not be negative: %w", store.ErrValidation)
	}
	if _, err := s.repo.GetProduct(ctx, line.ProductID); err != nil {
		return domain.RecipeLine{}, err
	}
	if _, err := s.repo.GetIngredient(ctx, line.IngredientID); err != nil {
		return domain.RecipeLine{}, err
	}

	created, err := s.repo.CreateRecipeLine(ctx, line)
	if err != nil {
		return domain.RecipeLine{}, err
	}

	s.afterRecipeChange(ctx, created.ProductID)
	s.logAudit(ctx, "recipe_line_create", "recipe_line", strconv.Itoa(created.ID),
		fmt.Sprintf("product=%d,ingredient=%d", created.ProductID, created.IngredientID))
	return *created, nil
}

func (s *Service) UpdateRecipeLine(ctx context.Context, id int, req domain.RecipeLineUpdateRequest) (domain.RecipeLine, error) {
	existing, err := s.repo.GetRecipeLine(ctx, id)
	if err != nil {
		return domain.RecipeLine{}, err
	}

	updated := *existing
	if req.NewID != nil {
		if *req.NewID < 1 {
			return domain.RecipeLine{}, fmt.Errorf("recipe line id must be positive: %w", store.ErrValidation)
		}
		updated.ID = *req.NewID
	}
	if req.ProductID != nil {
		if _, err := s.repo.GetProduct(ctx, *req.ProductID); err != nil {
			return domain.RecipeLine{}, err
		}
		updated.ProductID = *req.ProductID
	}
	if req.IngredientID != nil {
		if _, err := s.repo.GetIngredient(ctx, *req.IngredientID); err != nil {
			return domain.RecipeLine{}, err
		}
		updated.IngredientID = *req.IngredientID
	}
	if req.RequiredQuantity != nil {
		if *req.RequiredQuantity < 0 {
			return domain.RecipeLine{}, fmt.Errorf("required quantity must not be negative: %w", store.ErrValidation)
		}
		updated.RequiredQuantity = *req.RequiredQuantity
	}
	if req.PortionUnit != nil {
		updated.PortionUnit = *req.PortionUnit
	}

	saved, err := s.repo.UpdateRecipeLine(ctx, id, updated)
	if err != nil {
		return domain.RecipeLine{}, err
	}

	s.afterRecipeChange(ctx, existing.ProductID)
	if saved.ProductID != existing.ProductID {
		s.afterRecipeChange(ctx, saved.ProductID)
	}
	s.logAudit(ctx, "recipe_line_update", "recipe_line", strconv.Itoa(saved.ID), "")
	return *saved, nil
}

func (s *Service) DeleteRecipeLine(ctx context.Context, id int) error {
	existing, err := s.repo.GetRecipeLine(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteRecipeLine(ctx, id); err != nil {
		return err
	}
	s.afterRecipeChange(ctx, existing.ProductID)
	s.logAudit(ctx, "recipe_line_delete", "recipe_line", strconv.Itoa(id), "")
	return nil
}

// afterRecipeChange keeps the product's derived fields in step with its
// recipe. Failures are logged, not returned; the mutation itself succeeded.
func (s *Service) afterRecipeChange(ctx context.Context, productID int) {
	if err := s.RecalculateProductCost(ctx, productID); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("[service] WARN: cost recalculation for product %d failed: %v", productID, err)
	}
	if err := s.refreshEstimatedStock(ctx, productID); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("[service] WARN: estimated stock refresh for product %d failed: %v", productID, err)
	}
	s.invalidateCatalog(ctx)
}

// --- global stock switch ---

func (s *Service) GlobalStockEnabled(ctx context.Context) bool {
	return s.configValue(ctx, domain.ConfigGlobalStock, "1") == "1"
}

func (s *Service) SetGlobalStock(ctx context.Context, enabled bool) error {
	value := "0"
	if enabled {
		value = "1"
	}
	if err := s.repo.SetConfig(ctx, domain.ConfigGlobalStock, value); err != nil {
		return err
	}
	if enabled {
		if err := s.RefreshAllEstimatedStocks(ctx); err != nil {
			log.Printf("[service] WARN: estimated stock refresh after enabling stock control failed: %v", err)
		}
	}
	s.logAudit(ctx, "global_stock_set", "config", domain.ConfigGlobalStock, "value="+value)
	return nil
}
