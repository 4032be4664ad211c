package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"mitsys/backend/internal/cache"
	"mitsys/backend/internal/domain"
	"mitsys/backend/internal/store"
	"mitsys/backend/internal/store/memory"
)

// recordingCache remembers the TTL of the last Set call.
type recordingCache struct {
	cache.NoopCatalogCache
	lastTTL time.Duration
}

func (c *recordingCache) Set(_ context.Context, _ string, _ []domain.Product, ttl time.Duration) error {
	c.lastTTL = ttl
	return nil
}

func newTestService() *Service {
	return New(memory.New(), cache.NoopCatalogCache{}, 0)
}

func mustCreateProduct(t *testing.T, svc *Service, id int, name string, price float64) domain.Product {
	t.Helper()
	p, err := svc.CreateProduct(context.Background(), domain.ProductCreateRequest{
		ID:            id,
		Name:          name,
		UnitPrice:     decimal.NewFromFloat(price),
		UnitOfMeasure: domain.UnitPiece,
		StockManaged:  true,
	})
	if err != nil {
		t.Fatalf("create product %d: %v", id, err)
	}
	return p
}

func mustCreateIngredient(t *testing.T, svc *Service, id int, name string, unitCost, stock float64) domain.Ingredient {
	t.Helper()
	ing, err := svc.CreateIngredient(context.Background(), domain.IngredientCreateRequest{
		ID:            id,
		Name:          name,
		StorageUnit:   domain.UnitKilo,
		UnitCost:      decimal.NewFromFloat(unitCost),
		StockQuantity: stock,
		StockManaged:  true,
	})
	if err != nil {
		t.Fatalf("create ingredient %d: %v", id, err)
	}
	return ing
}

func mustCreateRecipeLine(t *testing.T, svc *Service, id, productID, ingredientID int, qty float64) domain.RecipeLine {
	t.Helper()
	line, err := svc.CreateRecipeLine(context.Background(), domain.RecipeLine{
		ID:               id,
		ProductID:        productID,
		IngredientID:     ingredientID,
		RequiredQuantity: qty,
		PortionUnit:      domain.UnitKilo,
	})
	if err != nil {
		t.Fatalf("create recipe line %d: %v", id, err)
	}
	return line
}

func TestConfiguredCatalogTTLReachesCache(t *testing.T) {
	rec := &recordingCache{}
	svc := New(memory.New(), rec, 90*time.Second)
	mustCreateProduct(t, svc, 1, "Tacos", 15)

	if _, err := svc.ListProducts(context.Background()); err != nil {
		t.Fatalf("list products: %v", err)
	}
	if rec.lastTTL != 90*time.Second {
		t.Fatalf("cache ttl = %s, want 90s", rec.lastTTL)
	}

	fallback := &recordingCache{}
	svc = New(memory.New(), fallback, 0)
	mustCreateProduct(t, svc, 1, "Tacos", 15)
	if _, err := svc.ListProducts(context.Background()); err != nil {
		t.Fatalf("list products: %v", err)
	}
	if fallback.lastTTL != 30*time.Second {
		t.Fatalf("default ttl = %s, want 30s", fallback.lastTTL)
	}
}

func TestCreateProductRejectsDuplicateID(t *testing.T) {
	svc := newTestService()
	mustCreateProduct(t, svc, 1, "Tacos", 15)

	_, err := svc.CreateProduct(context.Background(), domain.ProductCreateRequest{
		ID:            1,
		Name:          "Quesadilla",
		UnitPrice:     decimal.NewFromInt(45),
		UnitOfMeasure: domain.UnitPiece,
	})
	if !errors.Is(err, store.ErrDuplicateID) {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestNextProductIDSuggestsMaxPlusOne(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	next, err := svc.NextProductID(ctx)
	if err != nil || next != 1 {
		t.Fatalf("empty catalog next id = %d, %v", next, err)
	}
	mustCreateProduct(t, svc, 1, "Tacos", 15)
	mustCreateProduct(t, svc, 4, "Sopes", 30)

	next, err = svc.NextProductID(ctx)
	if err != nil || next != 5 {
		t.Fatalf("next id = %d, %v; want 5", next, err)
	}
}

func TestDeleteProductRenumbersAndRewritesReferences(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	mustCreateProduct(t, svc, 1, "Tacos", 15)
	mustCreateProduct(t, svc, 2, "Quesadilla", 45)
	mustCreateProduct(t, svc, 3, "Sopes", 30)
	mustCreateIngredient(t, svc, 1, "Carne", 10, 10)
	mustCreateRecipeLine(t, svc, 1, 2, 1, 0.2)
	mustCreateRecipeLine(t, svc, 2, 3, 1, 0.3)

	if err := svc.DeleteProduct(ctx, 2); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	products, err := svc.ListProducts(ctx)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}
	for i, p := range products {
		if p.ID != i+1 {
			t.Fatalf("ids not contiguous: position %d has id %d", i, p.ID)
		}
	}
	if products[1].Name != "Sopes" {
		t.Fatalf("expected Sopes at id 2, got %s", products[1].Name)
	}

	// The cascaded recipe line of the deleted product is gone; the survivor
	// follows its product to the new id.
	lines, err := svc.ListAllRecipeLines(ctx)
	if err != nil {
		t.Fatalf("list recipe lines: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 recipe line, got %d", len(lines))
	}
	if lines[0].ProductID != 2 {
		t.Fatalf("recipe line product ref = %d, want 2", lines[0].ProductID)
	}
	if lines[0].ID != 1 {
		t.Fatalf("recipe line ids not renumbered, got %d", lines[0].ID)
	}
}

func TestUpdateProductMovesIDAndRewritesRecipe(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	mustCreateProduct(t, svc, 1, "Tacos", 15)
	mustCreateIngredient(t, svc, 1, "Carne", 10, 10)
	mustCreateRecipeLine(t, svc, 1, 1, 1, 0.5)

	newID := 7
	updated, err := svc.UpdateProduct(ctx, 1, domain.ProductUpdateRequest{NewID: &newID})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.ID != 7 {
		t.Fatalf("id = %d, want 7", updated.ID)
	}

	lines, err := svc.ListRecipe(ctx, 7)
	if err != nil {
		t.Fatalf("list recipe: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("recipe did not follow the product, got %d lines", len(lines))
	}
}

func TestUpdateProductRecomputesProfit(t *testing.T) {
	svc := newTestService()
	mustCreateProduct(t, svc, 1, "Tacos", 15)

	price := decimal.NewFromInt(20)
	cost := decimal.NewFromInt(6)
	updated, err := svc.UpdateProduct(context.Background(), 1, domain.ProductUpdateRequest{
		UnitPrice: &price,
		Cost:      &cost,
	})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if !updated.Profit.Equal(decimal.NewFromInt(14)) {
		t.Fatalf("profit = %s, want 14", updated.Profit)
	}
}

func TestDeleteIngredientCascadesAndRecomputesCosts(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	mustCreateProduct(t, svc, 1, "Tacos", 15)
	mustCreateIngredient(t, svc, 1, "Carne", 10, 10)
	mustCreateIngredient(t, svc, 2, "Tortilla", 2, 100)
	mustCreateRecipeLine(t, svc, 1, 1, 1, 0.5)
	mustCreateRecipeLine(t, svc, 2, 1, 2, 1)

	if err := svc.DeleteIngredient(ctx, 1); err != nil {
		t.Fatalf("delete ingredient: %v", err)
	}

	ingredients, err := svc.ListIngredients(ctx)
	if err != nil {
		t.Fatalf("list ingredients: %v", err)
	}
	if len(ingredients) != 1 || ingredients[0].ID != 1 || ingredients[0].Name != "Tortilla" {
		t.Fatalf("expected Tortilla renumbered to id 1, got %+v", ingredients)
	}

	// Remaining recipe line follows the ingredient; product cost drops to
	// the surviving line.
	product, err := svc.GetProduct(ctx, 1)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if !product.Cost.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("cost = %s, want 2", product.Cost)
	}
}

func TestSearchProductsIgnoresAccents(t *testing.T) {
	svc := newTestService()
	mustCreateProduct(t, svc, 1, "Café de Olla", 25)
	mustCreateProduct(t, svc, 2, "Tacos", 15)

	found, err := svc.SearchProducts(context.Background(), "cafe")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 || found[0].ID != 1 {
		t.Fatalf("expected Café de Olla, got %+v", found)
	}
}
