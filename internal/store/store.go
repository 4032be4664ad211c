package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"mitsys/backend/internal/domain"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicateID = errors.New("duplicate id")
	ErrValidation  = errors.New("validation failed")
)

// Repository is the persistence boundary. Implementations synchronize
// internally; operations that touch several tables (deletes with
// reorganization, ID moves) are atomic per call.
type Repository interface {
	// Config key-value table.
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	// Products. Create fails with ErrDuplicateID when the ID is taken by any
	// row, active or not. Update moves the row to product.ID (rewriting
	// recipe and sale references) when it differs from oldID. Delete
	// soft-deletes, drops the product's recipe lines and renumbers the whole
	// table contiguously.
	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, oldID int, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int) error
	NextProductID(ctx context.Context) (int, error)
	SetProductCost(ctx context.Context, id int, cost, profit decimal.Decimal) error
	SetProductEstimatedStock(ctx context.Context, id int, stock float64) error
	ListStockManagedProductIDs(ctx context.Context) ([]int, error)

	// Ingredients. Same ID discipline as products.
	ListIngredients(ctx context.Context, includeInactive bool) ([]domain.Ingredient, error)
	GetIngredient(ctx context.Context, id int) (*domain.Ingredient, error)
	CreateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error)
	UpdateIngredient(ctx context.Context, oldID int, ingredient domain.Ingredient) (*domain.Ingredient, error)
	DeleteIngredient(ctx context.Context, id int) error
	NextIngredientID(ctx context.Context) (int, error)
	AddIngredientStock(ctx context.Context, id int, delta float64) (*domain.Ingredient, error)

	// Recipe lines. ListRecipeLines joins the current ingredient state and
	// skips lines whose ingredient is inactive.
	ListRecipeLines(ctx context.Context, productID int) ([]domain.RecipeDetail, error)
	ListAllRecipeLines(ctx context.Context) ([]domain.RecipeDetail, error)
	GetRecipeLine(ctx context.Context, id int) (*domain.RecipeLine, error)
	CreateRecipeLine(ctx context.Context, line domain.RecipeLine) (*domain.RecipeLine, error)
	UpdateRecipeLine(ctx context.Context, oldID int, line domain.RecipeLine) (*domain.RecipeLine, error)
	DeleteRecipeLine(ctx context.Context, id int) error
	NextRecipeLineID(ctx context.Context) (int, error)

	// Sales. Lines are append-only; day arguments are DD/MM/YYYY strings and
	// match the stored timestamp prefix. Method "" sums every payment method.
	AppendSaleLine(ctx context.Context, line domain.SaleLine) error
	ListSalesByDay(ctx context.Context, day string) ([]domain.SaleLine, error)
	SumSalesByDay(ctx context.Context, day, method string) (decimal.Decimal, error)
	NetProfitByDay(ctx context.Context, day string) (decimal.Decimal, error)

	// Pending orders, one per table label.
	UpsertPendingOrder(ctx context.Context, order domain.PendingOrder) error
	GetPendingOrder(ctx context.Context, tableLabel string) (*domain.PendingOrder, error)
	DeletePendingOrder(ctx context.Context, tableLabel string) error
	ListPendingTables(ctx context.Context) ([]string, error)

	// Cash cuts and drawer counts.
	AppendCashCut(ctx context.Context, cut domain.CashCut) (*domain.CashCut, error)
	GetCashCut(ctx context.Context, id int) (*domain.CashCut, error)
	UpdateCashCut(ctx context.Context, cut domain.CashCut) (*domain.CashCut, error)
	DeleteCashCut(ctx context.Context, id int) error
	ListCashCuts(ctx context.Context, filter domain.CutFilter) ([]domain.CashCut, error)
	AppendCashCountEntries(ctx context.Context, entries []domain.CashCountEntry) error

	// Audit trail.
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
}
