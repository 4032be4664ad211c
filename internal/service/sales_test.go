package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"mitsys/backend/internal/cache"
	"mitsys/backend/internal/domain"
	"mitsys/backend/internal/format"
	"mitsys/backend/internal/store"
	"mitsys/backend/internal/store/memory"
)

// faultyConfigRepo fails config reads for one key, as a flaky store would.
type faultyConfigRepo struct {
	store.Repository
	failKey string
}

func (r *faultyConfigRepo) GetConfig(ctx context.Context, key string) (string, error) {
	if r.failKey != "" && key == r.failKey {
		return "", fmt.Errorf("connection reset")
	}
	return r.Repository.GetConfig(ctx, key)
}

// failingAppendRepo rejects sale rows while fail is set.
type failingAppendRepo struct {
	store.Repository
	fail bool
}

func (r *failingAppendRepo) AppendSaleLine(ctx context.Context, line domain.SaleLine) error {
	if r.fail {
		return fmt.Errorf("disk full")
	}
	return r.Repository.AppendSaleLine(ctx, line)
}

func cartLine(productID int, name string, qty, price float64) domain.CartLine {
	unit := decimal.NewFromFloat(price)
	return domain.CartLine{
		ProductID: productID,
		Name:      name,
		Quantity:  qty,
		UnitPrice: unit,
		Total:     unit.Mul(decimal.NewFromFloat(qty)),
	}
}

func TestFinalizeSaleAssignsSequentialSharedNumbers(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	mustCreateProduct(t, svc, 1, "Tacos", 15)
	mustCreateProduct(t, svc, 2, "Refresco", 25)

	first, err := svc.FinalizeSale(ctx, domain.FinalizeSaleRequest{
		Lines:          []domain.CartLine{cartLine(1, "Tacos", 2, 15), cartLine(2, "Refresco", 1, 25)},
		PaymentMethod:  domain.PaymentCash,
		AmountReceived: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("first sale: %v", err)
	}
	if first.SaleNumber != 1 {
		t.Fatalf("first sale number = %d, want 1", first.SaleNumber)
	}

	second, err := svc.FinalizeSale(ctx, domain.FinalizeSaleRequest{
		Lines:          []domain.CartLine{cartLine(2, "Refresco", 1, 25)},
		PaymentMethod:  domain.PaymentTransfer,
		AmountReceived: decimal.Zero,
	})
	if err != nil {
		t.Fatalf("second sale: %v", err)
	}
	if second.SaleNumber != 2 {
		t.Fatalf("second sale number = %d, want 2", second.SaleNumber)
	}

	lines, err := svc.ListSalesByDay(ctx, format.Day(time.Now()))
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 sale lines, got %d", len(lines))
	}
	if lines[0].SaleNumber != 1 || lines[1].SaleNumber != 1 {
		t.Fatalf("first cart lines do not share number: %d, %d", lines[0].SaleNumber, lines[1].SaleNumber)
	}
}

func TestFinalizeSaleSurfacesCounterReadFailure(t *testing.T) {
	repo := &faultyConfigRepo{Repository: memory.New()}
	svc := New(repo, cache.NoopCatalogCache{}, 0)
	ctx := context.Background()

	mustCreateProduct(t, svc, 1, "Tacos", 15)
	request := domain.FinalizeSaleRequest{
		Lines:          []domain.CartLine{cartLine(1, "Tacos", 2, 15)},
		PaymentMethod:  domain.PaymentCash,
		AmountReceived: decimal.NewFromInt(50),
	}

	first, err := svc.FinalizeSale(ctx, request)
	if err != nil {
		t.Fatalf("healthy sale: %v", err)
	}
	if first.SaleNumber != 1 {
		t.Fatalf("sale number = %d, want 1", first.SaleNumber)
	}

	// A flaky counter read must abort the sale, not restart numbering at 1.
	repo.failKey = domain.ConfigLastSaleNumber
	if _, err := svc.FinalizeSale(ctx, request); err == nil {
		t.Fatalf("expected failure when the counter cannot be read")
	}
	lines, err := svc.ListSalesByDay(ctx, format.Day(time.Now()))
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("aborted sale left %d lines, want 1", len(lines))
	}

	repo.failKey = ""
	recovered, err := svc.FinalizeSale(ctx, request)
	if err != nil {
		t.Fatalf("recovered sale: %v", err)
	}
	if recovered.SaleNumber != 2 {
		t.Fatalf("sale number after recovery = %d, want 2", recovered.SaleNumber)
	}
}

func TestFinalizeSaleRejectsCorruptCounter(t *testing.T) {
	repo := memory.New()
	svc := New(repo, cache.NoopCatalogCache{}, 0)
	ctx := context.Background()

	mustCreateProduct(t, svc, 1, "Tacos", 15)
	if err := repo.SetConfig(ctx, domain.ConfigLastSaleNumber, "garbage"); err != nil {
		t.Fatalf("set config: %v", err)
	}

	_, err := svc.FinalizeSale(ctx, domain.FinalizeSaleRequest{
		Lines:          []domain.CartLine{cartLine(1, "Tacos", 1, 15)},
		PaymentMethod:  domain.PaymentCash,
		AmountReceived: decimal.NewFromInt(50),
	})
	if err == nil {
		t.Fatalf("expected corrupt counter to surface, not reset to 1")
	}
}

func TestFinalizeSaleNeverReusesNumberAfterFirstLineFailure(t *testing.T) {
	repo := &failingAppendRepo{Repository: memory.New()}
	svc := New(repo, cache.NoopCatalogCache{}, 0)
	ctx := context.Background()

	mustCreateProduct(t, svc, 1, "Tacos", 15)
	request := domain.FinalizeSaleRequest{
		Lines:          []domain.CartLine{cartLine(1, "Tacos", 2, 15)},
		PaymentMethod:  domain.PaymentCash,
		AmountReceived: decimal.NewFromInt(50),
	}

	repo.fail = true
	_, err := svc.FinalizeSale(ctx, request)
	var incomplete *IncompleteSaleError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected incomplete sale error, got %v", err)
	}
	if incomplete.SaleNumber != 1 || incomplete.Committed != 0 {
		t.Fatalf("incomplete = %+v, want number 1 with 0 committed", incomplete)
	}

	// The number was persisted before the line, so the next checkout moves on.
	repo.fail = false
	next, err := svc.FinalizeSale(ctx, request)
	if err != nil {
		t.Fatalf("next sale: %v", err)
	}
	if next.SaleNumber != 2 {
		t.Fatalf("sale number = %d, want 2 (1 burned by the failed checkout)", next.SaleNumber)
	}
}

func TestFinalizeSaleDeductsIngredientsAndRefreshesEstimate(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	mustCreateProduct(t, svc, 1, "Tacos", 15)
	mustCreateIngredient(t, svc, 1, "Carne", 10, 10)
	mustCreateRecipeLine(t, svc, 1, 1, 1, 0.5)

	_, err := svc.FinalizeSale(ctx, domain.FinalizeSaleRequest{
		Lines:          []domain.CartLine{cartLine(1, "Tacos", 4, 15)},
		PaymentMethod:  domain.PaymentCash,
		AmountReceived: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	ing, err := svc.GetIngredient(ctx, 1)
	if err != nil {
		t.Fatalf("get ingredient: %v", err)
	}
	if ing.StockQuantity != 8 {
		t.Fatalf("meat stock = %v, want 8", ing.StockQuantity)
	}

	product, err := svc.GetProduct(ctx, 1)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.EstimatedStock != 16 {
		t.Fatalf("estimated stock = %v, want 16", product.EstimatedStock)
	}
}

func TestFinalizeSaleSkipsDeductionWhenGlobalStockOff(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	mustCreateProduct(t, svc, 1, "Tacos", 15)
	mustCreateIngredient(t, svc, 1, "Carne", 10, 10)
	mustCreateRecipeLine(t, svc, 1, 1, 1, 0.5)

	if err := svc.SetGlobalStock(ctx, false); err != nil {
		t.Fatalf("disable stock: %v", err)
	}

	_, err := svc.FinalizeSale(ctx, domain.FinalizeSaleRequest{
		Lines:          []domain.CartLine{cartLine(1, "Tacos", 4, 15)},
		PaymentMethod:  domain.PaymentCash,
		AmountReceived: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	ing, err := svc.GetIngredient(ctx, 1)
	if err != nil {
		t.Fatalf("get ingredient: %v", err)
	}
	if ing.StockQuantity != 10 {
		t.Fatalf("meat stock = %v, want untouched 10", ing.StockQuantity)
	}
}

func TestFinalizeSaleRejectsShortCashPayment(t *testing.T) {
	svc := newTestService()
	mustCreateProduct(t, svc, 1, "Tacos", 15)

	_, err := svc.FinalizeSale(context.Background(), domain.FinalizeSaleRequest{
		Lines:          []domain.CartLine{cartLine(1, "Tacos", 2, 15)},
		PaymentMethod:  domain.PaymentCash,
		Tip:            decimal.NewFromInt(5),
		AmountReceived: decimal.NewFromInt(30),
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for short payment, got %v", err)
	}
}

func TestFinalizeSaleBuildsReceipt(t *testing.T) {
	svc := newTestService()
	mustCreateProduct(t, svc, 1, "Tacos", 15)

	receipt, err := svc.FinalizeSale(context.Background(), domain.FinalizeSaleRequest{
		Lines:          []domain.CartLine{cartLine(1, "Tacos", 2, 15)},
		PaymentMethod:  domain.PaymentCash,
		TableLabel:     "Mesa 3",
		Tip:            decimal.NewFromInt(5),
		AmountReceived: decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if !receipt.Subtotal.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("subtotal = %s, want 30", receipt.Subtotal)
	}
	if !receipt.Total.Equal(decimal.NewFromInt(35)) {
		t.Fatalf("total = %s, want 35", receipt.Total)
	}
	if !receipt.Change.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("change = %s, want 15", receipt.Change)
	}
	if receipt.TableLabel != "Mesa 3" {
		t.Fatalf("table = %q", receipt.TableLabel)
	}

	render := svc.RenderReceipt(receipt)
	if render.PreviewText == "" || render.EscposBase64 == "" {
		t.Fatalf("expected non-empty render")
	}
	if render.FileName != "ticket-1.bin" {
		t.Fatalf("file name = %q", render.FileName)
	}
}

func TestPendingOrderLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	mustCreateProduct(t, svc, 1, "Tacos", 15)
	lines := []domain.CartLine{cartLine(1, "Tacos", 2, 15)}

	if err := svc.StashCart(ctx, "Mesa 2", lines); err != nil {
		t.Fatalf("stash: %v", err)
	}
	tables, err := svc.ListPendingTables(ctx)
	if err != nil || len(tables) != 1 || tables[0] != "Mesa 2" {
		t.Fatalf("pending tables = %v, %v", tables, err)
	}

	order, err := svc.ResumeCart(ctx, "Mesa 2")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !order.Total.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("pending total = %s, want 30", order.Total)
	}

	// Stashing an empty cart frees the table.
	if err := svc.StashCart(ctx, "Mesa 2", nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := svc.ResumeCart(ctx, "Mesa 2"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected cleared table, got %v", err)
	}
}

func TestFinalizeSaleClearsPendingTable(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	mustCreateProduct(t, svc, 1, "Tacos", 15)
	lines := []domain.CartLine{cartLine(1, "Tacos", 2, 15)}
	if err := svc.StashCart(ctx, "Mesa 1", lines); err != nil {
		t.Fatalf("stash: %v", err)
	}

	_, err := svc.FinalizeSale(ctx, domain.FinalizeSaleRequest{
		Lines:          lines,
		PaymentMethod:  domain.PaymentCash,
		TableLabel:     "Mesa 1",
		AmountReceived: decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if _, err := svc.ResumeCart(ctx, "Mesa 1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected table freed after sale, got %v", err)
	}
}

func TestDaySummaryReportsIncomeAndProfit(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	mustCreateProduct(t, svc, 1, "Tacos", 15)
	mustCreateIngredient(t, svc, 1, "Carne", 10, 10)
	mustCreateRecipeLine(t, svc, 1, 1, 1, 0.5) // cost 5

	_, err := svc.FinalizeSale(ctx, domain.FinalizeSaleRequest{
		Lines:          []domain.CartLine{cartLine(1, "Tacos", 2, 15)},
		PaymentMethod:  domain.PaymentCash,
		AmountReceived: decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("cash sale: %v", err)
	}
	_, err = svc.FinalizeSale(ctx, domain.FinalizeSaleRequest{
		Lines:         []domain.CartLine{cartLine(1, "Tacos", 1, 15)},
		PaymentMethod: domain.PaymentTransfer,
	})
	if err != nil {
		t.Fatalf("transfer sale: %v", err)
	}

	summary, err := svc.DaySummary(ctx, "")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !summary.GrossIncome.Equal(decimal.NewFromInt(45)) {
		t.Fatalf("gross = %s, want 45", summary.GrossIncome)
	}
	if !summary.CashIncome.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("cash = %s, want 30", summary.CashIncome)
	}
	// Profit at current cost: (30 - 5*2) + (15 - 5*1) = 30.
	if !summary.NetProfit.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("profit = %s, want 30", summary.NetProfit)
	}
	if summary.LineCount != 2 {
		t.Fatalf("line count = %d, want 2", summary.LineCount)
	}
}
