// Package memory implements store.Repository with plain maps behind a mutex.
// It backs dev mode (no DATABASE_URL) and the service test suite.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"mitsys/backend/internal/domain"
	"mitsys/backend/internal/format"
	"mitsys/backend/internal/store"
)

type Store struct {
	mu            sync.RWMutex
	config        map[string]string
	products      map[int]domain.Product
	ingredients   map[int]domain.Ingredient
	recipeLines   map[int]domain.RecipeLine
	sales         []domain.SaleLine
	pendingOrders map[string]domain.PendingOrder
	cuts          map[int]domain.CashCut
	nextCutRowID  int
	cashCounts    []domain.CashCountEntry
	auditLogs     []domain.AuditLog
}

func defaultConfig() map[string]string {
	return map[string]string{
		domain.ConfigGlobalStock:      "1",
		domain.ConfigCashEnteredToday: "0",
		domain.ConfigLastSaleNumber:   "0",
		domain.ConfigLastCutNumber:    "0",
		domain.ConfigOpeningCash:      "0",
		domain.ConfigAutoPrint:        "0",
		domain.ConfigLastReceipt:      "",
	}
}

func New() *Store {
	return &Store{
		config:        defaultConfig(),
		products:      map[int]domain.Product{},
		ingredients:   map[int]domain.Ingredient{},
		recipeLines:   map[int]domain.RecipeLine{},
		pendingOrders: map[string]domain.PendingOrder{},
		cuts:          map[int]domain.CashCut{},
	}
}

// NewSeeded returns a store pre-loaded with a small menu for dev/demo mode.
func NewSeeded() *Store {
	s := New()
	now := format.Timestamp(time.Now())

	ingredients := []domain.Ingredient{
		{ID: 1, Name: "Carne de res", StorageUnit: domain.UnitKilo, UnitCost: decimal.NewFromInt(180), StockQuantity: 10, StockManaged: true, Active: true, CreatedAt: now},
		{ID: 2, Name: "Tortilla", StorageUnit: domain.UnitPiece, UnitCost: decimal.NewFromFloat(0.8), StockQuantity: 200, StockManaged: true, Active: true, CreatedAt: now},
		{ID: 3, Name: "Queso Oaxaca", StorageUnit: domain.UnitKilo, UnitCost: decimal.NewFromInt(120), StockQuantity: 4, StockManaged: true, Active: true, CreatedAt: now},
		{ID: 4, Name: "Refresco lata", StorageUnit: domain.UnitPiece, UnitCost: decimal.NewFromInt(12), StockQuantity: 48, StockManaged: true, Active: true, CreatedAt: now},
	}
	products := []domain.Product{
		{ID: 1, Name: "Orden de tacos", UnitPrice: decimal.NewFromInt(75), UnitOfMeasure: domain.UnitPiece, StockManaged: true, Active: true, CreatedAt: now},
		{ID: 2, Name: "Quesadilla", UnitPrice: decimal.NewFromInt(45), UnitOfMeasure: domain.UnitPiece, StockManaged: true, Active: true, CreatedAt: now},
		{ID: 3, Name: "Refresco", UnitPrice: decimal.NewFromInt(25), UnitOfMeasure: domain.UnitPiece, StockManaged: true, Active: true, CreatedAt: now},
	}
	lines := []domain.RecipeLine{
		{ID: 1, ProductID: 1, IngredientID: 1, RequiredQuantity: 0.25, PortionUnit: domain.UnitKilo},
		{ID: 2, ProductID: 1, IngredientID: 2, RequiredQuantity: 4, PortionUnit: domain.UnitPiece},
		{ID: 3, ProductID: 2, IngredientID: 2, RequiredQuantity: 1, PortionUnit: domain.UnitPiece},
		{ID: 4, ProductID: 2, IngredientID: 3, RequiredQuantity: 0.1, PortionUnit: domain.UnitKilo},
		{ID: 5, ProductID: 3, IngredientID: 4, RequiredQuantity: 1, PortionUnit: domain.UnitPiece},
	}
	for _, ing := range ingredients {
		s.ingredients[ing.ID] = ing
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	for _, l := range lines {
		s.recipeLines[l.ID] = l
	}
	return s
}

// --- config ---

func (s *Store) GetConfig(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.config[key]
	if !ok {
		return "", fmt.Errorf("config %q: %w", key, store.ErrNotFound)
	}
	return value, nil
}

func (s *Store) SetConfig(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[key] = value
	return nil
}

// --- products ---

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active && !includeInactive {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id int) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.products[product.ID]; taken {
		return nil, fmt.Errorf("product %d: %w", product.ID, store.ErrDuplicateID)
	}
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, oldID int, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[oldID]; !ok {
		return nil, fmt.Errorf("product %d: %w", oldID, store.ErrNotFound)
	}
	if product.ID != oldID {
		if _, taken := s.products[product.ID]; taken {
			return nil, fmt.Errorf("product %d: %w", product.ID, store.ErrDuplicateID)
		}
		delete(s.products, oldID)
		s.rewriteProductRefs(map[int]int{oldID: product.ID})
	}
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	p.Active = false
	s.products[id] = p
	for lineID, line := range s.recipeLines {
		if line.ProductID == id {
			delete(s.recipeLines, lineID)
		}
	}
	s.reorganizeProducts()
	s.reorganizeRecipeLines()
	return nil
}

func (s *Store) NextProductID(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	max := 0
	for id := range s.products {
		if id > max {
			max = id
		}
	}
	return max + 1, nil
}

func (s *Store) SetProductCost(_ context.Context, id int, cost, profit decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	p.Cost = cost
	p.Profit = profit
	s.products[id] = p
	return nil
}

func (s *Store) SetProductEstimatedStock(_ context.Context, id int, stock float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	p.EstimatedStock = stock
	s.products[id] = p
	return nil
}

func (s *Store) ListStockManagedProductIDs(_ context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int
	for id, p := range s.products {
		if p.Active && p.StockManaged {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

// reorganizeProducts renumbers the surviving rows 1..N in ascending original
// order and rewrites recipe and sale references through the old-to-new map.
// Inactive rows are dropped for good. Sale rows pointing at a dropped product
// keep their stale reference, same as the historical behavior.
func (s *Store) reorganizeProducts() {
	ids := make([]int, 0, len(s.products))
	for id, p := range s.products {
		if p.Active {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	mapping := make(map[int]int, len(ids))
	renumbered := make(map[int]domain.Product, len(ids))
	for i, oldID := range ids {
		newID := i + 1
		p := s.products[oldID]
		p.ID = newID
		renumbered[newID] = p
		mapping[oldID] = newID
	}
	s.products = renumbered
	s.rewriteProductRefs(mapping)
}

func (s *Store) rewriteProductRefs(mapping map[int]int) {
	for lineID, line := range s.recipeLines {
		if newID, ok := mapping[line.ProductID]; ok {
			line.ProductID = newID
			s.recipeLines[lineID] = line
		}
	}
	for i := range s.sales {
		if newID, ok := mapping[s.sales[i].ProductID]; ok {
			s.sales[i].ProductID = newID
		}
	}
}

// --- ingredients ---

func (s *Store) ListIngredients(_ context.Context, includeInactive bool) ([]domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Ingredient, 0, len(s.ingredients))
	for _, ing := range s.ingredients {
		if !ing.Active && !includeInactive {
			continue
		}
		out = append(out, ing)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetIngredient(_ context.Context, id int) (*domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ing, ok := s.ingredients[id]
	if !ok {
		return nil, fmt.Errorf("ingredient %d: %w", id, store.ErrNotFound)
	}
	return &ing, nil
}

func (s *Store) CreateIngredient(_ context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.ingredients[ingredient.ID]; taken {
		return nil, fmt.Errorf("ingredient %d: %w", ingredient.ID, store.ErrDuplicateID)
	}
	s.ingredients[ingredient.ID] = ingredient
	return &ingredient, nil
}

func (s *Store) UpdateIngredient(_ context.Context, oldID int, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ingredients[oldID]; !ok {
		return nil, fmt.Errorf("ingredient %d: %w", oldID, store.ErrNotFound)
	}
	if ingredient.ID != oldID {
		if _, taken := s.ingredients[ingredient.ID]; taken {
			return nil, fmt.Errorf("ingredient %d: %w", ingredient.ID, store.ErrDuplicateID)
		}
		delete(s.ingredients, oldID)
		s.rewriteIngredientRefs(map[int]int{oldID: ingredient.ID})
	}
	s.ingredients[ingredient.ID] = ingredient
	return &ingredient, nil
}

func (s *Store) DeleteIngredient(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ing, ok := s.ingredients[id]
	if !ok {
		return fmt.Errorf("ingredient %d: %w", id, store.ErrNotFound)
	}
	ing.Active = false
	s.ingredients[id] = ing
	for lineID, line := range s.recipeLines {
		if line.IngredientID == id {
			delete(s.recipeLines, lineID)
		}
	}
	s.reorganizeIngredients()
	s.reorganizeRecipeLines()
	return nil
}

func (s *Store) NextIngredientID(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	max := 0
	for id := range s.ingredients {
		if id > max {
			max = id
		}
	}
	return max + 1, nil
}

func (s *Store) AddIngredientStock(_ context.Context, id int, delta float64) (*domain.Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ing, ok := s.ingredients[id]
	if !ok {
		return nil, fmt.Errorf("ingredient %d: %w", id, store.ErrNotFound)
	}
	ing.StockQuantity += delta
	s.ingredients[id] = ing
	return &ing, nil
}

func (s *Store) reorganizeIngredients() {
	ids := make([]int, 0, len(s.ingredients))
	for id, ing := range s.ingredients {
		if ing.Active {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	mapping := make(map[int]int, len(ids))
	renumbered := make(map[int]domain.Ingredient, len(ids))
	for i, oldID := range ids {
		newID := i + 1
		ing := s.ingredients[oldID]
		ing.ID = newID
		renumbered[newID] = ing
		mapping[oldID] = newID
	}
	s.ingredients = renumbered
	s.rewriteIngredientRefs(mapping)
}

func (s *Store) rewriteIngredientRefs(mapping map[int]int) {
	for lineID, line := range s.recipeLines {
		if newID, ok := mapping[line.IngredientID]; ok {
			line.IngredientID = newID
			s.recipeLines[lineID] = line
		}
	}
}

// --- recipe lines ---

func (s *Store) detailFor(line domain.RecipeLine) (domain.RecipeDetail, bool) {
	ing, ok := s.ingredients[line.IngredientID]
	if !ok || !ing.Active {
		return domain.RecipeDetail{}, false
	}
	detail := domain.RecipeDetail{
		RecipeLine:         line,
		IngredientName:     ing.Name,
		IngredientUnit:     ing.StorageUnit,
		IngredientUnitCost: ing.UnitCost,
		IngredientStock:    ing.StockQuantity,
	}
	if p, ok := s.products[line.ProductID]; ok {
		detail.ProductName = p.Name
	}
	return detail, true
}

func (s *Store) ListRecipeLines(_ context.Context, productID int) ([]domain.RecipeDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.RecipeDetail
	for _, line := range s.recipeLines {
		if line.ProductID != productID {
			continue
		}
		if detail, ok := s.detailFor(line); ok {
			out = append(out, detail)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListAllRecipeLines(_ context.Context) ([]domain.RecipeDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.RecipeDetail
	for _, line := range s.recipeLines {
		if detail, ok := s.detailFor(line); ok {
			out = append(out, detail)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetRecipeLine(_ context.Context, id int) (*domain.RecipeLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	line, ok := s.recipeLines[id]
	if !ok {
		return nil, fmt.Errorf("recipe line %d: %w", id, store.ErrNotFound)
	}
	return &line, nil
}

func (s *Store) CreateRecipeLine(_ context.Context, line domain.RecipeLine) (*domain.RecipeLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.recipeLines[line.ID]; taken {
		return nil, fmt.Errorf("recipe line %d: %w", line.ID, store.ErrDuplicateID)
	}
	if _, ok := s.products[line.ProductID]; !ok {
		return nil, fmt.Errorf("recipe line product %d: %w", line.ProductID, store.ErrNotFound)
	}
	if _, ok := s.ingredients[line.IngredientID]; !ok {
		return nil, fmt.Errorf("recipe line ingredient %d: %w", line.IngredientID, store.ErrNotFound)
	}
	s.recipeLines[line.ID] = line
	return &line, nil
}

func (s *Store) UpdateRecipeLine(_ context.Context, oldID int, line domain.RecipeLine) (*domain.RecipeLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recipeLines[oldID]; !ok {
		return nil, fmt.Errorf("recipe line %d: %w", oldID, store.ErrNotFound)
	}
	if line.ID != oldID {
		if _, taken := s.recipeLines[line.ID]; taken {
			return nil, fmt.Errorf("recipe line %d: %w", line.ID, store.ErrDuplicateID)
		}
		delete(s.recipeLines, oldID)
	}
	s.recipeLines[line.ID] = line
	return &line, nil
}

func (s *Store) DeleteRecipeLine(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recipeLines[id]; !ok {
		return fmt.Errorf("recipe line %d: %w", id, store.ErrNotFound)
	}
	delete(s.recipeLines, id)
	s.reorganizeRecipeLines()
	return nil
}

func (s *Store) NextRecipeLineID(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	max := 0
	for id := range s.recipeLines {
		if id > max {
			max = id
		}
	}
	return max + 1, nil
}

func (s *Store) reorganizeRecipeLines() {
	ids := make([]int, 0, len(s.recipeLines))
	for id := range s.recipeLines {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	renumbered := make(map[int]domain.RecipeLine, len(ids))
	for i, oldID := range ids {
		line := s.recipeLines[oldID]
		line.ID = i + 1
		renumbered[i+1] = line
	}
	s.recipeLines = renumbered
}

// --- sales ---

func (s *Store) AppendSaleLine(_ context.Context, line domain.SaleLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = append(s.sales, line)
	return nil
}

func (s *Store) ListSalesByDay(_ context.Context, day string) ([]domain.SaleLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SaleLine
	for _, line := range s.sales {
		if strings.HasPrefix(line.Timestamp, day) {
			out = append(out, line)
		}
	}
	return out, nil
}

func (s *Store) SumSalesByDay(_ context.Context, day, method string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := decimal.Zero
	for _, line := range s.sales {
		if !strings.HasPrefix(line.Timestamp, day) {
			continue
		}
		if method != "" && line.PaymentMethod != method {
			continue
		}
		sum = sum.Add(line.Total)
	}
	return sum, nil
}

// NetProfitByDay joins sale lines with the current product costs. Lines whose
// product reference no longer resolves are excluded, matching the join the
// report has always used.
func (s *Store) NetProfitByDay(_ context.Context, day string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profit := decimal.Zero
	for _, line := range s.sales {
		if !strings.HasPrefix(line.Timestamp, day) {
			continue
		}
		p, ok := s.products[line.ProductID]
		if !ok {
			continue
		}
		cost := p.Cost.Mul(decimal.NewFromFloat(line.Quantity))
		profit = profit.Add(line.Total.Sub(cost))
	}
	return profit, nil
}

// --- pending orders ---

func (s *Store) UpsertPendingOrder(_ context.Context, order domain.PendingOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingOrders[order.TableLabel] = order
	return nil
}

func (s *Store) GetPendingOrder(_ context.Context, tableLabel string) (*domain.PendingOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.pendingOrders[tableLabel]
	if !ok {
		return nil, fmt.Errorf("pending order %q: %w", tableLabel, store.ErrNotFound)
	}
	return &order, nil
}

func (s *Store) DeletePendingOrder(_ context.Context, tableLabel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingOrders, tableLabel)
	return nil
}

func (s *Store) ListPendingTables(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tables := make([]string, 0, len(s.pendingOrders))
	for label := range s.pendingOrders {
		tables = append(tables, label)
	}
	sort.Strings(tables)
	return tables, nil
}

// --- cash cuts ---

func (s *Store) AppendCashCut(_ context.Context, cut domain.CashCut) (*domain.CashCut, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCutRowID++
	cut.ID = s.nextCutRowID
	s.cuts[cut.ID] = cut
	return &cut, nil
}

func (s *Store) GetCashCut(_ context.Context, id int) (*domain.CashCut, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cut, ok := s.cuts[id]
	if !ok {
		return nil, fmt.Errorf("cash cut %d: %w", id, store.ErrNotFound)
	}
	return &cut, nil
}

func (s *Store) UpdateCashCut(_ context.Context, cut domain.CashCut) (*domain.CashCut, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cuts[cut.ID]; !ok {
		return nil, fmt.Errorf("cash cut %d: %w", cut.ID, store.ErrNotFound)
	}
	s.cuts[cut.ID] = cut
	return &cut, nil
}

func (s *Store) DeleteCashCut(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cuts[id]; !ok {
		return fmt.Errorf("cash cut %d: %w", id, store.ErrNotFound)
	}
	delete(s.cuts, id)
	return nil
}

func (s *Store) ListCashCuts(_ context.Context, filter domain.CutFilter) ([]domain.CashCut, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CashCut
	for _, cut := range s.cuts {
		if filter.Day != "" && !strings.HasPrefix(cut.Timestamp, filter.Day) {
			continue
		}
		if filter.Status != "" && cut.Status != filter.Status {
			continue
		}
		if filter.CutNumber > 0 && cut.CutNumber != filter.CutNumber {
			continue
		}
		out = append(out, cut)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) AppendCashCountEntries(_ context.Context, entries []domain.CashCountEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cashCounts = append(s.cashCounts, entries...)
	return nil
}

// --- audit ---

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditLog, len(s.auditLogs))
	copy(out, s.auditLogs)
	// newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
