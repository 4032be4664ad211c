package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"mitsys/backend/internal/domain"
	"mitsys/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS app_config (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id              INT PRIMARY KEY,
			name            TEXT NOT NULL,
			unit_price      NUMERIC(12,2) NOT NULL DEFAULT 0,
			cost            NUMERIC(12,2) NOT NULL DEFAULT 0,
			profit          NUMERIC(12,2) NOT NULL DEFAULT 0,
			unit_of_measure TEXT NOT NULL DEFAULT 'Pza',
			estimated_stock DOUBLE PRECISION NOT NULL DEFAULT 0,
			minimum_stock   DOUBLE PRECISION NOT NULL DEFAULT 0,
			stock_managed   BOOLEAN NOT NULL DEFAULT false,
			image_ref       TEXT NOT NULL DEFAULT '',
			active          BOOLEAN NOT NULL DEFAULT true,
			created_at      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS ingredients (
			id             INT PRIMARY KEY,
			name           TEXT NOT NULL,
			storage_unit   TEXT NOT NULL DEFAULT 'Pza',
			unit_cost      NUMERIC(12,2) NOT NULL DEFAULT 0,
			stock_quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
			stock_managed  BOOLEAN NOT NULL DEFAULT true,
			active         BOOLEAN NOT NULL DEFAULT true,
			created_at     TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS recipe_lines (
			id                INT PRIMARY KEY,
			product_id        INT NOT NULL,
			ingredient_id     INT NOT NULL,
			required_quantity DOUBLE PRECISION NOT NULL,
			portion_unit      TEXT NOT NULL DEFAULT 'Pza'
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			row_id         BIGSERIAL PRIMARY KEY,
			sale_number    INT NOT NULL,
			ts             TEXT NOT NULL,
			product_name   TEXT NOT NULL,
			product_id     INT NOT NULL DEFAULT 0,
			quantity       DOUBLE PRECISION NOT NULL,
			unit_price     NUMERIC(12,2) NOT NULL,
			total          NUMERIC(12,2) NOT NULL,
			payment_method TEXT NOT NULL,
			table_label    TEXT NOT NULL DEFAULT '',
			tip            NUMERIC(12,2) NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS sales_ts_idx ON sales (ts)`,
		`CREATE TABLE IF NOT EXISTS pending_orders (
			table_label TEXT PRIMARY KEY,
			lines       JSONB NOT NULL,
			total       NUMERIC(12,2) NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS cash_cuts (
			id            SERIAL PRIMARY KEY,
			cut_number    INT NOT NULL,
			ts            TEXT NOT NULL,
			opening_cash  NUMERIC(12,2) NOT NULL DEFAULT 0,
			counted_cash  NUMERIC(12,2) NOT NULL DEFAULT 0,
			expected_cash NUMERIC(12,2) NOT NULL DEFAULT 0,
			withdrawals   NUMERIC(12,2) NOT NULL DEFAULT 0,
			difference    NUMERIC(12,2) NOT NULL DEFAULT 0,
			status        TEXT NOT NULL,
			net_profit    NUMERIC(12,2) NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS cash_counts (
			row_id        BIGSERIAL PRIMARY KEY,
			day           TEXT NOT NULL,
			kind          TEXT NOT NULL,
			denomination  INT NOT NULL,
			count         INT NOT NULL,
			total         NUMERIC(12,2) NOT NULL,
			register_type TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id          TEXT PRIMARY KEY,
			actor_name  TEXT NOT NULL,
			actor_role  TEXT NOT NULL,
			action      TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id   TEXT NOT NULL,
			detail      TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// --- config ---

func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_config WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("config %q: %w", key, store.ErrNotFound)
		}
		return "", err
	}
	return value, nil
}

func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	return err
}

// --- products ---

const productColumns = `id, name, unit_price, cost, profit, unit_of_measure, estimated_stock, minimum_stock, stock_managed, image_ref, active, created_at`

func scanProduct(row interface{ Scan(dest ...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.Cost, &p.Profit, &p.UnitOfMeasure,
		&p.EstimatedStock, &p.MinimumStock, &p.StockManaged, &p.ImageRef, &p.Active, &p.CreatedAt)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if !includeInactive {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id int) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, product.ID, product.Name, product.UnitPrice, product.Cost, product.Profit, product.UnitOfMeasure,
		product.EstimatedStock, product.MinimumStock, product.StockManaged, product.ImageRef, product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("product %d: %w", product.ID, store.ErrDuplicateID)
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, oldID int, product domain.Product) (*domain.Product, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if product.ID != oldID {
			var taken bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, product.ID).Scan(&taken); err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("product %d: %w", product.ID, store.ErrDuplicateID)
			}
			if err := renumberProduct(ctx, tx, oldID, product.ID); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET name = $2, unit_price = $3, cost = $4, profit = $5, unit_of_measure = $6,
			    estimated_stock = $7, minimum_stock = $8, stock_managed = $9, image_ref = $10, active = $11
			WHERE id = $1
		`, product.ID, product.Name, product.UnitPrice, product.Cost, product.Profit, product.UnitOfMeasure,
			product.EstimatedStock, product.MinimumStock, product.StockManaged, product.ImageRef, product.Active)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("product %d: %w", oldID, store.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE products SET active = false WHERE id = $1`, id)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM recipe_lines WHERE product_id = $1`, id); err != nil {
			return err
		}
		if err := reorganizeProducts(ctx, tx); err != nil {
			return err
		}
		return reorganizeRecipeLines(ctx, tx)
	})
}

func (s *Store) NextProductID(ctx context.Context) (int, error) {
	return s.nextID(ctx, "products")
}

func (s *Store) SetProductCost(ctx context.Context, id int, cost, profit decimal.Decimal) error {
	return s.setProductFields(ctx, id, `cost = $2, profit = $3`, cost, profit)
}

func (s *Store) SetProductEstimatedStock(ctx context.Context, id int, stock float64) error {
	return s.setProductFields(ctx, id, `estimated_stock = $2`, stock)
}

func (s *Store) setProductFields(ctx context.Context, id int, assignment string, args ...any) error {
	res, err := s.db.ExecContext(ctx, `UPDATE products SET `+assignment+` WHERE id = $1`, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListStockManagedProductIDs(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM products WHERE active = true AND stock_managed = true ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) nextID(ctx context.Context, table string) (int, error) {
	var max sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM `+table).Scan(&max); err != nil {
		return 0, err
	}
	return int(max.Int64) + 1, nil
}

func renumberProduct(ctx context.Context, tx *sql.Tx, oldID, newID int) error {
	if _, err := tx.ExecContext(ctx, `UPDATE products SET id = $2 WHERE id = $1`, oldID, newID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE recipe_lines SET product_id = $2 WHERE product_id = $1`, oldID, newID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `UPDATE sales SET product_id = $2 WHERE product_id = $1`, oldID, newID)
	return err
}

// reorganizeProducts drops the soft-deleted rows for good and renumbers the
// survivors 1..N in ascending original order, rewriting recipe and sale
// references one row at a time. Ascending order keeps every target ID free.
// Sale rows pointing at a dropped product keep their stale reference.
func reorganizeProducts(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE active = false`); err != nil {
		return err
	}
	ids, err := orderedIDs(ctx, tx, "products")
	if err != nil {
		return err
	}
	for i, oldID := range ids {
		newID := i + 1
		if newID == oldID {
			continue
		}
		if err := renumberProduct(ctx, tx, oldID, newID); err != nil {
			return err
		}
	}
	return nil
}

func orderedIDs(ctx context.Context, tx *sql.Tx, table string) ([]int, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM `+table+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- ingredients ---

const ingredientColumns = `id, name, storage_unit, unit_cost, stock_quantity, stock_managed, active, created_at`

func scanIngredient(row interface{ Scan(dest ...any) error }) (domain.Ingredient, error) {
	var ing domain.Ingredient
	err := row.Scan(&ing.ID, &ing.Name, &ing.StorageUnit, &ing.UnitCost,
		&ing.StockQuantity, &ing.StockManaged, &ing.Active, &ing.CreatedAt)
	return ing, err
}

func (s *Store) ListIngredients(ctx context.Context, includeInactive bool) ([]domain.Ingredient, error) {
	query := `SELECT ` + ingredientColumns + ` FROM ingredients`
	if !includeInactive {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ingredients := make([]domain.Ingredient, 0, 64)
	for rows.Next() {
		ing, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		ingredients = append(ingredients, ing)
	}
	return ingredients, rows.Err()
}

func (s *Store) GetIngredient(ctx context.Context, id int) (*domain.Ingredient, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ingredientColumns+` FROM ingredients WHERE id = $1`, id)
	ing, err := scanIngredient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ingredient %d: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	return &ing, nil
}

func (s *Store) CreateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingredients (`+ingredientColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, ingredient.ID, ingredient.Name, ingredient.StorageUnit, ingredient.UnitCost,
		ingredient.StockQuantity, ingredient.StockManaged, ingredient.Active, ingredient.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("ingredient %d: %w", ingredient.ID, store.ErrDuplicateID)
		}
		return nil, err
	}
	return &ingredient, nil
}

func (s *Store) UpdateIngredient(ctx context.Context, oldID int, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if ingredient.ID != oldID {
			var taken bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM ingredients WHERE id = $1)`, ingredient.ID).Scan(&taken); err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("ingredient %d: %w", ingredient.ID, store.ErrDuplicateID)
			}
			if err := renumberIngredient(ctx, tx, oldID, ingredient.ID); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE ingredients
			SET name = $2, storage_unit = $3, unit_cost = $4, stock_quantity = $5, stock_managed = $6, active = $7
			WHERE id = $1
		`, ingredient.ID, ingredient.Name, ingredient.StorageUnit, ingredient.UnitCost,
			ingredient.StockQuantity, ingredient.StockManaged, ingredient.Active)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("ingredient %d: %w", oldID, store.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ingredient, nil
}

func (s *Store) DeleteIngredient(ctx context.Context, id int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE ingredients SET active = false WHERE id = $1`, id)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("ingredient %d: %w", id, store.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM recipe_lines WHERE ingredient_id = $1`, id); err != nil {
			return err
		}
		if err := reorganizeIngredients(ctx, tx); err != nil {
			return err
		}
		return reorganizeRecipeLines(ctx, tx)
	})
}

func (s *Store) NextIngredientID(ctx context.Context) (int, error) {
	return s.nextID(ctx, "ingredients")
}

func (s *Store) AddIngredientStock(ctx context.Context, id int, delta float64) (*domain.Ingredient, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE ingredients SET stock_quantity = stock_quantity + $2
		WHERE id = $1
		RETURNING `+ingredientColumns+`
	`, id, delta)
	ing, err := scanIngredient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ingredient %d: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	return &ing, nil
}

func renumberIngredient(ctx context.Context, tx *sql.Tx, oldID, newID int) error {
	if _, err := tx.ExecContext(ctx, `UPDATE ingredients SET id = $2 WHERE id = $1`, oldID, newID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `UPDATE recipe_lines SET ingredient_id = $2 WHERE ingredient_id = $1`, oldID, newID)
	return err
}

func reorganizeIngredients(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM ingredients WHERE active = false`); err != nil {
		return err
	}
	ids, err := orderedIDs(ctx, tx, "ingredients")
	if err != nil {
		return err
	}
	for i, oldID := range ids {
		newID := i + 1
		if newID == oldID {
			continue
		}
		if err := renumberIngredient(ctx, tx, oldID, newID); err != nil {
			return err
		}
	}
	return nil
}

// --- recipe lines ---

const recipeDetailQuery = `
	SELECT r.id, r.product_id, r.ingredient_id, r.required_quantity, r.portion_unit,
	       COALESCE(p.name, ''), i.name, i.storage_unit, i.unit_cost, i.stock_quantity
	FROM recipe_lines r
	JOIN ingredients i ON i.id = r.ingredient_id AND i.active = true
	LEFT JOIN products p ON p.id = r.product_id`

func (s *Store) queryRecipeDetails(ctx context.Context, query string, args ...any) ([]domain.RecipeDetail, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []domain.RecipeDetail
	for rows.Next() {
		var d domain.RecipeDetail
		if err := rows.Scan(&d.ID, &d.ProductID, &d.IngredientID, &d.RequiredQuantity, &d.PortionUnit,
			&d.ProductName, &d.IngredientName, &d.IngredientUnit, &d.IngredientUnitCost, &d.IngredientStock); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

func (s *Store) ListRecipeLines(ctx context.Context, productID int) ([]domain.RecipeDetail, error) {
	return s.queryRecipeDetails(ctx, recipeDetailQuery+` WHERE r.product_id = $1 ORDER BY r.id`, productID)
}

func (s *Store) ListAllRecipeLines(ctx context.Context) ([]domain.RecipeDetail, error) {
	return s.queryRecipeDetails(ctx, recipeDetailQuery+` ORDER BY r.id`)
}

func (s *Store) GetRecipeLine(ctx context.Context, id int) (*domain.RecipeLine, error) {
	var line domain.RecipeLine
	err := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, ingredient_id, required_quantity, portion_unit
		FROM recipe_lines WHERE id = $1
	`, id).Scan(&line.ID, &line.ProductID, &line.IngredientID, &line.RequiredQuantity, &line.PortionUnit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("recipe line %d: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	return &line, nil
}

func (s *Store) CreateRecipeLine(ctx context.Context, line domain.RecipeLine) (*domain.RecipeLine, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recipe_lines (id, product_id, ingredient_id, required_quantity, portion_unit)
		VALUES ($1,$2,$3,$4,$5)
	`, line.ID, line.ProductID, line.IngredientID, line.RequiredQuantity, line.PortionUnit)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("recipe line %d: %w", line.ID, store.ErrDuplicateID)
		}
		return nil, err
	}
	return &line, nil
}

func (s *Store) UpdateRecipeLine(ctx context.Context, oldID int, line domain.RecipeLine) (*domain.RecipeLine, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if line.ID != oldID {
			var taken bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM recipe_lines WHERE id = $1)`, line.ID).Scan(&taken); err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("recipe line %d: %w", line.ID, store.ErrDuplicateID)
			}
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE recipe_lines
			SET id = $2, product_id = $3, ingredient_id = $4, required_quantity = $5, portion_unit = $6
			WHERE id = $1
		`, oldID, line.ID, line.ProductID, line.IngredientID, line.RequiredQuantity, line.PortionUnit)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("recipe line %d: %w", oldID, store.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func (s *Store) DeleteRecipeLine(ctx context.Context, id int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM recipe_lines WHERE id = $1`, id)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("recipe line %d: %w", id, store.ErrNotFound)
		}
		return reorganizeRecipeLines(ctx, tx)
	})
}

func (s *Store) NextRecipeLineID(ctx context.Context) (int, error) {
	return s.nextID(ctx, "recipe_lines")
}

func reorganizeRecipeLines(ctx context.Context, tx *sql.Tx) error {
	ids, err := orderedIDs(ctx, tx, "recipe_lines")
	if err != nil {
		return err
	}
	for i, oldID := range ids {
		newID := i + 1
		if newID == oldID {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE recipe_lines SET id = $2 WHERE id = $1`, oldID, newID); err != nil {
			return err
		}
	}
	return nil
}

// --- sales ---

func (s *Store) AppendSaleLine(ctx context.Context, line domain.SaleLine) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales (sale_number, ts, product_name, product_id, quantity, unit_price, total, payment_method, table_label, tip)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, line.SaleNumber, line.Timestamp, line.ProductName, line.ProductID, line.Quantity,
		line.UnitPrice, line.Total, line.PaymentMethod, line.TableLabel, line.Tip)
	return err
}

func (s *Store) ListSalesByDay(ctx context.Context, day string) ([]domain.SaleLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_number, ts, product_name, product_id, quantity, unit_price, total, payment_method, table_label, tip
		FROM sales
		WHERE ts LIKE $1 || '%'
		ORDER BY row_id
	`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []domain.SaleLine
	for rows.Next() {
		var l domain.SaleLine
		if err := rows.Scan(&l.SaleNumber, &l.Timestamp, &l.ProductName, &l.ProductID, &l.Quantity,
			&l.UnitPrice, &l.Total, &l.PaymentMethod, &l.TableLabel, &l.Tip); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *Store) SumSalesByDay(ctx context.Context, day, method string) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(total), 0) FROM sales WHERE ts LIKE $1 || '%'`
	args := []any{day}
	if method != "" {
		query += ` AND payment_method = $2`
		args = append(args, method)
	}
	var sum decimal.Decimal
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// NetProfitByDay joins sale lines with the current product costs; lines whose
// product reference no longer resolves drop out of the join.
func (s *Store) NetProfitByDay(ctx context.Context, day string) (decimal.Decimal, error) {
	var profit decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(v.total - p.cost * v.quantity::numeric), 0)
		FROM sales v
		JOIN products p ON p.id = v.product_id
		WHERE v.ts LIKE $1 || '%'
	`, day).Scan(&profit)
	if err != nil {
		return decimal.Zero, err
	}
	return profit, nil
}

// --- pending orders ---

func (s *Store) UpsertPendingOrder(ctx context.Context, order domain.PendingOrder) error {
	payload, err := json.Marshal(order.Lines)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_orders (table_label, lines, total, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (table_label) DO UPDATE SET lines = EXCLUDED.lines, total = EXCLUDED.total, created_at = EXCLUDED.created_at
	`, order.TableLabel, payload, order.Total, order.CreatedAt)
	return err
}

func (s *Store) GetPendingOrder(ctx context.Context, tableLabel string) (*domain.PendingOrder, error) {
	var order domain.PendingOrder
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT table_label, lines, total, created_at FROM pending_orders WHERE table_label = $1
	`, tableLabel).Scan(&order.TableLabel, &payload, &order.Total, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pending order %q: %w", tableLabel, store.ErrNotFound)
		}
		return nil, err
	}
	if err := json.Unmarshal(payload, &order.Lines); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) DeletePendingOrder(ctx context.Context, tableLabel string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_orders WHERE table_label = $1`, tableLabel)
	return err
}

func (s *Store) ListPendingTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT table_label FROM pending_orders ORDER BY table_label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		tables = append(tables, label)
	}
	return tables, rows.Err()
}

// --- cash cuts ---

const cutColumns = `id, cut_number, ts, opening_cash, counted_cash, expected_cash, withdrawals, difference, status, net_profit`

func scanCut(row interface{ Scan(dest ...any) error }) (domain.CashCut, error) {
	var c domain.CashCut
	err := row.Scan(&c.ID, &c.CutNumber, &c.Timestamp, &c.OpeningCash, &c.CountedCash,
		&c.ExpectedCash, &c.Withdrawals, &c.Difference, &c.Status, &c.NetProfit)
	return c, err
}

func (s *Store) AppendCashCut(ctx context.Context, cut domain.CashCut) (*domain.CashCut, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cash_cuts (cut_number, ts, opening_cash, counted_cash, expected_cash, withdrawals, difference, status, net_profit)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`, cut.CutNumber, cut.Timestamp, cut.OpeningCash, cut.CountedCash, cut.ExpectedCash,
		cut.Withdrawals, cut.Difference, cut.Status, cut.NetProfit).Scan(&cut.ID)
	if err != nil {
		return nil, err
	}
	return &cut, nil
}

func (s *Store) GetCashCut(ctx context.Context, id int) (*domain.CashCut, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cutColumns+` FROM cash_cuts WHERE id = $1`, id)
	cut, err := scanCut(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("cash cut %d: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	return &cut, nil
}

func (s *Store) UpdateCashCut(ctx context.Context, cut domain.CashCut) (*domain.CashCut, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cash_cuts
		SET cut_number = $2, ts = $3, opening_cash = $4, counted_cash = $5, expected_cash = $6,
		    withdrawals = $7, difference = $8, status = $9, net_profit = $10
		WHERE id = $1
	`, cut.ID, cut.CutNumber, cut.Timestamp, cut.OpeningCash, cut.CountedCash, cut.ExpectedCash,
		cut.Withdrawals, cut.Difference, cut.Status, cut.NetProfit)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("cash cut %d: %w", cut.ID, store.ErrNotFound)
	}
	return &cut, nil
}

func (s *Store) DeleteCashCut(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cash_cuts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("cash cut %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListCashCuts(ctx context.Context, filter domain.CutFilter) ([]domain.CashCut, error) {
	query := `SELECT ` + cutColumns + ` FROM cash_cuts WHERE 1=1`
	var args []any
	if filter.Day != "" {
		args = append(args, filter.Day)
		query += fmt.Sprintf(` AND ts LIKE $%d || '%%'`, len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.CutNumber > 0 {
		args = append(args, filter.CutNumber)
		query += fmt.Sprintf(` AND cut_number = $%d`, len(args))
	}
	query += ` ORDER BY id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cuts []domain.CashCut
	for rows.Next() {
		cut, err := scanCut(rows)
		if err != nil {
			return nil, err
		}
		cuts = append(cuts, cut)
	}
	return cuts, rows.Err()
}

func (s *Store) AppendCashCountEntries(ctx context.Context, entries []domain.CashCountEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO cash_counts (day, kind, denomination, count, total, register_type)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, e.Date, e.Kind, e.Denomination, e.Count, e.Total, e.RegisterType); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- audit ---

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_name, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorName, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_name, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.AuditLog
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorName, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
