package domain

import "github.com/shopspring/decimal"

// Units as stored in the catalog tables.
const (
	UnitPiece = "Pza"
	UnitKilo  = "Kg"
	UnitLiter = "Lt"
)

const (
	PaymentCash     = "Efectivo"
	PaymentTransfer = "Transferencia"
)

// Cash cut outcomes.
const (
	CutBalanced  = "Cuadrado"
	CutSurplus   = "Sobrante"
	CutShortfall = "Faltante"
)

// Keys of the key-value config table.
const (
	ConfigGlobalStock      = "gestion_stock_global"
	ConfigCashEnteredToday = "dinero_ingresado_hoy"
	ConfigLastSaleNumber   = "ultimo_numero_venta"
	ConfigLastCutNumber    = "ultimo_numero_corte"
	ConfigOpeningCash      = "dinero_inicial_dia"
	ConfigAutoPrint        = "auto_imprimir"
	ConfigLastReceipt      = "ultimo_ticket"
)

// Cash drawer denominations handled by the opening-cash and cut dialogs.
var (
	BillDenominations = []int{500, 200, 100, 50, 20}
	CoinDenominations = []int{10, 5, 2, 1}
)

const (
	DenominationBill = "billete"
	DenominationCoin = "moneda"
)

const (
	CashRegisterOpening = "apertura"
	CashRegisterCut     = "corte"
)

type Product struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Cost           decimal.Decimal `json:"cost"`
	Profit         decimal.Decimal `json:"profit"`
	UnitOfMeasure  string          `json:"unit_of_measure"`
	EstimatedStock float64         `json:"estimated_stock"`
	MinimumStock   float64         `json:"minimum_stock"`
	StockManaged   bool            `json:"stock_managed"`
	ImageRef       string          `json:"image_ref,omitempty"`
	Active         bool            `json:"active"`
	CreatedAt      string          `json:"created_at"`
}

type ProductCreateRequest struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Cost           decimal.Decimal `json:"cost"`
	UnitOfMeasure  string          `json:"unit_of_measure"`
	EstimatedStock float64         `json:"estimated_stock"`
	MinimumStock   float64         `json:"minimum_stock"`
	StockManaged   bool            `json:"stock_managed"`
	ImageRef       string          `json:"image_ref,omitempty"`
}

// ProductUpdateRequest carries the recognized optional fields of a product
// update. NewID moves the product to a fresh identifier; all rows referencing
// the old one are rewritten in the same operation.
type ProductUpdateRequest struct {
	NewID          *int             `json:"new_id,omitempty"`
	Name           *string          `json:"name,omitempty"`
	UnitPrice      *decimal.Decimal `json:"unit_price,omitempty"`
	Cost           *decimal.Decimal `json:"cost,omitempty"`
	UnitOfMeasure  *string          `json:"unit_of_measure,omitempty"`
	EstimatedStock *float64         `json:"estimated_stock,omitempty"`
	MinimumStock   *float64         `json:"minimum_stock,omitempty"`
	StockManaged   *bool            `json:"stock_managed,omitempty"`
	ImageRef       *string          `json:"image_ref,omitempty"`
}

type Ingredient struct {
	ID            int             `json:"id"`
	Name          string          `json:"name"`
	StorageUnit   string          `json:"storage_unit"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	StockQuantity float64         `json:"stock_quantity"`
	StockManaged  bool            `json:"stock_managed"`
	Active        bool            `json:"active"`
	CreatedAt     string          `json:"created_at"`
}

type IngredientCreateRequest struct {
	ID            int             `json:"id"`
	Name          string          `json:"name"`
	StorageUnit   string          `json:"storage_unit"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	StockQuantity float64         `json:"stock_quantity"`
	StockManaged  bool            `json:"stock_managed"`
}

type IngredientUpdateRequest struct {
	NewID         *int             `json:"new_id,omitempty"`
	Name          *string          `json:"name,omitempty"`
	StorageUnit   *string          `json:"storage_unit,omitempty"`
	UnitCost      *decimal.Decimal `json:"unit_cost,omitempty"`
	StockQuantity *float64         `json:"stock_quantity,omitempty"`
	StockManaged  *bool            `json:"stock_managed,omitempty"`
}

// RecipeLine is one ingredient requirement of a product's bill of materials:
// RequiredQuantity of the ingredient goes into one unit of the product.
type RecipeLine struct {
	ID               int     `json:"id"`
	ProductID        int     `json:"product_id"`
	IngredientID     int     `json:"ingredient_id"`
	RequiredQuantity float64 `json:"required_quantity"`
	PortionUnit      string  `json:"portion_unit"`
}

type RecipeLineUpdateRequest struct {
	NewID            *int     `json:"new_id,omitempty"`
	ProductID        *int     `json:"product_id,omitempty"`
	IngredientID     *int     `json:"ingredient_id,omitempty"`
	RequiredQuantity *float64 `json:"required_quantity,omitempty"`
	PortionUnit      *string  `json:"portion_unit,omitempty"`
}

// RecipeDetail is a recipe line joined with the current state of its
// ingredient, which is what the costing and stock calculations read.
type RecipeDetail struct {
	RecipeLine
	ProductName        string          `json:"product_name,omitempty"`
	IngredientName     string          `json:"ingredient_name"`
	IngredientUnit     string          `json:"ingredient_unit"`
	IngredientUnitCost decimal.Decimal `json:"ingredient_unit_cost"`
	IngredientStock    float64         `json:"ingredient_stock"`
}

// SaleLine is one committed row of a checkout. All lines of a checkout share
// the same SaleNumber; the tip is stored redundantly on every line.
type SaleLine struct {
	SaleNumber    int             `json:"sale_number"`
	Timestamp     string          `json:"timestamp"`
	ProductName   string          `json:"product_name"`
	ProductID     int             `json:"product_id"`
	Quantity      float64         `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	TableLabel    string          `json:"table_label,omitempty"`
	Tip           decimal.Decimal `json:"tip"`
}

type CartLine struct {
	ProductID int             `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  float64         `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

type FinalizeSaleRequest struct {
	Lines          []CartLine      `json:"lines"`
	PaymentMethod  string          `json:"payment_method"`
	TableLabel     string          `json:"table_label,omitempty"`
	Tip            decimal.Decimal `json:"tip"`
	AmountReceived decimal.Decimal `json:"amount_received"`
}

// Receipt is the value object handed to the ticket renderer.
type Receipt struct {
	SaleNumber     int             `json:"sale_number"`
	Timestamp      string          `json:"timestamp"`
	Items          []CartLine      `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tip            decimal.Decimal `json:"tip"`
	Total          decimal.Decimal `json:"total"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	Change         decimal.Decimal `json:"change"`
	PaymentMethod  string          `json:"payment_method"`
	TableLabel     string          `json:"table_label,omitempty"`
}

type ReceiptRender struct {
	SaleNumber   int    `json:"sale_number"`
	PreviewText  string `json:"preview_text"`
	EscposBase64 string `json:"escpos_base64"`
	FileName     string `json:"file_name"`
}

// PendingOrder is a stashed, uncommitted cart bound to a table. At most one
// exists per table label.
type PendingOrder struct {
	TableLabel string          `json:"table_label"`
	Lines      []CartLine      `json:"lines"`
	Total      decimal.Decimal `json:"total"`
	CreatedAt  string          `json:"created_at"`
}

type CashCut struct {
	ID           int             `json:"id"`
	CutNumber    int             `json:"cut_number"`
	Timestamp    string          `json:"timestamp"`
	OpeningCash  decimal.Decimal `json:"opening_cash"`
	CountedCash  decimal.Decimal `json:"counted_cash"`
	ExpectedCash decimal.Decimal `json:"expected_cash"`
	Withdrawals  decimal.Decimal `json:"withdrawals"`
	Difference   decimal.Decimal `json:"difference"`
	Status       string          `json:"status"`
	NetProfit    decimal.Decimal `json:"net_profit"`
}

type CutFilter struct {
	Day       string `json:"day,omitempty"`
	Status    string `json:"status,omitempty"`
	CutNumber int    `json:"cut_number,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type DenominationCount struct {
	Kind         string `json:"kind"`
	Denomination int    `json:"denomination"`
	Count        int    `json:"count"`
}

type CashCountEntry struct {
	Date         string          `json:"date"`
	Kind         string          `json:"kind"`
	Denomination int             `json:"denomination"`
	Count        int             `json:"count"`
	Total        decimal.Decimal `json:"total"`
	RegisterType string          `json:"register_type"`
}

type PerformCutRequest struct {
	CountedCash   decimal.Decimal     `json:"counted_cash"`
	Denominations []DenominationCount `json:"denominations,omitempty"`
	Withdrawals   decimal.Decimal     `json:"withdrawals"`
}

// ManualCutRequest is the free-form cut editor payload. CutID zero inserts a
// new row, nonzero edits an existing one.
type ManualCutRequest struct {
	CutID       int             `json:"cut_id,omitempty"`
	CutNumber   int             `json:"cut_number"`
	Timestamp   string          `json:"timestamp"`
	CashOnHand  decimal.Decimal `json:"cash_on_hand"`
	CountedCash decimal.Decimal `json:"counted_cash"`
	Withdrawals decimal.Decimal `json:"withdrawals"`
	NetProfit   decimal.Decimal `json:"net_profit"`
}

// DaySummary holds the figures the end-of-day dialog reports.
type DaySummary struct {
	Date        string          `json:"date"`
	GrossIncome decimal.Decimal `json:"gross_income"`
	CashIncome  decimal.Decimal `json:"cash_income"`
	NetProfit   decimal.Decimal `json:"net_profit"`
	LineCount   int             `json:"line_count"`
}

type Actor struct {
	Name string
	Role string
}

type AuditLog struct {
	ID         string `json:"id"`
	ActorName  string `json:"actor_name"`
	ActorRole  string `json:"actor_role"`
	Action     string `json:"action"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Detail     string `json:"detail"`
	CreatedAt  string `json:"created_at"`
}

type UnlockRequest struct {
	PIN string `json:"pin"`
}

type UnlockResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

const (
	RoleManager  = "gerente"
	RoleOperator = "operador"
)
