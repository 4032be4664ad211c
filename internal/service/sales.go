package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mitsys/backend/internal/domain"
	"mitsys/backend/internal/format"
	"mitsys/backend/internal/store"
)

// Business identity printed on every ticket.
const (
	businessName    = "Los Abuelos"
	businessTagline = "Antojitos Mexicanos"
	businessAddress = "C. Liverpool 379, Centro"
	businessPhone   = "713-137-4243"
)

// TableLabels are the seats the sale screen offers, plus takeaway.
var TableLabels = []string{"Mesa 1", "Mesa 2", "Mesa 3", "Mesa 4", "Mesa 5", "Mesa 6", "Para llevar"}

func validPaymentMethod(method string) bool {
	return method == domain.PaymentCash || method == domain.PaymentTransfer
}

func cartTotal(lines []domain.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Total)
	}
	return total
}

// FinalizeSale commits the cart as one sale: a sequential number shared by
// every line and persisted before any line commits, one immutable row per
// line, conditional ingredient deduction, and the receipt for the printer
// bridge. Lines commit one at a time; a failure partway keeps the committed
// rows and reports how many made it.
func (s *Service) FinalizeSale(ctx context.Context, req domain.FinalizeSaleRequest) (domain.Receipt, error) {
	if len(req.Lines) == 0 {
		return domain.Receipt{}, fmt.Errorf("sale has no lines: %w", store.ErrValidation)
	}
	if !validPaymentMethod(req.PaymentMethod) {
		return domain.Receipt{}, fmt.Errorf("unknown payment method %q: %w", req.PaymentMethod, store.ErrValidation)
	}
	if req.Tip.IsNegative() {
		return domain.Receipt{}, fmt.Errorf("tip must not be negative: %w", store.ErrValidation)
	}
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return domain.Receipt{}, fmt.Errorf("line %q quantity must be positive: %w", line.Name, store.ErrValidation)
		}
	}

	subtotal := cartTotal(req.Lines)
	total := subtotal.Add(req.Tip)
	if req.PaymentMethod == domain.PaymentCash && req.AmountReceived.LessThan(total) {
		return domain.Receipt{}, fmt.Errorf("amount received %s is less than total %s: %w",
			req.AmountReceived.StringFixed(2), total.StringFixed(2), store.ErrValidation)
	}

	lastNumber, err := s.counterValue(ctx, domain.ConfigLastSaleNumber)
	if err != nil {
		return domain.Receipt{}, err
	}
	saleNumber := lastNumber + 1
	if err := s.repo.SetConfig(ctx, domain.ConfigLastSaleNumber, strconv.Itoa(saleNumber)); err != nil {
		return domain.Receipt{}, err
	}
	timestamp := format.Timestamp(time.Now())
	deductStock := s.GlobalStockEnabled(ctx)

	for i, line := range req.Lines {
		row := domain.SaleLine{
			SaleNumber:    saleNumber,
			Timestamp:     timestamp,
			ProductName:   line.Name,
			ProductID:     line.ProductID,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
			Total:         line.Total,
			PaymentMethod: req.PaymentMethod,
			TableLabel:    req.TableLabel,
			Tip:           req.Tip,
		}
		if err := s.repo.AppendSaleLine(ctx, row); err != nil {
			return domain.Receipt{}, &IncompleteSaleError{SaleNumber: saleNumber, Committed: i, Err: err}
		}
		if deductStock && line.ProductID > 0 {
			if err := s.deductSaleStock(ctx, line.ProductID, line.Quantity); err != nil {
				return domain.Receipt{}, &IncompleteSaleError{SaleNumber: saleNumber, Committed: i + 1, Err: err}
			}
		}
	}

	if req.TableLabel != "" {
		if err := s.repo.DeletePendingOrder(ctx, req.TableLabel); err != nil {
			log.Printf("[service] WARN: failed to clear pending order for %q: %v", req.TableLabel, err)
		}
	}
	s.invalidateCatalog(ctx)

	receipt := domain.Receipt{
		SaleNumber:     saleNumber,
		Timestamp:      timestamp,
		Items:          req.Lines,
		Subtotal:       subtotal,
		Tip:            req.Tip,
		Total:          total,
		AmountReceived: req.AmountReceived,
		PaymentMethod:  req.PaymentMethod,
		TableLabel:     req.TableLabel,
	}
	if req.PaymentMethod == domain.PaymentCash {
		receipt.Change = req.AmountReceived.Sub(total)
	}

	if err := s.repo.SetConfig(ctx, domain.ConfigLastReceipt, receiptFileName(saleNumber)); err != nil {
		log.Printf("[service] WARN: failed to record last receipt: %v", err)
	}
	s.logAudit(ctx, "sale_finalize", "sale", strconv.Itoa(saleNumber),
		fmt.Sprintf("lines=%d,total=%s,method=%s", len(req.Lines), total.StringFixed(2), req.PaymentMethod))
	return receipt, nil
}

// deductSaleStock pulls the sold quantity through the product's recipe when
// the product itself tracks stock, then refreshes its estimate.
func (s *Service) deductSaleStock(ctx context.Context, productID int, quantity float64) error {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !product.StockManaged {
		return nil
	}
	lines, err := s.repo.ListRecipeLines(ctx, productID)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if line.RequiredQuantity == 0 {
			continue
		}
		if _, err := s.repo.AddIngredientStock(ctx, line.IngredientID, -line.RequiredQuantity*quantity); err != nil {
			return err
		}
	}
	return s.refreshEstimatedStock(ctx, productID)
}

// --- pending orders ---

// StashCart parks the cart under its table. An empty cart clears the table.
func (s *Service) StashCart(ctx context.Context, tableLabel string, lines []domain.CartLine) error {
	tableLabel = strings.TrimSpace(tableLabel)
	if tableLabel == "" {
		return fmt.Errorf("table label required: %w", store.ErrValidation)
	}
	if len(lines) == 0 {
		return s.repo.DeletePendingOrder(ctx, tableLabel)
	}
	order := domain.PendingOrder{
		TableLabel: tableLabel,
		Lines:      lines,
		Total:      cartTotal(lines),
		CreatedAt:  format.Timestamp(time.Now()),
	}
	return s.repo.UpsertPendingOrder(ctx, order)
}

func (s *Service) ResumeCart(ctx context.Context, tableLabel string) (domain.PendingOrder, error) {
	order, err := s.repo.GetPendingOrder(ctx, tableLabel)
	if err != nil {
		return domain.PendingOrder{}, err
	}
	return *order, nil
}

func (s *Service) ListPendingTables(ctx context.Context) ([]string, error) {
	return s.repo.ListPendingTables(ctx)
}

// --- history and reporting ---

func (s *Service) ListSalesByDay(ctx context.Context, day string) ([]domain.SaleLine, error) {
	if day == "" {
		day = format.Day(time.Now())
	}
	return s.repo.ListSalesByDay(ctx, day)
}

// DaySummary reports the end-of-day figures: gross income over every payment
// method, the cash share, and net profit at current product costs.
func (s *Service) DaySummary(ctx context.Context, day string) (domain.DaySummary, error) {
	if day == "" {
		day = format.Day(time.Now())
	}
	gross, err := s.repo.SumSalesByDay(ctx, day, "")
	if err != nil {
		return domain.DaySummary{}, err
	}
	cash, err := s.repo.SumSalesByDay(ctx, day, domain.PaymentCash)
	if err != nil {
		return domain.DaySummary{}, err
	}
	profit, err := s.repo.NetProfitByDay(ctx, day)
	if err != nil {
		return domain.DaySummary{}, err
	}
	lines, err := s.repo.ListSalesByDay(ctx, day)
	if err != nil {
		return domain.DaySummary{}, err
	}
	return domain.DaySummary{
		Date:        day,
		GrossIncome: gross,
		CashIncome:  cash,
		NetProfit:   profit,
		LineCount:   len(lines),
	}, nil
}

// --- receipt rendering ---

func receiptFileName(saleNumber int) string {
	return fmt.Sprintf("ticket-%d.bin", saleNumber)
}

func (s *Service) AutoPrintEnabled(ctx context.Context) bool {
	return s.configValue(ctx, domain.ConfigAutoPrint, "0") == "1"
}

func (s *Service) SetAutoPrint(ctx context.Context, enabled bool) error {
	value := "0"
	if enabled {
		value = "1"
	}
	return s.repo.SetConfig(ctx, domain.ConfigAutoPrint, value)
}

// RenderReceipt produces the plain-text preview and the raw ESC/POS bytes for
// the printer bridge. Transport to a physical printer is not handled here.
func (s *Service) RenderReceipt(receipt domain.Receipt) domain.ReceiptRender {
	lines := []string{
		businessName,
		businessTagline,
		businessAddress,
		"Tel: " + businessPhone,
		"================================",
		fmt.Sprintf("Ticket #%d", receipt.SaleNumber),
		receipt.Timestamp,
	}
	if receipt.TableLabel != "" {
		lines = append(lines, receipt.TableLabel)
	}
	lines = append(lines, "--------------------------------")
	for _, item := range receipt.Items {
		lines = append(lines, fmt.Sprintf("%s x%g", item.Name, item.Quantity))
		lines = append(lines, "  "+format.Currency(item.Total))
	}
	lines = append(lines, "--------------------------------",
		"Subtotal : "+format.Currency(receipt.Subtotal))
	if receipt.Tip.IsPositive() {
		lines = append(lines, "Propina  : "+format.Currency(receipt.Tip))
	}
	lines = append(lines,
		"Total    : "+format.Currency(receipt.Total),
		"Pago     : "+receipt.PaymentMethod)
	if receipt.PaymentMethod == domain.PaymentCash {
		lines = append(lines,
			"Recibido : "+format.Currency(receipt.AmountReceived),
			"Cambio   : "+format.Currency(receipt.Change))
	}
	lines = append(lines,
		"================================",
		"Gracias por su visita",
		"")

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return domain.ReceiptRender{
		SaleNumber:   receipt.SaleNumber,
		PreviewText:  strings.Join(lines, "\n"),
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		FileName:     receiptFileName(receipt.SaleNumber),
	}
}

// LastReceiptRef returns the stored reference of the most recent ticket.
func (s *Service) LastReceiptRef(ctx context.Context) string {
	return s.configValue(ctx, domain.ConfigLastReceipt, "")
}
