package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"mitsys/backend/internal/cache"
	"mitsys/backend/internal/domain"
	"mitsys/backend/internal/store"
	"mitsys/backend/internal/store/memory"
)

func TestClassifyDifferenceBoundaries(t *testing.T) {
	cases := []struct {
		difference float64
		want       string
	}{
		{0, domain.CutBalanced},
		{0.009, domain.CutBalanced},
		{-0.009, domain.CutBalanced},
		{0.01, domain.CutSurplus},
		{5.50, domain.CutSurplus},
		{-0.01, domain.CutShortfall},
		{-120, domain.CutShortfall},
	}
	for _, tc := range cases {
		got := classifyDifference(decimal.NewFromFloat(tc.difference))
		if got != tc.want {
			t.Fatalf("classifyDifference(%v) = %s, want %s", tc.difference, got, tc.want)
		}
	}
}

func TestExpectedCashFormulasDiverge(t *testing.T) {
	opening := decimal.NewFromInt(500)
	cashSales := decimal.NewFromInt(300)
	withdrawals := decimal.NewFromInt(100)

	endOfDay := expectedCashEndOfDay(opening, cashSales, withdrawals)
	manual := expectedCashManual(opening, withdrawals)

	if !endOfDay.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("end of day = %s, want 700", endOfDay)
	}
	if !manual.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("manual = %s, want 400", manual)
	}
	if endOfDay.Equal(manual) {
		t.Fatalf("the two formulas must not agree when cash sales exist")
	}
}

func TestOpeningCashOncePerDay(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	counts := []domain.DenominationCount{
		{Kind: domain.DenominationBill, Denomination: 500, Count: 1},
		{Kind: domain.DenominationCoin, Denomination: 10, Count: 3},
	}
	total, err := svc.RecordOpeningCash(ctx, counts)
	if err != nil {
		t.Fatalf("record opening: %v", err)
	}
	if !total.Equal(decimal.NewFromInt(530)) {
		t.Fatalf("opening total = %s, want 530", total)
	}
	if !svc.IsOpeningCashEnteredToday(ctx) {
		t.Fatalf("gate should report entered")
	}

	if _, err := svc.RecordOpeningCash(ctx, counts); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected second entry rejected, got %v", err)
	}
}

func TestPerformCutBalancedDay(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	mustCreateProduct(t, svc, 1, "Tacos", 15)
	_, err := svc.RecordOpeningCash(ctx, []domain.DenominationCount{
		{Kind: domain.DenominationBill, Denomination: 500, Count: 1},
	})
	if err != nil {
		t.Fatalf("opening: %v", err)
	}

	// 1230.50 of cash sales for the day.
	_, err = svc.FinalizeSale(ctx, domain.FinalizeSaleRequest{
		Lines:          []domain.CartLine{cartLine(1, "Tacos", 1, 1230.50)},
		PaymentMethod:  domain.PaymentCash,
		AmountReceived: decimal.NewFromFloat(1230.50),
	})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}

	cut, err := svc.PerformCut(ctx, domain.PerformCutRequest{
		CountedCash: decimal.NewFromFloat(1530.50),
		Withdrawals: decimal.NewFromInt(200),
	})
	if err != nil {
		t.Fatalf("cut: %v", err)
	}

	if !cut.ExpectedCash.Equal(decimal.NewFromFloat(1530.50)) {
		t.Fatalf("expected cash = %s, want 1530.50", cut.ExpectedCash)
	}
	if cut.Status != domain.CutBalanced {
		t.Fatalf("status = %s, want %s", cut.Status, domain.CutBalanced)
	}
	if cut.CutNumber != 1 {
		t.Fatalf("cut number = %d, want 1", cut.CutNumber)
	}

	// The cut resets the opening marker so a new day can start.
	if svc.IsOpeningCashEnteredToday(ctx) {
		t.Fatalf("opening marker not reset after cut")
	}
}

func TestPerformCutClassifiesSurplusAndShortfall(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	surplus, err := svc.PerformCut(ctx, domain.PerformCutRequest{
		CountedCash: decimal.NewFromFloat(0.01),
	})
	if err != nil {
		t.Fatalf("surplus cut: %v", err)
	}
	if surplus.Status != domain.CutSurplus {
		t.Fatalf("status = %s, want %s", surplus.Status, domain.CutSurplus)
	}

	short, err := svc.PerformCut(ctx, domain.PerformCutRequest{
		CountedCash: decimal.Zero,
		Withdrawals: decimal.Zero,
	})
	if err != nil {
		t.Fatalf("short cut: %v", err)
	}
	if short.Status != domain.CutBalanced {
		t.Fatalf("empty day should balance, got %s", short.Status)
	}
	if short.CutNumber != surplus.CutNumber+1 {
		t.Fatalf("cut numbers not sequential: %d then %d", surplus.CutNumber, short.CutNumber)
	}
}

func TestPerformCutCountsDenominationsWhenGiven(t *testing.T) {
	svc := newTestService()

	cut, err := svc.PerformCut(context.Background(), domain.PerformCutRequest{
		Denominations: []domain.DenominationCount{
			{Kind: domain.DenominationBill, Denomination: 200, Count: 2},
			{Kind: domain.DenominationCoin, Denomination: 5, Count: 4},
		},
	})
	if err != nil {
		t.Fatalf("cut: %v", err)
	}
	if !cut.CountedCash.Equal(decimal.NewFromInt(420)) {
		t.Fatalf("counted = %s, want 420", cut.CountedCash)
	}
}

func TestPerformCutSurfacesCounterReadFailure(t *testing.T) {
	repo := &faultyConfigRepo{Repository: memory.New()}
	svc := New(repo, cache.NoopCatalogCache{}, 0)
	ctx := context.Background()

	first, err := svc.PerformCut(ctx, domain.PerformCutRequest{CountedCash: decimal.Zero})
	if err != nil {
		t.Fatalf("healthy cut: %v", err)
	}
	if first.CutNumber != 1 {
		t.Fatalf("cut number = %d, want 1", first.CutNumber)
	}

	repo.failKey = domain.ConfigLastCutNumber
	if _, err := svc.PerformCut(ctx, domain.PerformCutRequest{CountedCash: decimal.Zero}); err == nil {
		t.Fatalf("expected failure when the cut counter cannot be read")
	}

	repo.failKey = ""
	recovered, err := svc.PerformCut(ctx, domain.PerformCutRequest{CountedCash: decimal.Zero})
	if err != nil {
		t.Fatalf("recovered cut: %v", err)
	}
	if recovered.CutNumber != 2 {
		t.Fatalf("cut number after recovery = %d, want 2", recovered.CutNumber)
	}
}

func TestManualCutUsesItsOwnFormulaAndNumbering(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	saved, err := svc.SaveManualCut(ctx, domain.ManualCutRequest{
		CutNumber:   5,
		CashOnHand:  decimal.NewFromInt(1000),
		CountedCash: decimal.NewFromInt(790),
		Withdrawals: decimal.NewFromInt(200),
		NetProfit:   decimal.NewFromInt(350),
	})
	if err != nil {
		t.Fatalf("manual cut: %v", err)
	}
	if !saved.ExpectedCash.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("expected cash = %s, want 800 (cash on hand minus withdrawals)", saved.ExpectedCash)
	}
	if saved.Status != domain.CutShortfall {
		t.Fatalf("status = %s, want %s", saved.Status, domain.CutShortfall)
	}

	// Inserting number 5 moved the counter; a regular cut follows at 6.
	next, err := svc.PerformCut(ctx, domain.PerformCutRequest{CountedCash: decimal.Zero})
	if err != nil {
		t.Fatalf("regular cut: %v", err)
	}
	if next.CutNumber != 6 {
		t.Fatalf("cut number = %d, want 6", next.CutNumber)
	}

	// A manual number below the counter does not move it backwards.
	if _, err := svc.SaveManualCut(ctx, domain.ManualCutRequest{
		CutNumber:   2,
		CashOnHand:  decimal.NewFromInt(100),
		CountedCash: decimal.NewFromInt(100),
	}); err != nil {
		t.Fatalf("low manual cut: %v", err)
	}
	after, err := svc.PerformCut(ctx, domain.PerformCutRequest{CountedCash: decimal.Zero})
	if err != nil {
		t.Fatalf("cut after low manual: %v", err)
	}
	if after.CutNumber != 7 {
		t.Fatalf("cut number = %d, want 7", after.CutNumber)
	}
}

func TestManualCutEditsExistingRow(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	saved, err := svc.SaveManualCut(ctx, domain.ManualCutRequest{
		CutNumber:   1,
		CashOnHand:  decimal.NewFromInt(500),
		CountedCash: decimal.NewFromInt(500),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	edited, err := svc.SaveManualCut(ctx, domain.ManualCutRequest{
		CutID:       saved.ID,
		CutNumber:   1,
		CashOnHand:  decimal.NewFromInt(500),
		CountedCash: decimal.NewFromInt(400),
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.ID != saved.ID {
		t.Fatalf("edit created a new row: %d vs %d", edited.ID, saved.ID)
	}
	if edited.Status != domain.CutShortfall {
		t.Fatalf("status = %s, want %s", edited.Status, domain.CutShortfall)
	}

	cuts, err := svc.ListCashCuts(ctx, domain.CutFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cuts) != 1 {
		t.Fatalf("expected 1 cut, got %d", len(cuts))
	}
}

func TestListCashCutsFiltersByStatus(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.SaveManualCut(ctx, domain.ManualCutRequest{
		CutNumber: 1, CashOnHand: decimal.NewFromInt(100), CountedCash: decimal.NewFromInt(100),
	}); err != nil {
		t.Fatalf("balanced: %v", err)
	}
	if _, err := svc.SaveManualCut(ctx, domain.ManualCutRequest{
		CutNumber: 2, CashOnHand: decimal.NewFromInt(100), CountedCash: decimal.NewFromInt(150),
	}); err != nil {
		t.Fatalf("surplus: %v", err)
	}

	cuts, err := svc.ListCashCuts(ctx, domain.CutFilter{Status: domain.CutSurplus})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cuts) != 1 || cuts[0].CutNumber != 2 {
		t.Fatalf("filter returned %+v", cuts)
	}
}

func TestPendingTablesBlockWarningBeforeCut(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	mustCreateProduct(t, svc, 1, "Tacos", 15)
	if err := svc.StashCart(ctx, "Mesa 4", []domain.CartLine{cartLine(1, "Tacos", 1, 15)}); err != nil {
		t.Fatalf("stash: %v", err)
	}

	tables, err := svc.PendingTablesBeforeCut(ctx)
	if err != nil {
		t.Fatalf("precheck: %v", err)
	}
	if len(tables) != 1 || tables[0] != "Mesa 4" {
		t.Fatalf("pending tables = %v", tables)
	}
}
