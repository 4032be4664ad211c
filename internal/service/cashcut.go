package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"mitsys/backend/internal/domain"
	"mitsys/backend/internal/format"
	"mitsys/backend/internal/store"
)

// cutTolerance is the largest absolute difference still reported as balanced.
var cutTolerance = decimal.NewFromFloat(0.01)

// expectedCashEndOfDay is the drawer the regular cut expects: the opening
// float plus the day's cash sales, minus withdrawals.
func expectedCashEndOfDay(opening, cashSales, withdrawals decimal.Decimal) decimal.Decimal {
	return opening.Add(cashSales).Sub(withdrawals)
}

// expectedCashManual is the formula the manual cut editor has always used:
// cash on hand minus withdrawals, ignoring the opening float. The two
// formulas disagree on purpose; callers pick the one their flow matches.
func expectedCashManual(cashOnHand, withdrawals decimal.Decimal) decimal.Decimal {
	return cashOnHand.Sub(withdrawals)
}

func classifyDifference(difference decimal.Decimal) string {
	if difference.Abs().LessThan(cutTolerance) {
		return domain.CutBalanced
	}
	if difference.IsPositive() {
		return domain.CutSurplus
	}
	return domain.CutShortfall
}

func denominationTotal(counts []domain.DenominationCount) decimal.Decimal {
	total := decimal.Zero
	for _, c := range counts {
		total = total.Add(decimal.NewFromInt(int64(c.Denomination)).Mul(decimal.NewFromInt(int64(c.Count))))
	}
	return total
}

func (s *Service) countEntries(counts []domain.DenominationCount, day, registerType string) []domain.CashCountEntry {
	entries := make([]domain.CashCountEntry, 0, len(counts))
	for _, c := range counts {
		entries = append(entries, domain.CashCountEntry{
			Date:         day,
			Kind:         c.Kind,
			Denomination: c.Denomination,
			Count:        c.Count,
			Total:        decimal.NewFromInt(int64(c.Denomination)).Mul(decimal.NewFromInt(int64(c.Count))),
			RegisterType: registerType,
		})
	}
	return entries
}

// IsOpeningCashEnteredToday reports whether the drawer float was already
// registered this calendar day. The marker holds the day string, or "0" after
// a cut resets it.
func (s *Service) IsOpeningCashEnteredToday(ctx context.Context) bool {
	return s.configValue(ctx, domain.ConfigCashEnteredToday, "0") == format.Day(time.Now())
}

// RecordOpeningCash registers the opening drawer float from the denomination
// counts. Allowed once per calendar day.
func (s *Service) RecordOpeningCash(ctx context.Context, counts []domain.DenominationCount) (decimal.Decimal, error) {
	if s.IsOpeningCashEnteredToday(ctx) {
		return decimal.Zero, fmt.Errorf("opening cash already entered today: %w", store.ErrValidation)
	}
	for _, c := range counts {
		if c.Count < 0 {
			return decimal.Zero, fmt.Errorf("denomination count must not be negative: %w", store.ErrValidation)
		}
	}

	day := format.Day(time.Now())
	total := denominationTotal(counts)

	if err := s.repo.AppendCashCountEntries(ctx, s.countEntries(counts, day, domain.CashRegisterOpening)); err != nil {
		return decimal.Zero, err
	}
	if err := s.repo.SetConfig(ctx, domain.ConfigOpeningCash, total.StringFixed(2)); err != nil {
		return decimal.Zero, err
	}
	if err := s.repo.SetConfig(ctx, domain.ConfigCashEnteredToday, day); err != nil {
		return decimal.Zero, err
	}

	s.logAudit(ctx, "opening_cash_record", "cash", day, "total="+total.StringFixed(2))
	return total, nil
}

func (s *Service) openingCash(ctx context.Context) decimal.Decimal {
	value := s.configValue(ctx, domain.ConfigOpeningCash, "0")
	opening, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return opening
}

// PendingTablesBeforeCut lists tables that still hold unfinalized carts, so
// the caller can warn before closing the day.
func (s *Service) PendingTablesBeforeCut(ctx context.Context) ([]string, error) {
	return s.repo.ListPendingTables(ctx)
}

// PerformCut closes the day's drawer: expected cash from the end-of-day
// formula, the counted amount from explicit denominations when given,
// difference classified against the one-cent tolerance, and net profit over
// every sale of the day at current product costs. The cut takes the next
// sequential number and the opening-cash marker resets.
func (s *Service) PerformCut(ctx context.Context, req domain.PerformCutRequest) (domain.CashCut, error) {
	if req.Withdrawals.IsNegative() {
		return domain.CashCut{}, fmt.Errorf("withdrawals must not be negative: %w", store.ErrValidation)
	}

	counted := req.CountedCash
	if len(req.Denominations) > 0 {
		counted = denominationTotal(req.Denominations)
	}
	if counted.IsNegative() {
		return domain.CashCut{}, fmt.Errorf("counted cash must not be negative: %w", store.ErrValidation)
	}

	day := format.Day(time.Now())
	opening := s.openingCash(ctx)
	cashSales, err := s.repo.SumSalesByDay(ctx, day, domain.PaymentCash)
	if err != nil {
		return domain.CashCut{}, err
	}
	netProfit, err := s.repo.NetProfitByDay(ctx, day)
	if err != nil {
		return domain.CashCut{}, err
	}

	expected := expectedCashEndOfDay(opening, cashSales, req.Withdrawals)
	difference := counted.Sub(expected)

	lastNumber, err := s.counterValue(ctx, domain.ConfigLastCutNumber)
	if err != nil {
		return domain.CashCut{}, err
	}
	cut := domain.CashCut{
		CutNumber:    lastNumber + 1,
		Timestamp:    format.Timestamp(time.Now()),
		OpeningCash:  opening,
		CountedCash:  counted,
		ExpectedCash: expected,
		Withdrawals:  req.Withdrawals,
		Difference:   difference,
		Status:       classifyDifference(difference),
		NetProfit:    netProfit,
	}

	saved, err := s.repo.AppendCashCut(ctx, cut)
	if err != nil {
		return domain.CashCut{}, err
	}
	if len(req.Denominations) > 0 {
		if err := s.repo.AppendCashCountEntries(ctx, s.countEntries(req.Denominations, day, domain.CashRegisterCut)); err != nil {
			return domain.CashCut{}, err
		}
	}
	if err := s.repo.SetConfig(ctx, domain.ConfigLastCutNumber, strconv.Itoa(saved.CutNumber)); err != nil {
		return domain.CashCut{}, err
	}
	if err := s.repo.SetConfig(ctx, domain.ConfigCashEnteredToday, "0"); err != nil {
		return domain.CashCut{}, err
	}

	s.logAudit(ctx, "cash_cut", "cash_cut", strconv.Itoa(saved.ID),
		fmt.Sprintf("number=%d,status=%s,difference=%s", saved.CutNumber, saved.Status, saved.Difference.StringFixed(2)))
	return *saved, nil
}

// SaveManualCut inserts or edits a cut through the history editor. It runs
// the editor's own expected-cash formula and only advances the cut counter
// when the manual number moves past it.
func (s *Service) SaveManualCut(ctx context.Context, req domain.ManualCutRequest) (domain.CashCut, error) {
	if req.CutNumber < 1 {
		return domain.CashCut{}, fmt.Errorf("cut number must be positive: %w", store.ErrValidation)
	}
	if req.Timestamp == "" {
		req.Timestamp = format.Timestamp(time.Now())
	} else if _, err := time.Parse(format.TimestampLayout, req.Timestamp); err != nil {
		return domain.CashCut{}, fmt.Errorf("bad timestamp %q: %w", req.Timestamp, store.ErrValidation)
	}

	expected := expectedCashManual(req.CashOnHand, req.Withdrawals)
	difference := req.CountedCash.Sub(expected)
	cut := domain.CashCut{
		ID:           req.CutID,
		CutNumber:    req.CutNumber,
		Timestamp:    req.Timestamp,
		OpeningCash:  req.CashOnHand,
		CountedCash:  req.CountedCash,
		ExpectedCash: expected,
		Withdrawals:  req.Withdrawals,
		Difference:   difference,
		Status:       classifyDifference(difference),
		NetProfit:    req.NetProfit,
	}

	var saved *domain.CashCut
	var err error
	if req.CutID == 0 {
		saved, err = s.repo.AppendCashCut(ctx, cut)
		if err != nil {
			return domain.CashCut{}, err
		}
		lastNumber, err := s.counterValue(ctx, domain.ConfigLastCutNumber)
		if err != nil {
			return domain.CashCut{}, err
		}
		if saved.CutNumber > lastNumber {
			if err := s.repo.SetConfig(ctx, domain.ConfigLastCutNumber, strconv.Itoa(saved.CutNumber)); err != nil {
				return domain.CashCut{}, err
			}
		}
	} else {
		saved, err = s.repo.UpdateCashCut(ctx, cut)
		if err != nil {
			return domain.CashCut{}, err
		}
	}

	s.logAudit(ctx, "cash_cut_manual", "cash_cut", strconv.Itoa(saved.ID),
		fmt.Sprintf("number=%d,status=%s", saved.CutNumber, saved.Status))
	return *saved, nil
}

func (s *Service) GetCashCut(ctx context.Context, id int) (domain.CashCut, error) {
	cut, err := s.repo.GetCashCut(ctx, id)
	if err != nil {
		return domain.CashCut{}, err
	}
	return *cut, nil
}

func (s *Service) ListCashCuts(ctx context.Context, filter domain.CutFilter) ([]domain.CashCut, error) {
	return s.repo.ListCashCuts(ctx, filter)
}

func (s *Service) DeleteCashCut(ctx context.Context, id int) error {
	if err := s.repo.DeleteCashCut(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "cash_cut_delete", "cash_cut", strconv.Itoa(id), "")
	return nil
}
