package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/parish-ledger/backend/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BalanceSheet is the running balance of one entity in one fiscal year.
//
// The current balance is never stored, it is always derived from
// the opening balance, the allocation and the consumption.
type BalanceSheet struct {
	DefaultModel
	FiscalYear          types.FiscalYear `gorm:"uniqueIndex:idx_balance_sheet_key"`
	EntityType          EntityType       `gorm:"uniqueIndex:idx_balance_sheet_key"`
	EntityID            uuid.UUID        `gorm:"uniqueIndex:idx_balance_sheet_key"`
	OpeningBalance      decimal.Decimal  `gorm:"type:DECIMAL(20,8)"`
	AllocatedAmount     decimal.Decimal  `gorm:"type:DECIMAL(20,8)"`
	TotalConsumed       decimal.Decimal  `gorm:"type:DECIMAL(20,8)"`
	LastTransactionDate *time.Time

	// Version is incremented on every write and used as compare-and-swap
	// token, so that no two writers can apply a delta on the same state.
	Version int64 `gorm:"not null;default:0"`
}

func (b BalanceSheet) Entity() EntityRef {
	return EntityRef{Type: b.EntityType, ID: b.EntityID}
}

// CurrentBalance returns opening balance plus allocation minus consumption.
func (b BalanceSheet) CurrentBalance() decimal.Decimal {
	return b.OpeningBalance.Add(b.AllocatedAmount).Sub(b.TotalConsumed)
}

// MonthlyTotal is the consumption of a balance sheet in one month.
type MonthlyTotal struct {
	Month types.Month     `json:"month" swaggertype:"string" example:"2024-05"` // Year and month
	Total decimal.Decimal `json:"total" swaggertype:"string" example:"1250"`    // Sum of all posted transactions in the month
	Count int             `json:"count" example:"4"`                            // Number of posted transactions in the month
}

func sheetKey(db *gorm.DB, year types.FiscalYear, ref EntityRef) *gorm.DB {
	return db.Where("fiscal_year = ? AND entity_type = ? AND entity_id = ?", year, ref.Type, ref.ID)
}

// GetBalanceSheet returns the balance sheet for an entity in a fiscal year.
func GetBalanceSheet(db *gorm.DB, year types.FiscalYear, ref EntityRef) (BalanceSheet, error) {
	var sheet BalanceSheet
	err := sheetKey(db, year, ref).First(&sheet).Error
	return sheet, err
}

// GetBalance returns the balance sheet for an entity in a fiscal year.
//
// If the entity has no balance sheet, a balance sheet with all amounts
// set to zero is returned.
func GetBalance(db *gorm.DB, year types.FiscalYear, ref EntityRef) (BalanceSheet, error) {
	sheet, err := GetBalanceSheet(db, year, ref)
	if errors.Is(err, ErrResourceNotFound) {
		return BalanceSheet{FiscalYear: year, EntityType: ref.Type, EntityID: ref.ID}, nil
	}

	return sheet, err
}

// lockBalanceSheet reads the balance sheet inside of a database transaction.
//
// On PostgreSQL, the row is locked until the transaction ends. SQLite
// connections are limited to one, so the whole transaction is exclusive already.
func lockBalanceSheet(tx *gorm.DB, year types.FiscalYear, ref EntityRef) (BalanceSheet, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var sheet BalanceSheet
	err := sheetKey(q, year, ref).First(&sheet).Error
	return sheet, err
}

// writeVersioned updates the balance sheet if nobody else has written it since
// it was read.
func (b *BalanceSheet) writeVersioned(tx *gorm.DB, updates map[string]any) error {
	updates["version"] = b.Version + 1

	res := tx.Model(&BalanceSheet{}).Where("id = ? AND version = ?", b.ID, b.Version).Updates(updates)
	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s in fiscal year %s", ErrConcurrencyConflict, b.Entity(), b.FiscalYear)
	}

	b.Version++
	return nil
}

// ApplyDelta adds delta to the consumption of the loaded balance sheet.
//
// A positive delta consumes money, a negative delta gives it back.
// The balance sheet must have been read in the same database transaction.
func (b *BalanceSheet) ApplyDelta(tx *gorm.DB, delta decimal.Decimal, date *time.Time) error {
	consumed := b.TotalConsumed.Add(delta)
	balance := b.OpeningBalance.Add(b.AllocatedAmount).Sub(consumed)
	if balance.IsNegative() {
		return fmt.Errorf("%w: %s available, %s requested", ErrInsufficientBalance, b.CurrentBalance(), delta)
	}

	updates := map[string]any{"total_consumed": consumed}
	if date != nil {
		updates["last_transaction_date"] = date.In(time.UTC)
	}

	err := b.writeVersioned(tx, updates)
	if err != nil {
		return err
	}

	b.TotalConsumed = consumed
	if date != nil {
		d := date.In(time.UTC)
		b.LastTransactionDate = &d
	}

	return nil
}

// ApplyDelta adds delta to the consumption recorded on the balance sheet
// of an entity. If date is not nil, it is set as last transaction date.
//
// It must be called with a database transaction.
func ApplyDelta(tx *gorm.DB, year types.FiscalYear, ref EntityRef, delta decimal.Decimal, date *time.Time) (BalanceSheet, error) {
	sheet, err := lockBalanceSheet(tx, year, ref)
	if err != nil {
		return BalanceSheet{}, err
	}

	err = sheet.ApplyDelta(tx, delta, date)
	return sheet, err
}

// UpsertAllocation sets the allocated amount for an entity, creating the
// balance sheet if it does not exist yet. Opening balance and consumption
// are kept.
func UpsertAllocation(tx *gorm.DB, year types.FiscalYear, ref EntityRef, amount decimal.Decimal) (BalanceSheet, error) {
	if amount.IsNegative() {
		return BalanceSheet{}, fmt.Errorf("%w: the allocated amount must not be negative", ErrValidation)
	}

	sheet, err := lockBalanceSheet(tx, year, ref)
	if errors.Is(err, ErrResourceNotFound) {
		sheet = BalanceSheet{
			FiscalYear:      year,
			EntityType:      ref.Type,
			EntityID:        ref.ID,
			AllocatedAmount: amount,
		}

		return sheet, tx.Create(&sheet).Error
	} else if err != nil {
		return BalanceSheet{}, err
	}

	if sheet.OpeningBalance.Add(amount).Sub(sheet.TotalConsumed).IsNegative() {
		return BalanceSheet{}, fmt.Errorf("%w: the allocation of %s for %s is lower than the %s already consumed", ErrValidation, amount, ref, sheet.TotalConsumed)
	}

	err = sheet.writeVersioned(tx, map[string]any{"allocated_amount": amount})
	if err != nil {
		return BalanceSheet{}, err
	}

	sheet.AllocatedAmount = amount
	return sheet, nil
}

// ListBalanceSheets returns the balance sheets matching the filter.
// Zero values do not filter.
func ListBalanceSheets(db *gorm.DB, year types.FiscalYear, entityType EntityType) ([]BalanceSheet, error) {
	q := db.Order("fiscal_year, entity_type, entity_id")

	if !year.IsZero() {
		q = q.Where("fiscal_year = ?", year)
	}

	if entityType != "" {
		q = q.Where("entity_type = ?", entityType)
	}

	var sheets []BalanceSheet
	err := q.Find(&sheets).Error
	return sheets, err
}

// RolloverYear carries the current balance of every balance sheet of a fiscal
// year over as opening balance of the following fiscal year.
//
// Balance sheets for the next year are created when missing, otherwise only
// their opening balance is updated. Running it twice has the same result as
// running it once. If a new opening balance would leave a balance sheet of
// the next year negative, no balance sheet is changed.
func RolloverYear(db *gorm.DB, from types.FiscalYear, entityType EntityType) ([]BalanceSheet, error) {
	if from.IsZero() {
		return nil, fmt.Errorf("%w: the fiscal year to roll over must be set", ErrValidation)
	}

	if entityType != "" && !entityType.Valid() {
		return nil, fmt.Errorf("%w: '%s' is not a valid entity type", ErrValidation, entityType)
	}

	var targets []BalanceSheet
	err := runTransaction(db, func(tx *gorm.DB) error {
		sources, err := ListBalanceSheets(tx, from, entityType)
		if err != nil {
			return err
		}

		for _, source := range sources {
			target, err := lockBalanceSheet(tx, from.Next(), source.Entity())
			if errors.Is(err, ErrResourceNotFound) {
				target = BalanceSheet{
					FiscalYear:     from.Next(),
					EntityType:     source.EntityType,
					EntityID:       source.EntityID,
					OpeningBalance: source.CurrentBalance(),
				}

				err = tx.Create(&target).Error
				if err != nil {
					return err
				}

				targets = append(targets, target)
				continue
			} else if err != nil {
				return err
			}

			if source.CurrentBalance().Add(target.AllocatedAmount).Sub(target.TotalConsumed).IsNegative() {
				return fmt.Errorf("%w: an opening balance of %s for %s in fiscal year %s does not cover the %s already consumed", ErrInsufficientBalance, source.CurrentBalance(), target.Entity(), target.FiscalYear, target.TotalConsumed)
			}

			err = target.writeVersioned(tx, map[string]any{"opening_balance": source.CurrentBalance()})
			if err != nil {
				return err
			}

			target.OpeningBalance = source.CurrentBalance()
			targets = append(targets, target)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("fiscalYear", from.String()).Int("balanceSheets", len(targets)).Msg("rolled over balances")
	return targets, nil
}

// MonthlyBreakdown aggregates the posted transactions of the balance sheet by month.
func (b BalanceSheet) MonthlyBreakdown(db *gorm.DB) ([]MonthlyTotal, error) {
	var transactions []Transaction
	err := sheetKey(db, b.FiscalYear, b.Entity()).Where("posted = ?", true).Find(&transactions).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[types.Month]*MonthlyTotal)
	for _, t := range transactions {
		month := types.MonthOf(t.Date)
		total, ok := totals[month]
		if !ok {
			total = &MonthlyTotal{Month: month}
			totals[month] = total
		}

		total.Total = total.Total.Add(t.Amount)
		total.Count++
	}

	breakdown := make([]MonthlyTotal, 0, len(totals))
	for _, total := range totals {
		breakdown = append(breakdown, *total)
	}

	slices.SortFunc(breakdown, func(a, b MonthlyTotal) int {
		if a.Month.Before(b.Month) {
			return -1
		}
		if b.Month.Before(a.Month) {
			return 1
		}
		return 0
	})

	return breakdown, nil
}
