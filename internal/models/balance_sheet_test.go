package models_test

import (
	"time"

	"github.com/google/uuid"
	"github.com/parish-ledger/backend/internal/models"
	"github.com/parish-ledger/backend/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func (suite *TestSuiteStandard) TestBalanceSheetCurrentBalance() {
	sheet := models.BalanceSheet{
		OpeningBalance:  decimal.NewFromInt(100),
		AllocatedAmount: decimal.NewFromInt(50),
		TotalConsumed:   decimal.NewFromFloat(20.5),
	}

	suite.Assert().True(decimal.NewFromFloat(129.5).Equal(sheet.CurrentBalance()), "Balance is %s", sheet.CurrentBalance())
}

func (suite *TestSuiteStandard) TestGetBalanceAbsent() {
	ref := models.Community(uuid.New())

	sheet, err := models.GetBalance(models.DB, 2024, ref)
	suite.Require().Nil(err)
	suite.Assert().True(sheet.CurrentBalance().IsZero())
	suite.Assert().Equal(ref, sheet.Entity())
	suite.Assert().Equal(types.FiscalYear(2024), sheet.FiscalYear)

	_, err = models.GetBalanceSheet(models.DB, 2024, ref)
	suite.Assert().ErrorIs(err, models.ErrResourceNotFound)
	suite.Assert().Contains(err.Error(), "balance sheet")
}

func (suite *TestSuiteStandard) TestApplyDelta() {
	sheet := suite.createTestBalanceSheet(models.BalanceSheet{AllocatedAmount: decimal.NewFromInt(100)})
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	err := models.DB.Transaction(func(tx *gorm.DB) error {
		_, err := models.ApplyDelta(tx, sheet.FiscalYear, sheet.Entity(), decimal.NewFromInt(40), &date)
		return err
	})
	suite.Require().Nil(err)

	sheet = suite.reloadSheet(sheet)
	suite.Assert().True(decimal.NewFromInt(40).Equal(sheet.TotalConsumed))
	suite.Assert().True(decimal.NewFromInt(60).Equal(sheet.CurrentBalance()))
	suite.Assert().Equal(int64(1), sheet.Version)
	if suite.Assert().NotNil(sheet.LastTransactionDate) {
		suite.Assert().True(date.Equal(*sheet.LastTransactionDate))
	}

	// Reversal does not touch the date
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		_, err := models.ApplyDelta(tx, sheet.FiscalYear, sheet.Entity(), decimal.NewFromInt(-15), nil)
		return err
	})
	suite.Require().Nil(err)

	sheet = suite.reloadSheet(sheet)
	suite.Assert().True(decimal.NewFromInt(25).Equal(sheet.TotalConsumed))
	suite.Assert().True(date.Equal(*sheet.LastTransactionDate))
}

func (suite *TestSuiteStandard) TestApplyDeltaErrors() {
	sheet := suite.createTestBalanceSheet(models.BalanceSheet{AllocatedAmount: decimal.NewFromInt(10)})

	tests := []struct {
		name  string
		ref   models.EntityRef
		delta decimal.Decimal
		err   error
	}{
		{"No balance sheet", models.Project(uuid.New()), decimal.NewFromInt(1), models.ErrResourceNotFound},
		{"Overdraw", sheet.Entity(), decimal.NewFromInt(11), models.ErrInsufficientBalance},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			err := models.DB.Transaction(func(tx *gorm.DB) error {
				_, err := models.ApplyDelta(tx, sheet.FiscalYear, tt.ref, tt.delta, nil)
				return err
			})
			suite.Assert().ErrorIs(err, tt.err)
		})
	}

	sheet = suite.reloadSheet(sheet)
	suite.Assert().True(sheet.TotalConsumed.IsZero())
	suite.Assert().Equal(int64(0), sheet.Version)
}

// TestApplyDeltaStaleVersion verifies that a write based on an outdated
// read of the balance sheet is rejected.
func (suite *TestSuiteStandard) TestApplyDeltaStaleVersion() {
	sheet := suite.createTestBalanceSheet(models.BalanceSheet{AllocatedAmount: decimal.NewFromInt(100)})
	stale := suite.reloadSheet(sheet)

	err := models.DB.Transaction(func(tx *gorm.DB) error {
		_, err := models.ApplyDelta(tx, sheet.FiscalYear, sheet.Entity(), decimal.NewFromInt(10), nil)
		return err
	})
	suite.Require().Nil(err)

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		return stale.ApplyDelta(tx, decimal.NewFromInt(10), nil)
	})
	suite.Assert().ErrorIs(err, models.ErrConcurrencyConflict)

	sheet = suite.reloadSheet(sheet)
	suite.Assert().True(decimal.NewFromInt(10).Equal(sheet.TotalConsumed), "Consumption is %s", sheet.TotalConsumed)
}

func (suite *TestSuiteStandard) TestUpsertAllocation() {
	ref := models.Parish(uuid.New())

	err := models.DB.Transaction(func(tx *gorm.DB) error {
		_, err := models.UpsertAllocation(tx, 2024, ref, decimal.NewFromInt(500))
		return err
	})
	suite.Require().Nil(err)

	sheet, err := models.GetBalanceSheet(models.DB, 2024, ref)
	suite.Require().Nil(err)
	suite.Assert().True(decimal.NewFromInt(500).Equal(sheet.AllocatedAmount))

	// Consume and set opening balance, both must survive the next upsert
	suite.Require().Nil(models.DB.Model(&sheet).Updates(map[string]any{"opening_balance": decimal.NewFromInt(20), "total_consumed": decimal.NewFromInt(300)}).Error)

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		_, err := models.UpsertAllocation(tx, 2024, ref, decimal.NewFromInt(400))
		return err
	})
	suite.Require().Nil(err)

	sheet = suite.reloadSheet(sheet)
	suite.Assert().True(decimal.NewFromInt(400).Equal(sheet.AllocatedAmount))
	suite.Assert().True(decimal.NewFromInt(20).Equal(sheet.OpeningBalance))
	suite.Assert().True(decimal.NewFromInt(300).Equal(sheet.TotalConsumed))

	// Below consumption
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		_, err := models.UpsertAllocation(tx, 2024, ref, decimal.NewFromInt(100))
		return err
	})
	suite.Assert().ErrorIs(err, models.ErrValidation)

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		_, err := models.UpsertAllocation(tx, 2024, ref, decimal.NewFromInt(-1))
		return err
	})
	suite.Assert().ErrorIs(err, models.ErrValidation)
}

// TestRolloverYear verifies that the closing balance of a year is carried over
// and that a second rollover does not create duplicates.
func (suite *TestSuiteStandard) TestRolloverYear() {
	sheet := suite.createTestBalanceSheet(models.BalanceSheet{
		FiscalYear:      2024,
		EntityType:      models.EntityCommunity,
		OpeningBalance:  decimal.NewFromInt(10),
		AllocatedAmount: decimal.NewFromInt(50),
		TotalConsumed:   decimal.NewFromInt(30),
	})

	// A project must not be rolled over when only communities are
	project := suite.createTestBalanceSheet(models.BalanceSheet{
		FiscalYear:      2024,
		EntityType:      models.EntityProject,
		AllocatedAmount: decimal.NewFromInt(70),
	})

	for i := 0; i < 2; i++ {
		targets, err := models.RolloverYear(models.DB, 2024, models.EntityCommunity)
		suite.Require().Nil(err)
		suite.Require().Len(targets, 1)
	}

	var next []models.BalanceSheet
	suite.Require().Nil(models.DB.Where("fiscal_year = ?", 2025).Find(&next).Error)
	suite.Require().Len(next, 1)

	suite.Assert().Equal(sheet.EntityID, next[0].EntityID)
	suite.Assert().True(decimal.NewFromInt(30).Equal(next[0].OpeningBalance), "Opening balance is %s", next[0].OpeningBalance)
	suite.Assert().True(next[0].AllocatedAmount.IsZero())
	suite.Assert().True(next[0].TotalConsumed.IsZero())

	_, err := models.GetBalanceSheet(models.DB, 2025, project.Entity())
	suite.Assert().ErrorIs(err, models.ErrResourceNotFound)
}

// TestRolloverYearKeepsNextYear verifies that a rollover after the next year
// has started only changes its opening balance.
func (suite *TestSuiteStandard) TestRolloverYearKeepsNextYear() {
	sheet := suite.createTestBalanceSheet(models.BalanceSheet{
		FiscalYear:      2024,
		AllocatedAmount: decimal.NewFromInt(80),
	})

	suite.createTestBalanceSheet(models.BalanceSheet{
		FiscalYear:      2025,
		EntityType:      sheet.EntityType,
		EntityID:        sheet.EntityID,
		AllocatedAmount: decimal.NewFromInt(200),
		TotalConsumed:   decimal.NewFromInt(15),
	})

	_, err := models.RolloverYear(models.DB, 2024, "")
	suite.Require().Nil(err)

	next, err := models.GetBalanceSheet(models.DB, 2025, sheet.Entity())
	suite.Require().Nil(err)
	suite.Assert().True(decimal.NewFromInt(80).Equal(next.OpeningBalance))
	suite.Assert().True(decimal.NewFromInt(200).Equal(next.AllocatedAmount))
	suite.Assert().True(decimal.NewFromInt(15).Equal(next.TotalConsumed))
	suite.Assert().True(decimal.NewFromInt(265).Equal(next.CurrentBalance()))
}

// TestRolloverYearConsumedNextYear verifies that a rollover is rejected when the
// lower opening balance would not cover what the next year has consumed already.
func (suite *TestSuiteStandard) TestRolloverYearConsumedNextYear() {
	sheet := suite.createTestBalanceSheet(models.BalanceSheet{
		FiscalYear:      2024,
		AllocatedAmount: decimal.NewFromInt(60),
	})

	_, err := models.RolloverYear(models.DB, 2024, models.EntityCommunity)
	suite.Require().Nil(err)

	next := suite.reloadSheet(models.BalanceSheet{FiscalYear: 2025, EntityType: sheet.EntityType, EntityID: sheet.EntityID})
	suite.createTestTransaction(communityInput(next, 50))
	suite.createTestTransaction(communityInput(sheet, 30))

	// Not rolled over either when the run fails
	other := suite.createTestBalanceSheet(models.BalanceSheet{
		FiscalYear:      2024,
		AllocatedAmount: decimal.NewFromInt(5),
	})

	_, err = models.RolloverYear(models.DB, 2024, models.EntityCommunity)
	suite.Assert().ErrorIs(err, models.ErrInsufficientBalance)

	next = suite.reloadSheet(next)
	suite.Assert().True(decimal.NewFromInt(60).Equal(next.OpeningBalance), "Opening balance is %s", next.OpeningBalance)
	suite.Assert().True(decimal.NewFromInt(50).Equal(next.TotalConsumed))
	suite.Assert().True(decimal.NewFromInt(10).Equal(next.CurrentBalance()))

	_, err = models.GetBalanceSheet(models.DB, 2025, other.Entity())
	suite.Assert().ErrorIs(err, models.ErrResourceNotFound)

	// With an allocation covering the consumption, the rollover succeeds
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		_, err := models.UpsertAllocation(tx, 2025, next.Entity(), decimal.NewFromInt(40))
		return err
	})
	suite.Require().Nil(err)

	_, err = models.RolloverYear(models.DB, 2024, models.EntityCommunity)
	suite.Require().Nil(err)

	next = suite.reloadSheet(next)
	suite.Assert().True(decimal.NewFromInt(30).Equal(next.OpeningBalance))
	suite.Assert().True(decimal.NewFromInt(20).Equal(next.CurrentBalance()), "Current balance is %s", next.CurrentBalance())
}

func (suite *TestSuiteStandard) TestRolloverYearInvalid() {
	_, err := models.RolloverYear(models.DB, 0, models.EntityCommunity)
	suite.Assert().ErrorIs(err, models.ErrValidation)

	_, err = models.RolloverYear(models.DB, 2024, "congregation")
	suite.Assert().ErrorIs(err, models.ErrValidation)
}

func (suite *TestSuiteStandard) TestListBalanceSheets() {
	suite.createTestBalanceSheet(models.BalanceSheet{FiscalYear: 2024, EntityType: models.EntityCommunity})
	suite.createTestBalanceSheet(models.BalanceSheet{FiscalYear: 2024, EntityType: models.EntityParish})
	suite.createTestBalanceSheet(models.BalanceSheet{FiscalYear: 2025, EntityType: models.EntityParish})

	tests := []struct {
		name       string
		year       types.FiscalYear
		entityType models.EntityType
		count      int
	}{
		{"All", 0, "", 3},
		{"Year", 2024, "", 2},
		{"Type", 0, models.EntityParish, 2},
		{"Year and type", 2025, models.EntityParish, 1},
		{"None", 2030, "", 0},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			sheets, err := models.ListBalanceSheets(models.DB, tt.year, tt.entityType)
			suite.Require().Nil(err)
			suite.Assert().Len(sheets, tt.count)
		})
	}
}

func (suite *TestSuiteStandard) TestMonthlyBreakdown() {
	sheet := suite.createTestBalanceSheet(models.BalanceSheet{AllocatedAmount: decimal.NewFromInt(1000)})

	for _, tt := range []struct {
		month  int
		amount int64
	}{{0, 10}, {0, 20}, {2, 5}, {10, 7}} {
		in := communityInput(sheet, tt.amount)
		in.Date = fiscalDate(sheet.FiscalYear, tt.month)
		suite.createTestTransaction(in)
	}

	// Pending transactions are not part of the breakdown
	pending := communityInput(sheet, 100)
	pending.Pending = true
	suite.createTestTransaction(pending)

	breakdown, err := sheet.MonthlyBreakdown(models.DB)
	suite.Require().Nil(err)
	suite.Require().Len(breakdown, 3)

	suite.Assert().Equal(types.NewMonth(2024, time.April), breakdown[0].Month)
	suite.Assert().True(decimal.NewFromInt(30).Equal(breakdown[0].Total))
	suite.Assert().Equal(2, breakdown[0].Count)

	suite.Assert().Equal(types.NewMonth(2024, time.June), breakdown[1].Month)
	suite.Assert().Equal(types.NewMonth(2025, time.February), breakdown[2].Month)
	suite.Assert().Equal(types.FiscalYear(2024), breakdown[2].Month.FiscalYear())
}

func (suite *TestSuiteStandard) TestBalanceSheetDatabaseError() {
	suite.CloseDB()

	_, err := models.GetBalance(models.DB, 2024, models.Community(uuid.New()))
	suite.Assert().ErrorIs(err, models.ErrGeneral)
}
