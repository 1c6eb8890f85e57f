package models_test

import (
	"sync"

	"github.com/google/uuid"
	"github.com/parish-ledger/backend/internal/models"
	"github.com/parish-ledger/backend/internal/types"
	"github.com/shopspring/decimal"
)

// TestTransactionScenario walks through the commit protocol for an entity
// with 150 available.
func (suite *TestSuiteStandard) TestTransactionScenario() {
	sheet := suite.createTestBalanceSheet(models.BalanceSheet{
		FiscalYear:      2024,
		OpeningBalance:  decimal.NewFromInt(100),
		AllocatedAmount: decimal.NewFromInt(50),
	})

	_, err := models.CreateTransaction(models.DB, communityInput(sheet, 200))
	suite.Assert().ErrorIs(err, models.ErrInsufficientBalance)

	// A failed commit has no effect
	unchanged := suite.reloadSheet(sheet)
	suite.Assert().True(unchanged.TotalConsumed.IsZero())
	suite.Assert().Equal(sheet.Version, unchanged.Version)

	transaction, err := models.CreateTransaction(models.DB, communityInput(sheet, 100))
	suite.Require().Nil(err)
	suite.Assert().Equal(models.StatusCompleted, transaction.Status)
	suite.Assert().True(transaction.Posted)
	suite.Assert().True(decimal.NewFromInt(150).Equal(transaction.BalanceBefore), "Balance before is %s", transaction.BalanceBefore)
	suite.Assert().True(decimal.NewFromInt(50).Equal(transaction.BalanceAfter), "Balance after is %s", transaction.BalanceAfter)

	sheet = suite.reloadSheet(sheet)
	suite.Assert().True(decimal.NewFromInt(100).Equal(sheet.TotalConsumed))
	suite.Assert().True(decimal.NewFromInt(50).Equal(sheet.CurrentBalance()))
	suite.Assert().NotNil(sheet.LastTransactionDate)

	_, err = models.CreateTransaction(models.DB, communityInput(sheet, 60))
	suite.Assert().ErrorIs(err, models.ErrInsufficientBalance)
}

func (suite *TestSuiteStandard) TestCreateTransactionErrors() {
	sheet := suite.createTestBalanceSheet(models.BalanceSheet{AllocatedAmount: decimal.NewFromInt(100)})
	otherID := uuid.New()

	tests := []struct {
		name  string
		input func() models.TransactionInput
		err   error
	}{
		{
			"No allocation",
			func() models.TransactionInput {
				in := communityInput(sheet, 10)
				in.CommunityID = &otherID
				return in
			},
			models.ErrNoAllocation,
		},
		{
			"No allocation in other fiscal year",
			func() models.TransactionInput {
				in := communityInput(sheet, 10)
				in.FiscalYear = sheet.FiscalYear.Next()
				return in
			},
			models.ErrNoAllocation,
		},
		{
			"Zero amount",
			func() models.TransactionInput { return communityInput(sheet, 0) },
			models.ErrInvalidAmount,
		},
		{
			"Negative amount",
			func() models.TransactionInput { return communityInput(sheet, -5) },
			models.ErrInvalidAmount,
		},
		{
			"Wrong entity field",
			func() models.TransactionInput {
				in := communityInput(sheet, 10)
				in.FundID = &otherID
				return in
			},
			models.ErrValidation,
		},
		{
			"Missing entity field",
			func() models.TransactionInput {
				in := communityInput(sheet, 10)
				in.CommunityID = nil
				return in
			},
			models.ErrValidation,
		},
		{
			"Invalid transaction type",
			func() models.TransactionInput {
				in := communityInput(sheet, 10)
				in.Type = "tithe"
				return in
			},
			models.ErrValidation,
		},
		{
			"No voucher",
			func() models.TransactionInput {
				in := communityInput(sheet, 10)
				in.VoucherNo = "  "
				return in
			},
			models.ErrValidation,
		},
		{
			"Bank payment without number",
			func() models.TransactionInput {
				in := communityInput(sheet, 10)
				in.PaymentMethod = models.PaymentBank
				return in
			},
			models.ErrValidation,
		},
		{
			"Invalid payment method",
			func() models.TransactionInput {
				in := communityInput(sheet, 10)
				in.PaymentMethod = "cheque"
				return in
			},
			models.ErrValidation,
		},
		{
			"Other project type on community",
			func() models.TransactionInput {
				in := communityInput(sheet, 10)
				in.OtherProjectType = models.OtherProjectOthers
				return in
			},
			models.ErrValidation,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			_, err := models.CreateTransaction(models.DB, tt.input())
			suite.Assert().ErrorIs(err, tt.err)
		})
	}

	sheet = suite.reloadSheet(sheet)
	suite.Assert().True(sheet.TotalConsumed.IsZero())
}

func (suite *TestSuiteStandard) TestCreateTransactionOtherTypes() {
	project := suite.createTestBalanceSheet(models.BalanceSheet{EntityType: models.EntityProject, AllocatedAmount: decimal.NewFromInt(100)})
	parish := suite.createTestBalanceSheet(models.BalanceSheet{EntityType: models.EntityParish, AllocatedAmount: decimal.NewFromInt(100)})
	family := uuid.New()

	// Other projects need a receiver
	in := models.TransactionInput{
		VoucherNo:  "OP-1",
		FiscalYear: project.FiscalYear,
		Date:       fiscalDate(project.FiscalYear, 1),
		Type:       models.TransactionTypeOtherProject,
		EntityIDs:  models.EntityIDs{FundID: &project.EntityID},
		Amount:     decimal.NewFromInt(25),
	}
	_, err := models.CreateTransaction(models.DB, in)
	suite.Assert().ErrorIs(err, models.ErrValidation)

	in.ReceiverName = "  St. Joseph Orphanage "
	transaction, err := models.CreateTransaction(models.DB, in)
	suite.Require().Nil(err)
	suite.Assert().Equal(models.OtherProjectOthers, transaction.OtherProjectType)
	suite.Assert().Equal("St. Joseph Orphanage", transaction.ReceiverName)
	suite.Assert().Equal(models.Project(project.EntityID), transaction.Entity())

	// Family transactions consume from the parish and need a family
	in = models.TransactionInput{
		VoucherNo: "FAM-1",
		Date:      fiscalDate(parish.FiscalYear, 11),
		Type:      models.TransactionTypeFamily,
		EntityIDs: models.EntityIDs{ParishID: &parish.EntityID},
		Amount:    decimal.NewFromInt(40),
	}
	_, err = models.CreateTransaction(models.DB, in)
	suite.Assert().ErrorIs(err, models.ErrValidation)

	in.FamilyID = &family
	transaction, err = models.CreateTransaction(models.DB, in)
	suite.Require().Nil(err)

	// The fiscal year is derived from the date
	suite.Assert().Equal(parish.FiscalYear, transaction.FiscalYear)
	suite.Assert().Equal(models.PaymentCash, transaction.PaymentMethod)
	suite.Assert().True(decimal.NewFromInt(60).Equal(suite.reloadSheet(parish).CurrentBalance()))
}

func (suite *TestSuiteStandard) TestCreateTransactionVoucherNotUnique() {
	sheet := suite.createTestBalanceSheet(models.BalanceSheet{AllocatedAmount: decimal.NewFromInt(100)})

	in := communityInput(sheet, 10)
	suite.createTestTransaction(in)

	again := communityInput(sheet, 10)
	again.VoucherNo = in.VoucherNo
	_, err := models.CreateTransaction(models.DB, again)
	suite.Assert().ErrorIs(err, models.ErrVoucherNotUnique)

	// The failed commit is rolled back completely
	suite.Assert().True(decimal.NewFromInt(10).Equal(suite.reloadSheet(sheet).TotalConsumed))
}

func (suite *TestSuiteStandard) TestCreateTransactionDuplicateActive() {
	sheet := suite.createTestBalanceSheet(models.BalanceSheet{AllocatedAmount: decimal.NewFromInt(100)})

	first := communityInput(sheet, 10)
	suite.createTestTransaction(first)

	second := communityInput(sheet, 10)
	second.BeneficiaryID = first.BeneficiaryID
	_, err := models.CreateTransaction(models.DB, second)
	suite.Assert().ErrorIs(err, models.ErrDuplicateActiveTransaction)

	// The next fiscal year is fine
	next := suite.createTestBalanceSheet(models.BalanceSheet{
		FiscalYear:      sheet.FiscalYear.Next(),
		EntityType:      sheet.EntityType,
		EntityID:        sheet.EntityID,
		AllocatedAmount: decimal.NewFromInt(100),
	})
	third := communityInput(next, 10)
	third.BeneficiaryID = first.BeneficiaryID
	suite.createTestTransaction(third)

	// Transactions without beneficiary are not restricted
	for i := 0; i < 2; i++ {
		in := communityInput(sheet, 5)
		in.BeneficiaryID = nil
		suite.createTestTransaction(in)
	}
}

// TestActiveBeneficiaryIndex verifies that the database rejects a second active
// transaction for a person even when the check before the commit is skipped.
func (suite *TestSuiteStandard) TestActiveBeneficiaryIndex() {
	beneficiary := uuid.New()
	transaction := func(status models.TransactionStatus) *models.Transaction {
		return &models.Transaction{
			VoucherNo:     uuid.NewString(),
			FiscalYear:    2024,
			Date:          fiscalDate(2024, 1),
			Type:          models.TransactionTypeCommunity,
			EntityType:    models.EntityCommunity,
			EntityID:      uuid.New(),
			Amount:        decimal.NewFromInt(10),
			BeneficiaryID: &beneficiary,
			Status:        status,
		}
	}

	suite.Require().Nil(models.DB.Create(transaction(models.StatusActive)).Error)

	err := models.DB.Create(transaction(models.StatusCompleted)).Error
	suite.Assert().ErrorIs(err, models.ErrDuplicateActiveTransaction)

	// Other statuses are not restricted
	suite.Assert().Nil(models.DB.Create(transaction(models.StatusCancelled)).Error)
	suite.Assert().Nil(models.DB.Create(transaction(models.StatusTransferred)).Error)

	next := transaction(models.StatusActive)
	next.FiscalYear = 2025
	suite.Assert().Nil(models.DB.Create(next).Error)
}

// TestCreateTransactionConcurrentBeneficiary verifies that concurrent commits for
// the same person against different balance sheets result in one transaction.
func (suite *TestSuiteStandard) TestCreateTransactionConcurrentBeneficiary() {
	beneficiary := uuid.New()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		in := communityInput(suite.createTestBalanceSheet(models.BalanceSheet{AllocatedAmount: decimal.NewFromInt(100)}), 10)
		in.BeneficiaryID = &beneficiary

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = models.CreateTransaction(models.DB, in)
		}(i)
	}
	wg.Wait()

	var successes int
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		suite.Assert().ErrorIs(err, models.ErrDuplicateActiveTransaction)
	}

	suite.Assert().Equal(1, successes)
}

// TestCreateTransactionConcurrent verifies that concurrent commits against the
// same balance sheet cannot overdraw it.
func (suite *TestSuiteStandard) TestCreateTransactionConcurrent() {
	sheet := suite.createTestBalanceSheet(models.BalanceSheet{AllocatedAmount: decimal.NewFromInt(100)})

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = models.CreateTransaction(models.DB, communityInput(sheet, 30))
		}(i)
	}
	wg.Wait()

	var successes int
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		suite.Assert().ErrorIs(err, models.ErrInsufficientBalance)
	}

	suite.Assert().Equal(3, successes)

	sheet = suite.reloadSheet(sheet)
	suite.Assert().True(decimal.NewFromInt(90).Equal(sheet.TotalConsumed), "Consumption is %s", sheet.TotalConsumed)
	suite.Assert().False(sheet.CurrentBalance().IsNegative())
}

func (suite *TestSuiteStandard) TestPendingTransaction() {
	sheet := suite.createTestBalanceSheet(models.BalanceSheet{AllocatedAmount: decimal.NewFromInt(100)})

	in := communityInput(sheet, 50)
	in.Pending = true
	pending := suite.createTestTransaction(in)
	suite.Assert().Equal(models.StatusPending, pending.Status)
	suite.Assert().False(pending.Posted)
	suite.Assert().True(suite.reloadSheet(sheet).TotalConsumed.IsZero())

	// A pending transaction does not block the beneficiary
	other := communityInput(sheet, 40)
	other.BeneficiaryID = in.BeneficiaryID
	_, err := models.CreateTransaction(models.DB, other)
	suite.Require().Nil(err)

	// Now the beneficiary has a completed transaction, completion must fail
	_, err = models.CompleteTransaction(models.DB, pending.ID)
	suite.Assert().ErrorIs(err, models.ErrDuplicateActiveTransaction)

	in = communityInput(sheet, 50)
	in.Pending = true
	pending = suite.createTestTransaction(in)

	completed, err := models.CompleteTransaction(models.DB, pending.ID)
	suite.Require().Nil(err)
	suite.Assert().Equal(models.StatusCompleted, completed.Status)
	suite.Assert().True(decimal.NewFromInt(60).Equal(completed.BalanceBefore))
	suite.Assert().True(decimal.NewFromInt(10).Equal(completed.BalanceAfter))
	suite.Assert().True(decimal.NewFromInt(90).Equal(suite.reloadSheet(sheet).TotalConsumed))

	_, err = models.CompleteTransaction(models.DB, pending.ID)
	suite.Assert().ErrorIs(err, models.ErrInvalidState)

	in = communityInput(sheet, 0)
	in.Pending = true
	_, err = models.CreateTransaction(models.DB, in)
	suite.Assert().ErrorIs(err, models.ErrInvalidAmount)
}

func (suite *TestSuiteStandard) TestUpdateTransaction() {
	sheet := suite.createTestBalanceSheet(models.BalanceSheet{AllocatedAmount: decimal.NewFromInt(100)})
	transaction := suite.createTestTransaction(communityInput(sheet, 60))

	// The old amount is given back before the new one is validated
	amount := decimal.NewFromInt(90)
	description := "Christmas donation"
	updated, err := models.UpdateTransaction(models.DB, transaction.ID, models.TransactionUpdate{Amount: &amount, Description: &description})
	suite.Require().Nil(err)
	suite.Assert().True(amount.Equal(updated.Amount))
	suite.Assert().True(decimal.NewFromInt(100).Equal(updated.BalanceBefore), "Balance before is %s", updated.BalanceBefore)
	suite.Assert().True(decimal.NewFromInt(10).Equal(updated.BalanceAfter))
	suite.Assert().Equal(description, updated.Description)

	sheet = suite.reloadSheet(sheet)
	suite.Assert().True(decimal.NewFromInt(90).Equal(sheet.TotalConsumed))

	// Too much
	amount = decimal.NewFromInt(101)
	_, err = models.UpdateTransaction(models.DB, transaction.ID, models.TransactionUpdate{Amount: &amount})
	suite.Assert().ErrorIs(err, models.ErrInsufficientBalance)
	suite.Assert().True(decimal.NewFromInt(90).Equal(suite.reloadSheet(sheet).TotalConsumed))

	amount = decimal.Zero
	_, err = models.UpdateTransaction(models.DB, transaction.ID, models.TransactionUpdate{Amount: &amount})
	suite.Assert().ErrorIs(err, models.ErrInvalidAmount)

	method := models.PaymentBank
	_, err = models.UpdateTransaction(models.DB, transaction.ID, models.TransactionUpdate{PaymentMethod: &method})
	suite.Assert().ErrorIs(err, models.ErrValidation)

	number := "UTR-88213"
	updated, err = models.UpdateTransaction(models.DB, transaction.ID, models.TransactionUpdate{PaymentMethod: &method, TransactionNumber: &number})
	suite.Require().Nil(err)
	suite.Assert().Equal(models.PaymentBank, updated.PaymentMethod)
	suite.Assert().True(decimal.NewFromInt(90).Equal(updated.Amount))

	_, err = models.UpdateTransaction(models.DB, uuid.New(), models.TransactionUpdate{})
	suite.Assert().ErrorIs(err, models.ErrResourceNotFound)
}

// TestUpdateTransactionDate verifies that a new date is stamped on the balance
// sheet without changing its consumption.
func (suite *TestSuiteStandard) TestUpdateTransactionDate() {
	sheet := suite.createTestBalanceSheet(models.BalanceSheet{AllocatedAmount: decimal.NewFromInt(100)})
	transaction := suite.createTestTransaction(communityInput(sheet, 60))
	before := suite.reloadSheet(sheet)

	date := fiscalDate(sheet.FiscalYear, 5)
	updated, err := models.UpdateTransaction(models.DB, transaction.ID, models.TransactionUpdate{Date: &date})
	suite.Require().Nil(err)
	suite.Assert().True(date.Equal(updated.Date))

	sheet = suite.reloadSheet(sheet)
	suite.Require().NotNil(sheet.LastTransactionDate)
	suite.Assert().True(date.Equal(*sheet.LastTransactionDate), "Last transaction date is %s", sheet.LastTransactionDate)
	suite.Assert().True(decimal.NewFromInt(60).Equal(sheet.TotalConsumed))
	suite.Assert().Equal(before.Version+1, sheet.Version)

	breakdown, err := sheet.MonthlyBreakdown(models.DB)
	suite.Require().Nil(err)
	suite.Require().Len(breakdown, 1)
	suite.Assert().Equal(types.MonthOf(date), breakdown[0].Month)

	// Pending transactions are not on the balance sheet
	in := communityInput(sheet, 10)
	in.Pending = true
	pending := suite.createTestTransaction(in)

	date = fiscalDate(sheet.FiscalYear, 7)
	_, err = models.UpdateTransaction(models.DB, pending.ID, models.TransactionUpdate{Date: &date})
	suite.Require().Nil(err)
	suite.Assert().Equal(sheet.Version, suite.reloadSheet(sheet).Version)
}

func (suite *TestSuiteStandard) TestDeleteTransaction() {
	sheet := suite.createTestBalanceSheet(models.BalanceSheet{AllocatedAmount: decimal.NewFromInt(100)})
	first := suite.createTestTransaction(communityInput(sheet, 30))
	second := suite.createTestTransaction(communityInput(sheet, 45))

	suite.Require().Nil(models.DeleteTransaction(models.DB, first.ID))

	sheet = suite.reloadSheet(sheet)
	suite.Assert().True(decimal.NewFromInt(45).Equal(sheet.TotalConsumed), "Consumption is %s", sheet.TotalConsumed)
	suite.Assert().True(decimal.NewFromInt(55).Equal(sheet.CurrentBalance()))

	_, err := models.GetTransaction(models.DB, first.ID)
	suite.Assert().ErrorIs(err, models.ErrResourceNotFound)

	err = models.DeleteTransaction(models.DB, first.ID)
	suite.Assert().ErrorIs(err, models.ErrResourceNotFound)

	// The voucher number of the deleted transaction stays reserved
	in := communityInput(sheet, 5)
	in.VoucherNo = first.VoucherNo
	_, err = models.CreateTransaction(models.DB, in)
	suite.Assert().ErrorIs(err, models.ErrVoucherNotUnique)

	suite.Require().Nil(models.DeleteTransaction(models.DB, second.ID))
	suite.Assert().True(suite.reloadSheet(sheet).TotalConsumed.IsZero())
}

func (suite *TestSuiteStandard) TestCancelTransaction() {
	sheet := suite.createTestBalanceSheet(models.BalanceSheet{AllocatedAmount: decimal.NewFromInt(100)})
	in := communityInput(sheet, 80)
	transaction := suite.createTestTransaction(in)

	cancelled, err := models.CancelTransaction(models.DB, transaction.ID)
	suite.Require().Nil(err)
	suite.Assert().Equal(models.StatusCancelled, cancelled.Status)
	suite.Assert().False(cancelled.Posted)
	suite.Assert().True(suite.reloadSheet(sheet).TotalConsumed.IsZero())

	_, err = models.CancelTransaction(models.DB, transaction.ID)
	suite.Assert().ErrorIs(err, models.ErrInvalidState)

	amount := decimal.NewFromInt(10)
	_, err = models.UpdateTransaction(models.DB, transaction.ID, models.TransactionUpdate{Amount: &amount})
	suite.Assert().ErrorIs(err, models.ErrInvalidState)

	// The beneficiary is free for a new transaction
	again := communityInput(sheet, 20)
	again.BeneficiaryID = in.BeneficiaryID
	suite.createTestTransaction(again)

	// Deleting a cancelled transaction does not give the amount back twice
	suite.Require().Nil(models.DeleteTransaction(models.DB, transaction.ID))
	suite.Assert().True(decimal.NewFromInt(20).Equal(suite.reloadSheet(sheet).TotalConsumed))
}

// TestConsumptionLaw verifies that the consumption is the sum of all
// transactions that are still posted.
func (suite *TestSuiteStandard) TestConsumptionLaw() {
	sheet := suite.createTestBalanceSheet(models.BalanceSheet{OpeningBalance: decimal.NewFromInt(7), AllocatedAmount: decimal.NewFromInt(1000)})

	var ids []uuid.UUID
	for _, a := range []int64{11, 23, 58, 102, 5} {
		ids = append(ids, suite.createTestTransaction(communityInput(sheet, a)).ID)
	}

	suite.Require().Nil(models.DeleteTransaction(models.DB, ids[1]))
	_, err := models.CancelTransaction(models.DB, ids[3])
	suite.Require().Nil(err)

	amount := decimal.NewFromInt(8)
	_, err = models.UpdateTransaction(models.DB, ids[4], models.TransactionUpdate{Amount: &amount})
	suite.Require().Nil(err)

	var posted []models.Transaction
	suite.Require().Nil(models.DB.Where("posted = ?", true).Find(&posted).Error)

	sum := decimal.Zero
	for _, t := range posted {
		sum = sum.Add(t.Amount)
	}

	sheet = suite.reloadSheet(sheet)
	suite.Assert().True(decimal.NewFromInt(77).Equal(sum), "Sum is %s", sum)
	suite.Assert().True(sum.Equal(sheet.TotalConsumed), "Consumption is %s", sheet.TotalConsumed)
	suite.Assert().True(sheet.OpeningBalance.Add(sheet.AllocatedAmount).Sub(sheet.TotalConsumed).Equal(sheet.CurrentBalance()))
}

func (suite *TestSuiteStandard) TestTransactionDatabaseError() {
	suite.CloseDB()

	_, err := models.GetTransaction(models.DB, uuid.New())
	suite.Assert().ErrorIs(err, models.ErrGeneral)

	err = models.DeleteTransaction(models.DB, uuid.New())
	suite.Assert().ErrorIs(err, models.ErrGeneral)
}
