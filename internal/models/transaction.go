package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parish-ledger/backend/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// swagger:enum TransactionStatus
type TransactionStatus string

const (
	StatusActive      TransactionStatus = "active"
	StatusCompleted   TransactionStatus = "completed"
	StatusTransferred TransactionStatus = "transferred"
	StatusRestored    TransactionStatus = "restored"
	StatusCancelled   TransactionStatus = "cancelled"
	StatusPending     TransactionStatus = "pending"
)

// activeStatuses are the statuses of which a beneficiary may only have one
// transaction per fiscal year.
var activeStatuses = []TransactionStatus{StatusActive, StatusCompleted}

func (s TransactionStatus) Active() bool {
	return slices.Contains(activeStatuses, s)
}

// swagger:enum PaymentMethod
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentBank PaymentMethod = "bank"
)

// swagger:enum OtherProjectType
type OtherProjectType string

const (
	OtherProjectParish OtherProjectType = "parish"
	OtherProjectOthers OtherProjectType = "others"
)

// Transaction is a disbursement or tithe booked against the balance sheet of an entity.
type Transaction struct {
	DefaultModel
	VoucherNo         string           `gorm:"uniqueIndex"`
	FiscalYear        types.FiscalYear `gorm:"index:idx_transaction_beneficiary,priority:2"`
	Date              time.Time
	Type              TransactionType
	EntityType        EntityType
	EntityID          uuid.UUID
	FamilyID          *uuid.UUID
	Amount            decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
	Description       string
	PaymentMethod     PaymentMethod
	TransactionNumber string
	OtherProjectType  OtherProjectType
	ReceiverName      string
	BeneficiaryID     *uuid.UUID      `gorm:"index:idx_transaction_beneficiary,priority:1"`
	BalanceBefore     decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
	BalanceAfter      decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
	Status            TransactionStatus

	// Posted is true while the amount is counted in the consumption of the balance sheet
	Posted bool

	IsTransferred     bool
	TransferReason    string
	TransferDate      *time.Time
	OriginalPersonID  *uuid.UUID
	PreTransferStatus TransactionStatus

	// Spawned is true for transactions created by a transfer. They never
	// consume from the balance sheet.
	Spawned bool `gorm:"not null;default:false"`

	TransferHistory []TransferRecord `gorm:"foreignKey:TransactionID"`
}

func (t Transaction) Entity() EntityRef {
	return EntityRef{Type: t.EntityType, ID: t.EntityID}
}

func (t *Transaction) BeforeSave(_ *gorm.DB) error {
	t.VoucherNo = strings.TrimSpace(t.VoucherNo)
	t.Description = strings.TrimSpace(t.Description)
	t.ReceiverName = strings.TrimSpace(t.ReceiverName)
	t.TransactionNumber = strings.TrimSpace(t.TransactionNumber)
	t.Date = t.Date.In(time.UTC)

	return nil
}

// validate checks the fields that do not depend on other resources.
func (t *Transaction) validate() error {
	if strings.TrimSpace(t.VoucherNo) == "" {
		return fmt.Errorf("%w: the voucher number must be set", ErrValidation)
	}

	if t.FiscalYear.IsZero() {
		return fmt.Errorf("%w: the fiscal year must be set", ErrValidation)
	}

	if t.Date.IsZero() {
		return fmt.Errorf("%w: the date must be set", ErrValidation)
	}

	if t.PaymentMethod == "" {
		t.PaymentMethod = PaymentCash
	}

	if !slices.Contains([]PaymentMethod{PaymentCash, PaymentBank}, t.PaymentMethod) {
		return fmt.Errorf("%w: '%s' is not a valid payment method", ErrValidation, t.PaymentMethod)
	}

	if t.PaymentMethod == PaymentBank && strings.TrimSpace(t.TransactionNumber) == "" {
		return fmt.Errorf("%w: bank payments need a transaction number", ErrValidation)
	}

	switch t.Type {
	case TransactionTypeOtherProject:
		if t.OtherProjectType == "" {
			t.OtherProjectType = OtherProjectOthers
		}

		if !slices.Contains([]OtherProjectType{OtherProjectParish, OtherProjectOthers}, t.OtherProjectType) {
			return fmt.Errorf("%w: '%s' is not a valid type of other project", ErrValidation, t.OtherProjectType)
		}

		if t.OtherProjectType == OtherProjectOthers && strings.TrimSpace(t.ReceiverName) == "" {
			return fmt.Errorf("%w: the receiver name must be set for other projects", ErrValidation)
		}
	case TransactionTypeFamily:
		if t.FamilyID == nil || *t.FamilyID == uuid.Nil {
			return fmt.Errorf("%w: family transactions must reference a family", ErrValidation)
		}
		fallthrough
	default:
		if t.OtherProjectType != "" {
			return fmt.Errorf("%w: only other project transactions have an other project type", ErrValidation)
		}
	}

	return nil
}

// TransactionInput is the data needed to create a transaction.
type TransactionInput struct {
	VoucherNo  string
	FiscalYear types.FiscalYear
	Date       time.Time
	Type       TransactionType
	EntityIDs
	FamilyID          *uuid.UUID
	Amount            decimal.Decimal
	Description       string
	PaymentMethod     PaymentMethod
	TransactionNumber string
	OtherProjectType  OtherProjectType
	ReceiverName      string
	BeneficiaryID     *uuid.UUID

	// Pending transactions are recorded without any effect on the balance
	// sheet until they are completed.
	Pending bool
}

func (in TransactionInput) transaction() (Transaction, error) {
	ref, err := in.EntityIDs.Resolve(in.Type)
	if err != nil {
		return Transaction{}, err
	}

	year := in.FiscalYear
	if year.IsZero() && !in.Date.IsZero() {
		year = types.FiscalYearOf(in.Date)
	}

	t := Transaction{
		VoucherNo:         in.VoucherNo,
		FiscalYear:        year,
		Date:              in.Date,
		Type:              in.Type,
		EntityType:        ref.Type,
		EntityID:          ref.ID,
		FamilyID:          in.FamilyID,
		Amount:            in.Amount,
		Description:       in.Description,
		PaymentMethod:     in.PaymentMethod,
		TransactionNumber: in.TransactionNumber,
		OtherProjectType:  in.OtherProjectType,
		ReceiverName:      in.ReceiverName,
		BeneficiaryID:     in.BeneficiaryID,
	}

	return t, t.validate()
}

// checkActiveBeneficiary fails if the beneficiary has an active or completed
// transaction in the fiscal year other than the excluded one.
func checkActiveBeneficiary(tx *gorm.DB, beneficiary *uuid.UUID, year types.FiscalYear, exclude uuid.UUID) error {
	if beneficiary == nil || *beneficiary == uuid.Nil {
		return nil
	}

	q := tx.Model(&Transaction{}).Where("beneficiary_id = ? AND fiscal_year = ? AND status IN ?", *beneficiary, year, activeStatuses)
	if exclude != uuid.Nil {
		q = q.Where("id <> ?", exclude)
	}

	var count int64
	err := q.Count(&count).Error
	if err != nil {
		return err
	}

	if count > 0 {
		return fmt.Errorf("%w: person %s in fiscal year %s", ErrDuplicateActiveTransaction, *beneficiary, year)
	}

	return nil
}

// lockForTransaction reads the balance sheet a transaction is booked against.
func lockForTransaction(tx *gorm.DB, t Transaction) (BalanceSheet, error) {
	sheet, err := lockBalanceSheet(tx, t.FiscalYear, t.Entity())
	if errors.Is(err, ErrResourceNotFound) {
		return BalanceSheet{}, fmt.Errorf("%w: %s in fiscal year %s", ErrNoAllocation, t.Entity(), t.FiscalYear)
	}

	return sheet, err
}

// post books the amount of an unposted transaction on its balance sheet.
//
// It must be called with a database transaction. The balance sheet is read
// and written in the same database transaction as the ledger entry, so
// no concurrent commit can observe the balance before the deduction.
func post(tx *gorm.DB, t *Transaction) error {
	sheet, err := lockForTransaction(tx, *t)
	if err != nil {
		return err
	}

	if !t.Amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, t.Amount)
	}

	available := sheet.CurrentBalance()
	if t.Amount.GreaterThan(available) {
		return fmt.Errorf("%w: %s available, %s requested", ErrInsufficientBalance, available, t.Amount)
	}

	err = checkActiveBeneficiary(tx, t.BeneficiaryID, t.FiscalYear, t.ID)
	if err != nil {
		return err
	}

	t.BalanceBefore = available
	t.BalanceAfter = available.Sub(t.Amount)
	t.Status = StatusCompleted
	t.Posted = true

	if t.ID == uuid.Nil {
		err = tx.Omit(clause.Associations).Create(t).Error
	} else {
		err = tx.Omit(clause.Associations).Save(t).Error
	}
	if err != nil {
		return err
	}

	return sheet.ApplyDelta(tx, t.Amount, &t.Date)
}

// reverse gives the amount of a posted transaction back to its balance sheet.
func reverse(tx *gorm.DB, t *Transaction) (BalanceSheet, error) {
	sheet, err := lockForTransaction(tx, *t)
	if err != nil {
		return BalanceSheet{}, err
	}

	err = sheet.ApplyDelta(tx, t.Amount.Neg(), nil)
	if err != nil {
		return BalanceSheet{}, err
	}

	t.Posted = false
	return sheet, nil
}

// CreateTransaction records a transaction and deducts its amount from the
// balance of the entity it is booked against.
func CreateTransaction(db *gorm.DB, in TransactionInput) (Transaction, error) {
	t, err := in.transaction()
	if err != nil {
		return Transaction{}, err
	}

	err = runTransaction(db, func(tx *gorm.DB) error {
		if !in.Pending {
			return post(tx, &t)
		}

		if !t.Amount.IsPositive() {
			return fmt.Errorf("%w: %s", ErrInvalidAmount, t.Amount)
		}

		t.Status = StatusPending
		return tx.Omit(clause.Associations).Create(&t).Error
	})
	if err != nil {
		log.Debug().Err(err).Str("voucherNo", t.VoucherNo).Str("entity", t.Entity().String()).Msg("transaction rejected")
		return Transaction{}, err
	}

	log.Debug().Str("voucherNo", t.VoucherNo).Str("entity", t.Entity().String()).Str("amount", t.Amount.String()).Str("status", string(t.Status)).Msg("transaction recorded")
	return t, nil
}

// GetTransaction returns a transaction with its transfer history.
func GetTransaction(db *gorm.DB, id uuid.UUID) (Transaction, error) {
	var t Transaction
	err := db.Preload("TransferHistory", func(db *gorm.DB) *gorm.DB {
		return db.Order("sequence ASC")
	}).Where("id = ?", id).First(&t).Error

	return t, err
}

// TransactionUpdate contains the fields to update. Nil fields are not changed.
type TransactionUpdate struct {
	VoucherNo         *string
	Date              *time.Time
	Amount            *decimal.Decimal
	Description       *string
	PaymentMethod     *PaymentMethod
	TransactionNumber *string
	ReceiverName      *string
}

// UpdateTransaction updates a transaction.
//
// For a new amount, the old amount is given back to the balance sheet first
// and the new amount is validated against the balance available then.
func UpdateTransaction(db *gorm.DB, id uuid.UUID, update TransactionUpdate) (Transaction, error) {
	var t Transaction
	err := runTransaction(db, func(tx *gorm.DB) error {
		var err error
		t, err = GetTransaction(tx, id)
		if err != nil {
			return err
		}

		if t.Status == StatusCancelled {
			return fmt.Errorf("%w: cancelled transactions cannot be updated", ErrInvalidState)
		}

		if update.VoucherNo != nil {
			t.VoucherNo = *update.VoucherNo
		}
		dateChanged := update.Date != nil && !update.Date.Equal(t.Date)
		if update.Date != nil {
			t.Date = *update.Date
		}
		if update.Description != nil {
			t.Description = *update.Description
		}
		if update.PaymentMethod != nil {
			t.PaymentMethod = *update.PaymentMethod
		}
		if update.TransactionNumber != nil {
			t.TransactionNumber = *update.TransactionNumber
		}
		if update.ReceiverName != nil {
			t.ReceiverName = *update.ReceiverName
		}

		err = t.validate()
		if err != nil {
			return err
		}

		if update.Amount != nil {
			amount := *update.Amount
			if !amount.IsPositive() {
				return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
			}

			if t.Posted {
				sheet, err := reverse(tx, &t)
				if err != nil {
					return err
				}

				available := sheet.CurrentBalance()
				if amount.GreaterThan(available) {
					return fmt.Errorf("%w: %s available, %s requested", ErrInsufficientBalance, available, amount)
				}

				err = sheet.ApplyDelta(tx, amount, &t.Date)
				if err != nil {
					return err
				}

				t.Posted = true
				t.BalanceBefore = available
				t.BalanceAfter = available.Sub(amount)
			}

			t.Amount = amount
		} else if dateChanged && t.Posted {
			sheet, err := lockForTransaction(tx, t)
			if err != nil {
				return err
			}

			err = sheet.ApplyDelta(tx, decimal.Zero, &t.Date)
			if err != nil {
				return err
			}
		}

		return tx.Omit(clause.Associations).Save(&t).Error
	})
	if err != nil {
		return Transaction{}, err
	}

	return t, nil
}

// DeleteTransaction gives the amount of a transaction back to the balance
// sheet and deletes it.
//
// The transaction is soft deleted, so its voucher number stays reserved.
func DeleteTransaction(db *gorm.DB, id uuid.UUID) error {
	return runTransaction(db, func(tx *gorm.DB) error {
		t, err := GetTransaction(tx, id)
		if err != nil {
			return err
		}

		if t.Posted {
			_, err = reverse(tx, &t)
			if err != nil {
				return err
			}

			err = tx.Omit(clause.Associations).Save(&t).Error
			if err != nil {
				return err
			}
		}

		return tx.Delete(&t).Error
	})
}

// CancelTransaction marks a transaction as cancelled and gives its amount
// back to the balance sheet.
func CancelTransaction(db *gorm.DB, id uuid.UUID) (Transaction, error) {
	var t Transaction
	err := runTransaction(db, func(tx *gorm.DB) error {
		var err error
		t, err = GetTransaction(tx, id)
		if err != nil {
			return err
		}

		if t.Status == StatusCancelled {
			return fmt.Errorf("%w: the transaction is cancelled already", ErrInvalidState)
		}

		if t.Posted {
			_, err = reverse(tx, &t)
			if err != nil {
				return err
			}
		}

		t.Status = StatusCancelled
		return tx.Omit(clause.Associations).Save(&t).Error
	})
	if err != nil {
		return Transaction{}, err
	}

	return t, nil
}

// CompleteTransaction posts a pending transaction.
func CompleteTransaction(db *gorm.DB, id uuid.UUID) (Transaction, error) {
	var t Transaction
	err := runTransaction(db, func(tx *gorm.DB) error {
		var err error
		t, err = GetTransaction(tx, id)
		if err != nil {
			return err
		}

		if t.Status != StatusPending {
			return fmt.Errorf("%w: only pending transactions can be completed, this one is %s", ErrInvalidState, t.Status)
		}

		return post(tx, &t)
	})
	if err != nil {
		return Transaction{}, err
	}

	return t, nil
}
