package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parish-ledger/backend/internal/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/slices"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// swagger:enum TransferStatus
type TransferStatus string

const (
	TransferMovedOut TransferStatus = "moved_out"
	TransferDeceased TransferStatus = "deceased"
	TransferUndo     TransferStatus = "undo"
)

// TransferRecord is one entry in the transfer history of a transaction.
type TransferRecord struct {
	DefaultModel
	TransactionID uuid.UUID `gorm:"index"`
	Sequence      int
	FromPersonID  uuid.UUID
	ToPersonID    uuid.UUID
	Reason        string
	Status        TransferStatus
	TransferDate  time.Time
}

// TransferInput moves the transaction of a person to another person.
type TransferInput struct {
	FromPersonID uuid.UUID
	ToPersonID   uuid.UUID
	Reason       string
	Status       TransferStatus
	FiscalYear   types.FiscalYear
	Date         time.Time

	// Template describes the transaction that is created for the receiving
	// person if the sending person has no active transaction in the fiscal year.
	Template *TransactionInput
}

func (in TransferInput) validate() error {
	if in.FromPersonID == uuid.Nil || in.ToPersonID == uuid.Nil {
		return fmt.Errorf("%w: both persons of a transfer must be set", ErrValidation)
	}

	if in.FromPersonID == in.ToPersonID {
		return fmt.Errorf("%w: a transaction cannot be transferred to the same person", ErrValidation)
	}

	if !slices.Contains([]TransferStatus{TransferMovedOut, TransferDeceased}, in.Status) {
		return fmt.Errorf("%w: '%s' is not a valid transfer status", ErrValidation, in.Status)
	}

	if in.FiscalYear.IsZero() {
		return fmt.Errorf("%w: the fiscal year must be set", ErrValidation)
	}

	if in.Date.IsZero() {
		return fmt.Errorf("%w: the transfer date must be set", ErrValidation)
	}

	return nil
}

// appendHistory adds a record to the transfer history.
func appendHistory(tx *gorm.DB, t *Transaction, record TransferRecord) error {
	record.TransactionID = t.ID
	record.Sequence = len(t.TransferHistory) + 1
	record.TransferDate = record.TransferDate.In(time.UTC)

	err := tx.Create(&record).Error
	if err != nil {
		return err
	}

	t.TransferHistory = append(t.TransferHistory, record)
	return nil
}

// TransferTransaction attributes the active transaction of a person to another person.
//
// If the person has no active transaction in the fiscal year, a transaction
// described by the template is created for the receiving person instead.
// That transaction is not posted. Transfers never change any balance.
func TransferTransaction(db *gorm.DB, in TransferInput) (Transaction, error) {
	if err := in.validate(); err != nil {
		return Transaction{}, err
	}

	var t Transaction
	err := runTransaction(db, func(tx *gorm.DB) error {
		err := tx.Preload("TransferHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).Where("beneficiary_id = ? AND fiscal_year = ? AND status IN ?", in.FromPersonID, in.FiscalYear, activeStatuses).First(&t).Error

		if errors.Is(err, ErrResourceNotFound) {
			t, err = spawnTransferred(tx, in)
			if err != nil {
				return err
			}
		} else if err != nil {
			return err
		} else {
			date := in.Date.In(time.UTC)
			from := in.FromPersonID
			to := in.ToPersonID

			t.PreTransferStatus = t.Status
			t.Status = StatusTransferred
			t.IsTransferred = true
			t.BeneficiaryID = &to
			t.TransferReason = in.Reason
			t.TransferDate = &date
			if t.OriginalPersonID == nil {
				t.OriginalPersonID = &from
			}

			err = tx.Omit(clause.Associations).Save(&t).Error
			if err != nil {
				return err
			}
		}

		return appendHistory(tx, &t, TransferRecord{
			FromPersonID: in.FromPersonID,
			ToPersonID:   in.ToPersonID,
			Reason:       in.Reason,
			Status:       in.Status,
			TransferDate: in.Date,
		})
	})
	if err != nil {
		return Transaction{}, err
	}

	log.Info().Str("voucherNo", t.VoucherNo).Str("from", in.FromPersonID.String()).Str("to", in.ToPersonID.String()).Msg("transferred transaction")
	return t, nil
}

// spawnTransferred creates the transaction for the receiving person of a transfer.
func spawnTransferred(tx *gorm.DB, in TransferInput) (Transaction, error) {
	if in.Template == nil {
		return Transaction{}, fmt.Errorf("%w: person %s has no active transaction in fiscal year %s, the details of the new transaction are needed", ErrValidation, in.FromPersonID, in.FiscalYear)
	}

	template := *in.Template
	template.FiscalYear = in.FiscalYear
	template.BeneficiaryID = &in.ToPersonID
	if template.Date.IsZero() {
		template.Date = in.Date
	}
	if strings.TrimSpace(template.VoucherNo) == "" {
		template.VoucherNo = fmt.Sprintf("TRF-%d-%s", in.FiscalYear, strings.ToUpper(uuid.NewString()[:8]))
	}

	t, err := template.transaction()
	if err != nil {
		return Transaction{}, err
	}

	if !t.Amount.IsPositive() {
		return Transaction{}, fmt.Errorf("%w: %s", ErrInvalidAmount, t.Amount)
	}

	date := in.Date.In(time.UTC)
	from := in.FromPersonID

	t.Status = StatusTransferred
	t.IsTransferred = true
	t.Spawned = true
	t.OriginalPersonID = &from
	t.TransferReason = in.Reason
	t.TransferDate = &date

	err = tx.Omit(clause.Associations).Create(&t).Error
	return t, err
}

// UndoTransfer reverts the last transfer of a transaction.
//
// A transaction that was transferred in place gets its previous beneficiary
// and status back. A transaction that was created by a transfer is marked
// as restored and a transferred transaction of the original person is
// reactivated.
func UndoTransfer(db *gorm.DB, id uuid.UUID, date time.Time) (Transaction, error) {
	var t Transaction
	err := runTransaction(db, func(tx *gorm.DB) error {
		var err error
		t, err = GetTransaction(tx, id)
		if err != nil {
			return err
		}

		if !t.IsTransferred || t.Status != StatusTransferred {
			return fmt.Errorf("%w: transaction %s is not transferred", ErrInvalidState, t.ID)
		}

		var last *TransferRecord
		for i := len(t.TransferHistory) - 1; i >= 0; i-- {
			if t.TransferHistory[i].Status != TransferUndo {
				last = &t.TransferHistory[i]
				break
			}
		}

		if last == nil {
			return fmt.Errorf("%w: transaction %s has no transfer to undo", ErrInvalidState, t.ID)
		}

		undo := TransferRecord{
			FromPersonID: last.ToPersonID,
			ToPersonID:   last.FromPersonID,
			Reason:       "undo",
			Status:       TransferUndo,
			TransferDate: date,
		}

		if t.Spawned {
			err = undoSpawned(tx, &t)
		} else {
			err = undoInPlace(tx, &t, *last)
		}
		if err != nil {
			return err
		}

		return appendHistory(tx, &t, undo)
	})
	if err != nil {
		return Transaction{}, err
	}

	log.Info().Str("voucherNo", t.VoucherNo).Str("status", string(t.Status)).Msg("undid transfer")
	return t, nil
}

// undoInPlace gives a transaction transferred in place back to the person it
// was transferred from.
func undoInPlace(tx *gorm.DB, t *Transaction, last TransferRecord) error {
	status := t.PreTransferStatus
	if status == "" {
		status = StatusCompleted
	}

	from := last.FromPersonID
	err := checkActiveBeneficiary(tx, &from, t.FiscalYear, t.ID)
	if err != nil {
		return err
	}

	t.BeneficiaryID = &from
	t.Status = status
	t.PreTransferStatus = ""
	t.IsTransferred = false
	t.TransferReason = ""
	t.TransferDate = nil

	return tx.Omit(clause.Associations).Save(t).Error
}

// undoSpawned restores a transaction created by a transfer and reactivates
// the transferred transaction of the original person, if there is one.
//
// Only transactions that were transferred in place are reactivated. A
// transaction spawned for the original person was never active and stays
// transferred until its own transfer is undone.
func undoSpawned(tx *gorm.DB, t *Transaction) error {
	t.Status = StatusRestored

	err := tx.Omit(clause.Associations).Save(t).Error
	if err != nil {
		return err
	}

	if t.OriginalPersonID == nil {
		return nil
	}

	var originals []Transaction
	err = tx.Where("beneficiary_id = ? AND fiscal_year = ? AND status = ? AND spawned = ?", *t.OriginalPersonID, t.FiscalYear, StatusTransferred, false).Find(&originals).Error
	if err != nil {
		return err
	}

	for _, original := range originals {
		status := original.PreTransferStatus
		if status == "" || !status.Active() {
			status = StatusActive
		}

		err = checkActiveBeneficiary(tx, original.BeneficiaryID, original.FiscalYear, original.ID)
		if err != nil {
			return err
		}

		original.Status = status
		original.PreTransferStatus = ""
		original.IsTransferred = false

		err = tx.Omit(clause.Associations).Save(&original).Error
		if err != nil {
			return err
		}
	}

	return nil
}
