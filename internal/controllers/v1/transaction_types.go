package v1

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/parish-ledger/backend/internal/models"
	"github.com/parish-ledger/backend/internal/types"
	"github.com/shopspring/decimal"
)

type TransactionEditable struct {
	VoucherNo  string                 `json:"voucherNo" example:"V-2024-0042"`                 // Unique voucher number
	FiscalYear types.FiscalYear       `json:"fiscalYear" swaggertype:"integer" example:"2024"` // Fiscal year. Derived from the date if not set.
	Date       time.Time              `json:"date" example:"2024-05-04T00:00:00Z"`             // Date of the transaction. Defaults to now.
	Type       models.TransactionType `json:"type" example:"community"`                        // Type of the transaction. Decides which entity ID is used.

	CommunityID *uuid.UUID `json:"communityId" example:"3a3b5a1a-2b7c-4d4e-8f60-1c2d3e4f5a6b"` // Community for community transactions
	FundID      *uuid.UUID `json:"fundId" example:"8d2f0f8e-6a65-4c4e-9a43-5f7e2b1f0c11"`      // Project fund for other project transactions
	ParishID    *uuid.UUID `json:"parishId" example:"c2f9a1b4-1111-4c1c-8a0e-7b6a1e2d3f40"`    // Parish for family transactions
	FamilyID    *uuid.UUID `json:"familyId" example:"e6b3c6d2-0f2a-4a8c-9d7e-2f1a0b3c4d5e"`    // Family for family transactions

	// The maximum value is "999999999999.99999999", swagger unfortunately rounds this.
	Amount decimal.Decimal `json:"amount" swaggertype:"string" example:"1500" minimum:"0.00000001" maximum:"999999999999.99999999" multipleOf:"0.00000001"` // The amount of the transaction

	Description       string                  `json:"description" example:"Education support" default:""`           // A description
	PaymentMethod     models.PaymentMethod    `json:"paymentMethod" example:"cash" default:"cash"`                  // Payment method
	TransactionNumber string                  `json:"transactionNumber" example:"UTR-88213" default:""`             // Bank transaction number. Required for bank payments.
	OtherProjectType  models.OtherProjectType `json:"otherProjectType" example:"others" default:""`                 // Type of other project. Defaults to "others" for other project transactions.
	ReceiverName      string                  `json:"receiverName" example:"St. Joseph Orphanage" default:""`       // Receiver. Required for other projects of type "others".
	BeneficiaryID     *uuid.UUID              `json:"beneficiaryId" example:"0b9f0b43-54c6-4dd4-bd4f-2a5b8d7e6c21"` // Person receiving the money

	Pending bool `json:"pending" example:"false" default:"false"` // Record the transaction without deducting it until it is completed
}

// model returns the input for recording the transaction
func (editable TransactionEditable) model() models.TransactionInput {
	date := editable.Date
	if date.IsZero() {
		date = time.Now()
	}

	return models.TransactionInput{
		VoucherNo:  editable.VoucherNo,
		FiscalYear: editable.FiscalYear,
		Date:       date,
		Type:       editable.Type,
		EntityIDs: models.EntityIDs{
			CommunityID: editable.CommunityID,
			FundID:      editable.FundID,
			ParishID:    editable.ParishID,
		},
		FamilyID:          editable.FamilyID,
		Amount:            editable.Amount,
		Description:       editable.Description,
		PaymentMethod:     editable.PaymentMethod,
		TransactionNumber: editable.TransactionNumber,
		OtherProjectType:  editable.OtherProjectType,
		ReceiverName:      editable.ReceiverName,
		BeneficiaryID:     editable.BeneficiaryID,
		Pending:           editable.Pending,
	}
}

// TransactionUpdateEditable contains the fields that can be updated.
// Fields that are not set are not changed.
type TransactionUpdateEditable struct {
	VoucherNo         *string               `json:"voucherNo" example:"V-2024-0042"`             // Unique voucher number
	Date              *time.Time            `json:"date" example:"2024-05-04T00:00:00Z"`         // Date of the transaction
	Amount            *decimal.Decimal      `json:"amount" swaggertype:"string" example:"1500"`  // The amount of the transaction
	Description       *string               `json:"description" example:"Education support"`     // A description
	PaymentMethod     *models.PaymentMethod `json:"paymentMethod" example:"bank"`                // Payment method
	TransactionNumber *string               `json:"transactionNumber" example:"UTR-88213"`       // Bank transaction number
	ReceiverName      *string               `json:"receiverName" example:"St. Joseph Orphanage"` // Receiver
}

func (editable TransactionUpdateEditable) model() models.TransactionUpdate {
	return models.TransactionUpdate{
		VoucherNo:         editable.VoucherNo,
		Date:              editable.Date,
		Amount:            editable.Amount,
		Description:       editable.Description,
		PaymentMethod:     editable.PaymentMethod,
		TransactionNumber: editable.TransactionNumber,
		ReceiverName:      editable.ReceiverName,
	}
}

type TransferRecord struct {
	Sequence     int                   `json:"sequence" example:"1"`                                        // Position in the transfer history
	FromPersonID uuid.UUID             `json:"fromPersonId" example:"0b9f0b43-54c6-4dd4-bd4f-2a5b8d7e6c21"` // Person the transaction was transferred from
	ToPersonID   uuid.UUID             `json:"toPersonId" example:"5e1c7a2b-3d4f-4a6b-8c9d-0e1f2a3b4c5d"`   // Person the transaction was transferred to
	Reason       string                `json:"reason" example:"Moved to Bangalore"`                         // Reason for the transfer
	Status       models.TransferStatus `json:"status" example:"moved_out"`                                  // Status of the transfer
	TransferDate time.Time             `json:"transferDate" example:"2024-08-01T00:00:00Z"`                 // Date of the transfer
}

type TransactionLinks struct {
	Self    string `json:"self" example:"https://example.com/api/v1/transactions/d430d7c3-d14c-4712-9336-ee56965a6673"`                          // The transaction itself
	Balance string `json:"balance" example:"https://example.com/api/v1/balances/community/3a3b5a1a-2b7c-4d4e-8f60-1c2d3e4f5a6b?fiscalYear=2024"` // The balance the transaction is booked against
}

// Transaction is the API representation of a Transaction.
type Transaction struct {
	models.DefaultModel
	TransactionEditable
	EntityType       models.EntityType        `json:"entityType" example:"community"`                                  // Type of the entity the transaction is booked against
	EntityID         uuid.UUID                `json:"entityId" example:"3a3b5a1a-2b7c-4d4e-8f60-1c2d3e4f5a6b"`         // ID of the entity the transaction is booked against
	BalanceBefore    decimal.Decimal          `json:"balanceBefore" swaggertype:"string" example:"150"`                // Balance before the transaction was posted
	BalanceAfter     decimal.Decimal          `json:"balanceAfter" swaggertype:"string" example:"50"`                  // Balance after the transaction was posted
	Status           models.TransactionStatus `json:"status" example:"completed"`                                      // Status of the transaction
	Posted           bool                     `json:"posted" example:"true"`                                           // Is the amount deducted from the balance?
	IsTransferred    bool                     `json:"isTransferred" example:"false"`                                   // Has the transaction been transferred?
	TransferReason   string                   `json:"transferReason" example:""`                                       // Reason of the last transfer
	TransferDate     *time.Time               `json:"transferDate" example:"2024-08-01T00:00:00Z"`                     // Date of the last transfer
	OriginalPersonID *uuid.UUID               `json:"originalPersonId" example:"0b9f0b43-54c6-4dd4-bd4f-2a5b8d7e6c21"` // Person the transaction belonged to before the first transfer
	TransferHistory  []TransferRecord         `json:"transferHistory"`                                                 // All transfers of the transaction
	Links            TransactionLinks         `json:"links"`
}

// newTransaction returns the API representation of the resource
func newTransaction(c *gin.Context, model models.Transaction) Transaction {
	url := c.GetString(string(models.DBContextURL))

	editable := TransactionEditable{
		VoucherNo:         model.VoucherNo,
		FiscalYear:        model.FiscalYear,
		Date:              model.Date,
		Type:              model.Type,
		FamilyID:          model.FamilyID,
		Amount:            model.Amount,
		Description:       model.Description,
		PaymentMethod:     model.PaymentMethod,
		TransactionNumber: model.TransactionNumber,
		OtherProjectType:  model.OtherProjectType,
		ReceiverName:      model.ReceiverName,
		BeneficiaryID:     model.BeneficiaryID,
		Pending:           model.Status == models.StatusPending,
	}

	id := model.EntityID
	switch model.EntityType {
	case models.EntityCommunity:
		editable.CommunityID = &id
	case models.EntityProject:
		editable.FundID = &id
	case models.EntityParish:
		editable.ParishID = &id
	}

	history := make([]TransferRecord, 0, len(model.TransferHistory))
	for _, r := range model.TransferHistory {
		history = append(history, TransferRecord{
			Sequence:     r.Sequence,
			FromPersonID: r.FromPersonID,
			ToPersonID:   r.ToPersonID,
			Reason:       r.Reason,
			Status:       r.Status,
			TransferDate: r.TransferDate,
		})
	}

	return Transaction{
		DefaultModel:        model.DefaultModel,
		TransactionEditable: editable,
		EntityType:          model.EntityType,
		EntityID:            model.EntityID,
		BalanceBefore:       model.BalanceBefore,
		BalanceAfter:        model.BalanceAfter,
		Status:              model.Status,
		Posted:              model.Posted,
		IsTransferred:       model.IsTransferred,
		TransferReason:      model.TransferReason,
		TransferDate:        model.TransferDate,
		OriginalPersonID:    model.OriginalPersonID,
		TransferHistory:     history,
		Links: TransactionLinks{
			Self:    fmt.Sprintf("%s/v1/transactions/%s", url, model.ID),
			Balance: fmt.Sprintf("%s/v1/balances/%s/%s?fiscalYear=%d", url, model.EntityType, model.EntityID, model.FiscalYear),
		},
	}
}

type TransactionResponse struct {
	Error *string      `json:"error" example:"insufficient balance: 50 available, 60 requested"` // The error, if any occurred
	Data  *Transaction `json:"data"`                                                             // The transaction data, if the request was successful
}

type TransactionListResponse struct {
	Data       []Transaction `json:"data"`                                                          // List of transactions
	Error      *string       `json:"error" example:"the specified resource ID is not a valid UUID"` // The error, if any occurred
	Pagination *Pagination   `json:"pagination"`                                                    // Pagination information
}

type TransactionQueryFilter struct {
	FiscalYear    types.FiscalYear         `form:"fiscalYear"`                      // Fiscal year
	Type          models.TransactionType   `form:"type"`                            // Type of the transaction
	Status        models.TransactionStatus `form:"status"`                          // Status of the transaction
	EntityType    models.EntityType        `form:"entityType"`                      // Type of the entity
	EntityID      string                   `form:"entity" filterField:"false"`      // ID of the entity
	BeneficiaryID string                   `form:"beneficiary" filterField:"false"` // ID of the beneficiary, current or original
	VoucherNo     string                   `form:"voucher" filterField:"false"`     // Voucher number, supports * as wildcard
	Offset        uint                     `form:"offset" filterField:"false"`      // The offset of the first Transaction returned. Defaults to 0.
	Limit         int                      `form:"limit" filterField:"false"`       // Maximum number of transactions to return. Defaults to 50.
}

// model returns the fields of the filter that can be used in a gorm Where
func (f TransactionQueryFilter) model() models.Transaction {
	return models.Transaction{
		FiscalYear: f.FiscalYear,
		Type:       f.Type,
		Status:     f.Status,
		EntityType: f.EntityType,
	}
}

type TransferEditable struct {
	FromPersonID uuid.UUID             `json:"fromPersonId" example:"0b9f0b43-54c6-4dd4-bd4f-2a5b8d7e6c21"` // Person the transaction is transferred from
	ToPersonID   uuid.UUID             `json:"toPersonId" example:"5e1c7a2b-3d4f-4a6b-8c9d-0e1f2a3b4c5d"`   // Person the transaction is transferred to
	Reason       string                `json:"reason" example:"Moved to Bangalore" default:""`              // Reason for the transfer
	Status       models.TransferStatus `json:"status" example:"moved_out"`                                  // Either moved_out or deceased
	FiscalYear   types.FiscalYear      `json:"fiscalYear" swaggertype:"integer" example:"2024"`             // Fiscal year. Defaults to the current one.
	Date         time.Time             `json:"date" example:"2024-08-01T00:00:00Z"`                         // Date of the transfer. Defaults to now.

	// Used when the person has no active transaction in the fiscal year
	Template *TransactionEditable `json:"template"` // The transaction to create for the receiving person
}

func (editable TransferEditable) model() models.TransferInput {
	date := editable.Date
	if date.IsZero() {
		date = time.Now()
	}

	in := models.TransferInput{
		FromPersonID: editable.FromPersonID,
		ToPersonID:   editable.ToPersonID,
		Reason:       editable.Reason,
		Status:       editable.Status,
		FiscalYear:   currentFiscalYear(editable.FiscalYear),
		Date:         date,
	}

	if editable.Template != nil {
		template := editable.Template.model()
		if editable.Template.Date.IsZero() {
			template.Date = date
		}
		in.Template = &template
	}

	return in
}

type UndoEditable struct {
	Date time.Time `json:"date" example:"2024-09-01T00:00:00Z"` // Date of the undo. Defaults to now.
}
