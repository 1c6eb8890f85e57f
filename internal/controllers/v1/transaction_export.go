package v1

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/parish-ledger/backend/internal/httputil"
	"github.com/parish-ledger/backend/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Transactions"

var exportHeaders = []any{
	"Voucher", "Fiscal year", "Date", "Type", "Entity type", "Entity", "Beneficiary", "Original person",
	"Amount", "Balance before", "Balance after", "Status", "Payment method", "Transaction number", "Receiver", "Description",
}

// @Summary		Export transactions
// @Description	Returns all transactions matching the filter as an Excel workbook, newest first
// @Tags			Transactions
// @Produce		application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success		200
// @Failure		400			{object}	httpError
// @Failure		500			{object}	httpError
// @Router			/v1/transactions/export [get]
// @Param			fiscalYear	query	string	false	"Filter by fiscal year"
// @Param			type		query	string	false	"Filter by transaction type"
// @Param			status		query	string	false	"Filter by status"
// @Param			entityType	query	string	false	"Filter by entity type"
// @Param			entity		query	string	false	"Filter by entity ID"
// @Param			beneficiary	query	string	false	"Filter by beneficiary ID. Also matches the original person of transferred transactions."
// @Param			voucher		query	string	false	"Filter by voucher number. Supports * as wildcard."
func ExportTransactions(c *gin.Context) {
	var filter TransactionQueryFilter
	if err := c.Bind(&filter); err != nil {
		c.JSON(http.StatusBadRequest, httpError{
			Error: err.Error(),
		})
		return
	}

	queryFields, _ := httputil.GetURLFields(c.Request.URL, filter)
	q, err := filterTransactions(filter, queryFields)
	if err != nil {
		c.JSON(status(err), httpError{
			Error: err.Error(),
		})
		return
	}

	var transactions []models.Transaction
	if filter.VoucherNo != "" {
		transactions, _, err = matchVouchers(newestFirst(q), filter.VoucherNo, 0, -1)
	} else {
		err = newestFirst(q).Find(&transactions).Error
	}
	if err != nil {
		c.JSON(status(err), httpError{
			Error: err.Error(),
		})
		return
	}

	f, err := workbook(transactions)
	if err != nil {
		log.Error().Str("request-id", requestid.Get(c)).Msgf("%T: %v", err, err.Error())
		c.JSON(http.StatusInternalServerError, httpError{
			Error: models.ErrGeneral.Error(),
		})
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"transactions_%s.xlsx\"", time.Now().Format("20060102")))

	if err := f.Write(c.Writer); err != nil {
		log.Error().Str("request-id", requestid.Get(c)).Msgf("writing the export failed: %v", err)
	}
}

// workbook writes one row per transaction below the header row.
func workbook(transactions []models.Transaction) (*excelize.File, error) {
	f := excelize.NewFile()

	err := f.SetSheetName("Sheet1", exportSheet)
	if err != nil {
		return nil, err
	}

	err = f.SetSheetRow(exportSheet, "A1", &exportHeaders)
	if err != nil {
		return nil, err
	}

	for i, t := range transactions {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}

		row := []any{
			t.VoucherNo,
			t.FiscalYear.String(),
			t.Date.Format(time.DateOnly),
			string(t.Type),
			string(t.EntityType),
			t.EntityID.String(),
			optionalID(t.BeneficiaryID),
			optionalID(t.OriginalPersonID),
			t.Amount.InexactFloat64(),
			t.BalanceBefore.InexactFloat64(),
			t.BalanceAfter.InexactFloat64(),
			string(t.Status),
			string(t.PaymentMethod),
			t.TransactionNumber,
			t.ReceiverName,
			t.Description,
		}

		err = f.SetSheetRow(exportSheet, cell, &row)
		if err != nil {
			return nil, err
		}
	}

	err = f.SetColWidth(exportSheet, "A", "A", 18)
	if err != nil {
		return nil, err
	}

	err = f.SetColWidth(exportSheet, "F", "H", 38)
	if err != nil {
		return nil, err
	}

	return f, nil
}

func optionalID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
