package v1

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/parish-ledger/backend/internal/httputil"
	"github.com/parish-ledger/backend/internal/models"
	"github.com/ryanuber/go-glob"
	"golang.org/x/exp/slices"
	"gorm.io/gorm"
)

// RegisterTransactionRoutes registers the routes for transactions with
// the RouterGroup that is passed.
func RegisterTransactionRoutes(r *gin.RouterGroup) {
	// Root group
	{
		r.OPTIONS("", OptionsTransactions)
		r.GET("", GetTransactions)
		r.POST("", CreateTransaction)
		r.OPTIONS("/export", OptionsTransactionExport)
		r.GET("/export", ExportTransactions)
	}

	// Transaction with ID
	{
		r.OPTIONS("/:id", OptionsTransactionDetail)
		r.GET("/:id", GetTransaction)
		r.PATCH("/:id", UpdateTransaction)
		r.DELETE("/:id", DeleteTransaction)
	}

	// State changes
	{
		r.OPTIONS("/:id/cancel", OptionsTransactionAction)
		r.POST("/:id/cancel", CancelTransaction)
		r.OPTIONS("/:id/complete", OptionsTransactionAction)
		r.POST("/:id/complete", CompleteTransaction)
		r.OPTIONS("/:id/undo", OptionsTransactionAction)
		r.POST("/:id/undo", UndoTransfer)
	}
}

// @Summary		Allowed HTTP verbs
// @Description	Returns an empty response with the HTTP Header "allow" set to the allowed HTTP verbs
// @Tags			Transactions
// @Success		204
// @Router			/v1/transactions [options]
func OptionsTransactions(c *gin.Context) {
	httputil.OptionsGetPost(c)
}

// @Summary		Allowed HTTP verbs
// @Description	Returns an empty response with the HTTP Header "allow" set to the allowed HTTP verbs
// @Tags			Transactions
// @Success		204
// @Router			/v1/transactions/export [options]
func OptionsTransactionExport(c *gin.Context) {
	httputil.OptionsGet(c)
}

// @Summary		Allowed HTTP verbs
// @Description	Returns an empty response with the HTTP Header "allow" set to the allowed HTTP verbs
// @Tags			Transactions
// @Success		204
// @Failure		400	{object}	httpError
// @Failure		404	{object}	httpError
// @Failure		500	{object}	httpError
// @Param			id	path		URIID	true	"ignored, but needed: https://github.com/swaggo/swag/issues/1014"
// @Router			/v1/transactions/{id} [options]
func OptionsTransactionDetail(c *gin.Context) {
	if transactionExists(c) {
		httputil.OptionsGetPatchDelete(c)
	}
}

// @Summary		Allowed HTTP verbs
// @Description	Returns an empty response with the HTTP Header "allow" set to the allowed HTTP verbs
// @Tags			Transactions
// @Success		204
// @Failure		400	{object}	httpError
// @Failure		404	{object}	httpError
// @Failure		500	{object}	httpError
// @Param			id	path		URIID	true	"ignored, but needed: https://github.com/swaggo/swag/issues/1014"
// @Router			/v1/transactions/{id}/cancel [options]
// @Router			/v1/transactions/{id}/complete [options]
// @Router			/v1/transactions/{id}/undo [options]
func OptionsTransactionAction(c *gin.Context) {
	if transactionExists(c) {
		httputil.OptionsPost(c)
	}
}

// transactionExists writes the error response and returns false if the
// transaction in the URI does not exist.
func transactionExists(c *gin.Context) bool {
	var uri URIID
	err := c.ShouldBindUri(&uri)
	if err != nil {
		c.JSON(status(err), httpError{
			Error: err.Error(),
		})
		return false
	}

	_, err = models.GetTransaction(models.DB, uri.ID.UUID)
	if err != nil {
		c.JSON(status(err), httpError{
			Error: err.Error(),
		})
		return false
	}

	return true
}

// @Summary		Get transaction
// @Description	Returns a specific transaction with its transfer history
// @Tags			Transactions
// @Produce		json
// @Success		200	{object}	TransactionResponse
// @Failure		400	{object}	TransactionResponse
// @Failure		404	{object}	TransactionResponse
// @Failure		500	{object}	TransactionResponse
// @Param			id	path		URIID	true	"ignored, but needed: https://github.com/swaggo/swag/issues/1014"
// @Router			/v1/transactions/{id} [get]
func GetTransaction(c *gin.Context) {
	var uri URIID
	err := c.ShouldBindUri(&uri)
	if err != nil {
		e := err.Error()
		c.JSON(status(err), TransactionResponse{
			Error: &e,
		})
		return
	}

	transaction, err := models.GetTransaction(models.DB, uri.ID.UUID)
	if err != nil {
		e := err.Error()
		c.JSON(status(err), TransactionResponse{
			Error: &e,
		})
		return
	}

	data := newTransaction(c, transaction)
	c.JSON(http.StatusOK, TransactionResponse{Data: &data})
}

// @Summary		Get transactions
// @Description	Returns a list of transactions, newest first
// @Tags			Transactions
// @Produce		json
// @Success		200			{object}	TransactionListResponse
// @Failure		400			{object}	TransactionListResponse
// @Failure		500			{object}	TransactionListResponse
// @Router			/v1/transactions [get]
// @Param			fiscalYear	query	string	false	"Filter by fiscal year"
// @Param			type		query	string	false	"Filter by transaction type"
// @Param			status		query	string	false	"Filter by status"
// @Param			entityType	query	string	false	"Filter by entity type"
// @Param			entity		query	string	false	"Filter by entity ID"
// @Param			beneficiary	query	string	false	"Filter by beneficiary ID. Also matches the original person of transferred transactions."
// @Param			voucher		query	string	false	"Filter by voucher number. Supports * as wildcard."
// @Param			offset		query	uint	false	"The offset of the first Transaction returned. Defaults to 0."
// @Param			limit		query	int		false	"Maximum number of Transactions to return. Defaults to 50."
func GetTransactions(c *gin.Context) {
	var filter TransactionQueryFilter
	if err := c.Bind(&filter); err != nil {
		s := err.Error()
		c.JSON(http.StatusBadRequest, TransactionListResponse{
			Error: &s,
		})
		return
	}

	// Get the fields set in the filter
	queryFields, setFields := httputil.GetURLFields(c.Request.URL, filter)

	q, err := filterTransactions(filter, queryFields)
	if err != nil {
		s := err.Error()
		c.JSON(status(err), TransactionListResponse{
			Error: &s,
		})
		return
	}
	ordered := newestFirst(q)

	// Default to 50 transactions
	limit := 50
	if slices.Contains(setFields, "Limit") {
		limit = filter.Limit
	}

	var transactions []models.Transaction
	var count int64

	// Voucher globs cannot be expressed in SQL for all dialects, so
	// pagination is done after matching
	if filter.VoucherNo != "" {
		transactions, count, err = matchVouchers(ordered, filter.VoucherNo, int(filter.Offset), limit)
	} else {
		err = ordered.Offset(int(filter.Offset)).Limit(limit).Find(&transactions).Error
		if err == nil {
			err = q.Count(&count).Error
		}
	}

	if err != nil {
		e := err.Error()
		c.JSON(status(err), TransactionListResponse{
			Error: &e,
		})
		return
	}

	data := make([]Transaction, 0, len(transactions))
	for _, transaction := range transactions {
		data = append(data, newTransaction(c, transaction))
	}

	c.JSON(http.StatusOK, TransactionListResponse{
		Data: data,
		Pagination: &Pagination{
			Count:  len(data),
			Total:  count,
			Offset: filter.Offset,
			Limit:  limit,
		},
	})
}

// filterTransactions returns the query for all transactions matching the filter.
//
// The returned statement can be reused for several queries.
func filterTransactions(filter TransactionQueryFilter, queryFields []any) (*gorm.DB, error) {
	where := filter.model()
	q := models.DB.
		Model(&models.Transaction{}).
		Where(&where, queryFields...)

	if filter.EntityID != "" {
		entityID, err := httputil.UUIDFromString(filter.EntityID)
		if err != nil {
			return nil, fmt.Errorf("error parsing entity ID for filtering: %w", err)
		}

		q = q.Where("transactions.entity_id = ?", entityID)
	}

	if filter.BeneficiaryID != "" {
		beneficiaryID, err := httputil.UUIDFromString(filter.BeneficiaryID)
		if err != nil {
			return nil, fmt.Errorf("error parsing beneficiary ID for filtering: %w", err)
		}

		q = q.Where("transactions.beneficiary_id = ? OR transactions.original_person_id = ?", beneficiaryID, beneficiaryID)
	}

	return q.Session(&gorm.Session{}), nil
}

// newestFirst orders the query by date, newest first, and loads the transfer history.
func newestFirst(q *gorm.DB) *gorm.DB {
	return q.
		Preload("TransferHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Order("transactions.date DESC, transactions.created_at DESC")
}

// matchVouchers returns the page of transactions whose voucher number matches the pattern
// and the total number of matches.
func matchVouchers(q *gorm.DB, pattern string, offset, limit int) ([]models.Transaction, int64, error) {
	var candidates []models.Transaction
	err := q.Find(&candidates).Error
	if err != nil {
		return nil, 0, err
	}

	matches := make([]models.Transaction, 0)
	for _, t := range candidates {
		if glob.Glob(pattern, t.VoucherNo) {
			matches = append(matches, t)
		}
	}

	total := int64(len(matches))
	if offset >= len(matches) {
		return []models.Transaction{}, total, nil
	}
	matches = matches[offset:]

	if limit >= 0 && limit < len(matches) {
		matches = matches[:limit]
	}

	return matches, total, nil
}

// @Summary		Create transaction
// @Description	Records a transaction and deducts its amount from the balance of the entity. Pending transactions are recorded without deduction.
// @Tags			Transactions
// @Accept			json
// @Produce		json
// @Success		201			{object}	TransactionResponse
// @Failure		400			{object}	TransactionResponse
// @Failure		404			{object}	TransactionResponse
// @Failure		409			{object}	TransactionResponse
// @Failure		500			{object}	TransactionResponse
// @Param			transaction	body		TransactionEditable	true	"Transaction"
// @Router			/v1/transactions [post]
func CreateTransaction(c *gin.Context) {
	var editable TransactionEditable
	err := httputil.BindData(c, &editable)
	if err != nil {
		e := err.Error()
		c.JSON(status(err), TransactionResponse{
			Error: &e,
		})
		return
	}

	transaction, err := models.CreateTransaction(models.DB, editable.model())
	commitCount.WithLabelValues(string(editable.Type), commitResult(err)).Inc()
	if err != nil {
		e := err.Error()
		c.JSON(status(err), TransactionResponse{
			Error: &e,
		})
		return
	}

	data := newTransaction(c, transaction)
	c.JSON(http.StatusCreated, TransactionResponse{Data: &data})
}

// @Summary		Update transaction
// @Description	Updates an existing transaction. Only values to be updated need to be specified. A new amount is validated against the balance with the old amount given back.
// @Tags			Transactions
// @Accept			json
// @Produce		json
// @Success		200			{object}	TransactionResponse
// @Failure		400			{object}	TransactionResponse
// @Failure		404			{object}	TransactionResponse
// @Failure		409			{object}	TransactionResponse
// @Failure		500			{object}	TransactionResponse
// @Param			id			path		URIID						true	"ignored, but needed: https://github.com/swaggo/swag/issues/1014"
// @Param			transaction	body		TransactionUpdateEditable	true	"Transaction"
// @Router			/v1/transactions/{id} [patch]
func UpdateTransaction(c *gin.Context) {
	var uri URIID
	err := c.ShouldBindUri(&uri)
	if err != nil {
		e := err.Error()
		c.JSON(status(err), TransactionResponse{
			Error: &e,
		})
		return
	}

	var update TransactionUpdateEditable
	err = httputil.BindData(c, &update)
	if err != nil {
		e := err.Error()
		c.JSON(status(err), TransactionResponse{
			Error: &e,
		})
		return
	}

	transaction, err := models.UpdateTransaction(models.DB, uri.ID.UUID, update.model())
	if err != nil {
		e := err.Error()
		c.JSON(status(err), TransactionResponse{
			Error: &e,
		})
		return
	}

	data := newTransaction(c, transaction)
	c.JSON(http.StatusOK, TransactionResponse{Data: &data})
}

// @Summary		Delete transaction
// @Description	Deletes a transaction and gives its amount back to the balance
// @Tags			Transactions
// @Success		204
// @Failure		400	{object}	httpError
// @Failure		404	{object}	httpError
// @Failure		409	{object}	httpError
// @Failure		500	{object}	httpError
// @Param			id	path		URIID	true	"ignored, but needed: https://github.com/swaggo/swag/issues/1014"
// @Router			/v1/transactions/{id} [delete]
func DeleteTransaction(c *gin.Context) {
	var uri URIID
	err := c.ShouldBindUri(&uri)
	if err != nil {
		c.JSON(status(err), httpError{
			Error: err.Error(),
		})
		return
	}

	err = models.DeleteTransaction(models.DB, uri.ID.UUID)
	if err != nil {
		c.JSON(status(err), httpError{
			Error: err.Error(),
		})
		return
	}

	c.JSON(http.StatusNoContent, nil)
}

// @Summary		Cancel transaction
// @Description	Cancels a transaction and gives its amount back to the balance
// @Tags			Transactions
// @Produce		json
// @Success		200	{object}	TransactionResponse
// @Failure		400	{object}	TransactionResponse
// @Failure		404	{object}	TransactionResponse
// @Failure		409	{object}	TransactionResponse
// @Failure		500	{object}	TransactionResponse
// @Param			id	path		URIID	true	"ignored, but needed: https://github.com/swaggo/swag/issues/1014"
// @Router			/v1/transactions/{id}/cancel [post]
func CancelTransaction(c *gin.Context) {
	transition(c, models.CancelTransaction)
}

// @Summary		Complete transaction
// @Description	Deducts the amount of a pending transaction from the balance
// @Tags			Transactions
// @Produce		json
// @Success		200	{object}	TransactionResponse
// @Failure		400	{object}	TransactionResponse
// @Failure		404	{object}	TransactionResponse
// @Failure		409	{object}	TransactionResponse
// @Failure		500	{object}	TransactionResponse
// @Param			id	path		URIID	true	"ignored, but needed: https://github.com/swaggo/swag/issues/1014"
// @Router			/v1/transactions/{id}/complete [post]
func CompleteTransaction(c *gin.Context) {
	transition(c, func(db *gorm.DB, id uuid.UUID) (models.Transaction, error) {
		transaction, err := models.CompleteTransaction(db, id)
		commitCount.WithLabelValues(string(transaction.Type), commitResult(err)).Inc()
		return transaction, err
	})
}

// @Summary		Undo transfer
// @Description	Reverts the last transfer of a transaction. Balances are not changed.
// @Tags			Transactions
// @Accept			json
// @Produce		json
// @Success		200		{object}	TransactionResponse
// @Failure		400		{object}	TransactionResponse
// @Failure		404		{object}	TransactionResponse
// @Failure		500		{object}	TransactionResponse
// @Param			id		path		URIID			true	"ignored, but needed: https://github.com/swaggo/swag/issues/1014"
// @Param			undo	body		UndoEditable	false	"Undo"
// @Router			/v1/transactions/{id}/undo [post]
func UndoTransfer(c *gin.Context) {
	var editable UndoEditable
	err := httputil.BindData(c, &editable)
	if err != nil && !errors.Is(err, httputil.ErrRequestBodyEmpty) {
		e := err.Error()
		c.JSON(status(err), TransactionResponse{
			Error: &e,
		})
		return
	}

	date := editable.Date
	if date.IsZero() {
		date = time.Now()
	}

	transition(c, func(db *gorm.DB, id uuid.UUID) (models.Transaction, error) {
		return models.UndoTransfer(db, id, date)
	})
}

// transition runs a state change on the transaction in the URI and writes the response.
func transition(c *gin.Context, change func(*gorm.DB, uuid.UUID) (models.Transaction, error)) {
	var uri URIID
	err := c.ShouldBindUri(&uri)
	if err != nil {
		e := err.Error()
		c.JSON(status(err), TransactionResponse{
			Error: &e,
		})
		return
	}

	transaction, err := change(models.DB, uri.ID.UUID)
	if err != nil {
		e := err.Error()
		c.JSON(status(err), TransactionResponse{
			Error: &e,
		})
		return
	}

	data := newTransaction(c, transaction)
	c.JSON(http.StatusOK, TransactionResponse{Data: &data})
}
