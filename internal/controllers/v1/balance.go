package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/parish-ledger/backend/internal/httputil"
	"github.com/parish-ledger/backend/internal/models"
)

// RegisterBalanceRoutes registers the routes for balances with
// the RouterGroup that is passed.
func RegisterBalanceRoutes(r *gin.RouterGroup) {
	// Root group
	{
		r.OPTIONS("", OptionsBalances)
		r.GET("", GetBalances)
	}

	// Rollover
	{
		r.OPTIONS("/rollover", OptionsRollover)
		r.POST("/rollover", Rollover)
	}

	// Balance of a single entity
	{
		r.OPTIONS("/:entityType/:entityId", OptionsBalanceDetail)
		r.GET("/:entityType/:entityId", GetBalance)
	}
}

// @Summary		Allowed HTTP verbs
// @Description	Returns an empty response with the HTTP Header "allow" set to the allowed HTTP verbs
// @Tags			Balances
// @Success		204
// @Router			/v1/balances [options]
func OptionsBalances(c *gin.Context) {
	httputil.OptionsGet(c)
}

// @Summary		Allowed HTTP verbs
// @Description	Returns an empty response with the HTTP Header "allow" set to the allowed HTTP verbs
// @Tags			Balances
// @Success		204
// @Router			/v1/balances/rollover [options]
func OptionsRollover(c *gin.Context) {
	httputil.OptionsPost(c)
}

// @Summary		Allowed HTTP verbs
// @Description	Returns an empty response with the HTTP Header "allow" set to the allowed HTTP verbs
// @Tags			Balances
// @Success		204
// @Failure		400			{object}	httpError
// @Param			entityType	path		string	true	"Type of the entity"
// @Param			entityId	path		string	true	"ID of the entity"
// @Router			/v1/balances/{entityType}/{entityId} [options]
func OptionsBalanceDetail(c *gin.Context) {
	var uri URIEntity
	err := c.ShouldBindUri(&uri)
	if err != nil {
		c.JSON(status(err), httpError{
			Error: err.Error(),
		})
		return
	}

	_, err = uri.ref()
	if err != nil {
		c.JSON(status(err), httpError{
			Error: err.Error(),
		})
		return
	}

	httputil.OptionsGet(c)
}

// @Summary		Get balances
// @Description	Returns the balance sheets matching the filter
// @Tags			Balances
// @Produce		json
// @Success		200			{object}	BalanceListResponse
// @Failure		400			{object}	BalanceListResponse
// @Failure		500			{object}	BalanceListResponse
// @Param			fiscalYear	query		string	false	"Filter by fiscal year"
// @Param			entityType	query		string	false	"Filter by entity type"
// @Router			/v1/balances [get]
func GetBalances(c *gin.Context) {
	var filter BalanceQueryFilter
	if err := c.Bind(&filter); err != nil {
		s := err.Error()
		c.JSON(http.StatusBadRequest, BalanceListResponse{
			Error: &s,
		})
		return
	}

	if filter.EntityType != "" && !filter.EntityType.Valid() {
		s := errEntityTypeInvalid.Error()
		c.JSON(http.StatusBadRequest, BalanceListResponse{
			Error: &s,
		})
		return
	}

	sheets, err := models.ListBalanceSheets(models.DB, filter.FiscalYear, filter.EntityType)
	if err != nil {
		s := err.Error()
		c.JSON(status(err), BalanceListResponse{
			Error: &s,
		})
		return
	}

	data := make([]Balance, 0, len(sheets))
	for _, sheet := range sheets {
		data = append(data, newBalance(c, sheet))
	}

	c.JSON(http.StatusOK, BalanceListResponse{Data: data})
}

// @Summary		Get balance
// @Description	Returns the balance of an entity in a fiscal year with the posted transactions by month. Entities without allocation have a zero balance.
// @Tags			Balances
// @Produce		json
// @Success		200			{object}	BalanceResponse
// @Failure		400			{object}	BalanceResponse
// @Failure		500			{object}	BalanceResponse
// @Param			entityType	path		string	true	"Type of the entity"
// @Param			entityId	path		string	true	"ID of the entity"
// @Param			fiscalYear	query		string	false	"Fiscal year. Defaults to the current one."
// @Router			/v1/balances/{entityType}/{entityId} [get]
func GetBalance(c *gin.Context) {
	var uri URIEntity
	err := c.ShouldBindUri(&uri)
	if err != nil {
		e := err.Error()
		c.JSON(status(err), BalanceResponse{
			Error: &e,
		})
		return
	}

	ref, err := uri.ref()
	if err != nil {
		e := err.Error()
		c.JSON(status(err), BalanceResponse{
			Error: &e,
		})
		return
	}

	var query QueryFiscalYear
	if err := c.ShouldBindQuery(&query); err != nil {
		e := err.Error()
		c.JSON(http.StatusBadRequest, BalanceResponse{
			Error: &e,
		})
		return
	}

	sheet, err := models.GetBalance(models.DB, currentFiscalYear(query.FiscalYear), ref)
	if err != nil {
		e := err.Error()
		c.JSON(status(err), BalanceResponse{
			Error: &e,
		})
		return
	}

	breakdown, err := sheet.MonthlyBreakdown(models.DB)
	if err != nil {
		e := err.Error()
		c.JSON(status(err), BalanceResponse{
			Error: &e,
		})
		return
	}

	data := newBalance(c, sheet)
	data.MonthlyBreakdown = breakdown
	c.JSON(http.StatusOK, BalanceResponse{Data: &data})
}

// @Summary		Roll over balances
// @Description	Carries the current balances of a fiscal year over as opening balances of the next one. Running it again updates the opening balances.
// @Tags			Balances
// @Accept			json
// @Produce		json
// @Success		200			{object}	BalanceListResponse
// @Failure		400			{object}	BalanceListResponse
// @Failure		409			{object}	BalanceListResponse
// @Failure		500			{object}	BalanceListResponse
// @Param			rollover	body		RolloverEditable	true	"Rollover"
// @Router			/v1/balances/rollover [post]
func Rollover(c *gin.Context) {
	var editable RolloverEditable
	err := httputil.BindData(c, &editable)
	if err != nil {
		e := err.Error()
		c.JSON(status(err), BalanceListResponse{
			Error: &e,
		})
		return
	}

	sheets, err := models.RolloverYear(models.DB, editable.FromYear, editable.EntityType)
	if err != nil {
		e := err.Error()
		c.JSON(status(err), BalanceListResponse{
			Error: &e,
		})
		return
	}
	rolloverCount.Add(float64(len(sheets)))

	data := make([]Balance, 0, len(sheets))
	for _, sheet := range sheets {
		data = append(data, newBalance(c, sheet))
	}

	c.JSON(http.StatusOK, BalanceListResponse{Data: data})
}
