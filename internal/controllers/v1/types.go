package v1

import (
	"time"

	"github.com/parish-ledger/backend/internal/types"
	ez_uuid "github.com/parish-ledger/backend/internal/uuid"
)

type URIID struct {
	ID ez_uuid.UUID `uri:"id" binding:"required"` // The ID of the resource
}

type URIFiscalYear struct {
	FiscalYear types.FiscalYear `uri:"fiscalYear" binding:"required" swaggertype:"string" example:"2024-25"` // Fiscal year, either the starting year or "2024-25"
}

type QueryFiscalYear struct {
	FiscalYear types.FiscalYear `form:"fiscalYear" swaggertype:"string" example:"2024-25"` // Fiscal year. Defaults to the current one.
}

type Pagination struct {
	Count  int   `json:"count" example:"25"`  // The amount of records returned in this response
	Offset uint  `json:"offset" example:"50"` // The offset for the first record returned
	Limit  int   `json:"limit" example:"25"`  // The maximum amount of resources to return for this request
	Total  int64 `json:"total" example:"827"` // The total number of resources matching the query
}

// currentFiscalYear returns the year if it is set and the current fiscal year otherwise.
func currentFiscalYear(year types.FiscalYear) types.FiscalYear {
	if year.IsZero() {
		return types.FiscalYearOf(time.Now())
	}

	return year
}
