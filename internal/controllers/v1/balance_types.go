package v1

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/parish-ledger/backend/internal/models"
	"github.com/parish-ledger/backend/internal/types"
	ez_uuid "github.com/parish-ledger/backend/internal/uuid"
	"github.com/shopspring/decimal"
)

type BalanceLinks struct {
	Self         string `json:"self" example:"https://example.com/api/v1/balances/community/3a3b5a1a-2b7c-4d4e-8f60-1c2d3e4f5a6b?fiscalYear=2024"`          // The balance itself
	Transactions string `json:"transactions" example:"https://example.com/api/v1/transactions?entity=3a3b5a1a-2b7c-4d4e-8f60-1c2d3e4f5a6b&fiscalYear=2024"` // Transactions booked against the balance
}

// Balance is the API representation of a balance sheet.
type Balance struct {
	FiscalYear          types.FiscalYear      `json:"fiscalYear" swaggertype:"integer" example:"2024"`         // Fiscal year, named by the year it starts in
	EntityType          models.EntityType     `json:"entityType" example:"community"`                          // Type of the entity
	EntityID            uuid.UUID             `json:"entityId" example:"3a3b5a1a-2b7c-4d4e-8f60-1c2d3e4f5a6b"` // ID of the entity
	OpeningBalance      decimal.Decimal       `json:"openingBalance" swaggertype:"string" example:"100"`       // Balance carried over from the previous fiscal year
	AllocatedAmount     decimal.Decimal       `json:"allocatedAmount" swaggertype:"string" example:"50"`       // Amount allocated in this fiscal year
	TotalConsumed       decimal.Decimal       `json:"totalConsumed" swaggertype:"string" example:"100"`        // Sum of all posted transactions
	CurrentBalance      decimal.Decimal       `json:"currentBalance" swaggertype:"string" example:"50"`        // Opening balance plus allocation minus consumption
	LastTransactionDate *time.Time            `json:"lastTransactionDate" example:"2024-05-04T00:00:00Z"`      // Date of the last posted transaction
	Version             int64                 `json:"version" example:"3"`                                     // Incremented on every change
	MonthlyBreakdown    []models.MonthlyTotal `json:"monthlyBreakdown,omitempty"`                              // Posted transactions by month. Only set for single balances.
	Links               BalanceLinks          `json:"links"`
}

func newBalance(c *gin.Context, model models.BalanceSheet) Balance {
	url := c.GetString(string(models.DBContextURL))

	return Balance{
		FiscalYear:          model.FiscalYear,
		EntityType:          model.EntityType,
		EntityID:            model.EntityID,
		OpeningBalance:      model.OpeningBalance,
		AllocatedAmount:     model.AllocatedAmount,
		TotalConsumed:       model.TotalConsumed,
		CurrentBalance:      model.CurrentBalance(),
		LastTransactionDate: model.LastTransactionDate,
		Version:             model.Version,
		Links: BalanceLinks{
			Self:         fmt.Sprintf("%s/v1/balances/%s/%s?fiscalYear=%d", url, model.EntityType, model.EntityID, model.FiscalYear),
			Transactions: fmt.Sprintf("%s/v1/transactions?entity=%s&fiscalYear=%d", url, model.EntityID, model.FiscalYear),
		},
	}
}

type BalanceResponse struct {
	Error *string  `json:"error" example:"the specified resource ID is not a valid UUID"` // The error, if any occurred
	Data  *Balance `json:"data"`                                                          // Data for the balance
}

type BalanceListResponse struct {
	Error *string   `json:"error" example:"the specified resource ID is not a valid UUID"` // The error, if any occurred
	Data  []Balance `json:"data"`                                                          // List of balances
}

type BalanceQueryFilter struct {
	FiscalYear types.FiscalYear  `form:"fiscalYear" swaggertype:"string"` // Fiscal year
	EntityType models.EntityType `form:"entityType"`                      // Type of the entity
}

type URIEntity struct {
	EntityType models.EntityType `uri:"entityType" binding:"required"` // Type of the entity
	EntityID   ez_uuid.UUID      `uri:"entityId" binding:"required"`   // ID of the entity
}

// ref returns the entity the URI points to.
func (u URIEntity) ref() (models.EntityRef, error) {
	if !u.EntityType.Valid() {
		return models.EntityRef{}, errEntityTypeInvalid
	}

	ref := models.EntityRef{Type: u.EntityType, ID: u.EntityID.UUID}
	return ref, ref.Validate()
}

type RolloverEditable struct {
	FromYear   types.FiscalYear  `json:"fromYear" swaggertype:"integer" example:"2023"` // The fiscal year whose balances are carried over
	EntityType models.EntityType `json:"entityType" example:"community" default:""`     // Only roll over balances of this type. All types if empty.
}
