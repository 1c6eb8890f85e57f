package v1

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/parish-ledger/backend/internal/models"
	"github.com/parish-ledger/backend/internal/types"
	"github.com/shopspring/decimal"
)

type AllocationEntryEditable struct {
	EntityType models.EntityType `json:"entityType" example:"community"`                          // Type of the entity
	EntityID   uuid.UUID         `json:"entityId" example:"3a3b5a1a-2b7c-4d4e-8f60-1c2d3e4f5a6b"` // ID of the entity
	Name       string            `json:"name" example:"St. Mary's Community" default:""`          // Name of the entity at the time of the allocation
	Percentage decimal.Decimal   `json:"percentage" swaggertype:"string" example:"12.5"`          // Share of the total amount in percent

	// If zero, the amount is computed from the percentage
	AllocatedAmount decimal.Decimal `json:"allocatedAmount" swaggertype:"string" example:"1250"` // Amount allocated to the entity
}

type AllocationEditable struct {
	FiscalYear       types.FiscalYear          `json:"fiscalYear" swaggertype:"integer" example:"2024"`    // Fiscal year of the allocation
	Currency         string                    `json:"currency" example:"INR" default:""`                  // ISO 4217 currency code
	TotalAmount      decimal.Decimal           `json:"totalAmount" swaggertype:"string" example:"10000"`   // The pool that is distributed
	ParishPercentage decimal.Decimal           `json:"parishPercentage" swaggertype:"string" example:"40"` // Share of the pool left after communities that goes to parishes
	ParishAmount     decimal.Decimal           `json:"parishAmount" swaggertype:"string" example:"0"`      // Amount for the parishes. Computed from the percentage if zero.
	Entries          []AllocationEntryEditable `json:"entries"`                                            // Allocations per entity
}

// model returns the input for saving the allocation plan
func (editable AllocationEditable) model() models.AllocationPlanInput {
	entries := make([]models.AllocationEntryInput, 0, len(editable.Entries))
	for _, e := range editable.Entries {
		entries = append(entries, models.AllocationEntryInput{
			Entity:          models.EntityRef{Type: e.EntityType, ID: e.EntityID},
			Name:            e.Name,
			Percentage:      e.Percentage,
			AllocatedAmount: e.AllocatedAmount,
		})
	}

	return models.AllocationPlanInput{
		FiscalYear:       editable.FiscalYear,
		Currency:         editable.Currency,
		TotalAmount:      editable.TotalAmount,
		ParishPercentage: editable.ParishPercentage,
		ParishAmount:     editable.ParishAmount,
		Entries:          entries,
	}
}

type AllocationLinks struct {
	Self     string `json:"self" example:"https://example.com/api/v1/allocations/2024"`             // The allocation itself
	Balances string `json:"balances" example:"https://example.com/api/v1/balances?fiscalYear=2024"` // Balances of the fiscal year
}

// Allocation is the API representation of an allocation plan.
type Allocation struct {
	models.DefaultModel
	AllocationEditable
	TotalAllocated          decimal.Decimal `json:"totalAllocated" swaggertype:"string" example:"7000"`        // Sum of all entry amounts
	Remaining               decimal.Decimal `json:"remaining" swaggertype:"string" example:"3000"`             // Part of the pool that is not allocated
	BalanceAfterCommunity   decimal.Decimal `json:"balanceAfterCommunity" swaggertype:"string" example:"5000"` // Pool left after all communities
	OtherProjectsPercentage decimal.Decimal `json:"otherProjectsPercentage" swaggertype:"string" example:"60"` // Share of the pool after communities for other projects
	OtherProjectsAmount     decimal.Decimal `json:"otherProjectsAmount" swaggertype:"string" example:"3000"`   // Amount for other projects
	Links                   AllocationLinks `json:"links"`
}

func newAllocation(c *gin.Context, model models.AllocationPlan) Allocation {
	url := c.GetString(string(models.DBContextURL))

	entries := make([]AllocationEntryEditable, 0, len(model.Entries))
	for _, e := range model.Entries {
		entries = append(entries, AllocationEntryEditable{
			EntityType:      e.EntityType,
			EntityID:        e.EntityID,
			Name:            e.Name,
			Percentage:      e.Percentage,
			AllocatedAmount: e.AllocatedAmount,
		})
	}

	return Allocation{
		DefaultModel: model.DefaultModel,
		AllocationEditable: AllocationEditable{
			FiscalYear:       model.FiscalYear,
			Currency:         model.Currency,
			TotalAmount:      model.TotalAmount,
			ParishPercentage: model.ParishPercentage,
			ParishAmount:     model.ParishAmount,
			Entries:          entries,
		},
		TotalAllocated:          model.TotalAllocated,
		Remaining:               model.Remaining(),
		BalanceAfterCommunity:   model.BalanceAfterCommunity,
		OtherProjectsPercentage: model.OtherProjectsPercentage,
		OtherProjectsAmount:     model.OtherProjectsAmount,
		Links: AllocationLinks{
			Self:     fmt.Sprintf("%s/v1/allocations/%d", url, model.FiscalYear),
			Balances: fmt.Sprintf("%s/v1/balances?fiscalYear=%d", url, model.FiscalYear),
		},
	}
}

type AllocationResponse struct {
	Error *string     `json:"error" example:"the percentages add up to 110, which is more than 100"` // The error, if any occurred
	Data  *Allocation `json:"data"`                                                                  // Data for the allocation
}
