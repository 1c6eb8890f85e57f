package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/parish-ledger/backend/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// AllocationPlan distributes the total pool of a fiscal year to entities.
type AllocationPlan struct {
	DefaultModel
	FiscalYear     types.FiscalYear `gorm:"uniqueIndex"`
	Currency       string
	TotalAmount    decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
	TotalAllocated decimal.Decimal `gorm:"type:DECIMAL(20,8)"`

	// The pool left after all communities have been allocated to
	// is split between the parishes and the other projects.
	BalanceAfterCommunity   decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
	ParishPercentage        decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
	ParishAmount            decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
	OtherProjectsPercentage decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
	OtherProjectsAmount     decimal.Decimal `gorm:"type:DECIMAL(20,8)"`

	Entries []AllocationEntry `gorm:"foreignKey:PlanID"`
}

// Remaining returns the part of the pool that is not allocated.
func (p AllocationPlan) Remaining() decimal.Decimal {
	return p.TotalAmount.Sub(p.TotalAllocated)
}

// AllocationEntry is the allocation for a single entity.
type AllocationEntry struct {
	DefaultModel
	PlanID          uuid.UUID
	FiscalYear      types.FiscalYear `gorm:"uniqueIndex:idx_allocation_entry_key"`
	EntityType      EntityType       `gorm:"uniqueIndex:idx_allocation_entry_key"`
	EntityID        uuid.UUID        `gorm:"uniqueIndex:idx_allocation_entry_key"`
	Name            string
	Percentage      decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
	AllocatedAmount decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
}

func (e AllocationEntry) Entity() EntityRef {
	return EntityRef{Type: e.EntityType, ID: e.EntityID}
}

func (e *AllocationEntry) BeforeSave(_ *gorm.DB) error {
	e.Name = strings.TrimSpace(e.Name)
	return nil
}

// AllocationPlanInput is a full replacement of the allocations of a fiscal year.
type AllocationPlanInput struct {
	FiscalYear       types.FiscalYear
	Currency         string
	TotalAmount      decimal.Decimal
	ParishPercentage decimal.Decimal
	ParishAmount     decimal.Decimal
	Entries          []AllocationEntryInput
}

type AllocationEntryInput struct {
	Entity     EntityRef
	Name       string
	Percentage decimal.Decimal

	// If the amount is zero, it is computed from the percentage and the total amount.
	AllocatedAmount decimal.Decimal
}

func validPercentage(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}

// plan validates the input and computes the plan with all derived values.
func (in AllocationPlanInput) plan() (AllocationPlan, error) {
	if in.FiscalYear.IsZero() {
		return AllocationPlan{}, fmt.Errorf("%w: the fiscal year must be set", ErrValidation)
	}

	if in.TotalAmount.IsNegative() {
		return AllocationPlan{}, fmt.Errorf("%w: the total amount must not be negative", ErrValidation)
	}

	if in.Currency != "" {
		unit, err := currency.ParseISO(in.Currency)
		if err != nil {
			return AllocationPlan{}, fmt.Errorf("%w: '%s' is not an ISO 4217 currency code", ErrValidation, in.Currency)
		}
		in.Currency = unit.String()
	}

	if !validPercentage(in.ParishPercentage) {
		return AllocationPlan{}, fmt.Errorf("%w: the parish percentage must be between 0 and 100", ErrValidation)
	}

	if in.ParishAmount.IsNegative() {
		return AllocationPlan{}, fmt.Errorf("%w: the parish amount must not be negative", ErrValidation)
	}

	plan := AllocationPlan{
		FiscalYear:       in.FiscalYear,
		Currency:         in.Currency,
		TotalAmount:      in.TotalAmount,
		ParishPercentage: in.ParishPercentage,
		ParishAmount:     in.ParishAmount,
	}

	var percentages, communities, parishes decimal.Decimal
	seen := make(map[EntityRef]bool, len(in.Entries))

	for _, e := range in.Entries {
		if err := e.Entity.Validate(); err != nil {
			return AllocationPlan{}, err
		}

		if seen[e.Entity] {
			return AllocationPlan{}, fmt.Errorf("%w: %s is allocated more than once", ErrValidation, e.Entity)
		}
		seen[e.Entity] = true

		if !validPercentage(e.Percentage) {
			return AllocationPlan{}, fmt.Errorf("%w: the percentage for %s must be between 0 and 100", ErrValidation, e.Entity)
		}

		if e.AllocatedAmount.IsNegative() {
			return AllocationPlan{}, fmt.Errorf("%w: the amount for %s must not be negative", ErrValidation, e.Entity)
		}

		amount := e.AllocatedAmount
		if amount.IsZero() && e.Percentage.IsPositive() {
			amount = in.TotalAmount.Mul(e.Percentage).Div(hundred).Round(8)
		}

		percentages = percentages.Add(e.Percentage)
		plan.TotalAllocated = plan.TotalAllocated.Add(amount)

		switch e.Entity.Type {
		case EntityCommunity:
			communities = communities.Add(amount)
		case EntityParish:
			parishes = parishes.Add(amount)
		}

		plan.Entries = append(plan.Entries, AllocationEntry{
			FiscalYear:      in.FiscalYear,
			EntityType:      e.Entity.Type,
			EntityID:        e.Entity.ID,
			Name:            e.Name,
			Percentage:      e.Percentage,
			AllocatedAmount: amount,
		})
	}

	if percentages.GreaterThan(hundred) {
		return AllocationPlan{}, fmt.Errorf("%w: the percentages add up to %s, which is more than 100", ErrValidation, percentages)
	}

	if plan.TotalAllocated.GreaterThan(in.TotalAmount) {
		return AllocationPlan{}, fmt.Errorf("%w: %s is allocated, which is more than the total amount of %s", ErrValidation, plan.TotalAllocated, in.TotalAmount)
	}

	plan.BalanceAfterCommunity = in.TotalAmount.Sub(communities)
	if plan.ParishAmount.IsZero() && plan.ParishPercentage.IsPositive() {
		plan.ParishAmount = plan.BalanceAfterCommunity.Mul(plan.ParishPercentage).Div(hundred).Round(8)
	}

	if plan.ParishAmount.GreaterThan(plan.BalanceAfterCommunity) {
		return AllocationPlan{}, fmt.Errorf("%w: the parish amount of %s is more than the %s left after community allocations", ErrValidation, plan.ParishAmount, plan.BalanceAfterCommunity)
	}

	plan.OtherProjectsPercentage = hundred.Sub(plan.ParishPercentage)
	plan.OtherProjectsAmount = plan.BalanceAfterCommunity.Sub(plan.ParishAmount)

	if plan.ParishAmount.IsPositive() && parishes.GreaterThan(plan.ParishAmount) {
		return AllocationPlan{}, fmt.Errorf("%w: the parishes are allocated %s, which is more than the parish amount of %s", ErrValidation, parishes, plan.ParishAmount)
	}

	return plan, nil
}

// SaveAllocationPlan replaces the allocation plan of a fiscal year.
//
// The balance sheets of all entities in the plan are updated with their new
// allocation. Entities that were part of the previous plan but are not part of
// the new one have their allocation reset to zero.
//
// Either the whole plan is saved or nothing is changed.
func SaveAllocationPlan(db *gorm.DB, in AllocationPlanInput) (AllocationPlan, error) {
	plan, err := in.plan()
	if err != nil {
		return AllocationPlan{}, err
	}

	err = runTransaction(db, func(tx *gorm.DB) error {
		var previous []AllocationEntry
		err := tx.Where("fiscal_year = ?", plan.FiscalYear).Find(&previous).Error
		if err != nil {
			return err
		}

		err = tx.Unscoped().Where("fiscal_year = ?", plan.FiscalYear).Delete(&AllocationEntry{}).Error
		if err != nil {
			return err
		}

		err = tx.Unscoped().Where("fiscal_year = ?", plan.FiscalYear).Delete(&AllocationPlan{}).Error
		if err != nil {
			return err
		}

		// Entries are created by the association
		err = tx.Create(&plan).Error
		if err != nil {
			return err
		}

		kept := make(map[EntityRef]bool, len(plan.Entries))
		for _, e := range plan.Entries {
			kept[e.Entity()] = true

			_, err := UpsertAllocation(tx, plan.FiscalYear, e.Entity(), e.AllocatedAmount)
			if err != nil {
				return err
			}
		}

		for _, e := range previous {
			if kept[e.Entity()] {
				continue
			}

			_, err := UpsertAllocation(tx, plan.FiscalYear, e.Entity(), decimal.Zero)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return AllocationPlan{}, err
	}

	log.Info().Str("fiscalYear", plan.FiscalYear.String()).Str("totalAllocated", plan.TotalAllocated.String()).Int("entries", len(plan.Entries)).Msg("saved allocation plan")
	return plan, nil
}

// GetAllocationPlan returns the allocation plan of a fiscal year with its entries.
func GetAllocationPlan(db *gorm.DB, year types.FiscalYear) (AllocationPlan, error) {
	var plan AllocationPlan
	err := db.Preload("Entries", func(db *gorm.DB) *gorm.DB {
		return db.Order("entity_type, name")
	}).Where("fiscal_year = ?", year).First(&plan).Error

	return plan, err
}
