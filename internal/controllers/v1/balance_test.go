package v1_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	v1 "github.com/parish-ledger/backend/internal/controllers/v1"
	"github.com/parish-ledger/backend/internal/models"
	"github.com/parish-ledger/backend/internal/types"
	"github.com/parish-ledger/backend/test"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func (suite *TestSuiteStandard) TestBalancesGet() {
	community := uuid.New()
	suite.allocate(communityEntry(community, 500))

	first := communityTransaction(community, 100)
	first.Date = fiscalDate(0)
	suite.createTestTransaction(first)

	second := communityTransaction(community, 50)
	second.Date = fiscalDate(2)
	suite.createTestTransaction(second)

	third := communityTransaction(community, 25)
	third.Date = fiscalDate(2)
	suite.createTestTransaction(third)

	balance := suite.getBalance(community)
	suite.Assert().Equal(year, balance.FiscalYear)
	suite.Assert().True(decimal.NewFromInt(500).Equal(balance.AllocatedAmount))
	suite.Assert().True(decimal.NewFromInt(175).Equal(balance.TotalConsumed))
	suite.Assert().True(decimal.NewFromInt(325).Equal(balance.CurrentBalance))
	suite.Assert().Equal(fmt.Sprintf("http://example.com/v1/transactions?entity=%s&fiscalYear=2024", community), balance.Links.Transactions)

	suite.Require().Len(balance.MonthlyBreakdown, 2)
	suite.Assert().Equal(types.NewMonth(2024, 4), balance.MonthlyBreakdown[0].Month)
	suite.Assert().True(decimal.NewFromInt(100).Equal(balance.MonthlyBreakdown[0].Total))
	suite.Assert().Equal(types.NewMonth(2024, 6), balance.MonthlyBreakdown[1].Month)
	suite.Assert().True(decimal.NewFromInt(75).Equal(balance.MonthlyBreakdown[1].Total))
	suite.Assert().Equal(2, balance.MonthlyBreakdown[1].Count)

	// The links of the balance work
	r := test.Request(suite.T(), http.MethodGet, balance.Links.Transactions, "")
	test.AssertHTTPStatus(suite.T(), &r, http.StatusOK)

	var transactions v1.TransactionListResponse
	test.DecodeResponse(suite.T(), &r, &transactions)
	suite.Assert().Len(transactions.Data, 3)
}

func (suite *TestSuiteStandard) TestBalancesGetUnallocated() {
	r := test.Request(suite.T(), http.MethodGet, fmt.Sprintf("http://example.com/v1/balances/project/%s", uuid.New()), "")
	test.AssertHTTPStatus(suite.T(), &r, http.StatusOK)

	var response v1.BalanceResponse
	test.DecodeResponse(suite.T(), &r, &response)
	suite.Assert().True(response.Data.CurrentBalance.IsZero())
	suite.Assert().Equal(types.FiscalYearOf(time.Now()), response.Data.FiscalYear)
}

func (suite *TestSuiteStandard) TestBalancesGetFails() {
	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"Invalid entity type", fmt.Sprintf("/diocese/%s", uuid.New()), http.StatusBadRequest},
		{"Invalid ID", "/community/not-a-uuid", http.StatusBadRequest},
		{"Nil ID", fmt.Sprintf("/community/%s", uuid.Nil), http.StatusBadRequest},
		{"Invalid fiscal year", fmt.Sprintf("/community/%s?fiscalYear=24", uuid.New()), http.StatusBadRequest},
	}

	for _, tt := range tests {
		suite.T().Run(tt.name, func(t *testing.T) {
			r := test.Request(t, http.MethodGet, "http://example.com/v1/balances"+tt.path, "")
			test.AssertHTTPStatus(t, &r, tt.status)
		})
	}
}

func (suite *TestSuiteStandard) TestBalancesList() {
	c1, c2, p1 := uuid.New(), uuid.New(), uuid.New()
	suite.allocate(
		communityEntry(c1, 100),
		communityEntry(c2, 200),
		v1.AllocationEntryEditable{EntityType: models.EntityProject, EntityID: p1, AllocatedAmount: decimal.NewFromInt(300)},
	)

	tests := []struct {
		name   string
		query  string
		length int
		status int
	}{
		{"All", "", 3, http.StatusOK},
		{"Fiscal year", "?fiscalYear=2024", 3, http.StatusOK},
		{"Fiscal year long notation", "?fiscalYear=2024-25", 3, http.StatusOK},
		{"Other fiscal year", "?fiscalYear=2023", 0, http.StatusOK},
		{"Communities", "?entityType=community", 2, http.StatusOK},
		{"Projects", "?fiscalYear=2024&entityType=project", 1, http.StatusOK},
		{"Invalid entity type", "?entityType=diocese", 0, http.StatusBadRequest},
		{"Invalid fiscal year", "?fiscalYear=twenty", 0, http.StatusBadRequest},
	}

	for _, tt := range tests {
		suite.T().Run(tt.name, func(t *testing.T) {
			r := test.Request(t, http.MethodGet, "http://example.com/v1/balances"+tt.query, "")
			test.AssertHTTPStatus(t, &r, tt.status)

			if tt.status != http.StatusOK {
				return
			}

			var response v1.BalanceListResponse
			test.DecodeResponse(t, &r, &response)
			assert.Len(t, response.Data, tt.length)
		})
	}
}

func (suite *TestSuiteStandard) TestBalancesRollover() {
	community, project := uuid.New(), uuid.New()
	suite.allocate(
		communityEntry(community, 100),
		v1.AllocationEntryEditable{EntityType: models.EntityProject, EntityID: project, AllocatedAmount: decimal.NewFromInt(80)},
	)
	suite.createTestTransaction(communityTransaction(community, 30))

	r := test.Request(suite.T(), http.MethodPost, "http://example.com/v1/balances/rollover", v1.RolloverEditable{FromYear: year, EntityType: models.EntityCommunity})
	test.AssertHTTPStatus(suite.T(), &r, http.StatusOK)

	var response v1.BalanceListResponse
	test.DecodeResponse(suite.T(), &r, &response)
	suite.Require().Len(response.Data, 1)

	next := response.Data[0]
	suite.Assert().Equal(year.Next(), next.FiscalYear)
	suite.Assert().Equal(community, next.EntityID)
	suite.Assert().True(decimal.NewFromInt(70).Equal(next.OpeningBalance))
	suite.Assert().True(next.AllocatedAmount.IsZero())
	suite.Assert().True(decimal.NewFromInt(70).Equal(next.CurrentBalance))

	// Running it again gives the same result
	r = test.Request(suite.T(), http.MethodPost, "http://example.com/v1/balances/rollover", v1.RolloverEditable{FromYear: year})
	test.AssertHTTPStatus(suite.T(), &r, http.StatusOK)
	test.DecodeResponse(suite.T(), &r, &response)
	suite.Require().Len(response.Data, 2)

	r = test.Request(suite.T(), http.MethodGet, "http://example.com/v1/balances?fiscalYear=2025", "")
	test.AssertHTTPStatus(suite.T(), &r, http.StatusOK)
	test.DecodeResponse(suite.T(), &r, &response)
	suite.Require().Len(response.Data, 2)

	for _, balance := range response.Data {
		if balance.EntityID == community {
			suite.Assert().True(decimal.NewFromInt(70).Equal(balance.OpeningBalance))
		} else {
			suite.Assert().True(decimal.NewFromInt(80).Equal(balance.OpeningBalance))
		}
	}
}

func (suite *TestSuiteStandard) TestBalancesRolloverFails() {
	tests := []struct {
		name string
		body any
	}{
		{"Empty body", ""},
		{"No fiscal year", v1.RolloverEditable{}},
		{"Invalid entity type", v1.RolloverEditable{FromYear: year, EntityType: "diocese"}},
	}

	for _, tt := range tests {
		suite.T().Run(tt.name, func(t *testing.T) {
			r := test.Request(t, http.MethodPost, "http://example.com/v1/balances/rollover", tt.body)
			test.AssertHTTPStatus(t, &r, http.StatusBadRequest)
		})
	}
}

func (suite *TestSuiteStandard) TestBalancesDatabaseError() {
	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"List", http.MethodGet, "", ""},
		{"Single", http.MethodGet, fmt.Sprintf("/community/%s", uuid.New()), ""},
		{"Rollover", http.MethodPost, "/rollover", v1.RolloverEditable{FromYear: year}},
	}

	for _, tt := range tests {
		suite.T().Run(tt.name, func(t *testing.T) {
			suite.CloseDB()

			r := test.Request(t, tt.method, "http://example.com/v1/balances"+tt.path, tt.body)
			test.AssertHTTPStatus(t, &r, http.StatusInternalServerError)
			assert.Equal(t, models.ErrGeneral.Error(), test.DecodeError(t, &r))
		})
	}
}
