package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/parish-ledger/backend/internal/httputil"
	"github.com/parish-ledger/backend/internal/models"
)

type Response struct {
	Links Links `json:"links"` // Links for the v1 API
}

type Links struct {
	Balances     string `json:"balances" example:"https://example.com/api/v1/balances"`          // URL of balance list endpoint
	Rollover     string `json:"rollover" example:"https://example.com/api/v1/balances/rollover"` // URL of the rollover endpoint
	Allocations  string `json:"allocations" example:"https://example.com/api/v1/allocations"`    // URL of allocation plan endpoint
	Transactions string `json:"transactions" example:"https://example.com/api/v1/transactions"`  // URL of transaction list endpoint
	Transfers    string `json:"transfers" example:"https://example.com/api/v1/transfers"`        // URL of transfer endpoint
}

// RegisterRootRoutes registers the routes for the v1 root with the
// RouterGroup that is passed.
func RegisterRootRoutes(r *gin.RouterGroup) {
	r.GET("", GetRoot)
	r.OPTIONS("", OptionsRoot)
}

// @Summary		v1 API
// @Description	Returns general information about the v1 API
// @Tags			v1
// @Success		200	{object}	Response
// @Router			/v1 [get]
func GetRoot(c *gin.Context) {
	url := c.GetString(string(models.DBContextURL))

	c.JSON(http.StatusOK, Response{
		Links: Links{
			Balances:     url + "/v1/balances",
			Rollover:     url + "/v1/balances/rollover",
			Allocations:  url + "/v1/allocations",
			Transactions: url + "/v1/transactions",
			Transfers:    url + "/v1/transfers",
		},
	})
}

// @Summary		Allowed HTTP verbs
// @Description	Returns an empty response with the HTTP Header "allow" set to the allowed HTTP verbs
// @Tags			v1
// @Success		204
// @Router			/v1 [options]
func OptionsRoot(c *gin.Context) {
	httputil.OptionsGet(c)
}
