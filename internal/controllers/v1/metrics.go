package v1

import (
	"errors"

	"github.com/parish-ledger/backend/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the ledger metrics. They are registered by the router.
var Metrics = []prometheus.Collector{
	commitCount,
	rolloverCount,
}

var commitCount = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ledger_commits_total",
		Help: "How many transaction commits were attempted, partitioned by transaction type and result.",
	},
	[]string{"type", "result"},
)

var rolloverCount = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "ledger_rollover_sheets_total",
		Help: "How many balance sheets were carried over to the next fiscal year.",
	},
)

// commitResult returns the metric label for the result of a commit.
func commitResult(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, models.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, models.ErrNoAllocation):
		return "no_allocation"
	case errors.Is(err, models.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, models.ErrDuplicateActiveTransaction):
		return "duplicate_active"
	case errors.Is(err, models.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, models.ErrGeneral):
		return "error"
	}

	return "invalid"
}
