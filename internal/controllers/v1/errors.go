package v1

import (
	"errors"
	"net/http"

	"github.com/parish-ledger/backend/internal/models"
)

type httpError struct {
	Error string `json:"error" example:"insufficient balance: 50 available, 60 requested"`
}

// status returns the appropriate status for an error
func status(err error) int {
	switch {
	case errors.Is(err, models.ErrGeneral):
		return http.StatusInternalServerError
	case errors.Is(err, models.ErrResourceNotFound), errors.Is(err, models.ErrNoAllocation):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConcurrencyConflict):
		return http.StatusConflict
	}

	return http.StatusBadRequest
}

var errEntityTypeInvalid = errors.New("the entityType must be one of community, project or parish")
