package server

import (
	"strconv"
	"time"

	"market-relay/src/helpers"
	"market-relay/src/models"

	"github.com/gin-gonic/gin"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
	dateLayout   = "2006-01-02"
)

// -----------------------------------------------------------------------------

func writeError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(helpers.HTTPStatus(err), models.MErrorResponse{Error: err.Error()})
}

// -----------------------------------------------------------------------------

// parseLimit applies the default and clamps to maxLimit.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, helpers.NewValidationError("limit must be a positive integer")
	}
	return min(n, maxLimit), nil
}

// -----------------------------------------------------------------------------

func validateDateRange(from, to string) error {
	var start, end time.Time
	var err error
	if from != "" {
		if start, err = time.Parse(dateLayout, from); err != nil {
			return helpers.NewValidationError("exp_from must be YYYY-MM-DD")
		}
	}
	if to != "" {
		if end, err = time.Parse(dateLayout, to); err != nil {
			return helpers.NewValidationError("exp_to must be YYYY-MM-DD")
		}
	}
	if from != "" && to != "" && end.Before(start) {
		return helpers.NewValidationError("exp_to is before exp_from")
	}
	return nil
}
