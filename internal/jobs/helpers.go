package jobs

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/welthhq/welth/internal/domain"
)

var hundred = decimal.NewFromInt(100)

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
