package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/julioberne/mercadosocial/internal/domain/currency"
	"github.com/julioberne/mercadosocial/internal/domain/model"
)

// tripleLimitFactor caps any submitted value at this multiple of the
// product's base price, currency-normalized.
const tripleLimitFactor = 3

// ValidationResult is the synchronous outcome of a client-side check.
// The guard is advisory only; nothing stops a write from bypassing it
// through another path.
type ValidationResult struct {
	Valid   bool    `json:"valid"`
	Message string  `json:"message,omitempty"`
	Limit   float64 `json:"limit,omitempty"`
}

// ValidateTripleLimit rejects amounts whose absolute value exceeds three
// times the base price. The limit in the message is converted back into the
// submitter's currency.
func ValidateTripleLimit(amount float64, amountCurrency model.CurrencyCode, basePrice float64, baseCurrency model.CurrencyCode, rates currency.RateTable) ValidationResult {
	amountInBase := currency.Convert(amount, amountCurrency, baseCurrency, rates)
	limitInBase := basePrice * tripleLimitFactor

	if math.Abs(amountInBase) > limitInBase {
		localLimit := currency.Convert(limitInBase, baseCurrency, amountCurrency, rates)
		return ValidationResult{
			Valid: false,
			Message: fmt.Sprintf(
				"ALERTA DE SEGURIDAD: El valor excede el triple permitido (±%.2f %s). El máximo se basa en el precio original.",
				localLimit, amountCurrency),
			Limit: localLimit,
		}
	}

	return ValidationResult{Valid: true}
}

// ValidateRequired reports an error message when the field is empty.
func ValidateRequired(value, fieldName string) string {
	if strings.TrimSpace(value) == "" {
		return fmt.Sprintf("%s es requerido", fieldName)
	}
	return ""
}

// ValidatePositiveNumber reports whether the value is a usable positive number.
func ValidatePositiveNumber(value float64) bool {
	return !math.IsNaN(value) && value > 0
}
