// Package condition evaluates the comparators of condition steps.
package condition

import (
	"errors"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/dukex/stepflow/pkg/models"
)

// Evaluate applies the comparator to field and value. Both operands are the literal strings
// captured when the step was authored. Unknown comparators evaluate to false.
func Evaluate(conditionType models.ConditionType, field, value string) bool {
	switch conditionType {
	case models.ConditionEquals:
		return field == value
	case models.ConditionNotEquals:
		return field != value
	case models.ConditionContains:
		return strings.Contains(field, value)
	case models.ConditionGreaterThan:
		return toNumber(field) > toNumber(value)
	case models.ConditionLessThan:
		return toNumber(field) < toNumber(value)
	case models.ConditionIsTrue:
		return truthy(field)
	case models.ConditionIsFalse:
		return !truthy(field)
	default:
		return false
	}
}

// Known reports whether the comparator is one Evaluate understands.
func Known(conditionType models.ConditionType) bool {
	switch conditionType {
	case models.ConditionEquals, models.ConditionNotEquals, models.ConditionContains,
		models.ConditionGreaterThan, models.ConditionLessThan, models.ConditionIsTrue, models.ConditionIsFalse:
		return true
	default:
		return false
	}
}

// truthy follows string truthiness: only the empty string is false.
func truthy(s string) bool {
	return s != ""
}

// toNumber parses a string the way a numeric conversion of user input does: surrounding
// whitespace is ignored, an empty string is zero and anything unparsable is NaN, which
// makes every ordered comparison false.
func toNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}

	lower := strings.ToLower(s)
	for prefix, base := range map[string]int{"0x": 16, "0o": 8, "0b": 2} {
		if strings.HasPrefix(lower, prefix) {
			return parseInteger(s[2:], base)
		}
	}

	for _, r := range lower {
		if (r < '0' || r > '9') && r != '.' && r != 'e' && r != '+' && r != '-' {
			return math.NaN()
		}
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return math.NaN()
	}

	return n
}

// parseInteger reads unsigned digits of any length in base, rounding to the nearest float64.
func parseInteger(digits string, base int) float64 {
	if digits == "" || digits[0] == '+' || digits[0] == '-' {
		return math.NaN()
	}

	n, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return math.NaN()
	}

	f, _ := new(big.Float).SetInt(n).Float64()

	return f
}
