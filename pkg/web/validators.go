package web

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

// ParamValidator is a function type that validates a parameter.
type ParamValidator func(valueToTest int64) bool

func newComparisonValidator(valueInClosure int64, compareFn func(argValue, closedValue int64) bool) ParamValidator {
	return func(argValue int64) bool {
		return compareFn(argValue, valueInClosure)
	}
}

// gte returns a ParamValidator that checks if the argument is greater than or equal to the value captured in the closure.
func gte(valToCompareAgainst int64) ParamValidator {
	return newComparisonValidator(valToCompareAgainst, func(argValue, closedValue int64) bool {
		return argValue >= closedValue
	})
}

// ParseOptionalGte parses an optional integer query parameter.
// A missing or empty parameter yields ok=true with present=false, so the
// caller can fall back to its default. A malformed or out-of-range value
// responds with 400 and yields ok=false.
func ParseOptionalGte(r *http.Request, w http.ResponseWriter, logger *slog.Logger, key string, min int64) (value int64, present bool, ok bool) {
	return parseOptional(r, w, logger, key, gte(min))
}

func parseOptional(r *http.Request, w http.ResponseWriter, logger *slog.Logger, key string, pValidator ParamValidator) (int64, bool, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, false, true
	}
	intValue, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || !pValidator(intValue) {
		RespondError(w, logger, http.StatusBadRequest, fmt.Sprintf("Invalid %s number: %s", key, raw))
		return 0, false, false
	}
	return intValue, true, true
}
