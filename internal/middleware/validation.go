package middleware

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
)

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	var msgs []string
	for _, e := range v.Errors {
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors.
func (v ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add adds a validation error.
func (v *ValidationErrors) Add(field, message string) {
	v.Errors = append(v.Errors, ValidationError{Field: field, Message: message})
}

// WriteJSON writes the validation errors as a 400 response.
func (v ValidationErrors) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(v)
}

// Tickers such as AAPL, BRK.B, NOVO-B or 7203.T.
var symbolRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,14}$`)

// NormalizeSymbol sanitizes and upper-cases a ticker, reporting whether the
// result is a plausible symbol.
func NormalizeSymbol(raw string) (string, bool) {
	s := strings.ToUpper(SanitizeString(raw))
	return s, symbolRegex.MatchString(s)
}

// SanitizeString trims whitespace and removes control characters.
func SanitizeString(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
	return s
}
