// Package validate holds the small pure validators shared by the handlers.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"resumeadvisor/internal/apperr"
)

// emailPattern is a deliberate approximation, not RFC 5322: one @, no spaces,
// a dot somewhere in the domain. Good enough for signup forms.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Email reports whether s looks like an email address.
func Email(s string) bool {
	return emailPattern.MatchString(s)
}

// Required checks that every named field is present and non-empty in fields,
// in list order, and fails naming the first missing one.
func Required(fields map[string]any, names []string) error {
	for _, name := range names {
		value, ok := fields[name]
		if !ok || value == nil {
			return apperr.Validation(fmt.Sprintf("missing required field: %s", name))
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			return apperr.Validation(fmt.Sprintf("missing required field: %s", name))
		}
	}
	return nil
}
