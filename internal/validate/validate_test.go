package validate

import (
	"strings"
	"testing"

	"resumeadvisor/internal/apperr"
)

func TestEmail(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"ada@example.com", true},
		{"first.last+tag@sub.example.co", true},
		{"", false},
		{"no-at-sign.example.com", false},
		{"two@@example.com", false},
		{"spaces in@example.com", false},
		{"ada@localhost", false},
	}
	for _, tc := range cases {
		if got := Email(tc.in); got != tc.want {
			t.Errorf("Email(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestRequiredNamesFirstMissingField(t *testing.T) {
	fields := map[string]any{
		"email":    "ada@example.com",
		"password": "   ",
	}

	err := Required(fields, []string{"email", "password", "title"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation kind", err)
	}
	if !strings.Contains(err.Error(), "password") {
		t.Errorf("err = %q, want the first bad field named", err.Error())
	}

	if err := Required(fields, []string{"email"}); err != nil {
		t.Errorf("all present: err = %v, want nil", err)
	}
}
