package otp

import (
	"regexp"
	"strings"

	"github.com/roach88/ghostchat/internal/model"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// publicProviders are domain prefixes of free mail providers. Org matching
// is not offered to addresses on these domains.
var publicProviders = []string{"gmail", "outlook", "yahoo"}

// IsValidEmail reports whether s looks like a deliverable address.
func IsValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// Domain returns the part of email after the first "@".
func Domain(email string) string {
	return model.EmailDomain(email)
}

// IsPublicDomain reports whether domain belongs to a free mail provider.
func IsPublicDomain(domain string) bool {
	for _, p := range publicProviders {
		if strings.HasPrefix(domain, p) {
			return true
		}
	}
	return false
}
