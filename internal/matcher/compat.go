package matcher

import "github.com/roach88/ghostchat/internal/model"

// Compatible reports whether a and b may be paired.
//
// Each side's gender preference must accept the other's gender, and the two
// org opt-in flags must agree. When both opted in and both have a verified
// email, the domains must be identical (case-sensitive). If either lacks a
// verified email the pair falls back to gender-only compatibility.
func Compatible(a, b model.User) bool {
	if !a.GenderPreference.Accepts(b.Gender) || !b.GenderPreference.Accepts(a.Gender) {
		return false
	}
	if a.OrgMatchOptIn != b.OrgMatchOptIn {
		return false
	}
	if !a.OrgMatchOptIn {
		return true
	}
	da, db := model.EmailDomain(a.TrustedEmail()), model.EmailDomain(b.TrustedEmail())
	if da == "" || db == "" {
		return true
	}
	return da == db
}

// sharedDomain returns the org domain both users matched on, or "".
func sharedDomain(a, b model.User) string {
	if !a.OrgMatchOptIn || !b.OrgMatchOptIn {
		return ""
	}
	da, db := model.EmailDomain(a.TrustedEmail()), model.EmailDomain(b.TrustedEmail())
	if da == "" || da != db {
		return ""
	}
	return da
}
