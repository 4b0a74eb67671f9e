package model

import (
	"fmt"
	"strings"
	"time"
)

// Gender is a user's declared gender.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// ParseGender accepts the canonical spelling only.
func ParseGender(s string) (Gender, error) {
	switch Gender(s) {
	case GenderMale, GenderFemale:
		return Gender(s), nil
	}
	return "", fmt.Errorf("invalid gender %q", s)
}

// Emoji is the marker shown to a partner in place of a name.
func (g Gender) Emoji() string {
	if g == GenderFemale {
		return "🧒"
	}
	return "👦"
}

// Preference is the gender a user wants to be matched with.
type Preference string

const (
	PreferMale   Preference = "Male"
	PreferFemale Preference = "Female"
	PreferAny    Preference = "Any"
)

// ParsePreference maps the empty string to PreferAny.
func ParsePreference(s string) (Preference, error) {
	switch Preference(s) {
	case "":
		return PreferAny, nil
	case PreferMale, PreferFemale, PreferAny:
		return Preference(s), nil
	}
	return "", fmt.Errorf("invalid gender preference %q", s)
}

// Accepts reports whether a partner of gender g satisfies the preference.
func (p Preference) Accepts(g Gender) bool {
	switch p {
	case "", PreferAny:
		return true
	default:
		return string(p) == string(g)
	}
}

// Tier is the membership tier of a user.
type Tier string

const (
	TierFree Tier = "Free"
	TierVIP  Tier = "VIP"
)

// ParseTier maps the empty string to TierFree.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case "":
		return TierFree, nil
	case TierFree, TierVIP:
		return Tier(s), nil
	}
	return "", fmt.Errorf("invalid membership tier %q", s)
}

// User is a registered participant. Users are never deleted.
type User struct {
	ID               string
	DisplayName      string
	Gender           Gender
	GenderPreference Preference
	Email            string
	EmailVerified    bool
	Tier             Tier
	OrgMatchOptIn    bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TrustedEmail returns the email only when it has been verified.
func (u User) TrustedEmail() string {
	if !u.EmailVerified {
		return ""
	}
	return u.Email
}

// LobbyEntry is a user waiting for a partner. Gender, preference, tier and
// org flag are copied from the user record when the entry is written.
type LobbyEntry struct {
	UserID           string
	Gender           Gender
	GenderPreference Preference
	Tier             Tier
	OrgMatchOptIn    bool
	EnteredAt        time.Time

	// Seq is the insertion order. A refreshed entry keeps its Seq.
	Seq int64
}

// Match is an active pairing of two distinct users.
type Match struct {
	ID        string
	UserA     string
	UserB     string
	CreatedAt time.Time
}

// PartnerOf returns the other participant, or "" if id is not in the match.
func (m Match) PartnerOf(id string) string {
	switch id {
	case m.UserA:
		return m.UserB
	case m.UserB:
		return m.UserA
	}
	return ""
}

// Referral is the referral history of one referrer.
type Referral struct {
	ReferrerID string
	// Referred holds distinct user ids in the order they were referred.
	Referred       []string
	TotalCount     int
	VIPEarned      bool
	LastReferralAt time.Time
}

// Membership is a live VIP grant. It exists only while VIP is active.
type Membership struct {
	UserID    string
	GrantedAt time.Time
	ExpiresAt time.Time
	Reason    string
}

// ExpiredAt reports whether the membership is expired at now.
// The expiry instant itself is still valid.
func (m Membership) ExpiredAt(now time.Time) bool {
	return now.After(m.ExpiresAt)
}

// Membership grant reasons.
const (
	ReasonReferralReward = "referral_reward"
	ReasonManual         = "manual"
)

// EmailDomain returns the part after the first '@', or "" if there is none.
// Domains are compared exactly; no case folding is applied.
func EmailDomain(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok {
		return ""
	}
	return domain
}
