// Package model defines the records shared by the matchmaking components:
// users, lobby entries, matches, referrals and VIP memberships, plus the
// error taxonomy every component reports through.
//
// Records are plain values. Ownership of persistence lives in the store;
// ownership of behavior lives in the lobby, matcher, matchstate and
// membership packages.
package model
