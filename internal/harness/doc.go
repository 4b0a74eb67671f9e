// Package harness runs matchmaking scenarios against the real lobby,
// matcher, match state and membership engine.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: vip_priority_triad
//	description: "VIPs pair with each other first"
//	now: "2026-03-01T12:00:00Z"      # optional, clock start
//	users:
//	  - id: u1
//	    gender: Male
//	    prefer: Any                  # optional, default Any
//	    tier: VIP                    # optional, default Free
//	    vip_for: 720h                # membership expiry relative to now
//	    email: u1@acme.org           # optional, stored as verified
//	    org_match: false             # optional opt-in on the user record
//	lobby:                           # entered in this order
//	  - user: u1
//	    org_match: true              # optional, defaults to the user's opt-in
//	matches:
//	  - [u4, u5]
//	steps:
//	  - action: pass
//	  - action: advance
//	    duration: 24h
//	assertions:
//	  - type: paired
//	    users: [u1, u2]
//	  - type: waiting
//	    users: [u3]
//
// # Steps
//
//   - pass: one matching pass
//   - enter / leave: lobby entry or exit for user
//   - release: end the user's current match
//   - advance: move the clock forward by duration
//   - sweep: downgrade expired memberships
//   - grant: make user a VIP for days (default from the engine)
//
// # Assertion Types
//
//   - paired: the two users are matched with each other
//   - unmatched: none of the users has a partner
//   - waiting: the lobby holds exactly these users, in queue order
//   - match_count: the number of active matches
//   - tier: the user's tier after all steps
//   - notified: some notification to user contains the text
//   - not_notified: the user received nothing
//
// # Deterministic Testing
//
// Every scenario runs on a fresh in-memory SQLite store with a settable
// clock and sequential match ids ("match-1", "match-2", ...), so the trace
// is identical across runs and can be compared with golden files.
package harness
