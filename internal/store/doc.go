// Package store provides SQLite-backed durable storage for the matchmaking
// records.
//
// One table per record kind:
//   - users: registered participants (never deleted)
//   - lobby: waiting users, ordered by an AUTOINCREMENT seq
//   - matches + match_members: one canonical row per pair, one index row
//     per participant so either side resolves its partner in one lookup
//   - referrals + referral_links: counts and the ordered referred list
//   - memberships: live VIP grants only
//   - registrations: sign-ups still collecting gender, email or code
//   - meta: gateway offset and counters
//
// # Transactions
//
// Every accessor is defined on an unexported conn type embedded in both
// Store and Tx, so the same call works inside or outside Update. Any
// read-modify-write that must be atomic (enter lobby, create match, record
// referral) runs inside Store.Update.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Timestamps are stored as fixed-width UTC text, so ORDER BY on a timestamp
// column is chronological.
package store
