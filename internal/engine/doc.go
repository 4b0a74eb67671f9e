// Package engine drives the bot.
//
// ARCHITECTURE:
//
// Single-Writer Loop:
// One goroutine runs every phase in sequence, so store writes made by
// handlers, the matcher and the sweeper never interleave:
//  1. PollOnce fetches updates from the gateway and persists the next offset
//  2. Drain hands queued updates to the command handler in arrival order
//  3. MatchOnce runs a match pass when the lobby is large enough
//  4. SweepIfDue downgrades expired VIP memberships on a coarse interval
//
// Outbound messages are queued on a notifier and delivered by its own
// workers, so a slow gateway never stalls a phase.
//
// Failure policy is log and continue. A failed update is not retried; the
// offset has already moved past it. A failed poll backs off before the
// next iteration.
package engine
