// Package quota implements the per-identity daily quota engine.
//
// Counters live in the shared store under
// "{prefix}:{tier}:{identity}:{YYYY-MM-DD}" with the date taken in UTC, so
// every window resets at UTC midnight. Keys expire a little over a day after
// their first increment; nothing ever deletes them on the hot path.
//
// The engine offers two admission styles:
//
//   - Check then Record: Check is read-only, Record increments after the
//     request was served. Concurrent bursts from one identity can be
//     over-admitted by the number of requests in flight.
//   - Reserve then Release: Reserve increments atomically only while under
//     the limit. Release gives the unit back when the request fails or the
//     client goes away.
//
// Store failures never reach the caller. Check and Reserve fail open, Record
// and Release drop the update; all of them log a warning and count the
// failure in metrics.
package quota
