// The walk is a small state machine:
//
//	Start -> Fetching -> Filtering -> Fetching ... -> Stopped | Exhausted
//
// Any state may move to Failed. Records are normalized before the cutoff
// comparison; the first record created strictly before the cutoff stops the
// walk and no further pages are requested. Every request goes through the
// Governor, which decides whether a throttled or failed attempt is retried.
//
// A page without a continuation token ends the walk as Exhausted. Pages with
// no records but a token are followed, up to MaxEmptyPages in a row or until
// the source returns the token it was given.
package walker
