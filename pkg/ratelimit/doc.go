// Package ratelimit implements the rate governor that paces requests to the
// tweet source.
//
// Every fetch is bracketed by BeforeRequest and OnResult:
//
//	for {
//		if err := gov.BeforeRequest(ctx); err != nil {
//			return err
//		}
//		page, err := src.FetchPage(ctx, id, cursor)
//		if err == nil {
//			gov.OnResult(ratelimit.Outcome{Kind: ratelimit.Success})
//			return page, nil
//		}
//		if exhausted := gov.OnResult(ratelimit.Outcome{Kind: ratelimit.Transient, Err: err}); exhausted != nil {
//			return nil, exhausted
//		}
//	}
//
// A baseline delay separates consecutive requests even when all succeed.
// Throttling waits until the reported reset instant plus a safety margin,
// floored at a minimum wait, or a default wait when no reset is known.
// Transient failures back off exponentially. Both share one consecutive
// failure budget that a success resets.
package ratelimit
