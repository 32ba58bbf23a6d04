// Package extractor runs one extraction: it resolves the time window,
// restores checkpointed progress, walks the account's timeline and writes
// every post inside the window to a Parquet file.
//
// A run ends in one of three ways:
//   - the walk reached a post older than the cutoff or the end of history:
//     the output is published and the checkpoint is removed
//   - the walk failed or the context was cancelled: nothing is published and
//     the checkpoint is kept so a later run with Resume can continue
//   - the request itself was invalid: nothing on disk is touched
//
// Usage:
//
//	ex := extractor.New(cfg, twitterClient, extractor.WithLogger(log))
//	result, err := ex.Run(ctx, extractor.Request{
//	    Handle:   "NASA",
//	    Output:   "nasa.parquet",
//	    Duration: "7 days",
//	})
package extractor
