// Package storage manages the directory of batch part files that backs a
// run's output until it is finalized.
//
// Parts are numbered from 1 and written atomically: content goes to a
// temporary file that is synced and renamed into place, so a part that is
// visible in the directory is always complete. Scanning an existing
// directory recovers the parts of an interrupted run.
//
// Usage:
//
//	parts, err := storage.OpenParts("tweets.parquet.parts")
//	if err != nil {
//	    return err
//	}
//	err = parts.Write(parts.Next(), func(w io.Writer) error {
//	    return encodeBatch(w, batch)
//	})
package storage
