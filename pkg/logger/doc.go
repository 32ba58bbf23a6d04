// Package logger provides the structured logging interface used across tweetpull.
//
// It wraps zerolog with a small interface so pipeline components receive a
// Logger by injection and tests can substitute NewNopLogger or NewTestLogger.
// Console output is human readable by default; Format "json" switches the
// console to raw JSON lines and File adds a JSON log file alongside.
//
//	log, err := logger.New(&cfg.Logging)
//	if err != nil {
//		return err
//	}
//	log.WithField("account", "nasa").Info("Extraction started")
package logger
