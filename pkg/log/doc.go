// Package log is the structured logging interface every sensorrelay
// component receives.
//
// Components log messages with typed fields and derive scoped loggers for a
// transfer session or a file with With:
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//	session := logger.With(log.String("session", id), log.String("file", name))
//	session.Info("transfer started", log.Int("batches", 3))
//
// Tests that do not inspect output pass NewNoopLogger. Any other backend can
// be plugged in by implementing Logger.
package log
