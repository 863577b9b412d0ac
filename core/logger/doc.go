// Package logger builds the zap logger shared by the server, the CLI and the
// conflict engine.
//
// Level is one of debug, info, warn or error; debug switches to zap's
// development preset. Format is json (default) or console, which the CLI uses
// for readable output. Every entry carries level, time (ISO8601) and message
// keys.
//
// Request handlers log through WithRayID so that entries of one request can
// be correlated with the X-Ray-ID response header:
//
//	l := logger.WithRayID(log, c)
//	l.Warn("Merge base unavailable", zap.String("target", req.TargetRef))
package logger
