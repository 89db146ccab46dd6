// Package logging builds the process logger on top of log/slog.
//
// # Overview
//
//   - JSON or text output, selected by Config.Format
//   - Levels debug, info, warn and error
//   - Optional redaction of submitted message text
//   - Request IDs carried through context.Context
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	logger.InfoContext(ctx, "message evaluated", "request_id", logging.GetRequestID(ctx))
//
// # Redaction
//
// Audited messages can carry operator data. With RedactMessages set, any
// attribute whose key is listed in RedactKeys (default "message") is
// replaced by its length, e.g. "[redacted 42 bytes]".
package logging
