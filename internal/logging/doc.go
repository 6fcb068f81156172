// Package logging provides structured logging utilities for calmerge.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Logger construction from the configured level and format
//   - PII sanitization (user identifiers are hashed, feed URLs redacted)
//   - Consistent attribute naming across the codebase
//   - A Logger adapter that plugs slog into the refresh scheduler
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithSource(slog.Default(), "team-ics")
//	logger.Info("feed refreshed",
//	    logging.Count(len(events)),
//	    logging.Status(logging.StatusSuccess))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("agenda built",
//	    logging.UserHash(viewer.ID),
//	    logging.URL(feedURL))
//
// # Security Considerations
//
//   - User identifiers are hashed to prevent PII leakage while allowing correlation
//   - Feed URLs are reduced to scheme and host
//   - Tokens are never logged directly
package logging
