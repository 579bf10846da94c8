// Package logging provides structured logging utilities for the treasurer
// application.
//
// This package centralizes logging patterns to ensure consistent, structured
// logging throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - PII sanitization (email anonymization, token masking)
//   - Consistent attribute naming across the codebase
//   - Logger adapter interface for flexibility
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "payhoa.list_bank_accounts")
//	logger.Info("listing accounts",
//	    logging.Status("success"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("login succeeded",
//	    logging.UserHash(email),
//	    slog.String("token", logging.SanitizeToken(token)))
//
// # Security Considerations
//
// This package is designed with security in mind:
//   - Login emails are hashed to prevent PII leakage while allowing correlation
//   - Bearer tokens and passwords are never logged directly
package logging
