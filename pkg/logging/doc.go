// Package logging provides subsystem-tagged structured logging for tld on
// top of log/slog.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Session", "Token refreshed, expires in %ds", expiresIn)
//	logging.Debug("Signing", "Signing %d URLs", len(urls))
//	logging.Error("Store", err, "Failed to persist credential")
//
// Components that accept a *slog.Logger can use For(subsystem) to obtain a
// logger with the subsystem attribute already attached.
//
// # Audit Logging
//
// Changes to stored credentials are reported through Audit:
//
//	logging.Audit(logging.AuditEvent{
//	    Action:  "credential_stored",
//	    Outcome: "success",
//	    Target:  ".jwt",
//	})
//
// Token values, secret keys and signed query strings are never logged.
package logging
