// Package safego provides a panic-recovering goroutine launcher for background
// work.
package safego

import "log/slog"

// Go launches fn in a new goroutine, recovering and logging any panic instead
// of crashing the process. All fire-and-forget work goes through it: OTP email
// delivery, last-used timestamp updates after key validation, audit event
// shipping. A panic in any of those must cost one log line, not the server.
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine", "panic", r)
			}
		}()
		fn()
	}()
}
