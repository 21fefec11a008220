// Package mailer is the outbound email channel used to deliver OTP codes.
// Delivery itself is an external concern; the OTP service only depends on the
// Mailer interface and never blocks a response on SMTP round-trips.
package mailer

import (
	"context"
	"log/slog"
)

// OtpMessage is the payload handed to the delivery channel when a code is
// issued. The code appears here and nowhere else; it is never echoed in an
// HTTP response.
type OtpMessage struct {
	Email            string
	Code             string
	Purpose          string
	ExpiresInSeconds int
}

// Mailer delivers OTP codes out-of-band.
type Mailer interface {
	SendOtp(ctx context.Context, msg OtpMessage) error
}

// Noop is a Mailer for deployments without SMTP configured. It logs that a
// delivery was skipped (never the code) so misconfiguration is visible.
type Noop struct{}

// SendOtp implements Mailer.
func (Noop) SendOtp(_ context.Context, msg OtpMessage) error {
	slog.Warn("otp email delivery skipped: no mailer configured",
		"email", msg.Email,
		"purpose", msg.Purpose,
	)
	return nil
}
