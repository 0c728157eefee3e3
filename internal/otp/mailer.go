package otp

import (
	"context"
	"log/slog"
)

// Mailer delivers a verification code to an email address. The service layer
// depends on this interface so handlers never know how codes travel.
type Mailer interface {
	SendCode(ctx context.Context, email, code string, purpose Purpose) error
}

// LogMailer writes codes to the log instead of sending mail. Development and
// test environments use it; production wires a real provider.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) SendCode(ctx context.Context, email, code string, purpose Purpose) error {
	m.Logger.Info("verification code issued",
		slog.String("email", email),
		slog.String("purpose", string(purpose)),
		slog.String("code", code),
	)
	return nil
}
