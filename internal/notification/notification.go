package notification

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"marketplace_auth/internal/models"
)

type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

// EmailSender turns auth events into queue messages for the mail sender.
type EmailSender struct {
	log       *slog.Logger
	pub       Publisher
	publicURL string
}

func New(log *slog.Logger, pub Publisher, publicURL string) *EmailSender {
	return &EmailSender{
		log:       log,
		pub:       pub,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (s *EmailSender) SendPasswordResetEmail(ctx context.Context, email, firstName, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", s.publicURL, url.QueryEscape(token))

	return s.send(ctx, "notification.SendPasswordResetEmail", models.Message{
		Email:     email,
		FirstName: firstName,
		Link:      link,
		Purpose:   models.PurposePasswordReset,
	})
}

func (s *EmailSender) SendWelcomeEmail(ctx context.Context, email, firstName string) error {
	return s.send(ctx, "notification.SendWelcomeEmail", models.Message{
		Email:     email,
		FirstName: firstName,
		Link:      s.publicURL + "/login",
		Purpose:   models.PurposeWelcome,
	})
}

func (s *EmailSender) SendPasswordChangedNotification(ctx context.Context, email, firstName string) error {
	return s.send(ctx, "notification.SendPasswordChangedNotification", models.Message{
		Email:     email,
		FirstName: firstName,
		Link:      s.publicURL + "/forgot-password",
		Purpose:   models.PurposePasswordChanged,
	})
}

func (s *EmailSender) send(ctx context.Context, op string, msg models.Message) error {
	if err := s.pub.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Debug("email queued", slog.String("op", op), slog.String("purpose", msg.Purpose))

	return nil
}
