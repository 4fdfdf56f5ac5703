package mailer

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/mrz1836/postmark"

	"github.com/nkiryanov/bizmarket/internal/logger"
)

var (
	ErrInvalidConfig     = errors.New("invalid mailer config")
	ErrFailedToSendEmail = errors.New("failed to send email")
)

const resetSubject = "Reset your password"

// Out-of-band delivery of password reset links
type Sender interface {
	SendResetLink(ctx context.Context, to string, link string) error
}

type PostmarkConfig struct {
	ServerToken  string
	AccountToken string
	SenderEmail  string
}

// Is any Postmark setting provided, used to choose the sender
func (c PostmarkConfig) Enabled() bool {
	return c.ServerToken != "" || c.AccountToken != "" || c.SenderEmail != ""
}

// Sends emails through Postmark transactional API
type PostmarkSender struct {
	client *postmark.Client
	from   string
}

func NewPostmarkSender(cfg PostmarkConfig) (*PostmarkSender, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", ErrInvalidConfig)
	}
	if cfg.AccountToken == "" {
		return nil, fmt.Errorf("%w: postmark account token is required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" || !strings.Contains(cfg.SenderEmail, "@") {
		return nil, fmt.Errorf("%w: sender email is required", ErrInvalidConfig)
	}

	return &PostmarkSender{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		from:   cfg.SenderEmail,
	}, nil
}

func (s *PostmarkSender) SendResetLink(ctx context.Context, to string, link string) error {
	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:     s.from,
		To:       to,
		Subject:  resetSubject,
		Tag:      "password-reset",
		HTMLBody: resetHTML(link),
		TextBody: resetText(link),
	})
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(
			ErrFailedToSendEmail,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return nil
}

// Hands reset links to the log instead of sending them, for local development
type LogSender struct {
	logger logger.Logger
}

func NewLogSender(l logger.Logger) *LogSender {
	return &LogSender{logger: l}
}

func (s *LogSender) SendResetLink(_ context.Context, to string, link string) error {
	s.logger.Info("password reset link", "to", to, "link", link)
	return nil
}

func resetText(link string) string {
	return "Someone requested a password reset for your account.\n\n" +
		"Follow the link within one hour to choose a new password:\n" + link + "\n\n" +
		"If it was not you, ignore this email."
}

func resetHTML(link string) string {
	escaped := html.EscapeString(link)
	return "<p>Someone requested a password reset for your account.</p>" +
		`<p>Follow the link within one hour to choose a new password: <a href="` + escaped + `">` + escaped + "</a></p>" +
		"<p>If it was not you, ignore this email.</p>"
}
