package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

const (
	resendMaxAttempts   = 3
	resendMaxRetryAfter = 30 * time.Second
)

// EmailService delivers password reset codes.
type EmailService interface {
	SendPasswordResetCode(ctx context.Context, toEmail, code, idempotencyKey string) error
}

// NoopEmailService is used when outgoing email is disabled. Codes are never logged.
type NoopEmailService struct{}

func (s *NoopEmailService) SendPasswordResetCode(ctx context.Context, toEmail, code, idempotencyKey string) error {
	log.Printf("[EmailService] email disabled, password reset code for %s not delivered", toEmail)
	return nil
}

// resendSender is the part of the Resend client used for sending.
type resendSender interface {
	SendWithOptions(ctx context.Context, params *resend.SendEmailRequest, options *resend.SendEmailOptions) (*resend.SendEmailResponse, error)
}

// ResendEmailService sends emails through the Resend API.
type ResendEmailService struct {
	from    string
	codeTTL time.Duration
	emails  resendSender
}

func NewResendEmailService(apiKey, from string, codeTTL time.Duration) (*ResendEmailService, error) {
	switch {
	case apiKey == "":
		return nil, fmt.Errorf("resend api key is required")
	case from == "":
		return nil, fmt.Errorf("email from is required")
	}
	if codeTTL <= 0 {
		codeTTL = 15 * time.Minute
	}
	return &ResendEmailService{
		from:    from,
		codeTTL: codeTTL,
		emails:  resend.NewClient(apiKey).Emails,
	}, nil
}

func (s *ResendEmailService) SendPasswordResetCode(ctx context.Context, toEmail, code, idempotencyKey string) error {
	if toEmail == "" || code == "" {
		return fmt.Errorf("toEmail and code are required")
	}
	options := &resend.SendEmailOptions{IdempotencyKey: strings.TrimSpace(idempotencyKey)}
	return s.send(ctx, s.passwordResetMessage(toEmail, code), options)
}

func (s *ResendEmailService) passwordResetMessage(toEmail, code string) *resend.SendEmailRequest {
	notice := fmt.Sprintf("It expires in %d minutes. If you did not request a reset, ignore this email.", int(s.codeTTL.Minutes()))
	return &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{toEmail},
		Subject: "Reset your password",
		Text:    fmt.Sprintf("Your password reset code is %s. %s", code, notice),
		Html:    fmt.Sprintf("<p>Your password reset code is <strong>%s</strong>.</p><p>%s</p>", code, notice),
	}
}

// send retries rate-limited and transient failures. The idempotency key makes retries safe.
func (s *ResendEmailService) send(ctx context.Context, params *resend.SendEmailRequest, options *resend.SendEmailOptions) error {
	var err error
	for attempt := 0; attempt < resendMaxAttempts; attempt++ {
		if _, err = s.emails.SendWithOptions(ctx, params, options); err == nil {
			return nil
		}

		wait, retryable := resendRetryDelay(err, attempt)
		if !retryable {
			return fmt.Errorf("resend send failed: %w", err)
		}
		log.Printf("[EmailService] resend attempt %d failed, retrying in %s: %v", attempt+1, wait, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("resend send failed after %d attempts: %w", resendMaxAttempts, err)
}

// resendRetryDelay reports whether err is worth retrying and how long to wait first.
func resendRetryDelay(err error, attempt int) (time.Duration, bool) {
	backoff := time.Duration(attempt+1) * 500 * time.Millisecond

	var rateLimitErr *resend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		seconds, convErr := strconv.Atoi(strings.TrimSpace(rateLimitErr.RetryAfter))
		if convErr != nil || seconds <= 0 {
			return time.Duration(attempt+1) * time.Second, true
		}
		if wait := time.Duration(seconds) * time.Second; wait < resendMaxRetryAfter {
			return wait, true
		}
		return resendMaxRetryAfter, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return backoff, true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "temporar") {
		return backoff, true
	}
	return 0, false
}
