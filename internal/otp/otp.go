// Package otp verifies email addresses with one-time codes.
//
// A code is mailed to the address and kept per user until it expires or is
// confirmed. Only a confirmed address is stored as verified on the user
// record, and only a verified address takes part in org matching.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/roach88/ghostchat/internal/metrics"
)

const (
	// DefaultPrefix starts every code, e.g. "GC-482913".
	DefaultPrefix = "GC-"
	// DefaultTTL is how long a code stays valid.
	DefaultTTL = 10 * time.Minute

	subject = "Your OTP Verification Code - GhostChat"
)

// Service issues and checks codes.
type Service struct {
	codes  CodeStore
	mailer Mailer
	ttl    time.Duration
	prefix string
	logger *slog.Logger

	// digits returns the six digit part of a code.
	digits func() (int64, error)
}

// Option configures a Service.
type Option func(*Service)

// WithTTL sets the code lifetime.
func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithPrefix sets the code prefix.
func WithPrefix(p string) Option {
	return func(s *Service) {
		if p != "" {
			s.prefix = p
		}
	}
}

// WithDigits replaces the random source. Tests use it for fixed codes.
func WithDigits(fn func() (int64, error)) Option {
	return func(s *Service) { s.digits = fn }
}

// NewService creates a Service.
func NewService(codes CodeStore, mailer Mailer, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		codes:  codes,
		mailer: mailer,
		ttl:    DefaultTTL,
		prefix: DefaultPrefix,
		logger: logger.With("component", "otp"),
		digits: randomDigits,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// randomDigits returns a uniform number in [100000, 999999].
func randomDigits() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return 0, err
	}
	return n.Int64() + 100000, nil
}

// Prefix returns the code prefix.
func (s *Service) Prefix() string { return s.prefix }

// LooksLikeCode reports whether text is shaped like a code the user typed.
func (s *Service) LooksLikeCode(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), s.prefix)
}

// SendVerificationCode issues a fresh code for userID and mails it to email.
// A previous pending code is replaced. If delivery fails the code is
// discarded and the error returned.
func (s *Service) SendVerificationCode(ctx context.Context, userID, email string) (string, error) {
	n, err := s.digits()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	code := fmt.Sprintf("%s%d", s.prefix, n)

	if err := s.codes.Put(ctx, userID, Pending{Email: email, Code: code}, s.ttl); err != nil {
		return "", err
	}

	body := fmt.Sprintf("Your OTP code is: %s \n \n Warm Regards,\nTeam GhostChat", code)
	if err := s.mailer.Send(ctx, email, subject, body); err != nil {
		metrics.RecordOTP("send_failed")
		if derr := s.codes.Delete(ctx, userID); derr != nil {
			s.logger.Warn("discard undelivered code failed", "user", userID, "error", derr)
		}
		return "", fmt.Errorf("send code to %s: %w", email, err)
	}

	metrics.RecordOTP("sent")
	s.logger.Info("verification code sent", "user", userID, "email", email)
	return code, nil
}

// VerifyCode checks code against the pending one for userID. On a match
// the pending code is consumed and the email it was sent to is returned.
// A wrong code leaves the pending one in place.
func (s *Service) VerifyCode(ctx context.Context, userID, code string) (string, bool, error) {
	p, ok, err := s.codes.Get(ctx, userID)
	if err != nil {
		return "", false, err
	}
	if !ok || p.Code != strings.TrimSpace(code) {
		metrics.RecordOTP("rejected")
		return "", false, nil
	}
	if err := s.codes.Delete(ctx, userID); err != nil {
		return "", false, err
	}
	metrics.RecordOTP("verified")
	return p.Email, true, nil
}
