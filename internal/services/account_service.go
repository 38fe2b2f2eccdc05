// Package services – AccountService
//
// This file implements the account store: registration with an emailed
// verification code, verification, login and profile lookup. Passwords are
// hashed with bcrypt through auth.Hasher; the verification email goes
// through the injected mail.Mailer.
//
// Mail delivery is best effort: a failed send is logged and counted, but the
// registration still succeeds and the account can be verified later.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-messenger-backend/internal/auth"
	"github.com/tbourn/go-messenger-backend/internal/domain"
	"github.com/tbourn/go-messenger-backend/internal/mail"
	"github.com/tbourn/go-messenger-backend/internal/repo"
)

// AccountService registers, verifies and authenticates accounts.
type AccountService struct {
	DB     *gorm.DB
	Hasher auth.Hasher
	Mailer mail.Mailer

	// NewCode generates verification codes; defaults to auth.GenerateCode.
	NewCode func() (string, error)
}

// NewAccountService wires an AccountService.
func NewAccountService(db *gorm.DB, hasher auth.Hasher, mailer mail.Mailer) *AccountService {
	return &AccountService{
		DB:      db,
		Hasher:  hasher,
		Mailer:  mailer,
		NewCode: auth.GenerateCode,
	}
}

// Register creates an unverified account and mails it a verification code.
func (s *AccountService) Register(ctx context.Context, name, email, password string) (*domain.Account, error) {
	ctx, span := otel.Tracer("services/AccountService").Start(ctx, "Register")
	defer span.End()

	name = normalizeName(name)
	email = NormalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return nil, ErrMissingField
	}

	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	code, err := s.newCode()
	if err != nil {
		return nil, err
	}

	a := &domain.Account{
		Name:             name,
		Email:            email,
		PasswordHash:     hash,
		VerificationCode: &code,
	}
	if err := repo.CreateAccount(ctx, s.DB, a); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	accountsRegistered.Inc()
	span.SetAttributes(attribute.Int64("account.id", int64(a.ID)))

	if s.Mailer != nil {
		if merr := s.Mailer.SendVerification(ctx, a.Name, a.Email, code); merr != nil {
			verificationMailFailures.Inc()
			span.RecordError(merr)
			log.Ctx(ctx).Warn().Err(merr).Uint("account_id", a.ID).Msg("verification mail not sent")
		}
	}
	return a, nil
}

// Verify marks the account verified when email and code match. Repeating a
// successful verification succeeds again.
func (s *AccountService) Verify(ctx context.Context, email, code string) error {
	ctx, span := otel.Tracer("services/AccountService").Start(ctx, "Verify")
	defer span.End()

	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return ErrMissingField
	}
	a, err := repo.GetAccountByEmailAndCode(ctx, s.DB, email, code)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrInvalidCode
		}
		return err
	}
	if a.Verified {
		return nil
	}
	return repo.MarkVerified(ctx, s.DB, a.ID)
}

// Login checks the password and returns the public profile. Unverified
// accounts may log in.
func (s *AccountService) Login(ctx context.Context, email, password string) (domain.Profile, error) {
	ctx, span := otel.Tracer("services/AccountService").Start(ctx, "Login")
	defer span.End()

	a, err := s.lookup(ctx, email)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := s.Hasher.CheckPassword(a.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrMismatch) {
			span.SetStatus(codes.Error, "malformed password hash")
		}
		return domain.Profile{}, ErrInvalidCredential
	}
	return domain.ProfileOf(a), nil
}

// Profile returns the public profile registered under email.
func (s *AccountService) Profile(ctx context.Context, email string) (domain.Profile, error) {
	ctx, span := otel.Tracer("services/AccountService").Start(ctx, "Profile")
	defer span.End()

	a, err := s.lookup(ctx, email)
	if err != nil {
		return domain.Profile{}, err
	}
	return domain.ProfileOf(a), nil
}

func (s *AccountService) lookup(ctx context.Context, email string) (*domain.Account, error) {
	return lookupAccount(ctx, s.DB, email)
}

func (s *AccountService) newCode() (string, error) {
	if s.NewCode != nil {
		return s.NewCode()
	}
	return auth.GenerateCode()
}

// lookupAccount resolves an email to an account, translating a miss into
// ErrAccountNotFound. Shared by every service that starts from an email.
func lookupAccount(ctx context.Context, db *gorm.DB, email string) (*domain.Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrMissingField
	}
	a, err := repo.GetAccountByEmail(ctx, db, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int64("account.id", int64(a.ID)))
	return a, nil
}

// NormalizeEmail trims and lower-cases an address; emails are stored this way.
// A Caser keeps state, so each call builds its own.
func NormalizeEmail(s string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(s))
}

// normalizeName composes the name to NFC and collapses whitespace runs.
func normalizeName(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(norm.NFC.String(s)), " ")
}
