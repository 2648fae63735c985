package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"billing_auth/internal/lib/jwt"
	sl "billing_auth/internal/lib/logger"
	"billing_auth/internal/lib/password"
	"billing_auth/internal/lib/verification"
	"billing_auth/internal/models"
	"billing_auth/internal/storage"
)

var (
	// ErrInvalidCredentials covers unknown email, wrong password, inactive
	// account, and unverified email alike. Collapsing them keeps login
	// responses free of account-enumeration signals.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrEmailExists           = errors.New("email already exists")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired verification token")
)

type AccountSaver interface {
	CreateAccountWithVerificationToken(
		ctx context.Context,
		email string,
		passHash, passSalt []byte,
		algorithm string,
		tokenHash string,
		expiresAt time.Time,
	) (models.Account, error)
}

type AccountProvider interface {
	AccountByEmail(ctx context.Context, email string) (models.Account, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

type TokenKeeper interface {
	ConsumeVerificationToken(ctx context.Context, accountUUID uuid.UUID, tokenHash string) error
	PendingAccountByEmail(ctx context.Context, email string) (models.Account, error)
	ReplaceVerificationToken(ctx context.Context, email, tokenHash string, expiresAt time.Time) error
}

type Auth struct {
	log             *slog.Logger
	accSaver        AccountSaver
	accProvider     AccountProvider
	tokens          TokenKeeper
	issuer          *jwt.Issuer
	publisher       verification.Publisher
	baseURL         string
	verificationTTL time.Duration
}

func New(
	log *slog.Logger,
	accountSaver AccountSaver,
	accountProvider AccountProvider,
	tokenKeeper TokenKeeper,
	issuer *jwt.Issuer,
	publisher verification.Publisher,
	baseURL string,
	verificationTTL time.Duration,
) *Auth {
	return &Auth{
		log:             log,
		accSaver:        accountSaver,
		accProvider:     accountProvider,
		tokens:          tokenKeeper,
		issuer:          issuer,
		publisher:       publisher,
		baseURL:         baseURL,
		verificationTTL: verificationTTL,
	}
}

// RegisterNewAccount creates an unverified account together with its
// verification token in one store transaction and dispatches the raw token
// to the outbound email queue.
func (a *Auth) RegisterNewAccount(ctx context.Context, email, pass string) (models.Account, error) {
	const op = "auth.RegisterNewAccount"

	log := a.log.With(slog.String("op", op))

	email = NormalizeEmail(email)

	passHash, passSalt, algorithm, err := password.Hash(pass)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	rawToken, err := verification.GenerateRaw()
	if err != nil {
		log.Error("failed to generate verification token", sl.Err(err))
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	account, err := a.accSaver.CreateAccountWithVerificationToken(
		ctx,
		email,
		passHash,
		passSalt,
		algorithm,
		verification.HashToken(rawToken),
		time.Now().Add(a.verificationTTL),
	)
	if err != nil {
		if errors.Is(err, storage.ErrEmailExists) {
			log.Warn("email already registered")
			return models.Account{}, fmt.Errorf("%s: %w", op, ErrEmailExists)
		}

		log.Error("failed to create account", sl.Err(err))
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	// The account is committed at this point; if the dispatch fails the user
	// can still request a resend.
	if err := verification.SendLink(ctx, log, a.publisher, a.baseURL, account.Email, account.UUID, rawToken); err != nil {
		log.Error("failed to dispatch verification link", sl.Err(err))
	}

	log.Info("account registered", slog.Int64("id", account.ID))

	return account, nil
}

// Login checks the credentials and returns a signed bearer token. Every
// rejection path reports ErrInvalidCredentials; only an unsupported stored
// hash algorithm surfaces as a distinct hard failure.
func (a *Auth) Login(ctx context.Context, email, pass string) (string, time.Time, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	account, err := a.accProvider.AccountByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			log.Warn("account not found")
			return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		log.Error("failed to get account", sl.Err(err))
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	ok, err := password.Verify(pass, account.PasswordHash, account.PasswordSalt, account.PasswordAlgorithm)
	if err != nil {
		log.Error("failed to verify password", sl.Err(err))
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	if !ok || !account.Active || !account.VerifiedEmail {
		log.Info("login rejected")
		return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	token, expiresAt, err := a.issuer.Issue(account)
	if err != nil {
		log.Error("failed to issue bearer token", sl.Err(err))
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("account logged in", slog.Int64("id", account.ID))

	return token, expiresAt, nil
}

// VerifyEmail consumes a verification token. The token is single-use: the
// store deletes its row in the same transaction that flips the verified flag.
func (a *Auth) VerifyEmail(ctx context.Context, accountUUID uuid.UUID, rawToken string) error {
	const op = "auth.VerifyEmail"

	log := a.log.With(slog.String("op", op))

	err := a.tokens.ConsumeVerificationToken(ctx, accountUUID, verification.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, storage.ErrInvalidOrExpiredToken) {
			log.Warn("verification token rejected")
			return fmt.Errorf("%s: %w", op, ErrInvalidOrExpiredToken)
		}

		log.Error("failed to consume verification token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("email verified", slog.String("uuid", accountUUID.String()))

	return nil
}

// ResendVerification replaces the pending token with a fresh one and
// dispatches it. An unknown or already-verified email is a silent no-op:
// the caller renders the same success response either way, so the endpoint
// does not reveal whether the email is registered.
func (a *Auth) ResendVerification(ctx context.Context, email string) error {
	const op = "auth.ResendVerification"

	log := a.log.With(slog.String("op", op))

	email = NormalizeEmail(email)

	account, err := a.tokens.PendingAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			log.Info("resend is a no-op")
			return nil
		}

		log.Error("failed to look up pending account", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	rawToken, err := verification.GenerateRaw()
	if err != nil {
		log.Error("failed to generate verification token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	err = a.tokens.ReplaceVerificationToken(
		ctx,
		email,
		verification.HashToken(rawToken),
		time.Now().Add(a.verificationTTL),
	)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			// Verified between the lookup and the replace; still a no-op.
			log.Info("resend is a no-op")
			return nil
		}

		log.Error("failed to replace verification token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := verification.SendLink(ctx, log, a.publisher, a.baseURL, account.Email, account.UUID, rawToken); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("verification email resent", slog.Int64("id", account.ID))

	return nil
}

// CheckEmailAvailability reports whether the email can still be registered.
func (a *Auth) CheckEmailAvailability(ctx context.Context, email string) (bool, error) {
	const op = "auth.CheckEmailAvailability"

	exists, err := a.accProvider.EmailExists(ctx, NormalizeEmail(email))
	if err != nil {
		a.log.Error("failed to check email", slog.String("op", op), sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return !exists, nil
}

// NormalizeEmail folds the email to the form used for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
