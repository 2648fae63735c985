package auth_test

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billing_auth/internal/auth"
	"billing_auth/internal/lib/jwt"
	"billing_auth/internal/lib/password"
	"billing_auth/internal/models"
	"billing_auth/internal/storage/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type capturingPublisher struct {
	messages []models.Message
}

func (p *capturingPublisher) SendMessage(_ context.Context, msg models.Message) error {
	p.messages = append(p.messages, msg)
	return nil
}

// lastLink returns the account uuid and raw token embedded in the most
// recently published verification link.
func (p *capturingPublisher) lastLink(t *testing.T) (uuid.UUID, string) {
	t.Helper()

	require.NotEmpty(t, p.messages)

	link, err := url.Parse(p.messages[len(p.messages)-1].Link)
	require.NoError(t, err)

	accountUUID, err := uuid.Parse(link.Query().Get("uuid"))
	require.NoError(t, err)

	return accountUUID, link.Query().Get("token")
}

func newTestAuth(t *testing.T, verificationTTL time.Duration) (*auth.Auth, *memory.Storage, *capturingPublisher, *jwt.Issuer) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	pub := &capturingPublisher{}

	issuer, err := jwt.New(testSecret, "billing-auth", "billing-clients", time.Hour)
	require.NoError(t, err)

	svc := auth.New(log, store, store, store, issuer, pub, "http://localhost:8080", verificationTTL)

	return svc, store, pub, issuer
}

func TestRegisterNewAccount(t *testing.T) {
	t.Parallel()

	svc, store, pub, _ := newTestAuth(t, 24*time.Hour)
	ctx := context.Background()

	account, err := svc.RegisterNewAccount(ctx, "  Alice@Example.COM ", "Secret123!")
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", account.Email)
	assert.False(t, account.VerifiedEmail)
	assert.NotEqual(t, uuid.Nil, account.UUID)

	stored, err := store.AccountByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, stored.Active)
	assert.False(t, stored.VerifiedEmail)

	linkUUID, rawToken := pub.lastLink(t)
	assert.Equal(t, account.UUID, linkUUID)
	assert.NotEmpty(t, rawToken)
}

func TestRegisterNewAccount_DuplicateEmail(t *testing.T) {
	t.Parallel()

	svc, store, _, _ := newTestAuth(t, 24*time.Hour)
	ctx := context.Background()

	_, err := svc.RegisterNewAccount(ctx, "a@x.com", "Secret123!")
	require.NoError(t, err)

	_, err = svc.RegisterNewAccount(ctx, "A@X.com", "OtherSecret1!")
	require.ErrorIs(t, err, auth.ErrEmailExists)

	// Exactly one account survives for that email.
	exists, err := store.EmailExists(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRegisterNewAccount_EmptyPassword(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestAuth(t, 24*time.Hour)

	_, err := svc.RegisterNewAccount(context.Background(), "a@x.com", "")
	require.ErrorIs(t, err, password.ErrEmptyPassword)
}

func TestVerifyEmail_SingleUse(t *testing.T) {
	t.Parallel()

	svc, store, pub, _ := newTestAuth(t, 24*time.Hour)
	ctx := context.Background()

	_, err := svc.RegisterNewAccount(ctx, "bob@example.com", "Secret123!")
	require.NoError(t, err)

	accountUUID, rawToken := pub.lastLink(t)

	require.NoError(t, svc.VerifyEmail(ctx, accountUUID, rawToken))

	stored, err := store.AccountByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.True(t, stored.VerifiedEmail)

	// The token row is gone; a replay of the same raw token fails.
	err = svc.VerifyEmail(ctx, accountUUID, rawToken)
	require.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
}

func TestVerifyEmail_WrongToken(t *testing.T) {
	t.Parallel()

	svc, _, pub, _ := newTestAuth(t, 24*time.Hour)
	ctx := context.Background()

	_, err := svc.RegisterNewAccount(ctx, "bob@example.com", "Secret123!")
	require.NoError(t, err)

	accountUUID, _ := pub.lastLink(t)

	err = svc.VerifyEmail(ctx, accountUUID, "definitely-not-the-token")
	require.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
}

func TestVerifyEmail_Expired(t *testing.T) {
	t.Parallel()

	svc, _, pub, _ := newTestAuth(t, -time.Hour)
	ctx := context.Background()

	_, err := svc.RegisterNewAccount(ctx, "late@example.com", "Secret123!")
	require.NoError(t, err)

	accountUUID, rawToken := pub.lastLink(t)

	err = svc.VerifyEmail(ctx, accountUUID, rawToken)
	require.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
}

func TestResendVerification_NoOpOutcomes(t *testing.T) {
	t.Parallel()

	svc, _, pub, _ := newTestAuth(t, 24*time.Hour)
	ctx := context.Background()

	// Unknown email: success, nothing published.
	require.NoError(t, svc.ResendVerification(ctx, "ghost@example.com"))
	assert.Empty(t, pub.messages)

	// Verified account: success, nothing published either.
	_, err := svc.RegisterNewAccount(ctx, "carol@example.com", "Secret123!")
	require.NoError(t, err)
	accountUUID, rawToken := pub.lastLink(t)
	require.NoError(t, svc.VerifyEmail(ctx, accountUUID, rawToken))

	sent := len(pub.messages)
	require.NoError(t, svc.ResendVerification(ctx, "carol@example.com"))
	assert.Len(t, pub.messages, sent)
}

func TestResendVerification_ReplacesToken(t *testing.T) {
	t.Parallel()

	svc, _, pub, _ := newTestAuth(t, 24*time.Hour)
	ctx := context.Background()

	_, err := svc.RegisterNewAccount(ctx, "dave@example.com", "Secret123!")
	require.NoError(t, err)

	accountUUID, oldToken := pub.lastLink(t)

	require.NoError(t, svc.ResendVerification(ctx, "dave@example.com"))

	newUUID, newToken := pub.lastLink(t)
	assert.Equal(t, accountUUID, newUUID)
	assert.NotEqual(t, oldToken, newToken)

	// The superseded token no longer consumes; the fresh one does.
	err = svc.VerifyEmail(ctx, accountUUID, oldToken)
	require.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)

	require.NoError(t, svc.VerifyEmail(ctx, accountUUID, newToken))
}

func TestLogin_EndToEnd(t *testing.T) {
	t.Parallel()

	svc, _, pub, issuer := newTestAuth(t, 24*time.Hour)
	ctx := context.Background()

	account, err := svc.RegisterNewAccount(ctx, "alice@example.com", "Secret123!")
	require.NoError(t, err)

	accountUUID, rawToken := pub.lastLink(t)
	require.NoError(t, svc.VerifyEmail(ctx, accountUUID, rawToken))

	token, expiresAt, err := svc.Login(ctx, "alice@example.com", "Secret123!")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, account.UUID.String(), claims.Subject)
	assert.Equal(t, account.ID, claims.UID)
}

func TestLogin_Undifferentiated(t *testing.T) {
	t.Parallel()

	svc, _, pub, _ := newTestAuth(t, 24*time.Hour)
	ctx := context.Background()

	_, err := svc.RegisterNewAccount(ctx, "eve@example.com", "Secret123!")
	require.NoError(t, err)
	accountUUID, rawToken := pub.lastLink(t)
	require.NoError(t, svc.VerifyEmail(ctx, accountUUID, rawToken))

	// Wrong password and nonexistent email yield the same outcome.
	_, _, errWrongPass := svc.Login(ctx, "eve@example.com", "WrongPass1!")
	require.ErrorIs(t, errWrongPass, auth.ErrInvalidCredentials)

	_, _, errNoAccount := svc.Login(ctx, "nobody@example.com", "Secret123!")
	require.ErrorIs(t, errNoAccount, auth.ErrInvalidCredentials)
}

func TestLogin_UnverifiedEmail(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestAuth(t, 24*time.Hour)
	ctx := context.Background()

	_, err := svc.RegisterNewAccount(ctx, "pending@example.com", "Secret123!")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "pending@example.com", "Secret123!")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestCheckEmailAvailability(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestAuth(t, 24*time.Hour)
	ctx := context.Background()

	available, err := svc.CheckEmailAvailability(ctx, "free@example.com")
	require.NoError(t, err)
	assert.True(t, available)

	_, err = svc.RegisterNewAccount(ctx, "free@example.com", "Secret123!")
	require.NoError(t, err)

	available, err = svc.CheckEmailAvailability(ctx, "Free@Example.com")
	require.NoError(t, err)
	assert.False(t, available)
}
