package verification

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"billing_auth/internal/models"
)

const tokenBytes = 32

type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

// GenerateRaw returns a fresh 256-bit token in URL-safe base64 without
// padding. Only this raw value ever reaches the user; the store keeps
// SHA-256(raw) and nothing else.
func GenerateRaw() (string, error) {
	const op = "verification.GenerateRaw"

	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the SHA-256 hex digest that is persisted in place of the
// raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))

	return hex.EncodeToString(sum[:])
}

// SendLink publishes the verification link for the account to the outbound
// email queue. The raw token is embedded in the link and never logged.
func SendLink(
	ctx context.Context,
	log *slog.Logger,
	pub Publisher,
	baseURL, email string,
	accountUUID uuid.UUID,
	rawToken string,
) error {
	const op = "verification.SendLink"

	link := fmt.Sprintf("%s/verify?uuid=%s&token=%s", baseURL, accountUUID, url.QueryEscape(rawToken))

	msg := models.Message{
		Email:   email,
		Link:    link,
		Purpose: "email_verification",
	}

	if err := pub.SendMessage(ctx, msg); err != nil {
		log.Error("failed to publish verification link", slog.Any("err", err))

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
