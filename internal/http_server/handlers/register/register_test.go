package register_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billing_auth/internal/auth"
	"billing_auth/internal/http_server/handlers/register"
	"billing_auth/internal/lib/jwt"
	"billing_auth/internal/models"
	"billing_auth/internal/storage/memory"
)

type nopPublisher struct{}

func (nopPublisher) SendMessage(context.Context, models.Message) error { return nil }

func newHandler(t *testing.T) http.HandlerFunc {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()

	issuer, err := jwt.New("0123456789abcdef0123456789abcdef", "", "", time.Hour)
	require.NoError(t, err)

	svc := auth.New(log, store, store, store, issuer, nopPublisher{}, "http://localhost", 24*time.Hour)

	return register.New(log, validator.New(), svc)
}

func doRequest(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func TestRegister_Success(t *testing.T) {
	t.Parallel()

	handler := newHandler(t)

	rec := doRequest(t, handler, `{"email":"alice@example.com","password":"Secret123!"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp register.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.AccountUUID)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	t.Parallel()

	handler := newHandler(t)

	rec := doRequest(t, handler, `{"email":"alice@example.com","password":"Secret123!"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, handler, `{"email":"alice@example.com","password":"Secret123!"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegister_PasswordTooShort(t *testing.T) {
	t.Parallel()

	handler := newHandler(t)

	rec := doRequest(t, handler, `{"email":"alice@example.com","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegister_InvalidEmail(t *testing.T) {
	t.Parallel()

	handler := newHandler(t)

	rec := doRequest(t, handler, `{"email":"not-an-email","password":"Secret123!"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegister_MalformedBody(t *testing.T) {
	t.Parallel()

	handler := newHandler(t)

	rec := doRequest(t, handler, `{broken`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
