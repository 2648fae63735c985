package verify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"billing_auth/internal/auth"
	resp "billing_auth/internal/lib/api/response"
	sl "billing_auth/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

type Response struct {
	resp.Response
	Message string `json:"message,omitempty"`
}

func New(
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.verify.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		accountUUID, err := uuid.Parse(r.URL.Query().Get("uuid"))
		if err != nil {
			log.Warn("invalid or missing account uuid")

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid or missing account uuid"))

			return
		}

		token := r.URL.Query().Get("token")
		if token == "" {
			log.Warn("missing verification token")

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Missing verification token"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := authService.VerifyEmail(ctx, accountUUID, token); err != nil {
			if errors.Is(err, auth.ErrInvalidOrExpiredToken) {
				log.Warn("verification token rejected")

				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Invalid or expired verification token. Please request a new verification email."))

				return
			}

			log.Error("failed to verify email", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("email verified", slog.String("uuid", accountUUID.String()))

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Message:  "Email verified successfully. You can now log in.",
		})
	}
}
